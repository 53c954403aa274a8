package uuid

import (
	"testing"

	goUUID "github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunIDsAreV7AndSortable(t *testing.T) {
	t.Parallel()

	gen := New()
	seen := make(map[string]struct{})
	prev := ""
	for range 50 {
		id, err := gen.NewID()
		require.NoError(t, err)

		parsed, err := goUUID.Parse(id)
		require.NoError(t, err)
		assert.Equal(t, goUUID.Version(7), parsed.Version())

		_, dup := seen[id]
		require.False(t, dup, "duplicate run id %s", id)
		seen[id] = struct{}{}

		assert.Greater(t, id, prev, "run ids sort by creation time")
		prev = id
	}
}
