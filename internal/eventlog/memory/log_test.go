package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/standards-harvester/internal/eventlog"
)

func TestRecentNewestFirst(t *testing.T) {
	t.Parallel()

	log := New()
	ctx := context.Background()
	for i := range 5 {
		require.NoError(t, log.Record(ctx, eventlog.Entry{URL: fmt.Sprintf("u%d", i)}))
	}

	recent, err := log.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "u4", recent[0].URL)
	assert.Equal(t, "u3", recent[1].URL)

	all, err := log.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestConcurrentRecord(t *testing.T) {
	t.Parallel()

	log := New()
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = log.Record(context.Background(), eventlog.Entry{URL: fmt.Sprintf("u%d", i)})
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, log.Len())
}
