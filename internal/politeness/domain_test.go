package politeness

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveDomainPublicSuffix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"https://docs.example.co.uk/x", "example.co.uk"},
		{"https://www.example.co.uk/y", "example.co.uk"},
		{"https://www.iso.org:443/standard/1.html", "iso.org"},
		{"http://sub.deep.nist.gov/pubs", "nist.gov"},
		{"https://EXAMPLE.com/Upper", "example.com"},
		{"example.org/no-scheme", "example.org"},
		{"https://127.0.0.1:8080/a", "127.0.0.1"},
		{"http://localhost:9000/", "localhost"},
		{"", ""},
		{"mailto:", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveDomain(tt.in))
		})
	}
}

func TestDeriveDomainLabelsMode(t *testing.T) {
	t.Parallel()

	d := Deriver{Mode: DomainModeLabels}
	assert.Equal(t, "co.uk", d.Derive("https://sub.example.co.uk/x"))
	assert.Equal(t, "example.com", d.Derive("https://www.example.com:8443/x"))
	assert.Equal(t, "example.com", d.Derive("https://a.b.example.com/"))
}

func TestAllowedDomains(t *testing.T) {
	t.Parallel()

	allowed := NewAllowedDomains(Deriver{Mode: DomainModePublicSuffix}, []string{
		"https://www.example.com/start",
		"https://docs.example.co.uk/",
		"https://standards.example.com/other",
		"not a url ::",
	})

	assert.Equal(t, []string{"example.co.uk", "example.com"}, allowed.List())
	assert.Equal(t, 2, allowed.Len())
	assert.True(t, allowed.Contains("example.com"))
	assert.True(t, allowed.AllowsURL("https://cdn.example.com/asset"))
	assert.False(t, allowed.AllowsURL("https://cdn.other.org/spec.pdf"))
}
