// Package politeness decides which URLs the harvester may touch: registrable
// domain derivation, the seed-derived allow-list, and robots exclusion.
package politeness

import (
	"net"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// DomainMode selects how a host is reduced to its registrable domain.
type DomainMode string

const (
	// DomainModePublicSuffix uses the public suffix list (eTLD+1), so
	// docs.example.co.uk becomes example.co.uk.
	DomainModePublicSuffix DomainMode = "publicsuffix"
	// DomainModeLabels keeps the last two host labels. It maps
	// sub.example.co.uk to co.uk and is kept for archives laid out that way.
	DomainModeLabels DomainMode = "labels"
)

// Deriver reduces URLs to registrable domains.
type Deriver struct {
	Mode DomainMode
}

// DeriveDomain reduces rawURL with the default public-suffix rule.
func DeriveDomain(rawURL string) string {
	return Deriver{Mode: DomainModePublicSuffix}.Derive(rawURL)
}

// Derive strips a leading "www." and any port and returns the registrable
// domain of rawURL, or "" when no host can be parsed.
func (d Deriver) Derive(rawURL string) string {
	host := hostOf(rawURL)
	if host == "" {
		return ""
	}
	if net.ParseIP(host) != nil || !strings.Contains(host, ".") {
		return host
	}
	if d.Mode == DomainModeLabels {
		return lastTwoLabels(host)
	}
	registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		// The host is itself a public suffix (or malformed).
		return lastTwoLabels(host)
	}
	return registrable
}

func hostOf(rawURL string) string {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	return strings.TrimPrefix(host, "www.")
}

func lastTwoLabels(host string) string {
	labels := strings.Split(host, ".")
	if len(labels) <= 2 {
		return host
	}
	return strings.Join(labels[len(labels)-2:], ".")
}

// AllowedDomains is the immutable set of registrable domains computed from
// the seed list.
type AllowedDomains struct {
	deriver Deriver
	set     map[string]struct{}
}

// NewAllowedDomains derives the registrable domain of every seed.
func NewAllowedDomains(deriver Deriver, seeds []string) AllowedDomains {
	set := make(map[string]struct{}, len(seeds))
	for _, seed := range seeds {
		if domain := deriver.Derive(seed); domain != "" {
			set[domain] = struct{}{}
		}
	}
	return AllowedDomains{deriver: deriver, set: set}
}

// Contains reports whether domain is in the set.
func (a AllowedDomains) Contains(domain string) bool {
	_, ok := a.set[domain]
	return ok
}

// AllowsURL reports whether rawURL's registrable domain is in the set.
func (a AllowedDomains) AllowsURL(rawURL string) bool {
	return a.Contains(a.deriver.Derive(rawURL))
}

// List returns the domains in sorted order.
func (a AllowedDomains) List() []string {
	out := make([]string, 0, len(a.set))
	for domain := range a.set {
		out = append(out, domain)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of domains.
func (a AllowedDomains) Len() int {
	return len(a.set)
}
