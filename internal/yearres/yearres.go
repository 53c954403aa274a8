// Package yearres picks the publication year under which an artifact is
// archived.
package yearres

import (
	"net/url"
	"path"
	"regexp"
	"strconv"
	"time"

	"github.com/JakeFAU/standards-harvester/internal/classify"
)

var (
	metadataYear = regexp.MustCompile(`^(?:D:)?((?:19|20)\d{2})`)
	textYear     = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
	isoDate      = regexp.MustCompile(`(?:19|20)\d{2}-(?:0[1-9]|1[0-2])-(?:0[1-9]|[12][0-9]|3[01])`)
	urlYear      = regexp.MustCompile(`/((?:19|20)\d{2})/`)
	bareYear     = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
	tokenYear    = regexp.MustCompile(`(?:19|20)\d{2}`)
	versionToken = regexp.MustCompile(`(?i)(?:v|rev|version|ver)(?:\d{4}|(?:19|20)\d{2}-\d{2}-\d{2})`)
)

// FromMetadata reads the year of a PDF date string such as
// "D:20190314120000Z". Empty means no year.
func FromMetadata(date string) string {
	m := metadataYear.FindStringSubmatch(date)
	if m == nil {
		return ""
	}
	return m[1]
}

// FromText returns the first standalone year in text, falling back to the
// year of the first ISO date.
func FromText(text string) string {
	if year := textYear.FindString(text); year != "" {
		return year
	}
	if date := isoDate.FindString(text); date != "" {
		return date[:4]
	}
	return ""
}

// FromURL returns a year path segment, else a year inside a version token.
// Host and query are ignored.
func FromURL(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	if m := urlYear.FindStringSubmatch(p); m != nil {
		return m[1]
	}
	return fromVersion(p)
}

// FromFilename returns a standalone year in name, else one inside a version
// token. Years buried in longer digit runs do not count.
func FromFilename(name string) string {
	if year := bareYear.FindString(name); year != "" {
		return year
	}
	return fromVersion(name)
}

func fromVersion(s string) string {
	token := versionToken.FindString(s)
	if token == "" {
		return ""
	}
	return tokenYear.FindString(token)
}

// Resolve returns the minimum non-empty candidate, or the year of now.
func Resolve(now time.Time, candidates ...string) string {
	if year := minYear(candidates); year != "" {
		return year
	}
	return strconv.Itoa(now.Year())
}

func minYear(candidates []string) string {
	best := ""
	for _, c := range candidates {
		if c == "" {
			continue
		}
		// Candidates are all four digits, so string order is numeric order.
		if best == "" || c < best {
			best = c
		}
	}
	return best
}

// Clock supplies the fallback year.
type Clock interface {
	Now() time.Time
}

// Resolver gathers every year candidate for an artifact.
type Resolver struct {
	clock Clock
}

// NewResolver builds a Resolver.
func NewResolver(clock Clock) *Resolver {
	return &Resolver{clock: clock}
}

// Resolve picks the year for body downloaded from rawURL and stored as
// filename. PDF metadata and text are consulted only for PDF bodies.
func (r *Resolver) Resolve(body []byte, rawURL, filename string) string {
	candidates := []string{FromURL(rawURL), FromFilename(path.Base(filename))}
	if classify.SniffType(body) == classify.KindPDF {
		if info, err := classify.InspectPDF(body); err == nil && !info.Encrypted {
			candidates = append(candidates,
				FromMetadata(info.CreationDate),
				FromMetadata(info.ModDate),
				FromText(info.Text),
			)
		}
	}
	return Resolve(r.clock.Now(), candidates...)
}
