package crawler

import (
	"context"
	"time"

	"github.com/JakeFAU/standards-harvester/internal/archive"
	"github.com/JakeFAU/standards-harvester/internal/classify"
	"github.com/JakeFAU/standards-harvester/internal/fetcher"
)

// Gate decides whether robots rules permit a fetch.
type Gate interface {
	CanFetch(ctx context.Context, url string) bool
}

// Fetcher retrieves documents and pages.
type Fetcher interface {
	FetchDocument(ctx context.Context, url string) (fetcher.Document, error)
	FetchPage(ctx context.Context, url string) (fetcher.Document, error)
}

// Validator decides whether fetched content may be archived.
type Validator interface {
	ShouldAccept(url, declaredType string, body []byte) classify.Decision
}

// Archive stores accepted artifacts.
type Archive interface {
	Save(ctx context.Context, url, domain, contentType string, body []byte) (archive.Artifact, error)
}

// Clock reads time and waits. Sleep returns early when ctx is done.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration)
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Browser is the lifecycle of the rendering tier.
type Browser interface {
	Start(ctx context.Context) error
	Close() error
}

// Source lists extra document URLs to seed, such as an upstream API.
type Source interface {
	Documents(ctx context.Context) ([]string, error)
}
