package crawler

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/standards-harvester/internal/archive"
	"github.com/JakeFAU/standards-harvester/internal/discover"
	"github.com/JakeFAU/standards-harvester/internal/eventlog"
	"github.com/JakeFAU/standards-harvester/internal/fetcher"
	"github.com/JakeFAU/standards-harvester/internal/metrics"
)

// URL outcomes reported to metrics.
const (
	outcomeSaved    = "saved"
	outcomeExplored = "explored"
	outcomeDenied   = "robots_denied"
	outcomeRejected = "rejected"
	outcomeFailed   = "failed"
)

// ProcessURL handles one frontier URL and reports whether it succeeded.
// Document URLs are downloaded and archived; anything else is fetched as a
// page whose links are enqueued and whose embedded documents are harvested
// on the spot. Errors are logged, never returned.
func (s *Session) ProcessURL(ctx context.Context, url string) bool {
	ctx, span := s.tracer.Start(ctx, "crawler.process_url",
		trace.WithAttributes(attribute.String("url.full", url)))
	defer span.End()

	s.processed.Add(1)
	s.logger.Info("processing", zap.String("url", url))

	outcome := s.clear(ctx, url)
	if outcome == "" {
		if fetcher.IsDocumentURL(url) {
			outcome = s.harvestDocument(ctx, url)
		} else {
			outcome = s.explorePage(ctx, url)
		}
	}

	metrics.ObserveURL(outcome)
	span.SetAttributes(attribute.String("harvester.outcome", outcome))
	ok := outcome == outcomeSaved || outcome == outcomeExplored
	if ok {
		s.succeeded.Add(1)
	} else {
		span.SetStatus(codes.Error, outcome)
	}
	return ok
}

// clear runs the robots gate and then the politeness delay. It returns the
// outcome that stops processing, or "" when the fetch may go ahead.
func (s *Session) clear(ctx context.Context, url string) string {
	if !s.gate.CanFetch(ctx, url) {
		s.logger.Info("blocked by robots.txt", zap.String("url", url))
		return outcomeDenied
	}
	delay := s.politeDelay()
	s.logger.Debug("sleeping before fetch", zap.String("url", url), zap.Duration("delay", delay))
	s.clock.Sleep(ctx, delay)
	if ctx.Err() != nil {
		return outcomeFailed
	}
	return ""
}

func (s *Session) harvestDocument(ctx context.Context, url string) string {
	doc, err := s.fetcher.FetchDocument(ctx, url)
	if err != nil {
		s.logger.Warn("document fetch failed", zap.String("url", url), zap.Error(err))
		return outcomeFailed
	}

	decision := s.validator.ShouldAccept(url, doc.ContentType, doc.Body)
	if !decision.Accept {
		s.rejected.Add(1)
		s.logger.Info("document rejected",
			zap.String("url", url),
			zap.String("reason", string(decision.Reason)),
			zap.String("content_type", doc.ContentType))
		return outcomeRejected
	}

	domain := s.deriver.Derive(url)
	art, err := s.archive.Save(ctx, url, domain, doc.ContentType, doc.Body)
	if errors.Is(err, archive.ErrTooSmall) {
		s.rejected.Add(1)
		s.logger.Info("document below size floor", zap.String("url", url), zap.Int("bytes", len(doc.Body)))
		return outcomeRejected
	}
	if err != nil {
		s.logger.Error("failed to save document", zap.String("url", url), zap.Error(err))
		return outcomeFailed
	}
	s.saved.Add(1)

	entry := eventlog.Entry{
		Timestamp: s.clock.Now(),
		URL:       url,
		Domain:    domain,
		Year:      art.Year,
		FilePath:  art.Path,
	}
	if err := s.events.Record(ctx, entry); err != nil {
		s.logger.Warn("failed to record download", zap.String("url", url), zap.Error(err))
	}
	s.logger.Info("saved document",
		zap.String("url", url),
		zap.String("path", art.Path),
		zap.String("year", art.Year),
		zap.Int64("bytes", art.Size))
	return outcomeSaved
}

func (s *Session) explorePage(ctx context.Context, url string) string {
	page, err := s.fetcher.FetchPage(ctx, url)
	if err != nil {
		s.logger.Warn("page fetch failed", zap.String("url", url), zap.Error(err))
		return outcomeFailed
	}

	doc, err := discover.Parse(page.Body)
	if err != nil {
		s.logger.Warn("unparseable page", zap.String("url", url), zap.Error(err))
		return outcomeExplored
	}
	base, err := discover.BaseURL(doc, page.BaseURL())
	if err != nil {
		s.logger.Warn("unusable page url", zap.String("url", page.BaseURL()), zap.Error(err))
		return outcomeExplored
	}

	added := 0
	for _, link := range discover.Links(doc, base, s.AllowedDomains()) {
		ok, err := s.enqueue(ctx, link)
		if err != nil {
			s.logger.Warn("failed to enqueue link", zap.String("link", link), zap.Error(err))
			continue
		}
		if ok {
			added++
		}
	}
	s.logger.Info("explored page", zap.String("url", url), zap.Int("new_links", added), zap.String("tier", string(page.Tier)))

	for _, docURL := range discover.EmbeddedDocuments(doc, base) {
		if ctx.Err() != nil {
			break
		}
		isNew, err := s.frontier.MarkSeen(ctx, docURL)
		if err != nil {
			s.logger.Warn("failed to mark embedded document", zap.String("url", docURL), zap.Error(err))
			continue
		}
		if !isNew {
			continue
		}
		if s.harvestEmbedded(ctx, docURL) {
			s.logger.Info("downloaded embedded document", zap.String("url", docURL), zap.String("page", url))
		}
	}
	return outcomeExplored
}

// harvestEmbedded processes a document referenced from a page. It skips the
// allow-list but not the robots gate or the delay.
func (s *Session) harvestEmbedded(ctx context.Context, url string) bool {
	s.processed.Add(1)
	outcome := s.clear(ctx, url)
	if outcome == "" {
		outcome = s.harvestDocument(ctx, url)
	}
	metrics.ObserveURL(outcome)
	if outcome == outcomeSaved {
		s.succeeded.Add(1)
		return true
	}
	return false
}
