// Package eventlog records one entry per archived artifact.
package eventlog

import (
	"context"
	"errors"
	"time"
)

// Entry is the download-log record. Its JSON form is
// {timestamp, url, domain, year, file_path}.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	URL       string    `json:"url"`
	Domain    string    `json:"domain"`
	Year      string    `json:"year"`
	FilePath  string    `json:"file_path"`
}

// Sink appends entries to a log.
type Sink interface {
	Record(ctx context.Context, entry Entry) error
}

// Reader lists the most recent entries, newest first.
type Reader interface {
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

// Multi fans an entry out to several sinks.
type Multi struct {
	sinks []Sink
}

// NewMulti drops nil sinks and returns the fan-out.
func NewMulti(sinks ...Sink) *Multi {
	kept := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &Multi{sinks: kept}
}

// Record writes entry to every sink. Every sink is attempted; failures are
// joined.
func (m *Multi) Record(ctx context.Context, entry Entry) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Record(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of sinks.
func (m *Multi) Len() int {
	return len(m.sinks)
}
