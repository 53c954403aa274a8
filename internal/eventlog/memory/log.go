// Package memory keeps the download log in process memory.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/standards-harvester/internal/eventlog"
)

// Log is a concurrency-safe in-memory download log.
type Log struct {
	mu      sync.RWMutex
	entries []eventlog.Entry
}

// New returns an empty Log.
func New() *Log {
	return &Log{}
}

// Record appends entry.
func (l *Log) Record(_ context.Context, entry eventlog.Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

// Recent returns up to limit entries, newest first. A non-positive limit
// returns all of them.
func (l *Log) Recent(_ context.Context, limit int) ([]eventlog.Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := len(l.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]eventlog.Entry, 0, n)
	for i := len(l.entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, l.entries[i])
	}
	return out, nil
}

// Len returns the number of recorded entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
