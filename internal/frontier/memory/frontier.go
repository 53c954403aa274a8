// Package memory provides an in-process frontier for local development and tests.
package memory

import (
	"container/list"
	"context"
	"sync"

	"github.com/JakeFAU/standards-harvester/internal/frontier"
)

// Frontier is a mutex-guarded deque plus seen set.
type Frontier struct {
	mu    sync.Mutex
	queue *list.List
	seen  map[string]struct{}
}

var _ frontier.Frontier = (*Frontier)(nil)

// New constructs an empty frontier.
func New() *Frontier {
	return &Frontier{
		queue: list.New(),
		seen:  make(map[string]struct{}),
	}
}

// Enqueue admits url at the requested end of the queue if it is unseen.
func (f *Frontier) Enqueue(_ context.Context, url string, priority frontier.Priority) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.seen[url]; ok {
		return false, nil
	}
	f.seen[url] = struct{}{}
	if priority == frontier.PriorityHead {
		f.queue.PushFront(url)
	} else {
		f.queue.PushBack(url)
	}
	return true, nil
}

// Dequeue pops the front of the queue.
func (f *Frontier) Dequeue(_ context.Context) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	front := f.queue.Front()
	if front == nil {
		return "", false, nil
	}
	f.queue.Remove(front)
	url, _ := front.Value.(string)
	return url, true, nil
}

// Contains reports whether url has been seen.
func (f *Frontier) Contains(_ context.Context, url string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.seen[url]
	return ok, nil
}

// MarkSeen stores url in the seen set and reports whether it was new.
func (f *Frontier) MarkSeen(_ context.Context, url string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.seen[url]; ok {
		return false, nil
	}
	f.seen[url] = struct{}{}
	return true, nil
}

// Len returns the pending queue length.
func (f *Frontier) Len(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(f.queue.Len()), nil
}

// Reset clears the queue and the seen set.
func (f *Frontier) Reset(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue.Init()
	f.seen = make(map[string]struct{})
	return nil
}
