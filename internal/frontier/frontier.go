// Package frontier defines the URL frontier: a pending queue paired with the
// set of every URL ever admitted during the current run.
package frontier

import "context"

// Priority selects which end of the queue a URL joins.
type Priority int

const (
	// PriorityTail appends the URL, giving FIFO order for exploratory links.
	PriorityTail Priority = iota
	// PriorityHead places the URL next in line. Used for direct documents.
	PriorityHead
)

// String returns the metric label for the priority.
func (p Priority) String() string {
	if p == PriorityHead {
		return "head"
	}
	return "tail"
}

// Frontier is the crawl queue plus its seen set.
//
// Implementations must make the seen check, the seen insert and the queue
// insert of Enqueue a single atomic step with respect to any other caller,
// so a URL is admitted at most once per run even with several producers.
type Frontier interface {
	// Enqueue admits url unless it was already seen. It reports whether the
	// URL was new.
	Enqueue(ctx context.Context, url string, priority Priority) (bool, error)
	// Dequeue pops the next URL. ok is false when the queue is empty; it never blocks.
	Dequeue(ctx context.Context) (url string, ok bool, err error)
	// Contains reports whether url has been seen in this run.
	Contains(ctx context.Context, url string) (bool, error)
	// MarkSeen records url as seen without queueing it and reports whether it was new.
	MarkSeen(ctx context.Context, url string) (bool, error)
	// Len returns the number of pending URLs.
	Len(ctx context.Context) (int64, error)
	// Reset drops both the queue and the seen set.
	Reset(ctx context.Context) error
}
