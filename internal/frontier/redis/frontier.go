// Package redisfrontier implements the frontier on Redis: a list for the
// pending queue and a set for seen URLs.
package redisfrontier

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/JakeFAU/standards-harvester/internal/frontier"
)

// Default key names.
const (
	DefaultQueueKey = "url_queue"
	DefaultSeenKey  = "seen_urls"
)

// enqueueScript admits ARGV[1] only when SADD reports it new, so the seen
// check and the push happen in one server-side step.
var enqueueScript = redis.NewScript(`
if redis.call('SADD', KEYS[2], ARGV[1]) == 1 then
  if ARGV[2] == 'head' then
    redis.call('LPUSH', KEYS[1], ARGV[1])
  else
    redis.call('RPUSH', KEYS[1], ARGV[1])
  end
  return 1
end
return 0
`)

// Config names the Redis keys backing the frontier.
type Config struct {
	QueueKey string
	SeenKey  string
}

// Frontier is a Redis-backed frontier.Frontier.
type Frontier struct {
	client   redis.Cmdable
	queueKey string
	seenKey  string
}

var _ frontier.Frontier = (*Frontier)(nil)

// New builds a frontier over an existing client. The caller owns the client.
func New(client redis.Cmdable, cfg Config) (*Frontier, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if cfg.QueueKey == "" {
		cfg.QueueKey = DefaultQueueKey
	}
	if cfg.SeenKey == "" {
		cfg.SeenKey = DefaultSeenKey
	}
	if cfg.QueueKey == cfg.SeenKey {
		return nil, fmt.Errorf("queue and seen keys must differ")
	}
	return &Frontier{client: client, queueKey: cfg.QueueKey, seenKey: cfg.SeenKey}, nil
}

// Enqueue admits url unless it is already in the seen set.
func (f *Frontier) Enqueue(ctx context.Context, url string, priority frontier.Priority) (bool, error) {
	added, err := enqueueScript.Run(ctx, f.client, []string{f.queueKey, f.seenKey}, url, priority.String()).Int()
	if err != nil {
		return false, fmt.Errorf("enqueue %s: %w", url, err)
	}
	return added == 1, nil
}

// Dequeue pops the head of the queue.
func (f *Frontier) Dequeue(ctx context.Context) (string, bool, error) {
	url, err := f.client.LPop(ctx, f.queueKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("dequeue: %w", err)
	}
	return url, true, nil
}

// Contains reports set membership.
func (f *Frontier) Contains(ctx context.Context, url string) (bool, error) {
	ok, err := f.client.SIsMember(ctx, f.seenKey, url).Result()
	if err != nil {
		return false, fmt.Errorf("check seen %s: %w", url, err)
	}
	return ok, nil
}

// MarkSeen adds url to the seen set and reports whether it was new.
func (f *Frontier) MarkSeen(ctx context.Context, url string) (bool, error) {
	n, err := f.client.SAdd(ctx, f.seenKey, url).Result()
	if err != nil {
		return false, fmt.Errorf("mark seen %s: %w", url, err)
	}
	return n == 1, nil
}

// Len returns the queue length.
func (f *Frontier) Len(ctx context.Context) (int64, error) {
	n, err := f.client.LLen(ctx, f.queueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("queue length: %w", err)
	}
	return n, nil
}

// Reset deletes both keys.
func (f *Frontier) Reset(ctx context.Context) error {
	if err := f.client.Del(ctx, f.queueKey, f.seenKey).Err(); err != nil {
		return fmt.Errorf("reset frontier: %w", err)
	}
	return nil
}
