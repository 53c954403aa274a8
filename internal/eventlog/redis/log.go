// Package redislog stores the download log as a Redis list of JSON entries.
package redislog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/JakeFAU/standards-harvester/internal/eventlog"
)

// DefaultKey is the list that receives entries.
const DefaultKey = "downloaded_files"

// Log pushes entries onto the head of a Redis list.
type Log struct {
	client redis.Cmdable
	key    string
}

// New creates a Log writing to key (DefaultKey when empty).
func New(client redis.Cmdable, key string) (*Log, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if key == "" {
		key = DefaultKey
	}
	return &Log{client: client, key: key}, nil
}

// Record LPUSHes the JSON form of entry.
func (l *Log) Record(ctx context.Context, entry eventlog.Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal download entry: %w", err)
	}
	if err := l.client.LPush(ctx, l.key, payload).Err(); err != nil {
		return fmt.Errorf("push download entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first. A non-positive limit
// returns the whole list.
func (l *Log) Recent(ctx context.Context, limit int) ([]eventlog.Entry, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	raw, err := l.client.LRange(ctx, l.key, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("read download log: %w", err)
	}
	entries := make([]eventlog.Entry, 0, len(raw))
	for _, item := range raw {
		var entry eventlog.Entry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, fmt.Errorf("decode download entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Len returns the list length.
func (l *Log) Len(ctx context.Context) (int64, error) {
	n, err := l.client.LLen(ctx, l.key).Result()
	if err != nil {
		return 0, fmt.Errorf("download log length: %w", err)
	}
	return n, nil
}
