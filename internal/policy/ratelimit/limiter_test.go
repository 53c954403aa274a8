package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_Wait(t *testing.T) {
	ctx := context.Background()

	// 10 RPS with burst 1: the second call waits roughly 100ms.
	l := New(Config{
		DefaultRPS:   10,
		DefaultBurst: 1,
	})

	start := time.Now()
	if err := l.Wait(ctx, "https://api.example.gov/v4/documents"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) > 10*time.Millisecond {
		t.Logf("warning: first wait took %v", time.Since(start))
	}

	start = time.Now()
	if err := l.Wait(ctx, "https://api.example.gov/v4/documents?page[number]=2"); err != nil {
		t.Fatal(err)
	}
	if dur := time.Since(start); dur < 80*time.Millisecond {
		t.Errorf("expected wait ~100ms, got %v", dur)
	}
}

func TestLimiter_DifferentHosts(t *testing.T) {
	l := New(Config{
		DefaultRPS:   1,
		DefaultBurst: 1,
	})
	ctx := context.Background()

	if err := l.Wait(ctx, "https://a.com/1"); err != nil {
		t.Fatal(err)
	}

	// Host B should not be blocked by A.
	start := time.Now()
	if err := l.Wait(ctx, "https://b.com/1"); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > 10*time.Millisecond {
		t.Errorf("host B blocked unexpectedly")
	}
	if l.Hosts() != 2 {
		t.Errorf("expected 2 host buckets, got %d", l.Hosts())
	}
}

func TestLimiter_Unlimited(t *testing.T) {
	l := New(Config{})
	ctx := context.Background()
	start := time.Now()
	for range 50 {
		if err := l.Wait(ctx, "https://a.com/"); err != nil {
			t.Fatal(err)
		}
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Errorf("unlimited limiter should not block")
	}
}

func TestLimiter_ContextCanceled(t *testing.T) {
	l := New(Config{DefaultRPS: 0.1, DefaultBurst: 1})
	if err := l.Wait(context.Background(), "https://slow.com/"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	// The next token is 10s away, past the deadline.
	if err := l.Wait(ctx, "https://slow.com/"); err == nil {
		t.Fatal("expected error when the deadline cannot be met")
	}
}
