package crawler

import (
	"fmt"
	"time"
)

// Config holds the settings for a crawl session. It is decoupled from viper
// so the session can be built directly in tests.
type Config struct {
	SeedFile string
	// Politeness delay before every fetch: a normal draw with the given mean
	// and standard deviation, never below DelayFloor.
	DelayMean   time.Duration
	DelayStdDev time.Duration
	DelayFloor  time.Duration
	// EmptyWait is how long to idle when the frontier is empty.
	EmptyWait time.Duration
	// Shuffle randomizes seed order before enqueueing.
	Shuffle bool
}

// DefaultConfig returns the stock timings.
func DefaultConfig() Config {
	return Config{
		SeedFile:    "urls_to_crawl.txt",
		DelayMean:   3 * time.Second,
		DelayStdDev: time.Second,
		DelayFloor:  2 * time.Second,
		EmptyWait:   10 * time.Second,
		Shuffle:     true,
	}
}

func (c Config) validate() error {
	if c.SeedFile == "" {
		return fmt.Errorf("seed file is required")
	}
	if c.EmptyWait <= 0 {
		return fmt.Errorf("empty wait must be positive")
	}
	if c.DelayFloor < 0 || c.DelayMean < 0 || c.DelayStdDev < 0 {
		return fmt.Errorf("politeness delays must not be negative")
	}
	return nil
}
