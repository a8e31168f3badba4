package session

import (
	"time"

	"github.com/danmuck/thermoctl/internal/protocol/chunk"
)

const (
	// DefaultAttempts is the remaining-attempts counter a command starts with.
	DefaultAttempts    = 11
	DefaultBackoffUnit = time.Second
)

// Config defines command retry and polling behavior.
type Config struct {
	// Attempts is the number of guarded attempts before the final one.
	Attempts int
	// BackoffUnit scales the wait after closing the link: (8-r) units.
	BackoffUnit time.Duration
	// PollWait is the pause after an empty chunk read.
	PollWait time.Duration
	// FailFastStatus returns out-of-bounds and unknown-command statuses
	// immediately instead of running the recovery ladder.
	FailFastStatus bool
	// Seed fixes the correlation id source; zero seeds from the clock.
	Seed int64
}

func DefaultConfig() Config {
	return Config{
		Attempts:    DefaultAttempts,
		BackoffUnit: DefaultBackoffUnit,
		PollWait:    chunk.DefaultPollWait,
	}
}

func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.Attempts <= 0 {
		c.Attempts = d.Attempts
	}
	if c.BackoffUnit <= 0 {
		c.BackoffUnit = d.BackoffUnit
	}
	if c.PollWait <= 0 {
		c.PollWait = d.PollWait
	}
	return c
}
