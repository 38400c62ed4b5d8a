package search

import (
	"fmt"
	"time"
)

// Config holds the ranking and resilience constants used by the Retriever.
// Boosts are additive.
type Config struct {
	// YearBoost is added when a candidate's fiscal year matches the query.
	YearBoost float64
	// RecencyBoost is added to the most recent candidate; each later
	// position receives RecencyDecay less, never below zero.
	RecencyBoost float64
	RecencyDecay float64
	// OverFetchFactor multiplies the requested result count to size the
	// candidate set handed to re-ranking.
	OverFetchFactor int
	DefaultResults  int
	BulkFetchLimit  int

	EmbedTimeout   time.Duration
	IndexTimeout   time.Duration
	MaxAttempts    int
	RetryBaseDelay time.Duration
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		YearBoost:       0.15,
		RecencyBoost:    0.10,
		RecencyDecay:    0.005,
		OverFetchFactor: 3,
		DefaultResults:  20,
		BulkFetchLimit:  100,
		EmbedTimeout:    30 * time.Second,
		IndexTimeout:    10 * time.Second,
		MaxAttempts:     3,
		RetryBaseDelay:  200 * time.Millisecond,
	}
}

// Validate checks that every value is usable.
func (c Config) Validate() error {
	switch {
	case c.YearBoost < 0 || c.RecencyBoost < 0 || c.RecencyDecay < 0:
		return fmt.Errorf("%w: boosts must not be negative", ErrInvalidConfig)
	case c.OverFetchFactor < 1:
		return fmt.Errorf("%w: over-fetch factor must be at least 1", ErrInvalidConfig)
	case c.DefaultResults < 1:
		return fmt.Errorf("%w: default results must be at least 1", ErrInvalidConfig)
	case c.BulkFetchLimit < 1:
		return fmt.Errorf("%w: bulk fetch limit must be at least 1", ErrInvalidConfig)
	case c.MaxAttempts < 1:
		return fmt.Errorf("%w: max attempts must be at least 1", ErrInvalidConfig)
	}
	return nil
}
