package retry

import (
	"errors"
	"fmt"
	"time"
)

// ErrMaxRetriesExceeded wraps the last error once the retry budget is spent
var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// Policy controls how an operation is retried
type Policy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64

	// RetryableFunc decides whether an error is worth retrying. When nil,
	// everything except context cancellation retries.
	RetryableFunc func(error) bool
}

// Validate checks the policy is internally consistent
func (p Policy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("max retries must be non-negative, got %d", p.MaxRetries)
	}
	if p.InitialInterval <= 0 {
		return fmt.Errorf("initial interval must be positive, got %s", p.InitialInterval)
	}
	if p.MaxInterval < p.InitialInterval {
		return fmt.Errorf("max interval %s below initial interval %s", p.MaxInterval, p.InitialInterval)
	}
	if p.Multiplier < 1 {
		return fmt.Errorf("multiplier must be >= 1, got %f", p.Multiplier)
	}
	return nil
}

// DefaultPolicy suits short read calls against a chain RPC endpoint
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:      2,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2,
	}
}
