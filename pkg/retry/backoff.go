package retry

import "time"

// Backoff computes exponential delays from a policy
type Backoff struct {
	policy Policy
}

// NewBackoff creates a backoff calculator
func NewBackoff(policy Policy) *Backoff {
	return &Backoff{policy: policy}
}

// Calculate returns the delay before the given attempt (1-based), capped at
// the policy's max interval.
func (b *Backoff) Calculate(attempt int) time.Duration {
	delay := float64(b.policy.InitialInterval)
	for i := 1; i < attempt; i++ {
		delay *= b.policy.Multiplier
		if time.Duration(delay) >= b.policy.MaxInterval {
			return b.policy.MaxInterval
		}
	}
	if time.Duration(delay) > b.policy.MaxInterval {
		return b.policy.MaxInterval
	}
	return time.Duration(delay)
}
