package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastPolicy(maxRetries int) Policy {
	return Policy{
		MaxRetries:      maxRetries,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      2,
	}
}

func TestRetrierDo(t *testing.T) {
	t.Run("returns on first success", func(t *testing.T) {
		calls := 0
		err := NewRetrier(fastPolicy(3), zap.NewNop()).Do(context.Background(), func() error {
			calls++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("retries until success", func(t *testing.T) {
		calls := 0
		err := NewRetrier(fastPolicy(3), zap.NewNop()).Do(context.Background(), func() error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		calls := 0
		err := NewRetrier(fastPolicy(2), zap.NewNop()).Do(context.Background(), func() error {
			calls++
			return errors.New("persistent")
		})
		assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
		assert.Equal(t, 3, calls)
	})

	t.Run("does not retry context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := NewRetrier(fastPolicy(5), zap.NewNop()).Do(ctx, func() error {
			calls++
			cancel()
			return ctx.Err()
		})
		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("honors the retryable predicate", func(t *testing.T) {
		policy := fastPolicy(5)
		policy.RetryableFunc = func(err error) bool { return false }
		calls := 0
		err := NewRetrier(policy, zap.NewNop()).Do(context.Background(), func() error {
			calls++
			return errors.New("fatal")
		})
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrMaxRetriesExceeded)
		assert.Equal(t, 1, calls)
	})
}

func TestBackoffCalculate(t *testing.T) {
	backoff := NewBackoff(Policy{
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     time.Second,
		Multiplier:      2,
	})

	assert.Equal(t, 100*time.Millisecond, backoff.Calculate(1))
	assert.Equal(t, 200*time.Millisecond, backoff.Calculate(2))
	assert.Equal(t, 400*time.Millisecond, backoff.Calculate(3))
	// capped at the max interval
	assert.Equal(t, time.Second, backoff.Calculate(10))
}

func TestPolicyValidate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())

	bad := DefaultPolicy()
	bad.MaxRetries = -1
	assert.Error(t, bad.Validate())
}
