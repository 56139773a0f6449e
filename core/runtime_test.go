package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCancelTokenIdempotent(t *testing.T) {
	token := NewCancelToken()
	assert.False(t, token.Cancelled())

	token.Cancel()
	token.Cancel()
	assert.True(t, token.Cancelled())

	select {
	case <-token.Done():
	default:
		t.Fatal("Done channel should be closed after Cancel")
	}
}

func TestNilCancelTokenIsInert(t *testing.T) {
	var token *CancelToken
	token.Cancel()
	assert.False(t, token.Cancelled())
	assert.Nil(t, token.Done())
}

func TestWithRetryRetriesRecoverable(t *testing.T) {
	attempts := 0
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}

	err := WithRetry(context.Background(), policy, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("connection refused")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithRetryStopsOnNonRecoverable(t *testing.T) {
	attempts := 0
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond}

	err := WithRetry(context.Background(), policy, func(ctx context.Context) error {
		attempts++
		return errors.New("invalid API key")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	attempts := 0
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}

	err := WithRetry(context.Background(), policy, func(ctx context.Context) error {
		attempts++
		return errors.New("rate limit exceeded")
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WithRetry(ctx, DefaultRetryPolicy(), func(ctx context.Context) error {
		t.Fatal("fn should not run once ctx is done")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryPolicyDelayFor(t *testing.T) {
	linear := RetryPolicy{BaseDelay: 100 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, linear.delayFor(0))
	assert.Equal(t, 100*time.Millisecond, linear.delayFor(3))

	exponential := RetryPolicy{BaseDelay: 100 * time.Millisecond, ExponentialBack: true, MaxDelay: 300 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, exponential.delayFor(0))
	assert.Equal(t, 200*time.Millisecond, exponential.delayFor(1))
	assert.Equal(t, 300*time.Millisecond, exponential.delayFor(2), "capped at max delay")
}

func TestRunWithRetryResultSuccess(t *testing.T) {
	result := RunWithRetryResult(context.Background(), RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond},
		func(ctx context.Context) (string, error) { return "ok", nil })

	assert.True(t, result.Success)
	assert.Equal(t, "ok", result.Value)
	assert.Equal(t, 1, result.Attempts)
	assert.Nil(t, result.Err)
}

func TestRunWithRetryResultFailure(t *testing.T) {
	result := RunWithRetryResult(context.Background(), RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond},
		func(ctx context.Context) (string, error) { return "", errors.New("rate limit") })

	assert.False(t, result.Success)
	assert.Equal(t, 2, result.Attempts)
	require.NotNil(t, result.Err)
	assert.Equal(t, KindRateLimit, result.Err.Kind)
}

func TestWithTimeoutFires(t *testing.T) {
	err := WithTimeout(context.Background(), 10*time.Millisecond, func(ctx context.Context) error {
		select {
		case <-time.After(time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	require.Error(t, err)
	var classified *ClassifiedError
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, KindTimeout, classified.Kind)
}

func TestWithTimeoutPassesThrough(t *testing.T) {
	err := WithTimeout(context.Background(), time.Second, func(ctx context.Context) error { return nil })
	assert.NoError(t, err)
}
