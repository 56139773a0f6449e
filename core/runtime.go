package core

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// CancelToken lets a caller request cancellation of an in-flight StreamChat
// call independently of the context passed to it — useful when the token
// is handed to UI code that may outlive the original request's ctx value.
// Cancelling is idempotent.
type CancelToken struct {
	done chan struct{}
}

// NewCancelToken returns a ready-to-use CancelToken.
func NewCancelToken() *CancelToken {
	return &CancelToken{done: make(chan struct{})}
}

// Cancel marks the token cancelled. Safe to call more than once and from
// multiple goroutines.
func (t *CancelToken) Cancel() {
	if t == nil {
		return
	}
	select {
	case <-t.done:
	default:
		close(t.done)
	}
}

// Cancelled reports whether Cancel has been called.
func (t *CancelToken) Cancelled() bool {
	if t == nil {
		return false
	}
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when the token is cancelled. A nil token
// returns nil, which select treats as a channel that never fires.
func (t *CancelToken) Done() <-chan struct{} {
	if t == nil {
		return nil
	}
	return t.done
}

// RetryPolicy configures WithRetry and RunWithRetryResult.
type RetryPolicy struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	BaseDelay       time.Duration `yaml:"base_delay"`
	ExponentialBack bool          `yaml:"exponential_backoff"`
	MaxDelay        time.Duration `yaml:"max_delay"`
	Jitter          bool          `yaml:"jitter"`
}

// DefaultRetryPolicy is a single attempt with a one-second base delay, no
// backoff, jitter off.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
}

// DelayFor returns the backoff delay to sleep before retrying after the
// given zero-based attempt.
func (p RetryPolicy) DelayFor(attempt int) time.Duration { return p.delayFor(attempt) }

func (p RetryPolicy) delayFor(attempt int) time.Duration {
	delay := p.BaseDelay
	if p.ExponentialBack {
		delay = p.BaseDelay * time.Duration(1<<uint(attempt))
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if p.Jitter && delay > 0 {
		delay = delay/2 + time.Duration(rand.Int63n(int64(delay)/2+1))
	}
	return delay
}

// WithRetry runs fn, retrying classified-recoverable errors up to
// policy.MaxAttempts total attempts with the configured backoff between
// attempts. It stops immediately, without retrying, once ctx is done or the
// classified error is non-recoverable.
func WithRetry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) error {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		classified := Classify(err, nil)
		if !classified.Recoverable() {
			return err
		}
		if attempt == policy.MaxAttempts-1 {
			break
		}
		select {
		case <-time.After(policy.delayFor(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// RetryResult is the structured outcome of RunWithRetryResult, for callers
// that want the attempt count and classification without unwrapping an
// error chain.
type RetryResult struct {
	Success  bool
	Value    string
	Err      *ClassifiedError
	Attempts int
}

// RunWithRetryResult executes fn under the same retry policy as WithRetry
// but reports the outcome as a RetryResult instead of an error, for callers
// that want the attempt count and classification without unwrapping.
func RunWithRetryResult(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (string, error)) RetryResult {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	var lastErr error
	attempts := 0
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return RetryResult{Err: Classify(err, nil), Attempts: attempts}
		}
		attempts++
		value, err := fn(ctx)
		if err == nil {
			return RetryResult{Success: true, Value: value, Attempts: attempts}
		}
		lastErr = err

		classified := Classify(err, nil)
		if !classified.Recoverable() {
			return RetryResult{Err: classified, Attempts: attempts}
		}
		if attempt == policy.MaxAttempts-1 {
			break
		}
		select {
		case <-time.After(policy.delayFor(attempt)):
		case <-ctx.Done():
			return RetryResult{Err: Classify(ctx.Err(), nil), Attempts: attempts}
		}
	}
	return RetryResult{Err: Classify(lastErr, nil), Attempts: attempts}
}

// WithTimeout runs fn under a context bounded by timeout, returning a
// KindTimeout ClassifiedError if fn does not finish in time.
func WithTimeout(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- fn(tctx) }()

	select {
	case err := <-errCh:
		// fn may observe the deadline itself and return tctx.Err() before
		// this select sees tctx.Done()
		if err != nil && errors.Is(err, context.DeadlineExceeded) {
			return Classify(err, map[string]interface{}{"timeout": timeout.String()})
		}
		return err
	case <-tctx.Done():
		return Classify(tctx.Err(), map[string]interface{}{"timeout": timeout.String()})
	}
}
