package adapters

import (
	"context"
	"time"

	"github.com/fritzprix/libr-agent-sub001/core"
)

// runtimeSettings holds the shared knobs an adapter applies around every
// provider call: the retry policy and per-attempt timeout, and the optional
// rate limiter consulted before issuing a request. The shared model cache
// is held by the adapters that list models, not here. The Factory populates
// these through core.RuntimeAware; adapters constructed standalone keep the
// defaults.
type runtimeSettings struct {
	retry   core.RetryPolicy
	timeout time.Duration
	limiter core.RateLimiter
}

func defaultRuntimeSettings() runtimeSettings {
	return runtimeSettings{retry: core.DefaultRetryPolicy(), timeout: 30 * time.Second}
}

func (r *runtimeSettings) apply(retry core.RetryPolicy, timeout time.Duration, limiter core.RateLimiter) {
	if retry != (core.RetryPolicy{}) {
		r.retry = retry
	}
	if timeout > 0 {
		r.timeout = timeout
	}
	if limiter != nil {
		r.limiter = limiter
	}
}

// wait blocks on the configured rate limiter, if any, before a request for
// key is issued.
func (r runtimeSettings) wait(ctx context.Context, key string) error {
	if r.limiter == nil {
		return nil
	}
	return r.limiter.Wait(ctx, key)
}

// streamAttempt runs one provider attempt, writing events to the stream's
// output channel. It sets *emitted as soon as any event has been sent, and
// returns the attempt's terminal error, if any.
type streamAttempt func(ctx context.Context, emitted *bool) error

// runStreamWithRetry owns a stream call's output channel: it drives
// attempts under the retry policy, bounds each attempt with the per-attempt
// timeout, and closes the channel after sending the final End event. An
// attempt that fails before emitting anything and classifies as recoverable
// is retried with backoff; an error after the first emitted event is
// terminal, so the consumer sees the partial prefix plus the error.
// Cancellation classifies as non-recoverable and is never retried.
func runStreamWithRetry(ctx context.Context, settings runtimeSettings, out chan<- core.Event, errCtx map[string]interface{}, attempt streamAttempt) {
	defer close(out)

	policy := settings.retry
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	for i := 0; i < policy.MaxAttempts; i++ {
		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if settings.timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, settings.timeout)
		}

		emitted := false
		err := attempt(attemptCtx, &emitted)
		cancel()

		if err == nil {
			out <- core.EndEvent()
			return
		}

		classified := core.Classify(err, errCtx)
		if emitted || !classified.Recoverable() || i == policy.MaxAttempts-1 {
			out <- core.EndEventWithError(classified)
			return
		}

		select {
		case <-time.After(policy.DelayFor(i)):
		case <-ctx.Done():
			out <- core.EndEventWithError(core.Classify(ctx.Err(), errCtx))
			return
		}
	}
}
