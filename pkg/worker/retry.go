package worker

import "time"

// RetryPolicy bounds how often a worker re-enqueues a task whose dispatch
// failed with an engine-level error. Business failures inside a flow are
// never retried by the worker; those settle into the flow's operation result
// and are retried explicitly with a retry message.
type RetryPolicy struct {
	// MaxAttempts caps total delivery attempts, including the first.
	MaxAttempts int

	// InitialBackoff is the delay before the first redelivery.
	InitialBackoff time.Duration

	// BackoffMultiplier grows the delay each attempt. Values <= 1 give a
	// constant backoff.
	BackoffMultiplier float64

	// MaxBackoff caps the delay; zero means no cap.
	MaxBackoff time.Duration
}

// DefaultRetryPolicy is used when a worker is built without one.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		InitialBackoff:    100 * time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxBackoff:        5 * time.Second,
	}
}

// backoff returns the delay before redelivering a task that has already been
// attempted the given number of times.
func (p RetryPolicy) backoff(attempts int) time.Duration {
	d := p.InitialBackoff
	if d <= 0 {
		return 0
	}
	for i := 1; i < attempts; i++ {
		m := p.BackoffMultiplier
		if m <= 1 {
			break
		}
		d = time.Duration(float64(d) * m)
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// RetryBuilder provides a fluent way to construct RetryPolicy values.
type RetryBuilder struct {
	policy RetryPolicy
}

// Retry creates a RetryBuilder with the given maxAttempts.
//
// maxAttempts <= 0 is treated as 1 (no retries).
func Retry(maxAttempts int) RetryBuilder {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return RetryBuilder{
		policy: RetryPolicy{MaxAttempts: maxAttempts},
	}
}

// WithExponentialBackoff configures exponential backoff:
//
//   - initial is the delay before the first retry.
//   - multiplier > 1 grows the delay each attempt (default 2.0 if <= 0).
//   - max caps the delay; if <= 0, there is no cap.
func (r RetryBuilder) WithExponentialBackoff(initial time.Duration, multiplier float64, max time.Duration) RetryBuilder {
	p := r.policy
	p.InitialBackoff = initial
	p.MaxBackoff = max
	if multiplier <= 0 {
		multiplier = 2.0
	}
	p.BackoffMultiplier = multiplier
	return RetryBuilder{policy: p}
}

// WithConstantBackoff configures a constant backoff between retries.
func (r RetryBuilder) WithConstantBackoff(delay time.Duration) RetryBuilder {
	p := r.policy
	p.InitialBackoff = delay
	p.MaxBackoff = 0
	p.BackoffMultiplier = 1.0
	return RetryBuilder{policy: p}
}

// Immediate disables any sleep between retries. Retries still respect
// MaxAttempts.
func (r RetryBuilder) Immediate() RetryBuilder {
	p := r.policy
	p.InitialBackoff = 0
	p.MaxBackoff = 0
	p.BackoffMultiplier = 0
	return RetryBuilder{policy: p}
}

// Policy returns the built RetryPolicy.
func (r RetryBuilder) Policy() RetryPolicy {
	return r.policy
}
