// Package retry provides the single retry policy applied around collaborator
// calls. Call sites never hand-roll backoff loops; they construct a Policy
// once and apply it uniformly.
package retry

import (
	"context"
	"math/rand"
	"time"

	"nivaran/pkg/platform/fault"
)

// Policy bounds retries with exponential backoff and jitter. The zero value
// is not usable; construct via Default or New.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter is the fraction of the computed delay randomized in both
	// directions, e.g. 0.2 yields delays in [0.8d, 1.2d].
	Jitter float64
	// Retryable decides whether an error is worth another attempt.
	Retryable func(error) bool
	// sleep is swappable so tests run without real delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Policy.
type Option func(*Policy)

func WithMaxAttempts(n int) Option {
	return func(p *Policy) { p.MaxAttempts = n }
}

func WithBaseDelay(d time.Duration) Option {
	return func(p *Policy) { p.BaseDelay = d }
}

func WithMaxDelay(d time.Duration) Option {
	return func(p *Policy) { p.MaxDelay = d }
}

func WithJitter(f float64) Option {
	return func(p *Policy) { p.Jitter = f }
}

func WithRetryable(fn func(error) bool) Option {
	return func(p *Policy) { p.Retryable = fn }
}

// WithSleeper overrides the sleep function. Tests use this to observe delays
// without waiting for them.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Policy) { p.sleep = fn }
}

// New builds a policy from defaults plus the given options.
func New(opts ...Option) Policy {
	p := Policy{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Jitter:      0.2,
		Retryable:   fault.IsTransient,
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&p)
		}
	}
	return p
}

// Default is the pipeline-wide policy: 3 attempts, 200ms base, jittered.
func Default() Policy {
	return New()
}

// Do runs op until it succeeds, exhausts MaxAttempts, hits a non-retryable
// error, or the context ends. The last error is returned unwrapped so callers
// can classify it.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}
		if err := p.sleep(ctx, p.delay(attempt)); err != nil {
			return lastErr
		}
	}
	return lastErr
}

// delay computes the backoff for the given 1-based attempt number.
func (p Policy) delay(attempt int) time.Duration {
	d := p.BaseDelay << uint(attempt-1)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter > 0 {
		spread := (rand.Float64()*2 - 1) * p.Jitter
		d = time.Duration(float64(d) * (1 + spread))
	}
	if d < 0 {
		d = 0
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
