package resilience

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Policy bounds how often a remote call is attempted. The zero Policy makes
// a single attempt.
type Policy struct {
	Attempts   int           // total tries, first one included
	Backoff    time.Duration // delay before the first retry, doubled per retry
	MaxBackoff time.Duration
	Jitter     float64 // +/- fraction applied to each delay

	// Retryable reports whether err is worth another attempt. IsTransient
	// when nil.
	Retryable func(err error) bool

	// OnRetry runs before each backoff sleep.
	OnRetry func(retry int, err error)
}

// DefaultPolicy is one attempt. Callers raise Attempts from fetch.max_attempts.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:   1,
		Backoff:    500 * time.Millisecond,
		MaxBackoff: 30 * time.Second,
		Jitter:     0.25,
	}
}

// Run calls fn until it succeeds, returns a non-retryable error, the attempts
// run out, or ctx is done. The last error is returned.
func Run(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := Retry(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Retry is Run for calls that produce a value.
func Retry[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.normalized()

	var (
		zero T
		err  error
	)
	for retry := 0; ; retry++ {
		var v T
		if v, err = fn(ctx); err == nil {
			return v, nil
		}
		if ctx.Err() != nil || !p.Retryable(err) || retry+1 >= p.Attempts {
			return zero, err
		}
		if p.OnRetry != nil {
			p.OnRetry(retry+1, err)
		}

		t := time.NewTimer(p.delay(retry))
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, err
		case <-t.C:
		}
	}
}

func (p Policy) normalized() Policy {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.Backoff <= 0 {
		p.Backoff = 500 * time.Millisecond
	}
	if p.MaxBackoff < p.Backoff {
		p.MaxBackoff = max(30*time.Second, p.Backoff)
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Retryable == nil {
		p.Retryable = IsTransient
	}
	return p
}

// delay is Backoff * 2^retry, capped at MaxBackoff, with jitter applied.
func (p Policy) delay(retry int) time.Duration {
	d := p.Backoff
	for i := 0; i < retry && d < p.MaxBackoff; i++ {
		d *= 2
	}
	d = min(d, p.MaxBackoff)
	if p.Jitter > 0 {
		d += time.Duration((rand.Float64()*2 - 1) * p.Jitter * float64(d))
	}
	return max(d, 0)
}

// LogRetries returns an OnRetry hook that logs at warn. target must not
// carry secrets.
func LogRetries(component, target string) func(int, error) {
	return func(retry int, err error) {
		zap.L().Warn("retrying request",
			zap.String("component", component),
			zap.String("target", target),
			zap.Int("retry", retry),
			zap.Error(err),
		)
	}
}
