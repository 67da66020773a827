package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sethvargo/go-retry"
)

type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, BaseDelay: 20 * time.Millisecond, MaxDelay: 500 * time.Millisecond}
}

func (p RetryPolicy) backoff() retry.Backoff {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Millisecond
	}
	b := retry.NewExponential(p.BaseDelay)
	if p.MaxDelay > 0 {
		b = retry.WithCappedDuration(p.MaxDelay, b)
	}
	b = retry.WithJitterPercent(20, b)
	return retry.WithMaxRetries(uint64(p.MaxAttempts-1), b)
}

// Runner retries a transaction while it fails with ErrConflict, up to
// MaxAttempts. Any other error is returned as is.
type Runner struct {
	store    Store
	policy   RetryPolicy
	attempts *prometheus.CounterVec
}

type RunnerOption func(*Runner)

// WithAttemptCounter counts attempts by result (committed, conflict, error).
func WithAttemptCounter(c *prometheus.CounterVec) RunnerOption {
	return func(r *Runner) { r.attempts = c }
}

func NewRunner(s Store, p RetryPolicy, opts ...RunnerOption) *Runner {
	r := &Runner{store: s, policy: p}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Runner) Store() Store { return r.store }

func (r *Runner) Run(ctx context.Context, fn TxFunc) error {
	n := 0
	err := retry.Do(ctx, r.policy.backoff(), func(ctx context.Context) error {
		n++
		err := r.store.RunTransaction(ctx, fn)
		switch {
		case err == nil:
			r.observe("committed")
			return nil
		case errors.Is(err, ErrConflict):
			r.observe("conflict")
			return retry.RetryableError(err)
		default:
			r.observe("error")
			return err
		}
	})
	if errors.Is(err, ErrConflict) {
		return fmt.Errorf("%w: gave up after %d attempts", ErrConflict, n)
	}
	return err
}

func (r *Runner) observe(result string) {
	if r.attempts != nil {
		r.attempts.WithLabelValues(result).Inc()
	}
}
