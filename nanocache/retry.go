package nanocache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/arthur-debert/nanocache/types"
)

// RetryPolicy configures RetryBackend
type RetryPolicy struct {
	Attempts  int           // Total attempts, including the first. Values < 1 mean 1.
	BaseDelay time.Duration // Delay before the second attempt, doubled each time
	MaxDelay  time.Duration // Upper bound for a single delay
}

// DefaultRetryPolicy is used by the CLI
var DefaultRetryPolicy = RetryPolicy{
	Attempts:  3,
	BaseDelay: 100 * time.Millisecond,
	MaxDelay:  2 * time.Second,
}

// RetryBackend retries the idempotent fetch calls of a backend.
// Create, Update and Delete pass through exactly once.
type RetryBackend struct {
	types.Backend
	policy RetryPolicy
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRetryBackend wraps backend with policy
func NewRetryBackend(backend types.Backend, policy RetryPolicy, logger *slog.Logger) *RetryBackend {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	return &RetryBackend{
		Backend: backend,
		policy:  policy,
		logger:  logger,
		sleep:   sleepContext,
	}
}

// FetchAll implements types.Backend with retries
func (r *RetryBackend) FetchAll(ctx context.Context, collection string) ([]types.Entity, error) {
	return retry(ctx, r, "fetch_all", func() ([]types.Entity, error) {
		return r.Backend.FetchAll(ctx, collection)
	})
}

// FetchChildren implements types.Backend with retries
func (r *RetryBackend) FetchChildren(ctx context.Context, collection, parentID string) ([]types.Entity, error) {
	return retry(ctx, r, "fetch_children", func() ([]types.Entity, error) {
		return r.Backend.FetchChildren(ctx, collection, parentID)
	})
}

func retry(ctx context.Context, r *RetryBackend, op string, fn func() ([]types.Entity, error)) ([]types.Entity, error) {
	delay := r.policy.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= r.policy.Attempts; attempt++ {
		entities, err := fn()
		if err == nil {
			return entities, nil
		}
		lastErr = err
		if !retryable(err) || attempt == r.policy.Attempts {
			break
		}

		r.logger.Debug("retrying fetch", "op", op, "attempt", attempt, "delay", delay, "error", err)
		if err := r.sleep(ctx, delay); err != nil {
			return nil, errors.Join(lastErr, err)
		}
		delay *= 2
		if r.policy.MaxDelay > 0 && delay > r.policy.MaxDelay {
			delay = r.policy.MaxDelay
		}
	}
	return nil, lastErr
}

// retryable reports whether err may go away on its own
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	for _, permanent := range []error{types.ErrNotFound, types.ErrInvalid, types.ErrCycle, types.ErrConflict} {
		if errors.Is(err, permanent) {
			return false
		}
	}
	var apiErr *types.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
