package nanocache_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/arthur-debert/nanocache/nanocache"
	"github.com/arthur-debert/nanocache/testutil"
	"github.com/arthur-debert/nanocache/types"
)

var fastRetry = nanocache.RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

func TestRetryBackend(t *testing.T) {
	ctx := context.Background()

	t.Run("retries transient fetch failures", func(t *testing.T) {
		backend, fx := testutil.NewStorefrontBackend(t)
		backend.FailNext(testutil.OpFetchChildren, errors.New("connection reset"))
		backend.FailNext(testutil.OpFetchChildren, &types.APIError{Status: http.StatusBadGateway, Code: types.CodeInternal})

		retrying := nanocache.NewRetryBackend(backend, fastRetry, nil)
		children, err := retrying.FetchChildren(ctx, "categories", fx.Electronics)
		if err != nil {
			t.Fatalf("expected success on third attempt, got %v", err)
		}
		testutil.AssertIDs(t, children, fx.Phones, fx.Laptops)
		if n := backend.ChildCalls(fx.Electronics); n != 3 {
			t.Errorf("expected 3 attempts, got %d", n)
		}
	})

	t.Run("gives up after the last attempt", func(t *testing.T) {
		backend := testutil.NewFakeBackend()
		boom := errors.New("still down")
		backend.FailAlways(testutil.OpFetchAll, boom)

		retrying := nanocache.NewRetryBackend(backend, fastRetry, nil)
		_, err := retrying.FetchAll(ctx, "addresses")
		if !errors.Is(err, boom) {
			t.Fatalf("expected last error, got %v", err)
		}
		if n := backend.Calls(testutil.OpFetchAll); n != 3 {
			t.Errorf("expected 3 attempts, got %d", n)
		}
	})

	t.Run("permanent errors are not retried", func(t *testing.T) {
		tests := []error{
			fmt.Errorf("collection: %w", types.ErrNotFound),
			&types.APIError{Status: http.StatusBadRequest, Code: types.CodeInvalid},
			&types.APIError{Status: http.StatusForbidden, Code: "forbidden"},
			context.Canceled,
		}
		for _, permanent := range tests {
			backend := testutil.NewFakeBackend()
			backend.FailAlways(testutil.OpFetchAll, permanent)

			retrying := nanocache.NewRetryBackend(backend, fastRetry, nil)
			if _, err := retrying.FetchAll(ctx, "addresses"); err == nil {
				t.Errorf("%v: expected an error", permanent)
			}
			if n := backend.Calls(testutil.OpFetchAll); n != 1 {
				t.Errorf("%v: expected a single attempt, got %d", permanent, n)
			}
		}
	})

	t.Run("create is never retried", func(t *testing.T) {
		backend := testutil.NewFakeBackend()
		backend.FailNext(testutil.OpCreate, errors.New("timeout"))

		retrying := nanocache.NewRetryBackend(backend, fastRetry, nil)
		if _, err := retrying.Create(ctx, "addresses", types.CreateRequest{}); err == nil {
			t.Fatal("expected create to fail")
		}
		if n := backend.Calls(testutil.OpCreate); n != 1 {
			t.Errorf("expected a single create, got %d", n)
		}
		if got := len(backend.Entities("addresses")); got != 0 {
			t.Errorf("expected no entity created, got %d", got)
		}
	})

	t.Run("canceled context stops the wait", func(t *testing.T) {
		backend := testutil.NewFakeBackend()
		backend.FailAlways(testutil.OpFetchAll, errors.New("down"))

		slow := nanocache.RetryPolicy{Attempts: 5, BaseDelay: time.Hour}
		retrying := nanocache.NewRetryBackend(backend, slow, nil)

		ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		_, err := retrying.FetchAll(ctx, "addresses")
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", err)
		}
		if n := backend.Calls(testutil.OpFetchAll); n != 1 {
			t.Errorf("expected a single attempt, got %d", n)
		}
	})

	t.Run("works under a collection", func(t *testing.T) {
		backend, fx := testutil.NewStorefrontBackend(t)
		backend.FailNext(testutil.OpFetchAll, errors.New("blip"))

		addresses := nanocache.NewCollection(nanocache.NewRetryBackend(backend, fastRetry, nil), "addresses", types.Flat)
		if err := addresses.Refresh(ctx); err != nil {
			t.Fatalf("refresh failed: %v", err)
		}
		testutil.AssertIDs(t, addresses.Cache().Snapshot(), fx.Home, fx.Work, fx.Parents)
	})
}
