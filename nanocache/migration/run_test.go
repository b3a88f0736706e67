package migration_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/arthur-debert/nanocache/nanocache"
	"github.com/arthur-debert/nanocache/nanocache/migration"
	"github.com/arthur-debert/nanocache/testutil"
	"github.com/arthur-debert/nanocache/types"
	"github.com/google/go-cmp/cmp"
)

func payloadKeys(entities []types.Entity, key string) map[string]interface{} {
	out := make(map[string]interface{})
	for _, e := range entities {
		if v, ok := e.Payload[key]; ok {
			out[e.ID] = v
		}
	}
	return out
}

func TestRun(t *testing.T) {
	ctx := context.Background()

	t.Run("rename reaches every level of a tree", func(t *testing.T) {
		backend, fx := testutil.NewStorefrontBackend(t)
		categories := nanocache.NewCollection(backend, "categories", types.Tree)

		result, err := migration.Run(ctx, categories, &migration.RenameKey{Old: "slug", New: "handle"}, migration.Options{})
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
		if !result.Success || result.Code != migration.CodeSuccess {
			t.Fatalf("expected success, got %+v", result)
		}
		if result.Stats.Total != 9 || result.Stats.Modified != 9 || result.Stats.Skipped != 0 {
			t.Errorf("unexpected stats %+v", result.Stats)
		}

		stored := backend.Entities("categories")
		if n := len(payloadKeys(stored, "slug")); n != 0 {
			t.Errorf("expected no slug left, found %d", n)
		}
		if got := payloadKeys(stored, "handle")[fx.Sneakers]; got != "sneakers" {
			t.Errorf("expected sneakers handle, got %v", got)
		}

		cached, _ := categories.Cache().Get(fx.Sneakers)
		if cached.Payload["handle"] != "sneakers" {
			t.Errorf("cache must mirror the update, got %v", cached.Payload)
		}
	})

	t.Run("dry run writes nothing", func(t *testing.T) {
		backend, _ := testutil.NewStorefrontBackend(t)
		addresses := nanocache.NewCollection(backend, "addresses", types.Flat)

		result, err := migration.Run(ctx, addresses, &migration.AddKey{Key: "country", Value: "FR"}, migration.Options{DryRun: true})
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
		if result.Stats.Modified != 3 {
			t.Errorf("expected 3 entities reported, got %d", result.Stats.Modified)
		}
		if n := backend.Calls(testutil.OpUpdate); n != 0 {
			t.Errorf("dry run must not update, got %d updates", n)
		}
		last := result.Messages[len(result.Messages)-1]
		if !strings.Contains(last.Text, "DRY RUN") {
			t.Errorf("expected a dry run notice, got %q", last.Text)
		}
	})

	t.Run("validation errors stop before writing", func(t *testing.T) {
		backend, _ := testutil.NewStorefrontBackend(t)
		addresses := nanocache.NewCollection(backend, "addresses", types.Flat)

		result, err := migration.Run(ctx, addresses, &migration.RenameKey{Old: "zip", New: "city"}, migration.Options{})
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
		if result.Success || result.Code != migration.CodeValidationError {
			t.Errorf("expected a validation failure, got %+v", result)
		}
		if n := backend.Calls(testutil.OpUpdate); n != 0 {
			t.Errorf("expected no updates, got %d", n)
		}
	})

	t.Run("failed updates are reported and skipped", func(t *testing.T) {
		backend, fx := testutil.NewStorefrontBackend(t)
		addresses := nanocache.NewCollection(backend, "addresses", types.Flat)
		backend.FailNext(testutil.OpUpdate, errors.New("503"))

		result, err := migration.Run(ctx, addresses, &migration.TransformKey{Key: "city", Transformer: "toUpperCase"}, migration.Options{})
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
		if result.Code != migration.CodePartialFailure || result.Stats.Failed != 1 {
			t.Errorf("expected a partial failure, got code %d stats %+v", result.Code, result.Stats)
		}
		if diff := cmp.Diff([]string{fx.Work, fx.Parents}, result.Modified); diff != "" {
			t.Errorf("modified mismatch (-want +got):\n%s", diff)
		}

		want := map[string]interface{}{fx.Home: "Lyon", fx.Work: "LYON", fx.Parents: "ANNECY"}
		if diff := cmp.Diff(want, payloadKeys(backend.Entities("addresses"), "city")); diff != "" {
			t.Errorf("stored cities mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("every update failing is an execution error", func(t *testing.T) {
		backend, _ := testutil.NewStorefrontBackend(t)
		payments := nanocache.NewCollection(backend, "payment-methods", types.Flat)
		backend.FailAlways(testutil.OpUpdate, errors.New("503"))

		result, err := migration.Run(ctx, payments, &migration.RemoveKey{Key: "brand"}, migration.Options{})
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
		if result.Code != migration.CodeExecutionError || result.Stats.Failed != 2 {
			t.Errorf("expected an execution error, got code %d stats %+v", result.Code, result.Stats)
		}
	})

	t.Run("load failure is returned", func(t *testing.T) {
		backend, _ := testutil.NewStorefrontBackend(t)
		categories := nanocache.NewCollection(backend, "categories", types.Tree)
		backend.FailNext(testutil.OpFetchAll, errors.New("503"))

		var fetchErr *nanocache.FetchError
		if _, err := migration.Run(ctx, categories, &migration.RemoveKey{Key: "slug"}, migration.Options{}); !errors.As(err, &fetchErr) {
			t.Errorf("expected a FetchError, got %v", err)
		}
	})

	t.Run("default flag survives a payload migration", func(t *testing.T) {
		backend, fx := testutil.NewStorefrontBackend(t)
		addresses := nanocache.NewCollection(backend, "addresses", types.Flat)

		if _, err := migration.Run(ctx, addresses, &migration.RenameKey{Old: "zip", New: "postcode"}, migration.Options{}); err != nil {
			t.Fatalf("run failed: %v", err)
		}
		testutil.AssertSingleDefault(t, addresses.Cache().Snapshot(), fx.Home)
		testutil.AssertSingleDefault(t, backend.Entities("addresses"), fx.Home)
	})
}
