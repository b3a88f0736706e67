package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/arthur-debert/nanocache/nanocache"
	"github.com/arthur-debert/nanocache/types"
	"github.com/google/go-cmp/cmp"
)

// BackendContract runs the behavior every real backend must share against a
// fresh backend from open. Backends are expected to return every entity from
// FetchAll, not only roots.
func BackendContract(t *testing.T, open func(t *testing.T) types.Backend) {
	ctx := context.Background()

	t.Run("fetch children of seeded tree", func(t *testing.T) {
		backend := open(t)
		fx := LoadStorefront(t, backend)

		all, err := backend.FetchAll(ctx, "categories")
		if err != nil {
			t.Fatalf("fetch all failed: %v", err)
		}
		if len(all) != 9 {
			t.Errorf("expected 9 categories, got %d", len(all))
		}

		children, err := backend.FetchChildren(ctx, "categories", fx.Phones)
		if err != nil {
			t.Fatalf("fetch children failed: %v", err)
		}
		AssertIDs(t, children, fx.Smartphones, fx.FeaturePhones)

		leaf, err := backend.FetchChildren(ctx, "categories", fx.Books)
		if err != nil {
			t.Fatalf("fetch children of leaf failed: %v", err)
		}
		AssertIDs(t, leaf)

		empty, err := backend.FetchAll(ctx, "never-used")
		if err != nil || len(empty) != 0 {
			t.Errorf("expected an empty unknown collection, got %v, %v", empty, err)
		}
	})

	t.Run("missing entities", func(t *testing.T) {
		backend := open(t)
		if _, err := backend.FetchChildren(ctx, "categories", "missing"); !errors.Is(err, types.ErrNotFound) {
			t.Errorf("fetch children: expected ErrNotFound, got %v", err)
		}
		if _, err := backend.Create(ctx, "categories", types.CreateRequest{ParentID: "missing"}); !errors.Is(err, types.ErrNotFound) {
			t.Errorf("create: expected ErrNotFound, got %v", err)
		}
		if _, err := backend.Update(ctx, "categories", "missing", types.UpdateRequest{}); !errors.Is(err, types.ErrNotFound) {
			t.Errorf("update: expected ErrNotFound, got %v", err)
		}
		if err := backend.Delete(ctx, "categories", "missing"); !errors.Is(err, types.ErrNotFound) {
			t.Errorf("delete: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("create returns the stored entity", func(t *testing.T) {
		backend := open(t)
		created, err := backend.Create(ctx, "addresses", types.CreateRequest{
			Payload: types.Payload{"name": "Office", "floor": 3, "tags": []interface{}{"work"}},
		})
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		if created.ID == "" || created.CreatedAt.IsZero() {
			t.Errorf("expected server-assigned id and timestamp, got %+v", created)
		}
		if created.IsDefault != nil {
			t.Errorf("omitted default flag should stay nil, got %v", *created.IsDefault)
		}

		all, _ := backend.FetchAll(ctx, "addresses")
		if len(all) != 1 {
			t.Fatalf("expected 1 entity, got %d", len(all))
		}
		if diff := cmp.Diff(created.Payload, all[0].Payload); diff != "" {
			t.Errorf("payload differs between create and fetch (-create +fetch):\n%s", diff)
		}
	})

	t.Run("default singleton", func(t *testing.T) {
		backend := open(t)
		fx := LoadStorefront(t, backend)
		fetch := func() []types.Entity {
			all, err := backend.FetchAll(ctx, "addresses")
			if err != nil {
				t.Fatalf("fetch failed: %v", err)
			}
			return all
		}
		AssertSingleDefault(t, fetch(), fx.Home)

		if _, err := backend.Update(ctx, "addresses", fx.Parents, types.UpdateRequest{IsDefault: types.Bool(true)}); err != nil {
			t.Fatalf("update failed: %v", err)
		}
		AssertSingleDefault(t, fetch(), fx.Parents)

		office, err := backend.Create(ctx, "addresses", types.CreateRequest{IsDefault: types.Bool(true)})
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		AssertSingleDefault(t, fetch(), office.ID)

		visa, _ := backend.FetchAll(ctx, "payment-methods")
		AssertSingleDefault(t, visa, fx.Visa)
	})

	t.Run("update merges payload", func(t *testing.T) {
		backend := open(t)
		fx := LoadStorefront(t, backend)

		updated, err := backend.Update(ctx, "categories", fx.Books, types.UpdateRequest{
			Payload: types.Payload{"name": "Books & Comics", "slug": nil},
		})
		if err != nil {
			t.Fatalf("update failed: %v", err)
		}
		want := types.Payload{"name": "Books & Comics"}
		if diff := cmp.Diff(want, updated.Payload); diff != "" {
			t.Errorf("payload mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("reparent", func(t *testing.T) {
		backend := open(t)
		fx := LoadStorefront(t, backend)

		_, err := backend.Update(ctx, "categories", fx.Electronics, types.UpdateRequest{ParentID: types.String(fx.Smartphones)})
		if !errors.Is(err, types.ErrCycle) {
			t.Errorf("expected ErrCycle moving a node under its descendant, got %v", err)
		}

		moved, err := backend.Update(ctx, "categories", fx.Sneakers, types.UpdateRequest{ParentID: types.String(fx.Books)})
		if err != nil {
			t.Fatalf("move failed: %v", err)
		}
		if moved.ParentID != fx.Books {
			t.Errorf("expected parent %s, got %s", fx.Books, moved.ParentID)
		}
		children, _ := backend.FetchChildren(ctx, "categories", fx.Books)
		AssertIDs(t, children, fx.Sneakers)
	})

	t.Run("delete cascades", func(t *testing.T) {
		backend := open(t)
		fx := LoadStorefront(t, backend)

		if err := backend.Delete(ctx, "categories", fx.Electronics); err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		all, _ := backend.FetchAll(ctx, "categories")
		AssertIDs(t, all, fx.Clothing, fx.Shoes, fx.Sneakers, fx.Books)

		addresses, _ := backend.FetchAll(ctx, "addresses")
		if len(addresses) != 3 {
			t.Errorf("other collections must be untouched, got %d addresses", len(addresses))
		}
	})

	t.Run("drives a cached collection", func(t *testing.T) {
		backend := open(t)
		fx := LoadStorefront(t, backend)

		categories := nanocache.NewCollection(backend, "categories", types.Tree)
		if err := categories.Refresh(ctx); err != nil {
			t.Fatalf("refresh failed: %v", err)
		}
		AssertIDs(t, categories.Cache().Roots(), fx.Electronics, fx.Clothing, fx.Books)
		if err := categories.Open(ctx, fx.Clothing); err != nil {
			t.Fatalf("open failed: %v", err)
		}
		AssertIDs(t, categories.Cache().Children(fx.Clothing), fx.Shoes)

		if err := categories.Delete(ctx, fx.Clothing); err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		AssertIDs(t, categories.Cache().Roots(), fx.Electronics, fx.Books)
		if _, ok := categories.Cache().Get(fx.Sneakers); ok {
			t.Error("descendants must leave the cache with their ancestor")
		}

		addresses := nanocache.NewCollection(backend, "addresses", types.Flat)
		_ = addresses.Refresh(ctx)
		if _, err := addresses.SetDefault(ctx, fx.Work); err != nil {
			t.Fatalf("set default failed: %v", err)
		}
		AssertSingleDefault(t, addresses.Cache().Snapshot(), fx.Work)
		if err := addresses.Refresh(ctx); err != nil {
			t.Fatalf("refresh failed: %v", err)
		}
		AssertSingleDefault(t, addresses.Cache().Snapshot(), fx.Work)
	})
}
