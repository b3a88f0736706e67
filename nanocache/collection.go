package nanocache

import (
	"context"
	"errors"
	"log/slog"

	"github.com/arthur-debert/nanocache/types"
)

// Collection binds a Cache to one collection of a backend.
//
// Mutations always go to the backend first. Local state is reconciled only
// after the backend confirms, so a failed mutation leaves the cache as it was.
type Collection struct {
	name    string
	kind    types.CollectionKind
	backend types.Backend
	cache   *Cache
	logger  *slog.Logger
}

// NewCollection creates a session over a backend collection with an empty cache.
// Cache options (WithLogger...) are applied to the underlying cache.
func NewCollection(backend types.Backend, name string, kind types.CollectionKind, opts ...Option) *Collection {
	cacheOpts := append([]Option{WithName(name)}, opts...)
	cache := NewCache(cacheOpts...)
	return &Collection{
		name:    name,
		kind:    kind,
		backend: backend,
		cache:   cache,
		logger:  cache.logger,
	}
}

// Name returns the collection name
func (c *Collection) Name() string { return c.name }

// Kind returns the collection shape
func (c *Collection) Kind() types.CollectionKind { return c.kind }

// Cache returns the underlying cache for queries
func (c *Collection) Cache() *Cache { return c.cache }

// Refresh reloads the whole collection. Nodes that were open and whose
// children the reload did not bring back get their children fetched again.
func (c *Collection) Refresh(ctx context.Context) error {
	if err := c.cache.Load(ctx, types.FetchAllFor(c.backend, c.name)); err != nil {
		return err
	}
	if c.kind != types.Tree {
		return nil
	}

	var errs []error
	for _, id := range c.cache.Expanded() {
		if err := c.cache.EnsureChildrenLoaded(ctx, id, types.FetchChildrenFor(c.backend, c.name)); err != nil {
			c.cache.SetExpanded(id, false)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LoadAll refreshes the collection and, for trees, fetches the children of
// every cached node until no new entity appears. Open state is not changed.
// Searches and migrations use it to see the whole collection.
func (c *Collection) LoadAll(ctx context.Context) error {
	if err := c.Refresh(ctx); err != nil {
		return err
	}
	if c.kind != types.Tree {
		return nil
	}

	fetchChildren := types.FetchChildrenFor(c.backend, c.name)
	seen := make(map[string]struct{})
	for {
		var pending []string
		for _, e := range c.cache.Snapshot() {
			if _, ok := seen[e.ID]; !ok {
				seen[e.ID] = struct{}{}
				pending = append(pending, e.ID)
			}
		}
		if len(pending) == 0 {
			break
		}
		for _, id := range pending {
			if err := c.cache.EnsureChildrenLoaded(ctx, id, fetchChildren); err != nil {
				return err
			}
		}
	}

	c.logger.Debug("collection fully loaded", "collection", c.name, "entities", c.cache.Len())
	return nil
}

// Open loads the children of id if needed and marks it open.
// If the fetch fails the node stays closed so the next attempt retries.
func (c *Collection) Open(ctx context.Context, id string) error {
	_, cached := c.cache.Get(id)
	if err := c.cache.EnsureChildrenLoaded(ctx, id, types.FetchChildrenFor(c.backend, c.name)); err != nil {
		return err
	}
	if c.gone(id, cached) {
		return nil
	}
	c.cache.SetExpanded(id, true)
	return nil
}

// Expand toggles id. Opening loads children first; closing never touches the network.
// It returns the new open state.
func (c *Collection) Expand(ctx context.Context, id string) (bool, error) {
	if c.cache.IsExpanded(id) {
		return c.cache.ToggleExpanded(id), nil
	}
	_, cached := c.cache.Get(id)
	if err := c.cache.EnsureChildrenLoaded(ctx, id, types.FetchChildrenFor(c.backend, c.name)); err != nil {
		return false, err
	}
	if c.gone(id, cached) {
		return false, nil
	}
	return c.cache.ToggleExpanded(id), nil
}

// gone reports whether id was cached before a fetch and was removed while it ran
func (c *Collection) gone(id string, wasCached bool) bool {
	if !wasCached {
		return false
	}
	_, ok := c.cache.Get(id)
	return !ok
}

// Create adds an entity through the backend and mirrors the response.
// It is never retried.
func (c *Collection) Create(ctx context.Context, req types.CreateRequest) (types.Entity, error) {
	created, err := c.backend.Create(ctx, c.name, req)
	if err != nil {
		return types.Entity{}, &MutationError{Op: "create", Collection: c.name, Err: err}
	}

	warn := c.reconcile(created)
	c.logger.Debug("entity created", "collection", c.name, "id", created.ID)
	return created, warn
}

// Update applies a partial update through the backend and mirrors the response.
// Like Delete, a *CycleError comes back with the updated entity when moving it
// out of the cache hit malformed parent links.
func (c *Collection) Update(ctx context.Context, id string, req types.UpdateRequest) (types.Entity, error) {
	updated, err := c.backend.Update(ctx, c.name, id, req)
	if err != nil {
		return types.Entity{}, &MutationError{Op: "update", Collection: c.name, ID: id, Err: err}
	}

	warn := c.reconcile(updated)
	c.logger.Debug("entity updated", "collection", c.name, "id", updated.ID)
	return updated, warn
}

// SetDefault marks id as the collection default. Only flat collections have one.
func (c *Collection) SetDefault(ctx context.Context, id string) (types.Entity, error) {
	if c.kind != types.Flat {
		return types.Entity{}, &MutationError{Op: "set_default", Collection: c.name, ID: id, Err: ErrNotFlat}
	}

	updated, err := c.backend.Update(ctx, c.name, id, types.UpdateRequest{IsDefault: types.Bool(true)})
	if err != nil {
		return types.Entity{}, &MutationError{Op: "set_default", Collection: c.name, ID: id, Err: err}
	}

	c.cache.UpsertFlat(updated)
	c.logger.Debug("default changed", "collection", c.name, "id", updated.ID)
	return updated, nil
}

// Delete removes id through the backend, then drops it and its cached
// descendants. A *CycleError means the removal happened but the cached parent
// links were malformed.
func (c *Collection) Delete(ctx context.Context, id string) error {
	if err := c.backend.Delete(ctx, c.name, id); err != nil {
		return &MutationError{Op: "delete", Collection: c.name, ID: id, Err: err}
	}
	return c.cache.Remove(id)
}

// reconcile mirrors a confirmed entity into the cache. A *CycleError from
// evicting a moved entity is returned as a warning: the backend write stands.
func (c *Collection) reconcile(e types.Entity) error {
	if c.kind == types.Flat {
		c.cache.UpsertFlat(e)
		return nil
	}

	// An entity under a parent whose children were never fetched stays out of
	// the cache: caching it would make the parent look loaded and hide its
	// siblings. The next expansion brings it in.
	if e.ParentID != "" && !c.cache.ChildrenLoaded(e.ParentID) {
		if _, cached := c.cache.Get(e.ID); cached {
			return c.cache.Remove(e.ID)
		}
		return nil
	}
	c.cache.Put(e)
	return nil
}
