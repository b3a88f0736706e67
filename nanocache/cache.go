package nanocache

import (
	"context"
	"io"
	"log/slog"

	"github.com/arthur-debert/nanocache/nanocache/storage"
	"github.com/arthur-debert/nanocache/types"
)

// Cache is an in-memory, de-duplicated, lazily expanded mirror of one server
// collection. It serves tree collections (parent links, lazy children) and flat
// collections (at most one default) alike.
//
// Fetch functions are always called outside the lock. Queries keep answering
// from the last completed mutation while a fetch is in flight, and a failed
// fetch never leaves a partial write behind.
type Cache struct {
	name   string
	lock   *storage.LockManager
	logger *slog.Logger

	entities map[string]types.Entity
	order    []string            // insertion order, for stable queries
	expanded map[string]struct{} // nodes the user has open
	fetched  map[string]struct{} // parents whose children fetch succeeded
}

// Option configures a Cache
type Option func(*Cache)

// WithLogger sets the logger used for fetch results and integrity warnings
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithName labels the cache with its collection name for errors and logs
func WithName(name string) Option {
	return func(c *Cache) {
		c.name = name
	}
}

// NewCache creates an empty cache
func NewCache(opts ...Option) *Cache {
	c := &Cache{
		lock:     storage.NewLockManager(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		entities: make(map[string]types.Entity),
		expanded: make(map[string]struct{}),
		fetched:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load replaces the cached entities wholesale with the result of fetchAll.
// On failure the previous entities are kept untouched and a *FetchError is returned.
// Open nodes that still exist stay open.
func (c *Cache) Load(ctx context.Context, fetchAll types.FetchAllFunc) error {
	fetched, err := fetchAll(ctx)
	if err != nil {
		c.logger.Debug("load failed", "collection", c.name, "error", err)
		return &FetchError{Op: "load", Collection: c.name, Err: err}
	}

	entities := make(map[string]types.Entity, len(fetched))
	order := make([]string, 0, len(fetched))
	for _, e := range fetched {
		// First occurrence wins, like a merge
		if _, exists := entities[e.ID]; exists {
			continue
		}
		entities[e.ID] = e.Clone()
		order = append(order, e.ID)
	}

	c.lock.Write(func() {
		c.entities = entities
		c.order = order
		c.fetched = make(map[string]struct{})
		for id := range c.expanded {
			if _, ok := entities[id]; !ok {
				delete(c.expanded, id)
			}
		}
	})

	c.logger.Debug("cache loaded", "collection", c.name, "count", len(order))
	return nil
}

// EnsureChildrenLoaded fetches the children of parentID once per cache lifetime.
//
// It is a no-op when a child of parentID is already cached or an earlier fetch
// for parentID succeeded. Otherwise fetched children are merged by id, skipping
// ids that are already cached: the first representation seen wins.
//
// Two concurrent calls for the same parent may both fetch. The merge is
// idempotent, so the only cost is a redundant request.
//
// If parentID was cached when the call started but is gone by the time the
// result arrives (removed, or dropped by a Load), the result is discarded and
// the parent is not marked fetched.
func (c *Cache) EnsureChildrenLoaded(ctx context.Context, parentID string, fetchChildren types.FetchChildrenFunc) error {
	var loaded, parentCached bool
	c.lock.Read(func() {
		_, parentCached = c.entities[parentID]
		_, loaded = c.fetched[parentID]
		loaded = loaded || c.hasChildLocked(parentID)
	})
	if loaded {
		return nil
	}

	fetched, err := fetchChildren(ctx, parentID)
	if err != nil {
		c.logger.Debug("children fetch failed", "collection", c.name, "parent", parentID, "error", err)
		return &FetchError{Op: "ensure_children", Collection: c.name, ParentID: parentID, Err: err}
	}

	var added, skipped int
	var orphaned bool
	c.lock.Write(func() {
		if _, ok := c.entities[parentID]; parentCached && !ok {
			orphaned = true
			return
		}
		for _, e := range fetched {
			if _, exists := c.entities[e.ID]; exists {
				skipped++
				continue
			}
			c.putLocked(e.Clone())
			added++
		}
		c.fetched[parentID] = struct{}{}
	})

	if orphaned {
		c.logger.Debug("children discarded, parent no longer cached",
			"collection", c.name,
			"parent", parentID,
			"count", len(fetched))
		return nil
	}
	c.logger.Debug("children merged",
		"collection", c.name,
		"parent", parentID,
		"added", added,
		"skipped", skipped)
	return nil
}

// ChildrenLoaded reports whether EnsureChildrenLoaded would skip the fetch
func (c *Cache) ChildrenLoaded(parentID string) bool {
	var loaded bool
	c.lock.Read(func() {
		if _, ok := c.fetched[parentID]; ok {
			loaded = true
			return
		}
		loaded = c.hasChildLocked(parentID)
	})
	return loaded
}

// Roots returns the entities without a parent, in insertion order
func (c *Cache) Roots() []types.Entity {
	return c.Children("")
}

// Children returns the cached children of parentID in insertion order.
// It never fetches.
func (c *Cache) Children(parentID string) []types.Entity {
	var out []types.Entity
	c.lock.Read(func() {
		for _, id := range c.order {
			if e := c.entities[id]; e.ParentID == parentID {
				out = append(out, e.Clone())
			}
		}
	})
	return out
}

// Get returns a cached entity
func (c *Cache) Get(id string) (types.Entity, bool) {
	var (
		e  types.Entity
		ok bool
	)
	c.lock.Read(func() {
		e, ok = c.entities[id]
		if ok {
			e = e.Clone()
		}
	})
	return e, ok
}

// Default returns the entity currently flagged as default, if any
func (c *Cache) Default() (types.Entity, bool) {
	var (
		e  types.Entity
		ok bool
	)
	c.lock.Read(func() {
		for _, id := range c.order {
			if candidate := c.entities[id]; candidate.Default() {
				e, ok = candidate.Clone(), true
				return
			}
		}
	})
	return e, ok
}

// Len returns the number of cached entities
func (c *Cache) Len() int {
	var n int
	c.lock.Read(func() { n = len(c.entities) })
	return n
}

// Snapshot returns every cached entity in insertion order
func (c *Cache) Snapshot() []types.Entity {
	var out []types.Entity
	c.lock.Read(func() {
		out = make([]types.Entity, 0, len(c.order))
		for _, id := range c.order {
			out = append(out, c.entities[id].Clone())
		}
	})
	return out
}

// ToggleExpanded flips the open state of id and returns the new state.
// It never fetches: callers load children before opening a node.
func (c *Cache) ToggleExpanded(id string) bool {
	var open bool
	c.lock.Write(func() {
		if _, ok := c.expanded[id]; ok {
			delete(c.expanded, id)
			return
		}
		c.expanded[id] = struct{}{}
		open = true
	})
	return open
}

// SetExpanded forces the open state of id
func (c *Cache) SetExpanded(id string, open bool) {
	c.lock.Write(func() {
		if open {
			c.expanded[id] = struct{}{}
		} else {
			delete(c.expanded, id)
		}
	})
}

// IsExpanded reports whether id is open
func (c *Cache) IsExpanded(id string) bool {
	var open bool
	c.lock.Read(func() { _, open = c.expanded[id] })
	return open
}

// Expanded returns the open ids in insertion order of their entities
func (c *Cache) Expanded() []string {
	var out []string
	c.lock.Read(func() {
		for _, id := range c.order {
			if _, ok := c.expanded[id]; ok {
				out = append(out, id)
			}
		}
	})
	return out
}

// Put inserts or overwrites an entity without touching defaults.
// Used for tree collections after a confirmed create or update.
func (c *Cache) Put(e types.Entity) {
	c.lock.Write(func() {
		c.putLocked(e.Clone())
	})
}

// UpsertFlat inserts or overwrites an entity of a flat collection after a
// confirmed mutation. If it is the new default, every other default in the
// cache is cleared in the same write so no reader ever sees two.
// The next Load is the reconciliation point with the server.
func (c *Cache) UpsertFlat(e types.Entity) {
	e = e.Clone()
	c.lock.Write(func() {
		if e.Default() {
			for id, other := range c.entities {
				if id != e.ID && other.Default() {
					other.IsDefault = types.Bool(false)
					c.entities[id] = other
				}
			}
		}
		c.putLocked(e)
	})
}

// Remove deletes id and every cached descendant. Unknown ids are a no-op.
//
// The descendant walk tracks visited ids. If the parent links loop, the walk
// stops at the revisited id, everything reached is still removed, and a
// *CycleError is returned as a warning.
func (c *Cache) Remove(id string) error {
	var cycle *CycleError
	var removed int
	c.lock.Write(func() {
		if _, ok := c.entities[id]; !ok {
			return
		}

		children := make(map[string][]string)
		for _, eid := range c.order {
			e := c.entities[eid]
			if e.ParentID != "" {
				children[e.ParentID] = append(children[e.ParentID], eid)
			}
		}

		visited := map[string]struct{}{id: {}}
		queue := []string{id}
		for len(queue) > 0 {
			current := queue[0]
			queue = queue[1:]
			for _, child := range children[current] {
				if _, seen := visited[child]; seen {
					if cycle == nil {
						cycle = &CycleError{RootID: id, RevisitedID: child}
					}
					continue
				}
				visited[child] = struct{}{}
				queue = append(queue, child)
			}
		}

		kept := c.order[:0]
		for _, eid := range c.order {
			if _, gone := visited[eid]; gone {
				delete(c.entities, eid)
				delete(c.expanded, eid)
				delete(c.fetched, eid)
				continue
			}
			kept = append(kept, eid)
		}
		c.order = kept
		removed = len(visited)
	})

	if cycle != nil {
		c.logger.Warn("parent links form a cycle",
			"collection", c.name,
			"root", cycle.RootID,
			"revisited", cycle.RevisitedID)
		return cycle
	}
	if removed > 0 {
		c.logger.Debug("entities removed", "collection", c.name, "root", id, "count", removed)
	}
	return nil
}

// Walk visits cached entities depth first, starting from the roots.
// fn returns whether to descend into the entity's children.
// Each id is visited at most once, so looping parent links cannot hang it.
func (c *Cache) Walk(fn func(e types.Entity, depth int) bool) {
	var (
		entities []types.Entity
		children = make(map[string][]types.Entity)
	)
	c.lock.Read(func() {
		for _, id := range c.order {
			e := c.entities[id].Clone()
			if e.ParentID == "" {
				entities = append(entities, e)
				continue
			}
			children[e.ParentID] = append(children[e.ParentID], e)
		}
	})

	visited := make(map[string]struct{})
	var visit func(e types.Entity, depth int)
	visit = func(e types.Entity, depth int) {
		if _, seen := visited[e.ID]; seen {
			return
		}
		visited[e.ID] = struct{}{}
		if !fn(e, depth) {
			return
		}
		for _, child := range children[e.ID] {
			visit(child, depth+1)
		}
	}
	for _, root := range entities {
		visit(root, 0)
	}
}

// putLocked inserts or overwrites e, keeping first insertion order
func (c *Cache) putLocked(e types.Entity) {
	if _, exists := c.entities[e.ID]; !exists {
		c.order = append(c.order, e.ID)
	}
	c.entities[e.ID] = e
}

func (c *Cache) hasChildLocked(parentID string) bool {
	for _, e := range c.entities {
		if e.ParentID == parentID {
			return true
		}
	}
	return false
}
