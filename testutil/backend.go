package testutil

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/arthur-debert/nanocache/types"
)

// Backend operation names used for call counting and failure injection
const (
	OpFetchAll      = "fetch_all"
	OpFetchChildren = "fetch_children"
	OpCreate        = "create"
	OpUpdate        = "update"
	OpDelete        = "delete"
)

// FakeBackend is an in-memory types.Backend with call counters, failure
// injection and hooks. Ids are assigned sequentially ("1", "2", ...).
//
// By default FetchAll returns root entities only, which forces children to be
// loaded lazily the way the storefront API does it.
type FakeBackend struct {
	mu          sync.Mutex
	collections map[string][]types.Entity
	nextID      int

	// FullFetch makes FetchAll return every entity, not only roots
	FullFetch bool

	calls      map[string]int
	childCalls map[string]int
	failNext   map[string][]error
	failAlways map[string]error

	// BeforeFetchChildren runs before FetchChildren reads state, outside the lock.
	// Tests use it to hold a fetch in flight.
	BeforeFetchChildren func(parentID string)
}

// NewFakeBackend creates an empty fake backend
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		collections: make(map[string][]types.Entity),
		calls:       make(map[string]int),
		childCalls:  make(map[string]int),
		failNext:    make(map[string][]error),
		failAlways:  make(map[string]error),
	}
}

// Insert puts entities directly into a collection, bypassing Create.
// It is the only way to build malformed data such as parent cycles.
func (b *FakeBackend) Insert(collection string, entities ...types.Entity) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range entities {
		b.collections[collection] = append(b.collections[collection], e.Clone())
	}
}

// FailNext makes the next call of op fail with err. Calls queue up.
func (b *FakeBackend) FailNext(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failNext[op] = append(b.failNext[op], err)
}

// FailAlways makes every call of op fail with err. A nil err clears it.
func (b *FakeBackend) FailAlways(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.failAlways, op)
		return
	}
	b.failAlways[op] = err
}

// Calls returns how many times op was called
func (b *FakeBackend) Calls(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

// ChildCalls returns how many times the children of parentID were fetched
func (b *FakeBackend) ChildCalls(parentID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.childCalls[parentID]
}

// Entities returns a copy of a collection as stored
func (b *FakeBackend) Entities(collection string) []types.Entity {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]types.Entity, 0, len(b.collections[collection]))
	for _, e := range b.collections[collection] {
		out = append(out, e.Clone())
	}
	return out
}

// FetchAll implements types.Backend
func (b *FakeBackend) FetchAll(ctx context.Context, collection string) ([]types.Entity, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.beginLocked(ctx, OpFetchAll); err != nil {
		return nil, err
	}

	var out []types.Entity
	for _, e := range b.collections[collection] {
		if b.FullFetch || e.ParentID == "" {
			out = append(out, e.Clone())
		}
	}
	return out, nil
}

// FetchChildren implements types.Backend
func (b *FakeBackend) FetchChildren(ctx context.Context, collection, parentID string) ([]types.Entity, error) {
	if hook := b.BeforeFetchChildren; hook != nil {
		hook(parentID)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.childCalls[parentID]++
	if err := b.beginLocked(ctx, OpFetchChildren); err != nil {
		return nil, err
	}

	var out []types.Entity
	for _, e := range b.collections[collection] {
		if e.ParentID == parentID {
			out = append(out, e.Clone())
		}
	}
	return out, nil
}

// Create implements types.Backend
func (b *FakeBackend) Create(ctx context.Context, collection string, req types.CreateRequest) (types.Entity, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.beginLocked(ctx, OpCreate); err != nil {
		return types.Entity{}, err
	}

	if req.ParentID != "" {
		if _, ok := b.indexLocked(collection, req.ParentID); !ok {
			return types.Entity{}, fmt.Errorf("parent %s: %w", req.ParentID, types.ErrNotFound)
		}
	}

	b.nextID++
	e := types.Entity{
		ID:        strconv.Itoa(b.nextID),
		ParentID:  req.ParentID,
		IsDefault: req.IsDefault,
		Payload:   req.Payload.Clone(),
	}
	if e.Default() {
		b.clearDefaultsLocked(collection, e.ID)
	}
	b.collections[collection] = append(b.collections[collection], e.Clone())
	return e, nil
}

// Update implements types.Backend
func (b *FakeBackend) Update(ctx context.Context, collection, id string, req types.UpdateRequest) (types.Entity, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.beginLocked(ctx, OpUpdate); err != nil {
		return types.Entity{}, err
	}

	i, ok := b.indexLocked(collection, id)
	if !ok {
		return types.Entity{}, fmt.Errorf("entity %s: %w", id, types.ErrNotFound)
	}
	e := b.collections[collection][i]
	if req.ParentID != nil {
		e.ParentID = *req.ParentID
	}
	if req.IsDefault != nil {
		e.IsDefault = types.Bool(*req.IsDefault)
		if *req.IsDefault {
			b.clearDefaultsLocked(collection, id)
		}
	}
	e.Payload = e.Payload.Merge(req.Payload)
	b.collections[collection][i] = e
	return e.Clone(), nil
}

// Delete implements types.Backend. It cascades to descendants.
func (b *FakeBackend) Delete(ctx context.Context, collection, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.beginLocked(ctx, OpDelete); err != nil {
		return err
	}
	if _, ok := b.indexLocked(collection, id); !ok {
		return fmt.Errorf("entity %s: %w", id, types.ErrNotFound)
	}

	doomed := map[string]bool{id: true}
	for changed := true; changed; {
		changed = false
		for _, e := range b.collections[collection] {
			if !doomed[e.ID] && doomed[e.ParentID] {
				doomed[e.ID] = true
				changed = true
			}
		}
	}

	kept := b.collections[collection][:0]
	for _, e := range b.collections[collection] {
		if !doomed[e.ID] {
			kept = append(kept, e)
		}
	}
	b.collections[collection] = kept
	return nil
}

func (b *FakeBackend) beginLocked(ctx context.Context, op string) error {
	b.calls[op]++
	if err := ctx.Err(); err != nil {
		return err
	}
	if queued := b.failNext[op]; len(queued) > 0 {
		b.failNext[op] = queued[1:]
		return queued[0]
	}
	return b.failAlways[op]
}

func (b *FakeBackend) indexLocked(collection, id string) (int, bool) {
	for i, e := range b.collections[collection] {
		if e.ID == id {
			return i, true
		}
	}
	return 0, false
}

func (b *FakeBackend) clearDefaultsLocked(collection, keep string) {
	for i, e := range b.collections[collection] {
		if e.ID != keep && e.Default() {
			b.collections[collection][i].IsDefault = types.Bool(false)
		}
	}
}
