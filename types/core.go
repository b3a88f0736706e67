package types

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Payload holds the domain fields of an entity (name, street, card brand...).
// The cache never looks inside it.
type Payload map[string]interface{}

// Clone returns a shallow copy of the payload
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Merge returns a copy of p with patch applied on top. Nil values in patch
// delete the key.
func (p Payload) Merge(patch Payload) Payload {
	out := p.Clone()
	for k, v := range patch {
		if v == nil {
			delete(out, k)
			continue
		}
		if out == nil {
			out = make(Payload, len(patch))
		}
		out[k] = v
	}
	return out
}

// Normalize returns the payload as it reads back after a JSON round trip:
// numbers become float64, slices []interface{}, maps map[string]interface{}.
// Stores normalize before returning entities so a create response and a later
// fetch compare equal.
func (p Payload) Normalize() (Payload, error) {
	if len(p) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	var out Payload
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	return out, nil
}

// Entity is a single server-owned record mirrored by the cache
type Entity struct {
	ID        string    `json:"id" yaml:"id"`                                   // Server-assigned, never generated client side
	ParentID  string    `json:"parent_id,omitempty" yaml:"parent_id,omitempty"` // Empty means root
	IsDefault *bool     `json:"is_default,omitempty" yaml:"is_default,omitempty"`
	Payload   Payload   `json:"payload,omitempty" yaml:"payload,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// IsRoot reports whether the entity has no parent
func (e Entity) IsRoot() bool {
	return e.ParentID == ""
}

// Default reports whether the entity is flagged as the collection default
func (e Entity) Default() bool {
	return e.IsDefault != nil && *e.IsDefault
}

// Name returns the "name" payload field, or the id when there is none
func (e Entity) Name() string {
	if name, ok := e.Payload["name"].(string); ok && name != "" {
		return name
	}
	return e.ID
}

// Clone returns a copy that shares no mutable state with e
func (e Entity) Clone() Entity {
	out := e
	out.Payload = e.Payload.Clone()
	if e.IsDefault != nil {
		out.IsDefault = Bool(*e.IsDefault)
	}
	return out
}

// Bool returns a pointer to b
func Bool(b bool) *bool {
	return &b
}

// String returns a pointer to s
func String(s string) *string {
	return &s
}

// CreateRequest carries the fields of a new entity.
// The id is never part of it: the backend assigns one.
type CreateRequest struct {
	ParentID  string  `json:"parent_id,omitempty"`
	IsDefault *bool   `json:"is_default,omitempty"`
	Payload   Payload `json:"payload,omitempty"`
}

// UpdateRequest specifies fields to change on an entity.
// Nil fields are left untouched. Payload keys are merged; a nil value removes the key.
type UpdateRequest struct {
	ParentID  *string `json:"parent_id,omitempty"`
	IsDefault *bool   `json:"is_default,omitempty"`
	Payload   Payload `json:"payload,omitempty"`
}

// FetchAllFunc loads the whole (or top level) collection
type FetchAllFunc func(ctx context.Context) ([]Entity, error)

// FetchChildrenFunc loads the direct children of a parent
type FetchChildrenFunc func(ctx context.Context, parentID string) ([]Entity, error)

// Backend is the remote API collaborator the cache mirrors.
// Every call is scoped to a named collection ("categories", "addresses", ...).
type Backend interface {
	// FetchAll returns the root level or full set of entities.
	// Safe to retry.
	FetchAll(ctx context.Context, collection string) ([]Entity, error)

	// FetchChildren returns the direct children of parentID.
	// Safe to retry.
	FetchChildren(ctx context.Context, collection, parentID string) ([]Entity, error)

	// Create stores a new entity and returns it with its assigned id.
	// Not safe to retry: a retry may create a duplicate.
	Create(ctx context.Context, collection string, req CreateRequest) (Entity, error)

	// Update applies a partial update and returns the resulting entity
	Update(ctx context.Context, collection, id string, req UpdateRequest) (Entity, error)

	// Delete removes an entity and all of its descendants
	Delete(ctx context.Context, collection, id string) error
}

// FetchAllFor binds a backend's FetchAll to one collection
func FetchAllFor(b Backend, collection string) FetchAllFunc {
	return func(ctx context.Context) ([]Entity, error) {
		return b.FetchAll(ctx, collection)
	}
}

// FetchChildrenFor binds a backend's FetchChildren to one collection
func FetchChildrenFor(b Backend, collection string) FetchChildrenFunc {
	return func(ctx context.Context, parentID string) ([]Entity, error) {
		return b.FetchChildren(ctx, collection, parentID)
	}
}
