package nanocache

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFlat is returned when a default-only operation is used on a tree collection
var ErrNotFlat = errors.New("collection is not flat")

// FetchError reports a failed query-side call (load or child expansion).
// The cache keeps its last known good state when one is returned.
type FetchError struct {
	Op         string // "load" or "ensure_children"
	Collection string
	ParentID   string // Set for child expansion
	Err        error
}

// Error implements the error interface
func (e *FetchError) Error() string {
	var msg strings.Builder
	msg.WriteString("fetch failed")
	if e.Op != "" {
		msg.WriteString(fmt.Sprintf(" during %s", e.Op))
	}
	if e.Collection != "" {
		msg.WriteString(fmt.Sprintf(" of %s", e.Collection))
	}
	if e.ParentID != "" {
		msg.WriteString(fmt.Sprintf(" (parent %s)", e.ParentID))
	}
	msg.WriteString(fmt.Sprintf(": %v", e.Err))
	return msg.String()
}

// Unwrap returns the backend error
func (e *FetchError) Unwrap() error {
	return e.Err
}

// MutationError reports a failed create, update or delete.
// Local state is only touched after the backend confirms, so nothing changed.
type MutationError struct {
	Op         string // "create", "update", "set_default" or "delete"
	Collection string
	ID         string
	Err        error
}

// Error implements the error interface
func (e *MutationError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("failed to %s in %s: %v", e.Op, e.Collection, e.Err)
	}
	return fmt.Sprintf("failed to %s %s in %s: %v", e.Op, e.ID, e.Collection, e.Err)
}

// Unwrap returns the backend error
func (e *MutationError) Unwrap() error {
	return e.Err
}

// CycleError is a data integrity warning: a descendant walk reached an id it
// had already visited, so the parent links returned by the server loop.
// The walk stops at the revisited id instead of looping.
type CycleError struct {
	RootID      string
	RevisitedID string
}

// Error implements the error interface
func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected below %s: %s was reached twice", e.RootID, e.RevisitedID)
}
