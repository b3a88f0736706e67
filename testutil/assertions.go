package testutil

import (
	"testing"

	"github.com/arthur-debert/nanocache/types"
	"github.com/google/go-cmp/cmp"
)

// IDs returns the ids of entities in order
func IDs(entities []types.Entity) []string {
	ids := make([]string, 0, len(entities))
	for _, e := range entities {
		ids = append(ids, e.ID)
	}
	return ids
}

// AssertIDs checks the ids of entities, in order
func AssertIDs(t testing.TB, entities []types.Entity, expected ...string) {
	t.Helper()
	if expected == nil {
		expected = []string{}
	}
	if diff := cmp.Diff(expected, IDs(entities)); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
}

// AssertNoDuplicates fails if two entities share an id
func AssertNoDuplicates(t testing.TB, entities []types.Entity) {
	t.Helper()
	seen := make(map[string]bool, len(entities))
	for _, e := range entities {
		if seen[e.ID] {
			t.Errorf("duplicate entity id %s", e.ID)
		}
		seen[e.ID] = true
	}
}

// AssertSingleDefault fails if more than one entity is flagged default.
// If expected is not empty, it must be the default one.
func AssertSingleDefault(t testing.TB, entities []types.Entity, expected string) {
	t.Helper()
	var defaults []string
	for _, e := range entities {
		if e.Default() {
			defaults = append(defaults, e.ID)
		}
	}
	if len(defaults) > 1 {
		t.Errorf("expected at most one default, got %v", defaults)
		return
	}
	if expected == "" {
		return
	}
	if len(defaults) == 0 || defaults[0] != expected {
		t.Errorf("expected default %s, got %v", expected, defaults)
	}
}
