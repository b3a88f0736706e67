package nanocache

import (
	"context"
	"fmt"
	"sort"

	"github.com/arthur-debert/nanocache/types"
	"gopkg.in/yaml.v3"
)

// SeedFile describes collections to create through a backend.
// Entities reference their parent by key, not by id: ids are assigned by the
// backend while seeding.
type SeedFile struct {
	Collections map[string][]SeedEntity `json:"collections" yaml:"collections"`
}

// SeedEntity is one entity of a seed file
type SeedEntity struct {
	Key     string        `json:"key" yaml:"key"`
	Parent  string        `json:"parent,omitempty" yaml:"parent,omitempty"`
	Default *bool         `json:"default,omitempty" yaml:"default,omitempty"`
	Payload types.Payload `json:"payload,omitempty" yaml:"payload,omitempty"`
}

// SeedResult maps collection -> seed key -> assigned id
type SeedResult map[string]map[string]string

// ParseSeed decodes a YAML (or JSON) seed file
func ParseSeed(data []byte) (*SeedFile, error) {
	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed: %w", err)
	}
	for name, entities := range seed.Collections {
		keys := make(map[string]bool, len(entities))
		for _, e := range entities {
			if e.Key == "" {
				return nil, fmt.Errorf("collection %s: entity without key", name)
			}
			if keys[e.Key] {
				return nil, fmt.Errorf("collection %s: duplicate key %q", name, e.Key)
			}
			keys[e.Key] = true
		}
		for _, e := range entities {
			if e.Parent != "" && !keys[e.Parent] {
				return nil, fmt.Errorf("collection %s: %s references unknown parent %q", name, e.Key, e.Parent)
			}
		}
	}
	return &seed, nil
}

// Seed creates every entity of the seed file through backend, parents first.
// Collections are seeded in name order.
func Seed(ctx context.Context, backend types.Backend, seed *SeedFile) (SeedResult, error) {
	result := make(SeedResult, len(seed.Collections))

	names := make([]string, 0, len(seed.Collections))
	for name := range seed.Collections {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		entities := seed.Collections[name]
		ids := make(map[string]string, len(entities))
		result[name] = ids

		// Multiple passes so children listed before their parent still work
		for len(ids) < len(entities) {
			added := false
			for _, e := range entities {
				if _, done := ids[e.Key]; done {
					continue
				}
				parentID := ""
				if e.Parent != "" {
					var ok bool
					if parentID, ok = ids[e.Parent]; !ok {
						continue
					}
				}

				created, err := backend.Create(ctx, name, types.CreateRequest{
					ParentID:  parentID,
					IsDefault: e.Default,
					Payload:   e.Payload,
				})
				if err != nil {
					return result, fmt.Errorf("failed to seed %s/%s: %w", name, e.Key, err)
				}
				ids[e.Key] = created.ID
				added = true
			}
			if !added {
				return result, fmt.Errorf("collection %s: parent references form a cycle", name)
			}
		}
	}
	return result, nil
}
