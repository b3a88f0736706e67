package export

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/arthur-debert/nanocache/formats"
	"github.com/arthur-debert/nanocache/nanocache"
)

// Generate loads every entity of coll and builds the archive contents.
// Entity ids become seed keys, so parent links survive a reseed even though
// the target backend assigns new ids.
func Generate(ctx context.Context, coll *nanocache.Collection, options Options) (*Data, error) {
	now := time.Now
	if options.Now != nil {
		now = options.Now
	}
	outputs := options.Formats
	if len(outputs) == 0 {
		for _, name := range formats.List() {
			format, err := formats.Get(name)
			if err != nil {
				return nil, err
			}
			outputs = append(outputs, format)
		}
	}

	if err := coll.LoadAll(ctx); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", coll.Name(), err)
	}
	cache := coll.Cache()
	entities := cache.Snapshot()

	seed := make([]nanocache.SeedEntity, 0, len(entities))
	var modified time.Time
	for _, e := range entities {
		seed = append(seed, nanocache.SeedEntity{
			Key:     e.ID,
			Parent:  e.ParentID,
			Default: e.IsDefault,
			Payload: e.Payload,
		})
		if e.UpdatedAt.After(modified) {
			modified = e.UpdatedAt
		}
	}

	stamp := now()
	if modified.IsZero() {
		modified = stamp
	}

	data := &Data{
		ArchiveFilename: ArchiveFilename(coll.Name(), stamp),
		Collection:      coll.Name(),
		Entities:        len(entities),
		Seed: &nanocache.SeedFile{
			Collections: map[string][]nanocache.SeedEntity{coll.Name(): seed},
		},
		Objects: make([]ObjectFile, 0, len(outputs)),
	}

	view := formats.View{
		Collection: coll.Name(),
		Kind:       coll.Kind(),
		Source:     openTree{cache},
		Now:        stamp,
	}
	for _, format := range outputs {
		var buf bytes.Buffer
		if err := format.Render(&buf, view); err != nil {
			return nil, fmt.Errorf("failed to render %s: %w", format.Name, err)
		}
		data.Objects = append(data.Objects, ObjectFile{
			Filename: coll.Name() + format.Extension,
			Modified: modified,
			Content:  buf.String(),
		})
	}
	return data, nil
}

// openTree shows every node with children as open
type openTree struct {
	formats.Source
}

func (o openTree) IsExpanded(id string) bool {
	return len(o.Children(id)) > 0
}

var _ formats.Source = openTree{}
