// Package storage holds the pieces shared by the cache and the local backends:
// the lock manager and the persisted data layout.
package storage

import (
	"time"

	"github.com/arthur-debert/nanocache/types"
)

// CurrentVersion is written into every saved file
const CurrentVersion = "1.0"

// StoreData is the complete structure persisted by the JSON backend.
// Entities are grouped by collection name and kept in creation order.
type StoreData struct {
	Collections map[string][]types.Entity `json:"collections"`
	Metadata    Metadata                  `json:"metadata"`
}

// Metadata contains storage metadata
type Metadata struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewStoreData returns an empty data set stamped with now
func NewStoreData(now time.Time) *StoreData {
	return &StoreData{
		Collections: make(map[string][]types.Entity),
		Metadata: Metadata{
			Version:   CurrentVersion,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

// Clone deep copies the data so a failed save can roll back
func (d *StoreData) Clone() *StoreData {
	out := &StoreData{
		Collections: make(map[string][]types.Entity, len(d.Collections)),
		Metadata:    d.Metadata,
	}
	for name, entities := range d.Collections {
		copied := make([]types.Entity, len(entities))
		for i, e := range entities {
			copied[i] = e.Clone()
		}
		out.Collections[name] = copied
	}
	return out
}
