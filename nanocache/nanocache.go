// Package nanocache keeps a client-side mirror of server-owned collections:
// category trees that are expanded lazily, and flat lists such as addresses or
// payment methods that keep at most one default.
//
// A Cache never invents entities. They arrive from a fetch or from the response
// to a confirmed mutation, and leave only on a confirmed delete. A Collection
// pairs a Cache with a backend and runs mutations server first.
package nanocache

import (
	"log/slog"

	"github.com/arthur-debert/nanocache/nanocache/sqlstore"
	"github.com/arthur-debert/nanocache/nanocache/store"
	"github.com/arthur-debert/nanocache/types"
)

// Entity is an alias for types.Entity
type Entity = types.Entity

// Payload is an alias for types.Payload
type Payload = types.Payload

// Backend is an alias for types.Backend
type Backend = types.Backend

// CreateRequest is an alias for types.CreateRequest
type CreateRequest = types.CreateRequest

// UpdateRequest is an alias for types.UpdateRequest
type UpdateRequest = types.UpdateRequest

// CollectionKind is an alias for types.CollectionKind
type CollectionKind = types.CollectionKind

const (
	Tree = types.Tree
	Flat = types.Flat
)

// OpenJSON opens a JSON file backend with file locking for concurrent access.
// A nil logger keeps the store's default.
func OpenJSON(filePath string, logger *slog.Logger) (*store.Store, error) {
	var opts []store.Option
	if logger != nil {
		opts = append(opts, store.WithLogger(logger))
	}
	return store.New(filePath, opts...)
}

// OpenSQLite opens a SQLite backend. Use ":memory:" for a throwaway database.
func OpenSQLite(dbPath string, logger *slog.Logger) (*sqlstore.Store, error) {
	var opts []sqlstore.Option
	if logger != nil {
		opts = append(opts, sqlstore.WithLogger(logger))
	}
	return sqlstore.New(dbPath, opts...)
}
