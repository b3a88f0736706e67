// Package sqlstore is a types.Backend kept in a SQLite database through the
// cgo-free modernc.org/sqlite driver. Payloads are stored as JSON text.
package sqlstore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/arthur-debert/nanocache/internal/validation"
	"github.com/arthur-debert/nanocache/types"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed sql/schema.sql
var schemaSQL string

//go:embed sql/delete_cascade.sql
var deleteCascadeSQL string

//go:embed sql/is_ancestor.sql
var isAncestorSQL string

const timeLayout = time.RFC3339Nano

// Store implements types.Backend on SQLite
type Store struct {
	db       *sql.DB
	builder  *sqlBuilder
	logger   *slog.Logger
	timeFunc func() time.Time
	idFunc   func() string
}

var _ types.Backend = (*Store)(nil)

// Option configures a Store
type Option func(*Store)

// WithTimeFunc sets the clock used for timestamps
func WithTimeFunc(fn func() time.Time) Option {
	return func(s *Store) { s.timeFunc = fn }
}

// WithIDFunc sets the id generator. Defaults to random UUIDs.
func WithIDFunc(fn func() string) Option {
	return func(s *Store) { s.idFunc = fn }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New opens (and creates if needed) the database at dbPath
func New(dbPath string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Busy timeout first so concurrent openers wait instead of failing
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			if pragma == "PRAGMA journal_mode = WAL" && strings.Contains(err.Error(), "database is locked") {
				continue
			}
			_ = db.Close()
			return nil, fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	// One connection: SQLite has a single writer, and ":memory:" databases
	// only live as long as their connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	s := &Store{
		db:       db,
		builder:  newSQLBuilder(),
		timeFunc: time.Now,
		idFunc:   func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s, nil
}

// Close releases database resources
func (s *Store) Close() error {
	return s.db.Close()
}

// entityRow is an entity in its column representation
type entityRow struct {
	ID        string
	ParentID  string
	IsDefault interface{} // nil, 0 or 1
	Payload   string
	CreatedAt string
	UpdatedAt string
}

func toRow(e types.Entity) (entityRow, error) {
	payload := "{}"
	if len(e.Payload) > 0 {
		raw, err := json.Marshal(e.Payload)
		if err != nil {
			return entityRow{}, fmt.Errorf("failed to encode payload: %w", err)
		}
		payload = string(raw)
	}
	row := entityRow{
		ID:        e.ID,
		ParentID:  e.ParentID,
		Payload:   payload,
		CreatedAt: e.CreatedAt.UTC().Format(timeLayout),
		UpdatedAt: e.UpdatedAt.UTC().Format(timeLayout),
	}
	if e.IsDefault != nil {
		row.IsDefault = 0
		if *e.IsDefault {
			row.IsDefault = 1
		}
	}
	return row, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntity(sc rowScanner) (types.Entity, error) {
	var (
		e                    types.Entity
		isDefault            sql.NullInt64
		payload              string
		createdAt, updatedAt string
	)
	if err := sc.Scan(&e.ID, &e.ParentID, &isDefault, &payload, &createdAt, &updatedAt); err != nil {
		return types.Entity{}, err
	}
	if isDefault.Valid {
		e.IsDefault = types.Bool(isDefault.Int64 != 0)
	}
	if payload != "" && payload != "{}" {
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return types.Entity{}, fmt.Errorf("failed to decode payload of %s: %w", e.ID, err)
		}
	}
	var err error
	if e.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return types.Entity{}, fmt.Errorf("bad created_at on %s: %w", e.ID, err)
	}
	if e.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return types.Entity{}, fmt.Errorf("bad updated_at on %s: %w", e.ID, err)
	}
	return e, nil
}

// queryer is satisfied by both *sql.DB and *sql.Tx
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (s *Store) list(ctx context.Context, q queryer, collection string, where squirrel.Eq) ([]types.Entity, error) {
	query, args, err := s.builder.selectEntities(collection, where)
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := []types.Entity{}
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (s *Store) get(ctx context.Context, q queryer, collection, id string) (types.Entity, error) {
	entities, err := s.list(ctx, q, collection, squirrel.Eq{"id": id})
	if err != nil {
		return types.Entity{}, err
	}
	if len(entities) == 0 {
		return types.Entity{}, fmt.Errorf("entity %s: %w", id, types.ErrNotFound)
	}
	return entities[0], nil
}

func (s *Store) exists(ctx context.Context, q queryer, collection, id string) (bool, error) {
	query, args, err := s.builder.countEntities(collection, id)
	if err != nil {
		return false, fmt.Errorf("failed to build query: %w", err)
	}
	var n int
	if err := q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to count entities: %w", err)
	}
	return n > 0, nil
}

// inTx runs fn in a transaction, committing only if it returns nil
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (s *Store) exec(ctx context.Context, q queryer, stmt squirrel.Sqlizer) error {
	query, args, err := stmt.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build statement: %w", err)
	}
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to execute statement: %w", err)
	}
	return nil
}

// FetchAll returns every entity of the collection in creation order
func (s *Store) FetchAll(ctx context.Context, collection string) ([]types.Entity, error) {
	if err := validation.ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	return s.list(ctx, s.db, collection, nil)
}

// FetchChildren returns the direct children of parentID
func (s *Store) FetchChildren(ctx context.Context, collection, parentID string) ([]types.Entity, error) {
	if err := validation.ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	if err := validation.ValidateID(parentID); err != nil {
		return nil, err
	}

	var result []types.Entity
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		ok, err := s.exists(ctx, tx, collection, parentID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("parent %s: %w", parentID, types.ErrNotFound)
		}
		result, err = s.list(ctx, tx, collection, squirrel.Eq{"parent_id": parentID})
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Create inserts a new entity with a generated id
func (s *Store) Create(ctx context.Context, collection string, req types.CreateRequest) (types.Entity, error) {
	if err := validation.ValidateCollectionName(collection); err != nil {
		return types.Entity{}, err
	}
	if err := validation.ValidatePayload(req.Payload); err != nil {
		return types.Entity{}, err
	}

	now := s.timeFunc().UTC()
	created := types.Entity{
		ID:        s.idFunc(),
		ParentID:  req.ParentID,
		Payload:   types.Payload(nil).Merge(req.Payload),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.IsDefault != nil {
		created.IsDefault = types.Bool(*req.IsDefault)
	}
	row, err := toRow(created)
	if err != nil {
		return types.Entity{}, err
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if created.ParentID != "" {
			ok, err := s.exists(ctx, tx, collection, created.ParentID)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("parent %s: %w", created.ParentID, types.ErrNotFound)
			}
		}
		if created.Default() {
			if err := s.exec(ctx, tx, s.builder.clearDefaults(collection, created.ID, row.UpdatedAt)); err != nil {
				return err
			}
		}
		return s.exec(ctx, tx, s.builder.insertEntity(collection, row))
	})
	if err != nil {
		return types.Entity{}, err
	}

	s.logger.Debug("created entity", "collection", collection, "id", created.ID, "parent", created.ParentID)
	return normalize(created)
}

// Update merges req into an existing entity
func (s *Store) Update(ctx context.Context, collection, id string, req types.UpdateRequest) (types.Entity, error) {
	if err := validation.ValidateCollectionName(collection); err != nil {
		return types.Entity{}, err
	}
	if err := validation.ValidateID(id); err != nil {
		return types.Entity{}, err
	}
	if err := validation.ValidatePayload(req.Payload); err != nil {
		return types.Entity{}, err
	}

	var updated types.Entity
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		e, err := s.get(ctx, tx, collection, id)
		if err != nil {
			return err
		}
		if req.ParentID != nil {
			if err := s.checkReparent(ctx, tx, collection, id, *req.ParentID); err != nil {
				return err
			}
			e.ParentID = *req.ParentID
		}

		e.UpdatedAt = s.timeFunc().UTC()
		if req.IsDefault != nil {
			e.IsDefault = types.Bool(*req.IsDefault)
		}
		e.Payload = e.Payload.Merge(req.Payload)

		row, err := toRow(e)
		if err != nil {
			return err
		}
		if e.Default() {
			if err := s.exec(ctx, tx, s.builder.clearDefaults(collection, id, row.UpdatedAt)); err != nil {
				return err
			}
		}
		if err := s.exec(ctx, tx, s.builder.updateEntity(collection, row)); err != nil {
			return err
		}
		updated = e
		return nil
	})
	if err != nil {
		return types.Entity{}, err
	}
	return normalize(updated)
}

// checkReparent rejects a missing parent and any move under the entity itself
func (s *Store) checkReparent(ctx context.Context, tx *sql.Tx, collection, id, parentID string) error {
	if parentID == "" {
		return nil
	}
	if parentID == id {
		return fmt.Errorf("entity %s cannot be its own parent: %w", id, types.ErrCycle)
	}
	ok, err := s.exists(ctx, tx, collection, parentID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("parent %s: %w", parentID, types.ErrNotFound)
	}

	var n int
	err = tx.QueryRowContext(ctx, isAncestorSQL, collection, parentID, collection, id).Scan(&n)
	if err != nil {
		return fmt.Errorf("failed to walk ancestors: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("moving %s under %s: %w", id, parentID, types.ErrCycle)
	}
	return nil
}

// Delete removes an entity and all of its descendants
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := validation.ValidateCollectionName(collection); err != nil {
		return err
	}
	if err := validation.ValidateID(id); err != nil {
		return err
	}

	var removed int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		ok, err := s.exists(ctx, tx, collection, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("entity %s: %w", id, types.ErrNotFound)
		}
		res, err := tx.ExecContext(ctx, deleteCascadeSQL, id, collection, collection)
		if err != nil {
			return fmt.Errorf("failed to delete: %w", err)
		}
		removed, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug("deleted entity", "collection", collection, "id", id, "removed", removed)
	return nil
}

func normalize(e types.Entity) (types.Entity, error) {
	payload, err := e.Payload.Normalize()
	if err != nil {
		return types.Entity{}, err
	}
	e.Payload = payload
	return e, nil
}
