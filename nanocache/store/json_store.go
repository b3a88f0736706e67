// Package store is a types.Backend persisted to a single JSON file.
//
// Several processes may share the file (the CLI and a running server, for
// instance). Writes take an exclusive flock, reload the file if another
// process changed it, apply the change to a copy and save it atomically
// through a temp file and rename. The in-memory copy is only replaced once the
// save succeeded.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/arthur-debert/nanocache/internal/validation"
	"github.com/arthur-debert/nanocache/nanocache/storage"
	"github.com/arthur-debert/nanocache/types"
	"github.com/google/uuid"
)

// Constants for file locking
const (
	lockTimeout    = 3 * time.Second
	lockMaxRetries = 3
	lockRetryDelay = 100 * time.Millisecond
)

// Store implements types.Backend on top of a JSON file
type Store struct {
	filePath    string
	lockManager *storage.LockManager
	fs          FileSystem
	lockFactory FileLockFactory
	fileLock    FileLock
	logger      *slog.Logger

	data     *storage.StoreData
	loadedAt time.Time // mod time of the file when data was read or written
	loadedSz int64

	timeFunc func() time.Time
	idFunc   func() string
}

var _ types.Backend = (*Store)(nil)

// New opens the store at filePath. A missing file is created on the first write.
func New(filePath string, opts ...Option) (*Store, error) {
	s := &Store{
		filePath:    filePath,
		lockManager: storage.NewLockManager(),
		timeFunc:    time.Now,
		idFunc:      func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.fs == nil {
		s.fs = OSFileSystem{}
	}
	if s.lockFactory == nil {
		s.lockFactory = FlockFactory{}
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s.data = storage.NewStoreData(s.timeFunc())
	s.fileLock = s.lockFactory.New(filePath + ".lock")

	if dir := filepath.Dir(filePath); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	err := s.lockManager.Execute(storage.WriteOperation, s.reloadIfChanged)
	if err != nil {
		return nil, fmt.Errorf("failed to load data: %w", err)
	}
	return s, nil
}

// Path returns the data file path
func (s *Store) Path() string {
	return s.filePath
}

// acquireLock attempts to acquire the file lock with retry logic
func (s *Store) acquireLock(ctx context.Context) error {
	for i := 0; i < lockMaxRetries; i++ {
		locked, err := s.fileLock.TryLockContext(ctx, lockRetryDelay)
		if err != nil {
			return fmt.Errorf("failed to acquire lock: %w", err)
		}
		if locked {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}
	return fmt.Errorf("failed to acquire lock after %d attempts", lockMaxRetries)
}

// reloadIfChanged reads the file when it differs from what we last saw.
// Caller holds the write lock.
func (s *Store) reloadIfChanged() error {
	info, err := s.fs.Stat(s.filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if info.ModTime().Equal(s.loadedAt) && info.Size() == s.loadedSz {
		return nil
	}

	raw, err := s.fs.ReadFile(s.filePath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	data := storage.NewStoreData(s.timeFunc())
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, data); err != nil {
			return fmt.Errorf("failed to parse JSON: %w", err)
		}
		if data.Collections == nil {
			data.Collections = make(map[string][]types.Entity)
		}
	}

	s.data = data
	s.loadedAt, s.loadedSz = info.ModTime(), info.Size()
	s.logger.Debug("reloaded store", "path", s.filePath, "collections", len(data.Collections))
	return nil
}

// save writes data atomically. Caller holds both locks.
func (s *Store) save(data *storage.StoreData) error {
	data.Metadata.UpdatedAt = s.timeFunc()

	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	tmpFile := s.filePath + ".tmp"
	if err := s.fs.WriteFile(tmpFile, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := s.fs.Rename(tmpFile, s.filePath); err != nil {
		_ = s.fs.Remove(tmpFile)
		return fmt.Errorf("failed to rename file: %w", err)
	}

	if info, err := s.fs.Stat(s.filePath); err == nil {
		s.loadedAt, s.loadedSz = info.ModTime(), info.Size()
	} else {
		s.loadedAt, s.loadedSz = time.Time{}, -1
	}
	return nil
}

// view runs fn against the freshest data under the read lock
func view[T any](s *Store, fn func(data *storage.StoreData) (T, error)) (T, error) {
	if err := s.lockManager.Execute(storage.WriteOperation, s.reloadIfChanged); err != nil {
		var zero T
		return zero, err
	}
	return storage.ExecuteWithResult(s.lockManager, storage.ReadOperation, func() (T, error) {
		return fn(s.data)
	})
}

// mutate applies fn to a copy of the data and keeps it only if the save worked
func (s *Store) mutate(ctx context.Context, fn func(data *storage.StoreData) error) error {
	return s.lockManager.Execute(storage.WriteOperation, func() error {
		lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
		defer cancel()
		if err := s.acquireLock(lockCtx); err != nil {
			return err
		}
		defer func() { _ = s.fileLock.Unlock() }()

		if err := s.reloadIfChanged(); err != nil {
			return err
		}
		working := s.data.Clone()
		if err := fn(working); err != nil {
			return err
		}
		if err := s.save(working); err != nil {
			return fmt.Errorf("failed to save: %w", err)
		}
		s.data = working
		return nil
	})
}

// FetchAll returns every entity of the collection in creation order
func (s *Store) FetchAll(ctx context.Context, collection string) ([]types.Entity, error) {
	if err := validation.ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return view(s, func(data *storage.StoreData) ([]types.Entity, error) {
		result := []types.Entity{}
		for _, e := range data.Collections[collection] {
			result = append(result, e.Clone())
		}
		return result, nil
	})
}

// FetchChildren returns the direct children of parentID
func (s *Store) FetchChildren(ctx context.Context, collection, parentID string) ([]types.Entity, error) {
	if err := validation.ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	if err := validation.ValidateID(parentID); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return view(s, func(data *storage.StoreData) ([]types.Entity, error) {
		entities := data.Collections[collection]
		if indexOf(entities, parentID) < 0 {
			return nil, fmt.Errorf("parent %s: %w", parentID, types.ErrNotFound)
		}
		result := []types.Entity{}
		for _, e := range entities {
			if e.ParentID == parentID {
				result = append(result, e.Clone())
			}
		}
		return result, nil
	})
}

// Create stores a new entity with a generated id
func (s *Store) Create(ctx context.Context, collection string, req types.CreateRequest) (types.Entity, error) {
	if err := validation.ValidateCollectionName(collection); err != nil {
		return types.Entity{}, err
	}
	if err := validation.ValidatePayload(req.Payload); err != nil {
		return types.Entity{}, err
	}

	var created types.Entity
	err := s.mutate(ctx, func(data *storage.StoreData) error {
		entities := data.Collections[collection]
		if req.ParentID != "" && indexOf(entities, req.ParentID) < 0 {
			return fmt.Errorf("parent %s: %w", req.ParentID, types.ErrNotFound)
		}

		payload, err := types.Payload(nil).Merge(req.Payload).Normalize()
		if err != nil {
			return err
		}
		now := s.timeFunc()
		created = types.Entity{
			ID:        s.idFunc(),
			ParentID:  req.ParentID,
			Payload:   payload,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if req.IsDefault != nil {
			created.IsDefault = types.Bool(*req.IsDefault)
		}
		if indexOf(entities, created.ID) >= 0 {
			return fmt.Errorf("id %s already exists: %w", created.ID, types.ErrConflict)
		}
		if created.Default() {
			clearDefaults(entities, created.ID, now)
		}
		data.Collections[collection] = append(entities, created.Clone())
		return nil
	})
	if err != nil {
		return types.Entity{}, err
	}

	s.logger.Debug("created entity", "collection", collection, "id", created.ID, "parent", created.ParentID)
	return created, nil
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
	err := s.mutate(ctx, func(data *storage.StoreData) error {
		entities := data.Collections[collection]
		i := indexOf(entities, id)
		if i < 0 {
			return fmt.Errorf("entity %s: %w", id, types.ErrNotFound)
		}
		if req.ParentID != nil {
			if err := checkReparent(entities, id, *req.ParentID); err != nil {
				return err
			}
		}

		now := s.timeFunc()
		e := entities[i]
		if req.ParentID != nil {
			e.ParentID = *req.ParentID
		}
		if req.IsDefault != nil {
			e.IsDefault = types.Bool(*req.IsDefault)
			if *req.IsDefault {
				clearDefaults(entities, id, now)
			}
		}
		payload, err := e.Payload.Merge(req.Payload).Normalize()
		if err != nil {
			return err
		}
		e.Payload = payload
		e.UpdatedAt = now

		entities[i] = e
		updated = e.Clone()
		return nil
	})
	if err != nil {
		return types.Entity{}, err
	}
	return updated, nil
}

// Delete removes an entity and all of its descendants
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := validation.ValidateCollectionName(collection); err != nil {
		return err
	}
	if err := validation.ValidateID(id); err != nil {
		return err
	}

	var removed int
	err := s.mutate(ctx, func(data *storage.StoreData) error {
		entities := data.Collections[collection]
		if indexOf(entities, id) < 0 {
			return fmt.Errorf("entity %s: %w", id, types.ErrNotFound)
		}

		doomed := descendants(entities, id)
		kept := make([]types.Entity, 0, len(entities))
		for _, e := range entities {
			if !doomed[e.ID] {
				kept = append(kept, e)
			}
		}
		removed = len(entities) - len(kept)
		data.Collections[collection] = kept
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug("deleted entity", "collection", collection, "id", id, "removed", removed)
	return nil
}

// Close removes the lock file. Data is saved on each operation.
func (s *Store) Close() error {
	return s.lockManager.Execute(storage.WriteOperation, func() error {
		_ = s.fs.Remove(s.filePath + ".lock")
		return nil
	})
}

func indexOf(entities []types.Entity, id string) int {
	for i, e := range entities {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func clearDefaults(entities []types.Entity, keep string, now time.Time) {
	for i, e := range entities {
		if e.ID != keep && e.Default() {
			entities[i].IsDefault = types.Bool(false)
			entities[i].UpdatedAt = now
		}
	}
}

// checkReparent rejects a missing parent and any move under the entity itself
func checkReparent(entities []types.Entity, id, parentID string) error {
	if parentID == "" {
		return nil
	}
	if parentID == id {
		return fmt.Errorf("entity %s cannot be its own parent: %w", id, types.ErrCycle)
	}
	if indexOf(entities, parentID) < 0 {
		return fmt.Errorf("parent %s: %w", parentID, types.ErrNotFound)
	}

	parents := make(map[string]string, len(entities))
	for _, e := range entities {
		parents[e.ID] = e.ParentID
	}
	seen := map[string]bool{}
	for cur := parentID; cur != "" && !seen[cur]; cur = parents[cur] {
		if cur == id {
			return fmt.Errorf("moving %s under %s: %w", id, parentID, types.ErrCycle)
		}
		seen[cur] = true
	}
	return nil
}

// descendants returns id and everything below it, guarded against cycles
func descendants(entities []types.Entity, id string) map[string]bool {
	children := make(map[string][]string)
	for _, e := range entities {
		children[e.ParentID] = append(children[e.ParentID], e.ID)
	}

	doomed := map[string]bool{id: true}
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, child := range children[cur] {
			if !doomed[child] {
				doomed[child] = true
				queue = append(queue, child)
			}
		}
	}
	return doomed
}
