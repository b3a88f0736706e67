package storage

import (
	"sync"
)

// OperationType defines whether an operation is read or write.
type OperationType int

const (
	// ReadOperation only reads state. Many can run at once.
	ReadOperation OperationType = iota

	// WriteOperation modifies state and runs exclusively.
	WriteOperation
)

// LockManager centralizes locking for the cache and the stores so that
// every operation picks the right lock and always releases it.
//
// Network calls must never run inside Execute: the lock only guards the
// in-memory state, and holding it across a fetch would block every query
// against the last known good state.
type LockManager struct {
	mu *sync.RWMutex
}

// NewLockManager creates a new lock manager instance.
func NewLockManager() *LockManager {
	return &LockManager{
		mu: &sync.RWMutex{},
	}
}

// Execute runs fn under a read lock or an exclusive write lock.
// The lock is released via defer, even if fn panics.
//
// Example:
//
//	err := lm.Execute(ReadOperation, func() error {
//	    // Safe to read state here
//	    return nil
//	})
func (lm *LockManager) Execute(opType OperationType, fn func() error) error {
	switch opType {
	case ReadOperation:
		lm.mu.RLock()
		defer lm.mu.RUnlock()
	case WriteOperation:
		lm.mu.Lock()
		defer lm.mu.Unlock()
	}
	return fn()
}

// Read runs fn under a read lock
func (lm *LockManager) Read(fn func()) {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	fn()
}

// Write runs fn under the write lock
func (lm *LockManager) Write(fn func()) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	fn()
}

// ExecuteWithResult is Execute for functions that also produce a value.
func ExecuteWithResult[T any](lm *LockManager, opType OperationType, fn func() (T, error)) (T, error) {
	switch opType {
	case ReadOperation:
		lm.mu.RLock()
		defer lm.mu.RUnlock()
	case WriteOperation:
		lm.mu.Lock()
		defer lm.mu.Unlock()
	}
	return fn()
}
