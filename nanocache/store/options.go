package store

import (
	"log/slog"
	"time"
)

// Option configures a Store
type Option func(*Store)

// WithFileSystem sets a custom FileSystem implementation
func WithFileSystem(fs FileSystem) Option {
	return func(s *Store) {
		s.fs = fs
	}
}

// WithFileLockFactory sets a custom FileLockFactory implementation
func WithFileLockFactory(factory FileLockFactory) Option {
	return func(s *Store) {
		s.lockFactory = factory
	}
}

// WithTimeFunc sets the clock used for timestamps
func WithTimeFunc(fn func() time.Time) Option {
	return func(s *Store) {
		s.timeFunc = fn
	}
}

// WithIDFunc sets the id generator. Defaults to random UUIDs.
func WithIDFunc(fn func() string) Option {
	return func(s *Store) {
		s.idFunc = fn
	}
}

// WithLogger sets the logger used for save and reload events
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}
