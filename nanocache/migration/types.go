// Package migration rewrites payload keys across a whole collection.
//
// A Command validates the loaded entities, then yields one payload patch per
// entity it changes. Run sends every patch through the collection as a
// partial update, so the backend stays the source of truth and the cache is
// reconciled from its responses.
package migration

import (
	"log/slog"
	"time"

	"github.com/arthur-debert/nanocache/types"
)

// MessageLevel represents the severity of a message
type MessageLevel int

const (
	LevelDebug MessageLevel = iota
	LevelInfo
	LevelWarning
	LevelError
)

func (l MessageLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// Message represents a single output message from a migration
type Message struct {
	Level   MessageLevel           `json:"level" yaml:"level"`
	Text    string                 `json:"text" yaml:"text"`
	Details map[string]interface{} `json:"details,omitempty" yaml:"details,omitempty"`
}

// Result encapsulates the outcome of a migration
type Result struct {
	Success  bool      `json:"success" yaml:"success"`
	Code     int       `json:"code" yaml:"code"` // 0 = success, >0 = specific error codes
	Messages []Message `json:"messages" yaml:"messages"`
	Modified []string  `json:"modified" yaml:"modified"` // Ids of changed entities, in collection order
	Stats    Stats     `json:"stats" yaml:"stats"`
}

// Stats provides migration statistics
type Stats struct {
	Total    int           `json:"total" yaml:"total"`
	Modified int           `json:"modified" yaml:"modified"`
	Skipped  int           `json:"skipped" yaml:"skipped"`
	Failed   int           `json:"failed" yaml:"failed"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Options configures migration behavior
type Options struct {
	DryRun bool
	Logger *slog.Logger // nil discards
}

// Error codes
const (
	CodeSuccess = iota
	CodeValidationError
	CodeExecutionError
	CodePartialFailure
)

// Command is one payload migration
type Command interface {
	// Description returns a human-readable description of the command
	Description() string

	// Validate inspects every entity before anything is written.
	// Any LevelError message aborts the run.
	Validate(entities []types.Entity) []Message

	// Patch returns the payload update for e, or false to leave it alone.
	// Nil values in the patch remove keys.
	Patch(e types.Entity) (types.Payload, bool)
}

func hasError(messages []Message) bool {
	for _, msg := range messages {
		if msg.Level == LevelError {
			return true
		}
	}
	return false
}

// firstIDs returns at most five ids for message details
func firstIDs(ids []string) []string {
	return ids[:min(5, len(ids))]
}
