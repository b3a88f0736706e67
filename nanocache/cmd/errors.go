package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/arthur-debert/nanocache/nanocache"
	"github.com/arthur-debert/nanocache/nanocache/migration"
	"github.com/arthur-debert/nanocache/types"
)

// CLIError represents a user-friendly CLI error with context and suggestions
type CLIError struct {
	Operation   string   // The operation that failed (e.g., "add", "list", "delete")
	Cause       string   // The underlying cause (e.g., "entity not found")
	Details     string   // Additional technical details
	Suggestions []string // Helpful suggestions for the user
	Underlying  error    // Original error for debugging
}

// Error implements the error interface
func (e *CLIError) Error() string {
	var msg strings.Builder

	if e.Operation != "" {
		msg.WriteString(fmt.Sprintf("Failed to %s", e.Operation))
	} else {
		msg.WriteString("Operation failed")
	}

	if e.Cause != "" {
		msg.WriteString(fmt.Sprintf(": %s", e.Cause))
	}

	if e.Details != "" {
		msg.WriteString(fmt.Sprintf(" (%s)", e.Details))
	}

	if len(e.Suggestions) > 0 {
		msg.WriteString("\n\nSuggestions:")
		for i, suggestion := range e.Suggestions {
			msg.WriteString(fmt.Sprintf("\n  %d. %s", i+1, suggestion))
		}
	}

	return msg.String()
}

// Unwrap returns the underlying error for error chain compatibility
func (e *CLIError) Unwrap() error {
	return e.Underlying
}

// NewValidationError creates an error for validation failures
func NewValidationError(operation, field, value string, suggestions ...string) *CLIError {
	return &CLIError{
		Operation:   operation,
		Cause:       fmt.Sprintf("invalid %s: %q", field, value),
		Suggestions: suggestions,
		Underlying:  types.ErrInvalid,
	}
}

// NewConfigError creates an error for configuration issues
func NewConfigError(operation, issue string, suggestions ...string) *CLIError {
	return &CLIError{
		Operation:   operation,
		Cause:       fmt.Sprintf("configuration error: %s", issue),
		Suggestions: suggestions,
	}
}

// NewMigrationError reports a migration that did not complete
func NewMigrationError(operation string, result *migration.Result) *CLIError {
	e := &CLIError{
		Operation: operation,
		Cause:     "migration failed",
		Details:   fmt.Sprintf("code %d", result.Code),
	}
	switch result.Code {
	case migration.CodeValidationError:
		e.Cause = "migration rejected"
		e.Underlying = types.ErrInvalid
		e.Suggestions = []string{"Fix the errors listed above, then run again", CommonSuggestions.CheckFlags}
	case migration.CodePartialFailure, migration.CodeExecutionError:
		e.Details = fmt.Sprintf("%d of %d updates failed", result.Stats.Failed, result.Stats.Failed+result.Stats.Modified)
		e.Suggestions = []string{"Run again: entities already migrated are skipped", CommonSuggestions.CheckAPI}
	}
	return e
}

// NewStoreError creates an error for backend failures. When no suggestions
// are given, they are picked from the kind of failure.
func NewStoreError(operation string, underlying error, suggestions ...string) *CLIError {
	cause := "store operation failed"
	details := ""
	var defaults []string

	if underlying != nil {
		details = underlying.Error()

		var apiErr *types.APIError
		errStr := strings.ToLower(underlying.Error())
		switch {
		case errors.Is(underlying, types.ErrNotFound):
			cause = "entity not found"
			defaults = []string{CommonSuggestions.CheckID, CommonSuggestions.CheckCollection}
		case errors.Is(underlying, types.ErrCycle):
			cause = "the new parent is inside the moved subtree"
			defaults = []string{"Pick a parent outside the subtree (try 'tree' first)"}
		case errors.Is(underlying, nanocache.ErrNotFlat):
			cause = "only flat collections have a default"
			defaults = []string{"Use --kind flat, or a flat collection such as addresses"}
		case errors.Is(underlying, types.ErrInvalid):
			cause = "invalid data provided"
			defaults = []string{CommonSuggestions.CheckFlags, CommonSuggestions.RunHelp}
		case errors.Is(underlying, types.ErrConflict):
			cause = "conflicting request"
		case errors.Is(underlying, context.DeadlineExceeded):
			cause = "operation timed out"
			defaults = []string{CommonSuggestions.CheckAPI}
		case errors.As(underlying, &apiErr) && apiErr.Temporary():
			cause = "the API is unavailable"
			defaults = []string{CommonSuggestions.CheckAPI, CommonSuggestions.Retry}
		case strings.Contains(errStr, "failed to acquire lock"):
			cause = "store file is currently locked by another process"
			defaults = []string{CommonSuggestions.Retry}
		case strings.Contains(errStr, "connection refused"):
			cause = "the API is unreachable"
			defaults = []string{CommonSuggestions.CheckAPI}
		case strings.Contains(errStr, "no such file"):
			cause = "store file not found"
			defaults = []string{CommonSuggestions.CheckStore}
		case strings.Contains(errStr, "permission denied"):
			cause = "insufficient permissions to access the store"
			defaults = []string{CommonSuggestions.CheckPerms}
		}
	}

	if len(suggestions) == 0 {
		suggestions = defaults
	}

	return &CLIError{
		Operation:   operation,
		Cause:       cause,
		Details:     details,
		Suggestions: suggestions,
		Underlying:  underlying,
	}
}

// WrapError wraps an existing error with CLI-friendly context
func WrapError(operation string, err error, suggestions ...string) error {
	if err == nil {
		return nil
	}

	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		if cliErr.Operation == "" {
			cliErr.Operation = operation
		}
		return cliErr
	}

	return NewStoreError(operation, err, suggestions...)
}

// Common error messages and suggestions
var (
	CommonSuggestions = struct {
		CheckID         string
		CheckCollection string
		CheckStore      string
		CheckAPI        string
		CheckConfig     string
		CheckFlags      string
		RunHelp         string
		CheckPerms      string
		Retry           string
	}{
		CheckID:         "Verify the entity ID exists (try 'list' or 'tree' first)",
		CheckCollection: "Verify --collection names the collection you mean",
		CheckStore:      "Verify --store points to a valid store file",
		CheckAPI:        "Verify --api points to a running nanocache server",
		CheckConfig:     "Check your configuration file or environment variables",
		CheckFlags:      "Check command line flags and their values",
		RunHelp:         "Run command with --help for usage information",
		CheckPerms:      "Check file permissions and directory access",
		Retry:           "Retry in a moment, or raise --retries",
	}
)
