package migration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/arthur-debert/nanocache/nanocache"
	"github.com/arthur-debert/nanocache/types"
)

// Run loads the whole collection, validates cmd against it and applies each
// patch as a partial update. The error is reserved for failures before any
// write: loading, or a canceled context. Failed updates are reported in the
// Result and the run carries on with the next entity.
func Run(ctx context.Context, coll *nanocache.Collection, cmd Command, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	startTime := time.Now()
	if err := coll.LoadAll(ctx); err != nil {
		return nil, err
	}
	entities := coll.Cache().Snapshot()

	result := &Result{
		Success:  true,
		Code:     CodeSuccess,
		Messages: []Message{{Level: LevelDebug, Text: cmd.Description()}},
		Modified: []string{},
		Stats:    Stats{Total: len(entities)},
	}

	validation := cmd.Validate(entities)
	result.Messages = append(result.Messages, validation...)
	if hasError(validation) {
		result.Success = false
		result.Code = CodeValidationError
		result.Stats.Duration = time.Since(startTime)
		return result, nil
	}

	var failed []string
	for _, e := range entities {
		patch, ok := cmd.Patch(e)
		if !ok {
			result.Stats.Skipped++
			continue
		}
		if !opts.DryRun {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			_, err := coll.Update(ctx, e.ID, types.UpdateRequest{Payload: patch})
			var cycle *nanocache.CycleError
			if errors.As(err, &cycle) {
				result.Messages = append(result.Messages, Message{
					Level: LevelWarning,
					Text:  fmt.Sprintf("Updated %s: %v", e.ID, cycle),
				})
				err = nil
			}
			if err != nil {
				logger.Debug("migration update failed", "collection", coll.Name(), "id", e.ID, "error", err)
				failed = append(failed, e.ID)
				result.Messages = append(result.Messages, Message{
					Level: LevelError,
					Text:  fmt.Sprintf("Failed to update %s: %v", e.ID, err),
				})
				continue
			}
		}
		result.Modified = append(result.Modified, e.ID)
	}

	result.Stats.Modified = len(result.Modified)
	result.Stats.Failed = len(failed)
	result.Stats.Duration = time.Since(startTime)

	if len(failed) > 0 {
		result.Success = false
		result.Code = CodePartialFailure
		if result.Stats.Modified == 0 {
			result.Code = CodeExecutionError
		}
	}

	verb := "Updated"
	if opts.DryRun {
		verb = "Would update"
	}
	result.Messages = append(result.Messages, Message{
		Level: LevelInfo,
		Text:  fmt.Sprintf("%s %d of %d entities", verb, result.Stats.Modified, result.Stats.Total),
	})
	if opts.DryRun {
		result.Messages = append(result.Messages, Message{
			Level: LevelInfo,
			Text:  "(DRY RUN - no changes applied)",
		})
	}

	logger.Info("migration finished",
		"collection", coll.Name(),
		"command", cmd.Description(),
		"dry_run", opts.DryRun,
		"modified", result.Stats.Modified,
		"failed", result.Stats.Failed,
		"duration", result.Stats.Duration)
	return result, nil
}
