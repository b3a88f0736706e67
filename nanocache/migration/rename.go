package migration

import (
	"fmt"

	"github.com/arthur-debert/nanocache/types"
)

// RenameKey moves a payload value from one key to another
type RenameKey struct {
	Old string
	New string
}

// Description returns a human-readable description of the command
func (r *RenameKey) Description() string {
	return fmt.Sprintf("Rename key '%s' to '%s'", r.Old, r.New)
}

// Validate checks if the rename can be executed
func (r *RenameKey) Validate(entities []types.Entity) []Message {
	var messages []Message
	messages = append(messages, keyMessages("Old key", r.Old)...)
	messages = append(messages, keyMessages("New key", r.New)...)
	if r.Old == r.New {
		messages = append(messages, Message{
			Level: LevelError,
			Text:  "Old and new keys are the same",
		})
	}
	if hasError(messages) {
		return messages
	}

	var found, conflicts []string
	for _, e := range entities {
		if _, ok := e.Payload[r.Old]; !ok {
			continue
		}
		found = append(found, e.ID)
		if _, ok := e.Payload[r.New]; ok {
			conflicts = append(conflicts, e.ID)
		}
	}

	if len(found) == 0 {
		return append(messages, Message{
			Level: LevelWarning,
			Text:  fmt.Sprintf("Key '%s' not found in any entity", r.Old),
		})
	}
	messages = append(messages, Message{
		Level: LevelInfo,
		Text:  fmt.Sprintf("Found key '%s' in %d entities", r.Old, len(found)),
	})

	if len(conflicts) > 0 {
		messages = append(messages, Message{
			Level: LevelError,
			Text:  fmt.Sprintf("Key '%s' already exists in %d entities", r.New, len(conflicts)),
			Details: map[string]interface{}{
				"entity_ids": firstIDs(conflicts),
				"total":      len(conflicts),
			},
		})
	}
	return messages
}

// Patch removes the old key and writes its value under the new one
func (r *RenameKey) Patch(e types.Entity) (types.Payload, bool) {
	value, ok := e.Payload[r.Old]
	if !ok {
		return nil, false
	}
	return types.Payload{r.Old: nil, r.New: value}, true
}
