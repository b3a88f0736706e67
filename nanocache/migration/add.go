package migration

import (
	"fmt"

	"github.com/arthur-debert/nanocache/internal/validation"
	"github.com/arthur-debert/nanocache/types"
)

// AddKey writes a value under a key. Entities that already have the key
// keep their value unless Overwrite is set.
type AddKey struct {
	Key       string
	Value     interface{}
	Overwrite bool
}

// Description returns a human-readable description of the command
func (a *AddKey) Description() string {
	return fmt.Sprintf("Add key '%s' with value %v", a.Key, a.Value)
}

// Validate checks if the add can be executed
func (a *AddKey) Validate(entities []types.Entity) []Message {
	messages := keyMessages("Key", a.Key)
	if a.Value == nil {
		messages = append(messages, Message{
			Level: LevelError,
			Text:  "Value cannot be null, use remove-key to delete a key",
		})
	} else if err := validation.ValidateValue(a.Value, a.Key); err != nil {
		messages = append(messages, Message{
			Level: LevelError,
			Text:  fmt.Sprintf("Invalid value: %v", err),
		})
	}
	if hasError(messages) {
		return messages
	}

	var existing []string
	for _, e := range entities {
		if _, ok := e.Payload[a.Key]; ok {
			existing = append(existing, e.ID)
		}
	}

	if len(existing) > 0 {
		level, verb := LevelWarning, "will keep their value"
		if a.Overwrite {
			level, verb = LevelInfo, "will be overwritten"
		}
		messages = append(messages, Message{
			Level: level,
			Text:  fmt.Sprintf("Key '%s' already exists in %d entities and %s", a.Key, len(existing), verb),
			Details: map[string]interface{}{
				"entity_ids": firstIDs(existing),
				"total":      len(existing),
			},
		})
	}

	messages = append(messages, Message{
		Level: LevelInfo,
		Text:  fmt.Sprintf("Will add key '%s' to %d entities", a.Key, len(entities)-len(existing)),
		Details: map[string]interface{}{
			"value": a.Value,
		},
	})
	return messages
}

// Patch sets the key unless it exists and Overwrite is off
func (a *AddKey) Patch(e types.Entity) (types.Payload, bool) {
	if _, ok := e.Payload[a.Key]; ok && !a.Overwrite {
		return nil, false
	}
	return types.Payload{a.Key: a.Value}, true
}
