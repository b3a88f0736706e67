package migration

import (
	"fmt"

	"github.com/arthur-debert/nanocache/types"
)

// RemoveKey deletes a payload key everywhere it appears
type RemoveKey struct {
	Key string
}

// Description returns a human-readable description of the command
func (r *RemoveKey) Description() string {
	return fmt.Sprintf("Remove key '%s'", r.Key)
}

// Validate checks if the removal can be executed
func (r *RemoveKey) Validate(entities []types.Entity) []Message {
	if messages := keyMessages("Key", r.Key); hasError(messages) {
		return messages
	}

	count := 0
	for _, e := range entities {
		if _, ok := e.Payload[r.Key]; ok {
			count++
		}
	}
	if count == 0 {
		return []Message{{
			Level: LevelWarning,
			Text:  fmt.Sprintf("Key '%s' not found in any entity", r.Key),
		}}
	}
	return []Message{{
		Level: LevelInfo,
		Text:  fmt.Sprintf("Found key '%s' in %d entities", r.Key, count),
	}}
}

// Patch removes the key when present
func (r *RemoveKey) Patch(e types.Entity) (types.Payload, bool) {
	if _, ok := e.Payload[r.Key]; !ok {
		return nil, false
	}
	return types.Payload{r.Key: nil}, true
}
