package migration

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/arthur-debert/nanocache/types"
)

// TransformKey rewrites the value of a key with a registered Transformer.
// Entities whose value fails to convert are left alone and reported.
type TransformKey struct {
	Key         string
	Transformer string
}

// Description returns a human-readable description of the command
func (t *TransformKey) Description() string {
	return fmt.Sprintf("Transform key '%s' using '%s'", t.Key, t.Transformer)
}

// Validate checks the transformer and tries it on every value
func (t *TransformKey) Validate(entities []types.Entity) []Message {
	if strings.TrimSpace(t.Key) == "" {
		return []Message{{Level: LevelError, Text: "Key cannot be empty"}}
	}
	transform, ok := TransformerRegistry[t.Transformer]
	if !ok {
		return []Message{{
			Level: LevelError,
			Text:  fmt.Sprintf("Unknown transformer '%s'", t.Transformer),
			Details: map[string]interface{}{
				"available_transformers": TransformerNames(),
			},
		}}
	}

	count := 0
	var failed []string
	for _, e := range entities {
		value, exists := e.Payload[t.Key]
		if !exists {
			continue
		}
		count++
		if _, err := transform(value); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", e.ID, err))
		}
	}

	if count == 0 {
		return []Message{{
			Level: LevelWarning,
			Text:  fmt.Sprintf("Key '%s' not found in any entity", t.Key),
		}}
	}
	messages := []Message{{
		Level: LevelInfo,
		Text:  fmt.Sprintf("Found key '%s' in %d entities", t.Key, count),
	}}
	if len(failed) > 0 {
		messages = append(messages, Message{
			Level: LevelWarning,
			Text:  fmt.Sprintf("Transformation will fail for %d values", len(failed)),
			Details: map[string]interface{}{
				"sample_errors": failed[:min(3, len(failed))],
				"total_errors":  len(failed),
			},
		})
	}
	return messages
}

// Patch converts the value, skipping entities where it is missing, fails to
// convert or would not change
func (t *TransformKey) Patch(e types.Entity) (types.Payload, bool) {
	transform, ok := TransformerRegistry[t.Transformer]
	if !ok {
		return nil, false
	}
	value, exists := e.Payload[t.Key]
	if !exists {
		return nil, false
	}
	converted, err := transform(value)
	if err != nil || sameValue(converted, value) {
		return nil, false
	}
	return types.Payload{t.Key: converted}, true
}

// sameValue compares values as they read back from a backend, so int64(3)
// equals float64(3)
func sameValue(a, b interface{}) bool {
	na, errA := types.Payload{"v": a}.Normalize()
	nb, errB := types.Payload{"v": b}.Normalize()
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	return reflect.DeepEqual(na, nb)
}
