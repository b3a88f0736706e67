package migration

import (
	"fmt"
	"strings"

	"github.com/arthur-debert/nanocache/internal/validation"
)

// keyMessages checks that key can be written into a payload
func keyMessages(label, key string) []Message {
	if strings.TrimSpace(key) == "" {
		return []Message{{Level: LevelError, Text: fmt.Sprintf("%s cannot be empty", label)}}
	}
	if validation.IsReservedKey(key) {
		return []Message{{
			Level: LevelError,
			Text:  fmt.Sprintf("%s '%s' is reserved", label, key),
		}}
	}
	return nil
}
