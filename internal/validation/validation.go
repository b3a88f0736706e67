// Package validation checks requests before the local stores persist them.
// Every failure wraps types.ErrInvalid.
package validation

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/arthur-debert/nanocache/types"
)

// MaxCollectionName is the longest accepted collection name
const MaxCollectionName = 64

// ValidateCollectionName accepts lowercase letters, digits, '-' and '_'
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("collection name cannot be empty: %w", types.ErrInvalid)
	}
	if len(name) > MaxCollectionName {
		return fmt.Errorf("collection name too long: %d (maximum %d): %w", len(name), MaxCollectionName, types.ErrInvalid)
	}
	for _, r := range name {
		if !isNameRune(r) {
			return fmt.Errorf("collection name %q contains invalid character %q: %w", name, r, types.ErrInvalid)
		}
	}
	return nil
}

func isNameRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_'
}

// ValidateID rejects empty or padded ids
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("id cannot be empty: %w", types.ErrInvalid)
	}
	if strings.TrimSpace(id) != id {
		return fmt.Errorf("id %q has surrounding whitespace: %w", id, types.ErrInvalid)
	}
	return nil
}

// IsReservedKey reports whether a payload key shadows an entity field
func IsReservedKey(key string) bool {
	switch strings.ToLower(key) {
	case "id", "parent_id", "is_default", "created_at", "updated_at":
		return true
	}
	return false
}

// ValidatePayload checks keys and makes sure every value survives a JSON round trip
func ValidatePayload(payload types.Payload) error {
	for key, value := range payload {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("payload key cannot be empty: %w", types.ErrInvalid)
		}
		if IsReservedKey(key) {
			return fmt.Errorf("payload key '%s' is reserved: %w", key, types.ErrInvalid)
		}
		if err := ValidateValue(value, key); err != nil {
			return err
		}
	}
	return nil
}

// ValidateValue accepts nil, strings, numbers, bools, time.Time and
// slices or string-keyed maps of those
func ValidateValue(value interface{}, key string) error {
	if value == nil {
		return nil
	}

	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return nil
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if err := ValidateValue(v.Index(i).Interface(), fmt.Sprintf("%s[%d]", key, i)); err != nil {
				return err
			}
		}
		return nil
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("payload '%s' must use string keys, got %T: %w", key, value, types.ErrInvalid)
		}
		iter := v.MapRange()
		for iter.Next() {
			if err := ValidateValue(iter.Value().Interface(), key+"."+iter.Key().String()); err != nil {
				return err
			}
		}
		return nil
	case reflect.Ptr:
		if v.IsNil() {
			return nil
		}
		return ValidateValue(v.Elem().Interface(), key)
	case reflect.Struct:
		if _, ok := value.(time.Time); ok {
			return nil
		}
		return fmt.Errorf("payload '%s' cannot be a struct type, got %T: %w", key, value, types.ErrInvalid)
	default:
		return fmt.Errorf("payload '%s' must be JSON compatible, got %T: %w", key, value, types.ErrInvalid)
	}
}
