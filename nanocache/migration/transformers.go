package migration

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Transformer converts one payload value
type Transformer func(value interface{}) (interface{}, error)

// TransformerRegistry maps transformer names to their implementations
var TransformerRegistry = map[string]Transformer{
	"toString":    ToString,
	"toInt":       ToInt,
	"toFloat":     ToFloat,
	"toBool":      ToBool,
	"toLowerCase": ToLowerCase,
	"toUpperCase": ToUpperCase,
	"trim":        Trim,
}

// TransformerNames returns the registered names, sorted
func TransformerNames() []string {
	names := make([]string, 0, len(TransformerRegistry))
	for name := range TransformerRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// scalarString renders strings, numbers and bools. Lists and objects are
// rejected rather than flattened.
func scalarString(value interface{}) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return "", fmt.Errorf("cannot convert %T to string", value)
	}
}

// ToString converts a scalar to its string form
func ToString(value interface{}) (interface{}, error) {
	return scalarString(value)
}

// ToInt converts a value to a whole number, truncating fractions
func ToInt(value interface{}) (interface{}, error) {
	f, err := ToFloat(value)
	if err != nil {
		return 0, err
	}
	return int64(math.Trunc(f.(float64))), nil
}

// ToFloat converts a value to float64
func ToFloat(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case nil:
		return 0.0, nil
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	case bool:
		if v {
			return 1.0, nil
		}
		return 0.0, nil
	default:
		return 0.0, fmt.Errorf("cannot convert %T to number", value)
	}
}

// ToBool converts a value to boolean
func ToBool(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "1", "on":
			return true, nil
		case "false", "no", "0", "off", "":
			return false, nil
		default:
			return false, fmt.Errorf("cannot convert %q to bool", v)
		}
	case float64:
		return v != 0, nil
	case int:
		return v != 0, nil
	case int64:
		return v != 0, nil
	default:
		return false, fmt.Errorf("cannot convert %T to bool", value)
	}
}

// ToLowerCase lowercases the string form of a value
func ToLowerCase(value interface{}) (interface{}, error) {
	s, err := scalarString(value)
	return strings.ToLower(s), err
}

// ToUpperCase uppercases the string form of a value
func ToUpperCase(value interface{}) (interface{}, error) {
	s, err := scalarString(value)
	return strings.ToUpper(s), err
}

// Trim removes leading and trailing whitespace
func Trim(value interface{}) (interface{}, error) {
	s, err := scalarString(value)
	return strings.TrimSpace(s), err
}
