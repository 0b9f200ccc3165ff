package core

import "strconv"

// ToFloat coerces JSON scalars to float64. Workflow files produced by hand
// or by agents sometimes carry typeVersion as a string or integer.
func ToFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// ToInt coerces JSON scalars to int.
func ToInt(v any) (int, bool) {
	f, ok := ToFloat(v)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// AsBool reads v as a bool, tolerating absent values.
func AsBool(v any) bool {
	b, ok := v.(bool)
	return ok && b
}

// AsString reads v as a string, returning "" for non-strings.
func AsString(v any) string {
	s, _ := v.(string)
	return s
}

// AsMap reads v as a JSON mapping, returning nil for non-mappings.
func AsMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}
