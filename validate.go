package metaentity

import (
	"math"
	"strings"
)

// HasValue reports whether v is considered present. nil, NaN, and
// whitespace-only strings are absent; everything else — including numeric
// zero, false, and empty slices/maps — is present.
func HasValue(v any) bool {
	if v == nil {
		return false
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t) != ""
	case float32:
		return !math.IsNaN(float64(t))
	case float64:
		return !math.IsNaN(t)
	}
	return true
}

// MissingRequired returns the subset of names for which obj lacks a value.
func MissingRequired(obj map[string]any, names []string) []string {
	var missing []string
	for _, name := range names {
		if !HasValue(obj[name]) {
			missing = append(missing, name)
		}
	}
	return missing
}

// PrimaryKeyQuery extracts and type-coerces the primary-key field values of
// obj according to meta. It returns nil if any primary-key field is missing
// a value or fails coercion — callers treat a nil result as "cannot be
// uniquely identified by primary key".
func PrimaryKeyQuery(obj map[string]any, meta *Meta) map[string]any {
	if meta == nil || len(meta.PrimaryKeys) == 0 {
		return nil
	}
	query := make(map[string]any, len(meta.PrimaryKeys))
	for _, name := range meta.PrimaryKeys {
		raw, ok := obj[name]
		if !ok || !HasValue(raw) {
			return nil
		}
		field := meta.FieldsMap[name]
		if field == nil {
			return nil
		}
		typ, ok := GetType(field.typeName())
		if !ok {
			return nil
		}
		value, err := typ.Convert(raw)
		if err != nil {
			return nil
		}
		query[name] = value
	}
	return query
}
