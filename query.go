package metaentity

import (
	"context"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// RefValueResolver resolves raw ref-label-or-id strings submitted on a
// search parameter for a ref field into the referenced entity's ids. It is
// supplied by the caller (Engine.List passes one that looks the values up in
// the referenced collection) since query.go itself has no store access.
type RefValueResolver func(ctx context.Context, refCollection string, rawValues []string) ([]string, error)

var numericTypes = map[string]bool{
	"number": true, "int": true, "uint": true, "float": true,
	"ufloat": true, "decimal": true, "percentage": true, "currency": true,
	"age": true, "gender": true, "log_level": true,
}

// BuildSearchQuery translates a flat {field: raw} search-parameter map into
// a structured bson.M query. It returns ok=false when meta has no search
// fields at all — the caller must refuse the list request in that case.
func BuildSearchQuery(ctx context.Context, meta *Meta, params map[string]any, resolve RefValueResolver) (query bson.M, ok bool) {
	if len(meta.SearchFields) == 0 {
		return nil, false
	}

	var clauses []bson.M
	for _, name := range meta.SearchFields {
		raw, present := params[name]
		if !present || !HasValue(raw) {
			continue
		}
		field := meta.FieldsMap[name]
		if field == nil {
			continue
		}

		if field.Ref != "" {
			clause := buildRefClause(ctx, name, field, raw, resolve)
			if clause != nil {
				clauses = append(clauses, clause)
			}
			continue
		}

		clause := buildFieldClause(name, *field, raw)
		if clause != nil {
			clauses = append(clauses, clause)
		}
	}

	if len(clauses) == 0 {
		return bson.M{}, true
	}
	return bson.M{"$and": clauses}, true
}

func splitRawValues(raw any) []string {
	s := stringify(raw)
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func buildRefClause(ctx context.Context, name string, field *Field, raw any, resolve RefValueResolver) bson.M {
	values := splitRawValues(raw)
	if len(values) == 0 || resolve == nil {
		return nil
	}
	resolved, err := resolve(ctx, field.Ref, values)
	if err != nil || len(resolved) == 0 {
		return nil
	}
	ids := make([]any, len(resolved))
	for i, r := range resolved {
		ids[i] = r
	}
	return bson.M{name: bson.M{"$all": ids}}
}

func buildFieldClause(name string, field Field, raw any) bson.M {
	rawStr := stringify(raw)

	var op string
	var valueStr string
	switch {
	case strings.HasPrefix(rawStr, ">="):
		op, valueStr = "$gte", rawStr[2:]
	case strings.HasPrefix(rawStr, "<="):
		op, valueStr = "$lte", rawStr[2:]
	case strings.HasPrefix(rawStr, ">"):
		op, valueStr = "$gt", rawStr[1:]
	case strings.HasPrefix(rawStr, "<"):
		op, valueStr = "$lt", rawStr[1:]
	}
	if op != "" {
		coerced, err := coerceFieldValue(field, valueStr)
		if err != nil {
			return nil
		}
		return bson.M{name: bson.M{op: coerced}}
	}

	typeName := field.typeName()
	if numericTypes[typeName] && isLiteralZero(raw, rawStr) {
		return nil
	}

	if strings.Contains(rawStr, ",") {
		parts := splitRawValues(raw)
		values := make([]any, 0, len(parts))
		for _, p := range parts {
			coerced, err := coerceFieldValue(field, p)
			if err != nil {
				continue
			}
			values = append(values, coerced)
		}
		if len(values) == 0 {
			return nil
		}
		return bson.M{name: bson.M{"$in": values}}
	}

	if typeName == "array" {
		return bson.M{name: bson.M{"$all": []any{rawStr}}}
	}

	coerced, err := coerceFieldValue(field, rawStr)
	if err != nil {
		return bson.M{name: rawStr}
	}
	if s, ok := coerced.(string); ok {
		return bson.M{name: bson.M{"$regex": s, "$options": "i"}}
	}
	return bson.M{name: coerced}
}

func coerceFieldValue(field Field, raw any) (any, error) {
	typ, ok := GetType(field.typeName())
	if !ok {
		return raw, nil
	}
	return typ.Convert(raw)
}

func isLiteralZero(raw any, rawStr string) bool {
	if f, err := toFloat(raw); err == nil {
		return f == 0
	}
	return rawStr == "0"
}
