// Package memstore is a reference, in-process implementation of
// metaentity.Store. It exists so the core engine can be exercised by tests
// without a real MongoDB instance; the core itself never imports it.
//
// Considered instead of hand-writing this: github.com/256dpi/lungo, an
// embedded Mongo-compatible store with a mongo-driver-shaped API. No usage
// example of it was available to confirm its exact API surface, so this
// package implements the query vocabulary directly against bson.M instead
// of depending on an unverified API (see DESIGN.md).
package memstore

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/entkit/metaentity"
)

// Store is a concurrency-safe, in-memory metaentity.Store. The zero value
// is not usable; construct with New.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any
}

// New creates an empty Store.
func New() *Store {
	return &Store{collections: make(map[string]map[string]map[string]any)}
}

func (s *Store) collection(name string) map[string]map[string]any {
	c, ok := s.collections[name]
	if !ok {
		c = make(map[string]map[string]any)
		s.collections[name] = c
	}
	return c
}

// Insert stores a copy of obj with a freshly allocated "_id".
func (s *Store) Insert(_ context.Context, collection string, obj map[string]any) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := cloneDoc(obj)
	doc["_id"] = metaentity.NewObjectID().String()
	s.collection(collection)[doc["_id"].(string)] = doc
	return cloneDoc(doc), nil
}

// Update applies obj to every document matching query (or just the first,
// unless opts.Multi). obj is treated as a partial document unless it
// carries one of the dedicated update operators ($set, $pull, $push,
// $addToSet).
func (s *Store) Update(_ context.Context, collection string, query bson.M, obj map[string]any, opts metaentity.UpdateOptions) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll := s.collection(collection)
	var matchedIDs []string
	for id, doc := range coll {
		if matchQuery(doc, query) {
			matchedIDs = append(matchedIDs, id)
		}
	}

	if len(matchedIDs) == 0 {
		if !opts.Upsert {
			return 0, nil
		}
		doc := cloneDoc(obj)
		for k, v := range flattenEqualities(query) {
			if _, exists := doc[k]; !exists {
				doc[k] = v
			}
		}
		doc["_id"] = metaentity.NewObjectID().String()
		coll[doc["_id"].(string)] = doc
		return 1, nil
	}

	sort.Strings(matchedIDs)
	if !opts.Multi {
		matchedIDs = matchedIDs[:1]
	}
	for _, id := range matchedIDs {
		applyUpdate(coll[id], obj)
	}
	return int64(len(matchedIDs)), nil
}

// Remove deletes every document matching query.
func (s *Store) Remove(_ context.Context, collection string, query bson.M) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll := s.collection(collection)
	var remove []string
	for id, doc := range coll {
		if matchQuery(doc, query) {
			remove = append(remove, id)
		}
	}
	for _, id := range remove {
		delete(coll, id)
	}
	return int64(len(remove)), nil
}

// Find returns every matching document, sorted/paginated/projected per
// opts.
func (s *Store) Find(_ context.Context, collection string, query bson.M, projection []string, opts metaentity.FindOptions) ([]map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []map[string]any
	for _, doc := range s.collections[collection] {
		if matchQuery(doc, query) {
			matches = append(matches, doc)
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if v := compareByIDs(matches[i], matches[j]); v != 0 {
			return v < 0
		}
		return false
	})
	for _, field := range reverseStrings(opts.Sort) {
		desc := strings.HasPrefix(field, "-")
		name := strings.TrimPrefix(field, "-")
		sort.SliceStable(matches, func(i, j int) bool {
			c := compareAny(matches[i][name], matches[j][name])
			if desc {
				return c > 0
			}
			return c < 0
		})
	}

	if opts.Skip > 0 {
		if int(opts.Skip) >= len(matches) {
			matches = nil
		} else {
			matches = matches[opts.Skip:]
		}
	}
	if opts.Limit > 0 && int64(len(matches)) > opts.Limit {
		matches = matches[:opts.Limit]
	}

	out := make([]map[string]any, len(matches))
	for i, m := range matches {
		out[i] = projectDoc(m, projection)
	}
	return out, nil
}

// FindOne returns the first matching document, or (nil, nil).
func (s *Store) FindOne(ctx context.Context, collection string, query bson.M, projection []string) (map[string]any, error) {
	results, err := s.Find(ctx, collection, query, projection, metaentity.FindOptions{Limit: 1})
	if err != nil || len(results) == 0 {
		return nil, err
	}
	return results[0], nil
}

// Count returns the number of matching documents.
func (s *Store) Count(_ context.Context, collection string, query bson.M) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, doc := range s.collections[collection] {
		if matchQuery(doc, query) {
			n++
		}
	}
	return n, nil
}

// Sum returns the sum of field across every matching document.
func (s *Store) Sum(_ context.Context, collection string, query bson.M, field string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total float64
	for _, doc := range s.collections[collection] {
		if !matchQuery(doc, query) {
			continue
		}
		switch v := doc[field].(type) {
		case float64:
			total += v
		case int64:
			total += float64(v)
		case int:
			total += float64(v)
		}
	}
	return total, nil
}

func cloneDoc(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}

func projectDoc(doc map[string]any, fields []string) map[string]any {
	if len(fields) == 0 {
		return cloneDoc(doc)
	}
	out := make(map[string]any, len(fields)+1)
	for _, f := range fields {
		if v, ok := doc[f]; ok {
			out[f] = v
		}
	}
	if v, ok := doc["_id"]; ok {
		out["_id"] = v
	}
	return out
}

// applyUpdate merges obj into doc. A plain map (no recognized operator key)
// is treated as an implicit $set.
func applyUpdate(doc map[string]any, obj map[string]any) {
	hasOperator := false
	for k := range obj {
		if strings.HasPrefix(k, "$") {
			hasOperator = true
			break
		}
	}
	if !hasOperator {
		for k, v := range obj {
			doc[k] = v
		}
		return
	}

	if set, ok := obj["$set"].(map[string]any); ok {
		for k, v := range set {
			doc[k] = v
		}
	}
	if pull, ok := obj["$pull"].(map[string]any); ok {
		for k, v := range pull {
			doc[k] = removeFromSlice(doc[k], v)
		}
	}
	if push, ok := obj["$push"].(map[string]any); ok {
		for k, v := range push {
			doc[k] = appendToSlice(doc[k], v)
		}
	}
	if add, ok := obj["$addToSet"].(map[string]any); ok {
		for k, v := range add {
			if !sliceContains(doc[k], v) {
				doc[k] = appendToSlice(doc[k], v)
			}
		}
	}
}

func asSlice(v any) []any {
	switch s := v.(type) {
	case []any:
		return s
	case nil:
		return nil
	default:
		return []any{s}
	}
}

func removeFromSlice(v, target any) []any {
	out := asSlice(v)[:0:0]
	for _, el := range asSlice(v) {
		if !valuesEqual(el, target) {
			out = append(out, el)
		}
	}
	return out
}

func appendToSlice(v, target any) []any {
	return append(asSlice(v), target)
}

func sliceContains(v, target any) bool {
	for _, el := range asSlice(v) {
		if valuesEqual(el, target) {
			return true
		}
	}
	return false
}

func flattenEqualities(query bson.M) map[string]any {
	out := map[string]any{}
	for k, v := range query {
		if strings.HasPrefix(k, "$") {
			continue
		}
		if _, isOperator := v.(bson.M); isOperator {
			continue
		}
		out[k] = v
	}
	return out
}

func reverseStrings(in []string) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}

// matchQuery implements the query vocabulary the engine's search and
// reference resolution need: $and, $or, $in, $all, comparison operators,
// $regex/$options, and Mongo's default "equals, or array contains" field
// matching.
func matchQuery(doc map[string]any, query bson.M) bool {
	for k, v := range query {
		switch k {
		case "$and":
			for _, sub := range toBsonMs(v) {
				if !matchQuery(doc, sub) {
					return false
				}
			}
		case "$or":
			subs := toBsonMs(v)
			if len(subs) == 0 {
				continue
			}
			matched := false
			for _, sub := range subs {
				if matchQuery(doc, sub) {
					matched = true
					break
				}
			}
			if !matched {
				return false
			}
		default:
			if !matchField(doc[k], v) {
				return false
			}
		}
	}
	return true
}

func toBsonMs(v any) []bson.M {
	switch vs := v.(type) {
	case []bson.M:
		return vs
	case bson.A:
		out := make([]bson.M, 0, len(vs))
		for _, e := range vs {
			if m, ok := e.(bson.M); ok {
				out = append(out, m)
			}
		}
		return out
	case []any:
		out := make([]bson.M, 0, len(vs))
		for _, e := range vs {
			if m, ok := e.(bson.M); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

func matchField(docVal any, cond any) bool {
	ops, isOps := cond.(bson.M)
	if !isOps {
		return valuesEqualOrContains(docVal, cond)
	}

	for op, opv := range ops {
		switch op {
		case "$in":
			if !anyMatches(docVal, opv) {
				return false
			}
		case "$all":
			if !allMatch(docVal, opv) {
				return false
			}
		case "$ne":
			if valuesEqualOrContains(docVal, opv) {
				return false
			}
		case "$gt":
			if compareAny(docVal, opv) <= 0 {
				return false
			}
		case "$gte":
			if compareAny(docVal, opv) < 0 {
				return false
			}
		case "$lt":
			if compareAny(docVal, opv) >= 0 {
				return false
			}
		case "$lte":
			if compareAny(docVal, opv) > 0 {
				return false
			}
		case "$regex":
			pattern := fmt.Sprintf("%v", opv)
			if opts, ok := ops["$options"]; ok && strings.Contains(fmt.Sprintf("%v", opts), "i") {
				pattern = "(?i)" + pattern
			}
			re, err := regexp.Compile(pattern)
			if err != nil || !re.MatchString(fmt.Sprintf("%v", docVal)) {
				return false
			}
		case "$options":
			// consumed alongside $regex
		default:
			// unrecognized operators are ignored by this reference store
		}
	}
	return true
}

func anyMatches(docVal any, wanted any) bool {
	for _, w := range toAnySlice(wanted) {
		if valuesEqualOrContains(docVal, w) {
			return true
		}
	}
	return false
}

func allMatch(docVal any, wanted any) bool {
	for _, w := range toAnySlice(wanted) {
		if !sliceContains(docVal, w) && !valuesEqual(docVal, w) {
			return false
		}
	}
	return true
}

func toAnySlice(v any) []any {
	switch s := v.(type) {
	case []any:
		return s
	case bson.A:
		return []any(s)
	default:
		return []any{v}
	}
}

func valuesEqualOrContains(docVal any, want any) bool {
	if arr, ok := docVal.([]any); ok {
		for _, el := range arr {
			if valuesEqual(el, want) {
				return true
			}
		}
		return false
	}
	return valuesEqual(docVal, want)
}

func valuesEqual(a, b any) bool {
	if fa, err := asComparableFloat(a); err == nil {
		if fb, err2 := asComparableFloat(b); err2 == nil {
			return fa == fb
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// compareAny orders two field values for both the comparison operators and
// explicit sort, falling back to string comparison for non-numeric values.
func compareAny(a, b any) int {
	if fa, err := asComparableFloat(a); err == nil {
		if fb, err2 := asComparableFloat(b); err2 == nil {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}

func asComparableFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	}
	return 0, fmt.Errorf("not a number")
}

func compareByIDs(a, b map[string]any) int {
	return strings.Compare(fmt.Sprintf("%v", a["_id"]), fmt.Sprintf("%v", b["_id"]))
}
