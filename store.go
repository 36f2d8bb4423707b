package metaentity

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
)

// UpdateOptions controls the behavior of Store.Update.
type UpdateOptions struct {
	// Upsert inserts a new document when the query matches nothing.
	Upsert bool
	// Multi applies the update to every matching document, not just one.
	Multi bool
}

// FindOptions controls the behavior of Store.Find.
type FindOptions struct {
	// Sort lists field names in sort precedence, each negated with a
	// leading '-' for descending order.
	Sort []string
	Skip  int64
	Limit int64
}

// Store is the thin collection-store contract the entity engine requires.
// It is a black box: no implementation lives in this package (the
// memstore subpackage provides a reference implementation for tests only).
type Store interface {
	// Insert stores obj in the named collection and returns the stored
	// record with its allocated id set.
	Insert(ctx context.Context, collection string, obj map[string]any) (map[string]any, error)

	// Update applies obj (treated as a $set-style partial document) to
	// every document matching query (or just one, unless opts.Multi), per
	// opts.
	Update(ctx context.Context, collection string, query bson.M, obj map[string]any, opts UpdateOptions) (matched int64, err error)

	// Remove deletes every document matching query.
	Remove(ctx context.Context, collection string, query bson.M) (removed int64, err error)

	// Find returns every document matching query, limited to the named
	// projection fields (nil/empty means "all fields"), per opts.
	Find(ctx context.Context, collection string, query bson.M, projection []string, opts FindOptions) ([]map[string]any, error)

	// FindOne returns the first document matching query, or (nil, nil) if
	// none match.
	FindOne(ctx context.Context, collection string, query bson.M, projection []string) (map[string]any, error)

	// Count returns the number of documents matching query.
	Count(ctx context.Context, collection string, query bson.M) (int64, error)

	// Sum returns the sum of field across every document matching query,
	// via an aggregation pipeline.
	Sum(ctx context.Context, collection string, query bson.M, field string) (float64, error)
}
