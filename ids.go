package metaentity

import (
	"strconv"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ID is the entity identifier contract. Concrete implementations let store
// code stay agnostic of whether the underlying key is a Mongo ObjectID, a
// plain string, or anything else a Store chooses to allocate.
type ID interface {
	// String returns the canonical string form, as stored on reference
	// fields and accepted back by ParseID.
	String() string
	// IsZero reports whether the ID is the zero value for its type.
	IsZero() bool
}

// StringID is an ID backed directly by a string. ParseID returns one for any
// string that is not an ObjectID hex form (memstore's hex ids parse to
// ObjectID instead).
type StringID string

// String returns the string form of the ID.
func (id StringID) String() string { return string(id) }

// IsZero reports whether the ID is empty.
func (id StringID) IsZero() bool { return string(id) == "" }

// ObjectID is an ID backed by a MongoDB-style primitive.ObjectID, the
// natural identifier type for the document store this engine targets.
type ObjectID primitive.ObjectID

// String returns the 24-character hex form of the ObjectID.
func (id ObjectID) String() string { return primitive.ObjectID(id).Hex() }

// IsZero reports whether the ObjectID is the zero ObjectID.
func (id ObjectID) IsZero() bool { return primitive.ObjectID(id).IsZero() }

// NewObjectID allocates a fresh ObjectID, suitable for Store implementations
// that need to mint ids themselves rather than delegate to the backing
// database.
func NewObjectID() ObjectID {
	return ObjectID(primitive.NewObjectID())
}

// ParseID constructs an ID from its string form. It first tries to parse s
// as a Mongo ObjectID hex string (the common case for this engine's target
// store); any other string becomes a StringID, so callers never have to
// special-case test stores or synthetic ids.
func ParseID(s string) ID {
	if oid, err := primitive.ObjectIDFromHex(s); err == nil {
		return ObjectID(oid)
	}
	return StringID(s)
}

// idsEqual compares two ID values by their canonical string form.
func idsEqual(a, b ID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.String() == b.String()
}

// isIntegerString reports whether s parses cleanly as a base-10 integer.
func isIntegerString(s string) bool {
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}
