package metaentity

// DeleteMode names the referential-integrity behavior of a ref field when
// its referent is deleted.
type DeleteMode string

const (
	// DeleteKeep leaves referencing records alone; the reference becomes a
	// dangling id.
	DeleteKeep DeleteMode = "keep"
	// DeleteCascade deletes referencing records along with their referent.
	DeleteCascade DeleteMode = "cascade"
)

// boolFlag is a tri-state visibility flag: unset means "default to true",
// the create/list/search/update/clone default, while still letting Field
// force links to false.
type boolFlag struct {
	set   bool
	value bool
}

func flagTrue() boolFlag  { return boolFlag{set: true, value: true} }
func flagFalse() boolFlag { return boolFlag{set: true, value: false} }

// resolve returns the flag's value, defaulting to def when unset.
func (f boolFlag) resolve(def bool) bool {
	if !f.set {
		return def
	}
	return f.value
}

// Field describes one attribute of a Meta: its value type, a per-operation
// visibility flag for each of create/list/search/update/clone, and the
// relationship attributes (Ref/Link/Delete) for fields that point at
// another entity.
type Field struct {
	Name string
	// Type names a registered Type; defaults to "string" when empty.
	Type string
	// Required marks the field as mandatory on create (in addition to any
	// primary-key field, which is always implicitly required).
	Required bool

	// Ref names another collection this field references.
	Ref string
	// Link names a sibling field that itself has Ref; a link field is a
	// read-only projection of the referenced entity's matching field.
	Link string
	// Delete is only legal when Ref is set.
	Delete DeleteMode

	Create boolFlag
	List   boolFlag
	Search boolFlag
	Update boolFlag
	Clone  boolFlag

	// Sys marks a server-only field: clients cannot supply a value for it
	// on create, and it is never included in a create payload's coercion.
	Sys bool
	// Secure marks a field that is never leaked to clients (e.g. a password
	// hash); it is dropped from every client-facing projection.
	Secure bool

	Group string
	// View tags the form-view this field belongs to; "*" means
	// unrestricted. Only legal on an editable field (Create or Update not
	// forced false); defaults to "*".
	View string
}

// WithCreate, WithList, WithSearch, WithUpdate, WithClone are small builder
// helpers for constructing Field values without repeating
// boolFlag{set:true} everywhere.

// WithCreate sets the Create visibility flag explicitly.
func (f Field) WithCreate(v bool) Field { f.Create = boolFlag{true, v}; return f }

// WithList sets the List visibility flag explicitly.
func (f Field) WithList(v bool) Field { f.List = boolFlag{true, v}; return f }

// WithSearch sets the Search visibility flag explicitly.
func (f Field) WithSearch(v bool) Field { f.Search = boolFlag{true, v}; return f }

// WithUpdate sets the Update visibility flag explicitly.
func (f Field) WithUpdate(v bool) Field { f.Update = boolFlag{true, v}; return f }

// WithClone sets the Clone visibility flag explicitly.
func (f Field) WithClone(v bool) Field { f.Clone = boolFlag{true, v}; return f }

// typeName returns the field's effective type name, defaulting to "string".
func (f Field) typeName() string {
	if f.Type == "" {
		return "string"
	}
	return f.Type
}

// creatable, listable, searchable, updatable, cloneable resolve the
// visibility flags, each defaulting to true when unset.
func (f Field) creatable() bool  { return f.Create.resolve(true) }
func (f Field) listable() bool   { return f.List.resolve(true) }
func (f Field) searchable() bool { return f.Search.resolve(true) }
func (f Field) updatable() bool  { return f.Update.resolve(true) }
func (f Field) cloneable() bool  { return f.Clone.resolve(true) }

// editable reports whether clients may ever supply a value for this field
// (on create or update), which is the precondition for View being legal.
func (f Field) editable() bool { return f.creatable() || f.updatable() }

// freezeAsLink forces the fixed attribute set every link field must have:
// required=false, create=false, search=false, update=false, clone=false,
// delete=cascade. It is applied during ValidateAllMetas once the link's
// referenced sibling field is known, and overrides whatever the definition
// author supplied.
func (f Field) freezeAsLink(inheritedType, inheritedRef string) Field {
	f.Type = inheritedType
	f.Ref = inheritedRef
	f.Required = false
	f.Create = flagFalse()
	f.Search = flagFalse()
	f.Update = flagFalse()
	f.Clone = flagFalse()
	f.Delete = DeleteCascade
	return f
}
