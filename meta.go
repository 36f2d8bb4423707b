package metaentity

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MetaDef is the caller-supplied entity definition passed to Register. Meta
// is the derived, validated wrapper the rest of the package operates on.
type MetaDef struct {
	Collection  string
	PrimaryKeys []string
	Fields      []Field

	RefLabel  string
	RefFilter map[string]any
	UserField string
	// Roles holds ordered "role:mode" or "role:mode:view" entries, scanned
	// first-match-wins by the role evaluator.
	Roles []string

	Creatable   bool
	Readable    bool
	Updatable   bool
	Deleteable  bool
	Cloneable   bool
	Importable  bool
	Exportable  bool

	BeforeCreate      BeforeCreateHook
	Create            CreateHook
	AfterCreate       AfterCreateHook
	BeforeClone       BeforeCreateHook
	Clone             CreateHook
	AfterClone        AfterCreateHook
	BeforeUpdate      BeforeUpdateHook
	Update            UpdateHook
	AfterUpdate       AfterUpdateHook
	BatchUpdate       BatchUpdateHook
	AfterBatchUpdate  AfterBatchUpdateHook
	AfterRead         AfterReadHook
	BeforeDelete      BeforeDeleteHook
	Delete            DeleteHook
	AfterDelete       AfterDeleteHook
	ListQuery         ListQueryHook

	// Route is an opaque extension point the core never inspects.
	Route any
}

// Meta is a registered, validated entity definition with its derived field
// subsets and reference-graph back-edges. It describes an entity by data
// rather than by a compile-time Go type.
type Meta struct {
	MetaDef

	FieldsMap map[string]*Field

	CreateFields     []string
	UpdateFields     []string
	SearchFields     []string
	CloneFields      []string
	ListFields       []string
	PropertyFields   []string
	ClientFields     []string
	PrimaryKeyFields []string
	FileFields       []string
	RefFields        []string
	LinkFields       []string

	RequiredFieldNames []string

	// RefByMetas holds the collection names of metas that declare a field
	// referencing this one — back-edges of the reference graph, stored as
	// names (not pointers) to avoid cyclic ownership.
	RefByMetas map[string]bool

	// Mode is the concatenated operation-mode string used by the role
	// evaluator: 'c'reate, 'r'ead, 's'earch/list, 'u'pdate, 'b'atch_update,
	// cl'o'ne, 'i'mport, 'e'xport. List and batch_update have no dedicated
	// boolean attribute, so they ride along with Readable and Updatable
	// respectively (see DESIGN.md).
	Mode string
}

func (m *Meta) fieldNames(pred func(Field) bool) []string {
	var out []string
	for _, f := range m.Fields {
		if pred(f) {
			out = append(out, f.Name)
		}
	}
	return out
}

func (m *Meta) deriveFieldSubsets() {
	m.FieldsMap = make(map[string]*Field, len(m.Fields))
	for i := range m.Fields {
		m.FieldsMap[m.Fields[i].Name] = &m.Fields[i]
	}

	m.CreateFields = m.fieldNames(func(f Field) bool { return f.creatable() && !f.Sys })
	m.UpdateFields = m.fieldNames(func(f Field) bool { return f.updatable() && !f.Sys })
	m.SearchFields = m.fieldNames(func(f Field) bool { return f.searchable() })
	m.CloneFields = m.fieldNames(func(f Field) bool { return f.cloneable() && !f.Sys })
	m.ListFields = m.fieldNames(func(f Field) bool { return f.listable() && !f.Sys && !f.Secure })
	m.PropertyFields = m.fieldNames(func(f Field) bool { return !f.Secure && !f.Sys })
	m.ClientFields = m.fieldNames(func(f Field) bool { return !f.Secure && !f.Sys })
	m.FileFields = m.fieldNames(func(f Field) bool { return f.typeName() == "file" })
	m.RefFields = m.fieldNames(func(f Field) bool { return f.Ref != "" })
	m.LinkFields = m.fieldNames(func(f Field) bool { return f.Link != "" })

	m.PrimaryKeyFields = append([]string(nil), m.PrimaryKeys...)

	required := map[string]bool{}
	for _, f := range m.Fields {
		if f.Required {
			required[f.Name] = true
		}
	}
	for _, pk := range m.PrimaryKeys {
		required[pk] = true
	}
	m.RequiredFieldNames = nil
	for name := range required {
		m.RequiredFieldNames = append(m.RequiredFieldNames, name)
	}
	sort.Strings(m.RequiredFieldNames)

	var mode strings.Builder
	if m.Creatable {
		mode.WriteByte('c')
	}
	if m.Readable {
		mode.WriteByte('r')
		mode.WriteByte('s')
	}
	if m.Updatable {
		mode.WriteByte('u')
		mode.WriteByte('b')
	}
	if m.Deleteable {
		mode.WriteByte('d')
	}
	if m.Cloneable {
		mode.WriteByte('o')
	}
	if m.Importable {
		mode.WriteByte('i')
	}
	if m.Exportable {
		mode.WriteByte('e')
	}
	m.Mode = mode.String()
}

// MetaRegistry holds every registered Meta, keyed by collection name.
// Mutated only during bootstrap registration; read-only (and safe for
// concurrent reads) after ValidateAllMetas.
type MetaRegistry struct {
	mu    sync.RWMutex
	metas map[string]*Meta
}

// NewMetaRegistry creates an empty registry.
func NewMetaRegistry() *MetaRegistry {
	return &MetaRegistry{metas: make(map[string]*Meta)}
}

// Register constructs a Meta from def, validates the attribute-name
// whitelist and structural invariants that can be checked in isolation, and
// inserts it keyed by def.Collection. Duplicate collection names fail.
// Cross-meta checks (ref targets exist, role names registered, ...) are
// deferred to ValidateAllMetas, since they require every meta to be present
// first.
func (r *MetaRegistry) Register(def MetaDef) (*Meta, error) {
	if def.Collection == "" {
		return nil, &MetaError{Collection: "", Msg: "collection is required"}
	}
	if len(def.PrimaryKeys) == 0 {
		return nil, &MetaError{Collection: def.Collection, Msg: "primary_keys is required and non-empty"}
	}

	names := map[string]bool{}
	for _, f := range def.Fields {
		if f.Name == "" {
			return nil, &MetaError{Collection: def.Collection, Msg: "field name is required"}
		}
		if names[f.Name] {
			return nil, &MetaError{Collection: def.Collection, Field: f.Name, Msg: "duplicate field name"}
		}
		names[f.Name] = true
		if f.Delete != "" && f.Ref == "" {
			return nil, &MetaError{Collection: def.Collection, Field: f.Name, Msg: "delete is only legal when ref is set"}
		}
		if f.Link != "" {
			if f.Ref != "" || f.Required || f.Group != "" || f.Secure || f.Sys {
				return nil, &MetaError{Collection: def.Collection, Field: f.Name, Msg: "link field's only legal attributes are {name, link, list}"}
			}
		}
		if f.View != "" && !f.editable() {
			return nil, &MetaError{Collection: def.Collection, Field: f.Name, Msg: "view is only legal on an editable field"}
		}
	}
	for _, pk := range def.PrimaryKeys {
		f, ok := names[pk]
		if !ok || !f {
			return nil, &MetaError{Collection: def.Collection, Field: pk, Msg: "primary key field must be declared in fields"}
		}
	}

	m := &Meta{MetaDef: def}
	for i, f := range m.Fields {
		for _, pk := range m.PrimaryKeys {
			if f.Name == pk {
				m.Fields[i].Required = true
			}
		}
		if m.Fields[i].View == "" && m.Fields[i].editable() {
			m.Fields[i].View = "*"
		}
	}
	m.deriveFieldSubsets()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.metas[def.Collection]; exists {
		return nil, &MetaError{Collection: def.Collection, Msg: "collection already registered"}
	}
	r.metas[def.Collection] = m
	return m, nil
}

// Get returns the registered meta for collection, if any.
func (r *MetaRegistry) Get(collection string) (*Meta, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.metas[collection]
	return m, ok
}

// All returns every registered meta, in an arbitrary but stable order.
func (r *MetaRegistry) All() []*Meta {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Meta, 0, len(r.metas))
	for _, m := range r.metas {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Collection < out[j].Collection })
	return out
}

// ValidateAllMetas performs the cross-cutting checks that require every
// meta to already be registered: ref targets exist and have a ref_label,
// link fields resolve and inherit from their sibling, primary
// keys/ref_label/user_field exist, and role entries are well-formed against
// a role registry. It must be called exactly once after every meta this
// process will use has been registered.
func (r *MetaRegistry) ValidateAllMetas(roles *RoleRegistry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.metas {
		m.RefByMetas = map[string]bool{}
	}

	for _, m := range r.metas {
		if m.RefLabel != "" {
			if _, ok := m.FieldsMap[m.RefLabel]; !ok {
				return &MetaError{Collection: m.Collection, Field: m.RefLabel, Msg: "ref_label must name a declared field"}
			}
		}
		if m.UserField != "" {
			if _, ok := m.FieldsMap[m.UserField]; !ok {
				return &MetaError{Collection: m.Collection, Field: m.UserField, Msg: "user_field must name a declared field"}
			}
		}

		for i, f := range m.Fields {
			if f.Ref != "" {
				target, ok := r.metas[f.Ref]
				if !ok {
					return &MetaError{Collection: m.Collection, Field: f.Name, Msg: fmt.Sprintf("ref target %q is not registered", f.Ref)}
				}
				if target.RefLabel == "" {
					return &MetaError{Collection: m.Collection, Field: f.Name, Msg: fmt.Sprintf("ref target %q has no ref_label", f.Ref)}
				}
				target.RefByMetas[m.Collection] = true
			}
			if f.Link != "" {
				sibling, ok := m.FieldsMap[f.Link]
				if !ok || sibling.Ref == "" {
					return &MetaError{Collection: m.Collection, Field: f.Name, Msg: fmt.Sprintf("link must point to a sibling field %q that has ref", f.Link)}
				}
				target, ok := r.metas[sibling.Ref]
				if !ok {
					return &MetaError{Collection: m.Collection, Field: f.Name, Msg: fmt.Sprintf("link's ref target %q is not registered", sibling.Ref)}
				}
				if _, ok := target.FieldsMap[f.Name]; !ok {
					return &MetaError{Collection: m.Collection, Field: f.Name, Msg: fmt.Sprintf("referenced entity %q has no field named %q", sibling.Ref, f.Name)}
				}
				m.Fields[i] = f.freezeAsLink(target.FieldsMap[f.Name].Type, target.FieldsMap[f.Name].Ref)
			}
		}
		// Link freezing may have changed Fields; rebuild derived subsets.
		m.deriveFieldSubsets()

		if m.RefFilter != nil {
			for k := range m.RefFilter {
				if _, ok := m.FieldsMap[k]; !ok {
					return &MetaError{Collection: m.Collection, Field: k, Msg: "ref_filter key must name a declared field"}
				}
			}
		}

		for _, entry := range m.Roles {
			role, mode, _, err := parseRoleEntry(entry)
			if err != nil {
				return &MetaError{Collection: m.Collection, Msg: err.Error()}
			}
			if roles != nil {
				if _, ok := roles.Get(role); !ok {
					return &MetaError{Collection: m.Collection, Msg: fmt.Sprintf("role %q is not registered", role)}
				}
			}
			if mode != "*" {
				for _, c := range mode {
					if !strings.ContainsRune(m.Mode, c) {
						return &MetaError{Collection: m.Collection, Msg: fmt.Sprintf("role entry %q grants mode %q not in entity mode %q", entry, string(c), m.Mode)}
					}
				}
			}
		}
	}
	return nil
}

var defaultMetaRegistry = NewMetaRegistry()

// Register registers def on the process-wide meta registry.
func Register(def MetaDef) (*Meta, error) { return defaultMetaRegistry.Register(def) }

// GetMeta looks up collection on the process-wide meta registry.
func GetMeta(collection string) (*Meta, bool) { return defaultMetaRegistry.Get(collection) }

// AllMetas returns every meta on the process-wide meta registry.
func AllMetas() []*Meta { return defaultMetaRegistry.All() }

// ValidateAllMetas runs cross-meta validation on the process-wide meta
// registry against the process-wide role registry.
func ValidateAllMetas() error {
	return defaultMetaRegistry.ValidateAllMetas(defaultRoleRegistry)
}
