// Package metaentity is a metadata-driven entity engine: domain entities are
// described once by a declarative [Meta] definition, and the package derives
// the full CRUD pipeline from it — type coercion, required-field validation,
// role-based access, reference resolution, referential-integrity enforcement
// on delete, and search-query construction against a document store.
//
// # Quick start
//
// Register the roles and entity metas your process needs on a pair of
// registries, then call [MetaRegistry.ValidateAllMetas] once all metas are
// registered:
//
//	metas, roles := metaentity.NewMetaRegistry(), metaentity.NewRoleRegistry()
//	roles.Register(metaentity.Role{Name: "admin", Root: true})
//	roleMeta, _ := metas.Register(metaentity.MetaDef{
//	    Collection:  "role_seven",
//	    PrimaryKeys: []string{"name"},
//	    RefLabel:    "name",
//	    Fields: []metaentity.Field{
//	        {Name: "name", Type: "string", Required: true},
//	    },
//	    Creatable: true, Readable: true,
//	})
//	if err := metas.ValidateAllMetas(roles); err != nil {
//	    log.Fatal(err)
//	}
//
// Then build an [Engine] with [NewEngine] from a [Store] implementation, a
// meta and the same two registries, and drive
// Create/Read/List/Update/BatchUpdate/Clone/Delete against it. The
// package-level [Register], [RegisterRole] and [ValidateAllMetas] act on
// process-wide registries that are not exported, so NewEngine cannot be
// given them.
//
// The package owns no persistence: [Store] is a thin contract over a
// MongoDB-style document collection, supplied by the caller.
package metaentity
