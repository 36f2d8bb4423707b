package metaentity

import (
	"context"
	"errors"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// idKey is the document key holding the engine-generated identifier,
// distinct from an entity's business-level PrimaryKeys, following the
// Mongo "_id" convention the store's whole query vocabulary is built on.
const idKey = "_id"

// EngineOptions configures an Engine's ambient behavior. It is a plain
// struct passed in by the caller, with a constructor (withDefaults) filling
// in defaults for anything left zero.
type EngineOptions struct {
	// DefaultListLimit is both the default page size when the caller omits
	// limit and the hard ceiling list() will not exceed, however large a
	// limit the caller requests.
	DefaultListLimit int64
}

func (o EngineOptions) withDefaults() EngineOptions {
	if o.DefaultListLimit <= 0 {
		o.DefaultListLimit = 100
	}
	return o
}

// Engine orchestrates CRUD for a single Meta against a Store: hook chain,
// type coercion, reference resolution, referential-integrity enforcement,
// and lifecycle hooks. It operates on meta-described map[string]any
// documents rather than compile-time Go structs, since one Engine serves
// whatever entity its bound Meta describes.
type Engine struct {
	store  Store
	meta   *Meta
	metas  *MetaRegistry
	roles  *RoleRegistry
	logger Logger
	opts   EngineOptions
}

// NewEngine builds an Engine bound to meta, backed by store, resolving
// references and cascades through metas (which must contain meta itself).
func NewEngine(store Store, meta *Meta, metas *MetaRegistry, roles *RoleRegistry, opts EngineOptions) *Engine {
	return &Engine{
		store:  store,
		meta:   meta,
		metas:  metas,
		roles:  roles,
		logger: noopLogger{},
		opts:   opts.withDefaults(),
	}
}

// WithLogger returns a copy of the engine using l for ambient logging.
func (e *Engine) WithLogger(l Logger) *Engine {
	cp := *e
	cp.logger = l
	return &cp
}

func (e *Engine) withMeta(m *Meta) *Engine {
	cp := *e
	cp.meta = m
	return &cp
}

func (e *Engine) logf(format string, err error, kv ...any) {
	if err != nil {
		e.logger.Errorw(format, append([]any{"error", err}, kv...)...)
	}
}

// fieldAllowedForView reports whether f may be supplied/read under the
// requested form-view — "*" on either side means unrestricted.
func fieldAllowedForView(f Field, view string) bool {
	return view == "" || view == "*" || f.View == "" || f.View == "*" || f.View == view
}

// coerceStrict implements the "strict create" conversion mode: for each
// named field with HasValue(raw), coerce it; names of failures are
// collected separately so the caller can return INVALID_PARAMS with the
// exact offending fields.
func (e *Engine) coerceStrict(fieldNames []string, params map[string]any, view string) (obj map[string]any, failures []string) {
	obj = make(map[string]any)
	for _, name := range fieldNames {
		field := e.meta.FieldsMap[name]
		if field == nil || !fieldAllowedForView(*field, view) {
			continue
		}
		raw, present := params[name]
		if !present || !HasValue(raw) {
			continue
		}
		typ, ok := GetType(field.typeName())
		if !ok {
			failures = append(failures, name)
			continue
		}
		value, err := typ.Convert(raw)
		if err != nil {
			failures = append(failures, name)
			continue
		}
		obj[name] = value
	}
	return obj, failures
}

// coerceUpdatePreserving implements the "update-preserving" conversion
// mode: a present-but-empty value becomes an explicit empty-string clear
// rather than being dropped.
func (e *Engine) coerceUpdatePreserving(fieldNames []string, params map[string]any, view string) (obj map[string]any, failures []string) {
	obj = make(map[string]any)
	for _, name := range fieldNames {
		field := e.meta.FieldsMap[name]
		if field == nil || !fieldAllowedForView(*field, view) {
			continue
		}
		raw, present := params[name]
		if !present {
			continue
		}
		if !HasValue(raw) {
			obj[name] = ""
			continue
		}
		typ, ok := GetType(field.typeName())
		if !ok {
			failures = append(failures, name)
			continue
		}
		value, err := typ.Convert(raw)
		if err != nil {
			failures = append(failures, name)
			continue
		}
		obj[name] = value
	}
	return obj, failures
}

// Create allocates a new record.
func (e *Engine) Create(ctx context.Context, params map[string]any, view string) Result {
	return e.insertPipeline(ctx, e.meta.CreateFields, params, view,
		e.meta.BeforeCreate, e.meta.Create, e.meta.AfterCreate)
}

// Clone duplicates an existing record, applying overrides.
func (e *Engine) Clone(ctx context.Context, id ID, overrides map[string]any, view string) Result {
	src, err := e.store.FindOne(ctx, e.meta.Collection, bson.M{idKey: id.String()}, nil)
	if err != nil {
		e.logf("clone: fetch source failed", err)
		return errResult(CodeError, err.Error())
	}
	if src == nil {
		return errResult(CodeNotFound, "source record not found")
	}

	params := make(map[string]any, len(e.meta.CloneFields)+len(overrides))
	for _, name := range e.meta.CloneFields {
		if v, ok := src[name]; ok {
			params[name] = v
		}
	}
	for k, v := range overrides {
		params[k] = v
	}

	return e.insertPipeline(ctx, e.meta.CloneFields, params, view,
		e.meta.BeforeClone, e.meta.Clone, e.meta.AfterClone)
}

func (e *Engine) insertPipeline(
	ctx context.Context,
	fieldNames []string,
	params map[string]any,
	view string,
	before BeforeCreateHook,
	createHook CreateHook,
	after AfterCreateHook,
) Result {
	obj, failures := e.coerceStrict(fieldNames, params, view)
	if len(failures) > 0 {
		return errResult(CodeInvalidParams, failures)
	}

	if before != nil {
		if r := before(ctx, e, obj); !r.ok() {
			return fromHook(r)
		}
	}

	if missing := MissingRequired(obj, e.meta.RequiredFieldNames); len(missing) > 0 {
		return errResult(CodeNoParams, missing)
	}

	if pkQuery := PrimaryKeyQuery(obj, e.meta); pkQuery != nil {
		n, err := e.store.Count(ctx, e.meta.Collection, bson.M(pkQuery))
		if err != nil {
			e.logf("create: duplicate-key count failed", err)
			return errResult(CodeError, err.Error())
		}
		if n > 0 {
			return errResult(CodeDuplicateKey, "primary key already exists")
		}
	}

	if res := e.resolveRefs(ctx, obj, e.meta.RefFields); res != nil {
		return *res
	}

	var id ID
	if createHook != nil {
		var hr HookResult
		id, hr = createHook(ctx, e, obj)
		if !hr.ok() {
			return fromHook(hr)
		}
		if id == nil || id.IsZero() {
			return errResult(CodeError, "create hook did not allocate an id")
		}
	} else {
		stored, err := e.store.Insert(ctx, e.meta.Collection, obj)
		if err != nil {
			e.logf("create: insert failed", err)
			return errResult(CodeError, err.Error())
		}
		obj = stored
		if v, ok := stored[idKey]; ok {
			id = ParseID(stringify(v))
		}
		if id == nil || id.IsZero() {
			return errResult(CodeError, "store did not allocate an id")
		}
	}

	if after != nil {
		if r := after(ctx, e, id, obj); !r.ok() {
			return fromHook(r)
		}
	}

	return ok(dropSecure(e.meta, obj))
}

// Read fetches one record, projecting it to property_fields ∩ attrNames and
// expanding reference fields to their target's ref_label.
func (e *Engine) Read(ctx context.Context, id ID, attrNames []string, view string) Result {
	if id == nil || id.IsZero() {
		return errResult(CodeInvalidParams, "invalid id")
	}

	record, err := e.store.FindOne(ctx, e.meta.Collection, bson.M{idKey: id.String()}, nil)
	if err != nil {
		e.logf("read: findOne failed", err)
		return errResult(CodeError, err.Error())
	}
	if record == nil {
		return errResult(CodeNotFound, "record not found")
	}

	if e.meta.AfterRead != nil {
		if r := e.meta.AfterRead(ctx, e, id, attrNames, record); !r.ok() {
			return fromHook(r)
		}
	}

	projection := intersectFields(e.meta.PropertyFields, attrNames)
	projected := project(record, projection)
	e.expandRefs(ctx, projected, projection)
	return ok(projected)
}

// List returns a page of records matching search_params (or explicitQuery
// if supplied).
func (e *Engine) List(ctx context.Context, queryParams map[string]any, explicitQuery bson.M, searchParams map[string]any, role string) Result {
	granted, _, _ := EvaluateRole(e.roles, role, e.meta, "s", "*")
	if !granted {
		if role == "" {
			return errResult(CodeNoSession, "no session")
		}
		return errResult(CodeNoRights, "role cannot list this entity")
	}

	attrNames := splitAttrNames(stringify(queryParams["attr_names"]))
	projection := intersectFields(e.meta.ListFields, attrNames)

	page := parsePositiveInt(queryParams["page"], 1)
	limit := parsePositiveInt(queryParams["limit"], e.opts.DefaultListLimit)
	if limit > e.opts.DefaultListLimit {
		limit = e.opts.DefaultListLimit
	}

	sortBy := strings.Split(stringify(queryParams["sort_by"]), ",")
	desc := strings.Split(stringify(queryParams["desc"]), ",")
	var sortSpec []string
	for i, f := range sortBy {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		ascending := i < len(desc) && strings.TrimSpace(desc[i]) == "false"
		if ascending {
			sortSpec = append(sortSpec, f)
		} else {
			sortSpec = append(sortSpec, "-"+f)
		}
	}

	query := explicitQuery
	if query == nil {
		if e.meta.ListQuery != nil {
			transformed, err := e.meta.ListQuery(ctx, e, searchParams)
			if err != nil {
				return errResult(CodeInvalidParams, err.Error())
			}
			query = bson.M(transformed)
		} else {
			built, builtOK := BuildSearchQuery(ctx, e.meta, searchParams, e.refResolver(ctx))
			if !builtOK {
				return errResult(CodeInvalidParams, "entity has no search fields")
			}
			query = built
		}
	}

	total, err := e.store.Count(ctx, e.meta.Collection, query)
	if err != nil {
		e.logf("list: count failed", err)
		return errResult(CodeError, err.Error())
	}

	records, err := e.store.Find(ctx, e.meta.Collection, query, projection, FindOptions{
		Sort:  sortSpec,
		Skip:  (page - 1) * limit,
		Limit: limit,
	})
	if err != nil {
		e.logf("list: find failed", err)
		return errResult(CodeError, err.Error())
	}

	for _, rec := range records {
		e.expandRefs(ctx, rec, projection)
	}

	return Result{Code: CodeSuccess, Data: records, Total: total}
}

// Update modifies one record by id or, when id is nil, by the primary key
// fields in params.
func (e *Engine) Update(ctx context.Context, id ID, params map[string]any, view string) Result {
	obj, failures := e.coerceUpdatePreserving(e.meta.UpdateFields, params, view)
	if len(failures) > 0 {
		return errResult(CodeInvalidParams, failures)
	}

	if e.meta.BeforeUpdate != nil {
		if r := e.meta.BeforeUpdate(ctx, e, id, obj); !r.ok() {
			return fromHook(r)
		}
	}

	query, qerr := e.recordQuery(id, params)
	if qerr != nil {
		return errResult(CodeInvalidParams, qerr.Error())
	}

	n, err := e.store.Count(ctx, e.meta.Collection, query)
	if err != nil {
		e.logf("update: count failed", err)
		return errResult(CodeError, err.Error())
	}
	if n == 0 {
		return errResult(CodeNotFound, "record not found")
	}
	if n > 1 {
		return errResult(CodeInvalidParams, "query matched more than one record")
	}

	if res := e.resolveRefs(ctx, obj, intersectFields(e.meta.RefFields, e.meta.UpdateFields)); res != nil {
		return *res
	}

	if e.meta.Update != nil {
		if r := e.meta.Update(ctx, e, id, obj); !r.ok() {
			return fromHook(r)
		}
	} else {
		if _, err := e.store.Update(ctx, e.meta.Collection, query, obj, UpdateOptions{}); err != nil {
			e.logf("update: store update failed", err)
			return errResult(CodeError, err.Error())
		}
	}

	if e.meta.AfterUpdate != nil {
		if r := e.meta.AfterUpdate(ctx, e, id, obj); !r.ok() {
			return fromHook(r)
		}
	}

	return ok(nil)
}

// BatchUpdate applies the same update to every record named by ids, with
// no per-record uniqueness check.
func (e *Engine) BatchUpdate(ctx context.Context, ids []ID, params map[string]any, view string) Result {
	obj, failures := e.coerceUpdatePreserving(e.meta.UpdateFields, params, view)
	if len(failures) > 0 {
		return errResult(CodeInvalidParams, failures)
	}

	if res := e.resolveRefs(ctx, obj, intersectFields(e.meta.RefFields, e.meta.UpdateFields)); res != nil {
		return *res
	}

	idStrings := make([]any, len(ids))
	for i, id := range ids {
		idStrings[i] = id.String()
	}
	query := bson.M{idKey: bson.M{"$in": idStrings}}

	if e.meta.BatchUpdate != nil {
		if r := e.meta.BatchUpdate(ctx, e, ids, obj); !r.ok() {
			return fromHook(r)
		}
	} else {
		if _, err := e.store.Update(ctx, e.meta.Collection, query, obj, UpdateOptions{Multi: true}); err != nil {
			e.logf("batch_update: store update failed", err)
			return errResult(CodeError, err.Error())
		}
	}

	if e.meta.AfterBatchUpdate != nil {
		if r := e.meta.AfterBatchUpdate(ctx, e, ids, obj); !r.ok() {
			return fromHook(r)
		}
	}

	return ok(nil)
}

func (e *Engine) recordQuery(id ID, params map[string]any) (bson.M, error) {
	if id != nil && !id.IsZero() {
		return bson.M{idKey: id.String()}, nil
	}
	pk := PrimaryKeyQuery(params, e.meta)
	if pk == nil {
		return nil, errMalformedQuery
	}
	return bson.M(pk), nil
}

var errMalformedQuery = errors.New("metaentity: cannot build a query from id or primary keys")

// resolveRefs resolves each ref field present in obj against its target
// entity's ref_label or identifier, composed with the target's ref_filter.
// It returns nil on success or a non-nil *Result on the first
// REF_NOT_FOUND/REF_NOT_UNIQUE failure.
func (e *Engine) resolveRefs(ctx context.Context, obj map[string]any, refFields []string) *Result {
	for _, name := range refFields {
		raw, present := obj[name]
		if !present || !HasValue(raw) {
			continue
		}
		field := e.meta.FieldsMap[name]
		if field == nil || field.Ref == "" {
			continue
		}
		target, ok := e.metas.Get(field.Ref)
		if !ok {
			r := errResult(CodeError, "ref target not registered: "+field.Ref)
			return &r
		}

		values, isSlice := normalizeToSlice(raw)
		resolved := make([]any, len(values))
		for i, v := range values {
			el := stringify(v)
			query := composeRefFilter(target)
			query["$or"] = []bson.M{{idKey: el}, {target.RefLabel: el}}
			matches, err := e.store.Find(ctx, target.Collection, query, []string{idKey}, FindOptions{Limit: 2})
			if err != nil {
				r := errResult(CodeError, err.Error())
				return &r
			}
			switch len(matches) {
			case 0:
				r := errResult(CodeRefNotFound, name)
				return &r
			case 1:
				resolved[i] = stringify(matches[0][idKey])
			default:
				r := errResult(CodeRefNotUnique, name)
				return &r
			}
		}

		if isSlice {
			obj[name] = resolved
		} else {
			obj[name] = resolved[0]
		}
	}
	return nil
}

// refResolver adapts resolveRefs's single-field lookup machinery to the
// RefValueResolver shape the query builder needs for reference-field
// search.
func (e *Engine) refResolver(ctx context.Context) RefValueResolver {
	return func(_ context.Context, refCollection string, rawValues []string) ([]string, error) {
		target, ok := e.metas.Get(refCollection)
		if !ok {
			return nil, ErrMetaNotFound
		}
		var resolved []string
		for _, v := range rawValues {
			query := composeRefFilter(target)
			query["$or"] = []bson.M{{idKey: v}, {target.RefLabel: v}}
			matches, err := e.store.Find(ctx, target.Collection, query, []string{idKey}, FindOptions{})
			if err != nil {
				return nil, err
			}
			for _, m := range matches {
				resolved = append(resolved, stringify(m[idKey]))
			}
		}
		return resolved, nil
	}
}

// expandRefs replaces each ref field present in record (and named in
// projection) with its target's ref_label value(s), for read/list
// reference expansion. An id that no longer resolves silently yields
// no value for that element, implemented as dropping the unresolved
// element (or the whole field, if single-valued). It also populates each
// link field (never stored on the record itself) by following the
// sibling ref field's id and copying the referenced entity's matching
// field value.
func (e *Engine) expandRefs(ctx context.Context, record map[string]any, projection []string) {
	inProjection := map[string]bool{}
	for _, p := range projection {
		inProjection[p] = true
	}
	// Link fields resolve first: they read the sibling ref field's stored
	// id, which the ref-expansion loop below overwrites with that target's
	// ref_label.
	for _, name := range e.meta.LinkFields {
		if len(projection) > 0 && !inProjection[name] {
			continue
		}
		field := e.meta.FieldsMap[name]
		sibling := e.meta.FieldsMap[field.Link]
		if sibling == nil || sibling.Ref == "" {
			continue
		}
		target, ok := e.metas.Get(sibling.Ref)
		if !ok {
			continue
		}
		siblingRaw, present := record[field.Link]
		if !present || !HasValue(siblingRaw) {
			delete(record, name)
			continue
		}
		id := stringify(siblingRaw)
		found, err := e.store.FindOne(ctx, target.Collection, bson.M{idKey: id}, []string{name})
		if err != nil || found == nil {
			delete(record, name)
			continue
		}
		if v, ok := found[name]; ok && HasValue(v) {
			record[name] = v
		} else {
			delete(record, name)
		}
	}

	for _, name := range e.meta.RefFields {
		if len(projection) > 0 && !inProjection[name] {
			continue
		}
		raw, present := record[name]
		if !present || !HasValue(raw) {
			continue
		}
		field := e.meta.FieldsMap[name]
		target, ok := e.metas.Get(field.Ref)
		if !ok {
			continue
		}
		values, isSlice := normalizeToSlice(raw)
		var labels []any
		for _, v := range values {
			el := stringify(v)
			found, err := e.store.FindOne(ctx, target.Collection, bson.M{idKey: el}, []string{target.RefLabel})
			if err != nil || found == nil {
				continue
			}
			labels = append(labels, found[target.RefLabel])
		}
		if isSlice {
			record[name] = labels
		} else if len(labels) == 1 {
			record[name] = labels[0]
		} else {
			delete(record, name)
		}
	}
}

func composeRefFilter(meta *Meta) bson.M {
	q := bson.M{}
	for k, v := range meta.RefFilter {
		q[k] = v
	}
	return q
}

func normalizeToSlice(raw any) ([]any, bool) {
	switch v := raw.(type) {
	case []any:
		return v, true
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, true
	default:
		return []any{v}, false
	}
}

func intersectFields(allowed, requested []string) []string {
	if len(requested) == 0 {
		return append([]string(nil), allowed...)
	}
	for _, r := range requested {
		if r == "*" {
			return append([]string(nil), allowed...)
		}
	}
	allowedSet := map[string]bool{}
	for _, a := range allowed {
		allowedSet[a] = true
	}
	var out []string
	for _, r := range requested {
		if allowedSet[r] {
			out = append(out, r)
		}
	}
	return out
}

func splitAttrNames(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

func parsePositiveInt(raw any, def int64) int64 {
	f, err := toFloat(raw)
	if err != nil || f <= 0 {
		return def
	}
	return int64(f)
}

func project(record map[string]any, fields []string) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := record[f]; ok {
			out[f] = v
		}
	}
	if id, ok := record[idKey]; ok {
		out[idKey] = id
	}
	return out
}

func dropSecure(meta *Meta, record map[string]any) map[string]any {
	out := make(map[string]any, len(record))
	for k, v := range record {
		if f := meta.FieldsMap[k]; f != nil && f.Secure {
			continue
		}
		out[k] = v
	}
	return out
}

// Delete removes ids and cascades per each referencing field's DeleteMode,
// It computes the whole impact set across every meta reachable
// through the reference graph's back-edges before deleting anything: if any
// entity along the way is blocked (a referencing field with neither keep
// nor cascade), the whole call fails with HAS_REF and nothing is removed.
func (e *Engine) Delete(ctx context.Context, ids []ID) Result {
	if e.meta.BeforeDelete != nil {
		if r := e.meta.BeforeDelete(ctx, e, ids); !r.ok() {
			return fromHook(r)
		}
	}

	type visitKey struct{ collection, id string }
	visited := map[visitKey]bool{}
	toDelete := map[string][]ID{}
	var order []string
	blocked := map[string]bool{}

	var process func(collection string, candidateIDs []ID)
	process = func(collection string, candidateIDs []ID) {
		meta, ok := e.metas.Get(collection)
		if !ok || len(candidateIDs) == 0 {
			return
		}
		var fresh []ID
		for _, id := range candidateIDs {
			k := visitKey{collection, id.String()}
			if visited[k] {
				continue
			}
			visited[k] = true
			fresh = append(fresh, id)
		}
		if len(fresh) == 0 {
			return
		}
		if _, seen := toDelete[collection]; !seen {
			order = append(order, collection)
		}
		toDelete[collection] = append(toDelete[collection], fresh...)

		idStrs := make([]any, len(fresh))
		for i, id := range fresh {
			idStrs[i] = id.String()
		}

		for refCollection := range meta.RefByMetas {
			refMeta, ok := e.metas.Get(refCollection)
			if !ok {
				continue
			}
			for _, refField := range refMeta.Fields {
				if refField.Ref != collection {
					continue
				}
				query := bson.M{refField.Name: bson.M{"$in": idStrs}}
				matches, err := e.store.Find(ctx, refMeta.Collection, query, []string{idKey}, FindOptions{})
				if err != nil || len(matches) == 0 {
					continue
				}
				switch refField.Delete {
				case DeleteCascade:
					childIDs := make([]ID, 0, len(matches))
					for _, m := range matches {
						childIDs = append(childIDs, ParseID(stringify(m[idKey])))
					}
					process(refMeta.Collection, childIDs)
				case DeleteKeep:
					// referencing records survive with a now-dangling reference.
				default:
					for _, id := range fresh {
						blocked[collection+":"+id.String()] = true
					}
				}
			}
		}
	}

	process(e.meta.Collection, ids)

	if len(blocked) > 0 {
		blockedList := make([]string, 0, len(blocked))
		for k := range blocked {
			blockedList = append(blockedList, k)
		}
		sort.Strings(blockedList)
		return errResult(CodeHasRef, blockedList)
	}

	for i := len(order) - 1; i >= 0; i-- {
		collection := order[i]
		meta, _ := e.metas.Get(collection)
		idsToRemove := toDelete[collection]
		idStrs := make([]any, len(idsToRemove))
		for i, id := range idsToRemove {
			idStrs[i] = id.String()
		}
		query := bson.M{idKey: bson.M{"$in": idStrs}}

		if meta.Delete != nil {
			if r := meta.Delete(ctx, e.withMeta(meta), idsToRemove); !r.ok() {
				return fromHook(r)
			}
		} else if _, err := e.store.Remove(ctx, collection, query); err != nil {
			e.logf("delete: store remove failed", err)
			return errResult(CodeError, err.Error())
		}
	}

	if e.meta.AfterDelete != nil {
		if r := e.meta.AfterDelete(ctx, e, ids); !r.ok() {
			return fromHook(r)
		}
	}

	return ok(nil)
}

// MetaDescribe returns the projection of meta's fields a client with role
// and view may see. Grants follow the same role
// evaluation as any other operation.
func MetaDescribe(roles *RoleRegistry, meta *Meta, view, role string) (fields []Field, granted bool) {
	granted, _, _ := EvaluateRole(roles, role, meta, "r", view)
	if !granted {
		return nil, false
	}
	clientVisible := map[string]bool{}
	for _, name := range meta.ClientFields {
		clientVisible[name] = true
	}
	for _, f := range meta.Fields {
		if !clientVisible[f.Name] {
			continue
		}
		if !fieldAllowedForView(f, view) {
			continue
		}
		fields = append(fields, f)
	}
	return fields, true
}
