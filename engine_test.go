package metaentity_test

import (
	"context"
	"fmt"
	"testing"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/entkit/metaentity"
	"github.com/entkit/metaentity/memstore"
)

func newHarness() (*metaentity.MetaRegistry, *metaentity.RoleRegistry, *memstore.Store) {
	return metaentity.NewMetaRegistry(), metaentity.NewRoleRegistry(), memstore.New()
}

func mustRegister(t *testing.T, metas *metaentity.MetaRegistry, def metaentity.MetaDef) *metaentity.Meta {
	t.Helper()
	m, err := metas.Register(def)
	if err != nil {
		t.Fatalf("Register(%s): %v", def.Collection, err)
	}
	return m
}

func TestCreateResolvesRefByLabel(t *testing.T) {
	ctx := context.Background()
	metas, roles, store := newHarness()

	roleMeta := mustRegister(t, metas, metaentity.MetaDef{
		Collection:  "role_seven",
		PrimaryKeys: []string{"name"},
		RefLabel:    "name",
		Fields:      []metaentity.Field{{Name: "name"}, {Name: "desc"}},
		Creatable:   true,
	})
	userMeta := mustRegister(t, metas, metaentity.MetaDef{
		Collection:  "user_entity_seven",
		PrimaryKeys: []string{"name"},
		Fields: []metaentity.Field{
			{Name: "name"},
			{Name: "age", Type: "int"},
			{Name: "role", Ref: "role_seven"},
		},
		Creatable: true,
	})
	if err := metas.ValidateAllMetas(roles); err != nil {
		t.Fatalf("ValidateAllMetas: %v", err)
	}

	roleEngine := metaentity.NewEngine(store, roleMeta, metas, roles, metaentity.EngineOptions{})
	userEngine := metaentity.NewEngine(store, userMeta, metas, roles, metaentity.EngineOptions{})

	if r := roleEngine.Create(ctx, map[string]any{"name": "role1"}, "*"); r.Code != metaentity.CodeSuccess {
		t.Fatalf("create role1: %+v", r)
	}
	if r := roleEngine.Create(ctx, map[string]any{"name": "role2", "desc": "role 2"}, "*"); r.Code != metaentity.CodeSuccess {
		t.Fatalf("create role2: %+v", r)
	}
	role1, _ := store.FindOne(ctx, "role_seven", bson.M{"name": "role1"}, nil)

	r := userEngine.Create(ctx, map[string]any{"name": "user1", "age": "10", "role": "role1"}, "*")
	if r.Code != metaentity.CodeSuccess {
		t.Fatalf("create user1: %+v", r)
	}
	data := r.Data.(map[string]any)
	if data["role"] != role1["_id"] {
		t.Errorf("stored role = %v, want %v", data["role"], role1["_id"])
	}

	n, err := store.Count(ctx, "user_entity_seven", bson.M{"name": "user1"})
	if err != nil || n != 1 {
		t.Fatalf("count(name=user1) = %d, %v", n, err)
	}
}

func TestCreateWithUnresolvableRef(t *testing.T) {
	ctx := context.Background()
	metas, roles, store := newHarness()

	roleMeta := mustRegister(t, metas, metaentity.MetaDef{
		Collection:  "role_seven",
		PrimaryKeys: []string{"name"},
		RefLabel:    "name",
		Fields:      []metaentity.Field{{Name: "name"}},
		Creatable:   true,
	})
	userMeta := mustRegister(t, metas, metaentity.MetaDef{
		Collection:  "user_entity_seven",
		PrimaryKeys: []string{"name"},
		Fields: []metaentity.Field{
			{Name: "name"},
			{Name: "age", Type: "int"},
			{Name: "role", Ref: "role_seven"},
		},
		Creatable: true,
	})
	if err := metas.ValidateAllMetas(roles); err != nil {
		t.Fatalf("ValidateAllMetas: %v", err)
	}

	roleEngine := metaentity.NewEngine(store, roleMeta, metas, roles, metaentity.EngineOptions{})
	userEngine := metaentity.NewEngine(store, userMeta, metas, roles, metaentity.EngineOptions{})
	roleEngine.Create(ctx, map[string]any{"name": "role1"}, "*")

	r := userEngine.Create(ctx, map[string]any{"name": "user3", "age": "20", "role": "rolef2"}, "*")
	if r.Code != metaentity.CodeRefNotFound {
		t.Fatalf("code = %v, want REF_NOT_FOUND", r.Code)
	}
}

func TestCreateDuplicatePrimaryKeyFails(t *testing.T) {
	ctx := context.Background()
	metas, roles, store := newHarness()

	meta := mustRegister(t, metas, metaentity.MetaDef{
		Collection:  "dup_key_entity",
		PrimaryKeys: []string{"name"},
		Fields:      []metaentity.Field{{Name: "name"}},
		Creatable:   true,
	})
	if err := metas.ValidateAllMetas(roles); err != nil {
		t.Fatalf("ValidateAllMetas: %v", err)
	}
	engine := metaentity.NewEngine(store, meta, metas, roles, metaentity.EngineOptions{})

	if r := engine.Create(ctx, map[string]any{"name": "user1"}, "*"); r.Code != metaentity.CodeSuccess {
		t.Fatalf("first create: %+v", r)
	}
	if r := engine.Create(ctx, map[string]any{"name": "user1"}, "*"); r.Code != metaentity.CodeDuplicateKey {
		t.Fatalf("second create code = %v, want DUPLICATE_KEY", r.Code)
	}
}

func deleteNineMetas(t *testing.T, metas *metaentity.MetaRegistry, userDelete metaentity.DeleteMode) (role, user, log *metaentity.Meta) {
	role = mustRegister(t, metas, metaentity.MetaDef{
		Collection:  "role_delete_nine",
		PrimaryKeys: []string{"name"},
		RefLabel:    "name",
		Fields:      []metaentity.Field{{Name: "name"}},
		Creatable:   true, Deleteable: true,
	})
	user = mustRegister(t, metas, metaentity.MetaDef{
		Collection:  "user_entity_delete_nine",
		PrimaryKeys: []string{"name"},
		RefLabel:    "name",
		Fields: []metaentity.Field{
			{Name: "name"},
			{Name: "role", Ref: "role_delete_nine", Delete: userDelete},
		},
		Creatable: true, Deleteable: true,
	})
	log = mustRegister(t, metas, metaentity.MetaDef{
		Collection:  "log_nine",
		PrimaryKeys: []string{"name"},
		Fields: []metaentity.Field{
			{Name: "name"},
			{Name: "user", Ref: "user_entity_delete_nine", Delete: metaentity.DeleteCascade},
		},
		Creatable: true, Deleteable: true,
	})
	return role, user, log
}

func TestDeleteCascadesThroughRefChain(t *testing.T) {
	ctx := context.Background()
	metas, roles, store := newHarness()
	roleMeta, userMeta, logMeta := deleteNineMetas(t, metas, metaentity.DeleteCascade)
	if err := metas.ValidateAllMetas(roles); err != nil {
		t.Fatalf("ValidateAllMetas: %v", err)
	}

	roleEngine := metaentity.NewEngine(store, roleMeta, metas, roles, metaentity.EngineOptions{})
	userEngine := metaentity.NewEngine(store, userMeta, metas, roles, metaentity.EngineOptions{})
	logEngine := metaentity.NewEngine(store, logMeta, metas, roles, metaentity.EngineOptions{})

	rRes := roleEngine.Create(ctx, map[string]any{"name": "role1"}, "*")
	roleID := rRes.Data.(map[string]any)["_id"].(string)
	uRes := userEngine.Create(ctx, map[string]any{"name": "user1", "role": "role1"}, "*")
	if uRes.Code != metaentity.CodeSuccess {
		t.Fatalf("create user: %+v", uRes)
	}
	if r := logEngine.Create(ctx, map[string]any{"name": "log1", "user": "user1"}, "*"); r.Code != metaentity.CodeSuccess {
		t.Fatalf("create log: %+v", r)
	}

	del := roleEngine.Delete(ctx, []metaentity.ID{metaentity.ParseID(roleID)})
	if del.Code != metaentity.CodeSuccess {
		t.Fatalf("delete role: %+v", del)
	}

	if n, _ := store.Count(ctx, "user_entity_delete_nine", bson.M{}); n != 0 {
		t.Errorf("count(user) = %d, want 0", n)
	}
	if n, _ := store.Count(ctx, "log_nine", bson.M{}); n != 0 {
		t.Errorf("count(log) = %d, want 0", n)
	}
	if n, _ := store.Count(ctx, "role_delete_nine", bson.M{}); n != 0 {
		t.Errorf("count(role) = %d, want 0", n)
	}
}

func TestDeleteKeepsThenDownstreamCascades(t *testing.T) {
	ctx := context.Background()
	metas, roles, store := newHarness()
	roleMeta, userMeta, logMeta := deleteNineMetas(t, metas, metaentity.DeleteKeep)
	if err := metas.ValidateAllMetas(roles); err != nil {
		t.Fatalf("ValidateAllMetas: %v", err)
	}

	roleEngine := metaentity.NewEngine(store, roleMeta, metas, roles, metaentity.EngineOptions{})
	userEngine := metaentity.NewEngine(store, userMeta, metas, roles, metaentity.EngineOptions{})
	logEngine := metaentity.NewEngine(store, logMeta, metas, roles, metaentity.EngineOptions{})

	rRes := roleEngine.Create(ctx, map[string]any{"name": "role1"}, "*")
	roleID := rRes.Data.(map[string]any)["_id"].(string)
	uRes := userEngine.Create(ctx, map[string]any{"name": "user1", "role": "role1"}, "*")
	userID := uRes.Data.(map[string]any)["_id"].(string)
	logEngine.Create(ctx, map[string]any{"name": "log1", "user": "user1"}, "*")

	if del := roleEngine.Delete(ctx, []metaentity.ID{metaentity.ParseID(roleID)}); del.Code != metaentity.CodeSuccess {
		t.Fatalf("delete role: %+v", del)
	}
	if n, _ := store.Count(ctx, "user_entity_delete_nine", bson.M{}); n != 1 {
		t.Errorf("count(user) after role delete = %d, want 1", n)
	}

	if del := userEngine.Delete(ctx, []metaentity.ID{metaentity.ParseID(userID)}); del.Code != metaentity.CodeSuccess {
		t.Fatalf("delete user: %+v", del)
	}
	if n, _ := store.Count(ctx, "log_nine", bson.M{}); n != 0 {
		t.Errorf("count(log) after user delete = %d, want 0", n)
	}
}

// Exercises list() with a comparison operator, a sys-field filter whose
// value is still absent from the projected output, a sort, pagination,
// and a ref-field filter together.
func TestListMixedComparisonAndRefFilters(t *testing.T) {
	ctx := context.Background()
	metas, roles, store := newHarness()

	roleMeta := mustRegister(t, metas, metaentity.MetaDef{
		Collection:  "role_six",
		PrimaryKeys: []string{"name"},
		RefLabel:    "name",
		Fields:      []metaentity.Field{{Name: "name"}},
		Creatable:   true,
	})
	userMeta := mustRegister(t, metas, metaentity.MetaDef{
		Collection:  "user_entity_six",
		PrimaryKeys: []string{"name"},
		Fields: []metaentity.Field{
			{Name: "name"},
			{Name: "age", Type: "int"},
			{Name: "status", Type: "boolean", Sys: true},
			{Name: "role", Ref: "role_six"},
		},
		Creatable: true, Readable: true,
	})
	if err := metas.ValidateAllMetas(roles); err != nil {
		t.Fatalf("ValidateAllMetas: %v", err)
	}

	roleEngine := metaentity.NewEngine(store, roleMeta, metas, roles, metaentity.EngineOptions{})
	adminRes := roleEngine.Create(ctx, map[string]any{"name": "admin"}, "*")
	adminID := adminRes.Data.(map[string]any)["_id"].(string)
	roleEngine.Create(ctx, map[string]any{"name": "user"}, "*")

	falseStatus := map[int]bool{8: true, 10: true}
	for i := 1; i <= 15; i++ {
		status := !falseStatus[i]
		store.Insert(ctx, "user_entity_six", map[string]any{
			"name":   fmt.Sprintf("user%d", i),
			"age":    int64(i + 9),
			"status": status,
			"role":   adminID,
		})
	}

	userEngine := metaentity.NewEngine(store, userMeta, metas, roles, metaentity.EngineOptions{})
	result := userEngine.List(ctx,
		map[string]any{"attr_names": "name,age", "page": "1", "limit": "5", "sort_by": "age", "desc": "false"},
		nil,
		map[string]any{"age": ">15", "status": "true", "role": "admin"},
		"",
	)
	if result.Code != metaentity.CodeSuccess {
		t.Fatalf("list: %+v", result)
	}
	if result.Total != 7 {
		t.Fatalf("total = %d, want 7", result.Total)
	}
	data := result.Data.([]map[string]any)
	if len(data) != 5 {
		t.Fatalf("len(data) = %d, want 5", len(data))
	}
	if data[0]["name"] != "user7" {
		t.Errorf("data[0].name = %v, want user7", data[0]["name"])
	}
	if data[0]["age"] != int64(16) {
		t.Errorf("data[0].age = %v, want 16", data[0]["age"])
	}
	if _, present := data[0]["status"]; present {
		t.Error("data[0] should not expose the sys field status")
	}
}

func TestRefFilterExcludesInactiveReferent(t *testing.T) {
	ctx := context.Background()
	metas, roles, store := newHarness()

	roleMeta := mustRegister(t, metas, metaentity.MetaDef{
		Collection:  "role_filtered_seven",
		PrimaryKeys: []string{"name"},
		RefLabel:    "name",
		RefFilter:   map[string]any{"status": true},
		Fields:      []metaentity.Field{{Name: "name"}, {Name: "status", Type: "boolean"}},
		Creatable:   true,
	})
	userMeta := mustRegister(t, metas, metaentity.MetaDef{
		Collection:  "user_filtered_seven",
		PrimaryKeys: []string{"name"},
		Fields: []metaentity.Field{
			{Name: "name"},
			{Name: "role", Ref: "role_filtered_seven"},
		},
		Creatable: true,
	})
	if err := metas.ValidateAllMetas(roles); err != nil {
		t.Fatalf("ValidateAllMetas: %v", err)
	}

	roleEngine := metaentity.NewEngine(store, roleMeta, metas, roles, metaentity.EngineOptions{})
	userEngine := metaentity.NewEngine(store, userMeta, metas, roles, metaentity.EngineOptions{})

	roleEngine.Create(ctx, map[string]any{"name": "active", "status": true}, "*")
	roleEngine.Create(ctx, map[string]any{"name": "inactive", "status": false}, "*")

	r1 := userEngine.Create(ctx, map[string]any{"name": "u1", "role": "inactive"}, "*")
	if r1.Code != metaentity.CodeRefNotFound {
		t.Fatalf("create with inactive ref: code = %v, want REF_NOT_FOUND", r1.Code)
	}
	r2 := userEngine.Create(ctx, map[string]any{"name": "u2", "role": "active"}, "*")
	if r2.Code != metaentity.CodeSuccess {
		t.Fatalf("create with active ref: %+v", r2)
	}
}

// HAS_REF — a ref field with no delete mode declared blocks deletion of its
// referent.
func TestDeleteBlockedByUndeclaredDeleteMode(t *testing.T) {
	ctx := context.Background()
	metas, roles, store := newHarness()

	roleMeta := mustRegister(t, metas, metaentity.MetaDef{
		Collection:  "blocking_role",
		PrimaryKeys: []string{"name"},
		RefLabel:    "name",
		Fields:      []metaentity.Field{{Name: "name"}},
		Creatable:   true, Deleteable: true,
	})
	userMeta := mustRegister(t, metas, metaentity.MetaDef{
		Collection:  "blocking_user",
		PrimaryKeys: []string{"name"},
		Fields: []metaentity.Field{
			{Name: "name"},
			{Name: "role", Ref: "blocking_role"},
		},
		Creatable: true,
	})
	if err := metas.ValidateAllMetas(roles); err != nil {
		t.Fatalf("ValidateAllMetas: %v", err)
	}

	roleEngine := metaentity.NewEngine(store, roleMeta, metas, roles, metaentity.EngineOptions{})
	userEngine := metaentity.NewEngine(store, userMeta, metas, roles, metaentity.EngineOptions{})

	rRes := roleEngine.Create(ctx, map[string]any{"name": "role1"}, "*")
	roleID := rRes.Data.(map[string]any)["_id"].(string)
	userEngine.Create(ctx, map[string]any{"name": "user1", "role": "role1"}, "*")

	del := roleEngine.Delete(ctx, []metaentity.ID{metaentity.ParseID(roleID)})
	if del.Code != metaentity.CodeHasRef {
		t.Fatalf("code = %v, want HAS_REF", del.Code)
	}
	if n, _ := store.Count(ctx, "blocking_role", bson.M{}); n != 1 {
		t.Error("nothing should have been deleted")
	}
}

// Read/update round trip, including explicit-empty-string clear semantics.
func TestReadUpdateRoundTrip(t *testing.T) {
	ctx := context.Background()
	metas, roles, store := newHarness()

	meta := mustRegister(t, metas, metaentity.MetaDef{
		Collection:  "widgets",
		PrimaryKeys: []string{"name"},
		Fields: []metaentity.Field{
			{Name: "name"},
			{Name: "label"},
			{Name: "secret", Secure: true},
		},
		Creatable: true, Readable: true, Updatable: true,
	})
	if err := metas.ValidateAllMetas(roles); err != nil {
		t.Fatalf("ValidateAllMetas: %v", err)
	}
	engine := metaentity.NewEngine(store, meta, metas, roles, metaentity.EngineOptions{})

	created := engine.Create(ctx, map[string]any{"name": "w1", "label": "first", "secret": "shh"}, "*")
	if created.Code != metaentity.CodeSuccess {
		t.Fatalf("create: %+v", created)
	}
	obj := created.Data.(map[string]any)
	if _, present := obj["secret"]; present {
		t.Error("secure field must not appear in the create response")
	}
	id := metaentity.ParseID(obj["_id"].(string))

	read := engine.Read(ctx, id, []string{"*"}, "*")
	if read.Code != metaentity.CodeSuccess {
		t.Fatalf("read: %+v", read)
	}
	rdata := read.Data.(map[string]any)
	if rdata["label"] != "first" {
		t.Fatalf("read label = %v, want first", rdata["label"])
	}

	upd := engine.Update(ctx, id, map[string]any{"label": ""}, "*")
	if upd.Code != metaentity.CodeSuccess {
		t.Fatalf("update: %+v", upd)
	}
	stored, _ := store.FindOne(ctx, "widgets", bson.M{"_id": id.String()}, nil)
	if stored["label"] != "" {
		t.Fatalf("expected explicit clear to store empty string, got %v", stored["label"])
	}
	if stored["name"] != "w1" {
		t.Fatalf("unrelated field name changed unexpectedly: %v", stored["name"])
	}
}

func TestBatchUpdateAppliesToEveryID(t *testing.T) {
	ctx := context.Background()
	metas, roles, store := newHarness()

	meta := mustRegister(t, metas, metaentity.MetaDef{
		Collection:  "batch_widgets",
		PrimaryKeys: []string{"name"},
		Fields:      []metaentity.Field{{Name: "name"}, {Name: "status"}},
		Creatable:   true, Updatable: true,
	})
	if err := metas.ValidateAllMetas(roles); err != nil {
		t.Fatalf("ValidateAllMetas: %v", err)
	}
	engine := metaentity.NewEngine(store, meta, metas, roles, metaentity.EngineOptions{})

	var ids []metaentity.ID
	for _, name := range []string{"a", "b", "c"} {
		r := engine.Create(ctx, map[string]any{"name": name}, "*")
		ids = append(ids, metaentity.ParseID(r.Data.(map[string]any)["_id"].(string)))
	}

	r := engine.BatchUpdate(ctx, ids, map[string]any{"status": "archived"}, "*")
	if r.Code != metaentity.CodeSuccess {
		t.Fatalf("batch_update: %+v", r)
	}
	n, _ := store.Count(ctx, "batch_widgets", bson.M{"status": "archived"})
	if n != 3 {
		t.Errorf("count(status=archived) = %d, want 3", n)
	}
}

func TestListRoleGateDeniesWithoutSession(t *testing.T) {
	ctx := context.Background()
	metas, roles, store := newHarness()
	roles.Register(metaentity.Role{Name: "admin"})

	meta := mustRegister(t, metas, metaentity.MetaDef{
		Collection: "gated_widgets",
		PrimaryKeys: []string{"name"},
		Fields:      []metaentity.Field{{Name: "name"}},
		Creatable:   true, Readable: true,
		Roles: []string{"admin:rs"},
	})
	if err := metas.ValidateAllMetas(roles); err != nil {
		t.Fatalf("ValidateAllMetas: %v", err)
	}
	engine := metaentity.NewEngine(store, meta, metas, roles, metaentity.EngineOptions{})

	r := engine.List(ctx, map[string]any{}, nil, map[string]any{}, "")
	if r.Code != metaentity.CodeNoSession {
		t.Fatalf("code = %v, want NO_SESSION", r.Code)
	}
}

func TestMetaDescribeExcludesSecureAndSysFields(t *testing.T) {
	metas, roles := metaentity.NewMetaRegistry(), metaentity.NewRoleRegistry()
	roles.Register(metaentity.Role{Name: "admin", Root: true})

	meta := mustRegister(t, metas, metaentity.MetaDef{
		Collection:  "describe_widgets",
		PrimaryKeys: []string{"name"},
		Fields: []metaentity.Field{
			{Name: "name"},
			{Name: "password", Secure: true},
			{Name: "created_at", Sys: true},
		},
		Creatable: true, Readable: true,
	})
	if err := metas.ValidateAllMetas(roles); err != nil {
		t.Fatalf("ValidateAllMetas: %v", err)
	}

	fields, granted := metaentity.MetaDescribe(roles, meta, "", "admin")
	if !granted {
		t.Fatal("expected admin to be granted describe access")
	}
	var names []string
	for _, f := range fields {
		names = append(names, f.Name)
	}
	for _, forbidden := range []string{"password", "created_at"} {
		for _, n := range names {
			if n == forbidden {
				t.Errorf("describe fields %v should not include %q", names, forbidden)
			}
		}
	}
	if len(names) != 1 || names[0] != "name" {
		t.Errorf("describe fields = %v, want [name]", names)
	}
}
