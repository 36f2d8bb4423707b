package metaentity

import (
	"fmt"
	"strings"
	"sync"
)

// Role is a registered user role. Root roles bypass per-entity role entries
// entirely and see everything.
type Role struct {
	Name string
	Root bool
}

// RoleRegistry is the process-wide set of registered roles, consulted by
// ValidateAllMetas (role names must be registered) and by the role
// evaluator (root detection).
type RoleRegistry struct {
	mu    sync.RWMutex
	roles map[string]Role
}

// NewRoleRegistry creates an empty role registry.
func NewRoleRegistry() *RoleRegistry {
	return &RoleRegistry{roles: make(map[string]Role)}
}

// Register adds or replaces a role.
func (r *RoleRegistry) Register(role Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roles[role.Name] = role
}

// Get looks up a role by name.
func (r *RoleRegistry) Get(name string) (Role, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	role, ok := r.roles[name]
	return role, ok
}

// HasAny reports whether any role has been registered.
func (r *RoleRegistry) HasAny() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.roles) > 0
}

var defaultRoleRegistry = NewRoleRegistry()

// RegisterRole registers role on the process-wide role registry.
func RegisterRole(role Role) { defaultRoleRegistry.Register(role) }

// GetRole looks up name on the process-wide role registry.
func GetRole(name string) (Role, bool) { return defaultRoleRegistry.Get(name) }

// parseRoleEntry splits a "role:mode" or "role:mode:view" entry into its
// parts. view defaults to "*" when omitted.
func parseRoleEntry(entry string) (role, mode, view string, err error) {
	parts := strings.SplitN(entry, ":", 3)
	if len(parts) < 2 {
		return "", "", "", fmt.Errorf("malformed role entry %q: want role:mode or role:mode:view", entry)
	}
	role, mode = parts[0], parts[1]
	view = "*"
	if len(parts) == 3 {
		view = parts[2]
	}
	if role == "" || mode == "" {
		return "", "", "", fmt.Errorf("malformed role entry %q: role and mode must be non-empty", entry)
	}
	return role, mode, view, nil
}

// EvaluateRole decides access for the current user's role name (empty
// string for "no session") against the target meta, the requested
// single-letter mode, and the requested view. It returns whether access is
// granted and, if so, the effective (mode, view) pair used to further
// restrict the operation's field projection.
func EvaluateRole(roles *RoleRegistry, userRole string, meta *Meta, mode, view string) (granted bool, effectiveMode, effectiveView string) {
	if roles == nil || !roles.HasAny() {
		return true, meta.Mode, "*"
	}
	if userRole == "" {
		return false, "", ""
	}
	role, ok := roles.Get(userRole)
	if !ok {
		return false, "", ""
	}
	if role.Root {
		return true, meta.Mode, "*"
	}
	for _, entry := range meta.Roles {
		entryRole, entryMode, entryView, err := parseRoleEntry(entry)
		if err != nil || entryRole != userRole {
			continue
		}
		if entryMode == "*" {
			entryMode = meta.Mode
		}
		modeOK := strings.ContainsAny(mode, entryMode)
		viewOK := entryView == "*" || strings.Contains(entryView, view)
		return modeOK && viewOK, entryMode, entryView
	}
	return false, "", ""
}
