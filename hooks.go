package metaentity

import "context"

// HookResult is what a lifecycle hook returns. A non-success Code
// short-circuits the operation; Code and Err propagate to the caller
// unchanged.
type HookResult struct {
	Code Code
	Err  any
}

// ok reports whether the hook result permits the operation to continue. A
// zero-value HookResult (the common case — most hooks just return success)
// counts as success.
func (r HookResult) ok() bool { return r.Code == "" || r.Code == CodeSuccess }

// Success is the zero-effort "continue" result a hook returns when it has
// nothing to object to.
var Success = HookResult{Code: CodeSuccess}

// Hooks are first-class function values rather than a single reflected
// callback type: a small set of named function types, one slot per
// lifecycle point, set directly on MetaDef.
type (
	// BeforeCreateHook runs before a create/clone is validated further.
	BeforeCreateHook func(ctx context.Context, e *Engine, obj map[string]any) HookResult
	// CreateHook, when set, replaces the engine's direct store insert.
	CreateHook func(ctx context.Context, e *Engine, obj map[string]any) (ID, HookResult)
	// AfterCreateHook runs after a successful create/clone insert.
	AfterCreateHook func(ctx context.Context, e *Engine, id ID, obj map[string]any) HookResult

	// BeforeUpdateHook runs before a single-record update is applied;
	// BatchUpdate does not call it.
	BeforeUpdateHook func(ctx context.Context, e *Engine, id ID, obj map[string]any) HookResult
	// UpdateHook, when set, replaces the engine's direct store update for
	// a single-record update.
	UpdateHook func(ctx context.Context, e *Engine, id ID, obj map[string]any) HookResult
	// AfterUpdateHook runs after a successful single-record update.
	AfterUpdateHook func(ctx context.Context, e *Engine, id ID, obj map[string]any) HookResult

	// BatchUpdateHook, when set, replaces the engine's direct store update
	// for a batch_update call.
	BatchUpdateHook func(ctx context.Context, e *Engine, ids []ID, obj map[string]any) HookResult
	// AfterBatchUpdateHook runs after a successful batch_update.
	AfterBatchUpdateHook func(ctx context.Context, e *Engine, ids []ID, obj map[string]any) HookResult

	// AfterReadHook runs after a successful read, before reference
	// expansion.
	AfterReadHook func(ctx context.Context, e *Engine, id ID, attrNames []string, record map[string]any) HookResult

	// BeforeDeleteHook runs before the referential-integrity impact-set
	// computation.
	BeforeDeleteHook func(ctx context.Context, e *Engine, ids []ID) HookResult
	// DeleteHook, when set, replaces the engine's direct store removal for
	// one entity's share of a cascade-delete.
	DeleteHook func(ctx context.Context, e *Engine, ids []ID) HookResult
	// AfterDeleteHook runs after the whole delete (including any cascade)
	// completes, for the originally-targeted entity only.
	AfterDeleteHook func(ctx context.Context, e *Engine, ids []ID) HookResult

	// ListQueryHook optionally transforms or replaces the query list()
	// would otherwise build from search_params.
	ListQueryHook func(ctx context.Context, e *Engine, params map[string]any) (map[string]any, error)
)
