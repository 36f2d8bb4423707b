package metaentity

// Code is the stable result-code enum used by callers for UI dispatch, in
// place of an arbitrary Go error.
type Code string

const (
	CodeSuccess       Code = "SUCCESS"
	CodeError         Code = "ERROR"
	CodeNoParams      Code = "NO_PARAMS"
	CodeInvalidParams Code = "INVALID_PARAMS"
	CodeDuplicateKey  Code = "DUPLICATE_KEY"
	CodeNotFound      Code = "NOT_FOUND"
	CodeRefNotFound   Code = "REF_NOT_FOUND"
	CodeRefNotUnique  Code = "REF_NOT_UNIQUE"
	CodeHasRef        Code = "HAS_REF"
	CodeNoSession     Code = "NO_SESSION"
	CodeNoRights      Code = "NO_RIGHTS"
)

// Result is the uniform return shape of every operation on Engine: {code,
// err?, data?, total?}. Err is either a string (a freeform explanation) or
// a []string of offending field names.
type Result struct {
	Code  Code
	Err   any
	Data  any
	Total int64
}

func ok(data any) Result                 { return Result{Code: CodeSuccess, Data: data} }
func errResult(code Code, err any) Result { return Result{Code: code, Err: err} }

func fromHook(r HookResult) Result { return Result{Code: r.Code, Err: r.Err} }
