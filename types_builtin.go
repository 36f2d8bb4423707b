package metaentity

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher is applied by the "password" built-in type to turn a raw
// client-supplied password into the opaque value actually stored. It
// defaults to bcrypt at the default cost; callers may override it (e.g. to
// change cost, or swap algorithms) before any metas using the password type
// are exercised.
var PasswordHasher = func(raw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

var (
	timeOfDayPattern = regexp.MustCompile(`^(0?\d|1\d|2[0-3]):[0-5]\d(:[0-5]\d)?$`)
	phonePattern     = regexp.MustCompile(`^\+?[0-9()\-.\s]{7,20}$`)
)

func newDefaultTypeRegistry() *TypeRegistry {
	r := NewTypeRegistry()
	registerBuiltinTypes(r)
	return r
}

// registerBuiltinTypes installs the standard set of value types the engine
// ships with out of the box.
func registerBuiltinTypes(r *TypeRegistry) {
	r.RegisterType("obj", convertObj)
	r.RegisterType("string", convertString)
	r.RegisterType("lstr", convertStringNoTrim)
	r.RegisterType("text", convertStringNoTrim)
	r.RegisterType("date", convertStringNoTrim)
	r.RegisterType("enum", convertStringNoTrim)
	r.RegisterType("log_category", convertStringNoTrim)

	r.RegisterType("boolean", convertBoolean)

	r.RegisterType("int", convertInt)
	r.RegisterType("uint", convertUint)
	r.RegisterType("number", convertNumber)

	r.RegisterType("float", convertFloat)
	r.RegisterType("percentage", convertFloat)
	r.RegisterType("ufloat", convertUfloat)

	r.RegisterType("decimal", convertDecimal)
	r.RegisterType("currency", convertDecimal)

	r.RegisterType("datetime", convertDatetime)
	r.RegisterType("time", convertTimeOfDay)

	r.RegisterType("email", convertEmail)
	r.RegisterType("url", convertURL)
	r.RegisterType("phone", convertPhone)
	r.RegisterType("uuid", convertUUID)
	r.RegisterType("color", convertColor)
	r.RegisterType("ip_address", convertIPAddress)

	r.RegisterType("array", convertArray)
	r.RegisterType("json", convertJSON)
	r.RegisterType("slug", convertSlug)

	r.RegisterType("age", convertAge)
	r.RegisterType("gender", convertGender)
	r.RegisterType("log_level", convertLogLevel)

	r.RegisterType("password", convertPassword)
	r.RegisterType("file", convertObj)
}

func stringify(raw any) string {
	if raw == nil {
		return ""
	}
	if s, ok := raw.(string); ok {
		return s
	}
	if st, ok := raw.(fmt.Stringer); ok {
		return st.String()
	}
	return fmt.Sprintf("%v", raw)
}

func convertObj(raw any) (any, error) { return raw, nil }

func convertString(raw any) (any, error) {
	return strings.TrimSpace(stringify(raw)), nil
}

func convertStringNoTrim(raw any) (any, error) {
	if raw == nil {
		return "", nil
	}
	return stringify(raw), nil
}

func convertBoolean(raw any) (any, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		switch v {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
	}
	return nil, fmt.Errorf("metaentity: %v is not a valid boolean", raw)
}

func toFloat(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, fmt.Errorf("metaentity: empty numeric value")
		}
		return strconv.ParseFloat(s, 64)
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("metaentity: %v is not a number", raw)
}

func convertNumber(raw any) (any, error) {
	f, err := toFloat(raw)
	if err != nil {
		return nil, err
	}
	if isInfOrNaN(f) {
		return nil, fmt.Errorf("metaentity: %v is not a finite number", raw)
	}
	return f, nil
}

func isInfOrNaN(f float64) bool {
	return f != f || f > maxFinite || f < -maxFinite
}

const maxFinite = 1.7976931348623157e+308

func convertInt(raw any) (any, error) {
	f, err := toFloat(raw)
	if err != nil {
		return nil, err
	}
	if f != float64(int64(f)) {
		return nil, fmt.Errorf("metaentity: %v is not an integer", raw)
	}
	return int64(f), nil
}

func convertUint(raw any) (any, error) {
	i, err := convertInt(raw)
	if err != nil {
		return nil, err
	}
	if i.(int64) < 0 {
		return nil, fmt.Errorf("metaentity: %v must be >= 0", raw)
	}
	return i, nil
}

func roundHalfUp2(f float64) float64 {
	d := decimal.NewFromFloat(f).Round(2)
	out, _ := d.Float64()
	return out
}

func convertFloat(raw any) (any, error) {
	f, err := toFloat(raw)
	if err != nil {
		return nil, err
	}
	return roundHalfUp2(f), nil
}

func convertUfloat(raw any) (any, error) {
	f, err := convertFloat(raw)
	if err != nil {
		return nil, err
	}
	if f.(float64) < 0 {
		return nil, fmt.Errorf("metaentity: %v must be >= 0", raw)
	}
	return f, nil
}

func convertDecimal(raw any) (any, error) {
	switch v := raw.(type) {
	case decimal.Decimal:
		return v, nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("metaentity: %v is not a decimal: %w", raw, err)
		}
		return d, nil
	default:
		f, err := toFloat(raw)
		if err != nil {
			return nil, err
		}
		if isInfOrNaN(f) {
			return nil, fmt.Errorf("metaentity: %v is not a finite number", raw)
		}
		return decimal.NewFromFloat(f), nil
	}
}

// datetimeLayouts are tried in order when coercing a string into an instant.
var datetimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func convertDatetime(raw any) (any, error) {
	switch v := raw.(type) {
	case time.Time:
		return v.UTC().Format(time.RFC3339), nil
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range datetimeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC().Format(time.RFC3339), nil
			}
		}
		return nil, fmt.Errorf("metaentity: %q is not a parseable instant", v)
	case int64:
		return time.Unix(v, 0).UTC().Format(time.RFC3339), nil
	case float64:
		return time.Unix(int64(v), 0).UTC().Format(time.RFC3339), nil
	}
	return nil, fmt.Errorf("metaentity: %v is not a parseable instant", raw)
}

func convertTimeOfDay(raw any) (any, error) {
	s := stringify(raw)
	if !timeOfDayPattern.MatchString(s) {
		return nil, fmt.Errorf("metaentity: %q is not a valid time of day", s)
	}
	return s, nil
}

func convertEmail(raw any) (any, error) {
	s := stringify(raw)
	if !govalidator.IsEmail(s) {
		return nil, fmt.Errorf("metaentity: %q is not a valid email", s)
	}
	return s, nil
}

func convertURL(raw any) (any, error) {
	s := stringify(raw)
	if !govalidator.IsURL(s) {
		return nil, fmt.Errorf("metaentity: %q is not a valid url", s)
	}
	return s, nil
}

func convertPhone(raw any) (any, error) {
	s := stringify(raw)
	if !phonePattern.MatchString(s) {
		return nil, fmt.Errorf("metaentity: %q is not a valid phone number", s)
	}
	return s, nil
}

func convertUUID(raw any) (any, error) {
	s := stringify(raw)
	if !govalidator.IsUUID(s) {
		return nil, fmt.Errorf("metaentity: %q is not a valid uuid", s)
	}
	return strings.ToLower(s), nil
}

func convertColor(raw any) (any, error) {
	s := stringify(raw)
	if !govalidator.IsHexcolor(s) {
		return nil, fmt.Errorf("metaentity: %q is not a valid color", s)
	}
	return s, nil
}

func convertIPAddress(raw any) (any, error) {
	s := stringify(raw)
	if !govalidator.IsIP(s) {
		return nil, fmt.Errorf("metaentity: %q is not a valid ip address", s)
	}
	return s, nil
}

func convertArray(raw any) (any, error) {
	switch v := raw.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return []any{}, nil
		}
		parts := strings.Split(v, ",")
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = strings.TrimSpace(p)
		}
		return out, nil
	case []any:
		return v, nil
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, nil
	}
	return nil, fmt.Errorf("metaentity: %v is not an array", raw)
}

func convertJSON(raw any) (any, error) {
	switch v := raw.(type) {
	case nil, map[string]any, []any, bool, float64:
		return v, nil
	case string:
		var out any
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return nil, fmt.Errorf("metaentity: invalid json: %w", err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("metaentity: %v is not valid json", raw)
}

func convertSlug(raw any) (any, error) {
	s := stringify(raw)
	return slug.MakeLang(s, "en"), nil
}

func convertAge(raw any) (any, error) {
	i, err := convertInt(raw)
	if err != nil {
		return nil, err
	}
	v := i.(int64)
	if v < 0 || v > 200 {
		return nil, fmt.Errorf("metaentity: age %d out of range [0,200]", v)
	}
	return v, nil
}

func convertGender(raw any) (any, error) {
	i, err := convertInt(raw)
	if err != nil {
		return nil, err
	}
	v := i.(int64)
	if v != 0 && v != 1 {
		return nil, fmt.Errorf("metaentity: gender %d out of range {0,1}", v)
	}
	return v, nil
}

func convertLogLevel(raw any) (any, error) {
	i, err := convertInt(raw)
	if err != nil {
		return nil, err
	}
	v := i.(int64)
	if v < 0 || v > 3 {
		return nil, fmt.Errorf("metaentity: log_level %d out of range {0,1,2,3}", v)
	}
	return v, nil
}

func convertPassword(raw any) (any, error) {
	s := stringify(raw)
	return PasswordHasher(s)
}
