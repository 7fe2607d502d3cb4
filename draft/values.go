package draft

import (
	"encoding/json"
	"math"

	"github.com/mbolis/lead-scorer/errs"
)

// Field values arrive decoded from JSON, so numbers are usually float64.

func asString(field Field, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", errs.Validationf("draft.value", "%s must be a string", field)
	}
	return s, nil
}

func asInt(field Field, v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		if n >= math.MinInt32 && n <= math.MaxInt32 {
			return int(n), nil
		}
	case float64:
		if n == math.Trunc(n) && n >= math.MinInt32 && n <= math.MaxInt32 {
			return int(n), nil
		}
	case json.Number:
		i, err := n.Int64()
		if err == nil && i >= math.MinInt32 && i <= math.MaxInt32 {
			return int(i), nil
		}
	}
	return 0, errs.Validationf("draft.value", "%s must be an integer", field)
}

func asBool(field Field, v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, errs.Validationf("draft.value", "%s must be a boolean", field)
	}
	return b, nil
}

func unknownField(code string, field Field) error {
	return errs.Validationf(code, "unknown field %q", field)
}
