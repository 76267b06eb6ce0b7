package services

import (
	"math"
	"strconv"
	"strings"
)

// ToNumber coerces a heterogeneous external value into a float64. Returns nil
// for absent, non-finite or unparsable input; never panics, never returns NaN.
// Downstream blend math depends on distinguishing "value is zero" from
// "value is unknown", so nothing here defaults.
func ToNumber(v interface{}) *float64 {
	switch val := v.(type) {
	case nil:
		return nil
	case float64:
		return finite(val)
	case float32:
		return finite(float64(val))
	case int:
		return finite(float64(val))
	case int32:
		return finite(float64(val))
	case int64:
		return finite(float64(val))
	case uint:
		return finite(float64(val))
	case *float64:
		if val == nil {
			return nil
		}
		return finite(*val)
	case *int:
		if val == nil {
			return nil
		}
		return finite(float64(*val))
	case bool:
		// Booleans are not numbers; a caller wanting 0/1 should say so.
		return nil
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		return finite(parsed)
	default:
		return nil
	}
}

// ToBool coerces a heterogeneous external value into a bool. Accepts native
// booleans, 0/1, and the case-insensitive tokens true/t/1/yes and
// false/f/0/no. Anything else yields nil, not a default.
func ToBool(v interface{}) *bool {
	switch val := v.(type) {
	case nil:
		return nil
	case bool:
		b := val
		return &b
	case *bool:
		if val == nil {
			return nil
		}
		b := *val
		return &b
	case int:
		return intBool(int64(val))
	case int64:
		return intBool(val)
	case float64:
		if val == math.Trunc(val) {
			return intBool(int64(val))
		}
		return nil
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "t", "1", "yes":
			b := true
			return &b
		case "false", "f", "0", "no":
			b := false
			return &b
		}
		return nil
	default:
		return nil
	}
}

func finite(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func intBool(i int64) *bool {
	switch i {
	case 0:
		b := false
		return &b
	case 1:
		b := true
		return &b
	}
	return nil
}
