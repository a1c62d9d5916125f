package expr

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// compare orders two non-null values. Integers and floats compare with each
// other numerically; other types compare only with themselves.
func compare(a, b any) (int, error) {
	switch x := a.(type) {
	case int64:
		switch y := b.(type) {
		case int64:
			return cmp.Compare(x, y), nil
		case float64:
			return cmp.Compare(float64(x), y), nil
		}
	case float64:
		switch y := b.(type) {
		case float64:
			return cmp.Compare(x, y), nil
		case int64:
			return cmp.Compare(x, float64(y)), nil
		}
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), nil
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0, nil
			case !x:
				return -1, nil
			default:
				return 1, nil
			}
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y), nil
		}
	}
	return 0, TypeMismatchError{Left: a, Right: b}
}

// formatValue renders a literal in criteria syntax.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		s := strconv.FormatFloat(x, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eEnN") {
			s += ".0"
		}
		return s
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return "timestamp " + strconv.Quote(x.UTC().Format(time.RFC3339Nano))
	default:
		return fmt.Sprint(x)
	}
}

func not(v Verdict) Verdict {
	switch v {
	case Accept:
		return Reject
	case Reject:
		return Accept
	default:
		return v
	}
}

func truth(b bool) Verdict {
	if b {
		return Accept
	}
	return Reject
}
