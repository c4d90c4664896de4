package expr

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTypeMismatch is returned when operands cannot be compared with the
// requested operator.
var ErrTypeMismatch = errors.New("expr: operand types do not support comparison")

// Compare compares two values using the specified operator.
// Returns an error for unknown operators.
func Compare(left, right any, op string) (bool, error) {
	switch op {
	case "==":
		return equals(left, right), nil
	case "!=":
		return !equals(left, right), nil
	case "<", ">", "<=", ">=":
		return compareOrdered(left, right, op)
	case "in":
		return contains(right, left)
	case "not in":
		ok, err := contains(right, left)
		return !ok, err
	case "contains":
		return contains(left, right)
	default:
		return false, fmt.Errorf("unknown operator: %s", op)
	}
}

// equals compares numbers numerically, nil only to nil, and everything
// else by its %v rendering, so "404" equals 404.
func equals(left, right any) bool {
	if left == nil || right == nil {
		return left == nil && right == nil
	}
	if l, ok := ToFloat64(left); ok {
		if r, ok := ToFloat64(right); ok {
			return l == r
		}
	}
	return fmt.Sprintf("%v", left) == fmt.Sprintf("%v", right)
}

func compareOrdered(left, right any, op string) (bool, error) {
	var c int
	l, lok := ToFloat64(left)
	r, rok := ToFloat64(right)
	switch {
	case lok && rok:
		c = cmp3(l < r, l > r)
	default:
		ls, lok := left.(string)
		rs, rok := right.(string)
		if !lok || !rok {
			return false, fmt.Errorf("%w: %T %s %T", ErrTypeMismatch, left, op, right)
		}
		c = strings.Compare(ls, rs)
	}

	switch op {
	case "<":
		return c < 0, nil
	case ">":
		return c > 0, nil
	case "<=":
		return c <= 0, nil
	default:
		return c >= 0, nil
	}
}

func cmp3(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return 1
	}
	return 0
}

// contains reports whether container holds item: an element of a
// sequence, a key of a map, or a substring of a string.
func contains(container, item any) (bool, error) {
	switch c := container.(type) {
	case []any:
		for _, v := range c {
			if equals(v, item) {
				return true, nil
			}
		}
		return false, nil
	case []string:
		for _, v := range c {
			if equals(v, item) {
				return true, nil
			}
		}
		return false, nil
	case map[string]any:
		_, ok := c[fmt.Sprintf("%v", item)]
		return ok, nil
	case string:
		if item == nil {
			return false, fmt.Errorf("%w: nil in string", ErrTypeMismatch)
		}
		return strings.Contains(c, fmt.Sprintf("%v", item)), nil
	}
	return false, fmt.Errorf("%w: cannot search %T", ErrTypeMismatch, container)
}
