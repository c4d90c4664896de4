package event

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Sentinel errors for path operations.
var (
	// ErrNotFound indicates a path segment does not resolve.
	ErrNotFound = errors.New("path not found")

	// ErrNotContainer indicates a path descends into a scalar value.
	ErrNotContainer = errors.New("value is not a map or sequence")
)

// PathError reports a failed Set or Delete.
type PathError struct {
	Op   string
	Path string
	Err  error
}

// Error implements the error interface.
func (e *PathError) Error() string {
	return fmt.Sprintf("event: %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *PathError) Unwrap() error {
	return e.Err
}

func splitPath(path string) []string {
	return strings.Split(path, ".")
}

func index(seg string, n int) (int, bool) {
	i, err := strconv.Atoi(seg)
	if err != nil || i < 0 || i >= n {
		return 0, false
	}
	return i, true
}

func child(node any, seg string) (any, bool) {
	switch c := node.(type) {
	case map[string]any:
		v, ok := c[seg]
		return v, ok
	case []any:
		i, ok := index(seg, len(c))
		if !ok {
			return nil, false
		}
		return c[i], true
	case map[string]string:
		v, ok := c[seg]
		return v, ok
	case []string:
		i, ok := index(seg, len(c))
		if !ok {
			return nil, false
		}
		return c[i], true
	case []map[string]any:
		i, ok := index(seg, len(c))
		if !ok {
			return nil, false
		}
		return c[i], true
	}
	return nil, false
}

func lookup(node any, segs []string) (any, bool) {
	cur := node
	for _, seg := range segs {
		next, ok := child(cur, seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func set(root map[string]any, segs []string, value any) error {
	parent, ok := lookup(root, segs[:len(segs)-1])
	if !ok {
		return ErrNotFound
	}
	last := segs[len(segs)-1]
	switch c := parent.(type) {
	case map[string]any:
		c[last] = value
	case []any:
		i, ok := index(last, len(c))
		if !ok {
			return ErrNotFound
		}
		c[i] = value
	default:
		return ErrNotContainer
	}
	return nil
}

// remove deletes segs from node and returns the possibly reallocated node,
// which the caller stores back into its parent.
func remove(node any, segs []string) (any, error) {
	seg := segs[0]
	switch c := node.(type) {
	case map[string]any:
		v, ok := c[seg]
		if !ok {
			return nil, ErrNotFound
		}
		if len(segs) == 1 {
			delete(c, seg)
			return c, nil
		}
		nv, err := remove(v, segs[1:])
		if err != nil {
			return nil, err
		}
		c[seg] = nv
		return c, nil
	case []any:
		i, ok := index(seg, len(c))
		if !ok {
			return nil, ErrNotFound
		}
		if len(segs) == 1 {
			return slices.Delete(c, i, i+1), nil
		}
		nv, err := remove(c[i], segs[1:])
		if err != nil {
			return nil, err
		}
		c[i] = nv
		return c, nil
	}
	return nil, ErrNotContainer
}
