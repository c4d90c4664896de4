package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Kind is the expected type of a configuration field.
type Kind int

const (
	KindAny Kind = iota
	KindString
	KindInt
	KindNumber
	KindBool
	KindDuration
	KindMap
	KindList
	// KindStringOrList accepts a single string or a list of strings.
	KindStringOrList
)

// String returns the kind name used in error messages.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "integer"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	case KindDuration:
		return "duration"
	case KindMap:
		return "map"
	case KindList:
		return "list"
	case KindStringOrList:
		return "string or list"
	default:
		return "any"
	}
}

// Field describes one configuration key of a unit.
type Field struct {
	Kind     Kind
	Required bool
	// OneOf restricts string values.
	OneOf []string
}

// Schema maps field names to their description.
type Schema map[string]Field

// FieldError reports one invalid field.
type FieldError struct {
	Field string
	Msg   string
}

// Error implements the error interface.
func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q: %s", e.Field, e.Msg)
}

// ErrUnknownField is wrapped by errors for keys the schema does not declare.
var ErrUnknownField = errors.New("unknown field")

// Validate checks cfg against s. Keys listed in common are accepted
// without being part of s. All problems are returned joined.
func (s Schema) Validate(cfg Config, common ...string) error {
	var errs []error

	for _, key := range cfg.Keys() {
		if _, ok := s[key]; ok || slices.Contains(common, key) {
			continue
		}
		errs = append(errs, fmt.Errorf("%w %q", ErrUnknownField, key))
	}

	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		f := s[name]
		v, ok := cfg.data[name]
		if !ok || v == nil {
			if f.Required {
				errs = append(errs, &FieldError{Field: name, Msg: "is required"})
			}
			continue
		}
		if !matches(f.Kind, v) {
			errs = append(errs, &FieldError{Field: name, Msg: fmt.Sprintf("expected %s, got %T", f.Kind, v)})
			continue
		}
		if len(f.OneOf) > 0 {
			if str, _ := v.(string); !slices.Contains(f.OneOf, str) {
				errs = append(errs, &FieldError{
					Field: name,
					Msg:   fmt.Sprintf("must be one of %s, got %v", strings.Join(f.OneOf, ", "), v),
				})
			}
		}
	}
	return errors.Join(errs...)
}

func matches(k Kind, v any) bool {
	switch k {
	case KindString:
		_, ok := v.(string)
		return ok
	case KindInt:
		_, ok := toInt(v)
		return ok
	case KindNumber:
		switch v.(type) {
		case int, int64, uint64, float64:
			return true
		}
		return false
	case KindBool:
		_, ok := v.(bool)
		return ok
	case KindDuration:
		_, ok := toDuration(v)
		return ok
	case KindMap:
		_, ok := v.(map[string]any)
		return ok
	case KindList:
		_, ok := v.([]any)
		return ok
	case KindStringOrList:
		switch val := v.(type) {
		case string:
			return true
		case []any:
			for _, item := range val {
				if _, ok := item.(string); !ok {
					return false
				}
			}
			return true
		}
		return false
	default:
		return true
	}
}
