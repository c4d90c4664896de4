package template

import "fmt"

type entry struct {
	key   *Template
	value *Value
}

// Value is a compiled nested structure whose string leaves and map keys
// are templates. It backs the add_fields common action.
type Value struct {
	tmpl    *Template
	entries []entry
	list    []*Value
	isMap   bool
	isList  bool
	static  any
}

// CompileValue walks v and compiles every string it contains.
// Maps and slices are rebuilt on each Render so the output never aliases
// the configuration.
func CompileValue(v any, opts ...Option) (*Value, error) {
	switch val := v.(type) {
	case string:
		t, err := Parse(val, opts...)
		if err != nil {
			return nil, err
		}
		return &Value{tmpl: t}, nil
	case map[string]any:
		out := &Value{isMap: true}
		for k, item := range val {
			key, err := Parse(k, opts...)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			value, err := CompileValue(item, opts...)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out.entries = append(out.entries, entry{key: key, value: value})
		}
		return out, nil
	case []any:
		out := &Value{isList: true, list: make([]*Value, 0, len(val))}
		for i, item := range val {
			value, err := CompileValue(item, opts...)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out.list = append(out.list, value)
		}
		return out, nil
	default:
		return &Value{static: v}, nil
	}
}

// Render produces the concrete value for l.
func (v *Value) Render(l Lookup) (any, error) {
	switch {
	case v.tmpl != nil:
		return v.tmpl.Value(l)
	case v.isMap:
		m := make(map[string]any, len(v.entries))
		for _, e := range v.entries {
			k, err := e.key.String(l)
			if err != nil {
				return nil, err
			}
			val, err := e.value.Render(l)
			if err != nil {
				return nil, err
			}
			m[k] = val
		}
		return m, nil
	case v.isList:
		s := make([]any, 0, len(v.list))
		for _, item := range v.list {
			val, err := item.Render(l)
			if err != nil {
				return nil, err
			}
			s = append(s, val)
		}
		return s, nil
	default:
		return v.static, nil
	}
}
