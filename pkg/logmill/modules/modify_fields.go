package modules

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/randalmurphal/logmill/pkg/logmill/config"
	lmerrors "github.com/randalmurphal/logmill/pkg/logmill/errors"
	"github.com/randalmurphal/logmill/pkg/logmill/event"
	"github.com/randalmurphal/logmill/pkg/logmill/module"
	"github.com/randalmurphal/logmill/pkg/logmill/template"
)

// fieldAction edits one event in place.
type fieldAction func(m *ModifyFields, evt *event.Event) error

var fieldActions = map[string]fieldAction{
	"insert":         (*ModifyFields).insert,
	"delete":         (*ModifyFields).delete,
	"keep":           (*ModifyFields).keep,
	"rename":         (*ModifyFields).rename,
	"concat":         (*ModifyFields).concat,
	"string_replace": (*ModifyFields).stringReplace,
	"replace":        (*ModifyFields).replace,
	"map":            (*ModifyFields).mapValue,
	"split":          (*ModifyFields).split,
	"join":           (*ModifyFields).join,
	"merge":          (*ModifyFields).merge,
	"cast_to_int":    (*ModifyFields).castToInt,
	"cast_to_float":  (*ModifyFields).castToFloat,
	"cast_to_str":    (*ModifyFields).castToStr,
	"cast_to_bool":   (*ModifyFields).castToBool,
	"hash":           (*ModifyFields).hash,
}

var hashAlgorithms = map[string]func() hash.Hash{
	"md5":    md5.New,
	"sha1":   sha1.New,
	"sha256": sha256.New,
	"sha512": sha512.New,
}

// required lists the fields each action cannot do without.
var actionRequires = map[string][]string{
	"insert":         {"target_field", "value"},
	"delete":         {"source_fields"},
	"keep":           {"source_fields"},
	"rename":         {"source_field", "target_field"},
	"concat":         {"source_fields", "target_field"},
	"string_replace": {"source_field", "old", "new"},
	"replace":        {"source_field", "regex", "with"},
	"map":            {"source_field", "map"},
	"split":          {"source_field", "separator"},
	"join":           {"source_field", "target_field"},
	"merge":          {"source_fields", "target_field"},
	"cast_to_int":    {"source_fields"},
	"cast_to_float":  {"source_fields"},
	"cast_to_str":    {"source_fields"},
	"cast_to_bool":   {"source_fields"},
	"hash":           {"source_fields"},
}

// ModifyFields inserts, deletes, renames, and converts event fields.
//
//	- ModifyFields:
//	    action: rename
//	    source_field: msg
//	    target_field: message
type ModifyFields struct {
	module.Base

	action       string
	run          fieldAction
	sourceField  string
	sourceFields []string
	targetField  string
	targetFields []string
	value        *template.Value

	replaceOld string
	replaceNew string
	replaceMax int
	regex      *regexp.Regexp
	with       string
	mapping    map[string]any
	keepUnmap  bool
	separator  string
	salt       string
	newHash    func() hash.Hash
}

// Type implements module.Module.
func (*ModifyFields) Type() module.Type { return module.TypeModifier }

// Schema implements module.SchemaProvider.
func (*ModifyFields) Schema() config.Schema {
	actions := make([]string, 0, len(fieldActions))
	for name := range fieldActions {
		actions = append(actions, name)
	}
	slices.Sort(actions)

	return config.Schema{
		"action":          {Kind: config.KindString, Required: true, OneOf: actions},
		"source_field":    {Kind: config.KindString},
		"source_fields":   {Kind: config.KindStringOrList},
		"target_field":    {Kind: config.KindString},
		"target_fields":   {Kind: config.KindStringOrList},
		"value":           {Kind: config.KindAny},
		"old":             {Kind: config.KindString},
		"new":             {Kind: config.KindString},
		"max":             {Kind: config.KindInt},
		"regex":           {Kind: config.KindString},
		"with":            {Kind: config.KindString},
		"map":             {Kind: config.KindMap},
		"keep_unmappable": {Kind: config.KindBool},
		"separator":       {Kind: config.KindString},
		"algorithm":       {Kind: config.KindString, OneOf: []string{"md5", "sha1", "sha256", "sha512"}},
		"salt":            {Kind: config.KindString},
	}
}

// Configure implements module.Module.
func (m *ModifyFields) Configure(env module.Env, cfg config.Config) error {
	if err := m.Base.Configure(env, cfg); err != nil {
		return err
	}

	m.action = cfg.String("action", "")
	run, ok := fieldActions[m.action]
	if !ok {
		return fmt.Errorf("action: unknown action %q", m.action)
	}
	m.run = run

	var errs []error
	for _, field := range actionRequires[m.action] {
		if !cfg.Has(field) {
			errs = append(errs, fmt.Errorf("%s: is required for action %s", field, m.action))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	m.sourceField = cfg.String("source_field", "")
	m.sourceFields = cfg.StringSlice("source_fields", nil)
	m.targetField = cfg.String("target_field", "")
	m.targetFields = cfg.StringSlice("target_fields", nil)
	if cfg.Has("value") {
		v, err := template.CompileValue(cfg.Any("value", nil))
		if err != nil {
			return fmt.Errorf("value: %w", err)
		}
		m.value = v
	}
	m.replaceOld = cfg.String("old", "")
	m.replaceNew = cfg.String("new", "")
	m.replaceMax = cfg.Int("max", -1)
	m.with = cfg.String("with", "")
	m.mapping = cfg.Map("map").Raw()
	m.keepUnmap = cfg.Bool("keep_unmappable", false)
	m.salt = cfg.String("salt", "")

	switch m.action {
	case "replace":
		re, err := regexp.Compile(cfg.String("regex", ""))
		if err != nil {
			return fmt.Errorf("regex: %w", err)
		}
		m.regex = re
	case "map":
		if m.targetField == "" {
			m.targetField = m.sourceField + "_mapped"
		}
	case "split":
		m.separator = cfg.String("separator", "")
		if m.targetField == "" {
			m.targetField = m.sourceField
		}
	case "join":
		m.separator = cfg.String("separator", ",")
	case "hash":
		m.newHash = hashAlgorithms[cfg.String("algorithm", "md5")]
		if len(m.targetFields) > 0 && len(m.targetFields) != len(m.sourceFields) {
			return fmt.Errorf("target_fields: expected %d entries, got %d", len(m.sourceFields), len(m.targetFields))
		}
	}
	return nil
}

// HandleEvent implements module.Module.
func (m *ModifyFields) HandleEvent(_ context.Context, evt *event.Event) ([]*event.Event, error) {
	if err := m.run(m, evt); err != nil {
		return nil, fmt.Errorf("%s: %w", m.action, err)
	}
	return []*event.Event{evt}, nil
}

func (m *ModifyFields) insert(evt *event.Event) error {
	v, err := m.value.Render(evt)
	if err != nil {
		return err
	}
	return evt.Set(m.targetField, v)
}

func (m *ModifyFields) delete(evt *event.Event) error {
	for _, f := range m.sourceFields {
		_ = evt.Delete(f)
	}
	return nil
}

func (m *ModifyFields) keep(evt *event.Event) error {
	for k := range evt.Fields() {
		if k == event.MetaKey || slices.Contains(m.sourceFields, k) {
			continue
		}
		delete(evt.Fields(), k)
	}
	return nil
}

func (m *ModifyFields) rename(evt *event.Event) error {
	v, ok := evt.Get(m.sourceField)
	if !ok {
		return nil
	}
	if err := evt.Set(m.targetField, v); err != nil {
		return err
	}
	return evt.Delete(m.sourceField)
}

func (m *ModifyFields) concat(evt *event.Event) error {
	var b strings.Builder
	for _, f := range m.sourceFields {
		if v, ok := evt.GetString(f); ok {
			b.WriteString(v)
		}
	}
	return evt.Set(m.targetField, b.String())
}

func (m *ModifyFields) stringReplace(evt *event.Event) error {
	s, ok := evt.Get(m.sourceField)
	if !ok {
		return nil
	}
	str, ok := s.(string)
	if !ok {
		return fmt.Errorf("field %s is %T, not a string", m.sourceField, s)
	}
	return evt.Set(m.sourceField, strings.Replace(str, m.replaceOld, m.replaceNew, m.replaceMax))
}

func (m *ModifyFields) replace(evt *event.Event) error {
	s, ok := evt.Get(m.sourceField)
	if !ok {
		return nil
	}
	str, ok := s.(string)
	if !ok {
		return fmt.Errorf("field %s is %T, not a string", m.sourceField, s)
	}
	return evt.Set(m.sourceField, m.regex.ReplaceAllString(str, m.with))
}

func (m *ModifyFields) mapValue(evt *event.Event) error {
	v, ok := evt.Get(m.sourceField)
	if !ok {
		return nil
	}
	if mapped, ok := m.mapping[fmt.Sprint(v)]; ok {
		return evt.Set(m.targetField, mapped)
	}
	if m.keepUnmap {
		return evt.Set(m.targetField, v)
	}
	return nil
}

func (m *ModifyFields) split(evt *event.Event) error {
	s, ok := evt.GetString(m.sourceField)
	if !ok {
		return nil
	}
	parts := strings.Split(s, m.separator)
	out := make([]any, len(parts))
	for i, p := range parts {
		out[i] = p
	}
	return evt.Set(m.targetField, out)
}

func (m *ModifyFields) join(evt *event.Event) error {
	v, ok := evt.Get(m.sourceField)
	if !ok {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return fmt.Errorf("field %s is %T, not a list", m.sourceField, v)
	}
	parts := make([]string, len(list))
	for i, item := range list {
		parts[i] = fmt.Sprint(item)
	}
	return evt.Set(m.targetField, strings.Join(parts, m.separator))
}

func (m *ModifyFields) merge(evt *event.Event) error {
	var out []any
	for _, f := range m.sourceFields {
		if v, ok := evt.Get(f); ok {
			out = append(out, v)
		}
	}
	return evt.Set(m.targetField, out)
}

func (m *ModifyFields) cast(evt *event.Event, conv func(any) (any, error)) error {
	var errs []error
	for _, f := range m.sourceFields {
		v, ok := evt.Get(f)
		if !ok {
			continue
		}
		c, err := conv(v)
		if err != nil {
			errs = append(errs, lmerrors.Permanent(fmt.Errorf("field %s: %w", f, err), "cast"))
			continue
		}
		if err := evt.Set(f, c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *ModifyFields) castToInt(evt *event.Event) error {
	return m.cast(evt, func(v any) (any, error) {
		switch n := v.(type) {
		case int:
			return n, nil
		case int64:
			return int(n), nil
		case float64:
			return int(n), nil
		case bool:
			if n {
				return 1, nil
			}
			return 0, nil
		}
		s := strings.TrimSpace(fmt.Sprint(v))
		if i, err := strconv.Atoi(s); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("cannot cast %q to int", s)
		}
		return int(f), nil
	})
}

func (m *ModifyFields) castToFloat(evt *event.Event) error {
	return m.cast(evt, func(v any) (any, error) {
		switch n := v.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		}
		s := strings.TrimSpace(fmt.Sprint(v))
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("cannot cast %q to float", s)
		}
		return f, nil
	})
}

func (m *ModifyFields) castToStr(evt *event.Event) error {
	return m.cast(evt, func(v any) (any, error) {
		return fmt.Sprint(v), nil
	})
}

func (m *ModifyFields) castToBool(evt *event.Event) error {
	return m.cast(evt, func(v any) (any, error) {
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			switch strings.ToLower(strings.TrimSpace(b)) {
			case "", "0", "false", "no", "off":
				return false, nil
			}
			return true, nil
		case int:
			return b != 0, nil
		case int64:
			return b != 0, nil
		case float64:
			return b != 0, nil
		case nil:
			return false, nil
		}
		return true, nil
	})
}

func (m *ModifyFields) hash(evt *event.Event) error {
	for i, f := range m.sourceFields {
		v, ok := evt.Get(f)
		if !ok {
			continue
		}
		h := m.newHash()
		h.Write([]byte(fmt.Sprint(v) + m.salt))
		target := f
		if len(m.targetFields) > 0 {
			target = m.targetFields[i]
		}
		if err := evt.Set(target, hex.EncodeToString(h.Sum(nil))); err != nil {
			return err
		}
	}
	return nil
}
