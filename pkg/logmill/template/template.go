package template

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/ncruces/go-strftime"
)

// fieldPattern matches $(path) with an optional printf-style suffix such
// as s, 5d or .2f.
var fieldPattern = regexp.MustCompile(`\$\(([^()\s]+)\)(-?\d*(?:\.\d+)?[sdf])?`)

// ErrSyntax is returned by Parse for a malformed template, such as a
// "$(" that is never closed.
var ErrSyntax = errors.New("template: syntax error")

// ErrFormat is returned when a value cannot be rendered with the requested
// conversion, for example "d" applied to a non-numeric string.
var ErrFormat = errors.New("template: bad format conversion")

// Lookup resolves dot paths. *event.Event satisfies it.
type Lookup interface {
	Get(path string) (any, bool)
}

// MapLookup adapts a plain nested map to Lookup.
type MapLookup map[string]any

// Get resolves a dot path through nested maps.
func (m MapLookup) Get(path string) (any, bool) {
	var cur any = map[string]any(m)
	for _, seg := range strings.Split(path, ".") {
		mm, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = mm[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

type part struct {
	literal string
	path    string
	spec    string
}

// Template is a compiled dynamic value. It is immutable and safe for
// concurrent use.
type Template struct {
	raw   string
	parts []part
	paths []string
	opts  options
}

// Parse compiles s. A string without $(path) references renders as
// itself. A "$(" without a closing parenthesis is an ErrSyntax.
func Parse(s string, opts ...Option) (*Template, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	t := &Template{raw: s, opts: o}
	last := 0
	for _, m := range fieldPattern.FindAllStringSubmatchIndex(s, -1) {
		if m[0] > last {
			if err := checkLiteral(s[last:m[0]], last); err != nil {
				return nil, err
			}
			t.parts = append(t.parts, part{literal: s[last:m[0]]})
		}
		p := part{path: s[m[2]:m[3]]}
		if m[4] >= 0 {
			p.spec = s[m[4]:m[5]]
		}
		t.parts = append(t.parts, p)
		t.paths = append(t.paths, p.path)
		last = m[1]
	}
	if last < len(s) {
		if err := checkLiteral(s[last:], last); err != nil {
			return nil, err
		}
		t.parts = append(t.parts, part{literal: s[last:]})
	}
	return t, nil
}

// MustParse is like Parse but panics on a malformed template.
func MustParse(s string, opts ...Option) *Template {
	t, err := Parse(s, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

// checkLiteral rejects a "$(" in literal text that is not closed before
// the next field reference or the end of the template.
func checkLiteral(lit string, offset int) error {
	for i := 0; ; {
		j := strings.Index(lit[i:], "$(")
		if j < 0 {
			return nil
		}
		i += j + 2
		if !strings.Contains(lit[i:], ")") {
			return fmt.Errorf("%w: unterminated $( at offset %d", ErrSyntax, offset+i-2)
		}
	}
}

// Raw returns the source string.
func (t *Template) Raw() string { return t.raw }

// Paths returns the referenced field paths in order of appearance.
func (t *Template) Paths() []string { return t.paths }

// IsStatic reports whether rendering can never depend on the event.
func (t *Template) IsStatic() bool {
	return len(t.paths) == 0 && !t.opts.calendar
}

// Value renders the template. When the template is exactly one $(path)
// with no format suffix, the field value is returned with its type intact.
func (t *Template) Value(l Lookup) (any, error) {
	if len(t.parts) == 1 && t.parts[0].path != "" && t.parts[0].spec == "" {
		v, ok := l.Get(t.parts[0].path)
		if ok {
			return v, nil
		}
		return t.missing([]string{t.parts[0].path})
	}
	return t.String(l)
}

// String renders the template to a string.
//
// If any referenced path is absent the result follows the configured
// MissingAction; by default the raw template is returned verbatim.
func (t *Template) String(l Lookup) (string, error) {
	if len(t.paths) == 0 && !t.opts.calendar {
		return t.raw, nil
	}

	var (
		b       strings.Builder
		missing []string
	)
	for _, p := range t.parts {
		if p.path == "" {
			b.WriteString(t.expandCalendar(p.literal))
			continue
		}
		v, ok := l.Get(p.path)
		if !ok {
			missing = append(missing, p.path)
			continue
		}
		s, err := format(v, p.spec)
		if err != nil {
			return t.raw, fmt.Errorf("render $(%s): %w", p.path, err)
		}
		b.WriteString(s)
	}

	if len(missing) > 0 && t.opts.missingAction != MissingEmpty {
		v, err := t.missing(missing)
		s, _ := v.(string)
		return s, err
	}
	return b.String(), nil
}

func (t *Template) missing(paths []string) (any, error) {
	switch t.opts.missingAction {
	case MissingEmpty:
		return "", nil
	case MissingError:
		return t.raw, &UndefinedPathError{Paths: paths}
	default:
		return t.raw, nil
	}
}

func (t *Template) expandCalendar(s string) string {
	if !t.opts.calendar || !strings.ContainsRune(s, '%') {
		return s
	}
	return strftime.Format(s, t.opts.now().UTC())
}

// format renders v using a printf-style suffix of the form -?\d*(\.\d+)?[sdf].
func format(v any, spec string) (string, error) {
	if spec == "" {
		return stringify(v), nil
	}
	flags := spec[:len(spec)-1]
	switch spec[len(spec)-1] {
	case 'd':
		n, ok := toInt(v)
		if !ok {
			return "", fmt.Errorf("%w: %%%s of %T", ErrFormat, spec, v)
		}
		return fmt.Sprintf("%"+flags+"d", n), nil
	case 'f':
		f, ok := toFloat(v)
		if !ok {
			return "", fmt.Errorf("%w: %%%s of %T", ErrFormat, spec, v)
		}
		return fmt.Sprintf("%"+flags+"f", f), nil
	default:
		return fmt.Sprintf("%"+flags+"s", stringify(v)), nil
	}
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return "null"
	case map[string]any, []any:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float32:
		return int64(n), true
	case float64:
		return int64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case string:
		return 0, false
	}
	if i, ok := toInt(v); ok {
		return float64(i), true
	}
	if s, ok := v.(fmt.Stringer); ok {
		f, err := strconv.ParseFloat(s.String(), 64)
		return f, err == nil
	}
	return 0, false
}

// UndefinedPathError is returned under MissingError when one or more
// referenced paths are absent.
type UndefinedPathError struct {
	// Paths lists the absent paths.
	Paths []string
}

// Error implements the error interface.
func (e *UndefinedPathError) Error() string {
	if len(e.Paths) == 1 {
		return fmt.Sprintf("undefined path: %s", e.Paths[0])
	}
	return fmt.Sprintf("undefined paths: %s", strings.Join(e.Paths, ", "))
}

// Render compiles and renders s in one call using default options. A
// malformed template renders as itself.
func Render(s string, l Lookup) string {
	t, err := Parse(s)
	if err != nil {
		return s
	}
	out, _ := t.String(l)
	return out
}
