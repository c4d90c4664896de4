package expr

import (
	"fmt"
	"strings"
)

// Lookup resolves dot paths against an event. *event.Event satisfies it.
type Lookup interface {
	Get(path string) (any, bool)
}

// BinaryOp is a function that compares two values and returns a boolean result.
type BinaryOp func(left, right any) bool

// Option configures compilation.
type Option func(*compileOptions)

type compileOptions struct {
	customOps map[string]BinaryOp
}

// WithCustomOperator registers a custom binary operator.
// The operator name should not conflict with built-in operators.
func WithCustomOperator(name string, fn BinaryOp) Option {
	return func(o *compileOptions) {
		if o.customOps == nil {
			o.customOps = make(map[string]BinaryOp)
		}
		o.customOps[name] = fn
	}
}

// SyntaxError reports a filter that failed to compile.
type SyntaxError struct {
	Expr string // Source text
	Pos  int    // Byte offset of the offending token
	Msg  string
}

// Error implements the error interface.
func (e *SyntaxError) Error() string {
	return fmt.Sprintf("expr: %s at offset %d in %q", e.Msg, e.Pos, e.Expr)
}

// Filter is a compiled predicate. It is immutable and safe for concurrent
// use by any number of goroutines.
type Filter struct {
	src    string
	fields []string
	eval   evalFunc
}

// Compile parses src into a Filter. An optional leading "if" is ignored.
func Compile(src string, opts ...Option) (*Filter, error) {
	var o compileOptions
	for _, opt := range opts {
		opt(&o)
	}

	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	if len(toks) > 1 && toks[0].kind == tokIdent && strings.EqualFold(toks[0].text, "if") {
		toks = toks[1:]
	}

	p := &parser{src: src, toks: toks, ops: o.customOps}
	if p.peek().kind == tokEOF {
		return nil, p.errorf(p.peek(), "empty expression")
	}
	eval, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, p.errorf(tok, "unexpected "+describe(tok))
	}
	return &Filter{src: src, fields: p.fields, eval: eval}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(src string, opts ...Option) *Filter {
	f, err := Compile(src, opts...)
	if err != nil {
		panic(err)
	}
	return f
}

// String returns the source text.
func (f *Filter) String() string { return f.src }

// Fields returns the event paths the filter reads.
func (f *Filter) Fields() []string { return f.fields }

// Match evaluates the filter against l.
//
// Absent fields evaluate to nil. Comparisons that cannot be decided, such
// as ordering a string against a number, return ErrTypeMismatch; callers
// treat that as no match.
func (f *Filter) Match(l Lookup) (bool, error) {
	v, err := f.eval(l)
	if err != nil {
		return false, err
	}
	return IsTruthy(v), nil
}
