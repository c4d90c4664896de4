package expr

import (
	"strconv"
	"strings"
)

// evalFunc is one node of a compiled expression.
type evalFunc func(l Lookup) (any, error)

type parser struct {
	src    string
	toks   []token
	pos    int
	ops    map[string]BinaryOp
	fields []string
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) advance() token {
	tok := p.toks[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) errorf(tok token, msg string) error {
	return &SyntaxError{Expr: p.src, Pos: tok.pos, Msg: msg}
}

func (p *parser) isKeyword(tok token, word string) bool {
	return tok.kind == tokIdent && strings.EqualFold(tok.text, word)
}

func (p *parser) parseOr() (evalFunc, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isKeyword(p.peek(), "or") {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = orFunc(left, right)
	}
	return left, nil
}

func (p *parser) parseAnd() (evalFunc, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isKeyword(p.peek(), "and") {
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = andFunc(left, right)
	}
	return left, nil
}

func (p *parser) parseUnary() (evalFunc, error) {
	tok := p.peek()
	if p.isKeyword(tok, "not") || (tok.kind == tokOp && tok.text == "!") {
		p.advance()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notFunc(inner), nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (evalFunc, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	tok := p.peek()
	var op string
	switch {
	case tok.kind == tokOp && tok.text != "!":
		op = tok.text
		p.advance()
	case p.isKeyword(tok, "in"), p.isKeyword(tok, "contains"):
		op = strings.ToLower(tok.text)
		p.advance()
	case p.isKeyword(tok, "not") && p.isKeyword(p.toks[p.pos+1], "in"):
		op = "not in"
		p.advance()
		p.advance()
	case tok.kind == tokIdent && p.ops[tok.text] != nil:
		custom := p.ops[tok.text]
		p.advance()
		right, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return customFunc(left, right, custom), nil
	default:
		return left, nil
	}

	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return compareFunc(left, right, op), nil
}

func (p *parser) parseOperand() (evalFunc, error) {
	tok := p.advance()
	switch tok.kind {
	case tokLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.advance(); closing.kind != tokRParen {
			return nil, p.errorf(closing, "expected ')', found "+describe(closing))
		}
		return inner, nil
	case tokLBrack:
		return p.parseList()
	case tokString:
		return constFunc(tok.text), nil
	case tokNumber:
		v, err := parseNumber(tok.text)
		if err != nil {
			return nil, p.errorf(tok, "invalid number "+strconv.Quote(tok.text))
		}
		return constFunc(v), nil
	case tokField:
		return p.field(tok.text), nil
	case tokIdent:
		switch strings.ToLower(tok.text) {
		case "true":
			return constFunc(true), nil
		case "false":
			return constFunc(false), nil
		case "null", "nil", "none":
			return constFunc(nil), nil
		}
		if isReserved(tok.text) || p.ops[tok.text] != nil {
			return nil, p.errorf(tok, "unexpected keyword "+strconv.Quote(tok.text))
		}
		return p.field(tok.text), nil
	}
	return nil, p.errorf(tok, "expected operand, found "+describe(tok))
}

func (p *parser) parseList() (evalFunc, error) {
	var items []evalFunc
	if p.peek().kind == tokRBrack {
		p.advance()
		return listFunc(items), nil
	}
	for {
		item, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		tok := p.advance()
		switch tok.kind {
		case tokComma:
			continue
		case tokRBrack:
			return listFunc(items), nil
		default:
			return nil, p.errorf(tok, "expected ',' or ']', found "+describe(tok))
		}
	}
}

// field rewrites a free identifier into an event lookup that yields nil
// when the path is absent.
func (p *parser) field(path string) evalFunc {
	p.fields = append(p.fields, path)
	return func(l Lookup) (any, error) {
		v, ok := l.Get(path)
		if !ok {
			return nil, nil
		}
		return v, nil
	}
}

func describe(tok token) string {
	if tok.kind == tokEOF {
		return tok.kind.String()
	}
	return strconv.Quote(tok.text)
}

func isReserved(word string) bool {
	switch strings.ToLower(word) {
	case "and", "or", "not", "in", "contains", "if":
		return true
	}
	return false
}

func parseNumber(s string) (any, error) {
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
	}
	return strconv.ParseFloat(s, 64)
}

func constFunc(v any) evalFunc {
	return func(Lookup) (any, error) { return v, nil }
}

func listFunc(items []evalFunc) evalFunc {
	return func(l Lookup) (any, error) {
		out := make([]any, 0, len(items))
		for _, item := range items {
			v, err := item(l)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}
}

func notFunc(inner evalFunc) evalFunc {
	return func(l Lookup) (any, error) {
		v, err := inner(l)
		if err != nil {
			return nil, err
		}
		return !IsTruthy(v), nil
	}
}

func andFunc(left, right evalFunc) evalFunc {
	return func(l Lookup) (any, error) {
		v, err := left(l)
		if err != nil {
			return nil, err
		}
		if !IsTruthy(v) {
			return false, nil
		}
		v, err = right(l)
		if err != nil {
			return nil, err
		}
		return IsTruthy(v), nil
	}
}

func orFunc(left, right evalFunc) evalFunc {
	return func(l Lookup) (any, error) {
		v, err := left(l)
		if err != nil {
			return nil, err
		}
		if IsTruthy(v) {
			return true, nil
		}
		v, err = right(l)
		if err != nil {
			return nil, err
		}
		return IsTruthy(v), nil
	}
}

func compareFunc(left, right evalFunc, op string) evalFunc {
	return func(l Lookup) (any, error) {
		lv, err := left(l)
		if err != nil {
			return nil, err
		}
		rv, err := right(l)
		if err != nil {
			return nil, err
		}
		return Compare(lv, rv, op)
	}
}

func customFunc(left, right evalFunc, op BinaryOp) evalFunc {
	return func(l Lookup) (any, error) {
		lv, err := left(l)
		if err != nil {
			return nil, err
		}
		rv, err := right(l)
		if err != nil {
			return nil, err
		}
		return op(lv, rv), nil
	}
}
