// Package filter compiles small boolean expressions over payment event fields,
// used to narrow what a subscription receives.
//
//	category == "card" && amount >= 200
//	NOT (outcome == "failed" OR tenant_id != 'tenant_1')
package filter

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/gyaneshwarpardhi/paystream/internal/event"
)

// Filter is a compiled expression. A nil *Filter matches everything.
type Filter struct {
	src  string
	root node
}

// Compile parses src. An empty src yields a nil Filter and no error.
func Compile(src string) (*Filter, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	if len(toks) == 1 {
		return nil, nil
	}
	p := &parser{toks: toks}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("filter: unexpected %q at %d", t.val, t.pos)
	}
	return &Filter{src: src, root: root}, nil
}

// Match reports whether ev satisfies the expression.
func (f *Filter) Match(ev *event.Event) bool {
	if f == nil {
		return true
	}
	return f.root.eval(ev)
}

// String returns the source expression.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.src
}

type node interface {
	eval(ev *event.Event) bool
}

type andNode struct{ left, right node }

func (n andNode) eval(ev *event.Event) bool { return n.left.eval(ev) && n.right.eval(ev) }

type orNode struct{ left, right node }

func (n orNode) eval(ev *event.Event) bool { return n.left.eval(ev) || n.right.eval(ev) }

type notNode struct{ inner node }

func (n notNode) eval(ev *event.Event) bool { return !n.inner.eval(ev) }

type stringCmp struct {
	get  func(*event.Event) string
	op   string
	want string
}

func (n stringCmp) eval(ev *event.Event) bool {
	got := n.get(ev)
	if n.op == "==" {
		return got == n.want
	}
	return got != n.want
}

type amountCmp struct {
	op   string
	want decimal.Decimal
}

func (n amountCmp) eval(ev *event.Event) bool {
	c := ev.Amount.Cmp(n.want)
	switch n.op {
	case "==":
		return c == 0
	case "!=":
		return c != 0
	case ">":
		return c > 0
	case ">=":
		return c >= 0
	case "<":
		return c < 0
	default: // "<="
		return c <= 0
	}
}

var stringFields = map[string]func(*event.Event) string{
	"id":        func(ev *event.Event) string { return ev.ID },
	"tenant_id": func(ev *event.Event) string { return ev.TenantID },
	"kind":      func(ev *event.Event) string { return string(ev.Kind) },
	"category":  func(ev *event.Event) string { return ev.Category },
	"method":    func(ev *event.Event) string { return ev.Category },
	"outcome":   func(ev *event.Event) string { return string(ev.Outcome) },
	"status":    func(ev *event.Event) string { return string(ev.Outcome) },
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = orNode{left, right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = andNode{left, right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	switch t := p.peek(); t.kind {
	case tokNot:
		p.next()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notNode{inner}, nil
	case tokLParen:
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if r := p.next(); r.kind != tokRParen {
			return nil, fmt.Errorf("filter: expected ')' at %d", r.pos)
		}
		return inner, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (node, error) {
	field := p.next()
	if field.kind != tokIdent {
		return nil, fmt.Errorf("filter: expected field name at %d, got %q", field.pos, field.val)
	}
	op := p.next()
	if op.kind != tokOp {
		return nil, fmt.Errorf("filter: expected operator after %s at %d", field.val, op.pos)
	}
	lit := p.next()

	if field.val == "amount" {
		if lit.kind != tokNumber && lit.kind != tokString {
			return nil, fmt.Errorf("filter: amount needs a number at %d", lit.pos)
		}
		want, err := decimal.NewFromString(lit.val)
		if err != nil {
			return nil, fmt.Errorf("filter: bad amount %q at %d: %w", lit.val, lit.pos, err)
		}
		return amountCmp{op: op.val, want: want}, nil
	}

	get, ok := stringFields[field.val]
	if !ok {
		return nil, fmt.Errorf("filter: unknown field %q at %d", field.val, field.pos)
	}
	if op.val != "==" && op.val != "!=" {
		return nil, fmt.Errorf("filter: operator %s not supported for %s", op.val, field.val)
	}
	if lit.kind != tokString && lit.kind != tokIdent {
		return nil, fmt.Errorf("filter: %s needs a string at %d", field.val, lit.pos)
	}
	return stringCmp{get: get, op: op.val, want: lit.val}, nil
}
