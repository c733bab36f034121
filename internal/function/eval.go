package function

import (
	"math"
	"strings"
)

// Eval evaluates the function at (x, y, y'). Domain errors are not reported:
// the result is NaN or ±Inf and callers check finiteness themselves.
func (f *Function) Eval(x, y, dy float64) float64 {
	v, _ := f.evalAt(0, x, y, dy)
	return v
}

// evalAt evaluates the subtree rooted at index i and returns the index just
// past it. The arity check in Parse guarantees i never runs off the slice.
func (f *Function) evalAt(i int, x, y, dy float64) (float64, int) {
	t := f.tokens[i]
	next := i + 1

	switch t.Kind {
	case Value:
		return t.Value, next
	case VarX:
		return x, next
	case VarY:
		return y, next
	case VarDY:
		return dy, next
	}

	a, next := f.evalAt(next, x, y, dy)
	if t.Kind.Arity() == 1 {
		return applyUnary(t.Kind, a), next
	}
	b, next := f.evalAt(next, x, y, dy)
	return applyBinary(t.Kind, a, b), next
}

func applyUnary(k Kind, a float64) float64 {
	switch k {
	case Subtract:
		return -a
	case Exp:
		return math.Exp(a)
	case Sqrt:
		return math.Sqrt(a)
	case Log10:
		return math.Log10(a)
	case Abs:
		return math.Abs(a)
	case Sin:
		return math.Sin(a)
	case Cos:
		return math.Cos(a)
	case Tan:
		return math.Tan(a)
	case Ln:
		return math.Log(a)
	}
	return math.NaN()
}

func applyBinary(k Kind, a, b float64) float64 {
	switch k {
	case Add:
		return a + b
	case Multiply:
		return a * b
	case Divide:
		return a / b
	case Pow:
		return math.Pow(a, b)
	}
	return math.NaN()
}

// String renders the function in a canonical infix form that Parse compiles
// back to the same token sequence.
func (f *Function) String() string {
	var b strings.Builder
	p := printer{tokens: f.tokens, b: &b}
	root := p.node(0)
	p.write(root, false)
	return b.String()
}

// printer rebuilds a tree from the prefix slice so brackets can be chosen by
// looking at child precedence.
type printer struct {
	tokens []Token
	b      *strings.Builder
}

type node struct {
	tok         Token
	left, right *node
}

func (p *printer) node(i int) *node {
	n, _ := p.build(i)
	return n
}

func (p *printer) build(i int) (*node, int) {
	n := &node{tok: p.tokens[i]}
	next := i + 1
	switch n.tok.Kind.Arity() {
	case 1:
		n.left, next = p.build(next)
	case 2:
		n.left, next = p.build(next)
		n.right, next = p.build(next)
	}
	return n, next
}

func (n *node) prec() int {
	return n.tok.Kind.precedence()
}

// write emits n. lead is true when the text directly follows the "+" of an
// addition, which is the only place a leading "-" survives re-parsing as a
// bare negation.
func (p *printer) write(n *node, lead bool) {
	k := n.tok.Kind
	switch {
	case k.IsOperand():
		p.b.WriteString(n.tok.String())
	case k.IsFunction():
		p.b.WriteString(k.String())
		p.b.WriteByte('(')
		p.write(n.left, false)
		p.b.WriteByte(')')
	case k == Subtract:
		p.b.WriteByte('-')
		if n.left.prec() >= Pow.precedence() {
			p.write(n.left, false)
		} else {
			p.bracket(n.left)
		}
	case k == Add:
		if n.left.prec() > Add.precedence() {
			p.write(n.left, lead)
		} else {
			p.bracket(n.left)
		}
		var rb strings.Builder
		sub := printer{tokens: p.tokens, b: &rb}
		sub.write(n.right, true)
		if !strings.HasPrefix(rb.String(), "-") {
			p.b.WriteByte('+')
		}
		p.b.WriteString(rb.String())
	case k == Multiply || k == Divide:
		if n.left.prec() > Multiply.precedence() {
			p.write(n.left, lead)
		} else {
			p.bracket(n.left)
		}
		p.b.WriteString(k.String())
		if n.right.prec() >= Multiply.precedence() && n.right.tok.Kind != Subtract {
			p.write(n.right, false)
		} else {
			p.bracket(n.right)
		}
	case k == Pow:
		if n.left.prec() > Pow.precedence() {
			p.write(n.left, false)
		} else {
			p.bracket(n.left)
		}
		p.b.WriteByte('^')
		if n.right.prec() >= Pow.precedence() {
			p.write(n.right, false)
		} else {
			p.bracket(n.right)
		}
	}
}

func (p *printer) bracket(n *node) {
	p.b.WriteByte('(')
	p.write(n, false)
	p.b.WriteByte(')')
}
