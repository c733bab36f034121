package function

import (
	"strconv"
)

// Kind identifies a token in a compiled function.
type Kind uint8

const (
	Add Kind = iota
	Subtract
	Multiply
	Divide
	Pow

	Exp
	Sqrt
	Log10
	Abs
	Sin
	Cos
	Tan
	Ln

	VarX
	VarY
	VarDY

	Value

	// LeftBracket and RightBracket only exist while parsing.
	LeftBracket
	RightBracket
)

var kindNames = map[Kind]string{
	Add:          "+",
	Subtract:     "-",
	Multiply:     "*",
	Divide:       "/",
	Pow:          "^",
	Exp:          "exp",
	Sqrt:         "sqrt",
	Log10:        "log",
	Abs:          "abs",
	Sin:          "sin",
	Cos:          "cos",
	Tan:          "tan",
	Ln:           "ln",
	VarX:         "x",
	VarY:         "y",
	VarDY:        "y'",
	Value:        "value",
	LeftBracket:  "(",
	RightBracket: ")",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Arity is the number of operands the token consumes during evaluation.
func (k Kind) Arity() int {
	switch k {
	case Add, Multiply, Divide, Pow:
		return 2
	case Subtract, Exp, Sqrt, Log10, Abs, Sin, Cos, Tan, Ln:
		return 1
	default:
		return 0
	}
}

// IsFunction reports whether k is a named unary function.
func (k Kind) IsFunction() bool {
	return k >= Exp && k <= Ln
}

// IsOperand reports whether k is a leaf (number or variable).
func (k Kind) IsOperand() bool {
	return k == Value || k == VarX || k == VarY || k == VarDY
}

// precedence orders root selection; lower binds looser. Operands never
// become a root so they sit above everything.
func (k Kind) precedence() int {
	switch k {
	case Add:
		return 0
	case Multiply, Divide:
		return 1
	case Subtract:
		return 2
	case Pow:
		return 3
	case Exp, Sqrt, Log10, Abs, Sin, Cos, Tan, Ln:
		return 4
	default:
		return 5
	}
}

// Token is a single element of a function. Value is only meaningful for
// Kind == Value.
type Token struct {
	Kind  Kind
	Value float64
}

func (t Token) String() string {
	if t.Kind == Value {
		return strconv.FormatFloat(t.Value, 'f', -1, 64)
	}
	return t.Kind.String()
}
