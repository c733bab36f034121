// Package function compiles player-typed expressions into prefix token
// sequences and evaluates them against x, y and y'.
//
// The accepted grammar is deliberately small: numbers, the constants e and
// pi, the variables x, y and y', the operators + - * / ^ and the unary
// functions exp sqrt log abs sin cos tan ln. Every "-" is rewritten to "+-"
// before tokenizing, so subtraction is always a unary negation under an
// addition; "3-2*x" therefore compiles to 3 + ((-2) * x).
package function

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// MaxInputLength bounds the raw input accepted by Parse.
const MaxInputLength = 512

// MalformedFunctionError reports why an input could not be compiled.
type MalformedFunctionError struct {
	Input  string
	Reason string
}

func (e *MalformedFunctionError) Error() string {
	return fmt.Sprintf("function: malformed %q: %s", e.Input, e.Reason)
}

// Function is an immutable compiled expression in prefix order.
type Function struct {
	source string
	tokens []Token
}

var (
	prefixes = []string{"y''=", "y'=", "y=", "f(x)="}

	synonyms = strings.NewReplacer(
		"**", "^",
		"²", "^2",
		"³", "^3",
		"×", "*",
		"·", "*",
		"÷", "/",
		",", ".",
		"−", "-",
	)

	tokenPattern = regexp.MustCompile(`^(?:\d+(?:\.\d*)?|\.\d+|y'|exp|sqrt|log|abs|sin|cos|tan|ln|pi|[()xye+\-*/^])`)

	namedTokens = map[string]Token{
		"(":    {Kind: LeftBracket},
		")":    {Kind: RightBracket},
		"+":    {Kind: Add},
		"-":    {Kind: Subtract},
		"*":    {Kind: Multiply},
		"/":    {Kind: Divide},
		"^":    {Kind: Pow},
		"exp":  {Kind: Exp},
		"sqrt": {Kind: Sqrt},
		"log":  {Kind: Log10},
		"abs":  {Kind: Abs},
		"sin":  {Kind: Sin},
		"cos":  {Kind: Cos},
		"tan":  {Kind: Tan},
		"ln":   {Kind: Ln},
		"x":    {Kind: VarX},
		"y":    {Kind: VarY},
		"y'":   {Kind: VarDY},
		"e":    {Kind: Value, Value: math.E},
		"pi":   {Kind: Value, Value: math.Pi},
	}
)

// Parse compiles input into a Function. Errors are always
// *MalformedFunctionError.
func Parse(input string) (*Function, error) {
	if len(input) > MaxInputLength {
		return nil, malformed(input, "input too long")
	}
	normalized := Normalize(input)
	if normalized == "" {
		return nil, malformed(input, "empty function")
	}

	tokens, err := tokenize(normalized)
	if err != nil {
		return nil, malformed(input, err.Error())
	}
	tokens = insertImplicitMultiplication(tokens)
	if err := checkBrackets(tokens); err != nil {
		return nil, malformed(input, err.Error())
	}

	out := make([]Token, 0, len(tokens)+4)
	if err := toPrefix(tokens, &out); err != nil {
		return nil, malformed(input, err.Error())
	}
	if err := checkArity(out); err != nil {
		return nil, malformed(input, err.Error())
	}
	return &Function{source: input, tokens: out}, nil
}

// MustParse is Parse for inputs known to be valid; it panics otherwise.
func MustParse(input string) *Function {
	f, err := Parse(input)
	if err != nil {
		panic(err)
	}
	return f
}

// Normalize applies the textual rewrites performed before tokenizing:
// lower-casing, whitespace removal, prefix stripping, operator synonyms and
// the "-" to "+-" rewrite.
func Normalize(input string) string {
	s := strings.ToLower(input)
	s = strings.Join(strings.Fields(s), "")
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			s = s[len(p):]
			break
		}
	}
	s = synonyms.Replace(s)
	return strings.ReplaceAll(s, "-", "+-")
}

func malformed(input, reason string) *MalformedFunctionError {
	return &MalformedFunctionError{Input: input, Reason: reason}
}

func tokenize(s string) ([]Token, error) {
	var tokens []Token
	for pos := 0; pos < len(s); {
		m := tokenPattern.FindString(s[pos:])
		if m == "" {
			return nil, fmt.Errorf("unexpected %q at offset %d", s[pos:], pos)
		}
		if tok, ok := namedTokens[m]; ok {
			tokens = append(tokens, tok)
		} else {
			v, err := strconv.ParseFloat(m, 64)
			if err != nil {
				return nil, fmt.Errorf("bad number %q", m)
			}
			tokens = append(tokens, Token{Kind: Value, Value: v})
		}
		pos += len(m)
	}
	return tokens, nil
}

func endsValue(t Token) bool {
	return t.Kind.IsOperand() || t.Kind == RightBracket
}

func startsValue(t Token) bool {
	return t.Kind.IsOperand() || t.Kind == LeftBracket || t.Kind.IsFunction()
}

// insertImplicitMultiplication turns "2x", ")(" and "3sin(x)" into their
// explicit forms.
func insertImplicitMultiplication(tokens []Token) []Token {
	if len(tokens) < 2 {
		return tokens
	}
	out := make([]Token, 0, len(tokens)*2)
	out = append(out, tokens[0])
	for i := 1; i < len(tokens); i++ {
		if endsValue(tokens[i-1]) && startsValue(tokens[i]) {
			out = append(out, Token{Kind: Multiply})
		}
		out = append(out, tokens[i])
	}
	return out
}

func checkBrackets(tokens []Token) error {
	depth := 0
	for _, t := range tokens {
		switch t.Kind {
		case LeftBracket:
			depth++
		case RightBracket:
			depth--
			if depth < 0 {
				return fmt.Errorf("unmatched ')'")
			}
		}
	}
	if depth != 0 {
		return fmt.Errorf("unmatched '('")
	}
	return nil
}

// stripBrackets removes bracket pairs that enclose the whole span.
func stripBrackets(span []Token) []Token {
	for len(span) >= 2 && span[0].Kind == LeftBracket && span[len(span)-1].Kind == RightBracket {
		depth := 0
		closesAtEnd := true
		for i, t := range span {
			switch t.Kind {
			case LeftBracket:
				depth++
			case RightBracket:
				depth--
			}
			if depth == 0 && i < len(span)-1 {
				closesAtEnd = false
				break
			}
		}
		if !closesAtEnd {
			return span
		}
		span = span[1 : len(span)-1]
	}
	return span
}

// rootIndex picks the loosest-binding operator at bracket depth zero, leftmost
// on ties. Unary operators only qualify at the start of the span, and an
// addition directly after another operator is a unary plus that binds into
// the operand on its right.
func rootIndex(span []Token) int {
	best, bestPrec := -1, math.MaxInt
	depth := 0
	for i, t := range span {
		switch t.Kind {
		case LeftBracket:
			depth++
			continue
		case RightBracket:
			depth--
			continue
		}
		if depth != 0 || t.Kind.IsOperand() {
			continue
		}
		switch {
		case t.Kind.Arity() == 1 && i != 0:
			continue
		case t.Kind == Add && i > 0 && !endsValue(span[i-1]):
			continue
		}
		if p := t.Kind.precedence(); p < bestPrec {
			best, bestPrec = i, p
		}
	}
	return best
}

func toPrefix(span []Token, out *[]Token) error {
	span = stripBrackets(span)
	switch len(span) {
	case 0:
		return fmt.Errorf("missing operand")
	case 1:
		if !span[0].Kind.IsOperand() {
			return fmt.Errorf("operator %s without operand", span[0].Kind)
		}
		*out = append(*out, span[0])
		return nil
	}

	idx := rootIndex(span)
	if idx < 0 {
		return fmt.Errorf("cannot find an operator")
	}
	root := span[idx]

	if root.Kind.Arity() == 1 {
		*out = append(*out, root)
		return toPrefix(span[1:], out)
	}

	left, right := span[:idx], span[idx+1:]
	*out = append(*out, root)
	if len(left) == 0 {
		if root.Kind != Add {
			return fmt.Errorf("operator %s without left operand", root.Kind)
		}
		*out = append(*out, Token{Kind: Value, Value: 0})
	} else if err := toPrefix(left, out); err != nil {
		return err
	}
	return toPrefix(right, out)
}

// checkArity proves the prefix sequence is consumed exactly: the number of
// pending operands must stay positive until the last token and hit zero there.
func checkArity(tokens []Token) error {
	pending := 1
	for i, t := range tokens {
		if pending <= 0 {
			return fmt.Errorf("unexpected token %s at position %d", t, i)
		}
		if t.Kind == LeftBracket || t.Kind == RightBracket {
			return fmt.Errorf("bracket left in compiled form")
		}
		pending += t.Kind.Arity() - 1
	}
	if pending != 0 {
		return fmt.Errorf("%d operand(s) missing", pending)
	}
	return nil
}

// Source returns the input the function was compiled from.
func (f *Function) Source() string {
	return f.source
}

// Tokens returns a copy of the compiled prefix sequence.
func (f *Function) Tokens() []Token {
	out := make([]Token, len(f.tokens))
	copy(out, f.tokens)
	return out
}

// Len returns the number of compiled tokens.
func (f *Function) Len() int {
	return len(f.tokens)
}

// Uses reports whether the function references the given variable kind.
func (f *Function) Uses(k Kind) bool {
	for _, t := range f.tokens {
		if t.Kind == k {
			return true
		}
	}
	return false
}
