package native

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spetersoncode/dylan/tool"
)

// maxExponent bounds ** so a single call cannot allocate without limit.
const maxExponent = 1000

// CalculatorArgs are the arguments of the calculator tool.
type CalculatorArgs struct {
	Expression string `json:"expression" jsonschema:"description=Mathematical expression such as 2 + 2 or (3 - 1) ** 4"`
}

var errDivisionByZero = errors.New("division by zero")

func calculate(_ context.Context, args CalculatorArgs) (string, error) {
	expr := strings.TrimSpace(args.Expression)
	if expr == "" {
		return "", tool.InvalidArgumentsf("expression is required")
	}
	v, err := Evaluate(expr)
	if err != nil {
		return "", tool.InvalidArguments(fmt.Errorf("error calculating: %w", err))
	}
	return fmt.Sprintf("%s = %s", expr, v.String()), nil
}

// Evaluate computes an arithmetic expression with + - * / **, parentheses
// and unary minus. ** binds tighter than unary minus and associates to the
// right, so -2 ** 2 is -4 and 2 ** 3 ** 2 is 512.
func Evaluate(expr string) (decimal.Decimal, error) {
	p := &parser{src: expr}
	v, err := p.expr()
	if err != nil {
		return decimal.Zero, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return decimal.Zero, fmt.Errorf("unexpected %q at position %d", p.src[p.pos], p.pos)
	}
	return v, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *parser) peek(tok string) bool {
	p.skipSpace()
	return strings.HasPrefix(p.src[p.pos:], tok)
}

func (p *parser) accept(tok string) bool {
	if p.peek(tok) {
		p.pos += len(tok)
		return true
	}
	return false
}

// expr := term (('+' | '-') term)*
func (p *parser) expr() (decimal.Decimal, error) {
	left, err := p.term()
	if err != nil {
		return left, err
	}
	for {
		switch {
		case p.accept("+"):
			right, err := p.term()
			if err != nil {
				return right, err
			}
			left = left.Add(right)
		case p.accept("-"):
			right, err := p.term()
			if err != nil {
				return right, err
			}
			left = left.Sub(right)
		default:
			return left, nil
		}
	}
}

// term := unary (('*' | '/') unary)*
func (p *parser) term() (decimal.Decimal, error) {
	left, err := p.unary()
	if err != nil {
		return left, err
	}
	for {
		switch {
		case p.peek("**"):
			return left, nil
		case p.accept("*"):
			right, err := p.unary()
			if err != nil {
				return right, err
			}
			left = left.Mul(right)
		case p.accept("/"):
			right, err := p.unary()
			if err != nil {
				return right, err
			}
			if right.IsZero() {
				return decimal.Zero, errDivisionByZero
			}
			left = left.Div(right)
		default:
			return left, nil
		}
	}
}

// unary := '-' unary | power
func (p *parser) unary() (decimal.Decimal, error) {
	if p.accept("-") {
		v, err := p.unary()
		if err != nil {
			return v, err
		}
		return v.Neg(), nil
	}
	return p.power()
}

// power := primary ('**' unary)?
func (p *parser) power() (decimal.Decimal, error) {
	base, err := p.primary()
	if err != nil {
		return base, err
	}
	if !p.accept("**") {
		return base, nil
	}
	exp, err := p.unary()
	if err != nil {
		return exp, err
	}
	return pow(base, exp)
}

// primary := number | '(' expr ')'
func (p *parser) primary() (decimal.Decimal, error) {
	if p.accept("(") {
		v, err := p.expr()
		if err != nil {
			return v, err
		}
		if !p.accept(")") {
			return decimal.Zero, errors.New("missing closing parenthesis")
		}
		return v, nil
	}

	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) && (isDigit(p.src[p.pos]) || p.src[p.pos] == '.') {
		p.pos++
	}
	if start == p.pos {
		if p.pos >= len(p.src) {
			return decimal.Zero, errors.New("unexpected end of expression")
		}
		return decimal.Zero, fmt.Errorf("unexpected %q at position %d", p.src[p.pos], p.pos)
	}
	return decimal.NewFromString(p.src[start:p.pos])
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func pow(base, exp decimal.Decimal) (decimal.Decimal, error) {
	if exp.Abs().GreaterThan(decimal.NewFromInt(maxExponent)) {
		return decimal.Zero, fmt.Errorf("exponent %s is too large", exp)
	}
	if base.IsZero() && exp.IsNegative() {
		return decimal.Zero, errDivisionByZero
	}
	if exp.IsInteger() {
		n := exp.IntPart()
		if n >= 0 {
			return base.Pow(exp), nil
		}
		return decimal.NewFromInt(1).Div(base.Pow(exp.Neg())), nil
	}
	f := math.Pow(base.InexactFloat64(), exp.InexactFloat64())
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, fmt.Errorf("%s ** %s is not a real number", base, exp)
	}
	return decimal.NewFromFloat(f), nil
}
