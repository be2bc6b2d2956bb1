package game

import (
	"errors"
	"math/big"
	"strconv"
)

var (
	ErrInvalidSymbols = errors.New("game: expression contains invalid symbols")
	ErrMalformed      = errors.New("game: malformed expression")
	ErrDivisionByZero = errors.New("game: division by zero")
)

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	op   byte
	num  int64
}

// tokenize splits an expression into numbers, operators and parentheses.
// Anything besides digits, + - * / ( ) and whitespace is ErrInvalidSymbols.
func tokenize(expr string) ([]token, error) {
	var toks []token
	for i := 0; i < len(expr); {
		c := expr[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c >= '0' && c <= '9':
			j := i
			for j < len(expr) && expr[j] >= '0' && expr[j] <= '9' {
				j++
			}
			n, err := strconv.ParseInt(expr[i:j], 10, 64)
			if err != nil {
				return nil, ErrMalformed
			}
			toks = append(toks, token{kind: tokNumber, num: n})
			i = j
		case c == '+' || c == '-' || c == '*' || c == '/':
			toks = append(toks, token{kind: tokOp, op: c})
			i++
		case c == '(':
			toks = append(toks, token{kind: tokLParen})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen})
			i++
		default:
			return nil, ErrInvalidSymbols
		}
	}
	return toks, nil
}

// Operands returns every maximal digit run of the expression as an integer,
// in order of appearance.
func Operands(expr string) ([]int64, error) {
	toks, err := tokenize(expr)
	if err != nil {
		return nil, err
	}
	var nums []int64
	for _, t := range toks {
		if t.kind == tokNumber {
			nums = append(nums, t.num)
		}
	}
	return nums, nil
}

// Evaluate computes an arithmetic expression over non-negative integers with
// + - * / and parentheses under the usual precedence. Arithmetic is exact
// (rational), so the result can be compared with a target without rounding.
// There is no unary minus.
func Evaluate(expr string) (*big.Rat, error) {
	toks, err := tokenize(expr)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	v, err := p.expr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, ErrMalformed
	}
	return v, nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.pos], true
}

// expr := term (('+' | '-') term)*
func (p *parser) expr() (*big.Rat, error) {
	left, err := p.term()
	if err != nil {
		return nil, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.kind != tokOp || (t.op != '+' && t.op != '-') {
			return left, nil
		}
		p.pos++
		right, err := p.term()
		if err != nil {
			return nil, err
		}
		if t.op == '+' {
			left.Add(left, right)
		} else {
			left.Sub(left, right)
		}
	}
}

// term := factor (('*' | '/') factor)*
func (p *parser) term() (*big.Rat, error) {
	left, err := p.factor()
	if err != nil {
		return nil, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.kind != tokOp || (t.op != '*' && t.op != '/') {
			return left, nil
		}
		p.pos++
		right, err := p.factor()
		if err != nil {
			return nil, err
		}
		if t.op == '*' {
			left.Mul(left, right)
			continue
		}
		if right.Sign() == 0 {
			return nil, ErrDivisionByZero
		}
		left.Quo(left, right)
	}
}

// factor := number | '(' expr ')'
func (p *parser) factor() (*big.Rat, error) {
	t, ok := p.peek()
	if !ok {
		return nil, ErrMalformed
	}
	switch t.kind {
	case tokNumber:
		p.pos++
		return new(big.Rat).SetInt64(t.num), nil
	case tokLParen:
		p.pos++
		v, err := p.expr()
		if err != nil {
			return nil, err
		}
		if c, ok := p.peek(); !ok || c.kind != tokRParen {
			return nil, ErrMalformed
		}
		p.pos++
		return v, nil
	default:
		return nil, ErrMalformed
	}
}

// FormatValue renders a value as an integer when exact, else with two decimals.
func FormatValue(v *big.Rat) string {
	if v.IsInt() {
		return v.RatString()
	}
	return v.FloatString(2)
}
