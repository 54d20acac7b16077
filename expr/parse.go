package expr

import (
	"strconv"
	"unicode"

	"github.com/pkg/errors"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokLParen
	tokRParen
	tokDot
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func (t token) String() string {
	if t.kind == tokEOF {
		return "end of expression"
	}
	return strconv.Quote(t.text)
}

func tokenize(s string) ([]token, error) {
	tokens := make([]token, 0)
	rs := []rune(s)
	// Offsets are reported in runes.
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case unicode.IsDigit(r) || (r == '.' && i+1 < len(rs) && unicode.IsDigit(rs[i+1])):
			j := scanNumber(rs, i)
			tokens = append(tokens, token{kind: tokNumber, text: string(rs[i:j]), pos: i})
			i = j
		case r == '_' || unicode.IsLetter(r):
			j := i + 1
			for j < len(rs) && isIdentRune(rs[j]) {
				j++
			}
			tokens = append(tokens, token{kind: tokIdent, text: string(rs[i:j]), pos: i})
			i = j
		default:
			var k tokenKind
			switch r {
			case '+':
				k = tokPlus
			case '-':
				k = tokMinus
			case '*':
				k = tokStar
			case '/':
				k = tokSlash
			case '(':
				k = tokLParen
			case ')':
				k = tokRParen
			case '.':
				k = tokDot
			default:
				return nil, errors.Wrapf(ErrExpression, "%d: unexpected character %q", i, r)
			}
			tokens = append(tokens, token{kind: k, text: string(r), pos: i})
			i++
		}
	}
	tokens = append(tokens, token{kind: tokEOF, pos: len(rs)})
	return tokens, nil
}

// scanNumber returns the end of the number literal starting at i, including an imaginary suffix.
func scanNumber(rs []rune, i int) int {
	j := i
	digits := func() {
		for j < len(rs) && unicode.IsDigit(rs[j]) {
			j++
		}
	}
	digits()
	if j < len(rs) && rs[j] == '.' && j+1 < len(rs) && unicode.IsDigit(rs[j+1]) {
		j++
		digits()
	} else if j < len(rs) && rs[j] == '.' && !(j+1 < len(rs) && isIdentRune(rs[j+1])) {
		// Trailing dot as in "2.".
		j++
	}
	if j < len(rs) && (rs[j] == 'e' || rs[j] == 'E') {
		k := j + 1
		if k < len(rs) && (rs[k] == '+' || rs[k] == '-') {
			k++
		}
		if k < len(rs) && unicode.IsDigit(rs[k]) {
			j = k
			digits()
		}
	}
	if j < len(rs) && (rs[j] == 'j' || rs[j] == 'i') && !(j+1 < len(rs) && isIdentRune(rs[j+1])) {
		j++
	}
	return j
}

func isIdentRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

type parser struct {
	tokens []token
	i      int
}

// Parse parses s into an expression tree.
//
// Grammar:
//
//	sum     = product { ("+" | "-") product }
//	product = unary { ("*" | "/") unary }
//	unary   = "-" unary | "+" unary | postfix
//	postfix = primary { ".dag()" }
//	primary = number | identifier | "(" sum ")"
func Parse(s string) (Node, error) {
	tokens, err := tokenize(s)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	n, err := p.sum()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, errors.Wrapf(ErrExpression, "%d: unexpected %s", t.pos, t)
	}
	return n, nil
}

func (p *parser) peek() token { return p.tokens[p.i] }

func (p *parser) next() token {
	t := p.tokens[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) expect(k tokenKind, text string) (token, error) {
	t := p.next()
	if t.kind != k || (text != "" && t.text != text) {
		return t, errors.Wrapf(ErrExpression, "%d: expected %q, got %s", t.pos, text, t)
	}
	return t, nil
}

func (p *parser) sum() (Node, error) {
	first, err := p.product()
	if err != nil {
		return nil, err
	}
	terms := []Node{first}
	for {
		t := p.peek()
		if t.kind != tokPlus && t.kind != tokMinus {
			break
		}
		p.next()
		term, err := p.product()
		if err != nil {
			return nil, err
		}
		if t.kind == tokMinus {
			term = &ScalarMul{Coef: -1, X: term, Offset: t.pos}
		}
		terms = append(terms, term)
	}
	if len(terms) == 1 {
		return first, nil
	}
	return &Sum{Terms: terms, Offset: first.Pos()}, nil
}

func (p *parser) product() (Node, error) {
	first, err := p.unary()
	if err != nil {
		return nil, err
	}
	factors := []Node{first}
	for {
		t := p.peek()
		if t.kind != tokStar && t.kind != tokSlash {
			break
		}
		p.next()
		f, err := p.unary()
		if err != nil {
			return nil, err
		}
		if t.kind == tokSlash {
			// Division binds to everything multiplied so far.
			q := &Quotient{X: collapse(factors), Divisor: f, Offset: t.pos}
			factors = []Node{q}
			continue
		}
		factors = append(factors, f)
	}
	return collapse(factors), nil
}

func collapse(factors []Node) Node {
	if len(factors) == 1 {
		return factors[0]
	}
	return &Product{Factors: factors, Offset: factors[0].Pos()}
}

func (p *parser) unary() (Node, error) {
	t := p.peek()
	switch t.kind {
	case tokMinus:
		p.next()
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &ScalarMul{Coef: -1, X: x, Offset: t.pos}, nil
	case tokPlus:
		p.next()
		return p.unary()
	}
	return p.postfix()
}

func (p *parser) postfix() (Node, error) {
	x, err := p.primary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokDot {
		dot := p.next()
		if _, err := p.expect(tokIdent, "dag"); err != nil {
			return nil, err
		}
		if _, err := p.expect(tokLParen, "("); err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, ")"); err != nil {
			return nil, err
		}
		x = &ConjugateTranspose{X: x, Offset: dot.pos}
	}
	return x, nil
}

func (p *parser) primary() (Node, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		v, err := parseNumber(t.text)
		if err != nil {
			return nil, errors.Wrapf(ErrExpression, "%d: bad number %s: %v", t.pos, t, err)
		}
		return &Number{Value: v, Offset: t.pos}, nil
	case tokIdent:
		return &Operand{Name: t.text, Offset: t.pos}, nil
	case tokLParen:
		x, err := p.sum()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, ")"); err != nil {
			return nil, err
		}
		return x, nil
	default:
		return nil, errors.Wrapf(ErrExpression, "%d: unexpected %s", t.pos, t)
	}
}

func parseNumber(s string) (complex128, error) {
	imaginary := false
	if last := s[len(s)-1]; last == 'j' || last == 'i' {
		imaginary = true
		s = s[:len(s)-1]
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if imaginary {
		return complex(0, f), nil
	}
	return complex(f, 0), nil
}
