// Package expr parses and evaluates operator-algebra expressions such as
//
//	g * a1.dag() * a2 + 0.5 * (b - b.dag())
//
// Identifiers name either operators or scalar constants, resolved at evaluation time.
// Products are matrix products taken in the written order, so non-commuting factors keep their meaning.
// The postfix .dag() is the conjugate transpose.
package expr

import (
	"math/cmplx"
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/fumin/qspace/mat"
)

var (
	// ErrExpression is returned for unknown names, malformed syntax and ill-typed or ill-shaped operations.
	ErrExpression = errors.New("expression error")
)

// Node is a node of a parsed expression.
type Node interface {
	String() string
	// Pos is the rune offset of the node in the source expression.
	Pos() int
}

// Number is a real or imaginary literal.
type Number struct {
	Value  complex128
	Offset int
}

// Operand is a named operator or constant.
type Operand struct {
	Name   string
	Offset int
}

// Product is the ordered product of its factors.
type Product struct {
	Factors []Node
	Offset  int
}

// Sum is the sum of its terms.
type Sum struct {
	Terms  []Node
	Offset int
}

// ConjugateTranspose is X.dag().
type ConjugateTranspose struct {
	X      Node
	Offset int
}

// ScalarMul multiplies X by a fixed coefficient, as produced by negation.
type ScalarMul struct {
	Coef   complex128
	X      Node
	Offset int
}

// Quotient divides X by a scalar-valued Divisor.
type Quotient struct {
	X       Node
	Divisor Node
	Offset  int
}

func (n *Number) Pos() int             { return n.Offset }
func (n *Operand) Pos() int            { return n.Offset }
func (n *Product) Pos() int            { return n.Offset }
func (n *Sum) Pos() int                { return n.Offset }
func (n *ConjugateTranspose) Pos() int { return n.Offset }
func (n *ScalarMul) Pos() int          { return n.Offset }
func (n *Quotient) Pos() int           { return n.Offset }

func (n *Number) String() string {
	switch {
	case imag(n.Value) == 0:
		return strconv.FormatFloat(real(n.Value), 'g', -1, 64)
	case real(n.Value) == 0:
		return strconv.FormatFloat(imag(n.Value), 'g', -1, 64) + "j"
	default:
		return mat.FormatNumpy(n.Value)
	}
}

func (n *Operand) String() string { return n.Name }

func (n *Product) String() string {
	ss := make([]string, 0, len(n.Factors))
	for _, f := range n.Factors {
		ss = append(ss, wrap(f))
	}
	return strings.Join(ss, " * ")
}

func (n *Sum) String() string {
	ss := make([]string, 0, len(n.Terms))
	for _, t := range n.Terms {
		ss = append(ss, t.String())
	}
	return strings.Join(ss, " + ")
}

func (n *ConjugateTranspose) String() string { return wrap(n.X) + ".dag()" }

func (n *ScalarMul) String() string {
	if n.Coef == -1 {
		return "-" + wrap(n.X)
	}
	return (&Number{Value: n.Coef}).String() + " * " + wrap(n.X)
}

func (n *Quotient) String() string { return wrap(n.X) + " / " + wrap(n.Divisor) }

func wrap(n Node) string {
	switch n.(type) {
	case *Sum, *Product, *ScalarMul, *Quotient:
		return "(" + n.String() + ")"
	default:
		return n.String()
	}
}

// Names returns the distinct identifiers referenced by n in order of first appearance.
func Names(n Node) []string {
	names := make([]string, 0)
	var walk func(Node)
	walk = func(n Node) {
		switch n := n.(type) {
		case *Operand:
			if !slices.Contains(names, n.Name) {
				names = append(names, n.Name)
			}
		case *Product:
			for _, f := range n.Factors {
				walk(f)
			}
		case *Sum:
			for _, t := range n.Terms {
				walk(t)
			}
		case *ConjugateTranspose:
			walk(n.X)
		case *ScalarMul:
			walk(n.X)
		case *Quotient:
			walk(n.X)
			walk(n.Divisor)
		}
	}
	walk(n)
	return names
}

// Env resolves identifiers during evaluation.
type Env interface {
	Operator(name string) (*mat.COO, bool)
	Constant(name string) (complex128, bool)
}

// MapEnv is an Env backed by maps.
type MapEnv struct {
	Operators map[string]*mat.COO
	Constants map[string]complex128
}

func (e MapEnv) Operator(name string) (*mat.COO, bool) {
	op, ok := e.Operators[name]
	return op, ok
}

func (e MapEnv) Constant(name string) (complex128, bool) {
	c, ok := e.Constants[name]
	return c, ok
}

// value is either a scalar or, when op is non-nil, an operator.
type value struct {
	scalar complex128
	op     *mat.COO
}

// Eval evaluates n in env and returns the resulting operator.
// Operators provided by env are never modified.
func Eval(n Node, env Env) (*mat.COO, error) {
	v, err := eval(n, env)
	if err != nil {
		return nil, err
	}
	if v.op == nil {
		return nil, errors.Wrapf(ErrExpression, "%q evaluates to the scalar %v, not an operator", n.String(), v.scalar)
	}
	return v.op, nil
}

func eval(n Node, env Env) (value, error) {
	switch n := n.(type) {
	case *Number:
		return value{scalar: n.Value}, nil
	case *Operand:
		if op, ok := env.Operator(n.Name); ok {
			return value{op: op}, nil
		}
		if c, ok := env.Constant(n.Name); ok {
			return value{scalar: c}, nil
		}
		return value{}, errors.Wrapf(ErrExpression, "%d: unknown name %q", n.Offset, n.Name)
	case *Product:
		acc, err := eval(n.Factors[0], env)
		if err != nil {
			return value{}, err
		}
		for _, f := range n.Factors[1:] {
			fv, err := eval(f, env)
			if err != nil {
				return value{}, err
			}
			acc, err = mul(acc, fv, f.Pos())
			if err != nil {
				return value{}, err
			}
		}
		return acc, nil
	case *Sum:
		acc, err := eval(n.Terms[0], env)
		if err != nil {
			return value{}, err
		}
		for _, t := range n.Terms[1:] {
			tv, err := eval(t, env)
			if err != nil {
				return value{}, err
			}
			acc, err = add(acc, tv, t.Pos())
			if err != nil {
				return value{}, err
			}
		}
		return acc, nil
	case *ConjugateTranspose:
		x, err := eval(n.X, env)
		if err != nil {
			return value{}, err
		}
		if x.op == nil {
			return value{scalar: cmplx.Conj(x.scalar)}, nil
		}
		return value{op: x.op.H()}, nil
	case *ScalarMul:
		x, err := eval(n.X, env)
		if err != nil {
			return value{}, err
		}
		return mul(value{scalar: n.Coef}, x, n.Offset)
	case *Quotient:
		x, err := eval(n.X, env)
		if err != nil {
			return value{}, err
		}
		d, err := eval(n.Divisor, env)
		if err != nil {
			return value{}, err
		}
		if d.op != nil {
			return value{}, errors.Wrapf(ErrExpression, "%d: division by the operator %q", n.Divisor.Pos(), n.Divisor.String())
		}
		if d.scalar == 0 {
			return value{}, errors.Wrapf(ErrExpression, "%d: division by zero", n.Divisor.Pos())
		}
		return mul(value{scalar: 1 / d.scalar}, x, n.Offset)
	default:
		return value{}, errors.Wrapf(ErrExpression, "unknown node %T", n)
	}
}

func mul(a, b value, pos int) (value, error) {
	switch {
	case a.op == nil && b.op == nil:
		return value{scalar: a.scalar * b.scalar}, nil
	case a.op == nil:
		return scaled(b.op, a.scalar), nil
	case b.op == nil:
		return scaled(a.op, b.scalar), nil
	}
	c, err := mat.MatMul(a.op, b.op)
	if err != nil {
		return value{}, errors.Wrapf(ErrExpression, "%d: %v", pos, err)
	}
	return value{op: c}, nil
}

func add(a, b value, pos int) (value, error) {
	switch {
	case a.op == nil && b.op == nil:
		return value{scalar: a.scalar + b.scalar}, nil
	case a.op == nil || b.op == nil:
		return value{}, errors.Wrapf(ErrExpression, "%d: cannot add a scalar and an operator", pos)
	}
	if a.op.Rows() != b.op.Rows() || a.op.Cols() != b.op.Cols() {
		return value{}, errors.Wrapf(ErrExpression, "%d: %dx%d + %dx%d", pos, a.op.Rows(), a.op.Cols(), b.op.Rows(), b.op.Cols())
	}
	c := a.op.Clone()
	c.Add(1, b.op)
	return value{op: c}, nil
}

func scaled(op *mat.COO, c complex128) value {
	s := op.Clone()
	s.Scale(c)
	return value{op: s}
}

