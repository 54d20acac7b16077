package qspace

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/fumin/qspace/expr"
	"github.com/fumin/qspace/mat"
)

// OperatorRef names an operator of a subsystem.
// A non-nil Matrix is used as is instead of looking up Name.
type OperatorRef struct {
	Subsystem Subsystem
	Name      string
	Matrix    *mat.COO
}

// Op refers to the operator of s called name.
func Op(s Subsystem, name string) OperatorRef {
	return OperatorRef{Subsystem: s, Name: name}
}

// OpMatrix refers to an explicit operator m on s.
func OpMatrix(s Subsystem, m *mat.COO) OperatorRef {
	return OperatorRef{Subsystem: s, Matrix: m}
}

func (r OperatorRef) String() string {
	id := "<nil>"
	if r.Subsystem != nil {
		id = r.Subsystem.ID()
	}
	name := r.Name
	if r.Matrix != nil {
		name = fmt.Sprintf("matrix%dx%d", r.Matrix.Rows(), r.Matrix.Cols())
	}
	return name + "@" + id
}

func (hs *HilbertSpace) liftRef(r OperatorRef) (*mat.COO, error) {
	if r.Matrix != nil {
		lifted, err := hs.Lift(r.Subsystem, r.Matrix)
		if err != nil {
			return nil, errors.Wrapf(err, "%s", r)
		}
		return lifted, nil
	}
	lifted, err := hs.LiftNamed(r.Subsystem, r.Name)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", r)
	}
	return lifted, nil
}

// InteractionTerm is a coupling added to the Hamiltonian.
// Its implementations are Interaction and SymbolicInteraction.
type InteractionTerm interface {
	String() string
	validate(hs *HilbertSpace) error
	operator(hs *HilbertSpace) (*mat.COO, error)
}

// Interaction is g times the ordered product of lifted operators, plus its Hermitian conjugate if AddHC is set.
type Interaction struct {
	Strength  complex128
	Operators []OperatorRef
	AddHC     bool
}

func NewInteraction(g complex128, addHC bool, ops ...OperatorRef) *Interaction {
	return &Interaction{Strength: g, Operators: ops, AddHC: addHC}
}

func (t *Interaction) String() string {
	ss := []string{mat.FormatNumpy(t.Strength)}
	for _, r := range t.Operators {
		ss = append(ss, r.String())
	}
	s := strings.Join(ss, " * ")
	if t.AddHC {
		s += " + h.c."
	}
	return s
}

func (t *Interaction) validate(hs *HilbertSpace) error {
	if len(t.Operators) == 0 {
		return errors.Wrapf(ErrInteractionDefinition, "%s has no operators", t)
	}
	for i, r := range t.Operators {
		if _, err := hs.SubsystemIndex(r.Subsystem); err != nil {
			return errors.Wrapf(err, "operator %d of %s", i, t)
		}
		if r.Matrix == nil {
			if _, err := hs.LocalOperator(r.Subsystem, r.Name); err != nil {
				return errors.Wrapf(err, "operator %d of %s", i, t)
			}
			continue
		}
		if d := r.Subsystem.Dimension(); r.Matrix.Rows() != d || r.Matrix.Cols() != d {
			return errors.Wrapf(ErrDimensionMismatch, "operator %d of %s is %dx%d, %q has dimension %d", i, t, r.Matrix.Rows(), r.Matrix.Cols(), r.Subsystem.ID(), d)
		}
	}
	return nil
}

func (t *Interaction) operator(hs *HilbertSpace) (*mat.COO, error) {
	var acc *mat.COO
	for i, r := range t.Operators {
		lifted, err := hs.liftRef(r)
		if err != nil {
			return nil, errors.Wrapf(err, "operator %d", i)
		}
		if acc == nil {
			acc = lifted
			continue
		}
		if acc, err = mat.MatMul(acc, lifted); err != nil {
			return nil, errors.Wrap(err, "")
		}
	}
	acc.Scale(t.Strength)
	return withHC(acc, t.AddHC), nil
}

// SymbolicInteraction is an operator-algebra expression such as "g * a1.dag() * a2".
// Identifiers resolve first to Operators, lifted into the full space, then to Constants.
type SymbolicInteraction struct {
	Expr      string
	Operators map[string]OperatorRef
	Constants map[string]complex128
	AddHC     bool

	node expr.Node
}

// NewSymbolicInteraction parses s and checks that every identifier is bound.
func NewSymbolicInteraction(s string, ops map[string]OperatorRef, constants map[string]complex128, addHC bool) (*SymbolicInteraction, error) {
	t := &SymbolicInteraction{Expr: s, Operators: ops, Constants: constants, AddHC: addHC}
	if err := t.parse(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *SymbolicInteraction) String() string {
	if t.AddHC {
		return t.Expr + " + h.c."
	}
	return t.Expr
}

func (t *SymbolicInteraction) parse() error {
	if t.node != nil {
		return nil
	}
	node, err := expr.Parse(t.Expr)
	if err != nil {
		return errors.Wrapf(err, "%q", t.Expr)
	}
	for _, name := range expr.Names(node) {
		_, isOp := t.Operators[name]
		_, isConst := t.Constants[name]
		switch {
		case isOp && isConst:
			return errors.Wrapf(ErrExpression, "%q: %q is both an operator and a constant", t.Expr, name)
		case !isOp && !isConst:
			return errors.Wrapf(ErrExpression, "%q: unknown name %q, have %v", t.Expr, name, t.boundNames())
		}
	}
	t.node = node
	return nil
}

func (t *SymbolicInteraction) boundNames() []string {
	names := make([]string, 0, len(t.Operators)+len(t.Constants))
	for n := range t.Operators {
		names = append(names, n)
	}
	for n := range t.Constants {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (t *SymbolicInteraction) validate(hs *HilbertSpace) error {
	if err := t.parse(); err != nil {
		return err
	}
	for _, name := range expr.Names(t.node) {
		r, ok := t.Operators[name]
		if !ok {
			continue
		}
		if _, err := hs.SubsystemIndex(r.Subsystem); err != nil {
			return errors.Wrapf(err, "%q in %q", name, t.Expr)
		}
	}
	// Shapes are all D x D after lifting, so evaluating once catches every remaining error.
	if _, err := t.operator(hs); err != nil {
		return err
	}
	return nil
}

func (t *SymbolicInteraction) operator(hs *HilbertSpace) (*mat.COO, error) {
	if err := t.parse(); err != nil {
		return nil, err
	}
	env := expr.MapEnv{Operators: make(map[string]*mat.COO), Constants: t.Constants}
	for _, name := range expr.Names(t.node) {
		r, ok := t.Operators[name]
		if !ok {
			continue
		}
		lifted, err := hs.liftRef(r)
		if err != nil {
			return nil, errors.Wrapf(err, "%q in %q", name, t.Expr)
		}
		env.Operators[name] = lifted
	}
	op, err := expr.Eval(t.node, env)
	if err != nil {
		return nil, errors.Wrapf(err, "%q", t.Expr)
	}
	return withHC(op, t.AddHC), nil
}

func withHC(op *mat.COO, addHC bool) *mat.COO {
	if addHC {
		op.Add(1, op.H())
	}
	return op
}

// AddInteraction validates term and appends it to the Hamiltonian.
// Adding a term invalidates any generated lookup.
func (hs *HilbertSpace) AddInteraction(term InteractionTerm) error {
	if term == nil {
		return errors.Wrap(ErrInteractionDefinition, "nil term")
	}
	if err := term.validate(hs); err != nil {
		return err
	}
	hs.terms = append(hs.terms, term)
	hs.lookup = nil
	hs.log.Debug().Stringer("term", term).Int("terms", len(hs.terms)).Msg("added interaction")
	return nil
}

// AddExpression is a shorthand for adding a SymbolicInteraction.
func (hs *HilbertSpace) AddExpression(s string, ops map[string]OperatorRef, constants map[string]complex128, addHC bool) error {
	t, err := NewSymbolicInteraction(s, ops, constants, addHC)
	if err != nil {
		return err
	}
	return hs.AddInteraction(t)
}

// Interactions returns the added terms in insertion order.
func (hs *HilbertSpace) Interactions() []InteractionTerm {
	return slices.Clone(hs.terms)
}
