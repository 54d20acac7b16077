// Package qspace composes finite-dimensional quantum subsystems into a tensor-product Hilbert space.
//
// A HilbertSpace lifts subsystem operators into the full space, assembles the interacting Hamiltonian,
// diagonalizes it and labels every dressed eigenstate by the bare product state it overlaps most.
package qspace

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/fumin/qspace/mat"
)

const (
	// DefaultMaxDimension bounds the total dimension of a HilbertSpace.
	DefaultMaxDimension = 4096
	// DefaultHermitianTol is the relative tolerance of the Hermiticity check on the assembled Hamiltonian.
	DefaultHermitianTol = 1e-9
)

// Diagonalizer computes eigenpairs of a Hermitian matrix in ascending order of eigenvalue.
// A count in (0, n) requests only the lowest count pairs, otherwise all of them.
type Diagonalizer interface {
	Eigen(h *mat.COO, count int) ([]mat.ValVec, error)
}

type Options struct {
	maxDimension int
	hermitianTol float64
	evalsCount   int
	diagonalizer Diagonalizer
	logger       zerolog.Logger
}

func NewOptions() Options {
	opt := Options{}
	opt.maxDimension = DefaultMaxDimension
	opt.hermitianTol = DefaultHermitianTol
	opt.diagonalizer = mat.DenseDiagonalizer{}
	opt.logger = zerolog.Nop()
	return opt
}

func (opt Options) MaxDimension(d int) Options {
	opt.maxDimension = d
	return opt
}

func (opt Options) HermitianTol(tol float64) Options {
	opt.hermitianTol = tol
	return opt
}

// EvalsCount limits the lookup to the lowest n dressed states.
func (opt Options) EvalsCount(n int) Options {
	opt.evalsCount = n
	return opt
}

func (opt Options) Diagonalizer(d Diagonalizer) Options {
	opt.diagonalizer = d
	return opt
}

func (opt Options) Logger(l zerolog.Logger) Options {
	opt.logger = l
	return opt
}

// HilbertSpace is the tensor product of an ordered list of subsystems.
// The first registered subsystem is the most significant digit of the flat basis index.
//
// A HilbertSpace is not safe for concurrent use.
type HilbertSpace struct {
	subsystems []Subsystem
	index      map[string]int
	dim        int
	terms      []InteractionTerm

	opt Options
	log zerolog.Logger

	lookup *lookup
}

// New returns a HilbertSpace over subsystems.
func New(subsystems []Subsystem, options ...Options) (*HilbertSpace, error) {
	opt := NewOptions()
	if len(options) > 0 {
		opt = options[0]
	}
	hs := &HilbertSpace{index: make(map[string]int), dim: 1, opt: opt, log: opt.logger}
	for _, s := range subsystems {
		if _, err := hs.Register(s); err != nil {
			return nil, errors.Wrap(err, "")
		}
	}
	return hs, nil
}

// Register appends s to the space and returns its position.
// Registering invalidates any generated lookup.
func (hs *HilbertSpace) Register(s Subsystem) (int, error) {
	if s == nil {
		return -1, errors.Wrap(ErrInvalidSubsystem, "nil subsystem")
	}
	id := s.ID()
	if _, ok := hs.index[id]; ok {
		return -1, errors.Wrapf(ErrInvalidSubsystem, "duplicate id %q", id)
	}
	d := s.Dimension()
	if d < 1 {
		return -1, errors.Wrapf(ErrDimensionMismatch, "subsystem %q has dimension %d", id, d)
	}
	energies := s.BareEnergies()
	if len(energies) != d {
		return -1, errors.Wrapf(ErrDimensionMismatch, "subsystem %q has dimension %d but %d energies", id, d, len(energies))
	}
	for i := 1; i < len(energies); i++ {
		if energies[i] < energies[i-1] {
			return -1, errors.Wrapf(ErrInvalidSubsystem, "subsystem %q energies not ascending at %d: %v", id, i, energies)
		}
	}
	if hs.dim > hs.opt.maxDimension/d {
		return -1, errors.Wrapf(ErrConfigurationLimit, "%d x %d > %d adding %q", hs.dim, d, hs.opt.maxDimension, id)
	}

	hs.index[id] = len(hs.subsystems)
	hs.subsystems = append(hs.subsystems, s)
	hs.dim *= d
	hs.lookup = nil
	hs.log.Debug().Str("subsystem", id).Int("dimension", d).Int("total", hs.dim).Msg("registered")
	return len(hs.subsystems) - 1, nil
}

// Dimension returns the product of the subsystem dimensions.
func (hs *HilbertSpace) Dimension() int { return hs.dim }

// Subsystems returns the registered subsystems in order.
func (hs *HilbertSpace) Subsystems() []Subsystem {
	return append([]Subsystem(nil), hs.subsystems...)
}

// SubsystemIndex returns the position of s.
func (hs *HilbertSpace) SubsystemIndex(s Subsystem) (int, error) {
	if s == nil {
		return -1, errors.Wrap(ErrUnknownSubsystem, "nil")
	}
	i, ok := hs.index[s.ID()]
	if !ok || hs.subsystems[i] != s {
		return -1, errors.Wrapf(ErrUnknownSubsystem, "%q", s.ID())
	}
	return i, nil
}

func (hs *HilbertSpace) SubsystemDimension(s Subsystem) (int, error) {
	i, err := hs.SubsystemIndex(s)
	if err != nil {
		return -1, err
	}
	return hs.subsystems[i].Dimension(), nil
}

// BareEnergies returns the energies of s in ascending order.
func (hs *HilbertSpace) BareEnergies(s Subsystem) ([]float64, error) {
	i, err := hs.SubsystemIndex(s)
	if err != nil {
		return nil, err
	}
	return hs.subsystems[i].BareEnergies(), nil
}

// LocalOperator returns the named operator of s in its own basis.
func (hs *HilbertSpace) LocalOperator(s Subsystem, name string) (*mat.COO, error) {
	if _, err := hs.SubsystemIndex(s); err != nil {
		return nil, err
	}
	op, err := s.Operator(name)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if op == nil {
		return nil, errors.Wrapf(ErrUnknownOperator, "%q of %q is nil", name, s.ID())
	}
	if op.Rows() != s.Dimension() || op.Cols() != s.Dimension() {
		return nil, errors.Wrapf(ErrDimensionMismatch, "operator %q of %q is %dx%d, dimension %d", name, s.ID(), op.Rows(), op.Cols(), s.Dimension())
	}
	return op, nil
}

// Lift embeds op, an operator on s, into the full space as I ⊗ ... ⊗ op ⊗ ... ⊗ I.
func (hs *HilbertSpace) Lift(s Subsystem, op *mat.COO) (*mat.COO, error) {
	i, err := hs.SubsystemIndex(s)
	if err != nil {
		return nil, err
	}
	d := s.Dimension()
	if op == nil {
		return nil, errors.Wrapf(ErrDimensionMismatch, "nil operator on %q", s.ID())
	}
	if op.Rows() != d || op.Cols() != d {
		return nil, errors.Wrapf(ErrDimensionMismatch, "operator is %dx%d, %q has dimension %d", op.Rows(), op.Cols(), s.ID(), d)
	}

	system := mat.COOZeros(0, 0)
	hs.liftInto(system, i, op)
	return system, nil
}

// LiftNamed lifts the named operator of s.
func (hs *HilbertSpace) LiftNamed(s Subsystem, name string) (*mat.COO, error) {
	op, err := hs.LocalOperator(s, name)
	if err != nil {
		return nil, err
	}
	return hs.Lift(s, op)
}

func (hs *HilbertSpace) liftInto(system mat.Matrix, position int, op *mat.COO) {
	system.Scalar(1)
	for j, s := range hs.subsystems {
		if j == position {
			system.Kron(op)
			continue
		}
		system.Kron(mat.COOIdentity(s.Dimension()))
	}
}

// BareIndex is a tuple of subsystem level indices, one per subsystem in registration order.
type BareIndex []int

func (b BareIndex) String() string {
	ss := make([]string, 0, len(b))
	for _, n := range b {
		ss = append(ss, fmt.Sprintf("%d", n))
	}
	return "(" + strings.Join(ss, ", ") + ")"
}

// FlatIndex returns the mixed-radix position of bare in the product basis.
func (hs *HilbertSpace) FlatIndex(bare BareIndex) (int, error) {
	if len(bare) != len(hs.subsystems) {
		return -1, errors.Wrapf(ErrIndexOutOfRange, "%v has %d entries for %d subsystems", bare, len(bare), len(hs.subsystems))
	}
	flat := 0
	for i, s := range hs.subsystems {
		d := s.Dimension()
		if bare[i] < 0 || bare[i] >= d {
			return -1, errors.Wrapf(ErrIndexOutOfRange, "%v: level %d of %q with dimension %d", bare, bare[i], s.ID(), d)
		}
		flat = flat*d + bare[i]
	}
	return flat, nil
}

// BareTuple is the inverse of FlatIndex.
func (hs *HilbertSpace) BareTuple(flat int) (BareIndex, error) {
	if flat < 0 || flat >= hs.dim {
		return nil, errors.Wrapf(ErrIndexOutOfRange, "%d not in [0, %d)", flat, hs.dim)
	}
	bare := make(BareIndex, len(hs.subsystems))
	for i := len(hs.subsystems) - 1; i >= 0; i-- {
		d := hs.subsystems[i].Dimension()
		bare[i] = flat % d
		flat /= d
	}
	return bare, nil
}

// BareProductState returns the full-space unit vector of bare.
func (hs *HilbertSpace) BareProductState(bare BareIndex) ([]complex128, error) {
	flat, err := hs.FlatIndex(bare)
	if err != nil {
		return nil, err
	}
	v := make([]complex128, hs.dim)
	v[flat] = 1
	return v, nil
}

// BareEnergy returns the non-interacting energy of bare, the sum of its subsystem energies.
func (hs *HilbertSpace) BareEnergy(bare BareIndex) (float64, error) {
	if _, err := hs.FlatIndex(bare); err != nil {
		return 0, err
	}
	var e float64
	for i, s := range hs.subsystems {
		e += s.BareEnergies()[bare[i]]
	}
	return e, nil
}
