package qspace

import (
	"math"
	"slices"
	"sort"

	"github.com/pkg/errors"

	"github.com/fumin/qspace/mat"
)

// Operator names.
const (
	OpAnnihilation = "annihilation"
	OpCreation     = "creation"
	OpNumber       = "number"
	OpPosition     = "position"
	OpMomentum     = "momentum"
	OpHamiltonian  = "hamiltonian"

	OpSigmaX = "sigmax"
	OpSigmaY = "sigmay"
	OpSigmaZ = "sigmaz"
	OpSigmaP = "sigmap"
	OpSigmaM = "sigmam"
)

// Subsystem is a quantum system truncated to a finite number of levels.
// Its basis is the eigenbasis of its own Hamiltonian, ordered by ascending energy.
type Subsystem interface {
	// ID identifies the subsystem within a HilbertSpace.
	ID() string
	// Dimension is the truncated dimension.
	Dimension() int
	// BareEnergies returns Dimension() energies in ascending order.
	BareEnergies() []float64
	// Operator returns the named Dimension() x Dimension() operator.
	Operator(name string) (*mat.COO, error)
}

// Oscillator is a harmonic oscillator with level spacing Frequency.
type Oscillator struct {
	Name         string
	Frequency    float64
	TruncatedDim int
}

func NewOscillator(id string, frequency float64, truncatedDim int) *Oscillator {
	return &Oscillator{Name: id, Frequency: frequency, TruncatedDim: truncatedDim}
}

func (o *Oscillator) ID() string     { return o.Name }
func (o *Oscillator) Dimension() int { return o.TruncatedDim }

func (o *Oscillator) BareEnergies() []float64 {
	energies := make([]float64, o.TruncatedDim)
	for n := range energies {
		energies[n] = float64(n) * o.Frequency
	}
	return energies
}

func (o *Oscillator) Operator(name string) (*mat.COO, error) {
	d := o.TruncatedDim
	dense := make([][]complex128, d)
	for i := range dense {
		dense[i] = make([]complex128, d)
		if i+1 < d {
			dense[i][i+1] = complex(math.Sqrt(float64(i+1)), 0)
		}
	}
	a := mat.M(dense)

	switch name {
	case OpAnnihilation:
		return a, nil
	case OpCreation:
		return a.H(), nil
	case OpNumber:
		n := make([]float64, d)
		for i := range n {
			n[i] = float64(i)
		}
		return mat.Diag(n), nil
	case OpPosition:
		x := a.H()
		x.Add(1, a)
		x.Scale(complex(1/math.Sqrt2, 0))
		return x, nil
	case OpMomentum:
		p := a.H()
		p.Add(-1, a)
		p.Scale(complex(0, 1/math.Sqrt2))
		return p, nil
	case OpHamiltonian:
		return mat.Diag(o.BareEnergies()), nil
	default:
		return nil, errors.Wrapf(ErrUnknownOperator, "%q on oscillator %q", name, o.Name)
	}
}

// Qubit is a two-level system with splitting Frequency.
// Level 0 is the ground state, so the Hamiltonian is Frequency/2 * sigmaz with sigmaz = diag(-1, 1),
// and sigmap raises level 0 to level 1.
type Qubit struct {
	Name      string
	Frequency float64
}

func NewQubit(id string, frequency float64) *Qubit {
	return &Qubit{Name: id, Frequency: frequency}
}

func (q *Qubit) ID() string     { return q.Name }
func (q *Qubit) Dimension() int { return 2 }

func (q *Qubit) BareEnergies() []float64 {
	return []float64{-q.Frequency / 2, q.Frequency / 2}
}

func (q *Qubit) Operator(name string) (*mat.COO, error) {
	switch name {
	case OpSigmaX:
		return mat.M(mat.PauliX), nil
	case OpSigmaY:
		y := mat.M(mat.PauliY)
		y.Scale(-1)
		return y, nil
	case OpSigmaZ:
		z := mat.M(mat.PauliZ)
		z.Scale(-1)
		return z, nil
	case OpSigmaP:
		return mat.M([][]complex128{{0, 0}, {1, 0}}), nil
	case OpSigmaM:
		return mat.M([][]complex128{{0, 1}, {0, 0}}), nil
	case OpHamiltonian:
		return mat.Diag(q.BareEnergies()), nil
	default:
		return nil, errors.Wrapf(ErrUnknownOperator, "%q on qubit %q", name, q.Name)
	}
}

// Spectrum is a subsystem given directly by its energies and operator matrices.
type Spectrum struct {
	Name      string
	Energies  []float64
	Operators map[string]*mat.COO
}

func (s *Spectrum) ID() string              { return s.Name }
func (s *Spectrum) Dimension() int          { return len(s.Energies) }
func (s *Spectrum) BareEnergies() []float64 { return slices.Clone(s.Energies) }

func (s *Spectrum) Operator(name string) (*mat.COO, error) {
	if name == OpHamiltonian {
		return mat.Diag(s.Energies), nil
	}
	op, ok := s.Operators[name]
	if !ok || op == nil {
		names := make([]string, 0, len(s.Operators))
		for n := range s.Operators {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, errors.Wrapf(ErrUnknownOperator, "%q on %q, have %v", name, s.Name, names)
	}
	return op.Clone(), nil
}
