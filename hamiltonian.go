package qspace

import (
	"time"

	"github.com/pkg/errors"

	"github.com/fumin/qspace/mat"
)

// BareHamiltonian returns Σ_i lift(diag(E_i)), the Hamiltonian without interactions.
func (hs *HilbertSpace) BareHamiltonian() (*mat.COO, error) {
	h := mat.COOZeros(0, 0)
	if err := hs.bareInto(h); err != nil {
		return nil, err
	}
	return h, nil
}

// InteractionHamiltonian returns the sum of the interaction terms.
func (hs *HilbertSpace) InteractionHamiltonian() (*mat.COO, error) {
	h := mat.COOZeros(hs.dim, hs.dim)
	if _, err := hs.interactionsInto(h); err != nil {
		return nil, err
	}
	return h, nil
}

// Hamiltonian returns the bare Hamiltonian plus all interaction terms.
// It fails with ErrInteractionDefinition if the result is not Hermitian,
// which usually means a term that needs AddHC was added without it.
func (hs *HilbertSpace) Hamiltonian() (*mat.COO, error) {
	start := time.Now()
	h := mat.COOZeros(0, 0)
	if err := hs.bareInto(h); err != nil {
		return nil, err
	}
	suspects, err := hs.interactionsInto(h)
	if err != nil {
		return nil, err
	}

	if !h.IsHermitian(hs.opt.hermitianTol) {
		return nil, errors.Wrapf(ErrInteractionDefinition, "Hamiltonian deviates from its conjugate transpose by %g, non-Hermitian terms %v", h.HermitianDeviation(), suspects)
	}
	hs.log.Debug().Int("dimension", hs.dim).Int("nonzero", h.NumNonZero()).Dur("elapsed", time.Since(start)).Msg("assembled Hamiltonian")
	return h, nil
}

// HamiltonianInto assembles the Hamiltonian into dst, for example a disk backed matrix.
// Unlike Hamiltonian it does not check Hermiticity.
func (hs *HilbertSpace) HamiltonianInto(dst mat.Matrix) error {
	if err := hs.bareInto(dst); err != nil {
		return err
	}
	if _, err := hs.interactionsInto(dst); err != nil {
		return err
	}
	return nil
}

func (hs *HilbertSpace) bareInto(h mat.Matrix) error {
	h.Zeros(hs.dim, hs.dim)
	lifted := mat.COOZeros(0, 0)
	for i, s := range hs.subsystems {
		hs.liftInto(lifted, i, mat.Diag(s.BareEnergies()))
		h.Add(1, lifted)
	}
	return nil
}

// interactionsInto adds every term to h in insertion order, and returns the terms which are not Hermitian by themselves.
func (hs *HilbertSpace) interactionsInto(h mat.Matrix) ([]string, error) {
	suspects := make([]string, 0)
	for i, t := range hs.terms {
		op, err := t.operator(hs)
		if err != nil {
			return nil, errors.Wrapf(err, "interaction %d", i)
		}
		if !op.IsHermitian(hs.opt.hermitianTol) {
			suspects = append(suspects, t.String())
		}
		h.Add(1, op)
	}
	return suspects, nil
}
