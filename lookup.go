package qspace

import (
	"slices"
	"time"

	"github.com/pkg/errors"

	"github.com/fumin/qspace/mat"
)

// TieTol is the tolerance within which two overlaps are considered equal.
// Ties go to the lower flat bare index.
const TieTol = 1e-9

type lookup struct {
	vvs      []mat.ValVec
	bare     []int
	overlaps []float64
	// candidates maps a flat bare index to the dressed states matching it.
	candidates map[int][]int
}

// Ready reports whether GenerateLookup has run since the last change to the space.
func (hs *HilbertSpace) Ready() bool { return hs.lookup != nil }

// GenerateLookup diagonalizes the Hamiltonian and matches every dressed state to the bare product state it overlaps most.
func (hs *HilbertSpace) GenerateLookup() error {
	h, err := hs.Hamiltonian()
	if err != nil {
		return err
	}

	count := hs.opt.evalsCount
	if count <= 0 || count > hs.dim {
		count = hs.dim
	}
	start := time.Now()
	vvs, err := hs.opt.diagonalizer.Eigen(h, count)
	if err != nil {
		return errors.Wrap(err, "")
	}
	hs.log.Debug().Int("dimension", hs.dim).Int("count", len(vvs)).Dur("elapsed", time.Since(start)).Msg("diagonalized")
	if len(vvs) == 0 || len(vvs) > hs.dim {
		return errors.Errorf("diagonalizer returned %d eigenpairs for dimension %d", len(vvs), hs.dim)
	}
	for j, vv := range vvs {
		if len(vv.Vec) != hs.dim {
			return errors.Errorf("eigenvector %d has length %d, dimension %d", j, len(vv.Vec), hs.dim)
		}
		if j > 0 && vv.Val < vvs[j-1].Val {
			return errors.Errorf("eigenvalues not ascending at %d: %f < %f", j, vv.Val, vvs[j-1].Val)
		}
	}

	lk := &lookup{
		vvs:        vvs,
		bare:       make([]int, len(vvs)),
		overlaps:   make([]float64, len(vvs)),
		candidates: make(map[int][]int),
	}
	for j, vv := range vvs {
		best, bestP := -1, -1.0
		for k, amp := range vv.Vec {
			p := real(amp)*real(amp) + imag(amp)*imag(amp)
			if p > bestP+TieTol {
				best, bestP = k, p
			}
		}
		lk.bare[j] = best
		lk.overlaps[j] = bestP
		lk.candidates[best] = append(lk.candidates[best], j)
	}
	hs.lookup = lk
	return nil
}

func (hs *HilbertSpace) ready() (*lookup, error) {
	if hs.lookup == nil {
		return nil, errors.Wrap(ErrNotReady, "call GenerateLookup after the last Register or AddInteraction")
	}
	return hs.lookup, nil
}

func (lk *lookup) check(j int) error {
	if j < 0 || j >= len(lk.vvs) {
		return errors.Wrapf(ErrIndexOutOfRange, "dressed index %d not in [0, %d)", j, len(lk.vvs))
	}
	return nil
}

// BareIndex returns the bare tuple best matching dressed state j.
func (hs *HilbertSpace) BareIndex(j int) (BareIndex, error) {
	lk, err := hs.ready()
	if err != nil {
		return nil, err
	}
	if err := lk.check(j); err != nil {
		return nil, err
	}
	return hs.BareTuple(lk.bare[j])
}

// DressedCandidates returns the dressed states whose best match is bare, in ascending order.
// The result may be empty or have several elements.
func (hs *HilbertSpace) DressedCandidates(bare BareIndex) ([]int, error) {
	lk, err := hs.ready()
	if err != nil {
		return nil, err
	}
	flat, err := hs.FlatIndex(bare)
	if err != nil {
		return nil, err
	}
	return slices.Clone(lk.candidates[flat]), nil
}

// DressedIndex returns the unique dressed state whose best match is bare.
// Under hybridization some bare tuples have no such state and others have several.
// Both are reported as ErrAmbiguousOrMissingMatch: several matches are an error rather than
// an arbitrary pick, and DressedCandidates lists them.
func (hs *HilbertSpace) DressedIndex(bare BareIndex) (int, error) {
	candidates, err := hs.DressedCandidates(bare)
	if err != nil {
		return -1, err
	}
	switch len(candidates) {
	case 1:
		return candidates[0], nil
	case 0:
		return -1, errors.Wrapf(ErrAmbiguousOrMissingMatch, "no dressed state matches %v", bare)
	default:
		return -1, errors.Wrapf(ErrAmbiguousOrMissingMatch, "dressed states %v all match %v", candidates, bare)
	}
}

// EnergyByDressedIndex returns eigenvalue j.
func (hs *HilbertSpace) EnergyByDressedIndex(j int) (float64, error) {
	lk, err := hs.ready()
	if err != nil {
		return 0, err
	}
	if err := lk.check(j); err != nil {
		return 0, err
	}
	return lk.vvs[j].Val, nil
}

// EnergyByBareIndex returns the energy of the dressed state matching bare.
func (hs *HilbertSpace) EnergyByBareIndex(bare BareIndex) (float64, error) {
	j, err := hs.DressedIndex(bare)
	if err != nil {
		return 0, err
	}
	return hs.EnergyByDressedIndex(j)
}

// Energies returns the eigenvalues in ascending order.
func (hs *HilbertSpace) Energies() ([]float64, error) {
	lk, err := hs.ready()
	if err != nil {
		return nil, err
	}
	energies := make([]float64, 0, len(lk.vvs))
	for _, vv := range lk.vvs {
		energies = append(energies, vv.Val)
	}
	return energies, nil
}

// Eigenvector returns a copy of dressed state j in the product basis.
func (hs *HilbertSpace) Eigenvector(j int) ([]complex128, error) {
	lk, err := hs.ready()
	if err != nil {
		return nil, err
	}
	if err := lk.check(j); err != nil {
		return nil, err
	}
	return slices.Clone(lk.vvs[j].Vec), nil
}

// Overlap returns |<bare|j>|² for the best matching bare state of j.
func (hs *HilbertSpace) Overlap(j int) (float64, error) {
	lk, err := hs.ready()
	if err != nil {
		return 0, err
	}
	if err := lk.check(j); err != nil {
		return 0, err
	}
	return lk.overlaps[j], nil
}

// Amplitude returns <bare|j>.
func (hs *HilbertSpace) Amplitude(bare BareIndex, j int) (complex128, error) {
	lk, err := hs.ready()
	if err != nil {
		return 0, err
	}
	if err := lk.check(j); err != nil {
		return 0, err
	}
	flat, err := hs.FlatIndex(bare)
	if err != nil {
		return 0, err
	}
	return lk.vvs[j].Vec[flat], nil
}

// BareEigenvals returns the energies of s. It does not need a generated lookup.
func (hs *HilbertSpace) BareEigenvals(s Subsystem) ([]float64, error) {
	return hs.BareEnergies(s)
}
