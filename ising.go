package qspace

import (
	"cmp"
	"encoding/csv"
	"fmt"
	"math"
	"math/cmplx"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/pkg/errors"

	"github.com/fumin/qspace/mat"
)

func spinID(y, x int) string { return fmt.Sprintf("s%d_%d", y, x) }

// TransverseFieldIsing returns the space of an n[0] x n[1] lattice of spins with the Hamiltonian
//
//	H = -Σ_<ij> Z_i Z_j - h Σ_i X_i
//
// Spin (y, x) is the subsystem at position y*n[1]+x.
func TransverseFieldIsing(n [2]int, h float64, options ...Options) (*HilbertSpace, error) {
	spins := make([]Subsystem, 0, n[0]*n[1])
	for y := 0; y < n[0]; y++ {
		for x := 0; x < n[1]; x++ {
			spins = append(spins, NewQubit(spinID(y, x), 0))
		}
	}
	hs, err := New(spins, options...)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	site := func(y, x int) Subsystem { return spins[y*n[1]+x] }

	for y := 0; y < n[0]; y++ {
		for x := 0; x < n[1]; x++ {
			bonds := make([][2]int, 0, 2)
			if up := y - 1; up >= 0 {
				bonds = append(bonds, [2]int{up, x})
			}
			if left := x - 1; left >= 0 {
				bonds = append(bonds, [2]int{y, left})
			}
			for _, b := range bonds {
				zz := NewInteraction(-1, false, Op(site(b[0], b[1]), OpSigmaZ), Op(site(y, x), OpSigmaZ))
				if err := hs.AddInteraction(zz); err != nil {
					return nil, errors.Wrap(err, "")
				}
			}

			field := NewInteraction(complex(-h, 0), false, Op(site(y, x), OpSigmaX))
			if err := hs.AddInteraction(field); err != nil {
				return nil, errors.Wrap(err, "")
			}
		}
	}
	return hs, nil
}

// WriteTransverseFieldIsing writes the Hamiltonian of TransverseFieldIsing(n, h) into dir in the format of mat.ReadCOO.
// Rows are generated one at a time, so the matrix is never held in memory.
// Repeated values and rows are left empty.
func WriteTransverseFieldIsing(dir string, n [2]int, h float64) error {
	numSpins := n[0] * n[1]
	dim := 1 << numSpins
	shapePath := filepath.Join(dir, mat.FnameShape)
	if err := os.WriteFile(shapePath, []byte(fmt.Sprintf("%d,%d", dim, dim)), 0644); err != nil {
		return errors.Wrap(err, "")
	}

	f, err := os.Create(filepath.Join(dir, mat.FnameCOO))
	if err != nil {
		return errors.Wrap(err, "")
	}
	w := csv.NewWriter(f)

	state := make([]int, numSpins)
	flipped := make([]int, numSpins)
	prev := isingEntry{v: cmplx.NaN(), row: -1}
	row := make([]isingEntry, 0, numSpins+1)
Loop:
	for i := 0; i < dim; i++ {
		spinsOf(state, i)
		row = row[:0]
		row = isingDiagonal(row, n, i, state)
		row = isingFlips(row, numSpins, h, i, state, flipped)
		slices.SortFunc(row, func(a, b isingEntry) int { return cmp.Compare(a.col, b.col) })

		for _, e := range row {
			var vStr string
			if e.v != prev.v {
				vStr = mat.FormatNumpy(e.v)
			}
			var rowStr string
			if e.row != prev.row {
				rowStr = strconv.Itoa(e.row)
			}
			if err1 := w.Write([]string{vStr, rowStr, strconv.Itoa(e.col)}); err1 != nil {
				err = errors.Wrap(err1, "")
				break Loop
			}
			prev = e
		}
	}

	w.Flush()
	if err1 := w.Error(); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}
	if err1 := f.Close(); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}
	return err
}

type isingEntry struct {
	v   complex128
	row int
	col int
}

// spinsOf decodes basis index i into spin levels, the first spin being the most significant bit.
func spinsOf(state []int, i int) {
	for k := len(state) - 1; k >= 0; k-- {
		state[k] = i & 1
		i >>= 1
	}
}

func indexOf(state []int) int {
	idx := 0
	for _, s := range state {
		idx = idx<<1 | s
	}
	return idx
}

func isingDiagonal(row []isingEntry, n [2]int, i int, state []int) []isingEntry {
	var diag float64
	for y := 0; y < n[0]; y++ {
		for x := 0; x < n[1]; x++ {
			spin := state[y*n[1]+x]
			if up := y - 1; up >= 0 {
				diag += bond(spin, state[up*n[1]+x])
			}
			if left := x - 1; left >= 0 {
				diag += bond(spin, state[y*n[1]+left])
			}
		}
	}
	if diag != 0 {
		row = append(row, isingEntry{v: complex(diag, 0), row: i, col: i})
	}
	return row
}

func bond(a, b int) float64 {
	if a == b {
		return -1
	}
	return 1
}

func isingFlips(row []isingEntry, numSpins int, h float64, i int, state, flipped []int) []isingEntry {
	if h == 0 {
		return row
	}
	for k := 0; k < numSpins; k++ {
		copy(flipped, state)
		flipped[k] = 1 - flipped[k]
		row = append(row, isingEntry{v: complex(-h, 0), row: i, col: indexOf(flipped)})
	}
	return row
}

// IsingStatistics summarizes the ground state of a lattice built by TransverseFieldIsing.
type IsingStatistics struct {
	EigenValue     []float64
	Magnetization  float64
	BinderCumulant float64
}

// GetIsingStatistics computes the magnetization and Binder cumulant of the ground state of hs,
// an n[0] x n[1] lattice whose lookup has been generated.
// Each basis state is counted with its majority of spins pointing up, so the Z2 symmetric ground state has non-zero magnetization.
func GetIsingStatistics(hs *HilbertSpace, n [2]int) (IsingStatistics, error) {
	var stats IsingStatistics
	var err error
	stats.EigenValue, err = hs.Energies()
	if err != nil {
		return IsingStatistics{}, err
	}
	ground, err := hs.Eigenvector(0)
	if err != nil {
		return IsingStatistics{}, err
	}
	numSpins := n[0] * n[1]
	if len(ground) != 1<<numSpins {
		return IsingStatistics{}, errors.Wrapf(ErrDimensionMismatch, "ground state of length %d for %d spins", len(ground), numSpins)
	}

	var totalProb, m2 float64
	for i, amplitude := range ground {
		bare, err := hs.BareTuple(i)
		if err != nil {
			return IsingStatistics{}, err
		}
		basisM := majorityMagnetization(bare)
		probability := real(amplitude)*real(amplitude) + imag(amplitude)*imag(amplitude)

		totalProb += probability
		stats.Magnetization += probability * basisM
		stats.BinderCumulant += probability * math.Pow(basisM, 4)
		m2 += probability * math.Pow(basisM, 2)
	}
	if math.Abs(totalProb-1) > 1e-3 {
		return IsingStatistics{}, errors.Errorf("ground state probabilities sum to %f", totalProb)
	}

	stats.Magnetization /= float64(numSpins)
	stats.BinderCumulant /= (m2 * m2)
	stats.BinderCumulant = 1 - stats.BinderCumulant/3
	return stats, nil
}

// majorityMagnetization returns |Σ s_i| with s_i = ±1 for levels 0 and 1.
func majorityMagnetization(bare BareIndex) float64 {
	ups := 0
	for _, b := range bare {
		ups += b
	}
	return math.Abs(float64(2*ups - len(bare)))
}
