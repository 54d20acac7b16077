package mat

import (
	"cmp"
	"math"
	"slices"

	"github.com/fumin/tensor"
	"github.com/pkg/errors"
)

// ArnoldiDiagonalizer computes a leading subset of eigenpairs with the Arnoldi iteration of github.com/fumin/tensor.
// It works in single precision and only needs matrix-vector products, which makes it the choice when
// just a few low-lying states of a large space are of interest.
type ArnoldiDiagonalizer struct{}

// Eigen returns count eigenpairs of h sorted by ascending eigenvalue.
func (ArnoldiDiagonalizer) Eigen(h *COO, count int) ([]ValVec, error) {
	n := h.rows
	if h.cols != n {
		return nil, errors.Wrapf(ErrShape, "%dx%d is not square", h.rows, h.cols)
	}
	if count <= 0 || count >= n {
		return nil, errors.Wrapf(ErrShape, "arnoldi needs 0 < count < %d, got %d", n, count)
	}

	a := tensor.Zeros(n, n)
	for _, v := range h.Data {
		a.SetAt([]int{v.row, v.col}, complex64(v.v))
	}

	eigvals, eigvecs := tensor.Zeros(1), tensor.Zeros(1)
	var bufs [7]*tensor.Dense
	for i := range bufs {
		bufs[i] = tensor.Zeros(1)
	}
	if err := tensor.Arnoldi(eigvals, eigvecs, a, count, bufs); err != nil {
		return nil, errors.Wrap(err, "")
	}

	vals := make([]complex64, 0, count)
	for _, v := range eigvals.All() {
		vals = append(vals, v)
	}
	flat := make([]complex64, 0, n*count)
	for _, v := range eigvecs.All() {
		flat = append(flat, v)
	}
	if len(vals) < count || len(flat) < n*count {
		return nil, errors.Errorf("arnoldi returned %d values and %d vector entries, expected %d and %d", len(vals), len(flat), count, n*count)
	}

	// Eigenvectors are either the columns of an n x count matrix or the rows of a count x n one.
	shape := eigvecs.Shape()
	columns := len(shape) == 1 || shape[0] == n
	vvs := make([]ValVec, 0, count)
	for i := range count {
		vec := make([]complex128, n)
		for r := range n {
			switch {
			case columns:
				vec[r] = complex128(flat[r*count+i])
			default:
				vec[r] = complex128(flat[i*n+r])
			}
		}
		nrm := math.Sqrt(norm2(vec))
		if nrm == 0 {
			return nil, errors.Errorf("zero eigenvector %d", i)
		}
		scaleVec(vec, complex(1/nrm, 0))
		fixPhase(vec)
		vvs = append(vvs, ValVec{Val: float64(real(vals[i])), Vec: vec})
	}
	slices.SortStableFunc(vvs, func(a, b ValVec) int { return cmp.Compare(a.Val, b.Val) })
	return vvs, nil
}
