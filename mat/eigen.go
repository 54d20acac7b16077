package mat

import (
	"cmp"
	"math"
	"math/cmplx"
	"slices"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ValVec is an eigenvalue and its normalized eigenvector.
type ValVec struct {
	Val float64
	Vec []complex128
}

// DenseDiagonalizer computes eigenpairs of Hermitian matrices by dense diagonalization.
type DenseDiagonalizer struct{}

// Eigen returns the count lowest eigenpairs of h in ascending order.
// A count outside (0, rows] returns all of them.
func (DenseDiagonalizer) Eigen(h *COO, count int) ([]ValVec, error) {
	vvs, err := h.EigenHermitian()
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if count > 0 && count < len(vvs) {
		vvs = vvs[:count]
	}
	return vvs, nil
}

// EigenHermitian returns all eigenpairs of the Hermitian matrix m sorted by ascending eigenvalue.
// Only the Hermitian part of m is used.
func (m *COO) EigenHermitian() ([]ValVec, error) {
	if m.rows != m.cols {
		return nil, errors.Wrapf(ErrShape, "%dx%d is not square", m.rows, m.cols)
	}
	if m.rows == 0 {
		return nil, errors.Wrapf(ErrShape, "empty matrix")
	}

	var vvs []ValVec
	var err error
	switch {
	case m.IsReal():
		vvs, err = eigenSym(m)
	default:
		vvs, err = eigenHermitian(m)
	}
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	for _, vv := range vvs {
		fixPhase(vv.Vec)
	}
	slices.SortStableFunc(vvs, func(a, b ValVec) int { return cmp.Compare(a.Val, b.Val) })
	return vvs, nil
}

func eigenSym(m *COO) ([]ValVec, error) {
	n := m.rows
	sym := mat.NewSymDense(n, nil)
	for _, v := range m.Data {
		x := real(v.v)
		if v.row != v.col {
			x /= 2
		}
		sym.SetSym(v.row, v.col, sym.At(v.row, v.col)+x)
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(sym, true); !ok {
		return nil, errors.Errorf("eigen decomposition of %dx%d failed", n, n)
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	vvs := make([]ValVec, 0, n)
	for i, v := range vals {
		vec := make([]complex128, n)
		for j := range n {
			vec[j] = complex(vecs.At(j, i), 0)
		}
		vvs = append(vvs, ValVec{Val: v, Vec: vec})
	}
	return vvs, nil
}

// eigenHermitian diagonalizes H = A + iB through the real symmetric matrix [[A, -B], [B, A]].
// Every eigenvalue of H appears twice in the embedding, with eigenvectors (x, y) and (-y, x),
// both mapping to the eigenvector x + iy of H up to a phase.
// Within each eigenvalue cluster, images linearly dependent on those already taken are dropped.
func eigenHermitian(m *COO) ([]ValVec, error) {
	n := m.rows
	sym := mat.NewSymDense(2*n, nil)
	acc := func(i, j int, v float64) {
		sym.SetSym(i, j, sym.At(i, j)+v)
	}
	for _, e := range m.Data {
		i, j := e.row, e.col
		a, b := real(e.v), imag(e.v)
		if i == j {
			acc(i, i, a)
			acc(n+i, n+i, a)
			continue
		}
		acc(i, j, a/2)
		acc(n+i, n+j, a/2)
		acc(n+i, j, b/2)
		acc(i, n+j, -b/2)
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(sym, true); !ok {
		return nil, errors.Errorf("eigen decomposition of %dx%d failed", 2*n, 2*n)
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	var scale float64 = 1
	for _, v := range vals {
		scale = max(scale, math.Abs(v))
	}
	clusterTol := 1e-8 * scale
	// Squared residual norm below which a candidate is considered dependent.
	const dependentTol = 1e-6

	vvs := make([]ValVec, 0, n)
	for i, v := range vals {
		z := make([]complex128, n)
		for j := range n {
			z[j] = complex(vecs.At(j, i), vecs.At(n+j, i))
		}

		for k := len(vvs) - 1; k >= 0 && vvs[k].Val >= v-clusterTol; k-- {
			project(z, vvs[k].Vec)
		}
		r2 := norm2(z)
		if r2 < dependentTol {
			continue
		}
		scaleVec(z, complex(1/math.Sqrt(r2), 0))
		vvs = append(vvs, ValVec{Val: v, Vec: z})
	}
	if len(vvs) != n {
		return nil, errors.Errorf("recovered %d eigenvectors, expected %d", len(vvs), n)
	}
	return vvs, nil
}

// project removes from z its component along the unit vector u.
func project(z, u []complex128) {
	var ip complex128
	for i, ui := range u {
		ip += cmplx.Conj(ui) * z[i]
	}
	for i, ui := range u {
		z[i] -= ip * ui
	}
}

func norm2(z []complex128) float64 {
	var s float64
	for _, v := range z {
		s += real(v)*real(v) + imag(v)*imag(v)
	}
	return s
}

func scaleVec(z []complex128, c complex128) {
	for i := range z {
		z[i] *= c
	}
}

// fixPhase rotates vec so that its largest component is real and positive.
func fixPhase(vec []complex128) {
	var big complex128
	var bigAbs float64
	for _, v := range vec {
		if a := cmplx.Abs(v); a > bigAbs+1e-12 {
			big, bigAbs = v, a
		}
	}
	if bigAbs == 0 {
		return
	}
	scaleVec(vec, cmplx.Conj(big)/complex(bigAbs, 0))
}

// Overlap returns |<a|b>|^2.
func Overlap(a, b []complex128) float64 {
	var ip complex128
	for i, ai := range a {
		ip += cmplx.Conj(ai) * b[i]
	}
	return real(ip)*real(ip) + imag(ip)*imag(ip)
}
