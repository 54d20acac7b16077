package mat

import (
	"fmt"
	"math"
	"math/cmplx"
	"os"
	"testing"
)

func TestSlice(t *testing.T) {
	t.Parallel()
	tests := []struct {
		m *COO
		y [2]int
		x [2]int
		s *COO
	}{
		{
			m: M([][]complex128{
				{0, 1, 2, 3, 4},
				{5, 6, 7, 8, 9},
				{10, 11, 12, 13, 14},
				{15, 16, 17, 18, 19},
				{20, 21, 22, 23, 24},
				{25, 26, 27, 28, 29},
			}),
			y: [2]int{-5, -2},
			x: [2]int{1, 3},
			s: M([][]complex128{
				{6, 7},
				{11, 12},
				{16, 17},
			}),
		},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%s", test.m), func(t *testing.T) {
			t.Parallel()
			s := test.m.Slice(test.y, test.x)
			if !s.Equal(test.s) {
				t.Fatalf("%s, expected %s", s, test.s)
			}
		})
	}
}

func TestAdd(t *testing.T) {
	t.Parallel()
	tests := []struct {
		a          *COO
		c          complex128
		b          *COO
		z          *COO
		numNonZero int
	}{
		{
			a: M([][]complex128{
				{1, 0},
				{0, 2i},
			}),
			c: 1i,
			b: M([][]complex128{
				{1i, 0},
				{2, -5},
			}),
			z: M([][]complex128{
				{0, 0},
				{2i, -3i},
			}),
			numNonZero: 2,
		},
		// Add scalar using broadcast.
		{
			a: M([][]complex128{
				{0, 3},
				{-1, 2},
			}),
			c: 1,
			b: M([][]complex128{{-2}}),
			z: M([][]complex128{
				{0, 1},
				{-3, 0},
			}),
			numNonZero: 2,
		},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%s", test.a), func(t *testing.T) {
			t.Parallel()
			test.a.Add(test.c, test.b)
			if !test.a.Equal(test.z) {
				t.Fatalf("%s, expected %s", test.a, test.z)
			}
			if len(test.a.Data) != test.numNonZero {
				t.Fatalf("%d, expected %d", len(test.a.Data), test.numNonZero)
			}
		})
	}
}

func TestMatMul(t *testing.T) {
	t.Parallel()
	tests := []struct {
		a *COO
		b *COO
		c *COO
	}{
		{
			a: M([][]complex128{
				{0, 0},
				{-1, 2},
			}),
			b: M([][]complex128{
				{0, 1},
				{0, 2},
			}),
			c: M([][]complex128{
				{0, 0},
				{0, 3},
			}),
		},
		{
			a: M([][]complex128{
				{1, 1i, 0},
				{0, 2, -1},
			}),
			b: M([][]complex128{
				{1},
				{1i},
				{3},
			}),
			c: M([][]complex128{
				{0},
				{-3 + 2i},
			}),
		},
		// Annihilation times creation is the number operator plus one.
		{
			a: M([][]complex128{
				{0, 1, 0},
				{0, 0, complex(math.Sqrt2, 0)},
				{0, 0, 0},
			}),
			b: M([][]complex128{
				{0, 0, 0},
				{1, 0, 0},
				{0, complex(math.Sqrt2, 0), 0},
			}),
			c: M([][]complex128{
				{1, 0, 0},
				{0, 2, 0},
				{0, 0, 0},
			}),
		},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%s", test.a), func(t *testing.T) {
			t.Parallel()
			c, err := MatMul(test.a, test.b)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if !c.EqualApprox(test.c, 1e-12) {
				t.Fatalf("%s, expected %s", c, test.c)
			}
		})
	}
}

func TestMatMulShape(t *testing.T) {
	t.Parallel()
	_, err := MatMul(COOIdentity(2), COOIdentity(3))
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestKron(t *testing.T) {
	t.Parallel()
	tests := []struct {
		a *COO
		b *COO
		c *COO
	}{
		{
			a: M([][]complex128{
				{1, -4, 7},
				{-2, 0, 3},
			}),
			b: M([][]complex128{
				{8, -9, -6, 5},
				{1, -3, 0, 7},
				{2, 8, -8, -3},
				{1, 2, -5, -1},
			}),
			c: M([][]complex128{
				{8, -9, -6, 5, -32, 36, 24, -20, 56, -63, -42, 35},
				{1, -3, 0, 7, -4, 12, 0, -28, 7, -21, 0, 49},
				{2, 8, -8, -3, -8, -32, 32, 12, 14, 56, -56, -21},
				{1, 2, -5, -1, -4, -8, 20, 4, 7, 14, -35, -7},
				{-16, 18, 12, -10, 0, 0, 0, 0, 24, -27, -18, 15},
				{-2, 6, 0, -14, 0, 0, 0, 0, 3, -9, 0, 21},
				{-4, -16, 16, 6, 0, 0, 0, 0, 6, 24, -24, -9},
				{-2, -4, 10, 2, 0, 0, 0, 0, 3, 6, -15, -3},
			}),
		},
		// Scalar kronecker.
		{
			a: M([][]complex128{{1}}),
			b: M([][]complex128{
				{1, 2},
				{3, 4},
			}),
			c: M([][]complex128{
				{1, 2},
				{3, 4},
			}),
		},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%s", test.a), func(t *testing.T) {
			t.Parallel()
			test.a.Kron(test.b)
			if !test.a.Equal(test.c) {
				t.Fatalf("%s, expected %s", test.a, test.c)
			}
		})
	}
}

func TestH(t *testing.T) {
	t.Parallel()
	a := M([][]complex128{
		{1, 2 + 1i, 0},
		{0, 0, -3i},
	})
	h := a.H()
	expected := M([][]complex128{
		{1, 0},
		{2 - 1i, 0},
		{0, 3i},
	})
	if !h.Equal(expected) {
		t.Fatalf("%s, expected %s", h, expected)
	}
	if a.IsHermitian(1e-12) {
		t.Fatalf("non-square matrix reported Hermitian")
	}

	py := M(PauliY)
	if !py.IsHermitian(1e-12) {
		t.Fatalf("%s is not Hermitian", py)
	}
	if M([][]complex128{{0, 1}, {0, 0}}).IsHermitian(1e-12) {
		t.Fatalf("raising operator reported Hermitian")
	}
}

func TestAt(t *testing.T) {
	t.Parallel()
	m := M([][]complex128{
		{0, 1, 0},
		{2i, 0, 3},
	})
	tests := []struct {
		i, j int
		v    complex128
	}{
		{i: 0, j: 0, v: 0},
		{i: 0, j: 1, v: 1},
		{i: 1, j: 0, v: 2i},
		{i: 1, j: 2, v: 3},
	}
	for _, test := range tests {
		if v := m.At(test.i, test.j); v != test.v {
			t.Fatalf("%d %d %v, expected %v", test.i, test.j, v, test.v)
		}
	}
}

func TestMEmpty(t *testing.T) {
	t.Parallel()
	m := M(nil)
	if m.Rows() != 0 || m.Cols() != 0 {
		t.Fatalf("%d %d", m.Rows(), m.Cols())
	}
}

func TestReadCOO(t *testing.T) {
	t.Parallel()
	dir, err := os.MkdirTemp("", "")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	defer os.RemoveAll(dir)

	m := M([][]complex128{
		{0.5, 0, 1 + 2i},
		{0, -1, 0},
	})
	if err := m.WriteCOO(dir); err != nil {
		t.Fatalf("%+v", err)
	}
	read, err := ReadCOO(dir)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if !read.Equal(m) {
		t.Fatalf("%s, expected %s", read, m)
	}
}

func TestEigenHermitian(t *testing.T) {
	t.Parallel()
	s2 := complex(1/math.Sqrt2, 0)
	tests := []struct {
		m    *COO
		vals []float64
		vecs [][]complex128
	}{
		{
			m: M([][]complex128{
				{2, 1},
				{1, 2},
			}),
			vals: []float64{1, 3},
			vecs: [][]complex128{{s2, -s2}, {s2, s2}},
		},
		{
			m: M([][]complex128{
				{1, -1i},
				{1i, 1},
			}),
			vals: []float64{0, 2},
			vecs: [][]complex128{{s2, -1i * s2}, {s2, 1i * s2}},
		},
		// Degenerate complex eigenspace.
		{
			m: M([][]complex128{
				{2, 1i, 0},
				{-1i, 2, 0},
				{0, 0, 1},
			}),
			vals: []float64{1, 1, 3},
		},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%s", test.m), func(t *testing.T) {
			t.Parallel()
			vvs, err := test.m.EigenHermitian()
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if len(vvs) != len(test.vals) {
				t.Fatalf("%d, expected %d", len(vvs), len(test.vals))
			}
			for i, vv := range vvs {
				if math.Abs(vv.Val-test.vals[i]) > 1e-9 {
					t.Fatalf("%d %f, expected %f", i, vv.Val, test.vals[i])
				}
				// Eigen equation.
				hv := test.m.MulVec(vv.Vec)
				for j, v := range hv {
					if cmplx.Abs(v-complex(vv.Val, 0)*vv.Vec[j]) > 1e-9 {
						t.Fatalf("%d %d %v %v", i, j, v, vv.Vec[j])
					}
				}
				// Orthonormality.
				for k, other := range vvs {
					expected := 0.0
					if k == i {
						expected = 1
					}
					if o := Overlap(vv.Vec, other.Vec); math.Abs(o-expected) > 1e-9 {
						t.Fatalf("%d %d %f", i, k, o)
					}
				}
				if test.vecs != nil {
					if o := Overlap(vv.Vec, test.vecs[i]); math.Abs(o-1) > 1e-9 {
						t.Fatalf("%d %v, expected %v", i, vv.Vec, test.vecs[i])
					}
				}
			}
		})
	}
}

func TestDenseDiagonalizerCount(t *testing.T) {
	t.Parallel()
	vvs, err := DenseDiagonalizer{}.Eigen(Diag([]float64{3, 1, 2}), 2)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if len(vvs) != 2 || vvs[0].Val != 1 || vvs[1].Val != 2 {
		t.Fatalf("%#v", vvs)
	}
}

func TestArnoldiDiagonalizer(t *testing.T) {
	t.Parallel()
	h := M([][]complex128{
		{-2, 0.3, 0, 0, 0, 0.1},
		{0.3, -1, 0.2, 0, 0, 0},
		{0, 0.2, 0, 0.4, 0, 0},
		{0, 0, 0.4, 1, 0.1, 0},
		{0, 0, 0, 0.1, 2, 0.3},
		{0.1, 0, 0, 0, 0.3, 3},
	})
	const count = 2
	vvs, err := ArnoldiDiagonalizer{}.Eigen(h, count)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if len(vvs) != count {
		t.Fatalf("%d", len(vvs))
	}
	for i, vv := range vvs {
		if math.Abs(norm2(vv.Vec)-1) > 1e-6 {
			t.Fatalf("%d %f", i, norm2(vv.Vec))
		}
		hv := h.MulVec(vv.Vec)
		var residual float64
		for j, v := range hv {
			residual += math.Pow(cmplx.Abs(v-complex(vv.Val, 0)*vv.Vec[j]), 2)
		}
		if math.Sqrt(residual) > 1e-3 {
			t.Fatalf("%d %f %f", i, vv.Val, math.Sqrt(residual))
		}
	}

	if _, err := (ArnoldiDiagonalizer{}).Eigen(h, 6); err == nil {
		t.Fatalf("expected error for count equal to dimension")
	}
}
