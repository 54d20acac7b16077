// Package mat implements the sparse complex matrices used to build Hamiltonians over tensor-product spaces.
//
// Matrices are stored in coordinate (COO) format with entries kept in row-major order.
// Kronecker products of sparse local operators with identities stay sparse, so operators lifted
// into a large composite space cost memory proportional to their number of non-zeros.
package mat

import (
	"cmp"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"math/cmplx"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	FnameShape = "shape.csv"
	FnameCOO   = "coo.csv"
)

var (
	// ErrShape is returned when the shapes of matrices are incompatible for an operation.
	ErrShape = errors.New("shape mismatch")
)

var (
	PauliX = [][]complex128{
		{0, 1},
		{1, 0},
	}
	PauliY = [][]complex128{
		{0, -1i},
		{1i, 0},
	}
	PauliZ = [][]complex128{
		{1, 0},
		{0, -1},
	}
)

// Matrix is a matrix that a Hamiltonian can be assembled into.
type Matrix interface {
	Zeros(int, int)
	Scalar(complex128)
	Rows() int
	Cols() int

	Add(complex128, Matrix)
	Kron(*COO)
	COO() *COO

	WriteCOO(string) error
}

type vRowCol struct {
	v   complex128
	row int
	col int
}

type COO struct {
	rows int
	cols int
	Data []vRowCol

	m map[[2]int]complex128
}

// M returns the sparse form of dense. An empty dense gives a 0x0 matrix.
func M(dense [][]complex128) *COO {
	if len(dense) == 0 {
		return COOZeros(0, 0)
	}
	m := &COO{rows: len(dense), cols: len(dense[0]), Data: make([]vRowCol, 0)}
	for i, row := range dense {
		for j, v := range row {
			if v == 0 {
				continue
			}
			m.Data = append(m.Data, vRowCol{v: v, row: i, col: j})
		}
	}
	return m
}

func COOZeros(rows, cols int) *COO {
	return &COO{rows: rows, cols: cols, Data: make([]vRowCol, 0)}
}

func COOIdentity(rows int) *COO {
	m := COOZeros(rows, rows)
	for i := 0; i < rows; i++ {
		m.Data = append(m.Data, vRowCol{v: 1, row: i, col: i})
	}
	return m
}

// Diag returns the square diagonal matrix with vals on its diagonal.
func Diag(vals []float64) *COO {
	m := COOZeros(len(vals), len(vals))
	for i, v := range vals {
		if v == 0 {
			continue
		}
		m.Data = append(m.Data, vRowCol{v: complex(v, 0), row: i, col: i})
	}
	return m
}

func (m *COO) Rows() int { return m.rows }
func (m *COO) Cols() int { return m.cols }

// NumNonZero returns the number of stored entries.
func (m *COO) NumNonZero() int { return len(m.Data) }

func (m *COO) Zeros(rows, cols int) {
	m.rows, m.cols = rows, cols
	m.Data = m.Data[:0]
}

func (m *COO) Scalar(v complex128) {
	m.rows, m.cols = 1, 1
	m.Data = m.Data[:0]
	m.Data = append(m.Data, vRowCol{v: v, row: 0, col: 0})
}

// At returns the entry at row i and column j.
func (m *COO) At(i, j int) complex128 {
	k, ok := slices.BinarySearchFunc(m.Data, vRowCol{row: i, col: j}, rowMajor)
	if !ok {
		return 0
	}
	return m.Data[k].v
}

// Entries calls fn for every stored entry in row-major order.
func (m *COO) Entries(fn func(i, j int, v complex128)) {
	for _, v := range m.Data {
		fn(v.row, v.col, v.v)
	}
}

func (m *COO) Clone() *COO {
	return &COO{rows: m.rows, cols: m.cols, Data: slices.Clone(m.Data)}
}

func (a *COO) Equal(b *COO) bool {
	if a.rows != b.rows {
		return false
	}
	if a.cols != b.cols {
		return false
	}
	if len(a.Data) != len(b.Data) {
		return false
	}
	for i, av := range a.Data {
		bv := b.Data[i]
		if av != bv {
			return false
		}
	}
	return true
}

// EqualApprox reports whether a and b have the same shape and all entries differ by at most tol.
func (a *COO) EqualApprox(b *COO, tol float64) bool {
	if a.rows != b.rows || a.cols != b.cols {
		return false
	}
	d := a.Clone()
	d.Add(-1, b)
	return d.MaxAbs() <= tol
}

func (m *COO) Slice(yBoundN, xBoundN [2]int) *COO {
	yBound, xBound := yBoundN, xBoundN
	for i := 0; i < 2; i++ {
		if yBound[i] < 0 {
			yBound[i] += m.rows
		}
		if xBound[i] < 0 {
			xBound[i] += m.cols
		}
	}

	s := &COO{rows: yBound[1] - yBound[0], cols: xBound[1] - xBound[0], Data: make([]vRowCol, 0)}
	for _, v := range m.Data {
		if v.row < yBound[0] {
			continue
		}
		if v.row >= yBound[1] {
			break
		}
		if v.col < xBound[0] || v.col >= xBound[1] {
			continue
		}
		s.Data = append(s.Data, vRowCol{v: v.v, row: v.row - yBound[0], col: v.col - xBound[0]})
	}
	return s
}

// Add sets a = a + c*b.
// b may also be a scalar or a column vector, in which case it is broadcast over a's non-zeros.
func (a *COO) Add(c complex128, bMatrix Matrix) {
	b := bMatrix.COO()
	bm := a.scratch()
	for _, v := range b.Data {
		bm[[2]int{v.row, v.col}] = v.v
	}

	broadcast := false
	for i, av := range a.Data {
		var byx [2]int
		switch {
		case b.rows == a.rows && b.cols == a.cols:
			byx[0], byx[1] = av.row, av.col
		case b.rows == 1 && b.cols == 1:
			broadcast = true
		case b.rows == a.rows && b.cols == 1:
			byx[0] = av.row
			broadcast = true
		default:
			panic(fmt.Sprintf("wrong dimensions %dx%d %dx%d", a.rows, a.cols, b.rows, b.cols))
		}
		bv := bm[byx]
		if !broadcast {
			delete(bm, byx)
		}

		a.Data[i].v = av.v + c*bv
	}

	a.Data = slices.DeleteFunc(a.Data, func(v vRowCol) bool {
		return v.v == 0
	})
	if !broadcast && b.rows == a.rows && b.cols == a.cols {
		for yx, bv := range bm {
			if c*bv == 0 {
				continue
			}
			a.Data = append(a.Data, vRowCol{v: c * bv, row: yx[0], col: yx[1]})
		}
	}
	slices.SortFunc(a.Data, rowMajor)
	clear(bm)
}

// Scale multiplies every entry by c.
func (a *COO) Scale(c complex128) {
	for i := range a.Data {
		a.Data[i].v *= c
	}
	a.Data = slices.DeleteFunc(a.Data, func(v vRowCol) bool {
		return v.v == 0
	})
}

func (a *COO) Kron(b *COO) {
	rows := a.rows * b.rows
	cols := a.cols * b.cols
	a.rows, a.cols = rows, cols

	prevElemNum := len(a.Data)
	for i := prevElemNum - 1; i >= 0; i-- {
		av := a.Data[i]
		a.Data[i].v = 0
		for _, bv := range b.Data {
			ky := av.row*b.rows + bv.row
			kx := av.col*b.cols + bv.col
			a.Data = append(a.Data, vRowCol{v: av.v * bv.v, row: ky, col: kx})
		}
	}

	a.Data = slices.DeleteFunc(a.Data, func(v vRowCol) bool {
		return v.v == 0
	})
	slices.SortFunc(a.Data, rowMajor)
}

// MatMul returns the matrix product a @ b.
func MatMul(a, b *COO) (*COO, error) {
	if a.cols != b.rows {
		return nil, errors.Wrapf(ErrShape, "%dx%d @ %dx%d", a.rows, a.cols, b.rows, b.cols)
	}

	byRow := make(map[int][]vRowCol)
	for _, v := range b.Data {
		byRow[v.row] = append(byRow[v.row], v)
	}

	acc := make(map[[2]int]complex128)
	for _, av := range a.Data {
		for _, bv := range byRow[av.col] {
			acc[[2]int{av.row, bv.col}] += av.v * bv.v
		}
	}

	c := COOZeros(a.rows, b.cols)
	for yx, v := range acc {
		if v == 0 {
			continue
		}
		c.Data = append(c.Data, vRowCol{v: v, row: yx[0], col: yx[1]})
	}
	slices.SortFunc(c.Data, rowMajor)
	return c, nil
}

// H returns the conjugate transpose of m.
func (m *COO) H() *COO {
	h := COOZeros(m.cols, m.rows)
	for _, v := range m.Data {
		h.Data = append(h.Data, vRowCol{v: cmplx.Conj(v.v), row: v.col, col: v.row})
	}
	slices.SortFunc(h.Data, rowMajor)
	return h
}

// MaxAbs returns the largest absolute value of the entries.
func (m *COO) MaxAbs() float64 {
	var mx float64
	for _, v := range m.Data {
		mx = max(mx, cmplx.Abs(v.v))
	}
	return mx
}

// HermitianDeviation returns max |m_ij - conj(m_ji)|.
func (m *COO) HermitianDeviation() float64 {
	if m.rows != m.cols {
		return math.Inf(1)
	}
	d := m.Clone()
	d.Add(-1, m.H())
	return d.MaxAbs()
}

// IsHermitian reports whether m equals its conjugate transpose within tol relative to the largest entry.
func (m *COO) IsHermitian(tol float64) bool {
	return m.HermitianDeviation() <= tol*max(1, m.MaxAbs())
}

// IsReal reports whether all entries have zero imaginary part.
func (m *COO) IsReal() bool {
	for _, v := range m.Data {
		if imag(v.v) != 0 {
			return false
		}
	}
	return true
}

// MulVec returns m @ x.
func (m *COO) MulVec(x []complex128) []complex128 {
	if len(x) != m.cols {
		panic(fmt.Sprintf("%d %d", len(x), m.cols))
	}
	y := make([]complex128, m.rows)
	for _, v := range m.Data {
		y[v.row] += v.v * x[v.col]
	}
	return y
}

func (m *COO) COO() *COO {
	return m
}

func (m *COO) scratch() map[[2]int]complex128 {
	if m.m == nil {
		m.m = make(map[[2]int]complex128)
	}
	clear(m.m)
	return m.m
}

func (m *COO) WriteCOO(dir string) error {
	shapePath := filepath.Join(dir, FnameShape)
	if err := os.WriteFile(shapePath, []byte(fmt.Sprintf("%d,%d", m.rows, m.cols)), 0644); err != nil {
		return errors.Wrap(err, "")
	}

	cooPath := filepath.Join(dir, FnameCOO)
	cooF, err := os.Create(cooPath)
	if err != nil {
		return errors.Wrap(err, "")
	}

	w := csv.NewWriter(cooF)
	for _, v := range m.Data {
		if err1 := w.Write([]string{FormatNumpy(v.v), strconv.Itoa(v.row), strconv.Itoa(v.col)}); err1 != nil && err == nil {
			err = errors.Wrap(err1, "")
			break
		}
	}
	w.Flush()
	if err1 := w.Error(); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}

	if err1 := cooF.Close(); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}
	return err
}

// COOReader streams the entries of a coo.csv file.
// An empty value or row field repeats the previous record's value.
type COOReader struct {
	f *os.File
	r *csv.Reader
	i int

	prev vRowCol
}

func NewCOOReader(dir string) (*COOReader, error) {
	r := &COOReader{i: -1}

	cooPath := filepath.Join(dir, FnameCOO)
	var err error
	r.f, err = os.Open(cooPath)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	r.r = csv.NewReader(r.f)
	return r, nil
}

func (r *COOReader) Close() error {
	return r.f.Close()
}

func (r *COOReader) Read() (vRowCol, error) {
	r.i++
	record, err := r.r.Read()
	if err == io.EOF {
		return vRowCol{}, io.EOF
	}
	if err != nil {
		return vRowCol{}, errors.Wrap(err, fmt.Sprintf("%d", r.i))
	}
	if len(record) != 3 {
		return vRowCol{}, errors.Errorf("%d %#v", r.i, record)
	}

	var vrc vRowCol
	switch {
	case record[0] == "":
		vrc.v = r.prev.v
	default:
		v, err := ParseComplex(record[0])
		if err != nil {
			return vRowCol{}, errors.Wrap(err, fmt.Sprintf("%d %#v", r.i, record))
		}
		vrc.v = v
	}

	switch {
	case record[1] == "":
		vrc.row = r.prev.row
	default:
		vrc.row, err = strconv.Atoi(record[1])
		if err != nil {
			return vRowCol{}, errors.Wrap(err, fmt.Sprintf("%d %#v", r.i, record))
		}
	}

	vrc.col, err = strconv.Atoi(record[2])
	if err != nil {
		return vRowCol{}, errors.Wrap(err, fmt.Sprintf("%d %#v", r.i, record))
	}

	r.prev = vrc
	return vrc, nil
}

func ReadCOO(dir string) (*COO, error) {
	m := COOZeros(0, 0)
	var err error
	m.rows, m.cols, err = readShape(dir)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	r, err := NewCOOReader(dir)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer r.Close()
	for {
		v, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "")
		}

		m.Data = append(m.Data, v)
	}
	slices.SortFunc(m.Data, rowMajor)

	return m, nil
}

func readShape(dir string) (int, int, error) {
	f, err := os.Open(filepath.Join(dir, FnameShape))
	if err != nil {
		return -1, -1, errors.Wrap(err, "")
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return -1, -1, errors.Wrap(err, "")
	}
	if len(records) == 0 {
		return -1, -1, errors.Errorf("empty")
	}
	row := records[0]

	if len(row) != 2 {
		return -1, -1, errors.Errorf("%#v", row)
	}
	i, err := strconv.Atoi(row[0])
	if err != nil {
		return -1, -1, errors.Wrap(err, fmt.Sprintf("%#v", row))
	}
	j, err := strconv.Atoi(row[1])
	if err != nil {
		return -1, -1, errors.Wrap(err, fmt.Sprintf("%#v", row))
	}

	return i, j, nil
}

func (m *COO) String() string {
	lines := []string{}
	k := 0
	for i := 0; i < m.rows; i++ {
		cs := []string{}
		for j := 0; j < m.cols; j++ {
			var v complex128
			if k < len(m.Data) && m.Data[k].row == i && m.Data[k].col == j {
				v = m.Data[k].v
				k++
			}
			switch {
			case imag(v) == 0:
				cs = append(cs, format(real(v)))
			case real(v) == 0:
				cs = append(cs, format(imag(v))+"i")
			default:
				cs = append(cs, format(real(v))+"+"+format(imag(v))+"i")
			}
		}
		l := strings.Join(cs, "\t")
		lines = append(lines, l)
	}

	return strings.Join(lines, "\n")
}

func rowMajor(a, b vRowCol) int {
	if c := cmp.Compare(a.row, b.row); c != 0 {
		return c
	}
	return cmp.Compare(a.col, b.col)
}

func format(v float64) string {
	// If v is 0 or -0, return "0" immediately to avoid returning "-0".
	if v == 0 {
		return " 0"
	}

	s := strconv.FormatFloat(v, 'g', 6, 64)

	// Add a space before non-negative numbers to align with other negative numbers in the same column.
	if v >= 0 {
		s = " " + s
	}

	return s
}

func FormatNumpy(v complex128) string {
	switch {
	case imag(v) == 0:
		return strconv.FormatFloat(real(v), 'g', -1, 64)
	default:
		s := strconv.FormatComplex(v, 'g', -1, 128)
		s = strings.ReplaceAll(s, "i", "j")
		return s
	}
}

// ParseComplex parses numbers such as "1", "-0.5", "1+2j", "(1+2i)" or "3j".
func ParseComplex(s string) (complex128, error) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "j", "i")
	v, err := strconv.ParseComplex(s, 128)
	if err != nil {
		return cmplx.NaN(), errors.Wrap(err, "")
	}
	return v, nil
}
