package astrocore

import "github.com/gonum/matrix/mat64"

// Vector is a heap-allocated, dynamic-length vector backed by
// gonum/matrix/mat64, the same dense-linear-algebra package the teacher
// uses throughout estimate.go and station.go.
type Vector struct {
	v *mat64.Vector
}

// NewVector builds a Vector of the given length from data (or zeroed if
// data is nil).
func NewVector(n int, data []float64) *Vector {
	return &Vector{v: mat64.NewVector(n, data)}
}

// Len returns the number of elements in v.
func (v *Vector) Len() int {
	return v.v.Len()
}

// At returns the i-th element.
func (v *Vector) At(i int) float64 {
	return v.v.At(i, 0)
}

// SetAt sets the i-th element.
func (v *Vector) SetAt(i int, val float64) {
	v.v.SetVec(i, val)
}

// Raw returns the underlying gonum vector, for interop with Matrix ops.
func (v *Vector) Raw() *mat64.Vector {
	return v.v
}

// Add returns a new Vector equal to v+o.
func (v *Vector) Add(o *Vector) *Vector {
	if v.Len() != o.Len() {
		panic(NewError(ErrDimensionMismatch, "Vector.Add: %d != %d", v.Len(), o.Len()).Error())
	}
	r := mat64.NewVector(v.Len(), nil)
	r.AddVec(v.v, o.v)
	return &Vector{v: r}
}

// Sub returns a new Vector equal to v-o.
func (v *Vector) Sub(o *Vector) *Vector {
	if v.Len() != o.Len() {
		panic(NewError(ErrDimensionMismatch, "Vector.Sub: %d != %d", v.Len(), o.Len()).Error())
	}
	r := mat64.NewVector(v.Len(), nil)
	r.SubVec(v.v, o.v)
	return &Vector{v: r}
}

// Scale returns a new Vector equal to v scaled by s.
func (v *Vector) Scale(s float64) *Vector {
	r := mat64.NewVector(v.Len(), nil)
	r.ScaleVec(s, v.v)
	return &Vector{v: r}
}

// Dot returns the scalar dot product of v and o.
func (v *Vector) Dot(o *Vector) float64 {
	return mat64.Dot(v.v, o.v)
}

// Norm returns the Euclidean (2-) norm of v.
func (v *Vector) Norm() float64 {
	return mat64.Norm(v.v, 2)
}

// Outer returns the n x n outer product v ⊗ o.
func (v *Vector) Outer(o *Vector) *Matrix {
	n, m := v.Len(), o.Len()
	d := mat64.NewDense(n, m, nil)
	d.Outer(1, v.v, o.v)
	return &Matrix{m: d}
}

// Slice copies v into a plain []float64.
func (v *Vector) Slice() []float64 {
	s := make([]float64, v.Len())
	for i := range s {
		s[i] = v.At(i)
	}
	return s
}
