package tensor

import "fmt"

// Tensor is a simple n-D array backed by a flat []float64.
// Batches are row-major: the first dimension indexes the input.
type Tensor struct {
	Data  []float64
	Shape []int
}

// New allocates a Tensor of given shape (product of dims = len(Data)).
func New(shape ...int) *Tensor {
	total := 1
	for _, d := range shape {
		total *= d
	}
	return &Tensor{
		Data:  make([]float64, total),
		Shape: append([]int(nil), shape...),
	}
}

// NewWithData creates a tensor of the given shape that copies data.
func NewWithData(data []float64, shape ...int) (*Tensor, error) {
	if len(shape) == 0 {
		shape = []int{len(data)}
	}
	t := New(shape...)
	if len(t.Data) != len(data) {
		return nil, fmt.Errorf("shape %v needs %d values, got %d", shape, len(t.Data), len(data))
	}
	copy(t.Data, data)
	return t, nil
}

// FromRows stacks equally sized rows into a [len(rows), len(rows[0])] tensor.
func FromRows(rows [][]float64) (*Tensor, error) {
	if len(rows) == 0 {
		return New(0, 0), nil
	}
	cols := len(rows[0])
	out := New(len(rows), cols)
	for i, r := range rows {
		if len(r) != cols {
			return nil, fmt.Errorf("row %d has %d values, want %d", i, len(r), cols)
		}
		copy(out.Data[i*cols:], r)
	}
	return out, nil
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{
		Data:  append([]float64(nil), t.Data...),
		Shape: append([]int(nil), t.Shape...),
	}
}

// Rows is the size of the batch dimension.
func (t *Tensor) Rows() int {
	if len(t.Shape) == 0 {
		return 0
	}
	return t.Shape[0]
}

// RowSize is the number of values per batch element.
func (t *Tensor) RowSize() int {
	if t.Rows() == 0 {
		return 0
	}
	return len(t.Data) / t.Rows()
}

// Row returns a view of batch element i.
func (t *Tensor) Row(i int) []float64 {
	n := t.RowSize()
	return t.Data[i*n : (i+1)*n]
}

// SameShape reports whether a and b have identical shapes.
func SameShape(a, b *Tensor) bool {
	if len(a.Shape) != len(b.Shape) {
		return false
	}
	for i := range a.Shape {
		if a.Shape[i] != b.Shape[i] {
			return false
		}
	}
	return true
}

// Reshape returns a tensor sharing t's data with a new shape.
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	total := 1
	for _, d := range shape {
		total *= d
	}
	if total != len(t.Data) {
		return nil, fmt.Errorf("cannot reshape %v into %v", t.Shape, shape)
	}
	return &Tensor{Data: t.Data, Shape: append([]int(nil), shape...)}, nil
}

// SliceRows copies batch elements [start, end).
func (t *Tensor) SliceRows(start, end int) *Tensor {
	if end > t.Rows() {
		end = t.Rows()
	}
	n := t.RowSize()
	shape := append([]int{end - start}, t.Shape[1:]...)
	out := New(shape...)
	copy(out.Data, t.Data[start*n:end*n])
	return out
}

// Gather copies the batch elements listed in idx, in order.
func (t *Tensor) Gather(idx []int) *Tensor {
	n := t.RowSize()
	shape := append([]int{len(idx)}, t.Shape[1:]...)
	out := New(shape...)
	for k, i := range idx {
		copy(out.Data[k*n:(k+1)*n], t.Data[i*n:(i+1)*n])
	}
	return out
}

// Add returns a+b (same shape), or error if shapes differ.
func Add(a, b *Tensor) (*Tensor, error) {
	if !SameShape(a, b) {
		return nil, fmt.Errorf("shape mismatch: %v vs %v", a.Shape, b.Shape)
	}
	out := New(a.Shape...)
	for i := range a.Data {
		out.Data[i] = a.Data[i] + b.Data[i]
	}
	return out, nil
}

// MatMul returns a×b (2-D only), or error if dims mismatch.
func MatMul(a, b *Tensor) (*Tensor, error) {
	if len(a.Shape) != 2 || len(b.Shape) != 2 {
		return nil, fmt.Errorf("MatMul requires 2-D tensors, got %v and %v", a.Shape, b.Shape)
	}
	r, k := a.Shape[0], a.Shape[1]
	k2, c := b.Shape[0], b.Shape[1]
	if k != k2 {
		return nil, fmt.Errorf("inner dimensions must match: %d vs %d", k, k2)
	}
	out := New(r, c)
	for i := 0; i < r; i++ {
		for t := 0; t < k; t++ {
			av := a.Data[i*k+t]
			if av == 0 {
				continue
			}
			for j := 0; j < c; j++ {
				out.Data[i*c+j] += av * b.Data[t*c+j]
			}
		}
	}
	return out, nil
}

// Clamp limits every element to [lo, hi] in place.
func (t *Tensor) Clamp(lo, hi float64) {
	for i, v := range t.Data {
		if v < lo {
			t.Data[i] = lo
		} else if v > hi {
			t.Data[i] = hi
		}
	}
}

// Max returns the largest element.
func (t *Tensor) Max() float64 {
	if len(t.Data) == 0 {
		return 0
	}
	m := t.Data[0]
	for _, v := range t.Data[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// ArgMaxRows returns the index of the largest value in each row.
func (t *Tensor) ArgMaxRows() []int {
	out := make([]int, t.Rows())
	for i := range out {
		row := t.Row(i)
		best := 0
		for j, v := range row {
			if v > row[best] {
				best = j
			}
		}
		out[i] = best
	}
	return out
}

// At returns the element at the given indices.
// For a 4D tensor [a, b, c, d], At(i, j, k, l) returns the element at position [i][j][k][l].
func (t *Tensor) At(indices ...int) float64 {
	return t.Data[t.offset("At", indices)]
}

// Set sets the element at the given indices to the given value.
func (t *Tensor) Set(value float64, indices ...int) {
	t.Data[t.offset("Set", indices)] = value
}

func (t *Tensor) offset(op string, indices []int) int {
	if len(indices) != len(t.Shape) {
		panic(fmt.Sprintf("%s: expected %d indices, got %d", op, len(t.Shape), len(indices)))
	}
	idx := 0
	stride := 1
	for i := len(indices) - 1; i >= 0; i-- {
		if indices[i] < 0 || indices[i] >= t.Shape[i] {
			panic(fmt.Sprintf("%s: index %d out of bounds for dimension %d (shape: %v)", op, indices[i], i, t.Shape))
		}
		idx += indices[i] * stride
		stride *= t.Shape[i]
	}
	return idx
}
