package layers

import "advbnn/tensor"

// Flatten reshapes [batch, d1, d2, ...] into [batch, d1*d2*...].
type Flatten struct {
	inShape []int
}

func NewFlatten() *Flatten { return &Flatten{} }

func (f *Flatten) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	f.inShape = append([]int(nil), x.Shape...)
	y := tensor.New(x.Rows(), x.RowSize())
	copy(y.Data, x.Data)
	return y, nil
}

func (f *Flatten) Backward(g *tensor.Tensor) (*tensor.Tensor, error) {
	if f.inShape == nil {
		return g, nil
	}
	out := tensor.New(f.inShape...)
	copy(out.Data, g.Data)
	return out, nil
}

func (f *Flatten) Tag() string {
	return "Flatten"
}
