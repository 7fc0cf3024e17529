package layers

import (
	"fmt"
	"math"
	"math/rand"

	"advbnn/tensor"
)

// Linear is a fully-connected layer y = x·Wᵀ + b over a [batch, inDim] input.
type Linear struct {
	W, B *tensor.Tensor

	gradW, gradB *tensor.Tensor
	lastInput    *tensor.Tensor
}

// NewLinear(inDim→outDim) allocates zeroed W [outDim, inDim] and B [outDim].
func NewLinear(inDim, outDim int) *Linear {
	return &Linear{
		W:     tensor.New(outDim, inDim),
		B:     tensor.New(outDim),
		gradW: tensor.New(outDim, inDim),
		gradB: tensor.New(outDim),
	}
}

// InitGlorot draws W from N(0, 2/(in+out)) and zeroes B.
func (l *Linear) InitGlorot(rng *rand.Rand) {
	scale := math.Sqrt(2.0 / float64(l.W.Shape[1]+l.W.Shape[0]))
	for i := range l.W.Data {
		l.W.Data[i] = rng.NormFloat64() * scale
	}
	for i := range l.B.Data {
		l.B.Data[i] = 0
	}
}

func (l *Linear) InDim() int  { return l.W.Shape[1] }
func (l *Linear) OutDim() int { return l.W.Shape[0] }

// Forward computes the affine map and caches the input for Backward.
func (l *Linear) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	out, err := affine(x, l.W, l.B)
	if err != nil {
		return nil, fmt.Errorf("Linear(%d,%d): %w", l.InDim(), l.OutDim(), err)
	}
	l.lastInput = x
	return out, nil
}

// Backward stores dL/dW, dL/dB (summed over the batch) and returns dL/dx.
func (l *Linear) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if l.lastInput == nil {
		return nil, fmt.Errorf("no cached input for backward pass")
	}
	if l.gradW == nil {
		l.gradW, l.gradB = tensor.New(l.W.Shape...), tensor.New(l.B.Shape...)
	}
	gradIn, err := affineBackward(l.lastInput, gradOut, l.W, l.gradW, l.gradB)
	if err != nil {
		return nil, fmt.Errorf("Linear(%d,%d): %w", l.InDim(), l.OutDim(), err)
	}
	return gradIn, nil
}

func (l *Linear) Params() []Param {
	if l.gradW == nil {
		l.gradW, l.gradB = tensor.New(l.W.Shape...), tensor.New(l.B.Shape...)
	}
	return []Param{
		{Name: "weight", Value: l.W, Grad: l.gradW},
		{Name: "bias", Value: l.B, Grad: l.gradB},
	}
}

func (l *Linear) Tag() string {
	return fmt.Sprintf("Linear(%d,%d)", l.InDim(), l.OutDim())
}

// affine computes x·wᵀ + b for x [batch, in], w [out, in], b [out].
func affine(x, w, b *tensor.Tensor) (*tensor.Tensor, error) {
	inDim, outDim := w.Shape[1], w.Shape[0]
	if len(x.Shape) != 2 || x.Shape[1] != inDim {
		return nil, fmt.Errorf("input shape %v, want [batch %d]", x.Shape, inDim)
	}
	batch := x.Shape[0]
	out := tensor.New(batch, outDim)
	for n := 0; n < batch; n++ {
		xr := x.Data[n*inDim : (n+1)*inDim]
		for j := 0; j < outDim; j++ {
			wr := w.Data[j*inDim : (j+1)*inDim]
			sum := b.Data[j]
			for i, v := range xr {
				sum += wr[i] * v
			}
			out.Data[n*outDim+j] = sum
		}
	}
	return out, nil
}

// affineBackward overwrites gradW/gradB with the batch-summed gradients and returns dL/dx.
func affineBackward(x, gradOut, w, gradW, gradB *tensor.Tensor) (*tensor.Tensor, error) {
	inDim, outDim := w.Shape[1], w.Shape[0]
	batch := x.Shape[0]
	if len(gradOut.Shape) != 2 || gradOut.Shape[0] != batch || gradOut.Shape[1] != outDim {
		return nil, fmt.Errorf("gradient shape %v, want [%d %d]", gradOut.Shape, batch, outDim)
	}
	for i := range gradW.Data {
		gradW.Data[i] = 0
	}
	for i := range gradB.Data {
		gradB.Data[i] = 0
	}
	gradIn := tensor.New(batch, inDim)
	for n := 0; n < batch; n++ {
		xr := x.Data[n*inDim : (n+1)*inDim]
		gi := gradIn.Data[n*inDim : (n+1)*inDim]
		for j := 0; j < outDim; j++ {
			g := gradOut.Data[n*outDim+j]
			if g == 0 {
				continue
			}
			gradB.Data[j] += g
			wr := w.Data[j*inDim : (j+1)*inDim]
			gw := gradW.Data[j*inDim : (j+1)*inDim]
			for i := range xr {
				gw[i] += g * xr[i]
				gi[i] += g * wr[i]
			}
		}
	}
	return gradIn, nil
}
