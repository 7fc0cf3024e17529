package layers

import (
	"fmt"
	"math"
	"math/rand"

	"advbnn/tensor"
)

// DefaultRhoInit puts the initial posterior standard deviation at softplus(-5) ≈ 0.0067.
const DefaultRhoInit = -5.0

// BayesLinear is a mean-field Gaussian linear layer trained with Bayes-by-backprop.
// Each weight w = mu + softplus(rho)·eps, eps ~ N(0,1), is redrawn on every Forward.
// The prior is N(0, PriorSigma²).
type BayesLinear struct {
	WMu, WRho *tensor.Tensor
	BMu, BRho *tensor.Tensor

	PriorSigma float64
	// KLWeight scales the KL term added to the gradients in Backward (1/N for N training inputs).
	KLWeight float64

	rng        *rand.Rand
	w, b       *tensor.Tensor
	epsW, epsB *tensor.Tensor
	lastInput  *tensor.Tensor

	gradW, gradB      *tensor.Tensor
	gradWMu, gradWRho *tensor.Tensor
	gradBMu, gradBRho *tensor.Tensor
}

func NewBayesLinear(inDim, outDim int, rng *rand.Rand) *BayesLinear {
	return &BayesLinear{
		WMu:        tensor.New(outDim, inDim),
		WRho:       tensor.New(outDim, inDim),
		BMu:        tensor.New(outDim),
		BRho:       tensor.New(outDim),
		PriorSigma: 1,
		rng:        rng,
		gradW:      tensor.New(outDim, inDim),
		gradB:      tensor.New(outDim),
		gradWMu:    tensor.New(outDim, inDim),
		gradWRho:   tensor.New(outDim, inDim),
		gradBMu:    tensor.New(outDim),
		gradBRho:   tensor.New(outDim),
	}
}

// InitPosterior draws the means like a Glorot-initialised Linear and sets every rho to rhoInit.
func (l *BayesLinear) InitPosterior(rhoInit float64) {
	scale := math.Sqrt(2.0 / float64(l.InDim()+l.OutDim()))
	for i := range l.WMu.Data {
		l.WMu.Data[i] = l.rng.NormFloat64() * scale
		l.WRho.Data[i] = rhoInit
	}
	for i := range l.BMu.Data {
		l.BMu.Data[i] = 0
		l.BRho.Data[i] = rhoInit
	}
}

func (l *BayesLinear) InDim() int  { return l.WMu.Shape[1] }
func (l *BayesLinear) OutDim() int { return l.WMu.Shape[0] }

// SetRand replaces the source used to draw weight noise.
func (l *BayesLinear) SetRand(rng *rand.Rand) { l.rng = rng }

func (l *BayesLinear) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	l.w, l.epsW = l.draw(l.WMu, l.WRho)
	l.b, l.epsB = l.draw(l.BMu, l.BRho)
	out, err := affine(x, l.w, l.b)
	if err != nil {
		return nil, fmt.Errorf("BayesLinear(%d,%d): %w", l.InDim(), l.OutDim(), err)
	}
	l.lastInput = x
	return out, nil
}

// Backward writes the reparameterised gradients of data loss + KLWeight·KL(q||p)
// for mu and rho and returns dL/dx through the sampled weights.
func (l *BayesLinear) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if l.lastInput == nil {
		return nil, fmt.Errorf("no cached input for backward pass")
	}
	gradIn, err := affineBackward(l.lastInput, gradOut, l.w, l.gradW, l.gradB)
	if err != nil {
		return nil, fmt.Errorf("BayesLinear(%d,%d): %w", l.InDim(), l.OutDim(), err)
	}
	l.reparamGrad(l.WMu, l.WRho, l.epsW, l.gradW, l.gradWMu, l.gradWRho)
	l.reparamGrad(l.BMu, l.BRho, l.epsB, l.gradB, l.gradBMu, l.gradBRho)
	return gradIn, nil
}

func (l *BayesLinear) reparamGrad(mu, rho, eps, gradSample, gradMu, gradRho *tensor.Tensor) {
	p2 := l.PriorSigma * l.PriorSigma
	for i := range mu.Data {
		s := Softplus(rho.Data[i])
		dKLdMu := mu.Data[i] / p2
		dKLdSigma := -1/s + s/p2
		gradMu.Data[i] = gradSample.Data[i] + l.KLWeight*dKLdMu
		gradRho.Data[i] = (gradSample.Data[i]*eps.Data[i] + l.KLWeight*dKLdSigma) * sigmoid(rho.Data[i])
	}
}

// KL returns KL(q||p) summed over every weight and bias.
func (l *BayesLinear) KL() float64 {
	return gaussianKL(l.WMu, l.WRho, l.PriorSigma) + gaussianKL(l.BMu, l.BRho, l.PriorSigma)
}

// Sample draws one weight set from the posterior as a deterministic Linear.
func (l *BayesLinear) Sample(rng *rand.Rand) *Linear {
	lin := NewLinear(l.InDim(), l.OutDim())
	for i := range lin.W.Data {
		lin.W.Data[i] = l.WMu.Data[i] + Softplus(l.WRho.Data[i])*rng.NormFloat64()
	}
	for i := range lin.B.Data {
		lin.B.Data[i] = l.BMu.Data[i] + Softplus(l.BRho.Data[i])*rng.NormFloat64()
	}
	return lin
}

// Mean returns the posterior mean as a deterministic Linear.
func (l *BayesLinear) Mean() *Linear {
	lin := NewLinear(l.InDim(), l.OutDim())
	copy(lin.W.Data, l.WMu.Data)
	copy(lin.B.Data, l.BMu.Data)
	return lin
}

func (l *BayesLinear) Params() []Param {
	return []Param{
		{Name: "weight", Value: l.WMu, Grad: l.gradWMu},
		{Name: "weight_rho", Value: l.WRho, Grad: l.gradWRho},
		{Name: "bias", Value: l.BMu, Grad: l.gradBMu},
		{Name: "bias_rho", Value: l.BRho, Grad: l.gradBRho},
	}
}

func (l *BayesLinear) Tag() string {
	return fmt.Sprintf("BayesLinear(%d,%d)", l.InDim(), l.OutDim())
}

func (l *BayesLinear) draw(mu, rho *tensor.Tensor) (w, eps *tensor.Tensor) {
	w = tensor.New(mu.Shape...)
	eps = tensor.New(mu.Shape...)
	for i := range mu.Data {
		e := l.rng.NormFloat64()
		eps.Data[i] = e
		w.Data[i] = mu.Data[i] + Softplus(rho.Data[i])*e
	}
	return w, eps
}

func gaussianKL(mu, rho *tensor.Tensor, prior float64) float64 {
	kl := 0.0
	for i := range mu.Data {
		s := Softplus(rho.Data[i])
		kl += math.Log(prior/s) + (s*s+mu.Data[i]*mu.Data[i])/(2*prior*prior) - 0.5
	}
	return kl
}

// Softplus is log(1+exp(x)) computed without overflow.
func Softplus(x float64) float64 {
	if x > 30 {
		return x
	}
	return math.Log1p(math.Exp(x))
}

func sigmoid(x float64) float64 { return 1.0 / (1.0 + math.Exp(-x)) }
