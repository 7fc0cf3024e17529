// Package attack crafts FGSM and PGD adversarial inputs and measures their effect.
package attack

import (
	"context"
	"fmt"
	"math"

	"advbnn/tensor"
)

// Classifier returns per-input class probabilities.
type Classifier interface {
	Predict(x *tensor.Tensor) (*tensor.Tensor, error)
}

// Differentiable classifiers also expose the input gradient of their cross-entropy loss.
type Differentiable interface {
	Classifier
	InputGradient(x *tensor.Tensor, labels []int) (*tensor.Tensor, error)
}

const (
	FGSM = "fgsm"
	PGD  = "pgd"
)

// Methods lists the supported attack methods.
var Methods = []string{FGSM, PGD}

const (
	// DefaultEpsilon is the perturbation bound used when none is given.
	DefaultEpsilon = 0.3
	// PGDAlpha is the step size of one PGD iteration.
	PGDAlpha = 2.0 / 255
	// PGDIterations is the number of PGD steps.
	PGDIterations = 40
)

// Params configures Generate.
type Params struct {
	Method     string
	Epsilon    float64
	Alpha      float64
	Iterations int
}

// DefaultParams returns the standard settings of method at the given epsilon.
func DefaultParams(method string, epsilon float64) Params {
	p := Params{Method: method, Epsilon: epsilon}
	if method == PGD {
		p.Alpha, p.Iterations = PGDAlpha, PGDIterations
	}
	return p
}

func (p Params) Validate() error {
	switch p.Method {
	case FGSM:
	case PGD:
		if p.Alpha <= 0 || p.Iterations <= 0 {
			return fmt.Errorf("pgd needs positive alpha and iterations, got %g and %d", p.Alpha, p.Iterations)
		}
	default:
		return fmt.Errorf("unknown attack method %q (want one of %v)", p.Method, Methods)
	}
	if p.Epsilon < 0 || math.IsNaN(p.Epsilon) {
		return fmt.Errorf("epsilon must be non-negative, got %g", p.Epsilon)
	}
	return nil
}

// Generate returns an adversarial copy of x with the same shape, every value in [0,1]
// and within Epsilon of x in L-inf norm.
func Generate(ctx context.Context, source Differentiable, x *tensor.Tensor, labels []int, p Params) (*tensor.Tensor, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if x.Rows() != len(labels) {
		return nil, fmt.Errorf("attack: %d inputs and %d labels", x.Rows(), len(labels))
	}
	switch p.Method {
	case FGSM:
		return fgsm(source, x, labels, p.Epsilon)
	default:
		return pgd(ctx, source, x, labels, p)
	}
}

// fgsm takes one step of size epsilon along the sign of the loss gradient.
func fgsm(source Differentiable, x *tensor.Tensor, labels []int, epsilon float64) (*tensor.Tensor, error) {
	grad, err := source.InputGradient(x, labels)
	if err != nil {
		return nil, fmt.Errorf("fgsm gradient: %w", err)
	}
	adv := x.Clone()
	for i, g := range grad.Data {
		adv.Data[i] += epsilon * sign(g)
	}
	adv.Clamp(0, 1)
	return adv, nil
}

// pgd iterates signed gradient steps of size alpha, projecting onto the epsilon ball
// around x and onto [0,1] after each step.
func pgd(ctx context.Context, source Differentiable, x *tensor.Tensor, labels []int, p Params) (*tensor.Tensor, error) {
	adv := x.Clone()
	for it := 0; it < p.Iterations; it++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		grad, err := source.InputGradient(adv, labels)
		if err != nil {
			return nil, fmt.Errorf("pgd gradient at iteration %d: %w", it, err)
		}
		for i, g := range grad.Data {
			step := adv.Data[i] + p.Alpha*sign(g)
			eta := math.Max(-p.Epsilon, math.Min(p.Epsilon, step-x.Data[i]))
			adv.Data[i] = math.Max(0, math.Min(1, x.Data[i]+eta))
		}
	}
	return adv, nil
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
