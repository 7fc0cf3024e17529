package layers

import (
	"fmt"
	"math"

	"advbnn/tensor"
)

// ActFunc holds an element-wise nonlinearity and its derivative.
// Deriv receives both the input x and the output y = F(x).
type ActFunc struct {
	Name  string
	F     func(x float64) float64
	Deriv func(x, y float64) float64
}

// LeakySlope is the negative-side slope of the "leaky" activation.
const LeakySlope = 0.01

// SupportedActivations lists the nonlinearities accepted by NewActivation.
var SupportedActivations = map[string]ActFunc{
	"relu": {
		Name: "relu",
		F:    func(x float64) float64 { return math.Max(x, 0) },
		Deriv: func(x, _ float64) float64 {
			if x > 0 {
				return 1
			}
			return 0
		},
	},
	"leaky": {
		Name: "leaky",
		F: func(x float64) float64 {
			if x > 0 {
				return x
			}
			return LeakySlope * x
		},
		Deriv: func(x, _ float64) float64 {
			if x > 0 {
				return 1
			}
			return LeakySlope
		},
	},
	"sigm": {
		Name:  "sigm",
		F:     func(x float64) float64 { return 1.0 / (1.0 + math.Exp(-x)) },
		Deriv: func(_, y float64) float64 { return y * (1 - y) },
	},
	"tanh": {
		Name:  "tanh",
		F:     math.Tanh,
		Deriv: func(_, y float64) float64 { return 1 - y*y },
	},
}

// Activation is a layer that applies an element-wise nonlinearity.
type Activation struct {
	fn         ActFunc
	lastInput  *tensor.Tensor
	lastOutput *tensor.Tensor
}

// NewActivation creates a new activation layer.
func NewActivation(name string) (*Activation, error) {
	fn, ok := SupportedActivations[name]
	if !ok {
		return nil, fmt.Errorf("unsupported activation: %s", name)
	}
	return &Activation{fn: fn}, nil
}

func (a *Activation) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	out := tensor.New(x.Shape...)
	for i, v := range x.Data {
		out.Data[i] = a.fn.F(v)
	}
	a.lastInput, a.lastOutput = x, out
	return out, nil
}

func (a *Activation) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if a.lastInput == nil {
		return nil, fmt.Errorf("no cached input for backward pass")
	}
	if !tensor.SameShape(gradOut, a.lastInput) {
		return nil, fmt.Errorf("activation %s: gradient shape %v, want %v", a.fn.Name, gradOut.Shape, a.lastInput.Shape)
	}
	gradIn := tensor.New(gradOut.Shape...)
	for i, g := range gradOut.Data {
		gradIn.Data[i] = g * a.fn.Deriv(a.lastInput.Data[i], a.lastOutput.Data[i])
	}
	return gradIn, nil
}

func (a *Activation) Name() string { return a.fn.Name }

func (a *Activation) Tag() string {
	return fmt.Sprintf("Activation(%s)", a.fn.Name)
}
