package nn

import (
	"math/rand"

	"advbnn/nn/layers"
	"advbnn/tensor"
)

// Module defines a single layer/unit in the network.
type Module interface {
	Forward(x *tensor.Tensor) (*tensor.Tensor, error)
	// Backward computes gradients and propagates them.
	// It takes the gradient of the loss with respect to the module's output,
	// and returns the gradient of the loss with respect to the module's input.
	Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error)
}

// Trainable is implemented by modules with parameters.
type Trainable interface {
	Params() []layers.Param
}

// Sequential chains multiple Modules in order.
// Layers cache activations, so a Sequential must not be shared between goroutines.
type Sequential struct {
	Layers []Module
}

// Forward applies each layer in sequence.
func (s *Sequential) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return s.ForwardUntil(x, len(s.Layers))
}

// ForwardUntil applies the first n layers.
func (s *Sequential) ForwardUntil(x *tensor.Tensor, n int) (*tensor.Tensor, error) {
	var err error
	out := x
	for _, layer := range s.Layers[:n] {
		out, err = layer.Forward(out)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Backward applies Backward in reverse order.
func (s *Sequential) Backward(grad *tensor.Tensor) (*tensor.Tensor, error) {
	var err error
	out := grad
	for i := len(s.Layers) - 1; i >= 0; i-- {
		out, err = s.Layers[i].Backward(out)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Params collects the parameters of every trainable layer in order.
func (s *Sequential) Params() []layers.Param {
	var ps []layers.Param
	for _, layer := range s.Layers {
		if t, ok := layer.(Trainable); ok {
			ps = append(ps, t.Params()...)
		}
	}
	return ps
}

// KL sums the posterior KL divergence of every BayesLinear layer.
func (s *Sequential) KL() float64 {
	kl := 0.0
	for _, layer := range s.Layers {
		if b, ok := layer.(*layers.BayesLinear); ok {
			kl += b.KL()
		}
	}
	return kl
}

// Bayesian reports whether any layer holds a weight posterior.
func (s *Sequential) Bayesian() bool {
	for _, layer := range s.Layers {
		if _, ok := layer.(*layers.BayesLinear); ok {
			return true
		}
	}
	return false
}

// Materialize returns a deterministic copy of s. Every BayesLinear is replaced by one
// posterior draw from rng, or by its posterior mean when rng is nil. Linear weights are shared.
func (s *Sequential) Materialize(rng *rand.Rand) (*Sequential, error) {
	out := &Sequential{Layers: make([]Module, 0, len(s.Layers))}
	for _, layer := range s.Layers {
		switch l := layer.(type) {
		case *layers.BayesLinear:
			if rng == nil {
				out.Layers = append(out.Layers, l.Mean())
			} else {
				out.Layers = append(out.Layers, l.Sample(rng))
			}
		case *layers.Linear:
			out.Layers = append(out.Layers, &layers.Linear{W: l.W, B: l.B})
		case *layers.Activation:
			act, err := layers.NewActivation(l.Name())
			if err != nil {
				return nil, err
			}
			out.Layers = append(out.Layers, act)
		case *layers.Flatten:
			out.Layers = append(out.Layers, layers.NewFlatten())
		default:
			out.Layers = append(out.Layers, layer)
		}
	}
	return out, nil
}

// SetKLWeight sets the KL scale of every BayesLinear layer.
func (s *Sequential) SetKLWeight(w float64) {
	for _, layer := range s.Layers {
		if b, ok := layer.(*layers.BayesLinear); ok {
			b.KLWeight = w
		}
	}
}
