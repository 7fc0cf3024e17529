package nn

import (
	"fmt"
	"math/rand"

	"advbnn/nn/layers"
)

// Architectures maps an architecture name to its number of hidden layers.
var Architectures = map[string]int{
	"fc":  1,
	"fc2": 2,
}

// NetConfig describes a fully-connected classifier.
type NetConfig struct {
	InputShape   []int // per-input shape, without the batch dimension
	Hidden       int
	Classes      int
	Activation   string
	Architecture string
	// Bayesian builds BayesLinear layers with a N(0,1) prior instead of Linear.
	Bayesian bool
}

// InputDim is the flattened size of one input.
func (c NetConfig) InputDim() int {
	n := 1
	for _, d := range c.InputShape {
		n *= d
	}
	return n
}

// Build assembles Flatten, then Linear+activation per hidden layer, then the output Linear.
func Build(cfg NetConfig, rng *rand.Rand) (*Sequential, error) {
	depth, ok := Architectures[cfg.Architecture]
	if !ok {
		return nil, fmt.Errorf("unsupported architecture: %s", cfg.Architecture)
	}
	if cfg.Hidden <= 0 || cfg.Classes < 2 || cfg.InputDim() <= 0 {
		return nil, fmt.Errorf("invalid network size: input %v hidden %d classes %d", cfg.InputShape, cfg.Hidden, cfg.Classes)
	}
	net := &Sequential{Layers: []Module{layers.NewFlatten()}}
	in := cfg.InputDim()
	for i := 0; i < depth; i++ {
		net.Layers = append(net.Layers, newDense(cfg, in, cfg.Hidden, rng))
		act, err := layers.NewActivation(cfg.Activation)
		if err != nil {
			return nil, err
		}
		net.Layers = append(net.Layers, act)
		in = cfg.Hidden
	}
	net.Layers = append(net.Layers, newDense(cfg, in, cfg.Classes, rng))
	return net, nil
}

func newDense(cfg NetConfig, in, out int, rng *rand.Rand) Module {
	if cfg.Bayesian {
		l := layers.NewBayesLinear(in, out, rng)
		l.InitPosterior(layers.DefaultRhoInit)
		return l
	}
	l := layers.NewLinear(in, out)
	l.InitGlorot(rng)
	return l
}

// EmbeddingDepth is the number of leading layers whose output is the last hidden representation.
func (s *Sequential) EmbeddingDepth() int {
	return len(s.Layers) - 1
}
