// Package sweep runs attack evaluations over a Cartesian grid of model hyperparameters.
package sweep

import (
	"fmt"

	"advbnn/attack"
	"advbnn/data"
	"advbnn/models"
	"advbnn/nn"
	"advbnn/nn/layers"
	"advbnn/results"
)

type (
	Hyperparams = models.Hyperparams
	Point       = results.Point
)

// Grid holds ordered value lists; Combinations takes their full product.
type Grid struct {
	Dataset       string    `yaml:"dataset"`
	Kinds         []string  `yaml:"kinds"`
	Hidden        []int     `yaml:"hidden_size"`
	Activations   []string  `yaml:"activation"`
	Architectures []string  `yaml:"architecture"`
	Epochs        []int     `yaml:"epochs"`
	LRs           []float64 `yaml:"lr"`
	Inputs        []int     `yaml:"n_inputs"`
	Seeds         []int64   `yaml:"seed"`
}

// Validate fills empty lists with defaults and rejects unknown values.
func (g *Grid) Validate() error {
	if !contains(data.Names, g.Dataset) {
		return fmt.Errorf("unknown dataset %q (want one of %v)", g.Dataset, data.Names)
	}
	if len(g.Kinds) == 0 {
		g.Kinds = []string{models.KindNN}
	}
	if len(g.Activations) == 0 {
		g.Activations = []string{"leaky"}
	}
	if len(g.Architectures) == 0 {
		g.Architectures = []string{"fc2"}
	}
	if len(g.Seeds) == 0 {
		g.Seeds = []int64{0}
	}
	for _, k := range g.Kinds {
		if k != models.KindNN && k != models.KindBNN && k != models.KindGP {
			return fmt.Errorf("unknown model kind %q", k)
		}
	}
	for _, a := range g.Activations {
		if _, ok := layers.SupportedActivations[a]; !ok {
			return fmt.Errorf("unsupported activation %q", a)
		}
	}
	for _, a := range g.Architectures {
		if _, ok := nn.Architectures[a]; !ok {
			return fmt.Errorf("unsupported architecture %q", a)
		}
	}
	if len(g.Hidden) == 0 || len(g.Epochs) == 0 || len(g.LRs) == 0 || len(g.Inputs) == 0 {
		return fmt.Errorf("grid needs at least one hidden_size, epochs, lr and n_inputs value")
	}
	for _, h := range g.Hidden {
		if h <= 0 {
			return fmt.Errorf("hidden_size must be positive, got %d", h)
		}
	}
	for _, n := range g.Inputs {
		if n <= 0 {
			return fmt.Errorf("n_inputs must be positive, got %d", n)
		}
	}
	return nil
}

// Combinations returns the Cartesian product, the last list varying fastest.
func (g Grid) Combinations() []Hyperparams {
	var out []Hyperparams
	for _, kind := range g.Kinds {
		for _, hid := range g.Hidden {
			for _, act := range g.Activations {
				for _, arch := range g.Architectures {
					for _, ep := range g.Epochs {
						for _, lr := range g.LRs {
							for _, inp := range g.Inputs {
								for _, seed := range g.Seeds {
									out = append(out, Hyperparams{
										Kind:         kind,
										Dataset:      g.Dataset,
										Hidden:       hid,
										Activation:   act,
										Architecture: arch,
										Epochs:       ep,
										LR:           lr,
										Inputs:       inp,
										Seed:         seed,
									})
								}
							}
						}
					}
				}
			}
		}
	}
	return out
}

// AttackSpec describes the attacks run against every combination.
type AttackSpec struct {
	Method   string    `yaml:"method"`
	Epsilons []float64 `yaml:"epsilons"`
	Samples  []int     `yaml:"n_samples"`
	NInputs  int       `yaml:"n_inputs"`
	Seed     int64     `yaml:"seed"`
}

func (s *AttackSpec) Validate() error {
	if s.Method == "" {
		s.Method = attack.FGSM
	}
	if !contains(attack.Methods, s.Method) {
		return fmt.Errorf("unknown attack method %q (want one of %v)", s.Method, attack.Methods)
	}
	if len(s.Epsilons) == 0 {
		return fmt.Errorf("at least one epsilon is required")
	}
	for _, e := range s.Epsilons {
		if e < 0 {
			return fmt.Errorf("epsilon must be non-negative, got %g", e)
		}
	}
	if len(s.Samples) == 0 {
		s.Samples = []int{1}
	}
	for _, n := range s.Samples {
		if n <= 0 {
			return fmt.Errorf("n_samples must be positive, got %d", n)
		}
	}
	if s.NInputs <= 0 {
		return fmt.Errorf("attacked n_inputs must be positive, got %d", s.NInputs)
	}
	return nil
}

func contains[T comparable](list []T, v T) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
