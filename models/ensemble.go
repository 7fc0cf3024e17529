package models

import (
	"context"
	"fmt"

	"advbnn/nn"
	"advbnn/tensor"
)

// Ensemble is a set of deterministic networks differing only in their seed (0..k-1).
type Ensemble struct {
	Members []*NN
}

// NewEnsemble builds size untrained members from h, overriding the seed.
func NewEnsemble(reg Registry, h Hyperparams, inputShape []int, classes, size int) (*Ensemble, error) {
	if size <= 0 {
		return nil, fmt.Errorf("ensemble size must be positive, got %d", size)
	}
	e := &Ensemble{}
	for seed := 0; seed < size; seed++ {
		hs := h
		hs.Kind = KindNN
		hs.Seed = int64(seed)
		m, err := NewNN(reg, hs, inputShape, classes)
		if err != nil {
			return nil, err
		}
		e.Members = append(e.Members, m)
	}
	return e, nil
}

// LoadOrTrain loads every member, training (and saving) the ones without an artifact.
func (e *Ensemble) LoadOrTrain(ctx context.Context, x *tensor.Tensor, labels []int) error {
	for _, m := range e.Members {
		if err := LoadOrTrain(ctx, m, x, labels); err != nil {
			return err
		}
	}
	return nil
}

// Mixture returns the averaged predictive of the members.
func (e *Ensemble) Mixture() *Mixture {
	mix := &Mixture{}
	for _, m := range e.Members {
		mix.Members = append(mix.Members, m.Net)
	}
	return mix
}

func (e *Ensemble) Evaluate(x *tensor.Tensor, labels []int) (float64, error) {
	return e.Mixture().Evaluate(x, labels)
}

// MemberAccuracies returns the test accuracy of each member on its own.
func (e *Ensemble) MemberAccuracies(x *tensor.Tensor, labels []int) ([]float64, error) {
	out := make([]float64, len(e.Members))
	for i, m := range e.Members {
		p, err := nn.Predict(m.Net, x)
		if err != nil {
			return nil, err
		}
		if out[i], err = nn.Accuracy(p, labels); err != nil {
			return nil, err
		}
	}
	return out, nil
}
