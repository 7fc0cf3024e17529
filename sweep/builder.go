package sweep

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"advbnn/attack"
	"advbnn/data"
	"advbnn/logging"
	"advbnn/models"
)

// Subject is a trained model ready to be attacked. Source is the model gradients are taken
// from, Victim the model that is evaluated; they differ for transfer attacks. nSamples and
// seed select the posterior draws of Bayesian models and are ignored otherwise.
type Subject interface {
	Key() models.Key
	// AttackSamples is the sample count naming a saved attack batch: nSamples for Bayesian
	// subjects, 0 for deterministic ones.
	AttackSamples(nSamples int) int
	Victim(nSamples int, seed int64) (attack.Classifier, error)
	Source(nSamples int, seed int64) (attack.Differentiable, error)
}

// Built is a subject together with the inputs it is attacked on.
type Built struct {
	Subject Subject
	Test    data.Split
}

// Builder trains or loads the model of one combination.
type Builder interface {
	Build(ctx context.Context, h Hyperparams) (*Built, error)
}

// ModelBuilder loads models from Registry, training and saving the missing ones.
type ModelBuilder struct {
	Registry models.Registry
	DataDir  string
	// LoadOnly turns a missing artifact into an error instead of a training run.
	LoadOnly bool
}

func (b *ModelBuilder) Build(ctx context.Context, h Hyperparams) (*Built, error) {
	ds, err := data.Load(b.DataDir, h.Dataset, h.Inputs, h.Seed)
	if err != nil {
		return nil, err
	}
	log := logging.GetLogger().WithFields(logrus.Fields{"component": "builder", "kind": h.Kind, "dataset": h.Dataset})

	switch h.Kind {
	case models.KindNN:
		m, err := models.NewNN(b.Registry, h, ds.InputShape, ds.Classes)
		if err != nil {
			return nil, err
		}
		if err := b.ready(ctx, m, ds.Train); err != nil {
			return nil, err
		}
		log.WithField("model", m.Name()).Debug("ready")
		return &Built{Subject: nnSubject{m}, Test: ds.Test}, nil

	case models.KindBNN:
		m, err := models.NewBNN(b.Registry, h, ds.InputShape, ds.Classes)
		if err != nil {
			return nil, err
		}
		if err := b.ready(ctx, m, ds.Train); err != nil {
			return nil, err
		}
		log.WithField("model", m.Name()).Debug("ready")
		return &Built{Subject: &bnnSubject{m: m}, Test: ds.Test}, nil

	case models.KindGP:
		baseParams := h
		baseParams.Kind = models.KindGPBase
		base, err := models.NewNN(b.Registry, baseParams, ds.InputShape, ds.Classes)
		if err != nil {
			return nil, err
		}
		if err := b.ready(ctx, base, ds.Train); err != nil {
			return nil, err
		}
		m, err := models.NewGPRedBNN(b.Registry, base, h.Inputs)
		if err != nil {
			return nil, err
		}
		if err := b.ready(ctx, m, ds.Train); err != nil {
			return nil, err
		}
		log.WithField("model", m.Name()).Debug("ready")
		return &Built{Subject: gpSubject{m}, Test: ds.Test}, nil

	default:
		return nil, fmt.Errorf("unknown model kind %q", h.Kind)
	}
}

func (b *ModelBuilder) ready(ctx context.Context, m models.Persistent, split data.Split) error {
	if b.LoadOnly {
		return m.Load()
	}
	return models.LoadOrTrain(ctx, m, split.X, split.Labels)
}

type nnSubject struct{ m *models.NN }

func (s nnSubject) Key() models.Key                                  { return s.m.Key() }
func (s nnSubject) AttackSamples(int) int                            { return 0 }
func (s nnSubject) Victim(int, int64) (attack.Classifier, error)     { return s.m, nil }
func (s nnSubject) Source(int, int64) (attack.Differentiable, error) { return s.m, nil }

// bnnSubject attacks and evaluates the same posterior draws for a given sample count and seed.
type bnnSubject struct {
	m     *models.BNN
	draws map[drawKey]*models.Mixture
}

type drawKey struct {
	n    int
	seed int64
}

func (s *bnnSubject) Key() models.Key         { return s.m.Key() }
func (s *bnnSubject) AttackSamples(n int) int { return n }

func (s *bnnSubject) predictive(n int, seed int64) (*models.Mixture, error) {
	k := drawKey{n, seed}
	if mix, ok := s.draws[k]; ok {
		return mix, nil
	}
	mix, err := s.m.Predictive(n, seed)
	if err != nil {
		return nil, err
	}
	if s.draws == nil {
		s.draws = make(map[drawKey]*models.Mixture)
	}
	s.draws[k] = mix
	return mix, nil
}

func (s *bnnSubject) Victim(n int, seed int64) (attack.Classifier, error) {
	mix, err := s.predictive(n, seed)
	if err != nil {
		return nil, err
	}
	return mix, nil
}

func (s *bnnSubject) Source(n int, seed int64) (attack.Differentiable, error) {
	mix, err := s.predictive(n, seed)
	if err != nil {
		return nil, err
	}
	return mix, nil
}

// gpSubject is attacked through its base network; the GP head has no input gradient.
type gpSubject struct{ m *models.GPRedBNN }

func (s gpSubject) Key() models.Key                                  { return s.m.Key() }
func (s gpSubject) AttackSamples(int) int                            { return 0 }
func (s gpSubject) Victim(int, int64) (attack.Classifier, error)     { return s.m, nil }
func (s gpSubject) Source(int, int64) (attack.Differentiable, error) { return s.m.Base, nil }
