package models

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"advbnn/gp"
	"advbnn/logging"
	"advbnn/nn"
	"advbnn/tensor"
	"advbnn/utils"
)

// GPRedBNN replaces the output layer of a frozen base network with a GP classifier
// fitted on the last hidden-layer embeddings.
type GPRedBNN struct {
	Base   *NN
	Inputs int
	Kernel gp.Kernel
	GP     *gp.Classifier
	// FitDuration is the wall-clock time of the last GP fit.
	FitDuration time.Duration

	reg Registry
	key Key
	log *logrus.Entry
}

// NewGPRedBNN wraps base, whose hyperparameters must be of kind gp_base_nn.
func NewGPRedBNN(reg Registry, base *NN, nInputs int) (*GPRedBNN, error) {
	if base.Params.Kind != KindGPBase {
		return nil, fmt.Errorf("GP head needs a %s base network, got %q", KindGPBase, base.Params.Kind)
	}
	key := Key{Dir: base.Key().Dir, Name: gpName(base.Params.Dataset, nInputs)}
	return &GPRedBNN{
		Base:   base,
		Inputs: nInputs,
		Kernel: gp.DefaultKernel(),
		reg:    reg,
		key:    key,
		log:    logging.GetLogger().WithFields(logrus.Fields{"component": "gp", "model": key.Name}),
	}, nil
}

func (m *GPRedBNN) Key() Key     { return m.key }
func (m *GPRedBNN) Name() string { return m.key.Name }

// Train embeds x through the frozen base network, fits the GP and persists it.
func (m *GPRedBNN) Train(ctx context.Context, x *tensor.Tensor, labels []int) error {
	emb, err := m.Base.Embed(x)
	if err != nil {
		return err
	}
	c := gp.NewClassifier(m.Kernel)
	start := time.Now()
	if err := c.Fit(ctx, emb, labels, m.Base.Classes); err != nil {
		return fmt.Errorf("%s: %w", m.key.Name, err)
	}
	m.FitDuration = time.Since(start)
	m.GP = c
	m.log.WithFields(logrus.Fields{
		"inputs":      len(labels),
		"kernel":      m.Kernel.String(),
		"duration_us": utils.DurationUS(m.FitDuration),
	}).Info("fitted gp")
	return m.Save()
}

func (m *GPRedBNN) Save() error {
	path := m.reg.Path(m.key)
	if err := m.GP.Save(path); err != nil {
		return fmt.Errorf("saving %s: %w", m.key.Name, err)
	}
	m.log.WithField("path", path).Info("saved gp")
	return nil
}

func (m *GPRedBNN) Load() error {
	path, err := m.reg.Lookup(m.key)
	if err != nil {
		return err
	}
	c, err := gp.Load(path)
	if err != nil {
		return err
	}
	m.GP, m.Kernel = c, c.Kernel
	m.log.WithFields(logrus.Fields{"path": path, "kernel": c.Kernel.String()}).Info("loaded gp")
	return nil
}

// Predict returns per-class probabilities of the GP head.
func (m *GPRedBNN) Predict(x *tensor.Tensor) (*tensor.Tensor, error) {
	if m.GP == nil {
		return nil, fmt.Errorf("%s is neither trained nor loaded", m.key.Name)
	}
	emb, err := m.Base.Embed(x)
	if err != nil {
		return nil, err
	}
	return m.GP.PredictProba(emb)
}

// Evaluate returns 100 * correct / total.
func (m *GPRedBNN) Evaluate(x *tensor.Tensor, labels []int) (float64, error) {
	p, err := m.Predict(x)
	if err != nil {
		return 0, err
	}
	return nn.Accuracy(p, labels)
}
