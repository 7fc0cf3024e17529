package models

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"

	"advbnn/logging"
	"advbnn/nn"
	"advbnn/tensor"
	"advbnn/utils"
)

// BNN is a mean-field Gaussian variational network trained with Bayes-by-backprop.
// Predictions go through a Mixture of posterior draws.
type BNN struct {
	Params     Hyperparams
	InputShape []int
	Classes    int
	Net        *nn.Sequential

	reg     Registry
	key     Key
	trained bool
	log     *logrus.Entry
}

func NewBNN(reg Registry, h Hyperparams, inputShape []int, classes int) (*BNN, error) {
	h.Kind = KindBNN
	key, err := KeyFor(h)
	if err != nil {
		return nil, err
	}
	net, err := nn.Build(netConfig(h, inputShape, classes, true), rand.New(rand.NewSource(h.Seed)))
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", key.Name, err, utils.ErrTrainingFailure)
	}
	return &BNN{
		Params:     h,
		InputShape: append([]int(nil), inputShape...),
		Classes:    classes,
		Net:        net,
		reg:        reg,
		key:        key,
		log:        logging.GetLogger().WithFields(logrus.Fields{"component": "bnn", "model": key.Name}),
	}, nil
}

func (m *BNN) Key() Key      { return m.key }
func (m *BNN) Name() string  { return m.key.Name }
func (m *BNN) Trained() bool { return m.trained }

// Train fits the variational posterior and persists it.
func (m *BNN) Train(ctx context.Context, x *tensor.Tensor, labels []int) error {
	if err := trainNet(ctx, m.Net, m.Params, x, labels, m.log); err != nil {
		return err
	}
	m.trained = true
	return m.Save()
}

// Predictive draws nSamples weight sets from the posterior. The draws depend only on seed,
// so clean and adversarial evaluation can share them.
func (m *BNN) Predictive(nSamples int, seed int64) (*Mixture, error) {
	if nSamples <= 0 {
		return nil, fmt.Errorf("posterior sample count must be positive, got %d", nSamples)
	}
	rng := rand.New(rand.NewSource(seed))
	mix := &Mixture{Members: make([]*nn.Sequential, 0, nSamples)}
	for i := 0; i < nSamples; i++ {
		net, err := m.Net.Materialize(rng)
		if err != nil {
			return nil, err
		}
		mix.Members = append(mix.Members, net)
	}
	return mix, nil
}

// Evaluate returns test accuracy of the nSamples-draw predictive.
func (m *BNN) Evaluate(x *tensor.Tensor, labels []int, nSamples int, seed int64) (float64, error) {
	mix, err := m.Predictive(nSamples, seed)
	if err != nil {
		return 0, err
	}
	return mix.Evaluate(x, labels)
}

func (m *BNN) Save() error {
	path := m.reg.Path(m.key)
	if err := utils.SaveWeights(path, exportWeights(m.Net, m.key.Name, m.Params)); err != nil {
		return fmt.Errorf("saving %s: %w", m.key.Name, err)
	}
	m.log.WithField("path", path).Info("saved posterior")
	return nil
}

func (m *BNN) Load() error {
	path, err := m.reg.Lookup(m.key)
	if err != nil {
		return err
	}
	w, err := utils.LoadWeights(path)
	if err != nil {
		return err
	}
	if err := importWeights(m.Net, w); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	m.trained = true
	m.log.WithField("path", path).Info("loaded posterior")
	return nil
}
