package models

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"

	"github.com/sirupsen/logrus"

	"advbnn/logging"
	"advbnn/nn"
	"advbnn/nn/layers"
	"advbnn/tensor"
	"advbnn/utils"
)

// NN is a deterministic fully-connected classifier.
// It is not safe for concurrent use: layers cache activations between Forward and Backward.
type NN struct {
	Params     Hyperparams
	InputShape []int
	Classes    int
	Net        *nn.Sequential

	reg     Registry
	key     Key
	trained bool
	log     *logrus.Entry
}

// NewNN builds an untrained network; weights are initialised from Params.Seed.
func NewNN(reg Registry, h Hyperparams, inputShape []int, classes int) (*NN, error) {
	if h.Kind == "" {
		h.Kind = KindNN
	}
	if h.Kind != KindNN && h.Kind != KindGPBase {
		return nil, fmt.Errorf("NN adapter cannot hold kind %q", h.Kind)
	}
	key, err := KeyFor(h)
	if err != nil {
		return nil, err
	}
	net, err := nn.Build(netConfig(h, inputShape, classes, false), rand.New(rand.NewSource(h.Seed)))
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", key.Name, err, utils.ErrTrainingFailure)
	}
	return &NN{
		Params:     h,
		InputShape: append([]int(nil), inputShape...),
		Classes:    classes,
		Net:        net,
		reg:        reg,
		key:        key,
		log:        logging.GetLogger().WithFields(logrus.Fields{"component": "nn", "model": key.Name}),
	}, nil
}

// NewPresetBase builds the base network of a GP preset under the preset's short key.
func NewPresetBase(reg Registry, dataset string, p GPPreset, inputShape []int, classes int) (*NN, error) {
	m, err := NewNN(reg, p.BaseHyperparams(dataset), inputShape, classes)
	if err != nil {
		return nil, err
	}
	m.key = p.BaseKey(dataset)
	m.log = m.log.WithField("model", m.key.Name)
	return m, nil
}

func netConfig(h Hyperparams, inputShape []int, classes int, bayesian bool) nn.NetConfig {
	return nn.NetConfig{
		InputShape:   inputShape,
		Hidden:       h.Hidden,
		Classes:      classes,
		Activation:   h.Activation,
		Architecture: h.Architecture,
		Bayesian:     bayesian,
	}
}

func (m *NN) Key() Key      { return m.key }
func (m *NN) Name() string  { return m.key.Name }
func (m *NN) Trained() bool { return m.trained }

// Train fits the network and persists its weights.
func (m *NN) Train(ctx context.Context, x *tensor.Tensor, labels []int) error {
	if err := trainNet(ctx, m.Net, m.Params, x, labels, m.log); err != nil {
		return err
	}
	m.trained = true
	return m.Save()
}

func trainNet(ctx context.Context, net *nn.Sequential, h Hyperparams, x *tensor.Tensor, labels []int, log *logrus.Entry) error {
	log.WithFields(logrus.Fields{"inputs": len(labels), "epochs": h.Epochs, "lr": h.LR}).Info("training")
	err := nn.Fit(ctx, net, x, labels, nn.TrainConfig{Epochs: h.Epochs, LR: h.LR, BatchSize: nn.DefaultBatchSize, Seed: h.Seed},
		func(s nn.EpochStats) {
			log.WithFields(logrus.Fields{"epoch": s.Epoch, "loss": s.Loss, "acc": s.Accuracy}).Info("epoch done")
		})
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return fmt.Errorf("%v: %w", err, utils.ErrTrainingFailure)
	}
	return nil
}

// Predict returns per-input class probabilities.
func (m *NN) Predict(x *tensor.Tensor) (*tensor.Tensor, error) {
	return nn.Predict(m.Net, x)
}

// Evaluate returns test accuracy in [0,100].
func (m *NN) Evaluate(x *tensor.Tensor, labels []int) (float64, error) {
	p, err := m.Predict(x)
	if err != nil {
		return 0, err
	}
	return nn.Accuracy(p, labels)
}

// Embed returns the activations of the last hidden layer.
func (m *NN) Embed(x *tensor.Tensor) (*tensor.Tensor, error) {
	return m.Net.ForwardUntil(x, m.Net.EmbeddingDepth())
}

// InputGradient returns the gradient of the cross-entropy loss with respect to x.
func (m *NN) InputGradient(x *tensor.Tensor, labels []int) (*tensor.Tensor, error) {
	return nn.InputGradient(m.Net, x, labels)
}

// Save writes the weights to the registry path of the model key.
func (m *NN) Save() error {
	path := m.reg.Path(m.key)
	if err := utils.SaveWeights(path, exportWeights(m.Net, m.key.Name, m.Params)); err != nil {
		return fmt.Errorf("saving %s: %w", m.key.Name, err)
	}
	m.log.WithField("path", path).Info("saved weights")
	return nil
}

// Load restores weights saved under the model key.
func (m *NN) Load() error {
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
	m.log.WithField("path", path).Info("loaded weights")
	return nil
}

func layerName(i int) string { return "layer_" + strconv.Itoa(i) }

func exportWeights(net *nn.Sequential, name string, h Hyperparams) *utils.ModelWeights {
	w := &utils.ModelWeights{
		Version: utils.WeightsVersion,
		Name:    name,
		Meta: map[string]string{
			"kind":         h.Kind,
			"dataset":      h.Dataset,
			"activation":   h.Activation,
			"architecture": h.Architecture,
			"hidden_size":  strconv.Itoa(h.Hidden),
		},
		Layers: make(map[string]utils.LayerWeight),
	}
	for i, layer := range net.Layers {
		n := layerName(i)
		switch l := layer.(type) {
		case *layers.Linear:
			w.Layers[n] = utils.LayerWeight{
				Weight: utils.TensorToWeightData(n+".weight", l.W),
				Bias:   utils.TensorToWeightData(n+".bias", l.B),
			}
		case *layers.BayesLinear:
			w.Layers[n] = utils.LayerWeight{
				Weight:    utils.TensorToWeightData(n+".weight", l.WMu),
				Bias:      utils.TensorToWeightData(n+".bias", l.BMu),
				WeightRho: utils.TensorToWeightData(n+".weight_rho", l.WRho),
				BiasRho:   utils.TensorToWeightData(n+".bias_rho", l.BRho),
			}
		}
	}
	return w
}

// importWeights copies saved tensors into net. Every parameterised layer must be present
// with the shapes of the architecture.
func importWeights(net *nn.Sequential, w *utils.ModelWeights) error {
	for i, layer := range net.Layers {
		n := layerName(i)
		switch l := layer.(type) {
		case *layers.Linear:
			lw, ok := w.Layers[n]
			if !ok {
				return fmt.Errorf("no weights for %s: %w", n, utils.ErrSchemaMismatch)
			}
			if err := utils.CopyInto(l.W, lw.Weight); err != nil {
				return err
			}
			if err := utils.CopyInto(l.B, lw.Bias); err != nil {
				return err
			}
		case *layers.BayesLinear:
			lw, ok := w.Layers[n]
			if !ok {
				return fmt.Errorf("no weights for %s: %w", n, utils.ErrSchemaMismatch)
			}
			for _, pair := range []struct {
				dst *tensor.Tensor
				src *utils.WeightData
			}{{l.WMu, lw.Weight}, {l.BMu, lw.Bias}, {l.WRho, lw.WeightRho}, {l.BRho, lw.BiasRho}} {
				if err := utils.CopyInto(pair.dst, pair.src); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
