// Package models adapts networks and the GP head into trainable, persistable classifiers.
package models

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"advbnn/tensor"
	"advbnn/utils"
)

// Model kinds.
const (
	KindNN     = "nn"
	KindBNN    = "bnn"
	KindGP     = "gp"
	KindGPBase = "gp_base_nn"
)

// Hyperparams identify a trained model. Every field is part of its artifact name.
type Hyperparams struct {
	Kind         string  `yaml:"kind" json:"kind"`
	Dataset      string  `yaml:"dataset" json:"dataset"`
	Hidden       int     `yaml:"hidden_size" json:"hidden_size"`
	Activation   string  `yaml:"activation" json:"activation"`
	Architecture string  `yaml:"architecture" json:"architecture"`
	Epochs       int     `yaml:"epochs" json:"epochs"`
	LR           float64 `yaml:"lr" json:"lr"`
	Inputs       int     `yaml:"n_inputs" json:"n_inputs"`
	Seed         int64   `yaml:"seed" json:"seed"`
}

// Key locates a model artifact: <root>/<Dir>/<Name>.json.
type Key struct {
	Dir  string
	Name string
}

func (k Key) String() string { return k.Dir + "/" + k.Name }

// KeyFor derives the artifact key from hyperparameters. A GP head lives in the directory of
// its base network.
func KeyFor(h Hyperparams) (Key, error) {
	switch h.Kind {
	case KindNN, KindBNN, KindGPBase:
		name := fmt.Sprintf("%s_%s_hid=%d_act=%s_arch=%s_ep=%d_lr=%s_inp=%d_seed=%d",
			h.Dataset, h.Kind, h.Hidden, h.Activation, h.Architecture, h.Epochs, formatFloat(h.LR), h.Inputs, h.Seed)
		return Key{Dir: name, Name: name}, nil
	case KindGP:
		base := h
		base.Kind = KindGPBase
		bk, err := KeyFor(base)
		if err != nil {
			return Key{}, err
		}
		return Key{Dir: bk.Dir, Name: gpName(h.Dataset, h.Inputs)}, nil
	default:
		return Key{}, fmt.Errorf("unknown model kind %q", h.Kind)
	}
}

func gpName(dataset string, nInputs int) string {
	return fmt.Sprintf("%s_GPRedBNN_inp=%d", dataset, nInputs)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Registry maps keys to files under Root.
type Registry struct {
	Root string
}

func (r Registry) Path(k Key) string {
	return filepath.Join(r.Root, k.Dir, k.Name+".json")
}

// Lookup returns the artifact path, or an error wrapping ErrMissingArtifact when it does not exist.
func (r Registry) Lookup(k Key) (string, error) {
	p := r.Path(k)
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("model %s not found at %s: %w", k, p, utils.ErrMissingArtifact)
		}
		return "", err
	}
	return p, nil
}

// Persistent models are restored from, or trained into, the registry.
type Persistent interface {
	Load() error
	Train(ctx context.Context, x *tensor.Tensor, labels []int) error
}

// LoadOrTrain loads m and trains it only when no artifact exists.
func LoadOrTrain(ctx context.Context, m Persistent, x *tensor.Tensor, labels []int) error {
	err := m.Load()
	if err == nil || !errors.Is(err, utils.ErrMissingArtifact) {
		return err
	}
	return m.Train(ctx, x, labels)
}

// GPPreset holds the settings of a saved GP-head experiment.
type GPPreset struct {
	BaseInputs int
	Epochs     int
	LR         float64
	Hidden     int
	GPInputs   int
}

// Presets are the saved GP-head experiments, by dataset.
var Presets = map[string]GPPreset{
	"half_moons": {BaseInputs: 10000, Epochs: 10, LR: 0.001, Hidden: 32, GPInputs: 1000},
	"mnist":      {BaseInputs: 30000, Epochs: 15, LR: 0.001, Hidden: 32, GPInputs: 3000},
}

// BaseKey is the short artifact name the preset base networks were saved under.
func (p GPPreset) BaseKey(dataset string) Key {
	name := fmt.Sprintf("%s_gp_base_nn_hid=%d", dataset, p.Hidden)
	return Key{Dir: name, Name: name}
}

// BaseHyperparams returns the base-network hyperparameters of a preset.
func (p GPPreset) BaseHyperparams(dataset string) Hyperparams {
	return Hyperparams{
		Kind:         KindGPBase,
		Dataset:      dataset,
		Hidden:       p.Hidden,
		Activation:   "leaky",
		Architecture: "fc2",
		Epochs:       p.Epochs,
		LR:           p.LR,
		Inputs:       p.BaseInputs,
	}
}
