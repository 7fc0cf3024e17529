package gp

import (
	"context"
	"fmt"

	"advbnn/utils"
)

const StateVersion = "1.0"

// State is the persisted form of a fitted Classifier. Only the training inputs,
// labels and posterior modes are stored; W and the Cholesky factors are recomputed on load.
type State struct {
	Version string      `json:"version"`
	Kernel  Kernel      `json:"kernel"`
	Classes int         `json:"classes"`
	X       [][]float64 `json:"x"`
	Labels  []int       `json:"labels"`
	Latent  [][]float64 `json:"latent"`
}

// StateSchema validates persisted GP state.
const StateSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["version", "kernel", "classes", "x", "labels", "latent"],
  "properties": {
    "version": {"type": "string"},
    "kernel": {
      "type": "object",
      "required": ["amplitude", "length_scale"],
      "properties": {
        "amplitude": {"type": "number", "exclusiveMinimum": 0},
        "length_scale": {"type": "number", "exclusiveMinimum": 0}
      }
    },
    "classes": {"type": "integer", "minimum": 2},
    "x": {"type": "array", "minItems": 1, "items": {"type": "array", "items": {"type": "number"}}},
    "labels": {"type": "array", "items": {"type": "integer", "minimum": 0}},
    "latent": {"type": "array", "minItems": 1, "items": {"type": "array", "items": {"type": "number"}}}
  }
}`

func (c *Classifier) State() State {
	s := State{Version: StateVersion, Kernel: c.Kernel, Classes: c.classes, X: c.x, Labels: c.labels}
	for _, b := range c.binaries {
		s.Latent = append(s.Latent, b.f)
	}
	return s
}

// FromState rebuilds a fitted Classifier.
func FromState(s State) (*Classifier, error) {
	c := NewClassifier(s.Kernel)
	c.classes, c.x, c.labels = s.Classes, s.X, s.Labels
	if len(s.X) != len(s.Labels) {
		return nil, fmt.Errorf("gp state has %d inputs and %d labels: %w", len(s.X), len(s.Labels), utils.ErrSchemaMismatch)
	}
	if len(s.Latent) != len(c.binaryTargets()) {
		return nil, fmt.Errorf("gp state has %d latent vectors for %d classes: %w", len(s.Latent), s.Classes, utils.ErrSchemaMismatch)
	}
	for _, f := range s.Latent {
		if len(f) != len(s.X) {
			return nil, fmt.Errorf("gp latent vector of length %d for %d inputs: %w", len(f), len(s.X), utils.ErrSchemaMismatch)
		}
	}
	if err := c.fitBinaries(context.Background(), s.Latent); err != nil {
		return nil, err
	}
	return c, nil
}

// Save writes the fitted classifier as JSON.
func (c *Classifier) Save(path string) error {
	if c.binaries == nil {
		return fmt.Errorf("gp classifier is not fitted")
	}
	return utils.WriteJSON(path, c.State())
}

// Load reads a classifier written by Save.
func Load(path string) (*Classifier, error) {
	var s State
	if err := utils.ReadJSON(path, StateSchema, &s); err != nil {
		return nil, err
	}
	return FromState(s)
}
