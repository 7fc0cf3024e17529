package utils

import (
	"fmt"

	"advbnn/tensor"
)

// WeightsVersion is written into every weights file.
const WeightsVersion = "1.0"

// WeightData represents serializable weight data for a layer
type WeightData struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// ModelWeights represents all weights in a model
type ModelWeights struct {
	Version string                 `json:"version"`
	Name    string                 `json:"name"`
	Meta    map[string]string      `json:"meta,omitempty"`
	Layers  map[string]LayerWeight `json:"layers"`
}

// LayerWeight contains weights and bias for a layer. Variational layers also carry
// the pre-softplus scale parameters.
type LayerWeight struct {
	Weight    *WeightData `json:"weight,omitempty"`
	Bias      *WeightData `json:"bias,omitempty"`
	WeightRho *WeightData `json:"weight_rho,omitempty"`
	BiasRho   *WeightData `json:"bias_rho,omitempty"`
}

// WeightsSchema is the JSON schema every weights file must satisfy.
const WeightsSchema = `{
  "type": "object",
  "required": ["version", "name", "layers"],
  "definitions": {
    "tensor": {
      "type": "object",
      "required": ["shape", "data"],
      "properties": {
        "name": {"type": "string"},
        "shape": {"type": "array", "items": {"type": "integer", "minimum": 0}},
        "data": {"type": "array", "items": {"type": "number"}}
      }
    }
  },
  "properties": {
    "version": {"type": "string"},
    "name": {"type": "string"},
    "meta": {"type": "object", "additionalProperties": {"type": "string"}},
    "layers": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "properties": {
          "weight": {"$ref": "#/definitions/tensor"},
          "bias": {"$ref": "#/definitions/tensor"},
          "weight_rho": {"$ref": "#/definitions/tensor"},
          "bias_rho": {"$ref": "#/definitions/tensor"}
        }
      }
    }
  }
}`

// SaveWeights saves model weights to a JSON file
func SaveWeights(filepath string, weights *ModelWeights) error {
	if weights.Version == "" {
		weights.Version = WeightsVersion
	}
	return WriteJSON(filepath, weights)
}

// LoadWeights loads model weights from a JSON file
func LoadWeights(filepath string) (*ModelWeights, error) {
	var weights ModelWeights
	if err := ReadJSON(filepath, WeightsSchema, &weights); err != nil {
		return nil, fmt.Errorf("failed to load weights: %w", err)
	}
	return &weights, nil
}

// TensorToWeightData converts a tensor to serializable weight data
func TensorToWeightData(name string, t *tensor.Tensor) *WeightData {
	return &WeightData{
		Name:  name,
		Shape: append([]int(nil), t.Shape...),
		Data:  append([]float64{}, t.Data...), // copy
	}
}

// WeightDataToTensor converts weight data back to a tensor
func WeightDataToTensor(wd *WeightData) (*tensor.Tensor, error) {
	if wd == nil {
		return nil, fmt.Errorf("nil weight data: %w", ErrSchemaMismatch)
	}
	t, err := tensor.NewWithData(wd.Data, wd.Shape...)
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", wd.Name, err, ErrSchemaMismatch)
	}
	return t, nil
}

// CopyInto copies wd into dst, requiring an identical shape.
func CopyInto(dst *tensor.Tensor, wd *WeightData) error {
	src, err := WeightDataToTensor(wd)
	if err != nil {
		return err
	}
	if !tensor.SameShape(dst, src) {
		return fmt.Errorf("%s: shape %v, want %v: %w", wd.Name, src.Shape, dst.Shape, ErrSchemaMismatch)
	}
	copy(dst.Data, src.Data)
	return nil
}
