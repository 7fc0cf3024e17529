package attack

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"advbnn/tensor"
	"advbnn/utils"
)

// Batch is a persisted set of adversarial inputs.
type Batch struct {
	Model    string    `json:"model"`
	Method   string    `json:"method"`
	Epsilon  float64   `json:"epsilon"`
	NSamples int       `json:"n_samples,omitempty"`
	Shape    []int     `json:"shape"`
	Data     []float64 `json:"data"`
}

const batchSchema = `{
  "type": "object",
  "required": ["model", "method", "epsilon", "shape", "data"],
  "properties": {
    "model": {"type": "string"},
    "method": {"enum": ["fgsm", "pgd"]},
    "epsilon": {"type": "number", "minimum": 0},
    "n_samples": {"type": "integer", "minimum": 0},
    "shape": {"type": "array", "minItems": 1, "items": {"type": "integer", "minimum": 0}},
    "data": {"type": "array", "items": {"type": "number", "minimum": 0, "maximum": 1}}
  }
}`

// FileName is <model>_<method>_eps=<eps>[_attackSamp=<n>]_attack.json.gz;
// the sample suffix is present only for nSamples > 0.
func FileName(model, method string, epsilon float64, nSamples int) string {
	name := fmt.Sprintf("%s_%s_eps=%s", model, method, strconv.FormatFloat(epsilon, 'g', -1, 64))
	if nSamples > 0 {
		name += "_attackSamp=" + strconv.Itoa(nSamples)
	}
	return name + "_attack.json.gz"
}

// Tensor returns the adversarial inputs.
func (b *Batch) Tensor() (*tensor.Tensor, error) {
	t, err := tensor.NewWithData(b.Data, b.Shape...)
	if err != nil {
		return nil, fmt.Errorf("attack batch: %v: %w", err, utils.ErrSchemaMismatch)
	}
	return t, nil
}

// Save writes b as gzip-compressed JSON, atomically.
func Save(path string, b *Batch) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to marshal attack batch: %w", err)
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return utils.WriteFileAtomic(path, buf.Bytes())
}

// Load reads a batch written by Save.
func Load(path string) (*Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, utils.ErrMissingArtifact)
		}
		return nil, err
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", path, err, utils.ErrSchemaMismatch)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", path, err, utils.ErrSchemaMismatch)
	}
	if err := utils.ValidateJSON(batchSchema, raw); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	var b Batch
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("%s: %v: %w", path, err, utils.ErrSchemaMismatch)
	}
	if _, err := b.Tensor(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &b, nil
}
