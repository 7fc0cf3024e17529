// Package data loads the datasets used by the experiments.
package data

import (
	"fmt"
	"math/rand"
	"path/filepath"

	"advbnn/tensor"
)

// Split is a batch of inputs with their integer labels.
type Split struct {
	X      *tensor.Tensor
	Labels []int
}

// Len is the number of inputs.
func (s Split) Len() int { return len(s.Labels) }

// Head returns the first n inputs (all of them when n exceeds the split).
func (s Split) Head(n int) Split {
	if n > s.Len() {
		n = s.Len()
	}
	return Split{X: s.X.SliceRows(0, n), Labels: append([]int(nil), s.Labels[:n]...)}
}

// Dataset is a train/test pair with its per-input shape and class count.
type Dataset struct {
	Name       string
	Train      Split
	Test       Split
	InputShape []int
	Classes    int
}

// Names lists the datasets Load understands.
var Names = []string{"half_moons", "mnist", "fashion_mnist"}

const moonsTrainFraction = 0.8

// Load returns the named dataset. For half_moons, nInputs points are generated from seed and
// split 80/20; for mnist and fashion_mnist the IDX files under dir/<name>/ are read, shuffled
// with seed and both splits truncated to nInputs.
func Load(dir, name string, nInputs int, seed int64) (*Dataset, error) {
	if nInputs <= 0 {
		return nil, fmt.Errorf("n_inputs must be positive, got %d", nInputs)
	}
	rng := rand.New(rand.NewSource(seed))
	switch name {
	case "half_moons":
		x, labels := HalfMoons(nInputs, MoonsNoise, rng)
		all := Split{X: x, Labels: labels}
		nTrain := int(float64(nInputs) * moonsTrainFraction)
		if nTrain == 0 || nTrain == nInputs {
			return nil, fmt.Errorf("half_moons needs at least 2 inputs for a train/test split, got %d", nInputs)
		}
		return &Dataset{
			Name:       name,
			Train:      all.Head(nTrain),
			Test:       Split{X: x.SliceRows(nTrain, nInputs), Labels: labels[nTrain:]},
			InputShape: []int{2},
			Classes:    2,
		}, nil
	case "mnist", "fashion_mnist":
		root := filepath.Join(dir, name)
		train, err := loadIDXSplit(root, "train", rng)
		if err != nil {
			return nil, err
		}
		test, err := loadIDXSplit(root, "t10k", rng)
		if err != nil {
			return nil, err
		}
		return &Dataset{
			Name:       name,
			Train:      train.Head(nInputs),
			Test:       test.Head(nInputs),
			InputShape: train.X.Shape[1:],
			Classes:    10,
		}, nil
	default:
		return nil, fmt.Errorf("unknown dataset %q (want one of %v)", name, Names)
	}
}

// loadIDXSplit reads <prefix>-images-idx3-ubyte and <prefix>-labels-idx1-ubyte,
// scales pixels to [0,1] and shuffles.
func loadIDXSplit(root, prefix string, rng *rand.Rand) (Split, error) {
	dims, pixels, err := readIDX(filepath.Join(root, prefix+"-images-idx3-ubyte"), idxImageDims)
	if err != nil {
		return Split{}, err
	}
	ldims, raw, err := readIDX(filepath.Join(root, prefix+"-labels-idx1-ubyte"), idxLabelDims)
	if err != nil {
		return Split{}, err
	}
	if ldims[0] != dims[0] {
		return Split{}, fmt.Errorf("%s: %d images but %d labels", root, dims[0], ldims[0])
	}
	x := tensor.New(dims[0], 1, dims[1], dims[2])
	for i, p := range pixels {
		x.Data[i] = float64(p) / 255
	}
	labels := make([]int, len(raw))
	for i, l := range raw {
		labels[i] = int(l)
	}
	perm := rng.Perm(len(labels))
	shuffled := make([]int, len(labels))
	for k, p := range perm {
		shuffled[k] = labels[p]
	}
	return Split{X: x.Gather(perm), Labels: shuffled}, nil
}
