// Package gp implements Gaussian-process classification with the Laplace approximation.
package gp

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"advbnn/tensor"
	"advbnn/utils"
)

// Classifier is a multi-class GP classifier. Two classes use a single binary model;
// more classes use one-vs-rest binary models whose probabilities are normalised per input.
// The kernel is fixed: no hyperparameter optimisation is performed.
type Classifier struct {
	Kernel  Kernel
	MaxIter int

	classes  int
	x        [][]float64
	labels   []int
	binaries []*binaryLaplace
}

func NewClassifier(kernel Kernel) *Classifier {
	return &Classifier{Kernel: kernel, MaxIter: DefaultMaxIter}
}

// Classes is the number of classes seen by Fit, or 0 when unfitted.
func (c *Classifier) Classes() int { return c.classes }

// Fit trains on the rows of x. Labels must lie in [0, classes) and include at least two classes.
func (c *Classifier) Fit(ctx context.Context, x *tensor.Tensor, labels []int, classes int) error {
	if err := c.Kernel.Validate(); err != nil {
		return fmt.Errorf("%v: %w", err, utils.ErrTrainingFailure)
	}
	if x.Rows() != len(labels) || len(labels) == 0 {
		return fmt.Errorf("gp fit: %d inputs and %d labels: %w", x.Rows(), len(labels), utils.ErrTrainingFailure)
	}
	seen := make(map[int]bool)
	for _, y := range labels {
		if y < 0 || y >= classes {
			return fmt.Errorf("gp fit: label %d outside [0,%d): %w", y, classes, utils.ErrTrainingFailure)
		}
		seen[y] = true
	}
	if len(seen) < 2 {
		return fmt.Errorf("gp fit needs samples of at least 2 classes, got %d: %w", len(seen), utils.ErrTrainingFailure)
	}
	rows := make([][]float64, x.Rows())
	for i := range rows {
		rows[i] = append([]float64(nil), x.Row(i)...)
	}
	c.classes, c.x, c.labels = classes, rows, append([]int(nil), labels...)
	return c.fitBinaries(ctx, nil)
}

// fitBinaries fits (or, with latents, restores) one binary model per target class.
func (c *Classifier) fitBinaries(ctx context.Context, latents [][]float64) error {
	K := c.Kernel.Gram(c.x)
	targets := c.binaryTargets()
	c.binaries = make([]*binaryLaplace, len(targets))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, cls := range targets {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			y := make([]float64, len(c.labels))
			for j, l := range c.labels {
				if l == cls {
					y[j] = 1
				}
			}
			if latents != nil {
				b := &binaryLaplace{kernel: c.Kernel, x: c.x, y: y, f: append([]float64(nil), latents[i]...)}
				if err := b.factor(K); err != nil {
					return err
				}
				c.binaries[i] = b
				return nil
			}
			b, err := fitBinary(c.Kernel, K, c.x, y, c.MaxIter)
			if err != nil {
				return fmt.Errorf("class %d: %w", cls, err)
			}
			c.binaries[i] = b
			return nil
		})
	}
	return g.Wait()
}

// binaryTargets lists the positive class of each binary model.
func (c *Classifier) binaryTargets() []int {
	if c.classes == 2 {
		return []int{1}
	}
	t := make([]int, c.classes)
	for i := range t {
		t[i] = i
	}
	return t
}

// PredictProba returns a [batch, classes] tensor of class probabilities.
func (c *Classifier) PredictProba(x *tensor.Tensor) (*tensor.Tensor, error) {
	if c.binaries == nil {
		return nil, fmt.Errorf("gp classifier is not fitted")
	}
	if x.Rows() > 0 && x.RowSize() != len(c.x[0]) {
		return nil, fmt.Errorf("gp predict: input width %d, fitted on %d", x.RowSize(), len(c.x[0]))
	}
	out := tensor.New(x.Rows(), c.classes)
	for n := 0; n < x.Rows(); n++ {
		q := x.Row(n)
		row := out.Row(n)
		if c.classes == 2 {
			p, err := c.binaries[0].predict(q)
			if err != nil {
				return nil, err
			}
			row[0], row[1] = 1-p, p
			continue
		}
		for k, b := range c.binaries {
			p, err := b.predict(q)
			if err != nil {
				return nil, err
			}
			row[k] = p
		}
		normaliseRow(row)
	}
	return out, nil
}

// normaliseRow scales one-vs-rest scores to sum to one. A row with no usable mass
// becomes uniform.
func normaliseRow(row []float64) {
	sum := 0.0
	for _, p := range row {
		sum += p
	}
	if sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		for k := range row {
			row[k] = 1 / float64(len(row))
		}
		return
	}
	for k := range row {
		row[k] /= sum
	}
}

// Predict returns the most probable class of each input.
func (c *Classifier) Predict(x *tensor.Tensor) ([]int, error) {
	p, err := c.PredictProba(x)
	if err != nil {
		return nil, err
	}
	return p.ArgMaxRows(), nil
}
