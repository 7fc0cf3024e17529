package nn

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"advbnn/tensor"
)

// DefaultBatchSize is the mini-batch size used for training.
const DefaultBatchSize = 64

// TrainConfig controls Fit.
type TrainConfig struct {
	Epochs    int
	LR        float64
	BatchSize int
	Seed      int64
}

// EpochStats summarises one training epoch.
type EpochStats struct {
	Epoch    int
	Loss     float64 // mean data loss plus the weighted KL term for Bayesian nets
	Accuracy float64 // percent of training inputs classified correctly during the epoch
}

// Fit trains net with Adam on softmax cross-entropy. Shuffling is deterministic in cfg.Seed.
// Bayesian layers minimise the data loss plus KL(q||p)/N for N training inputs.
// progress, when non-nil, is called after every epoch.
func Fit(ctx context.Context, net *Sequential, x *tensor.Tensor, labels []int, cfg TrainConfig, progress func(EpochStats)) error {
	if cfg.Epochs <= 0 || cfg.LR <= 0 {
		return fmt.Errorf("invalid training config: epochs %d lr %g", cfg.Epochs, cfg.LR)
	}
	if x.Rows() != len(labels) || len(labels) == 0 {
		return fmt.Errorf("training set has %d inputs and %d labels", x.Rows(), len(labels))
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	opt := NewAdam(cfg.LR)
	params := net.Params()
	loss := &CrossEntropyLoss{}
	klWeight := 1.0 / float64(len(labels))
	net.SetKLWeight(klWeight)

	order := make([]int, len(labels))
	for i := range order {
		order[i] = i
	}
	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		totalLoss, correct, batches := 0.0, 0, 0
		for start := 0; start < len(order); start += batch {
			end := min(start+batch, len(order))
			idx := order[start:end]
			xb := x.Gather(idx)
			yb := make([]int, len(idx))
			for k, i := range idx {
				yb[k] = labels[i]
			}
			logits, err := net.Forward(xb)
			if err != nil {
				return err
			}
			l, probs, err := loss.Forward(logits, yb)
			if err != nil {
				return err
			}
			if net.Bayesian() {
				l += klWeight * net.KL()
			}
			if math.IsNaN(l) || math.IsInf(l, 0) {
				return fmt.Errorf("non-finite loss at epoch %d", epoch)
			}
			for k, p := range probs.ArgMaxRows() {
				if p == yb[k] {
					correct++
				}
			}
			if _, err := net.Backward(loss.Backward(probs, yb)); err != nil {
				return err
			}
			opt.Step(params)
			totalLoss += l
			batches++
		}
		if progress != nil {
			progress(EpochStats{
				Epoch:    epoch,
				Loss:     totalLoss / float64(batches),
				Accuracy: 100 * float64(correct) / float64(len(labels)),
			})
		}
	}
	return nil
}

// InputGradient returns dL/dx of the mean cross-entropy loss, shaped like x.
func InputGradient(net *Sequential, x *tensor.Tensor, labels []int) (*tensor.Tensor, error) {
	logits, err := net.Forward(x)
	if err != nil {
		return nil, err
	}
	loss := &CrossEntropyLoss{}
	_, probs, err := loss.Forward(logits, labels)
	if err != nil {
		return nil, err
	}
	return net.Backward(loss.Backward(probs, labels))
}

// Predict returns softmax probabilities for x.
func Predict(net *Sequential, x *tensor.Tensor) (*tensor.Tensor, error) {
	logits, err := net.Forward(x)
	if err != nil {
		return nil, err
	}
	return Softmax(logits), nil
}
