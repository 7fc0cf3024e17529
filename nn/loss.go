package nn

import (
	"fmt"
	"math"

	"advbnn/tensor"
)

// minProb keeps log() finite for saturated predictions.
const minProb = 1e-12

type CrossEntropyLoss struct{}

// Forward returns the mean negative log-likelihood of labels under softmax(logits)
// together with the softmax probabilities.
func (c *CrossEntropyLoss) Forward(logits *tensor.Tensor, labels []int) (float64, *tensor.Tensor, error) {
	if logits.Rows() != len(labels) {
		return 0, nil, fmt.Errorf("cross-entropy: %d rows but %d labels", logits.Rows(), len(labels))
	}
	probs := Softmax(logits)
	loss := 0.0
	for i, y := range labels {
		row := probs.Row(i)
		if y < 0 || y >= len(row) {
			return 0, nil, fmt.Errorf("cross-entropy: label %d out of range for %d classes", y, len(row))
		}
		loss -= math.Log(math.Max(row[y], minProb))
	}
	return loss / float64(len(labels)), probs, nil
}

// Backward computes the gradient of the mean cross-entropy loss with softmax.
// grad = (softmax_output - one_hot_label) / batch
func (c *CrossEntropyLoss) Backward(softmaxOut *tensor.Tensor, labels []int) *tensor.Tensor {
	grad := softmaxOut.Clone()
	scale := 1.0 / float64(len(labels))
	for i, y := range labels {
		row := grad.Row(i)
		row[y] -= 1
		for j := range row {
			row[j] *= scale
		}
	}
	return grad
}

// Softmax applies the softmax function to each row of a [batch, classes] tensor.
func Softmax(logits *tensor.Tensor) *tensor.Tensor {
	out := tensor.New(logits.Shape...)
	for i := 0; i < logits.Rows(); i++ {
		softmaxRow(logits.Row(i), out.Row(i))
	}
	return out
}

func softmaxRow(logits, dst []float64) {
	maxLogit := logits[0]
	for _, v := range logits {
		if v > maxLogit {
			maxLogit = v
		}
	}
	expSum := 0.0
	for i, v := range logits {
		e := math.Exp(v - maxLogit)
		dst[i] = e
		expSum += e
	}
	for i := range dst {
		dst[i] /= expSum
	}
}
