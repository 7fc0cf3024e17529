package nn

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"advbnn/tensor"
)

// Accuracy returns the percentage of rows of probs whose argmax equals the label.
func Accuracy(probs *tensor.Tensor, labels []int) (float64, error) {
	if probs.Rows() != len(labels) {
		return 0, fmt.Errorf("accuracy: %d predictions for %d labels", probs.Rows(), len(labels))
	}
	if len(labels) == 0 {
		return 0, fmt.Errorf("accuracy: empty batch")
	}
	correct := 0
	for i, y := range labels {
		if floats.MaxIdx(probs.Row(i)) == y {
			correct++
		}
	}
	return 100 * float64(correct) / float64(len(labels)), nil
}
