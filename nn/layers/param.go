package layers

import "advbnn/tensor"

// Param pairs a trainable tensor with the gradient written by the last Backward.
type Param struct {
	Name  string
	Value *tensor.Tensor
	Grad  *tensor.Tensor
}
