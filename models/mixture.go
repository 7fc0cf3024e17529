package models

import (
	"fmt"

	"advbnn/nn"
	"advbnn/tensor"
)

// Mixture is the equally weighted predictive of several deterministic networks:
// p(y|x) = 1/n Σ softmax(net_k(x)).
type Mixture struct {
	Members []*nn.Sequential
}

func (m *Mixture) Predict(x *tensor.Tensor) (*tensor.Tensor, error) {
	probs, err := m.memberProbs(x)
	if err != nil {
		return nil, err
	}
	return average(probs), nil
}

func (m *Mixture) Evaluate(x *tensor.Tensor, labels []int) (float64, error) {
	p, err := m.Predict(x)
	if err != nil {
		return 0, err
	}
	return nn.Accuracy(p, labels)
}

// InputGradient returns the gradient of the mean cross-entropy of the averaged predictive.
// For member k with softmax p_k and label c, dL/dz_k[j] = p_k[c]·(p_k[j] - δ_cj) / (B·n·p̄[c]).
func (m *Mixture) InputGradient(x *tensor.Tensor, labels []int) (*tensor.Tensor, error) {
	if x.Rows() != len(labels) {
		return nil, fmt.Errorf("mixture gradient: %d inputs and %d labels", x.Rows(), len(labels))
	}
	probs, err := m.memberProbs(x)
	if err != nil {
		return nil, err
	}
	avg := average(probs)
	scale := 1 / float64(len(labels)*len(m.Members))
	var grad *tensor.Tensor
	for k, net := range m.Members {
		// memberProbs ran every member forward on x, so Backward sees the right cache
		gz := tensor.New(probs[k].Shape...)
		for b, c := range labels {
			pk := probs[k].Row(b)
			coef := scale * pk[c] / max(avg.Row(b)[c], 1e-12)
			row := gz.Row(b)
			for j := range row {
				row[j] = coef * pk[j]
			}
			row[c] -= coef
		}
		gx, err := net.Backward(gz)
		if err != nil {
			return nil, err
		}
		if grad == nil {
			grad = gx
			continue
		}
		for i := range grad.Data {
			grad.Data[i] += gx.Data[i]
		}
	}
	return grad, nil
}

func (m *Mixture) forwardOne(net *nn.Sequential, x *tensor.Tensor) (*tensor.Tensor, error) {
	logits, err := net.Forward(x)
	if err != nil {
		return nil, err
	}
	return nn.Softmax(logits), nil
}

func (m *Mixture) memberProbs(x *tensor.Tensor) ([]*tensor.Tensor, error) {
	if len(m.Members) == 0 {
		return nil, fmt.Errorf("empty mixture")
	}
	out := make([]*tensor.Tensor, len(m.Members))
	for k, net := range m.Members {
		p, err := m.forwardOne(net, x)
		if err != nil {
			return nil, err
		}
		out[k] = p
	}
	return out, nil
}

func average(probs []*tensor.Tensor) *tensor.Tensor {
	avg := tensor.New(probs[0].Shape...)
	for _, p := range probs {
		for i, v := range p.Data {
			avg.Data[i] += v
		}
	}
	n := float64(len(probs))
	for i := range avg.Data {
		avg.Data[i] /= n
	}
	return avg
}
