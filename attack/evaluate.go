package attack

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"advbnn/tensor"
)

// EvalBatchSize is the number of inputs per Predict call during evaluation.
const EvalBatchSize = 128

// Metrics is the outcome of evaluating one adversarial batch.
type Metrics struct {
	TestAcc    float64   // clean accuracy in [0,100]
	AdvAcc     float64   // adversarial accuracy in [0,100]
	Robustness []float64 // per-input softmax robustness in [0,1]
}

// MeanRobustness is the average per-input robustness.
func (m Metrics) MeanRobustness() float64 {
	return stat.Mean(m.Robustness, nil)
}

// Evaluate measures victim on clean and adversarial inputs. The robustness of input i is
// 1 - ||p(x_i) - p(adv_i)||_inf over the predicted class probabilities.
func Evaluate(victim Classifier, x, adv *tensor.Tensor, labels []int) (Metrics, error) {
	if !tensor.SameShape(x, adv) {
		return Metrics{}, fmt.Errorf("clean shape %v and adversarial shape %v differ", x.Shape, adv.Shape)
	}
	if x.Rows() != len(labels) || len(labels) == 0 {
		return Metrics{}, fmt.Errorf("evaluate: %d inputs and %d labels", x.Rows(), len(labels))
	}
	clean, err := predictBatched(victim, x)
	if err != nil {
		return Metrics{}, err
	}
	attacked, err := predictBatched(victim, adv)
	if err != nil {
		return Metrics{}, err
	}
	m := Metrics{Robustness: make([]float64, len(labels))}
	cleanCorrect, advCorrect := 0, 0
	for i, y := range labels {
		p, q := clean.Row(i), attacked.Row(i)
		if floats.MaxIdx(p) == y {
			cleanCorrect++
		}
		if floats.MaxIdx(q) == y {
			advCorrect++
		}
		diff := 0.0
		for j := range p {
			diff = math.Max(diff, math.Abs(p[j]-q[j]))
		}
		if diff < 0 || diff > 1+1e-9 {
			return Metrics{}, fmt.Errorf("softmax difference %f of input %d outside [0,1]", diff, i)
		}
		m.Robustness[i] = math.Max(0, 1-diff)
	}
	n := float64(len(labels))
	m.TestAcc = 100 * float64(cleanCorrect) / n
	m.AdvAcc = 100 * float64(advCorrect) / n
	return m, nil
}

func predictBatched(c Classifier, x *tensor.Tensor) (*tensor.Tensor, error) {
	var out *tensor.Tensor
	for start := 0; start < x.Rows(); start += EvalBatchSize {
		p, err := c.Predict(x.SliceRows(start, start+EvalBatchSize))
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = tensor.New(x.Rows(), p.RowSize())
		}
		copy(out.Data[start*p.RowSize():], p.Data)
	}
	return out, nil
}
