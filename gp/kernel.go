package gp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Kernel is a scaled squared-exponential kernel Amplitude * RBF(LengthScale).
type Kernel struct {
	Amplitude   float64 `json:"amplitude"`
	LengthScale float64 `json:"length_scale"`
}

// DefaultKernel is 1.0 * RBF(1.0).
func DefaultKernel() Kernel {
	return Kernel{Amplitude: 1, LengthScale: 1}
}

func (k Kernel) Eval(a, b []float64) float64 {
	d2 := 0.0
	for i := range a {
		d := a[i] - b[i]
		d2 += d * d
	}
	return k.Amplitude * math.Exp(-d2/(2*k.LengthScale*k.LengthScale))
}

func (k Kernel) Validate() error {
	if k.Amplitude <= 0 || k.LengthScale <= 0 {
		return fmt.Errorf("kernel parameters must be positive: %+v", k)
	}
	return nil
}

func (k Kernel) String() string {
	return fmt.Sprintf("%g * RBF(length_scale=%g)", k.Amplitude, k.LengthScale)
}

// Gram returns the symmetric kernel matrix of the rows of x.
func (k Kernel) Gram(x [][]float64) *mat.SymDense {
	n := len(x)
	K := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			K.SetSym(i, j, k.Eval(x[i], x[j]))
		}
	}
	return K
}

// Cross returns the vector k(x_i, q) over the rows of x.
func (k Kernel) Cross(x [][]float64, q []float64) *mat.VecDense {
	v := mat.NewVecDense(len(x), nil)
	for i, xi := range x {
		v.SetVec(i, k.Eval(xi, q))
	}
	return v
}
