package gp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"advbnn/utils"
)

const (
	// DefaultMaxIter bounds the Newton iterations of the Laplace mode search.
	DefaultMaxIter = 100
	convergenceTol = 1e-10
)

// binaryLaplace is a binary GP classifier with logistic likelihood, fitted by
// locating the posterior mode f̂ with Newton's method (Rasmussen & Williams, alg. 3.1).
type binaryLaplace struct {
	kernel Kernel
	x      [][]float64
	y      []float64 // targets in {0,1}
	f      []float64 // posterior mode of the latent function

	// derived from f
	resid []float64    // y - σ(f̂)
	sqrtW []float64    // sqrt(σ(f̂)(1-σ(f̂)))
	chol  mat.Cholesky // B = I + W^½ K W^½
}

func fitBinary(kernel Kernel, K *mat.SymDense, x [][]float64, y []float64, maxIter int) (*binaryLaplace, error) {
	n := len(y)
	b := &binaryLaplace{kernel: kernel, x: x, y: y, f: make([]float64, n)}
	f := mat.NewVecDense(n, b.f)
	obj := math.Inf(-1)
	for it := 0; it < maxIter; it++ {
		if err := b.factor(K); err != nil {
			return nil, err
		}
		// rhs = W f + (y - π)
		rhs := mat.NewVecDense(n, nil)
		for i := 0; i < n; i++ {
			w := b.sqrtW[i] * b.sqrtW[i]
			rhs.SetVec(i, w*b.f[i]+b.resid[i])
		}
		// a = rhs - W^½ B⁻¹ W^½ K rhs
		var kr mat.VecDense
		kr.MulVec(K, rhs)
		for i := 0; i < n; i++ {
			kr.SetVec(i, kr.AtVec(i)*b.sqrtW[i])
		}
		var sol mat.VecDense
		if err := b.chol.SolveVecTo(&sol, &kr); err != nil {
			return nil, fmt.Errorf("laplace newton step: %v: %w", err, utils.ErrTrainingFailure)
		}
		a := mat.NewVecDense(n, nil)
		for i := 0; i < n; i++ {
			a.SetVec(i, rhs.AtVec(i)-b.sqrtW[i]*sol.AtVec(i))
		}
		f.MulVec(K, a)

		next := -0.5*mat.Dot(a, f) + logLikelihood(b.y, b.f)
		if math.IsNaN(next) {
			return nil, fmt.Errorf("laplace objective diverged at iteration %d: %w", it, utils.ErrTrainingFailure)
		}
		if next-obj < convergenceTol {
			break
		}
		obj = next
	}
	if err := b.factor(K); err != nil {
		return nil, err
	}
	return b, nil
}

// factor recomputes π, W^½ and the Cholesky factor of B from the current f.
func (b *binaryLaplace) factor(K *mat.SymDense) error {
	n := len(b.f)
	b.resid = make([]float64, n)
	b.sqrtW = make([]float64, n)
	for i, fi := range b.f {
		p := sigmoid(fi)
		b.resid[i] = b.y[i] - p
		b.sqrtW[i] = math.Sqrt(p * (1 - p))
	}
	B := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := b.sqrtW[i] * K.At(i, j) * b.sqrtW[j]
			if i == j {
				v++
			}
			B.SetSym(i, j, v)
		}
	}
	if ok := b.chol.Factorize(B); !ok {
		return fmt.Errorf("cholesky of %dx%d laplace system failed: %w", n, n, utils.ErrTrainingFailure)
	}
	return nil
}

// predict returns P(y=1 | q) under the probit approximation of the
// predictive integral σ(κ·mean), κ = 1/sqrt(1 + π·var/8).
func (b *binaryLaplace) predict(q []float64) (float64, error) {
	ks := b.kernel.Cross(b.x, q)
	mean := 0.0
	for i := range b.resid {
		mean += ks.AtVec(i) * b.resid[i]
	}
	wk := mat.NewVecDense(len(b.sqrtW), nil)
	for i, s := range b.sqrtW {
		wk.SetVec(i, s*ks.AtVec(i))
	}
	var sol mat.VecDense
	if err := b.chol.SolveVecTo(&sol, wk); err != nil {
		return 0, fmt.Errorf("predictive variance: %w", err)
	}
	variance := b.kernel.Eval(q, q) - mat.Dot(wk, &sol)
	if variance < 0 {
		variance = 0
	}
	kappa := 1 / math.Sqrt(1+math.Pi*variance/8)
	return sigmoid(kappa * mean), nil
}

func logLikelihood(y, f []float64) float64 {
	ll := 0.0
	for i, fi := range f {
		ll += y[i]*fi - softplus(fi)
	}
	return ll
}

func softplus(x float64) float64 {
	if x > 30 {
		return x
	}
	return math.Log1p(math.Exp(x))
}

func sigmoid(x float64) float64 { return 1.0 / (1.0 + math.Exp(-x)) }
