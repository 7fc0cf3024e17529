package data

import (
	"math"
	"math/rand"

	"advbnn/tensor"
)

// MoonsNoise is the standard deviation of the Gaussian noise added to half-moon points.
const MoonsNoise = 0.1

// HalfMoons generates n points of two interleaving half circles with labels 0 and 1,
// min-max scaled into [0,1] per coordinate. Points alternate between the moons before shuffling.
func HalfMoons(n int, noise float64, rng *rand.Rand) (*tensor.Tensor, []int) {
	x := tensor.New(n, 2)
	labels := make([]int, n)
	nOuter := (n + 1) / 2
	nInner := n - nOuter
	i := 0
	for k := 0; k < nOuter; k++ {
		t := math.Pi * float64(k) / math.Max(float64(nOuter-1), 1)
		x.Data[2*i], x.Data[2*i+1] = math.Cos(t), math.Sin(t)
		i++
	}
	for k := 0; k < nInner; k++ {
		t := math.Pi * float64(k) / math.Max(float64(nInner-1), 1)
		x.Data[2*i], x.Data[2*i+1] = 1-math.Cos(t), 0.5-math.Sin(t)
		labels[i] = 1
		i++
	}
	for j := range x.Data {
		x.Data[j] += noise * rng.NormFloat64()
	}
	perm := rng.Perm(n)
	x = x.Gather(perm)
	shuffled := make([]int, n)
	for k, p := range perm {
		shuffled[k] = labels[p]
	}
	minMaxScale(x)
	return x, shuffled
}

// minMaxScale maps every column of a [n, d] tensor onto [0,1].
func minMaxScale(x *tensor.Tensor) {
	d := x.RowSize()
	for c := 0; c < d; c++ {
		lo, hi := math.Inf(1), math.Inf(-1)
		for r := 0; r < x.Rows(); r++ {
			v := x.Data[r*d+c]
			lo, hi = math.Min(lo, v), math.Max(hi, v)
		}
		span := hi - lo
		if span == 0 {
			span = 1
		}
		for r := 0; r < x.Rows(); r++ {
			x.Data[r*d+c] = (x.Data[r*d+c] - lo) / span
		}
	}
}
