package layers

import (
	"math"
	"testing"

	"advbnn/tensor"
)

func TestActivations(t *testing.T) {
	x := &tensor.Tensor{Data: []float64{-2, 0.5}, Shape: []int{1, 2}}
	tests := []struct {
		name     string
		wantOut  []float64
		wantGrad []float64
	}{
		{"relu", []float64{0, 0.5}, []float64{0, 1}},
		{"leaky", []float64{-0.02, 0.5}, []float64{0.01, 1}},
		{"tanh", []float64{math.Tanh(-2), math.Tanh(0.5)}, []float64{1 - math.Pow(math.Tanh(-2), 2), 1 - math.Pow(math.Tanh(0.5), 2)}},
		{"sigm", []float64{1 / (1 + math.Exp(2)), 1 / (1 + math.Exp(-0.5))}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewActivation(tt.name)
			if err != nil {
				t.Fatal(err)
			}
			y, err := a.Forward(x)
			if err != nil {
				t.Fatal(err)
			}
			for i, w := range tt.wantOut {
				if math.Abs(y.Data[i]-w) > 1e-12 {
					t.Errorf("out[%d] = %f, want %f", i, y.Data[i], w)
				}
			}
			g, err := a.Backward(&tensor.Tensor{Data: []float64{1, 1}, Shape: []int{1, 2}})
			if err != nil {
				t.Fatal(err)
			}
			want := tt.wantGrad
			if want == nil {
				want = []float64{y.Data[0] * (1 - y.Data[0]), y.Data[1] * (1 - y.Data[1])}
			}
			for i, w := range want {
				if math.Abs(g.Data[i]-w) > 1e-12 {
					t.Errorf("grad[%d] = %f, want %f", i, g.Data[i], w)
				}
			}
		})
	}
}

func TestUnsupportedActivation(t *testing.T) {
	if _, err := NewActivation("gelu"); err == nil {
		t.Fatal("expected error for unsupported activation")
	}
}

func TestFlattenRoundTrip(t *testing.T) {
	f := NewFlatten()
	x := tensor.New(2, 1, 2, 3)
	for i := range x.Data {
		x.Data[i] = float64(i)
	}
	y, err := f.Forward(x)
	if err != nil {
		t.Fatal(err)
	}
	if y.Shape[0] != 2 || y.Shape[1] != 6 {
		t.Fatalf("flattened shape %v", y.Shape)
	}
	back, err := f.Backward(y)
	if err != nil {
		t.Fatal(err)
	}
	if !tensor.SameShape(back, x) || back.Data[11] != 11 {
		t.Fatalf("backward shape %v", back.Shape)
	}
}
