package gp

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"advbnn/tensor"
	"advbnn/utils"
)

func clusters(centres []float64, perClass int) (*tensor.Tensor, []int) {
	x := tensor.New(len(centres)*perClass, 1)
	labels := make([]int, 0, x.Rows())
	for c, centre := range centres {
		for i := 0; i < perClass; i++ {
			x.Data[c*perClass+i] = centre + 0.1*float64(i)
			labels = append(labels, c)
		}
	}
	return x, labels
}

func checkRows(t *testing.T, p *tensor.Tensor) {
	t.Helper()
	for i := 0; i < p.Rows(); i++ {
		sum := 0.0
		for _, v := range p.Row(i) {
			if v < 0 || v > 1 {
				t.Fatalf("row %d has probability %f", i, v)
			}
			sum += v
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Fatalf("row %d sums to %f", i, sum)
		}
	}
}

func TestBinaryFitSeparatesClusters(t *testing.T) {
	x, labels := clusters([]float64{0, 2}, 4)
	c := NewClassifier(DefaultKernel())
	if err := c.Fit(context.Background(), x, labels, 2); err != nil {
		t.Fatal(err)
	}
	p, err := c.PredictProba(x)
	if err != nil {
		t.Fatal(err)
	}
	checkRows(t, p)
	for i, got := range p.ArgMaxRows() {
		if got != labels[i] {
			t.Errorf("input %d predicted %d, want %d", i, got, labels[i])
		}
	}
}

func TestFarFromDataIsUninformative(t *testing.T) {
	x, labels := clusters([]float64{0, 2}, 4)
	c := NewClassifier(DefaultKernel())
	if err := c.Fit(context.Background(), x, labels, 2); err != nil {
		t.Fatal(err)
	}
	p, err := c.PredictProba(&tensor.Tensor{Data: []float64{100}, Shape: []int{1, 1}})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(p.Data[0]-0.5) > 1e-9 {
		t.Fatalf("far-away probability = %f, want 0.5", p.Data[0])
	}
}

func TestOneVsRest(t *testing.T) {
	x, labels := clusters([]float64{0, 3, 6}, 4)
	c := NewClassifier(DefaultKernel())
	if err := c.Fit(context.Background(), x, labels, 3); err != nil {
		t.Fatal(err)
	}
	preds, err := c.Predict(x)
	if err != nil {
		t.Fatal(err)
	}
	for i, got := range preds {
		if got != labels[i] {
			t.Errorf("input %d predicted %d, want %d", i, got, labels[i])
		}
	}
	p, _ := c.PredictProba(x)
	checkRows(t, p)
}

func TestNormaliseRow(t *testing.T) {
	cases := []struct {
		in, want []float64
	}{
		{[]float64{1, 1, 2}, []float64{0.25, 0.25, 0.5}},
		{[]float64{0, 0, 0}, []float64{1.0 / 3, 1.0 / 3, 1.0 / 3}},
		{[]float64{math.NaN(), 0, 0}, []float64{1.0 / 3, 1.0 / 3, 1.0 / 3}},
	}
	for _, tc := range cases {
		row := append([]float64(nil), tc.in...)
		normaliseRow(row)
		for k := range row {
			if math.Abs(row[k]-tc.want[k]) > 1e-12 {
				t.Errorf("normaliseRow(%v) = %v, want %v", tc.in, row, tc.want)
				break
			}
		}
	}
}

func TestFitNeedsTwoClasses(t *testing.T) {
	x, _ := clusters([]float64{0}, 4)
	c := NewClassifier(DefaultKernel())
	err := c.Fit(context.Background(), x, []int{0, 0, 0, 0}, 2)
	if !errors.Is(err, utils.ErrTrainingFailure) {
		t.Fatalf("expected ErrTrainingFailure, got %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	x, labels := clusters([]float64{0, 3, 6}, 3)
	c := NewClassifier(DefaultKernel())
	if err := c.Fit(context.Background(), x, labels, 3); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "gp.json")
	if err := c.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := c.PredictProba(x)
	got, err := loaded.PredictProba(x)
	if err != nil {
		t.Fatal(err)
	}
	for i := range want.Data {
		if math.Abs(want.Data[i]-got.Data[i]) > 1e-9 {
			t.Fatalf("probability %d = %f after reload, want %f", i, got.Data[i], want.Data[i])
		}
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if !errors.Is(err, utils.ErrMissingArtifact) {
		t.Fatalf("expected ErrMissingArtifact, got %v", err)
	}
}
