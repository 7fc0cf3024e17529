package models

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"advbnn/data"
	"advbnn/tensor"
	"advbnn/utils"
)

func moonsHyperparams() Hyperparams {
	return Hyperparams{
		Kind:         KindNN,
		Dataset:      "half_moons",
		Hidden:       16,
		Activation:   "leaky",
		Architecture: "fc2",
		Epochs:       5,
		LR:           0.01,
		Inputs:       200,
		Seed:         0,
	}
}

func loadMoons(t *testing.T, n int) *data.Dataset {
	t.Helper()
	ds, err := data.Load("", "half_moons", n, 0)
	if err != nil {
		t.Fatal(err)
	}
	return ds
}

func TestKeyNames(t *testing.T) {
	h := Hyperparams{Kind: KindNN, Dataset: "half_moons", Hidden: 32, Activation: "leaky", Architecture: "fc2", Epochs: 10, LR: 0.001, Inputs: 1000, Seed: 0}
	k, err := KeyFor(h)
	if err != nil {
		t.Fatal(err)
	}
	want := "half_moons_nn_hid=32_act=leaky_arch=fc2_ep=10_lr=0.001_inp=1000_seed=0"
	if k.Name != want || k.Dir != want {
		t.Fatalf("key = %+v, want %s", k, want)
	}
	gh := h
	gh.Kind, gh.Dataset, gh.Inputs = KindGP, "mnist", 3000
	g, err := KeyFor(gh)
	if err != nil {
		t.Fatal(err)
	}
	wantDir := "mnist_gp_base_nn_hid=32_act=leaky_arch=fc2_ep=10_lr=0.001_inp=3000_seed=0"
	if g.Dir != wantDir || g.Name != "mnist_GPRedBNN_inp=3000" {
		t.Fatalf("gp key = %+v", g)
	}
	other := gh
	other.Epochs = 20
	if k, _ := KeyFor(other); k.Dir == g.Dir {
		t.Fatalf("gp keys of different epochs share directory %s", k.Dir)
	}
	if pk := Presets["mnist"].BaseKey("mnist"); pk.Name != "mnist_gp_base_nn_hid=32" || pk.Dir != pk.Name {
		t.Fatalf("preset key = %+v", pk)
	}
	if _, err := KeyFor(Hyperparams{Kind: "svm"}); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestLoadUntrainedIsMissingArtifact(t *testing.T) {
	reg := Registry{Root: t.TempDir()}
	m, err := NewNN(reg, moonsHyperparams(), []int{2}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Load(); !errors.Is(err, utils.ErrMissingArtifact) {
		t.Fatalf("expected ErrMissingArtifact, got %v", err)
	}
	b, _ := NewBNN(reg, moonsHyperparams(), []int{2}, 2)
	if err := b.Load(); !errors.Is(err, utils.ErrMissingArtifact) {
		t.Fatalf("expected ErrMissingArtifact for bnn, got %v", err)
	}
}

func checkProbabilities(t *testing.T, p *tensor.Tensor) {
	t.Helper()
	for i := 0; i < p.Rows(); i++ {
		sum := 0.0
		for _, v := range p.Row(i) {
			if v < 0 {
				t.Fatalf("row %d has negative probability %f", i, v)
			}
			sum += v
		}
		if math.Abs(sum-1) > 1e-5 {
			t.Fatalf("row %d sums to %f", i, sum)
		}
	}
}

func TestNNTrainSaveLoad(t *testing.T) {
	ds := loadMoons(t, 200)
	reg := Registry{Root: t.TempDir()}
	m, err := NewNN(reg, moonsHyperparams(), ds.InputShape, ds.Classes)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Train(context.Background(), ds.Train.X, ds.Train.Labels); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Lookup(m.Key()); err != nil {
		t.Fatalf("artifact not written: %v", err)
	}
	want, err := m.Predict(ds.Test.X)
	if err != nil {
		t.Fatal(err)
	}
	checkProbabilities(t, want)

	other, _ := NewNN(reg, moonsHyperparams(), ds.InputShape, ds.Classes)
	for _, p := range other.Net.Params() {
		for i := range p.Value.Data {
			p.Value.Data[i] = 0
		}
	}
	if err := other.Load(); err != nil {
		t.Fatal(err)
	}
	got, _ := other.Predict(ds.Test.X)
	for i := range want.Data {
		if want.Data[i] != got.Data[i] {
			t.Fatalf("prediction %d differs after reload: %f vs %f", i, got.Data[i], want.Data[i])
		}
	}
	acc, err := other.Evaluate(ds.Test.X, ds.Test.Labels)
	if err != nil {
		t.Fatal(err)
	}
	if acc < 0 || acc > 100 {
		t.Fatalf("accuracy %f outside [0,100]", acc)
	}
}

func TestLoadShapeMismatch(t *testing.T) {
	reg := Registry{Root: t.TempDir()}
	m, _ := NewNN(reg, moonsHyperparams(), []int{2}, 2)
	bad := &utils.ModelWeights{
		Name: m.Name(),
		Layers: map[string]utils.LayerWeight{
			"layer_1": {
				Weight: &utils.WeightData{Name: "w", Shape: []int{1, 1}, Data: []float64{0}},
				Bias:   &utils.WeightData{Name: "b", Shape: []int{1}, Data: []float64{0}},
			},
		},
	}
	if err := utils.SaveWeights(reg.Path(m.Key()), bad); err != nil {
		t.Fatal(err)
	}
	if err := m.Load(); !errors.Is(err, utils.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	reg := Registry{Root: t.TempDir()}
	m, _ := NewNN(reg, moonsHyperparams(), []int{2}, 2)
	path := reg.Path(m.Key())
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(`{"version": 1}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := m.Load(); !errors.Is(err, utils.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestBNNPredictive(t *testing.T) {
	ds := loadMoons(t, 100)
	reg := Registry{Root: t.TempDir()}
	h := moonsHyperparams()
	h.Epochs = 2
	b, err := NewBNN(reg, h, ds.InputShape, ds.Classes)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Train(context.Background(), ds.Train.X, ds.Train.Labels); err != nil {
		t.Fatal(err)
	}
	mix, err := b.Predictive(5, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(mix.Members) != 5 {
		t.Fatalf("got %d members", len(mix.Members))
	}
	p1, _ := mix.Predict(ds.Test.X)
	checkProbabilities(t, p1)
	again, _ := b.Predictive(5, 1)
	p2, _ := again.Predict(ds.Test.X)
	for i := range p1.Data {
		if p1.Data[i] != p2.Data[i] {
			t.Fatal("same seed produced different posterior draws")
		}
	}
	if _, err := b.Predictive(0, 1); err == nil {
		t.Fatal("expected error for zero samples")
	}

	loaded, _ := NewBNN(reg, h, ds.InputShape, ds.Classes)
	if err := loaded.Load(); err != nil {
		t.Fatal(err)
	}
	mix3, _ := loaded.Predictive(5, 1)
	p3, _ := mix3.Predict(ds.Test.X)
	for i := range p1.Data {
		if math.Abs(p1.Data[i]-p3.Data[i]) > 1e-12 {
			t.Fatal("reloaded posterior predicts differently")
		}
	}
}

func TestMixtureGradientMatchesFiniteDifferences(t *testing.T) {
	reg := Registry{Root: t.TempDir()}
	h := moonsHyperparams()
	h.Activation = "tanh"
	e, err := NewEnsemble(reg, h, []int{2}, 3, 2)
	if err != nil {
		t.Fatal(err)
	}
	mix := e.Mixture()
	x := &tensor.Tensor{Data: []float64{0.2, 0.8, 0.6, 0.1}, Shape: []int{2, 2}}
	labels := []int{2, 0}
	g, err := mix.InputGradient(x, labels)
	if err != nil {
		t.Fatal(err)
	}
	loss := func() float64 {
		p, _ := mix.Predict(x)
		l := 0.0
		for b, c := range labels {
			l -= math.Log(p.Row(b)[c])
		}
		return l / float64(len(labels))
	}
	const step = 1e-6
	for i := range x.Data {
		orig := x.Data[i]
		x.Data[i] = orig + step
		up := loss()
		x.Data[i] = orig - step
		down := loss()
		x.Data[i] = orig
		if num := (up - down) / (2 * step); math.Abs(num-g.Data[i]) > 1e-6 {
			t.Errorf("dL/dx[%d] = %g, numeric %g", i, g.Data[i], num)
		}
	}
}

func TestEnsembleLoadOrTrain(t *testing.T) {
	ds := loadMoons(t, 100)
	reg := Registry{Root: t.TempDir()}
	h := moonsHyperparams()
	h.Epochs = 1
	e, err := NewEnsemble(reg, h, ds.InputShape, ds.Classes, 3)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.LoadOrTrain(context.Background(), ds.Train.X, ds.Train.Labels); err != nil {
		t.Fatal(err)
	}
	for i, m := range e.Members {
		if m.Params.Seed != int64(i) {
			t.Errorf("member %d has seed %d", i, m.Params.Seed)
		}
		if _, err := reg.Lookup(m.Key()); err != nil {
			t.Errorf("member %d: %v", i, err)
		}
	}
	accs, err := e.MemberAccuracies(ds.Test.X, ds.Test.Labels)
	if err != nil || len(accs) != 3 {
		t.Fatalf("member accuracies %v, %v", accs, err)
	}
}

func TestGPRedBNNEvaluate(t *testing.T) {
	ds := loadMoons(t, 100)
	reg := Registry{Root: t.TempDir()}
	base, err := NewPresetBase(reg, "half_moons", Presets["half_moons"], ds.InputShape, ds.Classes)
	if err != nil {
		t.Fatal(err)
	}
	if err := base.Train(context.Background(), ds.Train.X, ds.Train.Labels); err != nil {
		t.Fatal(err)
	}
	g, err := NewGPRedBNN(reg, base, 40)
	if err != nil {
		t.Fatal(err)
	}
	if want := (Key{Dir: "half_moons_gp_base_nn_hid=32", Name: "half_moons_GPRedBNN_inp=40"}); g.Key() != want {
		t.Fatalf("preset gp key = %+v, want %+v", g.Key(), want)
	}
	train := ds.Train.Head(40)
	if err := g.Train(context.Background(), train.X, train.Labels); err != nil {
		t.Fatal(err)
	}
	if g.FitDuration <= 0 {
		t.Errorf("fit duration not recorded")
	}
	p, err := g.Predict(ds.Test.X)
	if err != nil {
		t.Fatal(err)
	}
	checkProbabilities(t, p)
	correct := 0
	for i, c := range p.ArgMaxRows() {
		if c == ds.Test.Labels[i] {
			correct++
		}
	}
	acc, err := g.Evaluate(ds.Test.X, ds.Test.Labels)
	if err != nil {
		t.Fatal(err)
	}
	if want := 100 * float64(correct) / float64(ds.Test.Len()); acc != want {
		t.Fatalf("Evaluate = %v, want %v", acc, want)
	}

	loaded, _ := NewGPRedBNN(reg, base, 40)
	if err := loaded.Load(); err != nil {
		t.Fatal(err)
	}
	missing, _ := NewGPRedBNN(reg, base, 41)
	if err := missing.Load(); !errors.Is(err, utils.ErrMissingArtifact) {
		t.Fatalf("expected ErrMissingArtifact, got %v", err)
	}
}
