package sweep

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"advbnn/attack"
	"advbnn/data"
	"advbnn/logging"
	"advbnn/models"
	"advbnn/tensor"
	"advbnn/utils"
)

func init() {
	logging.SetOutput(io.Discard)
}

func smallGrid() Grid {
	return Grid{
		Dataset:       "half_moons",
		Kinds:         []string{models.KindNN},
		Hidden:        []int{4, 8, 16},
		Activations:   []string{"leaky"},
		Architectures: []string{"fc"},
		Epochs:        []int{1},
		LRs:           []float64{0.01, 0.001},
		Inputs:        []int{50},
		Seeds:         []int64{0},
	}
}

func TestCombinationsOrder(t *testing.T) {
	combos := smallGrid().Combinations()
	if len(combos) != 6 {
		t.Fatalf("got %d combinations, want 6", len(combos))
	}
	if combos[0].Hidden != 4 || combos[0].LR != 0.01 {
		t.Errorf("first combination = %+v", combos[0])
	}
	if combos[1].Hidden != 4 || combos[1].LR != 0.001 {
		t.Errorf("second combination = %+v", combos[1])
	}
	if combos[5].Hidden != 16 || combos[5].LR != 0.001 {
		t.Errorf("last combination = %+v", combos[5])
	}
	for _, c := range combos {
		if c.Dataset != "half_moons" || c.Kind != models.KindNN {
			t.Errorf("combination missing fixed fields: %+v", c)
		}
	}
}

func TestGridValidate(t *testing.T) {
	g := Grid{Dataset: "half_moons", Hidden: []int{8}, Epochs: []int{1}, LRs: []float64{0.1}, Inputs: []int{10}}
	if err := g.Validate(); err != nil {
		t.Fatal(err)
	}
	if g.Kinds[0] != models.KindNN || g.Activations[0] != "leaky" || g.Architectures[0] != "fc2" || len(g.Seeds) != 1 {
		t.Errorf("defaults not applied: %+v", g)
	}

	bad := []Grid{
		{Dataset: "cifar", Hidden: []int{8}, Epochs: []int{1}, LRs: []float64{0.1}, Inputs: []int{10}},
		{Dataset: "half_moons", Kinds: []string{"svm"}, Hidden: []int{8}, Epochs: []int{1}, LRs: []float64{0.1}, Inputs: []int{10}},
		{Dataset: "half_moons", Activations: []string{"gelu"}, Hidden: []int{8}, Epochs: []int{1}, LRs: []float64{0.1}, Inputs: []int{10}},
		{Dataset: "half_moons", Hidden: []int{0}, Epochs: []int{1}, LRs: []float64{0.1}, Inputs: []int{10}},
		{Dataset: "half_moons", Epochs: []int{1}, LRs: []float64{0.1}, Inputs: []int{10}},
	}
	for i, g := range bad {
		if err := g.Validate(); err == nil {
			t.Errorf("grid %d: expected validation error", i)
		}
	}
}

func TestRunTrainsEveryCombination(t *testing.T) {
	root := t.TempDir()
	h := &Harness{
		Builder: &ModelBuilder{Registry: models.Registry{Root: root}},
		Workers: 2,
	}
	spec := AttackSpec{Method: attack.FGSM, Epsilons: []float64{0.1, 0.2}, Samples: []int{1, 3}, NInputs: 5}

	table, report, err := h.Run(context.Background(), smallGrid(), spec)
	if err != nil {
		t.Fatal(err)
	}
	if report.Completed != 6 || len(report.Failures) != 0 {
		t.Fatalf("report = %+v", report)
	}
	if want := 6 * 2 * 2 * 5; table.Len() != want {
		t.Fatalf("got %d rows, want %d", table.Len(), want)
	}

	artifacts := 0
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".json") {
			artifacts++
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if artifacts != 6 {
		t.Errorf("got %d model artifacts, want 6", artifacts)
	}

	for _, r := range table.Records {
		if _, err := models.KeyFor(r.Hyperparams); err != nil {
			t.Fatal(err)
		}
		if r.SoftmaxRob < 0 || r.SoftmaxRob > 1 {
			t.Errorf("robustness %f outside [0,1]", r.SoftmaxRob)
		}
	}

	// A second run loads every model instead of training it again.
	h.Builder = &ModelBuilder{Registry: models.Registry{Root: root}, LoadOnly: true}
	again, _, err := h.Run(context.Background(), smallGrid(), spec)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(again.Records, table.Records) {
		t.Error("reloaded models produced different results")
	}
}

func TestRunBayesianAndGPHead(t *testing.T) {
	root, attacks := t.TempDir(), t.TempDir()
	g := Grid{
		Dataset:       "half_moons",
		Kinds:         []string{models.KindBNN, models.KindGP},
		Hidden:        []int{8},
		Architectures: []string{"fc"},
		Epochs:        []int{2},
		LRs:           []float64{0.01},
		Inputs:        []int{60},
	}
	spec := AttackSpec{Method: attack.FGSM, Epsilons: []float64{0.1}, Samples: []int{2}, NInputs: 4, Seed: 7}
	h := &Harness{Builder: &ModelBuilder{Registry: models.Registry{Root: root}}, AttackDir: attacks}

	table, report, err := h.Run(context.Background(), g, spec)
	if err != nil {
		t.Fatal(err)
	}
	if report.Completed != 2 || table.Len() != 2*4 {
		t.Fatalf("completed %d, rows %d", report.Completed, table.Len())
	}
	hp := Hyperparams{Dataset: "half_moons", Hidden: 8, Activation: "leaky", Architecture: "fc", Epochs: 2, LR: 0.01, Inputs: 60}
	hp.Kind = models.KindGP
	gpKey, err := models.KeyFor(hp)
	if err != nil {
		t.Fatal(err)
	}
	reg := models.Registry{Root: root}
	if _, err := reg.Lookup(gpKey); err != nil {
		t.Errorf("gp head not saved: %v", err)
	}
	if _, err := reg.Lookup(models.Key{Dir: gpKey.Dir, Name: gpKey.Dir}); err != nil {
		t.Errorf("gp base network not saved: %v", err)
	}

	// Only the Bayesian subject names its attack batch with the sample count.
	if _, err := attack.Load(filepath.Join(attacks, gpKey.Dir, attack.FileName(gpKey.Name, attack.FGSM, 0.1, 0))); err != nil {
		t.Errorf("gp attack batch: %v", err)
	}
	hp.Kind = models.KindBNN
	bnnKey, err := models.KeyFor(hp)
	if err != nil {
		t.Fatal(err)
	}
	b, err := attack.Load(filepath.Join(attacks, bnnKey.Dir, attack.FileName(bnnKey.Name, attack.FGSM, 0.1, 2)))
	if err != nil {
		t.Fatalf("bnn attack batch: %v", err)
	}
	if b.NSamples != 2 {
		t.Errorf("bnn batch NSamples = %d, want 2", b.NSamples)
	}
}

func TestRunGPGridKeepsEpochsApart(t *testing.T) {
	root := t.TempDir()
	g := Grid{
		Dataset:       "half_moons",
		Kinds:         []string{models.KindGP},
		Hidden:        []int{8},
		Architectures: []string{"fc"},
		Epochs:        []int{1, 30},
		LRs:           []float64{0.01},
		Inputs:        []int{60},
	}
	spec := AttackSpec{Method: attack.FGSM, Epsilons: []float64{0.2}, NInputs: 8}
	h := &Harness{Builder: &ModelBuilder{Registry: models.Registry{Root: root}}}

	table, report, err := h.Run(context.Background(), g, spec)
	if err != nil {
		t.Fatal(err)
	}
	if report.Completed != 2 {
		t.Fatalf("report = %+v", report)
	}

	// One base network and one GP head per epoch count.
	artifacts := 0
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".json") {
			artifacts++
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if artifacts != 4 {
		t.Errorf("got %d model artifacts, want 4", artifacts)
	}

	rows := map[int][]string{}
	for _, r := range table.Records {
		rows[r.Epochs] = append(rows[r.Epochs], fmt.Sprintf("%g %g %g", r.TestAcc, r.AdvAcc, r.SoftmaxRob))
	}
	if len(rows[1]) != 8 || len(rows[30]) != 8 {
		t.Fatalf("rows per epoch count: %d, %d", len(rows[1]), len(rows[30]))
	}
	if reflect.DeepEqual(rows[1], rows[30]) {
		t.Error("epochs=1 and epochs=30 produced identical results")
	}
}

func TestModelBuilderLoadOnlyMissing(t *testing.T) {
	b := &ModelBuilder{Registry: models.Registry{Root: t.TempDir()}, LoadOnly: true}
	_, err := b.Build(context.Background(), smallGrid().Combinations()[0])
	if !errors.Is(err, utils.ErrMissingArtifact) {
		t.Fatalf("expected ErrMissingArtifact, got %v", err)
	}
}

// sigmoidModel predicts class 0 with probability sigmoid(sum of the input row).
type sigmoidModel struct{}

func (sigmoidModel) Predict(x *tensor.Tensor) (*tensor.Tensor, error) {
	out := tensor.New(x.Rows(), 2)
	for i := 0; i < x.Rows(); i++ {
		s := 0.0
		for _, v := range x.Row(i) {
			s += v
		}
		p := 1 / (1 + math.Exp(-s))
		out.Data[2*i], out.Data[2*i+1] = p, 1-p
	}
	return out, nil
}

func (sigmoidModel) InputGradient(x *tensor.Tensor, _ []int) (*tensor.Tensor, error) {
	g := tensor.New(x.Shape...)
	for i := range g.Data {
		g.Data[i] = -1
	}
	return g, nil
}

type fakeSubject struct{ key models.Key }

func (s fakeSubject) Key() models.Key                                  { return s.key }
func (s fakeSubject) AttackSamples(int) int                            { return 0 }
func (s fakeSubject) Victim(int, int64) (attack.Classifier, error)     { return sigmoidModel{}, nil }
func (s fakeSubject) Source(int, int64) (attack.Differentiable, error) { return sigmoidModel{}, nil }

// fakeBuilder returns sigmoidModel subjects and fails for the combinations in fail.
type fakeBuilder struct {
	fail func(Hyperparams) error
}

func (b fakeBuilder) Build(_ context.Context, h Hyperparams) (*Built, error) {
	if b.fail != nil {
		if err := b.fail(h); err != nil {
			return nil, err
		}
	}
	x := tensor.New(8, 2)
	for i := range x.Data {
		x.Data[i] = 0.1 * float64(i%5)
	}
	key := models.Key{Dir: "fake", Name: fmt.Sprintf("fake_hid=%d_lr=%g", h.Hidden, h.LR)}
	return &Built{Subject: fakeSubject{key}, Test: data.Split{X: x, Labels: make([]int, 8)}}, nil
}

func TestRunSkipsTrainingFailure(t *testing.T) {
	h := &Harness{
		Builder: fakeBuilder{fail: func(p Hyperparams) error {
			if p.Hidden == 8 && p.LR == 0.001 {
				return fmt.Errorf("loss is NaN: %w", utils.ErrTrainingFailure)
			}
			return nil
		}},
		Workers:    3,
		PartialDir: t.TempDir(),
		RunID:      "failing",
	}
	spec := AttackSpec{Method: attack.PGD, Epsilons: []float64{0.05, 0.1}, Samples: []int{1}, NInputs: 4}

	table, report, err := h.Run(context.Background(), smallGrid(), spec)
	if err != nil {
		t.Fatal(err)
	}
	if report.Completed != 5 || len(report.Failures) != 1 {
		t.Fatalf("completed %d, failures %d", report.Completed, len(report.Failures))
	}
	if f := report.Failures[0]; f.Params.Hidden != 8 || !errors.Is(f.Err, utils.ErrTrainingFailure) {
		t.Errorf("unexpected failure %+v", f)
	}
	if want := 5 * 2 * 1 * 4; table.Len() != want {
		t.Fatalf("got %d rows, want %d", table.Len(), want)
	}
	for _, r := range table.Records {
		if r.Hidden == 8 && r.LR == 0.001 {
			t.Fatal("rows recorded for the failed combination")
		}
	}
	partials, err := filepath.Glob(filepath.Join(h.PartialDir, "failing_part_*.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if len(partials) != 5 {
		t.Errorf("got %d partial tables, want 5", len(partials))
	}
}

func TestRunAbortsOnOtherErrors(t *testing.T) {
	broken := errors.New("disk on fire")
	h := &Harness{Builder: fakeBuilder{fail: func(p Hyperparams) error {
		if p.Hidden == 16 {
			return broken
		}
		return nil
	}}}
	spec := AttackSpec{Epsilons: []float64{0.1}, NInputs: 2}
	if _, _, err := h.Run(context.Background(), smallGrid(), spec); !errors.Is(err, broken) {
		t.Fatalf("expected the builder error, got %v", err)
	}
}

func TestRunOrderIndependentOfWorkers(t *testing.T) {
	spec := AttackSpec{Method: attack.FGSM, Epsilons: []float64{0, 0.3}, Samples: []int{1, 2}, NInputs: 8}
	var tables [][]string
	for _, workers := range []int{1, 4} {
		h := &Harness{Builder: fakeBuilder{}, Workers: workers}
		table, _, err := h.Run(context.Background(), smallGrid(), spec)
		if err != nil {
			t.Fatal(err)
		}
		var rows []string
		for _, r := range table.Records {
			rows = append(rows, fmt.Sprintf("%d %g %g %d %d %g", r.Hidden, r.LR, r.Epsilon, r.NSamples, r.InputIdx, r.SoftmaxRob))
		}
		tables = append(tables, rows)
	}
	if !reflect.DeepEqual(tables[0], tables[1]) {
		t.Error("parallel run merged rows in a different order")
	}
	// epsilon 0 leaves every prediction unchanged.
	if !strings.HasSuffix(tables[0][0], " 1") {
		t.Errorf("first row %q should have robustness 1", tables[0][0])
	}
}

func TestRunSavesAttackBatches(t *testing.T) {
	dir := t.TempDir()
	h := &Harness{Builder: fakeBuilder{}, AttackDir: dir}
	g := smallGrid()
	g.Hidden, g.LRs = []int{4}, []float64{0.01}
	spec := AttackSpec{Method: attack.FGSM, Epsilons: []float64{0.2}, Samples: []int{3}, NInputs: 8}
	if _, _, err := h.Run(context.Background(), g, spec); err != nil {
		t.Fatal(err)
	}
	// Deterministic subjects name their batches without a sample count.
	b, err := attack.Load(filepath.Join(dir, "fake", attack.FileName("fake_hid=4_lr=0.01", attack.FGSM, 0.2, 0)))
	if err != nil {
		t.Fatal(err)
	}
	if b.NSamples != 0 || len(b.Data) != 16 {
		t.Errorf("unexpected batch %+v", b)
	}
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h := &Harness{Builder: fakeBuilder{}}
	spec := AttackSpec{Epsilons: []float64{0.1}, NInputs: 2}
	if _, _, err := h.Run(ctx, smallGrid(), spec); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

const sweepYAML = `name: moons-width
grid:
  dataset: half_moons
  kinds: [nn, bnn]
  hidden_size: [16, 32]
  epochs: [5]
  lr: [0.01]
  n_inputs: [200]
attack:
  method: pgd
  epsilons: [0.05, 0.1]
  n_samples: [1, 10]
  n_inputs: 20
workers: 2
output: ${ADVBNN_TEST_OUT}/grid.csv
influx:
  url: http://localhost:8086
  token: ${ADVBNN_TEST_UNSET}
  org: lab
  bucket: sweeps
`

func TestLoadFile(t *testing.T) {
	t.Setenv("ADVBNN_TEST_OUT", "/tmp/results")
	path := filepath.Join(t.TempDir(), "sweep.yaml")
	if err := os.WriteFile(path, []byte(sweepYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if f.Output != "/tmp/results/grid.csv" {
		t.Errorf("output = %q", f.Output)
	}
	if f.Influx == nil || f.Influx.Token != "${ADVBNN_TEST_UNSET}" || f.Influx.Bucket != "sweeps" {
		t.Errorf("influx = %+v", f.Influx)
	}
	if len(f.Grid.Combinations()) != 4 {
		t.Errorf("got %d combinations, want 4", len(f.Grid.Combinations()))
	}
	if f.Attack.Method != attack.PGD || f.Attack.NInputs != 20 || len(f.Attack.Samples) != 2 || f.Workers != 2 {
		t.Errorf("attack = %+v, workers = %d", f.Attack, f.Workers)
	}
	if f.Grid.Activations[0] != "leaky" {
		t.Errorf("default activation not applied: %v", f.Grid.Activations)
	}
}

func TestLoadFileInvalid(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"method":  strings.Replace(sweepYAML, "method: pgd", "method: cw", 1),
		"name":    strings.Replace(sweepYAML, "name: moons-width", "name: \"\"", 1),
		"dataset": strings.Replace(sweepYAML, "dataset: half_moons", "dataset: cifar10", 1),
		"yaml":    "name: [unterminated",
	}
	for name, content := range cases {
		path := filepath.Join(dir, name+".yaml")
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadFile(path); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
	if _, err := LoadFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
