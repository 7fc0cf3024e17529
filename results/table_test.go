package results

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"advbnn/attack"
	"advbnn/models"
	"advbnn/utils"
)

func samplePoint() Point {
	return Point{
		Hyperparams: models.Hyperparams{
			Kind: models.KindBNN, Dataset: "half_moons", Hidden: 32, Activation: "leaky",
			Architecture: "fc2", Epochs: 10, LR: 0.001, Inputs: 1000, Seed: 0,
		},
		Method:   attack.FGSM,
		Epsilon:  0.15,
		NSamples: 10,
	}
}

func sampleTable() *Table {
	t := &Table{}
	t.Record(samplePoint(), attack.Metrics{TestAcc: 97.5, AdvAcc: 61.25, Robustness: []float64{0.1, 1.0 / 3.0, 1}})
	p := samplePoint()
	p.Epsilon = 0.3
	t.Record(p, attack.Metrics{TestAcc: 97.5, AdvAcc: 40, Robustness: []float64{0.25}})
	return t
}

func TestRecordDuplicatesScalars(t *testing.T) {
	tab := sampleTable()
	if tab.Len() != 4 {
		t.Fatalf("got %d rows, want 4", tab.Len())
	}
	for i, r := range tab.Records[:3] {
		if r.InputIdx != i || r.TestAcc != 97.5 || r.AdvAcc != 61.25 || r.Epsilon != 0.15 {
			t.Errorf("row %d = %+v", i, r)
		}
	}
	key, err := models.KeyFor(tab.Records[0].Hyperparams)
	if err != nil {
		t.Fatal(err)
	}
	if key.Name != "half_moons_bnn_hid=32_act=leaky_arch=fc2_ep=10_lr=0.001_inp=1000_seed=0" {
		t.Errorf("key from record = %s", key.Name)
	}
}

func TestPersistLoadRoundTrip(t *testing.T) {
	tab := sampleTable()
	path := filepath.Join(t.TempDir(), "out", "half_moons_increasing_eps_fgsm.csv")
	if err := tab.Persist(path); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != tab.Len() {
		t.Fatalf("got %d rows, want %d", got.Len(), tab.Len())
	}
	for i := range tab.Records {
		if got.Records[i] != tab.Records[i] {
			t.Errorf("row %d = %+v, want %+v", i, got.Records[i], tab.Records[i])
		}
	}
	// persisting again overwrites instead of appending
	if err := tab.Persist(path); err != nil {
		t.Fatal(err)
	}
	again, _ := Load(path)
	if again.Len() != tab.Len() {
		t.Fatalf("rewrite produced %d rows", again.Len())
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "absent.csv")); !errors.Is(err, utils.ErrMissingArtifact) {
		t.Fatalf("expected ErrMissingArtifact, got %v", err)
	}
	tests := []struct {
		name    string
		content string
	}{
		{"header", "model,dataset\nnn,half_moons\n"},
		{"cell", "model,dataset,hidden_size,activation,architecture,epochs,lr,n_inputs,seed,attack_method,epsilon,n_samples,input_idx,test_acc,adv_acc,softmax_rob\n" +
			"nn,half_moons,x,leaky,fc2,10,0.001,1000,0,fgsm,0.1,1,0,90,80,0.5\n"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".csv")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); !errors.Is(err, utils.ErrSchemaMismatch) {
				t.Fatalf("expected ErrSchemaMismatch, got %v", err)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	dir := t.TempDir()
	a, b := filepath.Join(dir, "a.csv"), filepath.Join(dir, "b.csv")
	tab := sampleTable()
	if err := tab.Persist(a); err != nil {
		t.Fatal(err)
	}
	second := &Table{}
	second.Record(samplePoint(), attack.Metrics{TestAcc: 1, AdvAcc: 0, Robustness: []float64{0.5}})
	if err := second.Persist(b); err != nil {
		t.Fatal(err)
	}
	merged, err := Merge(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if merged.Len() != 5 || merged.Records[4].TestAcc != 1 {
		t.Fatalf("merged %d rows, last %+v", merged.Len(), merged.Records[merged.Len()-1])
	}
}

func TestRecordValueAndLabel(t *testing.T) {
	r := sampleTable().Records[1]
	if v, err := r.Value("softmax_rob"); err != nil || v != 1.0/3.0 {
		t.Errorf("softmax_rob = %v, %v", v, err)
	}
	if _, err := r.Value("dataset"); err == nil {
		t.Error("expected error for non-numeric column")
	}
	if l, err := r.Label("n_samples"); err != nil || l != "10" {
		t.Errorf("n_samples label = %q, %v", l, err)
	}
}

func TestPoints(t *testing.T) {
	tab := sampleTable()
	ts := time.Unix(1700000000, 0)
	points := Points(tab, "run-1", ts)
	if len(points) != tab.Len() {
		t.Fatalf("got %d points", len(points))
	}
	p := points[1]
	if p.Name() != Measurement {
		t.Errorf("measurement = %s", p.Name())
	}
	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	if tags["run_id"] != "run-1" || tags["attack_method"] != "fgsm" || tags["n_samples"] != "10" {
		t.Errorf("tags = %v", tags)
	}
	if !p.Time().Equal(ts.Add(1)) {
		t.Errorf("time = %v", p.Time())
	}
}
