package sweep

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"advbnn/attack"
	"advbnn/logging"
	"advbnn/results"
	"advbnn/utils"
)

// Harness runs every grid combination through Builder and the attack package.
type Harness struct {
	Builder Builder
	// Workers bounds the number of combinations in flight; 1 runs them sequentially.
	Workers int
	// PartialDir receives one CSV per combination. A temporary directory is used when empty.
	PartialDir string
	// AttackDir, when set, receives every adversarial batch under <AttackDir>/<model dir>/.
	AttackDir string
	// RunID names the partial tables. A random UUID is used when empty.
	RunID string
}

// Failure is a combination skipped because its model could not be trained.
type Failure struct {
	Params Hyperparams
	Err    error
}

// Report summarises a run.
type Report struct {
	RunID        string
	Combinations int
	Completed    int
	Failures     []Failure
	Timing       utils.TimingStats
}

type comboOutcome struct {
	partial string
	failure error
	timing  utils.TimingStats
}

// Run evaluates every combination of grid under spec and returns the merged table in
// combination order. Training failures are reported and skipped; any other error aborts.
func (h *Harness) Run(ctx context.Context, grid Grid, spec AttackSpec) (*results.Table, *Report, error) {
	start := time.Now()
	if err := grid.Validate(); err != nil {
		return nil, nil, err
	}
	if err := spec.Validate(); err != nil {
		return nil, nil, err
	}
	combos := grid.Combinations()
	workers := max(h.Workers, 1)
	runID := h.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	dir := h.PartialDir
	if dir == "" {
		tmp, err := os.MkdirTemp("", "advbnn-sweep-")
		if err != nil {
			return nil, nil, err
		}
		defer os.RemoveAll(tmp)
		dir = tmp
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, err
	}

	log := logging.GetLogger().WithFields(logrus.Fields{
		"component":    "sweep",
		"run_id":       runID,
		"combinations": len(combos),
		"workers":      workers,
	})
	log.Info("starting sweep")

	outcomes := make([]comboOutcome, len(combos))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, hp := range combos {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			path := filepath.Join(dir, fmt.Sprintf("%s_part_%04d.csv", runID, i))
			timing, err := h.runOne(gctx, hp, spec, path)
			outcomes[i].timing = timing
			switch {
			case err == nil:
				outcomes[i].partial = path
			case errors.Is(err, utils.ErrTrainingFailure):
				outcomes[i].failure = err
				log.WithField("combination", i).WithError(err).Warn("skipping combination")
			default:
				return fmt.Errorf("combination %d (%s %s hid=%d): %w", i, hp.Dataset, hp.Kind, hp.Hidden, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.WithError(err).Error("sweep aborted")
		return nil, nil, err
	}

	report := &Report{RunID: runID, Combinations: len(combos)}
	var partials []string
	for i, o := range outcomes {
		report.Timing.TrainTime += o.timing.TrainTime
		report.Timing.AttackTime += o.timing.AttackTime
		report.Timing.EvaluationTime += o.timing.EvaluationTime
		if o.failure != nil {
			report.Failures = append(report.Failures, Failure{Params: combos[i], Err: o.failure})
			continue
		}
		partials = append(partials, o.partial)
	}
	report.Completed = len(partials)

	table, err := results.Merge(partials...)
	if err != nil {
		return nil, nil, err
	}
	report.Timing.TotalTime = time.Since(start)
	log.WithFields(logrus.Fields{
		"completed": report.Completed,
		"failed":    len(report.Failures),
		"rows":      table.Len(),
	}).Info("sweep finished")
	return table, report, nil
}

// runOne builds one model, attacks it for every epsilon and sample count and writes the rows to path.
func (h *Harness) runOne(ctx context.Context, hp Hyperparams, spec AttackSpec, path string) (utils.TimingStats, error) {
	var timing utils.TimingStats

	t0 := time.Now()
	built, err := h.Builder.Build(ctx, hp)
	timing.TrainTime = time.Since(t0)
	if err != nil {
		return timing, err
	}
	test := built.Test.Head(spec.NInputs)
	key := built.Subject.Key()

	table := &results.Table{}
	for _, eps := range spec.Epsilons {
		for _, n := range spec.Samples {
			if err := ctx.Err(); err != nil {
				return timing, err
			}
			source, err := built.Subject.Source(n, spec.Seed)
			if err != nil {
				return timing, err
			}
			victim, err := built.Subject.Victim(n, spec.Seed)
			if err != nil {
				return timing, err
			}

			t0 = time.Now()
			adv, err := attack.Generate(ctx, source, test.X, test.Labels, attack.DefaultParams(spec.Method, eps))
			timing.AttackTime += time.Since(t0)
			if err != nil {
				return timing, err
			}
			if h.AttackDir != "" {
				samples := built.Subject.AttackSamples(n)
				p := filepath.Join(h.AttackDir, key.Dir, attack.FileName(key.Name, spec.Method, eps, samples))
				batch := &attack.Batch{Model: key.Name, Method: spec.Method, Epsilon: eps, NSamples: samples, Shape: adv.Shape, Data: adv.Data}
				if err := attack.Save(p, batch); err != nil {
					return timing, err
				}
			}

			t0 = time.Now()
			m, err := attack.Evaluate(victim, test.X, adv, test.Labels)
			timing.EvaluationTime += time.Since(t0)
			if err != nil {
				return timing, err
			}
			table.Record(Point{Hyperparams: hp, Method: spec.Method, Epsilon: eps, NSamples: n}, m)
		}
	}
	return timing, table.Persist(path)
}
