package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"

	"advbnn/attack"
	"advbnn/data"
	"advbnn/logging"
	"advbnn/models"
	"advbnn/sweep"
	"advbnn/tensor"
	"advbnn/utils"
)

const (
	kindEnsemble    = "ensemble"
	kindAvgEnsemble = "avg_ensemble"
)

type attackOptions struct {
	method   string
	epsilon  float64
	nAttack  int
	nSamples int
	load     bool
}

func newAttackCmd() *cobra.Command {
	var h models.Hyperparams
	var opts attackOptions

	cmd := &cobra.Command{
		Use:   "attack",
		Short: "Attack a trained model once and report accuracy and robustness",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats := &utils.TimingStats{}
			start := time.Now()
			banner("advbnn attack")
			fmt.Printf("  Model:         %s on %s\n", h.Kind, h.Dataset)
			fmt.Printf("  Attack:        %s eps=%g\n", opts.method, opts.epsilon)
			fmt.Printf("  Inputs:        %d\n\n", opts.nAttack)

			name, m, err := runAttack(cmd.Context(), h, opts, stats)
			if err != nil {
				return err
			}
			stats.TotalTime = time.Since(start)

			logging.GetLogger().WithFields(logrus.Fields{
				"model":       name,
				"method":      opts.method,
				"epsilon":     opts.epsilon,
				"test_acc":    m.TestAcc,
				"adv_acc":     m.AdvAcc,
				"softmax_rob": m.MeanRobustness(),
			}).Info("attack evaluated")
			printMetrics(name, m)
			utils.PrintTimingStats(stats)
			return nil
		},
	}
	addModelFlags(cmd, &h, "Model type: nn, bnn, gp, ensemble, avg_ensemble")
	f := cmd.Flags()
	f.StringVar(&opts.method, "method", attack.FGSM, "Attack method: fgsm, pgd")
	f.Float64Var(&opts.epsilon, "eps", attack.DefaultEpsilon, "L-inf perturbation bound")
	f.IntVar(&opts.nAttack, "n-attack", 100, "Number of test inputs to attack")
	f.IntVar(&opts.nSamples, "n-samples", 10, "Posterior samples of a bnn, or members of an ensemble")
	f.BoolVar(&opts.load, "load", false, "Evaluate a saved attack batch instead of crafting one")
	return cmd
}

func runAttack(ctx context.Context, h models.Hyperparams, opts attackOptions, stats *utils.TimingStats) (string, attack.Metrics, error) {
	switch h.Kind {
	case models.KindNN, models.KindBNN, models.KindGP:
		t0 := time.Now()
		built, err := (&sweep.ModelBuilder{Registry: registry(), DataDir: cfg.DataDir}).Build(ctx, h)
		if err != nil {
			return "", attack.Metrics{}, err
		}
		stats.TrainTime = time.Since(t0)
		source, err := built.Subject.Source(opts.nSamples, cfg.Seed)
		if err != nil {
			return "", attack.Metrics{}, err
		}
		victim, err := built.Subject.Victim(opts.nSamples, cfg.Seed)
		if err != nil {
			return "", attack.Metrics{}, err
		}
		key := built.Subject.Key()
		m, err := attackOnce(ctx, key, source, victim, built.Test.Head(opts.nAttack), opts, built.Subject.AttackSamples(opts.nSamples), stats)
		return key.Name, m, err

	case kindEnsemble, kindAvgEnsemble:
		ds, err := data.Load(cfg.DataDir, h.Dataset, h.Inputs, h.Seed)
		if err != nil {
			return "", attack.Metrics{}, err
		}
		ens, err := models.NewEnsemble(registry(), h, ds.InputShape, ds.Classes, opts.nSamples)
		if err != nil {
			return "", attack.Metrics{}, err
		}
		t0 := time.Now()
		if err := ens.LoadOrTrain(ctx, ds.Train.X, ds.Train.Labels); err != nil {
			return "", attack.Metrics{}, err
		}
		stats.TrainTime = time.Since(t0)
		test := ds.Test.Head(opts.nAttack)
		first := ens.Members[0].Key()
		name := fmt.Sprintf("%s_%s_size=%d", first.Name, h.Kind, len(ens.Members))

		if h.Kind == kindEnsemble {
			mix := ens.Mixture()
			m, err := attackOnce(ctx, models.Key{Dir: first.Dir, Name: name}, mix, mix, test, opts, 0, stats)
			return name, m, err
		}
		var runs []attack.Metrics
		for _, member := range ens.Members {
			m, err := attackOnce(ctx, member.Key(), member, member, test, opts, 0, stats)
			if err != nil {
				return "", attack.Metrics{}, err
			}
			runs = append(runs, m)
		}
		return name, averageMetrics(runs), nil

	default:
		return "", attack.Metrics{}, fmt.Errorf("unknown model type %q", h.Kind)
	}
}

// attackOnce crafts (or loads) the adversarial batch for key and evaluates victim on it.
func attackOnce(ctx context.Context, key models.Key, source attack.Differentiable, victim attack.Classifier, test data.Split, opts attackOptions, samples int, stats *utils.TimingStats) (attack.Metrics, error) {
	path := filepath.Join(cfg.ArtifactDir, key.Dir, attack.FileName(key.Name, opts.method, opts.epsilon, samples))
	logger := logging.GetLogger().WithFields(logrus.Fields{"model": key.Name, "path": path})

	t0 := time.Now()
	var adv *tensor.Tensor
	if opts.load {
		b, err := attack.Load(path)
		if err != nil {
			return attack.Metrics{}, err
		}
		if adv, err = b.Tensor(); err != nil {
			return attack.Metrics{}, err
		}
		if !tensor.SameShape(adv, test.X) {
			return attack.Metrics{}, fmt.Errorf("saved batch %s has shape %v, want %v: %w", path, adv.Shape, test.X.Shape, utils.ErrSchemaMismatch)
		}
		logger.Info("loaded attack batch")
	} else {
		var err error
		adv, err = attack.Generate(ctx, source, test.X, test.Labels, attack.DefaultParams(opts.method, opts.epsilon))
		if err != nil {
			return attack.Metrics{}, err
		}
		batch := &attack.Batch{Model: key.Name, Method: opts.method, Epsilon: opts.epsilon, NSamples: samples, Shape: adv.Shape, Data: adv.Data}
		if err := attack.Save(path, batch); err != nil {
			return attack.Metrics{}, err
		}
		logger.Info("saved attack batch")
	}
	stats.AttackTime += time.Since(t0)

	t0 = time.Now()
	m, err := attack.Evaluate(victim, test.X, adv, test.Labels)
	stats.EvaluationTime += time.Since(t0)
	return m, err
}

// averageMetrics averages accuracies and per-input robustness over runs on the same inputs.
func averageMetrics(runs []attack.Metrics) attack.Metrics {
	if len(runs) == 0 {
		return attack.Metrics{}
	}
	out := attack.Metrics{Robustness: make([]float64, len(runs[0].Robustness))}
	for _, r := range runs {
		out.TestAcc += r.TestAcc
		out.AdvAcc += r.AdvAcc
		floats.Add(out.Robustness, r.Robustness)
	}
	n := float64(len(runs))
	out.TestAcc /= n
	out.AdvAcc /= n
	floats.Scale(1/n, out.Robustness)
	return out
}

func printMetrics(name string, m attack.Metrics) {
	fmt.Printf("\n%s %s\n", headText("RESULT"), name)
	fmt.Printf("  Test accuracy:        %s\n", okText(fmt.Sprintf("%.2f%%", m.TestAcc)))
	adv := fmt.Sprintf("%.2f%%", m.AdvAcc)
	if m.AdvAcc < m.TestAcc/2 {
		adv = warnText(adv)
	} else {
		adv = okText(adv)
	}
	fmt.Printf("  Adversarial accuracy: %s\n", adv)
	fmt.Printf("  Softmax robustness:   %.4f\n", m.MeanRobustness())
}
