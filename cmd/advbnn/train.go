package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"advbnn/data"
	"advbnn/logging"
	"advbnn/models"
	"advbnn/utils"
)

// addModelFlags registers the hyperparameters that name a trained model.
func addModelFlags(cmd *cobra.Command, h *models.Hyperparams, kindHelp string) {
	f := cmd.Flags()
	f.StringVar(&h.Kind, "model-type", models.KindNN, kindHelp)
	f.StringVar(&h.Dataset, "dataset", "half_moons", "Dataset: half_moons, mnist, fashion_mnist")
	f.IntVar(&h.Hidden, "hidden", 32, "Hidden layer width")
	f.StringVar(&h.Activation, "activation", "leaky", "Activation: relu, leaky, sigm, tanh")
	f.StringVar(&h.Architecture, "arch", "fc2", "Architecture: fc, fc2")
	f.IntVar(&h.Epochs, "epochs", 10, "Training epochs")
	f.Float64Var(&h.LR, "lr", 0.001, "Adam learning rate")
	f.IntVar(&h.Inputs, "n-inputs", 1000, "Number of dataset inputs")
	f.Int64Var(&h.Seed, "model-seed", 0, "Seed of weight initialisation, shuffling and data generation")
}

func newTrainCmd() *cobra.Command {
	var h models.Hyperparams
	var nSamples int

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a network and save its weights",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.GetLogger()
			stats := &utils.TimingStats{}
			start := time.Now()

			banner("advbnn trainer")
			fmt.Printf("  Dataset:       %s\n", h.Dataset)
			fmt.Printf("  Model:         %s (%s, %s, hidden %d)\n", h.Kind, h.Architecture, h.Activation, h.Hidden)
			fmt.Printf("  Epochs:        %d\n", h.Epochs)
			fmt.Printf("  Learning Rate: %g\n", h.LR)
			fmt.Printf("  Inputs:        %d\n\n", h.Inputs)

			t0 := time.Now()
			ds, err := data.Load(cfg.DataDir, h.Dataset, h.Inputs, h.Seed)
			if err != nil {
				return err
			}
			stats.DataLoadingTime = time.Since(t0)

			var name string
			var acc float64
			t0 = time.Now()
			switch h.Kind {
			case models.KindNN:
				m, err := models.NewNN(registry(), h, ds.InputShape, ds.Classes)
				if err != nil {
					return err
				}
				if err := m.Train(cmd.Context(), ds.Train.X, ds.Train.Labels); err != nil {
					return err
				}
				stats.TrainTime = time.Since(t0)
				name = m.Name()
				t0 = time.Now()
				if acc, err = m.Evaluate(ds.Test.X, ds.Test.Labels); err != nil {
					return err
				}
			case models.KindBNN:
				m, err := models.NewBNN(registry(), h, ds.InputShape, ds.Classes)
				if err != nil {
					return err
				}
				if err := m.Train(cmd.Context(), ds.Train.X, ds.Train.Labels); err != nil {
					return err
				}
				stats.TrainTime = time.Since(t0)
				name = m.Name()
				t0 = time.Now()
				if acc, err = m.Evaluate(ds.Test.X, ds.Test.Labels, nSamples, cfg.Seed); err != nil {
					return err
				}
			default:
				return fmt.Errorf("train supports %s and %s; use the gp command for the GP head", models.KindNN, models.KindBNN)
			}
			stats.EvaluationTime = time.Since(t0)
			stats.TotalTime = time.Since(start)

			logger.WithFields(logrus.Fields{"model": name, "test_acc": acc}).Info("training finished")
			fmt.Printf("\n%s %s test accuracy %.2f%%\n", okText("TRAINED"), name, acc)
			utils.PrintTimingStats(stats)
			return nil
		},
	}
	addModelFlags(cmd, &h, "Model type: nn, bnn")
	cmd.Flags().IntVar(&nSamples, "n-samples", 10, "Posterior samples used to evaluate a bnn")
	return cmd
}

func newGPCmd() *cobra.Command {
	var dataset string
	var nInputs int
	var retrainBase bool

	cmd := &cobra.Command{
		Use:   "gp",
		Short: "Fit the GP head of a saved preset on its base network",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.GetLogger()
			preset, ok := models.Presets[dataset]
			if !ok {
				return fmt.Errorf("no GP preset for dataset %q", dataset)
			}
			if nInputs <= 0 {
				nInputs = preset.GPInputs
			}
			baseParams := preset.BaseHyperparams(dataset)
			stats := &utils.TimingStats{}
			start := time.Now()

			banner("advbnn GP head")
			fmt.Printf("  Dataset:       %s\n", dataset)
			fmt.Printf("  Base inputs:   %d\n", preset.BaseInputs)
			fmt.Printf("  GP inputs:     %d\n\n", nInputs)

			t0 := time.Now()
			ds, err := data.Load(cfg.DataDir, dataset, preset.BaseInputs, baseParams.Seed)
			if err != nil {
				return err
			}
			stats.DataLoadingTime = time.Since(t0)

			base, err := models.NewPresetBase(registry(), dataset, preset, ds.InputShape, ds.Classes)
			if err != nil {
				return err
			}
			t0 = time.Now()
			if retrainBase {
				err = base.Train(cmd.Context(), ds.Train.X, ds.Train.Labels)
			} else {
				err = models.LoadOrTrain(cmd.Context(), base, ds.Train.X, ds.Train.Labels)
			}
			if err != nil {
				return err
			}
			stats.TrainTime = time.Since(t0)

			m, err := models.NewGPRedBNN(registry(), base, nInputs)
			if err != nil {
				return err
			}
			fit := ds.Train.Head(nInputs)
			if err := m.Train(cmd.Context(), fit.X, fit.Labels); err != nil {
				return err
			}
			stats.GPFitTime = m.FitDuration

			t0 = time.Now()
			baseAcc, err := base.Evaluate(ds.Test.X, ds.Test.Labels)
			if err != nil {
				return err
			}
			gpAcc, err := m.Evaluate(ds.Test.X, ds.Test.Labels)
			if err != nil {
				return err
			}
			stats.EvaluationTime = time.Since(t0)
			stats.TotalTime = time.Since(start)

			logger.WithFields(logrus.Fields{
				"model":       m.Name(),
				"base_acc":    baseAcc,
				"gp_acc":      gpAcc,
				"duration_us": utils.DurationUS(m.FitDuration),
			}).Info("gp head fitted")
			fmt.Printf("\n%s base %s: %.2f%%\n", okText("ACCURACY"), base.Name(), baseAcc)
			fmt.Printf("%s gp   %s: %.2f%% (fit %s)\n", okText("ACCURACY"), m.Name(), gpAcc, m.FitDuration)
			utils.PrintTimingStats(stats)
			return nil
		},
	}
	cmd.Flags().StringVar(&dataset, "dataset", "half_moons", "Preset dataset: half_moons, mnist")
	cmd.Flags().IntVar(&nInputs, "n-inputs", 0, "Training inputs of the GP (0 = preset value)")
	cmd.Flags().BoolVar(&retrainBase, "retrain-base", false, "Train the base network even when it is saved")
	return cmd
}
