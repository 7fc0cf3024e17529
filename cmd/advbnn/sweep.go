package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"advbnn/attack"
	"advbnn/logging"
	"advbnn/models"
	"advbnn/report"
	"advbnn/results"
	"advbnn/sweep"
	"advbnn/utils"
)

func newEpsSweepCmd() *cobra.Command {
	var h models.Hyperparams
	var method, epsList, samplesList string
	var nAttack int

	cmd := &cobra.Command{
		Use:   "eps-sweep",
		Short: "Attack one model with increasing epsilon and plot accuracy and robustness",
		RunE: func(cmd *cobra.Command, args []string) error {
			epsilons, err := utils.ParseFloatList(epsList)
			if err != nil {
				return err
			}
			samples, err := utils.ParseIntList(samplesList)
			if err != nil {
				return err
			}
			grid := sweep.Grid{
				Dataset:       h.Dataset,
				Kinds:         []string{h.Kind},
				Hidden:        []int{h.Hidden},
				Activations:   []string{h.Activation},
				Architectures: []string{h.Architecture},
				Epochs:        []int{h.Epochs},
				LRs:           []float64{h.LR},
				Inputs:        []int{h.Inputs},
				Seeds:         []int64{h.Seed},
			}
			spec := sweep.AttackSpec{Method: method, Epsilons: epsilons, Samples: samples, NInputs: nAttack, Seed: cfg.Seed}

			banner("advbnn epsilon sweep")
			fmt.Printf("  Model:         %s on %s\n", h.Kind, h.Dataset)
			fmt.Printf("  Attack:        %s eps=%v\n", method, epsilons)
			fmt.Printf("  Samples:       %v\n\n", samples)

			csvPath := filepath.Join(cfg.ResultsDir, fmt.Sprintf("%s_increasing_eps_%s.csv", h.Dataset, method))
			table, rep, err := runSweep(cmd.Context(), grid, spec, cfg.Workers, csvPath)
			if err != nil {
				return err
			}
			doc, err := report.Lineplot(table, report.LineOptions{
				Title:  fmt.Sprintf("%s %s on %s", strings.ToUpper(method), h.Kind, h.Dataset),
				Source: filepath.Base(csvPath),
			})
			if err != nil {
				return err
			}
			if err := writeFigure(csvPath, doc); err != nil {
				return err
			}
			printSweepSummary(rep, table, csvPath)
			return nil
		},
	}
	addModelFlags(cmd, &h, "Model type: nn, bnn, gp")
	f := cmd.Flags()
	f.StringVar(&method, "method", attack.FGSM, "Attack method: fgsm, pgd")
	f.StringVar(&epsList, "eps", "0,0.05,0.1,0.15,0.2,0.25,0.3", "Comma-separated epsilons")
	f.StringVar(&samplesList, "n-samples", "1", "Comma-separated posterior sample counts")
	f.IntVar(&nAttack, "n-attack", 100, "Number of test inputs to attack")
	return cmd
}

func newGridCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "grid",
		Short: "Run a hyperparameter sweep described by a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := sweep.LoadFile(file)
			if err != nil {
				return err
			}
			workers := f.Workers
			if cmd.Flags().Changed("workers") {
				workers = cfg.Workers
			}
			out := f.Output
			if out == "" {
				out = filepath.Join(cfg.ResultsDir, f.Name+".csv")
			}

			banner("advbnn grid " + f.Name)
			fmt.Printf("  Combinations:  %d\n", len(f.Grid.Combinations()))
			fmt.Printf("  Attack:        %s eps=%v samples=%v\n", f.Attack.Method, f.Attack.Epsilons, f.Attack.Samples)
			fmt.Printf("  Workers:       %d\n\n", workers)

			table, rep, err := runSweep(cmd.Context(), f.Grid, f.Attack, workers, out)
			if err != nil {
				return err
			}
			if table.Len() > 0 {
				doc, err := report.Scatterplot(table, report.ScatterOptions{Title: f.Name, Source: filepath.Base(out)})
				if err != nil {
					return err
				}
				if err := writeFigure(out, doc); err != nil {
					return err
				}
			}
			if f.Influx != nil {
				if err := exportTable(cmd.Context(), *f.Influx, table, rep.RunID); err != nil {
					return err
				}
			}
			printSweepSummary(rep, table, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to the sweep file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// runSweep runs the harness, persists the merged table at csvPath and prints timing.
func runSweep(ctx context.Context, grid sweep.Grid, spec sweep.AttackSpec, workers int, csvPath string) (*results.Table, *sweep.Report, error) {
	h := &sweep.Harness{
		Builder:    &sweep.ModelBuilder{Registry: registry(), DataDir: cfg.DataDir},
		Workers:    workers,
		PartialDir: filepath.Join(filepath.Dir(csvPath), "partials"),
		AttackDir:  cfg.ArtifactDir,
	}
	table, rep, err := h.Run(ctx, grid, spec)
	if err != nil {
		return nil, nil, err
	}
	if err := table.Persist(csvPath); err != nil {
		return nil, nil, err
	}
	logging.GetLogger().WithField("path", csvPath).Info("saved result table")
	utils.PrintTimingStats(&rep.Timing)
	return table, rep, nil
}

func writeFigure(csvPath, doc string) error {
	path := strings.TrimSuffix(csvPath, filepath.Ext(csvPath)) + ".tex"
	if err := report.Write(path, doc); err != nil {
		return err
	}
	logging.GetLogger().WithField("path", path).Info("saved figure")
	return nil
}

func printSweepSummary(rep *sweep.Report, table *results.Table, csvPath string) {
	fmt.Printf("\n%s run %s: %d/%d combinations, %d rows -> %s\n",
		okText("DONE"), rep.RunID, rep.Completed, rep.Combinations, table.Len(), csvPath)
	for _, f := range rep.Failures {
		key, _ := models.KeyFor(f.Params)
		fmt.Printf("%s %s: %v\n", warnText("SKIPPED"), key.Name, f.Err)
	}
}
