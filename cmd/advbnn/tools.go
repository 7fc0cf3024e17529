package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/k0kubun/pp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"advbnn/models"
	"advbnn/report"
	"advbnn/results"
	"advbnn/sweep"
)

func newPlotCmd() *cobra.Command {
	var csvPath, kind, x, style, out string

	cmd := &cobra.Command{
		Use:   "plot",
		Short: "Render a saved result table as a pgfplots figure",
		Long:  "Render a line plot (metrics against epsilon) or a scatter plot (robustness against accuracy) from a result CSV without re-running anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := results.Load(csvPath)
			if err != nil {
				return err
			}
			title := strings.TrimSuffix(filepath.Base(csvPath), filepath.Ext(csvPath))
			var doc string
			switch kind {
			case "line":
				doc, err = report.Lineplot(table, report.LineOptions{Title: title, Source: filepath.Base(csvPath), X: x, Style: style})
			case "scatter":
				doc, err = report.Scatterplot(table, report.ScatterOptions{Title: title, Source: filepath.Base(csvPath), Hue: style})
			default:
				return fmt.Errorf("unknown plot kind %q (want line or scatter)", kind)
			}
			if err != nil {
				return err
			}
			if out == "" {
				return writeFigure(csvPath, doc)
			}
			return report.Write(out, doc)
		},
	}
	f := cmd.Flags()
	f.StringVar(&csvPath, "csv", "", "Result table to plot")
	f.StringVar(&kind, "kind", "line", "Plot kind: line, scatter")
	f.StringVar(&x, "x", "", "X column of a line plot (default epsilon)")
	f.StringVar(&style, "style", "", "Column splitting the series (default n_samples)")
	f.StringVar(&out, "out", "", "Output .tex path (default next to the CSV)")
	_ = cmd.MarkFlagRequired("csv")
	return cmd
}

func newExportCmd() *cobra.Command {
	var csvPath, runID string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a result table to InfluxDB",
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := results.Load(csvPath)
			if err != nil {
				return err
			}
			if runID == "" {
				runID = uuid.NewString()
			}
			ic := results.InfluxConfig{
				URL:    viper.GetString("influx_url"),
				Token:  viper.GetString("influx_token"),
				Org:    viper.GetString("influx_org"),
				Bucket: viper.GetString("influx_bucket"),
			}
			if ic.URL == "" || ic.Bucket == "" {
				return fmt.Errorf("influx url and bucket are required (flags or ADVBNN_INFLUX_* variables)")
			}
			if err := exportTable(cmd.Context(), ic, table, runID); err != nil {
				return err
			}
			fmt.Printf("%s %d rows of %s as run %s\n", okText("EXPORTED"), table.Len(), csvPath, runID)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&csvPath, "csv", "", "Result table to export")
	f.StringVar(&runID, "run-id", "", "Run ID tag (default a random UUID)")
	f.String("influx-url", "", "InfluxDB URL")
	f.String("influx-token", "", "InfluxDB token")
	f.String("influx-org", "", "InfluxDB organisation")
	f.String("influx-bucket", "", "InfluxDB bucket")
	for _, key := range []string{"influx_url", "influx_token", "influx_org", "influx_bucket"} {
		_ = viper.BindPFlag(key, f.Lookup(strings.ReplaceAll(key, "_", "-")))
	}
	_ = cmd.MarkFlagRequired("csv")
	return cmd
}

func exportTable(ctx context.Context, ic results.InfluxConfig, table *results.Table, runID string) error {
	exporter, err := results.NewInfluxExporter(ctx, ic)
	if err != nil {
		return err
	}
	defer exporter.Close()
	return exporter.Export(ctx, table, runID)
}

func newValidateCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a sweep file and print the models it would train",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := sweep.LoadFile(file)
			if err != nil {
				return err
			}
			pp.Println(f)
			combos := f.Grid.Combinations()
			for _, h := range combos {
				key, err := models.KeyFor(h)
				if err != nil {
					return err
				}
				fmt.Printf("  %s\n", key.Name)
			}
			rows := len(combos) * len(f.Attack.Epsilons) * len(f.Attack.Samples) * f.Attack.NInputs
			fmt.Printf("%s %s: %d combinations, at most %d rows\n", okText("VALID"), file, len(combos), rows)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to the sweep file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
