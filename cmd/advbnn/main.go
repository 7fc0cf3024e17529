// advbnn: adversarial robustness experiments for Bayesian neural networks.
//
// Usage:
//
//	advbnn train --dataset=half_moons --model-type=bnn --hidden=32 --epochs=10
//	advbnn eps-sweep --dataset=mnist --model-type=gp --method=fgsm
//	advbnn grid --file=sweeps/moons.yaml
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"advbnn/logging"
	"advbnn/models"
	"advbnn/utils"
)

const Version = "0.3.0"

var (
	cfgFile string
	cfg     utils.Config

	okText   = color.New(color.FgGreen, color.Bold).SprintFunc()
	warnText = color.New(color.FgYellow).SprintFunc()
	headText = color.New(color.FgCyan, color.Bold).SprintFunc()
)

func main() {
	logger := logging.GetLogger()
	loadEnvironment()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logger.WithError(err).Error("Command execution failed")
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	def := utils.DefaultConfig()

	rootCmd := &cobra.Command{
		Use:           "advbnn",
		Short:         "Adversarial robustness experiments for Bayesian neural networks",
		Long:          "Train deterministic, Bayesian and GP-head networks, attack them with FGSM/PGD and sweep the results into CSV tables and pgfplots figures",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := loadConfig()
			if err != nil {
				return err
			}
			if err := logging.SetLogLevel(loaded.LogLevel); err != nil {
				return fmt.Errorf("invalid log level: %w", err)
			}
			if err := utils.ValidateConfig(&loaded); err != nil {
				return err
			}
			cfg = loaded
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "Path to a config file (yaml, json or toml)")
	flags.String("device", def.Device, "Compute device (only cpu is available)")
	flags.String("data-dir", def.DataDir, "Directory holding the mnist and fashion_mnist IDX files")
	flags.String("artifact-dir", def.ArtifactDir, "Directory of trained models and attack batches")
	flags.String("results-dir", def.ResultsDir, "Directory of result tables and figures")
	flags.Int("workers", def.Workers, "Combinations evaluated in parallel by sweeps")
	flags.Int64("seed", def.Seed, "Seed for posterior sampling")
	flags.String("log-level", def.LogLevel, "Set log level (trace, debug, info, warn, error)")

	for key, flag := range map[string]string{
		"device":       "device",
		"data_dir":     "data-dir",
		"artifact_dir": "artifact-dir",
		"results_dir":  "results-dir",
		"workers":      "workers",
		"seed":         "seed",
		"log_level":    "log-level",
	} {
		_ = viper.BindPFlag(key, flags.Lookup(flag))
	}

	rootCmd.AddCommand(
		newTrainCmd(),
		newGPCmd(),
		newAttackCmd(),
		newEpsSweepCmd(),
		newGridCmd(),
		newPlotCmd(),
		newExportCmd(),
		newValidateCmd(),
	)
	return rootCmd
}

// loadConfig merges defaults, the optional config file, ADVBNN_* variables and flags.
func loadConfig() (utils.Config, error) {
	def := utils.DefaultConfig()
	viper.SetEnvPrefix("ADVBNN")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	viper.SetDefault("device", def.Device)
	viper.SetDefault("data_dir", def.DataDir)
	viper.SetDefault("artifact_dir", def.ArtifactDir)
	viper.SetDefault("results_dir", def.ResultsDir)
	viper.SetDefault("workers", def.Workers)
	viper.SetDefault("seed", def.Seed)
	viper.SetDefault("log_level", def.LogLevel)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return utils.Config{}, fmt.Errorf("failed to load config %s: %w", cfgFile, err)
		}
	}

	var c utils.Config
	if err := viper.Unmarshal(&c); err != nil {
		return utils.Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}

// loadEnvironment reads .env from the working directory, then from the binary's directory.
func loadEnvironment() {
	logger := logging.GetLogger()

	candidates := []string{".env"}
	if execPath, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(execPath), ".env"))
	}
	for _, envFile := range candidates {
		if _, err := os.Stat(envFile); err != nil {
			continue
		}
		if err := godotenv.Load(envFile); err != nil {
			logger.WithField("file", envFile).WithError(err).Warn("Error loading .env file")
		} else {
			logger.WithField("file", envFile).Debug("Loaded environment variables")
		}
		return
	}
}

func registry() models.Registry {
	return models.Registry{Root: cfg.ArtifactDir}
}

func banner(title string) {
	line := strings.Repeat("=", 64)
	fmt.Println(headText(line))
	fmt.Println(headText(fmt.Sprintf("  %s", title)))
	fmt.Println(headText(line))
}
