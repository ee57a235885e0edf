package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/trafficsense/forecast/app"
	"github.com/trafficsense/forecast/config"
	"github.com/trafficsense/forecast/infra/logger"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Fit a fresh model snapshot and persist the bundle",
	RunE:  train,
}

func init() {
	rootCmd.AddCommand(trainCmd)
}

func train(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	// The training command never publishes or scrapes.
	cfg.MQTT.Enabled = false
	cfg.Metrics.PrometheusEnabled = false

	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	logg := logger.New("train-command")
	defer func() {
		if err := svc.Close(); err != nil {
			logg.Errorf("service close: %v", err)
		}
	}()

	metrics, err := svc.Retrain(ctx)
	if err != nil {
		return err
	}
	logg.Infof("trained on %d samples (holdout %d): rmse=%.2f r2=%.4f, bundle at %s",
		metrics.Samples, metrics.HoldoutSamples, metrics.RMSE, metrics.R2, cfg.Model.Path)
	return nil
}
