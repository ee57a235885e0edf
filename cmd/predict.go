package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/trafficsense/forecast/app"
	"github.com/trafficsense/forecast/config"
	"github.com/trafficsense/forecast/infra/logger"
)

var predictHorizons []int

var predictCmd = &cobra.Command{
	Use:   "predict <location>",
	Short: "Compute a forecast for one location and print it as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  predict,
}

func init() {
	predictCmd.Flags().IntSliceVar(&predictHorizons, "horizons", nil, "hours ahead to forecast (default: configured horizons)")
	rootCmd.AddCommand(predictCmd)
}

func predict(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.MQTT.Enabled = false
	cfg.Metrics.PrometheusEnabled = false

	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("predict-command").Errorf("service close: %v", err)
		}
	}()

	set, _, err := svc.Forecast(ctx, args[0], predictHorizons)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(set)
}
