package metrics

import (
	"fmt"

	coremetrics "github.com/trafficsense/forecast/core/metrics"
	"github.com/trafficsense/forecast/infra/logger"
)

// NewSinkFromConfig assembles the configured sinks. With nothing enabled it
// returns a NopSink so callers never need a nil check.
func NewSinkFromConfig(cfg coremetrics.Config, log logger.Logger) (coremetrics.Sink, error) {
	var sinks []coremetrics.Sink
	if cfg.PrometheusEnabled {
		sink, err := NewPromSink(cfg)
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.InfluxEnabled {
		sinks = append(sinks, NewInfluxSink(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket, log))
	}
	switch len(sinks) {
	case 0:
		return coremetrics.NopSink{}, nil
	case 1:
		return sinks[0], nil
	default:
		return NewMultiSink(sinks...), nil
	}
}
