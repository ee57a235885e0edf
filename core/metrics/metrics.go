// Package metrics defines the sink interface the forecasting engine reports
// into. Adapters live under infra/metrics and should depend only on this
// package.
package metrics

import "time"

// Sink receives forecasting events. Implementations must be safe for
// concurrent use.
type Sink interface {
	// RecordForecast reports a completed forecast set: how many horizons
	// survived and how long the computation took.
	RecordForecast(locationID string, horizons int, duration time.Duration) error
	// RecordCacheHit and RecordCacheMiss report forecast cache outcomes.
	RecordCacheHit(locationID string) error
	RecordCacheMiss(locationID string) error
	// RecordHorizonFailure reports a dropped horizon.
	RecordHorizonFailure(locationID string, horizon int) error
	// RecordTraining reports a completed training run.
	RecordTraining(samples int, rmse, r2 float64) error
}

// Config defines settings for metrics sinks.
type Config struct {
	PrometheusEnabled bool   `json:"prometheus_enabled"`
	PrometheusPort    string `json:"prometheus_port"`
	InfluxEnabled     bool   `json:"influx_enabled"`
	InfluxURL         string `json:"influx_url"`
	InfluxToken       string `json:"influx_token"`
	InfluxOrg         string `json:"influx_org"`
	InfluxBucket      string `json:"influx_bucket"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.PrometheusPort == "" {
		c.PrometheusPort = ":9090"
	}
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) RecordForecast(string, int, time.Duration) error { return nil }
func (NopSink) RecordCacheHit(string) error                     { return nil }
func (NopSink) RecordCacheMiss(string) error                    { return nil }
func (NopSink) RecordHorizonFailure(string, int) error          { return nil }
func (NopSink) RecordTraining(int, float64, float64) error      { return nil }
