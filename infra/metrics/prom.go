package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/trafficsense/forecast/core/metrics"
)

// PromSink records forecasting events in Prometheus metrics.
type PromSink struct {
	forecasts   *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
	failures    *prometheus.CounterVec
	trainingR2  prometheus.Gauge
	samples     prometheus.Gauge
}

// NewPromSink registers forecasting metrics on the default Prometheus
// registerer. The Prometheus server should be started separately using
// cfg.PrometheusPort.
func NewPromSink(cfg coremetrics.Config) (coremetrics.Sink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(_ coremetrics.Config, reg prometheus.Registerer) (coremetrics.Sink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		forecasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forecast_sets_total",
			Help: "Total number of computed forecast sets",
		}, []string{"location_id"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "forecast_duration_seconds",
			Help:    "Time spent computing a full forecast set",
			Buckets: prometheus.DefBuckets,
		}, []string{"location_id"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forecast_cache_hits_total",
			Help: "Forecast cache hits",
		}, []string{"location_id"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forecast_cache_misses_total",
			Help: "Forecast cache misses",
		}, []string{"location_id"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forecast_horizon_failures_total",
			Help: "Requested horizons dropped from forecast sets",
		}, []string{"location_id", "horizon"}),
		trainingR2: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "model_holdout_r2",
			Help: "R2 of the last training run on its holdout split",
		}),
		samples: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "model_training_samples",
			Help: "Sample count of the last training run",
		}),
	}

	collectors := []prometheus.Collector{
		s.forecasts, s.duration, s.cacheHits, s.cacheMisses, s.failures, s.trainingR2, s.samples,
	}
	for i, c := range collectors {
		if err := reg.Register(c); err != nil {
			are, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				return nil, err
			}
			collectors[i] = are.ExistingCollector
		}
	}
	s.forecasts = collectors[0].(*prometheus.CounterVec)
	s.duration = collectors[1].(*prometheus.HistogramVec)
	s.cacheHits = collectors[2].(*prometheus.CounterVec)
	s.cacheMisses = collectors[3].(*prometheus.CounterVec)
	s.failures = collectors[4].(*prometheus.CounterVec)
	s.trainingR2 = collectors[5].(prometheus.Gauge)
	s.samples = collectors[6].(prometheus.Gauge)
	return s, nil
}

// RecordForecast increments the set counter and observes the duration.
func (s *PromSink) RecordForecast(locationID string, horizons int, duration time.Duration) error {
	s.forecasts.WithLabelValues(locationID).Inc()
	s.duration.WithLabelValues(locationID).Observe(duration.Seconds())
	return nil
}

// RecordCacheHit increments the hit counter.
func (s *PromSink) RecordCacheHit(locationID string) error {
	s.cacheHits.WithLabelValues(locationID).Inc()
	return nil
}

// RecordCacheMiss increments the miss counter.
func (s *PromSink) RecordCacheMiss(locationID string) error {
	s.cacheMisses.WithLabelValues(locationID).Inc()
	return nil
}

// RecordHorizonFailure counts a dropped horizon.
func (s *PromSink) RecordHorizonFailure(locationID string, horizon int) error {
	s.failures.WithLabelValues(locationID, strconv.Itoa(horizon)).Inc()
	return nil
}

// RecordTraining updates the training gauges.
func (s *PromSink) RecordTraining(samples int, _, r2 float64) error {
	s.samples.Set(float64(samples))
	s.trainingR2.Set(r2)
	return nil
}
