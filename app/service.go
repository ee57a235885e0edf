// Package app wires the forecasting engine together: storage, the ensemble
// predictor, the horizon scheduler, the forecast cache, metrics sinks and
// the broker publisher.
package app

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/trafficsense/forecast/config"
	"github.com/trafficsense/forecast/core/ensemble"
	"github.com/trafficsense/forecast/core/forecastcache"
	"github.com/trafficsense/forecast/core/horizon"
	coremetrics "github.com/trafficsense/forecast/core/metrics"
	"github.com/trafficsense/forecast/core/model"
	"github.com/trafficsense/forecast/core/training"
	"github.com/trafficsense/forecast/infra/artifact"
	"github.com/trafficsense/forecast/infra/logger"
	"github.com/trafficsense/forecast/infra/metrics"
	"github.com/trafficsense/forecast/infra/mqtt"
	"github.com/trafficsense/forecast/infra/store"
	"github.com/trafficsense/forecast/internal/eventbus"
)

// Service orchestrates the forecasting engine.
type Service struct {
	cfg       *config.Config
	log       logger.Logger
	store     *store.Store
	predictor *ensemble.Predictor
	scheduler *horizon.Scheduler
	cache     *forecastcache.Cache
	pipeline  *training.Pipeline
	sink      coremetrics.Sink
	hub       *eventbus.Hub
	publisher mqtt.Publisher

	mu           sync.RWMutex
	trainMetrics training.Metrics
}

// New creates a Service from the configuration. A missing model bundle is
// not fatal: the service starts degraded and predictions fail with
// ErrModelNotLoaded until a retrain succeeds.
func New(cfg *config.Config) (*Service, error) {
	log := logger.New("service")

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	predictor := ensemble.New(logger.New("ensemble"))
	svc := &Service{
		cfg:       cfg,
		log:       log,
		store:     st,
		predictor: predictor,
		scheduler: horizon.New(predictor, cfg.Horizon, logger.New("horizon"), nil),
		cache:     forecastcache.New(cfg.Cache, logger.New("forecast_cache"), nil),
		pipeline:  training.New(cfg.Training, logger.New("training"), nil),
		hub:       eventbus.NewHub(),
		publisher: mqtt.NopPublisher{},
	}

	if m, trainMetrics, err := artifact.Load(cfg.Model.Path); err != nil {
		log.Warnf("no usable model bundle at %s: %v", cfg.Model.Path, err)
	} else {
		predictor.Swap(m)
		svc.trainMetrics = trainMetrics
	}

	sink, err := metrics.NewSinkFromConfig(cfg.Metrics, logger.New("metrics"))
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	svc.sink = sink

	if cfg.MQTT.Enabled {
		pub, err := mqtt.NewPahoPublisher(cfg.MQTT)
		if err != nil {
			return nil, fmt.Errorf("mqtt publisher: %w", err)
		}
		svc.publisher = pub
	}
	return svc, nil
}

// Forecast returns the multi-horizon forecast for a location. Requests for
// the default horizon list are served from the hour-bucket cache; custom
// horizon lists bypass it so a cached default set never masks them.
func (s *Service) Forecast(ctx context.Context, locationID string, horizons []int) (model.ForecastSet, bool, error) {
	if len(horizons) == 0 {
		horizons = s.cfg.Horizon.DefaultHorizons
	}

	obs, err := s.store.LatestObservation(ctx, locationID)
	if err != nil {
		return model.ForecastSet{}, false, err
	}

	compute := func(ctx context.Context) (model.ForecastSet, error) {
		return s.compute(ctx, obs, horizons)
	}

	start := time.Now()
	var set model.ForecastSet
	var hit bool
	if slices.Equal(horizons, s.cfg.Horizon.DefaultHorizons) {
		set, hit, err = s.cache.GetOrCompute(ctx, locationID, time.Now().UTC(), compute)
	} else {
		set, err = compute(ctx)
	}
	if err != nil {
		return model.ForecastSet{}, false, err
	}

	if hit {
		s.recordMetric(s.sink.RecordCacheHit(locationID))
	} else {
		s.recordMetric(s.sink.RecordCacheMiss(locationID))
		duration := time.Since(start)
		s.recordMetric(s.sink.RecordForecast(locationID, len(set.Points), duration))
		s.hub.Forecasts.Publish(eventbus.ForecastComputed{Set: set, Duration: duration})
	}
	return set, hit, nil
}

// compute builds the lag window and runs the scheduler over it.
func (s *Service) compute(ctx context.Context, obs model.Observation, horizons []int) (model.ForecastSet, error) {
	window, err := s.store.HistoricalWindow(ctx, obs.LocationID, 24)
	if err != nil {
		return model.ForecastSet{}, err
	}
	// The store returns most recent first; the feature builder wants
	// oldest first.
	slices.Reverse(window)

	set, err := s.scheduler.Forecast(ctx, obs, horizons, window)
	if err != nil {
		return model.ForecastSet{}, err
	}
	for _, h := range set.FailedHorizons {
		s.recordMetric(s.sink.RecordHorizonFailure(obs.LocationID, h))
	}
	if set.Empty() {
		return model.ForecastSet{}, fmt.Errorf("every horizon failed for %s", obs.LocationID)
	}
	return set, nil
}

// RecordObservation ingests one observation.
func (s *Service) RecordObservation(ctx context.Context, obs model.Observation) error {
	return s.store.InsertObservation(ctx, obs)
}

// ModelInfo describes the active snapshot.
type ModelInfo struct {
	Version           string             `json:"version"`
	TrainedAt         time.Time          `json:"trained_at"`
	FeatureNames      []string           `json:"feature_names"`
	Metrics           training.Metrics   `json:"metrics"`
	FeatureImportance map[string]float64 `json:"feature_importance,omitempty"`
}

// ModelInfo returns metadata for the active model or ErrModelNotLoaded.
func (s *Service) ModelInfo() (ModelInfo, error) {
	m, err := s.predictor.Model()
	if err != nil {
		return ModelInfo{}, err
	}
	s.mu.RLock()
	trainMetrics := s.trainMetrics
	s.mu.RUnlock()
	return ModelInfo{
		Version:           m.Version,
		TrainedAt:         m.TrainedAt,
		FeatureNames:      m.FeatureNames,
		Metrics:           trainMetrics,
		FeatureImportance: s.predictor.FeatureImportance(),
	}, nil
}

// Ready reports whether the service can produce forecasts.
func (s *Service) Ready() error { return s.predictor.Ready() }

// Retrain fits a fresh snapshot from the configured source, persists the
// bundle and swaps it into service. The previous model keeps serving until
// the swap; a failed run changes nothing.
func (s *Service) Retrain(ctx context.Context) (training.Metrics, error) {
	var src training.DataSource
	switch s.cfg.Training.Source {
	case "historical":
		src = store.HistoricalSource{Store: s.store}
	default:
		src = training.SyntheticSource{N: s.cfg.Training.Samples, Seed: s.cfg.Training.Seed}
	}

	m, trainMetrics, err := s.pipeline.TrainFrom(ctx, src)
	if err != nil {
		return training.Metrics{}, fmt.Errorf("train: %w", err)
	}
	if err := artifact.Save(s.cfg.Model.Path, m, trainMetrics); err != nil {
		return training.Metrics{}, fmt.Errorf("persist bundle: %w", err)
	}
	s.predictor.Swap(m)

	s.mu.Lock()
	s.trainMetrics = trainMetrics
	s.mu.Unlock()

	s.invalidateAll(ctx)
	s.recordMetric(s.sink.RecordTraining(trainMetrics.Samples, trainMetrics.RMSE, trainMetrics.R2))
	s.hub.Retraining.Publish(eventbus.ModelRetrained{
		Version:   m.Version,
		Metrics:   trainMetrics,
		TrainedAt: m.TrainedAt,
	})
	return trainMetrics, nil
}

// invalidateAll drops cached forecasts for every known location after a
// model swap.
func (s *Service) invalidateAll(ctx context.Context) {
	locations, err := s.store.Locations(ctx)
	if err != nil {
		s.log.Errorf("cache invalidation: %v", err)
		return
	}
	for _, loc := range locations {
		s.cache.Invalidate(loc)
	}
}

// Run starts the background machinery and blocks until the context is
// cancelled: forecast event subscribers, the Prometheus listener and the
// periodic refresher.
func (s *Service) Run(ctx context.Context) error {
	go s.consumeForecasts()

	if s.cfg.Metrics.PrometheusEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.cfg.Metrics.PrometheusPort); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	if s.cfg.Refresh.Enabled {
		go s.refreshLoop(ctx)
	}

	return s.serveHTTP(ctx)
}

// consumeForecasts persists and publishes every freshly computed set off the
// request path.
func (s *Service) consumeForecasts() {
	ch := s.hub.Forecasts.Subscribe()
	for ev := range ch {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := s.store.SaveForecastSet(ctx, ev.Set); err != nil {
			s.log.Errorf("persist forecast for %s: %v", ev.Set.LocationID, err)
		}
		cancel()
		if err := s.publisher.PublishForecast(ev.Set); err != nil {
			s.log.Errorf("publish forecast for %s: %v", ev.Set.LocationID, err)
		}
	}
}

// refreshLoop keeps the cache warm by recomputing default-horizon forecasts
// for every known location.
func (s *Service) refreshLoop(ctx context.Context) {
	interval := time.Duration(s.cfg.Refresh.IntervalMinutes) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refreshAll(ctx)
		}
	}
}

func (s *Service) refreshAll(ctx context.Context) {
	locations, err := s.store.Locations(ctx)
	if err != nil {
		s.log.Errorf("refresh: list locations: %v", err)
		return
	}
	for _, loc := range locations {
		if _, _, err := s.Forecast(ctx, loc, nil); err != nil {
			s.log.Warnf("refresh %s: %v", loc, err)
		}
	}
	s.log.Debugf("refreshed forecasts for %d locations", len(locations))
}

func (s *Service) recordMetric(err error) {
	if err != nil {
		s.log.Errorf("metrics sink: %v", err)
	}
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.hub.Close()
	s.publisher.Close()
	if closer, ok := s.sink.(interface{ Close() }); ok {
		closer.Close()
	}
	return s.store.Close()
}
