// Package horizon expands a single current observation into multi-horizon
// congestion forecasts, one ensemble invocation per requested offset.
package horizon

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/trafficsense/forecast/core/ensemble"
	"github.com/trafficsense/forecast/core/feature"
	"github.com/trafficsense/forecast/core/logger"
	"github.com/trafficsense/forecast/core/model"
)

// Coarse ranking confidence decays with forecast distance. This is separate
// from the ensemble's agreement-based confidence and never overrides it.
const (
	rankConfidenceBase  = 0.85
	rankConfidenceDecay = 0.02
	rankConfidenceFloor = 0.50
	rankConfidenceCeil  = 0.95
)

// ErrNoHorizons is returned when the request carries no valid horizon.
var ErrNoHorizons = errors.New("no forecast horizons requested")

// ErrBadHorizon is returned for a non-positive horizon value.
var ErrBadHorizon = errors.New("horizon must be a positive number of hours")

// CongestionPredictor scores one feature vector. Implemented by
// ensemble.Predictor.
type CongestionPredictor interface {
	Predict(features []float64) (ensemble.Prediction, error)
	Ready() error
}

// Config defines scheduler parameters loaded from configuration.
type Config struct {
	// DefaultHorizons are the hours-ahead offsets used by the background
	// refresher and when a request omits them.
	DefaultHorizons []int `json:"default_horizons"`
	// HorizonBudgetMS bounds the computation of a single horizon; an
	// exceeded budget drops that horizon only.
	HorizonBudgetMS int `json:"horizon_budget_ms"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if len(c.DefaultHorizons) == 0 {
		c.DefaultHorizons = []int{1, 3, 6, 12, 24}
	}
	if c.HorizonBudgetMS == 0 {
		c.HorizonBudgetMS = 2000
	}
}

// Validate checks horizon values.
func (c Config) Validate() error {
	for _, h := range c.DefaultHorizons {
		if h <= 0 {
			return fmt.Errorf("horizon must be positive, got %d", h)
		}
	}
	return nil
}

// Scheduler builds one time-shifted feature vector per horizon and collects
// the ensemble results into an ordered ForecastSet.
type Scheduler struct {
	pred   CongestionPredictor
	log    logger.Logger
	clock  clockwork.Clock
	budget time.Duration
}

// New creates a Scheduler. A nil clock falls back to the real clock.
func New(pred CongestionPredictor, cfg Config, log logger.Logger, clock clockwork.Clock) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		pred:   pred,
		log:    log,
		clock:  clock,
		budget: time.Duration(cfg.HorizonBudgetMS) * time.Millisecond,
	}
}

// Forecast produces one ForecastPoint per requested horizon, sorted by
// ascending horizon. Horizons are processed independently: a failure or an
// exceeded budget drops that horizon and records it in FailedHorizons
// instead of aborting the set. An unloaded model fails the whole request.
func (s *Scheduler) Forecast(ctx context.Context, obs model.Observation, horizons []int, window []model.Observation) (model.ForecastSet, error) {
	if err := s.pred.Ready(); err != nil {
		return model.ForecastSet{}, err
	}
	hs, err := normalizeHorizons(horizons)
	if err != nil {
		return model.ForecastSet{}, err
	}

	now := s.clock.Now().UTC()
	set := model.ForecastSet{
		LocationID:  obs.LocationID,
		GeneratedAt: now,
		HourBucket:  now.Truncate(time.Hour),
	}

	for _, h := range hs {
		if ctx.Err() != nil {
			// Caller gone: the remaining horizons are not worth computing.
			set.FailedHorizons = append(set.FailedHorizons, h)
			continue
		}
		point, err := s.forecastOne(ctx, obs, h, now, window)
		if err != nil {
			s.log.Warnf("horizon %dh for %s dropped: %v", h, obs.LocationID, err)
			set.FailedHorizons = append(set.FailedHorizons, h)
			continue
		}
		set.Points = append(set.Points, point)
		set.ModelVersion = point.Model
	}
	return set, nil
}

func (s *Scheduler) forecastOne(ctx context.Context, obs model.Observation, h int, now time.Time, window []model.Observation) (model.ForecastPoint, error) {
	hctx := ctx
	if s.budget > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, s.budget)
		defer cancel()
	}

	targetTime := now.Add(time.Duration(h) * time.Hour)

	type result struct {
		point model.ForecastPoint
		err   error
	}
	done := make(chan result, 1)
	go func() {
		// Time features reflect the future instant being forecast.
		features := feature.Build(obs, targetTime, window)
		pred, err := s.pred.Predict(features)
		if err != nil {
			done <- result{err: err}
			return
		}
		freeFlow := obs.FreeFlow()
		currentSpeed, reduction := ensemble.SpeedEstimate(pred.Congestion, freeFlow)
		done <- result{point: model.ForecastPoint{
			TargetTime:            targetTime,
			HorizonHours:          h,
			Congestion:            pred.Congestion,
			Level:                 model.LevelFromCongestion(pred.Congestion),
			Confidence:            pred.Confidence / 100,
			RankConfidence:        rankConfidence(h),
			CurrentSpeed:          currentSpeed,
			FreeFlowSpeed:         freeFlow,
			SpeedReductionPercent: reduction,
			Model:                 pred.ModelVersion,
		}}
	}()

	select {
	case r := <-done:
		return r.point, r.err
	case <-hctx.Done():
		return model.ForecastPoint{}, fmt.Errorf("horizon budget exceeded: %w", hctx.Err())
	}
}

func rankConfidence(h int) float64 {
	c := rankConfidenceBase - rankConfidenceDecay*float64(h)
	if c < rankConfidenceFloor {
		return rankConfidenceFloor
	}
	if c > rankConfidenceCeil {
		return rankConfidenceCeil
	}
	return c
}

// normalizeHorizons sorts ascending, drops duplicates and rejects
// non-positive values.
func normalizeHorizons(horizons []int) ([]int, error) {
	if len(horizons) == 0 {
		return nil, ErrNoHorizons
	}
	seen := make(map[int]bool, len(horizons))
	out := make([]int, 0, len(horizons))
	for _, h := range horizons {
		if h <= 0 {
			return nil, fmt.Errorf("%w: got %d", ErrBadHorizon, h)
		}
		if seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, h)
	}
	sort.Ints(out)
	return out, nil
}
