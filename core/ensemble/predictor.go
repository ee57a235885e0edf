// Package ensemble combines two independently trained regressors into one
// calibrated congestion prediction with a model-agreement confidence.
package ensemble

import (
	"sync/atomic"
	"time"

	"github.com/trafficsense/forecast/core/logger"
	"github.com/trafficsense/forecast/core/regressor"
)

// Confidence bounds in percent. Large disagreement between the two models
// signals an out-of-distribution input and lowers confidence, but never
// below the usability floor nor above the ceiling.
const (
	confidenceCeiling = 95.0
	confidenceFloor   = 70.0
	// speedReductionFactor converts percent congestion into the fraction of
	// free-flow speed lost at full congestion.
	speedReductionFactor = 0.6
)

// TrainedModel is an immutable snapshot of a fitted ensemble: both
// regressors, the frozen scaler, and the exact feature ordering used at fit
// time. Snapshots are replaced wholesale, never mutated.
type TrainedModel struct {
	Version      string
	FeatureNames []string
	Scaler       *Scaler
	Stable       regressor.Regressor
	Reactive     regressor.Regressor
	TrainedAt    time.Time
}

// Prediction is one ensemble scoring result.
type Prediction struct {
	// Congestion is the averaged model output clipped to [0,100].
	Congestion float64
	// Confidence is the agreement-based score in [70,95] percent.
	Confidence float64
	// ModelVersion identifies the snapshot that produced the prediction.
	ModelVersion string
}

// Predictor scores feature vectors against an atomically swappable model
// snapshot. Safe for concurrent use; retraining swaps in a fresh snapshot
// while in-flight readers continue against the old one.
type Predictor struct {
	model atomic.Pointer[TrainedModel]
	log   logger.Logger
}

// New creates a Predictor with no model loaded.
func New(log logger.Logger) *Predictor {
	return &Predictor{log: log}
}

// Swap atomically replaces the active model snapshot.
func (p *Predictor) Swap(m *TrainedModel) {
	p.model.Store(m)
	if m != nil {
		p.log.Infof("model %s activated (trained %s)", m.Version, m.TrainedAt.Format(time.RFC3339))
	}
}

// Model returns the active snapshot or ErrModelNotLoaded.
func (p *Predictor) Model() (*TrainedModel, error) {
	m := p.model.Load()
	if m == nil || m.Stable == nil || m.Reactive == nil {
		return nil, ErrModelNotLoaded
	}
	return m, nil
}

// Ready reports whether a complete ensemble is loaded.
func (p *Predictor) Ready() error {
	_, err := p.Model()
	return err
}

// Predict scales the vector with the frozen training statistics, runs both
// regressors and averages them. The result is clipped to the valid percent
// range and confidence degrades with model disagreement.
func (p *Predictor) Predict(features []float64) (Prediction, error) {
	m, err := p.Model()
	if err != nil {
		return Prediction{}, err
	}
	if len(features) != len(m.FeatureNames) {
		return Prediction{}, &ShapeError{Got: len(features), Want: len(m.FeatureNames)}
	}
	scaled, err := m.Scaler.Transform(features)
	if err != nil {
		return Prediction{}, err
	}

	a, err := m.Stable.Predict(scaled)
	if err != nil {
		return Prediction{}, err
	}
	b, err := m.Reactive.Predict(scaled)
	if err != nil {
		return Prediction{}, err
	}

	congestion := clamp((a+b)/2, 0, 100)
	agreement := a - b
	if agreement < 0 {
		agreement = -agreement
	}
	confidence := clamp(confidenceCeiling-agreement, confidenceFloor, confidenceCeiling)

	return Prediction{
		Congestion:   congestion,
		Confidence:   confidence,
		ModelVersion: m.Version,
	}, nil
}

// FeatureImportance returns normalized per-feature gain from the reactive
// regressor, or nil when the technique does not report gains.
func (p *Predictor) FeatureImportance() map[string]float64 {
	m, err := p.Model()
	if err != nil {
		return nil
	}
	reporter, ok := m.Reactive.(regressor.GainReporter)
	if !ok {
		return nil
	}
	gains := reporter.FeatureGains()
	if len(gains) != len(m.FeatureNames) {
		return nil
	}
	var total float64
	for _, g := range gains {
		total += g
	}
	if total <= 0 {
		return nil
	}
	out := make(map[string]float64, len(gains))
	for i, g := range gains {
		out[m.FeatureNames[i]] = g / total
	}
	return out
}

// SpeedEstimate is the deterministic speed transform exposed alongside the
// prediction: congestion linearly removes up to 60% of free-flow speed.
func SpeedEstimate(congestion, freeFlowSpeed float64) (currentSpeed, reductionPercent float64) {
	reduction := (congestion / 100) * speedReductionFactor
	return freeFlowSpeed * (1 - reduction), reduction * 100
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
