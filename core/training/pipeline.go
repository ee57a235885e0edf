// Package training fits the two-regressor ensemble from feature rows and
// labels, evaluates the averaged prediction on a holdout split, and hands
// back an immutable TrainedModel snapshot.
package training

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"gonum.org/v1/gonum/stat"

	"github.com/trafficsense/forecast/core/ensemble"
	"github.com/trafficsense/forecast/core/feature"
	"github.com/trafficsense/forecast/core/logger"
	"github.com/trafficsense/forecast/core/regressor"
)

// InsufficientDataError means the sample count cannot support a stable
// holdout split. Training aborts before fitting; any previous model stays in
// service.
type InsufficientDataError struct {
	Got int
	Min int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("training requires at least %d samples, got %d", e.Min, e.Got)
}

// DataSource supplies training rows in the canonical feature ordering with
// percent-congestion labels. Selected by configuration, not by availability
// heuristics.
type DataSource interface {
	Load(ctx context.Context) (rows [][]float64, labels []float64, err error)
	Name() string
}

// Config defines training parameters loaded from configuration.
type Config struct {
	// Source selects the data source: "synthetic" or "historical".
	Source string `json:"source"`
	// Samples is the synthetic sample count.
	Samples int `json:"samples"`
	// Seed fixes the synthetic generator and the holdout shuffle.
	Seed            int64   `json:"seed"`
	HoldoutFraction float64 `json:"holdout_fraction"`
	MinSamples      int     `json:"min_samples"`
	RidgeLambda     float64 `json:"ridge_lambda"`
	BoostRounds     int     `json:"boost_rounds"`
	LearningRate    float64 `json:"learning_rate"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Source == "" {
		c.Source = "synthetic"
	}
	if c.Samples == 0 {
		c.Samples = 10000
	}
	if c.Seed == 0 {
		c.Seed = 42
	}
	if c.HoldoutFraction == 0 {
		c.HoldoutFraction = 0.2
	}
	if c.MinSamples == 0 {
		c.MinSamples = 100
	}
	if c.RidgeLambda == 0 {
		c.RidgeLambda = 1.0
	}
	if c.BoostRounds == 0 {
		c.BoostRounds = 80
	}
	if c.LearningRate == 0 {
		c.LearningRate = 0.2
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.Source != "synthetic" && c.Source != "historical" {
		return fmt.Errorf("unknown training source %s", c.Source)
	}
	if c.HoldoutFraction <= 0 || c.HoldoutFraction >= 1 {
		return fmt.Errorf("holdout_fraction must be in (0,1), got %.2f", c.HoldoutFraction)
	}
	return nil
}

// Metrics summarizes the holdout evaluation of the averaged ensemble.
type Metrics struct {
	MSE            float64 `json:"mse"`
	RMSE           float64 `json:"rmse"`
	R2             float64 `json:"r2"`
	Samples        int     `json:"samples"`
	HoldoutSamples int     `json:"holdout_samples"`
}

// Pipeline fits and evaluates model snapshots.
type Pipeline struct {
	cfg   Config
	log   logger.Logger
	clock clockwork.Clock
}

// New creates a Pipeline. A nil clock falls back to the real clock.
func New(cfg Config, log logger.Logger, clock clockwork.Clock) *Pipeline {
	cfg.SetDefaults()
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Pipeline{cfg: cfg, log: log, clock: clock}
}

// Train splits the data, fits the scaler on the training split only, fits
// both regressors on the scaled training split, and evaluates the averaged
// ensemble against the holdout. The returned snapshot carries a fresh
// version and the exact feature ordering used at fit time.
func (p *Pipeline) Train(rows [][]float64, labels []float64) (*ensemble.TrainedModel, Metrics, error) {
	n := len(rows)
	if n != len(labels) {
		return nil, Metrics{}, fmt.Errorf("rows/labels mismatch: %d vs %d", n, len(labels))
	}
	if n < p.cfg.MinSamples {
		return nil, Metrics{}, &InsufficientDataError{Got: n, Min: p.cfg.MinSamples}
	}
	for _, row := range rows {
		if len(row) != feature.Count {
			return nil, Metrics{}, &ensemble.ShapeError{Got: len(row), Want: feature.Count}
		}
	}

	trainX, trainY, holdX, holdY := split(rows, labels, p.cfg.HoldoutFraction, p.cfg.Seed)
	p.log.Infof("training ensemble on %d samples, holding out %d", len(trainX), len(holdX))

	// Scaling statistics come from the training split only; the holdout is
	// transformed with the frozen parameters.
	scaler, err := ensemble.FitScaler(trainX)
	if err != nil {
		return nil, Metrics{}, fmt.Errorf("fit scaler: %w", err)
	}
	scaledTrain, err := scaler.TransformAll(trainX)
	if err != nil {
		return nil, Metrics{}, err
	}
	scaledHold, err := scaler.TransformAll(holdX)
	if err != nil {
		return nil, Metrics{}, err
	}

	stable := regressor.NewRidge(p.cfg.RidgeLambda)
	reactive := regressor.NewBoostedStumps(p.cfg.BoostRounds, p.cfg.LearningRate)
	if err := stable.Fit(scaledTrain, trainY); err != nil {
		return nil, Metrics{}, fmt.Errorf("fit %s: %w", stable.Name(), err)
	}
	if err := reactive.Fit(scaledTrain, trainY); err != nil {
		return nil, Metrics{}, fmt.Errorf("fit %s: %w", reactive.Name(), err)
	}

	metrics, err := evaluate(stable, reactive, scaledHold, holdY)
	if err != nil {
		return nil, Metrics{}, fmt.Errorf("evaluate: %w", err)
	}
	metrics.Samples = n
	metrics.HoldoutSamples = len(holdX)
	p.log.Infof("holdout evaluation: rmse=%.2f r2=%.4f", metrics.RMSE, metrics.R2)

	m := &ensemble.TrainedModel{
		Version:      uuid.NewString(),
		FeatureNames: append([]string(nil), feature.Names...),
		Scaler:       scaler,
		Stable:       stable,
		Reactive:     reactive,
		TrainedAt:    p.clock.Now().UTC(),
	}
	return m, metrics, nil
}

// TrainFrom loads rows from the source and trains on them.
func (p *Pipeline) TrainFrom(ctx context.Context, src DataSource) (*ensemble.TrainedModel, Metrics, error) {
	rows, labels, err := src.Load(ctx)
	if err != nil {
		return nil, Metrics{}, fmt.Errorf("load %s training data: %w", src.Name(), err)
	}
	return p.Train(rows, labels)
}

// evaluate scores the averaged ensemble, the metric that matters
// operationally, against the holdout.
func evaluate(a, b regressor.Regressor, X [][]float64, y []float64) (Metrics, error) {
	estimates := make([]float64, len(X))
	var sse float64
	for i, row := range X {
		pa, err := a.Predict(row)
		if err != nil {
			return Metrics{}, err
		}
		pb, err := b.Predict(row)
		if err != nil {
			return Metrics{}, err
		}
		estimates[i] = (pa + pb) / 2
		d := estimates[i] - y[i]
		sse += d * d
	}
	mse := sse / float64(len(y))
	return Metrics{
		MSE:  mse,
		RMSE: math.Sqrt(mse),
		R2:   stat.RSquaredFrom(estimates, y, nil),
	}, nil
}

// split shuffles deterministically and carves off the holdout fraction.
func split(rows [][]float64, labels []float64, holdout float64, seed int64) (trainX [][]float64, trainY []float64, holdX [][]float64, holdY []float64) {
	n := len(rows)
	idx := rand.New(rand.NewSource(seed)).Perm(n)
	cut := n - int(float64(n)*holdout)
	if cut <= 0 || cut >= n {
		cut = n - 1
	}
	for i, j := range idx {
		if i < cut {
			trainX = append(trainX, rows[j])
			trainY = append(trainY, labels[j])
		} else {
			holdX = append(holdX, rows[j])
			holdY = append(holdY, labels[j])
		}
	}
	return trainX, trainY, holdX, holdY
}
