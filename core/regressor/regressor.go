// Package regressor provides the trainable models combined by the ensemble.
// Models are opaque behind the Fit/Predict contract; the engine only relies
// on two independently trained regressors existing, not on their internals.
package regressor

import "errors"

// ErrNotFitted is returned by Predict before Fit has run.
var ErrNotFitted = errors.New("regressor not fitted")

// Regressor is a trainable regression model.
type Regressor interface {
	// Fit trains the model on rows X and targets y. len(X) == len(y) and
	// all rows share one width.
	Fit(X [][]float64, y []float64) error
	// Predict scores a single row of the width seen at fit time.
	Predict(x []float64) (float64, error)
	// Name identifies the technique, e.g. "ridge" or "boosted_stumps".
	Name() string
}

// GainReporter is implemented by regressors that can attribute training
// gain to individual features.
type GainReporter interface {
	// FeatureGains returns the accumulated gain per feature index.
	FeatureGains() []float64
}
