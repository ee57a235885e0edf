// Package artifact persists trained ensembles as a single JSON bundle. The
// two regressor states, the scaler parameters and the feature ordering are
// written together or not at all; a partial bundle on disk would silently
// skew inference against training.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/trafficsense/forecast/core/ensemble"
	"github.com/trafficsense/forecast/core/feature"
	"github.com/trafficsense/forecast/core/regressor"
	"github.com/trafficsense/forecast/core/training"
)

// SchemaVersion guards against loading bundles written by an incompatible
// build.
const SchemaVersion = 1

// ErrSchemaMismatch is returned for bundles with an unknown schema version
// or a feature ordering that differs from this build's schema.
var ErrSchemaMismatch = errors.New("model bundle does not match the feature schema")

// Bundle is the on-disk form of a trained ensemble.
type Bundle struct {
	SchemaVersion int                      `json:"schema_version"`
	ModelVersion  string                   `json:"model_version"`
	FeatureNames  []string                 `json:"feature_names"`
	TrainedAt     time.Time                `json:"trained_at"`
	Metrics       training.Metrics         `json:"metrics"`
	Scaler        *ensemble.Scaler         `json:"scaler"`
	Stable        *regressor.Ridge         `json:"stable"`
	Reactive      *regressor.BoostedStumps `json:"reactive"`
}

// Save writes the snapshot and its training metrics atomically: the bundle
// is marshalled to a temp file in the target directory and renamed into
// place, so readers never observe a half-written artifact.
func Save(path string, m *ensemble.TrainedModel, metrics training.Metrics) error {
	stable, ok := m.Stable.(*regressor.Ridge)
	if !ok {
		return fmt.Errorf("unsupported stable regressor %q", m.Stable.Name())
	}
	reactive, ok := m.Reactive.(*regressor.BoostedStumps)
	if !ok {
		return fmt.Errorf("unsupported reactive regressor %q", m.Reactive.Name())
	}

	b := Bundle{
		SchemaVersion: SchemaVersion,
		ModelVersion:  m.Version,
		FeatureNames:  m.FeatureNames,
		TrainedAt:     m.TrainedAt,
		Metrics:       metrics,
		Scaler:        m.Scaler,
		Stable:        stable,
		Reactive:      reactive,
	}
	raw, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal bundle: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".bundle-*")
	if err != nil {
		return fmt.Errorf("create temp bundle: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write bundle: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close bundle: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("activate bundle: %w", err)
	}
	return nil
}

// Load reads and validates a bundle. Loading fails closed: a missing,
// corrupt or mismatched bundle yields an error and no model, never a
// silently untrained ensemble.
func Load(path string) (*ensemble.TrainedModel, training.Metrics, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, training.Metrics{}, fmt.Errorf("read model bundle: %w", err)
	}
	var b Bundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, training.Metrics{}, fmt.Errorf("parse model bundle: %w", err)
	}
	if b.SchemaVersion != SchemaVersion {
		return nil, training.Metrics{}, fmt.Errorf("%w: schema version %d, want %d",
			ErrSchemaMismatch, b.SchemaVersion, SchemaVersion)
	}
	if err := validateFeatureNames(b.FeatureNames); err != nil {
		return nil, training.Metrics{}, err
	}
	if b.Scaler == nil || b.Stable == nil || b.Reactive == nil {
		return nil, training.Metrics{}, fmt.Errorf("%w: incomplete bundle", ErrSchemaMismatch)
	}

	m := &ensemble.TrainedModel{
		Version:      b.ModelVersion,
		FeatureNames: b.FeatureNames,
		Scaler:       b.Scaler,
		Stable:       b.Stable,
		Reactive:     b.Reactive,
		TrainedAt:    b.TrainedAt,
	}
	return m, b.Metrics, nil
}

func validateFeatureNames(names []string) error {
	if len(names) != feature.Count {
		return fmt.Errorf("%w: %d features, want %d", ErrSchemaMismatch, len(names), feature.Count)
	}
	for i, name := range names {
		if name != feature.Names[i] {
			return fmt.Errorf("%w: field %d is %q, want %q", ErrSchemaMismatch, i, name, feature.Names[i])
		}
	}
	return nil
}
