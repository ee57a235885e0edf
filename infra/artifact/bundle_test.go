package artifact

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trafficsense/forecast/core/ensemble"
	"github.com/trafficsense/forecast/core/feature"
	"github.com/trafficsense/forecast/core/training"
	"github.com/trafficsense/forecast/infra/logger"
)

func trainedModel(t *testing.T) (*ensemble.TrainedModel, training.Metrics) {
	t.Helper()
	p := training.New(training.Config{Seed: 42, BoostRounds: 20}, logger.NopLogger{}, nil)
	m, metrics, err := p.TrainFrom(context.Background(), training.SyntheticSource{N: 800, Seed: 42})
	require.NoError(t, err)
	return m, metrics
}

func TestSaveLoadRoundTripIdenticalPredictions(t *testing.T) {
	m, metrics := trainedModel(t)
	path := filepath.Join(t.TempDir(), "models", "ensemble.json")
	require.NoError(t, Save(path, m, metrics))

	loaded, loadedMetrics, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, m.Version, loaded.Version)
	assert.Equal(t, metrics.RMSE, loadedMetrics.RMSE)

	before := ensemble.New(logger.NopLogger{})
	before.Swap(m)
	after := ensemble.New(logger.NopLogger{})
	after.Swap(loaded)

	rows, _, err := training.SyntheticSource{N: 50, Seed: 7}.Load(context.Background())
	require.NoError(t, err)
	for _, row := range rows {
		p1, err := before.Predict(row)
		require.NoError(t, err)
		p2, err := after.Predict(row)
		require.NoError(t, err)
		assert.Equal(t, p1.Congestion, p2.Congestion,
			"reloaded model must predict identically")
		assert.Equal(t, p1.Confidence, p2.Confidence)
	}
}

func TestLoadMissingFileFailsClosed(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestLoadCorruptBundleFailsClosed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ensemble.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, _, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsSchemaVersionMismatch(t *testing.T) {
	m, metrics := trainedModel(t)
	path := filepath.Join(t.TempDir(), "ensemble.json")
	require.NoError(t, Save(path, m, metrics))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var b map[string]any
	require.NoError(t, json.Unmarshal(raw, &b))
	b["schema_version"] = 99
	edited, err := json.Marshal(b)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, edited, 0o644))

	_, _, err = Load(path)
	require.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestLoadRejectsFeatureOrderSkew(t *testing.T) {
	m, metrics := trainedModel(t)
	// Swap two feature names to simulate a training/inference skew.
	m.FeatureNames = append([]string(nil), feature.Names...)
	m.FeatureNames[0], m.FeatureNames[1] = m.FeatureNames[1], m.FeatureNames[0]
	path := filepath.Join(t.TempDir(), "ensemble.json")
	require.NoError(t, Save(path, m, metrics))

	_, _, err := Load(path)
	require.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestSaveLeavesNoTempFileBehind(t *testing.T) {
	m, metrics := trainedModel(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "ensemble.json")
	require.NoError(t, Save(path, m, metrics))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ensemble.json", entries[0].Name())
}
