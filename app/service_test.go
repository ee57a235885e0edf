package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trafficsense/forecast/config"
	"github.com/trafficsense/forecast/core/model"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.SetDefaults()
	cfg.Store.Path = filepath.Join(dir, "forecast.db")
	cfg.Model.Path = filepath.Join(dir, "models", "ensemble.json")
	cfg.Training.Samples = 1200
	cfg.Training.BoostRounds = 20
	cfg.Horizon.HorizonBudgetMS = 5000
	return cfg
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := New(testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func seedObservations(t *testing.T, svc *Service, loc string, hours int) {
	t.Helper()
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Duration(hours) * time.Hour).Truncate(time.Hour)
	for i := 0; i < hours; i++ {
		level := 2 + i%3
		speed := 45.0 - float64(level)*5
		require.NoError(t, svc.RecordObservation(ctx, model.Observation{
			LocationID:      loc,
			Timestamp:       base.Add(time.Duration(i) * time.Hour),
			CongestionLevel: &level,
			AverageSpeed:    &speed,
		}))
	}
}

func TestForecastWithoutModelFails(t *testing.T) {
	svc := newTestService(t)
	seedObservations(t, svc, "loc-1", 4)

	_, _, err := svc.Forecast(context.Background(), "loc-1", nil)
	require.Error(t, err)
	require.Error(t, svc.Ready())
}

func TestRetrainThenForecast(t *testing.T) {
	svc := newTestService(t)
	seedObservations(t, svc, "loc-1", 30)

	metrics, err := svc.Retrain(context.Background())
	require.NoError(t, err)
	assert.Greater(t, metrics.Samples, 0)
	require.NoError(t, svc.Ready())

	set, cached, err := svc.Forecast(context.Background(), "loc-1", nil)
	require.NoError(t, err)
	assert.False(t, cached, "first request must be a miss")
	require.Len(t, set.Points, 5)
	for i, p := range set.Points {
		assert.GreaterOrEqual(t, p.Congestion, 0.0)
		assert.LessOrEqual(t, p.Congestion, 100.0)
		assert.GreaterOrEqual(t, p.Level, 1)
		assert.LessOrEqual(t, p.Level, 5)
		if i > 0 {
			assert.Greater(t, p.HorizonHours, set.Points[i-1].HorizonHours)
		}
	}

	// Same bucket, default horizons: served from cache.
	_, cached, err = svc.Forecast(context.Background(), "loc-1", nil)
	require.NoError(t, err)
	assert.True(t, cached)

	// Custom horizons bypass the cache.
	custom, cached, err := svc.Forecast(context.Background(), "loc-1", []int{2})
	require.NoError(t, err)
	assert.False(t, cached)
	require.Len(t, custom.Points, 1)
	assert.Equal(t, 2, custom.Points[0].HorizonHours)
}

func TestForecastUnknownLocation(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Retrain(context.Background())
	require.NoError(t, err)

	_, _, err = svc.Forecast(context.Background(), "nowhere", nil)
	require.Error(t, err)
}

func TestModelInfoAfterRetrain(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.ModelInfo()
	require.Error(t, err)

	trained, err := svc.Retrain(context.Background())
	require.NoError(t, err)

	info, err := svc.ModelInfo()
	require.NoError(t, err)
	assert.NotEmpty(t, info.Version)
	assert.Equal(t, trained.RMSE, info.Metrics.RMSE)
	assert.Len(t, info.FeatureNames, 15)
	assert.NotEmpty(t, info.FeatureImportance)
}

func TestRetrainPersistsBundleForNextBoot(t *testing.T) {
	cfg := testConfig(t)
	svc, err := New(cfg)
	require.NoError(t, err)
	_, err = svc.Retrain(context.Background())
	require.NoError(t, err)
	info, err := svc.ModelInfo()
	require.NoError(t, err)
	require.NoError(t, svc.Close())

	// A fresh service over the same config picks up the persisted bundle.
	reborn, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reborn.Close() })
	require.NoError(t, reborn.Ready())
	rebornInfo, err := reborn.ModelInfo()
	require.NoError(t, err)
	assert.Equal(t, info.Version, rebornInfo.Version)
}

func TestHTTPSurface(t *testing.T) {
	svc := newTestService(t)
	seedObservations(t, svc, "loc-1", 10)
	_, err := svc.Retrain(context.Background())
	require.NoError(t, err)

	srv := httptest.NewServer(svc.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Post(srv.URL+"/api/predictions/loc-1", "application/json",
		strings.NewReader(`{"forecast_hours": [1, 3]}`))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var decoded struct {
		LocationID string `json:"location_id"`
		Forecasts  []struct {
			ForecastHours int `json:"forecast_hours"`
		} `json:"forecasts"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	assert.Equal(t, "loc-1", decoded.LocationID)
	require.Len(t, decoded.Forecasts, 2)

	missing, err := http.Post(srv.URL+"/api/predictions/ghost-town", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = missing.Body.Close() })
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)

	health, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	t.Cleanup(func() { _ = health.Body.Close() })
	assert.Equal(t, http.StatusOK, health.StatusCode)

	modelResp, err := http.Get(srv.URL + "/api/model")
	require.NoError(t, err)
	t.Cleanup(func() { _ = modelResp.Body.Close() })
	assert.Equal(t, http.StatusOK, modelResp.StatusCode)
}
