// Package predictions exposes forecast computation and observation intake
// over HTTP.
package predictions

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/trafficsense/forecast/core/ensemble"
	"github.com/trafficsense/forecast/core/horizon"
	"github.com/trafficsense/forecast/core/model"
	"github.com/trafficsense/forecast/infra/store"
)

type forecastRequest struct {
	ForecastHours   []int `json:"forecast_hours"`
	IncludeFeatures bool  `json:"include_features"`
}

type forecastResponse struct {
	model.ForecastSet
	Cached            bool               `json:"cached"`
	Partial           bool               `json:"partial"`
	FeatureImportance map[string]float64 `json:"feature_importance,omitempty"`
}

// Forecaster computes a multi-horizon forecast for a location. Implemented
// by app.Service.Forecast.
type Forecaster func(r *http.Request, locationID string, horizons []int) (model.ForecastSet, bool, error)

// Importance reports the active model's normalized feature gains, nil when
// unavailable. Implemented by ensemble.Predictor.FeatureImportance.
type Importance func() map[string]float64

// NewForecastHandler returns an HTTP handler serving
// POST /api/predictions/{location}. An empty body requests the default
// horizons; include_features adds the model's feature importance to the
// response.
func NewForecastHandler(forecast Forecaster, importance Importance) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		locationID := r.PathValue("location")
		if locationID == "" {
			http.Error(w, "location is required", http.StatusBadRequest)
			return
		}

		var req forecastRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		set, cached, err := forecast(r, locationID, req.ForecastHours)
		if err != nil {
			writeForecastError(w, err)
			return
		}
		resp := forecastResponse{
			ForecastSet: set,
			Cached:      cached,
			Partial:     set.Partial(),
		}
		if req.IncludeFeatures && importance != nil {
			resp.FeatureImportance = importance()
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}

// Recorder ingests one observation.
type Recorder func(r *http.Request, obs model.Observation) error

// NewObservationHandler returns an HTTP handler serving
// POST /api/observations.
func NewObservationHandler(record Recorder) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var obs model.Observation
		if err := json.NewDecoder(r.Body).Decode(&obs); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if obs.LocationID == "" {
			http.Error(w, "location_id is required", http.StatusBadRequest)
			return
		}
		if obs.Timestamp.IsZero() {
			obs.Timestamp = time.Now().UTC()
		}
		if err := record(r, obs); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})
}

func writeForecastError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNoObservation):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ensemble.ErrModelNotLoaded):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, horizon.ErrNoHorizons), errors.Is(err, horizon.ErrBadHorizon):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
