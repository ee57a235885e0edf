package predictions

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/trafficsense/forecast/core/ensemble"
	"github.com/trafficsense/forecast/core/horizon"
	"github.com/trafficsense/forecast/core/model"
	"github.com/trafficsense/forecast/infra/store"
)

func sampleSet(loc string) model.ForecastSet {
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	return model.ForecastSet{
		LocationID:   loc,
		GeneratedAt:  now,
		HourBucket:   now,
		ModelVersion: "v1",
		Points: []model.ForecastPoint{
			{TargetTime: now.Add(time.Hour), HorizonHours: 1, Congestion: 62.5, Level: 4, Confidence: 0.9},
			{TargetTime: now.Add(3 * time.Hour), HorizonHours: 3, Congestion: 45, Level: 3, Confidence: 0.85},
		},
	}
}

func postForecast(t *testing.T, h http.Handler, location, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/predictions/"+location, strings.NewReader(body))
	req.SetPathValue("location", location)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestForecastHandlerReturnsSet(t *testing.T) {
	var gotHorizons []int
	h := NewForecastHandler(func(_ *http.Request, loc string, horizons []int) (model.ForecastSet, bool, error) {
		gotHorizons = horizons
		return sampleSet(loc), false, nil
	}, nil)

	w := postForecast(t, h, "loc-1", `{"forecast_hours": [1, 3]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	if len(gotHorizons) != 2 || gotHorizons[0] != 1 || gotHorizons[1] != 3 {
		t.Fatalf("horizons = %v", gotHorizons)
	}
	var resp struct {
		LocationID string `json:"location_id"`
		Cached     bool   `json:"cached"`
		Partial    bool   `json:"partial"`
		Forecasts  []struct {
			ForecastHours int     `json:"forecast_hours"`
			Congestion    float64 `json:"predicted_congestion"`
		} `json:"forecasts"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.LocationID != "loc-1" || len(resp.Forecasts) != 2 || resp.Forecasts[0].Congestion != 62.5 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Cached || resp.Partial {
		t.Fatalf("fresh complete set flagged cached=%v partial=%v", resp.Cached, resp.Partial)
	}
}

func TestForecastHandlerEmptyBodyUsesDefaults(t *testing.T) {
	called := false
	h := NewForecastHandler(func(_ *http.Request, loc string, horizons []int) (model.ForecastSet, bool, error) {
		called = true
		if horizons != nil {
			t.Fatalf("expected nil horizons for empty body, got %v", horizons)
		}
		return sampleSet(loc), true, nil
	}, nil)

	w := postForecast(t, h, "loc-1", "")
	if w.Code != http.StatusOK || !called {
		t.Fatalf("status = %d called = %v", w.Code, called)
	}
	var resp struct {
		Cached bool `json:"cached"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Cached {
		t.Fatal("cache hit not reported")
	}
}

func TestForecastHandlerPartialSet(t *testing.T) {
	h := NewForecastHandler(func(_ *http.Request, loc string, _ []int) (model.ForecastSet, bool, error) {
		set := sampleSet(loc)
		set.FailedHorizons = []int{6}
		return set, false, nil
	}, nil)
	w := postForecast(t, h, "loc-1", "")
	var resp struct {
		Partial        bool  `json:"partial"`
		FailedHorizons []int `json:"failed_horizons"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Partial || len(resp.FailedHorizons) != 1 || resp.FailedHorizons[0] != 6 {
		t.Fatalf("unexpected partial response %+v", resp)
	}
}

func TestForecastHandlerIncludeFeatures(t *testing.T) {
	h := NewForecastHandler(func(_ *http.Request, loc string, _ []int) (model.ForecastSet, bool, error) {
		return sampleSet(loc), false, nil
	}, func() map[string]float64 {
		return map[string]float64{"hour_of_day": 0.6, "congestion_lag_1h": 0.4}
	})

	w := postForecast(t, h, "loc-1", `{"include_features": true}`)
	var resp struct {
		FeatureImportance map[string]float64 `json:"feature_importance"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.FeatureImportance["hour_of_day"] != 0.6 {
		t.Fatalf("importance missing from response: %+v", resp)
	}

	w = postForecast(t, h, "loc-1", `{}`)
	var plain struct {
		FeatureImportance map[string]float64 `json:"feature_importance"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &plain); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if plain.FeatureImportance != nil {
		t.Fatal("importance must be omitted unless requested")
	}
}

func TestForecastHandlerErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("lookup: %w", store.ErrNoObservation), http.StatusNotFound},
		{ensemble.ErrModelNotLoaded, http.StatusServiceUnavailable},
		{horizon.ErrNoHorizons, http.StatusBadRequest},
		{fmt.Errorf("%w: got -2", horizon.ErrBadHorizon), http.StatusBadRequest},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		h := NewForecastHandler(func(*http.Request, string, []int) (model.ForecastSet, bool, error) {
			return model.ForecastSet{}, false, tc.err
		}, nil)
		if w := postForecast(t, h, "loc-1", ""); w.Code != tc.code {
			t.Fatalf("err %v mapped to %d, want %d", tc.err, w.Code, tc.code)
		}
	}
}

func TestForecastHandlerRejectsBadBodyAndMethod(t *testing.T) {
	h := NewForecastHandler(func(*http.Request, string, []int) (model.ForecastSet, bool, error) {
		t.Fatal("engine must not be called")
		return model.ForecastSet{}, false, nil
	}, nil)
	if w := postForecast(t, h, "loc-1", "{broken"); w.Code != http.StatusBadRequest {
		t.Fatalf("bad body status = %d", w.Code)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/predictions/loc-1", nil)
	req.SetPathValue("location", "loc-1")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("method status = %d", w.Code)
	}
}

func TestObservationHandler(t *testing.T) {
	var got model.Observation
	h := NewObservationHandler(func(_ *http.Request, obs model.Observation) error {
		got = obs
		return nil
	})

	body := `{"location_id": "loc-9", "congestion_level": 4, "average_speed": 22.5}`
	req := httptest.NewRequest(http.MethodPost, "/api/observations", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	if got.LocationID != "loc-9" || got.CongestionLevel == nil || *got.CongestionLevel != 4 {
		t.Fatalf("unexpected observation %+v", got)
	}
	if got.Timestamp.IsZero() {
		t.Fatal("missing timestamp should default to now")
	}
}

func TestObservationHandlerRequiresLocation(t *testing.T) {
	h := NewObservationHandler(func(*http.Request, model.Observation) error {
		t.Fatal("recorder must not be called")
		return nil
	})
	req := httptest.NewRequest(http.MethodPost, "/api/observations", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}
