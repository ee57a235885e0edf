package modelinfo

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/trafficsense/forecast/core/ensemble"
)

func TestModelHandlerReturnsInfo(t *testing.T) {
	h := NewModelHandler(func() (any, error) {
		return map[string]any{"version": "v-123", "metrics": map[string]float64{"rmse": 9.1}}, nil
	})
	req := httptest.NewRequest(http.MethodGet, "/api/model", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["version"] != "v-123" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestModelHandlerNotLoaded(t *testing.T) {
	h := NewModelHandler(func() (any, error) { return nil, ensemble.ErrModelNotLoaded })
	req := httptest.NewRequest(http.MethodGet, "/api/model", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestModelHandlerRejectsPost(t *testing.T) {
	h := NewModelHandler(func() (any, error) { return nil, nil })
	req := httptest.NewRequest(http.MethodPost, "/api/model", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestHealthHandler(t *testing.T) {
	h := NewHealthHandler(func() error { return nil })
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	h = NewHealthHandler(func() error { return ensemble.ErrModelNotLoaded })
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("degraded status = %d", w.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "degraded" {
		t.Fatalf("unexpected body %+v", resp)
	}
}
