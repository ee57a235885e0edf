// Package modelinfo exposes the active model's metadata and the service
// health probe.
package modelinfo

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/trafficsense/forecast/core/ensemble"
)

// Describer returns a JSON-encodable description of the active model.
type Describer func() (any, error)

// NewModelHandler returns an HTTP handler serving GET /api/model.
func NewModelHandler(describe Describer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		info, err := describe()
		if err != nil {
			if errors.Is(err, ensemble.ErrModelNotLoaded) {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(info); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}

// NewHealthHandler returns an HTTP handler serving GET /healthz. The probe
// degrades to 503 while no model is loaded but keeps the process alive.
func NewHealthHandler(ready func() error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := ready(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "degraded", "reason": err.Error()})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
}
