package app

import (
	"context"
	"net/http"
	"time"

	"github.com/trafficsense/forecast/api/modelinfo"
	"github.com/trafficsense/forecast/api/predictions"
	"github.com/trafficsense/forecast/core/model"
)

// Handler assembles the HTTP API surface.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/predictions/{location}", predictions.NewForecastHandler(
		func(r *http.Request, locationID string, horizons []int) (model.ForecastSet, bool, error) {
			return s.Forecast(r.Context(), locationID, horizons)
		},
		s.predictor.FeatureImportance))
	mux.Handle("/api/observations", predictions.NewObservationHandler(
		func(r *http.Request, obs model.Observation) error {
			return s.RecordObservation(r.Context(), obs)
		}))
	mux.Handle("/api/model", modelinfo.NewModelHandler(func() (any, error) {
		info, err := s.ModelInfo()
		if err != nil {
			return nil, err
		}
		return info, nil
	}))
	mux.Handle("/healthz", modelinfo.NewHealthHandler(s.Ready))
	return mux
}

// serveHTTP runs the API listener until the context is cancelled.
func (s *Service) serveHTTP(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.HTTP.Addr, Handler: s.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.log.Infof("HTTP API listening on %s", s.cfg.HTTP.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
