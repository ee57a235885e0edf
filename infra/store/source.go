package store

import (
	"context"

	"github.com/trafficsense/forecast/core/feature"
	"github.com/trafficsense/forecast/core/model"
	"github.com/trafficsense/forecast/core/training"
)

const lagWindow = 24

// HistoricalSource builds training rows from recorded observations. Each
// labelled observation becomes one sample: its features are derived with the
// preceding observations as lag window, its label is the observed congestion.
type HistoricalSource struct {
	Store *Store
}

var _ training.DataSource = HistoricalSource{}

// Name implements training.DataSource.
func (HistoricalSource) Name() string { return "historical" }

// Load implements training.DataSource. Observations without a recorded
// congestion level cannot be labelled and are skipped.
func (h HistoricalSource) Load(ctx context.Context) ([][]float64, []float64, error) {
	locations, err := h.Store.Locations(ctx)
	if err != nil {
		return nil, nil, err
	}

	var rows [][]float64
	var labels []float64
	for _, loc := range locations {
		history, err := h.Store.allObservations(ctx, loc)
		if err != nil {
			return nil, nil, err
		}
		for i, obs := range history {
			if obs.CongestionLevel == nil {
				continue
			}
			start := i - lagWindow
			if start < 0 {
				start = 0
			}
			rows = append(rows, feature.Build(obs, obs.Timestamp, history[start:i]))
			labels = append(labels, model.CongestionFromLevel(obs.Level()))
		}
	}
	return rows, labels, nil
}

// allObservations returns the full history for a location oldest first, the
// ordering feature.Build expects for its lag window.
func (s *Store) allObservations(ctx context.Context, locationID string) ([]model.Observation, error) {
	rows, err := s.db.QueryContext(ctx, obsSelect+` WHERE location_id = ? ORDER BY ts ASC`, locationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Observation
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, obs)
	}
	return out, rows.Err()
}
