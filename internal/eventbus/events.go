package eventbus

import (
	"time"

	"github.com/trafficsense/forecast/core/model"
	"github.com/trafficsense/forecast/core/training"
)

// ForecastComputed is emitted after a fresh forecast set is computed, once
// per cache miss. Cache hits do not re-emit.
type ForecastComputed struct {
	Set      model.ForecastSet
	Duration time.Duration
}

// ModelRetrained is emitted after a new snapshot is swapped into service.
type ModelRetrained struct {
	Version   string
	Metrics   training.Metrics
	TrainedAt time.Time
}

// Hub bundles the event streams the engine publishes.
type Hub struct {
	Forecasts  *Bus[ForecastComputed]
	Retraining *Bus[ModelRetrained]
}

// NewHub creates a hub with open buses.
func NewHub() *Hub {
	return &Hub{
		Forecasts:  New[ForecastComputed](),
		Retraining: New[ModelRetrained](),
	}
}

// Close closes every bus.
func (h *Hub) Close() {
	h.Forecasts.Close()
	h.Retraining.Close()
}
