package model

import (
	"math"
	"time"
)

// The engine scores congestion on a continuous 0-100 percent scale. The
// ordinal 1-5 level used elsewhere in the system is derived at the boundary
// via LevelFromCongestion and never fed back into the internal scale.

// CongestionFromLevel maps an ordinal level (1-5) onto the percent scale.
func CongestionFromLevel(level int) float64 {
	if level < 1 {
		level = 1
	}
	if level > 5 {
		level = 5
	}
	return float64(level-1) * 25.0
}

// LevelFromCongestion maps a percent value onto the ordinal 1-5 scale.
func LevelFromCongestion(congestion float64) int {
	level := 1 + int(math.Round(congestion/25.0))
	if level < 1 {
		return 1
	}
	if level > 5 {
		return 5
	}
	return level
}

// ForecastPoint is one time-shifted congestion prediction.
type ForecastPoint struct {
	TargetTime   time.Time `json:"target_time"`
	HorizonHours int       `json:"forecast_hours"`
	// Congestion is the predicted percent congestion, clipped to [0,100].
	Congestion float64 `json:"predicted_congestion"`
	Level      int     `json:"congestion_level"`
	// Confidence reflects model agreement, in [0.70, 0.95].
	Confidence float64 `json:"confidence"`
	// RankConfidence decays with horizon distance and is used only for
	// coarse ranking between horizons, in [0.50, 0.95].
	RankConfidence float64 `json:"rank_confidence"`

	CurrentSpeed          float64 `json:"current_speed_kmh"`
	FreeFlowSpeed         float64 `json:"free_flow_speed_kmh"`
	SpeedReductionPercent float64 `json:"speed_reduction_percent"`

	Model string `json:"model"`
}

// ForecastSet is the ordered multi-horizon result for one location at one
// as-of instant. Points are sorted by ascending horizon.
type ForecastSet struct {
	LocationID   string          `json:"location_id"`
	GeneratedAt  time.Time       `json:"generated_at"`
	HourBucket   time.Time       `json:"hour_bucket"`
	ModelVersion string          `json:"model_version"`
	Points       []ForecastPoint `json:"forecasts"`
	// FailedHorizons lists requested horizons that could not be computed.
	// A set with points and failed horizons is partial, not empty.
	FailedHorizons []int `json:"failed_horizons,omitempty"`
}

// Partial reports whether some requested horizons were dropped.
func (s ForecastSet) Partial() bool {
	return len(s.FailedHorizons) > 0 && len(s.Points) > 0
}

// Empty reports whether no horizon produced a prediction.
func (s ForecastSet) Empty() bool {
	return len(s.Points) == 0
}
