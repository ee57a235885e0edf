// Package feature derives the fixed-order numeric vector a trained model
// consumes from a raw observation plus optional historical context.
package feature

import (
	"time"

	"github.com/trafficsense/forecast/core/model"
)

// Vector is an ordered feature vector matching the Names schema.
type Vector []float64

// Build derives a feature vector from an observation. Time features come
// from asOf rather than the observation timestamp so the same observation
// can be re-featurized for different forecast horizons.
//
// window holds up to the last 24 observations for the same location ordered
// oldest first, so the last element is the 1h-ago reading. Lags that the
// window cannot cover fall back to defaults; a short window is never an
// error. Build is a pure function of its inputs.
func Build(obs model.Observation, asOf time.Time, window []model.Observation) Vector {
	v := make(Vector, Count)

	v[IdxHourOfDay] = float64(asOf.Hour())
	// Monday = 0, matching the training data.
	dow := (int(asOf.Weekday()) + 6) % 7
	v[IdxDayOfWeek] = float64(dow)
	v[IdxIsWeekend] = boolFeature(dow >= 5)
	v[IdxIsHoliday] = boolFeature(obs.IsHoliday)

	v[IdxTemperature] = orDefault(obs.Temperature, model.DefaultTemperature)
	v[IdxPrecipitation] = orDefault(obs.Precipitation, model.DefaultPrecipitation)
	v[IdxVisibility] = orDefault(obs.Visibility, model.DefaultVisibility)

	if obs.VehicleCount != nil {
		v[IdxVehicleCount] = float64(*obs.VehicleCount)
	} else {
		v[IdxVehicleCount] = float64(model.DefaultVehicleCount)
	}
	v[IdxAverageSpeed] = obs.Speed()
	v[IdxIncidentReported] = boolFeature(obs.IncidentReported)
	v[IdxEventNearby] = boolFeature(obs.EventNearby)

	// Lag features read by position from the end of the window. When the
	// window is too short the 1h lags fall back to the observation's own
	// values and the longer lags to the scale defaults.
	v[IdxCongestionLag1h] = congestionLag(window, 1, model.CongestionFromLevel(obs.Level()))
	v[IdxCongestionLag3h] = congestionLag(window, 3, model.CongestionFromLevel(model.DefaultLevel))
	v[IdxCongestionLag24h] = congestionLag(window, 24, model.CongestionFromLevel(model.DefaultLevel))
	v[IdxSpeedLag1h] = speedLag(window, 1, obs.Speed())

	return v
}

func congestionLag(window []model.Observation, hoursBack int, fallback float64) float64 {
	if len(window) < hoursBack {
		return fallback
	}
	return model.CongestionFromLevel(window[len(window)-hoursBack].Level())
}

func speedLag(window []model.Observation, hoursBack int, fallback float64) float64 {
	if len(window) < hoursBack {
		return fallback
	}
	return window[len(window)-hoursBack].Speed()
}

func orDefault(v *float64, def float64) float64 {
	if v != nil {
		return *v
	}
	return def
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
