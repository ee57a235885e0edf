package training

import (
	"context"
	"math/rand"

	"github.com/trafficsense/forecast/core/feature"
)

// SyntheticSource generates training data from a deterministic time-of-day
// congestion prior. It exists to bootstrap a usable cold-start model before
// any real history accumulates; it is not a ground-truth simulator.
type SyntheticSource struct {
	N    int
	Seed int64
}

func (s SyntheticSource) Name() string { return "synthetic" }

// Load produces N rows in the canonical feature ordering with percent
// congestion labels. Output is fully determined by the seed.
func (s SyntheticSource) Load(_ context.Context) ([][]float64, []float64, error) {
	rng := rand.New(rand.NewSource(s.Seed))
	rows := make([][]float64, 0, s.N)
	labels := make([]float64, 0, s.N)

	for i := 0; i < s.N; i++ {
		hour := rng.Intn(24)
		dow := rng.Intn(7)
		weekend := dow >= 5
		holiday := rng.Float64() < 0.03

		base := baseCongestion(hour, rng)
		if weekend || holiday {
			base *= 0.7
		}

		precipitation := 0.0
		if rng.Float64() < 0.2 {
			precipitation = rng.Float64() * 10
		}
		incident := rng.Float64() < 0.05
		event := rng.Float64() < 0.03

		congestion := base + precipitation*1.5
		if incident {
			congestion += 15
		}
		if event {
			congestion += 8
		}
		congestion = clip(congestion+rng.NormFloat64()*5, 0, 100)

		temperature := 20 + rng.NormFloat64()*8
		visibility := clip(10-precipitation*0.6, 1, 10)
		vehicleCount := clip(50+base*3+rng.NormFloat64()*20, 0, 500)
		averageSpeed := clip(60*(1-base/100*0.6)+rng.NormFloat64()*4, 5, 90)

		row := make([]float64, feature.Count)
		row[feature.IdxHourOfDay] = float64(hour)
		row[feature.IdxDayOfWeek] = float64(dow)
		row[feature.IdxIsWeekend] = boolVal(weekend)
		row[feature.IdxIsHoliday] = boolVal(holiday)
		row[feature.IdxTemperature] = temperature
		row[feature.IdxPrecipitation] = precipitation
		row[feature.IdxVisibility] = visibility
		row[feature.IdxVehicleCount] = vehicleCount
		row[feature.IdxAverageSpeed] = averageSpeed
		row[feature.IdxIncidentReported] = boolVal(incident)
		row[feature.IdxEventNearby] = boolVal(event)
		row[feature.IdxCongestionLag1h] = clip(base+rng.NormFloat64()*8, 0, 100)
		row[feature.IdxCongestionLag3h] = clip(base+rng.NormFloat64()*10, 0, 100)
		row[feature.IdxCongestionLag24h] = clip(base+rng.NormFloat64()*12, 0, 100)
		row[feature.IdxSpeedLag1h] = clip(averageSpeed+rng.NormFloat64()*5, 5, 90)

		rows = append(rows, row)
		labels = append(labels, congestion)
	}
	return rows, labels, nil
}

// baseCongestion encodes the rush-hour prior: morning and evening bands
// highest, night lowest.
func baseCongestion(hour int, rng *rand.Rand) float64 {
	switch {
	case hour >= 7 && hour <= 9:
		return 60 + rng.Float64()*30
	case hour >= 17 && hour <= 19:
		return 65 + rng.Float64()*30
	case hour >= 11 && hour <= 14:
		return 35 + rng.Float64()*25
	case hour >= 22 || hour <= 5:
		return 5 + rng.Float64()*20
	default:
		return 25 + rng.Float64()*25
	}
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func boolVal(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
