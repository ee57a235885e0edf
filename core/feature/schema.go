package feature

// Names is the canonical feature ordering. The training pipeline and the
// inference path both derive their vectors from this constant; a model is
// only valid against the exact ordering it was fitted with.
var Names = []string{
	"hour_of_day",
	"day_of_week",
	"is_weekend",
	"is_holiday",
	"temperature",
	"precipitation",
	"visibility",
	"vehicle_count",
	"average_speed",
	"incident_reported",
	"event_nearby",
	"congestion_lag_1h",
	"congestion_lag_3h",
	"congestion_lag_24h",
	"speed_lag_1h",
}

// Count is the fixed vector length.
var Count = len(Names)

// Index positions into Names. Kept in sync by schema_test.go.
const (
	IdxHourOfDay = iota
	IdxDayOfWeek
	IdxIsWeekend
	IdxIsHoliday
	IdxTemperature
	IdxPrecipitation
	IdxVisibility
	IdxVehicleCount
	IdxAverageSpeed
	IdxIncidentReported
	IdxEventNearby
	IdxCongestionLag1h
	IdxCongestionLag3h
	IdxCongestionLag24h
	IdxSpeedLag1h
)
