package model

import "time"

// Default values substituted for optional observation fields that the
// ingestion side could not provide.
const (
	DefaultTemperature   = 20.0
	DefaultPrecipitation = 0.0
	DefaultVisibility    = 10.0
	DefaultVehicleCount  = 100
	DefaultAverageSpeed  = 40.0
	DefaultLevel         = 2
	DefaultFreeFlowSpeed = 60.0
)

// Observation is a single location-tagged traffic/weather reading. Optional
// fields are pointers; nil means the collector did not report the value.
// Observations are immutable once recorded.
type Observation struct {
	LocationID string    `json:"location_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Timestamp  time.Time `json:"timestamp"`

	// CongestionLevel is the recorded ordinal level (1-5).
	CongestionLevel *int     `json:"congestion_level,omitempty"`
	AverageSpeed    *float64 `json:"average_speed,omitempty"`
	FreeFlowSpeed   *float64 `json:"free_flow_speed,omitempty"`
	VehicleCount    *int     `json:"vehicle_count,omitempty"`

	Temperature   *float64 `json:"temperature,omitempty"`
	Precipitation *float64 `json:"precipitation,omitempty"`
	Visibility    *float64 `json:"visibility,omitempty"`

	IncidentReported bool `json:"incident_reported"`
	EventNearby      bool `json:"event_nearby"`
	IsHoliday        bool `json:"is_holiday"`
}

// Level returns the recorded congestion level or the default.
func (o Observation) Level() int {
	if o.CongestionLevel != nil {
		return *o.CongestionLevel
	}
	return DefaultLevel
}

// Speed returns the recorded average speed or the default.
func (o Observation) Speed() float64 {
	if o.AverageSpeed != nil {
		return *o.AverageSpeed
	}
	return DefaultAverageSpeed
}

// FreeFlow returns the recorded free-flow speed or the default.
func (o Observation) FreeFlow() float64 {
	if o.FreeFlowSpeed != nil {
		return *o.FreeFlowSpeed
	}
	return DefaultFreeFlowSpeed
}
