package metrics

import (
	"context"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/trafficsense/forecast/infra/logger"
)

// InfluxSink writes forecasting events to an InfluxDB instance using the
// official client. Write errors are logged and swallowed: metrics delivery
// never fails a forecast.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a sink for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string, log logger.Logger) *InfluxSink {
	client := influxdb2.NewClient(url, token)
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      log,
	}
}

func (s *InfluxSink) write(measurement string, tags map[string]string, fields map[string]any) error {
	p := influxdb2.NewPoint(measurement, tags, fields, time.Now())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.writeAPI.WritePoint(ctx, p); err != nil {
		s.log.Warnf("influx write %s: %v", measurement, err)
	}
	return nil
}

// RecordForecast writes one point per computed forecast set.
func (s *InfluxSink) RecordForecast(locationID string, horizons int, duration time.Duration) error {
	return s.write("forecast_set",
		map[string]string{"location_id": locationID},
		map[string]any{"horizons": horizons, "duration_ms": duration.Milliseconds()})
}

// RecordCacheHit writes a cache hit point.
func (s *InfluxSink) RecordCacheHit(locationID string) error {
	return s.write("forecast_cache",
		map[string]string{"location_id": locationID, "outcome": "hit"},
		map[string]any{"count": 1})
}

// RecordCacheMiss writes a cache miss point.
func (s *InfluxSink) RecordCacheMiss(locationID string) error {
	return s.write("forecast_cache",
		map[string]string{"location_id": locationID, "outcome": "miss"},
		map[string]any{"count": 1})
}

// RecordHorizonFailure writes a dropped-horizon point.
func (s *InfluxSink) RecordHorizonFailure(locationID string, horizon int) error {
	return s.write("horizon_failure",
		map[string]string{"location_id": locationID},
		map[string]any{"horizon": horizon})
}

// RecordTraining writes the holdout evaluation of a training run.
func (s *InfluxSink) RecordTraining(samples int, rmse, r2 float64) error {
	return s.write("model_training", nil,
		map[string]any{"samples": samples, "rmse": rmse, "r2": r2})
}

// Close releases the underlying client.
func (s *InfluxSink) Close() {
	s.client.Close()
}
