package metrics

import (
	"errors"
	"time"

	coremetrics "github.com/trafficsense/forecast/core/metrics"
)

// MultiSink fans every event out to several sinks and joins their errors.
type MultiSink struct {
	sinks []coremetrics.Sink
}

// NewMultiSink combines the given sinks into one.
func NewMultiSink(sinks ...coremetrics.Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) each(fn func(coremetrics.Sink) error) error {
	var errs []error
	for _, s := range m.sinks {
		if err := fn(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordForecast(locationID string, horizons int, duration time.Duration) error {
	return m.each(func(s coremetrics.Sink) error { return s.RecordForecast(locationID, horizons, duration) })
}

func (m *MultiSink) RecordCacheHit(locationID string) error {
	return m.each(func(s coremetrics.Sink) error { return s.RecordCacheHit(locationID) })
}

func (m *MultiSink) RecordCacheMiss(locationID string) error {
	return m.each(func(s coremetrics.Sink) error { return s.RecordCacheMiss(locationID) })
}

func (m *MultiSink) RecordHorizonFailure(locationID string, horizon int) error {
	return m.each(func(s coremetrics.Sink) error { return s.RecordHorizonFailure(locationID, horizon) })
}

func (m *MultiSink) RecordTraining(samples int, rmse, r2 float64) error {
	return m.each(func(s coremetrics.Sink) error { return s.RecordTraining(samples, rmse, r2) })
}
