// Package store persists observations and computed forecasts in SQLite and
// serves the historical windows the feature builder consumes.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/trafficsense/forecast/core/model"
)

// ErrNoObservation means the location has no recorded traffic data yet.
var ErrNoObservation = errors.New("no observation recorded for location")

// Config defines store settings loaded from configuration.
type Config struct {
	Path string `json:"path"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Path == "" {
		c.Path = "forecast.db"
	}
}

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and ensures schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS observations (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        location_id TEXT NOT NULL,
        latitude REAL NOT NULL DEFAULT 0,
        longitude REAL NOT NULL DEFAULT 0,
        ts INTEGER NOT NULL,
        congestion_level INTEGER,
        average_speed REAL,
        free_flow_speed REAL,
        vehicle_count INTEGER,
        temperature REAL,
        precipitation REAL,
        visibility REAL,
        incident INTEGER NOT NULL DEFAULT 0,
        event INTEGER NOT NULL DEFAULT 0,
        holiday INTEGER NOT NULL DEFAULT 0
    );
    CREATE INDEX IF NOT EXISTS idx_observations_loc_ts ON observations(location_id, ts);
    CREATE TABLE IF NOT EXISTS forecasts (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        location_id TEXT NOT NULL,
        generated_at INTEGER NOT NULL,
        hour_bucket INTEGER NOT NULL,
        horizon INTEGER NOT NULL,
        target_time INTEGER NOT NULL,
        congestion REAL NOT NULL,
        level INTEGER NOT NULL,
        confidence REAL NOT NULL,
        rank_confidence REAL NOT NULL,
        model_version TEXT NOT NULL DEFAULT ''
    );
    CREATE INDEX IF NOT EXISTS idx_forecasts_loc_bucket ON forecasts(location_id, hour_bucket);`
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, errors.Join(err, cerr)
		}
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// InsertObservation records one immutable observation.
func (s *Store) InsertObservation(ctx context.Context, obs model.Observation) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO observations
        (location_id, latitude, longitude, ts, congestion_level, average_speed,
         free_flow_speed, vehicle_count, temperature, precipitation, visibility,
         incident, event, holiday)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		obs.LocationID, obs.Latitude, obs.Longitude, obs.Timestamp.UTC().Unix(),
		nullInt(obs.CongestionLevel), nullFloat(obs.AverageSpeed),
		nullFloat(obs.FreeFlowSpeed), nullInt(obs.VehicleCount),
		nullFloat(obs.Temperature), nullFloat(obs.Precipitation), nullFloat(obs.Visibility),
		boolInt(obs.IncidentReported), boolInt(obs.EventNearby), boolInt(obs.IsHoliday))
	if err != nil {
		return fmt.Errorf("insert observation: %w", err)
	}
	return nil
}

// LatestObservation returns the most recent observation for the location or
// ErrNoObservation.
func (s *Store) LatestObservation(ctx context.Context, locationID string) (model.Observation, error) {
	row := s.db.QueryRowContext(ctx, obsSelect+` WHERE location_id = ? ORDER BY ts DESC LIMIT 1`, locationID)
	obs, err := scanObservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Observation{}, fmt.Errorf("%w: %s", ErrNoObservation, locationID)
	}
	return obs, err
}

// HistoricalWindow returns up to n observations for the location ordered
// most recent first, matching the ingestion collaborator contract.
func (s *Store) HistoricalWindow(ctx context.Context, locationID string, n int) ([]model.Observation, error) {
	rows, err := s.db.QueryContext(ctx, obsSelect+` WHERE location_id = ? ORDER BY ts DESC LIMIT ?`, locationID, n)
	if err != nil {
		return nil, fmt.Errorf("query window: %w", err)
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

// SaveForecastSet persists every surviving point of a computed set. Called
// after the cache is populated, never instead of it.
func (s *Store) SaveForecastSet(ctx context.Context, set model.ForecastSet) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin forecast tx: %w", err)
	}
	for _, p := range set.Points {
		if _, err := tx.ExecContext(ctx, `INSERT INTO forecasts
            (location_id, generated_at, hour_bucket, horizon, target_time,
             congestion, level, confidence, rank_confidence, model_version)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			set.LocationID, set.GeneratedAt.UTC().Unix(), set.HourBucket.UTC().Unix(),
			p.HorizonHours, p.TargetTime.UTC().Unix(),
			p.Congestion, p.Level, p.Confidence, p.RankConfidence, set.ModelVersion); err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				return errors.Join(err, rerr)
			}
			return fmt.Errorf("insert forecast point: %w", err)
		}
	}
	return tx.Commit()
}

// LatestForecast returns the most recently generated set for a location,
// or ErrNoObservation when none exists.
func (s *Store) LatestForecast(ctx context.Context, locationID string) (model.ForecastSet, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT generated_at, hour_bucket, horizon,
        target_time, congestion, level, confidence, rank_confidence, model_version
        FROM forecasts WHERE location_id = ?
          AND generated_at = (SELECT MAX(generated_at) FROM forecasts WHERE location_id = ?)
        ORDER BY horizon ASC`, locationID, locationID)
	if err != nil {
		return model.ForecastSet{}, fmt.Errorf("query forecast: %w", err)
	}
	defer rows.Close()

	set := model.ForecastSet{LocationID: locationID}
	for rows.Next() {
		var p model.ForecastPoint
		var generated, bucket, target int64
		if err := rows.Scan(&generated, &bucket, &p.HorizonHours, &target,
			&p.Congestion, &p.Level, &p.Confidence, &p.RankConfidence, &set.ModelVersion); err != nil {
			return model.ForecastSet{}, err
		}
		set.GeneratedAt = time.Unix(generated, 0).UTC()
		set.HourBucket = time.Unix(bucket, 0).UTC()
		p.TargetTime = time.Unix(target, 0).UTC()
		p.Model = set.ModelVersion
		set.Points = append(set.Points, p)
	}
	if err := rows.Err(); err != nil {
		return model.ForecastSet{}, err
	}
	if len(set.Points) == 0 {
		return model.ForecastSet{}, fmt.Errorf("%w: %s", ErrNoObservation, locationID)
	}
	return set, nil
}

// Locations lists every location with at least one observation.
func (s *Store) Locations(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT location_id FROM observations ORDER BY location_id`)
	if err != nil {
		return nil, fmt.Errorf("query locations: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

const obsSelect = `SELECT location_id, latitude, longitude, ts, congestion_level,
    average_speed, free_flow_speed, vehicle_count, temperature, precipitation,
    visibility, incident, event, holiday FROM observations`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObservation(r rowScanner) (model.Observation, error) {
	var obs model.Observation
	var ts int64
	var level, count sql.NullInt64
	var speed, freeFlow, temp, precip, vis sql.NullFloat64
	var incident, event, holiday int
	err := r.Scan(&obs.LocationID, &obs.Latitude, &obs.Longitude, &ts,
		&level, &speed, &freeFlow, &count, &temp, &precip, &vis,
		&incident, &event, &holiday)
	if err != nil {
		return model.Observation{}, err
	}
	obs.Timestamp = time.Unix(ts, 0).UTC()
	if level.Valid {
		v := int(level.Int64)
		obs.CongestionLevel = &v
	}
	if count.Valid {
		v := int(count.Int64)
		obs.VehicleCount = &v
	}
	obs.AverageSpeed = floatPtr(speed)
	obs.FreeFlowSpeed = floatPtr(freeFlow)
	obs.Temperature = floatPtr(temp)
	obs.Precipitation = floatPtr(precip)
	obs.Visibility = floatPtr(vis)
	obs.IncidentReported = incident != 0
	obs.EventNearby = event != 0
	obs.IsHoliday = holiday != 0
	return obs, nil
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
