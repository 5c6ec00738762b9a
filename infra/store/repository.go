package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/kilianp07/aqforecast/core/model"
)

// ErrNotFound is returned when a station has no row in a lookup table.
var ErrNotFound = errors.New("not found")

// Repository implements the observation sources of the trainer and the
// predictor.
type Repository struct {
	db  *sqlx.DB
	cfg Config
}

// Open connects to the configured database.
func Open(ctx context.Context, cfg Config) (*Repository, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	db, err := sqlx.ConnectContext(ctx, cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Driver, err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	r := New(db, cfg)
	if cfg.Migrate {
		if err := r.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return r, nil
}

// New wraps an existing connection.
func New(db *sqlx.DB, cfg Config) *Repository {
	cfg.SetDefaults()
	return &Repository{db: db, cfg: cfg}
}

// Migrate creates the tables read by the repository.
func (r *Repository) Migrate(ctx context.Context) error {
	stmts, ok := schemas[r.db.DriverName()]
	if !ok {
		return fmt.Errorf("no schema for driver %s", r.db.DriverName())
	}
	for _, s := range stmts {
		if _, err := r.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (r *Repository) Close() error { return r.db.Close() }

func (r *Repository) entityID(stationID string) string {
	return r.cfg.StationPrefix + stationID
}

type observationRow struct {
	EntityID string          `db:"entity_id"`
	Time     time.Time       `db:"time"`
	PM25     sql.NullFloat64 `db:"pm2_5"`
}

// History returns every recorded observation of the given stations, oldest
// first. Stations without rows are absent from the map.
func (r *Repository) History(ctx context.Context, stationIDs []string) (map[string][]model.Observation, error) {
	out := make(map[string][]model.Observation, len(stationIDs))
	if len(stationIDs) == 0 {
		return out, nil
	}
	entities := make([]string, len(stationIDs))
	for i, id := range stationIDs {
		entities[i] = r.entityID(id)
	}
	query, args, err := sqlx.In(`
		SELECT entity_id, time, pm2_5
		FROM air_quality_observations
		WHERE entity_id IN (?)
		ORDER BY entity_id, time`, entities)
	if err != nil {
		return nil, err
	}
	var rows []observationRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	for _, row := range rows {
		if !row.PM25.Valid {
			continue
		}
		id := strings.TrimPrefix(row.EntityID, r.cfg.StationPrefix)
		out[id] = append(out[id], model.Observation{StationID: id, Time: row.Time.UTC(), PM25: row.PM25.Float64})
	}
	return out, nil
}

// Recent returns up to limit of the latest observations of a station,
// oldest first.
func (r *Repository) Recent(ctx context.Context, stationID string, limit int) ([]model.Observation, error) {
	if limit <= 0 {
		return nil, nil
	}
	const query = `
		SELECT entity_id, time, pm2_5
		FROM air_quality_observations
		WHERE entity_id = ? AND pm2_5 IS NOT NULL
		ORDER BY time DESC
		LIMIT ?`
	var rows []observationRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), r.entityID(stationID), limit); err != nil {
		return nil, fmt.Errorf("failed to query recent observations: %w", err)
	}
	out := make([]model.Observation, len(rows))
	for i, row := range rows {
		out[i] = model.Observation{StationID: stationID, Time: row.Time.UTC(), PM25: row.PM25.Float64}
	}
	slices.Reverse(out)
	return out, nil
}

// LatestWeather returns the newest weather reading of a station.
func (r *Repository) LatestWeather(ctx context.Context, stationID string) (model.Weather, error) {
	const query = `
		SELECT temperature, relative_humidity, wind_speed
		FROM weather_observations
		WHERE entity_id = ?
		ORDER BY time DESC
		LIMIT 1`
	var w model.Weather
	err := r.db.GetContext(ctx, &w, r.db.Rebind(query), r.cfg.WeatherPrefix+stationID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Weather{}, fmt.Errorf("weather for %s: %w", stationID, ErrNotFound)
	}
	if err != nil {
		return model.Weather{}, fmt.Errorf("failed to query weather: %w", err)
	}
	return w, nil
}

// RoadCount returns the number of major roads near a station.
func (r *Repository) RoadCount(ctx context.Context, stationID string) (int, error) {
	const query = `SELECT major_road_count FROM road_features WHERE entity_id = ?`
	var n int
	err := r.db.GetContext(ctx, &n, r.db.Rebind(query), r.entityID(stationID))
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("road features for %s: %w", stationID, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query road features: %w", err)
	}
	return n, nil
}

// UpsertRoadCount stores the major road count of a station, replacing any
// previous value.
func (r *Repository) UpsertRoadCount(ctx context.Context, stationID string, n int) error {
	const query = `
		INSERT INTO road_features (entity_id, major_road_count) VALUES (?, ?)
		ON CONFLICT (entity_id) DO UPDATE SET major_road_count = excluded.major_road_count`
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(query), r.entityID(stationID), n); err != nil {
		return fmt.Errorf("upsert road features for %s: %w", stationID, err)
	}
	return nil
}
