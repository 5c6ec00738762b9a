package store

var schemas = map[string][]string{
	"postgres": {
		`CREATE TABLE IF NOT EXISTS air_quality_observations (
			entity_id TEXT NOT NULL,
			time TIMESTAMPTZ NOT NULL,
			pm2_5 DOUBLE PRECISION
		)`,
		`CREATE INDEX IF NOT EXISTS idx_aqo_entity_time ON air_quality_observations (entity_id, time)`,
		`CREATE TABLE IF NOT EXISTS weather_observations (
			entity_id TEXT NOT NULL,
			time TIMESTAMPTZ NOT NULL,
			temperature DOUBLE PRECISION,
			relative_humidity DOUBLE PRECISION,
			wind_speed DOUBLE PRECISION
		)`,
		`CREATE TABLE IF NOT EXISTS road_features (
			entity_id TEXT PRIMARY KEY,
			major_road_count INTEGER NOT NULL
		)`,
	},
	"sqlite": {
		`CREATE TABLE IF NOT EXISTS air_quality_observations (
			entity_id TEXT NOT NULL,
			time TIMESTAMP NOT NULL,
			pm2_5 REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_aqo_entity_time ON air_quality_observations (entity_id, time)`,
		`CREATE TABLE IF NOT EXISTS weather_observations (
			entity_id TEXT NOT NULL,
			time TIMESTAMP NOT NULL,
			temperature REAL,
			relative_humidity REAL,
			wind_speed REAL
		)`,
		`CREATE TABLE IF NOT EXISTS road_features (
			entity_id TEXT PRIMARY KEY,
			major_road_count INTEGER NOT NULL
		)`,
	},
}
