package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/ponytojas/mqtt-team-bridge/config"
	"github.com/ponytojas/mqtt-team-bridge/internal/models"
)

// undefinedTable is the Postgres SQLSTATE for a missing relation
const undefinedTable = "42P01"

// TimescaleDB stores each team in its own hypertable, one schema per team
// database. The reading itself is kept whole in a JSONB column.
type TimescaleDB struct {
	pool   *pgxpool.Pool
	config *config.Config
}

// NewTimescaleDB creates a new TimescaleDB instance
func NewTimescaleDB(ctx context.Context, cfg *config.Config) (*TimescaleDB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.GetDBConnString())
	if err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}
	if cfg.Store.Timescale.MaxConns > 0 {
		poolCfg.MaxConns = cfg.Store.Timescale.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &TimescaleDB{
		pool:   pool,
		config: cfg,
	}, nil
}

// Ping checks that a pooled connection can reach the server
func (db *TimescaleDB) Ping(ctx context.Context) error {
	if err := db.pool.Ping(ctx); err != nil {
		return fmt.Errorf("database is not reachable: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (db *TimescaleDB) Close(_ context.Context) error {
	db.pool.Close()
	return nil
}

// tableName returns the quoted "schema"."table" for a team
func tableName(team models.Team) string {
	return pgx.Identifier{team.Database, team.Collection}.Sanitize()
}

// EnsureCollection creates the team schema and table if they don't exist and
// converts the table to a hypertable
func (db *TimescaleDB) EnsureCollection(ctx context.Context, team models.Team) error {
	table := tableName(team)

	if _, err := db.pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{team.Database}.Sanitize()); err != nil {
		return fmt.Errorf("failed to create schema for %s: %w", team.Name, err)
	}

	_, err := db.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL,
			time TIMESTAMPTZ NOT NULL,
			team TEXT NOT NULL,
			topic TEXT NOT NULL DEFAULT '',
			document JSONB NOT NULL
		)
	`, table))
	if err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}

	// Convert to hypertable
	_, err = db.pool.Exec(ctx, `SELECT create_hypertable($1::regclass, 'time', if_not_exists => TRUE)`, table)
	if err != nil {
		return fmt.Errorf("failed to convert table %s to hypertable: %w", table, err)
	}

	log.Info().Str("component", "timescale").Str("team", team.Name).Msgf("Table %s ready as hypertable", table)
	return nil
}

// Drop removes the team table
func (db *TimescaleDB) Drop(ctx context.Context, team models.Team) error {
	if _, err := db.pool.Exec(ctx, "DROP TABLE IF EXISTS "+tableName(team)); err != nil {
		return fmt.Errorf("failed to drop table for %s: %w", team.Name, err)
	}
	return nil
}

// Describe checks if the table exists, whether it is a hypertable and how many
// rows it holds
func (db *TimescaleDB) Describe(ctx context.Context, team models.Team) (CollectionInfo, error) {
	info := CollectionInfo{Team: team.Name, Name: tableName(team)}

	err := db.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = $1
			AND table_name = $2
		)
	`, team.Database, team.Collection).Scan(&info.Exists)
	if err != nil {
		return info, fmt.Errorf("failed to check if table exists: %w", err)
	}
	if !info.Exists {
		return info, nil
	}

	err = db.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT FROM timescaledb_information.hypertables
			WHERE hypertable_schema = $1
			AND hypertable_name = $2
		)
	`, team.Database, team.Collection).Scan(&info.TimeSeries)
	if err != nil {
		// The extension may be missing; the table still works as a plain table
		log.Debug().Err(err).Str("team", team.Name).Msg("Hypertable lookup failed")
		info.TimeSeries = false
	}

	if err := db.pool.QueryRow(ctx, "SELECT count(*) FROM "+info.Name).Scan(&info.Documents); err != nil {
		return info, fmt.Errorf("failed to count rows: %w", err)
	}

	return info, nil
}

// Insert stores the reading into the team's table
func (db *TimescaleDB) Insert(ctx context.Context, team models.Team, reading models.Reading) (string, error) {
	ts, ok := reading.Timestamp()
	if !ok {
		ts = time.Now()
	}
	topic, _ := reading[models.FieldTopic].(string)

	doc, err := json.Marshal(reading)
	if err != nil {
		return "", fmt.Errorf("failed to encode reading: %w", err)
	}

	var id int64
	err = db.pool.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO %s (time, team, topic, document)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, tableName(team)), ts, team.Name, topic, string(doc)).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to insert sensor data: %w", err)
	}

	return strconv.FormatInt(id, 10), nil
}

// buildFindQuery renders the SELECT used by Find
func buildFindQuery(table string, q Query) (string, []any) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString("SELECT id, time, document FROM ")
	sb.WriteString(table)
	if !q.Since.IsZero() {
		args = append(args, q.Since)
		sb.WriteString(" WHERE time >= $1")
	}
	sb.WriteString(" ORDER BY time DESC")
	if q.Limit > 0 {
		sb.WriteString(" LIMIT " + strconv.Itoa(q.Limit))
	}
	return sb.String(), args
}

// Find reads the team's readings back, newest first
func (db *TimescaleDB) Find(ctx context.Context, team models.Team, q Query) ([]models.Reading, error) {
	sql, args := buildFindQuery(tableName(team), q)

	rows, err := db.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, queryError(team, "failed to query readings", err)
	}
	defer rows.Close()

	var readings []models.Reading
	for rows.Next() {
		var (
			id  int64
			ts  time.Time
			doc []byte
		)
		if err := rows.Scan(&id, &ts, &doc); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		reading, err := decodeDocument(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to decode document %d: %w", id, err)
		}
		reading[models.FieldID] = strconv.FormatInt(id, 10)
		reading[models.FieldTimestamp] = ts
		readings = append(readings, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, queryError(team, "failed to read rows", err)
	}

	return readings, nil
}

// queryError maps a missing table onto ErrNotFound
func queryError(team models.Team, msg string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == undefinedTable {
		return fmt.Errorf("%s: %w", tableName(team), ErrNotFound)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
