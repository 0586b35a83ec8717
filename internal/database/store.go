package database

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ponytojas/mqtt-team-bridge/config"
	"github.com/ponytojas/mqtt-team-bridge/internal/models"
)

// ErrNotFound is returned when a team collection does not exist
var ErrNotFound = errors.New("collection not found")

// Query filters documents read back by Find
type Query struct {
	// Since drops documents captured before it. Zero means no lower bound.
	Since time.Time
	// Limit caps the number of documents. Zero means no cap.
	Limit int
}

// CollectionInfo describes a team's collection as found in the store
type CollectionInfo struct {
	Team       string
	Name       string
	Exists     bool
	TimeSeries bool
	Documents  int64
}

// Store persists readings into per-team collections
type Store interface {
	// Ping verifies the store is reachable
	Ping(ctx context.Context) error
	// Insert stores one reading and returns the store-assigned id
	Insert(ctx context.Context, team models.Team, reading models.Reading) (string, error)
	// EnsureCollection creates the team's time-series collection if missing
	EnsureCollection(ctx context.Context, team models.Team) error
	// Drop removes the team's storage and everything in it
	Drop(ctx context.Context, team models.Team) error
	// Describe reports whether the team collection exists and what it holds
	Describe(ctx context.Context, team models.Team) (CollectionInfo, error)
	// Find returns readings newest first
	Find(ctx context.Context, team models.Team, q Query) ([]models.Reading, error)
	Close(ctx context.Context) error
}

// Open connects to the store selected by cfg.Store.Driver
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Store.Driver {
	case config.DriverMongo:
		return NewMongoStore(ctx, cfg)
	case config.DriverTimescale:
		return NewTimescaleDB(ctx, cfg)
	case config.DriverElasticsearch:
		return NewElasticStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported store driver: %q", cfg.Store.Driver)
	}
}

// WelcomeReading is the first document placed in a freshly created collection
func WelcomeReading(team models.Team, now time.Time) models.Reading {
	return models.Reading{
		models.FieldTimestamp: now,
		models.FieldTeam:      team.Name,
		"message":             fmt.Sprintf("Welcome %s! Your TimeSeries database is ready.", team.Name),
		"sensor_type":         "system",
		"setup_time":          now,
	}
}

// decodeDocument reads a stored JSON document back into a Reading, keeping
// integers as int64 the way the bridge wrote them
func decodeDocument(raw []byte) (models.Reading, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}

	reading := make(models.Reading, len(doc))
	for k, v := range doc {
		n, err := models.NormalizeNumbers(v)
		if err != nil {
			return nil, err
		}
		reading[k] = n
	}
	return reading, nil
}
