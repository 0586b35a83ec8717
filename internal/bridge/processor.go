package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ponytojas/mqtt-team-bridge/internal/models"
)

// Inserter is the part of the store the bridge writes through
type Inserter interface {
	Insert(ctx context.Context, team models.Team, reading models.Reading) (string, error)
}

// Result describes a stored message
type Result struct {
	Team    models.Team
	ID      string
	Reading models.Reading
}

// Processor turns broker messages into stored readings
type Processor struct {
	teams   *models.TeamSet
	store   Inserter
	stats   *Stats
	timeout time.Duration
	now     func() time.Time
	logger  zerolog.Logger
}

// Option configures a Processor
type Option func(*Processor)

// WithInsertTimeout bounds each insert call. Zero means no bound.
func WithInsertTimeout(d time.Duration) Option {
	return func(p *Processor) { p.timeout = d }
}

// WithClock replaces time.Now for capture timestamps
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// WithLogger replaces the component logger used by HandleMessage
func WithLogger(l zerolog.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

// NewProcessor creates a processor writing to store for the given teams
func NewProcessor(teams *models.TeamSet, store Inserter, opts ...Option) *Processor {
	p := &Processor{
		teams:  teams,
		store:  store,
		stats:  NewStats(teams.Names()),
		now:    time.Now,
		logger: log.With().Str("component", "bridge").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Stats exposes the processor's counters
func (p *Processor) Stats() *Stats {
	return p.stats
}

// Process resolves the team, parses and validates the payload, stamps it and
// inserts it once. The returned error wraps one of ErrUnknownTeam,
// ErrMalformedPayload, ErrInvalidPayload or ErrStore.
func (p *Processor) Process(ctx context.Context, topic string, payload []byte) (Result, error) {
	team, ok := p.teams.Lookup(topic)
	if !ok {
		p.stats.unknownTopic()
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownTeam, strings.TrimSpace(topic))
	}
	p.stats.received(team.Name)

	reading, err := ParsePayload(payload)
	if err != nil {
		p.stats.failed(team.Name, err)
		return Result{Team: team}, err
	}

	now := p.now()
	reading.Stamp(now, topic, team)

	insertCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		insertCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	id, err := p.store.Insert(insertCtx, team, reading)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrStore, err)
		p.stats.failed(team.Name, err)
		return Result{Team: team, Reading: reading}, err
	}

	p.stats.stored(team.Name, now)
	return Result{Team: team, ID: id, Reading: reading}, nil
}

// HandleMessage is the broker callback: it processes one message and logs
// the outcome. Failed messages are dropped.
func (p *Processor) HandleMessage(topic string, payload []byte) {
	res, err := p.Process(context.Background(), topic, payload)

	switch {
	case err == nil:
		p.logger.Info().
			Str("team", res.Team.Name).
			Str("topic", topic).
			Strs("sensors", res.Reading.SensorKeys()).
			Str("id", res.ID).
			Msg("Stored sensor data")
		p.logger.Debug().Str("team", res.Team.Name).Interface("data", res.Reading).Msg("Received sensor data")
	case errors.Is(err, ErrUnknownTeam):
		p.logger.Error().Err(err).Str("topic", topic).Msg("Received message for unknown team")
	case errors.Is(err, ErrMalformedPayload):
		p.logger.Error().Err(err).Str("team", res.Team.Name).Str("raw", string(payload)).Msg("JSON parse error")
	case errors.Is(err, ErrInvalidPayload):
		p.logger.Error().Err(err).Str("team", res.Team.Name).Str("raw", string(payload)).Msg("Invalid data")
	default:
		p.logger.Error().Err(err).Str("team", res.Team.Name).Msg("Store error")
	}
}
