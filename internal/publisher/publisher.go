package publisher

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ponytojas/mqtt-team-bridge/internal/models"
)

// Templates are the sample readings sent to teams in turn. They are kept as
// literal JSON so the key order on the wire is stable.
var Templates = []string{
	`{"temperature":22.5,"humidity":45.2}`,
	`{"temperature":23.1,"humidity":48.5,"light":850}`,
	`{"temperature":21.8,"humidity":52,"pressure":1013.25}`,
	`{"temperature":24.3,"humidity":41.8,"co2":420}`,
	`{"temperature":20.5,"humidity":55,"voltage":3.28}`,
}

// Publisher sends one payload to one topic
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Options controls pacing of a run
type Options struct {
	// Interval staggers consecutive messages
	Interval time.Duration
	// Linger is waited after the last message before returning
	Linger time.Duration
	// Rounds repeats the whole sequence; values below 1 mean one round
	Rounds int
}

// Sent records a published test message
type Sent struct {
	Team    string
	Topic   string
	Payload string
}

// PayloadFor returns the template for the team at position i
func PayloadFor(i int) string {
	return Templates[i%len(Templates)]
}

// SelectTeams resolves names against the set. No names selects every team.
func SelectTeams(set *models.TeamSet, names []string) ([]models.Team, error) {
	if len(names) == 0 {
		return set.Teams(), nil
	}
	teams := make([]models.Team, 0, len(names))
	for _, name := range names {
		t, ok := set.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown team %q", name)
		}
		teams = append(teams, t)
	}
	return teams, nil
}

// sleep waits d or until ctx ends
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run publishes one template message per team per round, staggered by
// opts.Interval. It stops at the first publish error or when ctx ends.
func Run(ctx context.Context, pub Publisher, teams []models.Team, opts Options) ([]Sent, error) {
	rounds := opts.Rounds
	if rounds < 1 {
		rounds = 1
	}

	logger := log.With().Str("component", "publisher").Logger()
	sent := make([]Sent, 0, rounds*len(teams))

	for round := 0; round < rounds; round++ {
		for i, team := range teams {
			if len(sent) > 0 {
				if err := sleep(ctx, opts.Interval); err != nil {
					return sent, fmt.Errorf("publisher interrupted: %w", err)
				}
			}

			payload := PayloadFor(i)
			if err := pub.Publish(ctx, team.Topic(), []byte(payload)); err != nil {
				return sent, err
			}
			sent = append(sent, Sent{Team: team.Name, Topic: team.Topic(), Payload: payload})
			logger.Info().Str("team", team.Name).Msgf("Sent to %s: %s", team.Name, payload)
		}
	}

	if err := sleep(ctx, opts.Linger); err != nil {
		return sent, fmt.Errorf("publisher interrupted: %w", err)
	}
	return sent, nil
}
