package models

import (
	"strings"

	"github.com/ponytojas/mqtt-team-bridge/config"
)

// Team is a workshop group. Its topic name equals Name, and its readings
// land in Database.Collection.
type Team struct {
	Name       string
	Database   string
	Collection string
}

// Topic returns the broker topic the team publishes to
func (t Team) Topic() string {
	return t.Name
}

// TeamSet is an ordered, read-only set of teams keyed by name
type TeamSet struct {
	teams  []Team
	byName map[string]Team
}

// NewTeamSet builds a set from configuration, keeping the configured order
func NewTeamSet(cfgs []config.TeamConfig) *TeamSet {
	s := &TeamSet{
		teams:  make([]Team, 0, len(cfgs)),
		byName: make(map[string]Team, len(cfgs)),
	}
	for _, c := range cfgs {
		t := Team{
			Name:       strings.TrimSpace(c.Name),
			Database:   c.Database,
			Collection: c.Collection,
		}
		if _, dup := s.byName[t.Name]; dup {
			continue
		}
		s.teams = append(s.teams, t)
		s.byName[t.Name] = t
	}
	return s
}

// Lookup resolves a topic to its team. The topic is the team name itself;
// there is no wildcard or subtopic matching.
func (s *TeamSet) Lookup(topic string) (Team, bool) {
	t, ok := s.byName[strings.TrimSpace(topic)]
	return t, ok
}

// Teams returns the teams in configured order
func (s *TeamSet) Teams() []Team {
	out := make([]Team, len(s.teams))
	copy(out, s.teams)
	return out
}

// Names returns the team names in configured order
func (s *TeamSet) Names() []string {
	names := make([]string, len(s.teams))
	for i, t := range s.teams {
		names[i] = t.Name
	}
	return names
}

// Topics returns every subscription topic
func (s *TeamSet) Topics() []string {
	topics := make([]string, len(s.teams))
	for i, t := range s.teams {
		topics[i] = t.Topic()
	}
	return topics
}

func (s *TeamSet) Len() int {
	return len(s.teams)
}
