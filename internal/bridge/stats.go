package bridge

import (
	"errors"
	"sync"
	"time"
)

// Counters tracks message outcomes for one team, or for all of them
type Counters struct {
	Received    uint64     `json:"received"`
	Stored      uint64     `json:"stored"`
	Malformed   uint64     `json:"malformed"`
	Invalid     uint64     `json:"invalid"`
	StoreErrors uint64     `json:"store_errors"`
	LastStored  *time.Time `json:"last_stored,omitempty"`
}

// Snapshot is a point-in-time copy of Stats
type Snapshot struct {
	Total        Counters            `json:"total"`
	UnknownTopic uint64              `json:"unknown_topic"`
	Teams        map[string]Counters `json:"teams"`
}

// Stats is safe for use by concurrent message handlers
type Stats struct {
	mu      sync.Mutex
	total   Counters
	unknown uint64
	teams   map[string]*Counters
}

// NewStats creates zeroed counters for the given teams
func NewStats(teams []string) *Stats {
	s := &Stats{teams: make(map[string]*Counters, len(teams))}
	for _, name := range teams {
		s.teams[name] = &Counters{}
	}
	return s
}

func (s *Stats) team(name string) *Counters {
	c, ok := s.teams[name]
	if !ok {
		c = &Counters{}
		s.teams[name] = c
	}
	return c
}

func (s *Stats) unknownTopic() {
	s.mu.Lock()
	s.unknown++
	s.mu.Unlock()
}

func (s *Stats) received(team string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total.Received++
	s.team(team).Received++
}

// failed counts a dropped message under the kind carried by err
func (s *Stats) failed(team string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.team(team)
	switch {
	case errors.Is(err, ErrMalformedPayload):
		s.total.Malformed++
		c.Malformed++
	case errors.Is(err, ErrInvalidPayload):
		s.total.Invalid++
		c.Invalid++
	case errors.Is(err, ErrStore):
		s.total.StoreErrors++
		c.StoreErrors++
	}
}

func (s *Stats) stored(team string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.Stored++
	s.total.LastStored = &at
	c := s.team(team)
	c.Stored++
	c.LastStored = &at
}

// Snapshot copies the current counters
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Total:        s.total,
		UnknownTopic: s.unknown,
		Teams:        make(map[string]Counters, len(s.teams)),
	}
	for name, c := range s.teams {
		snap.Teams[name] = *c
	}
	return snap
}
