package models

import (
	"sort"
	"time"
)

// Metadata fields the bridge adds to every stored reading
const (
	FieldTimestamp         = "timestamp"
	FieldTimestampReadable = "timestamp_readable"
	FieldTopic             = "topic"
	FieldTeam              = "team"
	FieldID                = "_id"
)

// ReadableLayout renders capture time as e.g. "7 Mar 2025 09:05:03"
const ReadableLayout = "2 Jan 2006 15:04:05"

// Reading is one stored sensor document: the publisher's keys unchanged plus
// the metadata fields above.
type Reading map[string]any

// Stamp attaches capture time and origin metadata. Metadata overwrites any
// payload key of the same name.
func (r Reading) Stamp(now time.Time, topic string, team Team) Reading {
	r[FieldTimestamp] = now
	r[FieldTimestampReadable] = ReadableTime(now)
	r[FieldTopic] = topic
	r[FieldTeam] = team.Name
	return r
}

// ReadableTime formats t in local time with ReadableLayout
func ReadableTime(t time.Time) string {
	return t.Local().Format(ReadableLayout)
}

// Timestamp returns the capture time, if the reading carries one
func (r Reading) Timestamp() (time.Time, bool) {
	ts, ok := r[FieldTimestamp].(time.Time)
	return ts, ok
}

// IsMetadataField reports whether key is added by the bridge or the store
func IsMetadataField(key string) bool {
	switch key {
	case FieldTimestamp, FieldTimestampReadable, FieldTopic, FieldTeam, FieldID:
		return true
	}
	return false
}

// SensorKeys returns the publisher-supplied keys, sorted
func (r Reading) SensorKeys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		if !IsMetadataField(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy of the reading
func (r Reading) Clone() Reading {
	out := make(Reading, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
