package export

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ponytojas/mqtt-team-bridge/internal/models"
)

// sampleFields is how many fields of the first document are shown
const sampleFields = 5

// Field is one key/value pair of the sample document
type Field struct {
	Key   string
	Value string
}

// Summary describes an exported data set
type Summary struct {
	Total        int
	SensorFields []string
	Oldest       time.Time
	Newest       time.Time
	Sample       []Field
	SampleExtra  int
}

// Duration is the span between the oldest and newest reading
func (s Summary) Duration() time.Duration {
	return s.Newest.Sub(s.Oldest)
}

// Summarize collects counts, sensor fields, time range and a sample
func Summarize(readings []models.Reading) Summary {
	s := Summary{Total: len(readings)}
	if len(readings) == 0 {
		return s
	}

	fields := map[string]struct{}{}
	for _, r := range readings {
		for _, k := range r.SensorKeys() {
			fields[k] = struct{}{}
		}
		if ts, ok := r.Timestamp(); ok {
			if s.Oldest.IsZero() || ts.Before(s.Oldest) {
				s.Oldest = ts
			}
			if ts.After(s.Newest) {
				s.Newest = ts
			}
		}
	}
	for k := range fields {
		s.SensorFields = append(s.SensorFields, k)
	}
	sort.Strings(s.SensorFields)

	sample := readings[0]
	keys := make([]string, 0, len(sample))
	for k := range sample {
		if k != models.FieldID {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for i, k := range keys {
		if i == sampleFields {
			s.SampleExtra = len(keys) - sampleFields
			break
		}
		v := sample[k]
		if t, ok := v.(time.Time); ok {
			v = t.Format(time.DateTime)
		}
		s.Sample = append(s.Sample, Field{Key: k, Value: fmt.Sprint(v)})
	}

	return s
}

// Print writes the summary in the export tool's console layout
func (s Summary) Print(w io.Writer) {
	rule := strings.Repeat("=", 60)
	if s.Total == 0 {
		fmt.Fprintln(w, "\nNo data found!")
		return
	}

	fmt.Fprintf(w, "\n%s\nDATA SUMMARY\n%s\n", rule, rule)
	fmt.Fprintf(w, "Total documents: %d\n", s.Total)
	fmt.Fprintf(w, "Sensor fields found: %s\n", strings.Join(s.SensorFields, ", "))

	if !s.Newest.IsZero() {
		fmt.Fprintln(w, "\nTime range:")
		fmt.Fprintf(w, "  Oldest: %s\n", s.Oldest.Format(time.DateTime))
		fmt.Fprintf(w, "  Newest: %s\n", s.Newest.Format(time.DateTime))
		fmt.Fprintf(w, "  Duration: %s\n", s.Duration())
	}

	fmt.Fprintln(w, "\nSample document:")
	for _, f := range s.Sample {
		fmt.Fprintf(w, "  %s: %s\n", f.Key, f.Value)
	}
	if s.SampleExtra > 0 {
		fmt.Fprintf(w, "  ... and %d more fields\n", s.SampleExtra)
	}
}
