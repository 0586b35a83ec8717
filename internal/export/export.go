package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/ponytojas/mqtt-team-bridge/internal/models"
)

// Output formats
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatBoth = "both"
)

// TimeLayout renders times in exported files
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// ErrNoData is returned when there is nothing to write as CSV
var ErrNoData = errors.New("no data to export")

// ParseFormat validates a format name
func ParseFormat(s string) (string, error) {
	switch s {
	case FormatJSON, FormatCSV, FormatBoth:
		return s, nil
	}
	return "", fmt.Errorf("unknown export format %q (want json, csv or both)", s)
}

// plain converts a reading into JSON-friendly values: times become UTC
// strings and the id becomes a string
func plain(r models.Reading) map[string]any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		switch val := v.(type) {
		case time.Time:
			out[k] = val.UTC().Format(TimeLayout)
		default:
			if k == models.FieldID {
				out[k] = fmt.Sprint(v)
				continue
			}
			out[k] = v
		}
	}
	return out
}

// WriteJSON writes readings as an indented JSON array
func WriteJSON(w io.Writer, readings []models.Reading) error {
	docs := make([]map[string]any, 0, len(readings))
	for _, r := range readings {
		docs = append(docs, plain(r))
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(docs); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// Columns returns the sorted union of keys across readings, without _id
func Columns(readings []models.Reading) []string {
	seen := map[string]struct{}{}
	for _, r := range readings {
		for k := range r {
			if k != models.FieldID {
				seen[k] = struct{}{}
			}
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

func cell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case time.Time:
		return val.UTC().Format(TimeLayout)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int:
		return strconv.Itoa(val)
	case bool:
		return strconv.FormatBool(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
}

// WriteCSV writes one row per reading under a header of Columns
func WriteCSV(w io.Writer, readings []models.Reading) error {
	if len(readings) == 0 {
		return ErrNoData
	}

	cols := Columns(readings)
	cw := csv.NewWriter(w)
	if err := cw.Write(cols); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	row := make([]string, len(cols))
	for _, r := range readings {
		for i, c := range cols {
			row[i] = cell(r[c])
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteFiles writes base.json and/or base.csv and returns the paths written
func WriteFiles(base, format string, readings []models.Reading) ([]string, error) {
	var written []string

	write := func(path string, fn func(io.Writer, []models.Reading) error) error {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		if err := fn(f, readings); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to close %s: %w", path, err)
		}
		written = append(written, path)
		return nil
	}

	if format == FormatJSON || format == FormatBoth {
		if err := write(base+".json", WriteJSON); err != nil {
			return written, err
		}
	}
	if format == FormatCSV || format == FormatBoth {
		if err := write(base+".csv", WriteCSV); err != nil {
			return written, err
		}
	}
	return written, nil
}
