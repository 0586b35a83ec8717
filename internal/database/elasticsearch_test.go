package database

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ponytojas/mqtt-team-bridge/config"
	"github.com/ponytojas/mqtt-team-bridge/internal/models"
)

var team02 = models.Team{Name: "team02", Database: "workshop_team02", Collection: "sensor_data"}

// fakeElastic answers the handful of endpoints ElasticStore uses. team01's
// index exists, team02's does not.
type fakeElastic struct {
	mu      sync.Mutex
	indexed []byte
	search  []byte
}

func (f *fakeElastic) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	body, _ := io.ReadAll(r.Body)
	path := strings.TrimPrefix(r.URL.Path, "/")

	switch {
	case strings.HasPrefix(path, "workshop_team02-sensor_data"):
		w.WriteHeader(http.StatusNotFound)
		if r.Method != http.MethodHead {
			_, _ = io.WriteString(w, `{"error":{"type":"index_not_found_exception"},"status":404}`)
		}
	case path == "workshop_team01-sensor_data" && r.Method == http.MethodHead:
		w.WriteHeader(http.StatusOK)
	case path == "workshop_team01-sensor_data/_doc":
		f.mu.Lock()
		f.indexed = body
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"_index":"workshop_team01-sensor_data","_id":"Zx1aB","result":"created"}`)
	case path == "workshop_team01-sensor_data/_mapping":
		_, _ = io.WriteString(w, `{"workshop_team01-sensor_data":{"mappings":{"properties":{"timestamp":{"type":"date"},"team":{"type":"keyword"}}}}}`)
	case path == "workshop_team01-sensor_data/_count":
		_, _ = io.WriteString(w, `{"count":2}`)
	case path == "workshop_team01-sensor_data/_search":
		f.mu.Lock()
		f.search = body
		f.mu.Unlock()
		_, _ = io.WriteString(w, `{"hits":{"hits":[
			{"_id":"Zx1aB","_source":{"timestamp":"2025-05-01T09:00:00.123Z","timestamp_readable":"1 May 2025 12:00:00","topic":"team01","team":"team01","temperature":22.5,"light":850,"serial":9007199254740993}},
			{"_id":"Zx1aA","_source":{"timestamp":"2025-05-01T08:59:00.000Z","topic":"team01","team":"team01","co2":420}}
		]}}`)
	default:
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"unexpected request"}`)
	}
}

func newTestElasticStore(t *testing.T) (*ElasticStore, *fakeElastic) {
	t.Helper()
	fake := &fakeElastic{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cfg := config.GetDefaultConfig()
	cfg.Store.Driver = config.DriverElasticsearch
	cfg.Store.Elasticsearch.URLs = []string{srv.URL}

	store, err := NewElasticStore(context.Background(), cfg)
	require.NoError(t, err)
	return store, fake
}

func TestElasticInsertKeepsEveryKey(t *testing.T) {
	store, fake := newTestElasticStore(t)

	ts := time.Date(2025, 5, 1, 9, 0, 0, 123000000, time.UTC)
	reading := models.Reading{"temperature": 22.5, "light": int64(850)}
	reading.Stamp(ts, "team01", team01)

	id, err := store.Insert(context.Background(), team01, reading)
	require.NoError(t, err)
	assert.Equal(t, "Zx1aB", id)

	fake.mu.Lock()
	stored, err := decodeDocument(fake.indexed)
	fake.mu.Unlock()
	require.NoError(t, err)

	assert.Equal(t, models.Reading{
		"temperature":        22.5,
		"light":              int64(850),
		"timestamp":          "2025-05-01T09:00:00.123Z",
		"timestamp_readable": models.ReadableTime(ts),
		"topic":              "team01",
		"team":               "team01",
	}, stored)
}

func TestElasticFind(t *testing.T) {
	store, fake := newTestElasticStore(t)

	readings, err := store.Find(context.Background(), team01, Query{Limit: 2})
	require.NoError(t, err)
	require.Len(t, readings, 2)

	first := readings[0]
	assert.Equal(t, "Zx1aB", first[models.FieldID])
	assert.Equal(t, int64(850), first["light"])
	assert.Equal(t, int64(9007199254740993), first["serial"])
	assert.Equal(t, 22.5, first["temperature"])
	ts, ok := first.Timestamp()
	require.True(t, ok)
	assert.True(t, time.Date(2025, 5, 1, 9, 0, 0, 123000000, time.UTC).Equal(ts))

	assert.Equal(t, int64(420), readings[1]["co2"])

	fake.mu.Lock()
	assert.Contains(t, string(fake.search), `"size":2`)
	fake.mu.Unlock()
}

func TestElasticFindMissingIndex(t *testing.T) {
	store, _ := newTestElasticStore(t)

	_, err := store.Find(context.Background(), team02, Query{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestElasticDescribe(t *testing.T) {
	store, _ := newTestElasticStore(t)

	info, err := store.Describe(context.Background(), team01)
	require.NoError(t, err)
	assert.Equal(t, CollectionInfo{
		Team:       "team01",
		Name:       "workshop_team01-sensor_data",
		Exists:     true,
		TimeSeries: true,
		Documents:  2,
	}, info)

	info, err = store.Describe(context.Background(), team02)
	require.NoError(t, err)
	assert.False(t, info.Exists)
}
