package database

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ponytojas/mqtt-team-bridge/config"
	"github.com/ponytojas/mqtt-team-bridge/internal/models"
)

var team01 = models.Team{Name: "team01", Database: "workshop_team01", Collection: "sensor_data"}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Store.Driver = "sqlite"

	_, err := Open(context.Background(), cfg)
	require.Error(t, err)
}

func TestWelcomeReading(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	r := WelcomeReading(team01, now)

	assert.Equal(t, now, r[models.FieldTimestamp])
	assert.Equal(t, "team01", r[models.FieldTeam])
	assert.Equal(t, "system", r["sensor_type"])
	assert.Equal(t, "Welcome team01! Your TimeSeries database is ready.", r["message"])
}

func TestTableName(t *testing.T) {
	assert.Equal(t, `"workshop_team01"."sensor_data"`, tableName(team01))
	assert.Equal(t, `"we""ird"."t"`, tableName(models.Team{Database: `we"ird`, Collection: "t"}))
}

func TestBuildFindQuery(t *testing.T) {
	sql, args := buildFindQuery(`"s"."t"`, Query{})
	assert.Equal(t, `SELECT id, time, document FROM "s"."t" ORDER BY time DESC`, sql)
	assert.Empty(t, args)

	since := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	sql, args = buildFindQuery(`"s"."t"`, Query{Since: since, Limit: 25})
	assert.Equal(t, `SELECT id, time, document FROM "s"."t" WHERE time >= $1 ORDER BY time DESC LIMIT 25`, sql)
	assert.Equal(t, []any{since}, args)
}

func TestMongoFindFilter(t *testing.T) {
	assert.Equal(t, bson.D{}, mongoFindFilter("timestamp", Query{}))

	since := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	want := bson.D{{Key: "timestamp", Value: bson.D{{Key: "$gte", Value: since}}}}
	assert.Equal(t, want, mongoFindFilter("timestamp", Query{Since: since, Limit: 3}))
}

func TestFromBSON(t *testing.T) {
	ts := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	oid := primitive.NewObjectID()

	doc := bson.M{
		"_id":       oid,
		"timestamp": primitive.NewDateTimeFromTime(ts),
		"temp":      22.5,
		"nested":    bson.M{"at": primitive.NewDateTimeFromTime(ts)},
		"ordered":   bson.D{{Key: "k", Value: int32(1)}},
		"list":      bson.A{int32(1), "two"},
	}

	r := fromBSON(doc)
	assert.Equal(t, oid.Hex(), r["_id"])
	assert.True(t, ts.Equal(r["timestamp"].(time.Time)))
	assert.Equal(t, 22.5, r["temp"])
	assert.True(t, ts.Equal(r["nested"].(map[string]any)["at"].(time.Time)))
	assert.Equal(t, map[string]any{"k": int32(1)}, r["ordered"])
	assert.Equal(t, []any{int32(1), "two"}, r["list"])
}

func TestIndexName(t *testing.T) {
	assert.Equal(t, "workshop_team01-sensor_data", indexName(team01))
	assert.Equal(t, "workshop_a-readings", indexName(models.Team{Database: "Workshop_A", Collection: "Readings"}))
}

func TestESDocument(t *testing.T) {
	ts := time.Date(2025, 5, 1, 12, 0, 0, 123456789, time.FixedZone("EEST", 3*3600))
	doc := esDocument(models.Reading{"timestamp": ts, "light": int64(850)})

	assert.Equal(t, "2025-05-01T09:00:00.123Z", doc["timestamp"])
	assert.Equal(t, int64(850), doc["light"])
}

func TestESSearchBody(t *testing.T) {
	body := esSearchBody("timestamp", Query{})
	assert.Equal(t, map[string]any{"match_all": map[string]any{}}, body["query"])
	assert.Equal(t, maxSearchSize, body["size"])

	since := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	body = esSearchBody("timestamp", Query{Since: since, Limit: 5})
	assert.Equal(t, map[string]any{
		"range": map[string]any{
			"timestamp": map[string]any{"gte": "2025-05-01T00:00:00.000Z"},
		},
	}, body["query"])
	assert.Equal(t, 5, body["size"])
	assert.Equal(t, []any{map[string]any{"timestamp": map[string]any{"order": "desc"}}}, body["sort"])
}

func TestIndexMapping(t *testing.T) {
	m := indexMapping(config.GetDefaultConfig().TimeSeries)
	props := m["mappings"].(map[string]any)["properties"].(map[string]any)

	assert.Equal(t, map[string]any{"type": "date"}, props["timestamp"])
	assert.Equal(t, map[string]any{"type": "keyword"}, props["team"])
}

func TestMongoDocumentRoundTrip(t *testing.T) {
	ts := time.Date(2025, 5, 1, 9, 0, 0, 123000000, time.UTC)
	reading := models.Reading{"temperature": 22.5, "light": int64(850), "tags": []any{"a", "b"}}
	reading.Stamp(ts, " team01", team01)

	raw, err := bson.Marshal(bson.M(reading))
	require.NoError(t, err)

	var doc bson.M
	require.NoError(t, bson.Unmarshal(raw, &doc))

	assert.IsType(t, primitive.DateTime(0), doc[models.FieldTimestamp])
	assert.Equal(t, int64(850), doc["light"])
	assert.Equal(t, 22.5, doc["temperature"])
	assert.Equal(t, " team01", doc[models.FieldTopic])
	assert.Equal(t, "team01", doc[models.FieldTeam])
	assert.Equal(t, models.ReadableTime(ts), doc[models.FieldTimestampReadable])

	back := fromBSON(doc)
	got, ok := back.Timestamp()
	require.True(t, ok)
	assert.True(t, ts.Equal(got))
	assert.Equal(t, []any{"a", "b"}, back["tags"])
	assert.Equal(t, reading.SensorKeys(), back.SensorKeys())
}

func TestTimescaleDocumentRoundTrip(t *testing.T) {
	ts := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	reading := models.Reading{
		"light":  int64(850),
		"serial": int64(9007199254740993),
		"temp":   22.5,
		"pos":    map[string]any{"x": int64(1), "y": 2.5},
	}
	reading.Stamp(ts, "team01", team01)

	raw, err := json.Marshal(reading)
	require.NoError(t, err)

	got, err := decodeDocument(raw)
	require.NoError(t, err)

	assert.Equal(t, int64(850), got["light"])
	assert.Equal(t, int64(9007199254740993), got["serial"])
	assert.Equal(t, 22.5, got["temp"])
	assert.Equal(t, map[string]any{"x": int64(1), "y": 2.5}, got["pos"])
	assert.Equal(t, "team01", got[models.FieldTeam])
	assert.Equal(t, reading.SensorKeys(), got.SensorKeys())
}

func TestDecodeDocumentRejectsBadJSON(t *testing.T) {
	_, err := decodeDocument([]byte(`{"light":`))
	assert.Error(t, err)
}
