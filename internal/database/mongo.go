package database

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ponytojas/mqtt-team-bridge/config"
	"github.com/ponytojas/mqtt-team-bridge/internal/models"
)

// MongoStore writes each team into workshop_<team>.<collection>, created as a
// time-series collection by EnsureCollection.
type MongoStore struct {
	client *mongo.Client
	config *config.Config
}

// NewMongoStore creates a pooled client. Connect does not dial; call Ping to
// find out whether the deployment is reachable.
func NewMongoStore(ctx context.Context, cfg *config.Config) (*MongoStore, error) {
	mc := cfg.Store.Mongo

	opts := options.Client().
		ApplyURI(mc.URI).
		SetMaxPoolSize(mc.MaxPoolSize).
		SetMinPoolSize(mc.MinPoolSize)
	if mc.ServerSelectionTimeout > 0 {
		opts.SetServerSelectionTimeout(mc.ServerSelectionTimeout)
	}
	if mc.StrictAPI {
		serverAPI := options.ServerAPI(options.ServerAPIVersion1).
			SetStrict(true).
			SetDeprecationErrors(true)
		opts.SetServerAPIOptions(serverAPI)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create MongoDB client: %w", err)
	}

	return &MongoStore{
		client: client,
		config: cfg,
	}, nil
}

// Ping runs the ping command against the admin database
func (s *MongoStore) Ping(ctx context.Context) error {
	if err := s.client.Database("admin").RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err(); err != nil {
		return fmt.Errorf("MongoDB is not reachable: %w", err)
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) collection(team models.Team) *mongo.Collection {
	return s.client.Database(team.Database).Collection(team.Collection)
}

// Insert stores the reading; timestamp is written as a BSON date, which
// time-series collections require.
func (s *MongoStore) Insert(ctx context.Context, team models.Team, reading models.Reading) (string, error) {
	res, err := s.collection(team).InsertOne(ctx, bson.M(reading))
	if err != nil {
		return "", fmt.Errorf("failed to insert sensor data: %w", err)
	}

	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		return oid.Hex(), nil
	}
	return fmt.Sprint(res.InsertedID), nil
}

// EnsureCollection creates the time-series collection unless it already exists
func (s *MongoStore) EnsureCollection(ctx context.Context, team models.Team) error {
	db := s.client.Database(team.Database)

	names, err := db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: team.Collection}})
	if err != nil {
		return fmt.Errorf("failed to list collections in %s: %w", team.Database, err)
	}
	if len(names) > 0 {
		log.Debug().Str("component", "mongo").Str("team", team.Name).Msg("Collection already exists")
		return nil
	}

	ts := s.config.TimeSeries
	tsOpts := options.TimeSeries().
		SetTimeField(ts.TimeField).
		SetMetaField(ts.MetaField).
		SetGranularity(ts.Granularity)

	if err := db.CreateCollection(ctx, team.Collection, options.CreateCollection().SetTimeSeriesOptions(tsOpts)); err != nil {
		return fmt.Errorf("failed to create time-series collection %s.%s: %w", team.Database, team.Collection, err)
	}

	log.Info().Str("component", "mongo").Str("team", team.Name).
		Msgf("Created %s.%s (TimeSeries)", team.Database, team.Collection)
	return nil
}

// Drop deletes the whole team database
func (s *MongoStore) Drop(ctx context.Context, team models.Team) error {
	if err := s.client.Database(team.Database).Drop(ctx); err != nil {
		return fmt.Errorf("failed to drop database %s: %w", team.Database, err)
	}
	return nil
}

// Describe reports collection type and document count
func (s *MongoStore) Describe(ctx context.Context, team models.Team) (CollectionInfo, error) {
	info := CollectionInfo{Team: team.Name, Name: team.Database + "." + team.Collection}

	specs, err := s.client.Database(team.Database).
		ListCollectionSpecifications(ctx, bson.D{{Key: "name", Value: team.Collection}})
	if err != nil {
		return info, fmt.Errorf("failed to inspect %s: %w", info.Name, err)
	}
	if len(specs) == 0 {
		return info, nil
	}

	info.Exists = true
	info.TimeSeries = specs[0].Type == "timeseries"

	info.Documents, err = s.collection(team).CountDocuments(ctx, bson.D{})
	if err != nil {
		return info, fmt.Errorf("failed to count documents in %s: %w", info.Name, err)
	}

	return info, nil
}

// mongoFindFilter builds the time-range filter for Find
func mongoFindFilter(timeField string, q Query) bson.D {
	if q.Since.IsZero() {
		return bson.D{}
	}
	return bson.D{{Key: timeField, Value: bson.D{{Key: "$gte", Value: q.Since}}}}
}

// Find returns readings newest first
func (s *MongoStore) Find(ctx context.Context, team models.Team, q Query) ([]models.Reading, error) {
	timeField := s.config.TimeSeries.TimeField

	opts := options.Find().SetSort(bson.D{{Key: timeField, Value: -1}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cur, err := s.collection(team).Find(ctx, mongoFindFilter(timeField, q), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s.%s: %w", team.Database, team.Collection, err)
	}

	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}

	readings := make([]models.Reading, 0, len(docs))
	for _, doc := range docs {
		readings = append(readings, fromBSON(doc))
	}
	return readings, nil
}

// fromBSON turns a decoded document into plain Go values: dates become
// time.Time and object ids become hex strings.
func fromBSON(doc bson.M) models.Reading {
	out := make(models.Reading, len(doc))
	for k, v := range doc {
		out[k] = bsonValue(v)
	}
	return out
}

func bsonValue(v any) any {
	switch val := v.(type) {
	case primitive.DateTime:
		return val.Time()
	case primitive.ObjectID:
		return val.Hex()
	case bson.M:
		return map[string]any(fromBSON(val))
	case bson.D:
		m := make(map[string]any, len(val))
		for _, e := range val {
			m[e.Key] = bsonValue(e.Value)
		}
		return m
	case bson.A:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = bsonValue(e)
		}
		return out
	default:
		return v
	}
}
