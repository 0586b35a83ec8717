package database

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/ponytojas/mqtt-team-bridge/config"
	"github.com/ponytojas/mqtt-team-bridge/internal/models"
)

// esTimeLayout is the date format written to indices. Elasticsearch keeps
// millisecond precision for the date type.
const esTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// maxSearchSize is the default index.max_result_window
const maxSearchSize = 10000

// ElasticStore keeps one index per team
type ElasticStore struct {
	client *elasticsearch.Client
	config *config.Config
}

// NewElasticStore creates a new Elasticsearch client
func NewElasticStore(_ context.Context, cfg *config.Config) (*ElasticStore, error) {
	ec := cfg.Store.Elasticsearch

	esCfg := elasticsearch.Config{
		Addresses: ec.URLs,
	}
	// Add authentication if provided
	if ec.Username != "" && ec.Password != "" {
		esCfg.Username = ec.Username
		esCfg.Password = ec.Password
	}

	client, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	return &ElasticStore{
		client: client,
		config: cfg,
	}, nil
}

// indexName returns the lowercased "<database>-<collection>" index
func indexName(team models.Team) string {
	return strings.ToLower(team.Database + "-" + team.Collection)
}

// responseError turns a non-2xx response into an error
func responseError(res *esapi.Response, op string) error {
	if !res.IsError() {
		return nil
	}
	return fmt.Errorf("elasticsearch %s failed: %s", op, res.String())
}

func (s *ElasticStore) Ping(ctx context.Context) error {
	res, err := s.client.Ping(s.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to connect to Elasticsearch: %w", err)
	}
	defer res.Body.Close()
	return responseError(res, "ping")
}

// Close is a no-op; the transport has no persistent state to release
func (s *ElasticStore) Close(_ context.Context) error {
	return nil
}

// esDocument copies the reading and renders time values in esTimeLayout
func esDocument(reading models.Reading) map[string]any {
	doc := make(map[string]any, len(reading))
	for k, v := range reading {
		if t, ok := v.(time.Time); ok {
			doc[k] = t.UTC().Format(esTimeLayout)
			continue
		}
		doc[k] = v
	}
	return doc
}

// Insert indexes the reading and returns the generated document id
func (s *ElasticStore) Insert(ctx context.Context, team models.Team, reading models.Reading) (string, error) {
	body, err := json.Marshal(esDocument(reading))
	if err != nil {
		return "", fmt.Errorf("failed to encode reading: %w", err)
	}

	req := esapi.IndexRequest{
		Index: indexName(team),
		Body:  bytes.NewReader(body),
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return "", fmt.Errorf("failed to index document: %w", err)
	}
	defer res.Body.Close()

	if err := responseError(res, "index"); err != nil {
		return "", err
	}

	var result struct {
		ID string `json:"_id"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to parse index response: %w", err)
	}
	return result.ID, nil
}

func (s *ElasticStore) exists(ctx context.Context, index string) (bool, error) {
	res, err := s.client.Indices.Exists([]string{index}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("failed to check index %s: %w", index, err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected status checking index %s: %s", index, res.String())
	}
}

// indexMapping maps the time field as a date and the origin fields as keywords
func indexMapping(ts config.TimeSeriesConfig) map[string]any {
	return map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				ts.TimeField:                  map[string]any{"type": "date"},
				ts.MetaField:                  map[string]any{"type": "keyword"},
				models.FieldTopic:             map[string]any{"type": "keyword"},
				models.FieldTimestampReadable: map[string]any{"type": "keyword"},
			},
		},
	}
}

// EnsureCollection creates the team index with a date-mapped time field
func (s *ElasticStore) EnsureCollection(ctx context.Context, team models.Team) error {
	index := indexName(team)

	ok, err := s.exists(ctx, index)
	if err != nil || ok {
		return err
	}

	body, err := json.Marshal(indexMapping(s.config.TimeSeries))
	if err != nil {
		return fmt.Errorf("failed to encode mapping: %w", err)
	}

	res, err := s.client.Indices.Create(index,
		s.client.Indices.Create.WithContext(ctx),
		s.client.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", index, err)
	}
	defer res.Body.Close()

	return responseError(res, "create index")
}

func (s *ElasticStore) Drop(ctx context.Context, team models.Team) error {
	res, err := s.client.Indices.Delete([]string{indexName(team)},
		s.client.Indices.Delete.WithContext(ctx),
		s.client.Indices.Delete.WithIgnoreUnavailable(true),
	)
	if err != nil {
		return fmt.Errorf("failed to delete index: %w", err)
	}
	defer res.Body.Close()

	return responseError(res, "delete index")
}

// Describe reports whether the index exists, whether its time field is mapped
// as a date, and the document count
func (s *ElasticStore) Describe(ctx context.Context, team models.Team) (CollectionInfo, error) {
	index := indexName(team)
	info := CollectionInfo{Team: team.Name, Name: index}

	ok, err := s.exists(ctx, index)
	if err != nil || !ok {
		return info, err
	}
	info.Exists = true

	res, err := s.client.Indices.GetMapping(
		s.client.Indices.GetMapping.WithContext(ctx),
		s.client.Indices.GetMapping.WithIndex(index),
	)
	if err != nil {
		return info, fmt.Errorf("failed to get mapping: %w", err)
	}
	defer res.Body.Close()
	if err := responseError(res, "get mapping"); err != nil {
		return info, err
	}

	var mappings map[string]struct {
		Mappings struct {
			Properties map[string]struct {
				Type string `json:"type"`
			} `json:"properties"`
		} `json:"mappings"`
	}
	if err := json.NewDecoder(res.Body).Decode(&mappings); err != nil {
		return info, fmt.Errorf("failed to parse mapping: %w", err)
	}
	info.TimeSeries = mappings[index].Mappings.Properties[s.config.TimeSeries.TimeField].Type == "date"

	countRes, err := s.client.Count(
		s.client.Count.WithContext(ctx),
		s.client.Count.WithIndex(index),
	)
	if err != nil {
		return info, fmt.Errorf("failed to count documents: %w", err)
	}
	defer countRes.Body.Close()
	if err := responseError(countRes, "count"); err != nil {
		return info, err
	}

	var count struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(countRes.Body).Decode(&count); err != nil {
		return info, fmt.Errorf("failed to parse count response: %w", err)
	}
	info.Documents = count.Count

	return info, nil
}

// esSearchBody builds a newest-first search bounded by q
func esSearchBody(timeField string, q Query) map[string]any {
	query := map[string]any{"match_all": map[string]any{}}
	if !q.Since.IsZero() {
		query = map[string]any{
			"range": map[string]any{
				timeField: map[string]any{"gte": q.Since.UTC().Format(esTimeLayout)},
			},
		}
	}

	size := maxSearchSize
	if q.Limit > 0 && q.Limit < maxSearchSize {
		size = q.Limit
	}

	return map[string]any{
		"query": query,
		"sort":  []any{map[string]any{timeField: map[string]any{"order": "desc"}}},
		"size":  size,
	}
}

// Find searches the team index, newest first
func (s *ElasticStore) Find(ctx context.Context, team models.Team, q Query) ([]models.Reading, error) {
	index := indexName(team)
	timeField := s.config.TimeSeries.TimeField

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esSearchBody(timeField, q)); err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(index),
		s.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", index, ErrNotFound)
	}
	if err := responseError(res, "search"); err != nil {
		return nil, err
	}

	var result struct {
		Hits struct {
			Hits []struct {
				ID     string          `json:"_id"`
				Source json.RawMessage `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	readings := make([]models.Reading, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		reading := models.Reading{}
		if len(hit.Source) > 0 {
			if reading, err = decodeDocument(hit.Source); err != nil {
				return nil, fmt.Errorf("failed to decode document %s: %w", hit.ID, err)
			}
		}
		reading[models.FieldID] = hit.ID
		if raw, ok := reading[timeField].(string); ok {
			if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
				reading[timeField] = ts
			}
		}
		readings = append(readings, reading)
	}
	return readings, nil
}
