package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/DeafMist/keyword-radar/internal/logger"
	"github.com/DeafMist/keyword-radar/internal/models"
	"github.com/DeafMist/keyword-radar/internal/processing"
	"github.com/DeafMist/keyword-radar/internal/store"
)

const (
	diffIndexSuffix = "-diffs"
	maxDates        = 10000
	maxRoots        = 10000
	deleteBatchSize = 1000
)

var snapshotMapping = `{
  "mappings": {
    "properties": {
      "root":        {"type": "keyword"},
      "date":        {"type": "date", "format": "yyyy-MM-dd"},
      "suggestions": {"type": "keyword"},
      "created_at":  {"type": "date"}
    }
  }
}`

var diffMapping = `{
  "mappings": {
    "properties": {
      "root":                 {"type": "keyword"},
      "current_date":         {"type": "date", "format": "yyyy-MM-dd"},
      "previous_date":        {"type": "date", "format": "yyyy-MM-dd"},
      "new_keywords":         {"type": "keyword"},
      "disappeared_keywords": {"type": "keyword"},
      "created_at":           {"type": "date"}
    }
  }
}`

// Client stores snapshots in one index and diffs in "<index>-diffs".
// Documents are keyed by a hash of (root, date), so re-indexing the same day overwrites.
type Client struct {
	es        *elasticsearch.Client
	index     string
	diffIndex string
	log       *slog.Logger
}

var _ store.Store = (*Client)(nil)

// New instantiates the Elasticsearch client.
func New(addr, index string, log *slog.Logger) (*Client, error) {
	return NewWithConfig(elasticsearch.Config{Addresses: []string{addr}}, index, log)
}

// NewWithConfig is New with a full client configuration.
func NewWithConfig(cfg elasticsearch.Config, index string, log *slog.Logger) (*Client, error) {
	if index == "" {
		return nil, errors.New("elasticsearch index is required")
	}
	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	return &Client{es: es, index: index, diffIndex: index + diffIndexSuffix, log: logger.OrDiscard(log)}, nil
}

// Health reports cluster health for the snapshot indices. A red status is an error.
func (c *Client) Health(ctx context.Context) error {
	res, err := c.es.Cluster.Health(
		c.es.Cluster.Health.WithContext(ctx),
		c.es.Cluster.Health.WithIndex(c.index, c.diffIndex),
	)
	if err != nil {
		return fmt.Errorf("cluster health: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("cluster health bad: %s", strings.TrimSpace(string(data)))
	}

	var health struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(res.Body).Decode(&health); err != nil {
		return fmt.Errorf("decode cluster health: %w", err)
	}
	if health.Status == "red" {
		return errors.New("snapshot indices are red")
	}
	return nil
}

// EnsureIndices creates the snapshot and diff indices when they are missing.
func (c *Client) EnsureIndices(ctx context.Context) error {
	for index, mapping := range map[string]string{c.index: snapshotMapping, c.diffIndex: diffMapping} {
		res, err := c.es.Indices.Exists([]string{index}, c.es.Indices.Exists.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("check index %s: %w", index, err)
		}
		res.Body.Close()
		if res.StatusCode == http.StatusOK {
			continue
		}

		res, err = c.es.Indices.Create(index,
			c.es.Indices.Create.WithContext(ctx),
			c.es.Indices.Create.WithBody(strings.NewReader(mapping)),
		)
		if err != nil {
			return fmt.Errorf("create index %s: %w", index, err)
		}
		if err := drainError(res, "create index "+index); err != nil {
			return err
		}
		c.log.Info("created index", slog.String("index", index))
	}
	return nil
}

func (c *Client) Put(ctx context.Context, snap models.Snapshot) error {
	if err := store.CheckKey(snap.Root, snap.Date); err != nil {
		return err
	}
	return c.indexDoc(ctx, c.index, processing.SnapshotID(snap.Root, snap.Date), snap)
}

func (c *Client) Get(ctx context.Context, root, date string) (models.Snapshot, error) {
	var snap models.Snapshot
	if err := store.CheckKey(root, date); err != nil {
		return snap, err
	}
	err := c.getDoc(ctx, c.index, processing.SnapshotID(root, date), &snap)
	return snap, err
}

func (c *Client) MostRecentBefore(ctx context.Context, root, date string) (models.Snapshot, error) {
	if err := store.CheckKey(root, date); err != nil {
		return models.Snapshot{}, err
	}
	return c.newest(ctx, root, map[string]any{
		"range": map[string]any{"date": map[string]any{"lt": date}},
	})
}

func (c *Client) Latest(ctx context.Context, root string) (models.Snapshot, error) {
	return c.newest(ctx, root)
}

func (c *Client) newest(ctx context.Context, root string, extra ...map[string]any) (models.Snapshot, error) {
	var snap models.Snapshot
	body := map[string]any{
		"size":  1,
		"query": boolFilter(append([]map[string]any{termRoot(root)}, extra...)...),
		"sort":  []map[string]any{{"date": map[string]any{"order": "desc"}}},
	}
	parsed, err := c.search(ctx, c.index, body)
	if err != nil {
		return snap, err
	}
	if len(parsed.Hits.Hits) == 0 {
		return snap, store.ErrNotFound
	}
	if err := json.Unmarshal(parsed.Hits.Hits[0].Source, &snap); err != nil {
		return snap, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

func (c *Client) ListDates(ctx context.Context, root string) ([]string, error) {
	body := map[string]any{
		"size":    maxDates,
		"_source": []string{"date"},
		"query":   boolFilter(termRoot(root)),
		"sort":    []map[string]any{{"date": map[string]any{"order": "asc"}}},
	}
	parsed, err := c.search(ctx, c.index, body)
	if err != nil {
		return nil, err
	}
	dates := make([]string, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		var doc struct {
			Date string `json:"date"`
		}
		if err := json.Unmarshal(hit.Source, &doc); err != nil {
			return nil, fmt.Errorf("decode date: %w", err)
		}
		dates = append(dates, doc.Date)
	}
	sort.Strings(dates)
	return dates, nil
}

// DeleteOlderThan removes documents dated before cutoff using batched delete-by-query.
// The newest snapshot of the root and its diff are excluded from the query.
func (c *Client) DeleteOlderThan(ctx context.Context, root, cutoff string) (int, error) {
	if _, err := models.ParseDate(cutoff); err != nil {
		return 0, fmt.Errorf("invalid cutoff %q: %w", cutoff, err)
	}
	latest, err := c.Latest(ctx, root)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	deleted, err := c.deleteByQuery(ctx, c.index, "date", root, cutoff, latest.Date)
	if err != nil {
		return int(deleted), err
	}
	if _, err := c.deleteByQuery(ctx, c.diffIndex, "current_date", root, cutoff, latest.Date); err != nil {
		return int(deleted), err
	}
	if deleted > 0 {
		c.log.Info("removed expired snapshots", slog.String("root", root), slog.Int64("count", deleted))
	}
	return int(deleted), nil
}

// deleteByQuery loops until a batch returns fewer deleted documents than the scroll size.
func (c *Client) deleteByQuery(ctx context.Context, index, field, root, cutoff, keep string) (int64, error) {
	body := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []map[string]any{
					termRoot(root),
					{"range": map[string]any{field: map[string]any{"lt": cutoff}}},
				},
				"must_not": []map[string]any{
					{"term": map[string]any{field: keep}},
				},
			},
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("marshal delete body: %w", err)
	}

	totalDeleted := int64(0)
	for {
		res, err := c.es.DeleteByQuery(
			[]string{index},
			bytes.NewReader(payload),
			c.es.DeleteByQuery.WithContext(ctx),
			c.es.DeleteByQuery.WithWaitForCompletion(true),
			c.es.DeleteByQuery.WithConflicts("proceed"),
			c.es.DeleteByQuery.WithScrollSize(deleteBatchSize),
			c.es.DeleteByQuery.WithRefresh(true),
			c.es.DeleteByQuery.WithIgnoreUnavailable(true),
		)
		if err != nil {
			return totalDeleted, fmt.Errorf("delete by query: %w", err)
		}

		if res.IsError() {
			data, _ := io.ReadAll(res.Body)
			res.Body.Close()
			return totalDeleted, fmt.Errorf("delete by query failed: %s", strings.TrimSpace(string(data)))
		}

		var parsed struct {
			Deleted int64 `json:"deleted"`
		}
		if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
			res.Body.Close()
			return totalDeleted, fmt.Errorf("decode delete response: %w", err)
		}
		res.Body.Close()

		totalDeleted += parsed.Deleted
		if parsed.Deleted < deleteBatchSize {
			break
		}
	}
	return totalDeleted, nil
}

// Roots lists every root that has at least one snapshot.
func (c *Client) Roots(ctx context.Context) ([]string, error) {
	body := map[string]any{
		"size": 0,
		"aggs": map[string]any{
			"roots": map[string]any{
				"terms": map[string]any{"field": "root", "size": maxRoots},
			},
		},
	}
	parsed, err := c.search(ctx, c.index, body)
	if err != nil {
		return nil, err
	}
	roots := make([]string, 0, len(parsed.Aggregations.Roots.Buckets))
	for _, b := range parsed.Aggregations.Roots.Buckets {
		roots = append(roots, b.Key)
	}
	sort.Strings(roots)
	return roots, nil
}

func (c *Client) PutDiff(ctx context.Context, d models.Diff) error {
	if err := store.CheckKey(d.Root, d.CurrentDate); err != nil {
		return err
	}
	return c.indexDoc(ctx, c.diffIndex, processing.SnapshotID(d.Root, d.CurrentDate), d)
}

func (c *Client) GetDiff(ctx context.Context, root, date string) (models.Diff, error) {
	var d models.Diff
	if err := store.CheckKey(root, date); err != nil {
		return d, err
	}
	err := c.getDoc(ctx, c.diffIndex, processing.SnapshotID(root, date), &d)
	return d, err
}

// Close is a no-op; the HTTP transport has nothing to release.
func (c *Client) Close() error {
	return nil
}

func (c *Client) indexDoc(ctx context.Context, index, id string, doc any) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal doc: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      index,
		DocumentID: id,
		Body:       bytes.NewReader(payload),
		Refresh:    "wait_for",
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("index doc: %w", err)
	}
	return drainError(res, "index doc")
}

func (c *Client) getDoc(ctx context.Context, index, id string, v any) error {
	res, err := c.es.Get(index, id, c.es.Get.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("get doc: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return store.ErrNotFound
	}
	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("get doc failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Found  bool            `json:"found"`
		Source json.RawMessage `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode get response: %w", err)
	}
	if !parsed.Found {
		return store.ErrNotFound
	}
	if err := json.Unmarshal(parsed.Source, v); err != nil {
		return fmt.Errorf("decode source: %w", err)
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
	Aggregations struct {
		Roots struct {
			Buckets []struct {
				Key string `json:"key"`
			} `json:"buckets"`
		} `json:"roots"`
	} `json:"aggregations"`
}

// search runs body against index. A missing index reads as an empty result.
func (c *Client) search(ctx context.Context, index string, body map[string]any) (searchResponse, error) {
	var parsed searchResponse
	payload, err := json.Marshal(body)
	if err != nil {
		return parsed, fmt.Errorf("marshal search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return parsed, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return parsed, nil
	}
	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return parsed, fmt.Errorf("search failed: %s", strings.TrimSpace(string(data)))
	}

	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return parsed, fmt.Errorf("decode search response: %w", err)
	}
	return parsed, nil
}

func drainError(res *esapi.Response, op string) error {
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("%s failed: %s", op, strings.TrimSpace(string(body)))
	}
	return nil
}

func termRoot(root string) map[string]any {
	return map[string]any{"term": map[string]any{"root": root}}
}

func boolFilter(filters ...map[string]any) map[string]any {
	return map[string]any{"bool": map[string]any{"filter": filters}}
}
