package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/avasilyev/crawlrag/pkg/models"
)

// insertBatchSize is the number of records per bulk request.
const insertBatchSize = 20

// ReplaceDocuments removes every stored chunk for the given URLs and
// inserts the new documents. Deletion failures are logged and do not
// abort the insert; stale rows for a URL are replaced on the next run.
// The returned count is the number of records actually stored, which
// is meaningful even when an error reports the remainder.
func (c *Client) ReplaceDocuments(ctx context.Context, urls []string, docs []models.StoredDocument) (int, error) {
	c.deleteByURLs(ctx, c.documents, urls)

	records := make([]bulkRecord, len(docs))
	for i, doc := range docs {
		records[i] = bulkRecord{id: doc.ID, doc: doc}
	}
	return c.bulkInsert(ctx, c.documents, records)
}

// ReplaceCodeExamples removes every stored code example for the given
// URLs and inserts the new ones. Returns the number actually stored.
func (c *Client) ReplaceCodeExamples(ctx context.Context, urls []string, examples []models.CodeExample) (int, error) {
	c.deleteByURLs(ctx, c.code, urls)

	records := make([]bulkRecord, len(examples))
	for i, ex := range examples {
		records[i] = bulkRecord{id: ex.ID, doc: ex}
	}
	return c.bulkInsert(ctx, c.code, records)
}

// deleteByURLs removes all records for the given URLs. It first tries a
// single delete-by-query over the whole set, then falls back to per-URL
// deletes. Failures are non-fatal: inserted records carry deterministic
// IDs, so re-runs overwrite what deletion missed.
func (c *Client) deleteByURLs(ctx context.Context, index string, urls []string) {
	if len(urls) == 0 {
		return
	}

	if err := c.deleteQuery(ctx, index, urls); err == nil {
		return
	}

	for _, u := range urls {
		if err := c.deleteQuery(ctx, index, []string{u}); err != nil {
			slog.Warn("failed to delete existing records", "index", index, "url", u, "error", err)
		}
	}
}

func (c *Client) deleteQuery(ctx context.Context, index string, urls []string) error {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"terms": map[string]interface{}{
				"url": urls,
			},
		},
	}

	data, err := json.Marshal(query)
	if err != nil {
		return fmt.Errorf("failed to marshal delete query: %w", err)
	}

	res, err := c.es.DeleteByQuery(
		[]string{index},
		bytes.NewReader(data),
		c.es.DeleteByQuery.WithContext(ctx),
		c.es.DeleteByQuery.WithConflicts("proceed"),
	)
	if err != nil {
		return fmt.Errorf("delete by query failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("delete by query error: %s", res.String())
	}

	return nil
}

// bulkRecord pairs a document ID with its JSON-marshalable body.
type bulkRecord struct {
	id  string
	doc interface{}
}

// bulkInsert writes records in fixed-size batches. Each batch is
// retried with exponential backoff; a batch that still fails falls
// back to indexing its records one at a time so a single bad record
// cannot sink its batch. Returns how many records were stored; when
// some fail the count and the error describe the same split.
func (c *Client) bulkInsert(ctx context.Context, index string, records []bulkRecord) (int, error) {
	var failed int
	for start := 0; start < len(records); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		err := c.retry.Do(ctx, func() error {
			return c.bulkBatch(ctx, index, batch)
		})
		if err == nil {
			continue
		}

		slog.Warn("bulk insert failed, retrying records individually",
			"index", index, "batch_size", len(batch), "error", err)
		for _, rec := range batch {
			if err := c.indexOne(ctx, index, rec); err != nil {
				slog.Error("failed to index record", "index", index, "id", rec.id, "error", err)
				failed++
			}
		}
	}

	if failed > 0 {
		return len(records) - failed, fmt.Errorf("failed to index %d of %d records", failed, len(records))
	}
	return len(records), nil
}

func (c *Client) bulkBatch(ctx context.Context, index string, batch []bulkRecord) error {
	var buf bytes.Buffer
	for _, rec := range batch {
		action := map[string]interface{}{
			"index": map[string]interface{}{"_id": rec.id},
		}
		meta, err := json.Marshal(action)
		if err != nil {
			return fmt.Errorf("failed to marshal bulk action: %w", err)
		}
		body, err := json.Marshal(rec.doc)
		if err != nil {
			return fmt.Errorf("failed to marshal record %s: %w", rec.id, err)
		}
		buf.Write(meta)
		buf.WriteByte('\n')
		buf.Write(body)
		buf.WriteByte('\n')
	}

	res, err := c.es.Bulk(
		bytes.NewReader(buf.Bytes()),
		c.es.Bulk.WithContext(ctx),
		c.es.Bulk.WithIndex(index),
	)
	if err != nil {
		return fmt.Errorf("bulk request failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("bulk error: %s", res.String())
	}

	var br struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int    `json:"status"`
			Error  *struct {
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&br); err != nil {
		return fmt.Errorf("failed to decode bulk response: %w", err)
	}
	if br.Errors {
		for _, item := range br.Items {
			for _, op := range item {
				if op.Error != nil {
					return fmt.Errorf("bulk item failed (status %d): %s", op.Status, op.Error.Reason)
				}
			}
		}
		return fmt.Errorf("bulk request reported errors")
	}

	return nil
}

func (c *Client) indexOne(ctx context.Context, index string, rec bulkRecord) error {
	data, err := json.Marshal(rec.doc)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	res, err := c.es.Index(
		index,
		bytes.NewReader(data),
		c.es.Index.WithContext(ctx),
		c.es.Index.WithDocumentID(rec.id),
	)
	if err != nil {
		return fmt.Errorf("failed to index record: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error indexing record (status %d): %s", res.StatusCode, res.String())
	}

	return nil
}

// UpsertSource creates or updates the aggregate record for a source.
// CreatedAt is preserved on update; UpdatedAt always moves forward.
func (c *Client) UpsertSource(ctx context.Context, sourceID, summary string, wordCount int) error {
	existing, err := c.getSource(ctx, sourceID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	record := models.SourceRecord{
		SourceID:       sourceID,
		Summary:        summary,
		TotalWordCount: wordCount,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if existing != nil {
		record.CreatedAt = existing.CreatedAt
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal source record: %w", err)
	}

	res, err := c.es.Index(
		c.sources,
		bytes.NewReader(data),
		c.es.Index.WithContext(ctx),
		c.es.Index.WithDocumentID(sourceID),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert source: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error upserting source (status %d): %s", res.StatusCode, res.String())
	}

	return nil
}

func (c *Client) getSource(ctx context.Context, sourceID string) (*models.SourceRecord, error) {
	res, err := c.es.Get(c.sources, sourceID, c.es.Get.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("get source failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == 404 {
		return nil, nil
	}
	if res.IsError() {
		return nil, fmt.Errorf("get source error: %s", res.String())
	}

	var gr struct {
		Found  bool                `json:"found"`
		Source models.SourceRecord `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&gr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if !gr.Found {
		return nil, nil
	}

	return &gr.Source, nil
}

// GetSources returns all source records ordered by source ID.
func (c *Client) GetSources(ctx context.Context) ([]models.SourceRecord, error) {
	query := map[string]interface{}{
		"query": map[string]interface{}{"match_all": map[string]interface{}{}},
		"sort":  []map[string]interface{}{{"source_id": map[string]interface{}{"order": "asc"}}},
		"size":  1000,
	}

	data, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.sources),
		c.es.Search.WithBody(bytes.NewReader(data)),
	)
	if err != nil {
		return nil, fmt.Errorf("sources search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("sources search error: %s", res.String())
	}

	var sr struct {
		Hits struct {
			Hits []struct {
				Source models.SourceRecord `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	sources := make([]models.SourceRecord, len(sr.Hits.Hits))
	for i, hit := range sr.Hits.Hits {
		sources[i] = hit.Source
	}

	return sources, nil
}
