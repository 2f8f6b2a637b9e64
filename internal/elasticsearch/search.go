package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/avasilyev/crawlrag/pkg/models"
)

// Filter narrows a search to one source and/or one owner.
// Empty fields match everything.
type Filter struct {
	SourceID string
	Owner    string
}

func (f Filter) clauses() []map[string]interface{} {
	var clauses []map[string]interface{}
	if f.SourceID != "" {
		clauses = append(clauses, map[string]interface{}{
			"term": map[string]interface{}{"source_id": f.SourceID},
		})
	}
	if f.Owner != "" {
		clauses = append(clauses, map[string]interface{}{
			"term": map[string]interface{}{"owner": f.Owner},
		})
	}
	return clauses
}

// VectorSearchDocuments runs a knn search over page chunks. Scores are
// cosine similarities normalized to [0,1].
func (c *Client) VectorSearchDocuments(ctx context.Context, embedding []float32, limit int, filter Filter) ([]models.SearchResult, error) {
	return c.vectorSearch(ctx, c.documents, embedding, limit, filter)
}

// VectorSearchCodeExamples runs a knn search over code examples.
func (c *Client) VectorSearchCodeExamples(ctx context.Context, embedding []float32, limit int, filter Filter) ([]models.SearchResult, error) {
	return c.vectorSearch(ctx, c.code, embedding, limit, filter)
}

func (c *Client) vectorSearch(ctx context.Context, index string, embedding []float32, limit int, filter Filter) ([]models.SearchResult, error) {
	knn := map[string]interface{}{
		"field":          "embedding",
		"query_vector":   embedding,
		"k":              limit,
		"num_candidates": limit * 4,
	}
	if clauses := filter.clauses(); len(clauses) > 0 {
		knn["filter"] = map[string]interface{}{
			"bool": map[string]interface{}{"must": clauses},
		}
	}

	body := map[string]interface{}{
		"knn":  knn,
		"size": limit,
	}

	return c.searchContent(ctx, index, body)
}

// KeywordSearchDocuments runs a phrase search over page chunk content.
// The field is analyzed, so matching folds case and stems word forms.
func (c *Client) KeywordSearchDocuments(ctx context.Context, query string, limit int, filter Filter) ([]models.SearchResult, error) {
	return c.keywordSearch(ctx, c.documents, []string{"content"}, query, limit, filter)
}

// KeywordSearchCodeExamples runs a phrase search over code example
// content and summaries.
func (c *Client) KeywordSearchCodeExamples(ctx context.Context, query string, limit int, filter Filter) ([]models.SearchResult, error) {
	return c.keywordSearch(ctx, c.code, []string{"content", "summary"}, query, limit, filter)
}

// keywordSearch matches the query as a phrase against the analyzed
// fields. match_phrase runs the query through the same analyzer as the
// indexed text, so multi-word queries match in order and stemmed
// variants still hit; a term-level query over an analyzed field would
// only ever see individual stemmed tokens.
func (c *Client) keywordSearch(ctx context.Context, index string, fields []string, query string, limit int, filter Filter) ([]models.SearchResult, error) {
	should := make([]map[string]interface{}, len(fields))
	for i, field := range fields {
		should[i] = map[string]interface{}{
			"match_phrase": map[string]interface{}{
				field: query,
			},
		}
	}

	boolQuery := map[string]interface{}{
		"should":               should,
		"minimum_should_match": 1,
	}
	if clauses := filter.clauses(); len(clauses) > 0 {
		boolQuery["filter"] = clauses
	}

	body := map[string]interface{}{
		"query": map[string]interface{}{"bool": boolQuery},
		"size":  limit,
	}

	return c.searchContent(ctx, index, body)
}

// contentHit is the _source shape shared by both content indices.
// Summary is set only for code examples.
type contentHit struct {
	ID       string          `json:"id"`
	URL      string          `json:"url"`
	Content  string          `json:"content"`
	Summary  string          `json:"summary"`
	Metadata models.Metadata `json:"metadata"`
	SourceID string          `json:"source_id"`
}

func (c *Client) searchContent(ctx context.Context, index string, body map[string]interface{}) ([]models.SearchResult, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(index),
		c.es.Search.WithBody(bytes.NewReader(data)),
	)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search error: %s", res.String())
	}

	var sr struct {
		Hits struct {
			Hits []struct {
				Score  float64    `json:"_score"`
				Source contentHit `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	results := make([]models.SearchResult, len(sr.Hits.Hits))
	for i, hit := range sr.Hits.Hits {
		metadata := hit.Source.Metadata
		if hit.Source.Summary != "" {
			if metadata == nil {
				metadata = models.Metadata{}
			}
			metadata["summary"] = hit.Source.Summary
		}
		results[i] = models.SearchResult{
			ID:         hit.Source.ID,
			URL:        hit.Source.URL,
			Content:    hit.Source.Content,
			Metadata:   metadata,
			SourceID:   hit.Source.SourceID,
			Similarity: hit.Score,
		}
	}

	return results, nil
}
