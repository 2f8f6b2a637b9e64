// Package elasticsearch wraps the persistent store: crawled page
// chunks, code examples, and per-source aggregates, with vector and
// keyword retrieval over the content indices.
package elasticsearch

import (
	"bytes"
	"context"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/avasilyev/crawlrag/internal/retry"
)

// Config holds Elasticsearch client configuration.
type Config struct {
	Addresses      []string
	Username       string
	Password       string
	DocumentsIndex string
	CodeIndex      string
	SourcesIndex   string
	Dimensions     int
	Retry          retry.Policy
}

// Client wraps the Elasticsearch client with store operations.
type Client struct {
	es         *elasticsearch.Client
	documents  string
	code       string
	sources    string
	dimensions int
	retry      retry.Policy
}

// New creates a new Elasticsearch client.
func New(config Config) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: config.Addresses,
		Username:  config.Username,
		Password:  config.Password,
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create ES client: %w", err)
	}

	if config.DocumentsIndex == "" {
		config.DocumentsIndex = "crawled_pages"
	}
	if config.CodeIndex == "" {
		config.CodeIndex = "code_examples"
	}
	if config.SourcesIndex == "" {
		config.SourcesIndex = "sources"
	}
	if config.Dimensions == 0 {
		config.Dimensions = 1024
	}
	if config.Retry.MaxAttempts == 0 {
		config.Retry = retry.Default()
	}

	return &Client{
		es:         es,
		documents:  config.DocumentsIndex,
		code:       config.CodeIndex,
		sources:    config.SourcesIndex,
		dimensions: config.Dimensions,
		retry:      config.Retry,
	}, nil
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) bool {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return false
	}
	defer res.Body.Close()
	return !res.IsError()
}

// contentMapping is the mapping shared by the two content indices.
// The embedding field holds the fixed-dimension chunk vector.
const contentMapping = `{
	"mappings": {
		"properties": {
			"id": { "type": "keyword" },
			"url": { "type": "keyword" },
			"chunk_number": { "type": "integer" },
			"content": { "type": "text", "analyzer": "english" },
			"summary": { "type": "text", "analyzer": "english" },
			"metadata": { "type": "object", "enabled": true },
			"source_id": { "type": "keyword" },
			"owner": { "type": "keyword" },
			"embedding": {
				"type": "dense_vector",
				"dims": %d,
				"index": true,
				"similarity": "cosine"
			}
		}
	}
}`

// sourcesMapping is the mapping for the source aggregate index.
const sourcesMapping = `{
	"mappings": {
		"properties": {
			"source_id": { "type": "keyword" },
			"summary": { "type": "text" },
			"total_word_count": { "type": "integer" },
			"created_at": { "type": "date" },
			"updated_at": { "type": "date" }
		}
	}
}`

// EnsureIndexes creates the three indices if they do not exist.
func (c *Client) EnsureIndexes(ctx context.Context) error {
	content := fmt.Sprintf(contentMapping, c.dimensions)
	for _, idx := range []struct {
		name    string
		mapping string
	}{
		{c.documents, content},
		{c.code, content},
		{c.sources, sourcesMapping},
	} {
		if err := c.ensureIndex(ctx, idx.name, idx.mapping); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) ensureIndex(ctx context.Context, index, mapping string) error {
	res, err := c.es.Indices.Exists([]string{index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index %s: %w", index, err)
	}
	defer res.Body.Close()

	if res.StatusCode == 200 {
		return nil
	}

	res, err = c.es.Indices.Create(
		index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(bytes.NewReader([]byte(mapping))),
	)
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error creating index %s: %s", index, res.String())
	}

	return nil
}

// DeleteIndexes removes all three indices (for testing/cleanup).
func (c *Client) DeleteIndexes(ctx context.Context) error {
	res, err := c.es.Indices.Delete(
		[]string{c.documents, c.code, c.sources},
		c.es.Indices.Delete.WithContext(ctx),
		c.es.Indices.Delete.WithIgnoreUnavailable(true),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	return nil
}

// Refresh forces a refresh of the content indices (useful for testing).
func (c *Client) Refresh(ctx context.Context) error {
	res, err := c.es.Indices.Refresh(
		c.es.Indices.Refresh.WithContext(ctx),
		c.es.Indices.Refresh.WithIndex(c.documents, c.code, c.sources),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	return nil
}
