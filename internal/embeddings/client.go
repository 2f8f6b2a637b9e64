// Package embeddings produces fixed-dimension vectors for chunks,
// batching provider calls and degrading to zero-vector sentinels when
// the provider is unavailable.
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/avasilyev/crawlrag/internal/retry"
)

// Dimensions is the fixed embedding dimensionality across the system.
const Dimensions = 1024

// Config holds embeddings client configuration.
type Config struct {
	Endpoint   string // base URL of an OpenAI-compatible API
	APIKey     string
	Model      string
	Dimensions int
	Retry      retry.Policy
}

// Client wraps the batch embeddings API.
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	model      string
	dimensions int
	retry      retry.Policy
}

// New creates a new embeddings client.
func New(config Config) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if config.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if config.Dimensions == 0 {
		config.Dimensions = Dimensions
	}
	if config.Retry.MaxAttempts == 0 {
		config.Retry = retry.Default()
	}

	return &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		endpoint:   strings.TrimSuffix(config.Endpoint, "/"),
		apiKey:     config.APIKey,
		model:      config.Model,
		dimensions: config.Dimensions,
		retry:      config.Retry,
	}, nil
}

// Dimensions returns the configured vector dimensionality.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// embeddingRequest is the request payload for the embeddings API.
type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

// embeddingResponse is the response from the embeddings API.
type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// EmbedBatch embeds texts, preserving input order. It never fails:
// the batch call is retried per the policy, then falls back to
// per-item calls, and any slot that still cannot be embedded is
// filled with a zero vector (the "embedding unavailable" sentinel).
func (c *Client) EmbedBatch(ctx context.Context, texts []string) [][]float32 {
	if len(texts) == 0 {
		return nil
	}

	var vectors [][]float32
	err := c.retry.Do(ctx, func() error {
		var callErr error
		vectors, callErr = c.call(ctx, texts)
		return callErr
	})
	if err == nil {
		return c.padMissing(vectors, len(texts))
	}

	slog.Warn("batch embedding failed, falling back to per-item calls",
		"batch_size", len(texts), "error", err)

	vectors = make([][]float32, len(texts))
	succeeded := 0
	for i, text := range texts {
		vec, err := c.EmbedOne(ctx, text)
		if err != nil {
			slog.Debug("individual embedding failed", "index", i, "error", err)
			vectors[i] = c.zeroVector()
			continue
		}
		vectors[i] = vec
		succeeded++
	}

	slog.Info("per-item embedding fallback complete",
		"succeeded", succeeded, "failed", len(texts)-succeeded)

	return vectors
}

// EmbedOne embeds a single text. Unlike EmbedBatch, failures are
// returned so callers can decide on the fallback.
func (c *Client) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.call(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || vectors[0] == nil {
		return nil, fmt.Errorf("no embedding returned")
	}
	return vectors[0], nil
}

// call performs one embeddings API request. The returned slice is
// aligned with the input order via the response index field; missing
// slots stay nil.
func (c *Client) call(ctx context.Context, texts []string) ([][]float32, error) {
	req := embeddingRequest{
		Model:      c.model,
		Input:      texts,
		Dimensions: c.dimensions,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, respBody)
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(respBody, &embResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if embResp.Error != nil {
		return nil, fmt.Errorf("API error: %s", embResp.Error.Message)
	}
	if len(embResp.Data) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}

	vectors := make([][]float32, len(texts))
	for _, item := range embResp.Data {
		if item.Index >= 0 && item.Index < len(vectors) {
			vectors[item.Index] = item.Embedding
		}
	}

	return vectors, nil
}

// padMissing fills nil slots with zero vectors when the provider
// returned fewer items than requested.
func (c *Client) padMissing(vectors [][]float32, want int) [][]float32 {
	if len(vectors) < want {
		padded := make([][]float32, want)
		copy(padded, vectors)
		vectors = padded
	}
	missing := 0
	for i, v := range vectors {
		if v == nil {
			vectors[i] = c.zeroVector()
			missing++
		}
	}
	if missing > 0 {
		slog.Warn("provider returned fewer embeddings than requested",
			"missing", missing, "requested", want)
	}
	return vectors
}

// zeroVector returns the "embedding unavailable" sentinel.
func (c *Client) zeroVector() []float32 {
	return make([]float32, c.dimensions)
}

// IsZeroVector reports whether v is the unavailable-embedding sentinel.
func IsZeroVector(v []float32) bool {
	if len(v) == 0 {
		return true
	}
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// contextSeparator joins the situating sentence and the chunk in the
// stored content form.
const contextSeparator = "\n---\n"

// maxDocumentPrefix bounds how much of the full document is offered to
// the model when situating a chunk.
const maxDocumentPrefix = 25000

// Situator produces a short sentence locating a chunk within its
// source document.
type Situator interface {
	SituatingContext(ctx context.Context, fullDocument, chunk string) (string, error)
}

// ContextualizeChunk prepends an LLM-generated situating sentence to
// the chunk. The second return value reports whether contextualization
// succeeded; on failure the original chunk is returned unchanged.
func ContextualizeChunk(ctx context.Context, situator Situator, fullDocument, chunk string) (string, bool) {
	if situator == nil {
		return chunk, false
	}

	prefix := fullDocument
	if len(prefix) > maxDocumentPrefix {
		prefix = prefix[:maxDocumentPrefix]
	}

	situating, err := situator.SituatingContext(ctx, prefix, chunk)
	if err != nil || situating == "" {
		slog.Debug("contextualization failed, using raw chunk", "error", err)
		return chunk, false
	}

	return situating + contextSeparator + chunk, true
}
