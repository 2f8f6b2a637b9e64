// Package search implements hybrid retrieval: vector similarity and
// keyword search merged with a preference for items matched by both,
// optionally reordered by a cross-encoder reranker.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/avasilyev/crawlrag/internal/elasticsearch"
	"github.com/avasilyev/crawlrag/pkg/models"
)

const (
	// keywordDefaultSimilarity is assigned to keyword-only hits,
	// which carry no vector score. Policy constant, not derived.
	keywordDefaultSimilarity = 0.5

	// boostMultiplier is applied to hits found by both signals,
	// capped at 1.0.
	boostMultiplier = 1.2
)

// Store is the slice of the persistent store the engine queries.
type Store interface {
	VectorSearchDocuments(ctx context.Context, embedding []float32, limit int, filter elasticsearch.Filter) ([]models.SearchResult, error)
	KeywordSearchDocuments(ctx context.Context, query string, limit int, filter elasticsearch.Filter) ([]models.SearchResult, error)
	VectorSearchCodeExamples(ctx context.Context, embedding []float32, limit int, filter elasticsearch.Filter) ([]models.SearchResult, error)
	KeywordSearchCodeExamples(ctx context.Context, query string, limit int, filter elasticsearch.Filter) ([]models.SearchResult, error)
}

// Embedder turns query text into a vector.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Reranker scores documents against a query, aligned to input order.
type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string) ([]float64, error)
}

// Config controls which retrieval stages run.
type Config struct {
	UseHybridSearch bool
	UseReranking    bool
}

// Options narrow a single query.
type Options struct {
	MatchCount int
	SourceID   string
	Owner      string
}

// Response is the outcome of one search call. RerankApplied is false
// when reranking was disabled or failed.
type Response struct {
	Results       []models.SearchResult
	RerankApplied bool
}

// Engine executes searches against the store. State-free per call.
type Engine struct {
	store    Store
	embedder Embedder
	reranker Reranker
	config   Config
}

// New creates a search engine. reranker may be nil when reranking is
// disabled.
func New(store Store, embedder Embedder, reranker Reranker, config Config) *Engine {
	return &Engine{
		store:    store,
		embedder: embedder,
		reranker: reranker,
		config:   config,
	}
}

// SearchDocuments retrieves page chunks matching the query.
func (e *Engine) SearchDocuments(ctx context.Context, query string, opts Options) (Response, error) {
	return e.search(ctx, query, query, opts,
		e.store.VectorSearchDocuments, e.store.KeywordSearchDocuments)
}

// SearchCodeExamples retrieves code examples matching the query. The
// embedded query is expanded with a templated wrapper because code
// vectors are embedded jointly with their summaries and a bare query
// under-matches that distribution.
func (e *Engine) SearchCodeExamples(ctx context.Context, query string, opts Options) (Response, error) {
	expanded := fmt.Sprintf("Code example for %s\n\nSummary: Example code showing %s", query, query)
	return e.search(ctx, query, expanded, opts,
		e.store.VectorSearchCodeExamples, e.store.KeywordSearchCodeExamples)
}

type vectorFn func(ctx context.Context, embedding []float32, limit int, filter elasticsearch.Filter) ([]models.SearchResult, error)
type keywordFn func(ctx context.Context, query string, limit int, filter elasticsearch.Filter) ([]models.SearchResult, error)

func (e *Engine) search(ctx context.Context, query, embedQuery string, opts Options, vecSearch vectorFn, kwSearch keywordFn) (Response, error) {
	if opts.MatchCount <= 0 {
		opts.MatchCount = 5
	}
	filter := elasticsearch.Filter{SourceID: opts.SourceID, Owner: opts.Owner}

	// Both searches request 2x headroom for the merge.
	candidates := opts.MatchCount * 2

	if !e.config.UseHybridSearch {
		vectorHits, err := e.vectorHits(ctx, embedQuery, candidates, filter, vecSearch)
		if err != nil {
			return Response{}, err
		}
		if len(vectorHits) > opts.MatchCount {
			vectorHits = vectorHits[:opts.MatchCount]
		}
		return e.rerank(ctx, query, vectorHits), nil
	}

	// The keyword leg runs on its own goroutine while this one embeds
	// the query and runs the vector leg.
	type keywordResult struct {
		hits []models.SearchResult
		err  error
	}
	keywordCh := make(chan keywordResult, 1)
	go func() {
		hits, err := kwSearch(ctx, query, candidates, filter)
		keywordCh <- keywordResult{hits: hits, err: err}
	}()

	vectorHits, vecErr := e.vectorHits(ctx, embedQuery, candidates, filter, vecSearch)
	keyword := <-keywordCh
	if keyword.err != nil {
		if vecErr != nil {
			return Response{}, fmt.Errorf("keyword search failed: %w", keyword.err)
		}
		slog.Warn("keyword search failed, using vector results only", "error", keyword.err)
	}

	return e.rerank(ctx, query, merge(vectorHits, keyword.hits, opts.MatchCount)), nil
}

// vectorHits embeds the query and runs the vector search. An embedding
// failure yields no vector hits rather than failing the call; in
// hybrid mode keyword results still serve the query.
func (e *Engine) vectorHits(ctx context.Context, embedQuery string, limit int, filter elasticsearch.Filter, vecSearch vectorFn) ([]models.SearchResult, error) {
	embedding, err := e.embedder.EmbedOne(ctx, embedQuery)
	if err != nil {
		slog.Warn("failed to embed query", "error", err)
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := vecSearch(ctx, embedding, limit, filter)
	if err != nil {
		slog.Warn("vector search failed", "error", err)
		return nil, err
	}
	return hits, nil
}

// merge combines vector and keyword hits. Items found by both signals
// come first with a boosted vector similarity, then vector-only hits
// in score order, then keyword-only hits at the default similarity.
// No id appears twice; the result never exceeds matchCount.
func merge(vectorHits, keywordHits []models.SearchResult, matchCount int) []models.SearchResult {
	vectorByID := make(map[string]models.SearchResult, len(vectorHits))
	for _, hit := range vectorHits {
		vectorByID[hit.ID] = hit
	}

	seen := make(map[string]bool)
	merged := make([]models.SearchResult, 0, matchCount)

	for _, kw := range keywordHits {
		if len(merged) >= matchCount {
			break
		}
		vec, ok := vectorByID[kw.ID]
		if !ok || seen[kw.ID] {
			continue
		}
		vec.Similarity = vec.Similarity * boostMultiplier
		if vec.Similarity > 1.0 {
			vec.Similarity = 1.0
		}
		merged = append(merged, vec)
		seen[kw.ID] = true
	}

	for _, vec := range vectorHits {
		if len(merged) >= matchCount {
			break
		}
		if seen[vec.ID] {
			continue
		}
		merged = append(merged, vec)
		seen[vec.ID] = true
	}

	for _, kw := range keywordHits {
		if len(merged) >= matchCount {
			break
		}
		if seen[kw.ID] {
			continue
		}
		kw.Similarity = keywordDefaultSimilarity
		merged = append(merged, kw)
		seen[kw.ID] = true
	}

	return merged
}

// rerank reorders results by cross-encoder relevance. Failure is
// non-fatal: the merge order is returned unchanged with
// RerankApplied false.
func (e *Engine) rerank(ctx context.Context, query string, results []models.SearchResult) Response {
	if !e.config.UseReranking || e.reranker == nil || len(results) == 0 {
		return Response{Results: results}
	}

	documents := make([]string, len(results))
	for i, r := range results {
		documents[i] = r.Content
	}

	scores, err := e.reranker.Rerank(ctx, query, documents)
	if err != nil || len(scores) != len(results) {
		slog.Warn("reranking failed, keeping merge order", "error", err)
		return Response{Results: results}
	}

	for i := range results {
		score := scores[i]
		results[i].RerankScore = &score
	}
	sort.SliceStable(results, func(i, j int) bool {
		return *results[i].RerankScore > *results[j].RerankScore
	})

	return Response{Results: results, RerankApplied: true}
}
