package search

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/avasilyev/crawlrag/internal/elasticsearch"
	"github.com/avasilyev/crawlrag/pkg/models"
)

type fakeStore struct {
	vectorHits  []models.SearchResult
	keywordHits []models.SearchResult
	vectorErr   error
	keywordErr  error

	lastKeywordQuery string
	lastLimit        int
	lastFilter       elasticsearch.Filter
}

func (s *fakeStore) VectorSearchDocuments(ctx context.Context, embedding []float32, limit int, filter elasticsearch.Filter) ([]models.SearchResult, error) {
	s.lastLimit = limit
	s.lastFilter = filter
	return s.vectorHits, s.vectorErr
}

func (s *fakeStore) KeywordSearchDocuments(ctx context.Context, query string, limit int, filter elasticsearch.Filter) ([]models.SearchResult, error) {
	s.lastKeywordQuery = query
	return s.keywordHits, s.keywordErr
}

func (s *fakeStore) VectorSearchCodeExamples(ctx context.Context, embedding []float32, limit int, filter elasticsearch.Filter) ([]models.SearchResult, error) {
	return s.vectorHits, s.vectorErr
}

func (s *fakeStore) KeywordSearchCodeExamples(ctx context.Context, query string, limit int, filter elasticsearch.Filter) ([]models.SearchResult, error) {
	s.lastKeywordQuery = query
	return s.keywordHits, s.keywordErr
}

type fakeEmbedder struct {
	lastText string
	err      error
}

func (e *fakeEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	e.lastText = text
	if e.err != nil {
		return nil, e.err
	}
	return []float32{1, 0, 0, 0}, nil
}

type fakeReranker struct {
	scores []float64
	err    error
	calls  int
}

func (r *fakeReranker) Rerank(ctx context.Context, query string, documents []string) ([]float64, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.scores[:len(documents)], nil
}

func hit(id string, similarity float64) models.SearchResult {
	return models.SearchResult{ID: id, URL: "https://example.com/" + id, Content: "content " + id, Similarity: similarity}
}

func ids(results []models.SearchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

func TestEngine_HybridMerge(t *testing.T) {
	// 4 vector hits and 3 keyword hits sharing 2 ids, matchCount 5:
	// the 2 shared (boosted) first, then the remaining hits in order.
	store := &fakeStore{
		vectorHits:  []models.SearchResult{hit("a", 0.9), hit("b", 0.8), hit("c", 0.7), hit("d", 0.6)},
		keywordHits: []models.SearchResult{hit("b", 0), hit("d", 0), hit("e", 0)},
	}
	engine := New(store, &fakeEmbedder{}, nil, Config{UseHybridSearch: true})

	resp, err := engine.SearchDocuments(context.Background(), "query", Options{MatchCount: 5})
	if err != nil {
		t.Fatalf("SearchDocuments() error = %v", err)
	}

	got := ids(resp.Results)
	want := []string{"b", "d", "a", "c", "e"}
	if len(got) != len(want) {
		t.Fatalf("got %d results %v, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("result order = %v, want %v", got, want)
		}
	}

	// Shared hits carry boosted vector similarity.
	if sim := resp.Results[0].Similarity; sim < 0.95 || sim > 0.97 {
		t.Errorf("boosted similarity for b = %v, want 0.8*1.2=0.96", sim)
	}
	// Keyword-only hits get the fixed default.
	if sim := resp.Results[4].Similarity; sim != 0.5 {
		t.Errorf("keyword-only similarity = %v, want 0.5", sim)
	}
	// Both searches requested 2x headroom.
	if store.lastLimit != 10 {
		t.Errorf("vector search limit = %d, want 10", store.lastLimit)
	}
}

func TestEngine_BoostCappedAtOne(t *testing.T) {
	store := &fakeStore{
		vectorHits:  []models.SearchResult{hit("a", 0.95)},
		keywordHits: []models.SearchResult{hit("a", 0)},
	}
	engine := New(store, &fakeEmbedder{}, nil, Config{UseHybridSearch: true})

	resp, err := engine.SearchDocuments(context.Background(), "query", Options{MatchCount: 5})
	if err != nil {
		t.Fatalf("SearchDocuments() error = %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("got %d results, want 1", len(resp.Results))
	}
	if resp.Results[0].Similarity != 1.0 {
		t.Errorf("boosted similarity = %v, want capped 1.0", resp.Results[0].Similarity)
	}
}

func TestEngine_MatchCountEnforced(t *testing.T) {
	store := &fakeStore{
		vectorHits:  []models.SearchResult{hit("a", 0.9), hit("b", 0.8), hit("c", 0.7)},
		keywordHits: []models.SearchResult{hit("a", 0), hit("x", 0), hit("y", 0)},
	}
	engine := New(store, &fakeEmbedder{}, nil, Config{UseHybridSearch: true})

	resp, err := engine.SearchDocuments(context.Background(), "query", Options{MatchCount: 2})
	if err != nil {
		t.Fatalf("SearchDocuments() error = %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(resp.Results))
	}

	seen := map[string]bool{}
	for _, r := range resp.Results {
		if seen[r.ID] {
			t.Errorf("duplicate id %q in results", r.ID)
		}
		seen[r.ID] = true
	}
}

func TestEngine_NonHybrid(t *testing.T) {
	store := &fakeStore{
		vectorHits:  []models.SearchResult{hit("a", 0.9), hit("b", 0.8), hit("c", 0.7)},
		keywordHits: []models.SearchResult{hit("z", 0)},
	}
	engine := New(store, &fakeEmbedder{}, nil, Config{})

	resp, err := engine.SearchDocuments(context.Background(), "query", Options{MatchCount: 2})
	if err != nil {
		t.Fatalf("SearchDocuments() error = %v", err)
	}

	got := ids(resp.Results)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("non-hybrid results = %v, want [a b]", got)
	}
	if store.lastKeywordQuery != "" {
		t.Error("keyword search should not run in non-hybrid mode")
	}
}

func TestEngine_Rerank(t *testing.T) {
	store := &fakeStore{
		vectorHits: []models.SearchResult{hit("a", 0.9), hit("b", 0.8), hit("c", 0.7)},
	}
	reranker := &fakeReranker{scores: []float64{0.1, 0.9, 0.5}}
	engine := New(store, &fakeEmbedder{}, reranker, Config{UseReranking: true})

	resp, err := engine.SearchDocuments(context.Background(), "query", Options{MatchCount: 3})
	if err != nil {
		t.Fatalf("SearchDocuments() error = %v", err)
	}
	if !resp.RerankApplied {
		t.Error("RerankApplied = false, want true")
	}

	got := ids(resp.Results)
	want := []string{"b", "c", "a"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("reranked order = %v, want %v", got, want)
		}
	}
	if resp.Results[0].RerankScore == nil || *resp.Results[0].RerankScore != 0.9 {
		t.Errorf("top rerank score = %v, want 0.9", resp.Results[0].RerankScore)
	}
}

func TestEngine_RerankFailureKeepsOrder(t *testing.T) {
	store := &fakeStore{
		vectorHits: []models.SearchResult{hit("a", 0.9), hit("b", 0.8)},
	}
	reranker := &fakeReranker{err: errors.New("rerank provider down")}
	engine := New(store, &fakeEmbedder{}, reranker, Config{UseReranking: true})

	resp, err := engine.SearchDocuments(context.Background(), "query", Options{MatchCount: 2})
	if err != nil {
		t.Fatalf("SearchDocuments() error = %v", err)
	}
	if resp.RerankApplied {
		t.Error("RerankApplied = true after rerank failure, want false")
	}

	got := ids(resp.Results)
	if got[0] != "a" || got[1] != "b" {
		t.Errorf("order after rerank failure = %v, want [a b]", got)
	}
	if resp.Results[0].RerankScore != nil {
		t.Error("RerankScore should not be set when reranking failed")
	}
}

func TestEngine_CodeExampleQueryExpansion(t *testing.T) {
	store := &fakeStore{
		vectorHits: []models.SearchResult{hit("a", 0.9)},
	}
	embedder := &fakeEmbedder{}
	engine := New(store, embedder, nil, Config{UseHybridSearch: true})

	_, err := engine.SearchCodeExamples(context.Background(), "http middleware", Options{MatchCount: 3})
	if err != nil {
		t.Fatalf("SearchCodeExamples() error = %v", err)
	}

	if !strings.Contains(embedder.lastText, "Code example for http middleware") {
		t.Errorf("embedded query %q missing expansion prefix", embedder.lastText)
	}
	if !strings.Contains(embedder.lastText, "Example code showing http middleware") {
		t.Errorf("embedded query %q missing expansion suffix", embedder.lastText)
	}
	// Keyword search keeps the raw query.
	if store.lastKeywordQuery != "http middleware" {
		t.Errorf("keyword query = %q, want raw query", store.lastKeywordQuery)
	}
}

// rendezvousStore holds the vector leg until the keyword leg has
// started, so the test fails (rather than deadlocks) if the two legs
// run one after the other.
type rendezvousStore struct {
	keywordEntered chan struct{}
}

func (s *rendezvousStore) VectorSearchDocuments(ctx context.Context, embedding []float32, limit int, filter elasticsearch.Filter) ([]models.SearchResult, error) {
	select {
	case <-s.keywordEntered:
	case <-time.After(2 * time.Second):
		return nil, errors.New("keyword search never started")
	}
	return []models.SearchResult{hit("v", 0.9)}, nil
}

func (s *rendezvousStore) KeywordSearchDocuments(ctx context.Context, query string, limit int, filter elasticsearch.Filter) ([]models.SearchResult, error) {
	close(s.keywordEntered)
	return []models.SearchResult{hit("k", 0)}, nil
}

func (s *rendezvousStore) VectorSearchCodeExamples(ctx context.Context, embedding []float32, limit int, filter elasticsearch.Filter) ([]models.SearchResult, error) {
	return nil, nil
}

func (s *rendezvousStore) KeywordSearchCodeExamples(ctx context.Context, query string, limit int, filter elasticsearch.Filter) ([]models.SearchResult, error) {
	return nil, nil
}

func TestEngine_HybridLegsRunConcurrently(t *testing.T) {
	store := &rendezvousStore{keywordEntered: make(chan struct{})}
	engine := New(store, &fakeEmbedder{}, nil, Config{UseHybridSearch: true})

	resp, err := engine.SearchDocuments(context.Background(), "query", Options{MatchCount: 5})
	if err != nil {
		t.Fatalf("SearchDocuments() error = %v", err)
	}

	got := ids(resp.Results)
	if len(got) != 2 || got[0] != "v" || got[1] != "k" {
		t.Errorf("results = %v, want both legs' hits", got)
	}
}

func TestEngine_EmbeddingFailureFallsBackToKeyword(t *testing.T) {
	store := &fakeStore{
		keywordHits: []models.SearchResult{hit("k", 0)},
	}
	embedder := &fakeEmbedder{err: errors.New("embedding provider down")}
	engine := New(store, embedder, nil, Config{UseHybridSearch: true})

	resp, err := engine.SearchDocuments(context.Background(), "query", Options{MatchCount: 3})
	if err != nil {
		t.Fatalf("SearchDocuments() error = %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].ID != "k" {
		t.Fatalf("results = %v, want the keyword hit", ids(resp.Results))
	}
	if resp.Results[0].Similarity != 0.5 {
		t.Errorf("keyword fallback similarity = %v, want 0.5", resp.Results[0].Similarity)
	}
}

func TestEngine_EmbeddingFailureNonHybridErrors(t *testing.T) {
	store := &fakeStore{}
	embedder := &fakeEmbedder{err: errors.New("embedding provider down")}
	engine := New(store, embedder, nil, Config{})

	_, err := engine.SearchDocuments(context.Background(), "query", Options{MatchCount: 3})
	if err == nil {
		t.Fatal("expected error when embedding fails without hybrid fallback")
	}
}
