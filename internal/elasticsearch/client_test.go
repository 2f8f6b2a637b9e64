package elasticsearch

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/avasilyev/crawlrag/pkg/models"
)

func skipIfNoES(t *testing.T) {
	if os.Getenv("SKIP_ES_TESTS") == "1" {
		t.Skip("Skipping ES tests (SKIP_ES_TESTS=1)")
	}

	// Try to connect to ES
	client, err := New(Config{
		Addresses: []string{"http://localhost:9200"},
	})
	if err != nil {
		t.Skipf("Skipping ES tests: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if !client.Ping(ctx) {
		t.Skip("Skipping ES tests: Elasticsearch not available")
	}
}

// testClient builds a client against throwaway indices with tiny
// vectors so the knn tests stay cheap.
func testClient(t *testing.T, suffix string) *Client {
	t.Helper()

	client, err := New(Config{
		Addresses:      []string{"http://localhost:9200"},
		DocumentsIndex: "crawlrag-test-docs-" + suffix,
		CodeIndex:      "crawlrag-test-code-" + suffix,
		SourcesIndex:   "crawlrag-test-sources-" + suffix,
		Dimensions:     4,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return client
}

func TestClient_Connect(t *testing.T) {
	skipIfNoES(t)

	client := testClient(t, "connect")
	if !client.Ping(context.Background()) {
		t.Error("Ping() should return true for running ES")
	}
}

func TestClient_EnsureIndexes(t *testing.T) {
	skipIfNoES(t)

	client := testClient(t, "create")
	ctx := context.Background()

	client.DeleteIndexes(ctx)

	if err := client.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes() error = %v", err)
	}

	// Creating again should not error (idempotent)
	if err := client.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes() second call error = %v", err)
	}

	client.DeleteIndexes(ctx)
}

func TestClient_ReplaceAndSearchDocuments(t *testing.T) {
	skipIfNoES(t)

	client := testClient(t, "replace")
	ctx := context.Background()

	client.DeleteIndexes(ctx)
	if err := client.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes() error = %v", err)
	}
	defer client.DeleteIndexes(ctx)

	url := "https://example.com/docs/install"
	docs := []models.StoredDocument{
		{
			ID:          models.DocumentID(url, 0),
			URL:         url,
			ChunkNumber: 0,
			Content:     "# Installation\n\nRun go install to install the package.",
			SourceID:    "example.com",
			Embedding:   []float32{1, 0, 0, 0},
		},
		{
			ID:          models.DocumentID(url, 1),
			URL:         url,
			ChunkNumber: 1,
			Content:     "# Configuration\n\nConfigure via environment variables.",
			SourceID:    "example.com",
			Embedding:   []float32{0, 1, 0, 0},
		},
	}

	stored, err := client.ReplaceDocuments(ctx, []string{url}, docs)
	if err != nil {
		t.Fatalf("ReplaceDocuments() error = %v", err)
	}
	if stored != len(docs) {
		t.Fatalf("ReplaceDocuments() stored = %d, want %d", stored, len(docs))
	}
	client.Refresh(ctx)

	// The analyzed field folds case.
	results, err := client.KeywordSearchDocuments(ctx, "INSTALL", 10, Filter{})
	if err != nil {
		t.Fatalf("KeywordSearchDocuments() error = %v", err)
	}
	if len(results) == 0 {
		t.Fatal("KeywordSearchDocuments('INSTALL') should return results")
	}

	// Multi-word queries match as a phrase against the analyzed text.
	results, err = client.KeywordSearchDocuments(ctx, "environment variables", 10, Filter{})
	if err != nil {
		t.Fatalf("KeywordSearchDocuments() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("KeywordSearchDocuments('environment variables') returned %d results, want 1", len(results))
	}

	// The english analyzer stems both sides, so word forms still match.
	results, err = client.KeywordSearchDocuments(ctx, "installing", 10, Filter{})
	if err != nil {
		t.Fatalf("KeywordSearchDocuments() error = %v", err)
	}
	if len(results) == 0 {
		t.Fatal("KeywordSearchDocuments('installing') should match the install chunk")
	}

	// Vector search favors the closest embedding.
	results, err = client.VectorSearchDocuments(ctx, []float32{1, 0, 0, 0}, 10, Filter{})
	if err != nil {
		t.Fatalf("VectorSearchDocuments() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("VectorSearchDocuments() returned %d results, want 2", len(results))
	}
	if results[0].ID != docs[0].ID {
		t.Errorf("first vector hit = %q, want %q", results[0].ID, docs[0].ID)
	}
	if results[0].Similarity <= results[1].Similarity {
		t.Errorf("similarities not descending: %v then %v", results[0].Similarity, results[1].Similarity)
	}
	if results[0].Similarity < 0 || results[0].Similarity > 1 {
		t.Errorf("similarity %v outside [0,1]", results[0].Similarity)
	}

	// Source filter excludes non-matching sources.
	results, err = client.VectorSearchDocuments(ctx, []float32{1, 0, 0, 0}, 10, Filter{SourceID: "other.org"})
	if err != nil {
		t.Fatalf("VectorSearchDocuments() with filter error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("filtered search returned %d results, want 0", len(results))
	}

	// Re-ingesting the URL with one chunk replaces both old chunks.
	replacement := []models.StoredDocument{
		{
			ID:          models.DocumentID(url, 0),
			URL:         url,
			ChunkNumber: 0,
			Content:     "# Updated\n\nShorter page now.",
			SourceID:    "example.com",
			Embedding:   []float32{0, 0, 1, 0},
		},
	}
	if _, err := client.ReplaceDocuments(ctx, []string{url}, replacement); err != nil {
		t.Fatalf("ReplaceDocuments() second call error = %v", err)
	}
	client.Refresh(ctx)

	results, err = client.VectorSearchDocuments(ctx, []float32{0, 1, 0, 0}, 10, Filter{})
	if err != nil {
		t.Fatalf("VectorSearchDocuments() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d chunks after replacement, want 1", len(results))
	}
	if results[0].Content != replacement[0].Content {
		t.Error("stale chunk survived replacement")
	}
}

func TestClient_CodeExamples(t *testing.T) {
	skipIfNoES(t)

	client := testClient(t, "code")
	ctx := context.Background()

	client.DeleteIndexes(ctx)
	if err := client.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes() error = %v", err)
	}
	defer client.DeleteIndexes(ctx)

	url := "https://example.com/docs/api"
	examples := []models.CodeExample{
		{
			ID:          models.DocumentID(url, 0),
			URL:         url,
			ChunkNumber: 0,
			Content:     "func main() { fmt.Println(\"hello\") }",
			Summary:     "Prints a greeting to stdout.",
			SourceID:    "example.com",
			Embedding:   []float32{1, 0, 0, 0},
		},
	}

	if _, err := client.ReplaceCodeExamples(ctx, []string{url}, examples); err != nil {
		t.Fatalf("ReplaceCodeExamples() error = %v", err)
	}
	client.Refresh(ctx)

	// Keyword search covers summaries too.
	results, err := client.KeywordSearchCodeExamples(ctx, "greeting", 10, Filter{})
	if err != nil {
		t.Fatalf("KeywordSearchCodeExamples() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("KeywordSearchCodeExamples() returned %d results, want 1", len(results))
	}
	if got := results[0].Metadata["summary"]; got != examples[0].Summary {
		t.Errorf("summary in metadata = %v, want %q", got, examples[0].Summary)
	}
}

func TestClient_UpsertSource(t *testing.T) {
	skipIfNoES(t)

	client := testClient(t, "sources")
	ctx := context.Background()

	client.DeleteIndexes(ctx)
	if err := client.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes() error = %v", err)
	}
	defer client.DeleteIndexes(ctx)

	if err := client.UpsertSource(ctx, "example.com", "Example docs.", 100); err != nil {
		t.Fatalf("UpsertSource() error = %v", err)
	}
	client.Refresh(ctx)

	sources, err := client.GetSources(ctx)
	if err != nil {
		t.Fatalf("GetSources() error = %v", err)
	}
	if len(sources) != 1 {
		t.Fatalf("GetSources() returned %d sources, want 1", len(sources))
	}
	created := sources[0].CreatedAt
	if created.IsZero() {
		t.Fatal("CreatedAt should be set on first upsert")
	}

	// Updating preserves CreatedAt and advances UpdatedAt.
	time.Sleep(50 * time.Millisecond)
	if err := client.UpsertSource(ctx, "example.com", "Updated summary.", 250); err != nil {
		t.Fatalf("UpsertSource() second call error = %v", err)
	}
	client.Refresh(ctx)

	sources, err = client.GetSources(ctx)
	if err != nil {
		t.Fatalf("GetSources() error = %v", err)
	}
	if len(sources) != 1 {
		t.Fatalf("GetSources() returned %d sources after update, want 1", len(sources))
	}
	if !sources[0].CreatedAt.Equal(created) {
		t.Errorf("CreatedAt changed on update: %v -> %v", created, sources[0].CreatedAt)
	}
	if !sources[0].UpdatedAt.After(created) {
		t.Errorf("UpdatedAt %v should be after CreatedAt %v", sources[0].UpdatedAt, created)
	}
	if sources[0].Summary != "Updated summary." {
		t.Errorf("Summary = %q, want updated value", sources[0].Summary)
	}
	if sources[0].TotalWordCount != 250 {
		t.Errorf("TotalWordCount = %d, want 250", sources[0].TotalWordCount)
	}
}
