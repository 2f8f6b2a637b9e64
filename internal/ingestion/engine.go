// Package ingestion orchestrates the crawl-to-store pipeline: target
// classification, crawling, chunking, embedding, and the replace-style
// store writes, plus replay of archived crawls.
package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/avasilyev/crawlrag/internal/archive"
	"github.com/avasilyev/crawlrag/internal/chunker"
	"github.com/avasilyev/crawlrag/internal/crawler"
	"github.com/avasilyev/crawlrag/internal/embeddings"
	"github.com/avasilyev/crawlrag/pkg/models"
)

// Crawler fetches and renders pages.
type Crawler interface {
	Crawl(ctx context.Context, pageURL string) models.CrawlResult
	CrawlBatch(ctx context.Context, urls []string, maxConcurrent int) []models.CrawlResult
	CrawlRecursive(ctx context.Context, seeds []string, maxDepth, maxConcurrent int) []models.Page
	SitemapURLs(ctx context.Context, sitemapURL string) ([]string, error)
}

// Store is the slice of the persistent store ingestion writes to. The
// replace operations report how many records were stored even when an
// error covers the rest.
type Store interface {
	ReplaceDocuments(ctx context.Context, urls []string, docs []models.StoredDocument) (int, error)
	ReplaceCodeExamples(ctx context.Context, urls []string, examples []models.CodeExample) (int, error)
	UpsertSource(ctx context.Context, sourceID, summary string, wordCount int) error
}

// Embedder produces chunk vectors, degrading to zero-vector sentinels.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) [][]float32
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Summarizer generates source and code-example summaries and
// situating sentences for contextual embedding.
type Summarizer interface {
	embeddings.Situator
	SourceSummary(ctx context.Context, sourceID, content string) string
	CodeExampleSummary(ctx context.Context, code, contextBefore, contextAfter string) string
}

// Archiver persists raw crawl output for later replay.
type Archiver interface {
	EnsureBucket(ctx context.Context) error
	PutPage(ctx context.Context, prefix, filename, markdown string) error
	GetPage(ctx context.Context, prefix, filename string) (string, error)
	PutManifest(ctx context.Context, prefix string, manifest archive.Manifest) error
	GetManifest(ctx context.Context, prefix string) (*archive.Manifest, error)
}

// Config holds ingestion pipeline settings.
type Config struct {
	MaxDepth                int
	MaxConcurrent           int
	ChunkSize               int
	UseContextualEmbeddings bool
	ExtractCodeExamples     bool
	MinCodeBlockLength      int
}

// Summary is the structured envelope an ingestion call returns, even
// on partial failure.
type Summary struct {
	Success            bool     `json:"success"`
	URL                string   `json:"url"`
	CrawlType          string   `json:"crawl_type"`
	PagesCrawled       int      `json:"pages_crawled"`
	ChunksStored       int      `json:"chunks_stored"`
	CodeExamplesStored int      `json:"code_examples_stored"`
	SourcesUpdated     int      `json:"sources_updated"`
	ArchivePrefix      string   `json:"archive_prefix,omitempty"`
	Errors             []string `json:"errors,omitempty"`
}

// Engine runs the ingestion pipeline. archiver may be nil when crawl
// archiving is disabled.
type Engine struct {
	crawler    Crawler
	store      Store
	embedder   Embedder
	summarizer Summarizer
	archiver   Archiver
	config     Config
}

// New creates an ingestion engine.
func New(crawl Crawler, store Store, embedder Embedder, summarizer Summarizer, archiver Archiver, config Config) *Engine {
	if config.MaxDepth <= 0 {
		config.MaxDepth = 3
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 10
	}
	if config.ChunkSize <= 0 {
		config.ChunkSize = chunker.DefaultChunkSize
	}
	if config.MinCodeBlockLength <= 0 {
		config.MinCodeBlockLength = chunker.DefaultMinCodeBlockLength
	}
	return &Engine{
		crawler:    crawl,
		store:      store,
		embedder:   embedder,
		summarizer: summarizer,
		archiver:   archiver,
		config:     config,
	}
}

// IngestURL classifies the target URL, crawls it, and stores the
// resulting chunks. Text files are fetched directly, sitemaps fan out
// to every <loc> entry, and webpages get a bounded-depth internal-link
// crawl.
func (e *Engine) IngestURL(ctx context.Context, seedURL, owner string) *Summary {
	kind := crawler.DetectKind(seedURL)
	summary := &Summary{URL: seedURL, CrawlType: string(kind)}

	var pages []models.Page
	switch kind {
	case crawler.KindTextFile:
		result := e.crawler.Crawl(ctx, seedURL)
		if result.Success {
			pages = append(pages, models.Page{URL: result.URL, Markdown: result.Markdown})
		} else {
			summary.Errors = append(summary.Errors, result.Error)
		}
	case crawler.KindSitemap:
		urls, err := e.crawler.SitemapURLs(ctx, seedURL)
		if err != nil {
			summary.Errors = append(summary.Errors, err.Error())
			return summary
		}
		for _, result := range e.crawler.CrawlBatch(ctx, urls, e.config.MaxConcurrent) {
			if result.Success {
				pages = append(pages, models.Page{URL: result.URL, Title: result.Title, Markdown: result.Markdown})
			}
		}
	default:
		pages = e.crawler.CrawlRecursive(ctx, []string{seedURL}, e.config.MaxDepth, e.config.MaxConcurrent)
	}

	summary.PagesCrawled = len(pages)
	if len(pages) == 0 {
		summary.Errors = append(summary.Errors, "no content retrieved from "+seedURL)
		return summary
	}

	e.archivePages(ctx, seedURL, string(kind), pages, summary)
	e.ingestPages(ctx, pages, owner, summary)
	return summary
}

// IngestArchived replays a previously archived crawl identified by its
// object-store prefix, without touching the network beyond the archive.
func (e *Engine) IngestArchived(ctx context.Context, prefix, owner string) (*Summary, error) {
	if e.archiver == nil {
		return nil, fmt.Errorf("crawl archive is not configured")
	}

	manifest, err := e.archiver.GetManifest(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest for %s: %w", prefix, err)
	}

	summary := &Summary{URL: manifest.SeedURL, CrawlType: "archive", ArchivePrefix: prefix}
	var pages []models.Page
	for _, entry := range manifest.Pages {
		markdown, err := e.archiver.GetPage(ctx, prefix, entry.File)
		if err != nil {
			slog.Warn("failed to load archived page", "file", entry.File, "error", err)
			summary.Errors = append(summary.Errors, err.Error())
			continue
		}
		pages = append(pages, models.Page{URL: entry.URL, Markdown: markdown})
	}

	summary.PagesCrawled = len(pages)
	if len(pages) == 0 {
		summary.Errors = append(summary.Errors, "no pages recovered from archive prefix "+prefix)
		return summary, nil
	}

	e.ingestPages(ctx, pages, owner, summary)
	return summary, nil
}

// archivePages writes crawl output to the archive. Failures are logged
// and never block ingestion.
func (e *Engine) archivePages(ctx context.Context, seedURL, crawlType string, pages []models.Page, summary *Summary) {
	if e.archiver == nil {
		return
	}

	if err := e.archiver.EnsureBucket(ctx); err != nil {
		slog.Warn("crawl archive unavailable", "error", err)
		return
	}

	prefix := archive.NewPrefix(models.DeriveSourceID(seedURL))
	manifest := archive.Manifest{
		SeedURL:   seedURL,
		SourceID:  models.DeriveSourceID(seedURL),
		CrawlType: crawlType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		PageCount: len(pages),
	}

	for _, page := range pages {
		filename := archive.PageFilename(page.URL)
		if err := e.archiver.PutPage(ctx, prefix, filename, page.Markdown); err != nil {
			slog.Warn("failed to archive page", "url", page.URL, "error", err)
			continue
		}
		manifest.Pages = append(manifest.Pages, archive.ManifestPage{URL: page.URL, File: filename})
	}

	if err := e.archiver.PutManifest(ctx, prefix, manifest); err != nil {
		slog.Warn("failed to archive manifest", "prefix", prefix, "error", err)
		return
	}
	summary.ArchivePrefix = prefix
}

// ingestPages runs the store-side half of the pipeline: source
// aggregates first, then chunk embedding and replacement, then code
// examples when enabled.
func (e *Engine) ingestPages(ctx context.Context, pages []models.Page, owner string, summary *Summary) {
	e.updateSources(ctx, pages, summary)

	urls := make([]string, len(pages))
	var docs []models.StoredDocument
	for i, page := range pages {
		urls[i] = page.URL
		docs = append(docs, e.pageDocuments(ctx, page, owner)...)
	}

	stored, err := e.store.ReplaceDocuments(ctx, urls, docs)
	summary.ChunksStored = stored
	if err != nil {
		slog.Error("failed to store documents", "stored", stored, "total", len(docs), "error", err)
		summary.Errors = append(summary.Errors, err.Error())
	}

	if e.config.ExtractCodeExamples {
		examples := e.collectCodeExamples(ctx, pages, owner)
		stored, err := e.store.ReplaceCodeExamples(ctx, urls, examples)
		summary.CodeExamplesStored = stored
		if err != nil {
			slog.Error("failed to store code examples", "stored", stored, "total", len(examples), "error", err)
			summary.Errors = append(summary.Errors, err.Error())
		}
	}

	// A run that stored anything is a success; partial store failures
	// are carried in the counts and error list.
	summary.Success = summary.ChunksStored > 0
}

// updateSources upserts one aggregate record per distinct source.
// Sources are written before any chunk insert so readers never see
// chunks without their parent source.
func (e *Engine) updateSources(ctx context.Context, pages []models.Page, summary *Summary) {
	content := make(map[string]string)
	words := make(map[string]int)
	var order []string

	for _, page := range pages {
		sourceID := models.DeriveSourceID(page.URL)
		if _, ok := content[sourceID]; !ok {
			order = append(order, sourceID)
		}
		content[sourceID] += page.Markdown + "\n\n"
		words[sourceID] += models.WordCount(page.Markdown)
	}

	for _, sourceID := range order {
		sourceSummary := e.summarizer.SourceSummary(ctx, sourceID, content[sourceID])
		if err := e.store.UpsertSource(ctx, sourceID, sourceSummary, words[sourceID]); err != nil {
			slog.Error("failed to upsert source", "source", sourceID, "error", err)
			summary.Errors = append(summary.Errors, err.Error())
			continue
		}
		summary.SourcesUpdated++
	}
}

// pageDocuments chunks a page and embeds the chunks. Stored content is
// the situated form when contextualization succeeded, else the raw
// chunk.
func (e *Engine) pageDocuments(ctx context.Context, page models.Page, owner string) []models.StoredDocument {
	chunks := chunker.Chunk(page.Markdown, e.config.ChunkSize)
	if len(chunks) == 0 {
		return nil
	}

	sourceID := models.DeriveSourceID(page.URL)
	contents := make([]string, len(chunks))
	contextualized := make([]bool, len(chunks))
	for i, chunk := range chunks {
		if e.config.UseContextualEmbeddings {
			contents[i], contextualized[i] = embeddings.ContextualizeChunk(ctx, e.summarizer, page.Markdown, chunk)
		} else {
			contents[i] = chunk
		}
	}

	vectors := e.embedder.EmbedBatch(ctx, contents)

	docs := make([]models.StoredDocument, len(chunks))
	for i := range chunks {
		// Section metadata describes the raw chunk; the situating
		// sentence is an embedding aid, not page content.
		info := chunker.ExtractSectionInfo(chunks[i])
		metadata := info.Metadata()
		metadata["chunk_index"] = i
		metadata["source"] = sourceID
		metadata["contextual_embedding"] = contextualized[i]
		if page.Title != "" {
			metadata["title"] = page.Title
		}

		docs[i] = models.StoredDocument{
			ID:          models.DocumentID(page.URL, i),
			URL:         page.URL,
			ChunkNumber: i,
			Content:     contents[i],
			Metadata:    metadata,
			SourceID:    sourceID,
			Embedding:   vectors[i],
			Owner:       owner,
		}
	}
	return docs
}

// collectCodeExamples extracts fenced code blocks from every page,
// summarizes them, and embeds code and summary jointly. A zero vector
// from the batch gets one individual re-embedding attempt before being
// accepted as-is.
func (e *Engine) collectCodeExamples(ctx context.Context, pages []models.Page, owner string) []models.CodeExample {
	var examples []models.CodeExample
	var texts []string

	for _, page := range pages {
		sourceID := models.DeriveSourceID(page.URL)
		blocks := chunker.ExtractCodeBlocks(page.Markdown, e.config.MinCodeBlockLength)
		for i, block := range blocks {
			exampleSummary := e.summarizer.CodeExampleSummary(ctx, block.Code, block.ContextBefore, block.ContextAfter)
			examples = append(examples, models.CodeExample{
				ID:          models.DocumentID(page.URL, i),
				URL:         page.URL,
				ChunkNumber: i,
				Content:     block.Code,
				Summary:     exampleSummary,
				Metadata: models.Metadata{
					"language":   block.Language,
					"word_count": models.WordCount(block.Code),
					"char_count": len(block.Code),
					"source":     sourceID,
				},
				SourceID: sourceID,
				Owner:    owner,
			})
			texts = append(texts, block.Code+"\n\nSummary: "+exampleSummary)
		}
	}

	if len(examples) == 0 {
		return nil
	}

	vectors := e.embedder.EmbedBatch(ctx, texts)
	for i := range examples {
		vector := vectors[i]
		if embeddings.IsZeroVector(vector) {
			if retried, err := e.embedder.EmbedOne(ctx, texts[i]); err == nil {
				vector = retried
			} else {
				slog.Warn("re-embedding code example failed, keeping zero vector", "id", examples[i].ID, "error", err)
			}
		}
		examples[i].Embedding = vector
	}
	return examples
}
