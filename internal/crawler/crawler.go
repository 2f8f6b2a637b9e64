// Package crawler discovers and fetches pages, delegating JavaScript
// rendering to the external headless-render service and producing
// markdown via the HTML processor.
package crawler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/avasilyev/crawlrag/internal/processor"
	"github.com/avasilyev/crawlrag/internal/render"
	"github.com/avasilyev/crawlrag/pkg/models"
)

// Config holds crawler configuration.
type Config struct {
	MaxDepth      int
	MaxConcurrent int
	BatchDelay    time.Duration // pause between concurrency windows
	DepthDelay    time.Duration // pause between BFS depth levels
	Timeout       time.Duration
	UserAgent     string
}

// Crawler fetches pages and returns their markdown content.
type Crawler struct {
	render     *render.Client
	processor  *processor.Processor
	httpClient *http.Client
	config     Config
}

// New creates a new Crawler with the given render client and configuration.
func New(r *render.Client, config Config) *Crawler {
	if config.MaxDepth == 0 {
		config.MaxDepth = 3
	}
	if config.MaxConcurrent == 0 {
		config.MaxConcurrent = 10
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = "crawlrag/1.0"
	}
	return &Crawler{
		render:     r,
		processor:  processor.New(),
		httpClient: &http.Client{Timeout: config.Timeout},
		config:     config,
	}
}

// Crawl fetches a single URL. Failures never propagate as errors: the
// result carries success=false and a description instead.
func (c *Crawler) Crawl(ctx context.Context, pageURL string) models.CrawlResult {
	if DetectKind(pageURL) == KindTextFile {
		return c.crawlTextFile(ctx, pageURL)
	}

	htmlContent, err := c.render.Content(ctx, pageURL)
	if err != nil {
		slog.Debug("render failed", "url", pageURL, "error", err)
		return models.CrawlResult{URL: pageURL, Error: err.Error()}
	}
	if htmlContent == "" {
		return models.CrawlResult{URL: pageURL, Error: "no content returned"}
	}

	markdown, err := c.processor.Convert(htmlContent)
	if err != nil {
		return models.CrawlResult{URL: pageURL, HTML: htmlContent, Error: "conversion failed: " + err.Error()}
	}
	if markdown == "" {
		return models.CrawlResult{URL: pageURL, HTML: htmlContent, Error: "empty markdown after conversion"}
	}

	return models.CrawlResult{
		URL:      pageURL,
		Title:    c.processor.ExtractTitle(htmlContent),
		HTML:     htmlContent,
		Markdown: markdown,
		Links:    c.processor.ExtractLinks(htmlContent, pageURL),
		Success:  true,
	}
}

// crawlTextFile fetches a plain text file; the body is the markdown.
func (c *Crawler) crawlTextFile(ctx context.Context, fileURL string) models.CrawlResult {
	body, err := c.fetchText(ctx, fileURL)
	if err != nil {
		return models.CrawlResult{URL: fileURL, Error: err.Error()}
	}
	if body == "" {
		return models.CrawlResult{URL: fileURL, Error: "empty text file"}
	}
	return models.CrawlResult{URL: fileURL, Markdown: body, Success: true}
}

// CrawlBatch crawls urls in windows of maxConcurrent. Each window is
// awaited fully before the next starts, with a fixed delay in between
// to respect upstream rate limits. Failed URLs are dropped; the
// returned results preserve input order.
func (c *Crawler) CrawlBatch(ctx context.Context, urls []string, maxConcurrent int) []models.CrawlResult {
	if maxConcurrent <= 0 {
		maxConcurrent = c.config.MaxConcurrent
	}

	results := make([]models.CrawlResult, len(urls))

	for start := 0; start < len(urls); start += maxConcurrent {
		end := start + maxConcurrent
		if end > len(urls) {
			end = len(urls)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = c.Crawl(ctx, urls[i])
			}(i)
		}
		wg.Wait()

		if end < len(urls) && c.config.BatchDelay > 0 {
			select {
			case <-time.After(c.config.BatchDelay):
			case <-ctx.Done():
				return successful(results)
			}
		}
	}

	return successful(results)
}

// successful filters out failed crawls, keeping input order.
func successful(results []models.CrawlResult) []models.CrawlResult {
	out := make([]models.CrawlResult, 0, len(results))
	for _, r := range results {
		if r.Success {
			out = append(out, r)
		}
	}
	return out
}

// CrawlRecursive performs breadth-first traversal of internal links
// starting from seeds. Traversal is bounded by maxDepth levels and a
// visited set; URLs are normalized (fragment stripped) before
// comparison. A fixed delay separates depth levels.
func (c *Crawler) CrawlRecursive(ctx context.Context, seeds []string, maxDepth, maxConcurrent int) []models.Page {
	if maxDepth <= 0 {
		maxDepth = c.config.MaxDepth
	}

	visited := make(map[string]bool)
	frontier := make([]string, 0, len(seeds))
	inFrontier := make(map[string]bool)
	for _, s := range seeds {
		n := normalizeURL(s)
		if n != "" && !inFrontier[n] {
			inFrontier[n] = true
			frontier = append(frontier, n)
		}
	}

	var pages []models.Page

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		slog.Debug("crawling depth level", "depth", depth, "frontier", len(frontier))

		for _, u := range frontier {
			visited[u] = true
		}

		results := c.CrawlBatch(ctx, frontier, maxConcurrent)

		next := make([]string, 0)
		nextSet := make(map[string]bool)

		for _, result := range results {
			pages = append(pages, models.Page{URL: result.URL, Title: result.Title, Markdown: result.Markdown})

			for _, link := range result.Links {
				if !link.Internal {
					continue
				}
				n := normalizeURL(link.URL)
				if n == "" || visited[n] || nextSet[n] {
					continue
				}
				nextSet[n] = true
				next = append(next, n)
			}
		}

		frontier = next

		if len(frontier) > 0 && depth < maxDepth-1 && c.config.DepthDelay > 0 {
			select {
			case <-time.After(c.config.DepthDelay):
			case <-ctx.Done():
				return pages
			}
		}
	}

	slog.Debug("recursive crawl complete", "pages", len(pages), "visited", len(visited))
	return pages
}

// normalizeURL strips the fragment identifier for dedup comparison.
func normalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.Fragment = ""
	return u.String()
}
