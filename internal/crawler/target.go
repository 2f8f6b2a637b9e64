package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// Kind classifies a crawl target by URL shape. Classification is done
// once per URL and never re-evaluated.
type Kind string

const (
	KindTextFile Kind = "text_file"
	KindSitemap  Kind = "sitemap"
	KindWebpage  Kind = "webpage"
)

// DetectKind inspects the URL pattern: a ".txt" suffix means a plain
// text file, a path containing "sitemap" and ending in ".xml" means a
// sitemap, everything else is a webpage.
func DetectKind(rawURL string) Kind {
	lower := strings.ToLower(rawURL)
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		lower = strings.ToLower(u.Path)
	}

	switch {
	case strings.HasSuffix(lower, ".txt"):
		return KindTextFile
	case strings.Contains(lower, "sitemap") && strings.HasSuffix(lower, ".xml"):
		return KindSitemap
	default:
		return KindWebpage
	}
}

// locPattern matches <loc> entries in sitemap XML. A permissive scan
// rather than a full XML parse: malformed documents still yield their
// well-formed <loc> tags.
var locPattern = regexp.MustCompile(`(?s)<loc>\s*(.*?)\s*</loc>`)

// SitemapURLs fetches the sitemap once and returns all <loc> URLs.
func (c *Crawler) SitemapURLs(ctx context.Context, sitemapURL string) ([]string, error) {
	body, err := c.fetchText(ctx, sitemapURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sitemap: %w", err)
	}

	matches := locPattern.FindAllStringSubmatch(body, -1)
	urls := make([]string, 0, len(matches))
	for _, m := range matches {
		if loc := strings.TrimSpace(m[1]); loc != "" {
			urls = append(urls, loc)
		}
	}

	return urls, nil
}

// fetchText performs a plain GET and returns the body as a string.
// Used for text-file targets and sitemaps, which bypass rendering.
func (c *Crawler) fetchText(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch error (status %d)", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}

	return string(body), nil
}
