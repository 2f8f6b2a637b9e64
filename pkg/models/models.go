package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Link is an outbound link extracted from a rendered page.
// Internal is true when the link resolves to the same origin
// (scheme+host) as the page it was found on.
type Link struct {
	URL      string `json:"url"`
	Text     string `json:"text"`
	Internal bool   `json:"internal"`
}

// CrawlResult holds the outcome of crawling a single URL.
// It is consumed immediately by the chunking stage and never persisted.
type CrawlResult struct {
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	HTML     string `json:"html,omitempty"`
	Markdown string `json:"markdown"`
	Links    []Link `json:"links,omitempty"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// Page is a crawled page reduced to what ingestion needs.
type Page struct {
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	Markdown string `json:"markdown"`
}

// Metadata is the free-form key bag attached to stored records.
// Values are limited to strings, numbers, booleans, and timestamps.
type Metadata map[string]any

// StoredDocument is a persisted chunk of a page's markdown.
// (URL, ChunkNumber) is unique; re-ingesting a URL replaces all of its rows.
type StoredDocument struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	ChunkNumber int       `json:"chunk_number"`
	Content     string    `json:"content"`
	Metadata    Metadata  `json:"metadata,omitempty"`
	SourceID    string    `json:"source_id"`
	Embedding   []float32 `json:"embedding,omitempty"`
	Owner       string    `json:"owner,omitempty"`
}

// CodeExample is a persisted fenced code block with its generated summary.
// ChunkNumber is a running index across the whole page, not per block.
type CodeExample struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	ChunkNumber int       `json:"chunk_number"`
	Content     string    `json:"content"`
	Summary     string    `json:"summary"`
	Metadata    Metadata  `json:"metadata,omitempty"`
	SourceID    string    `json:"source_id"`
	Embedding   []float32 `json:"embedding,omitempty"`
	Owner       string    `json:"owner,omitempty"`
}

// SourceRecord aggregates per-source metadata. Exactly one exists
// per source ID; it is written before the source's chunks so readers
// never observe chunks without their parent source.
type SourceRecord struct {
	SourceID       string    `json:"source_id"`
	Summary        string    `json:"summary"`
	TotalWordCount int       `json:"total_word_count"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
	UpdatedAt      time.Time `json:"updated_at,omitempty"`
}

// SearchResult is one ranked hit from the retrieval engine.
// Similarity is in [0,1]. RerankScore is set only when reranking ran.
type SearchResult struct {
	ID          string   `json:"id"`
	URL         string   `json:"url"`
	Content     string   `json:"content"`
	Metadata    Metadata `json:"metadata,omitempty"`
	SourceID    string   `json:"source_id"`
	Similarity  float64  `json:"similarity"`
	RerankScore *float64 `json:"rerank_score,omitempty"`
}

// DocumentID creates a deterministic ID for a chunk of a URL.
// The ID is a SHA-256 hash (first 16 chars) of "url#chunk".
func DocumentID(pageURL string, chunkNumber int) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s#%d", pageURL, chunkNumber)))
	return hex.EncodeToString(hash[:])[:16]
}

// DeriveSourceID extracts the source identifier from a URL: the host
// with a leading "www." stripped, or the path when no host is present.
func DeriveSourceID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	host := u.Host
	if host == "" {
		return u.Path
	}
	return strings.TrimPrefix(host, "www.")
}

// WordCount counts whitespace-separated words in text.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
