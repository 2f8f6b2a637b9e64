// Package mcp exposes ingestion and retrieval as MCP tools over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/avasilyev/crawlrag/internal/ingestion"
	"github.com/avasilyev/crawlrag/internal/search"
	"github.com/avasilyev/crawlrag/pkg/models"
)

// Config holds MCP server configuration.
type Config struct {
	Name    string
	Version string
	// EnableCodeSearch registers the code example tool; leave false
	// when ingestion does not extract code examples.
	EnableCodeSearch bool
}

// Searcher runs retrieval queries.
type Searcher interface {
	SearchDocuments(ctx context.Context, query string, opts search.Options) (search.Response, error)
	SearchCodeExamples(ctx context.Context, query string, opts search.Options) (search.Response, error)
}

// Ingestor runs the crawl-to-store pipeline.
type Ingestor interface {
	IngestURL(ctx context.Context, seedURL, owner string) *ingestion.Summary
}

// SourceLister enumerates stored sources.
type SourceLister interface {
	GetSources(ctx context.Context) ([]models.SourceRecord, error)
}

// Server wraps the MCP server with crawl and search tools.
type Server struct {
	mcpServer *server.MCPServer
	searcher  Searcher
	ingestor  Ingestor
	sources   SourceLister
}

// NewServer creates an MCP server exposing the ingestion and
// retrieval tools.
func NewServer(config Config, searcher Searcher, ingestor Ingestor, sources SourceLister) *Server {
	mcpServer := server.NewMCPServer(
		config.Name,
		config.Version,
		server.WithToolCapabilities(true),
	)

	s := &Server{
		mcpServer: mcpServer,
		searcher:  searcher,
		ingestor:  ingestor,
		sources:   sources,
	}

	crawlTool := mcp.NewTool("crawl_url",
		mcp.WithDescription("Crawl a URL and store its content for retrieval. Handles webpages (recursive internal-link crawl), sitemaps, and plain text files."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("URL to crawl: a webpage, a sitemap.xml, or a .txt file"),
		),
	)
	mcpServer.AddTool(crawlTool, s.crawlHandler)

	queryTool := mcp.NewTool("perform_rag_query",
		mcp.WithDescription("Search stored page content with hybrid vector + keyword retrieval. Returns ranked chunks in JSON."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query string"),
		),
		mcp.WithString("source",
			mcp.Description("Restrict results to one source, e.g. 'docs.example.com'"),
		),
		mcp.WithNumber("match_count",
			mcp.Description("Maximum number of results to return (default: 5)"),
		),
	)
	mcpServer.AddTool(queryTool, s.queryHandler)

	if config.EnableCodeSearch {
		codeTool := mcp.NewTool("search_code_examples",
			mcp.WithDescription("Search stored code examples and their summaries. Returns ranked code snippets in JSON."),
			mcp.WithString("query",
				mcp.Required(),
				mcp.Description("Search query string"),
			),
			mcp.WithString("source",
				mcp.Description("Restrict results to one source"),
			),
			mcp.WithNumber("match_count",
				mcp.Description("Maximum number of results to return (default: 5)"),
			),
		)
		mcpServer.AddTool(codeTool, s.codeHandler)
	}

	sourcesTool := mcp.NewTool("get_available_sources",
		mcp.WithDescription("List all stored sources with their summaries and word counts."),
	)
	mcpServer.AddTool(sourcesTool, s.sourcesHandler)

	return s
}

// crawlHandler handles the crawl_url tool call.
func (s *Server) crawlHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	url, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError("url parameter is required"), nil
	}

	summary := s.ingestor.IngestURL(ctx, url, "")

	result, err := json.Marshal(summary)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal summary: %v", err)), nil
	}
	return mcp.NewToolResultText(string(result)), nil
}

// queryResponse is the JSON payload returned by the search tools.
type queryResponse struct {
	Query         string                `json:"query"`
	Source        string                `json:"source,omitempty"`
	RerankApplied bool                  `json:"rerank_applied"`
	Results       []models.SearchResult `json:"results"`
}

// queryHandler handles the perform_rag_query tool call.
func (s *Server) queryHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.runSearch(ctx, req, s.searcher.SearchDocuments)
}

// codeHandler handles the search_code_examples tool call.
func (s *Server) codeHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.runSearch(ctx, req, s.searcher.SearchCodeExamples)
}

func (s *Server) runSearch(ctx context.Context, req mcp.CallToolRequest, fn func(context.Context, string, search.Options) (search.Response, error)) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query parameter is required"), nil
	}

	opts := search.Options{
		MatchCount: req.GetInt("match_count", 5),
		SourceID:   req.GetString("source", ""),
	}

	resp, err := fn(ctx, query, opts)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	payload := queryResponse{
		Query:         query,
		Source:        opts.SourceID,
		RerankApplied: resp.RerankApplied,
		Results:       resp.Results,
	}
	if payload.Results == nil {
		payload.Results = []models.SearchResult{}
	}

	result, err := json.Marshal(payload)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}
	return mcp.NewToolResultText(string(result)), nil
}

// sourcesHandler handles the get_available_sources tool call.
func (s *Server) sourcesHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sources, err := s.sources.GetSources(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list sources: %v", err)), nil
	}
	if sources == nil {
		sources = []models.SourceRecord{}
	}

	result, err := json.Marshal(sources)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal sources: %v", err)), nil
	}
	return mcp.NewToolResultText(string(result)), nil
}

// ServeStdio starts the MCP server using stdio transport.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
