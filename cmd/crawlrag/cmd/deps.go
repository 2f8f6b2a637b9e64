package cmd

import (
	"fmt"

	"github.com/avasilyev/crawlrag/internal/archive"
	"github.com/avasilyev/crawlrag/internal/crawler"
	"github.com/avasilyev/crawlrag/internal/elasticsearch"
	"github.com/avasilyev/crawlrag/internal/embeddings"
	"github.com/avasilyev/crawlrag/internal/ingestion"
	"github.com/avasilyev/crawlrag/internal/llm"
	"github.com/avasilyev/crawlrag/internal/render"
	"github.com/avasilyev/crawlrag/internal/reranker"
	"github.com/avasilyev/crawlrag/internal/search"
)

// buildStore creates the Elasticsearch client from configuration.
func buildStore() (*elasticsearch.Client, error) {
	store, err := elasticsearch.New(elasticsearch.Config{
		Addresses:      cfg.Elasticsearch.Addresses,
		Username:       cfg.Elasticsearch.Username,
		Password:       cfg.Elasticsearch.Password,
		DocumentsIndex: cfg.Elasticsearch.DocumentsIndex,
		CodeIndex:      cfg.Elasticsearch.CodeIndex,
		SourcesIndex:   cfg.Elasticsearch.SourcesIndex,
		Dimensions:     cfg.Embeddings.Dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ES client: %w", err)
	}
	return store, nil
}

func buildEmbedder() (*embeddings.Client, error) {
	embedder, err := embeddings.New(embeddings.Config{
		Endpoint:   cfg.Embeddings.Endpoint,
		APIKey:     cfg.Embeddings.APIKey,
		Model:      cfg.Embeddings.Model,
		Dimensions: cfg.Embeddings.Dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings client: %w", err)
	}
	return embedder, nil
}

// buildIngestion wires the full crawl-to-store pipeline.
func buildIngestion(store *elasticsearch.Client) (*ingestion.Engine, error) {
	renderClient, err := render.New(render.Config{
		Endpoint:          cfg.Render.Endpoint,
		Token:             cfg.Render.Token,
		Timeout:           cfg.Render.Timeout,
		RequestsPerSecond: cfg.Render.RequestsPerSecond,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create render client: %w", err)
	}

	crawl := crawler.New(renderClient, crawler.Config{
		MaxDepth:      cfg.Crawler.MaxDepth,
		MaxConcurrent: cfg.Crawler.MaxConcurrent,
		BatchDelay:    cfg.Crawler.BatchDelay,
		DepthDelay:    cfg.Crawler.DepthDelay,
		Timeout:       cfg.Crawler.Timeout,
		UserAgent:     cfg.Crawler.UserAgent,
	})

	embedder, err := buildEmbedder()
	if err != nil {
		return nil, err
	}

	llmClient, err := llm.New(llm.Config{
		Endpoint: cfg.LLM.Endpoint,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	var archiver ingestion.Archiver
	if cfg.Archive.Enabled {
		archiveClient, err := archive.New(archive.Config{
			Endpoint:        cfg.Archive.Endpoint,
			Bucket:          cfg.Archive.Bucket,
			AccessKeyID:     cfg.Archive.AccessKeyID,
			SecretAccessKey: cfg.Archive.SecretAccessKey,
			UseSSL:          cfg.Archive.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create archive client: %w", err)
		}
		archiver = archiveClient
	}

	return ingestion.New(crawl, store, embedder, llmClient, archiver, ingestion.Config{
		MaxDepth:                cfg.Crawler.MaxDepth,
		MaxConcurrent:           cfg.Crawler.MaxConcurrent,
		ChunkSize:               cfg.Crawler.ChunkSize,
		UseContextualEmbeddings: cfg.RAG.UseContextualEmbeddings,
		ExtractCodeExamples:     cfg.RAG.ExtractCodeExamples,
		MinCodeBlockLength:      cfg.RAG.MinCodeBlockLength,
	}), nil
}

// buildSearch wires the hybrid retrieval engine.
func buildSearch(store *elasticsearch.Client) (*search.Engine, error) {
	embedder, err := buildEmbedder()
	if err != nil {
		return nil, err
	}

	var rerankClient search.Reranker
	if cfg.RAG.UseReranking {
		client, err := reranker.New(reranker.Config{
			Endpoint: cfg.Reranker.Endpoint,
			APIKey:   cfg.Reranker.APIKey,
			Model:    cfg.Reranker.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create reranker client: %w", err)
		}
		rerankClient = client
	}

	return search.New(store, embedder, rerankClient, search.Config{
		UseHybridSearch: cfg.RAG.UseHybridSearch,
		UseReranking:    cfg.RAG.UseReranking,
	}), nil
}
