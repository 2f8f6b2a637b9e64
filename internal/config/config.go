package config

import "time"

// Config holds all application configuration.
type Config struct {
	Elasticsearch Elasticsearch `mapstructure:"elasticsearch"`
	Render        Render        `mapstructure:"render"`
	Embeddings    Embeddings    `mapstructure:"embeddings"`
	LLM           LLM           `mapstructure:"llm"`
	Reranker      Reranker      `mapstructure:"reranker"`
	Crawler       Crawler       `mapstructure:"crawler"`
	RAG           RAG           `mapstructure:"rag"`
	Archive       Archive       `mapstructure:"archive"`
	MCP           MCP           `mapstructure:"mcp"`
}

// Elasticsearch holds ES connection and index configuration.
type Elasticsearch struct {
	Addresses      []string `mapstructure:"addresses"`
	Username       string   `mapstructure:"username"`
	Password       string   `mapstructure:"password"`
	DocumentsIndex string   `mapstructure:"documents_index"`
	CodeIndex      string   `mapstructure:"code_index"`
	SourcesIndex   string   `mapstructure:"sources_index"`
}

// Render holds headless-render service configuration.
type Render struct {
	Endpoint          string        `mapstructure:"endpoint"`
	Token             string        `mapstructure:"token"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

// Embeddings holds embedding provider configuration.
type Embeddings struct {
	Endpoint   string `mapstructure:"endpoint"`
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
}

// LLM holds chat-completion provider configuration for summary
// and contextual-embedding generation.
type LLM struct {
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
}

// Reranker holds cross-encoder rerank service configuration.
type Reranker struct {
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
}

// Crawler holds crawl traversal configuration.
type Crawler struct {
	MaxDepth      int           `mapstructure:"max_depth"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	ChunkSize     int           `mapstructure:"chunk_size"`
	BatchDelay    time.Duration `mapstructure:"batch_delay"`
	DepthDelay    time.Duration `mapstructure:"depth_delay"`
	Timeout       time.Duration `mapstructure:"timeout"`
	UserAgent     string        `mapstructure:"user_agent"`
}

// RAG holds retrieval strategy toggles.
type RAG struct {
	UseContextualEmbeddings bool `mapstructure:"use_contextual_embeddings"`
	UseHybridSearch         bool `mapstructure:"use_hybrid_search"`
	UseReranking            bool `mapstructure:"use_reranking"`
	ExtractCodeExamples     bool `mapstructure:"extract_code_examples"`
	MinCodeBlockLength      int  `mapstructure:"min_code_block_length"`
}

// Archive holds S3/MinIO crawl staging configuration.
type Archive struct {
	Enabled         bool   `mapstructure:"enabled"`
	Endpoint        string `mapstructure:"endpoint"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// MCP holds MCP server configuration.
type MCP struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Elasticsearch: Elasticsearch{
			Addresses:      []string{"http://localhost:9200"},
			DocumentsIndex: "crawled_pages",
			CodeIndex:      "code_examples",
			SourcesIndex:   "sources",
		},
		Render: Render{
			Endpoint:          "http://localhost:3000",
			Timeout:           60 * time.Second,
			RequestsPerSecond: 2,
		},
		Embeddings: Embeddings{
			Endpoint:   "https://api.openai.com/v1",
			Model:      "text-embedding-3-small",
			Dimensions: 1024,
		},
		LLM: LLM{
			Endpoint: "https://api.openai.com/v1",
			Model:    "gpt-4o-mini",
		},
		Reranker: Reranker{
			Model: "rerank-v3.5",
		},
		Crawler: Crawler{
			MaxDepth:      3,
			MaxConcurrent: 10,
			ChunkSize:     5000,
			BatchDelay:    500 * time.Millisecond,
			DepthDelay:    1 * time.Second,
			Timeout:       30 * time.Second,
			UserAgent:     "crawlrag/1.0",
		},
		RAG: RAG{
			UseContextualEmbeddings: false,
			UseHybridSearch:         true,
			UseReranking:            false,
			ExtractCodeExamples:     false,
			MinCodeBlockLength:      300,
		},
		Archive: Archive{
			Enabled:         false,
			Endpoint:        "localhost:9002",
			Bucket:          "crawlrag",
			AccessKeyID:     "minioadmin",
			SecretAccessKey: "minioadmin",
			UseSSL:          false,
		},
		MCP: MCP{
			Name:    "crawlrag",
			Version: "1.0.0",
		},
	}
}
