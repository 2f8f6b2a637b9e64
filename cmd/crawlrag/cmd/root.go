package cmd

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/avasilyev/crawlrag/internal/config"
)

var (
	cfgFile string
	verbose bool
	cfg     config.Config
)

// GetConfig returns the loaded configuration.
func GetConfig() config.Config {
	return cfg
}

var rootCmd = &cobra.Command{
	Use:   "crawlrag",
	Short: "crawlrag: web crawling and hybrid RAG retrieval",
	Long: `crawlrag crawls websites via a headless-render service, converts pages
to Markdown, chunks and embeds the content into Elasticsearch, and serves
hybrid (vector + keyword) retrieval over it.

Commands:
  crawl    Crawl a URL (webpage, sitemap, or text file) and store its content
  search   Search stored content
  sources  List stored sources
  ingest   Re-ingest an archived crawl from object storage
  serve    Start the MCP server for retrieval tools`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig, initLogger)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}

func initLogger() {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

func initConfig() {
	// Start with defaults
	cfg = config.Defaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/crawlrag")
		viper.AddConfigPath(".")
	}

	// Environment variable overrides
	// CRAWLRAG_ELASTICSEARCH_ADDRESSES -> elasticsearch.addresses
	viper.SetEnvPrefix("CRAWLRAG")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Explicitly bind nested env vars
	viper.BindEnv("elasticsearch.addresses", "CRAWLRAG_ELASTICSEARCH_ADDRESSES")
	viper.BindEnv("elasticsearch.username", "CRAWLRAG_ELASTICSEARCH_USERNAME")
	viper.BindEnv("elasticsearch.password", "CRAWLRAG_ELASTICSEARCH_PASSWORD")
	viper.BindEnv("render.endpoint", "CRAWLRAG_RENDER_ENDPOINT")
	viper.BindEnv("render.token", "CRAWLRAG_RENDER_TOKEN")
	viper.BindEnv("embeddings.endpoint", "CRAWLRAG_EMBEDDINGS_ENDPOINT")
	viper.BindEnv("embeddings.api_key", "CRAWLRAG_EMBEDDINGS_API_KEY")
	viper.BindEnv("embeddings.model", "CRAWLRAG_EMBEDDINGS_MODEL")
	viper.BindEnv("llm.endpoint", "CRAWLRAG_LLM_ENDPOINT")
	viper.BindEnv("llm.api_key", "CRAWLRAG_LLM_API_KEY")
	viper.BindEnv("llm.model", "CRAWLRAG_LLM_MODEL")
	viper.BindEnv("reranker.endpoint", "CRAWLRAG_RERANKER_ENDPOINT")
	viper.BindEnv("reranker.api_key", "CRAWLRAG_RERANKER_API_KEY")
	viper.BindEnv("crawler.max_depth", "CRAWLRAG_CRAWLER_MAX_DEPTH")
	viper.BindEnv("crawler.max_concurrent", "CRAWLRAG_CRAWLER_MAX_CONCURRENT")
	viper.BindEnv("crawler.chunk_size", "CRAWLRAG_CRAWLER_CHUNK_SIZE")
	viper.BindEnv("rag.use_contextual_embeddings", "CRAWLRAG_RAG_USE_CONTEXTUAL_EMBEDDINGS")
	viper.BindEnv("rag.use_hybrid_search", "CRAWLRAG_RAG_USE_HYBRID_SEARCH")
	viper.BindEnv("rag.use_reranking", "CRAWLRAG_RAG_USE_RERANKING")
	viper.BindEnv("rag.extract_code_examples", "CRAWLRAG_RAG_EXTRACT_CODE_EXAMPLES")
	viper.BindEnv("archive.enabled", "CRAWLRAG_ARCHIVE_ENABLED")
	viper.BindEnv("archive.endpoint", "CRAWLRAG_ARCHIVE_ENDPOINT")
	viper.BindEnv("archive.access_key_id", "CRAWLRAG_ARCHIVE_ACCESS_KEY_ID")
	viper.BindEnv("archive.secret_access_key", "CRAWLRAG_ARCHIVE_SECRET_ACCESS_KEY")
	viper.BindEnv("mcp.name", "CRAWLRAG_MCP_NAME")
	viper.BindEnv("mcp.version", "CRAWLRAG_MCP_VERSION")

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("config file error", "error", err)
		}
		// No config file - use defaults + env vars
	}

	// Unmarshal into struct (merges config file with defaults)
	if err := viper.Unmarshal(&cfg); err != nil {
		slog.Warn("failed to parse config", "error", err)
	}

	// Handle special case: addresses as comma-separated string from env
	if addrs := os.Getenv("CRAWLRAG_ELASTICSEARCH_ADDRESSES"); addrs != "" {
		cfg.Elasticsearch.Addresses = strings.Split(addrs, ",")
	}
}
