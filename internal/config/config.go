package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ErrInvalidConfig is returned (wrapped) for configuration the caller must
// fix before retrying: missing credentials, overlap >= chunk size, and so on.
var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Server    ServerConfig
	Ollama    OllamaConfig
	Neo4j     Neo4jConfig
	Storage   StorageConfig
	Chunking  ChunkingConfig
	Retrieval RetrievalConfig
}

type ServerConfig struct {
	Port     int
	MCPPort  int
	APIToken string
}

type OllamaConfig struct {
	BaseURL    string
	ChatModel  string
	EmbedModel string
}

type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string
}

type StorageConfig struct {
	DataDir string // SQLite catalog + vector index location
	DocsDir string // default source directory for ingestion
}

type ChunkingConfig struct {
	Size    int // characters per chunk
	Overlap int // characters shared between consecutive chunks
}

type RetrievalConfig struct {
	TopKVectors   int
	TopKGraph     int
	MaxHops       int
	ContextBudget int // character budget for assembled context
	// GraphOnlyFallback controls what happens when the vector index is
	// unreachable at query time: fall back to keyword-anchored graph
	// retrieval (true) or fail the query immediately (false).
	GraphOnlyFallback bool
	Rerank            RerankConfig
}

// RerankConfig controls the optional LLM reranking pass applied to merged
// candidates before context assembly.
type RerankConfig struct {
	Enabled   bool
	Timeout   time.Duration
	Threshold float64 // candidates scoring below this are dropped
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:    4000,
			MCPPort: 4001,
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			ChatModel:  "mistral",
			EmbedModel: "nomic-embed-text",
		},
		Neo4j: Neo4jConfig{
			Database: "neo4j",
		},
		Storage: StorageConfig{
			DataDir: "storage",
			DocsDir: "data/docs",
		},
		Chunking: ChunkingConfig{
			Size:    900,
			Overlap: 150,
		},
		Retrieval: RetrievalConfig{
			TopKVectors:       4,
			TopKGraph:         8,
			MaxHops:           1,
			ContextBudget:     4000,
			GraphOnlyFallback: true,
			Rerank: RerankConfig{
				Enabled:   false,
				Timeout:   10 * time.Second,
				Threshold: 0.3,
			},
		},
	}
}

// Load reads configuration from an optional .env file and the environment.
// Environment variables always override .env values, which override defaults.
// Pass envFile == "" to look for ./.env (missing file is not an error).
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("loading env file %s: %w", envFile, err)
		}
	} else {
		// Best effort: a missing default .env is fine.
		_ = godotenv.Load()
	}

	cfg := defaults()
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Neo4j.URI, "NEO4J_URI")
	setString(&cfg.Neo4j.Username, "NEO4J_USERNAME")
	setString(&cfg.Neo4j.Password, "NEO4J_PASSWORD")
	setString(&cfg.Neo4j.Database, "NEO4J_DATABASE")
	setString(&cfg.Ollama.BaseURL, "OLLAMA_BASE_URL")
	setString(&cfg.Ollama.ChatModel, "CHAT_MODEL")
	setString(&cfg.Ollama.EmbedModel, "EMBEDDING_MODEL")
	setString(&cfg.Storage.DataDir, "STORAGE_DIR")
	setString(&cfg.Storage.DocsDir, "DATA_DIR")
	setString(&cfg.Server.APIToken, "API_TOKEN")
	setInt(&cfg.Server.Port, "PORT")
	setInt(&cfg.Server.MCPPort, "MCP_PORT")
	setInt(&cfg.Chunking.Size, "CHUNK_SIZE")
	setInt(&cfg.Chunking.Overlap, "CHUNK_OVERLAP")
	setInt(&cfg.Retrieval.TopKVectors, "TOP_K_VECTORS")
	setInt(&cfg.Retrieval.TopKGraph, "TOP_K_GRAPH")
	setInt(&cfg.Retrieval.MaxHops, "MAX_HOPS")
	setInt(&cfg.Retrieval.ContextBudget, "CONTEXT_BUDGET")
	setBool(&cfg.Retrieval.GraphOnlyFallback, "GRAPH_ONLY_FALLBACK")
	setBool(&cfg.Retrieval.Rerank.Enabled, "RERANK_ENABLED")
	setDuration(&cfg.Retrieval.Rerank.Timeout, "RERANK_TIMEOUT")
	setFloat(&cfg.Retrieval.Rerank.Threshold, "RERANK_THRESHOLD")
}

// Validate checks the tunables the caller must fix before retrying. It
// returns an error wrapping ErrInvalidConfig so callers can distinguish
// configuration mistakes from transient failures.
func (c Config) Validate() error {
	var missing []string
	if c.Neo4j.URI == "" {
		missing = append(missing, "NEO4J_URI")
	}
	if c.Neo4j.Username == "" {
		missing = append(missing, "NEO4J_USERNAME")
	}
	if c.Neo4j.Password == "" {
		missing = append(missing, "NEO4J_PASSWORD")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required environment variables: %v", ErrInvalidConfig, missing)
	}

	if c.Chunking.Size <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 {
		return fmt.Errorf("%w: chunk overlap must not be negative, got %d", ErrInvalidConfig, c.Chunking.Overlap)
	}
	if c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d", ErrInvalidConfig, c.Chunking.Overlap, c.Chunking.Size)
	}
	if c.Retrieval.TopKVectors <= 0 {
		return fmt.Errorf("%w: TOP_K_VECTORS must be positive, got %d", ErrInvalidConfig, c.Retrieval.TopKVectors)
	}
	if c.Retrieval.TopKGraph < 0 {
		return fmt.Errorf("%w: TOP_K_GRAPH must not be negative, got %d", ErrInvalidConfig, c.Retrieval.TopKGraph)
	}
	if c.Retrieval.MaxHops <= 0 {
		return fmt.Errorf("%w: MAX_HOPS must be positive, got %d", ErrInvalidConfig, c.Retrieval.MaxHops)
	}
	if c.Retrieval.ContextBudget <= 0 {
		return fmt.Errorf("%w: CONTEXT_BUDGET must be positive, got %d", ErrInvalidConfig, c.Retrieval.ContextBudget)
	}
	if c.Retrieval.Rerank.Enabled {
		if c.Retrieval.Rerank.Timeout <= 0 {
			return fmt.Errorf("%w: RERANK_TIMEOUT must be positive, got %s", ErrInvalidConfig, c.Retrieval.Rerank.Timeout)
		}
		if c.Retrieval.Rerank.Threshold < 0 || c.Retrieval.Rerank.Threshold > 1 {
			return fmt.Errorf("%w: RERANK_THRESHOLD must be within [0, 1], got %g", ErrInvalidConfig, c.Retrieval.Rerank.Threshold)
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
