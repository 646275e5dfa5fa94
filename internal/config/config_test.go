package config

import (
	"errors"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := defaults()
	cfg.Neo4j.URI = "bolt://localhost:7687"
	cfg.Neo4j.Username = "neo4j"
	cfg.Neo4j.Password = "secret"
	return cfg
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("NEO4J_URI", "bolt://graph:7687")
	t.Setenv("NEO4J_USERNAME", "neo4j")
	t.Setenv("NEO4J_PASSWORD", "secret")
	t.Setenv("CHUNK_SIZE", "500")
	t.Setenv("CHUNK_OVERLAP", "100")
	t.Setenv("TOP_K_VECTORS", "3")
	t.Setenv("GRAPH_ONLY_FALLBACK", "false")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Neo4j.URI != "bolt://graph:7687" {
		t.Errorf("Neo4j.URI = %q", cfg.Neo4j.URI)
	}
	if cfg.Chunking.Size != 500 || cfg.Chunking.Overlap != 100 {
		t.Errorf("Chunking = %+v, want 500/100", cfg.Chunking)
	}
	if cfg.Retrieval.TopKVectors != 3 {
		t.Errorf("TopKVectors = %d, want 3", cfg.Retrieval.TopKVectors)
	}
	if cfg.Retrieval.GraphOnlyFallback {
		t.Error("GraphOnlyFallback = true, want false")
	}
	// Untouched keys keep defaults.
	if cfg.Ollama.EmbedModel != "nomic-embed-text" {
		t.Errorf("EmbedModel = %q, want default", cfg.Ollama.EmbedModel)
	}
}

func TestLoad_MissingNeo4jCredentials(t *testing.T) {
	t.Setenv("NEO4J_URI", "")
	t.Setenv("NEO4J_USERNAME", "")
	t.Setenv("NEO4J_PASSWORD", "")

	_, err := Load("")
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Load error = %v, want ErrInvalidConfig", err)
	}
}

func TestValidate_OverlapNotSmallerThanSize(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		wantErr bool
	}{
		{"valid", 900, 150, false},
		{"zero overlap", 900, 0, false},
		{"overlap equals size", 500, 500, true},
		{"overlap exceeds size", 500, 600, true},
		{"negative overlap", 500, -1, true},
		{"zero size", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Chunking.Size = tt.size
			cfg.Chunking.Overlap = tt.overlap
			err := cfg.Validate()
			if tt.wantErr && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate = %v, want ErrInvalidConfig", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate = %v, want nil", err)
			}
		})
	}
}

func TestValidate_RetrievalKnobs(t *testing.T) {
	cfg := validConfig()
	cfg.Retrieval.TopKVectors = 0
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("TopKVectors=0: Validate = %v, want ErrInvalidConfig", err)
	}

	cfg = validConfig()
	cfg.Retrieval.MaxHops = 0
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("MaxHops=0: Validate = %v, want ErrInvalidConfig", err)
	}

	cfg = validConfig()
	cfg.Retrieval.ContextBudget = -5
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("ContextBudget=-5: Validate = %v, want ErrInvalidConfig", err)
	}
}

func TestLoad_RerankKnobs(t *testing.T) {
	t.Setenv("NEO4J_URI", "bolt://localhost:7687")
	t.Setenv("NEO4J_USERNAME", "neo4j")
	t.Setenv("NEO4J_PASSWORD", "secret")
	t.Setenv("RERANK_ENABLED", "true")
	t.Setenv("RERANK_TIMEOUT", "3s")
	t.Setenv("RERANK_THRESHOLD", "0.5")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Retrieval.Rerank.Enabled {
		t.Error("Rerank.Enabled = false, want true")
	}
	if cfg.Retrieval.Rerank.Timeout != 3*time.Second {
		t.Errorf("Rerank.Timeout = %s, want 3s", cfg.Retrieval.Rerank.Timeout)
	}
	if cfg.Retrieval.Rerank.Threshold != 0.5 {
		t.Errorf("Rerank.Threshold = %g, want 0.5", cfg.Retrieval.Rerank.Threshold)
	}
}

func TestValidate_RerankKnobs(t *testing.T) {
	cfg := validConfig()
	cfg.Retrieval.Rerank.Enabled = true
	cfg.Retrieval.Rerank.Timeout = 0
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Timeout=0: Validate = %v, want ErrInvalidConfig", err)
	}

	cfg = validConfig()
	cfg.Retrieval.Rerank.Enabled = true
	cfg.Retrieval.Rerank.Threshold = 1.5
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Threshold=1.5: Validate = %v, want ErrInvalidConfig", err)
	}

	// Disabled reranking skips its validation.
	cfg = validConfig()
	cfg.Retrieval.Rerank.Enabled = false
	cfg.Retrieval.Rerank.Timeout = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled rerank: Validate = %v, want nil", err)
	}
}
