package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mkoval/hybridrag/internal/chunk"
	"github.com/mkoval/hybridrag/internal/composer"
	"github.com/mkoval/hybridrag/internal/config"
	"github.com/mkoval/hybridrag/internal/engine"
	"github.com/mkoval/hybridrag/internal/graph"
	"github.com/mkoval/hybridrag/internal/ingest"
	"github.com/mkoval/hybridrag/internal/intent"
	"github.com/mkoval/hybridrag/internal/pipeline"
	"github.com/mkoval/hybridrag/internal/reranking"
	"github.com/mkoval/hybridrag/internal/retrieval"
	"github.com/mkoval/hybridrag/internal/storage"
	"github.com/mkoval/hybridrag/internal/vector"
)

// app wires every component from configuration. Commands build one app,
// use it, and close it.
type app struct {
	cfg       config.Config
	store     *storage.Store
	graph     *graph.Neo4jStore
	eng       *engine.Ollama
	sync      *ingest.Synchronizer
	retriever *retrieval.Retriever
	answerer  *pipeline.Answerer
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(os.Getenv("LOG_LEVEL"), "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	eng := engine.NewOllama(cfg.Ollama.BaseURL)
	if err := engine.EnsureReady(ctx, eng, cfg.Ollama.ChatModel, cfg.Ollama.EmbedModel, os.Stderr); err != nil {
		return nil, err
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	g, err := graph.NewNeo4jStore(ctx, graph.Config{
		URI:      cfg.Neo4j.URI,
		Username: cfg.Neo4j.Username,
		Password: cfg.Neo4j.Password,
		Database: cfg.Neo4j.Database,
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	if err := g.EnsureSchema(ctx); err != nil {
		g.Close(ctx)
		store.Close()
		return nil, err
	}

	chunker, err := chunk.New(cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		g.Close(ctx)
		store.Close()
		return nil, err
	}

	vectors := vector.NewSQLiteIndex(store.DB())
	sync := ingest.NewSynchronizer(store, vectors, g, eng, chunker, ingest.Options{
		EmbedModel: cfg.Ollama.EmbedModel,
	})

	extractor := intent.NewExtractor(eng, cfg.Ollama.ChatModel)
	retriever := retrieval.NewRetriever(eng, vectors, g, extractor, retrieval.Options{
		EmbedModel:        cfg.Ollama.EmbedModel,
		TopKVectors:       cfg.Retrieval.TopKVectors,
		TopKGraph:         cfg.Retrieval.TopKGraph,
		MaxHops:           cfg.Retrieval.MaxHops,
		GraphOnlyFallback: cfg.Retrieval.GraphOnlyFallback,
	})
	assembler := composer.New(cfg.Retrieval.ContextBudget)
	reranker := reranking.NewReranker(eng, cfg.Ollama.ChatModel,
		cfg.Retrieval.Rerank.Enabled, cfg.Retrieval.Rerank.Timeout, cfg.Retrieval.Rerank.Threshold,
		cfg.Retrieval.TopKVectors+cfg.Retrieval.TopKGraph)
	answerer := pipeline.NewAnswerer(retriever, reranker, assembler, eng, cfg.Ollama.ChatModel)

	return &app{
		cfg:       cfg,
		store:     store,
		graph:     g,
		eng:       eng,
		sync:      sync,
		retriever: retriever,
		answerer:  answerer,
	}, nil
}

func (a *app) close(ctx context.Context) {
	if err := a.graph.Close(ctx); err != nil {
		slog.Warn("closing graph store", "error", err)
	}
	if err := a.store.Close(); err != nil {
		slog.Warn("closing storage", "error", err)
	}
}
