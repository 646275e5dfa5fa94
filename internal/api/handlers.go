// Package api exposes ingestion, querying, and reconciliation over HTTP and
// MCP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/mkoval/hybridrag/internal/ingest"
	"github.com/mkoval/hybridrag/internal/pipeline"
	"github.com/mkoval/hybridrag/internal/retrieval"
	"github.com/mkoval/hybridrag/internal/storage"
)

// Synchronizer abstracts document ingestion for the API layer.
type Synchronizer interface {
	SyncFile(ctx context.Context, path string, force bool) (ingest.Report, error)
	SyncDir(ctx context.Context, root string, force bool) ([]ingest.Report, error)
	Reconcile(ctx context.Context) (ingest.ReconcileReport, error)
}

// Answerer abstracts the question pipeline.
type Answerer interface {
	Answer(ctx context.Context, question string) (pipeline.Answer, error)
}

// DocumentLister abstracts catalog reads.
type DocumentLister interface {
	ListDocuments() ([]storage.Document, error)
}

// AppDeps holds the dependencies of the HTTP handler.
type AppDeps struct {
	Catalog  DocumentLister
	Sync     Synchronizer
	Answerer Answerer
	Token    string
}

// NewAppHandler builds the HTTP router. All routes except /healthz require
// the bearer token.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Post("/ingest", handleIngest(deps))
		r.Post("/query", handleQuery(deps))
		r.Post("/reconcile", handleReconcile(deps))
		r.Get("/documents", handleListDocuments(deps))
	})

	return r
}

type ingestRequest struct {
	Path  string `json:"path"`
	Force bool   `json:"force"`
}

func handleIngest(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req ingestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Path == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "path is required")
			return
		}

		info, err := os.Stat(req.Path)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "path not accessible: %v", err)
			return
		}

		var reports []ingest.Report
		if info.IsDir() {
			reports, err = deps.Sync.SyncDir(r.Context(), req.Path, req.Force)
		} else {
			var report ingest.Report
			report, err = deps.Sync.SyncFile(r.Context(), req.Path, req.Force)
			reports = []ingest.Report{report}
		}
		// Per-document failures are already captured in the reports; only a
		// whole-batch failure (extraction, cancellation) is an HTTP error.
		if err != nil && len(reports) == 0 {
			httpError(w, http.StatusInternalServerError, "api_error", "ingestion failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"reports": reports})
	}
}

type queryRequest struct {
	Question string `json:"question"`
}

func handleQuery(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Question == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "question is required")
			return
		}

		answer, err := deps.Answerer.Answer(r.Context(), req.Question)
		if errors.Is(err, retrieval.ErrRetrievalFailed) {
			httpError(w, http.StatusServiceUnavailable, "retrieval_failed", "no store could serve the query: %v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "query failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(answer)
	}
}

func handleReconcile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := deps.Sync.Reconcile(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "reconciliation failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(report)
	}
}

func handleListDocuments(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		docs, err := deps.Catalog.ListDocuments()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list documents: %v", err)
			return
		}
		if docs == nil {
			docs = []storage.Document{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(docs)
	}
}
