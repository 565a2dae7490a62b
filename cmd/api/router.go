package main

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ragmw/midtier/engine/health"
	"github.com/ragmw/midtier/engine/ingest"
	"github.com/ragmw/midtier/engine/rag"
	"github.com/ragmw/midtier/pkg/errs"
	"github.com/ragmw/midtier/pkg/metrics"
)

// routerDeps holds the HTTP surface's collaborators.
type routerDeps struct {
	Ingest  *ingest.Service
	RAG     *rag.Service
	Health  *health.Aggregator
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// newRouter builds the chi router exposing the middle tier's HTTP surface:
// POST /documents ingests a document, POST /query answers a question,
// GET /healthz reports the aggregated health snapshot, and GET /metrics
// exposes the Prometheus registry.
func newRouter(deps routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Post("/documents", handleIngest(deps))
	r.Post("/query", handleQuery(deps))
	r.Get("/healthz", handleHealthz(deps))
	r.Handle("/metrics", deps.Metrics.Handler())
	return r
}

type ingestRequest struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

type ingestResponse struct {
	DocumentID string `json:"document_id"`
}

func handleIngest(deps routerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ingestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, errs.Validationf("invalid request body: %v", err))
			return
		}

		docID, err := deps.Ingest.Ingest(r.Context(), ingest.DocumentInput{
			Filename: req.Filename,
			Content:  req.Content,
		})
		if err != nil {
			deps.Logger.Error("ingest failed", "err", err, "filename", req.Filename)
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, ingestResponse{DocumentID: docID})
	}
}

type queryRequest struct {
	Question string `json:"question"`
}

func handleQuery(deps routerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, errs.Validationf("invalid request body: %v", err))
			return
		}

		resp, err := deps.RAG.AnswerQuestion(r.Context(), req.Question)
		if err != nil {
			deps.Logger.Error("query failed", "err", err)
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func handleHealthz(deps routerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := deps.Health.Check(r.Context())
		status := http.StatusOK
		if snap.Status == health.Unhealthy {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, snap)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	view := errs.ViewOf(err)
	writeJSON(w, view.StatusCode, struct {
		Error errs.View `json:"error"`
	}{Error: view})
}
