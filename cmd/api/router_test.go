package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ragmw/midtier/engine/health"
	"github.com/ragmw/midtier/engine/ingest"
	"github.com/ragmw/midtier/engine/rag"
	"github.com/ragmw/midtier/pkg/domain"
	"github.com/ragmw/midtier/pkg/metrics"
	"github.com/ragmw/midtier/pkg/providers/azureopenai"
)

type fakeEmbedder struct{ vec []float32 }

func (f fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) { return f.vec, nil }
func (f fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

type fakeStore struct{ stored []domain.Chunk }

func (f *fakeStore) StoreEmbeddings(ctx context.Context, chunks []domain.Chunk) error {
	f.stored = append(f.stored, chunks...)
	return nil
}

func (f *fakeStore) SearchSimilarWithThreshold(ctx context.Context, vec []float32, limit int, threshold float64) ([]domain.SearchResult, error) {
	return nil, nil
}

type fakeChatter struct{ content string }

func (f fakeChatter) Complete(ctx context.Context, req azureopenai.ChatRequest) (azureopenai.ChatResponse, error) {
	return azureopenai.ChatResponse{Content: f.content}, nil
}

type fakeProber struct{ healthy bool }

func (f fakeProber) HealthCheck(ctx context.Context) bool { return f.healthy }

func testDeps(t *testing.T) routerDeps {
	t.Helper()
	embedder := fakeEmbedder{vec: []float32{0.1, 0.2}}
	store := &fakeStore{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ingestSvc := ingest.New(ingest.Deps{Embedder: embedder, Store: store, Logger: logger})
	ragSvc := rag.New(rag.Deps{
		Embedder: embedder,
		Searcher: store,
		Chat:     fakeChatter{content: "an answer"},
		Logger:   logger,
	}, rag.Config{})
	healthAgg := health.New(health.Deps{
		Embedding:   fakeProber{healthy: true},
		VectorStore: fakeProber{healthy: true},
		Pressure:    func() (bool, bool) { return false, false },
	})

	return routerDeps{Ingest: ingestSvc, RAG: ragSvc, Health: healthAgg, Metrics: metrics.New(), Logger: logger}
}

func TestHandleIngestCreatesDocument(t *testing.T) {
	deps := testDeps(t)
	router := newRouter(deps)

	body, _ := json.Marshal(ingestRequest{Filename: "guide.md", Content: "# Title\n\nSome content here."})
	req := httptest.NewRequest(http.MethodPost, "/documents", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp ingestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if resp.DocumentID == "" {
		t.Fatal("expected a document id")
	}
}

func TestHandleIngestRejectsInvalidBody(t *testing.T) {
	deps := testDeps(t)
	router := newRouter(deps)

	req := httptest.NewRequest(http.MethodPost, "/documents", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleQueryReturnsAnswer(t *testing.T) {
	deps := testDeps(t)
	router := newRouter(deps)

	body, _ := json.Marshal(queryRequest{Question: "What is the setup procedure?"})
	req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp domain.RAGResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if resp.Query != "What is the setup procedure?" {
		t.Fatalf("unexpected query echoed back: %q", resp.Query)
	}
}

func TestHandleHealthzReportsHealthy(t *testing.T) {
	deps := testDeps(t)
	router := newRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var snap health.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if snap.Status != health.Healthy {
		t.Fatalf("expected healthy status, got %v", snap.Status)
	}
}

func TestHandleMetricsServesPrometheusFormat(t *testing.T) {
	deps := testDeps(t)
	router := newRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
