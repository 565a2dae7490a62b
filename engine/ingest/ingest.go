// Package ingest implements the document service (C9): it validates raw
// document bytes, assigns a document id, runs the Markdown chunker (C8),
// embeds the resulting chunks in batches, and persists them through the
// vector search service.
package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ragmw/midtier/pkg/domain"
	"github.com/ragmw/midtier/pkg/errs"
	"github.com/ragmw/midtier/pkg/fn"
	"github.com/ragmw/midtier/pkg/metrics"
)

const (
	// MaxContentBytes is the largest document the service accepts.
	MaxContentBytes = 10 * 1024 * 1024
	// EmbedBatchSize is the number of chunks embedded per batch call.
	EmbedBatchSize = 10
)

// Embedder is the batch embedding collaborator (C11).
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingStore persists chunks with their embeddings (C10's write path).
type EmbeddingStore interface {
	StoreEmbeddings(ctx context.Context, chunks []domain.Chunk) error
}

// Deps holds the document service's external collaborators.
type Deps struct {
	Embedder Embedder
	Store    EmbeddingStore
	Chunker  ChunkerConfig
	Logger   *slog.Logger
	// Metrics, if set, receives per-stage latency observations for the
	// chunk and embed stages. Nil disables observation.
	Metrics *metrics.Metrics
}

// Service is the document service (C9).
type Service struct {
	deps Deps
	log  *slog.Logger
}

// New constructs the document service.
func New(deps Deps) *Service {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	if deps.Chunker == (ChunkerConfig{}) {
		deps.Chunker = DefaultChunkerConfig
	}
	return &Service{deps: deps, log: log}
}

// Ingest validates, chunks, embeds, and stores a document, returning its
// assigned document id. Any batch embedding failure aborts the ingestion:
// partially embedded chunks are never stored. A document that produces no
// chunks (e.g. empty after Markdown stripping) is not an error: it is
// logged and its document id is returned as a no-op ingest.
func (s *Service) Ingest(ctx context.Context, input DocumentInput) (string, error) {
	parsed := fn.Then(LoggedTap[DocumentInput]("validate", s.log), s.validate())(ctx, input)
	if parsed.IsErr() {
		_, err := parsed.Unwrap()
		return "", err
	}
	doc, _ := parsed.Unwrap()

	chunked := fn.Then(LoggedTap[parsedDocument]("chunk", s.log), metrics.TimeStage(s.deps.Metrics, "chunk", s.chunkStage()))(ctx, doc)
	if chunked.IsErr() {
		_, err := chunked.Unwrap()
		return "", err
	}
	chunks, _ := chunked.Unwrap()

	if len(chunks) == 0 {
		s.log.Warn("ingest.no_chunks", "document_id", doc.DocumentID, "filename", doc.Filename)
		return doc.DocumentID, nil
	}

	pipeline := fn.Then(
		LoggedTap[[]domain.Chunk]("embed", s.log),
		fn.Then(metrics.TimeStage(s.deps.Metrics, "embed", s.embedStage()), fn.Then(
			LoggedTap[[]domain.Chunk]("store", s.log),
			s.storeStage(),
		)),
	)

	r := pipeline(ctx, chunks)
	if r.IsErr() {
		_, err := r.Unwrap()
		return "", err
	}
	v, _ := r.Unwrap()
	return v, nil
}

func (s *Service) validate() fn.Stage[DocumentInput, parsedDocument] {
	return func(ctx context.Context, in DocumentInput) fn.Result[parsedDocument] {
		if in.Content == "" {
			return fn.Err[parsedDocument](errs.Validationf("document content must not be empty"))
		}
		if len(in.Content) > MaxContentBytes {
			return fn.Err[parsedDocument](errs.Validationf("document exceeds maximum size of %d bytes", MaxContentBytes))
		}
		if in.Filename == "" {
			return fn.Err[parsedDocument](errs.Validationf("filename must not be empty"))
		}
		return fn.Ok(parsedDocument{
			DocumentID: uuid.NewString(),
			Filename:   in.Filename,
			Content:    in.Content,
		})
	}
}

func (s *Service) chunkStage() fn.Stage[parsedDocument, []domain.Chunk] {
	cfg := s.deps.Chunker
	return func(ctx context.Context, doc parsedDocument) fn.Result[[]domain.Chunk] {
		chunks := ChunkDocument(doc.DocumentID, doc.Filename, doc.Content, cfg)
		now := time.Now().UTC()
		for i := range chunks {
			chunks[i].ID = uuid.NewString()
			chunks[i].CreatedAt = now
		}
		return fn.Ok(chunks)
	}
}

func (s *Service) embedStage() fn.Stage[[]domain.Chunk, []domain.Chunk] {
	return func(ctx context.Context, chunks []domain.Chunk) fn.Result[[]domain.Chunk] {
		offset := 0
		for _, batch := range fn.Chunk(chunks, EmbedBatchSize) {
			texts := fn.Map(batch, func(c domain.Chunk) string { return c.Content })
			embeddings, err := s.deps.Embedder.EmbedBatch(ctx, texts)
			if err != nil {
				return fn.Err[[]domain.Chunk](errs.Wrap(errs.DocumentProcessing, "embed batch failed", err))
			}
			if len(embeddings) != len(batch) {
				return fn.Err[[]domain.Chunk](errs.DocumentProcessingf(
					"embedding batch returned %d vectors for %d chunks", len(embeddings), len(batch)))
			}
			for i := range batch {
				chunks[offset+i].Embedding = embeddings[i]
			}
			offset += len(batch)
		}
		return fn.Ok(chunks)
	}
}

func (s *Service) storeStage() fn.Stage[[]domain.Chunk, string] {
	return func(ctx context.Context, chunks []domain.Chunk) fn.Result[string] {
		if err := s.deps.Store.StoreEmbeddings(ctx, chunks); err != nil {
			return fn.Err[string](err)
		}
		return fn.Ok(chunks[0].DocumentID)
	}
}

// LoggedTap returns a stage that logs entry and passes the value through
// unchanged. Stage exit and duration are not logged; the surrounding Then
// call records them only as a trace span.
func LoggedTap[T any](name string, log *slog.Logger) fn.Stage[T, T] {
	return func(ctx context.Context, t T) fn.Result[T] {
		log.Info("stage.enter", "stage", name)
		return fn.Ok(t)
	}
}
