// Package search implements the vector search service (C10): validation,
// cache-backed similarity search, and the chunk write/delete/stats surface
// in front of the vector repository.
package search

import (
	"context"
	"sort"

	"github.com/ragmw/midtier/engine/semantic"
	"github.com/ragmw/midtier/pkg/cache"
	"github.com/ragmw/midtier/pkg/domain"
	"github.com/ragmw/midtier/pkg/errs"
)

const (
	// MaxSearchLimit bounds the number of results a caller may request.
	MaxSearchLimit = 100
	// DefaultThreshold is the minimum relevance score applied when no
	// explicit threshold is given.
	DefaultThreshold = 0.7
)

// Repo is the vector repository collaborator (C7).
type Repo interface {
	SearchSimilar(ctx context.Context, queryVector []float32, limit int, scoreThreshold *float32) ([]domain.SearchResult, error)
	StoreChunks(ctx context.Context, chunks []domain.Chunk) error
	DeleteChunksByDocumentID(ctx context.Context, documentID string) error
	GetCollectionInfo(ctx context.Context) (semantic.CollectionStats, error)
}

// Service is the vector search service (C10).
type Service struct {
	repo  Repo
	cache *cache.Cache[cache.SearchCacheKey, any]
}

// New constructs the vector search service. searchCache may be nil, in
// which case every search bypasses the cache.
func New(repo Repo, searchCache *cache.Cache[cache.SearchCacheKey, any]) *Service {
	return &Service{repo: repo, cache: searchCache}
}

// SearchSimilar searches with the service's default threshold.
func (s *Service) SearchSimilar(ctx context.Context, vec []float32, limit int) ([]domain.SearchResult, error) {
	return s.SearchSimilarWithThreshold(ctx, vec, limit, DefaultThreshold)
}

// SearchSimilarWithThreshold validates vec and limit, consults the search
// cache, and otherwise searches the repository, sorting results descending
// by relevance score with ties broken by ascending chunk id.
func (s *Service) SearchSimilarWithThreshold(ctx context.Context, vec []float32, limit int, threshold float64) ([]domain.SearchResult, error) {
	if len(vec) == 0 {
		return nil, errs.Validationf("query vector must not be empty")
	}
	if limit <= 0 || limit > MaxSearchLimit {
		return nil, errs.Validationf("limit must be in (0, %d], got %d", MaxSearchLimit, limit)
	}
	if threshold < 0 || threshold > 1 {
		return nil, errs.Validationf("score threshold must be in [0, 1], got %f", threshold)
	}

	key := cache.NewSearchCacheKey(vec, limit, &threshold)
	search := func(ctx context.Context) (any, error) {
		t32 := float32(threshold)
		results, err := s.repo.SearchSimilar(ctx, vec, limit, &t32)
		if err != nil {
			return nil, err
		}
		sortResults(results)
		return results, nil
	}

	if s.cache == nil {
		raw, err := search(ctx)
		if err != nil {
			return nil, err
		}
		return raw.([]domain.SearchResult), nil
	}

	raw, err := cache.CachedOperation(ctx, s.cache, key, search)
	if err != nil {
		return nil, err
	}
	return raw.([]domain.SearchResult), nil
}

func sortResults(results []domain.SearchResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].RelevanceScore != results[j].RelevanceScore {
			return results[i].RelevanceScore > results[j].RelevanceScore
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})
}

// StoreEmbeddings validates that every chunk carries an id, document id,
// content, and embedding, then delegates to the repository.
func (s *Service) StoreEmbeddings(ctx context.Context, chunks []domain.Chunk) error {
	for i, c := range chunks {
		if c.ID == "" {
			return errs.Validationf("chunk %d: id must not be empty", i)
		}
		if c.DocumentID == "" {
			return errs.Validationf("chunk %d: document_id must not be empty", i)
		}
		if c.Content == "" {
			return errs.Validationf("chunk %d: content must not be empty", i)
		}
		if len(c.Embedding) == 0 {
			return errs.Validationf("chunk %d: embedding must not be empty", i)
		}
	}
	return s.repo.StoreChunks(ctx, chunks)
}

// DeleteDocumentEmbeddings removes every chunk belonging to documentID.
func (s *Service) DeleteDocumentEmbeddings(ctx context.Context, documentID string) error {
	if documentID == "" {
		return errs.Validationf("document id must not be empty")
	}
	return s.repo.DeleteChunksByDocumentID(ctx, documentID)
}

// GetCollectionStats returns the repository's collection-level summary.
func (s *Service) GetCollectionStats(ctx context.Context) (semantic.CollectionStats, error) {
	return s.repo.GetCollectionInfo(ctx)
}
