// Package semantic implements the vector repository (C7): collection
// lifecycle, chunk persistence, similarity search, and document-scoped
// fetch/delete against Qdrant.
package semantic

import (
	"context"
	"fmt"
	"math"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ragmw/midtier/pkg/domain"
	"github.com/ragmw/midtier/pkg/errs"
	"github.com/ragmw/midtier/pkg/fn"
)

// Config configures the repository's collection and retry behavior.
type Config struct {
	Collection   string
	VectorSize   int
	MaxRetries   int
	BaseDelayMs  int
	MaxDelayMs   int
}

// DefaultConfig mirrors the repository's default retry policy.
var DefaultConfig = Config{
	MaxRetries:  3,
	BaseDelayMs: 100,
	MaxDelayMs:  2000,
}

// VectorStore is the sole owner of all Qdrant operations.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	cfg         Config
}

// New creates a VectorStore connected to Qdrant at the given gRPC address.
func New(addr string, cfg Config) (*VectorStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultConfig.MaxRetries
	}
	if cfg.BaseDelayMs == 0 {
		cfg.BaseDelayMs = DefaultConfig.BaseDelayMs
	}
	if cfg.MaxDelayMs == 0 {
		cfg.MaxDelayMs = DefaultConfig.MaxDelayMs
	}
	return &VectorStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		cfg:         cfg,
	}, nil
}

// NewFromConn builds a VectorStore over an already-established connection,
// e.g. one checked out of a pkg/pool.QdrantPool.
func NewFromConn(conn *grpc.ClientConn, cfg Config) *VectorStore {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultConfig.MaxRetries
	}
	if cfg.BaseDelayMs == 0 {
		cfg.BaseDelayMs = DefaultConfig.BaseDelayMs
	}
	if cfg.MaxDelayMs == 0 {
		cfg.MaxDelayMs = DefaultConfig.MaxDelayMs
	}
	return &VectorStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		cfg:         cfg,
	}
}

// NewWithClients builds a VectorStore directly from gRPC client
// interfaces, bypassing the dial step. Used by tests to inject mocks.
func NewWithClients(points pb.PointsClient, collections pb.CollectionsClient, cfg Config) *VectorStore {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultConfig.MaxRetries
	}
	if cfg.BaseDelayMs == 0 {
		cfg.BaseDelayMs = DefaultConfig.BaseDelayMs
	}
	if cfg.MaxDelayMs == 0 {
		cfg.MaxDelayMs = DefaultConfig.MaxDelayMs
	}
	return &VectorStore{points: points, collections: collections, cfg: cfg}
}

// Close closes the underlying gRPC connection. A no-op when the store was
// built with NewWithClients, since there is no owned connection.
func (v *VectorStore) Close() error {
	if v.conn == nil {
		return nil
	}
	return v.conn.Close()
}

// withRetry runs op up to cfg.MaxRetries times total, sleeping
// delay(attempt) = BaseDelayMs * 2^(attempt-1), capped at MaxDelayMs,
// between attempts.
func (v *VectorStore) withRetry(ctx context.Context, op func(context.Context) error) error {
	lastErr := error(errs.Databasef("no attempts made"))
	for attempt := 1; attempt <= v.cfg.MaxRetries; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == v.cfg.MaxRetries {
			break
		}
		delayMs := float64(v.cfg.BaseDelayMs) * math.Pow(2, float64(attempt-1))
		if delayMs > float64(v.cfg.MaxDelayMs) {
			delayMs = float64(v.cfg.MaxDelayMs)
		}
		select {
		case <-time.After(time.Duration(delayMs) * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// CollectionExists probes the collection. A not-found response resolves
// to false rather than an error.
func (v *VectorStore) CollectionExists(ctx context.Context) (bool, error) {
	var exists bool
	err := v.withRetry(ctx, func(ctx context.Context) error {
		list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
		if err != nil {
			if status.Code(err) == codes.NotFound {
				exists = false
				return nil
			}
			return err
		}
		for _, c := range list.GetCollections() {
			if c.GetName() == v.cfg.Collection {
				exists = true
				return nil
			}
		}
		exists = false
		return nil
	})
	if err != nil {
		return false, errs.Wrap(errs.VectorSearch, "semantic: list collections", err)
	}
	return exists, nil
}

// InitializeCollection idempotently creates the collection with cosine
// distance and the configured vector size.
func (v *VectorStore) InitializeCollection(ctx context.Context) error {
	exists, err := v.CollectionExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	size := uint64(v.cfg.VectorSize)
	return v.withRetry(ctx, func(ctx context.Context) error {
		_, err := v.collections.Create(ctx, &pb.CreateCollection{
			CollectionName: v.cfg.Collection,
			VectorsConfig: &pb.VectorsConfig{
				Config: &pb.VectorsConfig_Params{
					Params: &pb.VectorParams{
						Size:     size,
						Distance: pb.Distance_Cosine,
					},
				},
			},
		})
		if err != nil {
			return errs.Wrap(errs.VectorSearch, fmt.Sprintf("semantic: create collection %s", v.cfg.Collection), err)
		}
		return nil
	})
}

// DeleteCollection deletes the collection.
func (v *VectorStore) DeleteCollection(ctx context.Context) error {
	return v.withRetry(ctx, func(ctx context.Context) error {
		_, err := v.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: v.cfg.Collection})
		if err != nil {
			return errs.Wrap(errs.VectorSearch, fmt.Sprintf("semantic: delete collection %s", v.cfg.Collection), err)
		}
		return nil
	})
}

// StoreChunks validates and upserts chunks with their full payload schema.
func (v *VectorStore) StoreChunks(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	points := make([]*pb.PointStruct, len(chunks))
	for i, c := range chunks {
		if len(c.Embedding) != v.cfg.VectorSize {
			return errs.Validationf("chunk %s: embedding length %d does not match vector size %d", c.ID, len(c.Embedding), v.cfg.VectorSize)
		}
		points[i] = chunkToPoint(c)
	}

	wait := true
	return v.withRetry(ctx, func(ctx context.Context) error {
		_, err := v.points.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: v.cfg.Collection,
			Wait:           &wait,
			Points:         points,
		})
		if err != nil {
			return errs.Wrap(errs.VectorSearch, fmt.Sprintf("semantic: upsert %d points", len(points)), err)
		}
		return nil
	})
}

// SearchSimilar performs a cosine similarity search. When scoreThreshold
// is non-nil, only points scoring at or above it are returned.
func (v *VectorStore) SearchSimilar(ctx context.Context, queryVector []float32, limit int, scoreThreshold *float32) ([]domain.SearchResult, error) {
	if len(queryVector) != v.cfg.VectorSize {
		return nil, errs.Validationf("query vector length %d does not match vector size %d", len(queryVector), v.cfg.VectorSize)
	}

	req := &pb.SearchPoints{
		CollectionName: v.cfg.Collection,
		Vector:         queryVector,
		Limit:          uint64(limit),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		WithVectors:    &pb.WithVectorsSelector{SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: true}},
	}
	if scoreThreshold != nil {
		t := *scoreThreshold
		req.ScoreThreshold = &t
	}

	var results []domain.SearchResult
	err := v.withRetry(ctx, func(ctx context.Context) error {
		resp, err := v.points.Search(ctx, req)
		if err != nil {
			return errs.Wrap(errs.VectorSearch, "semantic: search", err)
		}
		results = fn.Map(resp.GetResult(), func(r *pb.ScoredPoint) domain.SearchResult {
			return domain.SearchResult{
				Chunk:          pointToChunk(r.GetId().GetUuid(), r.GetPayload(), r.GetVectors()),
				RelevanceScore: r.GetScore(),
			}
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// GetChunksByDocumentID fetches every chunk stored under documentID via a
// filter-only scroll, hydrating chunks from their payload.
func (v *VectorStore) GetChunksByDocumentID(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	err := v.withRetry(ctx, func(ctx context.Context) error {
		chunks = nil
		var offset *pb.PointId
		for {
			req := &pb.ScrollPoints{
				CollectionName: v.cfg.Collection,
				Filter: &pb.Filter{
					Must: []*pb.Condition{fieldMatch("document_id", documentID)},
				},
				WithPayload: &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
				WithVectors: &pb.WithVectorsSelector{SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: true}},
				Offset:      offset,
			}
			resp, err := v.points.Scroll(ctx, req)
			if err != nil {
				return errs.Wrap(errs.VectorSearch, fmt.Sprintf("semantic: scroll document %s", documentID), err)
			}
			for _, p := range resp.GetResult() {
				chunks = append(chunks, pointToChunk(p.GetId().GetUuid(), p.GetPayload(), p.GetVectors()))
			}
			if resp.GetNextPageOffset() == nil {
				return nil
			}
			offset = resp.GetNextPageOffset()
		}
	})
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

// DeleteChunksByDocumentID removes every point matching documentID.
func (v *VectorStore) DeleteChunksByDocumentID(ctx context.Context, documentID string) error {
	wait := true
	return v.withRetry(ctx, func(ctx context.Context) error {
		_, err := v.points.Delete(ctx, &pb.DeletePoints{
			CollectionName: v.cfg.Collection,
			Wait:           &wait,
			Points: &pb.PointsSelector{
				PointsSelectorOneOf: &pb.PointsSelector_Filter{
					Filter: &pb.Filter{Must: []*pb.Condition{fieldMatch("document_id", documentID)}},
				},
			},
		})
		if err != nil {
			return errs.Wrap(errs.VectorSearch, fmt.Sprintf("semantic: delete by document_id %s", documentID), err)
		}
		return nil
	})
}

// DeleteChunk removes a single point by its id.
func (v *VectorStore) DeleteChunk(ctx context.Context, chunkID string) error {
	wait := true
	return v.withRetry(ctx, func(ctx context.Context) error {
		_, err := v.points.Delete(ctx, &pb.DeletePoints{
			CollectionName: v.cfg.Collection,
			Wait:           &wait,
			Points: &pb.PointsSelector{
				PointsSelectorOneOf: &pb.PointsSelector_Points{
					Points: &pb.PointsIdsList{
						Ids: []*pb.PointId{{PointIdOptions: &pb.PointId_Uuid{Uuid: chunkID}}},
					},
				},
			},
		})
		if err != nil {
			return errs.Wrap(errs.VectorSearch, fmt.Sprintf("semantic: delete chunk %s", chunkID), err)
		}
		return nil
	})
}

// GetCollectionInfo returns collection-level statistics.
func (v *VectorStore) GetCollectionInfo(ctx context.Context) (CollectionStats, error) {
	var stats CollectionStats
	err := v.withRetry(ctx, func(ctx context.Context) error {
		resp, err := v.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: v.cfg.Collection})
		if err != nil {
			return errs.Wrap(errs.VectorSearch, fmt.Sprintf("semantic: get collection info %s", v.cfg.Collection), err)
		}
		info := resp.GetResult()
		stats = CollectionStats{
			TotalVectors:     info.GetVectorsCount(),
			IndexedVectors:   info.GetIndexedVectorsCount(),
			CollectionStatus: info.GetStatus().String(),
		}
		return nil
	})
	if err != nil {
		return CollectionStats{}, err
	}
	return stats, nil
}

// HealthCheck pings the provider with a lightweight list-collections call.
func (v *VectorStore) HealthCheck(ctx context.Context) bool {
	_, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	return err == nil
}

func chunkToPoint(c domain.Chunk) *pb.PointStruct {
	payload := map[string]*pb.Value{
		"document_id": {Kind: &pb.Value_StringValue{StringValue: c.DocumentID}},
		"content":     {Kind: &pb.Value_StringValue{StringValue: c.Content}},
		"source_file": {Kind: &pb.Value_StringValue{StringValue: c.Metadata.SourceFile}},
		"chunk_index": {Kind: &pb.Value_IntegerValue{IntegerValue: int64(c.Metadata.ChunkIndex)}},
		"chunk_type":  {Kind: &pb.Value_StringValue{StringValue: c.Metadata.ChunkType.String()}},
		"created_at":  {Kind: &pb.Value_StringValue{StringValue: c.CreatedAt.UTC().Format(time.RFC3339)}},
		"headers":     headersValue(c.Metadata.Headers),
	}
	if c.Metadata.ParentSection != "" {
		payload["parent_section"] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: c.Metadata.ParentSection}}
	}
	if c.Metadata.StartPosition != nil {
		payload["start_position"] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(*c.Metadata.StartPosition)}}
	}
	if c.Metadata.EndPosition != nil {
		payload["end_position"] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(*c.Metadata.EndPosition)}}
	}

	return &pb.PointStruct{
		Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: c.ID}},
		Vectors: &pb.Vectors{
			VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: c.Embedding}},
		},
		Payload: payload,
	}
}

func headersValue(headers []string) *pb.Value {
	values := make([]*pb.Value, len(headers))
	for i, h := range headers {
		values[i] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: h}}
	}
	return &pb.Value{Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: values}}}
}

func pointToChunk(id string, payload map[string]*pb.Value, vectors *pb.VectorsOutput) domain.Chunk {
	c := domain.Chunk{ID: id}
	if v, ok := payload["document_id"]; ok {
		c.DocumentID = v.GetStringValue()
	}
	if v, ok := payload["content"]; ok {
		c.Content = v.GetStringValue()
	}
	if v, ok := payload["source_file"]; ok {
		c.Metadata.SourceFile = v.GetStringValue()
	}
	if v, ok := payload["chunk_index"]; ok {
		c.Metadata.ChunkIndex = int(v.GetIntegerValue())
	}
	if v, ok := payload["chunk_type"]; ok {
		c.Metadata.ChunkType = domain.ParseChunkType(v.GetStringValue())
	}
	if v, ok := payload["created_at"]; ok {
		if t, err := time.Parse(time.RFC3339, v.GetStringValue()); err == nil {
			c.CreatedAt = t
		}
	}
	if v, ok := payload["headers"]; ok {
		for _, item := range v.GetListValue().GetValues() {
			c.Metadata.Headers = append(c.Metadata.Headers, item.GetStringValue())
		}
	}
	if v, ok := payload["parent_section"]; ok {
		c.Metadata.ParentSection = v.GetStringValue()
	}
	if v, ok := payload["start_position"]; ok {
		n := int(v.GetIntegerValue())
		c.Metadata.StartPosition = &n
	}
	if v, ok := payload["end_position"]; ok {
		n := int(v.GetIntegerValue())
		c.Metadata.EndPosition = &n
	}
	if vec := vectors.GetVector(); vec != nil {
		c.Embedding = vec.GetData()
	}
	return c
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}
