package ingest

import (
	"strings"
	"testing"

	"github.com/ragmw/midtier/pkg/domain"
)

// smallDocChunkerConfig lowers MinChunkSize so that the short sample
// documents below are kept; DefaultChunkerConfig drops anything under 100
// characters.
var smallDocChunkerConfig = ChunkerConfig{MaxChunkSize: 2000, OverlapSize: 200, MinChunkSize: 10, RespectBoundaries: true}

func TestChunkSimpleDocument(t *testing.T) {
	doc := "# Title\n\nThis is a short paragraph of body text under the title.\n"
	chunks := ChunkDocument("doc-1", "doc.md", doc, smallDocChunkerConfig)
	if len(chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}
	for _, c := range chunks {
		if c.DocumentID != "doc-1" {
			t.Fatalf("expected document id doc-1, got %s", c.DocumentID)
		}
		if c.Metadata.SourceFile != "doc.md" {
			t.Fatalf("expected source file doc.md, got %s", c.Metadata.SourceFile)
		}
	}
}

func TestChunkLargeDocumentRespectsMaxSize(t *testing.T) {
	cfg := ChunkerConfig{MaxChunkSize: 200, OverlapSize: 20, MinChunkSize: 10, RespectBoundaries: true}
	var sb strings.Builder
	for i := 0; i < 50; i++ {
		sb.WriteString("This is sentence number filler text for the paragraph. ")
	}
	chunks := ChunkDocument("doc-2", "big.md", sb.String(), cfg)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks for oversize content, got %d", len(chunks))
	}
	tolerance := int(float64(cfg.MaxChunkSize) * 1.2)
	for i, c := range chunks {
		if len(c.Content) > tolerance {
			t.Fatalf("chunk %d exceeds tolerated size: %d > %d", i, len(c.Content), tolerance)
		}
	}
}

func TestChunkWithHeadersCarriesAncestry(t *testing.T) {
	doc := "# Top\n\n## Sub\n\nContent under sub-heading that should carry header ancestry with it for retrieval context.\n"
	chunks := ChunkDocument("doc-3", "headers.md", doc, smallDocChunkerConfig)
	var sawAncestry bool
	for _, c := range chunks {
		if len(c.Metadata.Headers) > 0 {
			sawAncestry = true
		}
	}
	if !sawAncestry {
		t.Fatal("expected at least one chunk to carry header ancestry")
	}
}

func TestChunkRegularChunksRespectMaxSizeWithLargeOverlap(t *testing.T) {
	// OverlapSize here is 40% of MaxChunkSize, well above the ~20% this
	// regresses: a buggy overflow check that ignores the carried-over
	// overlap lets a regular (non-split) chunk grow past MaxChunkSize by
	// up to len(overlap).
	cfg := ChunkerConfig{MaxChunkSize: 150, OverlapSize: 60, MinChunkSize: 10, RespectBoundaries: true}
	var sb strings.Builder
	for i := 0; i < 60; i++ {
		sb.WriteString("A short paragraph that stays comfortably under the element size limit.\n\n")
	}
	chunks := ChunkDocument("doc-overlap", "overlap.md", sb.String(), cfg)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c.Content) > cfg.MaxChunkSize {
			t.Fatalf("regular chunk %d exceeds max_chunk_size: %d > %d (content: %q)", i, len(c.Content), cfg.MaxChunkSize, c.Content)
		}
	}
}

func TestChunkDropsBelowMinSize(t *testing.T) {
	cfg := ChunkerConfig{MaxChunkSize: 2000, OverlapSize: 0, MinChunkSize: 500, RespectBoundaries: true}
	chunks := ChunkDocument("doc-4", "tiny.md", "short.", cfg)
	if len(chunks) != 0 {
		t.Fatalf("expected content below min_chunk_size to be dropped, got %d chunks", len(chunks))
	}
}

func TestChunkTypeInferencePrefersCodeBlock(t *testing.T) {
	doc := "Some intro text.\n\n```go\nfunc main() {}\n```\n"
	chunks := ChunkDocument("doc-5", "code.md", doc, smallDocChunkerConfig)
	var sawCode bool
	for _, c := range chunks {
		if c.Metadata.ChunkType == domain.ChunkCodeBlock {
			sawCode = true
		}
	}
	if !sawCode {
		t.Fatal("expected a chunk classified as code_block")
	}
}
