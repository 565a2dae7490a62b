package ingest

import (
	"strings"

	"github.com/ragmw/midtier/pkg/domain"
	"github.com/ragmw/midtier/pkg/markdown"
)

// ChunkerConfig controls how the element stream is grouped into chunks.
type ChunkerConfig struct {
	MaxChunkSize      int
	OverlapSize       int
	MinChunkSize      int
	RespectBoundaries bool
}

var DefaultChunkerConfig = ChunkerConfig{
	MaxChunkSize:      2000,
	OverlapSize:       200,
	MinChunkSize:      100,
	RespectBoundaries: true,
}

// boundaryBreak searches the tail of s for the best semantic break point,
// preferring ". " over "\n\n" over "\n". Returns -1 if none is found.
func boundaryBreak(s string, windowChars int) int {
	if windowChars > len(s) {
		windowChars = len(s)
	}
	tail := s[len(s)-windowChars:]
	offset := len(s) - windowChars

	if idx := strings.LastIndex(tail, ". "); idx != -1 {
		return offset + idx + 2
	}
	if idx := strings.LastIndex(tail, "\n\n"); idx != -1 {
		return offset + idx + 2
	}
	if idx := strings.LastIndex(tail, "\n"); idx != -1 {
		return offset + idx + 1
	}
	return -1
}

// splitLargeElement splits content exceeding maxSize into windows, searching
// the last ~200 characters of each window for a break point before cutting.
func splitLargeElement(content string, maxSize, overlap int) []string {
	var parts []string
	start := 0
	for start < len(content) {
		end := start + maxSize
		if end > len(content) {
			end = len(content)
		}
		window := content[start:end]
		breakAt := end
		if end < len(content) {
			if b := boundaryBreak(window, 200); b != -1 && b > 0 {
				breakAt = start + b
			}
		}
		parts = append(parts, content[start:breakAt])

		nextStart := breakAt - overlap
		if nextStart <= start {
			nextStart = start + 1
		}
		start = nextStart
		if breakAt >= len(content) {
			break
		}
	}
	return parts
}

// overlapContent returns the trailing overlapSize characters of prev,
// trimmed forward to the nearest semantic boundary.
func overlapContent(prev string, overlapSize int) string {
	if overlapSize <= 0 || prev == "" {
		return ""
	}
	n := overlapSize
	if n > len(prev) {
		n = len(prev)
	}
	tail := prev[len(prev)-n:]
	if b := boundaryBreak(tail, len(tail)); b != -1 && b < len(tail) {
		return tail[b:]
	}
	return tail
}

type bufferedElement struct {
	content       string
	typ           domain.ChunkType
	headers       []string
	startPosition int
	endPosition   int
}

func dominantType(elems []bufferedElement) domain.ChunkType {
	priority := []domain.ChunkType{domain.ChunkCodeBlock, domain.ChunkTable, domain.ChunkList, domain.ChunkQuote, domain.ChunkHeader}
	seen := make(map[domain.ChunkType]bool)
	for _, e := range elems {
		seen[e.typ] = true
	}
	for _, t := range priority {
		if seen[t] {
			return t
		}
	}
	return domain.ChunkText
}

// ChunkDocument runs the full C8 algorithm over content, returning ordered
// chunks for documentID. sourceFile is recorded in each chunk's metadata.
func ChunkDocument(documentID, sourceFile, content string, cfg ChunkerConfig) []domain.Chunk {
	elements := markdown.Parse(content)

	var chunks []domain.Chunk
	var buf []bufferedElement
	var bufLen int

	// flush finalizes buf into a chunk (if it clears MinChunkSize), then
	// seeds the next buf with the overlap carried from this chunk's tail
	// as a synthetic leading element, so the overlap counts toward every
	// subsequent overflow check instead of being appended after it.
	flush := func() {
		if len(buf) == 0 {
			return
		}
		var text string
		for i, e := range buf {
			if i > 0 {
				text += "\n"
			}
			text += e.content
		}

		start := buf[0].startPosition
		end := buf[len(buf)-1].endPosition
		var headers []string
		for _, e := range buf {
			if len(e.headers) > len(headers) {
				headers = e.headers
			}
		}
		typ := dominantType(buf)

		if len(strings.TrimSpace(text)) >= cfg.MinChunkSize {
			chunks = append(chunks, domain.Chunk{
				DocumentID: documentID,
				Content:    text,
				Metadata: domain.ChunkMetadata{
					SourceFile:    sourceFile,
					ChunkIndex:    len(chunks),
					ChunkType:     typ,
					Headers:       headers,
					StartPosition: intPtr(start),
					EndPosition:   intPtr(end),
				},
			})
		}

		buf = nil
		bufLen = 0
		if cfg.OverlapSize > 0 {
			if overlap := overlapContent(text, cfg.OverlapSize); overlap != "" {
				buf = append(buf, bufferedElement{
					content:       overlap,
					typ:           typ,
					headers:       headers,
					startPosition: end,
					endPosition:   end,
				})
				bufLen = len(overlap) + 1
			}
		}
	}

	for _, el := range elements {
		if len(el.Content) > cfg.MaxChunkSize {
			flush()
			parts := splitLargeElement(el.Content, cfg.MaxChunkSize, cfg.OverlapSize)
			for _, p := range parts {
				trimmed := strings.TrimSpace(p)
				if len(trimmed) < cfg.MinChunkSize {
					continue
				}
				// Tolerate up to 20% overflow from oversize splits only.
				if len(p) > int(float64(cfg.MaxChunkSize)*1.2) {
					p = p[:int(float64(cfg.MaxChunkSize)*1.2)]
				}
				chunks = append(chunks, domain.Chunk{
					DocumentID: documentID,
					Content:    p,
					Metadata: domain.ChunkMetadata{
						SourceFile: sourceFile,
						ChunkIndex: len(chunks),
						ChunkType:  el.Type,
						Headers:    el.Headers,
						StartPosition: intPtr(el.StartPosition),
						EndPosition:   intPtr(el.EndPosition),
					},
				})
			}
			continue
		}

		candidateLen := bufLen + len(el.Content) + 1
		if bufLen > 0 && candidateLen > cfg.MaxChunkSize {
			flush()
		}

		buf = append(buf, bufferedElement{
			content:       el.Content,
			typ:           el.Type,
			headers:       el.Headers,
			startPosition: el.StartPosition,
			endPosition:   el.EndPosition,
		})
		bufLen += len(el.Content) + 1
	}
	flush()

	return chunks
}

func intPtr(v int) *int { return &v }
