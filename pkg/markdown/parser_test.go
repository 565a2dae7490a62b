package markdown

import (
	"testing"

	"github.com/ragmw/midtier/pkg/domain"
)

func TestParseHeadersBuildAncestorStack(t *testing.T) {
	doc := "# Title\n\nIntro text.\n\n## Section\n\nBody text.\n"
	elements := Parse(doc)

	var gotTypes []domain.ChunkType
	for _, e := range elements {
		gotTypes = append(gotTypes, e.Type)
	}
	if len(elements) < 4 {
		t.Fatalf("expected at least 4 elements, got %d: %+v", len(elements), elements)
	}

	section := elements[2]
	if section.Type != domain.ChunkHeader || section.Content != "Section" {
		t.Fatalf("expected Section header at index 2, got %+v", section)
	}
	if len(section.Headers) != 1 || section.Headers[0] != "Title" {
		t.Fatalf("expected ancestor [Title], got %v", section.Headers)
	}

	body := elements[3]
	if len(body.Headers) != 2 || body.Headers[1] != "Section" {
		t.Fatalf("expected body element under [Title, Section], got %v", body.Headers)
	}
}

func TestParseHeaderPopsOnLowerOrEqualLevel(t *testing.T) {
	doc := "# A\n## B\n## C\n"
	elements := Parse(doc)
	if len(elements) != 3 {
		t.Fatalf("expected 3 header elements, got %d", len(elements))
	}
	if elements[2].Content != "C" || len(elements[2].Headers) != 1 || elements[2].Headers[0] != "A" {
		t.Fatalf("expected C to pop B and keep only A as ancestor, got %+v", elements[2])
	}
}

func TestParseCodeBlock(t *testing.T) {
	doc := "Some text.\n\n```go\nfunc main() {}\n```\n\nMore text.\n"
	elements := Parse(doc)

	var found bool
	for _, e := range elements {
		if e.Type == domain.ChunkCodeBlock {
			found = true
			if e.Content != "```go\nfunc main() {}\n```" {
				t.Fatalf("unexpected code block content: %q", e.Content)
			}
		}
	}
	if !found {
		t.Fatal("expected a code block element")
	}
}

func TestParseListAndQuote(t *testing.T) {
	doc := "- item one\n- item two\n\n> a quote\n> continued\n"
	elements := Parse(doc)

	var sawList, sawQuote bool
	for _, e := range elements {
		if e.Type == domain.ChunkList {
			sawList = true
		}
		if e.Type == domain.ChunkQuote {
			sawQuote = true
		}
	}
	if !sawList || !sawQuote {
		t.Fatalf("expected both list and quote elements, got %+v", elements)
	}
}

func TestParseTable(t *testing.T) {
	doc := "| a | b |\n|---|---|\n| 1 | 2 |\n"
	elements := Parse(doc)
	if len(elements) != 1 || elements[0].Type != domain.ChunkTable {
		t.Fatalf("expected a single table element, got %+v", elements)
	}
}

func TestParsePositionsAreMonotonic(t *testing.T) {
	doc := "# Title\n\nBody one.\n\nBody two.\n"
	elements := Parse(doc)
	for i := 1; i < len(elements); i++ {
		if elements[i].StartPosition < elements[i-1].StartPosition {
			t.Fatalf("positions not monotonic at index %d: %+v", i, elements)
		}
	}
}
