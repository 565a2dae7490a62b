// Package markdown implements a minimal structural scanner over Markdown
// text: it yields a linear stream of elements (headers, code blocks, lists,
// tables, quotes, plain text) with byte offsets and the ancestor header
// stack in effect at each element, for the chunker (C8) to consume.
package markdown

import (
	"regexp"
	"strings"

	"github.com/ragmw/midtier/pkg/domain"
)

// Element is one entry in the parsed stream.
type Element struct {
	Content       string
	Type          domain.ChunkType
	Headers       []string
	StartPosition int
	EndPosition   int
}

var (
	headerRe    = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
	fenceRe     = regexp.MustCompile("^(```|~~~)")
	listItemRe  = regexp.MustCompile(`^(\s*)([-*+]|\d+\.)\s+`)
	quoteRe     = regexp.MustCompile(`^>\s?`)
	tableRowRe  = regexp.MustCompile(`^\s*\|`)
	tableSepRe  = regexp.MustCompile(`^\s*\|?[\s:|-]+\|[\s:|-]*\|?\s*$`)
)

type headerEntry struct {
	level int
	text  string
}

// Parse scans content into an ordered element stream.
func Parse(content string) []Element {
	lines, offsets := splitLinesWithOffsets(content)
	var elements []Element
	var stack []headerEntry

	i := 0
	for i < len(lines) {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		if trimmed == "" {
			i++
			continue
		}

		switch {
		case fenceRe.MatchString(trimmed):
			start := i
			fence := fenceRe.FindString(trimmed)
			i++
			for i < len(lines) && !strings.HasPrefix(strings.TrimSpace(lines[i]), fence) {
				i++
			}
			if i < len(lines) {
				i++ // consume closing fence
			}
			end := i
			elements = append(elements, makeElement(lines, offsets, start, end, domain.ChunkCodeBlock, headerTexts(stack)))

		case headerRe.MatchString(trimmed):
			m := headerRe.FindStringSubmatch(trimmed)
			level := len(m[1])
			text := strings.TrimSpace(m[2])
			for len(stack) > 0 && stack[len(stack)-1].level >= level {
				stack = stack[:len(stack)-1]
			}
			ancestors := headerTexts(stack)
			elements = append(elements, Element{
				Content:       text,
				Type:          domain.ChunkHeader,
				Headers:       ancestors,
				StartPosition: offsets[i],
				EndPosition:   offsets[i] + len(line),
			})
			stack = append(stack, headerEntry{level: level, text: text})
			i++

		case tableRowRe.MatchString(line) && i+1 < len(lines) && tableSepRe.MatchString(lines[i+1]):
			start := i
			i += 2
			for i < len(lines) && tableRowRe.MatchString(lines[i]) {
				i++
			}
			end := i
			elements = append(elements, makeElement(lines, offsets, start, end, domain.ChunkTable, headerTexts(stack)))

		case quoteRe.MatchString(line):
			start := i
			for i < len(lines) && quoteRe.MatchString(lines[i]) {
				i++
			}
			end := i
			elements = append(elements, makeElement(lines, offsets, start, end, domain.ChunkQuote, headerTexts(stack)))

		case listItemRe.MatchString(line):
			start := i
			for i < len(lines) && strings.TrimSpace(lines[i]) != "" &&
				(listItemRe.MatchString(lines[i]) || strings.HasPrefix(lines[i], "  ") || strings.HasPrefix(lines[i], "\t")) {
				i++
			}
			end := i
			elements = append(elements, makeElement(lines, offsets, start, end, domain.ChunkList, headerTexts(stack)))

		default:
			start := i
			for i < len(lines) && strings.TrimSpace(lines[i]) != "" &&
				!headerRe.MatchString(strings.TrimSpace(lines[i])) &&
				!fenceRe.MatchString(strings.TrimSpace(lines[i])) &&
				!quoteRe.MatchString(lines[i]) &&
				!listItemRe.MatchString(lines[i]) {
				i++
			}
			end := i
			elements = append(elements, makeElement(lines, offsets, start, end, domain.ChunkText, headerTexts(stack)))
		}
	}

	return elements
}

func makeElement(lines []string, offsets []int, start, end int, typ domain.ChunkType, headers []string) Element {
	if end <= start {
		end = start + 1
	}
	if end > len(lines) {
		end = len(lines)
	}
	joined := strings.Join(lines[start:end], "\n")
	startPos := offsets[start]
	var endPos int
	if end-1 < len(offsets) {
		endPos = offsets[end-1] + len(lines[end-1])
	} else {
		endPos = startPos + len(joined)
	}
	return Element{
		Content:       strings.TrimRight(joined, "\n"),
		Type:          typ,
		Headers:       headers,
		StartPosition: startPos,
		EndPosition:   endPos,
	}
}

func headerTexts(stack []headerEntry) []string {
	if len(stack) == 0 {
		return nil
	}
	out := make([]string, len(stack))
	for i, h := range stack {
		out[i] = h.text
	}
	return out
}

// splitLinesWithOffsets splits content on "\n" and records each line's
// starting byte offset in the original content.
func splitLinesWithOffsets(content string) ([]string, []int) {
	lines := strings.Split(content, "\n")
	offsets := make([]int, len(lines))
	pos := 0
	for i, l := range lines {
		offsets[i] = pos
		pos += len(l) + 1
	}
	return lines, offsets
}
