package rag

import "strings"

// Default chunking parameters. Both are configuration, overridable per call.
const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
)

// Chunk is a bounded, possibly overlapping substring of a source document.
// Ordinal is the zero-based position within the parent document's chunk
// sequence; dropped-empty windows do not consume an ordinal.
type Chunk struct {
	Text    string
	Ordinal int
}

// ChunkText splits text into overlapping, boundary-aware segments.
//
// A sliding window of size runes advances through the text. When the window
// end falls strictly before the end of text, the cut is pulled backward to
// the rightmost sentence or line boundary (". ", "! ", "? ", "\n") inside
// the window; with no boundary in range the hard cut stands. Each chunk is
// trimmed of surrounding whitespace, and the next window starts overlap
// runes before the cut, clamped to strictly after the previous start so the
// loop always terminates.
//
// Sizes count runes, not provider tokens; non-ASCII-heavy text therefore
// under-counts against token limits.
func ChunkText(text string, size, overlap int) []Chunk {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}
	if overlap >= size {
		overlap = size - 1
	}

	runes := []rune(text)
	total := len(runes)
	if total == 0 {
		return nil
	}

	chunks := make([]Chunk, 0, total/size+1)
	start := 0
	for start < total {
		end := start + size
		final := end >= total
		if final {
			end = total
		} else if boundary := rightmostBoundary(runes, start, end); boundary > start {
			end = boundary
		}

		if segment := strings.TrimSpace(string(runes[start:end])); segment != "" {
			chunks = append(chunks, Chunk{Text: segment, Ordinal: len(chunks)})
		}
		if final {
			break
		}

		next := end - overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}

// rightmostBoundary returns the cut position just after the rightmost
// sentence or line separator fully contained in [start, end), or start when
// the window holds none. It never looks backward past start.
func rightmostBoundary(runes []rune, start, end int) int {
	for i := end - 1; i >= start; i-- {
		if runes[i] == '\n' {
			return i + 1
		}
		if i+1 < end && (runes[i] == '.' || runes[i] == '!' || runes[i] == '?') && runes[i+1] == ' ' {
			return i + 1
		}
	}
	return start
}
