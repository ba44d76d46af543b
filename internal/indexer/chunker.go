package indexer

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// DefaultChunkSize is the default window size in runes.
	DefaultChunkSize = 1000
	// DefaultChunkOverlap is the default number of runes shared by consecutive windows.
	DefaultChunkOverlap = 200
)

// ErrInvalidChunkParams is returned when the window size or overlap is unusable.
var ErrInvalidChunkParams = errors.New("invalid chunk parameters")

// Chunker splits text into overlapping windows that prefer sentence and word boundaries.
type Chunker struct {
	maxSize int
	overlap int
}

// NewChunker creates a Chunker. maxSize must be positive and overlap must satisfy 0 <= overlap < maxSize.
func NewChunker(maxSize, overlap int) (*Chunker, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be greater than 0, got %d", ErrInvalidChunkParams, maxSize)
	}
	if overlap < 0 || overlap >= maxSize {
		return nil, fmt.Errorf("%w: overlap must be in [0, %d), got %d", ErrInvalidChunkParams, maxSize, overlap)
	}
	return &Chunker{maxSize: maxSize, overlap: overlap}, nil
}

// MaxSize returns the window size in runes.
func (c *Chunker) MaxSize() int { return c.maxSize }

// Overlap returns the overlap in runes.
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk splits text using the chunker's parameters.
func (c *Chunker) Chunk(text string) []string {
	return ChunkText(text, c.maxSize, c.overlap)
}

// ChunkText normalizes whitespace in text and splits it into windows of at most maxSize runes.
//
// A window that is not the last one ends just after the rightmost sentence terminator
// (., ?, !) inside the trailing overlap band, or after the rightmost space there, or is
// cut hard when the band has neither. The next window starts overlap runes before the
// previous end, moved back to a word start when that lands inside a word. The cursor
// always advances by at least one rune, so the loop terminates for any input.
func ChunkText(text string, maxSize, overlap int) []string {
	runes := []rune(normalizeWhitespace(text))

	var chunks []string
	for _, s := range windows(runes, maxSize, overlap) {
		if chunk := strings.TrimSpace(string(runes[s.start:s.end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}

// span is a half-open rune range [start, end).
type span struct {
	start, end int
}

// windows computes the rune ranges ChunkText emits.
func windows(runes []rune, maxSize, overlap int) []span {
	if maxSize <= 0 {
		return nil
	}
	if overlap < 0 {
		overlap = 0
	}

	n := len(runes)
	var spans []span
	start := 0
	for start < n {
		end := start + maxSize
		if end >= n {
			spans = append(spans, span{start: start, end: n})
			break
		}

		lo := max(end-overlap, 0)
		breakAt := lastIndexFunc(runes, lo, end, isSentenceTerminal)
		if breakAt == -1 {
			breakAt = lastIndexFunc(runes, lo, end, isSpace)
		}
		if breakAt != -1 {
			end = breakAt + 1
		}
		spans = append(spans, span{start: start, end: end})

		nextStart := max(end-overlap, start)
		if start < nextStart && nextStart < end {
			if wordBreak := lastIndexFunc(runes, 0, nextStart, isSpace); wordBreak != -1 && wordBreak+1 > start {
				nextStart = wordBreak + 1
			}
		}
		start = max(nextStart, start+1)
	}
	return spans
}

func normalizeWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// lastIndexFunc returns the index of the last rune in runes[lo:hi] satisfying f, or -1.
// hi is clamped to len(runes).
func lastIndexFunc(runes []rune, lo, hi int, f func(rune) bool) int {
	hi = min(hi, len(runes))
	for i := hi - 1; i >= lo; i-- {
		if f(runes[i]) {
			return i
		}
	}
	return -1
}

func isSentenceTerminal(r rune) bool {
	return r == '.' || r == '?' || r == '!'
}

func isSpace(r rune) bool {
	return r == ' '
}
