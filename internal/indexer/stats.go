package indexer

import (
	"math"
	"sort"
	"unicode/utf8"
)

// ChunkerVersion identifies the chunking algorithm. Bump it when window
// boundaries change so re-ingested documents can be told apart.
const ChunkerVersion = "v2.0"

// ChunkStats summarizes the chunks produced for one document.
type ChunkStats struct {
	// Chunks is the number of chunk records.
	Chunks int `json:"chunks"`
	// Pages is the number of distinct pages that produced at least one chunk.
	Pages int `json:"pages"`
	// MinChars is the shortest chunk length in runes.
	MinChars int `json:"min_chars"`
	// MaxChars is the longest chunk length in runes.
	MaxChars int `json:"max_chars"`
	// MeanChars is the mean chunk length in runes.
	MeanChars float64 `json:"mean_chars"`
	// P95Chars is the 95th percentile chunk length in runes.
	P95Chars int `json:"p95_chars"`
	// ChunkerVersion is the version of the chunker used.
	ChunkerVersion string `json:"chunker_version"`
}

// ComputeChunkStats computes length statistics over records.
func ComputeChunkStats(records []ChunkRecord) ChunkStats {
	stats := ChunkStats{
		Chunks:         len(records),
		ChunkerVersion: ChunkerVersion,
	}
	if len(records) == 0 {
		return stats
	}

	pages := make(map[int]struct{})
	lengths := make([]int, 0, len(records))
	for _, r := range records {
		pages[r.Metadata.Page] = struct{}{}
		lengths = append(lengths, utf8.RuneCountInString(r.Content))
	}
	stats.Pages = len(pages)

	// Sort for percentile calculation
	sort.Ints(lengths)
	stats.MinChars = lengths[0]
	stats.MaxChars = lengths[len(lengths)-1]

	sum := 0
	for _, l := range lengths {
		sum += l
	}
	stats.MeanChars = math.Round(float64(sum)/float64(len(lengths))*100) / 100

	p95Index := int(math.Ceil(float64(len(lengths))*0.95)) - 1
	if p95Index < 0 {
		p95Index = 0
	}
	stats.P95Chars = lengths[p95Index]

	return stats
}
