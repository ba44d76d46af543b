package vault

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"vault-ai/internal/contextutil"
	"vault-ai/internal/indexer"
	"vault-ai/internal/vectorstore"
)

const (
	// DefaultTopK is the number of results returned when the caller does not ask for a count.
	DefaultTopK = 5
	// DefaultMaxTopK caps the number of results a single search may return.
	DefaultMaxTopK = 20
)

// ScoredResult is one search hit. Score is 1 - distance rounded to four
// decimals; higher is better and 1.0 is an exact match.
type ScoredResult struct {
	Content  string           `json:"content"`
	Metadata indexer.Metadata `json:"metadata"`
	Score    float64          `json:"score"`
}

// SearchOutcome is the result of a search. Degraded is set when the index
// could not be queried; Results is then empty.
type SearchOutcome struct {
	Results  []ScoredResult
	Degraded bool
}

// Store ingests chunk records into per-vault collections and searches them.
type Store struct {
	index       vectorstore.Index
	defaultTopK int
	maxTopK     int
}

// Option configures a Store.
type Option func(*Store)

// WithTopK sets the default and maximum number of search results.
func WithTopK(defaultTopK, maxTopK int) Option {
	return func(s *Store) {
		if defaultTopK > 0 {
			s.defaultTopK = defaultTopK
		}
		if maxTopK > 0 {
			s.maxTopK = maxTopK
		}
	}
}

// NewStore creates a Store on top of index.
func NewStore(index vectorstore.Index, opts ...Option) *Store {
	s := &Store{
		index:       index,
		defaultTopK: DefaultTopK,
		maxTopK:     DefaultMaxTopK,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.defaultTopK > s.maxTopK {
		s.defaultTopK = s.maxTopK
	}
	return s
}

// ChunkID returns the storage id of the i-th chunk of source.
func ChunkID(source string, i int) string {
	return fmt.Sprintf("%s_chunk_%d", source, i)
}

// Ingest replaces everything stored for the chunks' source in vaultName with
// chunks. All chunks must come from the same source; the first one names it.
func (s *Store) Ingest(ctx context.Context, vaultName string, chunks []indexer.ChunkRecord) error {
	logger := contextutil.LoggerFromContext(ctx)

	if err := ValidateName(vaultName); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return ErrNoChunks
	}

	coll, err := s.index.Collection(ctx, vaultName)
	if err != nil {
		return fmt.Errorf("failed to open vault %s: %w", vaultName, err)
	}

	source := chunks[0].Metadata.Source
	ids := make([]string, len(chunks))
	documents := make([]string, len(chunks))
	metadatas := make([]map[string]any, len(chunks))
	for i, chunk := range chunks {
		ids[i] = ChunkID(source, i)
		documents[i] = chunk.Content
		metadatas[i] = chunk.Metadata.Map()
	}

	if replacer, ok := coll.(vectorstore.SourceReplacer); ok {
		if err := replacer.ReplaceSource(ctx, source, ids, documents, metadatas); err != nil {
			return fmt.Errorf("failed to replace %s in vault %s: %w", source, vaultName, err)
		}
	} else {
		if err := coll.Delete(ctx, map[string]string{"source": source}); err != nil {
			return fmt.Errorf("failed to evict %s from vault %s: %w", source, vaultName, err)
		}
		if err := coll.Add(ctx, ids, documents, metadatas); err != nil {
			return fmt.Errorf("failed to add %s to vault %s: %w", source, vaultName, err)
		}
	}

	logger.InfoContext(ctx, "ingested document", "vault", vaultName, "source", source, "chunks", len(chunks))
	return nil
}

// Search returns up to topK results for query from vaultName, in the order
// the index ranks them. A topK of zero or less uses the default; larger
// values are capped. Failures are logged and yield an empty, degraded
// outcome instead of an error.
func (s *Store) Search(ctx context.Context, vaultName, query string, topK int) SearchOutcome {
	logger := contextutil.LoggerFromContext(ctx)

	topK = s.clampTopK(topK)

	if err := ValidateName(vaultName); err != nil {
		logger.WarnContext(ctx, "search on invalid vault", "vault", vaultName, "error", err)
		return SearchOutcome{Results: []ScoredResult{}, Degraded: true}
	}
	if strings.TrimSpace(query) == "" {
		return SearchOutcome{Results: []ScoredResult{}}
	}

	coll, err := s.index.Collection(ctx, vaultName)
	if err != nil {
		return degraded(ctx, logger, vaultName, "failed to open vault", err)
	}

	result, err := coll.Query(ctx, []string{query}, topK)
	if err != nil {
		return degraded(ctx, logger, vaultName, "vault query failed", err)
	}

	results := scoredResults(result)
	logger.DebugContext(ctx, "search completed", "vault", vaultName, "top_k", topK, "results", len(results))
	return SearchOutcome{Results: results}
}

// Count returns the number of chunks stored in vaultName.
func (s *Store) Count(ctx context.Context, vaultName string) (int, error) {
	if err := ValidateName(vaultName); err != nil {
		return 0, err
	}
	coll, err := s.index.Collection(ctx, vaultName)
	if err != nil {
		return 0, fmt.Errorf("failed to open vault %s: %w", vaultName, err)
	}
	return coll.Count(ctx)
}

func (s *Store) clampTopK(topK int) int {
	if topK <= 0 {
		return s.defaultTopK
	}
	if topK > s.maxTopK {
		return s.maxTopK
	}
	return topK
}

func degraded(ctx context.Context, logger *slog.Logger, vaultName, msg string, err error) SearchOutcome {
	logger.ErrorContext(ctx, msg, "vault", vaultName, "error", err)
	return SearchOutcome{Results: []ScoredResult{}, Degraded: true}
}

// scoredResults converts the first query's matches. Rows missing any column are dropped.
func scoredResults(result vectorstore.QueryResult) []ScoredResult {
	if len(result.Documents) == 0 || len(result.Metadatas) == 0 || len(result.Distances) == 0 {
		return []ScoredResult{}
	}

	docs, metas, dists := result.Documents[0], result.Metadatas[0], result.Distances[0]
	n := min(len(docs), len(metas), len(dists))

	results := make([]ScoredResult, 0, n)
	for i := 0; i < n; i++ {
		results = append(results, ScoredResult{
			Content:  docs[i],
			Metadata: indexer.MetadataFromMap(metas[i]),
			Score:    Score(dists[i]),
		})
	}
	return results
}

// Score converts a distance into a similarity score rounded to four decimals.
func Score(distance float64) float64 {
	return math.Round((1-distance)*1e4) / 1e4
}
