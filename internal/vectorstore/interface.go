package vectorstore

//go:generate go run go.uber.org/mock/mockgen@latest -source=interface.go -destination=mocks/mock_index.go -package=mocks

import (
	"context"
	"errors"
)

var (
	// ErrEmptyFilter is returned when a delete is requested without any condition.
	ErrEmptyFilter = errors.New("delete filter must not be empty")
	// ErrLengthMismatch is returned when ids, documents and metadatas differ in length.
	ErrLengthMismatch = errors.New("ids, documents and metadatas must have the same length")
	// ErrDimensionMismatch is returned when an embedding does not match the collection's vector size.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Embedder turns texts into vectors. Implementations must return one vector per text.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// QueryResult holds nearest-neighbour matches. Every field is indexed first by
// query text and then by rank, closest first.
type QueryResult struct {
	IDs       [][]string
	Documents [][]string
	Metadatas [][]map[string]any
	Distances [][]float64
}

// Index hands out named collections. Collections are created on first use.
type Index interface {
	// Collection returns the named collection, creating it if needed.
	Collection(ctx context.Context, name string) (Collection, error)
	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
}

// Collection stores documents together with their embeddings. The embedding
// function is bound when the owning Index is constructed.
type Collection interface {
	Name() string
	// Delete removes every entry whose metadata matches all key/value pairs in where.
	Delete(ctx context.Context, where map[string]string) error
	// Add embeds documents and stores them under ids.
	Add(ctx context.Context, ids, documents []string, metadatas []map[string]any) error
	// Query returns the nResults nearest entries for each query text.
	Query(ctx context.Context, queryTexts []string, nResults int) (QueryResult, error)
	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)
}

// SourceReplacer is implemented by collections that can swap all entries of a
// source for a new set. Implementations embed the new documents before removing
// anything, so an embedding failure keeps the previous entries.
type SourceReplacer interface {
	ReplaceSource(ctx context.Context, source string, ids, documents []string, metadatas []map[string]any) error
}

func checkLengths(ids, documents []string, metadatas []map[string]any) error {
	if len(ids) != len(documents) || len(ids) != len(metadatas) {
		return ErrLengthMismatch
	}
	return nil
}

func embed(ctx context.Context, embedder Embedder, texts []string, vectorSize int) ([][]float32, error) {
	vectors, err := embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, errors.New("embedder returned wrong number of vectors")
	}
	for _, vec := range vectors {
		if len(vec) != vectorSize {
			return nil, ErrDimensionMismatch
		}
	}
	return vectors, nil
}
