// Package app wires configuration into the storage, vector index, extraction
// and document service layers shared by the API server and the CLI.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"vault-ai/internal/config"
	"vault-ai/internal/handlers"
	"vault-ai/internal/indexer"
	"vault-ai/internal/llm"
	"vault-ai/internal/service"
	"vault-ai/internal/storage"
	"vault-ai/internal/vault"
	"vault-ai/internal/vectorstore"
)

// App holds the initialized components.
type App struct {
	DB        *sql.DB
	Index     vectorstore.Index
	Store     *vault.Store
	Extractor *indexer.Extractor
	Documents service.DocumentService

	closers []func() error
}

type options struct {
	embedder  vectorstore.Embedder
	pdfRunner indexer.CommandRunner
}

// Option customizes New.
type Option func(*options)

// WithEmbedder replaces the HTTP embeddings client.
func WithEmbedder(e vectorstore.Embedder) Option {
	return func(o *options) {
		o.embedder = e
	}
}

// WithPDFRunner sets the command runner used by the pdftotext backend.
func WithPDFRunner(r indexer.CommandRunner) Option {
	return func(o *options) {
		o.pdfRunner = r
	}
}

// prober is implemented by embedders that can check themselves before use.
type prober interface {
	Probe(ctx context.Context) error
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// New opens the databases, validates the embedder and builds the service graph.
// On error every resource opened so far is released.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (_ *App, err error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	a := &App{}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	// Initialize database
	a.DB, err = storage.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a.closers = append(a.closers, a.DB.Close)

	if err := storage.Migrate(a.DB); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("Database initialized", "path", cfg.DBPath)

	embedder := o.embedder
	if embedder == nil {
		embedder = llm.NewEmbeddingsClient(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModelName, cfg.VectorSize)
	}
	// Validate embedding client vector size (fail-fast)
	if p, ok := embedder.(prober); ok {
		if err := p.Probe(ctx); err != nil {
			return nil, err
		}
		slog.Info("Embedding client validated", "model", cfg.EmbeddingModelName, "vector_size", cfg.VectorSize)
	}

	if a.Index, err = a.openIndex(cfg, embedder); err != nil {
		return nil, err
	}

	chunker, err := indexer.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	var readerOpts []indexer.ExtractorOption
	if cfg.PDFBackend == config.PDFBackendPdftotext {
		readerOpts = append(readerOpts, indexer.WithReader(".pdf", indexer.NewPopplerReader(o.pdfRunner)))
	}
	a.Extractor = indexer.NewExtractor(chunker, readerOpts...)

	a.Store = vault.NewStore(a.Index, vault.WithTopK(cfg.SearchTopK, cfg.SearchMaxTopK))
	a.Documents = service.NewDocumentService(
		a.Extractor,
		a.Store,
		storage.NewVaultRepo(a.DB),
		storage.NewFileRepo(a.DB),
		service.DocumentConfig{
			ScratchDir:     cfg.ScratchDir,
			Workers:        cfg.ExtractWorkers,
			MaxUploadBytes: cfg.MaxUploadBytes,
		},
	)

	slog.Info("Document service initialized",
		"chunk_size", cfg.ChunkSize,
		"chunk_overlap", cfg.ChunkOverlap,
		"pdf_backend", cfg.PDFBackend,
		"formats", a.Extractor.Extensions(),
	)

	return a, nil
}

func (a *App) openIndex(cfg *config.Config, embedder vectorstore.Embedder) (vectorstore.Index, error) {
	switch cfg.VectorBackend {
	case config.VectorBackendSQLite:
		vdb, err := storage.New(cfg.VectorDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open vector database: %w", err)
		}
		a.closers = append(a.closers, vdb.Close)

		index, err := vectorstore.NewSQLiteIndex(vdb, embedder, cfg.VectorSize)
		if err != nil {
			return nil, err
		}
		slog.Info("SQLite vector index ready", "path", cfg.VectorDBPath, "vector_size", cfg.VectorSize)
		return index, nil

	case config.VectorBackendQdrant:
		index, err := vectorstore.NewQdrantIndex(cfg.QdrantURL, embedder, cfg.VectorSize, cfg.QdrantCollectionPrefix)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, index.Close)
		slog.Info("Qdrant vector index ready", "url", cfg.QdrantURL, "prefix", cfg.QdrantCollectionPrefix, "vector_size", cfg.VectorSize)
		return index, nil

	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.VectorBackend)
	}
}

// HealthChecks returns the dependencies reported by GET /api/health.
func (a *App) HealthChecks() map[string]handlers.Pinger {
	return map[string]handlers.Pinger{
		"database":     handlers.PingerFunc(a.DB.PingContext),
		"vector_store": a.Index,
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
