package service

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_extractor.go -package=mocks vault-ai/internal/service Extractor
//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_vault_index.go -package=mocks vault-ai/internal/service VaultIndex
//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_document_service.go -package=mocks -mock_names=DocumentService=MockDocumentService vault-ai/internal/service DocumentService

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"vault-ai/internal/contextutil"
	"vault-ai/internal/indexer"
	"vault-ai/internal/storage"
	"vault-ai/internal/vault"
)

const (
	// StatusOK means the query matched at least one chunk.
	StatusOK = "ok"
	// StatusNoMatches means the query matched nothing.
	StatusNoMatches = "no_matches"

	// DefaultMaxUploadBytes caps the size of a single upload.
	DefaultMaxUploadBytes = 32 << 20
)

// Extractor turns a stored document into chunk records.
// This interface is defined from the service layer's perspective (consumer-first).
type Extractor interface {
	// Supports reports whether the filename's format can be extracted.
	Supports(filename string) bool
	// Extract reads the document at path and tags chunks with domain.
	Extract(ctx context.Context, path, domain string) ([]indexer.ChunkRecord, error)
}

// VaultIndex stores and searches chunk records per vault.
type VaultIndex interface {
	Ingest(ctx context.Context, vaultName string, chunks []indexer.ChunkRecord) error
	Search(ctx context.Context, vaultName, query string, topK int) vault.SearchOutcome
}

// UploadRequest represents a document upload in the domain layer.
type UploadRequest struct {
	UserID   string
	Vault    string
	Filename string
	Body     io.Reader
}

// UploadResponse describes an ingested document.
type UploadResponse struct {
	Vault    string             `json:"vault"`
	Filename string             `json:"filename"`
	Chunks   int                `json:"chunks"`
	Stats    indexer.ChunkStats `json:"stats"`
	Message  string             `json:"message"`
}

// QueryRequest represents a vault query in the domain layer.
type QueryRequest struct {
	Vault string
	Query string
	TopK  int
}

// QueryResponse holds ranked results. Context is the result contents joined
// in rank order, ready to hand to a generator.
type QueryResponse struct {
	Status   string               `json:"status"`
	Vault    string               `json:"vault"`
	Query    string               `json:"query"`
	Results  []vault.ScoredResult `json:"results"`
	Context  string               `json:"context"`
	Degraded bool                 `json:"degraded,omitempty"`
}

// DocumentService ingests documents into vaults and answers queries.
type DocumentService interface {
	// Upload stores, extracts and ingests one document.
	Upload(ctx context.Context, req UploadRequest) (UploadResponse, error)
	// Query searches a vault.
	Query(ctx context.Context, req QueryRequest) (QueryResponse, error)
	// ListVaults returns every known vault.
	ListVaults(ctx context.Context) ([]storage.VaultRecord, error)
	// ListFiles returns the files uploaded into a vault.
	ListFiles(ctx context.Context, vaultName string) ([]storage.FileRecord, error)
}

// DocumentConfig holds upload settings.
type DocumentConfig struct {
	// ScratchDir holds per-request upload directories.
	ScratchDir string
	// Workers bounds concurrent extractions. Zero means runtime.NumCPU().
	Workers int
	// MaxUploadBytes caps upload size. Zero means DefaultMaxUploadBytes.
	MaxUploadBytes int64
}

// documentService implements DocumentService.
type documentService struct {
	extractor Extractor
	index     VaultIndex
	vaults    storage.VaultStore
	files     storage.FileStore

	scratchDir     string
	maxUploadBytes int64
	extractPermits *semaphore.Weighted
}

// NewDocumentService creates a new DocumentService.
func NewDocumentService(extractor Extractor, index VaultIndex, vaults storage.VaultStore, files storage.FileStore, cfg DocumentConfig) DocumentService {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	maxBytes := cfg.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	scratch := cfg.ScratchDir
	if scratch == "" {
		scratch = os.TempDir()
	}

	return &documentService{
		extractor:      extractor,
		index:          index,
		vaults:         vaults,
		files:          files,
		scratchDir:     scratch,
		maxUploadBytes: maxBytes,
		extractPermits: semaphore.NewWeighted(int64(workers)),
	}
}

// Upload stores the document under a request-scoped scratch directory,
// extracts and ingests it, and records the upload. The duplicate check runs
// before anything is written. The scratch directory is always removed.
func (s *documentService) Upload(ctx context.Context, req UploadRequest) (UploadResponse, error) {
	logger := contextutil.LoggerFromContext(ctx)

	filename, err := s.validateUpload(req)
	if err != nil {
		logger.WarnContext(ctx, "invalid upload request", "vault", req.Vault, "filename", req.Filename, "error", err)
		return UploadResponse{}, err
	}
	logger = logger.With("vault", req.Vault, "filename", filename, "user_id", req.UserID)

	exists, err := s.files.Exists(ctx, req.UserID, req.Vault, filename)
	if err != nil {
		logger.ErrorContext(ctx, "failed to check for duplicate upload", "error", err)
		return UploadResponse{}, &DependencyError{Op: "check existing upload", Err: err}
	}
	if exists {
		logger.InfoContext(ctx, "rejecting duplicate upload")
		return UploadResponse{}, &ConflictError{UserID: req.UserID, Vault: req.Vault, Filename: filename}
	}

	dir := filepath.Join(s.scratchDir, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return UploadResponse{}, &DependencyError{Op: "create scratch directory", Err: err}
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			logger.WarnContext(ctx, "failed to remove scratch directory", "dir", dir, "error", err)
		}
	}()

	path := filepath.Join(dir, filename)
	if err := s.writeScratch(path, req.Body); err != nil {
		return UploadResponse{}, err
	}

	records, err := s.extract(ctx, path, req.Vault)
	if err != nil {
		logger.WarnContext(ctx, "document extraction failed", "error", err)
		return UploadResponse{}, err
	}
	if len(records) == 0 {
		logger.WarnContext(ctx, "document has no extractable text")
		return UploadResponse{}, &ValidationError{
			Field:   "file",
			Message: "document contains no extractable text",
			Err:     ErrEmptyDocument,
		}
	}

	if _, err := s.vaults.GetOrCreateByName(ctx, req.Vault); err != nil {
		logger.ErrorContext(ctx, "failed to register vault", "error", err)
		return UploadResponse{}, &DependencyError{Op: "register vault", Err: err}
	}

	if err := s.index.Ingest(ctx, req.Vault, records); err != nil {
		logger.ErrorContext(ctx, "failed to ingest document", "error", err)
		return UploadResponse{}, &DependencyError{Op: "ingest document", Err: err}
	}

	err = s.files.Record(ctx, storage.FileRecord{
		UserID:     req.UserID,
		Vault:      req.Vault,
		Filename:   filename,
		ChunkCount: len(records),
	})
	if errors.Is(err, storage.ErrAlreadyExists) {
		// A concurrent upload of the same file won the race
		return UploadResponse{}, &ConflictError{UserID: req.UserID, Vault: req.Vault, Filename: filename}
	}
	if err != nil {
		logger.ErrorContext(ctx, "failed to record upload", "error", err)
		return UploadResponse{}, &DependencyError{Op: "record upload", Err: err}
	}

	stats := indexer.ComputeChunkStats(records)
	logger.InfoContext(ctx, "document uploaded", "chunks", stats.Chunks, "pages", stats.Pages)

	return UploadResponse{
		Vault:    req.Vault,
		Filename: filename,
		Chunks:   len(records),
		Stats:    stats,
		Message:  fmt.Sprintf("Processed %d chunks from %s", len(records), filename),
	}, nil
}

// Query searches the vault. No hits is a normal response with StatusNoMatches.
func (s *documentService) Query(ctx context.Context, req QueryRequest) (QueryResponse, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if err := vault.ValidateName(req.Vault); err != nil {
		return QueryResponse{}, &ValidationError{Field: "vault", Message: err.Error(), Err: err}
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		logger.WarnContext(ctx, "empty query", "vault", req.Vault)
		return QueryResponse{}, &ValidationError{Field: "query", Message: "cannot be empty"}
	}
	if req.TopK < 0 {
		return QueryResponse{}, &ValidationError{Field: "top_k", Message: "must not be negative"}
	}

	outcome := s.index.Search(ctx, req.Vault, query, req.TopK)

	resp := QueryResponse{
		Status:   StatusOK,
		Vault:    req.Vault,
		Query:    query,
		Results:  outcome.Results,
		Degraded: outcome.Degraded,
	}
	if resp.Results == nil {
		resp.Results = []vault.ScoredResult{}
	}
	if len(resp.Results) == 0 {
		resp.Status = StatusNoMatches
		logger.InfoContext(ctx, "query matched nothing", "vault", req.Vault, "degraded", outcome.Degraded)
		return resp, nil
	}

	contents := make([]string, len(resp.Results))
	for i, r := range resp.Results {
		contents[i] = r.Content
	}
	resp.Context = strings.Join(contents, "\n\n")

	logger.InfoContext(ctx, "query processed", "vault", req.Vault, "results", len(resp.Results), "top_score", resp.Results[0].Score)
	return resp, nil
}

// ListVaults returns all vaults ordered by name.
func (s *documentService) ListVaults(ctx context.Context) ([]storage.VaultRecord, error) {
	vaults, err := s.vaults.ListAll(ctx)
	if err != nil {
		return nil, &DependencyError{Op: "list vaults", Err: err}
	}
	return vaults, nil
}

// ListFiles returns the files uploaded into vaultName.
func (s *documentService) ListFiles(ctx context.Context, vaultName string) ([]storage.FileRecord, error) {
	if err := vault.ValidateName(vaultName); err != nil {
		return nil, &ValidationError{Field: "vault", Message: err.Error(), Err: err}
	}
	files, err := s.files.ListByVault(ctx, vaultName)
	if err != nil {
		return nil, &DependencyError{Op: "list files", Err: err}
	}
	return files, nil
}

// validateUpload checks the request and returns the sanitized base filename.
func (s *documentService) validateUpload(req UploadRequest) (string, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return "", &ValidationError{Field: "user_id", Message: "cannot be empty"}
	}
	if err := vault.ValidateName(req.Vault); err != nil {
		return "", &ValidationError{Field: "vault", Message: err.Error(), Err: err}
	}
	if req.Body == nil {
		return "", &ValidationError{Field: "file", Message: "missing file content"}
	}

	filename := filepath.Base(filepath.Clean("/" + strings.ReplaceAll(req.Filename, "\\", "/")))
	if filename == "/" || filename == "." || strings.TrimSpace(filename) == "" {
		return "", &ValidationError{Field: "file", Message: "missing filename"}
	}
	if !s.extractor.Supports(filename) {
		return "", &ValidationError{
			Field:   "file",
			Message: fmt.Sprintf("unsupported format %q", filepath.Ext(filename)),
			Err:     indexer.ErrUnsupportedFormat,
		}
	}
	return filename, nil
}

// writeScratch copies body to path, enforcing the upload size limit.
func (s *documentService) writeScratch(path string, body io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return &DependencyError{Op: "create scratch file", Err: err}
	}

	n, err := io.Copy(f, io.LimitReader(body, s.maxUploadBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return &DependencyError{Op: "write scratch file", Err: err}
	}
	if n > s.maxUploadBytes {
		return &ValidationError{
			Field:   "file",
			Message: fmt.Sprintf("exceeds maximum upload size of %d bytes", s.maxUploadBytes),
		}
	}
	return nil
}

// extract runs the extractor under a worker permit. Extraction failures are
// reported as an unreadable document.
func (s *documentService) extract(ctx context.Context, path, domain string) ([]indexer.ChunkRecord, error) {
	if err := s.extractPermits.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.extractPermits.Release(1)

	records, err := s.extractor.Extract(ctx, path, domain)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ValidationError{Field: "file", Message: "unreadable document", Err: err}
	}
	return records, nil
}
