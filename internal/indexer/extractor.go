package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
)

// Extractor turns documents on disk into chunk records.
type Extractor struct {
	chunker *Chunker
	readers map[string]PageReader
	logger  *slog.Logger
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithReader registers reader for the given file extension (e.g. ".pdf").
func WithReader(ext string, reader PageReader) ExtractorOption {
	return func(e *Extractor) {
		e.readers[strings.ToLower(ext)] = reader
	}
}

// WithLogger sets the logger used for extraction diagnostics.
func WithLogger(logger *slog.Logger) ExtractorOption {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// NewExtractor creates an Extractor. Without options it reads .pdf with the
// native reader and .md/.markdown with the Markdown reader.
func NewExtractor(chunker *Chunker, opts ...ExtractorOption) *Extractor {
	md := NewMarkdownReader()
	e := &Extractor{
		chunker: chunker,
		readers: map[string]PageReader{
			".pdf":      NewNativePDFReader(),
			".md":       md,
			".markdown": md,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Supports reports whether filename has a registered reader.
func (e *Extractor) Supports(filename string) bool {
	_, ok := e.readers[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// Extensions returns the supported file extensions in sorted order.
func (e *Extractor) Extensions() []string {
	exts := make([]string, 0, len(e.readers))
	for ext := range e.readers {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Extract reads the document at path page by page and chunks each non-blank
// page independently. Every record is tagged with the base filename, its
// 1-indexed page, and domain. A document without extractable text yields an
// empty, non-nil slice.
func (e *Extractor) Extract(ctx context.Context, path, domain string) ([]ChunkRecord, error) {
	ext := strings.ToLower(filepath.Ext(path))
	reader, ok := e.readers[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	doc, err := reader.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open document: %w", err)
	}
	defer func() {
		if cerr := doc.Close(); cerr != nil {
			e.logger.WarnContext(ctx, "failed to close document", "path", path, "error", cerr)
		}
	}()

	source := filepath.Base(path)
	records := make([]ChunkRecord, 0)
	numPages := doc.NumPages()

	for page := 1; page <= numPages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text, err := doc.PageText(page)
		if err != nil {
			return nil, fmt.Errorf("failed to read page %d of %s: %w", page, source, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		for _, chunk := range e.chunker.Chunk(text) {
			records = append(records, ChunkRecord{
				Content: chunk,
				Metadata: Metadata{
					Source: source,
					Page:   page,
					Domain: domain,
				},
			})
		}
	}

	e.logger.DebugContext(ctx, "extracted document",
		"source", source,
		"pages", numPages,
		"chunks", len(records),
	)

	return records, nil
}
