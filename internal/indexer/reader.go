package indexer

import (
	"context"
	"errors"
)

// ErrUnsupportedFormat is returned when no PageReader is registered for a file extension.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Document is an opened, paginated document. Pages are 1-indexed.
// Callers must call Close once they are done with it.
type Document interface {
	NumPages() int
	PageText(page int) (string, error)
	Close() error
}

// PageReader opens documents and exposes per-page text.
//
//go:generate go run go.uber.org/mock/mockgen@latest -source=reader.go -destination=mocks/mock_reader.go -package=mocks
type PageReader interface {
	Open(ctx context.Context, path string) (Document, error)
}

// pagesDocument is an in-memory Document over already extracted pages.
type pagesDocument struct {
	pages []string
}

func (d *pagesDocument) NumPages() int {
	return len(d.pages)
}

func (d *pagesDocument) PageText(page int) (string, error) {
	if page < 1 || page > len(d.pages) {
		return "", errPageOutOfRange(page, len(d.pages))
	}
	return d.pages[page-1], nil
}

func (d *pagesDocument) Close() error {
	return nil
}
