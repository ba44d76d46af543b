package indexer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/ledongthuc/pdf"
)

func errPageOutOfRange(page, total int) error {
	return fmt.Errorf("page %d out of range [1, %d]", page, total)
}

// NativePDFReader reads PDF text in-process.
type NativePDFReader struct{}

// NewNativePDFReader creates a PDF reader that needs no external tools.
func NewNativePDFReader() *NativePDFReader {
	return &NativePDFReader{}
}

// Open implements PageReader.
func (r *NativePDFReader) Open(ctx context.Context, path string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, reader, err := openPDF(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf %s: %w", path, err)
	}
	return &nativePDFDocument{file: f, reader: reader}, nil
}

// openPDF guards against the parser panicking on malformed input.
func openPDF(path string) (f *os.File, reader *pdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			if f != nil {
				f.Close()
			}
			f, reader = nil, nil
			err = fmt.Errorf("malformed pdf: %v", rec)
		}
	}()
	f, reader, err = pdf.Open(path)
	if err != nil && f != nil {
		f.Close()
		f = nil
	}
	return f, reader, err
}

type nativePDFDocument struct {
	file   *os.File
	reader *pdf.Reader
}

func (d *nativePDFDocument) NumPages() int {
	return d.reader.NumPage()
}

func (d *nativePDFDocument) PageText(page int) (text string, err error) {
	total := d.reader.NumPage()
	if page < 1 || page > total {
		return "", errPageOutOfRange(page, total)
	}
	defer func() {
		if rec := recover(); rec != nil {
			text = ""
			err = fmt.Errorf("failed to read page %d: %v", page, rec)
		}
	}()

	p := d.reader.Page(page)
	if p.V.IsNull() {
		return "", nil
	}
	text, err = p.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("failed to read page %d: %w", page, err)
	}
	return text, nil
}

func (d *nativePDFDocument) Close() error {
	return d.file.Close()
}

// CommandRunner executes external commands. It exists so tests can stub pdftotext.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// PopplerReader extracts PDF text with the poppler pdftotext tool.
type PopplerReader struct {
	runner CommandRunner
	binary string
}

// NewPopplerReader creates a pdftotext-backed reader. A nil runner executes the real binary.
func NewPopplerReader(runner CommandRunner) *PopplerReader {
	if runner == nil {
		runner = execRunner{}
	}
	return &PopplerReader{runner: runner, binary: "pdftotext"}
}

// Open implements PageReader. The whole document is converted up front;
// pdftotext separates pages with form feeds.
func (r *PopplerReader) Open(ctx context.Context, path string) (Document, error) {
	out, err := r.runner.Run(ctx, r.binary, "-layout", "-enc", "UTF-8", path, "-")
	if err != nil {
		return nil, fmt.Errorf("failed to convert pdf %s: %w", path, err)
	}
	pages := strings.Split(string(out), "\f")
	// Output ends with a form feed after the last page
	if len(pages) > 0 && strings.TrimSpace(pages[len(pages)-1]) == "" {
		pages = pages[:len(pages)-1]
	}
	return &pagesDocument{pages: pages}, nil
}
