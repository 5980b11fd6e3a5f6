package extraction

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/ledongthuc/pdf"

	apperrors "github.com/gmsas95/vetscan/internal/errors"
)

// TextLayerReader reads the embedded text of a PDF, one string per page.
type TextLayerReader interface {
	Name() string
	ReadTextLayer(ctx context.Context, path string) ([]string, error)
}

// BuildReaders returns the named readers in the given order.
func BuildReaders(names []string, maxPages int) ([]TextLayerReader, error) {
	var out []TextLayerReader
	for _, name := range names {
		switch name {
		case "fitz":
			out = append(out, &FitzReader{MaxPages: maxPages})
		case "pdf":
			out = append(out, &PDFReader{MaxPages: maxPages})
		case "pdftotext":
			out = append(out, NewPdftotextReader(maxPages))
		default:
			return nil, fmt.Errorf("unknown text layer reader %q", name)
		}
	}
	return out, nil
}

func pageLimit(n, maxPages int) int {
	if maxPages > 0 && n > maxPages {
		return maxPages
	}
	return n
}

// FitzReader uses MuPDF.
type FitzReader struct {
	MaxPages int
}

func (r *FitzReader) Name() string { return "fitz" }

func (r *FitzReader) ReadTextLayer(ctx context.Context, path string) ([]string, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer doc.Close()

	n := pageLimit(doc.NumPage(), r.MaxPages)
	pages := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := doc.Text(i)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// PDFReader is a pure Go reader. The parser panics on some malformed
// files, so panics are turned into errors.
type PDFReader struct {
	MaxPages int
}

func (r *PDFReader) Name() string { return "pdf" }

func (r *PDFReader) ReadTextLayer(ctx context.Context, path string) (pages []string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			pages, err = nil, fmt.Errorf("pdf parser panic: %v", rec)
		}
	}()

	f, doc, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer f.Close()

	n := pageLimit(doc.NumPage(), r.MaxPages)
	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := doc.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// PdftotextReader shells out to poppler's pdftotext and splits its output on
// form feeds.
type PdftotextReader struct {
	binaryPath string
	maxPages   int
}

func NewPdftotextReader(maxPages int) *PdftotextReader {
	return &PdftotextReader{binaryPath: "pdftotext", maxPages: maxPages}
}

func (r *PdftotextReader) Name() string { return "pdftotext" }

func (r *PdftotextReader) Available() error {
	if _, err := exec.LookPath(r.binaryPath); err != nil {
		return fmt.Errorf("%w: %s not found (install poppler-utils)", apperrors.ErrBackendUnavailable, r.binaryPath)
	}
	return nil
}

func (r *PdftotextReader) ReadTextLayer(ctx context.Context, path string) ([]string, error) {
	if err := r.Available(); err != nil {
		return nil, err
	}

	args := []string{"-layout", "-enc", "UTF-8"}
	if r.maxPages > 0 {
		args = append(args, "-l", fmt.Sprint(r.maxPages))
	}
	args = append(args, path, "-")

	cmd := exec.CommandContext(ctx, r.binaryPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("pdftotext failed: %w (output: %s)", err, strings.TrimSpace(stderr.String()))
	}
	return splitFormFeeds(stdout.String()), nil
}

func splitFormFeeds(out string) []string {
	pages := strings.Split(out, "\f")
	if len(pages) > 1 && pages[len(pages)-1] == "" {
		pages = pages[:len(pages)-1]
	}
	return pages
}
