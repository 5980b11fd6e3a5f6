package raster

import (
	"context"
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
)

// Fitz renders pages in-process with MuPDF.
type Fitz struct {
	dpi      float64
	maxPages int
}

// NewFitz renders at the given DPI; 144 matches a 2x pixmap of a 72 DPI page.
func NewFitz(dpi float64, maxPages int) *Fitz {
	if dpi <= 0 {
		dpi = 144
	}
	return &Fitz{dpi: dpi, maxPages: maxPages}
}

func (f *Fitz) Name() string { return "fitz" }

func (f *Fitz) Rasterize(ctx context.Context, path string) ([]image.Image, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer doc.Close()

	n := doc.NumPage()
	if f.maxPages > 0 && n > f.maxPages {
		n = f.maxPages
	}

	pages := make([]image.Image, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := doc.ImageDPI(i, f.dpi)
		if err != nil {
			return nil, fmt.Errorf("render page %d: %w", i+1, err)
		}
		pages = append(pages, img)
	}
	return pages, nil
}
