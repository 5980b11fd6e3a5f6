package extraction

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/gmsas95/vetscan/internal/errors"
	"github.com/gmsas95/vetscan/internal/metrics"
)

type fakeReader struct {
	name  string
	pages []string
	err   error
	calls int
}

func (f *fakeReader) Name() string { return f.name }

func (f *fakeReader) ReadTextLayer(ctx context.Context, path string) ([]string, error) {
	f.calls++
	return f.pages, f.err
}

type fakeRasterizer struct {
	pages int
	err   error
	calls int
}

func (f *fakeRasterizer) Rasterize(ctx context.Context, path string) ([]image.Image, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]image.Image, f.pages)
	for i := range out {
		out[i] = image.NewGray(image.Rect(0, 0, 10, 10))
	}
	return out, nil
}

type fakeRecognizer struct {
	texts    []string
	fileText string
	err      error
	calls    int
}

func (f *fakeRecognizer) RecognizeImage(ctx context.Context, img image.Image) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	text := f.texts[f.calls%len(f.texts)]
	f.calls++
	return text, nil
}

func (f *fakeRecognizer) RecognizeFile(ctx context.Context, path string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.fileText, nil
}

func newPipeline(readers []TextLayerReader, r Rasterizer, rec Recognizer) (*Pipeline, *metrics.Metrics) {
	m := metrics.New()
	logger, _ := zap.NewDevelopment()
	return New(readers, r, rec, logger, m), m
}

func TestJoinPages(t *testing.T) {
	assert.Equal(t, "", JoinPages(nil))
	assert.Equal(t, "\n--- Page 1 ---\nfirst\n--- Page 2 ---\nsecond", JoinPages([]string{"first", "second"}))
	assert.Equal(t, "\n--- Page 1 ---\n\n--- Page 2 ---\n", JoinPages([]string{"", ""}))
}

func TestKindFromPath(t *testing.T) {
	tests := []struct {
		path string
		want Kind
		err  bool
	}{
		{"rx.pdf", KindPDF, false},
		{"/tmp/RX.PDF", KindPDF, false},
		{"scan.png", KindImage, false},
		{"scan.JPG", KindImage, false},
		{"scan.jpeg", KindImage, false},
		{"scan.gif", KindUnknown, true},
		{"noext", KindUnknown, true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := KindFromPath(tt.path)
			assert.Equal(t, tt.want, got)
			if tt.err {
				assert.ErrorIs(t, err, ErrUnsupportedKind)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestExtract_TextLayerWins(t *testing.T) {
	missing := &fakeReader{name: "pdftotext", err: fmt.Errorf("%w: pdftotext not found", apperrors.ErrBackendUnavailable)}
	reader := &fakeReader{name: "fitz", pages: []string{"Amoxicillin 250mg", "Refills: 0"}}
	raster := &fakeRasterizer{pages: 1}
	p, m := newPipeline([]TextLayerReader{missing, reader}, raster, &fakeRecognizer{texts: []string{"ocr"}})

	res, err := p.ExtractResult(context.Background(), "rx.pdf", KindPDF)

	require.NoError(t, err)
	assert.Equal(t, "\n--- Page 1 ---\nAmoxicillin 250mg\n--- Page 2 ---\nRefills: 0", res.Text)
	assert.Equal(t, "text_layer:fitz", res.Strategy)
	require.Len(t, res.Attempts, 1)
	assert.Equal(t, "text_layer:pdftotext", res.Attempts[0].Strategy)
	assert.Equal(t, 0, raster.calls)

	s := m.Snapshot()
	assert.Equal(t, int64(1), s.StrategyAttempts["text_layer:pdftotext:unavailable"])
	assert.Equal(t, int64(1), s.StrategyAttempts["text_layer:fitz:success"])
	assert.Equal(t, int64(1), s.ExtractionsTotal)
}

func TestExtract_WhitespaceTextLayerFallsBackToOCR(t *testing.T) {
	reader := &fakeReader{name: "fitz", pages: []string{"  ", "\n\t"}}
	raster := &fakeRasterizer{pages: 2}
	rec := &fakeRecognizer{texts: []string{"Carprofen 75mg", "with food"}}
	p, m := newPipeline([]TextLayerReader{reader}, raster, rec)

	text, err := p.Extract(context.Background(), "rx.pdf", KindPDF)

	require.NoError(t, err)
	assert.Equal(t, "\n--- Page 1 ---\nCarprofen 75mg\n--- Page 2 ---\nwith food", text)
	assert.Equal(t, 2, rec.calls)
	assert.Equal(t, int64(1), m.Snapshot().StrategyAttempts["text_layer:fitz:empty"])
}

func TestExtract_ReaderFailureFallsBackToOCR(t *testing.T) {
	reader := &fakeReader{name: "pdf", err: errors.New("malformed xref")}
	p, _ := newPipeline([]TextLayerReader{reader}, &fakeRasterizer{pages: 1}, &fakeRecognizer{texts: []string{"Apoquel"}})

	res, err := p.ExtractResult(context.Background(), "rx.pdf", KindPDF)

	require.NoError(t, err)
	assert.Equal(t, "ocr:pdf", res.Strategy)
	assert.Equal(t, "\n--- Page 1 ---\nApoquel", res.Text)
}

func TestExtract_OCRTextMayBeEmpty(t *testing.T) {
	p, _ := newPipeline(nil, &fakeRasterizer{pages: 1}, &fakeRecognizer{texts: []string{""}})

	text, err := p.Extract(context.Background(), "rx.pdf", KindPDF)

	require.NoError(t, err)
	assert.Equal(t, "\n--- Page 1 ---\n", text)
}

func TestExtract_ZeroPages(t *testing.T) {
	p, _ := newPipeline(nil, &fakeRasterizer{pages: 0}, &fakeRecognizer{texts: []string{"x"}})

	_, err := p.Extract(context.Background(), "rx.pdf", KindPDF)

	ee, ok := apperrors.AsExtractionError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.StageExtract, ee.Stage)
	assert.Equal(t, apperrors.HintConvertToImages, ee.Hint)

	inner, ok := apperrors.AsExtractionError(ee.Cause)
	require.True(t, ok)
	assert.Equal(t, apperrors.StageRasterize, inner.Stage)
	assert.Equal(t, "could not convert document to images", inner.Message)
}

func TestExtract_AllStrategiesExhausted(t *testing.T) {
	rasterErr := apperrors.NewExtractionError(apperrors.StageRasterize, "no rasterization method available", nil)
	p, m := newPipeline(
		[]TextLayerReader{&fakeReader{name: "fitz", pages: []string{""}}},
		&fakeRasterizer{err: rasterErr},
		&fakeRecognizer{texts: []string{"x"}},
	)

	_, err := p.Extract(context.Background(), "rx.pdf", KindPDF)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "convert the PDF to PNG or JPG images")
	ee, _ := apperrors.AsExtractionError(err)
	require.Len(t, ee.Attempts, 2)
	assert.Equal(t, "text_layer:fitz", ee.Attempts[0].Strategy)
	assert.Equal(t, "ocr:pdf", ee.Attempts[1].Strategy)
	assert.Equal(t, int64(1), m.Snapshot().ExtractionsFailed)
}

func TestExtract_OCRFailureOnPage(t *testing.T) {
	ocrErr := apperrors.NewExtractionError(apperrors.StageOCR, "text recognition failed", errors.New("boom"))
	p, _ := newPipeline(nil, &fakeRasterizer{pages: 3}, &fakeRecognizer{err: ocrErr})

	_, err := p.Extract(context.Background(), "rx.pdf", KindPDF)

	require.Error(t, err)
	assert.ErrorIs(t, err, ocrErr)
}

func TestExtract_Image(t *testing.T) {
	raster := &fakeRasterizer{pages: 1}
	reader := &fakeReader{name: "fitz", pages: []string{"never"}}
	p, _ := newPipeline([]TextLayerReader{reader}, raster, &fakeRecognizer{fileText: "Meloxicam 1.5mg/ml"})

	res, err := p.ExtractResult(context.Background(), "scan.png", KindImage)

	require.NoError(t, err)
	assert.Equal(t, "Meloxicam 1.5mg/ml", res.Text)
	assert.Equal(t, "ocr:image", res.Strategy)
	assert.Equal(t, 0, raster.calls)
	assert.Equal(t, 0, reader.calls)
}

func TestExtract_ImageDecodeFailure(t *testing.T) {
	decodeErr := apperrors.NewExtractionError(apperrors.StageDecode, "could not decode image", errors.New("unexpected EOF"))
	p, _ := newPipeline(nil, nil, &fakeRecognizer{err: decodeErr})

	_, err := p.Extract(context.Background(), "scan.jpg", KindImage)

	ee, ok := apperrors.AsExtractionError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.StageDecode, ee.Stage)
	assert.Len(t, ee.Attempts, 1)
}

func TestExtract_UnknownKind(t *testing.T) {
	p, _ := newPipeline(nil, nil, nil)

	_, err := p.Extract(context.Background(), "notes.docx", KindUnknown)

	assert.ErrorIs(t, err, ErrUnsupportedKind)
}

func TestExtract_Cancelled(t *testing.T) {
	reader := &fakeReader{name: "fitz", pages: []string{"text"}}
	p, _ := newPipeline([]TextLayerReader{reader}, &fakeRasterizer{}, &fakeRecognizer{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Extract(ctx, "rx.pdf", KindPDF)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, reader.calls)
}

func TestBuildReaders(t *testing.T) {
	readers, err := BuildReaders([]string{"fitz", "pdf", "pdftotext"}, 5)
	require.NoError(t, err)
	require.Len(t, readers, 3)
	assert.Equal(t, "pdftotext", readers[2].Name())

	_, err = BuildReaders([]string{"tika"}, 0)
	assert.Error(t, err)
}

func TestSplitFormFeeds(t *testing.T) {
	assert.Equal(t, []string{"one", "two"}, splitFormFeeds("one\ftwo\f"))
	assert.Equal(t, []string{"only"}, splitFormFeeds("only"))
}

func TestPDFReader_RealDocument(t *testing.T) {
	path := buildPDF(t, []string{"Amoxicillin 250mg twice daily", "", "Bacterial infection"})

	pages, err := (&PDFReader{}).ReadTextLayer(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, pages, 3)
	assert.Contains(t, pages[0], "Amoxicillin")
	assert.Empty(t, strings.TrimSpace(pages[1]))

	limited, err := (&PDFReader{MaxPages: 1}).ReadTextLayer(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestPDFReader_Garbage(t *testing.T) {
	_, err := (&PDFReader{}).ReadTextLayer(context.Background(), "/nonexistent/file.pdf")
	assert.Error(t, err)
}

func TestFitzReader_RealDocument(t *testing.T) {
	path := buildPDF(t, []string{"Carprofen 75mg with food"})

	pages, err := (&FitzReader{}).ReadTextLayer(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Contains(t, pages[0], "Carprofen")
}

func TestPipeline_BlankPDFFallsThroughRealReaders(t *testing.T) {
	path := buildPDF(t, []string{"", ""})
	readers, err := BuildReaders([]string{"fitz", "pdf"}, 0)
	require.NoError(t, err)

	rec := &fakeRecognizer{texts: []string{"scanned page"}}
	p, _ := newPipeline(readers, &fakeRasterizer{pages: 2}, rec)

	res, err := p.ExtractResult(context.Background(), path, KindPDF)

	require.NoError(t, err)
	assert.Equal(t, "ocr:pdf", res.Strategy)
	assert.Len(t, res.Attempts, 2)
}

func TestPdftotextReader_Integration(t *testing.T) {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		t.Skip("pdftotext not installed")
	}
	path := buildPDF(t, []string{"Meloxicam once daily", "Recheck in 2 weeks"})

	pages, err := NewPdftotextReader(0).ReadTextLayer(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Contains(t, pages[1], "Recheck")
}
