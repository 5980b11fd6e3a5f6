// Package extraction turns a prescription document into plain text.
//
// PDFs are read through their embedded text layer first; when every reader
// comes back empty or fails, pages are rasterized and OCRed. Images go
// straight to OCR. Each approach is a Strategy and one loop drives them, so
// a failure only ever moves on to the next strategy.
package extraction

import (
	"context"
	"errors"
	"image"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/gmsas95/vetscan/internal/errors"
	"github.com/gmsas95/vetscan/internal/metrics"
)

var errEmptyText = errors.New("text layer is empty")

const hintBetterImage = "upload a sharper, well-lit image of the prescription"

// Rasterizer renders PDF pages.
type Rasterizer interface {
	Rasterize(ctx context.Context, path string) ([]image.Image, error)
}

// Recognizer OCRs decoded images and image files.
type Recognizer interface {
	RecognizeImage(ctx context.Context, img image.Image) (string, error)
	RecognizeFile(ctx context.Context, path string) (string, error)
}

// Strategy is one way of getting text out of a file.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, path string) (string, error)
}

// Result is the extracted text and how it was obtained.
type Result struct {
	Text     string
	Strategy string
	Attempts []apperrors.Attempt
}

// Pipeline wires text layer readers, a rasterizer and an OCR recognizer.
type Pipeline struct {
	readers    []TextLayerReader
	rasterizer Rasterizer
	recognizer Recognizer
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

func New(readers []TextLayerReader, rasterizer Rasterizer, recognizer Recognizer, logger *zap.Logger, m *metrics.Metrics) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.Default()
	}
	return &Pipeline{
		readers:    readers,
		rasterizer: rasterizer,
		recognizer: recognizer,
		logger:     logger,
		metrics:    m,
	}
}

// Extract returns the text of the document at path.
func (p *Pipeline) Extract(ctx context.Context, path string, kind Kind) (string, error) {
	res, err := p.ExtractResult(ctx, path, kind)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// ExtractResult is Extract plus the winning strategy and failed attempts.
func (p *Pipeline) ExtractResult(ctx context.Context, path string, kind Kind) (*Result, error) {
	start := time.Now()
	res, err := p.extract(ctx, path, kind)
	p.metrics.ObserveExtraction(kind.String(), time.Since(start), err == nil)
	if err != nil {
		p.logger.Error("Text extraction failed",
			zap.String("path", path),
			zap.String("kind", kind.String()),
			zap.Error(err),
		)
		return nil, err
	}

	p.logger.Info("Text extracted",
		zap.String("kind", kind.String()),
		zap.String("strategy", res.Strategy),
		zap.Int("chars", len(res.Text)),
		zap.Duration("took", time.Since(start)),
	)
	return res, nil
}

func (p *Pipeline) extract(ctx context.Context, path string, kind Kind) (*Result, error) {
	switch kind {
	case KindPDF:
		strategies := make([]Strategy, 0, len(p.readers)+1)
		for _, r := range p.readers {
			strategies = append(strategies, textLayerStrategy{reader: r})
		}
		strategies = append(strategies, pdfOCRStrategy{rasterizer: p.rasterizer, recognizer: p.recognizer})

		res, err := p.runStrategies(ctx, path, strategies)
		if err != nil && ctx.Err() == nil {
			return nil, apperrors.NewExtractionError(apperrors.StageExtract, "PDF processing failed", err).
				WithAttempts(res.Attempts).
				WithHint(apperrors.HintConvertToImages)
		}
		return res, err

	case KindImage:
		res, err := p.runStrategies(ctx, path, []Strategy{imageOCRStrategy{recognizer: p.recognizer}})
		if err != nil {
			if ee, ok := apperrors.AsExtractionError(err); ok {
				return nil, apperrors.NewExtractionError(ee.Stage, "Image processing failed", err).
					WithAttempts(res.Attempts).
					WithHint(hintBetterImage)
			}
			return nil, err
		}
		return res, nil

	default:
		return nil, apperrors.NewExtractionError(apperrors.StageExtract, "unsupported document kind", ErrUnsupportedKind)
	}
}

// runStrategies tries each strategy in order. On failure the returned Result
// still carries the attempts and the error is the last strategy's.
func (p *Pipeline) runStrategies(ctx context.Context, path string, strategies []Strategy) (*Result, error) {
	res := &Result{}
	var lastErr error
	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		text, err := s.Extract(ctx, path)
		if err == nil {
			p.metrics.RecordAttempt(s.Name(), metrics.OutcomeSuccess)
			res.Text = text
			res.Strategy = s.Name()
			return res, nil
		}

		lastErr = err
		res.Attempts = append(res.Attempts, apperrors.Attempt{Strategy: s.Name(), Err: err})
		switch {
		case errors.Is(err, errEmptyText):
			p.metrics.RecordAttempt(s.Name(), metrics.OutcomeEmpty)
			p.logger.Warn("Extraction strategy returned no text", zap.String("strategy", s.Name()))
		case errors.Is(err, apperrors.ErrBackendUnavailable):
			p.metrics.RecordAttempt(s.Name(), metrics.OutcomeUnavailable)
			p.logger.Info("Extraction strategy not available", zap.String("strategy", s.Name()), zap.Error(err))
		default:
			p.metrics.RecordAttempt(s.Name(), metrics.OutcomeFailure)
			p.logger.Warn("Extraction strategy failed", zap.String("strategy", s.Name()), zap.Error(err))
		}
	}
	if lastErr == nil {
		lastErr = errors.New("no extraction strategy configured")
	}
	return res, lastErr
}

type textLayerStrategy struct {
	reader TextLayerReader
}

func (s textLayerStrategy) Name() string { return "text_layer:" + s.reader.Name() }

func (s textLayerStrategy) Extract(ctx context.Context, path string) (string, error) {
	pages, err := s.reader.ReadTextLayer(ctx, path)
	if err != nil {
		return "", apperrors.NewExtractionError(apperrors.StageTextLayer, "could not read text layer", err)
	}
	text := JoinPages(pages)
	if strings.TrimSpace(text) == "" {
		return "", errEmptyText
	}
	return text, nil
}

type pdfOCRStrategy struct {
	rasterizer Rasterizer
	recognizer Recognizer
}

func (s pdfOCRStrategy) Name() string { return "ocr:pdf" }

func (s pdfOCRStrategy) Extract(ctx context.Context, path string) (string, error) {
	images, err := s.rasterizer.Rasterize(ctx, path)
	if err != nil {
		return "", err
	}
	if len(images) == 0 {
		return "", apperrors.NewExtractionError(apperrors.StageRasterize, "could not convert document to images", nil)
	}

	pages := make([]string, 0, len(images))
	for _, img := range images {
		text, err := s.recognizer.RecognizeImage(ctx, img)
		if err != nil {
			return "", err
		}
		pages = append(pages, text)
	}
	return JoinPages(pages), nil
}

type imageOCRStrategy struct {
	recognizer Recognizer
}

func (s imageOCRStrategy) Name() string { return "ocr:image" }

func (s imageOCRStrategy) Extract(ctx context.Context, path string) (string, error) {
	return s.recognizer.RecognizeFile(ctx, path)
}
