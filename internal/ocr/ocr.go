// Package ocr recognizes text in prescription scans.
package ocr

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	apperrors "github.com/gmsas95/vetscan/internal/errors"
)

// PrescriptionWhitelist limits recognition to characters that appear on
// prescriptions: letters, digits and . , / - : ( ) plus space.
const PrescriptionWhitelist = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789.,/-:mgML() "

const (
	// PSMSingleBlock treats the image as a single uniform block of text.
	PSMSingleBlock = 6
	// OEMDefault lets tesseract pick between the legacy and LSTM engines.
	OEMDefault = 3
)

// Config holds the recognition settings passed to an Engine. EngineMode is
// passed to the tesseract CLI as --oem; gosseract always initializes with
// OEMDefault and rejects any other non-zero mode.
type Config struct {
	Languages   []string
	Whitelist   string
	PageSegMode int
	EngineMode  int
}

// DefaultConfig returns the settings tuned for prescriptions.
func DefaultConfig() Config {
	return Config{
		Languages:   []string{"eng"},
		Whitelist:   PrescriptionWhitelist,
		PageSegMode: PSMSingleBlock,
		EngineMode:  OEMDefault,
	}
}

// Args renders the config as tesseract command line flags.
func (c Config) Args() []string {
	var args []string
	if len(c.Languages) > 0 {
		args = append(args, "-l", strings.Join(c.Languages, "+"))
	}
	if c.EngineMode > 0 {
		args = append(args, "--oem", strconv.Itoa(c.EngineMode))
	}
	if c.PageSegMode > 0 {
		args = append(args, "--psm", strconv.Itoa(c.PageSegMode))
	}
	if c.Whitelist != "" {
		args = append(args, "-c", "tessedit_char_whitelist="+c.Whitelist)
	}
	return args
}

// Engine turns one image into text.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, img image.Image, cfg Config) (string, error)
}

// Checker is implemented by engines that can report whether their backend
// is installed.
type Checker interface {
	Available() error
}

// NewEngine builds an engine by name: "gosseract" (libtesseract) or "cli"
// (the tesseract binary at binaryPath).
func NewEngine(name, binaryPath string) (Engine, error) {
	switch name {
	case "gosseract":
		return NewGosseractEngine(), nil
	case "cli", "tesseract":
		return NewCLIEngine(binaryPath), nil
	default:
		return nil, fmt.Errorf("unknown ocr engine %q", name)
	}
}

// Recognizer preprocesses images and runs them through an Engine with a
// per-call timeout.
type Recognizer struct {
	engine  Engine
	cfg     Config
	timeout time.Duration
	logger  *zap.Logger
}

// NewRecognizer creates a recognizer. A zero timeout disables the deadline.
func NewRecognizer(engine Engine, cfg Config, timeout time.Duration, logger *zap.Logger) *Recognizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recognizer{engine: engine, cfg: cfg, timeout: timeout, logger: logger}
}

// Engine returns the underlying engine.
func (r *Recognizer) Engine() Engine {
	return r.engine
}

// Config returns the recognition settings.
func (r *Recognizer) Config() Config {
	return r.cfg
}

// LanguageLister is implemented by engines that can report their installed
// language packs.
type LanguageLister interface {
	ListLanguages(ctx context.Context) ([]string, error)
}

// RecognizeImage preprocesses img and returns the recognized text.
func (r *Recognizer) RecognizeImage(ctx context.Context, img image.Image) (string, error) {
	if img == nil || img.Bounds().Empty() {
		return "", apperrors.NewExtractionError(apperrors.StageDecode, "image has no pixels", nil)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	prepared := Preprocess(img)
	start := time.Now()
	text, err := r.engine.Recognize(ctx, prepared, r.cfg)
	if err != nil {
		r.logger.Warn("OCR failed",
			zap.String("engine", r.engine.Name()),
			zap.Error(err),
		)
		return "", apperrors.NewExtractionError(apperrors.StageOCR, "text recognition failed", err)
	}

	r.logger.Debug("OCR completed",
		zap.String("engine", r.engine.Name()),
		zap.Int("width", prepared.Bounds().Dx()),
		zap.Int("height", prepared.Bounds().Dy()),
		zap.Int("chars", len(text)),
		zap.Duration("took", time.Since(start)),
	)
	return text, nil
}

// RecognizeFile decodes the image at path and recognizes it.
func (r *Recognizer) RecognizeFile(ctx context.Context, path string) (string, error) {
	img, err := DecodeFile(path)
	if err != nil {
		return "", err
	}
	return r.RecognizeImage(ctx, img)
}

// DecodeFile reads a png, jpeg, gif, bmp, tiff or webp image.
func DecodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.NewExtractionError(apperrors.StageDecode, "could not open image", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, apperrors.NewExtractionError(apperrors.StageDecode, "could not decode image", err)
	}
	return img, nil
}
