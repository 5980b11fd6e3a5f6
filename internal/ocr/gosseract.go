package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// GosseractEngine runs libtesseract in-process.
type GosseractEngine struct {
	clientFactory func() *gosseract.Client
}

func NewGosseractEngine() *GosseractEngine {
	return &GosseractEngine{clientFactory: gosseract.NewClient}
}

func (e *GosseractEngine) Name() string { return "gosseract" }

// Available reports the linked tesseract version check.
func (e *GosseractEngine) Available() error {
	if v := gosseract.Version(); v == "" {
		return fmt.Errorf("libtesseract not available")
	}
	return nil
}

// Recognize encodes img as PNG and hands it to a fresh client. The cgo call
// cannot be interrupted, so on cancellation the result is abandoned and the
// client is closed once tesseract returns.
func (e *GosseractEngine) Recognize(ctx context.Context, img image.Image, cfg Config) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode image: %w", err)
	}

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := e.recognize(buf.Bytes(), cfg)
		done <- result{text, err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-done:
		return res.text, res.err
	}
}

func (e *GosseractEngine) recognize(data []byte, cfg Config) (string, error) {
	// gosseract has no engine mode setter; its Init uses OEM_DEFAULT.
	if cfg.EngineMode != 0 && cfg.EngineMode != OEMDefault {
		return "", fmt.Errorf("engine mode %d not supported by gosseract (only %d)", cfg.EngineMode, OEMDefault)
	}

	c := e.clientFactory()
	defer c.Close()

	if len(cfg.Languages) > 0 {
		if err := c.SetLanguage(cfg.Languages...); err != nil {
			return "", fmt.Errorf("set languages: %w", err)
		}
	}
	if cfg.PageSegMode > 0 {
		if err := c.SetPageSegMode(gosseract.PageSegMode(cfg.PageSegMode)); err != nil {
			return "", fmt.Errorf("set page segmentation mode: %w", err)
		}
	}
	if cfg.Whitelist != "" {
		if err := c.SetWhitelist(cfg.Whitelist); err != nil {
			return "", fmt.Errorf("set whitelist: %w", err)
		}
	}
	if err := c.SetImageFromBytes(data); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}

	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return strings.TrimSpace(text), nil
}
