package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Stage names the part of the extraction pipeline that failed.
type Stage string

const (
	StageTextLayer Stage = "text_layer"
	StageRasterize Stage = "rasterize"
	StageDecode    Stage = "decode"
	StageOCR       Stage = "ocr"
	StageExtract   Stage = "extract"
)

// HintConvertToImages is shown when every strategy for a PDF has failed.
const HintConvertToImages = "convert the PDF to PNG or JPG images and upload those instead"

// Attempt records one strategy that was tried and why it failed.
type Attempt struct {
	Strategy string
	Err      error
}

func (a Attempt) String() string {
	return fmt.Sprintf("%s: %v", a.Strategy, a.Err)
}

// ExtractionError is the only error kind produced by text extraction.
type ExtractionError struct {
	Stage    Stage
	Message  string
	Hint     string
	Attempts []Attempt
	Cause    error
}

func (e *ExtractionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Stage, e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	if len(e.Attempts) > 0 {
		parts := make([]string, len(e.Attempts))
		for i, a := range e.Attempts {
			parts[i] = a.String()
		}
		fmt.Fprintf(&b, " [%s]", strings.Join(parts, "; "))
	}
	if e.Hint != "" {
		fmt.Fprintf(&b, " (%s)", e.Hint)
	}
	return b.String()
}

func (e *ExtractionError) Unwrap() error {
	return e.Cause
}

func NewExtractionError(stage Stage, message string, cause error) *ExtractionError {
	return &ExtractionError{Stage: stage, Message: message, Cause: cause}
}

// WithHint returns e with the given hint set.
func (e *ExtractionError) WithHint(hint string) *ExtractionError {
	e.Hint = hint
	return e
}

// WithAttempts returns e with the attempt log attached.
func (e *ExtractionError) WithAttempts(attempts []Attempt) *ExtractionError {
	e.Attempts = append([]Attempt(nil), attempts...)
	return e
}

// AsExtractionError reports whether err wraps an *ExtractionError.
func AsExtractionError(err error) (*ExtractionError, bool) {
	var ee *ExtractionError
	if stderrors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}
