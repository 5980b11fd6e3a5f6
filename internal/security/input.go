// Package security screens free-text form input before it is logged or
// stored.
package security

import (
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"
)

var (
	ErrInputTooLarge       = errors.New("input exceeds maximum size")
	ErrNullByteDetected    = errors.New("null byte detected in input")
	ErrInvalidUTF8         = errors.New("input is not valid UTF-8")
	ErrHighWhitespaceRatio = errors.New("suspicious whitespace ratio")
	ErrRepetitiveContent   = errors.New("excessive repetition detected")
)

// minRatioLength is the shortest input the whitespace ratio applies to.
const minRatioLength = 32

type InputValidator struct {
	MaxSize            int
	MaxWhitespaceRatio float64
	MaxRepetition      int
}

func NewInputValidator() *InputValidator {
	return &InputValidator{
		MaxSize:            20 * 1024,
		MaxWhitespaceRatio: 0.8,
		MaxRepetition:      100,
	}
}

// Field is a named value for ValidateFields.
type Field struct {
	Name  string
	Value string
}

// FieldError reports which field failed and why.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// ValidateFields checks each field in order and returns the first failure
// as a *FieldError.
func (v *InputValidator) ValidateFields(fields ...Field) error {
	for _, f := range fields {
		if err := v.Validate(f.Value); err != nil {
			return &FieldError{Field: f.Name, Err: err}
		}
	}
	return nil
}

func (v *InputValidator) Validate(input string) error {
	if v.MaxSize > 0 && len(input) > v.MaxSize {
		return ErrInputTooLarge
	}

	for i := 0; i < len(input); i++ {
		if input[i] == 0 {
			return ErrNullByteDetected
		}
	}

	if !utf8.ValidString(input) {
		return ErrInvalidUTF8
	}

	if v.MaxWhitespaceRatio > 0 && len(input) >= minRatioLength {
		whitespaceCount := 0
		for _, r := range input {
			if unicode.IsSpace(r) {
				whitespaceCount++
			}
		}
		ratio := float64(whitespaceCount) / float64(utf8.RuneCountInString(input))
		if ratio > v.MaxWhitespaceRatio {
			return ErrHighWhitespaceRatio
		}
	}

	if v.MaxRepetition > 0 && hasExcessiveRepetition(input, v.MaxRepetition) {
		return ErrRepetitiveContent
	}

	return nil
}

func hasExcessiveRepetition(input string, maxLen int) bool {
	if len(input) <= maxLen {
		return false
	}

	consecutiveCount := 0
	var prev rune = -1
	for _, r := range input {
		if r == prev {
			consecutiveCount++
			if consecutiveCount > maxLen {
				return true
			}
		} else {
			consecutiveCount = 1
			prev = r
		}
	}

	return false
}
