package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError(t *testing.T) {
	err := New("TEST_001", "test error")

	if err.Code != "TEST_001" {
		t.Errorf("expected code TEST_001, got %s", err.Code)
	}
	if err.Message != "test error" {
		t.Errorf("expected message 'test error', got %s", err.Message)
	}
	assert.Equal(t, "[TEST_001] test error", err.Error())
}

func TestAppErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("underlying error")
	err := New("TEST_001", "test error", cause)

	assert.Equal(t, cause, err.Cause)
	if !strings.Contains(err.Error(), "underlying error") {
		t.Errorf("expected error string to contain cause, got %s", err.Error())
	}
	assert.Equal(t, cause, err.Unwrap())
}

func TestIsAppError(t *testing.T) {
	appErr := New("TEST_001", "test error")
	wrapped := fmt.Errorf("handler: %w", appErr)

	assert.True(t, IsAppError(appErr))
	assert.True(t, IsAppError(wrapped))
	assert.False(t, IsAppError(fmt.Errorf("standard error")))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, "UPLOAD_002", GetCode(fmt.Errorf("upload: %w", ErrInvalidType)))
	assert.Equal(t, "UNKNOWN", GetCode(fmt.Errorf("standard error")))
}

func TestWrap(t *testing.T) {
	cause := fmt.Errorf("underlying error")
	err := Wrap(cause, ErrExtractionFailed.Code, "no text")

	assert.Equal(t, "EXTRACT_001", err.Code)
	assert.True(t, stderrors.Is(err, ErrExtractionFailed))
	assert.True(t, stderrors.Is(err, cause))
	assert.False(t, stderrors.Is(err, ErrNoFile))
}

func TestPredefinedErrors(t *testing.T) {
	tests := []struct {
		err  *AppError
		code string
	}{
		{ErrNoFile, "UPLOAD_001"},
		{ErrInvalidType, "UPLOAD_002"},
		{ErrFileTooLarge, "UPLOAD_003"},
		{ErrExtractionFailed, "EXTRACT_001"},
		{ErrContactInvalid, "CONTACT_001"},
		{ErrInternal, "GEN_003"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, tt.err.Code)
	}
}

func TestExtractionError(t *testing.T) {
	cause := fmt.Errorf("exit status 1")
	err := NewExtractionError(StageRasterize, "no rasterization method available", cause).
		WithAttempts([]Attempt{{Strategy: "pdftoppm", Err: cause}}).
		WithHint(HintConvertToImages)

	msg := err.Error()
	assert.True(t, strings.HasPrefix(msg, "rasterize: no rasterization method available"))
	assert.Contains(t, msg, "pdftoppm: exit status 1")
	assert.Contains(t, msg, HintConvertToImages)
	assert.Equal(t, cause, stderrors.Unwrap(err))

	wrapped := fmt.Errorf("analyze: %w", err)
	ee, ok := AsExtractionError(wrapped)
	require.True(t, ok)
	assert.Equal(t, StageRasterize, ee.Stage)
	assert.Len(t, ee.Attempts, 1)

	_, ok = AsExtractionError(cause)
	assert.False(t, ok)
}
