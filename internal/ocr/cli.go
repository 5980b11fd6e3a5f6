package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os/exec"
	"strings"
)

// CLIEngine shells out to the tesseract binary, streaming a PNG on stdin and
// reading text from stdout.
type CLIEngine struct {
	binaryPath string
}

func NewCLIEngine(binaryPath string) *CLIEngine {
	if binaryPath == "" {
		binaryPath = "tesseract"
	}
	return &CLIEngine{binaryPath: binaryPath}
}

func (e *CLIEngine) Name() string { return "tesseract" }

// Available checks that the binary is on PATH.
func (e *CLIEngine) Available() error {
	if _, err := exec.LookPath(e.binaryPath); err != nil {
		return fmt.Errorf("%s not found (install tesseract-ocr): %w", e.binaryPath, err)
	}
	return nil
}

func (e *CLIEngine) Recognize(ctx context.Context, img image.Image, cfg Config) (string, error) {
	if err := e.Available(); err != nil {
		return "", err
	}

	var in bytes.Buffer
	if err := png.Encode(&in, img); err != nil {
		return "", fmt.Errorf("encode image: %w", err)
	}

	args := append([]string{"stdin", "stdout"}, cfg.Args()...)
	cmd := exec.CommandContext(ctx, e.binaryPath, args...)
	cmd.Stdin = &in
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("tesseract failed: %w (output: %s)", err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// ListLanguages lists the installed tesseract language packs.
func (e *CLIEngine) ListLanguages(ctx context.Context) ([]string, error) {
	out, err := exec.CommandContext(ctx, e.binaryPath, "--list-langs").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list languages: %w", err)
	}
	return parseLanguageList(string(out)), nil
}

// parseLanguageList reads `tesseract --list-langs` output, skipping the
// "List of available languages" header.
func parseLanguageList(out string) []string {
	var langs []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "List of") {
			langs = append(langs, line)
		}
	}
	return langs
}

// MissingLanguages returns the entries of wanted that are not installed.
func MissingLanguages(installed, wanted []string) []string {
	have := make(map[string]bool, len(installed))
	for _, l := range installed {
		have[l] = true
	}
	var missing []string
	for _, l := range wanted {
		if !have[l] {
			missing = append(missing, l)
		}
	}
	return missing
}
