package raster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Pdftoppm renders pages with poppler's pdftoppm.
type Pdftoppm struct {
	binaryPath string
	dpi        int
	maxPages   int
	tempDir    string
}

func NewPdftoppm(dpi, maxPages int) *Pdftoppm {
	return &Pdftoppm{binaryPath: "pdftoppm", dpi: dpi, maxPages: maxPages}
}

func (p *Pdftoppm) Name() string { return "pdftoppm" }

func (p *Pdftoppm) Available() error {
	return lookPath(p.binaryPath, "poppler-utils")
}

func (p *Pdftoppm) Rasterize(ctx context.Context, path string) ([]image.Image, error) {
	if err := p.Available(); err != nil {
		return nil, err
	}
	return renderToDir(ctx, p.tempDir, func(dir string) *exec.Cmd {
		args := []string{"-r", strconv.Itoa(p.dpi), "-png"}
		if p.maxPages > 0 {
			args = append(args, "-l", strconv.Itoa(p.maxPages))
		}
		args = append(args, path, filepath.Join(dir, "page"))
		return exec.CommandContext(ctx, p.binaryPath, args...)
	})
}

// Magick renders pages with ImageMagick, preferring the v7 "magick" binary
// and falling back to the v6 "convert".
type Magick struct {
	binaries []string
	dpi      int
	maxPages int
	tempDir  string
}

func NewMagick(dpi, maxPages int) *Magick {
	return &Magick{binaries: []string{"magick", "convert"}, dpi: dpi, maxPages: maxPages}
}

func (m *Magick) Name() string { return "magick" }

func (m *Magick) binary() (string, error) {
	for _, b := range m.binaries {
		if p, err := exec.LookPath(b); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: none of %s found (install imagemagick)", ErrBackendUnavailable, strings.Join(m.binaries, ", "))
}

func (m *Magick) Available() error {
	_, err := m.binary()
	return err
}

func (m *Magick) Rasterize(ctx context.Context, path string) ([]image.Image, error) {
	bin, err := m.binary()
	if err != nil {
		return nil, err
	}
	input := path
	if m.maxPages > 0 {
		input = fmt.Sprintf("%s[0-%d]", path, m.maxPages-1)
	}
	return renderToDir(ctx, m.tempDir, func(dir string) *exec.Cmd {
		return exec.CommandContext(ctx, bin,
			"-density", strconv.Itoa(m.dpi),
			input,
			"-background", "white",
			"-alpha", "remove",
			filepath.Join(dir, "page-%04d.png"),
		)
	})
}

func lookPath(bin, pkg string) error {
	if _, err := exec.LookPath(bin); err != nil {
		return fmt.Errorf("%w: %s not found (install %s)", ErrBackendUnavailable, bin, pkg)
	}
	return nil
}

// renderToDir runs a command that writes one PNG per page into a fresh temp
// dir under base, then decodes the pages in file name order. The dir is
// always removed.
func renderToDir(ctx context.Context, base string, build func(dir string) *exec.Cmd) ([]image.Image, error) {
	dir, err := os.MkdirTemp(base, "vetscan-raster-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	cmd := build(dir)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		name := filepath.Base(cmd.Path)
		var exitErr *exec.ExitError
		switch {
		case !errors.As(err, &exitErr):
			// never started
			return nil, fmt.Errorf("%w: %s: %v", ErrBackendUnavailable, name, err)
		case !exitErr.Exited():
			return nil, fmt.Errorf("%w: %s: %v", ErrBackendCrashed, name, err)
		}
		return nil, fmt.Errorf("%s failed: %w (output: %s)", name, err, strings.TrimSpace(stderr.String()))
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.png"))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%s produced no pages", filepath.Base(cmd.Path))
	}
	sort.Strings(files)

	pages := make([]image.Image, 0, len(files))
	for _, f := range files {
		img, err := decodePNG(f)
		if err != nil {
			return nil, err
		}
		pages = append(pages, img)
	}
	return pages, nil
}

func decodePNG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return img, nil
}
