package extraction

import (
	"errors"
	"path/filepath"
	"strings"
)

// Kind is the document kind derived from the file extension.
type Kind int

const (
	KindUnknown Kind = iota
	KindPDF
	KindImage
)

// ErrUnsupportedKind is returned for extensions outside pdf, png, jpg and jpeg.
var ErrUnsupportedKind = errors.New("unsupported document kind")

func (k Kind) String() string {
	switch k {
	case KindPDF:
		return "pdf"
	case KindImage:
		return "image"
	default:
		return "unknown"
	}
}

// KindFromPath maps .pdf to KindPDF and .png, .jpg, .jpeg to KindImage,
// ignoring case.
func KindFromPath(path string) (Kind, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return KindPDF, nil
	case ".png", ".jpg", ".jpeg":
		return KindImage, nil
	default:
		return KindUnknown, ErrUnsupportedKind
	}
}

// AllowedExtensions lists the accepted extensions without the dot.
func AllowedExtensions() []string {
	return []string{"pdf", "png", "jpg", "jpeg"}
}
