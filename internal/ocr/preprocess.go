package ocr

import (
	"image"

	"golang.org/x/image/draw"
)

const (
	minLongSide    = 1000
	targetLongSide = 2000
)

// Preprocess converts img to grayscale and, when its longer side is under
// 1000px, upscales it so the longer side becomes 2000px.
func Preprocess(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)

	w, h := b.Dx(), b.Dy()
	long := max(w, h)
	if long == 0 || long >= minLongSide {
		return gray
	}

	scale := float64(targetLongSide) / float64(long)
	nw, nh := int(float64(w)*scale), int(float64(h)*scale)
	scaled := image.NewGray(image.Rect(0, 0, max(nw, 1), max(nh, 1)))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), gray, gray.Bounds(), draw.Src, nil)
	return scaled
}
