package raster

import (
	"crypto/sha256"
	"encoding/hex"
	"image"
	"image/png"
	"io"

	"golang.org/x/image/draw"

	"github.com/hpungsan/nbaudit/internal/color"
)

// Sample is a decoded, non-premultiplied RGBA pixel buffer of one image.
type Sample struct {
	Width  int
	Height int
	Pix    []uint8 // RGBA, 4 bytes per pixel, row-major

	// Digest is the SHA-256 of the source bytes the sample was decoded from.
	Digest string
}

// NewSample draws img into a fresh NRGBA surface sized to its bounds.
func NewSample(img image.Image) *Sample {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return &Sample{Width: b.Dx(), Height: b.Dy(), Pix: dst.Pix}
}

// PixelCount returns Width*Height.
func (s *Sample) PixelCount() int {
	return s.Width * s.Height
}

// In reports whether (x, y) lies within the sample.
func (s *Sample) In(x, y int) bool {
	return x >= 0 && x < s.Width && y >= 0 && y < s.Height
}

// RGB returns the color at (x, y) without alpha. Out-of-range reads return black.
func (s *Sample) RGB(x, y int) color.Color {
	if !s.In(x, y) {
		return color.Black
	}
	i := (y*s.Width + x) * 4
	return color.Color{R: s.Pix[i], G: s.Pix[i+1], B: s.Pix[i+2]}
}

// Alpha returns the alpha channel at (x, y). Out-of-range reads return 0.
func (s *Sample) Alpha(x, y int) uint8 {
	if !s.In(x, y) {
		return 0
	}
	return s.Pix[(y*s.Width+x)*4+3]
}

// Image wraps the buffer as an *image.NRGBA without copying.
func (s *Sample) Image() *image.NRGBA {
	return &image.NRGBA{
		Pix:    s.Pix,
		Stride: s.Width * 4,
		Rect:   image.Rect(0, 0, s.Width, s.Height),
	}
}

// EncodePNG writes the sample as PNG, e.g. for handing to an OCR engine.
func (s *Sample) EncodePNG(w io.Writer) error {
	return png.Encode(w, s.Image())
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
