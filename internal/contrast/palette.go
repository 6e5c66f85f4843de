package contrast

import (
	"context"
	"fmt"
	"sort"

	"github.com/hpungsan/nbaudit/internal/color"
	"github.com/hpungsan/nbaudit/internal/db"
	"github.com/hpungsan/nbaudit/internal/raster"
)

// Defaults for the palette strategy.
const (
	DefaultPaletteSize      = 3
	DefaultPaletteThreshold = 5.0 // on the 0-20 scale
)

// minPaletteAlpha skips mostly transparent pixels when building a palette.
const minPaletteAlpha = 125

// Palette compares the dominant image colors against the cell background and
// reports the best candidate.
type Palette struct {
	Background color.Color
	Size       int
	Threshold  float64 // on the 0-20 scale
}

// Kind implements Strategy.
func (p *Palette) Kind() string { return db.KindPalette }

// Params implements Strategy.
func (p *Palette) Params() string {
	return fmt.Sprintf("%s/%d", p.Background.Hex(), p.size())
}

// Flagged implements Strategy.
func (p *Palette) Flagged(m Measurement) bool {
	return color.NormalizeToTwentyScale(m.Ratio) < p.Threshold
}

// Measure implements Strategy.
func (p *Palette) Measure(_ context.Context, s *raster.Sample) (Measurement, error) {
	colors := Dominant(s, p.size())
	if len(colors) == 0 {
		return Measurement{}, fmt.Errorf("no opaque pixels in %dx%d image", s.Width, s.Height)
	}

	best := Measurement{}
	for _, c := range colors {
		ratio := color.WCAG20.Contrast(c, p.Background)
		if ratio > best.Ratio {
			best = Measurement{Ratio: ratio, Foreground: c, Background: p.Background, HasColors: true}
		}
	}
	return best, nil
}

func (p *Palette) size() int {
	if p.Size <= 0 {
		return DefaultPaletteSize
	}
	return p.Size
}

// box is a median-cut partition of pixels.
type box []color.Color

// span returns the widest channel (0=R, 1=G, 2=B) and its range.
func (b box) span() (channel int, width int) {
	lo := [3]uint8{255, 255, 255}
	hi := [3]uint8{}
	for _, c := range b {
		v := [3]uint8{c.R, c.G, c.B}
		for i := range v {
			lo[i] = min(lo[i], v[i])
			hi[i] = max(hi[i], v[i])
		}
	}
	for i := range lo {
		if w := int(hi[i]) - int(lo[i]); w > width {
			channel, width = i, w
		}
	}
	return channel, width
}

func (b box) average() color.Color {
	var r, g, bl int
	for _, c := range b {
		r += int(c.R)
		g += int(c.G)
		bl += int(c.B)
	}
	n := len(b)
	return color.Color{R: uint8(r / n), G: uint8(g / n), B: uint8(bl / n)}
}

func channelOf(c color.Color, ch int) uint8 {
	switch ch {
	case 0:
		return c.R
	case 1:
		return c.G
	default:
		return c.B
	}
}

// splitPoint returns the index nearest the median at which the sorted box
// changes value on channel ch, so equal colors stay in one box.
func splitPoint(b box, ch int) int {
	mid := len(b) / 2
	v := channelOf(b[mid], ch)
	lo := mid
	for lo > 0 && channelOf(b[lo-1], ch) == v {
		lo--
	}
	hi := mid
	for hi < len(b) && channelOf(b[hi], ch) == v {
		hi++
	}
	switch {
	case lo == 0:
		return hi
	case hi == len(b):
		return lo
	case mid-lo <= hi-mid:
		return lo
	default:
		return hi
	}
}

// Dominant returns up to n representative colors of the sample's sufficiently
// opaque pixels using median cut, most populous first.
func Dominant(s *raster.Sample, n int) []color.Color {
	if s == nil || n <= 0 {
		return nil
	}
	pixels := make(box, 0, s.PixelCount())
	for i := 0; i+3 < len(s.Pix); i += 4 {
		if s.Pix[i+3] < minPaletteAlpha {
			continue
		}
		pixels = append(pixels, color.Color{R: s.Pix[i], G: s.Pix[i+1], B: s.Pix[i+2]})
	}
	if len(pixels) == 0 {
		return nil
	}

	boxes := []box{pixels}
	for len(boxes) < n {
		// Split the box with the widest channel range
		target, ch, width := -1, 0, 0
		for i, b := range boxes {
			if len(b) < 2 {
				continue
			}
			if c, w := b.span(); w > width {
				target, ch, width = i, c, w
			}
		}
		if target < 0 {
			break
		}
		b := boxes[target]
		sort.Slice(b, func(i, j int) bool { return channelOf(b[i], ch) < channelOf(b[j], ch) })
		mid := splitPoint(b, ch)
		boxes[target] = b[:mid]
		boxes = append(boxes, b[mid:])
	}

	sort.SliceStable(boxes, func(i, j int) bool { return len(boxes[i]) > len(boxes[j]) })
	out := make([]color.Color, len(boxes))
	for i, b := range boxes {
		out[i] = b.average()
	}
	return out
}
