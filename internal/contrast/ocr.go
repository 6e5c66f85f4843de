package contrast

import (
	"context"
	"fmt"
	"sort"

	"github.com/hpungsan/nbaudit/internal/color"
	"github.com/hpungsan/nbaudit/internal/db"
	"github.com/hpungsan/nbaudit/internal/errors"
	"github.com/hpungsan/nbaudit/internal/raster"
)

// Defaults for the OCR strategy.
const (
	DefaultMinConfidence = 85.0
	DefaultBucketSize    = 30
)

// noiseWords are single-glyph detections that are usually rules or borders.
var noiseWords = map[string]bool{"|": true, "-": true, "_": true, "/": true, "=": true}

// OCR measures contrast between each recognized word and its surroundings,
// reporting the worst word.
type OCR struct {
	Recognizer    Recognizer
	Language      string // recorded in cache keys only
	MinConfidence float64
	BucketSize    int
	Threshold     float64 // raw WCAG ratio
}

// Kind implements Strategy.
func (o *OCR) Kind() string { return db.KindOCRContrast }

// Params implements Strategy.
func (o *OCR) Params() string {
	return fmt.Sprintf("%s/%g/%d", o.Language, o.MinConfidence, o.BucketSize)
}

// Flagged implements Strategy.
func (o *OCR) Flagged(m Measurement) bool {
	return m.Ratio < o.Threshold
}

// Measure implements Strategy. It returns NO_TEXT_DETECTED when no word
// survives filtering.
func (o *OCR) Measure(ctx context.Context, s *raster.Sample) (Measurement, error) {
	words, err := o.Recognizer.Recognize(ctx, s)
	if err != nil {
		return Measurement{}, err
	}

	best := Measurement{Ratio: color.MaxContrast}
	used := 0
	for _, w := range words {
		if w.Confidence < o.MinConfidence || noiseWords[w.Text] {
			continue
		}
		fg, bg, ok := WordColors(s, w, o.BucketSize)
		if !ok {
			continue
		}
		ratio := color.SRGB.Contrast(fg, bg)
		if used == 0 || ratio < best.Ratio {
			best = Measurement{Ratio: ratio, Foreground: fg, Background: bg, HasColors: true}
		}
		used++
	}
	if used == 0 {
		return Measurement{}, errors.NewNoTextDetected(fmt.Sprintf("%dx%d image", s.Width, s.Height))
	}
	best.Words = used
	return best, nil
}

// WordColors tallies quantized colors inside the word box (inclusive, clipped
// to the sample) and returns the second most frequent as foreground and the
// most frequent as background. ok is false when the box holds fewer than two
// distinct buckets.
func WordColors(s *raster.Sample, w Word, bucket int) (fg, bg color.Color, ok bool) {
	type tally struct {
		c     color.Color
		count int
	}
	index := make(map[color.Color]int)
	var tallies []tally

	x0, y0 := max(w.Box.Min.X, 0), max(w.Box.Min.Y, 0)
	x1, y1 := min(w.Box.Max.X, s.Width-1), min(w.Box.Max.Y, s.Height-1)
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			q := color.Quantize(s.RGB(x, y), bucket)
			if i, seen := index[q]; seen {
				tallies[i].count++
				continue
			}
			index[q] = len(tallies)
			tallies = append(tallies, tally{c: q, count: 1})
		}
	}
	if len(tallies) < 2 {
		return color.Color{}, color.Color{}, false
	}

	// Ties keep first-seen order
	sort.SliceStable(tallies, func(i, j int) bool {
		return tallies[i].count > tallies[j].count
	})
	return tallies[1].c, tallies[0].c, true
}
