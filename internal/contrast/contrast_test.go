package contrast

import (
	"context"
	"fmt"
	"image"
	stdcolor "image/color"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/nbaudit/internal/color"
	"github.com/hpungsan/nbaudit/internal/config"
	"github.com/hpungsan/nbaudit/internal/db"
	"github.com/hpungsan/nbaudit/internal/errors"
	"github.com/hpungsan/nbaudit/internal/raster"
)

// textImage draws a w×h background with a filled "glyph" rectangle in the middle.
func textImage(w, h int, bg, fg color.Color) *raster.Sample {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := bg
			if x >= w/4 && x < w/2 && y >= h/4 && y < h*3/4 {
				c = fg
			}
			img.SetNRGBA(x, y, stdcolor.NRGBA{R: c.R, G: c.G, B: c.B, A: 255})
		}
	}
	s := raster.NewSample(img)
	s.Digest = fmt.Sprintf("%dx%d-%s-%s", w, h, bg.Hex(), fg.Hex())
	return s
}

type fakeLoader struct {
	sample *raster.Sample
	err    error
}

func (f *fakeLoader) Rasterize(ctx context.Context, src, docPath string) (*raster.Sample, error) {
	return f.sample, f.err
}

func fixedWords(words ...Word) Recognizer {
	return RecognizerFunc(func(ctx context.Context, s *raster.Sample) ([]Word, error) {
		return words, nil
	})
}

func wholeImage(s *raster.Sample, text string, conf float64) Word {
	return Word{Text: text, Confidence: conf, Box: image.Rect(0, 0, s.Width-1, s.Height-1)}
}

const tsvSample = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
	"1\t1\t0\t0\t0\t0\t0\t0\t200\t100\t-1\t\n" +
	"4\t1\t1\t1\t1\t0\t10\t10\t180\t20\t-1\t\n" +
	"5\t1\t1\t1\t1\t1\t10\t10\t50\t20\t96.5\tHello\n" +
	"5\t1\t1\t1\t1\t2\t70\t10\t60\t20\t91\tworld\n" +
	"5\t1\t1\t1\t1\t3\t140\t10\t5\t20\t40\t|\n" +
	"5\t1\t1\t1\t1\t4\t150\t10\t5\t20\t95\t \n"

func TestParseTSV(t *testing.T) {
	words, err := ParseTSV(strings.NewReader(tsvSample))
	require.NoError(t, err)
	require.Len(t, words, 3)

	assert.Equal(t, "Hello", words[0].Text)
	assert.Equal(t, 96.5, words[0].Confidence)
	assert.Equal(t, image.Rect(10, 10, 60, 30), words[0].Box)
	assert.Equal(t, "|", words[2].Text)
}

func TestParseTSV_BadNumber(t *testing.T) {
	bad := "5\t1\t1\t1\t1\t1\tx\t10\t50\t20\t96\tHello\n"
	_, err := ParseTSV(strings.NewReader(bad))
	assert.Error(t, err)
}

func TestWordColors(t *testing.T) {
	s := textImage(40, 20, color.White, color.Black)
	fg, bg, ok := WordColors(s, wholeImage(s, "x", 99), 30)
	require.True(t, ok)
	// White quantizes to 240 with bucket 30
	assert.Equal(t, "#F0F0F0", bg.Hex())
	assert.Equal(t, "#000000", fg.Hex())
}

func TestWordColors_SingleBucketSkipped(t *testing.T) {
	s := textImage(10, 10, color.White, color.White)
	_, _, ok := WordColors(s, wholeImage(s, "x", 99), 30)
	assert.False(t, ok)
}

func TestWordColors_ClipsToImage(t *testing.T) {
	s := textImage(8, 8, color.White, color.Black)
	w := Word{Text: "x", Confidence: 99, Box: image.Rect(-10, -10, 100, 100)}
	_, _, ok := WordColors(s, w, 30)
	assert.True(t, ok)
}

func TestOCR_Measure(t *testing.T) {
	s := textImage(40, 20, color.White, color.MustParseHex("#AAAAAA"))
	o := &OCR{
		Recognizer:    fixedWords(wholeImage(s, "Hello", 95)),
		MinConfidence: DefaultMinConfidence,
		BucketSize:    DefaultBucketSize,
		Threshold:     color.AANormalText,
	}

	m, err := o.Measure(context.Background(), s)
	require.NoError(t, err)
	want := color.SRGB.Contrast(color.Quantize(color.MustParseHex("#AAAAAA"), 30), color.Quantize(color.White, 30))
	assert.InDelta(t, want, m.Ratio, 1e-9)
	assert.True(t, m.HasColors)
	assert.Equal(t, 1, m.Words)
	assert.True(t, o.Flagged(m), "gray on white at %.2f should be flagged", m.Ratio)
}

func TestOCR_MinimumAcrossWords(t *testing.T) {
	s := textImage(40, 20, color.White, color.Black)
	// Left half holds the glyph; right half is background only
	left := Word{Text: "a", Confidence: 99, Box: image.Rect(0, 0, 19, 19)}
	lowConf := Word{Text: "b", Confidence: 50, Box: image.Rect(0, 0, 39, 19)}
	o := &OCR{Recognizer: fixedWords(left, lowConf), MinConfidence: 85, BucketSize: 30, Threshold: 4.5}

	m, err := o.Measure(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Words)
	assert.False(t, o.Flagged(m))
}

func TestOCR_CountsEveryUsedWord(t *testing.T) {
	// Black glyph on the left, light gray glyph on the right, both on white
	img := image.NewNRGBA(image.Rect(0, 0, 40, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 40; x++ {
			c := color.White
			if y >= 5 && y < 15 {
				switch {
				case x >= 5 && x < 10:
					c = color.Black
				case x >= 25 && x < 30:
					c = color.MustParseHex("#AAAAAA")
				}
			}
			img.SetNRGBA(x, y, stdcolor.NRGBA{R: c.R, G: c.G, B: c.B, A: 255})
		}
	}
	s := raster.NewSample(img)
	dark := Word{Text: "dark", Confidence: 99, Box: image.Rect(0, 0, 19, 19)}
	light := Word{Text: "light", Confidence: 99, Box: image.Rect(20, 0, 39, 19)}
	o := &OCR{Recognizer: fixedWords(dark, light), MinConfidence: 85, BucketSize: 30, Threshold: 4.5}

	m, err := o.Measure(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Words)
	want := color.SRGB.Contrast(color.Quantize(color.MustParseHex("#AAAAAA"), 30), color.Quantize(color.White, 30))
	assert.InDelta(t, want, m.Ratio, 1e-9, "the lowest word wins")
}

func TestOCR_NoUsableWords(t *testing.T) {
	s := textImage(20, 20, color.White, color.Black)
	tests := []struct {
		name  string
		words []Word
	}{
		{"none", nil},
		{"noise only", []Word{wholeImage(s, "|", 99), wholeImage(s, "=", 99)}},
		{"low confidence", []Word{wholeImage(s, "Hi", 84.9)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &OCR{Recognizer: fixedWords(tt.words...), MinConfidence: 85, BucketSize: 30, Threshold: 4.5}
			_, err := o.Measure(context.Background(), s)
			assert.True(t, errors.Is(err, errors.ErrNoTextDetected), "got %v", err)
		})
	}
}

func TestDominant(t *testing.T) {
	s := textImage(40, 20, color.White, color.Black)
	colors := Dominant(s, 3)
	require.NotEmpty(t, colors)
	// White covers 7/8 of the image and wins the largest box
	assert.Equal(t, "#FFFFFF", colors[0].Hex())
	assert.Contains(t, colors, color.Black)
}

func TestDominant_SkipsTransparent(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	assert.Empty(t, Dominant(raster.NewSample(img), 3))
}

func TestPalette_Measure(t *testing.T) {
	p := &Palette{Background: color.White, Threshold: DefaultPaletteThreshold}

	m, err := p.Measure(context.Background(), textImage(40, 20, color.White, color.Black))
	require.NoError(t, err)
	assert.InDelta(t, 21, m.Ratio, 0.01)
	assert.False(t, p.Flagged(m))

	// Pale yellow on white: best candidate is still nearly invisible
	pale := textImage(40, 20, color.White, color.MustParseHex("#FFFFCC"))
	m, err = p.Measure(context.Background(), pale)
	require.NoError(t, err)
	assert.True(t, p.Flagged(m), "ratio %.2f should be flagged", m.Ratio)
}

func TestAnalyzer_UnavailableImageIsNeutral(t *testing.T) {
	loader := &fakeLoader{err: errors.NewResourceUnavailable("x.png", nil)}
	a := NewAnalyzer(loader, &Palette{Background: color.White, Threshold: 5}, nil, nil)

	r := a.Analyze(context.Background(), "x.png", "nb.ipynb")
	assert.False(t, r.Available)
	assert.False(t, r.Flagged)
	assert.Equal(t, color.MaxContrast, r.Ratio)
}

func TestAnalyzer_RecognizerFailureIsNeutral(t *testing.T) {
	s := textImage(20, 20, color.White, color.MustParseHex("#EEEEEE"))
	failing := RecognizerFunc(func(ctx context.Context, s *raster.Sample) ([]Word, error) {
		return nil, fmt.Errorf("tesseract: executable file not found")
	})
	a := NewAnalyzer(&fakeLoader{sample: s}, &OCR{Recognizer: failing, MinConfidence: 85, BucketSize: 30, Threshold: 4.5}, nil, nil)

	r := a.Analyze(context.Background(), "x.png", "nb.ipynb")
	assert.True(t, r.Available)
	assert.False(t, r.Flagged)
	assert.Equal(t, color.MaxContrast, r.Ratio)
}

func TestAnalyzer_CachesMeasurements(t *testing.T) {
	cache, err := db.Open(nil)
	require.NoError(t, err)
	defer cache.Close()

	s := textImage(40, 20, color.White, color.MustParseHex("#AAAAAA"))
	calls := 0
	rec := RecognizerFunc(func(ctx context.Context, _ *raster.Sample) ([]Word, error) {
		calls++
		return []Word{wholeImage(s, "Hello", 95)}, nil
	})
	a := NewAnalyzer(&fakeLoader{sample: s}, &OCR{Recognizer: rec, Language: "eng", MinConfidence: 85, BucketSize: 30, Threshold: 4.5}, cache, nil)

	first := a.Analyze(context.Background(), "x.png", "nb.ipynb")
	second := a.Analyze(context.Background(), "x.png", "nb.ipynb")
	assert.Equal(t, 1, calls, "second analysis should hit the cache")
	assert.InDelta(t, first.Ratio, second.Ratio, 1e-9)
	assert.Equal(t, first.Foreground, second.Foreground)
	assert.True(t, second.Flagged)
}

func TestNewStrategy(t *testing.T) {
	cfg := config.DefaultConfig()
	s, err := NewStrategy(cfg)
	require.NoError(t, err)
	ocr, ok := s.(*OCR)
	require.True(t, ok, "default strategy should be OCR, got %T", s)
	assert.Equal(t, 30, ocr.BucketSize)
	assert.Equal(t, "eng/85/30", ocr.Params())

	cfg.ContrastStrategy = config.StrategyPalette
	cfg.CellBackground = "#111111"
	s, err = NewStrategy(cfg)
	require.NoError(t, err)
	pal, ok := s.(*Palette)
	require.True(t, ok)
	assert.Equal(t, "#111111", pal.Background.Hex())

	cfg.CellBackground = "nope"
	_, err = NewStrategy(cfg)
	assert.True(t, errors.Is(err, errors.ErrParseFailure))

	cfg.ContrastStrategy = "blend"
	_, err = NewStrategy(cfg)
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestEntryRoundTrip(t *testing.T) {
	m := Measurement{Ratio: 3.1, Foreground: color.Black, Background: color.White, HasColors: true}
	got := decodeEntry(encodeEntry(m))
	assert.True(t, got.HasColors)
	assert.Equal(t, m.Foreground, got.Foreground)
	assert.True(t, math.Abs(got.Ratio-3.1) < 1e-9)

	assert.False(t, decodeEntry(db.Entry{Value: 21}).HasColors)
}
