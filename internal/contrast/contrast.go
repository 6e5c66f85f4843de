// Package contrast estimates how readable text embedded in images is.
//
// Two strategies exist and exactly one is active per analyzer:
//   - OCR (default): recognize words, tally the colors inside each word box,
//     and take the worst word's contrast.
//   - Palette: compare the top median-cut colors against the cell background
//     and take the best candidate.
//
// Any failure degrades to the neutral MaxContrast so a broken image never
// produces a contrast finding.
package contrast

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hpungsan/nbaudit/internal/color"
	"github.com/hpungsan/nbaudit/internal/config"
	"github.com/hpungsan/nbaudit/internal/db"
	"github.com/hpungsan/nbaudit/internal/errors"
	"github.com/hpungsan/nbaudit/internal/raster"
)

// Measurement is the contrast found in one image.
type Measurement struct {
	Ratio      float64 // raw WCAG ratio, 1-21
	Foreground color.Color
	Background color.Color
	HasColors  bool // false when Ratio is a neutral default
	Words      int  // OCR words that contributed
}

// Strategy measures one sample.
type Strategy interface {
	Measure(ctx context.Context, s *raster.Sample) (Measurement, error)
	Flagged(m Measurement) bool
	// Kind and Params identify the measurement in the cache.
	Kind() string
	Params() string
}

// Loader produces a pixel sample for an image reference.
type Loader interface {
	Rasterize(ctx context.Context, src, docPath string) (*raster.Sample, error)
}

// Result is the outcome of analyzing one image.
type Result struct {
	Measurement
	Available bool // false when the image could not be loaded
	Flagged   bool
}

// NewStrategy builds the strategy selected by cfg.
func NewStrategy(cfg *config.Config) (Strategy, error) {
	switch cfg.ContrastStrategy {
	case config.StrategyPalette:
		bg, err := color.ParseHex(cfg.CellBackground)
		if err != nil {
			return nil, err
		}
		return &Palette{Background: bg, Size: DefaultPaletteSize, Threshold: cfg.PaletteThreshold}, nil
	case config.StrategyOCR, "":
		lang, err := cfg.TesseractLanguage()
		if err != nil {
			return nil, errors.NewInvalidRequest(err.Error())
		}
		return &OCR{
			Recognizer: &Tesseract{
				Command:  cfg.OCRCommand,
				Language: lang,
				Timeout:  time.Duration(cfg.OCRTimeoutSeconds) * time.Second,
			},
			Language:      lang,
			MinConfidence: cfg.OCRMinConfidence,
			BucketSize:    cfg.BucketSize,
			Threshold:     cfg.ContrastThreshold,
		}, nil
	default:
		return nil, errors.NewInvalidRequest(fmt.Sprintf("unknown contrast strategy %q", cfg.ContrastStrategy))
	}
}

// Analyzer loads images and measures them with one strategy.
type Analyzer struct {
	loader   Loader
	strategy Strategy
	cache    *db.Cache
	logger   *slog.Logger
}

// NewAnalyzer creates an Analyzer. cache may be nil.
func NewAnalyzer(loader Loader, strategy Strategy, cache *db.Cache, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{loader: loader, strategy: strategy, cache: cache, logger: logger}
}

// Strategy returns the active strategy.
func (a *Analyzer) Strategy() Strategy {
	return a.strategy
}

// Analyze measures the image at src.
func (a *Analyzer) Analyze(ctx context.Context, src, docPath string) Result {
	sample, err := a.loader.Rasterize(ctx, src, docPath)
	if err != nil {
		a.logger.Debug("contrast: image unavailable", "src", src, "error", err)
		return Result{Measurement: Measurement{Ratio: color.MaxContrast}}
	}

	m := a.measure(ctx, src, sample)
	return Result{Measurement: m, Available: true, Flagged: a.strategy.Flagged(m)}
}

func (a *Analyzer) measure(ctx context.Context, src string, sample *raster.Sample) Measurement {
	key := db.Key{Digest: sample.Digest, Kind: a.strategy.Kind(), Params: a.strategy.Params()}
	if e, ok := a.cache.Lookup(ctx, key); ok {
		return decodeEntry(e)
	}

	m, err := a.strategy.Measure(ctx, sample)
	if err != nil {
		a.logger.Debug("contrast: measurement degraded", "src", src, "error", err)
		// Only a clean "no text" outcome is a stable measurement
		if !errors.Is(err, errors.ErrNoTextDetected) || ctx.Err() != nil {
			return Measurement{Ratio: color.MaxContrast}
		}
		m = Measurement{Ratio: color.MaxContrast}
	}

	if err := a.cache.Store(ctx, key, encodeEntry(m)); err != nil {
		a.logger.Debug("contrast: cache store failed", "error", err)
	}
	return m
}

// encodeEntry keeps the measured colors as "FG/BG" next to the ratio.
func encodeEntry(m Measurement) db.Entry {
	e := db.Entry{Value: m.Ratio}
	if m.HasColors {
		e.Detail = m.Foreground.Hex() + "/" + m.Background.Hex()
	}
	return e
}

func decodeEntry(e db.Entry) Measurement {
	m := Measurement{Ratio: e.Value}
	fgHex, bgHex, ok := strings.Cut(e.Detail, "/")
	if !ok {
		return m
	}
	fg, err1 := color.ParseHex(fgHex)
	bg, err2 := color.ParseHex(bgHex)
	if err1 == nil && err2 == nil {
		m.Foreground, m.Background, m.HasColors = fg, bg, true
	}
	return m
}
