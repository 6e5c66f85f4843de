// Package transparency scores images by the share of pixels that are not
// fully opaque.
package transparency

import (
	"context"
	"log/slog"

	"github.com/hpungsan/nbaudit/internal/db"
	"github.com/hpungsan/nbaudit/internal/raster"
)

// MaxScore is the score of a fully opaque image and the neutral default.
const MaxScore = 10.0

// DefaultThreshold flags images scoring below it.
const DefaultThreshold = 9.0

// Loader produces a pixel sample for an image reference.
type Loader interface {
	Rasterize(ctx context.Context, src, docPath string) (*raster.Sample, error)
}

// Result is the outcome of analyzing one image.
type Result struct {
	Score float64
	// Available is false when the image could not be loaded and Score is the
	// neutral default.
	Available bool
}

// Percent returns the share of non-opaque pixels implied by the score.
func (r Result) Percent() float64 {
	return (MaxScore - r.Score) * 10
}

// Score returns 10 - percent/10 where percent is the share of pixels with
// alpha below 255. An empty sample scores MaxScore.
func Score(s *raster.Sample) float64 {
	if s == nil || s.PixelCount() == 0 {
		return MaxScore
	}
	transparent := 0
	for i := 3; i < len(s.Pix); i += 4 {
		if s.Pix[i] < 255 {
			transparent++
		}
	}
	percent := float64(transparent) / float64(s.PixelCount()) * 100
	return MaxScore - percent/10
}

// Analyzer loads images and scores their transparency.
type Analyzer struct {
	loader    Loader
	cache     *db.Cache
	logger    *slog.Logger
	threshold float64
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithCache reuses scores across passes for identical image bytes.
func WithCache(c *db.Cache) Option {
	return func(a *Analyzer) { a.cache = c }
}

// WithLogger sets the logger used for degraded analyses.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// WithThreshold sets the flagging threshold.
func WithThreshold(t float64) Option {
	return func(a *Analyzer) { a.threshold = t }
}

// NewAnalyzer creates an Analyzer reading images through loader.
func NewAnalyzer(loader Loader, opts ...Option) *Analyzer {
	a := &Analyzer{loader: loader, logger: slog.Default(), threshold: DefaultThreshold}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze scores the image at src. Load failures yield the neutral score.
func (a *Analyzer) Analyze(ctx context.Context, src, docPath string) Result {
	sample, err := a.loader.Rasterize(ctx, src, docPath)
	if err != nil {
		a.logger.Debug("transparency: image unavailable", "src", src, "error", err)
		return Result{Score: MaxScore}
	}
	return Result{Score: a.score(ctx, sample), Available: true}
}

// Flagged reports whether r falls below the analyzer's threshold.
func (a *Analyzer) Flagged(r Result) bool {
	return r.Score < a.threshold
}

func (a *Analyzer) score(ctx context.Context, sample *raster.Sample) float64 {
	key := db.Key{Digest: sample.Digest, Kind: db.KindTransparency}
	if e, ok := a.cache.Lookup(ctx, key); ok {
		return e.Value
	}
	v := Score(sample)
	if err := a.cache.Store(ctx, key, db.Entry{Value: v}); err != nil {
		a.logger.Debug("transparency: cache store failed", "error", err)
	}
	return v
}
