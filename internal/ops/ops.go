// Package ops implements the notebook operations shared by the CLI, the MCP
// server, and the web viewer.
package ops

import (
	"log/slog"
	"time"

	"github.com/hpungsan/nbaudit/internal/audit"
	"github.com/hpungsan/nbaudit/internal/config"
	"github.com/hpungsan/nbaudit/internal/contrast"
	"github.com/hpungsan/nbaudit/internal/db"
	"github.com/hpungsan/nbaudit/internal/errors"
	"github.com/hpungsan/nbaudit/internal/issue"
	"github.com/hpungsan/nbaudit/internal/raster"
	"github.com/hpungsan/nbaudit/internal/transparency"
)

// Engine holds the analyzers built from one configuration. Safe for
// concurrent use; one Engine serves any number of documents.
type Engine struct {
	cfg          *config.Config
	cache        *db.Cache
	contrast     *contrast.Analyzer
	transparency *transparency.Analyzer
	scanner      *audit.Scanner
	logger       *slog.Logger
}

// EngineOption customizes NewEngine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	strategy contrast.Strategy
}

// WithStrategy overrides the contrast strategy selected by the config.
func WithStrategy(s contrast.Strategy) EngineOption {
	return func(o *engineOptions) { o.strategy = s }
}

// NewEngine validates cfg and wires the cache, the rasterizer, and both
// image analyzers.
func NewEngine(cfg *config.Config, logger *slog.Logger, opts ...EngineOption) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}

	var o engineOptions
	for _, opt := range opts {
		opt(&o)
	}

	strategy := o.strategy
	if strategy == nil {
		s, err := contrast.NewStrategy(cfg)
		if err != nil {
			return nil, err
		}
		strategy = s
	}

	cache, err := db.Open(cfg)
	if err != nil {
		return nil, err
	}

	r := raster.New(raster.Options{
		Origin:   cfg.FilesOrigin,
		Timeout:  time.Duration(cfg.ImageTimeoutSeconds) * time.Second,
		MaxBytes:  cfg.MaxImageBytes,
		MaxPixels: cfg.MaxImagePixels,
	})
	ca := contrast.NewAnalyzer(r, strategy, cache, logger)
	ta := transparency.NewAnalyzer(r,
		transparency.WithCache(cache),
		transparency.WithLogger(logger),
		transparency.WithThreshold(cfg.TransparencyThreshold),
	)

	return &Engine{
		cfg:          cfg,
		cache:        cache,
		contrast:     ca,
		transparency: ta,
		scanner:      audit.NewScanner(ca, ta, audit.ChecksFromConfig(cfg), cfg.MaxConcurrentImages),
		logger:       logger,
	}, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// Cache returns the measurement cache.
func (e *Engine) Cache() *db.Cache {
	return e.cache
}

// Strategy returns the name of the active contrast strategy.
func (e *Engine) Strategy() string {
	if e.contrast.Strategy().Kind() == db.KindPalette {
		return config.StrategyPalette
	}
	return config.StrategyOCR
}

// NewController creates a disabled controller for doc with a fresh registry.
func (e *Engine) NewController(doc audit.Document) *audit.Controller {
	return audit.NewController(doc, issue.NewRegistry(), e.scanner, e.logger)
}

// Close releases the cache.
func (e *Engine) Close() error {
	return e.cache.Close()
}
