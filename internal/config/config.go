package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Contrast strategies. Exactly one is active per scan.
const (
	StrategyOCR     = "ocr"
	StrategyPalette = "palette"
)

// Check names accepted by DisabledChecks.
const (
	CheckAlt          = "alt"
	CheckContrast     = "contrast"
	CheckTransparency = "transparency"
	CheckHeadings     = "headings"
)

// KnownChecks lists every check that can be disabled.
var KnownChecks = []string{CheckAlt, CheckContrast, CheckTransparency, CheckHeadings}

// configFileNames are tried in order inside a config directory.
var configFileNames = []string{"config.json", "config.yaml", "config.yml"}

// Config holds application configuration.
type Config struct {
	// ContrastStrategy selects the text-contrast analyzer: "ocr" (default) or "palette".
	ContrastStrategy string `json:"contrast_strategy,omitempty" yaml:"contrast_strategy,omitempty"`

	// OCRLanguage is the single recognition language. Tesseract codes ("eng")
	// and BCP 47 tags ("en") are both accepted.
	OCRLanguage string `json:"ocr_language,omitempty" yaml:"ocr_language,omitempty"`

	// OCRCommand is the tesseract executable name or path.
	OCRCommand string `json:"ocr_command,omitempty" yaml:"ocr_command,omitempty"`

	// OCRMinConfidence drops recognized words below this confidence (0-100).
	OCRMinConfidence float64 `json:"ocr_min_confidence,omitempty" yaml:"ocr_min_confidence,omitempty"`

	// BucketSize is the color quantization step used when tallying word-box pixels.
	BucketSize int `json:"bucket_size,omitempty" yaml:"bucket_size,omitempty"`

	// ContrastThreshold flags OCR contrast below this raw WCAG ratio.
	ContrastThreshold float64 `json:"contrast_threshold,omitempty" yaml:"contrast_threshold,omitempty"`

	// PaletteThreshold flags palette contrast below this value on the 0-20 scale.
	PaletteThreshold float64 `json:"palette_threshold,omitempty" yaml:"palette_threshold,omitempty"`

	// TransparencyThreshold flags opacity scores (0-10) below this value.
	TransparencyThreshold float64 `json:"transparency_threshold,omitempty" yaml:"transparency_threshold,omitempty"`

	// CellBackground is the reference background for the palette strategy.
	CellBackground string `json:"cell_background,omitempty" yaml:"cell_background,omitempty"`

	// FilesOrigin is the notebook server origin (e.g. "http://localhost:8888").
	// Relative image paths resolve to <origin>/files/<path>. Empty means
	// relative paths are read from the local filesystem.
	FilesOrigin string `json:"files_origin,omitempty" yaml:"files_origin,omitempty"`

	// ImageTimeoutSeconds bounds a single image fetch. 0 means no timeout.
	ImageTimeoutSeconds int `json:"image_timeout_seconds,omitempty" yaml:"image_timeout_seconds,omitempty"`

	// OCRTimeoutSeconds bounds a single OCR run. 0 means no timeout.
	OCRTimeoutSeconds int `json:"ocr_timeout_seconds,omitempty" yaml:"ocr_timeout_seconds,omitempty"`

	// MaxImageBytes caps the bytes read for one image.
	MaxImageBytes int64 `json:"max_image_bytes,omitempty" yaml:"max_image_bytes,omitempty"`

	// MaxImagePixels caps width*height of one decoded image.
	MaxImagePixels int64 `json:"max_image_pixels,omitempty" yaml:"max_image_pixels,omitempty"`

	// MaxConcurrentImages limits in-flight image analyses per pass. 0 means unlimited.
	MaxConcurrentImages int `json:"max_concurrent_images,omitempty" yaml:"max_concurrent_images,omitempty"`

	// CachePath is the sqlite file for image measurements. Empty keeps the
	// cache in memory for the lifetime of the process.
	CachePath string `json:"cache_path,omitempty" yaml:"cache_path,omitempty"`

	// DisabledChecks lists checks to skip: alt, contrast, transparency, headings.
	DisabledChecks []string `json:"disabled_checks,omitempty" yaml:"disabled_checks,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty" yaml:"disabled_tools,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty" yaml:"log_level,omitempty"`

	// WatchIntervalMillis is the notebook polling interval for watch mode.
	WatchIntervalMillis int `json:"watch_interval_ms,omitempty" yaml:"watch_interval_ms,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ContrastStrategy:      StrategyOCR,
		OCRLanguage:           "eng",
		OCRCommand:            "tesseract",
		OCRMinConfidence:      85,
		BucketSize:            30,
		ContrastThreshold:     4.5,
		PaletteThreshold:      5,
		TransparencyThreshold: 9,
		CellBackground:        "#FFFFFF",
		MaxImageBytes:         20 << 20,
		MaxImagePixels:        40_000_000,
		LogLevel:              "warn",
		WatchIntervalMillis:   1000,
	}
}

// Load loads configuration from baseDir/config.{json,yaml}.
// Returns default config if no file exists.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.nbaudit.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadDirRaw(baseDir)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// LoadWithRepo loads configuration from the global directory, the nearest
// .nbaudit directory above startDir, and the environment (including a .env
// file in startDir). Later layers win for scalars; arrays are merged.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadDirRaw(globalDir)
	if err != nil {
		return nil, err
	}

	repo := &Config{}
	if repoDir := FindRepoConfig(startDir); repoDir != "" {
		repo, err = loadDirRaw(repoDir)
		if err != nil {
			return nil, err
		}
	}

	env, err := LoadEnv(startDir)
	if err != nil {
		return nil, err
	}

	return Merge(Merge(Merge(DefaultConfig(), global), repo), env), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .nbaudit
// directory holding a config file. Returns the directory, or "" if not found.
func FindRepoConfig(startDir string) string {
	if startDir == "" {
		return ""
	}
	dir := startDir
	for {
		candidate := filepath.Join(dir, ".nbaudit")
		for _, name := range configFileNames {
			if _, err := os.Stat(filepath.Join(candidate, name)); err == nil {
				return candidate
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root, not found
			return ""
		}
		dir = parent
	}
}

// loadDirRaw loads the first config file found in dir.
// Returns zero-valued config if none exists (not defaults).
func loadDirRaw(dir string) (*Config, error) {
	if dir == "" {
		return &Config{}, nil
	}
	for _, name := range configFileNames {
		cfg, err := loadFileRaw(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		if cfg != nil {
			return cfg, nil
		}
	}
	return &Config{}, nil
}

// loadFileRaw loads one config file. Returns nil, nil if it doesn't exist.
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	cfg := &Config{}
	switch filepath.Ext(configPath) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", configPath, err)
	}
	return cfg, nil
}

// envKeys maps environment variables onto config setters.
var envKeys = map[string]func(*Config, string) error{
	"NBAUDIT_CONTRAST_STRATEGY": func(c *Config, v string) error { c.ContrastStrategy = v; return nil },
	"NBAUDIT_OCR_LANGUAGE":      func(c *Config, v string) error { c.OCRLanguage = v; return nil },
	"NBAUDIT_OCR_COMMAND":       func(c *Config, v string) error { c.OCRCommand = v; return nil },
	"NBAUDIT_FILES_ORIGIN":      func(c *Config, v string) error { c.FilesOrigin = v; return nil },
	"NBAUDIT_CACHE_PATH":        func(c *Config, v string) error { c.CachePath = v; return nil },
	"NBAUDIT_LOG_LEVEL":         func(c *Config, v string) error { c.LogLevel = v; return nil },
	"NBAUDIT_CELL_BACKGROUND":   func(c *Config, v string) error { c.CellBackground = v; return nil },
	"NBAUDIT_MAX_CONCURRENT_IMAGES": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		c.MaxConcurrentImages = n
		return err
	},
	"NBAUDIT_DISABLED_CHECKS": func(c *Config, v string) error {
		c.DisabledChecks = strings.Split(v, ",")
		return nil
	},
}

// LoadEnv builds a config overlay from NBAUDIT_* variables. A .env file in
// dir is read first; real environment variables take precedence over it.
func LoadEnv(dir string) (*Config, error) {
	values := map[string]string{}
	if dir != "" {
		envFile := filepath.Join(dir, ".env")
		if _, err := os.Stat(envFile); err == nil {
			fileValues, err := godotenv.Read(envFile)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", envFile, err)
			}
			values = fileValues
		}
	}
	for key := range envKeys {
		if v, ok := os.LookupEnv(key); ok {
			values[key] = v
		}
	}

	cfg := &Config{}
	for key, set := range envKeys {
		v, ok := values[key]
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		if err := set(cfg, strings.TrimSpace(v)); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
	}
	return cfg, nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.ContrastStrategy = pick(overlay.ContrastStrategy, base.ContrastStrategy)
	result.OCRLanguage = pick(overlay.OCRLanguage, base.OCRLanguage)
	result.OCRCommand = pick(overlay.OCRCommand, base.OCRCommand)
	result.OCRMinConfidence = pick(overlay.OCRMinConfidence, base.OCRMinConfidence)
	result.BucketSize = pick(overlay.BucketSize, base.BucketSize)
	result.ContrastThreshold = pick(overlay.ContrastThreshold, base.ContrastThreshold)
	result.PaletteThreshold = pick(overlay.PaletteThreshold, base.PaletteThreshold)
	result.TransparencyThreshold = pick(overlay.TransparencyThreshold, base.TransparencyThreshold)
	result.CellBackground = pick(overlay.CellBackground, base.CellBackground)
	result.FilesOrigin = pick(overlay.FilesOrigin, base.FilesOrigin)
	result.ImageTimeoutSeconds = pick(overlay.ImageTimeoutSeconds, base.ImageTimeoutSeconds)
	result.OCRTimeoutSeconds = pick(overlay.OCRTimeoutSeconds, base.OCRTimeoutSeconds)
	result.MaxImageBytes = pick(overlay.MaxImageBytes, base.MaxImageBytes)
	result.MaxImagePixels = pick(overlay.MaxImagePixels, base.MaxImagePixels)
	result.MaxConcurrentImages = pick(overlay.MaxConcurrentImages, base.MaxConcurrentImages)
	result.CachePath = pick(overlay.CachePath, base.CachePath)
	result.LogLevel = pick(overlay.LogLevel, base.LogLevel)
	result.WatchIntervalMillis = pick(overlay.WatchIntervalMillis, base.WatchIntervalMillis)

	// Arrays: merge and deduplicate
	result.DisabledChecks = mergeStringSlice(base.DisabledChecks, overlay.DisabledChecks)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

// pick returns overlay if non-zero, else base.
func pick[T comparable](overlay, base T) T {
	var zero T
	if overlay != zero {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}

// Validate checks enumerated fields and numeric ranges.
func (c *Config) Validate() error {
	switch c.ContrastStrategy {
	case StrategyOCR, StrategyPalette:
	default:
		return fmt.Errorf("contrast_strategy must be %q or %q, got %q", StrategyOCR, StrategyPalette, c.ContrastStrategy)
	}
	if c.OCRMinConfidence < 0 || c.OCRMinConfidence > 100 {
		return fmt.Errorf("ocr_min_confidence must be within 0-100, got %v", c.OCRMinConfidence)
	}
	if c.BucketSize < 1 || c.BucketSize > 255 {
		return fmt.Errorf("bucket_size must be within 1-255, got %d", c.BucketSize)
	}
	if _, err := c.TesseractLanguage(); err != nil {
		return err
	}
	if unknown := c.UnknownChecks(); len(unknown) > 0 {
		return fmt.Errorf("unknown disabled_checks: %v", unknown)
	}
	return nil
}

// TesseractLanguage returns the ISO 639-3 code tesseract expects.
// Three-letter codes pass through; BCP 47 tags are mapped via their base language.
func (c *Config) TesseractLanguage() (string, error) {
	lang := strings.TrimSpace(c.OCRLanguage)
	if lang == "" {
		return "eng", nil
	}
	if len(lang) == 3 && strings.ToLower(lang) == lang {
		return lang, nil
	}
	base, err := language.ParseBase(strings.SplitN(lang, "-", 2)[0])
	if err != nil {
		return "", fmt.Errorf("invalid ocr_language %q: %w", c.OCRLanguage, err)
	}
	return base.ISO3(), nil
}

// CheckEnabled reports whether the named check should run.
func (c *Config) CheckEnabled(name string) bool {
	for _, d := range c.DisabledChecks {
		if d == name {
			return false
		}
	}
	return true
}

// UnknownChecks returns entries of DisabledChecks that name no known check.
func (c *Config) UnknownChecks() []string {
	var unknown []string
	for _, d := range c.DisabledChecks {
		known := false
		for _, k := range KnownChecks {
			if d == k {
				known = true
				break
			}
		}
		if !known {
			unknown = append(unknown, d)
		}
	}
	return unknown
}
