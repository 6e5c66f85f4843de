package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestLoad_DefaultWhenMissing(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	def := DefaultConfig()
	if cfg.ContrastStrategy != def.ContrastStrategy {
		t.Errorf("ContrastStrategy = %q, want %q", cfg.ContrastStrategy, def.ContrastStrategy)
	}
	if cfg.BucketSize != 30 || cfg.OCRMinConfidence != 85 || cfg.TransparencyThreshold != 9 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad_OverridesFromJSON(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, filepath.Join(tmpDir, "config.json"), `{"bucket_size": 16, "contrast_strategy": "palette"}`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BucketSize != 16 {
		t.Errorf("BucketSize = %d, want 16", cfg.BucketSize)
	}
	if cfg.ContrastStrategy != StrategyPalette {
		t.Errorf("ContrastStrategy = %q, want %q", cfg.ContrastStrategy, StrategyPalette)
	}
	// Untouched fields keep defaults
	if cfg.OCRLanguage != "eng" {
		t.Errorf("OCRLanguage = %q, want eng", cfg.OCRLanguage)
	}
}

func TestLoad_OverridesFromYAML(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, filepath.Join(tmpDir, "config.yaml"), "files_origin: http://localhost:8888\ndisabled_checks:\n  - contrast\n")

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.FilesOrigin != "http://localhost:8888" {
		t.Errorf("FilesOrigin = %q", cfg.FilesOrigin)
	}
	if cfg.CheckEnabled(CheckContrast) {
		t.Error("contrast should be disabled")
	}
	if !cfg.CheckEnabled(CheckAlt) {
		t.Error("alt should stay enabled")
	}
}

func TestLoad_JSONWinsOverYAML(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, filepath.Join(tmpDir, "config.json"), `{"bucket_size": 10}`)
	writeFile(t, filepath.Join(tmpDir, "config.yaml"), "bucket_size: 20\n")

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BucketSize != 10 {
		t.Errorf("BucketSize = %d, want 10", cfg.BucketSize)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, filepath.Join(tmpDir, "config.json"), `{not json}`)

	if _, err := Load(tmpDir); err == nil {
		t.Fatalf("Load() expected error, got nil")
	}
}

func TestFindRepoConfig(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".nbaudit", "config.json"), `{}`)
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0700); err != nil {
		t.Fatal(err)
	}

	if got := FindRepoConfig(nested); got != filepath.Join(root, ".nbaudit") {
		t.Errorf("FindRepoConfig() = %q, want %q", got, filepath.Join(root, ".nbaudit"))
	}
	if got := FindRepoConfig(""); got != "" {
		t.Errorf("FindRepoConfig(\"\") = %q, want empty", got)
	}
}

func TestLoadWithRepo_Layering(t *testing.T) {
	globalDir := t.TempDir()
	repoRoot := t.TempDir()
	writeFile(t, filepath.Join(globalDir, "config.json"), `{"bucket_size": 12, "ocr_language": "fra", "disabled_tools": ["color_contrast"]}`)
	writeFile(t, filepath.Join(repoRoot, ".nbaudit", "config.yaml"), "bucket_size: 24\ndisabled_tools: [notebook_audit]\n")
	writeFile(t, filepath.Join(repoRoot, ".env"), "NBAUDIT_CACHE_PATH=/tmp/cache.db\n")

	cfg, err := LoadWithRepo(globalDir, repoRoot)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if cfg.BucketSize != 24 {
		t.Errorf("BucketSize = %d, want repo value 24", cfg.BucketSize)
	}
	if cfg.OCRLanguage != "fra" {
		t.Errorf("OCRLanguage = %q, want global value fra", cfg.OCRLanguage)
	}
	if cfg.CachePath != "/tmp/cache.db" {
		t.Errorf("CachePath = %q, want value from .env", cfg.CachePath)
	}
	if len(cfg.DisabledTools) != 2 {
		t.Errorf("DisabledTools = %v, want merged pair", cfg.DisabledTools)
	}
}

func TestLoadEnv_ProcessEnvWinsOverDotEnv(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".env"), "NBAUDIT_LOG_LEVEL=debug\nNBAUDIT_MAX_CONCURRENT_IMAGES=4\n")
	t.Setenv("NBAUDIT_LOG_LEVEL", "error")

	cfg, err := LoadEnv(dir)
	if err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if cfg.LogLevel != "error" {
		t.Errorf("LogLevel = %q, want error", cfg.LogLevel)
	}
	if cfg.MaxConcurrentImages != 4 {
		t.Errorf("MaxConcurrentImages = %d, want 4", cfg.MaxConcurrentImages)
	}
}

func TestLoadEnv_InvalidNumber(t *testing.T) {
	t.Setenv("NBAUDIT_MAX_CONCURRENT_IMAGES", "many")
	if _, err := LoadEnv(""); err == nil {
		t.Fatal("expected error for non-numeric NBAUDIT_MAX_CONCURRENT_IMAGES")
	}
}

func TestMerge_ImageLimits(t *testing.T) {
	got := Merge(DefaultConfig(), &Config{MaxImagePixels: 1000})
	if got.MaxImagePixels != 1000 {
		t.Errorf("MaxImagePixels = %d, want 1000", got.MaxImagePixels)
	}
	if got.MaxImageBytes != 20<<20 {
		t.Errorf("MaxImageBytes = %d, want default", got.MaxImageBytes)
	}
	if DefaultConfig().MaxImagePixels != 40_000_000 {
		t.Errorf("default MaxImagePixels = %d", DefaultConfig().MaxImagePixels)
	}
}

func TestMerge(t *testing.T) {
	base := &Config{BucketSize: 30, DisabledChecks: []string{"alt", " contrast "}}
	overlay := &Config{BucketSize: 0, ContrastStrategy: "palette", DisabledChecks: []string{"contrast", ""}}

	got := Merge(base, overlay)
	if got.BucketSize != 30 {
		t.Errorf("BucketSize = %d, want base 30", got.BucketSize)
	}
	if got.ContrastStrategy != "palette" {
		t.Errorf("ContrastStrategy = %q, want overlay", got.ContrastStrategy)
	}
	if len(got.DisabledChecks) != 2 || got.DisabledChecks[0] != "alt" || got.DisabledChecks[1] != "contrast" {
		t.Errorf("DisabledChecks = %v, want [alt contrast]", got.DisabledChecks)
	}

	if empty := Merge(&Config{}, &Config{}); empty.DisabledChecks != nil {
		t.Errorf("expected nil slice for empty merge, got %v", empty.DisabledChecks)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"palette", func(c *Config) { c.ContrastStrategy = StrategyPalette }, false},
		{"unknown strategy", func(c *Config) { c.ContrastStrategy = "blend" }, true},
		{"confidence too high", func(c *Config) { c.OCRMinConfidence = 101 }, true},
		{"bucket too large", func(c *Config) { c.BucketSize = 300 }, true},
		{"unknown check", func(c *Config) { c.DisabledChecks = []string{"spelling"} }, true},
		{"bad language", func(c *Config) { c.OCRLanguage = "Not A Language" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTesseractLanguage(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "eng"},
		{"eng", "eng"},
		{"deu", "deu"},
		{"en", "eng"},
		{"en-US", "eng"},
		{"fr", "fra"},
	}
	for _, tt := range tests {
		cfg := &Config{OCRLanguage: tt.in}
		got, err := cfg.TesseractLanguage()
		if err != nil {
			t.Fatalf("TesseractLanguage(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("TesseractLanguage(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
