package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"photo-catalog/internal/logging"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// Paths holds filesystem locations.
type Paths struct {
	Database string `yaml:"database"`
	LogDir   string `yaml:"log_dir"`
}

// ModelConfig describes one AI model consumed through a provider.
type ModelConfig struct {
	Name      string  `yaml:"name"`
	Dimension int     `yaml:"dimension"`
	Threshold float64 `yaml:"threshold"`
	Prompt    string  `yaml:"prompt"`
	MaxTokens int     `yaml:"max_tokens"`
}

// Embedding holds model provider settings.
type Embedding struct {
	Device         string `yaml:"device"` // auto, cuda, cpu
	BrisqueEnabled bool   `yaml:"brisque_enabled"`
	Models         struct {
		Dinov2    ModelConfig `yaml:"dinov2"`
		Clip      ModelConfig `yaml:"clip"`
		Aesthetic ModelConfig `yaml:"aesthetic"`
		Bioclip   ModelConfig `yaml:"bioclip"`
		LLMVision ModelConfig `yaml:"llm_vision"`
	} `yaml:"models"`
}

// RawProcessing holds RAW thumbnail extraction settings.
type RawProcessing struct {
	CacheThumbnails   bool   `yaml:"cache_thumbnails"`
	CacheDir          string `yaml:"cache_dir"`
	ProcessingTimeout int    `yaml:"processing_timeout"` // seconds
	FallbackSize      int    `yaml:"fallback_size"`
	ThumbnailStrategy string `yaml:"thumbnail_strategy"` // embedded, preview, full
	FallbackThumbnail bool   `yaml:"fallback_thumbnail"`
}

// ImageProcessing holds decode/resize settings.
type ImageProcessing struct {
	ConvertRaw       bool          `yaml:"convert_raw"`
	JPEGQuality      int           `yaml:"jpeg_quality"`
	MaxDimension     int           `yaml:"max_dimension"`
	MaxWorkers       int           `yaml:"max_workers"`
	ResizeImages     bool          `yaml:"resize_images"`
	SupportedFormats []string      `yaml:"supported_formats"`
	RawProcessing    RawProcessing `yaml:"raw_processing"`
}

// ProfileOverride overrides fields of a built-in optimization profile.
// Nil fields keep the hardcoded default.
type ProfileOverride struct {
	TargetSize *int    `yaml:"target_size"`
	Quality    *int    `yaml:"quality"`
	Method     *string `yaml:"method"`
	Resampling *string `yaml:"resampling"`
	Upscale    *bool   `yaml:"upscale"`
}

// ImageOptimization holds optimization profile overrides.
type ImageOptimization struct {
	Enabled  bool                       `yaml:"enabled"`
	Profiles map[string]ProfileOverride `yaml:"profiles"`
}

// Search holds retrieval settings.
type Search struct {
	FuzzyEnabled      bool    `yaml:"fuzzy_enabled"`
	MaxResults        int     `yaml:"max_results"`
	SemanticThreshold float64 `yaml:"semantic_threshold"`
}

// Metadata holds extraction toggles.
type Metadata struct {
	ExtractExif bool `yaml:"extract_exif"`
	GPSEnabled  bool `yaml:"gps_enabled"`
}

// Similarity holds visual similarity settings.
type Similarity struct {
	MaxResults int `yaml:"max_results"`
}

// ExternalEditor describes one external editor entry.
type ExternalEditor struct {
	Name        string   `yaml:"name"`
	Path        string   `yaml:"path"`
	CommandArgs []string `yaml:"command_args"`
	Enabled     bool     `yaml:"enabled"`
}

// Logging holds log settings.
type Logging struct {
	ShowDebug bool `yaml:"show_debug"`
}

// Config is the typed configuration value consumed by the core.
type Config struct {
	Paths             Paths             `yaml:"paths"`
	Embedding         Embedding         `yaml:"embedding"`
	ImageProcessing   ImageProcessing   `yaml:"image_processing"`
	ImageOptimization ImageOptimization `yaml:"image_optimization"`
	Search            Search            `yaml:"search"`
	Metadata          Metadata          `yaml:"metadata"`
	Similarity        Similarity        `yaml:"similarity"`
	ExternalEditors   []ExternalEditor  `yaml:"external_editors"`
	Logging           Logging           `yaml:"logging"`
}

// Default returns the hardcoded configuration defaults.
func Default() *Config {
	cfg := &Config{}

	cfg.Paths.Database = "photo-catalog.db"
	cfg.Paths.LogDir = "logs"

	cfg.Embedding.Device = "auto"
	cfg.Embedding.BrisqueEnabled = true
	cfg.Embedding.Models.Clip = ModelConfig{Name: "clip-vit-base-patch32", Dimension: 512, Threshold: 0.2}
	cfg.Embedding.Models.Dinov2 = ModelConfig{Name: "dinov2-base", Dimension: 768, Threshold: 0.5}
	cfg.Embedding.Models.Aesthetic = ModelConfig{Name: "aesthetic-predictor", Dimension: 0, Threshold: 5.0}
	cfg.Embedding.Models.Bioclip = ModelConfig{Name: "bioclip", Dimension: 512, Threshold: 0.35}
	cfg.Embedding.Models.LLMVision = ModelConfig{Name: "llava", MaxTokens: 512}

	cfg.ImageProcessing.ConvertRaw = true
	cfg.ImageProcessing.JPEGQuality = 90
	cfg.ImageProcessing.MaxDimension = 2048
	cfg.ImageProcessing.MaxWorkers = 4
	cfg.ImageProcessing.ResizeImages = true
	cfg.ImageProcessing.SupportedFormats = []string{
		"jpg", "jpeg", "tif", "tiff", "png", "bmp", "webp", "heic", "dng",
		"cr2", "cr3", "crw", "nef", "nrw", "arw", "srf", "sr2", "orf",
		"raf", "rw2", "raw", "pef", "ptx", "rwl", "3fr", "iiq", "x3f",
	}
	cfg.ImageProcessing.RawProcessing = RawProcessing{
		CacheThumbnails:   true,
		CacheDir:          "thumbnail-cache",
		ProcessingTimeout: 30,
		FallbackSize:      1024,
		ThumbnailStrategy: "preview",
		FallbackThumbnail: true,
	}

	cfg.ImageOptimization.Enabled = true
	cfg.ImageOptimization.Profiles = map[string]ProfileOverride{}

	cfg.Search.FuzzyEnabled = true
	cfg.Search.MaxResults = 100
	cfg.Search.SemanticThreshold = 0.2

	cfg.Metadata.ExtractExif = true
	cfg.Metadata.GPSEnabled = true

	cfg.Similarity.MaxResults = 50

	return cfg
}

// Load reads the configuration file at path, overlays it on the defaults
// and validates the result. A missing file is not an error; the defaults
// are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			logging.Warn("Config file %s not found, using defaults", path)
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			logging.Info("Loaded configuration from %s", path)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logging.SetDebug(cfg.Logging.ShowDebug)
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Embedding.Device {
	case "auto", "cuda", "cpu":
	default:
		return fmt.Errorf("invalid embedding.device %q (want auto, cuda or cpu)", c.Embedding.Device)
	}

	switch c.ImageProcessing.RawProcessing.ThumbnailStrategy {
	case "embedded", "preview", "full":
	default:
		return fmt.Errorf("invalid raw_processing.thumbnail_strategy %q (want embedded, preview or full)",
			c.ImageProcessing.RawProcessing.ThumbnailStrategy)
	}

	if c.ImageProcessing.MaxWorkers < 1 {
		logging.Warn("image_processing.max_workers %d invalid, using 4", c.ImageProcessing.MaxWorkers)
		c.ImageProcessing.MaxWorkers = 4
	}
	if c.ImageProcessing.JPEGQuality < 1 || c.ImageProcessing.JPEGQuality > 100 {
		logging.Warn("image_processing.jpeg_quality %d invalid, using 90", c.ImageProcessing.JPEGQuality)
		c.ImageProcessing.JPEGQuality = 90
	}
	if c.Search.MaxResults < 1 {
		c.Search.MaxResults = 100
	}
	if len(c.ExternalEditors) > 3 {
		logging.Warn("external_editors has %d entries, only the first 3 are used", len(c.ExternalEditors))
		c.ExternalEditors = c.ExternalEditors[:3]
	}

	return nil
}

// RawTimeout returns the RAW processing timeout as a duration.
func (c *Config) RawTimeout() time.Duration {
	t := c.ImageProcessing.RawProcessing.ProcessingTimeout
	if t <= 0 {
		t = 30
	}
	return time.Duration(t) * time.Second
}

// EnsureDirs creates the directories the catalog needs at runtime and
// verifies the database directory is writable.
func (c *Config) EnsureDirs() error {
	dbDir := filepath.Dir(c.Paths.Database)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	testFile := filepath.Join(dbDir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return fmt.Errorf("database directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove test file %s: %v", testFile, err)
	}

	for _, dir := range []string{c.Paths.LogDir, c.ImageProcessing.RawProcessing.CacheDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logging.Warn("failed to create directory %s: %v", dir, err)
		}
	}
	return nil
}

// LogSummary logs the effective configuration in the startup banner style.
func (c *Config) LogSummary() {
	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  database:        %s", c.Paths.Database)
	logging.Info("  log dir:         %s", c.Paths.LogDir)
	logging.Info("  device:          %s", c.Embedding.Device)
	logging.Info("  max workers:     %d", c.ImageProcessing.MaxWorkers)
	logging.Info("  raw strategy:    %s", c.ImageProcessing.RawProcessing.ThumbnailStrategy)
	logging.Info("  fuzzy search:    %v", c.Search.FuzzyEnabled)
	logging.Info("  max results:     %d", c.Search.MaxResults)
	logging.Info("  version:         %s (%s, built %s)", Version, Commit, BuildTime)
}
