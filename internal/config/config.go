package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	apperrors "github.com/gmsas95/vetscan/internal/errors"
)

// Known strategy names.
var (
	TextLayerReaders = []string{"fitz", "pdf", "pdftotext"}
	Rasterizers      = []string{"pdftoppm", "fitz", "magick"}
	OCREngines       = []string{"gosseract", "cli"}
)

// Config holds all configuration for vetscan
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Breaker    BreakerConfig    `mapstructure:"breaker"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Janitor    JanitorConfig    `mapstructure:"janitor"`
	Log        LogConfig        `mapstructure:"log"`
	Rules      RulesConfig      `mapstructure:"rules"`

	v *viper.Viper
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Address      string   `mapstructure:"address"`
	Port         int      `mapstructure:"port"`
	ReadTimeout  int      `mapstructure:"read_timeout"`
	WriteTimeout int      `mapstructure:"write_timeout"`
	BodyLimitMB  int      `mapstructure:"body_limit_mb"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// ExtractionConfig selects and tunes the text extraction strategies
type ExtractionConfig struct {
	TextLayers        []string `mapstructure:"text_layers"`
	Rasterizers       []string `mapstructure:"rasterizers"`
	DPI               int      `mapstructure:"dpi"`
	FitzScale         float64  `mapstructure:"fitz_scale"`
	OCREngine         string   `mapstructure:"ocr_engine"`
	TesseractPath     string   `mapstructure:"tesseract_path"`
	OCRLanguages      []string `mapstructure:"ocr_languages"`
	OCRTimeoutSeconds int      `mapstructure:"ocr_timeout_seconds"`
	MaxPages          int      `mapstructure:"max_pages"`
	TempDir           string   `mapstructure:"temp_dir"`
}

// BreakerConfig tunes the per-rasterizer circuit breakers
type BreakerConfig struct {
	MaxFailures int `mapstructure:"max_failures"`
	OpenSeconds int `mapstructure:"open_seconds"`
}

// RateLimitConfig limits requests per client IP
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

// StorageConfig holds file and database locations
type StorageConfig struct {
	DataDir    string `mapstructure:"data_dir"`
	UploadDir  string `mapstructure:"upload_dir"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// JanitorConfig controls cleanup of orphaned uploads
type JanitorConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Schedule      string `mapstructure:"schedule"`
	MaxAgeMinutes int    `mapstructure:"max_age_minutes"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RulesConfig points at an optional rule file replacing the embedded tables
type RulesConfig struct {
	Path string `mapstructure:"path"`
}

// OCRTimeout returns the per-page OCR deadline.
func (e ExtractionConfig) OCRTimeout() time.Duration {
	return time.Duration(e.OCRTimeoutSeconds) * time.Second
}

// BodyLimit returns the upload size limit in bytes.
func (s ServerConfig) BodyLimit() int {
	return s.BodyLimitMB * 1024 * 1024
}

// ListenAddr returns host:port.
func (s ServerConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", s.Address, s.Port)
}

// MaxAge returns how old an upload must be before the janitor removes it.
func (j JanitorConfig) MaxAge() time.Duration {
	return time.Duration(j.MaxAgeMinutes) * time.Minute
}

// OpenTimeout returns how long a tripped breaker stays open.
func (b BreakerConfig) OpenTimeout() time.Duration {
	return time.Duration(b.OpenSeconds) * time.Second
}

// Load loads configuration from defaults, an optional YAML file, .env files
// and VETSCAN_* environment variables, in increasing priority.
func Load(configPath, dataDir string) (*Config, error) {
	if err := LoadEnvFiles(); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	applyEnvAliases()

	v := viper.New()

	if dataDir == "" {
		dataDir = getDefaultDataDir()
	}
	dataDir = expandPath(dataDir)
	setDefaults(v, dataDir)

	explicit := configPath != ""
	if !explicit {
		configPath = filepath.Join(dataDir, "vetscan.yaml")
	}
	configPath = expandPath(configPath)

	if _, err := os.Stat(configPath); err != nil {
		if explicit {
			return nil, apperrors.Wrap(err, apperrors.ErrConfigNotFound.Code, apperrors.ErrConfigNotFound.Message)
		}
	} else {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// Environment variables (VETSCAN_SERVER_PORT, VETSCAN_EXTRACTION_OCR_ENGINE, etc.)
	v.SetEnvPrefix("VETSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.v = v

	if err := cfg.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrConfigInvalid.Code, apperrors.ErrConfigInvalid.Message)
	}

	for _, dir := range []string{cfg.Storage.DataDir, cfg.Storage.UploadDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return &cfg, nil
}

// Default returns the built-in configuration rooted at dataDir without
// touching files or the environment.
func Default(dataDir string) *Config {
	v := viper.New()
	setDefaults(v, dataDir)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper, dataDir string) {
	// Server defaults
	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.read_timeout", 120)
	v.SetDefault("server.write_timeout", 120)
	v.SetDefault("server.body_limit_mb", 16)
	v.SetDefault("server.allow_origins", []string{"*"})

	// Extraction defaults
	v.SetDefault("extraction.text_layers", []string{"fitz", "pdf", "pdftotext"})
	v.SetDefault("extraction.rasterizers", []string{"pdftoppm", "fitz", "magick"})
	v.SetDefault("extraction.dpi", 200)
	v.SetDefault("extraction.fitz_scale", 2.0)
	v.SetDefault("extraction.ocr_engine", "gosseract")
	v.SetDefault("extraction.tesseract_path", "tesseract")
	v.SetDefault("extraction.ocr_languages", []string{"eng"})
	v.SetDefault("extraction.ocr_timeout_seconds", 60)
	v.SetDefault("extraction.max_pages", 20)
	v.SetDefault("extraction.temp_dir", "")

	v.SetDefault("breaker.max_failures", 3)
	v.SetDefault("breaker.open_seconds", 60)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.rps", 5.0)
	v.SetDefault("rate_limit.burst", 10)

	v.SetDefault("storage.data_dir", dataDir)
	v.SetDefault("storage.upload_dir", filepath.Join(dataDir, "uploads"))
	v.SetDefault("storage.sqlite_path", filepath.Join(dataDir, "vetscan.db"))

	v.SetDefault("janitor.enabled", true)
	v.SetDefault("janitor.schedule", "@every 10m")
	v.SetDefault("janitor.max_age_minutes", 30)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("rules.path", "")
}

func getDefaultDataDir() string {
	// Try XDG_DATA_HOME first
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "vetscan")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}

	return filepath.Join(home, ".local", "share", "vetscan")
}

func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// Validate rejects unknown strategy names and non-positive limits.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.BodyLimitMB <= 0 {
		return fmt.Errorf("server.body_limit_mb must be positive")
	}

	e := c.Extraction
	if len(e.Rasterizers) == 0 {
		return fmt.Errorf("extraction.rasterizers must not be empty")
	}
	if err := checkNames("extraction.text_layers", e.TextLayers, TextLayerReaders); err != nil {
		return err
	}
	if err := checkNames("extraction.rasterizers", e.Rasterizers, Rasterizers); err != nil {
		return err
	}
	if !slices.Contains(OCREngines, e.OCREngine) {
		return fmt.Errorf("extraction.ocr_engine must be one of %s, got %q", strings.Join(OCREngines, ", "), e.OCREngine)
	}
	if e.DPI <= 0 || e.FitzScale <= 0 {
		return fmt.Errorf("extraction.dpi and extraction.fitz_scale must be positive")
	}
	if e.OCRTimeoutSeconds <= 0 {
		return fmt.Errorf("extraction.ocr_timeout_seconds must be positive")
	}
	if e.MaxPages < 0 {
		return fmt.Errorf("extraction.max_pages must not be negative")
	}

	if c.Breaker.MaxFailures <= 0 || c.Breaker.OpenSeconds <= 0 {
		return fmt.Errorf("breaker.max_failures and breaker.open_seconds must be positive")
	}
	if c.RateLimit.Enabled && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate_limit.rps and rate_limit.burst must be positive")
	}
	if c.Janitor.Enabled && c.Janitor.MaxAgeMinutes <= 0 {
		return fmt.Errorf("janitor.max_age_minutes must be positive")
	}
	if c.Storage.UploadDir == "" {
		return fmt.Errorf("storage.upload_dir is required")
	}
	if c.Storage.DataDir != "" && samePath(c.Storage.UploadDir, c.Storage.DataDir) {
		return fmt.Errorf("storage.upload_dir must differ from storage.data_dir, the janitor sweeps it")
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	return nil
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}

func checkNames(key string, names, known []string) error {
	for _, n := range names {
		if !slices.Contains(known, n) {
			return fmt.Errorf("%s: unknown name %q (known: %s)", key, n, strings.Join(known, ", "))
		}
	}
	return nil
}

// ConfigFile returns the file the configuration was read from, if any.
func (c *Config) ConfigFile() string {
	if c.v == nil {
		return ""
	}
	return c.v.ConfigFileUsed()
}
