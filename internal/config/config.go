// Package config loads Clepho's configuration: a TOML file for
// structured settings plus a handful of secrets read from the
// environment (optionally via a .env file), matching the split the
// original photo-sorter config package made between an embedded pricing
// table and env-driven fields.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

//go:embed prices.yaml
var pricesYAML []byte

// Config mirrors the configuration surface one-for-one: Database,
// Scanner, Thumbnails, Trash, Schedule, LLM, plus an opaque Preview
// passthrough the core never inspects.
type Config struct {
	Database   DatabaseConfig   `toml:"database"`
	Scanner    ScannerConfig    `toml:"scanner"`
	Thumbnails ThumbnailsConfig `toml:"thumbnails"`
	Trash      TrashConfig      `toml:"trash"`
	Schedule   ScheduleConfig   `toml:"schedule"`
	LLM        LLMConfig        `toml:"llm"`
	Preview    map[string]any   `toml:"preview"` // delegated to UI, not core

	Prices PricesConfig `toml:"-"`
}

type DatabaseConfig struct {
	Backend       string `toml:"backend"` // "sqlite" | "postgresql"
	SQLitePath    string `toml:"sqlite_path"`
	PostgreSQLURL string `toml:"postgresql_url"`
	PoolSize      int    `toml:"pool_size"`
}

type ScannerConfig struct {
	ImageExtensions     []string `toml:"image_extensions"`
	SimilarityThreshold int      `toml:"similarity_threshold"` // Hamming radius, effective 0..64
	// FallbackToModTime lets the scanner record a photo's filesystem
	// mtime as its taken-at time when EXIF has none. Off by default:
	// mtime reflects when a file was copied or touched, not when the
	// photo was taken, and can silently mislead date-based sorting.
	FallbackToModTime bool `toml:"fallback_to_mod_time"`
}

type ThumbnailsConfig struct {
	Path string `toml:"path"`
	Size int    `toml:"size"`
}

type TrashConfig struct {
	Path         string `toml:"path"`
	MaxAgeDays   int    `toml:"max_age_days"`
	MaxSizeBytes int64  `toml:"max_size_bytes"`
}

type ScheduleConfig struct {
	CheckOverdueOnStartup bool `toml:"check_overdue_on_startup"`
	DefaultHoursStart     *int `toml:"default_hours_start"`
	DefaultHoursEnd       *int `toml:"default_hours_end"`
}

type LLMConfig struct {
	Provider   string `toml:"provider"` // "openai" | "gemini"
	Endpoint   string `toml:"endpoint"`
	Model      string `toml:"model"`
	EmbedModel string `toml:"embed_model"`
	// APIKey is intentionally not decoded from TOML; see Load.
	APIKey  string   `toml:"-"`
	Prompts []string `toml:"prompts"`
}

type PricesConfig struct {
	Models map[string]ModelPricing `yaml:"models"`
}

type ModelPricing struct {
	Standard RequestPricing `yaml:"standard"`
	Batch    RequestPricing `yaml:"batch"`
}

type RequestPricing struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

func defaults() Config {
	return Config{
		Database: DatabaseConfig{
			Backend:  "sqlite",
			PoolSize: 10,
		},
		Scanner: ScannerConfig{
			ImageExtensions:     []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp", ".heic"},
			SimilarityThreshold: 10,
		},
		Thumbnails: ThumbnailsConfig{Size: 256},
		Trash: TrashConfig{
			MaxAgeDays:   30,
			MaxSizeBytes: 5 << 30,
		},
		Schedule: ScheduleConfig{CheckOverdueOnStartup: true},
		LLM: LLMConfig{
			Provider:   "openai",
			Model:      "gpt-4o-mini",
			EmbedModel: "text-embedding-3-small",
		},
	}
}

// Path resolves the config file location: CLEPHO_CONFIG env var if set,
// else ~/.config/clepho/config.toml.
func Path() (string, error) {
	if p := os.Getenv("CLEPHO_CONFIG"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "clepho", "config.toml"), nil
}

// Load reads the TOML config (if present — a missing file yields
// defaults, matching the embedded backend's zero-config default) and
// layers env-sourced secrets on top. Secrets are always env-only: they
// never round-trip through the checked-in TOML file.
func Load() (*Config, error) {
	cfg := defaults()

	path, err := Path()
	if err != nil {
		return nil, err
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.LLM.APIKey = firstNonEmpty(os.Getenv("OPENAI_TOKEN"), os.Getenv("GEMINI_API_KEY"))
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.PostgreSQLURL = url
	}
	if sqlitePath := os.Getenv("CLEPHO_SQLITE_PATH"); sqlitePath != "" {
		cfg.Database.SQLitePath = sqlitePath
	}
	if cfg.Database.SQLitePath == "" && cfg.Database.Backend == "sqlite" {
		if p, err := defaultSQLitePath(); err == nil {
			cfg.Database.SQLitePath = p
		}
	}

	var prices PricesConfig
	if err := yaml.Unmarshal(pricesYAML, &prices); err != nil {
		return nil, fmt.Errorf("unmarshal embedded prices.yaml: %w", err)
	}
	cfg.Prices = prices

	if cfg.Scanner.SimilarityThreshold >= 64 {
		fmt.Fprintf(os.Stderr, "clepho: warning: scanner.similarity_threshold=%d is at or above the 64-bit hash width; every pair of photos will compare as similar\n", cfg.Scanner.SimilarityThreshold)
	}

	return &cfg, nil
}

func defaultSQLitePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", "clepho", "clepho.db"), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// GetModelPricing returns pricing for a specific model, with a zero
// fallback so unrecognised models are safe to bill (zero cost) rather
// than erroring the accounting path.
func (c *Config) GetModelPricing(modelName string) ModelPricing {
	if pricing, ok := c.Prices.Models[modelName]; ok {
		return pricing
	}
	return ModelPricing{}
}
