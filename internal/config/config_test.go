package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CLEPHO_CONFIG", filepath.Join(dir, "does-not-exist.toml"))
	t.Setenv("DATABASE_URL", "")
	t.Setenv("OPENAI_TOKEN", "")
	t.Setenv("GEMINI_API_KEY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Database.Backend != "sqlite" {
		t.Errorf("expected default backend sqlite, got %q", cfg.Database.Backend)
	}
	if cfg.Scanner.SimilarityThreshold != 10 {
		t.Errorf("expected default similarity threshold 10, got %d", cfg.Scanner.SimilarityThreshold)
	}
	if cfg.Scanner.FallbackToModTime {
		t.Error("expected fallback_to_mod_time to default off")
	}
	if cfg.Thumbnails.Size != 256 {
		t.Errorf("expected default thumbnail size 256, got %d", cfg.Thumbnails.Size)
	}
	if cfg.Database.SQLitePath == "" {
		t.Error("expected a default sqlite path to be resolved")
	}
}

func TestLoad_TOMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
[database]
backend = "postgresql"
pool_size = 25

[scanner]
similarity_threshold = 20
fallback_to_mod_time = true
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CLEPHO_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Backend != "postgresql" {
		t.Errorf("expected backend postgresql, got %q", cfg.Database.Backend)
	}
	if cfg.Database.PoolSize != 25 {
		t.Errorf("expected pool size 25, got %d", cfg.Database.PoolSize)
	}
	if cfg.Scanner.SimilarityThreshold != 20 {
		t.Errorf("expected similarity threshold 20, got %d", cfg.Scanner.SimilarityThreshold)
	}
	if !cfg.Scanner.FallbackToModTime {
		t.Error("expected fallback_to_mod_time to be overridden to true")
	}
}

func TestLoad_SecretsAreEnvOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(`[llm]
provider = "openai"
`), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CLEPHO_CONFIG", path)
	t.Setenv("OPENAI_TOKEN", "sk-test-token")
	t.Setenv("GEMINI_API_KEY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.APIKey != "sk-test-token" {
		t.Errorf("expected APIKey from env, got %q", cfg.LLM.APIKey)
	}
	if cfg.LLM.Provider != "openai" {
		t.Errorf("expected provider from TOML, got %q", cfg.LLM.Provider)
	}
}

func TestGetModelPricing_UnknownModelIsZero(t *testing.T) {
	cfg := &Config{Prices: PricesConfig{Models: map[string]ModelPricing{}}}
	pricing := cfg.GetModelPricing("gpt-nonexistent")
	if pricing != (ModelPricing{}) {
		t.Errorf("expected zero pricing for unknown model, got %+v", pricing)
	}
}
