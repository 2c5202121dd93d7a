package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `{}`))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Address != ":8000" {
		t.Errorf("server.address = %q", cfg.Server.Address)
	}
	if cfg.Retrieval.ChunkSize != 2000 || cfg.Retrieval.ChunkOverlap != 200 || cfg.Retrieval.TopK != 8 {
		t.Errorf("retrieval defaults = %+v", cfg.Retrieval)
	}
	if cfg.LLM.CompletionModel == "" || cfg.LLM.MaxTokens != 4096 {
		t.Errorf("llm defaults = %+v", cfg.LLM)
	}
	if cfg.General.DefaultTimeout != 60*time.Second {
		t.Errorf("default_timeout = %v", cfg.General.DefaultTimeout)
	}
	if len(cfg.Companies) == 0 {
		t.Error("expected default company list")
	}
	if _, ok := cfg.Company("nvda"); !ok {
		t.Error("Company lookup should be case-insensitive")
	}
}

func TestLoadConfigFileOverrides(t *testing.T) {
	path := writeConfig(t, `{
		"server": {"address": ":9000", "jwt_secret": "s3cret"},
		"retrieval": {"top_k": 4},
		"companies": [{"ticker": "NVDA", "name": "NVIDIA Corporation", "cik": "0001045810"}]
	}`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Address != ":9000" || cfg.Server.JWTSecret != "s3cret" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Retrieval.TopK != 4 {
		t.Errorf("top_k = %d", cfg.Retrieval.TopK)
	}
	if len(cfg.Companies) != 1 || cfg.Companies[0].Ticker != "NVDA" {
		t.Errorf("companies = %+v", cfg.Companies)
	}
	// Unspecified sections keep defaults.
	if cfg.Retrieval.ChunkSize != 2000 {
		t.Errorf("chunk_size = %d", cfg.Retrieval.ChunkSize)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	cases := map[string]string{
		"negative max_tokens": `{"llm": {"max_tokens": -1}}`,
		"bad overlap":         `{"retrieval": {"chunk_overlap": 5000}}`,
		"zero top_k":          `{"retrieval": {"top_k": 0}}`,
	}
	for name, body := range cases {
		if _, err := LoadConfig(writeConfig(t, body)); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestLoadConfigMissingFileNotAnError(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	if _, err := LoadConfig(""); err != nil {
		t.Fatalf("defaults-only load failed: %v", err)
	}
}

func TestLoadConfigExplicitMissingFileErrors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for explicitly named missing file")
	}
}

func TestAPIKeyFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg, err := LoadConfig(writeConfig(t, `{}`))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.LLM.APIKey != "sk-test" {
		t.Errorf("api_key = %q", cfg.LLM.APIKey)
	}
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", User: "u", Password: "p", DBName: "audit"}
	dsn, err := p.DSN()
	if err != nil {
		t.Fatalf("DSN: %v", err)
	}
	want := "postgres://u:p@db:5432/audit?sslmode=disable"
	if dsn != want {
		t.Errorf("dsn = %q, want %q", dsn, want)
	}

	p = PostgresConfig{URL: "postgres://elsewhere/x"}
	if dsn, _ := p.DSN(); dsn != "postgres://elsewhere/x" {
		t.Errorf("url passthrough = %q", dsn)
	}

	if _, err := (PostgresConfig{}).DSN(); err == nil {
		t.Error("expected error for unconfigured postgres")
	}
}

func TestRedisAddr(t *testing.T) {
	r := RedisConfig{Host: "cache"}
	if !r.Enabled() || r.Addr() != "cache:6379" {
		t.Errorf("redis = enabled=%v addr=%q", r.Enabled(), r.Addr())
	}
	if (RedisConfig{}).Enabled() {
		t.Error("empty host should disable redis")
	}
}
