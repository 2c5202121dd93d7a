package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/finlegal/tenkdraft/models"
)

// Config holds all configuration for the assistant.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	EDGAR     EDGARConfig     `mapstructure:"edgar"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Companies []models.Company `mapstructure:"companies"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server and auth settings.
type ServerConfig struct {
	Address     string `mapstructure:"address"`
	JWTSecret   string `mapstructure:"jwt_secret"`
	RefreshCron string `mapstructure:"refresh_cron"`
}

// LLMConfig contains LLM provider settings.
type LLMConfig struct {
	Provider            string        `mapstructure:"provider"`
	APIKey              string        `mapstructure:"api_key"`
	BaseURL             string        `mapstructure:"base_url"`
	CompletionModel     string        `mapstructure:"completion_model"`
	EmbeddingModel      string        `mapstructure:"embedding_model"`
	GenerateTemperature float64       `mapstructure:"generate_temperature"`
	ChatTemperature     float64       `mapstructure:"chat_temperature"`
	MaxTokens           int           `mapstructure:"max_tokens"`
	MaxRetries          int           `mapstructure:"max_retries"`
	Timeout             time.Duration `mapstructure:"timeout"`
}

func (l LLMConfig) Validate() error {
	if strings.TrimSpace(l.CompletionModel) == "" {
		return fmt.Errorf("llm.completion_model is required")
	}
	if l.MaxTokens <= 0 {
		return fmt.Errorf("llm.max_tokens must be > 0")
	}
	return nil
}

// RetrievalConfig controls chunking and search behaviour.
type RetrievalConfig struct {
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`
	TopK         int `mapstructure:"top_k"`
}

func (r RetrievalConfig) Validate() error {
	if r.ChunkSize <= 0 {
		return fmt.Errorf("retrieval.chunk_size must be > 0")
	}
	if r.ChunkOverlap < 0 || r.ChunkOverlap >= r.ChunkSize {
		return fmt.Errorf("retrieval.chunk_overlap must be in [0, chunk_size)")
	}
	if r.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be > 0")
	}
	return nil
}

// EDGARConfig contains SEC EDGAR client settings.
type EDGARConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	SubmissionsURL string        `mapstructure:"submissions_url"`
	UserAgent      string        `mapstructure:"user_agent"`
	RequestDelay   time.Duration `mapstructure:"request_delay"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
}

// StorageConfig contains persistence settings.
type StorageConfig struct {
	DataDir  string         `mapstructure:"data_dir"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig contains Redis connection settings. Optional: when host is
// empty the in-memory session store is used.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.Host) != "" }

func (r RedisConfig) Addr() string {
	port := r.Port
	if port == "" {
		port = "6379"
	}
	return fmt.Sprintf("%s:%s", r.Host, port)
}

// PostgresConfig contains Postgres connection settings for the audit store.
// Optional: when neither URL nor host is set, audit logs go to disk.
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (p PostgresConfig) Enabled() bool {
	return strings.TrimSpace(p.URL) != "" || strings.TrimSpace(p.Host) != ""
}

// DSN builds a connection string from the configured fields.
func (p PostgresConfig) DSN() (string, error) {
	if strings.TrimSpace(p.URL) != "" {
		return p.URL, nil
	}
	if strings.TrimSpace(p.Host) == "" || strings.TrimSpace(p.DBName) == "" {
		return "", fmt.Errorf("postgres not configured (storage.postgres.host/dbname or url)")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

// FilingsDir is where downloaded filings live.
func (s StorageConfig) FilingsDir() string { return filepath.Join(s.DataDir, "filings") }

// AuditDir is where file-based audit logs live.
func (s StorageConfig) AuditDir() string { return filepath.Join(s.DataDir, "audit_logs") }

// Company resolves a ticker (case-insensitive) against the configured list.
func (c *Config) Company(ticker string) (models.Company, bool) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	for _, co := range c.Companies {
		if co.Ticker == ticker {
			return co, true
		}
	}
	return models.Company{}, false
}

// Tickers returns the configured tickers in order.
func (c *Config) Tickers() []string {
	out := make([]string, 0, len(c.Companies))
	for _, co := range c.Companies {
		out = append(out, co.Ticker)
	}
	return out
}

func setDefaults() {
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("general.default_timeout", "60s")
	viper.SetDefault("server.address", ":8000")
	viper.SetDefault("llm.provider", "openai")
	viper.SetDefault("llm.completion_model", "gpt-4-turbo-preview")
	viper.SetDefault("llm.embedding_model", "text-embedding-3-small")
	viper.SetDefault("llm.generate_temperature", 0.3)
	viper.SetDefault("llm.chat_temperature", 0.7)
	viper.SetDefault("llm.max_tokens", 4096)
	viper.SetDefault("llm.max_retries", 3)
	viper.SetDefault("llm.timeout", "90s")
	viper.SetDefault("retrieval.chunk_size", 2000)
	viper.SetDefault("retrieval.chunk_overlap", 200)
	viper.SetDefault("retrieval.top_k", 8)
	viper.SetDefault("edgar.base_url", "https://www.sec.gov")
	viper.SetDefault("edgar.submissions_url", "https://data.sec.gov/submissions")
	viper.SetDefault("edgar.user_agent", "tenkdraft/1.0 (contact@example.com)")
	viper.SetDefault("edgar.request_delay", "500ms")
	viper.SetDefault("edgar.timeout", "30s")
	viper.SetDefault("edgar.max_retries", 2)
	viper.SetDefault("storage.data_dir", "data")
	viper.SetDefault("companies", defaultCompanies())
}

func defaultCompanies() []map[string]string {
	return []map[string]string{
		{"ticker": "NVDA", "name": "NVIDIA Corporation", "cik": "0001045810"},
		{"ticker": "MSFT", "name": "Microsoft Corporation", "cik": "0000789019"},
		{"ticker": "KO", "name": "The Coca-Cola Company", "cik": "0000021344"},
		{"ticker": "NKE", "name": "NIKE, Inc.", "cik": "0000320187"},
		{"ticker": "AMZN", "name": "Amazon.com, Inc.", "cik": "0001018724"},
		{"ticker": "DASH", "name": "DoorDash, Inc.", "cik": "0001792789"},
		{"ticker": "TJX", "name": "The TJX Companies, Inc.", "cik": "0000109198"},
		{"ticker": "DRI", "name": "Darden Restaurants, Inc.", "cik": "0000940944"},
	}
}

// LoadConfig loads config from file, falling back to defaults and TENKDRAFT_*
// environment variables. A missing config file is not an error: defaults plus
// env cover a complete local setup.
func LoadConfig(path string) (*Config, error) {
	viper.Reset()
	viper.SetConfigName("config")
	viper.SetConfigType("json")
	setDefaults()

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		if exe, err := os.Executable(); err == nil {
			viper.AddConfigPath(filepath.Dir(exe))
		}
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("TENKDRAFT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); path != "" || !notFound {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if err := cfg.LLM.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Retrieval.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
