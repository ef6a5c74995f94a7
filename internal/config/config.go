package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds all configuration for the Fine Print server.
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Database DatabaseConfig
	Redis    RedisConfig
	AI       AIConfig
	Bulk     BulkConfig
	Costs    CostsConfig
	Fetch    FetchConfig
	Auth     AuthConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

// StoreConfig selects the key-value backend.
type StoreConfig struct {
	Backend    string
	SQLitePath string
}

// DatabaseConfig is optional; when URL is empty cost events are kept in the key-value store.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type AIConfig struct {
	Provider         string
	InferenceTimeout time.Duration
	Ollama           OllamaConfig
	Anthropic        AnthropicConfig
	Pricing          PricingConfig
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type AnthropicConfig struct {
	APIKey    string
	Model     string
	MaxTokens int64
}

// PricingConfig converts token usage to dollars.
type PricingConfig struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

type BulkConfig struct {
	MaxConcurrent    int
	QueueCapacity    int
	JobRetention     time.Duration
	AnalysisCacheTTL time.Duration
}

type CostsConfig struct {
	PrimaryModel       string
	Retention          time.Duration
	AlertResetSchedule string
	EventLogMaxLen     int
}

type FetchConfig struct {
	Timeout      time.Duration
	RatePerSec   float64
	UserAgent    string
	MaxBodyBytes int64
}

// AuthConfig lists bcrypt hashes of accepted API keys. Admin keys may also reset
// budget alerts. With no keys configured authentication is disabled.
type AuthConfig struct {
	APIKeyHashes     []string
	AdminKeyHashes   []string
	RateLimitPerMin  int
	RateLimitEnabled bool
}

var validProviders = map[string]bool{
	"ollama":    true,
	"anthropic": true,
	"mock":      true,
}

var validBackends = map[string]bool{
	"redis":  true,
	"sqlite": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// A .env file (FINEPRINT_ENV_FILE, default ".env") is read first when present; values
// already set in the environment win.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	envFile := envString("FINEPRINT_ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("FINEPRINT_PORT", 8080),
			Env:  envString("FINEPRINT_ENV", "development"),
		},
		Store: StoreConfig{
			Backend:    envString("STORE_BACKEND", "redis"),
			SQLitePath: envString("SQLITE_PATH", "data/fineprint.db"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		AI: AIConfig{
			Provider:         envString("AI_PROVIDER", "ollama"),
			InferenceTimeout: envDurationSecs("AI_INFERENCE_TIMEOUT_SECS", 60*time.Second),
			Ollama: OllamaConfig{
				BaseURL: envString("OLLAMA_BASE_URL", "http://localhost:11434"),
				Model:   envString("OLLAMA_MODEL", "llama3"),
			},
			Anthropic: AnthropicConfig{
				APIKey:    os.Getenv("ANTHROPIC_API_KEY"),
				Model:     envString("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
				MaxTokens: int64(envInt("ANTHROPIC_MAX_TOKENS", 4096)),
			},
			Pricing: PricingConfig{
				InputPerMTok:  envFloat("AI_PRICE_INPUT_PER_MTOK", 0.80),
				OutputPerMTok: envFloat("AI_PRICE_OUTPUT_PER_MTOK", 4.00),
			},
		},
		Bulk: BulkConfig{
			MaxConcurrent:    envInt("BULK_MAX_CONCURRENT", 3),
			QueueCapacity:    envInt("BULK_QUEUE_CAPACITY", 100),
			JobRetention:     envDuration("BULK_JOB_RETENTION", 7*24*time.Hour),
			AnalysisCacheTTL: envDuration("ANALYSIS_CACHE_TTL", 24*time.Hour),
		},
		Costs: CostsConfig{
			PrimaryModel:       envString("COST_PRIMARY_MODEL", "claude-3-5-haiku-latest"),
			Retention:          envDuration("COST_RETENTION", 90*24*time.Hour),
			AlertResetSchedule: envString("COST_ALERT_RESET_SCHEDULE", "0 0 1 * *"),
			EventLogMaxLen:     envInt("COST_EVENT_LOG_MAX_LEN", 1000),
		},
		Fetch: FetchConfig{
			Timeout:      envDuration("FETCH_TIMEOUT", 15*time.Second),
			RatePerSec:   envFloat("FETCH_RATE_PER_SEC", 2),
			UserAgent:    envString("FETCH_USER_AGENT", "FinePrintBot/1.0"),
			MaxBodyBytes: int64(envInt("FETCH_MAX_BODY_BYTES", 5<<20)),
		},
		Auth: AuthConfig{
			APIKeyHashes:     envList("API_KEY_HASHES"),
			AdminKeyHashes:   envList("ADMIN_API_KEY_HASHES"),
			RateLimitPerMin:  envInt("RATE_LIMIT_PER_MIN", 60),
			RateLimitEnabled: envBool("RATE_LIMIT_ENABLED", true),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if !validBackends[c.Store.Backend] {
		return fmt.Errorf("STORE_BACKEND must be one of redis, sqlite; got %q", c.Store.Backend)
	}
	if c.Store.Backend == "redis" && c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required when STORE_BACKEND is redis")
	}
	if c.Store.Backend == "sqlite" && c.Store.SQLitePath == "" {
		return fmt.Errorf("SQLITE_PATH is required when STORE_BACKEND is sqlite")
	}

	if c.Database.URL != "" &&
		!strings.HasPrefix(c.Database.URL, "postgres://") && !strings.HasPrefix(c.Database.URL, "postgresql://") {
		return fmt.Errorf("DATABASE_URL must start with postgres:// or postgresql://")
	}

	if !validProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be one of ollama, anthropic, mock; got %q", c.AI.Provider)
	}
	if c.AI.Provider == "anthropic" && c.AI.Anthropic.APIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is anthropic")
	}
	if c.AI.Provider == "ollama" &&
		!strings.HasPrefix(c.AI.Ollama.BaseURL, "http://") && !strings.HasPrefix(c.AI.Ollama.BaseURL, "https://") {
		return fmt.Errorf("OLLAMA_BASE_URL must start with http:// or https://, got %q", c.AI.Ollama.BaseURL)
	}
	if c.AI.Pricing.InputPerMTok < 0 || c.AI.Pricing.OutputPerMTok < 0 {
		return fmt.Errorf("AI_PRICE_INPUT_PER_MTOK and AI_PRICE_OUTPUT_PER_MTOK must not be negative")
	}

	if c.Bulk.MaxConcurrent < 1 {
		return fmt.Errorf("BULK_MAX_CONCURRENT must be at least 1, got %d", c.Bulk.MaxConcurrent)
	}
	if c.Bulk.QueueCapacity < 1 {
		return fmt.Errorf("BULK_QUEUE_CAPACITY must be at least 1, got %d", c.Bulk.QueueCapacity)
	}

	if _, err := cron.ParseStandard(c.Costs.AlertResetSchedule); err != nil {
		return fmt.Errorf("COST_ALERT_RESET_SCHEDULE is not a valid cron expression: %w", err)
	}

	for _, h := range append(append([]string(nil), c.Auth.APIKeyHashes...), c.Auth.AdminKeyHashes...) {
		if !strings.HasPrefix(h, "$2") {
			return fmt.Errorf("API_KEY_HASHES and ADMIN_API_KEY_HASHES must hold bcrypt hashes")
		}
	}

	if c.Fetch.RatePerSec <= 0 {
		return fmt.Errorf("FETCH_RATE_PER_SEC must be positive")
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

// envList splits a comma-separated variable, dropping empty items.
func envList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
