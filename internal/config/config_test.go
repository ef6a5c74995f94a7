package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kiranshivaraju/fineprint/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setEnv is a helper that sets environment variables for a test and restores them after.
func setEnv(t *testing.T, env map[string]string) {
	t.Helper()
	for k, v := range env {
		t.Setenv(k, v)
	}
}

// validEnv returns the minimum set of valid environment variables.
func validEnv() map[string]string {
	return map[string]string{
		"FINEPRINT_ENV_FILE": "does-not-exist.env",
		"REDIS_URL":          "redis://localhost:6379",
		"AI_PROVIDER":        "ollama",
		"OLLAMA_BASE_URL":    "http://localhost:11434",
	}
}

func TestLoad_ValidConfig(t *testing.T) {
	setEnv(t, validEnv())

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "development", cfg.Server.Env)
	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, "redis://localhost:6379", cfg.Redis.URL)
	assert.Equal(t, "ollama", cfg.AI.Provider)
}

func TestLoad_CustomPort(t *testing.T) {
	setEnv(t, validEnv())
	t.Setenv("FINEPRINT_PORT", "9090")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoad_MissingRedisURL(t *testing.T) {
	setEnv(t, validEnv())
	t.Setenv("REDIS_URL", "")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_URL")
}

func TestLoad_SQLiteBackendNeedsNoRedis(t *testing.T) {
	setEnv(t, validEnv())
	t.Setenv("REDIS_URL", "")
	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/fp.db")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "/tmp/fp.db", cfg.Store.SQLitePath)
}

func TestLoad_InvalidBackend(t *testing.T) {
	setEnv(t, validEnv())
	t.Setenv("STORE_BACKEND", "etcd")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORE_BACKEND")
}

func TestLoad_DatabaseURLOptional(t *testing.T) {
	setEnv(t, validEnv())
	t.Setenv("DATABASE_URL", "")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.Database.URL)
}

func TestLoad_InvalidDatabaseURL(t *testing.T) {
	setEnv(t, validEnv())
	t.Setenv("DATABASE_URL", "mysql://localhost/db")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoad_InvalidAIProvider(t *testing.T) {
	setEnv(t, validEnv())
	t.Setenv("AI_PROVIDER", "invalid-provider")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AI_PROVIDER")
}

func TestLoad_AllValidAIProviders(t *testing.T) {
	providers := []string{"ollama", "anthropic", "mock"}

	for _, provider := range providers {
		t.Run(provider, func(t *testing.T) {
			env := validEnv()
			env["AI_PROVIDER"] = provider
			if provider == "anthropic" {
				env["ANTHROPIC_API_KEY"] = "sk-ant-test-key"
			}
			setEnv(t, env)

			cfg, err := config.Load()
			require.NoError(t, err)
			assert.Equal(t, provider, cfg.AI.Provider)
		})
	}
}

func TestLoad_AnthropicProviderMissingAPIKey(t *testing.T) {
	setEnv(t, validEnv())
	t.Setenv("AI_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ANTHROPIC_API_KEY")
}

func TestLoad_OllamaBaseURLMustStartWithHTTP(t *testing.T) {
	setEnv(t, validEnv())
	t.Setenv("OLLAMA_BASE_URL", "ftp://localhost:11434")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OLLAMA_BASE_URL")
}

func TestLoad_Defaults(t *testing.T) {
	setEnv(t, validEnv())

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 60*time.Second, cfg.AI.InferenceTimeout)
	assert.Equal(t, 3, cfg.Bulk.MaxConcurrent)
	assert.Equal(t, 100, cfg.Bulk.QueueCapacity)
	assert.Equal(t, 24*time.Hour, cfg.Bulk.AnalysisCacheTTL)
	assert.Equal(t, "0 0 1 * *", cfg.Costs.AlertResetSchedule)
	assert.Equal(t, 90*24*time.Hour, cfg.Costs.Retention)
	assert.Equal(t, 15*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, 60, cfg.Auth.RateLimitPerMin)
	assert.True(t, cfg.Auth.RateLimitEnabled)
	assert.Empty(t, cfg.Auth.APIKeyHashes)
}

func TestLoad_BulkOverrides(t *testing.T) {
	setEnv(t, validEnv())
	t.Setenv("BULK_MAX_CONCURRENT", "5")
	t.Setenv("BULK_QUEUE_CAPACITY", "10")
	t.Setenv("BULK_JOB_RETENTION", "1h")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Bulk.MaxConcurrent)
	assert.Equal(t, 10, cfg.Bulk.QueueCapacity)
	assert.Equal(t, time.Hour, cfg.Bulk.JobRetention)
}

func TestLoad_ZeroConcurrencyRejected(t *testing.T) {
	setEnv(t, validEnv())
	t.Setenv("BULK_MAX_CONCURRENT", "0")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BULK_MAX_CONCURRENT")
}

func TestLoad_InvalidCronSchedule(t *testing.T) {
	setEnv(t, validEnv())
	t.Setenv("COST_ALERT_RESET_SCHEDULE", "every month")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COST_ALERT_RESET_SCHEDULE")
}

func TestLoad_APIKeyHashesList(t *testing.T) {
	setEnv(t, validEnv())
	t.Setenv("API_KEY_HASHES", " $2a$10$abc , ,$2a$10$def")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"$2a$10$abc", "$2a$10$def"}, cfg.Auth.APIKeyHashes)
}

func TestLoad_AdminKeyHashes(t *testing.T) {
	setEnv(t, validEnv())
	t.Setenv("ADMIN_API_KEY_HASHES", "$2a$10$admin")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"$2a$10$admin"}, cfg.Auth.AdminKeyHashes)
}

func TestLoad_PlaintextKeyRejected(t *testing.T) {
	setEnv(t, validEnv())
	t.Setenv("API_KEY_HASHES", "fp_plaintextkey")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API_KEY_HASHES")
}

func TestLoad_CustomInferenceTimeout(t *testing.T) {
	setEnv(t, validEnv())
	t.Setenv("AI_INFERENCE_TIMEOUT_SECS", "120")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 120*time.Second, cfg.AI.InferenceTimeout)
}

func TestLoad_InvalidNumbersFallBackToDefaults(t *testing.T) {
	setEnv(t, validEnv())
	t.Setenv("FINEPRINT_PORT", "not-a-number")
	t.Setenv("FETCH_RATE_PER_SEC", "fast")
	t.Setenv("RATE_LIMIT_ENABLED", "maybe")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 2.0, cfg.Fetch.RatePerSec)
	assert.True(t, cfg.Auth.RateLimitEnabled)
}

func TestLoad_DotEnvFile(t *testing.T) {
	setEnv(t, validEnv())
	// godotenv only fills variables that are unset, so clear it while keeping
	// t.Setenv's restore.
	t.Setenv("OLLAMA_MODEL", "")
	require.NoError(t, os.Unsetenv("OLLAMA_MODEL"))

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("OLLAMA_MODEL=mistral\n"), 0o600))
	t.Setenv("FINEPRINT_ENV_FILE", path)

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "mistral", cfg.AI.Ollama.Model)
}

func TestLoad_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	setEnv(t, validEnv())
	t.Setenv("OLLAMA_MODEL", "llama3.1")

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("OLLAMA_MODEL=mistral\n"), 0o600))
	t.Setenv("FINEPRINT_ENV_FILE", path)

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "llama3.1", cfg.AI.Ollama.Model)
}
