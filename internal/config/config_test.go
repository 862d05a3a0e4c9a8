package config

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sessionguard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestParseEnvKeepsUnsetFields(t *testing.T) {
	cfg := Default()
	require.NoError(t, ParseEnv(&cfg))
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "sessionguard.audit", cfg.Kafka.Topic)
}

func TestParseEnvError(t *testing.T) {
	t.Setenv("SESSIONGUARD_MAX_ATTEMPTS", "not-an-int")

	cfg := Default()
	err := ParseEnv(&cfg)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "parse env:"), "got %v", err)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeFile(t, `
database_url: postgres://u:p@db:5432/auth
http:
  addr: ":9000"
tokens:
  access_ttl: 10m
  access_secret: from-file
limits:
  max_attempts: 3
kafka:
  brokers: [k1:9092, k2:9092]
`)
	t.Setenv(FileEnv, path)
	t.Setenv("SESSIONGUARD_ACCESS_SECRET", "from-env")
	t.Setenv("SESSIONGUARD_HTTP_ADDR", ":9100")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://u:p@db:5432/auth", cfg.DatabaseURL)
	assert.Equal(t, ":9100", cfg.HTTP.Addr)
	assert.Equal(t, 10*time.Minute, cfg.Tokens.AccessTTL)
	assert.Equal(t, "from-env", cfg.Tokens.AccessSecret)
	assert.Equal(t, 3, cfg.Limits.MaxAttempts)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	// untouched by either layer
	assert.Equal(t, 30*24*time.Hour, cfg.Tokens.RefreshTTL)
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	cfg := Default()
	err := LoadFile(writeFile(t, "http:\n  port: 80\n"), &cfg)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv(FileEnv, filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := Load()
	require.Error(t, err)
}

func TestEngineConfigValidates(t *testing.T) {
	cfg := Default()
	cfg.Tokens.AccessSecret = strings.Repeat("a", 32)
	cfg.Tokens.RefreshSecret = strings.Repeat("r", 32)
	cfg.Tokens.ResetSecret = strings.Repeat("s", 32)
	cfg.Tokens.RecoverSecret = strings.Repeat("c", 32)
	cfg.Tokens.VerifySecret = strings.Repeat("v", 32)
	cfg.Links = LinksConfig{
		AccountVerify:   "https://app.example.com/verify",
		PasswordRecover: "https://app.example.com/recover",
		PasswordReset:   "https://app.example.com/reset",
	}
	cfg.Cookies.SameSite = "Lax"
	cfg.Limits.MaxAttempts = 7

	out, err := cfg.Engine()
	require.NoError(t, err)
	require.NoError(t, out.Validate())

	assert.Equal(t, http.SameSiteLaxMode, out.Cookies.SameSite)
	assert.Equal(t, 7, out.Attempts.MaxAttempts)
	assert.Equal(t, []byte(strings.Repeat("v", 32)), out.Tokens.Verify.Secret)
	assert.False(t, out.Transport.Enabled)
	assert.Nil(t, out.Transport.Key)
}

func TestEngineConfigRejectsSameSite(t *testing.T) {
	cfg := Default()
	cfg.Cookies.SameSite = "sometimes"
	_, err := cfg.Engine()
	require.Error(t, err)
}

func TestLevel(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "debug"
	assert.Equal(t, "DEBUG", cfg.Level().String())

	cfg.LogLevel = "chatty"
	assert.Equal(t, "INFO", cfg.Level().String())
}
