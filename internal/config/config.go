// Package config loads the server process configuration from a .env file,
// an optional YAML file and the environment, in that order of precedence
// (later wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MrEthical07/sessionguard"
)

// FileEnv names the variable holding the optional YAML config path.
const FileEnv = "SESSIONGUARD_CONFIG_FILE"

type HTTPConfig struct {
	Addr              string        `yaml:"addr" env:"SESSIONGUARD_HTTP_ADDR"`
	ReadTimeout       time.Duration `yaml:"read_timeout" env:"SESSIONGUARD_HTTP_READ_TIMEOUT"`
	WriteTimeout      time.Duration `yaml:"write_timeout" env:"SESSIONGUARD_HTTP_WRITE_TIMEOUT"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" env:"SESSIONGUARD_HTTP_READ_HEADER_TIMEOUT"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" env:"SESSIONGUARD_HTTP_SHUTDOWN_TIMEOUT"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

type SMTPConfig struct {
	Host     string `yaml:"host" env:"SMTP_HOST"`
	Port     int    `yaml:"port" env:"SMTP_PORT"`
	Username string `yaml:"username" env:"SMTP_USERNAME"`
	Password string `yaml:"password" env:"SMTP_PASSWORD"`
	From     string `yaml:"from" env:"SMTP_FROM"`
	Product  string `yaml:"product" env:"SMTP_PRODUCT"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" envSeparator:","`
	Topic   string   `yaml:"topic" env:"KAFKA_AUDIT_TOPIC"`
}

type TokensConfig struct {
	Issuer        string        `yaml:"issuer" env:"SESSIONGUARD_ISSUER"`
	AccessSecret  string        `yaml:"access_secret" env:"SESSIONGUARD_ACCESS_SECRET"`
	RefreshSecret string        `yaml:"refresh_secret" env:"SESSIONGUARD_REFRESH_SECRET"`
	ResetSecret   string        `yaml:"reset_secret" env:"SESSIONGUARD_RESET_SECRET"`
	RecoverSecret string        `yaml:"recover_secret" env:"SESSIONGUARD_RECOVER_SECRET"`
	VerifySecret  string        `yaml:"verify_secret" env:"SESSIONGUARD_VERIFY_SECRET"`
	AccessTTL     time.Duration `yaml:"access_ttl" env:"SESSIONGUARD_ACCESS_TTL"`
	RefreshTTL    time.Duration `yaml:"refresh_ttl" env:"SESSIONGUARD_REFRESH_TTL"`
	ResetTTL      time.Duration `yaml:"reset_ttl" env:"SESSIONGUARD_RESET_TTL"`
	RecoverTTL    time.Duration `yaml:"recover_ttl" env:"SESSIONGUARD_RECOVER_TTL"`
	VerifyTTL     time.Duration `yaml:"verify_ttl" env:"SESSIONGUARD_VERIFY_TTL"`
}

type TransportConfig struct {
	Enabled bool   `yaml:"enabled" env:"SESSIONGUARD_TRANSPORT_ENABLED"`
	Key     string `yaml:"key" env:"SESSIONGUARD_TRANSPORT_KEY"`
}

type LinksConfig struct {
	AccountVerify   string `yaml:"account_verify" env:"SESSIONGUARD_LINK_ACCOUNT_VERIFY"`
	PasswordRecover string `yaml:"password_recover" env:"SESSIONGUARD_LINK_PASSWORD_RECOVER"`
	PasswordReset   string `yaml:"password_reset" env:"SESSIONGUARD_LINK_PASSWORD_RESET"`
}

type CookiesConfig struct {
	Domain   string `yaml:"domain" env:"SESSIONGUARD_COOKIE_DOMAIN"`
	Secure   bool   `yaml:"secure" env:"SESSIONGUARD_COOKIE_SECURE"`
	SameSite string `yaml:"same_site" env:"SESSIONGUARD_COOKIE_SAMESITE"`
}

type LimitsConfig struct {
	MaxAttempts       int           `yaml:"max_attempts" env:"SESSIONGUARD_MAX_ATTEMPTS"`
	Cooldown          time.Duration `yaml:"cooldown" env:"SESSIONGUARD_COOLDOWN"`
	ReplayWindow      time.Duration `yaml:"replay_window" env:"SESSIONGUARD_REPLAY_WINDOW"`
	SignInMaxAttempts int           `yaml:"sign_in_max_attempts" env:"SESSIONGUARD_SIGNIN_MAX_ATTEMPTS"`
	SignInCooldown    time.Duration `yaml:"sign_in_cooldown" env:"SESSIONGUARD_SIGNIN_COOLDOWN"`
	VerifyOnSignUp    bool          `yaml:"verify_on_sign_up" env:"SESSIONGUARD_VERIFY_ON_SIGNUP"`
}

type TelemetryConfig struct {
	OTelEndpoint string `yaml:"otel_endpoint" env:"SESSIONGUARD_OTEL_ENDPOINT"`
	ServiceName  string `yaml:"service_name" env:"SESSIONGUARD_SERVICE_NAME"`
	Audit        bool   `yaml:"audit" env:"SESSIONGUARD_AUDIT"`
}

// Config is everything the server binary needs.
type Config struct {
	LogLevel    string          `yaml:"log_level" env:"SESSIONGUARD_LOG_LEVEL"`
	DatabaseURL string          `yaml:"database_url" env:"DATABASE_URL"`
	HTTP        HTTPConfig      `yaml:"http"`
	Redis       RedisConfig     `yaml:"redis"`
	SMTP        SMTPConfig      `yaml:"smtp"`
	Kafka       KafkaConfig     `yaml:"kafka"`
	Tokens      TokensConfig    `yaml:"tokens"`
	Transport   TransportConfig `yaml:"transport"`
	Links       LinksConfig     `yaml:"links"`
	Cookies     CookiesConfig   `yaml:"cookies"`
	Limits      LimitsConfig    `yaml:"limits"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
}

// Default returns the server defaults. Durations and limits mirror
// sessionguard.DefaultConfig.
func Default() Config {
	lib := sessionguard.DefaultConfig()
	return Config{
		LogLevel:    "info",
		DatabaseURL: "sqlite://sessionguard.db",
		HTTP: HTTPConfig{
			Addr:              ":8080",
			ReadTimeout:       5 * time.Second,
			WriteTimeout:      10 * time.Second,
			ReadHeaderTimeout: 2 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		SMTP: SMTPConfig{Port: 587},
		Kafka: KafkaConfig{
			Topic: "sessionguard.audit",
		},
		Tokens: TokensConfig{
			Issuer:     lib.Tokens.Issuer,
			AccessTTL:  lib.Tokens.Access.TTL,
			RefreshTTL: lib.Tokens.Refresh.TTL,
			ResetTTL:   lib.Tokens.Reset.TTL,
			RecoverTTL: lib.Tokens.Recover.TTL,
			VerifyTTL:  lib.Tokens.Verify.TTL,
		},
		Cookies: CookiesConfig{
			Secure:   true,
			SameSite: "strict",
		},
		Limits: LimitsConfig{
			MaxAttempts:       lib.Attempts.MaxAttempts,
			Cooldown:          lib.Attempts.Cooldown,
			ReplayWindow:      lib.Attempts.ReplayWindow,
			SignInMaxAttempts: lib.SignIn.MaxAttempts,
			SignInCooldown:    lib.SignIn.Cooldown,
			VerifyOnSignUp:    lib.AccountVerification.SendOnSignUp,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "sessionguard",
			Audit:       true,
		},
	}
}

// Load reads .env (if present), then the YAML file named by
// SESSIONGUARD_CONFIG_FILE (if set), then environment variables.
func Load() (Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path := strings.TrimSpace(os.Getenv(FileEnv)); path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile decodes a YAML file over cfg. Unknown keys are rejected.
func LoadFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// ParseEnv overlays environment variables on target. Unset variables leave
// fields untouched.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Level parses LogLevel, falling back to info.
func (c Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Engine builds the library configuration. The result still has to pass
// sessionguard.Config.Validate.
func (c Config) Engine() (sessionguard.Config, error) {
	sameSite, err := parseSameSite(c.Cookies.SameSite)
	if err != nil {
		return sessionguard.Config{}, err
	}

	out := sessionguard.DefaultConfig()

	out.Tokens.Issuer = c.Tokens.Issuer
	out.Tokens.Access = sessionguard.TokenConfig{Secret: []byte(c.Tokens.AccessSecret), TTL: c.Tokens.AccessTTL}
	out.Tokens.Refresh = sessionguard.TokenConfig{Secret: []byte(c.Tokens.RefreshSecret), TTL: c.Tokens.RefreshTTL}
	out.Tokens.Reset = sessionguard.TokenConfig{Secret: []byte(c.Tokens.ResetSecret), TTL: c.Tokens.ResetTTL}
	out.Tokens.Recover = sessionguard.TokenConfig{Secret: []byte(c.Tokens.RecoverSecret), TTL: c.Tokens.RecoverTTL}
	out.Tokens.Verify = sessionguard.TokenConfig{Secret: []byte(c.Tokens.VerifySecret), TTL: c.Tokens.VerifyTTL}

	out.Transport.Enabled = c.Transport.Enabled
	if c.Transport.Enabled {
		out.Transport.Key = []byte(c.Transport.Key)
	}

	out.Attempts.MaxAttempts = c.Limits.MaxAttempts
	out.Attempts.Cooldown = c.Limits.Cooldown
	out.Attempts.ReplayWindow = c.Limits.ReplayWindow
	out.SignIn.MaxAttempts = c.Limits.SignInMaxAttempts
	out.SignIn.Cooldown = c.Limits.SignInCooldown
	out.AccountVerification.SendOnSignUp = c.Limits.VerifyOnSignUp

	out.Links.AccountVerify = c.Links.AccountVerify
	out.Links.PasswordRecover = c.Links.PasswordRecover
	out.Links.PasswordReset = c.Links.PasswordReset

	out.Cookies.Domain = c.Cookies.Domain
	out.Cookies.Secure = c.Cookies.Secure
	out.Cookies.SameSite = sameSite

	out.Audit.Enabled = c.Telemetry.Audit

	return out, nil
}

func parseSameSite(raw string) (http.SameSite, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "strict":
		return http.SameSiteStrictMode, nil
	case "lax":
		return http.SameSiteLaxMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	default:
		return 0, fmt.Errorf("unknown cookie SameSite %q", raw)
	}
}
