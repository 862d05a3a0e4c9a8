package sessionguard

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/sessionguard/jwt"
)

// Config is the engine configuration. Obtain one from DefaultConfig, fill
// in secrets and link bases, then pass it to Builder.WithConfig.
type Config struct {
	Tokens              TokensConfig
	Transport           TransportConfig
	Attempts            AttemptsConfig
	SignIn              SignInConfig
	AccountVerification AccountVerificationConfig
	Links               LinksConfig
	Cookies             CookiesConfig
	Password            PasswordConfig
	Audit               AuditConfig
	Metrics             MetricsConfig
	Mail                MailConfig
}

/*
====================================
TOKENS
====================================
*/

// TokenConfig is the signing secret and lifetime of one token kind.
type TokenConfig struct {
	Secret []byte
	TTL    time.Duration
}

type TokensConfig struct {
	Issuer       string
	Leeway       time.Duration
	MaxFutureIAT time.Duration
	Access       TokenConfig
	Refresh      TokenConfig
	Reset        TokenConfig
	Recover      TokenConfig
	Verify       TokenConfig
}

func (c TokensConfig) byKind() map[jwt.Kind]TokenConfig {
	return map[jwt.Kind]TokenConfig{
		jwt.KindAccess:  c.Access,
		jwt.KindRefresh: c.Refresh,
		jwt.KindReset:   c.Reset,
		jwt.KindRecover: c.Recover,
		jwt.KindVerify:  c.Verify,
	}
}

// TransportConfig toggles the encryption layer applied to every token handed
// to a client. Key must be 32 bytes when enabled.
type TransportConfig struct {
	Enabled bool
	Key     []byte
}

/*
====================================
LIMITS
====================================
*/

// AttemptsConfig bounds self-service sends per request and sets how long a
// confirmed token may be presented again without counting as replay.
type AttemptsConfig struct {
	MaxAttempts  int
	Cooldown     time.Duration
	ReplayWindow time.Duration
}

// SignInConfig drives the Redis sign-in throttle. It only applies when the
// builder is given a Redis client.
type SignInConfig struct {
	EnableIPThrottle bool
	MaxAttempts      int
	Cooldown         time.Duration
}

type AccountVerificationConfig struct {
	SendOnSignUp bool
}

/*
====================================
DELIVERY
====================================
*/

// LinksConfig holds the base URLs confirmation links are built from. The
// token is appended as the "token" query parameter.
type LinksConfig struct {
	AccountVerify   string
	PasswordRecover string
	PasswordReset   string
}

type CookiesConfig struct {
	AccessName  string
	RefreshName string
	Path        string
	Domain      string
	Secure      bool
	SameSite    http.SameSite
}

type PasswordConfig struct {
	Memory           uint32 // in KB
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MinPasswordBytes int
	MaxPasswordBytes int
}

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

type MailConfig struct {
	BufferSize int
	Workers    int
	Timeout    time.Duration
}

// DefaultConfig returns a configuration with every limit set and no
// secrets. Validate fails until secrets are supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Tokens: TokensConfig{
			Issuer:       "sessionguard",
			Leeway:       30 * time.Second,
			MaxFutureIAT: time.Minute,
			Access:       TokenConfig{TTL: 15 * time.Minute},
			Refresh:      TokenConfig{TTL: 30 * 24 * time.Hour},
			Reset:        TokenConfig{TTL: time.Hour},
			Recover:      TokenConfig{TTL: time.Hour},
			Verify:       TokenConfig{TTL: 24 * time.Hour},
		},
		Attempts: AttemptsConfig{
			MaxAttempts:  5,
			Cooldown:     24 * time.Hour,
			ReplayWindow: 24 * time.Hour,
		},
		SignIn: SignInConfig{
			EnableIPThrottle: true,
			MaxAttempts:      10,
			Cooldown:         15 * time.Minute,
		},
		AccountVerification: AccountVerificationConfig{
			SendOnSignUp: true,
		},
		Cookies: CookiesConfig{
			AccessName:  "access_token",
			RefreshName: "refresh_token",
			Path:        "/",
			Secure:      true,
			SameSite:    http.SameSiteStrictMode,
		},
		Password: PasswordConfig{
			Memory:           64 * 1024,
			Time:             3,
			Parallelism:      2,
			SaltLength:       16,
			KeyLength:        32,
			MinPasswordBytes: 10,
			MaxPasswordBytes: 1024,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Mail: MailConfig{
			BufferSize: 64,
			Workers:    2,
			Timeout:    30 * time.Second,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Tokens.Access.Secret = cloneBytes(cfg.Tokens.Access.Secret)
	out.Tokens.Refresh.Secret = cloneBytes(cfg.Tokens.Refresh.Secret)
	out.Tokens.Reset.Secret = cloneBytes(cfg.Tokens.Reset.Secret)
	out.Tokens.Recover.Secret = cloneBytes(cfg.Tokens.Recover.Secret)
	out.Tokens.Verify.Secret = cloneBytes(cfg.Tokens.Verify.Secret)
	out.Transport.Key = cloneBytes(cfg.Transport.Key)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate checks the configuration for missing secrets and unusable
// limits.
func (c *Config) Validate() error {
	// Tokens
	if strings.TrimSpace(c.Tokens.Issuer) == "" {
		return errors.New("Tokens Issuer must be set")
	}
	if c.Tokens.Leeway < 0 || c.Tokens.Leeway > 2*time.Minute {
		return errors.New("Tokens Leeway must be between 0 and 2m")
	}
	if c.Tokens.MaxFutureIAT < 0 {
		return errors.New("Tokens MaxFutureIAT must be >= 0")
	}
	seen := make(map[string]jwt.Kind, len(jwt.Kinds))
	byKind := c.Tokens.byKind()
	for _, kind := range jwt.Kinds {
		tc := byKind[kind]
		if len(tc.Secret) < 32 {
			return fmt.Errorf("Tokens %s Secret must be at least 32 bytes", kind)
		}
		if tc.TTL <= 0 {
			return fmt.Errorf("Tokens %s TTL must be > 0", kind)
		}
		if other, dup := seen[string(tc.Secret)]; dup {
			return fmt.Errorf("Tokens %s and %s must not share a secret", other, kind)
		}
		seen[string(tc.Secret)] = kind
	}
	if c.Tokens.Access.TTL >= c.Tokens.Refresh.TTL {
		return errors.New("Tokens Access TTL must be shorter than Refresh TTL")
	}

	// Transport
	if c.Transport.Enabled && len(c.Transport.Key) != 32 {
		return errors.New("Transport Key must be 32 bytes when enabled")
	}

	// Attempts
	if c.Attempts.MaxAttempts <= 0 {
		return errors.New("Attempts MaxAttempts must be > 0")
	}
	if c.Attempts.Cooldown <= 0 {
		return errors.New("Attempts Cooldown must be > 0")
	}
	if c.Attempts.ReplayWindow <= 0 {
		return errors.New("Attempts ReplayWindow must be > 0")
	}

	// Sign-in throttle
	if c.SignIn.MaxAttempts <= 0 {
		return errors.New("SignIn MaxAttempts must be > 0")
	}
	if c.SignIn.Cooldown <= 0 {
		return errors.New("SignIn Cooldown must be > 0")
	}

	// Links
	for name, raw := range map[string]string{
		"AccountVerify":   c.Links.AccountVerify,
		"PasswordRecover": c.Links.PasswordRecover,
		"PasswordReset":   c.Links.PasswordReset,
	} {
		if raw == "" {
			return fmt.Errorf("Links %s must be set", name)
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("Links %s must be an absolute URL", name)
		}
		if u.RawQuery != "" {
			return fmt.Errorf("Links %s must not carry a query", name)
		}
	}

	// Cookies
	if c.Cookies.AccessName == "" || c.Cookies.RefreshName == "" {
		return errors.New("Cookies AccessName and RefreshName must be set")
	}
	if c.Cookies.AccessName == c.Cookies.RefreshName {
		return errors.New("Cookies AccessName and RefreshName must differ")
	}
	if c.Cookies.SameSite == http.SameSiteNoneMode && !c.Cookies.Secure {
		return errors.New("Cookies SameSite=None requires Secure")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinPasswordBytes < 1 || c.Password.MaxPasswordBytes < c.Password.MinPasswordBytes {
		return errors.New("Password length bounds are invalid")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	// Mail
	if c.Mail.BufferSize <= 0 {
		return errors.New("Mail BufferSize must be > 0")
	}
	if c.Mail.Workers <= 0 {
		return errors.New("Mail Workers must be > 0")
	}
	if c.Mail.Timeout <= 0 {
		return errors.New("Mail Timeout must be > 0")
	}

	return nil
}
