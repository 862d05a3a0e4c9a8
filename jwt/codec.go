package jwt

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Kind names the purpose a token was minted for. Every kind signs with its
// own secret, so a token of one kind never verifies as another.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
	KindReset   Kind = "reset"
	KindRecover Kind = "recover"
	KindVerify  Kind = "verify"
)

// Kinds lists every kind a Codec must be configured for.
var Kinds = []Kind{KindAccess, KindRefresh, KindReset, KindRecover, KindVerify}

var (
	// ErrTokenExpired reports a token that is correctly signed and matches
	// the expected claims but is past its expiry.
	ErrTokenExpired = errors.New("jwt: token expired")
	// ErrTokenInvalid covers every other verification failure.
	ErrTokenInvalid = errors.New("jwt: token invalid")
)

// KindConfig holds the signing secret and lifetime of one token kind.
type KindConfig struct {
	Secret []byte
	TTL    time.Duration
}

// Config defines the codec configuration.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	Kinds        map[Kind]KindConfig
	Issuer       string
	Leeway       time.Duration
	MaxFutureIAT time.Duration
	// Now overrides the clock used for iat/exp stamping and validation.
	Now func() time.Time
}

// Claims is the payload of every token kind. Email and Platform are empty
// where a kind does not carry them.
type Claims struct {
	Email    string `json:"email,omitempty"`
	Platform string `json:"platform,omitempty"`
	Kind     Kind   `json:"kind"`
	jwt.RegisteredClaims
}

// UserID returns the subject claim.
func (c Claims) UserID() string { return c.Subject }

// IssuedAtUnix returns iat in unix seconds, or 0 when absent.
func (c Claims) IssuedAtUnix() int64 {
	if c.IssuedAt == nil {
		return 0
	}
	return c.IssuedAt.Unix()
}

// ExpiresAtUnix returns exp in unix seconds, or 0 when absent.
func (c Claims) ExpiresAtUnix() int64 {
	if c.ExpiresAt == nil {
		return 0
	}
	return c.ExpiresAt.Unix()
}

// Expected lists claim values a token must carry exactly. Zero fields are
// not compared.
type Expected struct {
	Subject   string
	JTI       string
	Email     string
	IssuedAt  int64
	ExpiresAt int64
}

// Codec signs and verifies tokens. It is stateless apart from its
// configuration and safe for concurrent use.
type Codec struct {
	kinds        map[Kind]KindConfig
	issuer       string
	leeway       time.Duration
	maxFutureIAT time.Duration
	now          func() time.Time
}

// NewCodec validates cfg and returns a Codec.
//
// NewCodec fails when any kind is missing, has an empty secret or a non-positive TTL.
func NewCodec(cfg Config) (*Codec, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}

	kinds := make(map[Kind]KindConfig, len(Kinds))
	for _, k := range Kinds {
		kc, ok := cfg.Kinds[k]
		if !ok {
			return nil, fmt.Errorf("missing %s token configuration", k)
		}
		if len(kc.Secret) == 0 {
			return nil, fmt.Errorf("%s token secret is required", k)
		}
		if kc.TTL <= 0 {
			return nil, fmt.Errorf("%s token TTL must be > 0", k)
		}
		kinds[k] = KindConfig{Secret: append([]byte(nil), kc.Secret...), TTL: kc.TTL}
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Codec{
		kinds:        kinds,
		issuer:       strings.TrimSpace(cfg.Issuer),
		leeway:       cfg.Leeway,
		maxFutureIAT: cfg.MaxFutureIAT,
		now:          now,
	}, nil
}

// TTL returns the configured lifetime of kind.
func (c *Codec) TTL(kind Kind) time.Duration {
	return c.kinds[kind].TTL
}

// Mint signs a token of the given kind. iat and exp are stamped from the
// codec clock and the kind's TTL, overriding whatever claims carried; the
// final claims are returned so callers can persist the exact values.
func (c *Codec) Mint(kind Kind, claims Claims) (string, Claims, error) {
	kc, ok := c.kinds[kind]
	if !ok {
		return "", Claims{}, fmt.Errorf("unknown token kind %q", kind)
	}

	now := c.now().Truncate(time.Second)
	claims.Kind = kind
	claims.Issuer = c.issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(kc.TTL))

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(kc.Secret)
	if err != nil {
		return "", Claims{}, fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, claims, nil
}

// Verify checks the signature with kind's secret, the kind claim and, when
// expected is non-nil, exact equality of the listed claims.
//
// A correctly signed token that matches expected but has expired returns its
// claims together with ErrTokenExpired. Any other failure is ErrTokenInvalid.
func (c *Codec) Verify(kind Kind, token string, expected *Expected) (Claims, error) {
	kc, ok := c.kinds[kind]
	if !ok {
		return Claims{}, fmt.Errorf("%w: unknown token kind %q", ErrTokenInvalid, kind)
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if c.leeway > 0 {
		options = append(options, jwt.WithLeeway(c.leeway))
	}
	if c.issuer != "" {
		options = append(options, jwt.WithIssuer(c.issuer))
	}

	claims := &Claims{}
	_, err := jwt.NewParser(options...).ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return kc.Secret, nil
	})

	expired := false
	if err != nil {
		// The parser validates claims only after the signature, so an
		// expiry error implies an authentic token.
		if !errors.Is(err, jwt.ErrTokenExpired) ||
			errors.Is(err, jwt.ErrTokenUsedBeforeIssued) ||
			errors.Is(err, jwt.ErrTokenNotValidYet) ||
			errors.Is(err, jwt.ErrTokenInvalidIssuer) {
			return Claims{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
		}
		expired = true
	}

	if claims.Kind != kind {
		return Claims{}, fmt.Errorf("%w: kind mismatch", ErrTokenInvalid)
	}
	if claims.IssuedAt != nil && claims.IssuedAt.Time.After(c.now().Add(c.maxFutureIAT)) {
		return Claims{}, fmt.Errorf("%w: iat too far in the future", ErrTokenInvalid)
	}
	if expected != nil {
		if err := matchExpected(*claims, *expected); err != nil {
			return Claims{}, err
		}
	}
	if expired {
		return *claims, ErrTokenExpired
	}
	return *claims, nil
}

// Decode parses token without verifying the signature. The result must not
// be trusted beyond locating the backing record.
func (c *Codec) Decode(token string) (Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.ID == "" || claims.Subject == "" {
		return Claims{}, fmt.Errorf("%w: missing jti or sub", ErrTokenInvalid)
	}
	return *claims, nil
}

func matchExpected(got Claims, want Expected) error {
	mismatch := func(name string) error {
		return fmt.Errorf("%w: %s mismatch", ErrTokenInvalid, name)
	}
	if want.Subject != "" && !equalString(got.Subject, want.Subject) {
		return mismatch("sub")
	}
	if want.JTI != "" && !equalString(got.ID, want.JTI) {
		return mismatch("jti")
	}
	if want.Email != "" && !equalString(got.Email, want.Email) {
		return mismatch("email")
	}
	if want.IssuedAt != 0 && got.IssuedAtUnix() != want.IssuedAt {
		return mismatch("iat")
	}
	if want.ExpiresAt != 0 && got.ExpiresAtUnix() != want.ExpiresAt {
		return mismatch("exp")
	}
	return nil
}

func equalString(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
