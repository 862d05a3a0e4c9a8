package sessionguard

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/MrEthical07/sessionguard/internal/audit"
	"github.com/MrEthical07/sessionguard/internal/ledger"
	"github.com/MrEthical07/sessionguard/internal/limiters"
	"github.com/MrEthical07/sessionguard/internal/rate"
	"github.com/MrEthical07/sessionguard/jwt"
	"github.com/MrEthical07/sessionguard/mail"
	"github.com/MrEthical07/sessionguard/password"
	"github.com/MrEthical07/sessionguard/store"
)

const tracerName = "github.com/MrEthical07/sessionguard"

// Builder assembles an Engine. A Builder is single use.
type Builder struct {
	config    Config
	store     store.Store
	redis     redis.UniversalClient
	mailer    mail.Mailer
	auditSink AuditSink
	logger    *slog.Logger
	clock     func() time.Time

	built bool
}

func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the credential store. Required.
func (b *Builder) WithStore(s store.Store) *Builder {
	b.store = s
	return b
}

// WithRedis enables the sign-in throttle.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithMailer sets the outbound mail collaborator. Without one, mail is
// logged and discarded.
func (b *Builder) WithMailer(m mail.Mailer) *Builder {
	b.mailer = m
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the structured logger. The default discards.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides the time source of the engine and its token codec.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and starts the audit and mail
// dispatchers. Call Engine.Close to drain them.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.store == nil {
		return nil, errors.New("credential store required")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	// -------- TOKENS --------
	kinds := make(map[jwt.Kind]jwt.KindConfig, len(jwt.Kinds))
	for kind, tc := range cfg.Tokens.byKind() {
		kinds[kind] = jwt.KindConfig{Secret: tc.Secret, TTL: tc.TTL}
	}
	codec, err := jwt.NewCodec(jwt.Config{
		Kinds:        kinds,
		Issuer:       cfg.Tokens.Issuer,
		Leeway:       cfg.Tokens.Leeway,
		MaxFutureIAT: cfg.Tokens.MaxFutureIAT,
		Now:          clock,
	})
	if err != nil {
		return nil, fmt.Errorf("token codec: %w", err)
	}
	sealer, err := jwt.NewSealer(cfg.Transport.Enabled, cfg.Transport.Key)
	if err != nil {
		return nil, fmt.Errorf("transport sealer: %w", err)
	}

	// -------- PASSWORDS --------
	hasher, err := password.NewHasher(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MinPasswordBytes: cfg.Password.MinPasswordBytes,
		MaxPasswordBytes: cfg.Password.MaxPasswordBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("password hasher: %w", err)
	}
	dummyPassword, err := password.Generate(cfg.Password.MinPasswordBytes + 8)
	if err != nil {
		return nil, err
	}
	dummyHash, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:    cfg,
		store:     b.store,
		codec:     codec,
		sealer:    sealer,
		ledger:    ledger.New(b.store.RefreshTokens(), codec),
		hasher:    hasher,
		dummyHash: dummyHash,
		attempts: limiters.NewAttemptLimiter(b.store.AttemptCounts(), limiters.AttemptConfig{
			MaxAttempts: cfg.Attempts.MaxAttempts,
			Cooldown:    cfg.Attempts.Cooldown,
		}, clock),
		metrics: NewMetrics(cfg.Metrics),
		logger:  logger,
		tracer:  otel.Tracer(tracerName),
		clock:   clock,
	}

	if b.redis != nil {
		engine.throttle = rate.New(b.redis, rate.Config{
			EnableIPThrottle: cfg.SignIn.EnableIPThrottle,
			MaxAttempts:      cfg.SignIn.MaxAttempts,
			Window:           cfg.SignIn.Cooldown,
		})
	}

	engine.audit = audit.NewDispatcherWithLogger(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink, logger)

	mailer := b.mailer
	if mailer == nil {
		mailer = mail.LogMailer{Logger: logger}
	}
	engine.mail = mail.NewDispatcher(mailer, mail.Config{
		BufferSize: cfg.Mail.BufferSize,
		Workers:    cfg.Mail.Workers,
		Timeout:    cfg.Mail.Timeout,
	}, logger, engine.mailResult)

	engine.verify = engine.accountVerifyFlow()
	engine.recover = engine.passwordRecoverFlow()
	engine.reset = engine.passwordResetFlow()

	b.built = true

	return engine, nil
}
