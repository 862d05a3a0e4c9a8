package sessionguard

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrEthical07/sessionguard/internal/audit"
	"github.com/MrEthical07/sessionguard/internal/ledger"
	"github.com/MrEthical07/sessionguard/internal/limiters"
	"github.com/MrEthical07/sessionguard/internal/rate"
	"github.com/MrEthical07/sessionguard/jwt"
	"github.com/MrEthical07/sessionguard/mail"
	"github.com/MrEthical07/sessionguard/password"
	"github.com/MrEthical07/sessionguard/store"
)

// Engine drives sign-up, sign-in, refresh rotation, sign-out and the
// self-service flows over a credential store.
//
// Engine methods are safe for concurrent use after Builder.Build.
type Engine struct {
	config    Config
	store     store.Store
	codec     *jwt.Codec
	sealer    *jwt.Sealer
	ledger    *ledger.Ledger
	hasher    *password.Hasher
	dummyHash string
	attempts  *limiters.AttemptLimiter
	throttle  *rate.Limiter
	audit     *audit.Dispatcher
	mail      *mail.Dispatcher
	metrics   *Metrics
	logger    *slog.Logger
	tracer    trace.Tracer
	clock     func() time.Time

	verify  *selfServiceFlow
	recover *selfServiceFlow
	reset   *selfServiceFlow
}

// Close drains queued mail and audit events. The engine must not be used
// afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.mail != nil {
		e.mail.Close()
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped counts audit events lost to a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the engine counters. Disabled metrics yield empty
// maps.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) now() time.Time {
	if e == nil || e.clock == nil {
		return time.Now()
	}
	return e.clock()
}

var errRollback = errors.New("rollback requested")

// inTx runs fn inside one store transaction. fn reports whether its work
// commits; a rollback it asks for is not an error. A non-nil return is a
// transaction fault.
func (e *Engine) inTx(ctx context.Context, fn func(ctx context.Context) bool) error {
	err := e.store.WithTx(ctx, func(ctx context.Context) error {
		if !fn(ctx) {
			return errRollback
		}
		return nil
	})
	if errors.Is(err, errRollback) {
		return nil
	}
	return err
}

func (e *Engine) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "sessionguard."+name)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, ErrorCode(err))
	}
	span.End()
}

// openToken removes the transport layer from a client-held token. Empty
// and undecryptable tokens are both ErrInvalidToken.
func (e *Engine) openToken(sealed string) (string, error) {
	if strings.TrimSpace(sealed) == "" {
		return "", ErrInvalidToken
	}
	token, err := e.sealer.Open(sealed)
	if err != nil {
		return "", wrap(ErrInvalidToken, err)
	}
	return token, nil
}

// enqueueMail reports whether the job was accepted by the mail queue.
func (e *Engine) enqueueMail(job mail.Job) bool {
	if e.mail.Enqueue(job) {
		e.metricInc(MetricMailQueued)
		return true
	}
	e.metricInc(MetricMailDropped)
	e.logger.Warn("mail dropped", "kind", job.Kind)
	return false
}

func (e *Engine) mailResult(kind string, err error) {
	if err != nil {
		e.metricInc(MetricMailFailed)
		return
	}
	e.metricInc(MetricMailSent)
	e.logger.Debug("mail delivered", "kind", kind)
}

// alertReuse queues the security alert for a detected refresh reuse or
// confirm replay. Delivery is best effort.
func (e *Engine) alertReuse(user *store.User, locked bool) {
	if user == nil {
		return
	}
	email := user.Email
	_ = e.enqueueMail(mail.Job{
		Kind: "reuse_alert",
		To:   email,
		Send: func(ctx context.Context, m mail.Mailer) error {
			return m.SendReuseAlert(ctx, email, locked)
		},
	})
}

func userIDOf(u *store.User) string {
	if u == nil {
		return ""
	}
	return u.ID
}

func boolString(v bool) string {
	return strconv.FormatBool(v)
}

func int64String(v int64) string {
	return strconv.FormatInt(v, 10)
}
