package sessionguard

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/MrEthical07/sessionguard/internal/audit"
)

// AuditEvent is one security-relevant outcome emitted by the engine.
type AuditEvent = audit.Event

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink = audit.Sink

type (
	NoOpSink       = audit.NoOpSink
	ChannelSink    = audit.ChannelSink
	JSONWriterSink = audit.JSONWriterSink
	SlogSink       = audit.SlogSink
	KafkaSink      = audit.KafkaSink
)

func NewChannelSink(buffer int) *ChannelSink { return audit.NewChannelSink(buffer) }

func NewJSONWriterSink(w io.Writer) *JSONWriterSink { return audit.NewJSONWriterSink(w) }

func NewSlogSink(logger *slog.Logger) *SlogSink { return audit.NewSlogSink(logger) }

// NewKafkaSink publishes audit events to topic, keyed by user id.
func NewKafkaSink(brokers []string, topic string, logger *slog.Logger) *KafkaSink {
	return audit.NewKafkaSink(audit.NewKafkaWriter(brokers, topic), 5*time.Second, logger)
}

const (
	auditEventSignUpSuccess          = "signup_success"
	auditEventSignUpFailure          = "signup_failure"
	auditEventSignInSuccess          = "signin_success"
	auditEventSignInFailure          = "signin_failure"
	auditEventSignInRateLimited      = "signin_rate_limited"
	auditEventRefreshSuccess         = "refresh_success"
	auditEventRefreshInvalid         = "refresh_invalid"
	auditEventRefreshExpired         = "refresh_expired"
	auditEventRefreshReuseDetected   = "refresh_reuse_detected"
	auditEventSignOut                = "signout"
	auditEventSignOutAll             = "signout_all"
	auditEventSelfServiceSend        = "selfservice_send"
	auditEventSelfServiceRateLimited = "selfservice_rate_limited"
	auditEventSelfServiceConfirm     = "selfservice_confirm"
	auditEventSelfServiceFailure     = "selfservice_failure"
	auditEventSelfServiceReplay      = "selfservice_replay_detected"
	auditEventAccountLocked          = "account_locked"
)

const (
	severityLow  = "low"
	severityHigh = "high"
)

type auditRecord struct {
	eventType string
	success   bool
	userID    string
	jti       string
	flow      string
	platform  string
	severity  string
	err       error
	metadata  map[string]string
}

func (e *Engine) emitAudit(ctx context.Context, r auditRecord) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: r.eventType,
		UserID:    r.userID,
		JTI:       r.jti,
		Flow:      r.flow,
		Platform:  r.platform,
		IP:        clientIPFromContext(ctx),
		Success:   r.success,
		Severity:  r.severity,
		Metadata:  r.metadata,
	}
	if r.err != nil {
		event.Error = ErrorCode(r.err)
	}

	e.audit.Emit(ctx, event)
}
