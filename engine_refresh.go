package sessionguard

import (
	"context"

	"github.com/MrEthical07/sessionguard/internal/flows"
)

// Refresh rotates a refresh token: the presented token's record is consumed
// and a new pair is issued in one transaction.
//
// Presenting a token whose record is gone is treated as theft. Every
// refresh token of the user is revoked, a strict-mode account is locked,
// and ErrRefreshTokenReuse is returned; the revocation commits although the
// call fails. An expired token deletes only its own record and returns
// ErrRefreshTokenExpired.
func (e *Engine) Refresh(ctx context.Context, platform, token string) (resp Response, err error) {
	start := e.now()
	ctx, span := e.startSpan(ctx, "Refresh")
	defer func() {
		e.metrics.Observe(MetricRefreshLatency, e.now().Sub(start))
		endSpan(span, err)
	}()

	p, err := ParsePlatform(platform)
	if err != nil {
		return nil, err
	}
	raw, err := e.openToken(token)
	if err != nil {
		return nil, e.refreshFailed(ctx, auditEventRefreshInvalid, "", err)
	}

	deps := flows.RefreshDeps{
		Codec:    e.codec,
		Ledger:   e.ledger,
		Users:    e.store.Users(),
		Platform: string(p),
	}

	var res flows.RefreshResult
	txErr := e.inTx(ctx, func(ctx context.Context) bool {
		res = flows.RunRefresh(ctx, raw, deps)
		return res.Failure == flows.RefreshFailureNone || res.Failure.Commits()
	})
	if txErr != nil {
		return nil, e.refreshFailed(ctx, auditEventRefreshInvalid, res.UserID, wrap(ErrStore, txErr))
	}

	switch res.Failure {
	case flows.RefreshFailureNone:
	case flows.RefreshFailureDecode, flows.RefreshFailureInvalid:
		return nil, e.refreshFailed(ctx, auditEventRefreshInvalid, res.UserID, wrap(ErrInvalidToken, res.Err))
	case flows.RefreshFailureReuse:
		e.onRefreshReuse(ctx, res)
		return nil, ErrRefreshTokenReuse
	case flows.RefreshFailureExpired:
		e.metricInc(MetricRefreshExpired)
		return nil, e.refreshFailed(ctx, auditEventRefreshExpired, res.UserID, ErrRefreshTokenExpired)
	case flows.RefreshFailureAccountLocked:
		return nil, e.refreshFailed(ctx, auditEventRefreshInvalid, res.UserID, ErrAccountLocked)
	case flows.RefreshFailureIssue:
		return nil, e.refreshFailed(ctx, auditEventRefreshInvalid, res.UserID, wrap(ErrTokenIssue, res.Err))
	default:
		e.logger.ErrorContext(ctx, "refresh store failure", "user_id", res.UserID, "jti", res.JTI, "error", res.Err)
		return nil, e.refreshFailed(ctx, auditEventRefreshInvalid, res.UserID, wrap(ErrStore, res.Err))
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventRefreshSuccess,
		success:   true,
		userID:    res.UserID,
		jti:       res.Issued.RefreshClaims.ID,
		platform:  string(p),
		metadata:  map[string]string{"rotated_from": res.JTI},
	})

	return e.buildResponse(p, res.Issued, res.User.Verified)
}

func (e *Engine) refreshFailed(ctx context.Context, eventType, userID string, err error) error {
	e.metricInc(MetricRefreshFailure)
	e.emitAudit(ctx, auditRecord{eventType: eventType, userID: userID, err: err})
	return err
}

// onRefreshReuse reports a committed reuse escalation. Alert delivery never
// changes the returned error.
func (e *Engine) onRefreshReuse(ctx context.Context, res flows.RefreshResult) {
	e.metricInc(MetricRefreshFailure)
	e.metricInc(MetricRefreshReuseDetected)

	locked := res.LockedNow || (res.User != nil && res.User.Locked)
	severity := severityLow
	if res.User != nil && res.User.StrictMode {
		severity = severityHigh
	}
	if res.LockedNow {
		e.metricInc(MetricAccountLocked)
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventAccountLocked,
			success:   true,
			userID:    res.UserID,
			flow:      "refresh",
			severity:  severityHigh,
		})
	}

	e.logger.WarnContext(ctx, "refresh token reuse detected",
		"user_id", res.UserID,
		"jti", res.JTI,
		"revoked", res.Revoked,
		"locked", locked,
	)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventRefreshReuseDetected,
		userID:    res.UserID,
		jti:       res.JTI,
		severity:  severity,
		err:       ErrRefreshTokenReuse,
		metadata:  map[string]string{"revoked": int64String(res.Revoked)},
	})
	e.alertReuse(res.User, locked)
}
