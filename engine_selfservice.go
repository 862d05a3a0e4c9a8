package sessionguard

import (
	"context"
	"errors"
	"net/url"

	"github.com/MrEthical07/sessionguard/internal/flows"
	"github.com/MrEthical07/sessionguard/internal/limiters"
	"github.com/MrEthical07/sessionguard/internal/rate"
	"github.com/MrEthical07/sessionguard/jwt"
	"github.com/MrEthical07/sessionguard/mail"
	"github.com/MrEthical07/sessionguard/password"
	"github.com/MrEthical07/sessionguard/store"
)

// SendResult reports the attempt counter after a send. A send for an
// unknown e-mail reports a zero attempt and sends nothing.
type SendResult struct {
	Attempt int
	// CooldownReset is true when this send started a fresh budget after the
	// cooldown elapsed.
	CooldownReset bool
	// MailDropped is true when the send committed but the mail queue was
	// full. The attempt still counts and the issued link was never mailed;
	// a later send supersedes it.
	MailDropped bool
}

// ConfirmResult reports the outcome of a successful confirm.
type ConfirmResult struct {
	// AlreadyConfirmed marks a repeated confirm inside the replay window.
	// Nothing was changed.
	AlreadyConfirmed bool
}

// selfServiceFlow binds a FlowSpec to its errors, link base and mail.
type selfServiceFlow struct {
	name     string
	spec     flows.FlowSpec
	errs     flowErrors
	linkBase string
	mail     func(to, link, tempPassword string) mail.Job
}

func (e *Engine) selfServiceDeps() flows.SelfServiceDeps {
	return flows.SelfServiceDeps{
		Codec:        e.codec,
		Users:        e.store.Users(),
		Requests:     e.store.Requests(),
		Counts:       e.store.AttemptCounts(),
		Limiter:      e.attempts,
		RevokeAll:    e.ledger.RevokeAll,
		ReplayWindow: e.config.Attempts.ReplayWindow,
		Now:          e.clock,
	}
}

func (e *Engine) accountVerifyFlow() *selfServiceFlow {
	users := e.store.Users()
	return &selfServiceFlow{
		name: "account_verify",
		spec: flows.FlowSpec{
			Kind:              store.RequestVerify,
			TokenKind:         jwt.KindVerify,
			SilentUnknownUser: true,
			Precondition: func(u *store.User) error {
				if u.Verified {
					return ErrAccountAlreadyVerified
				}
				return nil
			},
			Apply: func(ctx context.Context, u *store.User, _ *store.Request) error {
				return users.SetVerified(ctx, u.ID, true, false)
			},
		},
		errs:     accountVerifyErrors,
		linkBase: e.config.Links.AccountVerify,
		mail: func(to, link, _ string) mail.Job {
			return mail.Job{Kind: "account_verify", To: to, Send: func(ctx context.Context, m mail.Mailer) error {
				return m.SendAccountVerify(ctx, to, link)
			}}
		},
	}
}

func (e *Engine) passwordRecoverFlow() *selfServiceFlow {
	users := e.store.Users()
	tempLength := max(password.DefaultTempLength, e.config.Password.MinPasswordBytes)
	return &selfServiceFlow{
		name: "password_recover",
		spec: flows.FlowSpec{
			Kind:              store.RequestRecover,
			TokenKind:         jwt.KindRecover,
			SilentUnknownUser: true,
			RevokeSessions:    true,
			Precondition:      requireVerified,
			Prepare: func(_ context.Context, _ *store.User, _ flows.SendInput) (flows.Prepared, error) {
				temp, err := password.Generate(tempLength)
				if err != nil {
					return flows.Prepared{}, err
				}
				hash, err := e.hasher.Hash(temp)
				if err != nil {
					return flows.Prepared{}, err
				}
				return flows.Prepared{PendingPasswordHash: hash, TempPassword: temp}, nil
			},
			Apply: applyPendingPassword(users),
		},
		errs:     passwordRecoverErrors,
		linkBase: e.config.Links.PasswordRecover,
		mail: func(to, link, temp string) mail.Job {
			return mail.Job{Kind: "password_recover", To: to, Send: func(ctx context.Context, m mail.Mailer) error {
				return m.SendPasswordRecover(ctx, to, link, temp)
			}}
		},
	}
}

func (e *Engine) passwordResetFlow() *selfServiceFlow {
	users := e.store.Users()
	return &selfServiceFlow{
		name: "password_reset",
		spec: flows.FlowSpec{
			Kind:           store.RequestReset,
			TokenKind:      jwt.KindReset,
			RevokeSessions: true,
			Precondition:   requireVerified,
			Prepare: func(ctx context.Context, u *store.User, in flows.SendInput) (flows.Prepared, error) {
				if err := e.checkCurrentPassword(ctx, u, in.CurrentPassword); err != nil {
					return flows.Prepared{}, err
				}
				hash, err := e.hasher.Hash(in.NewPassword)
				if err != nil {
					return flows.Prepared{}, wrap(ErrPasswordPolicy, err)
				}
				return flows.Prepared{PendingPasswordHash: hash}, nil
			},
			Apply: applyPendingPassword(users),
		},
		errs:     passwordResetErrors,
		linkBase: e.config.Links.PasswordReset,
		mail: func(to, link, _ string) mail.Job {
			return mail.Job{Kind: "password_reset", To: to, Send: func(ctx context.Context, m mail.Mailer) error {
				return m.SendPasswordReset(ctx, to, link)
			}}
		},
	}
}

// checkCurrentPassword verifies the caller's current password. With the
// sign-in throttle configured, wrong guesses spend the same per-e-mail
// budget as failed sign-ins and an exhausted budget refuses the check.
func (e *Engine) checkCurrentPassword(ctx context.Context, u *store.User, current string) error {
	ip := clientIPFromContext(ctx)
	if e.throttle != nil {
		if err := e.throttle.Check(ctx, u.Email, ip); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				return ErrCurrentPasswordRateLimited
			}
			return wrap(ErrThrottleUnavailable, err)
		}
	}

	ok, err := e.hasher.Verify(current, u.PasswordHash)
	if err == nil && ok {
		return nil
	}
	if e.throttle != nil {
		if ferr := e.throttle.Fail(ctx, u.Email, ip); ferr != nil && !errors.Is(ferr, rate.ErrRateLimited) {
			return wrap(ErrThrottleUnavailable, ferr)
		}
	}
	return ErrCurrentPasswordInvalid
}

func requireVerified(u *store.User) error {
	if !u.Verified {
		return ErrAccountNotVerified
	}
	return nil
}

func applyPendingPassword(users store.Users) func(ctx context.Context, u *store.User, req *store.Request) error {
	return func(ctx context.Context, u *store.User, req *store.Request) error {
		if req.PendingPasswordHash == "" {
			return errors.New("request carries no pending password")
		}
		return users.UpdatePasswordHash(ctx, u.ID, req.PendingPasswordHash)
	}
}

// SendAccountVerification mails a verification link to an unverified
// account.
func (e *Engine) SendAccountVerification(ctx context.Context, email string) (SendResult, error) {
	return e.send(ctx, e.verify, flows.SendInput{Email: email})
}

// ConfirmAccountVerification marks the account verified.
func (e *Engine) ConfirmAccountVerification(ctx context.Context, token string) (ConfirmResult, error) {
	return e.confirm(ctx, e.verify, token)
}

// SendPasswordRecovery mails a temporary password and the link that
// activates it. The current password keeps working until the link is
// followed.
func (e *Engine) SendPasswordRecovery(ctx context.Context, email string) (SendResult, error) {
	return e.send(ctx, e.recover, flows.SendInput{Email: email})
}

// ConfirmPasswordRecovery activates the mailed temporary password and
// ends every session of the user.
func (e *Engine) ConfirmPasswordRecovery(ctx context.Context, token string) (ConfirmResult, error) {
	return e.confirm(ctx, e.recover, token)
}

// SendPasswordReset checks the current password and mails a link that
// commits the new one.
func (e *Engine) SendPasswordReset(ctx context.Context, userID, currentPassword, newPassword string) (SendResult, error) {
	return e.send(ctx, e.reset, flows.SendInput{
		UserID:          userID,
		CurrentPassword: currentPassword,
		NewPassword:     newPassword,
	})
}

// ConfirmPasswordReset commits the new password chosen at send time and
// ends every session of the user.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, token string) (ConfirmResult, error) {
	return e.confirm(ctx, e.reset, token)
}

func (e *Engine) send(ctx context.Context, f *selfServiceFlow, in flows.SendInput) (out SendResult, err error) {
	ctx, span := e.startSpan(ctx, "Send."+f.name)
	defer func() { endSpan(span, err) }()

	var (
		res     flows.SendResult
		link    string
		linkErr error
	)
	txErr := e.inTx(ctx, func(ctx context.Context) bool {
		res = flows.RunSend(ctx, f.spec, in, e.selfServiceDeps())
		if res.Failure != flows.SendFailureNone || res.Silent {
			return false
		}
		link, linkErr = f.link(e, res.Token)
		return linkErr == nil
	})
	if txErr != nil {
		return SendResult{}, e.sendFailed(ctx, f, userIDOf(res.User), wrap(ErrStore, txErr))
	}
	if res.Failure != flows.SendFailureNone {
		return SendResult{}, e.sendFailed(ctx, f, userIDOf(res.User), f.sendError(res))
	}
	if res.Silent {
		e.metricInc(MetricSelfServiceSendSilent)
		return SendResult{}, nil
	}
	if linkErr != nil {
		return SendResult{}, e.sendFailed(ctx, f, res.User.ID, wrap(ErrTokenIssue, linkErr))
	}

	queued := f.afterSend(ctx, e, res, link)
	return SendResult{
		Attempt:       res.Attempt.Count,
		CooldownReset: res.Attempt.CooldownActive,
		MailDropped:   !queued,
	}, nil
}

func (e *Engine) sendFailed(ctx context.Context, f *selfServiceFlow, userID string, err error) error {
	eventType := auditEventSelfServiceFailure
	if errors.Is(err, ErrWaitForAnotherDay) || errors.Is(err, ErrCurrentPasswordRateLimited) {
		eventType = auditEventSelfServiceRateLimited
		e.metricInc(MetricSelfServiceRateLimited)
	}
	e.emitAudit(ctx, auditRecord{eventType: eventType, userID: userID, flow: f.name, err: err})
	return err
}

// link builds the confirmation link for a flow token, sealing the token
// when transport encryption is on.
func (f *selfServiceFlow) link(e *Engine, token string) (string, error) {
	sealed, err := e.sealer.Seal(token)
	if err != nil {
		return "", err
	}
	return f.linkBase + "?token=" + url.QueryEscape(sealed), nil
}

// afterSend runs once the send has committed and reports whether the mail
// was queued.
func (f *selfServiceFlow) afterSend(ctx context.Context, e *Engine, res flows.SendResult, link string) bool {
	e.metricInc(MetricSelfServiceSend)
	queued := e.enqueueMail(f.mail(res.User.Email, link, res.TempPassword))
	if !queued {
		e.logger.WarnContext(ctx, "self-service mail not queued", "flow", f.name, "user_id", res.User.ID, "attempt", res.Attempt.Count)
	}
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventSelfServiceSend,
		success:   true,
		userID:    res.User.ID,
		flow:      f.name,
		metadata: map[string]string{
			"attempt":     int64String(int64(res.Attempt.Count)),
			"mail_queued": boolString(queued),
		},
	})
	return queued
}

func (f *selfServiceFlow) sendError(res flows.SendResult) error {
	switch res.Failure {
	case flows.SendFailureUserNotFound:
		return f.errs.notFound
	case flows.SendFailurePrecondition, flows.SendFailurePrepare:
		var se *Error
		if errors.As(res.Err, &se) && se.Kind != KindInternal {
			return res.Err
		}
		return wrap(ErrInternal, res.Err)
	case flows.SendFailureRateLimited:
		if errors.Is(res.Err, limiters.ErrWaitForAnotherDay) {
			return ErrWaitForAnotherDay
		}
		return wrap(ErrInternal, res.Err)
	case flows.SendFailureMint:
		return wrap(ErrTokenIssue, res.Err)
	default:
		return wrap(ErrStore, res.Err)
	}
}

func (e *Engine) confirm(ctx context.Context, f *selfServiceFlow, token string) (out ConfirmResult, err error) {
	ctx, span := e.startSpan(ctx, "Confirm."+f.name)
	defer func() { endSpan(span, err) }()

	raw, err := e.openToken(token)
	if err != nil {
		return ConfirmResult{}, e.confirmFailed(ctx, f, "", err)
	}

	var res flows.ConfirmResult
	txErr := e.inTx(ctx, func(ctx context.Context) bool {
		res = flows.RunConfirm(ctx, f.spec, raw, e.selfServiceDeps())
		return res.Failure == flows.ConfirmFailureNone || res.Failure.Commits()
	})
	if txErr != nil {
		return ConfirmResult{}, e.confirmFailed(ctx, f, userIDOf(res.User), wrap(ErrStore, txErr))
	}

	userID := userIDOf(res.User)
	switch res.Failure {
	case flows.ConfirmFailureNone:
	case flows.ConfirmFailureDecode, flows.ConfirmFailureMismatch, flows.ConfirmFailureInvalid:
		return ConfirmResult{}, e.confirmFailed(ctx, f, userID, wrap(f.errs.invalid, res.Err))
	case flows.ConfirmFailureNotFound:
		return ConfirmResult{}, e.confirmFailed(ctx, f, userID, f.errs.notFound)
	case flows.ConfirmFailureExpired:
		return ConfirmResult{}, e.confirmFailed(ctx, f, userID, f.errs.expired)
	case flows.ConfirmFailureReplay:
		e.onReplay(ctx, f, res)
		return ConfirmResult{}, f.errs.reuse
	case flows.ConfirmFailureAttemptCountMissing:
		e.logger.ErrorContext(ctx, "attempt count missing for confirmed request", "flow", f.name, "user_id", userID, "error", res.Err)
		return ConfirmResult{}, e.confirmFailed(ctx, f, userID, wrap(ErrAttemptCountMissing, res.Err))
	default:
		return ConfirmResult{}, e.confirmFailed(ctx, f, userID, wrap(ErrStore, res.Err))
	}

	if res.AlreadyConfirmed {
		e.metricInc(MetricSelfServiceConfirmDuplicate)
		return ConfirmResult{AlreadyConfirmed: true}, nil
	}

	e.metricInc(MetricSelfServiceConfirmSuccess)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventSelfServiceConfirm,
		success:   true,
		userID:    userID,
		flow:      f.name,
		metadata:  map[string]string{"revoked": int64String(res.Revoked)},
	})
	return ConfirmResult{}, nil
}

func (e *Engine) confirmFailed(ctx context.Context, f *selfServiceFlow, userID string, err error) error {
	e.metricInc(MetricSelfServiceConfirmFailure)
	e.emitAudit(ctx, auditRecord{eventType: auditEventSelfServiceFailure, userID: userID, flow: f.name, err: err})
	return err
}

// onReplay reports a committed replay escalation.
func (e *Engine) onReplay(ctx context.Context, f *selfServiceFlow, res flows.ConfirmResult) {
	e.metricInc(MetricSelfServiceConfirmFailure)
	e.metricInc(MetricSelfServiceReplayDetected)

	userID := userIDOf(res.User)
	severity := severityLow
	if res.User != nil && res.User.StrictMode {
		severity = severityHigh
	}
	if res.LockedNow {
		e.metricInc(MetricAccountLocked)
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventAccountLocked,
			success:   true,
			userID:    userID,
			flow:      f.name,
			severity:  severityHigh,
		})
	}

	e.logger.WarnContext(ctx, "confirm token replay detected", "flow", f.name, "user_id", userID, "locked", res.LockedNow)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventSelfServiceReplay,
		userID:    userID,
		flow:      f.name,
		severity:  severity,
		err:       f.errs.reuse,
	})
	e.alertReuse(res.User, res.LockedNow || (res.User != nil && res.User.Locked))
}
