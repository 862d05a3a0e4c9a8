package sessionguard

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/sessionguard/internal/flows"
	"github.com/MrEthical07/sessionguard/jwt"
	"github.com/MrEthical07/sessionguard/password"
)

// SignUpInput is the request to create an account. StrictMode makes any
// detected token reuse or replay lock the account.
type SignUpInput struct {
	Email      string
	Password   string
	Platform   string
	StrictMode bool
}

// AccessResult is the verified content of an access token.
type AccessResult struct {
	UserID    string
	Email     string
	Platform  string
	JTI       string
	ExpiresAt time.Time
}

// SignUp creates an unverified account and returns its first session. When
// AccountVerification.SendOnSignUp is set the verification request is
// created in the same transaction and its mail queued after commit.
func (e *Engine) SignUp(ctx context.Context, in SignUpInput) (resp Response, err error) {
	ctx, span := e.startSpan(ctx, "SignUp")
	defer func() { endSpan(span, err) }()

	platform, err := ParsePlatform(in.Platform)
	if err != nil {
		return nil, err
	}

	var (
		res     flows.SignUpResult
		sent    flows.SendResult
		link    string
		linkErr error
	)
	sendVerify := e.config.AccountVerification.SendOnSignUp
	txErr := e.inTx(ctx, func(ctx context.Context) bool {
		res = flows.RunSignUp(ctx, flows.SignUpInput{
			Email:      in.Email,
			Password:   in.Password,
			Platform:   string(platform),
			StrictMode: in.StrictMode,
		}, flows.SignUpDeps{
			Users:  e.store.Users(),
			Ledger: e.ledger,
			Hasher: e.hasher,
			Now:    e.clock,
		})
		if res.Failure != flows.SignUpFailureNone {
			return false
		}
		if !sendVerify {
			return true
		}
		sent = flows.RunSend(ctx, e.verify.spec, flows.SendInput{UserID: res.User.ID}, e.selfServiceDeps())
		if sent.Failure != flows.SendFailureNone {
			return false
		}
		link, linkErr = e.verify.link(e, sent.Token)
		return linkErr == nil
	})
	if txErr != nil {
		return nil, e.signUpFailed(ctx, wrap(ErrStore, txErr))
	}

	switch res.Failure {
	case flows.SignUpFailureNone:
	case flows.SignUpFailureInvalidInput:
		return nil, e.signUpFailed(ctx, ErrInvalidEmail)
	case flows.SignUpFailureExists:
		e.metricInc(MetricSignUpDuplicate)
		return nil, e.signUpFailed(ctx, ErrAccountExists)
	case flows.SignUpFailurePassword:
		if errors.Is(res.Err, password.ErrPasswordTooShort) || errors.Is(res.Err, password.ErrPasswordTooLong) {
			return nil, e.signUpFailed(ctx, wrap(ErrPasswordPolicy, res.Err))
		}
		return nil, e.signUpFailed(ctx, wrap(ErrInternal, res.Err))
	case flows.SignUpFailureIssue:
		return nil, e.signUpFailed(ctx, wrap(ErrTokenIssue, res.Err))
	default:
		return nil, e.signUpFailed(ctx, wrap(ErrStore, res.Err))
	}
	if sendVerify && sent.Failure == flows.SendFailureNone && linkErr != nil {
		return nil, e.signUpFailed(ctx, wrap(ErrTokenIssue, linkErr))
	}
	if sendVerify && sent.Failure != flows.SendFailureNone {
		return nil, e.signUpFailed(ctx, e.verify.sendError(sent))
	}

	e.metricInc(MetricSignUpSuccess)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventSignUpSuccess,
		success:   true,
		userID:    res.User.ID,
		jti:       res.Issued.RefreshClaims.ID,
		platform:  string(platform),
	})
	if sendVerify {
		e.verify.afterSend(ctx, e, sent, link)
	}

	return e.buildResponse(platform, res.Issued, res.User.Verified)
}

func (e *Engine) signUpFailed(ctx context.Context, err error) error {
	e.metricInc(MetricSignUpFailure)
	e.emitAudit(ctx, auditRecord{eventType: auditEventSignUpFailure, err: err})
	return err
}

// SignIn checks credentials and returns a new session. An unknown e-mail
// and a wrong password fail identically with ErrInvalidCredentials.
func (e *Engine) SignIn(ctx context.Context, email, pass, platform string) (resp Response, err error) {
	start := e.now()
	ctx, span := e.startSpan(ctx, "SignIn")
	defer func() {
		e.metrics.Observe(MetricSignInLatency, e.now().Sub(start))
		endSpan(span, err)
	}()

	p, err := ParsePlatform(platform)
	if err != nil {
		return nil, err
	}

	deps := flows.SignInDeps{
		Users:     e.store.Users(),
		Ledger:    e.ledger,
		Hasher:    e.hasher,
		DummyHash: e.dummyHash,
		Warn: func(msg string, args ...any) {
			e.logger.WarnContext(ctx, msg, args...)
		},
	}
	if e.throttle != nil {
		deps.Throttle = e.throttle
	}

	var res flows.SignInResult
	txErr := e.inTx(ctx, func(ctx context.Context) bool {
		res = flows.RunSignIn(ctx, flows.SignInInput{
			Email:    email,
			Password: pass,
			Platform: string(p),
			ClientIP: clientIPFromContext(ctx),
		}, deps)
		return res.Failure == flows.SignInFailureNone
	})
	if txErr != nil {
		return nil, e.signInFailed(ctx, "", wrap(ErrStore, txErr))
	}

	switch res.Failure {
	case flows.SignInFailureNone:
	case flows.SignInFailureRateLimited:
		e.metricInc(MetricSignInRateLimited)
		e.emitAudit(ctx, auditRecord{eventType: auditEventSignInRateLimited, err: ErrSignInRateLimited})
		return nil, ErrSignInRateLimited
	case flows.SignInFailureThrottleUnavailable:
		e.logger.ErrorContext(ctx, "sign-in throttle unavailable", "error", res.Err)
		return nil, e.signInFailed(ctx, "", wrap(ErrThrottleUnavailable, res.Err))
	case flows.SignInFailureInvalidCredentials:
		return nil, e.signInFailed(ctx, "", ErrInvalidCredentials)
	case flows.SignInFailureAccountLocked:
		return nil, e.signInFailed(ctx, res.User.ID, ErrAccountLocked)
	case flows.SignInFailureIssue:
		return nil, e.signInFailed(ctx, userIDOf(res.User), wrap(ErrTokenIssue, res.Err))
	default:
		return nil, e.signInFailed(ctx, userIDOf(res.User), wrap(ErrStore, res.Err))
	}

	e.metricInc(MetricSignInSuccess)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventSignInSuccess,
		success:   true,
		userID:    res.User.ID,
		jti:       res.Issued.RefreshClaims.ID,
		platform:  string(p),
	})

	return e.buildResponse(p, res.Issued, res.User.Verified)
}

func (e *Engine) signInFailed(ctx context.Context, userID string, err error) error {
	e.metricInc(MetricSignInFailure)
	e.emitAudit(ctx, auditRecord{eventType: auditEventSignInFailure, userID: userID, err: err})
	return err
}

// SignOut consumes the refresh token's record. Signing out a token whose
// record is already gone succeeds.
func (e *Engine) SignOut(ctx context.Context, token string) (err error) {
	ctx, span := e.startSpan(ctx, "SignOut")
	defer func() { endSpan(span, err) }()

	raw, err := e.openToken(token)
	if err != nil {
		return err
	}

	var res flows.SignOutResult
	txErr := e.inTx(ctx, func(ctx context.Context) bool {
		res = flows.RunSignOut(ctx, raw, e.codec, e.ledger)
		return res.Failure == flows.SignOutFailureNone
	})
	if txErr != nil {
		return wrap(ErrStore, txErr)
	}

	switch res.Failure {
	case flows.SignOutFailureNone:
	case flows.SignOutFailureInvalid:
		return wrap(ErrInvalidToken, res.Err)
	default:
		return wrap(ErrStore, res.Err)
	}

	e.metricInc(MetricSignOut)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventSignOut,
		success:   true,
		userID:    res.UserID,
		metadata:  map[string]string{"consumed": boolString(res.Consumed)},
	})
	return nil
}

// SignOutAll revokes every refresh token of the user.
func (e *Engine) SignOutAll(ctx context.Context, userID string) (err error) {
	ctx, span := e.startSpan(ctx, "SignOutAll")
	defer func() { endSpan(span, err) }()

	if userID == "" {
		return ErrInvalidToken
	}
	revoked, err := e.ledger.RevokeAll(ctx, userID)
	if err != nil {
		return wrap(ErrStore, err)
	}

	e.metricInc(MetricSignOutAll)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventSignOutAll,
		success:   true,
		userID:    userID,
		metadata:  map[string]string{"revoked": int64String(revoked)},
	})
	return nil
}

// ValidateAccess verifies an access token without touching the store.
func (e *Engine) ValidateAccess(ctx context.Context, token string) (AccessResult, error) {
	raw, err := e.openToken(token)
	if err != nil {
		return AccessResult{}, err
	}
	claims, err := e.codec.Verify(jwt.KindAccess, raw, nil)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return AccessResult{}, ErrAccessTokenExpired
	default:
		return AccessResult{}, wrap(ErrInvalidToken, err)
	}
	if claims.UserID() == "" {
		return AccessResult{}, ErrInvalidToken
	}

	out := AccessResult{
		UserID:   claims.UserID(),
		Email:    claims.Email,
		Platform: claims.Platform,
		JTI:      claims.ID,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
