package sessionguard

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the coarse error category surfaced to callers. Transport layers
// map it to a status code.
type Kind int

const (
	KindInternal Kind = iota
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindTokenExpired
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindTokenExpired:
		return "token_expired"
	default:
		return "internal"
	}
}

// Error is a categorised failure. Sentinels below are compared by identity,
// so wrapping with %w keeps both the kind and errors.Is matching.
type Error struct {
	Kind   Kind
	Reason string
}

func (e *Error) Error() string {
	return e.Reason
}

// Code is the reason in snake_case, stable enough for clients and audit
// records to match on.
func (e *Error) Code() string {
	var b strings.Builder
	sep := false
	for _, r := range strings.ToLower(e.Reason) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			sep = false
			continue
		}
		if !sep && b.Len() > 0 {
			b.WriteByte('_')
			sep = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

func newError(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

var (
	ErrInvalidToken       = newError(KindUnauthorized, "invalid token")
	ErrRefreshTokenReuse  = newError(KindUnauthorized, "refresh token reuse detected")
	ErrInvalidCredentials = newError(KindUnauthorized, "email or password invalid")
	ErrAccountLocked      = newError(KindUnauthorized, "account locked")

	ErrRefreshTokenExpired = newError(KindTokenExpired, "refresh token expired")
	ErrAccessTokenExpired  = newError(KindTokenExpired, "access token expired")

	ErrWaitForAnotherDay      = newError(KindForbidden, "attempt limit reached, wait for another day")
	ErrSignInRateLimited      = newError(KindForbidden, "too many sign-in attempts")
	ErrAccountExists          = newError(KindForbidden, "account already exists")
	ErrInvalidEmail           = newError(KindForbidden, "invalid email")
	ErrPasswordPolicy         = newError(KindForbidden, "password does not meet policy")
	ErrAccountAlreadyVerified = newError(KindForbidden, "account already verified")
	ErrAccountNotVerified     = newError(KindForbidden, "account not verified")
	ErrCurrentPasswordInvalid = newError(KindForbidden, "current password invalid")

	// ErrCurrentPasswordRateLimited refuses a password reset send after too
	// many wrong current passwords for the account.
	ErrCurrentPasswordRateLimited = newError(KindForbidden, "too many current password attempts")

	ErrAccountVerifyRequestNotFound   = newError(KindNotFound, "account verification request not found")
	ErrAccountVerifyRequestInvalid    = newError(KindForbidden, "account verification request invalid")
	ErrAccountVerifyTokenReuse        = newError(KindForbidden, "account verification token reused")
	ErrAccountVerifyTokenExpired      = newError(KindTokenExpired, "account verification token expired")
	ErrPasswordRecoverRequestNotFound = newError(KindNotFound, "password recovery request not found")
	ErrPasswordRecoverRequestInvalid  = newError(KindForbidden, "password recovery request invalid")
	ErrPasswordRecoverTokenReuse      = newError(KindForbidden, "password recovery token reused")
	ErrPasswordRecoverTokenExpired    = newError(KindTokenExpired, "password recovery token expired")
	ErrPasswordResetRequestNotFound   = newError(KindNotFound, "password reset request not found")
	ErrPasswordResetRequestInvalid    = newError(KindForbidden, "password reset request invalid")
	ErrPasswordResetTokenReuse        = newError(KindForbidden, "password reset token reused")
	ErrPasswordResetTokenExpired      = newError(KindTokenExpired, "password reset token expired")

	ErrAttemptCountMissing = newError(KindInternal, "attempt count missing for confirmed request")
	ErrUnknownPlatform     = newError(KindInternal, "unknown platform")
	ErrStore               = newError(KindInternal, "credential store failure")
	ErrTokenIssue          = newError(KindInternal, "token issuance failed")
	ErrThrottleUnavailable = newError(KindInternal, "sign-in throttle unavailable")
	ErrEngineNotReady      = newError(KindInternal, "engine not initialized")
	ErrInternal            = newError(KindInternal, "internal error")
)

// flowErrors is the per-flow error set of a self-service state machine.
type flowErrors struct {
	notFound *Error
	invalid  *Error
	reuse    *Error
	expired  *Error
}

var (
	accountVerifyErrors = flowErrors{
		notFound: ErrAccountVerifyRequestNotFound,
		invalid:  ErrAccountVerifyRequestInvalid,
		reuse:    ErrAccountVerifyTokenReuse,
		expired:  ErrAccountVerifyTokenExpired,
	}
	passwordRecoverErrors = flowErrors{
		notFound: ErrPasswordRecoverRequestNotFound,
		invalid:  ErrPasswordRecoverRequestInvalid,
		reuse:    ErrPasswordRecoverTokenReuse,
		expired:  ErrPasswordRecoverTokenExpired,
	}
	passwordResetErrors = flowErrors{
		notFound: ErrPasswordResetRequestNotFound,
		invalid:  ErrPasswordResetRequestInvalid,
		reuse:    ErrPasswordResetTokenReuse,
		expired:  ErrPasswordResetTokenExpired,
	}
)

// wrap attaches cause to a sentinel. Both stay reachable through errors.Is.
func wrap(sentinel *Error, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, cause)
}

// KindOf reports the category of err. Errors that carry no *Error are
// internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ErrorCode returns the Code of the *Error carried by err, or
// "internal_error" for internal and uncategorised errors.
func ErrorCode(err error) string {
	var e *Error
	if !errors.As(err, &e) || e.Kind == KindInternal {
		return "internal_error"
	}
	return e.Code()
}

// PublicMessage returns the text safe to show to an end user. Internal
// failures never leak their cause.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) || e.Kind == KindInternal {
		return "internal server error"
	}
	return e.Reason
}
