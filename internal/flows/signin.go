package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/sessionguard/internal/ledger"
	"github.com/MrEthical07/sessionguard/internal/rate"
	"github.com/MrEthical07/sessionguard/store"
)

// SignInFailureKind classifies sign-in failures for root-level mapping.
type SignInFailureKind int

const (
	SignInFailureNone SignInFailureKind = iota
	SignInFailureRateLimited
	SignInFailureThrottleUnavailable
	SignInFailureInvalidCredentials
	SignInFailureAccountLocked
	SignInFailureStore
	SignInFailureIssue
)

type SignInThrottle interface {
	Check(ctx context.Context, email, ip string) error
	Fail(ctx context.Context, email, ip string) error
	Reset(ctx context.Context, email string) error
}

var _ SignInThrottle = (*rate.Limiter)(nil)

type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
	NeedsRehash(encoded string) (bool, error)
}

// SignInDeps captures sign-in dependencies. Throttle is optional.
type SignInDeps struct {
	Users    store.Users
	Ledger   RefreshLedger
	Hasher   PasswordHasher
	Throttle SignInThrottle
	// DummyHash is verified against when the e-mail is unknown so both
	// failure paths cost one hash.
	DummyHash string
	Warn      func(string, ...any)
}

type SignInInput struct {
	Email    string
	Password string
	Platform string
	ClientIP string
}

type SignInResult struct {
	Failure SignInFailureKind
	Err     error
	User    *store.User
	Issued  ledger.Issued
}

// RunSignIn checks credentials and issues a session. Unknown e-mail and
// wrong password are indistinguishable to the caller.
func RunSignIn(ctx context.Context, in SignInInput, deps SignInDeps) SignInResult {
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))

	if deps.Throttle != nil {
		if err := deps.Throttle.Check(ctx, email, in.ClientIP); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				return SignInResult{Failure: SignInFailureRateLimited, Err: err}
			}
			return SignInResult{Failure: SignInFailureThrottleUnavailable, Err: err}
		}
	}

	user, err := deps.Users.FindByEmail(ctx, email)
	if err != nil {
		return SignInResult{Failure: SignInFailureStore, Err: err}
	}

	hash := deps.DummyHash
	if user != nil {
		hash = user.PasswordHash
	}
	ok, err := deps.Hasher.Verify(in.Password, hash)
	if user == nil || err != nil || !ok {
		if deps.Throttle != nil {
			if ferr := deps.Throttle.Fail(ctx, email, in.ClientIP); ferr != nil && !errors.Is(ferr, rate.ErrRateLimited) {
				deps.Warn("sign-in throttle increment failed", "error", ferr)
			}
		}
		if user != nil && err != nil {
			deps.Warn("stored password hash unusable", "user_id", user.ID, "error", err)
		}
		if err == nil {
			err = errors.New("invalid credentials")
		}
		return SignInResult{Failure: SignInFailureInvalidCredentials, Err: err}
	}

	if user.Locked {
		return SignInResult{Failure: SignInFailureAccountLocked, Err: errors.New("account locked"), User: user}
	}

	if deps.Throttle != nil {
		if err := deps.Throttle.Reset(ctx, email); err != nil {
			deps.Warn("sign-in throttle reset failed", "error", err)
		}
	}

	if needs, err := deps.Hasher.NeedsRehash(user.PasswordHash); err == nil && needs {
		if upgraded, err := deps.Hasher.Hash(in.Password); err == nil {
			if err := deps.Users.UpdatePasswordHash(ctx, user.ID, upgraded); err != nil {
				return SignInResult{Failure: SignInFailureStore, Err: err, User: user}
			}
			user.PasswordHash = upgraded
		}
	}

	issued, err := deps.Ledger.Issue(ctx, user.ID, user.Email, in.Platform)
	if err != nil {
		return SignInResult{Failure: SignInFailureIssue, Err: err, User: user}
	}
	return SignInResult{User: user, Issued: issued}
}
