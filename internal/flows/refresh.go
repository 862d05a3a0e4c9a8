package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/sessionguard/internal/ledger"
	"github.com/MrEthical07/sessionguard/jwt"
	"github.com/MrEthical07/sessionguard/store"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureDecode
	RefreshFailureReuse
	RefreshFailureExpired
	RefreshFailureInvalid
	RefreshFailureAccountLocked
	RefreshFailureStore
	RefreshFailureIssue
)

// Commits reports whether the work done before this failure must be
// committed: reuse revocation, the lock it may set, and the deletion of an
// expired or locked-out record all outlive the failing call.
func (k RefreshFailureKind) Commits() bool {
	switch k {
	case RefreshFailureReuse, RefreshFailureExpired, RefreshFailureAccountLocked:
		return true
	default:
		return false
	}
}

// RefreshResult carries either the issued pair or failure metadata.
type RefreshResult struct {
	Failure RefreshFailureKind
	Err     error
	UserID  string
	JTI     string
	User    *store.User
	// Revoked counts records removed by reuse escalation.
	Revoked int64
	// LockedNow is true when reuse escalation locked the account.
	LockedNow bool
	Issued    ledger.Issued
}

type RefreshUsers interface {
	FindByID(ctx context.Context, id string) (*store.User, error)
	SetLocked(ctx context.Context, id string, locked bool) error
}

// RefreshDeps captures refresh flow dependencies. The token passed to
// RunRefresh has already had its transport layer removed.
type RefreshDeps struct {
	Codec    TokenCodec
	Ledger   RefreshLedger
	Users    RefreshUsers
	Platform string
}

// RunRefresh rotates a refresh token. It must run inside one transaction; see
// RefreshFailureKind.Commits for which failures keep their side effects.
func RunRefresh(ctx context.Context, token string, deps RefreshDeps) RefreshResult {
	claims, err := deps.Codec.Decode(token)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureDecode, Err: err}
	}
	userID, jti := claims.UserID(), claims.ID

	rec, err := deps.Ledger.GetByJTI(ctx, jti)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureStore, Err: err, UserID: userID, JTI: jti}
	}
	if rec == nil {
		// Absence is trustworthy without a signature check: jti values are
		// random and only ever leave the system inside a signed token.
		return escalateReuse(ctx, userID, jti, deps)
	}

	_, verr := deps.Ledger.Verify(token, rec)
	switch {
	case verr == nil:
	case errors.Is(verr, jwt.ErrTokenExpired):
		if _, err := deps.Ledger.Consume(ctx, rec.JTI); err != nil {
			return RefreshResult{Failure: RefreshFailureStore, Err: err, UserID: rec.UserID, JTI: jti}
		}
		return RefreshResult{Failure: RefreshFailureExpired, Err: verr, UserID: rec.UserID, JTI: jti}
	default:
		return RefreshResult{Failure: RefreshFailureInvalid, Err: verr, UserID: rec.UserID, JTI: jti}
	}

	user, err := deps.Users.FindByID(ctx, rec.UserID)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureStore, Err: err, UserID: rec.UserID, JTI: jti}
	}
	if user == nil {
		return RefreshResult{Failure: RefreshFailureInvalid, Err: errors.New("refresh record owner missing"), UserID: rec.UserID, JTI: jti}
	}
	if user.Locked {
		if _, err := deps.Ledger.Consume(ctx, rec.JTI); err != nil {
			return RefreshResult{Failure: RefreshFailureStore, Err: err, UserID: user.ID, JTI: jti}
		}
		return RefreshResult{Failure: RefreshFailureAccountLocked, UserID: user.ID, JTI: jti, User: user}
	}

	consumed, err := deps.Ledger.Consume(ctx, rec.JTI)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureStore, Err: err, UserID: user.ID, JTI: jti}
	}
	if !consumed {
		// A concurrent rotation won the delete.
		return escalateReuse(ctx, user.ID, jti, deps)
	}

	issued, err := deps.Ledger.Issue(ctx, user.ID, user.Email, deps.Platform)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssue, Err: err, UserID: user.ID, JTI: jti, User: user}
	}

	return RefreshResult{
		Failure: RefreshFailureNone,
		UserID:  user.ID,
		JTI:     jti,
		User:    user,
		Issued:  issued,
	}
}

func escalateReuse(ctx context.Context, userID, jti string, deps RefreshDeps) RefreshResult {
	res := RefreshResult{Failure: RefreshFailureReuse, UserID: userID, JTI: jti}

	revoked, err := deps.Ledger.RevokeAll(ctx, userID)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureStore, Err: err, UserID: userID, JTI: jti}
	}
	res.Revoked = revoked

	user, err := deps.Users.FindByID(ctx, userID)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureStore, Err: err, UserID: userID, JTI: jti}
	}
	res.User = user
	if user != nil && user.StrictMode && !user.Locked {
		if err := deps.Users.SetLocked(ctx, user.ID, true); err != nil {
			return RefreshResult{Failure: RefreshFailureStore, Err: err, UserID: userID, JTI: jti}
		}
		res.LockedNow = true
	}
	return res
}
