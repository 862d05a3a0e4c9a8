package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/sessionguard/jwt"
)

type SignOutFailureKind int

const (
	SignOutFailureNone SignOutFailureKind = iota
	SignOutFailureInvalid
	SignOutFailureStore
)

type SignOutResult struct {
	Failure SignOutFailureKind
	Err     error
	UserID  string
	// Consumed is false when the record was already gone.
	Consumed bool
}

// RunSignOut consumes the record behind a refresh token. A token whose
// record no longer exists is not an error. An expired token still signs out.
func RunSignOut(ctx context.Context, token string, codec TokenCodec, ledger RefreshLedger) SignOutResult {
	claims, err := codec.Decode(token)
	if err != nil {
		return SignOutResult{Failure: SignOutFailureInvalid, Err: err}
	}

	rec, err := ledger.GetByJTI(ctx, claims.ID)
	if err != nil {
		return SignOutResult{Failure: SignOutFailureStore, Err: err, UserID: claims.UserID()}
	}
	if rec == nil {
		return SignOutResult{UserID: claims.UserID()}
	}

	if _, err := ledger.Verify(token, rec); err != nil && !errors.Is(err, jwt.ErrTokenExpired) {
		return SignOutResult{Failure: SignOutFailureInvalid, Err: err, UserID: rec.UserID}
	}

	consumed, err := ledger.Consume(ctx, rec.JTI)
	if err != nil {
		return SignOutResult{Failure: SignOutFailureStore, Err: err, UserID: rec.UserID}
	}
	return SignOutResult{UserID: rec.UserID, Consumed: consumed}
}
