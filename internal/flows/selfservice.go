package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"

	"github.com/MrEthical07/sessionguard/internal"
	"github.com/MrEthical07/sessionguard/internal/limiters"
	"github.com/MrEthical07/sessionguard/jwt"
	"github.com/MrEthical07/sessionguard/store"
)

// ErrPreconditionFailed is returned by FlowSpec.Precondition when the user is
// in the wrong verification state for the flow.
var ErrPreconditionFailed = errors.New("flow precondition failed")

// SendInput identifies the user a send targets and carries flow-specific
// input. Exactly one of Email and UserID is set.
type SendInput struct {
	Email           string
	UserID          string
	CurrentPassword string
	NewPassword     string
}

// Prepared is what FlowSpec.Prepare contributes to the request row and the
// outgoing mail.
type Prepared struct {
	PendingPasswordHash string
	TempPassword        string
}

// FlowSpec parameterises the shared send/confirm state machine.
type FlowSpec struct {
	Kind      store.RequestKind
	TokenKind jwt.Kind
	// SilentUnknownUser makes a send for an unknown user succeed without
	// effect so callers cannot probe for accounts.
	SilentUnknownUser bool
	// RevokeSessions ends every refresh token of the user on confirm.
	RevokeSessions bool

	Precondition func(u *store.User) error
	Prepare      func(ctx context.Context, u *store.User, in SendInput) (Prepared, error)
	Apply        func(ctx context.Context, u *store.User, req *store.Request) error
}

// SelfServiceDeps captures the collaborators of the state machine.
type SelfServiceDeps struct {
	Codec        TokenCodec
	Users        store.Users
	Requests     store.Requests
	Counts       store.AttemptCounts
	Limiter      *limiters.AttemptLimiter
	RevokeAll    func(ctx context.Context, userID string) (int64, error)
	ReplayWindow time.Duration
	Now          func() time.Time
	NewID        func() string
}

func (d *SelfServiceDeps) normalize() {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewID == nil {
		d.NewID = internal.NewID
	}
}

// SendFailureKind classifies send failures for root-level mapping.
type SendFailureKind int

const (
	SendFailureNone SendFailureKind = iota
	SendFailureUserNotFound
	SendFailurePrecondition
	SendFailurePrepare
	SendFailureRateLimited
	SendFailureMint
	SendFailureStore
)

// SendResult carries what the Engine needs to deliver mail after commit.
// Silent results carry no user and no token.
type SendResult struct {
	Failure      SendFailureKind
	Err          error
	Silent       bool
	User         *store.User
	Request      store.Request
	Token        string
	TempPassword string
	Attempt      limiters.Attempt
}

// RunSend issues a fresh flow token for the user, upserting the request row
// in place and registering the attempt.
func RunSend(ctx context.Context, spec FlowSpec, in SendInput, deps SelfServiceDeps) SendResult {
	deps.normalize()

	var (
		user *store.User
		err  error
	)
	if in.UserID != "" {
		user, err = deps.Users.FindByID(ctx, in.UserID)
	} else {
		user, err = deps.Users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(in.Email)))
	}
	if err != nil {
		return SendResult{Failure: SendFailureStore, Err: err}
	}
	if user == nil {
		if spec.SilentUnknownUser {
			return SendResult{Silent: true}
		}
		return SendResult{Failure: SendFailureUserNotFound, Err: errors.New("user not found")}
	}

	if spec.Precondition != nil {
		if err := spec.Precondition(user); err != nil {
			return SendResult{Failure: SendFailurePrecondition, Err: err, User: user}
		}
	}

	jti := deps.NewID()
	token, _, err := deps.Codec.Mint(spec.TokenKind, jwt.Claims{
		Email:            user.Email,
		RegisteredClaims: gjwt.RegisteredClaims{Subject: user.ID, ID: jti},
	})
	if err != nil {
		return SendResult{Failure: SendFailureMint, Err: err, User: user}
	}

	var prepared Prepared
	if spec.Prepare != nil {
		prepared, err = spec.Prepare(ctx, user, in)
		if err != nil {
			return SendResult{Failure: SendFailurePrepare, Err: err, User: user}
		}
	}

	req, err := upsertRequest(ctx, spec.Kind, user.ID, jti, internal.HashToken(token), prepared.PendingPasswordHash, deps)
	if err != nil {
		return SendResult{Failure: SendFailureStore, Err: err, User: user}
	}

	attempt, err := deps.Limiter.Register(ctx, req.ID)
	if err != nil {
		if errors.Is(err, limiters.ErrWaitForAnotherDay) {
			return SendResult{Failure: SendFailureRateLimited, Err: err, User: user, Attempt: attempt}
		}
		return SendResult{Failure: SendFailureStore, Err: err, User: user}
	}

	return SendResult{
		User:         user,
		Request:      req,
		Token:        token,
		TempPassword: prepared.TempPassword,
		Attempt:      attempt,
	}
}

// upsertRequest overwrites the user's request of this kind, reviving it if
// it was soft-deleted, or creates it. Two sends racing for the same user
// both succeed and the later token wins.
func upsertRequest(ctx context.Context, kind store.RequestKind, userID, jti, tokenHash, pending string, deps SelfServiceDeps) (store.Request, error) {
	now := deps.Now()
	req, err := deps.Requests.Upsert(ctx, store.Request{
		ID:                  deps.NewID(),
		Kind:                kind,
		UserID:              userID,
		JTI:                 jti,
		TokenHash:           tokenHash,
		PendingPasswordHash: pending,
		CreatedAt:           now,
		UpdatedAt:           now,
	})
	if err != nil {
		return store.Request{}, err
	}
	return *req, nil
}

// ConfirmFailureKind classifies confirm failures for root-level mapping.
type ConfirmFailureKind int

const (
	ConfirmFailureNone ConfirmFailureKind = iota
	ConfirmFailureDecode
	ConfirmFailureNotFound
	ConfirmFailureAttemptCountMissing
	ConfirmFailureReplay
	ConfirmFailureMismatch
	ConfirmFailureExpired
	ConfirmFailureInvalid
	ConfirmFailureStore
)

// Commits reports whether work done before the failure must be committed.
// Only replay escalation qualifies.
func (k ConfirmFailureKind) Commits() bool {
	return k == ConfirmFailureReplay
}

// ConfirmResult carries the outcome of a confirm.
type ConfirmResult struct {
	Failure ConfirmFailureKind
	Err     error
	User    *store.User
	// AlreadyConfirmed marks a benign duplicate within the replay window.
	AlreadyConfirmed bool
	// LockedNow is true when replay escalation locked the account.
	LockedNow bool
	Revoked   int64
}

// RunConfirm applies the flow's effect for a presented token, or classifies
// why it cannot. The token has already had its transport layer removed.
func RunConfirm(ctx context.Context, spec FlowSpec, token string, deps SelfServiceDeps) ConfirmResult {
	deps.normalize()

	claims, err := deps.Codec.Decode(token)
	if err != nil {
		return ConfirmResult{Failure: ConfirmFailureDecode, Err: err}
	}

	user, err := deps.Users.FindByID(ctx, claims.UserID())
	if err != nil {
		return ConfirmResult{Failure: ConfirmFailureStore, Err: err}
	}
	if user == nil {
		return ConfirmResult{Failure: ConfirmFailureNotFound, Err: errors.New("user not found")}
	}

	req, err := deps.Requests.FindByJTI(ctx, claims.ID, true)
	if err != nil {
		return ConfirmResult{Failure: ConfirmFailureStore, Err: err, User: user}
	}
	if req == nil {
		// A later send overwrote the jti in place: the user still has a live
		// request of this kind, so the presented token is stale, not unknown.
		live, err := deps.Requests.FindByUser(ctx, spec.Kind, user.ID, false)
		if err != nil {
			return ConfirmResult{Failure: ConfirmFailureStore, Err: err, User: user}
		}
		if live != nil {
			return ConfirmResult{Failure: ConfirmFailureMismatch, Err: errors.New("token superseded by a newer request"), User: user}
		}
		return ConfirmResult{Failure: ConfirmFailureNotFound, Err: errors.New("request not found"), User: user}
	}
	if req.Kind != spec.Kind || req.UserID != user.ID {
		return ConfirmResult{Failure: ConfirmFailureNotFound, Err: errors.New("request not found"), User: user}
	}

	if req.Deleted() {
		return confirmReplay(ctx, user, req, deps)
	}

	if !internal.MatchTokenHash(token, req.TokenHash) {
		return ConfirmResult{Failure: ConfirmFailureMismatch, Err: errors.New("token does not match request"), User: user}
	}

	_, err = deps.Codec.Verify(spec.TokenKind, token, &jwt.Expected{
		Subject: req.UserID,
		JTI:     req.JTI,
		Email:   user.Email,
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return ConfirmResult{Failure: ConfirmFailureExpired, Err: err, User: user}
	default:
		return ConfirmResult{Failure: ConfirmFailureInvalid, Err: err, User: user}
	}

	if spec.Apply != nil {
		if err := spec.Apply(ctx, user, req); err != nil {
			return ConfirmResult{Failure: ConfirmFailureStore, Err: err, User: user}
		}
	}

	now := deps.Now()
	if err := deps.Requests.SoftDelete(ctx, req.ID, now); err != nil {
		return ConfirmResult{Failure: ConfirmFailureStore, Err: err, User: user}
	}
	if err := deps.Counts.SoftDelete(ctx, req.ID, now); err != nil {
		return ConfirmResult{Failure: ConfirmFailureStore, Err: err, User: user}
	}

	res := ConfirmResult{User: user}
	if spec.RevokeSessions && deps.RevokeAll != nil {
		revoked, err := deps.RevokeAll(ctx, user.ID)
		if err != nil {
			return ConfirmResult{Failure: ConfirmFailureStore, Err: err, User: user}
		}
		res.Revoked = revoked
	}
	return res
}

func confirmReplay(ctx context.Context, user *store.User, req *store.Request, deps SelfServiceDeps) ConfirmResult {
	count, err := deps.Counts.FindByRequest(ctx, req.ID, true)
	if err != nil {
		return ConfirmResult{Failure: ConfirmFailureStore, Err: err, User: user}
	}
	if count == nil {
		return ConfirmResult{
			Failure: ConfirmFailureAttemptCountMissing,
			Err:     fmt.Errorf("attempt count missing for request %s", req.ID),
			User:    user,
		}
	}

	if deps.Now().Sub(count.LastUpdatedAt) <= deps.ReplayWindow {
		return ConfirmResult{User: user, AlreadyConfirmed: true}
	}

	res := ConfirmResult{Failure: ConfirmFailureReplay, Err: errors.New("confirmed token replayed"), User: user}
	if user.StrictMode && !user.Locked {
		if err := deps.Users.SetLocked(ctx, user.ID, true); err != nil {
			return ConfirmResult{Failure: ConfirmFailureStore, Err: err, User: user}
		}
		res.LockedNow = true
	}
	return res
}
