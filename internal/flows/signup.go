package flows

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/sessionguard/internal"
	"github.com/MrEthical07/sessionguard/internal/ledger"
	"github.com/MrEthical07/sessionguard/store"
)

// SignUpFailureKind classifies sign-up failures for root-level mapping.
type SignUpFailureKind int

const (
	SignUpFailureNone SignUpFailureKind = iota
	SignUpFailureInvalidInput
	SignUpFailureExists
	SignUpFailurePassword
	SignUpFailureStore
	SignUpFailureIssue
)

type SignUpDeps struct {
	Users  store.Users
	Ledger RefreshLedger
	Hasher PasswordHasher
	Now    func() time.Time
	NewID  func() string
}

type SignUpInput struct {
	Email      string
	Password   string
	Platform   string
	StrictMode bool
}

type SignUpResult struct {
	Failure SignUpFailureKind
	Err     error
	User    *store.User
	Issued  ledger.Issued
}

// RunSignUp creates an unverified user and issues its first session.
func RunSignUp(ctx context.Context, in SignUpInput, deps SignUpDeps) SignUpResult {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = internal.NewID
	}

	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || !strings.Contains(email, "@") {
		return SignUpResult{Failure: SignUpFailureInvalidInput, Err: errors.New("invalid email")}
	}

	existing, err := deps.Users.FindByEmail(ctx, email)
	if err != nil {
		return SignUpResult{Failure: SignUpFailureStore, Err: err}
	}
	if existing != nil {
		return SignUpResult{Failure: SignUpFailureExists, Err: errors.New("account exists")}
	}

	hash, err := deps.Hasher.Hash(in.Password)
	if err != nil {
		return SignUpResult{Failure: SignUpFailurePassword, Err: err}
	}

	now := deps.Now()
	user := store.User{
		ID:           deps.NewID(),
		Email:        email,
		PasswordHash: hash,
		StrictMode:   in.StrictMode,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := deps.Users.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return SignUpResult{Failure: SignUpFailureExists, Err: err}
		}
		return SignUpResult{Failure: SignUpFailureStore, Err: err}
	}

	issued, err := deps.Ledger.Issue(ctx, user.ID, user.Email, in.Platform)
	if err != nil {
		return SignUpResult{Failure: SignUpFailureIssue, Err: err, User: &user}
	}
	return SignUpResult{User: &user, Issued: issued}
}
