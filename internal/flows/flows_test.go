package flows

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrEthical07/sessionguard/internal/limiters"
	"github.com/MrEthical07/sessionguard/jwt"
	"github.com/MrEthical07/sessionguard/store"
	"github.com/MrEthical07/sessionguard/store/sqlstore"
)

type fixture struct {
	store *sqlstore.Store
	codec *jwt.Codec
	now   time.Time
	deps  SelfServiceDeps
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	s, err := sqlstore.Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "flows.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	f := &fixture{store: s, now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
	f.codec, err = jwt.NewCodec(jwt.Config{
		Kinds: map[jwt.Kind]jwt.KindConfig{
			jwt.KindAccess:  {Secret: []byte("access-secret-access-secret-0001"), TTL: 15 * time.Minute},
			jwt.KindRefresh: {Secret: []byte("refresh-secret-refresh-secret-01"), TTL: 24 * time.Hour},
			jwt.KindReset:   {Secret: []byte("reset-secret-reset-secret-000001"), TTL: time.Hour},
			jwt.KindRecover: {Secret: []byte("recover-secret-recover-secret-01"), TTL: time.Hour},
			jwt.KindVerify:  {Secret: []byte("verify-secret-verify-secret-0001"), TTL: time.Hour},
		},
		Issuer: "sessionguard",
		Now:    f.clock,
	})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	f.deps = SelfServiceDeps{
		Codec:        f.codec,
		Users:        s.Users(),
		Requests:     s.Requests(),
		Counts:       s.AttemptCounts(),
		Limiter:      limiters.NewAttemptLimiter(s.AttemptCounts(), limiters.AttemptConfig{MaxAttempts: 5, Cooldown: 24 * time.Hour}, f.clock),
		ReplayWindow: 24 * time.Hour,
		Now:          f.clock,
	}

	if err := s.Users().Create(ctx, store.User{ID: "u1", Email: "a@example.com", PasswordHash: "x"}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return f
}

func (f *fixture) clock() time.Time { return f.now }

var verifySpec = FlowSpec{Kind: store.RequestVerify, TokenKind: jwt.KindVerify, SilentUnknownUser: true}

func TestRunSendSilentForUnknownUser(t *testing.T) {
	f := newFixture(t)
	res := RunSend(context.Background(), verifySpec, SendInput{Email: "ghost@example.com"}, f.deps)
	if res.Failure != SendFailureNone || !res.Silent || res.User != nil || res.Token != "" {
		t.Fatalf("unexpected result: %+v", res)
	}

	strict := verifySpec
	strict.SilentUnknownUser = false
	res = RunSend(context.Background(), strict, SendInput{UserID: "ghost"}, f.deps)
	if res.Failure != SendFailureUserNotFound {
		t.Fatalf("expected SendFailureUserNotFound, got %+v", res)
	}
}

func TestRunSendUpsertsInPlace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := RunSend(ctx, verifySpec, SendInput{Email: "A@example.com"}, f.deps)
	second := RunSend(ctx, verifySpec, SendInput{UserID: "u1"}, f.deps)
	if first.Failure != SendFailureNone || second.Failure != SendFailureNone {
		t.Fatalf("sends failed: %v / %v", first.Err, second.Err)
	}
	if first.Request.ID != second.Request.ID {
		t.Fatal("second send must overwrite the request in place")
	}
	if first.Request.JTI == second.Request.JTI {
		t.Fatal("second send must rotate the jti")
	}
	if second.Attempt.Count != 2 {
		t.Fatalf("attempt = %d, want 2", second.Attempt.Count)
	}
}

func TestRunConfirmClassification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if res := RunConfirm(ctx, verifySpec, "garbage", f.deps); res.Failure != ConfirmFailureDecode {
		t.Fatalf("expected decode failure, got %+v", res)
	}

	first := RunSend(ctx, verifySpec, SendInput{UserID: "u1"}, f.deps)
	second := RunSend(ctx, verifySpec, SendInput{UserID: "u1"}, f.deps)

	if res := RunConfirm(ctx, verifySpec, first.Token, f.deps); res.Failure != ConfirmFailureMismatch {
		t.Fatalf("superseded token: expected mismatch, got %+v", res)
	}

	recoverSpec := FlowSpec{Kind: store.RequestRecover, TokenKind: jwt.KindRecover}
	if res := RunConfirm(ctx, recoverSpec, second.Token, f.deps); res.Failure != ConfirmFailureNotFound {
		t.Fatalf("wrong flow: expected not found, got %+v", res)
	}

	if res := RunConfirm(ctx, verifySpec, second.Token, f.deps); res.Failure != ConfirmFailureNone {
		t.Fatalf("confirm: %+v", res)
	}
	live, err := f.store.Requests().FindByUser(ctx, store.RequestVerify, "u1", false)
	if err != nil || live != nil {
		t.Fatalf("confirmed request must be soft-deleted: %+v %v", live, err)
	}
}

func TestRunConfirmAttemptCountMissing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sent := RunSend(ctx, verifySpec, SendInput{UserID: "u1"}, f.deps)
	if sent.Failure != SendFailureNone {
		t.Fatalf("send: %v", sent.Err)
	}
	if err := f.store.Requests().SoftDelete(ctx, sent.Request.ID, f.now); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if _, err := f.store.DB().ExecContext(ctx, `DELETE FROM attempt_counts WHERE request_id = ?`, sent.Request.ID); err != nil {
		t.Fatalf("delete count: %v", err)
	}

	if res := RunConfirm(ctx, verifySpec, sent.Token, f.deps); res.Failure != ConfirmFailureAttemptCountMissing {
		t.Fatalf("expected attempt count missing, got %+v", res)
	}
}

func TestFailureCommits(t *testing.T) {
	for _, k := range []RefreshFailureKind{RefreshFailureReuse, RefreshFailureExpired, RefreshFailureAccountLocked} {
		if !k.Commits() {
			t.Errorf("refresh failure %d must commit", k)
		}
	}
	for _, k := range []RefreshFailureKind{RefreshFailureDecode, RefreshFailureInvalid, RefreshFailureStore, RefreshFailureIssue} {
		if k.Commits() {
			t.Errorf("refresh failure %d must roll back", k)
		}
	}
	if !ConfirmFailureReplay.Commits() || ConfirmFailureMismatch.Commits() || ConfirmFailureExpired.Commits() {
		t.Error("only replay escalation commits on confirm")
	}
}
