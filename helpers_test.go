package sessionguard

import (
	"context"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/sessionguard/store"
	"github.com/MrEthical07/sessionguard/store/sqlstore"
)

const testPassword = "correct-horse-battery"

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type sentMail struct {
	kind   string
	to     string
	link   string
	temp   string
	locked bool
}

type captureMailer struct {
	ch chan sentMail
}

func newCaptureMailer() *captureMailer {
	return &captureMailer{ch: make(chan sentMail, 128)}
}

func (m *captureMailer) SendAccountVerify(_ context.Context, email, link string) error {
	m.ch <- sentMail{kind: "account_verify", to: email, link: link}
	return nil
}

func (m *captureMailer) SendPasswordReset(_ context.Context, email, link string) error {
	m.ch <- sentMail{kind: "password_reset", to: email, link: link}
	return nil
}

func (m *captureMailer) SendPasswordRecover(_ context.Context, email, link, temp string) error {
	m.ch <- sentMail{kind: "password_recover", to: email, link: link, temp: temp}
	return nil
}

func (m *captureMailer) SendReuseAlert(_ context.Context, email string, locked bool) error {
	m.ch <- sentMail{kind: "reuse_alert", to: email, locked: locked}
	return nil
}

// next returns the next mail of kind, discarding mail of other kinds.
func (m *captureMailer) next(t *testing.T, kind string) sentMail {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case got := <-m.ch:
			if got.kind == kind {
				return got
			}
		case <-deadline:
			t.Fatalf("no %s mail delivered", kind)
		}
	}
}

// none fails if a mail of kind arrives within a short wait.
func (m *captureMailer) none(t *testing.T, kind string) {
	t.Helper()
	deadline := time.After(100 * time.Millisecond)
	for {
		select {
		case got := <-m.ch:
			if got.kind == kind {
				t.Fatalf("unexpected %s mail to %s", kind, got.to)
			}
		case <-deadline:
			return
		}
	}
}

func tokenFromLink(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse link %q: %v", link, err)
	}
	token := u.Query().Get("token")
	if token == "" {
		t.Fatalf("link %q carries no token", link)
	}
	return token
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Tokens.Access.Secret = []byte("access-secret-access-secret-0001")
	cfg.Tokens.Refresh.Secret = []byte("refresh-secret-refresh-secret-01")
	cfg.Tokens.Reset.Secret = []byte("reset-secret-reset-secret-000001")
	cfg.Tokens.Recover.Secret = []byte("recover-secret-recover-secret-01")
	cfg.Tokens.Verify.Secret = []byte("verify-secret-verify-secret-0001")
	cfg.Transport = TransportConfig{Enabled: true, Key: []byte("transport-key-transport-key-0001")}
	cfg.Links = LinksConfig{
		AccountVerify:   "https://app.example.com/verify",
		PasswordRecover: "https://app.example.com/recover",
		PasswordReset:   "https://app.example.com/reset",
	}
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Audit.Enabled = false
	return cfg
}

type testEnv struct {
	engine *Engine
	store  *sqlstore.Store
	clock  *testClock
	mail   *captureMailer
}

func newTestEnv(t *testing.T, mutate func(*Config), opts ...func(*Builder)) *testEnv {
	t.Helper()
	ctx := context.Background()

	s, err := sqlstore.Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "sessionguard.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	mailer := newCaptureMailer()

	b := New().
		WithConfig(cfg).
		WithStore(s).
		WithMailer(mailer).
		WithClock(clock.Now)
	for _, opt := range opts {
		opt(b)
	}
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{engine: engine, store: s, clock: clock, mail: mailer}
}

func (env *testEnv) signUp(t *testing.T, email string, strict bool) *MobileResponse {
	t.Helper()
	resp, err := env.engine.SignUp(context.Background(), SignUpInput{
		Email:      email,
		Password:   testPassword,
		Platform:   "mobile",
		StrictMode: strict,
	})
	if err != nil {
		t.Fatalf("sign up %s: %v", email, err)
	}
	return resp.(*MobileResponse)
}

// signUpVerified signs up and confirms the verification mail.
func (env *testEnv) signUpVerified(t *testing.T, email string, strict bool) *store.User {
	t.Helper()
	env.signUp(t, email, strict)
	m := env.mail.next(t, "account_verify")
	if _, err := env.engine.ConfirmAccountVerification(context.Background(), tokenFromLink(t, m.link)); err != nil {
		t.Fatalf("confirm verification: %v", err)
	}
	return env.user(t, email)
}

func (env *testEnv) signIn(t *testing.T, email, pass string) *MobileResponse {
	t.Helper()
	resp, err := env.engine.SignIn(context.Background(), email, pass, "mobile")
	if err != nil {
		t.Fatalf("sign in %s: %v", email, err)
	}
	return resp.(*MobileResponse)
}

func (env *testEnv) user(t *testing.T, email string) *store.User {
	t.Helper()
	u, err := env.store.Users().FindByEmail(context.Background(), email)
	if err != nil || u == nil {
		t.Fatalf("find user %s: %v", email, err)
	}
	return u
}

func (env *testEnv) liveRefreshTokens(t *testing.T, userID string) int {
	t.Helper()
	var n int
	row := env.store.DB().QueryRowContext(context.Background(), `SELECT COUNT(*) FROM refresh_tokens WHERE user_id = ?`, userID)
	if err := row.Scan(&n); err != nil {
		t.Fatalf("count refresh tokens: %v", err)
	}
	return n
}
