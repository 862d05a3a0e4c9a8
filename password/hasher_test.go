package password

import (
	"errors"
	"strings"
	"testing"
)

func testConfig() Config {
	return Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func newTestHasher(t *testing.T, cfg Config) *Hasher {
	t.Helper()
	h, err := NewHasher(cfg)
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}
	return h
}

func TestHashAndVerify(t *testing.T) {
	h := newTestHasher(t, testConfig())

	hash, err := h.Hash("P@ssw0rd-Ascii")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", hash)
	}

	ok, err := h.Verify("P@ssw0rd-Ascii", hash)
	if err != nil || !ok {
		t.Fatalf("expected verification to succeed: ok=%v err=%v", ok, err)
	}

	ok, err = h.Verify("wrong-password", hash)
	if err != nil || ok {
		t.Fatalf("expected wrong password to fail: ok=%v err=%v", ok, err)
	}
}

func TestHashLengthBounds(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPasswordBytes = 64
	h := newTestHasher(t, cfg)

	if _, err := h.Hash("short"); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}
	if _, err := h.Hash(strings.Repeat("a", 65)); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}
	if _, err := h.Hash(strings.Repeat("b", 64)); err != nil {
		t.Fatalf("expected exactly-max password to be accepted: %v", err)
	}

	hash, _ := h.Hash("valid-password-123")
	if _, err := h.Verify(strings.Repeat("c", 65), hash); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected long password to be rejected by Verify, got %v", err)
	}
}

func TestDefaultLengthsApplied(t *testing.T) {
	h := newTestHasher(t, testConfig())

	if _, err := h.Hash(strings.Repeat("d", DefaultMaxPasswordBytes+1)); err == nil {
		t.Fatalf("expected password > %d bytes to be rejected", DefaultMaxPasswordBytes)
	}
	if _, err := h.Hash(strings.Repeat("e", DefaultMinPasswordBytes-1)); err == nil {
		t.Fatalf("expected password < %d bytes to be rejected", DefaultMinPasswordBytes)
	}
}

func TestNeedsRehash(t *testing.T) {
	weak := newTestHasher(t, testConfig())
	hash, err := weak.Hash("test-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	stronger := testConfig()
	stronger.Time = 2
	needs, err := newTestHasher(t, stronger).NeedsRehash(hash)
	if err != nil || !needs {
		t.Fatalf("expected rehash for weaker parameters: needs=%v err=%v", needs, err)
	}

	needs, err = weak.NeedsRehash(hash)
	if err != nil || needs {
		t.Fatalf("expected no rehash for current parameters: needs=%v err=%v", needs, err)
	}
}

func TestVerifyMalformedHash(t *testing.T) {
	h := newTestHasher(t, testConfig())
	hash, _ := h.Hash("version-test")

	for name, encoded := range map[string]string{
		"garbage":       "not-a-phc-hash",
		"wrong version": strings.Replace(hash, "$v=19$", "$v=18$", 1),
		"bcrypt":        "$2a$10$abcdefghijklmnopqrstuv",
		"dup param":     strings.Replace(hash, "m=8192,t=1,p=1", "m=8192,m=8192,p=1", 1),
	} {
		if _, err := h.Verify("version-test", encoded); !errors.Is(err, ErrMalformedHash) {
			t.Fatalf("%s: expected ErrMalformedHash, got %v", name, err)
		}
	}
}

func TestNewHasherRejectsWeakConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Memory = 1024
	if _, err := NewHasher(cfg); err == nil {
		t.Fatal("expected low memory to be rejected")
	}
	cfg = testConfig()
	cfg.MinPasswordBytes = 20
	cfg.MaxPasswordBytes = 10
	if _, err := NewHasher(cfg); err == nil {
		t.Fatal("expected inverted length bounds to be rejected")
	}
}

func TestGenerate(t *testing.T) {
	a, err := Generate(DefaultTempLength)
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if len(a) != DefaultTempLength {
		t.Fatalf("len = %d", len(a))
	}
	for _, r := range a {
		if !strings.ContainsRune(tempAlphabet, r) {
			t.Fatalf("unexpected rune %q", r)
		}
	}
	b, _ := Generate(DefaultTempLength)
	if a == b {
		t.Fatal("expected two generated passwords to differ")
	}
	if _, err := Generate(0); err == nil {
		t.Fatal("expected zero length to fail")
	}
}
