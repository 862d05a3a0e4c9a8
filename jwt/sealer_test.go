package jwt

import (
	"bytes"
	"errors"
	"testing"
)

func TestSealerRoundTrip(t *testing.T) {
	s, err := NewSealer(true, bytes.Repeat([]byte{7}, 32))
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}

	sealed, err := s.Seal("header.payload.signature")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if sealed == "header.payload.signature" {
		t.Fatal("sealed token must differ from plaintext")
	}
	opened, err := s.Open(sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if opened != "header.payload.signature" {
		t.Fatalf("opened = %q", opened)
	}
}

func TestSealerRejectsTamperingAndForeignKeys(t *testing.T) {
	s, _ := NewSealer(true, bytes.Repeat([]byte{7}, 32))
	other, _ := NewSealer(true, bytes.Repeat([]byte{9}, 32))

	sealed, err := s.Seal("token")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	for name, input := range map[string]string{
		"empty":       "",
		"not base64":  "***",
		"short":       "AAAA",
		"plain token": "header.payload.signature",
	} {
		if _, err := s.Open(input); !errors.Is(err, ErrSealedTokenInvalid) {
			t.Fatalf("%s: expected ErrSealedTokenInvalid, got %v", name, err)
		}
	}
	if _, err := other.Open(sealed); !errors.Is(err, ErrSealedTokenInvalid) {
		t.Fatalf("expected foreign key to fail, got %v", err)
	}
}

func TestDisabledSealerIsIdentity(t *testing.T) {
	s, err := NewSealer(false, nil)
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}
	sealed, _ := s.Seal("token")
	if sealed != "token" {
		t.Fatalf("sealed = %q", sealed)
	}
	opened, err := s.Open("token")
	if err != nil || opened != "token" {
		t.Fatalf("open = %q, %v", opened, err)
	}
	if _, err := s.Open(""); !errors.Is(err, ErrSealedTokenInvalid) {
		t.Fatalf("expected empty token to fail, got %v", err)
	}
}

func TestNewSealerKeyLength(t *testing.T) {
	if _, err := NewSealer(true, []byte("short")); err == nil {
		t.Fatal("expected short key to fail")
	}
}
