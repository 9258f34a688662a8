package secret

import (
	"strings"
	"testing"
)

func TestSealOpenRoundTrip(t *testing.T) {
	k, err := NewKeeper("test-key")
	if err != nil {
		t.Fatal(err)
	}
	for _, pt := range []string{"AKIAEXAMPLE", "s", strings.Repeat("x", 4096)} {
		tok, err := k.Seal(pt)
		if err != nil {
			t.Fatalf("seal: %v", err)
		}
		if tok == pt {
			t.Fatalf("token equals plaintext")
		}
		got, err := k.Open(tok)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		if got != pt {
			t.Fatalf("round trip mismatch")
		}
	}
}

func TestSealEmpty(t *testing.T) {
	k, _ := NewKeeper("test-key")
	tok, err := k.Seal("")
	if err != nil || tok != "" {
		t.Fatalf("empty plaintext should seal to empty token")
	}
	pt, err := k.Open("")
	if err != nil || pt != "" {
		t.Fatalf("empty token should open to empty plaintext")
	}
}

func TestOpenWrongKey(t *testing.T) {
	k1, _ := NewKeeper("key-one")
	k2, _ := NewKeeper("key-two")
	tok, err := k1.Seal("secret")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := k2.Open(tok); err == nil {
		t.Fatalf("expected open to fail with a different key")
	}
}

func TestOpenMalformed(t *testing.T) {
	k, _ := NewKeeper("test-key")
	if _, err := k.Open("!!not-base64!!"); err == nil {
		t.Fatalf("expected error on malformed token")
	}
	if _, err := k.Open("c2hvcnQ"); err == nil {
		t.Fatalf("expected error on too-short token")
	}
}

func TestPackageLevelRequiresInit(t *testing.T) {
	defaultKeeper = nil
	if _, err := Seal("x"); err != ErrNotInitialized {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if err := Init("test-key"); err != nil {
		t.Fatal(err)
	}
	tok, err := Seal("x")
	if err != nil {
		t.Fatal(err)
	}
	if got, err := Open(tok); err != nil || got != "x" {
		t.Fatalf("package-level round trip failed: %v", err)
	}
}
