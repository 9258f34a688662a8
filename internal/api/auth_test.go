package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSplitSession(t *testing.T) {
	sid, sig := splitSession("abc.def")
	if sid != "abc" || sig != "def" {
		t.Fatalf("got %q %q", sid, sig)
	}
	if sid, sig := splitSession("nodot"); sid != "" || sig != "" {
		t.Fatalf("expected empty parts for unsigned value, got %q %q", sid, sig)
	}
}

func TestSignIsDeterministicPerKey(t *testing.T) {
	SetCookieSecret("key-one")
	a := sign("session")
	if a != sign("session") {
		t.Fatal("same key must produce the same signature")
	}
	SetCookieSecret("key-two")
	if a == sign("session") {
		t.Fatal("different keys must produce different signatures")
	}
	SetCookieSecret("key-one")
}

func TestCurrentUserRejectsBadSignature(t *testing.T) {
	SetCookieSecret("key-one")
	sid := newSessionID()
	sessionMu.Lock()
	sessions[sid] = 1
	sessionMu.Unlock()
	defer func() {
		sessionMu.Lock()
		delete(sessions, sid)
		sessionMu.Unlock()
	}()
	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(&http.Cookie{Name: sessionCookie, Value: sid + ".forged-signature"})
	if u := currentUser(r); u != nil {
		t.Fatal("forged signature must not authenticate")
	}
}
