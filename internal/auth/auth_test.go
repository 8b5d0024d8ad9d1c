package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dkeye/Playroom/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

func TestIssueAndVerify(t *testing.T) {
	t.Parallel()

	a := New("s3cret")
	token, err := a.Issue("alice", time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	id, err := a.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id != "alice" {
		t.Fatalf("identity = %q, want alice", id)
	}
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	t.Parallel()

	a := New("s3cret")
	other, err := New("other").Issue("alice", time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := a.Verify(other); domain.CodeOf(err) != domain.CodeUnauthenticated {
		t.Fatalf("foreign signature code = %q, want %q", domain.CodeOf(err), domain.CodeUnauthenticated)
	}

	past := New("s3cret")
	past.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, err := past.Issue("alice", time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := a.Verify(expired); domain.CodeOf(err) != domain.CodeUnauthenticated {
		t.Fatalf("expired code = %q, want %q", domain.CodeOf(err), domain.CodeUnauthenticated)
	}

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"username": "alice"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := a.Verify(none); err == nil {
		t.Fatal("expected unsigned token to be rejected")
	}
}

func TestVerifyFallsBackToSubject(t *testing.T) {
	t.Parallel()

	a := New("s3cret")
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "bob"}).SignedString([]byte("s3cret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	id, err := a.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id != "bob" {
		t.Fatalf("identity = %q, want bob", id)
	}
}

func TestFromRequest(t *testing.T) {
	t.Parallel()

	a := New("s3cret")
	token, err := a.Issue("alice", time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/invite", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	if id, ok, err := a.FromRequest(req); err != nil || !ok || id != "alice" {
		t.Fatalf("bearer = %q, %v, %v, want alice", id, ok, err)
	}

	req = httptest.NewRequest("GET", "/api/ws?token="+token, nil)
	if id, ok, err := a.FromRequest(req); err != nil || !ok || id != "alice" {
		t.Fatalf("query = %q, %v, %v, want alice", id, ok, err)
	}

	req = httptest.NewRequest("GET", "/api/invite", nil)
	req.Header.Set(DevUserHeader, "mallory")
	if _, ok, err := a.FromRequest(req); ok || err != nil {
		t.Fatalf("dev header outside dev mode = %v, %v, want ignored", ok, err)
	}

	req = httptest.NewRequest("GET", "/api/invite", nil)
	req.Header.Set("Authorization", "Basic abc")
	if _, _, err := a.FromRequest(req); domain.CodeOf(err) != domain.CodeUnauthenticated {
		t.Fatalf("basic code = %q, want %q", domain.CodeOf(err), domain.CodeUnauthenticated)
	}
}

func TestDevModeTrustsHeader(t *testing.T) {
	t.Parallel()

	a := New("")
	if !a.DevMode() {
		t.Fatal("expected dev mode")
	}
	req := httptest.NewRequest("GET", "/api/invite", nil)
	req.Header.Set(DevUserHeader, " carol ")
	id, ok, err := a.FromRequest(req)
	if err != nil || !ok || id != "carol" {
		t.Fatalf("dev = %q, %v, %v, want carol", id, ok, err)
	}
	if _, err := a.Issue("carol", time.Minute); err == nil {
		t.Fatal("expected issue to fail without a secret")
	}
}
