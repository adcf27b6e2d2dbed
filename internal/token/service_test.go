package token

import (
	"testing"
	"time"
)

const (
	testAccessSecret  = "access-secret-0123456789-0123456789"
	testRefreshSecret = "refresh-secret-0123456789-012345678"
)

func newTestService(accessTTL time.Duration) *Service {
	return NewService(testAccessSecret, testRefreshSecret, accessTTL, 30*24*time.Hour)
}

func TestIssueAndVerifyAccess(t *testing.T) {
	svc := newTestService(7 * 24 * time.Hour)

	tok, err := svc.IssueAccess("user-1", "pro")
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}

	claims, err := svc.Verify(tok, Access)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("sub = %q, want user-1", claims.Subject)
	}
	if claims.Tier != "pro" {
		t.Fatalf("tier = %q, want pro", claims.Tier)
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		t.Fatal("missing iat/exp claims")
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != 7*24*time.Hour {
		t.Fatalf("access lifetime = %s, want 168h", got)
	}
}

func TestRefreshTokenCarriesNoTier(t *testing.T) {
	svc := newTestService(time.Hour)

	tok, err := svc.IssueRefresh("user-2")
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}
	claims, err := svc.Verify(tok, Refresh)
	if err != nil {
		t.Fatalf("verify refresh: %v", err)
	}
	if claims.Subject != "user-2" {
		t.Fatalf("sub = %q, want user-2", claims.Subject)
	}
	if claims.Tier != "" {
		t.Fatalf("refresh token must not carry a tier, got %q", claims.Tier)
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	svc := newTestService(-time.Second)

	tok, err := svc.IssueAccess("user-3", "free")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := svc.Verify(tok, Access); err == nil {
		t.Fatal("expired token must not verify")
	}
}

func TestVerifyRejectsCrossSecretUse(t *testing.T) {
	svc := newTestService(time.Hour)

	access, err := svc.IssueAccess("user-4", "basic")
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}
	refresh, err := svc.IssueRefresh("user-4")
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}

	if _, err := svc.Verify(access, Refresh); err == nil {
		t.Fatal("access token must not verify against the refresh secret")
	}
	if _, err := svc.Verify(refresh, Access); err == nil {
		t.Fatal("refresh token must not verify against the access secret")
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	svc := newTestService(time.Hour)

	for _, tok := range []string{"", "not-a-token", "a.b.c", "eyJhbGciOiJub25lIn0..", "x.y"} {
		if _, err := svc.Verify(tok, Access); err == nil {
			t.Fatalf("verify accepted %q", tok)
		}
	}
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	svc := newTestService(time.Hour)
	other := NewService("different-access-secret-0123456789", testRefreshSecret, time.Hour, time.Hour)

	tok, err := other.IssueAccess("user-5", "pro")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := svc.Verify(tok, Access); err == nil {
		t.Fatal("token signed under another secret must not verify")
	}
}
