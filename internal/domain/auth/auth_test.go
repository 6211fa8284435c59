package auth

import (
	"testing"
	"time"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("super-secret")
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}
	if err := CheckPassword(hash, "super-secret"); err != nil {
		t.Fatalf("expected password to match, got %v", err)
	}
	if err := CheckPassword(hash, "wrong"); err == nil {
		t.Fatal("expected mismatch error")
	}
}

func TestGenerateAndParseToken(t *testing.T) {
	secret := "test-secret"
	token, err := GenerateToken(secret, Claims{UserID: "u1", RoleID: "r1", RoleName: RoleDPO, SessionID: "s1"}, time.Hour)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	parsed, err := ParseToken(secret, token)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if parsed.UserID != "u1" || parsed.RoleName != RoleDPO || parsed.SessionID != "s1" {
		t.Fatalf("unexpected claims: %+v", parsed)
	}
	if parsed.Subject != "u1" {
		t.Fatalf("expected subject u1, got %q", parsed.Subject)
	}
}

func TestParseTokenRejectsWrongSecretAndExpiry(t *testing.T) {
	token, err := GenerateToken("one", Claims{UserID: "u1"}, time.Hour)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("two", token); err == nil {
		t.Fatal("expected signature error")
	}

	expired, err := GenerateToken("one", Claims{UserID: "u1"}, -time.Minute)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("one", expired); err == nil {
		t.Fatal("expected expiry error")
	}
}

func TestHashTokenStable(t *testing.T) {
	if HashToken("abc") != HashToken("abc") {
		t.Fatal("expected stable digest")
	}
	if HashToken("abc") == HashToken("abd") {
		t.Fatal("expected distinct digests")
	}
	if len(HashToken("abc")) != 64 {
		t.Fatalf("expected hex sha256, got %d chars", len(HashToken("abc")))
	}
}
