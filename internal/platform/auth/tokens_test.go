package auth

import (
	"testing"
	"time"
)

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer := NewTokenIssuer(testSigningKey, "sgpd", time.Hour)
	fixed := time.Now().Truncate(time.Second)
	issuer.now = func() time.Time { return fixed }

	tokenStr, exp, err := issuer.Issue(Principal{UserID: 15, Role: RolePatient})
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	if !exp.Equal(fixed.Add(time.Hour)) {
		t.Errorf("expected expiry %s, got %s", fixed.Add(time.Hour), exp)
	}

	p, err := ParseToken(tokenStr, JWTConfig{SigningKey: testSigningKey, Issuer: "sgpd"})
	if err != nil {
		t.Fatalf("ParseToken() error: %v", err)
	}
	if p.UserID != 15 || p.Role != RolePatient {
		t.Errorf("unexpected principal: %+v", p)
	}

	if _, err := ParseToken(tokenStr, JWTConfig{SigningKey: testSigningKey, Issuer: "other"}); err == nil {
		t.Error("expected issuer mismatch to be rejected")
	}
}
