package auth

import (
	"testing"
	"time"
)

func TestSessionIssuerRoundTripsThroughValidator(t *testing.T) {
	clockNow := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return clockNow }
	issuer, err := NewSessionIssuer(SessionIssuerConfig{
		SigningSecret: []byte("super-secret"),
		Issuer:        "linkshelf-identity",
		TTL:           15 * time.Minute,
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	token, expiresAt, err := issuer.Issue("user_321")
	if err != nil {
		t.Fatalf("unexpected error issuing token: %v", err)
	}
	if !expiresAt.Equal(clockNow.Add(15 * time.Minute)) {
		t.Fatalf("unexpected expiry %s", expiresAt)
	}

	validator, err := NewSessionValidator(SessionValidatorConfig{
		SigningSecret: []byte("super-secret"),
		Issuer:        "linkshelf-identity",
		CookieName:    "__session",
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("unexpected validator error: %v", err)
	}
	claims, err := validator.ValidateToken(token)
	if err != nil {
		t.Fatalf("expected validation success: %v", err)
	}
	if claims.Subject != "user_321" || claims.ProfileID() != "321" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestNewSessionIssuerRequiresSecretAndIssuer(t *testing.T) {
	if _, err := NewSessionIssuer(SessionIssuerConfig{Issuer: "linkshelf-identity"}); err == nil {
		t.Fatalf("expected constructor error for missing secret")
	}
	if _, err := NewSessionIssuer(SessionIssuerConfig{SigningSecret: []byte("secret"), Issuer: " "}); err == nil {
		t.Fatalf("expected constructor error for missing issuer")
	}
}

func TestSessionIssuerRequiresSubject(t *testing.T) {
	issuer, err := NewSessionIssuer(SessionIssuerConfig{SigningSecret: []byte("secret"), Issuer: "linkshelf-identity"})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	if _, _, err := issuer.Issue("  "); err == nil {
		t.Fatalf("expected error for blank subject")
	}
}
