package utils

import (
	"testing"
	"time"
)

func TestAdminTokenRoundTrip(t *testing.T) {
	token, err := GenerateAdminToken("secret", time.Hour)
	if err != nil {
		t.Fatalf("GenerateAdminToken failed: %v", err)
	}

	claims, err := ValidateAdminToken(token, "secret")
	if err != nil {
		t.Fatalf("ValidateAdminToken failed: %v", err)
	}
	if claims.Subject != "admin" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
}

func TestAdminTokenRejectsWrongSecret(t *testing.T) {
	token, err := GenerateAdminToken("secret", time.Hour)
	if err != nil {
		t.Fatalf("GenerateAdminToken failed: %v", err)
	}

	if _, err := ValidateAdminToken(token, "other-secret"); err == nil {
		t.Fatal("token signed with a different secret should not validate")
	}
}

func TestAdminTokenRejectsExpired(t *testing.T) {
	token, err := GenerateAdminToken("secret", -time.Minute)
	if err != nil {
		t.Fatalf("GenerateAdminToken failed: %v", err)
	}

	if _, err := ValidateAdminToken(token, "secret"); err == nil {
		t.Fatal("expired token should not validate")
	}
}

func TestAdminTokenRejectsGarbage(t *testing.T) {
	if _, err := ValidateAdminToken("not-a-jwt", "secret"); err == nil {
		t.Fatal("garbage input should not validate")
	}
}
