package auth

import (
	"errors"
	"testing"
	"time"
)

var secret = []byte("secret123")

func TestGenerateAndValidate(t *testing.T) {
	tok, err := GenerateSessionToken(secret, "u1", "agent-a", "s1", 5*time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := ValidateToken(secret, tok, "agent-a")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != "u1" || claims.AgentID != "agent-a" || claims.SessionID != "s1" {
		t.Fatalf("claims mismatch: %+v", claims)
	}
}

func TestWrongSecretRejected(t *testing.T) {
	tok, _ := GenerateSessionToken(secret, "u1", "agent-a", "", 5*time.Minute)
	if _, err := ValidateToken([]byte("other"), tok, "agent-a"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
}

func TestExpiredRejected(t *testing.T) {
	tok, _ := GenerateSessionToken(secret, "u1", "agent-a", "", -time.Minute)
	if _, err := ValidateToken(secret, tok, "agent-a"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token for expired, got %v", err)
	}
}

func TestAgentMismatchRejected(t *testing.T) {
	tok, _ := GenerateSessionToken(secret, "u1", "agent-a", "", 5*time.Minute)
	if _, err := ValidateToken(secret, tok, "agent-b"); !errors.Is(err, ErrAgentMismatch) {
		t.Fatalf("expected agent mismatch, got %v", err)
	}
}

func TestGarbageRejected(t *testing.T) {
	if _, err := ValidateToken(secret, "not-a-token", ""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
}
