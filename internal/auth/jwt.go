// Package auth issues and validates the bearer credentials presented once
// at channel open. Authentication is never renegotiated on a live channel.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrAgentMismatch = errors.New("token not issued for this agent")
)

// Claims binds a token to a (user, agent) pair. SessionID is set when the
// token also carries resumable session identity.
type Claims struct {
	UserID    string `json:"user_id"`
	AgentID   string `json:"agent_id"`
	SessionID string `json:"session_id,omitempty"`
	jwt.RegisteredClaims
}

// GenerateSessionToken mints a bearer token for one (user, agent) pair.
func GenerateSessionToken(secret []byte, userID, agentID, sessionID string, ttl time.Duration) (string, error) {
	claims := &Claims{
		UserID:    userID,
		AgentID:   agentID,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ValidateToken parses and verifies a bearer token. When agentID is
// non-empty the token must have been issued for that agent.
func ValidateToken(secret []byte, tokenString, agentID string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return secret, nil
	})
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if agentID != "" && claims.AgentID != agentID {
		return nil, ErrAgentMismatch
	}
	return claims, nil
}
