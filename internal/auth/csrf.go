package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/JPdumas08/WebDev1.2-sub001/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const DefaultCSRFTokenTTL = time.Hour

// CSRFClaims binds an anti-forgery token to one session and its current nonce
type CSRFClaims struct {
	Nonce string `json:"nonce"`
	jwt.RegisteredClaims
}

// CSRFTokenManager issues and verifies stateless anti-forgery tokens.
// Tokens are HS256 JWTs whose subject is the session ID; rotating the
// session (login or logout) invalidates every token issued before it.
type CSRFTokenManager struct {
	secret   []byte
	tokenTTL time.Duration
	now      func() time.Time
}

func NewCSRFTokenManager(secret string, tokenTTL time.Duration) *CSRFTokenManager {
	if tokenTTL <= 0 {
		tokenTTL = DefaultCSRFTokenTTL
	}

	return &CSRFTokenManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		now:      time.Now,
	}
}

// SetClock replaces the time source (for testing)
func (m *CSRFTokenManager) SetClock(now func() time.Time) {
	m.now = now
}

// GenerateToken creates a token for the given session
func (m *CSRFTokenManager) GenerateToken(session *models.SessionRecord) (string, error) {
	if session == nil || session.ID == "" || session.CSRFNonce == "" {
		return "", errors.New("session cannot carry an anti-forgery token")
	}

	now := m.now()
	claims := &CSRFClaims{
		Nonce: session.CSRFNonce,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   session.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenTTL)),
		},
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign anti-forgery token: %w", err)
	}

	return tokenString, nil
}

// Verify reports whether token was issued for session and is still current
func (m *CSRFTokenManager) Verify(token string, session *models.SessionRecord) bool {
	if token == "" || session == nil || session.ID == "" || session.CSRFNonce == "" {
		return false
	}

	claims := &CSRFClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (interface{}, error) {
			return m.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithSubject(session.ID),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !parsed.Valid {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(claims.Nonce), []byte(session.CSRFNonce)) == 1
}
