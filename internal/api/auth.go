package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrAuthDisabled is returned by Validate when the server was
// started with no JWT secret configured; callers treat this as "allow
// all requests" rather than as a validation failure.
var ErrAuthDisabled = errors.New("api: auth disabled, no jwt secret configured")

// ErrInvalidToken is returned for any malformed, expired or
// wrong-signature bearer token.
var ErrInvalidToken = errors.New("api: invalid token")

// tokenClaims is the claim set issued and accepted by this server.
type tokenClaims struct {
	Subject string `json:"sub"`
	jwt.RegisteredClaims
}

// jwtService signs and validates bearer tokens with a single HMAC
// secret, mirroring the teacher's single-tenant JWT service.
type jwtService struct {
	secret []byte
	expiry time.Duration
}

func newJWTService(secret string, expiry time.Duration) *jwtService {
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &jwtService{secret: []byte(secret), expiry: expiry}
}

func (s *jwtService) enabled() bool {
	return len(s.secret) > 0
}

// Generate issues a signed token for subject (an API client or user id).
func (s *jwtService) Generate(subject string) (string, error) {
	if !s.enabled() {
		return "", ErrAuthDisabled
	}
	now := time.Now().UTC()
	claims := tokenClaims{
		Subject: subject,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("api: sign token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies token, returning its subject.
func (s *jwtService) Validate(token string) (string, error) {
	if !s.enabled() {
		return "", ErrAuthDisabled
	}
	parsed, err := jwt.ParseWithClaims(token, &tokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
