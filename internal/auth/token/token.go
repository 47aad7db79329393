// Package token issues and validates HS256 access tokens
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const accessTokenType = "access"

var (
	// ErrTokenExpired is returned for a well-formed, correctly signed token past its exp
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenMalformed is returned when the token cannot be parsed at all
	ErrTokenMalformed = errors.New("token malformed")
	// ErrTokenInvalid covers bad signatures, wrong algorithms and missing claims
	ErrTokenInvalid = errors.New("token invalid")
)

// Claims are the claims carried by an access token. Subject is the username.
type Claims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// Generator handles JWT token generation and validation
type Generator struct {
	secret            []byte
	accessTokenExpiry time.Duration
	now               func() time.Time
}

// NewGenerator creates a new token generator
func NewGenerator(secret string, accessExpiry time.Duration) *Generator {
	return &Generator{
		secret:            []byte(secret),
		accessTokenExpiry: accessExpiry,
		now:               time.Now,
	}
}

// WithClock returns a copy of the generator that reads time from now
func (g *Generator) WithClock(now func() time.Time) *Generator {
	c := *g
	c.now = now
	return &c
}

// GenerateAccessToken issues a signed token for subject that expires after the configured window
func (g *Generator) GenerateAccessToken(subject string) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("failed to generate access token: empty subject")
	}

	issuedAt := g.now()
	claims := Claims{
		Type: accessTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(g.accessTokenExpiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(g.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}

	return tokenString, nil
}

// ValidateAccessToken validates an access token and returns its subject.
// The error is one of ErrTokenExpired, ErrTokenMalformed or ErrTokenInvalid.
func (g *Generator) ValidateAccessToken(tokenString string) (string, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(g.now),
	)

	claims := &Claims{}
	_, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return g.secret, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "", ErrTokenMalformed
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", ErrTokenExpired
	default:
		return "", ErrTokenInvalid
	}

	if claims.Type != accessTokenType || claims.Subject == "" {
		return "", ErrTokenInvalid
	}

	return claims.Subject, nil
}
