// Package auth resolves bearer tokens issued by the external identity
// provider into user ids.
package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"quizzr-service/internal/domain"
)

// Verifier checks JWT signatures and returns the subject claim.
type Verifier struct {
	key     any
	methods []string
	issuer  string
}

// NewHMACVerifier accepts HS256 tokens signed with secret.
func NewHMACVerifier(secret, issuer string) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("empty jwt secret")
	}
	return &Verifier{key: []byte(secret), methods: []string{jwt.SigningMethodHS256.Alg()}, issuer: issuer}, nil
}

// NewRSAVerifier accepts RS256 tokens verifiable with the PEM encoded public key.
func NewRSAVerifier(publicKeyPEM []byte, issuer string) (*Verifier, error) {
	key, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return &Verifier{key: key, methods: []string{jwt.SigningMethodRS256.Alg()}, issuer: issuer}, nil
}

// LoadRSAVerifier reads the public key from path.
func LoadRSAVerifier(path, issuer string) (*Verifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	return NewRSAVerifier(data, issuer)
}

// Verify returns the user id carried in the token's sub claim. Any failure
// is reported as domain.ErrUnauthorized.
func (v *Verifier) Verify(token string) (string, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return "", domain.ErrUnauthorized
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods(v.methods)}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", domain.ErrUnauthorized)
	}
	return claims.Subject, nil
}
