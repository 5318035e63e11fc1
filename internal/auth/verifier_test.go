package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"quizzr-service/internal/domain"
)

func TestHMACVerifier(t *testing.T) {
	v, err := NewHMACVerifier("s3cret", "")
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	token := sign(t, jwt.SigningMethodHS256, []byte("s3cret"), jwt.RegisteredClaims{
		Subject:   "user_1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	userID, err := v.Verify("Bearer " + token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if userID != "user_1" {
		t.Fatalf("expected user_1, got %s", userID)
	}

	forged := sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.RegisteredClaims{Subject: "user_1"})
	if _, err := v.Verify(forged); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for wrong secret, got %v", err)
	}
}

func TestHMACVerifierRejectsExpiredAndEmpty(t *testing.T) {
	v, _ := NewHMACVerifier("s3cret", "")

	expired := sign(t, jwt.SigningMethodHS256, []byte("s3cret"), jwt.RegisteredClaims{
		Subject:   "user_1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	})
	if _, err := v.Verify(expired); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for expired token, got %v", err)
	}
	if _, err := v.Verify(""); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for empty token, got %v", err)
	}
	noSub := sign(t, jwt.SigningMethodHS256, []byte("s3cret"), jwt.RegisteredClaims{})
	if _, err := v.Verify(noSub); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized without subject, got %v", err)
	}
	if _, err := NewHMACVerifier("", ""); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}

func TestRSAVerifierFromFile(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "jwt.pem")
	if err := os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), 0o600); err != nil {
		t.Fatalf("write pem: %v", err)
	}

	v, err := LoadRSAVerifier(path, "https://clerk.example.dev")
	if err != nil {
		t.Fatalf("load verifier: %v", err)
	}

	token := sign(t, jwt.SigningMethodRS256, key, jwt.RegisteredClaims{
		Subject: "user_rsa",
		Issuer:  "https://clerk.example.dev",
	})
	userID, err := v.Verify(token)
	if err != nil || userID != "user_rsa" {
		t.Fatalf("expected user_rsa, got %q err=%v", userID, err)
	}

	wrongIssuer := sign(t, jwt.SigningMethodRS256, key, jwt.RegisteredClaims{Subject: "user_rsa", Issuer: "someone-else"})
	if _, err := v.Verify(wrongIssuer); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for wrong issuer, got %v", err)
	}

	// An HS256 token must not pass an RS256 verifier.
	hs := sign(t, jwt.SigningMethodHS256, []byte("s3cret"), jwt.RegisteredClaims{Subject: "user_rsa", Issuer: "https://clerk.example.dev"})
	if _, err := v.Verify(hs); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for alg mismatch, got %v", err)
	}
}

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}
