// Package authn verifies externally issued player tokens and extracts
// the stable player_id they bind to. Credential issuance, registration,
// and password storage live with the external issuer: this package
// never creates an identity, only checks one the issuer already
// vouched for.
package authn

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrMalformedToken    = errors.New("malformed token")
	ErrSignatureMismatch = errors.New("token signature mismatch")
	ErrTokenExpired      = errors.New("token expired")
)

// Claims is the payload an issuer signs. ExpiresAtUnix of 0 means no
// expiry (useful for tests/local dev; issuers are expected to always
// set one in production).
type Claims struct {
	PlayerID      string `json:"player_id"`
	ExpiresAtUnix int64  `json:"exp,omitempty"`
}

// Verifier checks a token's signature and returns the player_id it
// binds to.
type Verifier interface {
	Verify(token string) (Claims, error)
}

// splitToken parses the compact "<payload>.<signature>" form, both
// base64url-encoded, and returns the raw payload bytes (still JSON,
// unparsed) plus the raw signature bytes.
func splitToken(token string) (payload []byte, signature []byte, err error) {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return nil, nil, ErrMalformedToken
	}
	payload, err = base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: payload: %v", ErrMalformedToken, err)
	}
	signature, err = base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: signature: %v", ErrMalformedToken, err)
	}
	return payload, signature, nil
}

func decodeClaims(payload []byte) (Claims, error) {
	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return Claims{}, fmt.Errorf("%w: claims: %v", ErrMalformedToken, err)
	}
	if claims.PlayerID == "" {
		return Claims{}, fmt.Errorf("%w: empty player_id", ErrMalformedToken)
	}
	if claims.ExpiresAtUnix != 0 && time.Now().Unix() > claims.ExpiresAtUnix {
		return Claims{}, ErrTokenExpired
	}
	return claims, nil
}

// Ed25519Verifier checks tokens signed with an issuer's ed25519 private
// key against its published public key.
type Ed25519Verifier struct {
	PublicKey ed25519.PublicKey
}

func (v Ed25519Verifier) Verify(token string) (Claims, error) {
	payload, signature, err := splitToken(token)
	if err != nil {
		return Claims{}, err
	}
	// ed25519.Verify panics on a wrong-size key; a misconfigured key
	// must reject tokens, not crash the process.
	if len(v.PublicKey) != ed25519.PublicKeySize {
		return Claims{}, ErrSignatureMismatch
	}
	if !ed25519.Verify(v.PublicKey, payload, signature) {
		return Claims{}, ErrSignatureMismatch
	}
	return decodeClaims(payload)
}

// HMACVerifier checks tokens signed with a shared-secret HMAC-SHA256,
// the symmetric alternative for issuers that don't hold an asymmetric
// keypair.
type HMACVerifier struct {
	Key []byte
}

func (v HMACVerifier) Verify(token string) (Claims, error) {
	payload, signature, err := splitToken(token)
	if err != nil {
		return Claims{}, err
	}
	mac := hmac.New(sha256.New, v.Key)
	mac.Write(payload)
	expected := mac.Sum(nil)
	if subtle.ConstantTimeCompare(expected, signature) != 1 {
		return Claims{}, ErrSignatureMismatch
	}
	return decodeClaims(payload)
}
