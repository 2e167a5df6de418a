package crypto

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Verification failure kinds. Callers distinguish an expired token from a
// tampered or garbled one when mapping to protocol errors.
var (
	ErrTokenExpired   = errors.New("token expired")
	ErrBadSignature   = errors.New("invalid token signature")
	ErrMalformedToken = errors.New("malformed token")
)

// TokenSigner provides HMAC-signed JSON tokens with optional expiry
type TokenSigner struct {
	signingKey []byte
	ttl        time.Duration
	now        func() time.Time
}

// NewTokenSigner creates a new token signer
func NewTokenSigner(signingKey []byte, ttl time.Duration) TokenSigner {
	return TokenSigner{
		signingKey: signingKey,
		ttl:        ttl,
		now:        time.Now,
	}
}

// SetNow overrides the time function (for testing).
func (ts *TokenSigner) SetNow(fn func() time.Time) {
	ts.now = fn
}

// TokenData wraps user data with metadata
type TokenData struct {
	Data      json.RawMessage `json:"data"`
	IssuedAt  time.Time       `json:"issued_at"`
	ExpiresAt time.Time       `json:"expires_at,omitempty"`
}

// Sign marshals data to JSON, signs it with HMAC, and returns a base64-encoded token
func (ts *TokenSigner) Sign(v any) (string, error) {
	userData, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal data: %w", err)
	}

	tokenData := TokenData{
		Data:     userData,
		IssuedAt: ts.now(),
	}
	if ts.ttl > 0 {
		tokenData.ExpiresAt = tokenData.IssuedAt.Add(ts.ttl)
	}

	jsonData, err := json.Marshal(tokenData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal token data: %w", err)
	}

	signature := SignData(string(jsonData), ts.signingKey)

	combined := fmt.Sprintf("%s.%s", base64.URLEncoding.EncodeToString(jsonData), signature)
	return combined, nil
}

// Verify validates the signature, checks expiry, and unmarshals the data.
// Returns ErrMalformedToken, ErrBadSignature, or ErrTokenExpired; the checks
// run in that order so a tampered-but-expired token reports the tamper.
func (ts *TokenSigner) Verify(token string, v any) error {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return ErrMalformedToken
	}

	jsonData, err := base64.URLEncoding.DecodeString(parts[0])
	if err != nil {
		return ErrMalformedToken
	}

	signature := parts[1]
	if !ValidateSignedData(string(jsonData), signature, ts.signingKey) {
		return ErrBadSignature
	}

	var tokenData TokenData
	if err := json.Unmarshal(jsonData, &tokenData); err != nil {
		return ErrMalformedToken
	}

	if !tokenData.ExpiresAt.IsZero() && !ts.now().Before(tokenData.ExpiresAt) {
		return ErrTokenExpired
	}

	if err := json.Unmarshal(tokenData.Data, v); err != nil {
		return ErrMalformedToken
	}

	return nil
}
