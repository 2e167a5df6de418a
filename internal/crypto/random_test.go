package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/bcrypt"
)

func TestGenerateSecureToken(t *testing.T) {
	token, err := GenerateSecureToken()
	assert.NoError(t, err)
	assert.NotEmpty(t, token)

	// Each call generates a unique token
	token2, err := GenerateSecureToken()
	assert.NoError(t, err)
	assert.NotEqual(t, token, token2)

	// base64 encoding of 32 bytes should be at least 40 chars
	assert.GreaterOrEqual(t, len(token), 40)
}

func TestHashSecret(t *testing.T) {
	secret := "test-client-secret-12345"

	hashed, err := HashSecret(secret)
	assert.NoError(t, err)
	assert.NotEmpty(t, hashed)
	assert.NotEqual(t, []byte(secret), hashed)

	assert.True(t, CompareSecret(hashed, secret))
	assert.False(t, CompareSecret(hashed, "wrong-password"))

	// Same secret produces different hashes due to salt
	hashed2, err := HashSecret(secret)
	assert.NoError(t, err)
	assert.NotEqual(t, hashed, hashed2)

	err = bcrypt.CompareHashAndPassword(hashed2, []byte(secret))
	assert.NoError(t, err)
}

func TestSignData(t *testing.T) {
	key := []byte("test-signing-key-0123456789abcdef")

	sig := SignData("payload", key)
	assert.True(t, ValidateSignedData("payload", sig, key))
	assert.False(t, ValidateSignedData("other payload", sig, key))
	assert.False(t, ValidateSignedData("payload", sig, []byte("another-key")))
	assert.False(t, ValidateSignedData("payload", "not base64 !!!", key))
}
