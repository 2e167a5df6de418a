package oauth

import (
	"encoding/json"
	"net/http"

	"github.com/pixelfort/oauth-server/internal/log"
)

// CodeClaims is the payload embedded in a signed authorization code. The
// (client, user) binding is fixed at issuance; expiry lives in the token
// envelope.
type CodeClaims struct {
	ClientID string `json:"cid"`
	UserID   string `json:"sub"`
}

// AccessTokenClaims is the payload embedded in a signed access token
type AccessTokenClaims struct {
	ClientID string `json:"cid"`
	UserID   string `json:"sub"`
}

type TokenPair struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

func WriteTokenResponse(w http.ResponseWriter, pair *TokenPair) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	if err := json.NewEncoder(w).Encode(pair); err != nil {
		log.LogError("Failed to encode token response: %v", err)
	}
}
