package googleauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/pixelfort/oauth-server/internal/config"
)

func testGoogleConfig() config.GoogleConfig {
	return config.GoogleConfig{
		ClientID:     "test-client-id.apps.googleusercontent.com",
		ClientSecret: "test-client-secret",
		RedirectURI:  "http://localhost:8080/login/google/callback",
	}
}

func TestAuthURL(t *testing.T) {
	t.Setenv("GOOGLE_OAUTH_AUTH_URL", "http://fake-google.test/auth")

	rawURL := AuthURL(testGoogleConfig(), "signed-state-value")
	u, err := url.Parse(rawURL)
	require.NoError(t, err)

	assert.Equal(t, "fake-google.test", u.Host)
	q := u.Query()
	assert.Equal(t, "test-client-id.apps.googleusercontent.com", q.Get("client_id"))
	assert.Equal(t, "signed-state-value", q.Get("state"))
	assert.Equal(t, "http://localhost:8080/login/google/callback", q.Get("redirect_uri"))
	assert.Contains(t, q.Get("scope"), "email")
}

func TestExchangeCode(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.FormValue("grant_type"))
		assert.Equal(t, "google-code", r.FormValue("code"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "google-access-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	defer tokenServer.Close()
	t.Setenv("GOOGLE_OAUTH_TOKEN_URL", tokenServer.URL)

	token, err := ExchangeCode(context.Background(), testGoogleConfig(), "google-code")
	require.NoError(t, err)
	assert.Equal(t, "google-access-token", token.AccessToken)
}

func TestFetchUserInfo(t *testing.T) {
	userInfoServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Authorization"), "google-access-token")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(UserInfo{
			Email:         "federated@example.com",
			Name:          "Federated User",
			VerifiedEmail: true,
		})
	}))
	defer userInfoServer.Close()
	t.Setenv("GOOGLE_USERINFO_URL", userInfoServer.URL)

	token := &oauth2.Token{AccessToken: "google-access-token", TokenType: "Bearer"}
	info, err := FetchUserInfo(context.Background(), testGoogleConfig(), token)
	require.NoError(t, err)
	assert.Equal(t, "federated@example.com", info.Email)
	assert.True(t, info.VerifiedEmail)
}

func TestFetchUserInfoErrorStatus(t *testing.T) {
	userInfoServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer userInfoServer.Close()
	t.Setenv("GOOGLE_USERINFO_URL", userInfoServer.URL)

	token := &oauth2.Token{AccessToken: "google-access-token", TokenType: "Bearer"}
	_, err := FetchUserInfo(context.Background(), testGoogleConfig(), token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
