package googleauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/pixelfort/oauth-server/internal/config"
)

// UserInfo represents Google user information
type UserInfo struct {
	Email         string `json:"email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	VerifiedEmail bool   `json:"verified_email"`
}

// AuthURL generates a Google OAuth authorization URL
func AuthURL(googleConfig config.GoogleConfig, state string) string {
	conf := newOAuth2Config(googleConfig)
	return conf.AuthCodeURL(state)
}

// ExchangeCode exchanges the authorization code for a token
func ExchangeCode(ctx context.Context, googleConfig config.GoogleConfig, code string) (*oauth2.Token, error) {
	conf := newOAuth2Config(googleConfig)
	return conf.Exchange(ctx, code)
}

// FetchUserInfo retrieves the authenticated user's profile from Google
func FetchUserInfo(ctx context.Context, googleConfig config.GoogleConfig, token *oauth2.Token) (UserInfo, error) {
	conf := newOAuth2Config(googleConfig)
	client := conf.Client(ctx, token)

	userInfoURL := "https://www.googleapis.com/oauth2/v2/userinfo"
	if customURL := os.Getenv("GOOGLE_USERINFO_URL"); customURL != "" {
		userInfoURL = customURL
	}

	resp, err := client.Get(userInfoURL)
	if err != nil {
		return UserInfo{}, fmt.Errorf("failed to get user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return UserInfo{}, fmt.Errorf("failed to get user info: status %d", resp.StatusCode)
	}

	var userInfo UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
		return UserInfo{}, fmt.Errorf("failed to decode user info: %w", err)
	}

	return userInfo, nil
}

// newOAuth2Config creates the OAuth2 config from our Config
func newOAuth2Config(googleConfig config.GoogleConfig) oauth2.Config {
	// Use custom OAuth endpoints if provided (for testing)
	endpoint := google.Endpoint
	if authURL := os.Getenv("GOOGLE_OAUTH_AUTH_URL"); authURL != "" {
		endpoint.AuthURL = authURL
	}
	if tokenURL := os.Getenv("GOOGLE_OAUTH_TOKEN_URL"); tokenURL != "" {
		endpoint.TokenURL = tokenURL
	}

	return oauth2.Config{
		ClientID:     googleConfig.ClientID,
		ClientSecret: string(googleConfig.ClientSecret),
		RedirectURL:  googleConfig.RedirectURI,
		Scopes:       []string{"openid", "profile", "email"},
		Endpoint:     endpoint,
	}
}
