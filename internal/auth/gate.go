// Package auth implements the credential checks gating the two OAuth
// endpoints: resource-owner authentication for /authorize and client
// authentication for /token. The two variants are a closed set behind the
// Authenticator interface; neither ever partially authenticates.
package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/pixelfort/oauth-server/internal/cookie"
	"github.com/pixelfort/oauth-server/internal/crypto"
	"github.com/pixelfort/oauth-server/internal/storage"
)

// ErrUnauthorized is returned for absent or invalid credentials
var ErrUnauthorized = errors.New("unauthorized")

// ErrStoreUnavailable is returned when the credential check failed because
// the backing store did, not because the credentials were wrong. Callers map
// it to a retryable protocol error.
var ErrStoreUnavailable = errors.New("credential store unavailable")

// Principal is an authenticated party: exactly one of User or Client is set.
type Principal struct {
	User   *storage.User
	Client *storage.Client
}

// Authenticator resolves request credentials into a principal or rejects.
type Authenticator interface {
	Authenticate(r *http.Request) (Principal, error)
}

// SessionClaims is the payload of a signed session cookie
type SessionClaims struct {
	UserID string `json:"sub"`
	Email  string `json:"email"`
}

// UserAuthenticator authenticates resource owners, accepting either a signed
// session cookie (browser flows) or Basic credentials.
type UserAuthenticator struct {
	store    storage.Storage
	sessions crypto.TokenSigner
}

var _ Authenticator = (*UserAuthenticator)(nil)

func NewUserAuthenticator(store storage.Storage, signingKey []byte, sessionTTL time.Duration) *UserAuthenticator {
	return &UserAuthenticator{
		store:    store,
		sessions: crypto.NewTokenSigner(signingKey, sessionTTL),
	}
}

func (a *UserAuthenticator) Authenticate(r *http.Request) (Principal, error) {
	if value, err := cookie.GetSession(r); err == nil && value != "" {
		var claims SessionClaims
		if err := a.sessions.Verify(value, &claims); err == nil {
			user, err := a.store.GetUser(r.Context(), claims.UserID)
			if err == nil {
				return Principal{User: user}, nil
			}
			if !errors.Is(err, storage.ErrUserNotFound) {
				return Principal{}, ErrStoreUnavailable
			}
		}
		// Fall through to Basic credentials on a stale or garbled cookie
	}

	email, password, ok := r.BasicAuth()
	if !ok {
		return Principal{}, ErrUnauthorized
	}

	user, err := a.Login(r.Context(), email, password)
	if err != nil {
		return Principal{}, err
	}
	return Principal{User: user}, nil
}

// Login checks an email/password pair against the user store.
func (a *UserAuthenticator) Login(ctx context.Context, email, password string) (*storage.User, error) {
	user, err := a.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, ErrStoreUnavailable
	}
	// Federated users have no local password
	if len(user.Password) == 0 || !crypto.CompareSecret(user.Password, password) {
		return nil, ErrUnauthorized
	}
	return user, nil
}

// IssueSession creates a signed session cookie value for the user.
func (a *UserAuthenticator) IssueSession(user *storage.User) (string, error) {
	return a.sessions.Sign(SessionClaims{UserID: user.ID, Email: user.Email})
}

// ClientAuthenticator authenticates OAuth clients from Basic credentials or
// form-body client_id/client_secret, the two schemes token endpoints
// conventionally accept.
type ClientAuthenticator struct {
	store storage.Storage
}

var _ Authenticator = (*ClientAuthenticator)(nil)

func NewClientAuthenticator(store storage.Storage) *ClientAuthenticator {
	return &ClientAuthenticator{store: store}
}

func (a *ClientAuthenticator) Authenticate(r *http.Request) (Principal, error) {
	clientID, clientSecret, ok := r.BasicAuth()
	if !ok {
		clientID = r.PostFormValue("client_id")
		clientSecret = r.PostFormValue("client_secret")
	}
	if clientID == "" {
		return Principal{}, ErrUnauthorized
	}

	client, err := a.store.GetClient(r.Context(), clientID)
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			return Principal{}, ErrUnauthorized
		}
		return Principal{}, ErrStoreUnavailable
	}

	if len(client.Secret) == 0 || !crypto.CompareSecret(client.Secret, clientSecret) {
		return Principal{}, ErrUnauthorized
	}
	return Principal{Client: client}, nil
}
