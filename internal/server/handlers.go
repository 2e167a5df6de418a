package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/pixelfort/oauth-server/internal/auth"
	"github.com/pixelfort/oauth-server/internal/config"
	"github.com/pixelfort/oauth-server/internal/cookie"
	"github.com/pixelfort/oauth-server/internal/crypto"
	"github.com/pixelfort/oauth-server/internal/googleauth"
	jsonwriter "github.com/pixelfort/oauth-server/internal/json"
	"github.com/pixelfort/oauth-server/internal/log"
	"github.com/pixelfort/oauth-server/internal/oauth"
	"github.com/pixelfort/oauth-server/internal/storage"
)

// AuthHandlers provides the OAuth HTTP handlers with dependency injection
type AuthHandlers struct {
	grants     *oauth.GrantService
	users      *auth.UserAuthenticator
	clients    *auth.ClientAuthenticator
	store      storage.Storage
	google     *config.GoogleConfig
	stateToken crypto.TokenSigner
	sessionTTL time.Duration
}

// googleState is the signed state parameter carried through the Google
// sign-in round trip
type googleState struct {
	Nonce     string `json:"nonce"`
	ReturnURL string `json:"return_url"`
}

// NewAuthHandlers creates new auth handlers with dependency injection
func NewAuthHandlers(
	grants *oauth.GrantService,
	users *auth.UserAuthenticator,
	clients *auth.ClientAuthenticator,
	store storage.Storage,
	cfg config.AuthConfig,
) *AuthHandlers {
	return &AuthHandlers{
		grants:     grants,
		users:      users,
		clients:    clients,
		store:      store,
		google:     cfg.Google,
		stateToken: crypto.NewTokenSigner([]byte(cfg.SigningKey), 10*time.Minute),
		sessionTTL: cfg.SessionTTL,
	}
}

// Routes assembles the HTTP mux for all OAuth endpoints
func (h *AuthHandlers) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /authorize", h.AuthorizeHandler)
	mux.HandleFunc("POST /token", h.TokenHandler)
	mux.HandleFunc("POST /login", h.LoginHandler)
	mux.HandleFunc("GET /logout", h.LogoutHandler)
	mux.Handle("GET /healthz", NewHealthHandler())
	if h.google != nil {
		mux.HandleFunc("GET /login/google", h.GoogleLoginHandler)
		mux.HandleFunc("GET /login/google/callback", h.GoogleCallbackHandler)
	}
	return mux
}

// AuthorizeHandler handles OAuth 2.0 authorization requests. The resource
// owner must be authenticated (session cookie or Basic credentials); on
// approval the client receives a short-lived code on its registered redirect
// URI.
func (h *AuthHandlers) AuthorizeHandler(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client_id")
	redirectURI := r.URL.Query().Get("redirect_uri")
	state := r.URL.Query().Get("state")

	principal, err := h.users.Authenticate(r)
	if err != nil {
		if errors.Is(err, auth.ErrStoreUnavailable) {
			oauth.WriteTokenError(w, http.StatusServiceUnavailable,
				oauth.NewOAuthError(oauth.ErrTemporarilyUnavailable, "user directory unavailable"))
			return
		}
		w.Header().Set("WWW-Authenticate", `Basic realm="oauth-server"`)
		jsonwriter.WriteUnauthorized(w, "Resource owner authentication required")
		return
	}
	user := principal.User

	// The redirect URI is only trusted once it passed the registration
	// check; protocol errors before that point are never delivered via
	// redirect.
	if _, oerr := h.grants.ValidateAuthorizeRequest(r.Context(), clientID, redirectURI); oerr != nil {
		log.LogWarnWithFields("server", "Authorize request rejected", map[string]any{
			"client_id": clientID,
			"error":     string(oerr.Code),
		})
		oauth.WriteAuthorizeError(w, r, "", state, oerr)
		return
	}

	code, oerr := h.grants.Authorize(r.Context(), clientID, redirectURI, user.ID)
	if oerr != nil {
		oauth.WriteAuthorizeError(w, r, redirectURI, state, oerr)
		return
	}

	u, err := url.Parse(redirectURI)
	if err != nil {
		// Registered URIs are validated at provisioning time; treat a
		// parse failure here as a server fault.
		log.LogError("Registered redirect URI failed to parse: %v", err)
		oauth.WriteTokenError(w, http.StatusInternalServerError,
			oauth.NewOAuthError(oauth.ErrServerError, "invalid redirect target"))
		return
	}
	q := u.Query()
	q.Set("code", code)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()

	http.Redirect(w, r, u.String(), http.StatusFound)
}

// TokenHandler handles OAuth 2.0 token requests: it authenticates the client
// and exchanges an authorization code for an access token.
func (h *AuthHandlers) TokenHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		oauth.WriteTokenError(w, http.StatusBadRequest,
			oauth.NewOAuthError(oauth.ErrInvalidRequest, "malformed request body"))
		return
	}

	if grantType := r.PostFormValue("grant_type"); grantType != "authorization_code" {
		oauth.WriteTokenError(w, http.StatusBadRequest,
			oauth.NewOAuthError(oauth.ErrUnsupportedGrantType, "only authorization_code is supported"))
		return
	}

	principal, err := h.clients.Authenticate(r)
	if err != nil {
		if errors.Is(err, auth.ErrStoreUnavailable) {
			oauth.WriteTokenError(w, http.StatusServiceUnavailable,
				oauth.NewOAuthError(oauth.ErrTemporarilyUnavailable, "client directory unavailable"))
			return
		}
		w.Header().Set("WWW-Authenticate", `Basic realm="oauth-server"`)
		oauth.WriteTokenError(w, http.StatusUnauthorized,
			oauth.NewOAuthError(oauth.ErrInvalidClient, "client authentication failed"))
		return
	}
	client := principal.Client

	code := r.PostFormValue("code")
	if code == "" {
		oauth.WriteTokenError(w, http.StatusBadRequest,
			oauth.NewOAuthError(oauth.ErrInvalidRequest, "code is required"))
		return
	}

	pair, oerr := h.grants.Exchange(r.Context(), client, code)
	if oerr != nil {
		oauth.WriteTokenError(w, oauth.StatusForCode(oerr.Code), oerr)
		return
	}

	oauth.WriteTokenResponse(w, pair)
}

// loginRequest is the POST /login body
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginHandler authenticates a resource owner with email/password and sets a
// signed session cookie for subsequent authorize requests.
func (h *AuthHandlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonwriter.WriteBadRequest(w, "Invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		jsonwriter.WriteBadRequest(w, "email and password are required")
		return
	}

	user, err := h.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrStoreUnavailable) {
			jsonwriter.WriteServiceUnavailable(w, "User directory unavailable")
			return
		}
		jsonwriter.WriteUnauthorized(w, "Invalid credentials")
		return
	}

	if err := h.setSession(w, user); err != nil {
		jsonwriter.WriteInternalServerError(w, "Failed to create session")
		return
	}

	log.LogInfoWithFields("server", "User logged in", map[string]any{
		"user_id": user.ID,
	})
	_ = jsonwriter.Write(w, map[string]string{"user_id": user.ID})
}

// LogoutHandler clears the session cookie
func (h *AuthHandlers) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	cookie.ClearSession(w)
	w.WriteHeader(http.StatusNoContent)
}

// GoogleLoginHandler starts the Google sign-in round trip for a resource
// owner. The eventual session is the same signed cookie /login issues.
func (h *AuthHandlers) GoogleLoginHandler(w http.ResponseWriter, r *http.Request) {
	returnURL := r.URL.Query().Get("return_to")
	if returnURL == "" {
		returnURL = "/"
	}
	// Only same-site return targets
	if u, err := url.Parse(returnURL); err != nil || u.IsAbs() {
		jsonwriter.WriteBadRequest(w, "Invalid return_to parameter")
		return
	}

	nonce, err := crypto.GenerateSecureToken()
	if err != nil {
		jsonwriter.WriteInternalServerError(w, "Failed to generate state")
		return
	}

	state, err := h.stateToken.Sign(googleState{Nonce: nonce, ReturnURL: returnURL})
	if err != nil {
		log.LogError("Failed to sign Google state: %v", err)
		jsonwriter.WriteInternalServerError(w, "Failed to generate state")
		return
	}

	http.Redirect(w, r, googleauth.AuthURL(*h.google, state), http.StatusFound)
}

// GoogleCallbackHandler completes Google sign-in: verifies state, exchanges
// the Google code, upserts the user, and sets the session cookie.
func (h *AuthHandlers) GoogleCallbackHandler(w http.ResponseWriter, r *http.Request) {
	if errMsg := r.URL.Query().Get("error"); errMsg != "" {
		log.LogError("Google OAuth error: %s - %s", errMsg, r.URL.Query().Get("error_description"))
		jsonwriter.WriteBadRequest(w, "Authentication failed: "+errMsg)
		return
	}

	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if state == "" || code == "" {
		jsonwriter.WriteBadRequest(w, "Invalid callback parameters")
		return
	}

	var st googleState
	if err := h.stateToken.Verify(state, &st); err != nil {
		log.LogError("Invalid Google state: %v", err)
		jsonwriter.WriteBadRequest(w, "Invalid state parameter")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	token, err := googleauth.ExchangeCode(ctx, *h.google, code)
	if err != nil {
		log.LogError("Failed to exchange Google code: %v", err)
		jsonwriter.WriteInternalServerError(w, "Authentication failed")
		return
	}

	userInfo, err := googleauth.FetchUserInfo(ctx, *h.google, token)
	if err != nil {
		log.LogError("Failed to fetch Google user info: %v", err)
		jsonwriter.WriteInternalServerError(w, "Authentication failed")
		return
	}

	user, err := h.store.UpsertUser(ctx, userInfo.Email)
	if err != nil {
		log.LogError("Failed to upsert user %s: %v", userInfo.Email, err)
		jsonwriter.WriteServiceUnavailable(w, "User directory unavailable")
		return
	}

	if err := h.setSession(w, user); err != nil {
		jsonwriter.WriteInternalServerError(w, "Failed to create session")
		return
	}

	log.LogInfoWithFields("server", "Google sign-in completed", map[string]any{
		"user_id": user.ID,
	})
	http.Redirect(w, r, st.ReturnURL, http.StatusFound)
}

func (h *AuthHandlers) setSession(w http.ResponseWriter, user *storage.User) error {
	session, err := h.users.IssueSession(user)
	if err != nil {
		log.LogError("Failed to issue session: %v", err)
		return err
	}
	cookie.SetSession(w, session, h.sessionTTL)
	return nil
}
