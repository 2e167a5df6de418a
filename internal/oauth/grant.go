package oauth

import (
	"context"
	"errors"
	"time"

	"github.com/pixelfort/oauth-server/internal/crypto"
	"github.com/pixelfort/oauth-server/internal/log"
	"github.com/pixelfort/oauth-server/internal/storage"
)

// Default token lifetimes. Authorization codes are a short-lived handoff
// between the authorize redirect and the token exchange; access tokens live
// long enough for a resource session.
const (
	DefaultCodeTTL  = 10 * time.Minute
	DefaultTokenTTL = time.Hour
)

// ConsentFunc decides whether the resource owner approves issuing a code to
// the client. The default approves every authenticated request.
type ConsentFunc func(ctx context.Context, client *storage.Client, userID string) bool

// GrantService implements the authorization code grant: it issues codes bound
// to a (client, user) pair and exchanges them for access tokens. Codes and
// tokens are self-contained signed payloads; nothing is persisted, so issued
// tokens cannot be revoked and codes are not single-use.
type GrantService struct {
	store       storage.Storage
	codeSigner  crypto.TokenSigner
	tokenSigner crypto.TokenSigner
	tokenTTL    time.Duration
	consent     ConsentFunc
}

// NewGrantService creates a grant service. The signing key is shared between
// code and token signers; only the TTLs differ.
func NewGrantService(store storage.Storage, signingKey []byte, codeTTL, tokenTTL time.Duration) *GrantService {
	if codeTTL <= 0 {
		codeTTL = DefaultCodeTTL
	}
	if tokenTTL <= 0 {
		tokenTTL = DefaultTokenTTL
	}
	return &GrantService{
		store:       store,
		codeSigner:  crypto.NewTokenSigner(signingKey, codeTTL),
		tokenSigner: crypto.NewTokenSigner(signingKey, tokenTTL),
		tokenTTL:    tokenTTL,
		consent: func(context.Context, *storage.Client, string) bool {
			return true
		},
	}
}

// SetConsent replaces the default auto-approve consent policy.
func (g *GrantService) SetConsent(fn ConsentFunc) {
	g.consent = fn
}

// SetNow overrides the clock on both signers (for testing).
func (g *GrantService) SetNow(fn func() time.Time) {
	g.codeSigner.SetNow(fn)
	g.tokenSigner.SetNow(fn)
}

// ValidateAuthorizeRequest resolves the client and checks that redirectURI is
// one of its registered targets. The redirect URI check happens before any
// code is issued; a mismatch is a hard failure, never a fallback to a
// registered URI.
func (g *GrantService) ValidateAuthorizeRequest(ctx context.Context, clientID, redirectURI string) (*storage.Client, *OAuthError) {
	if clientID == "" {
		return nil, NewOAuthError(ErrInvalidRequest, "client_id is required")
	}
	if redirectURI == "" {
		return nil, NewOAuthError(ErrInvalidRequest, "redirect_uri is required")
	}

	client, err := g.store.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			return nil, NewOAuthError(ErrInvalidClient, "unknown client")
		}
		log.LogErrorWithFields("oauth", "Client lookup failed", map[string]any{
			"client_id": clientID,
			"error":     err.Error(),
		})
		return nil, NewOAuthError(ErrTemporarilyUnavailable, "client directory unavailable")
	}

	if !client.AllowsRedirect(redirectURI) {
		return nil, NewOAuthError(ErrInvalidRedirectURI, "redirect_uri is not registered for this client")
	}

	return client, nil
}

// Authorize validates the request and issues an authorization code bound to
// the (client, user) pair. The caller has already authenticated the resource
// owner.
func (g *GrantService) Authorize(ctx context.Context, clientID, redirectURI, userID string) (string, *OAuthError) {
	client, oerr := g.ValidateAuthorizeRequest(ctx, clientID, redirectURI)
	if oerr != nil {
		return "", oerr
	}

	if !g.consent(ctx, client, userID) {
		return "", NewOAuthError(ErrAccessDenied, "resource owner denied the request")
	}

	code, err := g.codeSigner.Sign(CodeClaims{ClientID: client.ID, UserID: userID})
	if err != nil {
		log.LogError("Failed to sign authorization code: %v", err)
		return "", NewOAuthError(ErrServerError, "could not issue authorization code")
	}

	log.LogInfoWithFields("oauth", "Authorization code issued", map[string]any{
		"client_id": client.ID,
		"user_id":   userID,
	})
	return code, nil
}

// Exchange consumes an authorization code on behalf of an authenticated
// client and issues an access token with the same (client, user) binding.
// Expired, tampered, and garbled codes all map to invalid_grant, as does a
// code issued to a different client.
func (g *GrantService) Exchange(ctx context.Context, client *storage.Client, code string) (*TokenPair, *OAuthError) {
	var claims CodeClaims
	if err := g.codeSigner.Verify(code, &claims); err != nil {
		switch {
		case errors.Is(err, crypto.ErrTokenExpired):
			return nil, NewOAuthError(ErrInvalidGrant, "authorization code expired")
		default:
			return nil, NewOAuthError(ErrInvalidGrant, "invalid authorization code")
		}
	}

	if claims.ClientID != client.ID {
		log.LogWarnWithFields("oauth", "Authorization code redeemed by wrong client", map[string]any{
			"issued_to":   claims.ClientID,
			"redeemed_by": client.ID,
		})
		return nil, NewOAuthError(ErrInvalidGrant, "authorization code was issued to another client")
	}

	token, err := g.tokenSigner.Sign(AccessTokenClaims{ClientID: client.ID, UserID: claims.UserID})
	if err != nil {
		log.LogError("Failed to sign access token: %v", err)
		return nil, NewOAuthError(ErrServerError, "could not issue access token")
	}

	log.LogInfoWithFields("oauth", "Access token issued", map[string]any{
		"client_id": client.ID,
		"user_id":   claims.UserID,
	})
	return &TokenPair{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(g.tokenTTL.Seconds()),
	}, nil
}

// VerifyAccessToken decodes and validates an access token.
func (g *GrantService) VerifyAccessToken(token string) (*AccessTokenClaims, error) {
	var claims AccessTokenClaims
	if err := g.tokenSigner.Verify(token, &claims); err != nil {
		return nil, err
	}
	return &claims, nil
}
