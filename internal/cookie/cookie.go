package cookie

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pixelfort/oauth-server/internal/log"
)

// SessionCookie carries the signed resource-owner session
const SessionCookie = "oauth_session"

// isDev checks if we're running in development mode where cookies may be
// sent over plain HTTP
func isDev() bool {
	env := strings.ToLower(os.Getenv("OAUTH_SERVER_ENV"))
	return env == "development" || env == "dev"
}

// SetSession sets a session cookie with appropriate security settings
func SetSession(w http.ResponseWriter, value string, maxAge time.Duration) {
	secure := !isDev()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(maxAge.Seconds()),
	})

	log.LogDebugWithFields("cookie", "Session cookie set", map[string]any{
		"maxAge":   maxAge.String(),
		"secure":   secure,
		"sameSite": "Lax",
	})
}

// ClearSession removes the session cookie
func ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:   SessionCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	log.LogDebugWithFields("cookie", "Session cookie cleared", nil)
}

// GetSession retrieves the session cookie value
func GetSession(r *http.Request) (string, error) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return "", err
	}
	return cookie.Value, nil
}
