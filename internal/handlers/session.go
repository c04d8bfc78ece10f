package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/sessions"
)

const (
	// SessionCookieName is the cookie that carries the session token.
	SessionCookieName = "timesheet-session"

	sessionTokenKey   = "session_token"
	sessionTokenParam = "session_token"
)

// NewCookieStore creates the store used for the session cookie.
func NewCookieStore(secret []byte, secure bool) *sessions.CookieStore {
	store := sessions.NewCookieStore(secret)
	store.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// sessionToken finds the session token on a request. The query parameter
// wins, then the Authorization header, then the cookie.
func sessionToken(r *http.Request, store sessions.Store) string {
	if token := strings.TrimSpace(r.URL.Query().Get(sessionTokenParam)); token != "" {
		return token
	}

	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok && strings.TrimSpace(token) != "" {
			return strings.TrimSpace(token)
		}
	}

	if store == nil {
		return ""
	}
	sess, err := store.Get(r, SessionCookieName)
	if err != nil {
		return ""
	}
	token, _ := sess.Values[sessionTokenKey].(string)
	return token
}

// saveSessionToken stores token in the session cookie for ttl.
func saveSessionToken(w http.ResponseWriter, r *http.Request, store sessions.Store, token string, ttl time.Duration) error {
	sess, err := store.Get(r, SessionCookieName)
	if err != nil && sess == nil {
		return err
	}
	sess.Options.MaxAge = int(ttl.Seconds())
	sess.Values[sessionTokenKey] = token
	return sess.Save(r, w)
}
