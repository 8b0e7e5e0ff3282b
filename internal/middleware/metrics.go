package middleware

import (
	"crypto/subtle"
	"net/http"
)

// BasicAuth protects an operational endpoint such as /metrics.
type BasicAuth struct {
	realm    string
	username string
	password string
}

// NewBasicAuth creates a BasicAuth for realm.
// If both username and password are empty, authentication is disabled.
func NewBasicAuth(realm, username, password string) *BasicAuth {
	return &BasicAuth{realm: realm, username: username, password: password}
}

// Enabled reports whether credentials are required.
func (a *BasicAuth) Enabled() bool {
	return a.username != "" || a.password != ""
}

// Handler returns middleware that requires basic authentication.
func (a *BasicAuth) Handler(next http.Handler) http.Handler {
	if !a.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || !a.matches(user, pass) {
			w.Header().Set("WWW-Authenticate", `Basic realm="`+a.realm+`"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// matches compares both fields in constant time so neither short-circuits.
func (a *BasicAuth) matches(user, pass string) bool {
	userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(a.username))
	passMatch := subtle.ConstantTimeCompare([]byte(pass), []byte(a.password))
	return userMatch&passMatch == 1
}
