// Package middleware carries HTTP Basic auth helpers for tests that exercise
// protected paths. The sync router itself gates access on username existence
// only; these helpers wrap arbitrary handlers when a test needs credential
// checking in front of them.
package middleware

import (
	"encoding/base64"
	"net/http"
)

// BasicAuthHeader returns the Authorization header value for the credentials.
func BasicAuthHeader(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

// BasicAuthMatches reports whether the request carries exactly the expected
// Basic credentials.
func BasicAuthMatches(r *http.Request, username, password string) bool {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return false
	}
	return auth == BasicAuthHeader(username, password)
}

// RequireBasicAuth wraps next with a Basic auth check. Failed checks get a
// 401 with a WWW-Authenticate challenge and never reach next.
func RequireBasicAuth(next http.Handler, username, password string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !BasicAuthMatches(r, username, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="secret"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
