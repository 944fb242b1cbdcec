package gate

import (
	"net/http"
	"strings"
)

// TokenFromRequest extracts the caller's token from the token or
// access_token query parameter, or from a Bearer Authorization header.
func TokenFromRequest(r *http.Request) string {
	q := r.URL.Query()
	if t := strings.TrimSpace(q.Get("token")); t != "" {
		return t
	}
	if t := strings.TrimSpace(q.Get("access_token")); t != "" {
		return t
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
