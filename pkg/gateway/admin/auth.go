package admin

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/middleware"
)

// RequirePassword gates every /admin/* route behind the shared
// ADMIN_PASSWORD (§4.7), checked by a constant-time comparison so response
// timing can't be used to brute-force the password character by character.
//
// Grounded on the teacher's pkg/security/auth APIKeyMiddleware (single
// shared-secret Validate, header extraction with scheme stripping); that
// package's map-based multi-key lookup has no use here since the gateway
// has exactly one admin secret, so the comparison is inlined rather than
// carrying the whole APIKeyValidator abstraction.
func RequirePassword(password string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !validPassword(r, password) {
				middleware.WriteError(w, http.StatusUnauthorized, "invalid admin credentials")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func validPassword(r *http.Request, password string) bool {
	supplied := bearerToken(r)
	if supplied == "" {
		if c, err := r.Cookie("admin_password"); err == nil {
			supplied = c.Value
		}
	}
	if supplied == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(password)) == 1
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if strings.HasPrefix(h, prefix) {
		return strings.TrimPrefix(h, prefix)
	}
	return h
}
