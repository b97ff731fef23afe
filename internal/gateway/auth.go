package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/security"
)

// authMiddleware admits requests carrying the configured bearer token or
// basic credentials. Credentials are loaded per request, so a reload
// applies to the next one. Failed attempts draw from the auth rate limit;
// once it is spent every request gets 429 until it refills. audit and
// limiter may be nil.
func authMiddleware(creds *atomic.Pointer[AuthConfig], audit *security.AuditLogger, limiter *security.RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter != nil && limiter.Exhausted(security.KindAuth) {
				emitAuditEvent(audit, security.EventRateLimit, r, security.KindAuth)
				writeError(w, http.StatusTooManyRequests, security.ErrRateLimited)
				return
			}

			scheme, reason := authenticate(creds.Load(), r)
			if reason == "" {
				emitAuditEvent(audit, security.EventAuthSuccess, r, scheme)
				next.ServeHTTP(w, r)
				return
			}

			emitAuditEvent(audit, security.EventAuthFailure, r, reason)
			if limiter != nil {
				_ = limiter.Allow(security.KindAuth)
			}
			w.Header().Set("WWW-Authenticate", `Bearer realm="tavern"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		})
	}
}

// authenticate returns the scheme that admitted r, or why r was refused.
func authenticate(cfg *AuthConfig, r *http.Request) (scheme, reason string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", "missing authorization header"
	}
	if token, ok := strings.CutPrefix(header, "Bearer "); ok && cfg.BearerToken != "" {
		if constantTimeEqual(token, cfg.BearerToken) {
			return "bearer", ""
		}
	}
	if user, pass, ok := r.BasicAuth(); ok && cfg.BasicUser != "" && cfg.BasicPass != "" {
		userOK := constantTimeEqual(user, cfg.BasicUser)
		passOK := constantTimeEqual(pass, cfg.BasicPass)
		if userOK && passOK {
			return "basic", ""
		}
	}
	return "", "invalid credentials"
}

// emitAuditEvent records a request-scoped event when audit is non-nil.
func emitAuditEvent(audit *security.AuditLogger, typ security.EventType, r *http.Request, detail string) {
	if audit == nil {
		return
	}
	audit.Log(security.AuditEvent{
		Type:       typ,
		RequestID:  requestIDFrom(r.Context()),
		RemoteAddr: r.RemoteAddr,
		Detail:     detail,
		Metadata:   map[string]string{"method": r.Method, "path": r.URL.Path},
	})
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
