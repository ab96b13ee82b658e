package httpapi

import (
	"net"
	"net/http"

	"github.com/ghostrelay/controlplane/internal/apierr"
)

// rateLimited admits the request under ruleName, keyed by the caller's
// remote IP, before invoking next. A rejection writes a 429 carrying
// Retry-After and never reaches next, per spec.md §4.4/§7.
func (s *Server) rateLimited(ruleName string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.RateLimiter == nil {
			next(w, r)
			return
		}

		clientID := clientIP(r)
		allowed, info, err := s.RateLimiter.IsAllowed(r.Context(), clientID, ruleName)
		if err != nil {
			// Unknown rule: admission control isn't configured for this
			// route, so let the request through rather than fail closed.
			next(w, r)
			return
		}
		if s.Metrics != nil {
			s.Metrics.ObserveRateLimit(ruleName, allowed)
		}
		if !allowed {
			retryAfter := int(info.ResetTime.Sub(s.Clock()).Seconds())
			if retryAfter < 0 {
				retryAfter = 0
			}
			apierr.TooManyRequests(w, r, retryAfter)
			return
		}
		next(w, r)
	}
}

func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
