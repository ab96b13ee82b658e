// Package cors implements a named-policy CORS manager: a configurable
// policy evaluated per (origin, method, headers) triple, with a bounded
// decision history for observability. The HTTP wiring follows
// core/pkg/auth.CORSMiddleware's header-setting shape; the policy engine
// and history are new, since the teacher's CORS middleware is stateless.
package cors

import (
	"net/http"
	"strings"
	"sync"
	"time"
)

// Policy selects how origins are evaluated.
type Policy string

const (
	PolicyAllowAll   Policy = "allow_all"
	PolicyRestricted Policy = "restricted"
	PolicyWhitelist  Policy = "whitelist"
	PolicyBlacklist  Policy = "blacklist"
)

// Config configures the CORS Manager.
type Config struct {
	Policy           Policy
	AllowedOrigins   map[string]struct{}
	AllowedMethods   map[string]struct{}
	AllowedHeaders   map[string]struct{}
	ExposeHeaders    []string
	MaxAgeSeconds    int
	AllowCredentials bool
}

// DefaultConfig returns a permissive development configuration.
func DefaultConfig() Config {
	return Config{
		Policy:         PolicyAllowAll,
		AllowedOrigins: map[string]struct{}{},
		AllowedMethods: setOf("GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"),
		AllowedHeaders: setOf("Authorization", "Content-Type", "X-Request-ID"),
		ExposeHeaders:  []string{"Retry-After", "X-Request-ID"},
		MaxAgeSeconds:  86400,
	}
}

func setOf(vals ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		m[v] = struct{}{}
	}
	return m
}

// Decision is the outcome of evaluating one request triple.
type Decision struct {
	Origin    string
	Method    string
	Allowed   bool
	Headers   map[string]string
	Timestamp time.Time
}

const historyWindow = 24 * time.Hour

// Manager evaluates CORS decisions and retains a 24h bounded history.
type Manager struct {
	mu      sync.Mutex
	cfg     Config
	history []Decision
	clock   func() time.Time
}

// New creates a CORS Manager with the given config.
func New(cfg Config) *Manager {
	if cfg.AllowedMethods == nil {
		cfg.AllowedMethods = setOf("GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS")
	}
	if cfg.AllowedHeaders == nil {
		cfg.AllowedHeaders = setOf("Authorization", "Content-Type", "X-Request-ID")
	}
	return &Manager{cfg: cfg, clock: time.Now}
}

// Decide evaluates an (origin, method, headers) triple against the
// configured policy and returns either the header set to apply or an empty
// map.
func (m *Manager) Decide(origin, method string, headers []string) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := m.evaluate(origin, method, headers)

	d := Decision{
		Origin:    origin,
		Method:    method,
		Allowed:   allowed,
		Timestamp: m.clock(),
	}
	if allowed {
		d.Headers = m.headersFor(origin)
	} else {
		d.Headers = map[string]string{}
	}

	m.history = append(m.history, d)
	m.pruneLocked()

	return d
}

func (m *Manager) evaluate(origin, method string, headers []string) bool {
	switch m.cfg.Policy {
	case PolicyAllowAll:
		return true
	case PolicyBlacklist:
		_, blocked := m.cfg.AllowedOrigins[origin]
		return !blocked
	case PolicyWhitelist, PolicyRestricted:
		if _, ok := m.cfg.AllowedOrigins[origin]; !ok {
			return false
		}
		if _, ok := m.cfg.AllowedMethods[method]; !ok {
			return false
		}
		for _, h := range headers {
			if _, ok := m.cfg.AllowedHeaders[canonicalHeader(h)]; !ok {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func canonicalHeader(h string) string {
	return http.CanonicalHeaderKey(strings.TrimSpace(h))
}

func (m *Manager) headersFor(origin string) map[string]string {
	methods := joinKeys(m.cfg.AllowedMethods)
	allowedHeaders := joinKeys(m.cfg.AllowedHeaders)

	h := map[string]string{
		"Access-Control-Allow-Origin":  origin,
		"Access-Control-Allow-Methods": methods,
		"Access-Control-Allow-Headers": allowedHeaders,
	}
	if len(m.cfg.ExposeHeaders) > 0 {
		h["Access-Control-Expose-Headers"] = strings.Join(m.cfg.ExposeHeaders, ", ")
	}
	if m.cfg.MaxAgeSeconds > 0 {
		h["Access-Control-Max-Age"] = itoa(m.cfg.MaxAgeSeconds)
	}
	if m.cfg.AllowCredentials {
		h["Access-Control-Allow-Credentials"] = "true"
	}
	return h
}

func joinKeys(m map[string]struct{}) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return strings.Join(keys, ", ")
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// pruneLocked drops history entries older than the 24h window. Caller must
// hold m.mu.
func (m *Manager) pruneLocked() {
	cutoff := m.clock().Add(-historyWindow)
	i := 0
	for i < len(m.history) && m.history[i].Timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		m.history = append([]Decision(nil), m.history[i:]...)
	}
}

// History returns a snapshot of the retained decisions.
func (m *Manager) History() []Decision {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Decision, len(m.history))
	copy(out, m.history)
	return out
}

// Middleware adapts the Manager into a chi-compatible http.Handler wrapper,
// following the header-writing shape of core/pkg/auth.CORSMiddleware.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}

		var reqHeaders []string
		if h := r.Header.Get("Access-Control-Request-Headers"); h != "" {
			reqHeaders = strings.Split(h, ",")
		}
		method := r.Method
		if r.Method == http.MethodOptions {
			if rm := r.Header.Get("Access-Control-Request-Method"); rm != "" {
				method = rm
			}
		}

		decision := m.Decide(origin, method, reqHeaders)
		for k, v := range decision.Headers {
			w.Header().Set(k, v)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
