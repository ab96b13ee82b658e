// Package httpapi implements the HTTP surface (spec.md §6): routing and
// JSON serialization for every endpoint, built on go-chi/chi/v5 the way
// the rest of the retrieval pack (jordigilh-kubernaut and others)
// standardizes on it. Middleware composition (request ID, CORS, rate
// limiting) follows core/pkg/auth's func(http.Handler) http.Handler
// pattern.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ghostrelay/controlplane/internal/auditlog"
	"github.com/ghostrelay/controlplane/internal/cleanup"
	"github.com/ghostrelay/controlplane/internal/cors"
	"github.com/ghostrelay/controlplane/internal/eventlog"
	"github.com/ghostrelay/controlplane/internal/health"
	"github.com/ghostrelay/controlplane/internal/ingest"
	"github.com/ghostrelay/controlplane/internal/processor"
	"github.com/ghostrelay/controlplane/internal/ratelimit"
	"github.com/ghostrelay/controlplane/internal/recovery"
	"github.com/ghostrelay/controlplane/internal/reqvalidate"
	"github.com/ghostrelay/controlplane/internal/requestid"
	"github.com/ghostrelay/controlplane/internal/resourcemon"
	"github.com/ghostrelay/controlplane/internal/workflow"
)

// Server bundles every control-plane component an HTTP handler may need.
// It holds no logic itself beyond dispatch — each handler delegates to
// the component that owns the operation.
type Server struct {
	Ingest      *ingest.Pipeline
	Events      *eventlog.Log
	Audit       *auditlog.Log
	RateLimiter *ratelimit.Limiter
	Validator   *reqvalidate.Registry
	Resources   *resourcemon.Monitor
	Cleanup     *cleanup.Scanner
	Health      *health.Registry
	Aggregator  *health.Aggregator
	Workflows   *workflow.Engine
	Processor   *processor.Processor
	Recovery    *recovery.Handler
	CORS        *cors.Manager
	Metrics     *Metrics

	// GhostURL and PatchesDir feed the GET /health ghost_runner and
	// fs_writable checks (spec.md §6); HTTPClient probes GhostURL with a
	// bounded timeout.
	GhostURL   string
	PatchesDir string
	HTTPClient *http.Client

	DebugMode bool
	Version   string
	Logger    *slog.Logger
	Clock     func() time.Time
}

// NewRouter builds the chi router for every endpoint in spec.md §6.
func NewRouter(s *Server) http.Handler {
	if s.Clock == nil {
		s.Clock = time.Now
	}
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	if s.HTTPClient == nil {
		s.HTTPClient = &http.Client{Timeout: 2 * time.Second}
	}

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	if s.CORS != nil {
		r.Use(s.CORS.Middleware)
	}
	r.Use(s.accessLog)

	r.Post("/webhook", s.rateLimited("webhook", s.handleWebhook))
	r.Post("/api/patches", s.rateLimited("webhook", s.handlePatches))
	r.Post("/api/summaries", s.rateLimited("webhook", s.handleSummaries))

	r.Get("/health", s.handleHealth)

	r.Get("/events", s.handleEventsAll)
	r.Get("/events/summary", s.handleEventsSummary)
	r.Get("/events/patch", s.handleEventsPatch)
	r.Get("/events/slack", s.handleEventsSlack)

	r.Get("/api/resources", s.handleResources)
	r.Get("/api/processes", s.handleProcesses)

	r.Get("/api/processor", s.handleProcessorStats)
	r.Post("/api/processor", s.handleProcessorSubmit)

	r.Get("/api/sequential", s.handleSequentialStats)
	r.Post("/api/sequential", s.handleSequentialSubmit)
	r.Get("/api/sequential/{id}", s.handleSequentialGet)

	r.Get("/api/errors", s.handleErrors)
	r.Get("/api/rate-limits", s.handleRateLimits)
	r.Get("/api/audit", s.handleAudit)
	r.Get("/api/server-fixes", s.handleServerFixes)
	r.Get("/api/error-handler", s.handleErrorHandler)
	r.Get("/api/health-endpoints", s.handleHealthEndpoints)
	r.Get("/api/cors", s.handleCORSHistory)

	r.Post("/api/validation", s.handleValidation)

	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.Clock()
		next.ServeHTTP(w, r)
		s.Logger.Info("request",
			"method", r.Method, "path", r.URL.Path,
			"request_id", requestid.FromContext(r.Context()),
			"duration", s.Clock().Sub(start))
	})
}
