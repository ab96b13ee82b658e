package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ghostrelay/controlplane/internal/apierr"
	"github.com/ghostrelay/controlplane/internal/cleanup"
	"github.com/ghostrelay/controlplane/internal/eventlog"
	"github.com/ghostrelay/controlplane/internal/ingest"
	"github.com/ghostrelay/controlplane/internal/processor"
	"github.com/ghostrelay/controlplane/internal/reqvalidate"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		apierr.BadRequest(w, r, "request body must be valid JSON: "+err.Error())
		return false
	}
	return true
}

// handleWebhook implements POST /webhook (spec.md §4.1). A chat-platform
// signature header delegates to the out-of-scope chat collaborator; when
// DebugMode is set that delegation is skipped so local testing can post
// plain patch descriptors directly.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if !s.DebugMode && r.Header.Get("X-Slack-Signature") != "" {
		apierr.Write(w, r, http.StatusNotImplemented, "Not Implemented",
			"chat-platform signature delegation is an external collaborator, out of scope for this service")
		return
	}

	var raw map[string]any
	if !decodeJSON(w, r, &raw) {
		return
	}

	result, err := s.Ingest.ProcessPatch(r.Context(), raw)
	if err != nil {
		var verr *ingest.ErrValidation
		if errors.As(err, &verr) {
			apierr.BadRequest(w, r, err.Error())
		} else {
			apierr.Internal(w, r, "patch_ingest", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "result": result})
}

// handlePatches implements POST /api/patches: identical to handleWebhook
// without the chat-signature branch.
func (s *Server) handlePatches(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if !decodeJSON(w, r, &raw) {
		return
	}
	result, err := s.Ingest.ProcessPatch(r.Context(), raw)
	if err != nil {
		var verr *ingest.ErrValidation
		if errors.As(err, &verr) {
			apierr.BadRequest(w, r, err.Error())
		} else {
			apierr.Internal(w, r, "patch_ingest", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "result": result})
}

// handleSummaries implements POST /api/summaries.
func (s *Server) handleSummaries(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if !decodeJSON(w, r, &raw) {
		return
	}
	result, err := s.Ingest.ProcessSummary(r.Context(), raw)
	if err != nil {
		apierr.BadRequest(w, r, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "result": result})
}

// handleHealth implements GET /health per spec.md §6's bespoke shape,
// distinct from internal/health.Aggregator's generic SystemStatus: fixed
// component flags (ghost_runner, fs_writable, ...) plus the current
// resource sample, rolled into overall_status by the documented rule (no
// flags down -> healthy; ghost down -> degraded; else -> unknown).
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ghostUp := s.checkGhostRunner(r)
	fsWritable := s.checkFSWritable()

	components := map[string]any{
		"ghost_runner":     statusString(ghostUp),
		"port_5555_bound":  true,
		"fs_writable":      fsWritable,
		"flask_responsive": true,
		"webhook_endpoint": "operational",
	}

	// spec.md §6: no flags set -> healthy; ghost_down is the only flag set
	// -> degraded; any other combination (fs not writable, alone or
	// alongside ghost_down) -> unknown. fs_not_writable must win over a
	// simultaneous ghost_down so a storage failure is never masked by the
	// more common "downstream unreachable" case.
	overall := "healthy"
	switch {
	case !fsWritable:
		overall = "unknown"
	case !ghostUp:
		overall = "degraded"
	}

	metrics := map[string]any{}
	if s.Resources != nil {
		if samples := s.Resources.Samples(); len(samples) > 0 {
			latest := samples[len(samples)-1]
			metrics = map[string]any{
				"cpu":     latest.CPUPercent,
				"memory":  latest.MemoryPercent,
				"disk":    latest.DiskPercent,
				"network": latest.NetworkIO,
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"overall_status": overall,
		"components":     components,
		"system_metrics": metrics,
		"version":        s.Version,
		"timestamp":      s.Clock().UTC().Format(time.RFC3339),
	})
}

func statusString(up bool) string {
	if up {
		return "up"
	}
	return "down"
}

func (s *Server) checkGhostRunner(r *http.Request) bool {
	if s.GhostURL == "" {
		return false
	}
	req, err := http.NewRequestWithContext(r.Context(), http.MethodHead, s.GhostURL, nil)
	if err != nil {
		return false
	}
	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return true
}

func (s *Server) checkFSWritable() bool {
	if s.PatchesDir == "" {
		return true
	}
	probe := filepath.Join(s.PatchesDir, ".health_probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return false
	}
	_ = os.Remove(probe)
	return true
}

func (s *Server) handleEventsAll(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"events": s.Events.All()})
}

func (s *Server) handleEventsSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Events.Summarize())
}

func (s *Server) handleEventsPatch(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"events": s.Events.ByKind(eventlog.KindPatch)})
}

func (s *Server) handleEventsSlack(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"events": s.Events.ByKind(eventlog.KindSlack)})
}

func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"samples": s.Resources.Samples(),
		"alerts":  s.Resources.Alerts(),
	})
}

func (s *Server) handleProcesses(w http.ResponseWriter, r *http.Request) {
	procs, err := cleanup.Enumerate(r.Context())
	if err != nil {
		apierr.Internal(w, r, "processes_enumerate", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"processes": procs,
		"history":   s.Cleanup.History(),
	})
}

func (s *Server) handleProcessorStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Processor.Stats())
}

type processorSubmitRequest struct {
	Type     string `json:"type"`
	Data     any    `json:"data"`
	Priority int    `json:"priority"`
}

func (s *Server) handleProcessorSubmit(w http.ResponseWriter, r *http.Request) {
	var req processorSubmitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Type == "" {
		apierr.BadRequest(w, r, "type is required")
		return
	}

	id, err := s.Processor.Submit(r.Context(), processor.RequestType(req.Type), req.Data, req.Priority, 0, 0)
	if err != nil {
		apierr.BadRequest(w, r, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"request_id": id})
}

func (s *Server) handleSequentialStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Workflows.Stats())
}

type sequentialSubmitRequest struct {
	Workflow string         `json:"workflow"`
	Data     map[string]any `json:"data"`
	Priority int            `json:"priority"`
}

func (s *Server) handleSequentialSubmit(w http.ResponseWriter, r *http.Request) {
	var req sequentialSubmitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Workflow == "" {
		apierr.BadRequest(w, r, "workflow is required")
		return
	}

	id, err := s.Workflows.Submit(req.Workflow, req.Data, req.Priority)
	if err != nil {
		apierr.BadRequest(w, r, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"request_id": id})
}

func (s *Server) handleSequentialGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	req, ok := s.Workflows.GetStatus(id)
	if !ok {
		apierr.NotFound(w, r, "no sequential request with that id")
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// handleErrors and handleErrorHandler both read internal/recovery's
// decision ledger: handleErrors lists recent decisions, handleErrorHandler
// reports the aggregate counters the §4.10 handler tracks.
func (s *Server) handleErrors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"errors": s.Recovery.History()})
}

func (s *Server) handleErrorHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Recovery.Stats())
}

// rateLimitRuleView is the JSON shape for one registered rule in
// GET /api/rate-limits: name plus the admission policy it enforces.
type rateLimitRuleView struct {
	Name          string `json:"name"`
	MaxRequests   int    `json:"max_requests"`
	WindowSeconds int    `json:"window_seconds"`
}

func (s *Server) handleRateLimits(w http.ResponseWriter, r *http.Request) {
	if s.RateLimiter == nil {
		writeJSON(w, http.StatusOK, map[string]any{"rules": []rateLimitRuleView{}})
		return
	}

	rules := s.RateLimiter.Rules()
	views := make([]rateLimitRuleView, 0, len(rules))
	for _, rule := range rules {
		views = append(views, rateLimitRuleView{
			Name:          rule.Name,
			MaxRequests:   rule.MaxRequests,
			WindowSeconds: int(rule.Window.Seconds()),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": views})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"entries": s.Audit.Recent()})
}

// handleServerFixes reports the remediation actions the cleanup scanner and
// error recovery handler have taken, the closest in-scope analogue to the
// dashboard's "server fixes" panel (the dashboard itself is out of scope,
// spec.md §1).
func (s *Server) handleServerFixes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"process_cleanup_actions": s.Cleanup.History(),
		"recovery_actions":        s.Recovery.History(),
	})
}

func (s *Server) handleHealthEndpoints(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Aggregator.Aggregate())
}

func (s *Server) handleCORSHistory(w http.ResponseWriter, r *http.Request) {
	if s.CORS == nil {
		writeJSON(w, http.StatusOK, map[string]any{"history": []any{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": s.CORS.History()})
}

type validationRequest struct {
	Type  string         `json:"type"`
	Data  map[string]any `json:"data"`
	Level string         `json:"level"`
}

func (s *Server) handleValidation(w http.ResponseWriter, r *http.Request) {
	var req validationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Type == "" {
		apierr.BadRequest(w, r, "type is required")
		return
	}
	level := reqvalidate.Level(req.Level)
	if level == "" {
		level = reqvalidate.LevelBasic
	}

	report := s.Validator.Validate(req.Type, req.Data, level)
	writeJSON(w, http.StatusOK, report)
}
