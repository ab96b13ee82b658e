// Package recovery implements error classification and recovery action
// selection: a captured error is classified into a taxonomy, assigned a
// default severity, and routed to a recovery action (retry, fallback,
// restart, ignore, escalate). The errorCode-to-classification mapping
// shape is adapted from core/pkg/kernel.NewErrorIR / classifyError;
// unlike the teacher's fixed RETRYABLE/NON_RETRYABLE pair, ghostrelay
// needs the richer eight-member type taxonomy and five-member action set
// spec.md §4.10 defines, so the mapping is generalized accordingly. The
// exponential-backoff retry loop reuses the shape of
// core/pkg/kernel/retry/backoff.go's ComputeBackoff.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ghostrelay/controlplane/internal/notify"
)

// ErrorType classifies a captured error by substring match on its message.
type ErrorType string

const (
	ErrorSystem         ErrorType = "system"
	ErrorNetwork        ErrorType = "network"
	ErrorDatabase       ErrorType = "database"
	ErrorAuthentication ErrorType = "authentication"
	ErrorValidation     ErrorType = "validation"
	ErrorTimeout        ErrorType = "timeout"
	ErrorResource       ErrorType = "resource"
	ErrorUnknown        ErrorType = "unknown"
)

// Severity ranks how serious a classified error is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Action is the recovery action chosen for a classified error.
type Action string

const (
	ActionRetry    Action = "retry"
	ActionFallback Action = "fallback"
	ActionRestart  Action = "restart"
	ActionIgnore   Action = "ignore"
	ActionEscalate Action = "escalate"
)

// defaultSeverity assigns a severity per error type absent a caller override.
var defaultSeverity = map[ErrorType]Severity{
	ErrorSystem:         SeverityHigh,
	ErrorNetwork:        SeverityMedium,
	ErrorDatabase:       SeverityHigh,
	ErrorAuthentication: SeverityHigh,
	ErrorValidation:     SeverityLow,
	ErrorTimeout:        SeverityMedium,
	ErrorResource:       SeverityCritical,
	ErrorUnknown:        SeverityMedium,
}

// defaultAction assigns a recovery action per error type.
var defaultAction = map[ErrorType]Action{
	ErrorSystem:         ActionRestart,
	ErrorNetwork:        ActionRetry,
	ErrorDatabase:       ActionRetry,
	ErrorAuthentication: ActionEscalate,
	ErrorValidation:     ActionIgnore,
	ErrorTimeout:        ActionRetry,
	ErrorResource:       ActionRestart,
	ErrorUnknown:        ActionEscalate,
}

// substringMatchers classifies an error's type from substrings in its
// message, checked in a fixed priority order so a message mentioning
// multiple keywords still gets one deterministic classification.
var substringMatchers = []struct {
	errType  ErrorType
	keywords []string
}{
	{ErrorValidation, []string{"validation", "invalid", "required field", "schema"}},
	{ErrorAuthentication, []string{"unauthorized", "authentication", "forbidden", "signature"}},
	{ErrorTimeout, []string{"timeout", "timed out", "deadline exceeded"}},
	{ErrorNetwork, []string{"connection refused", "network", "dial tcp", "no such host", "eof"}},
	{ErrorDatabase, []string{"database", "sql:", "no rows", "constraint"}},
	{ErrorResource, []string{"out of memory", "disk full", "too many open files", "resource exhausted"}},
	{ErrorSystem, []string{"panic", "segmentation", "os:", "syscall"}},
}

// Classify maps err into an ErrorType by substring match on its message,
// lower-cased. An error matching no known keyword set is ErrorUnknown.
func Classify(err error) ErrorType {
	if err == nil {
		return ErrorUnknown
	}
	msg := strings.ToLower(err.Error())
	for _, m := range substringMatchers {
		for _, kw := range m.keywords {
			if strings.Contains(msg, kw) {
				return m.errType
			}
		}
	}
	return ErrorUnknown
}

// Decision records the classification and chosen action for one error.
type Decision struct {
	ErrorType ErrorType `json:"error_type"`
	Severity  Severity  `json:"severity"`
	Action    Action    `json:"action"`
	Message   string    `json:"message"`
	ErrorID   string    `json:"error_id"`
	Timestamp time.Time `json:"timestamp"`
	Outcome   string    `json:"outcome,omitempty"`
}

const historyCap = 500

// Config tunes the retry loop and restart hook.
type Config struct {
	MaxRetries   int
	RetryDelay   time.Duration
	RestartFunc  func(ctx context.Context) error
	Notifier     notify.Notifier
}

// Handler classifies errors, picks a recovery action, and records the
// outcome of every decision.
type Handler struct {
	mu      sync.Mutex
	cfg     Config
	history []Decision
	clock   func() time.Time
	seq     uint64
	logger  *slog.Logger
}

// New creates a Handler. A nil Notifier is replaced with notify.NoopNotifier.
func New(cfg Config, logger *slog.Logger) *Handler {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.NoopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{cfg: cfg, clock: time.Now, logger: logger.With("component", "recovery")}
}

// Handle classifies err, records a Decision, and carries out the chosen
// action. For ActionRetry the caller's retryable operation op is retried
// with exponential backoff up to MaxRetries; for ActionRestart the
// configured RestartFunc is invoked; for ActionEscalate a high-priority
// notification is sent; ActionFallback and ActionIgnore are recorded but
// otherwise left to the caller.
func (h *Handler) Handle(ctx context.Context, err error, op func(ctx context.Context) error) Decision {
	errType := Classify(err)
	severity := defaultSeverity[errType]
	action := defaultAction[errType]

	h.mu.Lock()
	h.seq++
	decision := Decision{
		ErrorType: errType,
		Severity:  severity,
		Action:    action,
		Message:   err.Error(),
		ErrorID:   fmt.Sprintf("err_%d_%d", h.clock().UnixMilli(), h.seq),
		Timestamp: h.clock(),
	}
	h.mu.Unlock()

	switch action {
	case ActionRetry:
		decision.Outcome = h.retry(ctx, op)
	case ActionRestart:
		decision.Outcome = h.restart(ctx)
	case ActionEscalate:
		decision.Outcome = h.escalate(ctx, decision)
	case ActionFallback:
		decision.Outcome = "fallback delegated to caller"
	case ActionIgnore:
		decision.Outcome = "ignored"
	}

	h.record(decision)

	if severity == SeverityHigh || severity == SeverityCritical {
		h.logger.Error("error handled", "error_id", decision.ErrorID, "type", errType, "severity", severity, "action", action, "outcome", decision.Outcome)
	} else {
		h.logger.Warn("error handled", "error_id", decision.ErrorID, "type", errType, "severity", severity, "action", action)
	}

	return decision
}

// retry runs op with exponential backoff (RetryDelay * 2^attempt), bounded
// by MaxRetries, stopping early on success or context cancellation.
func (h *Handler) retry(ctx context.Context, op func(ctx context.Context) error) string {
	if op == nil {
		return "no retryable operation supplied"
	}

	var lastErr error
	for attempt := 0; attempt <= h.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := h.cfg.RetryDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "retry abandoned: " + ctx.Err().Error()
			}
		}
		if err := op(ctx); err != nil {
			lastErr = err
			continue
		}
		return fmt.Sprintf("succeeded on attempt %d", attempt+1)
	}
	return fmt.Sprintf("exhausted %d retries: %v", h.cfg.MaxRetries, lastErr)
}

// restart invokes the configured RestartFunc, which in a production
// deployment terminates the service's process group and relaunches it
// under supervision. Absent a RestartFunc, restart is recorded but not
// performed.
func (h *Handler) restart(ctx context.Context) string {
	if h.cfg.RestartFunc == nil {
		return "restart requested, no RestartFunc configured"
	}
	if err := h.cfg.RestartFunc(ctx); err != nil {
		return "restart failed: " + err.Error()
	}
	return "restart initiated"
}

// escalate posts a high-priority notification to the configured Notifier.
func (h *Handler) escalate(ctx context.Context, d Decision) string {
	text := fmt.Sprintf("escalation %s: %s (%s/%s)", d.ErrorID, d.Message, d.ErrorType, d.Severity)
	if err := h.cfg.Notifier.Notify(ctx, "critical", text); err != nil {
		return "escalation notify failed: " + err.Error()
	}
	return "escalated"
}

func (h *Handler) record(d Decision) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.history = append(h.history, d)
	if len(h.history) > historyCap {
		h.history = h.history[len(h.history)-historyCap:]
	}
}

// History returns a snapshot of retained decisions, oldest-first.
func (h *Handler) History() []Decision {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Decision, len(h.history))
	copy(out, h.history)
	return out
}

// Stats summarizes recorded decisions by error type and action, used by
// the /api/error-handler read endpoint.
type Stats struct {
	Total      int            `json:"total"`
	ByType     map[string]int `json:"by_type"`
	ByAction   map[string]int `json:"by_action"`
	BySeverity map[string]int `json:"by_severity"`
}

// Stats computes aggregate counters over retained decisions.
func (h *Handler) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	stats := Stats{
		ByType:     make(map[string]int),
		ByAction:   make(map[string]int),
		BySeverity: make(map[string]int),
	}
	for _, d := range h.history {
		stats.Total++
		stats.ByType[string(d.ErrorType)]++
		stats.ByAction[string(d.Action)]++
		stats.BySeverity[string(d.Severity)]++
	}
	return stats
}
