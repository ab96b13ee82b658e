// Package health implements a named health-check registry and a
// system-wide aggregator. The registered-check-plus-bounded-history shape
// follows the ring-buffer discipline of
// core/pkg/observability/observability.go's metric recording and
// internal/resourcemon's alert ring, generalized from a fixed OTel metric
// set to an arbitrary, extensible set of named checks.
package health

import (
	"context"
	"sync"
	"time"
)

// ComponentType classifies what kind of thing a check probes.
type ComponentType string

const (
	ComponentSystem   ComponentType = "system"
	ComponentService  ComponentType = "service"
	ComponentDatabase ComponentType = "database"
	ComponentNetwork  ComponentType = "network"
	ComponentStorage  ComponentType = "storage"
	ComponentMemory   ComponentType = "memory"
	ComponentCPU      ComponentType = "cpu"
	ComponentProcess  ComponentType = "process"
)

// Status is a check's (or the system's) derived health state.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
	StatusUnknown  Status = "unknown"
	StatusDegraded Status = "degraded"
)

// CheckFunc runs one probe, returning a numeric value, a human message,
// and optional structured details.
type CheckFunc func(ctx context.Context) (value float64, message string, details map[string]any)

// Check is one named, registered probe.
type Check struct {
	Name              string
	ComponentType     ComponentType
	Fn                CheckFunc
	Timeout           time.Duration
	CriticalThreshold float64
	WarningThreshold  float64
	Enabled           bool
}

// Result is one run of a Check.
type Result struct {
	Name      string         `json:"name"`
	Status    Status         `json:"status"`
	Message   string         `json:"message"`
	Value     float64        `json:"value"`
	Unit      string         `json:"unit,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

const historyCap = 1000

// Registry holds named checks and their run history.
type Registry struct {
	mu      sync.Mutex
	checks  map[string]Check
	order   []string
	history map[string][]Result
	clock   func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		checks:  make(map[string]Check),
		history: make(map[string][]Result),
		clock:   time.Now,
	}
}

// Register adds or replaces a named check, defaulting Timeout to 5s if
// unset. Enabled is stored as given, so callers set it explicitly.
func (r *Registry) Register(c Check) {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.checks[c.Name]; !exists {
		r.order = append(r.order, c.Name)
	}
	r.checks[c.Name] = c
}

// RunAll runs every enabled check, appends each result to its history, and
// returns the batch of results.
func (r *Registry) RunAll(ctx context.Context) []Result {
	r.mu.Lock()
	checks := make([]Check, 0, len(r.order))
	for _, name := range r.order {
		if c := r.checks[name]; c.Enabled {
			checks = append(checks, c)
		}
	}
	r.mu.Unlock()

	results := make([]Result, 0, len(checks))
	for _, c := range checks {
		results = append(results, r.run(ctx, c))
	}
	return results
}

func (r *Registry) run(ctx context.Context, c Check) Result {
	type outcome struct {
		value   float64
		message string
		details map[string]any
	}

	done := make(chan outcome, 1)
	checkCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	go func() {
		value, message, details := c.Fn(checkCtx)
		select {
		case done <- outcome{value, message, details}:
		case <-checkCtx.Done():
		}
	}()

	now := r.clock()
	var result Result

	select {
	case o := <-done:
		result = Result{
			Name: c.Name, Value: o.value, Message: o.message, Details: o.details,
			Timestamp: now, Status: deriveStatus(o.value, c.WarningThreshold, c.CriticalThreshold),
		}
	case <-checkCtx.Done():
		result = Result{
			Name: c.Name, Status: StatusCritical, Message: "check timed out",
			Timestamp: now,
		}
	}

	r.mu.Lock()
	r.history[c.Name] = append(r.history[c.Name], result)
	if h := r.history[c.Name]; len(h) > historyCap {
		r.history[c.Name] = h[len(h)-historyCap:]
	}
	r.mu.Unlock()

	return result
}

func deriveStatus(value, warning, critical float64) Status {
	switch {
	case value >= critical:
		return StatusCritical
	case value >= warning:
		return StatusWarning
	default:
		return StatusHealthy
	}
}

// History returns the retained results for a named check, oldest-first.
func (r *Registry) History(name string) []Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.history[name]
	out := make([]Result, len(h))
	copy(out, h)
	return out
}

// LatestPerCheck returns the most recent result for every registered
// check that has run at least once.
func (r *Registry) LatestPerCheck() map[string]Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Result, len(r.history))
	for name, h := range r.history {
		if len(h) > 0 {
			out[name] = h[len(h)-1]
		}
	}
	return out
}

// Run runs all checks on interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.RunAll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// SystemStatus is the aggregator's rolled-up view.
type SystemStatus struct {
	Overall        Status            `json:"overall"`
	Components     map[string]Result `json:"components"`
	ResourceSample any               `json:"resource_sample,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
}

// Aggregator rolls the registry's latest-per-check results into one
// system-wide status, counting: all healthy -> healthy; any critical ->
// critical; else -> degraded. It also exposes the latest resource sample
// via an injected accessor, kept loosely coupled so health does not need
// to import resourcemon directly.
type Aggregator struct {
	registry      *Registry
	clock         func() time.Time
	latestSample  func() any
}

// NewAggregator creates an Aggregator reading from registry. latestSample
// may be nil if no resource monitor is wired in.
func NewAggregator(registry *Registry, latestSample func() any) *Aggregator {
	return &Aggregator{registry: registry, clock: time.Now, latestSample: latestSample}
}

// Aggregate computes the current system-wide status.
func (a *Aggregator) Aggregate() SystemStatus {
	latest := a.registry.LatestPerCheck()

	overall := StatusHealthy
	anyCritical := false
	anyNonHealthy := false
	for _, r := range latest {
		if r.Status == StatusCritical {
			anyCritical = true
		}
		if r.Status != StatusHealthy {
			anyNonHealthy = true
		}
	}
	switch {
	case anyCritical:
		overall = StatusCritical
	case anyNonHealthy:
		overall = StatusDegraded
	}
	if len(latest) == 0 {
		overall = StatusUnknown
	}

	status := SystemStatus{Overall: overall, Components: latest, Timestamp: a.clock()}
	if a.latestSample != nil {
		status.ResourceSample = a.latestSample()
	}
	return status
}
