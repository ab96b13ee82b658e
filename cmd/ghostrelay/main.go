// Command ghostrelay runs the webhook control plane: it wires every
// internal subsystem together, starts their background loops, and serves
// the HTTP surface until a termination signal arrives. The wiring style —
// one logger built in main and threaded into every constructor, a single
// top-level signal channel — follows apps/helm-node/main.go; unlike the
// teacher's signal-only wait, shutdown here actually drains the HTTP
// server and every background subsystem (SPEC_FULL.md's graceful-shutdown
// supplement).
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ghostrelay/controlplane/internal/auditlog"
	"github.com/ghostrelay/controlplane/internal/cleanup"
	"github.com/ghostrelay/controlplane/internal/config"
	"github.com/ghostrelay/controlplane/internal/cors"
	"github.com/ghostrelay/controlplane/internal/eventlog"
	"github.com/ghostrelay/controlplane/internal/forwarder"
	"github.com/ghostrelay/controlplane/internal/health"
	"github.com/ghostrelay/controlplane/internal/httpapi"
	"github.com/ghostrelay/controlplane/internal/ingest"
	"github.com/ghostrelay/controlplane/internal/notify"
	"github.com/ghostrelay/controlplane/internal/patchstore"
	"github.com/ghostrelay/controlplane/internal/processor"
	"github.com/ghostrelay/controlplane/internal/ratelimit"
	"github.com/ghostrelay/controlplane/internal/recovery"
	"github.com/ghostrelay/controlplane/internal/reqvalidate"
	"github.com/ghostrelay/controlplane/internal/resourcemon"
	"github.com/ghostrelay/controlplane/internal/workflow"
)

// version is stamped into GET /health responses.
const version = "0.1.0"

func main() {
	cfg := config.Load()
	logger := newLogger(cfg.LogLevel)

	log.SetOutput(os.Stdout)
	logger.Info("ghostrelay: starting", "port", cfg.Port, "patches_dir", cfg.PatchesDirectory)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	events, err := eventlog.New(cfg.EventLogPath)
	if err != nil {
		logger.Error("ghostrelay: event log init failed", "error", err)
		os.Exit(1)
	}

	audit, err := auditlog.New(auditlog.Config{
		Dir:             cfg.AuditLogDir,
		MaxFileSizeMB:   cfg.AuditMaxFileSizeMB,
		RetentionDays:   cfg.AuditRetentionDays,
		SensitiveFields: cfg.SensitiveFields,
	})
	if err != nil {
		logger.Error("ghostrelay: audit log init failed", "error", err)
		os.Exit(1)
	}

	notifier := buildNotifier(cfg)
	audit.OnCritical(func(e *auditlog.Entry) {
		_ = notifier.Notify(ctx, string(e.Level), e.Message)
	})

	store, err := patchstore.New(cfg.PatchesDirectory)
	if err != nil {
		logger.Error("ghostrelay: patch store init failed", "error", err)
		os.Exit(1)
	}

	fwd := forwarder.New(forwarder.Config{
		URL:         cfg.LocalGhostURL,
		Timeout:     config.ForwardTimeout,
		RetryCount:  cfg.RetryCount,
		BreakerName: "ghost-runner",
	})

	pipeline := ingest.New(store, fwd, events)

	limiter := ratelimit.New(rateLimitStore(cfg))
	limiter.RegisterRule(ratelimit.Rule{Name: "webhook", MaxRequests: 60, Window: time.Minute})

	validator := buildValidator()

	resources := resourcemon.New(resourcemon.DefaultConfig())
	resources.OnAlert(func(a resourcemon.Alert) {
		_, _ = audit.Record(auditlog.LevelWarning, auditlog.CategoryResource, a.Message, map[string]any{
			"resource": a.ResourceName, "value": a.CurrentValue, "threshold": a.ThresholdValue,
		})
	})

	scanner := cleanup.New(cleanup.DefaultRules(), cfg.CleanupWhitelist)

	healthRegistry := health.NewRegistry()
	registerHealthChecks(healthRegistry, cfg)
	aggregator := health.NewAggregator(healthRegistry, func() any {
		samples := resources.Samples()
		if len(samples) == 0 {
			return nil
		}
		return samples[len(samples)-1]
	})

	workflows := workflow.NewEngine()
	workflows.Register(workflow.WebhookProcessing(workflow.Deps{Validator: validator, Events: events, Audit: audit, Forwarder: fwd}))
	workflows.Register(workflow.PatchProcessing(workflow.Deps{Validator: validator, Events: events, Audit: audit, Forwarder: fwd}))

	proc := processor.New(processor.Config{})
	registerProcessorHandlers(proc, pipeline, healthRegistry, resources, scanner)

	recoveryHandler := recovery.New(recovery.Config{Notifier: notifier}, logger)

	corsManager := cors.New(cors.DefaultConfig())

	metrics := httpapi.NewMetrics(prometheus.DefaultRegisterer)

	server := &httpapi.Server{
		Ingest:      pipeline,
		Events:      events,
		Audit:       audit,
		RateLimiter: limiter,
		Validator:   validator,
		Resources:   resources,
		Cleanup:     scanner,
		Health:      healthRegistry,
		Aggregator:  aggregator,
		Workflows:   workflows,
		Processor:   proc,
		Recovery:    recoveryHandler,
		CORS:        corsManager,
		Metrics:     metrics,
		GhostURL:    cfg.LocalGhostURL,
		PatchesDir:  cfg.PatchesDirectory,
		DebugMode:   cfg.DebugMode,
		Version:     version,
		Logger:      logger,
	}

	runBackground(ctx, audit, limiter, resources, scanner, healthRegistry, workflows, proc)

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httpapi.NewRouter(server),
	}

	go func() {
		logger.Info("ghostrelay: listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("ghostrelay: http server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("ghostrelay: shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("ghostrelay: http shutdown error", "error", err)
	}
	audit.Stop()
	logger.Info("ghostrelay: stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func buildNotifier(cfg *config.Config) notify.Notifier {
	if cfg.SlackWebhookURL == "" {
		return notify.NoopNotifier{}
	}
	return notify.New(cfg.SlackWebhookURL, cfg.SlackChannel, cfg.SlackUsername)
}

func rateLimitStore(cfg *config.Config) ratelimit.Store {
	if cfg.RedisAddr != "" {
		return ratelimit.NewRedisStore(cfg.RedisAddr)
	}
	return ratelimit.NewMemoryStore()
}

// buildValidator registers the field rules for the named request types the
// built-in workflows validate against ("webhook", "patch") plus "summary"
// (spec.md §4.5). The ingest pipeline validates with patchstore.Validate
// and does not consult this registry.
func buildValidator() *reqvalidate.Registry {
	registry := reqvalidate.NewRegistry()

	registry.Register("webhook", []reqvalidate.Rule{
		{FieldName: "id", FieldType: reqvalidate.TypeString, Required: true},
		{FieldName: "role", FieldType: reqvalidate.TypeString, Required: true},
		{FieldName: "target_file", FieldType: reqvalidate.TypeString, Required: true},
		{FieldName: "patch", FieldType: reqvalidate.TypeDict, Required: true},
	})
	registry.Register("patch", []reqvalidate.Rule{
		{FieldName: "id", FieldType: reqvalidate.TypeString, Required: true},
		{FieldName: "role", FieldType: reqvalidate.TypeString, Required: true},
		{FieldName: "target_file", FieldType: reqvalidate.TypeString, Required: true},
		{FieldName: "patch", FieldType: reqvalidate.TypeDict, Required: true},
	})
	registry.Register("summary", []reqvalidate.Rule{
		{FieldName: "id", FieldType: reqvalidate.TypeString, Required: true},
	})

	return registry
}

// registerHealthChecks wires the fs_writable and ghost_runner probes into
// the registry so GET /api/health-endpoints reflects the same signal
// GET /health computes ad hoc.
func registerHealthChecks(registry *health.Registry, cfg *config.Config) {
	registry.Register(health.Check{
		Name:              "patches_directory_writable",
		ComponentType:     health.ComponentStorage,
		CriticalThreshold: 1,
		WarningThreshold:  1,
		Enabled:           true,
		Fn: func(ctx context.Context) (float64, string, map[string]any) {
			probe := filepath.Join(cfg.PatchesDirectory, ".health_probe")
			if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
				return 1, "patches directory is not writable: " + err.Error(), nil
			}
			_ = os.Remove(probe)
			return 0, "patches directory is writable", nil
		},
	})

	if cfg.LocalGhostURL != "" {
		client := &http.Client{Timeout: 2 * time.Second}
		registry.Register(health.Check{
			Name:              "ghost_runner_reachable",
			ComponentType:     health.ComponentService,
			CriticalThreshold: 1,
			WarningThreshold:  1,
			Enabled:           true,
			Fn: func(ctx context.Context) (float64, string, map[string]any) {
				req, err := http.NewRequestWithContext(ctx, http.MethodHead, cfg.LocalGhostURL, nil)
				if err != nil {
					return 1, err.Error(), nil
				}
				resp, err := client.Do(req)
				if err != nil {
					return 1, "ghost runner unreachable: " + err.Error(), nil
				}
				defer resp.Body.Close()
				return 0, "ghost runner reachable", nil
			},
		})
	}
}

// registerProcessorHandlers wires the unified processor's built-in request
// types (spec.md §4.2) to the collaborators that already implement them,
// so POST /api/processor can dispatch to ingest, health, resource, and
// process checks through one typed queue instead of calling them directly.
func registerProcessorHandlers(proc *processor.Processor, pipeline *ingest.Pipeline, healthRegistry *health.Registry, resources *resourcemon.Monitor, scanner *cleanup.Scanner) {
	proc.RegisterHandler(processor.TypeWebhook, func(ctx context.Context, data any) (any, error) {
		raw, _ := data.(map[string]any)
		return pipeline.ProcessPatch(ctx, raw)
	})
	proc.RegisterHandler(processor.TypePatch, func(ctx context.Context, data any) (any, error) {
		raw, _ := data.(map[string]any)
		return pipeline.ProcessPatch(ctx, raw)
	})
	proc.RegisterHandler(processor.TypeSummary, func(ctx context.Context, data any) (any, error) {
		raw, _ := data.(map[string]any)
		return pipeline.ProcessSummary(ctx, raw)
	})
	proc.RegisterHandler(processor.TypeHealthCheck, func(ctx context.Context, _ any) (any, error) {
		return healthRegistry.RunAll(ctx), nil
	})
	proc.RegisterHandler(processor.TypeResourceCheck, func(ctx context.Context, _ any) (any, error) {
		return resources.Tick(ctx)
	})
	proc.RegisterHandler(processor.TypeProcessCheck, func(ctx context.Context, _ any) (any, error) {
		procs, err := cleanup.Enumerate(ctx)
		if err != nil {
			return nil, err
		}
		return scanner.Scan(ctx, time.Now(), procs), nil
	})
}

const (
	workflowWorkerCount  = 4
	processorWorkerCount = 4
)

// runBackground starts every subsystem's own long-lived loop (spec.md §5):
// the audit sweep, the rate-limit sweeper, the resource and cleanup
// tickers, the health registry ticker, and the workflow/processor worker
// pools. Every loop except the audit sweep watches ctx and exits within its
// own poll interval of cancellation; the audit sweep runs until main calls
// audit.Stop.
func runBackground(ctx context.Context, audit *auditlog.Log, limiter *ratelimit.Limiter, resources *resourcemon.Monitor, scanner *cleanup.Scanner, healthRegistry *health.Registry, workflows *workflow.Engine, proc *processor.Processor) {
	go audit.Run(time.Hour)
	go limiter.Run(ctx, 30*time.Second)
	go resources.Run(ctx, 30*time.Second)
	go scanner.Run(ctx, 60*time.Second)
	go healthRegistry.Run(ctx, 30*time.Second)

	for i := 0; i < workflowWorkerCount; i++ {
		go workflows.RunWorker(ctx)
	}
	for i := 0; i < processorWorkerCount; i++ {
		go proc.RunWorker(ctx)
	}
}
