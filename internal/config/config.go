// Package config loads ghostrelay's runtime configuration from environment
// variables, following 12-factor defaults.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ghostrelay/controlplane/internal/cleanup"
)

// Config holds every environment-tunable setting for the control plane.
type Config struct {
	// Port is the HTTP listen port. Defaults to 5051.
	Port string

	// LocalGhostURL is the downstream patch-execution runner endpoint.
	LocalGhostURL string

	// PatchesDirectory is where persisted patch descriptors are written.
	PatchesDirectory string

	// DebugMode skips chat-platform signature verification when true.
	DebugMode bool

	// CloudEnvironment flags a cloud deployment, changing the default
	// patches directory.
	CloudEnvironment bool

	// RetryCount is the number of additional forward attempts beyond the
	// first (default 2, so 3 attempts total).
	RetryCount int

	// SlackSigningSecret validates inbound chat-platform signatures
	// (consumed only by the out-of-scope chat collaborator).
	SlackSigningSecret string

	// SlackWebhookURL is where the notifier posts escalations.
	SlackWebhookURL string

	// SlackChannel and SlackUsername customize notifier posts.
	SlackChannel  string
	SlackUsername string

	// LogLevel controls the default slog handler's level.
	LogLevel string

	// AuditLogDir is the directory holding daily audit log files.
	AuditLogDir string

	// AuditRetentionDays bounds in-memory audit retention; audit files on
	// disk are not deleted.
	AuditRetentionDays int

	// AuditMaxFileSizeMB triggers rotation of the active audit file.
	AuditMaxFileSizeMB int

	// RedisAddr, if set, backs the rate limiter with a shared Redis store
	// instead of the in-memory sliding window.
	RedisAddr string

	// EventLogPath is the JSON event journal file.
	EventLogPath string

	// SensitiveFields lists audit `data` keys to redact.
	SensitiveFields []string

	// CleanupWhitelist lists process names the cleanup scanner never
	// terminates, regardless of which rule matches.
	CleanupWhitelist []string
}

const (
	defaultPort               = "5051"
	defaultLocalPatchesDir     = "data/patches"
	defaultCloudPatchesDir     = "/tmp/ghostrelay/patches"
	defaultRetryCount          = 2
	defaultAuditLogDir         = "logs/audit"
	defaultAuditRetentionDays = 30
	defaultAuditMaxFileSizeMB = 50
	defaultEventLogPath       = "data/events.json"
)

// Load reads environment variables, applying documented defaults.
func Load() *Config {
	cfg := &Config{
		Port:               getenvDefault("PYTHON_PORT", defaultPort),
		LocalGhostURL:       os.Getenv("LOCAL_GHOST_URL"),
		DebugMode:           os.Getenv("DEBUG_MODE") == "true" || os.Getenv("DEBUG_MODE") == "1",
		CloudEnvironment:    isCloudEnvironment(),
		RetryCount:          getenvIntDefault("RETRY_COUNT", defaultRetryCount),
		SlackSigningSecret:  os.Getenv("SLACK_SIGNING_SECRET"),
		SlackWebhookURL:     os.Getenv("SLACK_WEBHOOK_URL"),
		SlackChannel:        os.Getenv("SLACK_CHANNEL"),
		SlackUsername:       getenvDefault("SLACK_USERNAME", "ghostrelay"),
		LogLevel:            getenvDefault("LOG_LEVEL", "INFO"),
		AuditLogDir:         getenvDefault("AUDIT_LOG_DIR", defaultAuditLogDir),
		AuditRetentionDays:  getenvIntDefault("AUDIT_RETENTION_DAYS", defaultAuditRetentionDays),
		AuditMaxFileSizeMB:  getenvIntDefault("AUDIT_MAX_FILE_SIZE_MB", defaultAuditMaxFileSizeMB),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		EventLogPath:        getenvDefault("EVENT_LOG_PATH", defaultEventLogPath),
		SensitiveFields:     splitCSVDefault(os.Getenv("AUDIT_SENSITIVE_FIELDS"), []string{"password", "token", "secret", "api_key", "authorization"}),
		CleanupWhitelist:    splitCSVDefault(os.Getenv("CLEANUP_WHITELIST"), cleanup.DefaultWhitelist()),
	}

	cfg.PatchesDirectory = resolvePatchesDirectory(cfg.CloudEnvironment)
	return cfg
}

// resolvePatchesDirectory implements a three-way fallback: PATCHES_DIRECTORY
// env, else a cloud default if a cloud flag is present, else a local
// default.
func resolvePatchesDirectory(cloud bool) string {
	if dir := os.Getenv("PATCHES_DIRECTORY"); dir != "" {
		return dir
	}
	if cloud {
		return defaultCloudPatchesDir
	}
	return defaultLocalPatchesDir
}

func isCloudEnvironment() bool {
	for _, k := range []string{"AWS_EXECUTION_ENV", "KUBERNETES_SERVICE_HOST", "GOOGLE_CLOUD_PROJECT", "FLY_APP_NAME"} {
		if os.Getenv(k) != "" {
			return true
		}
	}
	return false
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func splitCSVDefault(v string, def []string) []string {
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

// ForwardTimeout is the fixed per-attempt timeout for downstream forwarding.
const ForwardTimeout = 5 * time.Second
