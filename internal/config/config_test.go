package config_test

import (
	"testing"

	"github.com/ghostrelay/controlplane/internal/cleanup"
	"github.com/ghostrelay/controlplane/internal/config"
	"github.com/stretchr/testify/assert"
)

// TestLoad_Defaults verifies that Load() returns sensible defaults when no
// environment variables are set.
func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{
		"PYTHON_PORT", "LOCAL_GHOST_URL", "DEBUG_MODE", "PATCHES_DIRECTORY",
		"RETRY_COUNT", "SLACK_SIGNING_SECRET", "SLACK_WEBHOOK_URL",
		"AWS_EXECUTION_ENV", "KUBERNETES_SERVICE_HOST", "GOOGLE_CLOUD_PROJECT", "FLY_APP_NAME",
	} {
		t.Setenv(k, "")
	}

	cfg := config.Load()

	assert.Equal(t, "5051", cfg.Port)
	assert.False(t, cfg.DebugMode)
	assert.Equal(t, "data/patches", cfg.PatchesDirectory)
	assert.Equal(t, 2, cfg.RetryCount)
	assert.NotEmpty(t, cfg.SensitiveFields)
	assert.Equal(t, cleanup.DefaultWhitelist(), cfg.CleanupWhitelist)
}

// TestLoad_CloudDefault verifies the cloud-environment fallback directory.
func TestLoad_CloudDefault(t *testing.T) {
	t.Setenv("PATCHES_DIRECTORY", "")
	t.Setenv("KUBERNETES_SERVICE_HOST", "10.0.0.1")

	cfg := config.Load()

	assert.Equal(t, "/tmp/ghostrelay/patches", cfg.PatchesDirectory)
}

// TestLoad_ExplicitPatchesDirWins verifies PATCHES_DIRECTORY overrides both
// the cloud and local defaults.
func TestLoad_ExplicitPatchesDirWins(t *testing.T) {
	t.Setenv("KUBERNETES_SERVICE_HOST", "10.0.0.1")
	t.Setenv("PATCHES_DIRECTORY", "/srv/patches")

	cfg := config.Load()

	assert.Equal(t, "/srv/patches", cfg.PatchesDirectory)
}

// TestLoad_Overrides verifies environment variables override defaults.
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PYTHON_PORT", "9090")
	t.Setenv("DEBUG_MODE", "true")
	t.Setenv("RETRY_COUNT", "5")
	t.Setenv("AUDIT_SENSITIVE_FIELDS", "password, ssn")
	t.Setenv("CLEANUP_WHITELIST", "systemd, myagent")

	cfg := config.Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, cfg.DebugMode)
	assert.Equal(t, 5, cfg.RetryCount)
	assert.Equal(t, []string{"password", "ssn"}, cfg.SensitiveFields)
	assert.Equal(t, []string{"systemd", "myagent"}, cfg.CleanupWhitelist)
}
