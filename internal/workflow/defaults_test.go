package workflow_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ghostrelay/controlplane/internal/auditlog"
	"github.com/ghostrelay/controlplane/internal/eventlog"
	"github.com/ghostrelay/controlplane/internal/forwarder"
	"github.com/ghostrelay/controlplane/internal/reqvalidate"
	"github.com/ghostrelay/controlplane/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDeps(t *testing.T, forwardURL string) workflow.Deps {
	t.Helper()
	validator := reqvalidate.NewRegistry()
	validator.Register("webhook", []reqvalidate.Rule{
		{FieldName: "id", FieldType: reqvalidate.TypeString, Required: true},
	})
	validator.Register("patch", []reqvalidate.Rule{
		{FieldName: "id", FieldType: reqvalidate.TypeString, Required: true},
	})

	events, err := eventlog.New(t.TempDir() + "/events.json")
	require.NoError(t, err)

	audit, err := auditlog.New(auditlog.Config{Dir: t.TempDir()})
	require.NoError(t, err)

	var fwd *forwarder.Forwarder
	if forwardURL != "" {
		fwd = forwarder.New(forwarder.Config{URL: forwardURL, Backoff: time.Millisecond})
	}

	return workflow.Deps{Validator: validator, Events: events, Audit: audit, Forwarder: fwd}
}

func TestWebhookProcessing_CompletesOnValidRequest(t *testing.T) {
	e := workflow.NewEngine()
	e.Register(workflow.WebhookProcessing(newTestDeps(t, "")))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runWorkers(ctx, e, 1)

	id, err := e.Submit("webhook_processing", map[string]any{"id": "abc"}, 0)
	require.NoError(t, err)

	req := waitForStatus(t, e, id, workflow.StatusCompleted)
	assert.Equal(t, workflow.StatusCompleted, req.Status)
}

func TestWebhookProcessing_FailsOnInvalidRequest(t *testing.T) {
	e := workflow.NewEngine()
	e.Register(workflow.WebhookProcessing(newTestDeps(t, "")))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runWorkers(ctx, e, 1)

	id, err := e.Submit("webhook_processing", map[string]any{}, 0)
	require.NoError(t, err)

	req := waitForStatus(t, e, id, workflow.StatusFailed)
	assert.Equal(t, workflow.StatusFailed, req.Status)
}

func TestPatchProcessing_ForwardsAndVerifies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := workflow.NewEngine()
	e.Register(workflow.PatchProcessing(newTestDeps(t, srv.URL)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runWorkers(ctx, e, 1)

	id, err := e.Submit("patch_processing", map[string]any{"id": "p1"}, 0)
	require.NoError(t, err)

	req := waitForStatus(t, e, id, workflow.StatusCompleted)
	require.Equal(t, workflow.StatusCompleted, req.Status)
	verified, _ := req.Results["verify"].(map[string]any)
	assert.Equal(t, true, verified["verified"])
}
