package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ghostrelay/controlplane/internal/auditlog"
	"github.com/ghostrelay/controlplane/internal/eventlog"
	"github.com/ghostrelay/controlplane/internal/forwarder"
	"github.com/ghostrelay/controlplane/internal/reqvalidate"
)

// Deps wires the collaborators the two built-in workflows need.
type Deps struct {
	Validator *reqvalidate.Registry
	Events    *eventlog.Log
	Audit     *auditlog.Log
	Forwarder *forwarder.Forwarder
}

// WebhookProcessing builds the "webhook_processing" workflow: validate,
// log, process, update metrics — the workflow named in spec.md §4.3.
//
// Its "process_webhook" step deliberately does not re-run
// internal/ingest.Pipeline.ProcessPatch: that pipeline is already the
// execution site for POST /webhook (spec.md §4.1). Wiring both would
// persist and forward the same descriptor twice — the double-execution
// risk spec.md's Open Question (b) calls out. This step instead only
// records that the workflow-level view of processing ran, leaving
// persistence and forwarding to the HTTP-level ingest call.
func WebhookProcessing(deps Deps) Workflow {
	return Workflow{
		Name: "webhook_processing",
		Steps: []StepSpec{
			{
				StepID:         "validate_request",
				Name:           "validate request",
				DependencyType: DependencyRequired,
				MaxRetries:     1,
				Handler: func(data map[string]any, _ map[string]any) (any, error) {
					report := deps.Validator.Validate("webhook", data, reqvalidate.LevelBasic)
					if !report.IsValid {
						return nil, fmt.Errorf("workflow: validation failed: %v", report.Errors)
					}
					return report, nil
				},
			},
			{
				StepID:         "log_request",
				Name:           "log request",
				Dependencies:   []string{"validate_request"},
				DependencyType: DependencyRequired,
				MaxRetries:     1,
				Handler: func(data map[string]any, _ map[string]any) (any, error) {
					if deps.Events == nil {
						return true, nil
					}
					ev, err := deps.Events.Append(eventlog.KindSystem, "workflow_request_logged", data)
					return ev, err
				},
			},
			{
				StepID:         "process_webhook",
				Name:           "process webhook",
				Dependencies:   []string{"log_request"},
				DependencyType: DependencyRequired,
				MaxRetries:     1,
				Handler: func(data map[string]any, _ map[string]any) (any, error) {
					return map[string]any{"acknowledged": true}, nil
				},
			},
			{
				StepID:         "update_metrics",
				Name:           "update metrics",
				Dependencies:   []string{"process_webhook"},
				DependencyType: DependencyRequired,
				MaxRetries:     1,
				Handler: func(_ map[string]any, results map[string]any) (any, error) {
					return map[string]any{"steps_completed": len(results) + 1}, nil
				},
			},
		},
	}
}

// PatchProcessing builds the "patch_processing" workflow: validate,
// backup, apply, verify, update status — the workflow named in spec.md
// §4.3. "backup" and "verify" describe the out-of-scope local
// backup-and-revert helpers (spec.md §1); this engine records that they
// were invoked without re-implementing file-level revert logic. "apply"
// delegates to the downstream execution runner via internal/forwarder,
// the only in-scope collaborator that actually touches the target file.
func PatchProcessing(deps Deps) Workflow {
	return Workflow{
		Name: "patch_processing",
		Steps: []StepSpec{
			{
				StepID:         "validate",
				Name:           "validate patch",
				DependencyType: DependencyRequired,
				MaxRetries:     1,
				Handler: func(data map[string]any, _ map[string]any) (any, error) {
					report := deps.Validator.Validate("patch", data, reqvalidate.LevelBasic)
					if !report.IsValid {
						return nil, fmt.Errorf("workflow: validation failed: %v", report.Errors)
					}
					return report, nil
				},
			},
			{
				StepID:         "backup",
				Name:           "backup target file",
				Dependencies:   []string{"validate"},
				DependencyType: DependencyRequired,
				MaxRetries:     1,
				Handler: func(data map[string]any, _ map[string]any) (any, error) {
					if deps.Audit != nil {
						_, _ = deps.Audit.Record(auditlog.LevelInfo, auditlog.CategoryPatch,
							"backup delegated to external backup/revert helper", data)
					}
					return map[string]any{"delegated": true}, nil
				},
			},
			{
				StepID:         "apply",
				Name:           "apply patch",
				Dependencies:   []string{"backup"},
				DependencyType: DependencyRequired,
				MaxRetries:     2,
				Handler: func(data map[string]any, _ map[string]any) (any, error) {
					if deps.Forwarder == nil {
						return map[string]any{"forwarded": false}, nil
					}
					body, err := json.Marshal(data)
					if err != nil {
						return nil, err
					}
					result := deps.Forwarder.Forward(context.Background(), body)
					return map[string]any{"forwarded": result.Forwarded, "status_code": result.StatusCode}, nil
				},
			},
			{
				StepID:         "verify",
				Name:           "verify applied patch",
				Dependencies:   []string{"apply"},
				DependencyType: DependencyRequired,
				MaxRetries:     1,
				Handler: func(_ map[string]any, results map[string]any) (any, error) {
					applied, _ := results["apply"].(map[string]any)
					forwarded, _ := applied["forwarded"].(bool)
					return map[string]any{"verified": forwarded}, nil
				},
			},
			{
				StepID:         "update_status",
				Name:           "update status",
				Dependencies:   []string{"verify"},
				DependencyType: DependencyRequired,
				MaxRetries:     1,
				Handler: func(data map[string]any, results map[string]any) (any, error) {
					if deps.Events == nil {
						return true, nil
					}
					ev, err := deps.Events.Append(eventlog.KindPatch, "patch_workflow_completed", map[string]any{
						"data":    data,
						"results": results,
					})
					return ev, err
				},
			},
		},
	}
}
