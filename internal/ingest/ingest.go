// Package ingest implements the validate → persist → forward pipeline for
// inbound webhook patch descriptors and summaries. The decode-validate-
// delegate handler shape is adapted from
// core/pkg/api/handlers.go's HandleIngest, generalized from one tenant/
// source ingest call into the three-step patch pipeline this service
// needs.
package ingest

import (
	"context"
	"fmt"
	"os"

	"github.com/ghostrelay/controlplane/internal/eventlog"
	"github.com/ghostrelay/controlplane/internal/forwarder"
	"github.com/ghostrelay/controlplane/internal/patchstore"
)

// ErrValidation signals the descriptor failed schema validation.
type ErrValidation struct{ Reason string }

func (e *ErrValidation) Error() string { return "ingest: " + e.Reason }

// PatchResult is returned on a successful /webhook or /api/patches call.
type PatchResult struct {
	Success   bool   `json:"success"`
	PatchID   string `json:"patch_id"`
	FilePath  string `json:"filepath"`
	Message   string `json:"message"`
	Forwarded bool   `json:"forwarded"`
}

// Pipeline wires the patch store, forwarder, and event log together.
type Pipeline struct {
	store     *patchstore.Store
	forwarder *forwarder.Forwarder
	events    *eventlog.Log
}

// New creates a Pipeline.
func New(store *patchstore.Store, fwd *forwarder.Forwarder, events *eventlog.Log) *Pipeline {
	return &Pipeline{store: store, forwarder: fwd, events: events}
}

// ProcessPatch runs steps 1-4 of the ingest pipeline: validate, persist,
// forward, and report. The descriptor's force flag (if present in
// metadata) is preserved verbatim for the out-of-scope downstream
// applier; ingest itself never honors it.
func (p *Pipeline) ProcessPatch(ctx context.Context, raw map[string]any) (PatchResult, error) {
	desc, err := decodeDescriptor(raw)
	if err != nil {
		p.logValidationError(raw, err.Error())
		return PatchResult{}, &ErrValidation{Reason: err.Error()}
	}

	if err := patchstore.Validate(desc); err != nil {
		p.logValidationError(raw, err.Error())
		return PatchResult{}, &ErrValidation{Reason: err.Error()}
	}

	path, err := p.store.Save(desc)
	if err != nil {
		return PatchResult{}, fmt.Errorf("ingest: persist failed: %w", err)
	}
	p.logEvent(eventlog.KindPatch, "webhook_patch_saved", map[string]any{
		"patch_id": desc.ID,
		"filepath": path,
	})

	body, err := os.ReadFile(path)
	if err != nil {
		return PatchResult{}, fmt.Errorf("ingest: read persisted file for forward: %w", err)
	}
	fwdResult := p.forwarder.Forward(ctx, body)

	return PatchResult{
		Success:   true,
		PatchID:   desc.ID,
		FilePath:  path,
		Message:   "patch descriptor persisted",
		Forwarded: fwdResult.Forwarded,
	}, nil
}

// SummaryResult is returned on a successful /api/summaries call.
type SummaryResult struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
}

// ProcessSummary validates only that the body carries a non-empty id,
// logs receipt, and returns success. It never persists anything.
func (p *Pipeline) ProcessSummary(_ context.Context, raw map[string]any) (SummaryResult, error) {
	id, ok := raw["id"].(string)
	if !ok || id == "" {
		return SummaryResult{}, &ErrValidation{Reason: "id is required"}
	}
	p.logEvent(eventlog.KindSystem, "summary_received", map[string]any{"id": id})
	return SummaryResult{Success: true, ID: id}, nil
}

func (p *Pipeline) logValidationError(raw map[string]any, reason string) {
	p.logEvent(eventlog.KindPatch, "webhook_validation_error", map[string]any{
		"reason":  reason,
		"payload": raw,
	})
}

func (p *Pipeline) logEvent(kind eventlog.Kind, eventType string, payload map[string]any) {
	if p.events == nil {
		return
	}
	_, _ = p.events.Append(kind, eventType, payload)
}

// decodeDescriptor maps a raw JSON object into a Descriptor, requiring
// patch to itself be a {pattern, replacement} record.
func decodeDescriptor(raw map[string]any) (patchstore.Descriptor, error) {
	var desc patchstore.Descriptor

	id, _ := raw["id"].(string)
	role, _ := raw["role"].(string)
	targetFile, _ := raw["target_file"].(string)
	desc.ID = id
	desc.Role = role
	desc.TargetFile = targetFile
	if desc2, ok := raw["description"].(string); ok {
		desc.Description = desc2
	}
	if meta, ok := raw["metadata"].(map[string]any); ok {
		desc.Metadata = meta
	}

	patchRaw, ok := raw["patch"].(map[string]any)
	if !ok {
		return desc, fmt.Errorf("patch: required record with pattern and replacement")
	}
	pattern, _ := patchRaw["pattern"].(string)
	replacement, _ := patchRaw["replacement"].(string)
	desc.Patch = patchstore.Patch{Pattern: pattern, Replacement: replacement}

	return desc, nil
}
