package workflow_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ghostrelay/controlplane/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runWorkers(ctx context.Context, e *workflow.Engine, n int) {
	for i := 0; i < n; i++ {
		go e.RunWorker(ctx)
	}
}

func waitForStatus(t *testing.T, e *workflow.Engine, id string, want workflow.Status) workflow.Request {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		req, ok := e.GetStatus(id)
		if ok && (req.Status == want || req.Status == workflow.StatusCompleted || req.Status == workflow.StatusFailed) {
			return req
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for request %s to reach %s", id, want)
	return workflow.Request{}
}

func TestEngine_RunsStepsInDependencyOrder(t *testing.T) {
	e := workflow.NewEngine()
	var order []string

	e.Register(workflow.Workflow{
		Name: "ordered",
		Steps: []workflow.StepSpec{
			{
				StepID:         "first",
				DependencyType: workflow.DependencyRequired,
				Handler: func(data, results map[string]any) (any, error) {
					order = append(order, "first")
					return "ok", nil
				},
			},
			{
				StepID:         "second",
				Dependencies:   []string{"first"},
				DependencyType: workflow.DependencyRequired,
				Handler: func(data, results map[string]any) (any, error) {
					order = append(order, "second")
					return results["first"], nil
				},
			},
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runWorkers(ctx, e, 1)

	id, err := e.Submit("ordered", map[string]any{}, 0)
	require.NoError(t, err)

	req := waitForStatus(t, e, id, workflow.StatusCompleted)
	assert.Equal(t, workflow.StatusCompleted, req.Status)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestEngine_RunsStepWithUnmetOptionalDependency(t *testing.T) {
	e := workflow.NewEngine()
	ran := false

	e.Register(workflow.Workflow{
		Name: "optional_dep",
		Steps: []workflow.StepSpec{
			{
				StepID:         "optional_step",
				Dependencies:   []string{"never_runs"},
				DependencyType: workflow.DependencyOptional,
				Handler: func(data, results map[string]any) (any, error) {
					ran = true
					return nil, nil
				},
			},
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runWorkers(ctx, e, 1)

	id, err := e.Submit("optional_dep", map[string]any{}, 0)
	require.NoError(t, err)

	req := waitForStatus(t, e, id, workflow.StatusCompleted)
	assert.Equal(t, workflow.StatusCompleted, req.Status)
	assert.True(t, ran, "optional dependency type never blocks a step, even with an unmet listed dependency")
}

func TestEngine_SkipsRequiredStepWithUnmetDependency(t *testing.T) {
	e := workflow.NewEngine()
	ran := false

	e.Register(workflow.Workflow{
		Name: "required_dep",
		Steps: []workflow.StepSpec{
			{
				StepID:         "required_step",
				Dependencies:   []string{"never_runs"},
				DependencyType: workflow.DependencyRequired,
				Handler: func(data, results map[string]any) (any, error) {
					ran = true
					return nil, nil
				},
			},
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runWorkers(ctx, e, 1)

	id, err := e.Submit("required_dep", map[string]any{}, 0)
	require.NoError(t, err)

	req := waitForStatus(t, e, id, workflow.StatusCompleted)
	assert.Equal(t, workflow.StatusCompleted, req.Status)
	assert.False(t, ran, "a required dependency that never produces a result must block the step")
}

func TestEngine_StepFailureFailsRequest(t *testing.T) {
	e := workflow.NewEngine()

	e.Register(workflow.Workflow{
		Name: "failing",
		Steps: []workflow.StepSpec{
			{
				StepID:         "boom",
				DependencyType: workflow.DependencyRequired,
				Handler: func(data, results map[string]any) (any, error) {
					return nil, errors.New("always fails")
				},
			},
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runWorkers(ctx, e, 1)

	id, err := e.Submit("failing", map[string]any{}, 0)
	require.NoError(t, err)

	req := waitForStatus(t, e, id, workflow.StatusFailed)
	assert.Equal(t, workflow.StatusFailed, req.Status)
	assert.Contains(t, req.Errors["boom"], "always fails")
}

func TestEngine_SubmitRejectsUnknownWorkflow(t *testing.T) {
	e := workflow.NewEngine()
	_, err := e.Submit("nope", nil, 0)
	assert.Error(t, err)
}

func TestEngine_StatsCountSubmittedAndCompleted(t *testing.T) {
	e := workflow.NewEngine()
	e.Register(workflow.Workflow{
		Name: "noop",
		Steps: []workflow.StepSpec{
			{StepID: "s", DependencyType: workflow.DependencyRequired, Handler: func(map[string]any, map[string]any) (any, error) { return nil, nil }},
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runWorkers(ctx, e, 2)

	id, err := e.Submit("noop", nil, 0)
	require.NoError(t, err)
	waitForStatus(t, e, id, workflow.StatusCompleted)

	stats := e.Stats()
	assert.Equal(t, 1, stats.Submitted)
	assert.Equal(t, 1, stats.Completed)
}
