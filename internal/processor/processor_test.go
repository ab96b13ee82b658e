package processor_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ghostrelay/controlplane/internal/processor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runWorkers(ctx context.Context, p *processor.Processor, n int) {
	for i := 0; i < n; i++ {
		go p.RunWorker(ctx)
	}
}

func waitForResult(t *testing.T, p *processor.Processor, id string) processor.Result {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r, ok := p.GetResult(id)
		if ok && r.Status != processor.StatusPending && r.Status != processor.StatusProcessing {
			return r
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for result of %s", id)
	return processor.Result{}
}

func TestProcessor_DispatchesToRegisteredHandler(t *testing.T) {
	p := processor.New(processor.Config{})
	p.RegisterHandler(processor.TypeSummary, func(ctx context.Context, data any) (any, error) {
		return "handled", nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runWorkers(ctx, p, 1)

	id, err := p.Submit(ctx, processor.TypeSummary, map[string]any{"id": "1"}, 0, 0, 0)
	require.NoError(t, err)

	result := waitForResult(t, p, id)
	assert.Equal(t, processor.StatusCompleted, result.Status)
	assert.Equal(t, "handled", result.Value)
}

func TestProcessor_UnknownTypeFailsImmediately(t *testing.T) {
	p := processor.New(processor.Config{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runWorkers(ctx, p, 1)

	id, err := p.Submit(ctx, processor.RequestType("mystery"), nil, 0, 0, 0)
	require.NoError(t, err)

	result := waitForResult(t, p, id)
	assert.Equal(t, processor.StatusFailed, result.Status)
	assert.Contains(t, result.Error, "no handler registered")
}

func TestProcessor_RetriesThenSucceeds(t *testing.T) {
	p := processor.New(processor.Config{})
	attempts := 0
	p.RegisterHandler(processor.TypeWebhook, func(ctx context.Context, data any) (any, error) {
		attempts++
		if attempts < 2 {
			return nil, errors.New("transient")
		}
		return "ok", nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runWorkers(ctx, p, 1)

	id, err := p.Submit(ctx, processor.TypeWebhook, nil, 0, time.Second, 2)
	require.NoError(t, err)

	result := waitForResult(t, p, id)
	assert.Equal(t, processor.StatusCompleted, result.Status)
	assert.Equal(t, 2, attempts)
}

func TestProcessor_TimesOutSlowHandler(t *testing.T) {
	p := processor.New(processor.Config{})
	p.RegisterHandler(processor.TypePatch, func(ctx context.Context, data any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runWorkers(ctx, p, 1)

	id, err := p.Submit(ctx, processor.TypePatch, nil, 0, 20*time.Millisecond, 0)
	require.NoError(t, err)

	result := waitForResult(t, p, id)
	assert.Equal(t, processor.StatusTimeout, result.Status)
}

func TestProcessor_HigherPriorityRunsFirst(t *testing.T) {
	p := processor.New(processor.Config{})
	var order []int
	done := make(chan struct{}, 2)
	p.RegisterHandler(processor.TypeSummary, func(ctx context.Context, data any) (any, error) {
		order = append(order, data.(int))
		done <- struct{}{}
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := p.Submit(ctx, processor.TypeSummary, 2, 5, 0, 0)
	require.NoError(t, err)
	_, err = p.Submit(ctx, processor.TypeSummary, 1, 1, 0, 0)
	require.NoError(t, err)

	runWorkers(ctx, p, 1)

	<-done
	<-done
	assert.Equal(t, []int{1, 2}, order)
}

func TestProcessor_Stats(t *testing.T) {
	p := processor.New(processor.Config{})
	p.RegisterHandler(processor.TypeSummary, func(ctx context.Context, data any) (any, error) {
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runWorkers(ctx, p, 1)

	id, err := p.Submit(ctx, processor.TypeSummary, nil, 0, 0, 0)
	require.NoError(t, err)
	waitForResult(t, p, id)

	stats := p.Stats()
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Completed)
}
