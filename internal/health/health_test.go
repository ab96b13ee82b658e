package health_test

import (
	"context"
	"testing"
	"time"

	"github.com/ghostrelay/controlplane/internal/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunAll_DerivesStatusFromThresholds(t *testing.T) {
	r := health.NewRegistry()
	r.Register(health.Check{
		Name: "disk", ComponentType: health.ComponentStorage, Enabled: true,
		WarningThreshold: 80, CriticalThreshold: 95,
		Fn: func(context.Context) (float64, string, map[string]any) { return 85, "disk usage", nil },
	})

	results := r.RunAll(context.Background())
	require.Len(t, results, 1)
	assert.Equal(t, health.StatusWarning, results[0].Status)
}

func TestRunAll_TimeoutForcesStatusCritical(t *testing.T) {
	r := health.NewRegistry()
	r.Register(health.Check{
		Name: "slow", Enabled: true, Timeout: 10 * time.Millisecond,
		Fn: func(ctx context.Context) (float64, string, map[string]any) {
			<-ctx.Done()
			return 0, "", nil
		},
	})

	results := r.RunAll(context.Background())
	require.Len(t, results, 1)
	assert.Equal(t, health.StatusCritical, results[0].Status)
}

func TestRunAll_SkipsDisabledChecks(t *testing.T) {
	r := health.NewRegistry()
	r.Register(health.Check{
		Name: "disabled", Enabled: false,
		Fn: func(context.Context) (float64, string, map[string]any) { return 0, "", nil },
	})

	assert.Empty(t, r.RunAll(context.Background()))
}

func TestAggregate_AllHealthy(t *testing.T) {
	r := health.NewRegistry()
	r.Register(health.Check{
		Name: "a", Enabled: true, WarningThreshold: 80, CriticalThreshold: 95,
		Fn: func(context.Context) (float64, string, map[string]any) { return 10, "", nil },
	})
	r.RunAll(context.Background())

	agg := health.NewAggregator(r, nil)
	status := agg.Aggregate()
	assert.Equal(t, health.StatusHealthy, status.Overall)
}

func TestAggregate_AnyCriticalMakesOverallCritical(t *testing.T) {
	r := health.NewRegistry()
	r.Register(health.Check{
		Name: "a", Enabled: true, WarningThreshold: 80, CriticalThreshold: 95,
		Fn: func(context.Context) (float64, string, map[string]any) { return 10, "", nil },
	})
	r.Register(health.Check{
		Name: "b", Enabled: true, WarningThreshold: 80, CriticalThreshold: 95,
		Fn: func(context.Context) (float64, string, map[string]any) { return 99, "", nil },
	})
	r.RunAll(context.Background())

	agg := health.NewAggregator(r, nil)
	assert.Equal(t, health.StatusCritical, agg.Aggregate().Overall)
}

func TestAggregate_WarningWithoutCriticalIsDegraded(t *testing.T) {
	r := health.NewRegistry()
	r.Register(health.Check{
		Name: "a", Enabled: true, WarningThreshold: 80, CriticalThreshold: 95,
		Fn: func(context.Context) (float64, string, map[string]any) { return 85, "", nil },
	})
	r.RunAll(context.Background())

	agg := health.NewAggregator(r, nil)
	assert.Equal(t, health.StatusDegraded, agg.Aggregate().Overall)
}

func TestAggregate_NoChecksRunYetIsUnknown(t *testing.T) {
	r := health.NewRegistry()
	agg := health.NewAggregator(r, nil)
	assert.Equal(t, health.StatusUnknown, agg.Aggregate().Overall)
}

func TestAggregate_IncludesResourceSampleWhenWired(t *testing.T) {
	r := health.NewRegistry()
	agg := health.NewAggregator(r, func() any { return "sample" })
	assert.Equal(t, "sample", agg.Aggregate().ResourceSample)
}
