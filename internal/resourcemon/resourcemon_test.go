package resourcemon_test

import (
	"context"
	"testing"

	"github.com/ghostrelay/controlplane/internal/resourcemon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTick_CollectsASampleAndBoundsTheRing(t *testing.T) {
	cfg := resourcemon.DefaultConfig()
	cfg.SampleCap = 2
	m := resourcemon.New(cfg)

	for i := 0; i < 3; i++ {
		_, err := m.Tick(context.Background())
		require.NoError(t, err)
	}

	samples := m.Samples()
	assert.Len(t, samples, 2)
	assert.GreaterOrEqual(t, samples[0].ProcessCount, 1)
}
