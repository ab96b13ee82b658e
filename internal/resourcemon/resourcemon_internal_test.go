package resourcemon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCheckThreshold_NoAlertBelowWarning(t *testing.T) {
	m := New(DefaultConfig())
	m.checkThreshold("cpu", 50, Thresholds{Warning: 70, Critical: 90}, time.Now())
	assert.Empty(t, m.Alerts())
}

func TestCheckThreshold_WarningBetweenThresholds(t *testing.T) {
	m := New(DefaultConfig())
	m.checkThreshold("cpu", 75, Thresholds{Warning: 70, Critical: 90}, time.Now())

	alerts := m.Alerts()
	assert.Len(t, alerts, 1)
	assert.Equal(t, AlertWarning, alerts[0].AlertLevel)
}

func TestCheckThreshold_CriticalAtOrAboveCriticalThreshold(t *testing.T) {
	m := New(DefaultConfig())
	m.checkThreshold("memory", 96, Thresholds{Warning: 80, Critical: 95}, time.Now())

	alerts := m.Alerts()
	assert.Len(t, alerts, 1)
	assert.Equal(t, AlertCritical, alerts[0].AlertLevel)
}

func TestCheckThreshold_InvokesRegisteredCallbacks(t *testing.T) {
	m := New(DefaultConfig())
	var got []Alert
	m.OnAlert(func(a Alert) { got = append(got, a) })

	m.checkThreshold("disk", 90, Thresholds{Warning: 85, Critical: 95}, time.Now())

	assert.Len(t, got, 1)
	assert.Equal(t, "disk", got[0].ResourceName)
}

func TestAlerts_BoundedToCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AlertCap = 3
	m := New(cfg)

	for i := 0; i < 10; i++ {
		m.checkThreshold("cpu", 100, Thresholds{Warning: 70, Critical: 90}, time.Now())
	}

	assert.Len(t, m.Alerts(), 3)
}
