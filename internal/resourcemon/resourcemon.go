// Package resourcemon samples host CPU/memory/disk/network/process-count
// on a background ticker, keeps a bounded ring of samples, and raises
// threshold alerts. Grounded on gopsutil's attested use across the pack
// (DataDog-datadog-agent, codeready-toolchain-tarsy, and others) for host
// sampling; the ring-buffer-plus-callback shape is adapted from
// core/pkg/observability/observability.go's metric collection loop.
package resourcemon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
)

// NetworkIO is the cumulative network counters in one sample.
type NetworkIO struct {
	BytesSent   uint64 `json:"bytes_sent"`
	BytesRecv   uint64 `json:"bytes_recv"`
	PacketsSent uint64 `json:"packets_sent"`
	PacketsRecv uint64 `json:"packets_recv"`
}

// Sample is one tick's resource reading.
type Sample struct {
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	DiskPercent   float64   `json:"disk_percent"`
	NetworkIO     NetworkIO `json:"network_io"`
	ProcessCount  int       `json:"process_count"`
	Timestamp     time.Time `json:"timestamp"`
}

// AlertLevel classifies a threshold breach.
type AlertLevel string

const (
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

// Alert is raised when a sampled resource crosses a configured threshold.
type Alert struct {
	ResourceName  string     `json:"resource_name"`
	CurrentValue  float64    `json:"current_value"`
	ThresholdValue float64   `json:"threshold_value"`
	AlertLevel    AlertLevel `json:"alert_level"`
	Timestamp     time.Time  `json:"timestamp"`
	Message       string     `json:"message"`
}

// Thresholds hold the warning/critical pair for one resource.
type Thresholds struct {
	Warning  float64
	Critical float64
}

// Config configures the monitor's default thresholds and ring sizes.
type Config struct {
	CPU          Thresholds
	Memory       Thresholds
	Disk         Thresholds
	ProcessCount Thresholds
	SampleCap    int
	AlertCap     int
	DiskPath     string
}

// DefaultConfig returns the documented default thresholds.
func DefaultConfig() Config {
	return Config{
		CPU:          Thresholds{Warning: 70, Critical: 90},
		Memory:       Thresholds{Warning: 80, Critical: 95},
		Disk:         Thresholds{Warning: 85, Critical: 95},
		ProcessCount: Thresholds{Warning: 200, Critical: 300},
		SampleCap:    50,
		AlertCap:     100,
		DiskPath:     "/",
	}
}

// Monitor samples host resources on a ticker and raises threshold alerts.
type Monitor struct {
	mu        sync.Mutex
	cfg       Config
	samples   []Sample
	alerts    []Alert
	callbacks []func(Alert)
	clock     func() time.Time
}

// New creates a Monitor with cfg's thresholds and ring sizes.
func New(cfg Config) *Monitor {
	if cfg.SampleCap <= 0 {
		cfg.SampleCap = 50
	}
	if cfg.AlertCap <= 0 {
		cfg.AlertCap = 100
	}
	if cfg.DiskPath == "" {
		cfg.DiskPath = "/"
	}
	return &Monitor{cfg: cfg, clock: time.Now}
}

// OnAlert registers a callback invoked synchronously whenever a sample
// crosses a warning or critical threshold.
func (m *Monitor) OnAlert(fn func(Alert)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, fn)
}

// Tick samples the host once, appends it to the ring, and evaluates
// thresholds.
func (m *Monitor) Tick(ctx context.Context) (Sample, error) {
	sample, err := collect(ctx, m.cfg.DiskPath)
	if err != nil {
		return Sample{}, err
	}
	sample.Timestamp = m.clock()

	m.mu.Lock()
	m.samples = append(m.samples, sample)
	if len(m.samples) > m.cfg.SampleCap {
		m.samples = m.samples[len(m.samples)-m.cfg.SampleCap:]
	}
	m.mu.Unlock()

	m.evaluate(sample)
	return sample, nil
}

func collect(ctx context.Context, diskPath string) (Sample, error) {
	cpuPercents, err := cpu.PercentWithContext(ctx, time.Second, false)
	if err != nil {
		return Sample{}, err
	}
	var cpuPct float64
	if len(cpuPercents) > 0 {
		cpuPct = cpuPercents[0]
	}

	vmStat, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Sample{}, err
	}

	diskStat, err := disk.UsageWithContext(ctx, diskPath)
	if err != nil {
		return Sample{}, err
	}

	netCounters, err := net.IOCountersWithContext(ctx, false)
	if err != nil {
		return Sample{}, err
	}
	var netIO NetworkIO
	if len(netCounters) > 0 {
		netIO = NetworkIO{
			BytesSent:   netCounters[0].BytesSent,
			BytesRecv:   netCounters[0].BytesRecv,
			PacketsSent: netCounters[0].PacketsSent,
			PacketsRecv: netCounters[0].PacketsRecv,
		}
	}

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return Sample{}, err
	}

	return Sample{
		CPUPercent:    cpuPct,
		MemoryPercent: vmStat.UsedPercent,
		DiskPercent:   diskStat.UsedPercent,
		NetworkIO:     netIO,
		ProcessCount:  len(procs),
	}, nil
}

func (m *Monitor) evaluate(s Sample) {
	m.checkThreshold("cpu", s.CPUPercent, m.cfg.CPU, s.Timestamp)
	m.checkThreshold("memory", s.MemoryPercent, m.cfg.Memory, s.Timestamp)
	m.checkThreshold("disk", s.DiskPercent, m.cfg.Disk, s.Timestamp)
	m.checkThreshold("process_count", float64(s.ProcessCount), m.cfg.ProcessCount, s.Timestamp)
}

func (m *Monitor) checkThreshold(name string, value float64, t Thresholds, at time.Time) {
	var level AlertLevel
	var threshold float64
	switch {
	case value >= t.Critical:
		level, threshold = AlertCritical, t.Critical
	case value >= t.Warning:
		level, threshold = AlertWarning, t.Warning
	default:
		return
	}

	alert := Alert{
		ResourceName:   name,
		CurrentValue:   value,
		ThresholdValue: threshold,
		AlertLevel:     level,
		Timestamp:      at,
		Message:        fmt.Sprintf("%s %s: %.1f >= %.1f", name, level, value, threshold),
	}

	m.mu.Lock()
	m.alerts = append(m.alerts, alert)
	if len(m.alerts) > m.cfg.AlertCap {
		m.alerts = m.alerts[len(m.alerts)-m.cfg.AlertCap:]
	}
	callbacks := append([]func(Alert){}, m.callbacks...)
	m.mu.Unlock()

	for _, cb := range callbacks {
		cb(alert)
	}
}

// Samples returns a snapshot of the current sample ring.
func (m *Monitor) Samples() []Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Sample, len(m.samples))
	copy(out, m.samples)
	return out
}

// Alerts returns a snapshot of the current alert ring.
func (m *Monitor) Alerts() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Alert, len(m.alerts))
	copy(out, m.alerts)
	return out
}

// Run samples on interval until ctx is done.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_, _ = m.Tick(ctx)
		case <-ctx.Done():
			return
		}
	}
}
