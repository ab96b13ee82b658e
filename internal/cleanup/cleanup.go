// Package cleanup implements the process cleanup scanner: periodic
// process enumeration, rule-driven termination, and whitelist protection.
// Enumeration uses mitchellh/go-ps (attested indirectly via
// tinyland-inc-remote-juggler/gateway/go.mod) for the base process list,
// with shirou/gopsutil/v3/process filling in the per-process detail
// (cpu/memory percent, create time, status) go-ps does not expose. The
// rule-evaluation shape (ordered rules, first match wins, a whitelist
// short-circuit) is new — the teacher repo has no process-lifecycle
// scanner to adapt from.
package cleanup

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"syscall"
	"time"

	gops "github.com/mitchellh/go-ps"
	"github.com/shirou/gopsutil/v3/process"
)

// Action is what a matching rule does to a process.
type Action string

const (
	ActionTerminate Action = "terminate"
	ActionKill      Action = "kill"
	ActionRestart   Action = "restart"
)

// Rule matches processes by name pattern, age, and resource usage.
type Rule struct {
	Name             string
	NamePattern      *regexp.Regexp
	MaxAgeHours      float64
	MaxCPUPercent    float64
	MaxMemoryPercent float64
	Action           Action
	Priority         int
}

// ProcessInfo describes one enumerated process.
type ProcessInfo struct {
	PID           int32
	Name          string
	Cmdline       string
	CPUPercent    float64
	MemoryPercent float32
	CreateTime    time.Time
	Status        string
	ParentPID     int32
}

// Record is appended to the cleanup history after an action is taken.
type Record struct {
	PID       int32
	Name      string
	RuleName  string
	Action    Action
	Timestamp time.Time
	Err       string
}

const historyCap = 50

// Scanner enumerates processes on a ticker and applies rules.
type Scanner struct {
	mu        sync.Mutex
	rules     []Rule
	whitelist map[string]struct{}
	history   []Record
	clock     func() time.Time
	terminate func(pid int32, signal terminationSignal) error
}

type terminationSignal int

const (
	signalTerminate terminationSignal = iota
	signalKill
)

// DefaultRules returns the documented default rules: long-running python
// and node processes at high resource usage, and a zero-resource zombie
// sweep for anything older than 48 hours.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:             "python_long_running",
			NamePattern:      regexp.MustCompile(`(?i)python`),
			MaxAgeHours:      24,
			MaxCPUPercent:    80,
			MaxMemoryPercent: 80,
			Action:           ActionTerminate,
			Priority:         1,
		},
		{
			Name:             "node_long_running",
			NamePattern:      regexp.MustCompile(`(?i)node`),
			MaxAgeHours:      12,
			MaxCPUPercent:    80,
			MaxMemoryPercent: 80,
			Action:           ActionTerminate,
			Priority:         2,
		},
		{
			Name:             "zombie_sweep",
			NamePattern:      regexp.MustCompile(`.*`),
			MaxAgeHours:      48,
			MaxCPUPercent:    0,
			MaxMemoryPercent: 0,
			Action:           ActionKill,
			Priority:         3,
		},
	}
}

// DefaultWhitelist returns the protected process names the scanner never
// acts on regardless of which rule matches: the init system, shells, and
// the long-running interpreters/servers a control plane and its
// downstream runner depend on.
func DefaultWhitelist() []string {
	return []string{
		"systemd",
		"init",
		"sshd",
		"bash",
		"zsh",
		"python3",
		"node",
		"nginx",
		"apache2",
		"postgres",
		"mysql",
		"redis-server",
	}
}

// New creates a Scanner with the given rules and whitelist.
func New(rules []Rule, whitelist []string) *Scanner {
	sorted := append([]Rule(nil), rules...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].Priority < sorted[j-1].Priority; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}

	wl := make(map[string]struct{}, len(whitelist))
	for _, w := range whitelist {
		wl[w] = struct{}{}
	}

	return &Scanner{
		rules:     sorted,
		whitelist: wl,
		clock:     time.Now,
		terminate: signalProcess,
	}
}

func signalProcess(pid int32, sig terminationSignal) error {
	signal := syscall.SIGTERM
	if sig == signalKill {
		signal = syscall.SIGKILL
	}
	return syscall.Kill(int(pid), signal)
}

// Enumerate lists every running process with the detail the rule engine
// needs, skipping any process gopsutil can't introspect (already exited,
// permission denied).
func Enumerate(ctx context.Context) ([]ProcessInfo, error) {
	base, err := gops.Processes()
	if err != nil {
		return nil, fmt.Errorf("cleanup: enumerate: %w", err)
	}

	out := make([]ProcessInfo, 0, len(base))
	for _, p := range base {
		info, ok := detail(ctx, int32(p.Pid()), p.Executable())
		if !ok {
			continue
		}
		out = append(out, info)
	}
	return out, nil
}

func detail(ctx context.Context, pid int32, fallbackName string) (ProcessInfo, bool) {
	proc, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return ProcessInfo{}, false
	}

	name, err := proc.NameWithContext(ctx)
	if err != nil || name == "" {
		name = fallbackName
	}
	cmdline, _ := proc.CmdlineWithContext(ctx)
	cpuPct, _ := proc.CPUPercentWithContext(ctx)
	memPct, _ := proc.MemoryPercentWithContext(ctx)
	createMs, _ := proc.CreateTimeWithContext(ctx)
	statuses, _ := proc.StatusWithContext(ctx)
	ppid, _ := proc.PpidWithContext(ctx)

	var status string
	if len(statuses) > 0 {
		status = statuses[0]
	}

	return ProcessInfo{
		PID:           pid,
		Name:          name,
		Cmdline:       cmdline,
		CPUPercent:    cpuPct,
		MemoryPercent: memPct,
		CreateTime:    time.UnixMilli(createMs),
		Status:        status,
		ParentPID:     ppid,
	}, true
}

// Scan evaluates every enumerated process against the rule set in
// ascending priority order, skipping anything whitelisted, and applies
// the first matching rule's action.
func (s *Scanner) Scan(ctx context.Context, now time.Time, procs []ProcessInfo) []Record {
	var records []Record
	for _, p := range procs {
		if _, protected := s.whitelist[p.Name]; protected {
			continue
		}

		rule, ok := s.match(p, now)
		if !ok {
			continue
		}

		rec := s.apply(p, rule, now)
		records = append(records, rec)
	}

	s.mu.Lock()
	s.history = append(s.history, records...)
	if len(s.history) > historyCap {
		s.history = s.history[len(s.history)-historyCap:]
	}
	s.mu.Unlock()

	return records
}

func (s *Scanner) match(p ProcessInfo, now time.Time) (Rule, bool) {
	ageHours := now.Sub(p.CreateTime).Hours()
	for _, rule := range s.rules {
		if rule.NamePattern == nil || !rule.NamePattern.MatchString(p.Name) {
			continue
		}
		if ageHours < rule.MaxAgeHours {
			continue
		}

		zombieSweep := rule.MaxCPUPercent == 0 && rule.MaxMemoryPercent == 0
		highUsage := p.CPUPercent >= rule.MaxCPUPercent || float64(p.MemoryPercent) >= rule.MaxMemoryPercent
		zeroUsage := p.CPUPercent == 0 && p.MemoryPercent == 0

		if zombieSweep {
			if zeroUsage {
				return rule, true
			}
			continue
		}
		if highUsage {
			return rule, true
		}
	}
	return Rule{}, false
}

func (s *Scanner) apply(p ProcessInfo, rule Rule, now time.Time) Record {
	rec := Record{PID: p.PID, Name: p.Name, RuleName: rule.Name, Action: rule.Action, Timestamp: now}

	switch rule.Action {
	case ActionTerminate:
		if err := s.terminate(p.PID, signalTerminate); err != nil {
			rec.Err = err.Error()
		}
	case ActionKill:
		if err := s.terminate(p.PID, signalKill); err != nil {
			rec.Err = err.Error()
		}
	case ActionRestart:
		rec.Err = "restart is a reserved no-op"
	}

	return rec
}

// History returns a snapshot of the retained cleanup records.
func (s *Scanner) History() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.history))
	copy(out, s.history)
	return out
}

// Run enumerates and scans on interval until ctx is done.
func (s *Scanner) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			procs, err := Enumerate(ctx)
			if err != nil {
				continue
			}
			s.Scan(ctx, time.Now(), procs)
		case <-ctx.Done():
			return
		}
	}
}
