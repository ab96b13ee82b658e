// Package eventlog implements an append-only JSON event journal: a single
// JSON document holding the most recent 1,000 events, rewritten atomically
// on every append. The in-memory append/rotate shape is adapted from
// core/pkg/kernel.InMemoryEventLog; persistence to one mutated-and-rewritten
// JSON file (rather than the teacher's hash-chained sequence log) keeps the
// journal a flat, truncated document instead of a chain.
package eventlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Kind classifies the top-level event family.
type Kind string

const (
	KindPatch  Kind = "patch_event"
	KindSlack  Kind = "slack_event"
	KindSystem Kind = "system_event"
)

// MaxEvents bounds how many events the journal keeps on disk and in memory.
const MaxEvents = 1000

// Event is one entry in the journal.
type Event struct {
	ID        string         `json:"id"`
	Type      Kind           `json:"type"`
	EventType string         `json:"event_type"`
	Timestamp string         `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// document is the on-disk shape: {events, total_events, last_updated}.
type document struct {
	Events      []Event `json:"events"`
	TotalEvents int     `json:"total_events"`
	LastUpdated string  `json:"last_updated"`
}

// Log is the append-only, size-bounded event journal.
type Log struct {
	mu     sync.Mutex
	path   string
	events []Event
	total  int
	clock  func() time.Time
	seq    uint64
}

// New creates a Log backed by path, loading any existing document.
func New(path string) (*Log, error) {
	l := &Log{path: path, clock: time.Now}
	if err := l.load(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Log) load() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("eventlog: read %s: %w", l.path, err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("eventlog: parse %s: %w", l.path, err)
	}
	l.events = doc.Events
	l.total = doc.TotalEvents
	return nil
}

// Append records an event, truncating the journal to MaxEvents. The id is
// generated from the kind, millisecond epoch, and an in-process sequence
// counter so concurrent appends never collide.
func (l *Log) Append(kind Kind, eventType string, payload map[string]any) (Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock().UTC()
	l.seq++
	ev := Event{
		ID:        fmt.Sprintf("%s_%d_%d", kind, now.UnixMilli(), l.seq),
		Type:      kind,
		EventType: eventType,
		Timestamp: now.Format(time.RFC3339),
		Payload:   payload,
	}

	l.events = append(l.events, ev)
	l.total++
	if len(l.events) > MaxEvents {
		l.events = l.events[len(l.events)-MaxEvents:]
	}

	if err := l.flushLocked(now); err != nil {
		return ev, err
	}
	return ev, nil
}

func (l *Log) flushLocked(now time.Time) error {
	doc := document{
		Events:      l.events,
		TotalEvents: l.total,
		LastUpdated: now.Format(time.RFC3339),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("eventlog: marshal: %w", err)
	}

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("eventlog: mkdir %s: %w", dir, err)
		}
	}

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("eventlog: write tmp: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("eventlog: rename: %w", err)
	}
	return nil
}

// All returns a snapshot of the current journal, newest-last.
func (l *Log) All() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// ByKind returns only events of the given kind.
func (l *Log) ByKind(kind Kind) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, 0, len(l.events))
	for _, e := range l.events {
		if e.Type == kind {
			out = append(out, e)
		}
	}
	return out
}

// Summary reports total events seen (including truncated ones) and the
// current in-window count.
type Summary struct {
	TotalEvents int `json:"total_events"`
	WindowCount int `json:"window_count"`
}

// Summarize returns the journal summary.
func (l *Log) Summarize() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Summary{TotalEvents: l.total, WindowCount: len(l.events)}
}
