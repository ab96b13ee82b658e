// Package processor implements the unified processor: a bounded-capacity
// priority queue fronting a worker pool that dispatches typed requests to
// registered handlers, retrying on failure up to a per-request limit. The
// priority-heap-plus-condvar queue is the same shape as
// internal/workflow.Engine and, further back, core/pkg/kernel's
// InMemoryScheduler; this package generalizes it from ordered-step
// execution to flat typed-request dispatch with a custom-handler
// registration API (spec.md §4.2; "Dynamic request dispatch" in
// spec.md §9 calls for an enum-keyed dispatch table with an extension
// point, not a hardcoded switch).
package processor

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"
)

// RequestType enumerates the built-in dispatchable request kinds. Custom
// types may be registered at runtime via RegisterHandler.
type RequestType string

const (
	TypeWebhook       RequestType = "webhook"
	TypePatch         RequestType = "patch"
	TypeSummary       RequestType = "summary"
	TypeSlackCommand  RequestType = "slack_command"
	TypeSlackEvent    RequestType = "slack_event"
	TypeHealthCheck   RequestType = "health_check"
	TypeResourceCheck RequestType = "resource_check"
	TypeProcessCheck  RequestType = "process_check"
)

// Status is a submitted request's processing lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusTimeout    Status = "timeout"
)

// Handler computes a request's result from its data.
type Handler func(ctx context.Context, data any) (any, error)

// Result is the stored outcome of one submitted request.
type Result struct {
	Status         Status        `json:"status"`
	Value          any           `json:"result,omitempty"`
	Error          string        `json:"error,omitempty"`
	ProcessingTime time.Duration `json:"processing_time"`
	Timestamp      time.Time     `json:"timestamp"`
}

type request struct {
	id         string
	reqType    RequestType
	data       any
	priority   int
	timeout    time.Duration
	retryCount int
	maxRetries int
	seq        uint64
}

type requestHeap []*request

func (h requestHeap) Len() int { return len(h) }
func (h requestHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h requestHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *requestHeap) Push(x any)   { *h = append(*h, x.(*request)) }
func (h *requestHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}

// Stats summarizes processor activity for the /api/processor read endpoint.
type Stats struct {
	Total           int           `json:"total"`
	Completed       int           `json:"completed"`
	Failed          int           `json:"failed"`
	QueueSize       int           `json:"queue_size"`
	ActiveWorkers   int           `json:"active_workers"`
	AverageDuration time.Duration `json:"average_processing_time"`
}

// Config bounds the processor's queue capacity and default timeouts.
type Config struct {
	Capacity       int
	DefaultTimeout time.Duration
	MaxRetries     int
	SubmitWait     time.Duration
}

// Processor dispatches typed requests from a bounded priority queue to
// registered handlers on a worker pool.
type Processor struct {
	mu       sync.Mutex
	cond     *sync.Cond
	cfg      Config
	handlers map[RequestType]Handler
	queue    requestHeap
	results  map[string]*Result
	nextSeq  uint64
	active   int
	closed   bool
	clock    func() time.Time

	stats             Stats
	totalProcessNanos int64
}

// New creates a Processor with cfg's bounds, defaulting capacity to 1000,
// per-request timeout to 30s, and max retries to 3 if unset.
func New(cfg Config) *Processor {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 1000
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.SubmitWait <= 0 {
		cfg.SubmitWait = 5 * time.Second
	}
	p := &Processor{
		cfg:      cfg,
		handlers: make(map[RequestType]Handler),
		results:  make(map[string]*Result),
		clock:    time.Now,
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// RegisterHandler installs or replaces the handler for reqType, including
// custom request types beyond the eight built in.
func (p *Processor) RegisterHandler(reqType RequestType, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[reqType] = h
}

// Submit enqueues data under reqType at priority (lower runs first),
// waiting up to cfg.SubmitWait for queue capacity before returning an
// error. Zero timeout/maxRetries fall back to the processor's defaults.
func (p *Processor) Submit(ctx context.Context, reqType RequestType, data any, priority int, timeout time.Duration, maxRetries int) (string, error) {
	if timeout <= 0 {
		timeout = p.cfg.DefaultTimeout
	}
	if maxRetries <= 0 {
		maxRetries = p.cfg.MaxRetries
	}

	deadline := p.clock().Add(p.cfg.SubmitWait)
	const pollInterval = 10 * time.Millisecond

	p.mu.Lock()
	for len(p.queue) >= p.cfg.Capacity && !p.closed {
		if p.clock().After(deadline) {
			p.mu.Unlock()
			return "", fmt.Errorf("processor: queue at capacity, submit timed out")
		}
		if err := ctx.Err(); err != nil {
			p.mu.Unlock()
			return "", err
		}
		p.mu.Unlock()
		time.Sleep(pollInterval)
		p.mu.Lock()
	}
	if p.closed {
		p.mu.Unlock()
		return "", fmt.Errorf("processor: closed")
	}

	p.nextSeq++
	now := p.clock()
	req := &request{
		id:         fmt.Sprintf("req_%d_%d", now.UnixMilli(), p.nextSeq),
		reqType:    reqType,
		data:       data,
		priority:   priority,
		timeout:    timeout,
		maxRetries: maxRetries,
		seq:        p.nextSeq,
	}
	heap.Push(&p.queue, req)
	p.results[req.id] = &Result{Status: StatusPending, Timestamp: now}
	p.stats.Total++
	p.cond.Broadcast()
	p.mu.Unlock()

	return req.id, nil
}

// GetResult returns the stored outcome of a submitted request.
func (p *Processor) GetResult(requestID string) (Result, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.results[requestID]
	if !ok {
		return Result{}, false
	}
	return *r, true
}

// Stats returns a snapshot of processor counters.
func (p *Processor) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.QueueSize = len(p.queue)
	s.ActiveWorkers = p.active
	if s.Completed > 0 {
		s.AverageDuration = time.Duration(p.totalProcessNanos / int64(s.Completed))
	}
	return s
}

// RunWorker pops requests and dispatches them to their handler until ctx
// is done. Intended to be started once per worker in the pool.
func (p *Processor) RunWorker(ctx context.Context) {
	go func() {
		<-ctx.Done()
		p.mu.Lock()
		p.closed = true
		p.cond.Broadcast()
		p.mu.Unlock()
	}()

	for {
		req, ok := p.next(ctx)
		if !ok {
			return
		}
		p.dispatch(ctx, req)
	}
}

func (p *Processor) next(ctx context.Context) (*request, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.queue) == 0 && !p.closed {
		if ctx.Err() != nil {
			return nil, false
		}
		p.cond.Wait()
	}
	if len(p.queue) == 0 {
		return nil, false
	}
	req := heap.Pop(&p.queue).(*request)
	p.cond.Broadcast()
	return req, true
}

func (p *Processor) dispatch(ctx context.Context, req *request) {
	p.mu.Lock()
	p.active++
	if r, ok := p.results[req.id]; ok {
		r.Status = StatusProcessing
	}
	handler, known := p.handlers[req.reqType]
	p.mu.Unlock()

	start := p.clock()

	if !known {
		p.finish(req, start, Result{Status: StatusFailed, Error: fmt.Sprintf("processor: no handler registered for %q", req.reqType)})
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, req.timeout)
	defer cancel()

	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		value, err := handler(callCtx, req.data)
		done <- outcome{value, err}
	}()

	select {
	case o := <-done:
		if o.err == nil {
			p.finish(req, start, Result{Status: StatusCompleted, Value: o.value})
			return
		}
		p.handleFailure(req, start, o.err.Error(), StatusFailed)
	case <-callCtx.Done():
		p.handleFailure(req, start, "handler timed out", StatusTimeout)
	}
}

// handleFailure re-enqueues req if it has retries remaining, otherwise
// records its terminal status.
func (p *Processor) handleFailure(req *request, start time.Time, errMsg string, terminal Status) {
	if req.retryCount < req.maxRetries {
		req.retryCount++
		p.mu.Lock()
		p.active--
		heap.Push(&p.queue, req)
		p.cond.Broadcast()
		p.mu.Unlock()
		return
	}
	p.finish(req, start, Result{Status: terminal, Error: errMsg})
}

func (p *Processor) finish(req *request, start time.Time, result Result) {
	now := p.clock()
	result.ProcessingTime = now.Sub(start)
	result.Timestamp = now

	p.mu.Lock()
	p.active--
	p.results[req.id] = &result
	if result.Status == StatusCompleted {
		p.stats.Completed++
	} else {
		p.stats.Failed++
	}
	p.totalProcessNanos += result.ProcessingTime.Nanoseconds()
	p.mu.Unlock()
}
