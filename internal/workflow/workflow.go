// Package workflow implements the sequential workflow engine: named
// workflows whose steps carry explicit data dependencies are submitted
// onto a priority queue and walked in declaration order by a worker pool.
// The priority-heap-plus-condvar shape (submission assigns a sequence
// number for deterministic tie-breaking, a worker blocks in next until
// something is queued or the engine is closed) is adapted from
// core/pkg/kernel.InMemoryScheduler, generalized from a flat event queue
// to one holding whole multi-step requests.
package workflow

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"
)

// DependencyType controls how a step reacts to a predecessor's absence.
type DependencyType string

const (
	DependencyRequired DependencyType = "required"
	DependencyOptional DependencyType = "optional"
	DependencyParallel DependencyType = "parallel"
)

// Status is a request's lifecycle state.
type Status string

const (
	StatusPending        Status = "pending"
	StatusValidating     Status = "validating"
	StatusPreparing      Status = "preparing"
	StatusProcessing     Status = "processing"
	StatusPostProcessing Status = "post_processing"
	StatusCompleted      Status = "completed"
	StatusFailed         Status = "failed"
	StatusCancelled      Status = "cancelled"
)

// StepHandler computes one step's result from the request's input data and
// the results recorded by steps that have already run.
type StepHandler func(data map[string]any, results map[string]any) (any, error)

// StepSpec declares one step of a named workflow.
type StepSpec struct {
	StepID         string
	Name           string
	Handler        StepHandler
	Dependencies   []string
	DependencyType DependencyType
	Timeout        time.Duration
	MaxRetries     int
	Priority       int
}

// Workflow is a named, ordered collection of steps.
type Workflow struct {
	Name  string
	Steps []StepSpec
}

// Request is one submitted execution of a workflow.
type Request struct {
	RequestID    string         `json:"request_id"`
	WorkflowName string         `json:"workflow_name"`
	Data         map[string]any `json:"data"`
	Priority     int            `json:"priority"`
	CreatedAt    time.Time      `json:"created_at"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	Status       Status         `json:"status"`
	Results      map[string]any `json:"results"`
	Errors       map[string]string `json:"errors"`

	seq uint64
}

// item is the heap element: priority then submission sequence, lower
// priority value runs first, ties broken by arrival order.
type item struct {
	req *Request
}

type requestHeap []*item

func (h requestHeap) Len() int { return len(h) }
func (h requestHeap) Less(i, j int) bool {
	if h[i].req.Priority != h[j].req.Priority {
		return h[i].req.Priority < h[j].req.Priority
	}
	return h[i].req.seq < h[j].req.seq
}
func (h requestHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *requestHeap) Push(x any)         { *h = append(*h, x.(*item)) }
func (h *requestHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}

// Stats summarizes engine activity for the /api/sequential read endpoint.
type Stats struct {
	Submitted          int           `json:"submitted"`
	Completed          int           `json:"completed"`
	Failed             int           `json:"failed"`
	QueueSize          int           `json:"queue_size"`
	AverageProcessTime time.Duration `json:"average_process_time"`
}

// Engine runs submitted workflow requests on a worker pool, honoring step
// dependencies within each request. No ordering is guaranteed across
// requests beyond priority and arrival order.
type Engine struct {
	mu        sync.Mutex
	cond      *sync.Cond
	workflows map[string]Workflow
	queue     requestHeap
	active    map[string]*Request
	completed map[string]*Request
	nextSeq   uint64
	closed    bool
	clock     func() time.Time

	stats Stats
	totalProcessNanos int64
}

// NewEngine creates an Engine with no workflows registered.
func NewEngine() *Engine {
	e := &Engine{
		workflows: make(map[string]Workflow),
		active:    make(map[string]*Request),
		completed: make(map[string]*Request),
		clock:     time.Now,
	}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// Register adds or replaces a named workflow definition.
func (e *Engine) Register(wf Workflow) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.workflows[wf.Name] = wf
}

// Submit enqueues a new request for workflowName and returns its id.
// Lower priority values run first; requests of equal priority run in
// submission order.
func (e *Engine) Submit(workflowName string, data map[string]any, priority int) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.workflows[workflowName]; !ok {
		return "", fmt.Errorf("workflow: unknown workflow %q", workflowName)
	}
	if e.closed {
		return "", fmt.Errorf("workflow: engine is closed")
	}

	e.nextSeq++
	now := e.clock()
	req := &Request{
		RequestID:    fmt.Sprintf("wf_%d_%d", now.UnixMilli(), e.nextSeq),
		WorkflowName: workflowName,
		Data:         data,
		Priority:     priority,
		CreatedAt:    now,
		Status:       StatusPending,
		Results:      make(map[string]any),
		Errors:       make(map[string]string),
		seq:          e.nextSeq,
	}

	e.active[req.RequestID] = req
	heap.Push(&e.queue, &item{req: req})
	e.stats.Submitted++
	e.cond.Signal()

	return req.RequestID, nil
}

// GetStatus returns a snapshot of a request, active or completed.
func (e *Engine) GetStatus(requestID string) (Request, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if req, ok := e.active[requestID]; ok {
		return cloneRequest(req), true
	}
	if req, ok := e.completed[requestID]; ok {
		return cloneRequest(req), true
	}
	return Request{}, false
}

func cloneRequest(r *Request) Request {
	out := *r
	out.Results = make(map[string]any, len(r.Results))
	for k, v := range r.Results {
		out.Results[k] = v
	}
	out.Errors = make(map[string]string, len(r.Errors))
	for k, v := range r.Errors {
		out.Errors[k] = v
	}
	return out
}

// Stats returns a snapshot of engine counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.stats
	s.QueueSize = len(e.queue)
	if s.Completed > 0 {
		s.AverageProcessTime = time.Duration(e.totalProcessNanos / int64(s.Completed))
	}
	return s
}

// next blocks until a request is available or ctx/close ends the wait.
func (e *Engine) next(ctx context.Context) (*Request, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for len(e.queue) == 0 && !e.closed {
		if ctx.Err() != nil {
			return nil, false
		}
		e.cond.Wait()
	}
	if len(e.queue) == 0 {
		return nil, false
	}
	it := heap.Pop(&e.queue).(*item)
	return it.req, true
}

// RunWorker pops requests and walks their steps until ctx is done. Intended
// to be started once per worker in the pool.
func (e *Engine) RunWorker(ctx context.Context) {
	go func() {
		<-ctx.Done()
		e.mu.Lock()
		e.closed = true
		e.cond.Broadcast()
		e.mu.Unlock()
	}()

	for {
		req, ok := e.next(ctx)
		if !ok {
			return
		}
		e.process(ctx, req)
	}
}

// process walks req's steps in declaration order, skipping any step whose
// required dependency has no recorded result, invoking every runnable
// step's handler, retrying on error up to its MaxRetries with a 1-second
// delay, and marking the whole request failed if any step exhausts its
// retries. Only a missing required dependency skips a step; a request whose
// steps were skipped that way still completes rather than failing.
func (e *Engine) process(ctx context.Context, req *Request) {
	wf := e.workflowFor(req.WorkflowName)
	started := e.clock()

	e.mu.Lock()
	req.StartedAt = &started
	req.Status = StatusProcessing
	e.mu.Unlock()

	failed := false
	for _, step := range wf.Steps {
		if failed {
			break
		}
		if !e.dependenciesSatisfied(req, step) {
			continue
		}
		if err := e.runStep(ctx, req, step); err != nil {
			e.mu.Lock()
			req.Errors[step.StepID] = err.Error()
			e.mu.Unlock()
			failed = true
		}
	}

	completed := e.clock()
	e.mu.Lock()
	req.CompletedAt = &completed
	if failed {
		req.Status = StatusFailed
		e.stats.Failed++
	} else {
		req.Status = StatusCompleted
		e.stats.Completed++
	}
	e.totalProcessNanos += completed.Sub(started).Nanoseconds()
	delete(e.active, req.RequestID)
	e.completed[req.RequestID] = req
	e.mu.Unlock()
}

func (e *Engine) workflowFor(name string) Workflow {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.workflows[name]
}

// dependenciesSatisfied reports whether step can run: every "required"
// dependency must already have a recorded result. Optional and parallel
// dependencies never block a step.
func (e *Engine) dependenciesSatisfied(req *Request, step StepSpec) bool {
	if step.DependencyType != DependencyRequired {
		return true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, dep := range step.Dependencies {
		if _, ok := req.Results[dep]; !ok {
			return false
		}
	}
	return true
}

// runStep invokes step's handler, retrying on error up to MaxRetries with
// a 1-second delay between attempts.
func (e *Engine) runStep(ctx context.Context, req *Request, step StepSpec) error {
	var lastErr error
	for attempt := 0; attempt <= step.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		e.mu.Lock()
		data := req.Data
		results := snapshotResults(req.Results)
		e.mu.Unlock()

		value, err := step.Handler(data, results)
		if err != nil {
			lastErr = err
			continue
		}

		e.mu.Lock()
		req.Results[step.StepID] = value
		e.mu.Unlock()
		return nil
	}
	return fmt.Errorf("workflow: step %s failed after %d attempts: %w", step.StepID, step.MaxRetries+1, lastErr)
}

func snapshotResults(results map[string]any) map[string]any {
	out := make(map[string]any, len(results))
	for k, v := range results {
		out[k] = v
	}
	return out
}
