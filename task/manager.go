package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrTaskNotFound is returned for unknown or already cleaned-up task ids.
var ErrTaskNotFound = errors.New("task: not found")

// DefaultCleanupDelay is how long a finished task stays readable.
const DefaultCleanupDelay = 5 * time.Minute

// DefaultPollInterval is the listener poll interval used when none is given.
const DefaultPollInterval = time.Second

// Options configures a Manager.
type Options struct {
	CleanupDelay time.Duration
	Weights      map[string]int
	Metrics      *Metrics
	Logger       *slog.Logger
}

// Option is a functional option for Manager configuration.
type Option func(*Options)

// WithCleanupDelay sets how long Cleanup waits before removing a task.
func WithCleanupDelay(d time.Duration) Option {
	return func(o *Options) {
		o.CleanupDelay = d
	}
}

// WithStageWeights replaces the stage weight table.
func WithStageWeights(weights map[string]int) Option {
	return func(o *Options) {
		o.Weights = maps.Clone(weights)
	}
}

// WithMetrics sets the Prometheus collectors to update.
func WithMetrics(m *Metrics) Option {
	return func(o *Options) {
		o.Metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// ApplyOptions applies functional options with defaults.
func ApplyOptions(opts ...Option) *Options {
	o := &Options{
		CleanupDelay: DefaultCleanupDelay,
		Weights:      DefaultWeights(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Manager tracks task progress and queues events for listeners. It is safe
// for concurrent use. Construct one per process and pass it to whatever
// needs to report or listen.
type Manager struct {
	mu     sync.Mutex
	tasks  map[string]*Progress
	queues map[string]*Queue
	timers map[string]*time.Timer
	closed bool

	weights      map[string]int
	cleanupDelay time.Duration
	metrics      *Metrics
	logger       *slog.Logger
	now          func() time.Time
}

// New creates a Manager.
func New(opts ...Option) *Manager {
	o := ApplyOptions(opts...)
	return &Manager{
		tasks:        make(map[string]*Progress),
		queues:       make(map[string]*Queue),
		timers:       make(map[string]*time.Timer),
		weights:      o.Weights,
		cleanupDelay: o.CleanupDelay,
		metrics:      o.Metrics,
		logger:       o.Logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// NewID returns a fresh task id: "task_" followed by 12 hex characters.
func NewID() string {
	return "task_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Create registers a new pending task with an empty queue.
func (m *Manager) Create() string {
	id := NewID()
	now := m.now()

	m.mu.Lock()
	m.tasks[id] = &Progress{
		TaskID:    id,
		Status:    StatusPending,
		Results:   map[string]StageResult{},
		Outputs:   map[string]any{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.queues[id] = NewQueue()
	m.mu.Unlock()

	m.metrics.taskCreated()
	m.logger.Info("task created", "task_id", id)
	return id
}

// Get returns a copy of the task's progress.
func (m *Manager) Get(id string) (Progress, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.tasks[id]
	if !ok {
		return Progress{}, false
	}
	return p.clone(), true
}

// Queue returns the task's event queue.
func (m *Manager) Queue(id string) (*Queue, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[id]
	return q, ok
}

// SetRunning moves a pending task to running.
func (m *Manager) SetRunning(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if p.Status.Terminal() {
		return fmt.Errorf("task: %s is already %s", id, p.Status)
	}
	p.Status = StatusRunning
	p.UpdatedAt = m.now()
	return nil
}

// Cancelled reports whether the task was cancelled. Workers poll it between
// units of work; in-flight calls are not interrupted.
func (m *Manager) Cancelled(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.tasks[id]
	return ok && p.Status == StatusCancelled
}

// update applies fn to a live task and enqueues the event it returns.
// Unknown and terminal tasks are skipped. fn runs under the lock.
func (m *Manager) update(id string, name EventName, fn func(p *Progress) map[string]any) {
	m.mu.Lock()
	p, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		m.logger.Warn("event for unknown task dropped", "task_id", id, "event", name)
		return
	}
	if p.Status.Terminal() {
		status := p.Status
		m.mu.Unlock()
		m.logger.Debug("event for finished task dropped", "task_id", id, "event", name, "status", status)
		return
	}

	before := p.Status
	data := fn(p)
	p.UpdatedAt = m.now()
	after := p.Status
	q := m.queues[id]
	q.Push(Event{Name: name, Data: data})
	m.mu.Unlock()

	m.metrics.eventQueued(name)
	if !before.Terminal() && after.Terminal() {
		m.metrics.taskFinished(after)
		m.logger.Info("task finished", "task_id", id, "status", after)
	}
}

// SendProgress records stage progress and recomputes the overall progress.
// percent is clamped to [0, 100].
func (m *Manager) SendProgress(id, stage string, percent int, message string, extra ...Extra) {
	percent = min(max(percent, 0), 100)
	m.update(id, EventProgress, func(p *Progress) map[string]any {
		p.CurrentStage = stage
		p.StageProgress = percent
		p.Message = message
		p.OverallProgress = overall(m.weights, p.Results, stage, percent)
		return withExtra(map[string]any{
			"stage":            stage,
			"progress":         percent,
			"message":          message,
			"overall_progress": p.OverallProgress,
		}, extra)
	})
}

// SendStream forwards a chunk of streamed model output.
func (m *Manager) SendStream(id, stage, delta, accumulated string) {
	m.update(id, EventStream, func(*Progress) map[string]any {
		return map[string]any{
			"stage":       stage,
			"delta":       delta,
			"accumulated": accumulated,
		}
	})
}

// SendResult records an intermediate result and marks the stage completed
// for the overall progress computation.
func (m *Manager) SendResult(id, stage, resultType string, data any) {
	m.update(id, EventResult, func(p *Progress) map[string]any {
		p.Results[stage] = StageResult{Completed: true, Type: resultType, Data: data}
		return map[string]any{
			"stage": stage,
			"type":  resultType,
			"data":  data,
		}
	})
}

// SendComplete marks the task completed with its final outputs.
func (m *Manager) SendComplete(id string, outputs map[string]any) {
	m.update(id, EventComplete, func(p *Progress) map[string]any {
		p.Status = StatusCompleted
		p.OverallProgress = 100
		p.Outputs = maps.Clone(outputs)
		return map[string]any{
			"task_id": id,
			"status":  string(StatusCompleted),
			"outputs": outputs,
		}
	})
}

// SendError records an error. A non-recoverable error fails the task; a
// recoverable one leaves the status alone so the producer can carry on.
func (m *Manager) SendError(id, stage, message string, recoverable bool, extra ...Extra) {
	m.update(id, EventError, func(p *Progress) map[string]any {
		if !recoverable {
			p.Status = StatusFailed
		}
		p.Error = message
		return withExtra(map[string]any{
			"stage":       stage,
			"message":     message,
			"recoverable": recoverable,
		}, extra)
	})
}

// Cancel cancels a running task and enqueues a cancelled event. It reports
// false if the task is unknown or not running. Cancellation is advisory:
// the producer notices it through Cancelled.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	p, ok := m.tasks[id]
	if !ok || p.Status != StatusRunning {
		m.mu.Unlock()
		return false
	}
	p.Status = StatusCancelled
	p.UpdatedAt = m.now()
	m.queues[id].Push(Event{Name: EventCancelled, Data: map[string]any{"task_id": id}})
	m.mu.Unlock()

	m.metrics.eventQueued(EventCancelled)
	m.metrics.taskFinished(StatusCancelled)
	m.logger.Info("task cancelled", "task_id", id)
	return true
}

// Cleanup removes the task and its queue after the cleanup delay, leaving
// time for slow listeners to drain. Calling it again reschedules.
func (m *Manager) Cleanup(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if t, ok := m.timers[id]; ok {
		t.Stop()
	}
	if m.cleanupDelay <= 0 {
		m.remove(id)
		return
	}
	m.timers[id] = time.AfterFunc(m.cleanupDelay, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.remove(id)
	})
}

// remove deletes a task. Callers hold m.mu.
func (m *Manager) remove(id string) {
	p, ok := m.tasks[id]
	if ok && !p.Status.Terminal() {
		m.metrics.taskFinished(p.Status)
	}
	delete(m.tasks, id)
	delete(m.queues, id)
	delete(m.timers, id)
	m.logger.Info("task cleaned up", "task_id", id)
}

// Close stops pending cleanup timers. Tasks stay readable.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for id, t := range m.timers {
		t.Stop()
		delete(m.timers, id)
	}
}

// Listen drains the task's queue onto the returned channel until the task
// ends or ctx is done. When a poll times out the task status is re-checked:
// the listener stops once the task is terminal (or gone) and the queue is
// empty. It also stops right after forwarding a complete, cancelled or
// non-recoverable error event.
func (m *Manager) Listen(ctx context.Context, id string, pollInterval time.Duration) (<-chan Event, error) {
	q, ok := m.Queue(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		for {
			e, ok := q.Poll(ctx, pollInterval)
			if ctx.Err() != nil {
				return
			}
			if !ok {
				p, exists := m.Get(id)
				if !exists || (p.Status.Terminal() && q.Len() == 0) {
					return
				}
				continue
			}

			select {
			case out <- e:
			case <-ctx.Done():
				return
			}
			if e.Final() {
				return
			}
		}
	}()
	return out, nil
}
