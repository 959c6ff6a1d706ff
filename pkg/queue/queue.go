package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/rhuss/streamgate/pkg/debug"
	"github.com/rhuss/streamgate/pkg/observability"
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("queue: closed")

// Runner executes an admitted task. It must return once the task's stream
// has terminated. ctx is canceled when the queue closes.
type Runner func(ctx context.Context, t *Task)

// Stats is a point-in-time view of the queue.
type Stats struct {
	Active  int `json:"active"`
	Waiting int `json:"waiting"`
	Limit   int `json:"limit"`
}

// Queue is a FIFO scheduler that keeps at most Limit tasks running.
// All shared state is guarded by mu; completion always decrements the
// active count before draining again.
type Queue struct {
	limit *LimitCache
	run   Runner

	mu      sync.Mutex
	waiting []*Task
	active  int
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Queue.
type Option func(*Queue)

// WithContext sets the parent context for task runs.
func WithContext(ctx context.Context) Option {
	return func(q *Queue) {
		q.ctx, q.cancel = context.WithCancel(ctx)
	}
}

// New creates a Queue that admits tasks into run while fewer than
// limit.Get() are active.
func New(limit *LimitCache, run Runner, opts ...Option) *Queue {
	if limit == nil {
		limit = NewLimitCache(nil)
	}
	q := &Queue{limit: limit, run: run}
	for _, opt := range opts {
		opt(q)
	}
	if q.ctx == nil {
		q.ctx, q.cancel = context.WithCancel(context.Background())
	}
	return q
}

// Enqueue appends t to the wait list and admits as many tasks as capacity
// allows. The disconnect listener is attached before admission, so a
// caller that leaves while waiting is spliced out without running. The
// same holds when t.Context ends first.
func (q *Queue) Enqueue(t *Task) error {
	detach := t.Channel.OnDisconnect(func() { q.cancelWaiting(t) })
	if t.Context != nil {
		onDisconnect := detach
		stop := context.AfterFunc(t.Context, func() { q.cancelWaiting(t) })
		detach = func() {
			onDisconnect()
			stop()
		}
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		detach()
		t.canceled.Store(true)
		t.finish()
		return ErrClosed
	}
	t.detach = detach
	if t.canceled.Load() {
		// The channel was already gone; the listener ran during registration.
		q.mu.Unlock()
		detach()
		return nil
	}
	q.waiting = append(q.waiting, t)
	q.updateGauges()
	q.mu.Unlock()

	debug.Log(debug.Queue, "task enqueued", "task", t.ID, "provider", t.Job.Provider)
	q.drain()
	return nil
}

// cancelWaiting removes t if it has not started yet.
func (q *Queue) cancelWaiting(t *Task) {
	q.mu.Lock()
	if t.started.Load() || t.canceled.Load() {
		q.mu.Unlock()
		return
	}
	t.canceled.Store(true)
	for i, w := range q.waiting {
		if w == t {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			break
		}
	}
	q.updateGauges()
	q.mu.Unlock()

	observability.QueueTasksTotal.WithLabelValues("canceled").Inc()
	debug.Log(debug.Queue, "task canceled before start", "task", t.ID)
	t.finish()
}

// drain admits waiting tasks while capacity remains.
func (q *Queue) drain() {
	limit := q.limit.Get()

	q.mu.Lock()
	var admitted []*Task
	for !q.closed && q.active < limit && len(q.waiting) > 0 {
		t := q.waiting[0]
		q.waiting[0] = nil
		q.waiting = q.waiting[1:]
		if t.canceled.Load() {
			continue
		}
		t.started.Store(true)
		q.active++
		q.wg.Add(1)
		admitted = append(admitted, t)
	}
	observability.QueueLimit.Set(float64(limit))
	q.updateGauges()
	q.mu.Unlock()

	for _, t := range admitted {
		// The relay handles disconnects from here on.
		if t.detach != nil {
			t.detach()
		}
		observability.QueueTasksTotal.WithLabelValues("started").Inc()
		debug.Log(debug.Queue, "task started", "task", t.ID, "limit", limit)
		go q.execute(t)
	}
}

func (q *Queue) execute(t *Task) {
	defer q.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in queued task", "task", t.ID, "panic", r)
		}
		q.mu.Lock()
		q.active--
		q.updateGauges()
		q.mu.Unlock()

		t.finish()
		q.drain()
	}()

	ctx, cancel := context.WithCancel(q.ctx)
	defer cancel()
	if t.Context != nil {
		stop := context.AfterFunc(t.Context, cancel)
		defer stop()
	}
	q.run(ctx, t)
}

// Invalidate drops the cached limit and admits tasks under the new one.
func (q *Queue) Invalidate() {
	q.limit.Invalidate()
	q.drain()
}

// Stats returns the current queue counters.
func (q *Queue) Stats() Stats {
	limit := q.limit.Get()
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{Active: q.active, Waiting: len(q.waiting), Limit: limit}
}

// Close stops admission, discards waiting tasks and cancels the context of
// running ones. It does not wait; use Wait for that.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	pending := q.waiting
	q.waiting = nil
	q.updateGauges()
	q.mu.Unlock()

	q.cancel()
	for _, t := range pending {
		if t.detach != nil {
			t.detach()
		}
		t.canceled.Store(true)
		t.finish()
	}
}

// Wait blocks until every started task has finished. Call it after Close.
func (q *Queue) Wait() {
	q.wg.Wait()
}

// updateGauges must be called with mu held.
func (q *Queue) updateGauges() {
	observability.QueueActive.Set(float64(q.active))
	observability.QueueWaiting.Set(float64(len(q.waiting)))
}
