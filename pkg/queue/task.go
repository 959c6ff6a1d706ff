package queue

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rhuss/streamgate/pkg/api"
	"github.com/rhuss/streamgate/pkg/channel"
	"github.com/rhuss/streamgate/pkg/relay"
)

// Task is one queued streaming job. Once started it belongs to the relay;
// a task canceled before start never runs.
type Task struct {
	ID      string
	Job     relay.Job
	Channel channel.Channel

	// Context optionally scopes the task to a request. Canceling it removes
	// a waiting task and cancels the run of a started one.
	Context context.Context

	// Outcome is set by the runner before the task finishes.
	Outcome relay.Outcome

	started  atomic.Bool
	canceled atomic.Bool

	// detach removes the queue-time disconnect listener.
	detach func()

	doneOnce sync.Once
	done     chan struct{}
}

// NewTask creates a task for job that reports to ch.
func NewTask(job relay.Job, ch channel.Channel) *Task {
	return &Task{
		ID:      api.NewTaskID(),
		Job:     job,
		Channel: ch,
		done:    make(chan struct{}),
	}
}

// Started reports whether the task was admitted.
func (t *Task) Started() bool { return t.started.Load() }

// Canceled reports whether the task was removed before admission.
func (t *Task) Canceled() bool { return t.canceled.Load() }

// Done is closed when the task finished running or was canceled.
func (t *Task) Done() <-chan struct{} { return t.done }

func (t *Task) finish() {
	t.doneOnce.Do(func() { close(t.done) })
}
