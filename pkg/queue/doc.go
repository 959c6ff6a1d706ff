// Package queue schedules batch streaming tasks against a global
// concurrency budget.
//
// Tasks are admitted in FIFO order while fewer than the configured limit
// are active. A task whose caller disconnects before admission is removed
// and never reaches the upstream. The queue itself never reports errors to
// callers; that is the relay's job once a task has started.
package queue
