// Package scheduler tracks solve tasks from submission to completion. A
// dispatcher runs each task against the solver, and a registry keeps the
// results for later retrieval.
package scheduler

import (
	"sync"
	"time"

	"github.com/solvarr/turnstiled/internal/types"
)

// Task is one solve request moving through the state machine
// pending -> running -> done | failed. Transitions are monotone: a terminal
// task never changes again.
type Task struct {
	id        string
	req       *types.SolveRequest
	createdAt time.Time

	mu       sync.Mutex
	status   string
	result   *types.SolveResult
	err      error
	started  time.Time
	finished time.Time

	// done is closed exactly once when the task reaches a terminal status.
	done chan struct{}
}

// TaskView is an immutable snapshot of a task.
type TaskView struct {
	ID         string
	Status     string
	Result     *types.SolveResult
	Err        error
	CreatedAt  time.Time
	FinishedAt time.Time
}

func newTask(id string, req *types.SolveRequest) *Task {
	return &Task{
		id:        id,
		req:       req,
		createdAt: time.Now(),
		status:    types.TaskPending,
		done:      make(chan struct{}),
	}
}

// ID returns the task identifier.
func (t *Task) ID() string {
	return t.id
}

// Request returns the solve request this task carries.
func (t *Task) Request() *types.SolveRequest {
	return t.req
}

// Done returns a channel closed when the task reaches a terminal status.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// markRunning moves the task from pending to running. A no-op in any other
// status.
func (t *Task) markRunning() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != types.TaskPending {
		return
	}
	t.status = types.TaskRunning
	t.started = time.Now()
}

// complete moves the task to done with the given result. A no-op if the
// task is already terminal.
func (t *Task) complete(result *types.SolveResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.terminalLocked() {
		return
	}
	t.status = types.TaskDone
	t.result = result
	t.finished = time.Now()
	close(t.done)
}

// fail moves the task to failed with the given error. A no-op if the task
// is already terminal.
func (t *Task) fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.terminalLocked() {
		return
	}
	t.status = types.TaskFailed
	t.err = err
	t.finished = time.Now()
	close(t.done)
}

// Terminal reports whether the task has reached done or failed.
func (t *Task) Terminal() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.terminalLocked()
}

func (t *Task) terminalLocked() bool {
	return t.status == types.TaskDone || t.status == types.TaskFailed
}

// View returns a snapshot of the task's current state.
func (t *Task) View() TaskView {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TaskView{
		ID:         t.id,
		Status:     t.status,
		Result:     t.result,
		Err:        t.err,
		CreatedAt:  t.createdAt,
		FinishedAt: t.finished,
	}
}
