package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/solvarr/turnstiled/internal/metrics"
	"github.com/solvarr/turnstiled/internal/types"
)

// SolveFunc resolves one request to a token. Implemented by the solver.
// Implementations call types.NotifyLeased(ctx) once they hold a page slot
// so the dispatcher can move the task from pending to running.
type SolveFunc func(ctx context.Context, req *types.SolveRequest) (*types.SolveResult, error)

// Dispatcher runs solve tasks. Submit starts a task in the background and
// returns its ID; Solve runs one synchronously. Both paths share the same
// registry, so async results stay retrievable after completion.
type Dispatcher struct {
	registry *Registry
	solve    SolveFunc

	// taskTimeout bounds a whole background task, including the wait for a
	// pool slot. Submitted tasks have no caller context to inherit from.
	taskTimeout time.Duration

	wg     sync.WaitGroup
	closed atomic.Bool
}

// NewDispatcher creates a dispatcher running tasks against solve.
func NewDispatcher(registry *Registry, solve SolveFunc, taskTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		registry:    registry,
		solve:       solve,
		taskTimeout: taskTimeout,
	}
}

// Submit registers a task and starts solving it in the background. Returns
// the task ID for later retrieval.
func (d *Dispatcher) Submit(req *types.SolveRequest) (string, error) {
	if d.closed.Load() {
		return "", types.ErrDispatcherClosed
	}
	if err := req.Validate(); err != nil {
		return "", err
	}

	task := newTask(uuid.NewString(), req)
	d.registry.Add(task)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(task)
	}()

	log.Info().
		Str("task_id", task.ID()).
		Str("url", req.URL).
		Msg("Task submitted")

	return task.ID(), nil
}

// run executes one task to its terminal status.
func (d *Dispatcher) run(task *Task) {
	// Submit raced Close; fail instead of leaving the task pending forever.
	if d.closed.Load() {
		task.fail(types.ErrDispatcherClosed)
		metrics.RecordTask(types.TaskFailed)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.taskTimeout)
	defer cancel()

	// The task stays pending until the solver actually leases a page slot,
	// so running tasks are bounded by pool capacity.
	ctx = types.WithLeaseHook(ctx, task.markRunning)

	result, err := d.solve(ctx, task.Request())
	if err != nil {
		task.fail(err)
		metrics.RecordTask(types.TaskFailed)
		log.Warn().
			Str("task_id", task.ID()).
			Err(err).
			Msg("Task failed")
		return
	}

	task.complete(result)
	metrics.RecordTask(types.TaskDone)
	log.Info().
		Str("task_id", task.ID()).
		Float64("elapsed_seconds", result.ElapsedSeconds()).
		Msg("Task completed")
}

// Solve runs one request synchronously. The task is registered like any
// other, so the result also remains retrievable by ID.
func (d *Dispatcher) Solve(ctx context.Context, req *types.SolveRequest) (*types.SolveResult, error) {
	if d.closed.Load() {
		return nil, types.ErrDispatcherClosed
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	task := newTask(uuid.NewString(), req)
	d.registry.Add(task)

	result, err := d.solve(types.WithLeaseHook(ctx, task.markRunning), req)
	if err != nil {
		task.fail(err)
		metrics.RecordTask(types.TaskFailed)
		return nil, err
	}

	task.complete(result)
	metrics.RecordTask(types.TaskDone)
	return result, nil
}

// Get returns a snapshot of the task with the given ID.
func (d *Dispatcher) Get(id string) (TaskView, error) {
	task, err := d.registry.Get(id)
	if err != nil {
		return TaskView{}, err
	}
	return task.View(), nil
}

// Wait blocks until the task reaches a terminal status or ctx is done, and
// returns the final snapshot.
func (d *Dispatcher) Wait(ctx context.Context, id string) (TaskView, error) {
	task, err := d.registry.Get(id)
	if err != nil {
		return TaskView{}, err
	}

	select {
	case <-task.Done():
		return task.View(), nil
	case <-ctx.Done():
		return TaskView{}, ctx.Err()
	}
}

// Close stops accepting work and waits for in-flight tasks to finish, up to
// a grace period. Safe to call multiple times.
func (d *Dispatcher) Close() error {
	if d.closed.Swap(true) {
		return nil
	}

	log.Info().Msg("Dispatcher closing, draining in-flight tasks")

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("Dispatcher closed")
	case <-time.After(d.taskTimeout + 5*time.Second):
		log.Warn().Msg("Timeout draining in-flight tasks")
	}

	return nil
}
