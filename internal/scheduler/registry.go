package scheduler

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/solvarr/turnstiled/internal/metrics"
	"github.com/solvarr/turnstiled/internal/types"
)

// Registry holds tasks by ID. It is bounded: once maxTasks is exceeded the
// oldest terminal tasks are purged, so finished results eventually age out
// while in-flight tasks are never dropped.
type Registry struct {
	mu       sync.RWMutex
	tasks    map[string]*Task
	order    []string // insertion order, oldest first
	maxTasks int
}

// NewRegistry creates a task registry bounded to maxTasks entries.
func NewRegistry(maxTasks int) *Registry {
	return &Registry{
		tasks:    make(map[string]*Task),
		maxTasks: maxTasks,
	}
}

// Add stores a task and purges old terminal tasks if the bound is exceeded.
func (r *Registry) Add(task *Task) {
	r.mu.Lock()
	r.tasks[task.ID()] = task
	r.order = append(r.order, task.ID())
	r.purgeLocked()
	count := len(r.tasks)
	r.mu.Unlock()

	metrics.UpdateRegistryMetrics(count)
}

// Get returns the task with the given ID, or ErrTaskNotFound.
func (r *Registry) Get(id string) (*Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, ok := r.tasks[id]
	if !ok {
		return nil, types.ErrTaskNotFound
	}
	return task, nil
}

// Count returns the number of tasks currently held.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

// purgeLocked evicts the oldest terminal tasks while over the bound.
// Must be called with r.mu held.
func (r *Registry) purgeLocked() {
	if r.maxTasks <= 0 {
		return
	}
	for len(r.tasks) > r.maxTasks {
		evicted := false
		for i, id := range r.order {
			task, ok := r.tasks[id]
			if !ok {
				r.order = append(r.order[:i], r.order[i+1:]...)
				evicted = true
				break
			}
			if task.Terminal() {
				delete(r.tasks, id)
				r.order = append(r.order[:i], r.order[i+1:]...)
				log.Debug().Str("task_id", id).Msg("Purged old terminal task")
				evicted = true
				break
			}
		}
		// Every held task is still in flight, nothing to purge.
		if !evicted {
			return
		}
	}
}

// persistedResult is the on-disk form of a completed solve.
type persistedResult struct {
	ElapsedTime float64 `json:"elapsed_time"`
	Value       string  `json:"value"`
}

// Save writes all completed results to path as JSON. Failed and in-flight
// tasks are not persisted.
func (r *Registry) Save(path string) error {
	if path == "" {
		return nil
	}

	r.mu.RLock()
	out := make(map[string]persistedResult)
	for id, task := range r.tasks {
		view := task.View()
		if view.Status != types.TaskDone || view.Result == nil {
			continue
		}
		out[id] = persistedResult{
			ElapsedTime: view.Result.ElapsedSeconds(),
			Value:       view.Result.Token,
		}
	}
	r.mu.RUnlock()

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write results file: %w", err)
	}

	log.Info().Str("path", path).Int("results", len(out)).Msg("Results saved")
	return nil
}

// Load restores completed results from path. Missing file is not an error.
// Restored tasks are terminal and count against the registry bound.
func (r *Registry) Load(path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read results file: %w", err)
	}

	var in map[string]persistedResult
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("failed to parse results file: %w", err)
	}

	for id, res := range in {
		task := newTask(id, nil)
		task.complete(&types.SolveResult{
			Token:   res.Value,
			Elapsed: time.Duration(res.ElapsedTime * float64(time.Second)),
		})
		r.Add(task)
	}

	log.Info().Str("path", path).Int("results", len(in)).Msg("Results loaded")
	return nil
}
