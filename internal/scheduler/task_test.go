package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/solvarr/turnstiled/internal/types"
)

func TestTaskLifecycle(t *testing.T) {
	task := newTask("t1", &types.SolveRequest{URL: "https://example.com", SiteKey: "key"})

	view := task.View()
	if view.Status != types.TaskPending {
		t.Errorf("Expected pending, got %s", view.Status)
	}
	if task.Terminal() {
		t.Error("New task must not be terminal")
	}

	task.markRunning()
	if task.View().Status != types.TaskRunning {
		t.Errorf("Expected running, got %s", task.View().Status)
	}

	result := &types.SolveResult{Token: "tok", Elapsed: 1200 * time.Millisecond}
	task.complete(result)

	view = task.View()
	if view.Status != types.TaskDone {
		t.Errorf("Expected done, got %s", view.Status)
	}
	if view.Result == nil || view.Result.Token != "tok" {
		t.Errorf("Expected result token, got %+v", view.Result)
	}
	if !task.Terminal() {
		t.Error("Completed task must be terminal")
	}

	select {
	case <-task.Done():
	default:
		t.Error("Done channel must be closed after completion")
	}
}

func TestTaskFail(t *testing.T) {
	task := newTask("t2", &types.SolveRequest{URL: "https://example.com"})
	task.markRunning()

	failure := types.NewChallengeTimeoutError("https://example.com")
	task.fail(failure)

	view := task.View()
	if view.Status != types.TaskFailed {
		t.Errorf("Expected failed, got %s", view.Status)
	}
	if !errors.Is(view.Err, types.ErrChallengeTimeout) {
		t.Errorf("Expected ErrChallengeTimeout, got %v", view.Err)
	}
}

func TestTaskTransitionsAreMonotone(t *testing.T) {
	task := newTask("t3", &types.SolveRequest{URL: "https://example.com"})
	task.markRunning()
	task.complete(&types.SolveResult{Token: "tok"})

	// Terminal state must not change, and closing done twice must not panic.
	task.fail(errors.New("late failure"))
	task.complete(&types.SolveResult{Token: "other"})
	task.markRunning()

	view := task.View()
	if view.Status != types.TaskDone {
		t.Errorf("Expected done to stick, got %s", view.Status)
	}
	if view.Result.Token != "tok" {
		t.Errorf("Expected original result to stick, got %s", view.Result.Token)
	}
	if view.Err != nil {
		t.Errorf("Expected no error on done task, got %v", view.Err)
	}
}

func TestTaskMarkRunningOnlyFromPending(t *testing.T) {
	task := newTask("t4", &types.SolveRequest{URL: "https://example.com"})
	task.fail(errors.New("rejected before start"))

	task.markRunning()
	if task.View().Status != types.TaskFailed {
		t.Errorf("Expected failed to stick, got %s", task.View().Status)
	}
}
