package scheduler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/solvarr/turnstiled/internal/types"
)

func TestRegistryAddGet(t *testing.T) {
	r := NewRegistry(10)

	task := newTask("abc", &types.SolveRequest{URL: "https://example.com"})
	r.Add(task)

	got, err := r.Get("abc")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ID() != "abc" {
		t.Errorf("Expected task abc, got %s", got.ID())
	}
	if r.Count() != 1 {
		t.Errorf("Expected count 1, got %d", r.Count())
	}
}

func TestRegistryGetUnknown(t *testing.T) {
	r := NewRegistry(10)

	_, err := r.Get("missing")
	if !errors.Is(err, types.ErrTaskNotFound) {
		t.Errorf("Expected ErrTaskNotFound, got %v", err)
	}
}

func TestRegistryPurgesOldestTerminal(t *testing.T) {
	r := NewRegistry(3)

	for i := 0; i < 3; i++ {
		task := newTask(fmt.Sprintf("old-%d", i), &types.SolveRequest{URL: "https://example.com"})
		task.complete(&types.SolveResult{Token: "tok"})
		r.Add(task)
	}

	// A fourth task pushes out the oldest terminal one.
	r.Add(newTask("new", &types.SolveRequest{URL: "https://example.com"}))

	if r.Count() != 3 {
		t.Errorf("Expected count 3 after purge, got %d", r.Count())
	}
	if _, err := r.Get("old-0"); !errors.Is(err, types.ErrTaskNotFound) {
		t.Errorf("Expected oldest terminal task to be purged, got %v", err)
	}
	if _, err := r.Get("new"); err != nil {
		t.Errorf("Expected new task to be held, got %v", err)
	}
}

func TestRegistryNeverPurgesInFlight(t *testing.T) {
	r := NewRegistry(2)

	// Both held tasks are still pending.
	r.Add(newTask("p1", &types.SolveRequest{URL: "https://example.com"}))
	r.Add(newTask("p2", &types.SolveRequest{URL: "https://example.com"}))
	r.Add(newTask("p3", &types.SolveRequest{URL: "https://example.com"}))

	// Over the bound, but nothing is terminal, so nothing is dropped.
	if r.Count() != 3 {
		t.Errorf("Expected all in-flight tasks held, got %d", r.Count())
	}
	for _, id := range []string{"p1", "p2", "p3"} {
		if _, err := r.Get(id); err != nil {
			t.Errorf("Expected in-flight task %s to be held, got %v", id, err)
		}
	}
}

func TestRegistrySaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")

	r := NewRegistry(10)

	done := newTask("done-task", &types.SolveRequest{URL: "https://example.com"})
	done.complete(&types.SolveResult{Token: "the-token", Elapsed: 1234 * time.Millisecond})
	r.Add(done)

	failed := newTask("failed-task", &types.SolveRequest{URL: "https://example.com"})
	failed.fail(errors.New("boom"))
	r.Add(failed)

	pending := newTask("pending-task", &types.SolveRequest{URL: "https://example.com"})
	r.Add(pending)

	if err := r.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	restored := NewRegistry(10)
	if err := restored.Load(path); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Only the completed task survives the round trip.
	if restored.Count() != 1 {
		t.Fatalf("Expected 1 restored task, got %d", restored.Count())
	}

	task, err := restored.Get("done-task")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	view := task.View()
	if view.Status != types.TaskDone {
		t.Errorf("Expected restored task done, got %s", view.Status)
	}
	if view.Result.Token != "the-token" {
		t.Errorf("Expected restored token, got %s", view.Result.Token)
	}
	if view.Result.ElapsedSeconds() != 1.234 {
		t.Errorf("Expected elapsed 1.234, got %v", view.Result.ElapsedSeconds())
	}
}

func TestRegistryLoadMissingFile(t *testing.T) {
	r := NewRegistry(10)
	if err := r.Load(filepath.Join(t.TempDir(), "nope.json")); err != nil {
		t.Errorf("Load() of missing file should be nil, got %v", err)
	}
}

func TestRegistryLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	r := NewRegistry(10)
	if err := r.Load(path); err == nil {
		t.Error("Expected Load() to fail on invalid JSON")
	}
}

func TestRegistrySaveEmptyPath(t *testing.T) {
	r := NewRegistry(10)
	if err := r.Save(""); err != nil {
		t.Errorf("Save() with empty path should be nil, got %v", err)
	}
}
