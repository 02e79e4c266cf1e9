package worker

import (
	"context"
	"testing"
	"time"

	"github.com/shaiso/patrol/internal/domain"
	"github.com/shaiso/patrol/internal/registry"
)

// --- Worker Tests ---

func startWorker(t *testing.T, env *testEnv) (*registry.Lane, <-chan *domain.Task, context.CancelFunc, <-chan error) {
	t.Helper()
	lane, err := env.reg.AddLane("kachaka")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	finished := make(chan *domain.Task, 8)
	w := New(Config{
		Lane:   lane,
		Engine: env.engine,
		Store:  env.reg,
		OnFinished: func(ctx context.Context, task *domain.Task) {
			finished <- task
		},
		Logger: discardLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()
	return lane, finished, cancel, errc
}

func enqueue(env *testEnv, lane *registry.Lane, id string, status domain.TaskStatus) {
	task := &domain.Task{
		ID:      id,
		RobotID: "kachaka",
		Steps:   []*domain.Step{st(id+"-hello", domain.ActionSpeak, map[string]any{"speak_text": id})},
		Status:  status,
	}
	env.reg.Put(task)
	lane.Push(registry.Job{Task: task})
}

func receive(t *testing.T, ch <-chan *domain.Task) *domain.Task {
	t.Helper()
	select {
	case task := <-ch:
		return task
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a finished task")
		return nil
	}
}

func TestWorker_RunsTasksInOrder(t *testing.T) {
	env := newTestEnv()
	lane, finished, cancel, errc := startWorker(t, env)
	defer cancel()

	enqueue(env, lane, "t1", domain.TaskStatusQueued)
	enqueue(env, lane, "t2", domain.TaskStatusQueued)

	first := receive(t, finished)
	second := receive(t, finished)

	if first.ID != "t1" || second.ID != "t2" {
		t.Errorf("expected t1 then t2, got %s then %s", first.ID, second.ID)
	}
	if first.Status != domain.TaskStatusDone || second.Status != domain.TaskStatusDone {
		t.Errorf("expected DONE, got %s and %s", first.Status, second.Status)
	}
	if !first.FinishedAt.Before(*second.StartedAt) && !first.FinishedAt.Equal(*second.StartedAt) {
		t.Error("tasks on one robot must not overlap")
	}

	cancel()
	if err := <-errc; err != nil {
		t.Errorf("expected nil error on shutdown, got %v", err)
	}
}

func TestWorker_SkipsCancelledTasks(t *testing.T) {
	env := newTestEnv()
	lane, finished, cancel, _ := startWorker(t, env)
	defer cancel()

	enqueue(env, lane, "cancelled", domain.TaskStatusCancelled)
	enqueue(env, lane, "t2", domain.TaskStatusQueued)

	got := receive(t, finished)
	if got.ID != "t2" {
		t.Errorf("expected t2, got %s", got.ID)
	}

	cancelledTask, err := env.reg.Get("cancelled")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cancelledTask.Steps[0].Status != domain.StepStatusPending {
		t.Error("cancelled task must not run")
	}
}

func TestWorker_FinishedSnapshotIsCopy(t *testing.T) {
	env := newTestEnv()
	lane, finished, cancel, _ := startWorker(t, env)
	defer cancel()

	enqueue(env, lane, "t1", domain.TaskStatusQueued)
	got := receive(t, finished)

	got.Status = domain.TaskStatusFailed
	stored, _ := env.reg.Get("t1")
	if stored.Status != domain.TaskStatusDone {
		t.Errorf("snapshot changes must not leak into the registry, got %s", stored.Status)
	}
}
