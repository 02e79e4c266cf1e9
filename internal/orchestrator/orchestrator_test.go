package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/patrol/internal/device"
	"github.com/shaiso/patrol/internal/domain"
	"github.com/shaiso/patrol/internal/mq"
	"github.com/shaiso/patrol/internal/notify"
	"github.com/shaiso/patrol/internal/repo"
	"github.com/shaiso/patrol/internal/worker"
)

// --- Test helpers ---

// memArchive — архив в памяти.
type memArchive struct {
	mu    sync.Mutex
	tasks map[string]*domain.Task
	saved []string
}

func newMemArchive() *memArchive {
	return &memArchive{tasks: make(map[string]*domain.Task)}
}

func (a *memArchive) Save(ctx context.Context, task *domain.Task) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tasks[task.ID] = task.Clone()
	a.saved = append(a.saved, task.ID)
	return nil
}

func (a *memArchive) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	task, ok := a.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: task %s", repo.ErrNotFound, id)
	}
	return task.Clone(), nil
}

func (a *memArchive) List(ctx context.Context, filter repo.TaskFilter) ([]*domain.Task, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []*domain.Task
	for _, id := range a.saved {
		task := a.tasks[id]
		if task == nil || (filter.Status != "" && task.Status != filter.Status) {
			continue
		}
		out = append(out, task.Clone())
	}
	return out, nil
}

func (a *memArchive) Delete(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.tasks[id]; !ok {
		return fmt.Errorf("%w: task %s", repo.ErrNotFound, id)
	}
	delete(a.tasks, id)
	return nil
}

func (a *memArchive) Saved() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.saved...)
}

// memEvents собирает task.finished.
type memEvents struct {
	mu  sync.Mutex
	ids []string
}

func (e *memEvents) PublishTaskFinished(ctx context.Context, task *domain.Task) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ids = append(e.ids, task.ID)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	orch    *Orchestrator
	archive *memArchive
	events  *memEvents
	sims    map[string]*device.Simulator
}

func newTestEnv(t *testing.T, robots ...string) *testEnv {
	t.Helper()

	env := &testEnv{
		archive: newMemArchive(),
		events:  &memEvents{},
		sims:    make(map[string]*device.Simulator),
	}
	env.orch = New(Config{
		Engine: worker.EngineConfig{
			Notifier:   notify.Nop{},
			RetrySleep: func(ctx context.Context, d time.Duration) error { return nil },
		},
		Archive:   env.archive,
		Publisher: env.events,
		Logger:    discardLogger(),
	})

	for _, id := range robots {
		sim := device.NewSimulator(device.SimulatorConfig{Logger: discardLogger()})
		env.sims[id] = sim
		if err := env.orch.RegisterRobot(id, sim); err != nil {
			t.Fatalf("register robot %s: %v", id, err)
		}
	}
	return env
}

func (env *testEnv) start(t *testing.T) {
	t.Helper()
	if err := env.orch.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { env.orch.Stop() })
}

func speakTask(id string, n int) *domain.Task {
	task := &domain.Task{ID: id}
	for i := 0; i < n; i++ {
		task.Steps = append(task.Steps, &domain.Step{
			ID:     fmt.Sprintf("s%d", i),
			Action: domain.ActionSpeak,
			Params: map[string]any{"speak_text": "hello"},
		})
	}
	return task
}

// waitFor ждёт выполнения условия.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (env *testEnv) status(id string) domain.TaskStatus {
	task, err := env.orch.registry.Get(id)
	if err != nil {
		return ""
	}
	return task.Status
}

// --- Submit Tests ---

func TestSubmit_InvalidTask(t *testing.T) {
	env := newTestEnv(t, "kachaka")

	task := speakTask("t1", 1)
	task.Steps[0].SkipOnFailure = []string{"s0"}

	_, err := env.orch.Submit(context.Background(), task)
	if !errors.Is(err, ErrInvalidTask) {
		t.Fatalf("expected ErrInvalidTask, got %v", err)
	}
	if len(env.orch.List()) != 0 {
		t.Error("invalid task must not be registered")
	}
}

func TestSubmit_DefaultsToSoleRobot(t *testing.T) {
	env := newTestEnv(t, "r1")

	input := speakTask("", 1)
	task, err := env.orch.Submit(context.Background(), input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if task.ID == "" {
		t.Error("task ID should be generated")
	}
	if task.RobotID != "r1" {
		t.Errorf("expected robot r1, got %q", task.RobotID)
	}
	if task.Status != domain.TaskStatusQueued {
		t.Errorf("expected QUEUED, got %s", task.Status)
	}
	if task.Steps[0].Status != domain.StepStatusPending {
		t.Errorf("expected PENDING step, got %s", task.Steps[0].Status)
	}
	if input.ID != "" || input.Status != "" {
		t.Error("caller's task must not be modified")
	}

	lane, _ := env.orch.registry.Lane("r1")
	if lane.Len() != 1 {
		t.Errorf("expected 1 task in lane, got %d", lane.Len())
	}
}

func TestSubmit_DefaultRobotWithSeveralRobots(t *testing.T) {
	env := newTestEnv(t, "kachaka", "spare")

	task, err := env.orch.Submit(context.Background(), speakTask("", 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.RobotID != domain.DefaultRobotID {
		t.Errorf("expected default robot, got %q", task.RobotID)
	}
}

func TestSubmit_UnknownRobot(t *testing.T) {
	env := newTestEnv(t, "r1")

	input := speakTask("t1", 1)
	input.RobotID = "ghost"

	task, err := env.orch.Submit(context.Background(), input)
	if !errors.Is(err, ErrRobotNotRegistered) {
		t.Fatalf("expected ErrRobotNotRegistered, got %v", err)
	}
	if task == nil || task.Status != domain.TaskStatusFailed {
		t.Fatalf("expected FAILED task, got %+v", task)
	}
	if env.status("t1") != domain.TaskStatusFailed {
		t.Error("rejected task should stay in the registry as FAILED")
	}
	if saved := env.archive.Saved(); len(saved) != 1 || saved[0] != "t1" {
		t.Errorf("expected rejected task archived, got %v", saved)
	}
}

func TestSubmit_DuplicateID(t *testing.T) {
	env := newTestEnv(t, "r1")
	ctx := context.Background()

	if _, err := env.orch.Submit(ctx, speakTask("t1", 1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := env.orch.Submit(ctx, speakTask("t1", 1)); !errors.Is(err, ErrTaskExists) {
		t.Errorf("expected ErrTaskExists, got %v", err)
	}
}

// --- Execution Tests ---

func TestStart_RunsTasksInOrder(t *testing.T) {
	env := newTestEnv(t, "r1")
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if _, err := env.orch.Submit(ctx, speakTask(id, 2)); err != nil {
			t.Fatalf("submit %s: %v", id, err)
		}
	}
	env.start(t)

	waitFor(t, "all tasks archived", func() bool { return len(env.archive.Saved()) == 3 })

	saved := env.archive.Saved()
	for i, want := range []string{"a", "b", "c"} {
		if saved[i] != want {
			t.Errorf("position %d: expected %s, got %s", i, want, saved[i])
		}
		if env.status(want) != domain.TaskStatusDone {
			t.Errorf("task %s: expected DONE, got %s", want, env.status(want))
		}
	}

	env.events.mu.Lock()
	published := len(env.events.ids)
	env.events.mu.Unlock()
	if published != 3 {
		t.Errorf("expected 3 task.finished events, got %d", published)
	}
}

func TestRegisterRobot_AfterStart(t *testing.T) {
	env := newTestEnv(t, "r1")
	env.start(t)

	err := env.orch.RegisterRobot("r2", device.NewSimulator(device.SimulatorConfig{}))
	if !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}
}

// --- Cancel Tests ---

func TestCancel_Queued(t *testing.T) {
	env := newTestEnv(t, "r1")
	ctx := context.Background()

	env.orch.Submit(ctx, speakTask("t1", 1))

	task, err := env.orch.Cancel(ctx, "t1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.Status != domain.TaskStatusCancelled {
		t.Errorf("expected CANCELLED, got %s", task.Status)
	}
	if task.FinishedAt == nil {
		t.Error("cancelled queued task should have FinishedAt")
	}
	if saved := env.archive.Saved(); len(saved) != 1 {
		t.Errorf("cancelled queued task should be archived, got %v", saved)
	}

	// Повторная отмена возвращает task без изменений.
	again, err := env.orch.Cancel(ctx, "t1")
	if err != nil {
		t.Fatalf("unexpected error on repeated cancel: %v", err)
	}
	if again.Status != domain.TaskStatusCancelled {
		t.Errorf("expected CANCELLED, got %s", again.Status)
	}
	if len(env.archive.Saved()) != 1 {
		t.Error("repeated cancel must not archive again")
	}

	// Worker пропускает отменённую task.
	env.start(t)
	env.orch.Submit(ctx, speakTask("t2", 1))
	waitFor(t, "t2 done", func() bool { return env.status("t2") == domain.TaskStatusDone })
	if n := env.sims["r1"].CallCount(device.CmdSpeak); n != 1 {
		t.Errorf("expected only t2 to speak, got %d calls", n)
	}
}

func TestCancel_Finished(t *testing.T) {
	env := newTestEnv(t, "r1")

	for _, status := range []domain.TaskStatus{domain.TaskStatusDone, domain.TaskStatusFailed} {
		id := string(status)
		env.orch.registry.Put(&domain.Task{ID: id, RobotID: "r1", Status: status})

		_, err := env.orch.Cancel(context.Background(), id)
		if !errors.Is(err, ErrTaskFinished) {
			t.Errorf("%s: expected ErrTaskFinished, got %v", status, err)
		}
		if env.status(id) != status {
			t.Errorf("%s: status must not change", status)
		}
	}
}

func TestCancel_ShelfDropped(t *testing.T) {
	env := newTestEnv(t, "r1")
	ctx := context.Background()

	droppedAt := time.Now().Add(-time.Hour)
	env.orch.registry.Put(&domain.Task{
		ID:         "t1",
		RobotID:    "r1",
		Status:     domain.TaskStatusShelfDropped,
		FinishedAt: &droppedAt,
		Metadata:   map[string]any{"shelf_drop": true},
	})

	task, err := env.orch.Cancel(ctx, "t1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.Status != domain.TaskStatusCancelled {
		t.Errorf("expected CANCELLED, got %s", task.Status)
	}
	if task.FinishedAt == nil || !task.FinishedAt.After(droppedAt) {
		t.Errorf("finished_at should move to the cancel time, got %v", task.FinishedAt)
	}
	if task.Metadata["cancel_reason"] == nil {
		t.Error("expected cancel_reason in metadata")
	}
	if task.Metadata["shelf_drop"] != true {
		t.Error("drop metadata should be kept")
	}

	archived, err := env.archive.GetByID(ctx, "t1")
	if err != nil {
		t.Fatalf("task should be re-archived: %v", err)
	}
	if archived.Status != domain.TaskStatusCancelled || !archived.FinishedAt.Equal(*task.FinishedAt) {
		t.Errorf("archived copy should match, got %s %v", archived.Status, archived.FinishedAt)
	}
}

func TestCancel_NotFound(t *testing.T) {
	env := newTestEnv(t, "r1")

	if _, err := env.orch.Cancel(context.Background(), "missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestCancelAndDelete_InProgress(t *testing.T) {
	env := newTestEnv(t, "r1")
	ctx := context.Background()
	sim := env.sims["r1"]
	sim.Script(device.CmdSpeak, device.Outcome{Block: true})

	env.orch.Submit(ctx, speakTask("t1", 3))
	env.start(t)

	waitFor(t, "first step blocked", func() bool { return sim.CallCount(device.CmdSpeak) == 1 })

	if err := env.orch.Delete(ctx, "t1"); !errors.Is(err, ErrTaskInProgress) {
		t.Fatalf("expected ErrTaskInProgress, got %v", err)
	}

	task, err := env.orch.Cancel(ctx, "t1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.Status != domain.TaskStatusCancelled {
		t.Errorf("expected CANCELLED, got %s", task.Status)
	}

	// Отмена кооперативная: отпускаем висящую команду.
	sim.CancelCommand(ctx)

	waitFor(t, "task archived", func() bool { return len(env.archive.Saved()) == 1 })
	if n := sim.CallCount(device.CmdSpeak); n != 1 {
		t.Errorf("remaining steps must not run after cancel, got %d speak calls", n)
	}

	if err := env.orch.Delete(ctx, "t1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := env.orch.Get(ctx, "t1"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound after delete, got %v", err)
	}
}

// --- Get / List / Delete Tests ---

func TestGet_FallsBackToArchive(t *testing.T) {
	env := newTestEnv(t, "r1")
	ctx := context.Background()

	env.archive.Save(ctx, &domain.Task{ID: "old", Status: domain.TaskStatusDone})

	task, err := env.orch.Get(ctx, "old")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.Status != domain.TaskStatusDone {
		t.Errorf("expected DONE, got %s", task.Status)
	}

	history, err := env.orch.History(ctx, repo.TaskFilter{Status: domain.TaskStatusDone})
	if err != nil || len(history) != 1 {
		t.Errorf("expected 1 archived task, got %d (%v)", len(history), err)
	}
}

func TestDelete_QueuedTaskIsSkipped(t *testing.T) {
	env := newTestEnv(t, "r1")
	ctx := context.Background()

	env.orch.Submit(ctx, speakTask("t1", 1))
	if err := env.orch.Delete(ctx, "t1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(env.orch.List()) != 0 {
		t.Error("deleted task should not be listed")
	}

	env.start(t)
	env.orch.Submit(ctx, speakTask("t2", 1))
	waitFor(t, "t2 done", func() bool { return env.status("t2") == domain.TaskStatusDone })

	if n := env.sims["r1"].CallCount(device.CmdSpeak); n != 1 {
		t.Errorf("deleted task must not run, got %d speak calls", n)
	}
}

func TestDelete_NotFound(t *testing.T) {
	env := newTestEnv(t, "r1")

	if err := env.orch.Delete(context.Background(), "missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

// --- Handler Tests ---

func delivery(msgType mq.MessageType, payload any, redelivered bool) *mq.Delivery {
	return &mq.Delivery{Message: *mq.NewMessage(msgType, payload), Redelivered: redelivered}
}

func TestHandleSubmit(t *testing.T) {
	env := newTestEnv(t, "r1")
	ctx := context.Background()

	payload := mq.TaskSubmitPayload{TaskID: "t1", Steps: speakTask("", 1).Steps}
	if err := env.orch.handleSubmit(ctx, delivery(mq.MessageTypeTaskSubmit, payload, false)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.status("t1") != domain.TaskStatusQueued {
		t.Errorf("expected QUEUED, got %s", env.status("t1"))
	}

	// Повторная доставка той же команды подтверждается.
	if err := env.orch.handleSubmit(ctx, delivery(mq.MessageTypeTaskSubmit, payload, true)); err != nil {
		t.Errorf("redelivered duplicate should be acked, got %v", err)
	}

	invalid := mq.TaskSubmitPayload{TaskID: "t2", Steps: []*domain.Step{{ID: "x", Action: "fly"}}}
	err := env.orch.handleSubmit(ctx, delivery(mq.MessageTypeTaskSubmit, invalid, false))
	if !mq.IsPermanent(err) {
		t.Errorf("invalid task should be a permanent error, got %v", err)
	}
}

func TestHandleCancel(t *testing.T) {
	env := newTestEnv(t, "r1")
	ctx := context.Background()

	err := env.orch.handleCancel(ctx, delivery(mq.MessageTypeTaskCancel, mq.TaskCancelPayload{TaskID: "missing"}, false))
	if !mq.IsPermanent(err) {
		t.Errorf("unknown task should be a permanent error, got %v", err)
	}

	env.orch.Submit(ctx, speakTask("t1", 1))
	if err := env.orch.handleCancel(ctx, delivery(mq.MessageTypeTaskCancel, mq.TaskCancelPayload{TaskID: "t1"}, false)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.status("t1") != domain.TaskStatusCancelled {
		t.Errorf("expected CANCELLED, got %s", env.status("t1"))
	}
}
