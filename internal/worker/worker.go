package worker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shaiso/patrol/internal/domain"
	"github.com/shaiso/patrol/internal/registry"
	"github.com/shaiso/patrol/internal/telemetry"
)

// FinishedFunc получает снимок task после завершения её выполнения.
type FinishedFunc func(ctx context.Context, task *domain.Task)

// Worker разбирает очередь одного робота.
//
// Task выполняются строго по одной в порядке поступления. Task,
// отменённая пока ждала в очереди, пропускается без выполнения.
type Worker struct {
	robotID    string
	lane       *registry.Lane
	engine     *Engine
	store      Store
	onFinished FinishedFunc
	logger     *slog.Logger
}

// Config — конфигурация Worker.
type Config struct {
	Lane   *registry.Lane
	Engine *Engine
	Store  Store

	// OnFinished вызывается после каждой выполненной task (опционально).
	OnFinished FinishedFunc

	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	robotID := cfg.Lane.RobotID()

	return &Worker{
		robotID:    robotID,
		lane:       cfg.Lane,
		engine:     cfg.Engine,
		store:      cfg.Store,
		onFinished: cfg.OnFinished,
		logger:     telemetry.WithRobotID(logger, robotID),
	}
}

// RobotID возвращает робота воркера.
func (w *Worker) RobotID() string {
	return w.robotID
}

// Run разбирает очередь до отмены ctx.
// Текущая task при отмене доводится Engine до конечного статуса.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started")
	defer w.logger.Info("worker stopped")

	for {
		job, err := w.lane.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		telemetry.LaneDepth.WithLabelValues(w.robotID).Set(float64(w.lane.Len()))

		w.process(ctx, job)
	}
}

// process выполняет одну task из очереди.
func (w *Worker) process(ctx context.Context, job registry.Job) {
	task := job.Task

	var status domain.TaskStatus
	w.store.View(func() { status = task.Status })
	if status != domain.TaskStatusQueued {
		w.logger.Info("skipping task", "task_id", task.ID, "status", status)
		return
	}

	w.engine.Run(ctx, task, job.Graph)

	if w.onFinished == nil {
		return
	}
	var snapshot *domain.Task
	w.store.View(func() { snapshot = task.Clone() })
	w.onFinished(ctx, snapshot)
}
