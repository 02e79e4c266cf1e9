package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/patrol/internal/domain"
	"github.com/shaiso/patrol/internal/engine"
	"github.com/shaiso/patrol/internal/registry"
	"github.com/shaiso/patrol/internal/repo"
	"github.com/shaiso/patrol/internal/telemetry"
)

// Submit валидирует task и ставит её в очередь робота.
//
// Переданная task копируется: вызывающий может дальше её менять.
// Если робот не зарегистрирован, task сохраняется в реестре со статусом
// FAILED и возвращается вместе с ErrRobotNotRegistered.
func (o *Orchestrator) Submit(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	if task == nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTask, engine.ErrNilTask)
	}
	task = task.Clone()

	graph, err := engine.BuildSkipGraph(task)
	if err != nil {
		telemetry.TasksSubmitted.WithLabelValues("invalid").Inc()
		return nil, err
	}

	if task.ID == "" {
		task.ID = uuid.NewString()
	} else if _, err := o.registry.Get(task.ID); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrTaskExists, task.ID)
	}

	task.RobotID, err = o.resolveRobot(task.RobotID)
	if err != nil {
		return nil, err
	}

	for _, step := range task.Steps {
		step.Status = domain.StepStatusPending
		step.Result = nil
	}
	task.CreatedAt = time.Now()
	task.StartedAt = nil
	task.FinishedAt = nil

	logger := telemetry.WithRobotID(telemetry.WithTaskID(o.logger, task.ID), task.RobotID)

	lane, ok := o.registry.Lane(task.RobotID)
	if !ok {
		err := fmt.Errorf("%w: %s", ErrRobotNotRegistered, task.RobotID)
		task.SetMetadata("error", err.Error())
		task.Finish(domain.TaskStatusFailed)
		o.registry.Put(task)
		telemetry.TasksSubmitted.WithLabelValues("rejected").Inc()
		logger.Warn("task rejected", "error", err)

		snapshot := task.Clone()
		o.archiveTask(ctx, snapshot)
		return snapshot, err
	}

	task.Status = domain.TaskStatusQueued
	o.registry.Put(task)
	snapshot := task.Clone()
	lane.Push(registry.Job{Task: task, Graph: graph})

	telemetry.TasksSubmitted.WithLabelValues("queued").Inc()
	telemetry.LaneDepth.WithLabelValues(task.RobotID).Set(float64(lane.Len()))
	logger.Info("task queued", "steps", len(task.Steps))

	return snapshot, nil
}

// resolveRobot выбирает робота для task без robot_id: единственный
// зарегистрированный, иначе робот по умолчанию.
func (o *Orchestrator) resolveRobot(robotID string) (string, error) {
	if robotID != "" {
		return robotID, nil
	}
	robots := o.registry.Robots()
	switch {
	case len(robots) == 1:
		return robots[0], nil
	case o.defaultRobotID != "":
		return o.defaultRobotID, nil
	default:
		return "", ErrNoRobot
	}
}

// Cancel отменяет task.
//
// QUEUED и IN_PROGRESS переводятся в CANCELLED; выполняемая task
// остановится на следующей проверке между шагами. Повторная отмена
// возвращает task без изменений. DONE и FAILED отменить нельзя.
func (o *Orchestrator) Cancel(ctx context.Context, id string) (*domain.Task, error) {
	var snapshot *domain.Task
	var wasQueued, rearchive bool

	err := o.registry.Modify(id, func(task *domain.Task, _ string) error {
		switch {
		case task.Status.IsFinished():
			return fmt.Errorf("%w: %s is %s", ErrTaskFinished, id, task.Status)
		case task.Status == domain.TaskStatusCancelled:
		case task.Status == domain.TaskStatusQueued:
			wasQueued = true
			task.SetMetadata("cancel_reason", "cancelled while queued")
			task.Finish(domain.TaskStatusCancelled)
		case task.Status == domain.TaskStatusShelfDropped:
			// Полку восстановили вручную, Engine уже отпустил task.
			rearchive = true
			task.SetMetadata("cancel_reason", "cancelled after shelf drop")
			task.Finish(domain.TaskStatusCancelled)
		default:
			task.Status = domain.TaskStatusCancelled
		}
		snapshot = task.Clone()
		return nil
	})
	if errors.Is(err, registry.ErrTaskNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	o.logger.Info("task cancelled", "task_id", id, "was_queued", wasQueued)

	// Из очереди task уже не дойдёт до Engine: архивируем здесь.
	if wasQueued {
		telemetry.TasksFinished.WithLabelValues(string(domain.TaskStatusCancelled)).Inc()
	}
	if wasQueued || rearchive {
		o.archiveTask(ctx, snapshot)
	}
	return snapshot, nil
}

// Get возвращает task из реестра или, если её там нет, из архива.
func (o *Orchestrator) Get(ctx context.Context, id string) (*domain.Task, error) {
	task, err := o.registry.Get(id)
	if err == nil {
		return task, nil
	}

	if o.archive != nil {
		task, aerr := o.archive.GetByID(ctx, id)
		if aerr == nil {
			return task, nil
		}
		if !errors.Is(aerr, repo.ErrNotFound) {
			return nil, fmt.Errorf("get archived task: %w", aerr)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
}

// List возвращает все task реестра в порядке отправки.
func (o *Orchestrator) List() []*domain.Task {
	return o.registry.List()
}

// History возвращает task из архива.
func (o *Orchestrator) History(ctx context.Context, filter repo.TaskFilter) ([]*domain.Task, error) {
	if o.archive == nil {
		return nil, nil
	}
	return o.archive.List(ctx, filter)
}

// Delete удаляет task из реестра и архива.
//
// Task, которая сейчас выполняется на роботе, удалить нельзя.
// Task из очереди перед удалением помечается CANCELLED, чтобы Worker
// её пропустил.
func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	err := o.registry.Remove(id, func(task *domain.Task, currentID string) error {
		if task.Status == domain.TaskStatusInProgress && currentID == task.ID {
			return fmt.Errorf("%w: %s", ErrTaskInProgress, id)
		}
		if !task.Status.IsTerminal() {
			task.Status = domain.TaskStatusCancelled
		}
		return nil
	})

	switch {
	case errors.Is(err, registry.ErrTaskNotFound):
		if o.archive == nil {
			return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
		}
		if aerr := o.archive.Delete(ctx, id); aerr != nil {
			if errors.Is(aerr, repo.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
			}
			return fmt.Errorf("delete archived task: %w", aerr)
		}
		return nil
	case err != nil:
		return err
	}

	if o.archive != nil {
		if aerr := o.archive.Delete(ctx, id); aerr != nil && !errors.Is(aerr, repo.ErrNotFound) {
			o.logger.Warn("failed to delete archived task", "task_id", id, "error", aerr)
		}
	}
	o.logger.Info("task deleted", "task_id", id)
	return nil
}
