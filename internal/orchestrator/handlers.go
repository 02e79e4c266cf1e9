package orchestrator

import (
	"context"
	"errors"

	"github.com/shaiso/patrol/internal/mq"
)

// consumers создаёт consumers очередей команд.
func (o *Orchestrator) consumers() []*mq.Consumer {
	return []*mq.Consumer{
		mq.NewConsumer(o.conn, o.logger, mq.ConsumerConfig{
			Queue:    mq.QueueTaskSubmit,
			Handler:  o.handleSubmit,
			Prefetch: o.prefetch,
		}),
		mq.NewConsumer(o.conn, o.logger, mq.ConsumerConfig{
			Queue:    mq.QueueTaskCancel,
			Handler:  o.handleCancel,
			Prefetch: o.prefetch,
		}),
	}
}

// handleSubmit обрабатывает команду task.submit.
func (o *Orchestrator) handleSubmit(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.TaskSubmitPayload](&delivery.Message)
	if err != nil {
		o.logger.Error("failed to parse task.submit payload", "error", err)
		return err
	}

	task, err := o.Submit(ctx, payload.Task())
	switch {
	case err == nil:
		o.logger.Debug("task submitted from queue", "task_id", task.ID, "message_id", delivery.Message.ID)
		return nil
	case errors.Is(err, ErrTaskExists) && delivery.Redelivered:
		// Повторная доставка уже принятой команды.
		o.logger.Debug("duplicate task.submit ignored", "task_id", payload.TaskID)
		return nil
	case errors.Is(err, ErrInvalidTask),
		errors.Is(err, ErrTaskExists),
		errors.Is(err, ErrRobotNotRegistered),
		errors.Is(err, ErrNoRobot):
		o.logger.Warn("task.submit rejected", "task_id", payload.TaskID, "error", err)
		return mq.Permanent(err)
	default:
		return err
	}
}

// handleCancel обрабатывает команду task.cancel.
func (o *Orchestrator) handleCancel(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.TaskCancelPayload](&delivery.Message)
	if err != nil {
		o.logger.Error("failed to parse task.cancel payload", "error", err)
		return err
	}

	_, err = o.Cancel(ctx, payload.TaskID)
	if errors.Is(err, ErrTaskNotFound) || errors.Is(err, ErrTaskFinished) {
		o.logger.Warn("task.cancel rejected", "task_id", payload.TaskID, "error", err)
		return mq.Permanent(err)
	}
	return err
}
