package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/patrol/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeTaskSubmit   MessageType = "task.submit"
	MessageTypeTaskCancel   MessageType = "task.cancel"
	MessageTypeTaskFinished MessageType = "task.finished"
	MessageTypeNotification MessageType = "notification"
)

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// TaskSubmitPayload — команда на постановку task в очередь робота.
type TaskSubmitPayload struct {
	// TaskID — опционально; пустой ID генерируется при приёме.
	TaskID   string         `json:"task_id,omitempty"`
	RobotID  string         `json:"robot_id,omitempty"`
	Steps    []*domain.Step `json:"steps"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Task собирает из payload новую task в статусе QUEUED.
func (p TaskSubmitPayload) Task() *domain.Task {
	return &domain.Task{
		ID:       p.TaskID,
		RobotID:  p.RobotID,
		Steps:    p.Steps,
		Metadata: p.Metadata,
		Status:   domain.TaskStatusQueued,
	}
}

// TaskCancelPayload — команда на отмену task.
type TaskCancelPayload struct {
	TaskID string `json:"task_id"`
}

// TaskFinishedPayload — событие о завершённой task.
type TaskFinishedPayload struct {
	TaskID       string         `json:"task_id"`
	RobotID      string         `json:"robot_id"`
	Status       string         `json:"status"`
	BedsTotal    int            `json:"beds_total"`
	BedsMeasured int            `json:"beds_measured"`
	DurationSec  float64        `json:"duration_sec"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	FinishedAt   *time.Time     `json:"finished_at,omitempty"`
}

// NewTaskFinishedPayload собирает событие из снимка task.
func NewTaskFinishedPayload(task *domain.Task) TaskFinishedPayload {
	total, measured := task.ScanSummary()
	return TaskFinishedPayload{
		TaskID:       task.ID,
		RobotID:      task.RobotID,
		Status:       string(task.Status),
		BedsTotal:    total,
		BedsMeasured: measured,
		DurationSec:  task.Duration().Seconds(),
		Metadata:     task.Metadata,
		FinishedAt:   task.FinishedAt,
	}
}

// NotificationPayload — текстовое уведомление для операторов.
type NotificationPayload struct {
	Text string `json:"text"`
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Type:         string(msg.Type),
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)

		return nil
	})
}

// PublishJSON публикует произвольный payload как новое сообщение.
func (p *Publisher) PublishJSON(ctx context.Context, exchange Exchange, routingKey RoutingKey, msgType MessageType, payload any) error {
	return p.Publish(ctx, exchange, routingKey, NewMessage(msgType, payload))
}

// NewMessage создаёт сообщение со свежим ID и временем.
func NewMessage(msgType MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// PublishTaskSubmit отправляет task на выполнение.
// Потребитель: patrol-engine.
func (p *Publisher) PublishTaskSubmit(ctx context.Context, payload TaskSubmitPayload) error {
	return p.PublishJSON(ctx, ExchangeTasks, RoutingKeySubmit, MessageTypeTaskSubmit, payload)
}

// PublishTaskCancel отправляет команду отмены.
// Потребитель: patrol-engine.
func (p *Publisher) PublishTaskCancel(ctx context.Context, taskID string) error {
	return p.PublishJSON(ctx, ExchangeTasks, RoutingKeyCancel, MessageTypeTaskCancel, TaskCancelPayload{TaskID: taskID})
}

// PublishTaskFinished публикует событие о завершённой task.
func (p *Publisher) PublishTaskFinished(ctx context.Context, task *domain.Task) error {
	return p.PublishJSON(ctx, ExchangeEvents, RoutingKeyFinished, MessageTypeTaskFinished, NewTaskFinishedPayload(task))
}

// PublishNotification публикует уведомление для операторов.
func (p *Publisher) PublishNotification(ctx context.Context, text string) error {
	return p.PublishJSON(ctx, ExchangeEvents, RoutingKeyNotify, MessageTypeNotification, NotificationPayload{Text: text})
}
