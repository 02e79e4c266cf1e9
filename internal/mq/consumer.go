package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler — функция обработки сообщения.
//
// nil — ack. Ошибка, помеченная Permanent, — nack без requeue (DLQ).
// Любая другая ошибка — nack с возвратом в очередь.
type Handler func(ctx context.Context, msg *Delivery) error

// Delivery — доставленное сообщение.
type Delivery struct {
	// Message — распарсенное сообщение.
	Message Message

	// Redelivered — сообщение уже доставлялось и было возвращено в очередь.
	Redelivered bool
}

// Consumer потребляет сообщения из очереди RabbitMQ.
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	queue    Queue
	handler  Handler
	prefetch int
}

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	Queue   Queue
	Handler Handler

	// Prefetch — количество неподтверждённых сообщений (default: 1).
	Prefetch int
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}

	return &Consumer{
		conn:     conn,
		logger:   logger.With("queue", string(cfg.Queue)),
		queue:    cfg.Queue,
		handler:  cfg.Handler,
		prefetch: prefetch,
	}
}

// Run потребляет сообщения до отмены ctx, переживая переподключения.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		deliveries, err := c.setupConsume()
		if err != nil {
			c.logger.Error("failed to setup consume", "error", err)
			if werr := c.waitReconnect(ctx); werr != nil {
				return werr
			}
			continue
		}

		c.logger.Info("consumer started")

		if err := c.processDeliveries(ctx, deliveries); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("deliveries channel closed, waiting for reconnect")
			if werr := c.waitReconnect(ctx); werr != nil {
				return werr
			}
		}
	}
}

func (c *Consumer) waitReconnect(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.conn.ReconnectNotify():
		c.logger.Info("reconnected, restarting consumer")
		return nil
	}
}

// setupConsume настраивает prefetch и начинает потребление.
func (c *Consumer) setupConsume() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, ErrNoChannel
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		string(c.queue), // queue
		"",              // consumer tag (auto-generated)
		false,           // auto-ack (мы ack вручную)
		false,           // exclusive
		false,           // no-local
		false,           // no-wait
		nil,             // args
	)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}

	return deliveries, nil
}

// processDeliveries обрабатывает сообщения из канала.
func (c *Consumer) processDeliveries(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("deliveries channel closed")
			}
			c.settle(raw, c.handle(ctx, raw.Body, raw.Redelivered))
		}
	}
}

// handle разбирает тело и вызывает обработчик. Ошибка разбора постоянная.
func (c *Consumer) handle(ctx context.Context, body []byte, redelivered bool) error {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return Permanent(fmt.Errorf("unmarshal message: %w", err))
	}

	c.logger.Debug("received message", "message_id", msg.ID, "type", msg.Type)

	return c.handler(ctx, &Delivery{Message: msg, Redelivered: redelivered})
}

// settle подтверждает или отклоняет сообщение по результату обработки.
func (c *Consumer) settle(raw amqp.Delivery, err error) {
	switch {
	case err == nil:
		if aerr := raw.Ack(false); aerr != nil {
			c.logger.Warn("ack failed", "error", aerr)
		}
	case IsPermanent(err):
		c.logger.Error("message rejected", "message_id", raw.MessageId, "error", err)
		if nerr := raw.Nack(false, false); nerr != nil {
			c.logger.Warn("nack failed", "error", nerr)
		}
	default:
		c.logger.Error("handler failed, requeueing", "message_id", raw.MessageId, "error", err)
		if nerr := raw.Nack(false, true); nerr != nil {
			c.logger.Warn("nack failed", "error", nerr)
		}
	}
}

// ParsePayload парсит payload сообщения в указанный тип.
// Ошибка разбора помечена Permanent.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T

	// Payload после json.Unmarshal — map[string]any, перегоняем через JSON
	payloadBytes, err := json.Marshal(msg.Payload)
	if err != nil {
		return result, Permanent(fmt.Errorf("marshal payload: %w", err))
	}

	if err := json.Unmarshal(payloadBytes, &result); err != nil {
		return result, Permanent(fmt.Errorf("unmarshal payload: %w", err))
	}

	return result, nil
}
