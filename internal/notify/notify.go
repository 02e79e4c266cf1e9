// Package notify отправляет текстовые уведомления операторам.
//
// Отправка best-effort: ошибки логируются вызывающим и никогда
// не влияют на статус task.
package notify

import (
	"context"
	"log/slog"
)

// Notifier отправляет сообщение.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// Func адаптирует функцию к Notifier.
type Func func(ctx context.Context, text string) error

func (f Func) Send(ctx context.Context, text string) error {
	return f(ctx, text)
}

// Nop ничего не отправляет.
type Nop struct{}

func (Nop) Send(ctx context.Context, text string) error {
	return nil
}

// Log пишет уведомления в лог.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Send(ctx context.Context, text string) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "notification", "text", text)
	return nil
}

// Publisher публикует уведомление в брокер. Реализуется mq.Publisher.
type Publisher interface {
	PublishNotification(ctx context.Context, text string) error
}

// Broker отправляет уведомления через брокер сообщений.
type Broker struct {
	publisher Publisher
}

// NewBroker создаёт Notifier поверх брокера.
func NewBroker(p Publisher) *Broker {
	return &Broker{publisher: p}
}

func (b *Broker) Send(ctx context.Context, text string) error {
	return b.publisher.PublishNotification(ctx, text)
}
