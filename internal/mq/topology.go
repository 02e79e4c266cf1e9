package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeTasks  Exchange = "patrol.tasks"
	ExchangeEvents Exchange = "patrol.events"
	ExchangeDLQ    Exchange = "patrol.dlq"
)

// Queues — имена очередей.
const (
	QueueTaskSubmit    Queue = "tasks.submit"
	QueueTaskCancel    Queue = "tasks.cancel"
	QueueTaskFinished  Queue = "tasks.finished"
	QueueNotifications Queue = "notifications"
	QueueDLQTasks      Queue = "dlq.tasks"
)

// Routing keys.
const (
	RoutingKeySubmit   RoutingKey = "submit"
	RoutingKeyCancel   RoutingKey = "cancel"
	RoutingKeyFinished RoutingKey = "finished"
	RoutingKeyNotify   RoutingKey = "notify"
	RoutingKeyDLQTasks RoutingKey = "tasks"
)

// SetupTopology объявляет обменники, очереди и привязки. Идемпотентна.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		if err := declareQueues(ch); err != nil {
			return err
		}
		return bindQueues(ch)
	})
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeTasks, "direct"},
		{ExchangeEvents, "direct"},
		{ExchangeDLQ, "direct"},
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	return nil
}

// declareQueues создаёт очереди.
func declareQueues(ch *amqp.Channel) error {
	// Команды, которые не удалось разобрать, уходят в DLQ
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQTasks),
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		{QueueTaskSubmit, dlqArgs},
		{QueueTaskCancel, dlqArgs},

		// события для внешних потребителей (архив, дашборды)
		{QueueTaskFinished, nil},
		{QueueNotifications, nil},

		{QueueDLQTasks, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}

	return nil
}

// bindQueues привязывает очереди к обменникам.
func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueTaskSubmit, RoutingKeySubmit, ExchangeTasks},
		{QueueTaskCancel, RoutingKeyCancel, ExchangeTasks},
		{QueueTaskFinished, RoutingKeyFinished, ExchangeEvents},
		{QueueNotifications, RoutingKeyNotify, ExchangeEvents},
		{QueueDLQTasks, RoutingKeyDLQTasks, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Patrol RabbitMQ Topology:

    patrol.tasks (direct)
    ├── tasks.submit [routing: submit]
    │       Consumer: patrol-engine
    │       DLQ: dlq.tasks
    └── tasks.cancel [routing: cancel]
            Consumer: patrol-engine
            DLQ: dlq.tasks

    patrol.events (direct)
    ├── tasks.finished [routing: finished]
    └── notifications [routing: notify]

    patrol.dlq (direct)
    └── dlq.tasks [routing: tasks]
            Manual processing
  `
}
