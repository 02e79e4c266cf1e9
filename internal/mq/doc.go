// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация команд и событий
//   - consumer.go   — потребление команд
//
// Типы сообщений:
//   - task.submit    — поставить task в очередь робота
//   - task.cancel    — отменить task
//   - task.finished  — task достигла конечного статуса
//   - notification   — текст для операторов
//
// Exchanges:
//   - patrol.tasks   — команды для patrol-engine
//   - patrol.events  — события для внешних потребителей
//   - patrol.dlq     — dead letter queue
package mq
