// Package cli реализует patrolctl, утилиту командной строки
// для патрульных task.
//
// Команды отправляются движку через RabbitMQ (task.submit, task.cancel),
// история читается из архива в PostgreSQL. Валидация task выполняется
// локально тем же кодом, что и в движке.
//
// # Client
//
// Подключения к RabbitMQ и PostgreSQL открываются лениво: `task validate`
// работает без инфраструктуры.
//
// # Output
//
// Таблица через text/tabwriter или JSON при флаге --json.
package cli
