// Package retry повторяет вызовы устройства при временных сбоях транспорта.
//
// Временными считаются gRPC-статусы Unavailable, DeadlineExceeded и
// ResourceExhausted. Остальные ошибки возвращаются сразу, без повторов.
//
// Задержка между попытками: min(BaseDelay * 2^attempt, MaxDelay).
// После последней попытки ошибка возвращается вызывающему как есть.
package retry
