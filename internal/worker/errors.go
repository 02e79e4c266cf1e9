package worker

import "errors"

// Ошибки воркера.
var (
	// ErrUnknownAction — нет executor'а для действия шага.
	ErrUnknownAction = errors.New("unknown action")

	// ErrShelfDropped — причина отмены шага, прерванного монитором полки.
	ErrShelfDropped = errors.New("shelf dropped")

	// ErrExecutorPanic — executor упал с паникой.
	ErrExecutorPanic = errors.New("executor panic")

	// ErrNoResult — executor не вернул ни результата, ни ошибки.
	ErrNoResult = errors.New("executor returned no result")

	// ErrShutdown — причина остановки task при завершении процесса.
	ErrShutdown = errors.New("worker shutting down")
)
