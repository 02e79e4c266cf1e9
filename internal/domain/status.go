package domain

// TaskStatus — статус выполнения task.
//
// Жизненный цикл:
//
//	QUEUED → IN_PROGRESS → DONE
//	                     ↘ FAILED
//	                     ↘ SHELF_DROPPED (нужно ручное восстановление)
//	  (или) → CANCELLED (из QUEUED или IN_PROGRESS)
type TaskStatus string

const (
	// TaskStatusQueued — task в очереди робота.
	TaskStatusQueued TaskStatus = "QUEUED"

	// TaskStatusInProgress — task выполняется.
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"

	// TaskStatusDone — все шаги пройдены.
	TaskStatusDone TaskStatus = "DONE"

	// TaskStatusFailed — критическая ошибка шага или неизвестный робот.
	TaskStatusFailed TaskStatus = "FAILED"

	// TaskStatusCancelled — отменена пользователем.
	TaskStatusCancelled TaskStatus = "CANCELLED"

	// TaskStatusShelfDropped — полка упала во время перевозки.
	TaskStatusShelfDropped TaskStatus = "SHELF_DROPPED"
)

// IsTerminal возвращает true, если выполнение task закончено.
// SHELF_DROPPED тоже конечный для текущего запуска.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusDone, TaskStatusFailed, TaskStatusCancelled, TaskStatusShelfDropped:
		return true
	default:
		return false
	}
}

// IsFinished возвращает true для DONE и FAILED — такие task нельзя отменить.
func (s TaskStatus) IsFinished() bool {
	return s == TaskStatusDone || s == TaskStatusFailed
}

// StepStatus — статус шага.
//
//	PENDING → EXECUTING → SUCCESS
//	                    ↘ FAIL
//	        (или) → SKIPPED
type StepStatus string

const (
	StepStatusPending   StepStatus = "PENDING"
	StepStatusExecuting StepStatus = "EXECUTING"
	StepStatusSuccess   StepStatus = "SUCCESS"
	StepStatusFail      StepStatus = "FAIL"
	StepStatusSkipped   StepStatus = "SKIPPED"
)

// ParseTaskStatus парсит строку в TaskStatus. Неизвестное значение — QUEUED.
func ParseTaskStatus(s string) TaskStatus {
	switch TaskStatus(s) {
	case TaskStatusInProgress, TaskStatusDone, TaskStatusFailed,
		TaskStatusCancelled, TaskStatusShelfDropped:
		return TaskStatus(s)
	default:
		return TaskStatusQueued
	}
}
