package engine

import "errors"

// Ошибки валидации task.
var (
	// ErrNilTask — task не передана.
	ErrNilTask = errors.New("task is nil")

	// ErrEmptyStepID — шаг не имеет ID.
	ErrEmptyStepID = errors.New("step has empty ID")

	// ErrDuplicateStepID — несколько шагов с одинаковым ID.
	ErrDuplicateStepID = errors.New("duplicate step ID")

	// ErrUnknownAction — неизвестное действие шага.
	ErrUnknownAction = errors.New("unknown action")

	// ErrMissingSkipTarget — skip_on_failure ссылается на несуществующий шаг.
	ErrMissingSkipTarget = errors.New("skip target does not exist")

	// ErrSelfSkip — шаг пропускает сам себя.
	ErrSelfSkip = errors.New("step cannot skip itself")

	// ErrInvalidTask — общая ошибка, в которую заворачиваются все нарушения.
	ErrInvalidTask = errors.New("invalid task")
)

// ValidationError — ошибка валидации с контекстом.
type ValidationError struct {
	StepID  string // ID шага, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.StepID != "" {
		return "step " + e.StepID + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(stepID, field, message string, err error) *ValidationError {
	return &ValidationError{
		StepID:  stepID,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
