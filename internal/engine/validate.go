package engine

import (
	"encoding/json"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/shaiso/patrol/internal/domain"
)

// Validate проверяет task и возвращает все найденные нарушения.
//
// Проверяет:
// - Наличие и уникальность ID шагов
// - Известность действия
// - Что каждый ID в skip_on_failure ссылается на другой шаг той же task
//
// Пустой список означает, что task можно ставить в очередь.
func Validate(task *domain.Task) []*ValidationError {
	if task == nil {
		return []*ValidationError{NewValidationError("", "task", "task is nil", ErrNilTask)}
	}

	var errs []*ValidationError
	stepIDs := make(map[string]bool, len(task.Steps))

	for i, step := range task.Steps {
		if step == nil || step.ID == "" {
			errs = append(errs, NewValidationError("", "step_id",
				fmt.Sprintf("step %d has empty ID", i), ErrEmptyStepID))
			continue
		}

		if stepIDs[step.ID] {
			errs = append(errs, NewValidationError(step.ID, "step_id",
				fmt.Sprintf("duplicate step ID: %s", step.ID), ErrDuplicateStepID))
		}
		stepIDs[step.ID] = true

		if !step.Action.IsValid() {
			errs = append(errs, NewValidationError(step.ID, "action",
				fmt.Sprintf("unknown action: %s", step.Action), ErrUnknownAction))
		}
	}

	errs = append(errs, validateSkipTargets(task.Steps, stepIDs)...)
	return errs
}

// validateSkipTargets проверяет граф skip_on_failure.
func validateSkipTargets(steps []*domain.Step, stepIDs map[string]bool) []*ValidationError {
	var errs []*ValidationError

	for _, step := range steps {
		if step == nil {
			continue
		}
		for _, target := range step.SkipOnFailure {
			if target == step.ID {
				errs = append(errs, NewValidationError(step.ID, "skip_on_failure",
					"step cannot skip itself", ErrSelfSkip))
				continue
			}
			if !stepIDs[target] {
				errs = append(errs, NewValidationError(step.ID, "skip_on_failure",
					fmt.Sprintf("references non-existent skip target %q", target), ErrMissingSkipTarget))
			}
		}
	}

	return errs
}

// ValidateTask сворачивает все нарушения в одну ошибку, обёрнутую в ErrInvalidTask.
// Возвращает nil для корректной task.
func ValidateTask(task *domain.Task) error {
	var result *multierror.Error
	for _, e := range Validate(task) {
		result = multierror.Append(result, e)
	}
	if result == nil {
		return nil
	}
	result.ErrorFormat = formatErrors
	return fmt.Errorf("%w: %w", ErrInvalidTask, result)
}

func formatErrors(errs []error) string {
	msg := ""
	for i, err := range errs {
		if i > 0 {
			msg += "; "
		}
		msg += err.Error()
	}
	return msg
}

// ParseTask разбирает JSON-описание task и валидирует его.
func ParseTask(data []byte) (*domain.Task, error) {
	var task domain.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("%w: parse json: %v", ErrInvalidTask, err)
	}
	if err := ValidateTask(&task); err != nil {
		return nil, err
	}
	return &task, nil
}
