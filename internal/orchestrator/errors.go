package orchestrator

import (
	"errors"

	"github.com/shaiso/patrol/internal/engine"
)

// Ошибки оркестратора.
var (
	// ErrTaskNotFound — task нет ни в реестре, ни в архиве.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskFinished — task уже DONE или FAILED, отменять нечего.
	ErrTaskFinished = errors.New("task already finished")

	// ErrTaskInProgress — task сейчас выполняется на роботе.
	ErrTaskInProgress = errors.New("task is in progress")

	// ErrTaskExists — task с таким ID уже отправлена.
	ErrTaskExists = errors.New("task already exists")

	// ErrRobotNotRegistered — у робота нет очереди.
	ErrRobotNotRegistered = errors.New("robot not registered")

	// ErrNoRobot — робот не указан и выбрать его не из чего.
	ErrNoRobot = errors.New("no robot to run the task")

	// ErrAlreadyStarted — роботов можно регистрировать только до Start.
	ErrAlreadyStarted = errors.New("orchestrator already started")

	// ErrInvalidTask — task не прошла валидацию.
	ErrInvalidTask = engine.ErrInvalidTask
)
