package registry

import "errors"

var (
	// ErrTaskNotFound — task нет в реестре.
	ErrTaskNotFound = errors.New("task not found")

	// ErrRobotBusy — у робота уже есть текущая task.
	ErrRobotBusy = errors.New("robot already has a current task")

	// ErrLaneExists — очередь робота уже зарегистрирована.
	ErrLaneExists = errors.New("robot lane already registered")
)
