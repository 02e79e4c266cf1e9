package domain

import (
	"errors"
	"fmt"
	"slices"

	"github.com/mitchellh/mapstructure"
)

// ErrMissingParam — в Params шага нет обязательного параметра.
var ErrMissingParam = errors.New("missing required parameter")

// Action — действие шага.
type Action string

// Допустимые действия.
const (
	ActionSpeak          Action = "speak"
	ActionMoveToPose     Action = "move_to_pose"
	ActionMoveToLocation Action = "move_to_location"
	ActionDockShelf      Action = "dock_shelf"
	ActionUndockShelf    Action = "undock_shelf"
	ActionMoveShelf      Action = "move_shelf"
	ActionReturnShelf    Action = "return_shelf"
	ActionReturnHome     Action = "return_home"
	ActionBioScan        Action = "bio_scan"
	ActionWait           Action = "wait"
)

var knownActions = map[Action]bool{
	ActionSpeak:          true,
	ActionMoveToPose:     true,
	ActionMoveToLocation: true,
	ActionDockShelf:      true,
	ActionUndockShelf:    true,
	ActionMoveShelf:      true,
	ActionReturnShelf:    true,
	ActionReturnHome:     true,
	ActionBioScan:        true,
	ActionWait:           true,
}

// IsValid возвращает true для известного действия.
func (a Action) IsValid() bool {
	return knownActions[a]
}

// NonCritical возвращает true, если неудача действия (без skip_on_failure)
// не валит всю task.
func (a Action) NonCritical() bool {
	switch a {
	case ActionBioScan, ActionWait, ActionSpeak, ActionReturnShelf:
		return true
	default:
		return false
	}
}

// Retryable возвращает true, если вызов устройства оборачивается в retry с backoff.
func (a Action) Retryable() bool {
	switch a {
	case ActionMoveToLocation, ActionDockShelf, ActionUndockShelf, ActionMoveShelf, ActionReturnShelf:
		return true
	default:
		return false
	}
}

// Movement возвращает true для команд перемещения, у которых урезан лимит retry.
func (a Action) Movement() bool {
	switch a {
	case ActionMoveToLocation, ActionDockShelf, ActionUndockShelf:
		return true
	default:
		return false
	}
}

// KnownActions возвращает список допустимых действий.
func KnownActions() []Action {
	out := make([]Action, 0, len(knownActions))
	for a := range knownActions {
		out = append(out, a)
	}
	return out
}

// Параметры действий.

type SpeakParams struct {
	Text string `mapstructure:"speak_text"`
}

func (SpeakParams) Required() []string { return []string{"speak_text"} }

type PoseParams struct {
	X   float64 `mapstructure:"x"`
	Y   float64 `mapstructure:"y"`
	Yaw float64 `mapstructure:"yaw"`
}

func (PoseParams) Required() []string { return []string{"x", "y", "yaw"} }

type LocationParams struct {
	LocationID string `mapstructure:"location_id"`
}

func (LocationParams) Required() []string { return []string{"location_id"} }

type ShelfParams struct {
	ShelfID    string `mapstructure:"shelf_id"`
	LocationID string `mapstructure:"location_id"`
}

func (ShelfParams) Required() []string { return []string{"shelf_id", "location_id"} }

// ReturnShelfParams — параметры return_shelf; без shelf_id возвращается
// текущая полка.
type ReturnShelfParams struct {
	ShelfID string `mapstructure:"shelf_id"`
}

type ScanParams struct {
	BedKey     string `mapstructure:"bed_key"`
	LocationID string `mapstructure:"location_id"`
}

type WaitParams struct {
	Seconds float64 `mapstructure:"seconds"`
}

// requiredParams реализуют структуры параметров с обязательными ключами.
type requiredParams interface {
	Required() []string
}

// DecodeParams раскладывает Params шага в типизированную структуру.
// Строки с числами ("1.5") приводятся к числам. Отсутствие ключа из
// Required() возвращает ErrMissingParam.
func DecodeParams(params map[string]any, out any) error {
	if params == nil {
		params = map[string]any{}
	}

	var md mapstructure.Metadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Metadata:         &md,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("build params decoder: %w", err)
	}
	if err := dec.Decode(params); err != nil {
		return fmt.Errorf("decode params: %w", err)
	}

	if r, ok := out.(requiredParams); ok {
		var missing []string
		for _, key := range r.Required() {
			if slices.Contains(md.Unset, key) {
				missing = append(missing, key)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("%w: %v", ErrMissingParam, missing)
		}
	}
	return nil
}

// StringParam возвращает строковый параметр или пустую строку.
func (s *Step) StringParam(key string) string {
	if s == nil || s.Params == nil {
		return ""
	}
	if v, ok := s.Params[key].(string); ok {
		return v
	}
	return ""
}
