package worker

import (
	"context"

	"github.com/shaiso/patrol/internal/device"
	"github.com/shaiso/patrol/internal/domain"
)

// Executor'ы команд робота без собственного состояния.

func executeSpeak(ctx context.Context, rc *RunContext, step *domain.Step) (*domain.StepResult, error) {
	var p domain.SpeakParams
	if err := domain.DecodeParams(step.Params, &p); err != nil {
		return nil, err
	}
	res, err := rc.Call(ctx, step.Action, func(ctx context.Context) (device.CommandResult, error) {
		return rc.Robot.Speak(ctx, p.Text)
	})
	if err != nil {
		return nil, err
	}
	return commandResult(res, map[string]any{"text": p.Text}), nil
}

func executeMoveToPose(ctx context.Context, rc *RunContext, step *domain.Step) (*domain.StepResult, error) {
	var p domain.PoseParams
	if err := domain.DecodeParams(step.Params, &p); err != nil {
		return nil, err
	}
	res, err := rc.Call(ctx, step.Action, func(ctx context.Context) (device.CommandResult, error) {
		return rc.Robot.MoveToPose(ctx, p.X, p.Y, p.Yaw)
	})
	if err != nil {
		return nil, err
	}
	return commandResult(res, map[string]any{"x": p.X, "y": p.Y, "yaw": p.Yaw}), nil
}

func executeMoveToLocation(ctx context.Context, rc *RunContext, step *domain.Step) (*domain.StepResult, error) {
	var p domain.LocationParams
	if err := domain.DecodeParams(step.Params, &p); err != nil {
		return nil, err
	}
	res, err := rc.Call(ctx, step.Action, func(ctx context.Context) (device.CommandResult, error) {
		return rc.Robot.MoveToLocation(ctx, p.LocationID)
	})
	if err != nil {
		return nil, err
	}
	return commandResult(res, map[string]any{"location_id": p.LocationID}), nil
}

func executeDockShelf(ctx context.Context, rc *RunContext, step *domain.Step) (*domain.StepResult, error) {
	res, err := rc.Call(ctx, step.Action, rc.Robot.DockShelf)
	if err != nil {
		return nil, err
	}
	return commandResult(res, nil), nil
}

func executeUndockShelf(ctx context.Context, rc *RunContext, step *domain.Step) (*domain.StepResult, error) {
	res, err := rc.Call(ctx, step.Action, rc.Robot.UndockShelf)
	if err != nil {
		return nil, err
	}
	return commandResult(res, nil), nil
}

func executeReturnHome(ctx context.Context, rc *RunContext, step *domain.Step) (*domain.StepResult, error) {
	res, err := rc.Call(ctx, step.Action, rc.Robot.ReturnHome)
	if err != nil {
		return nil, err
	}
	return commandResult(res, nil), nil
}

// MoveShelfExecutor везёт полку к кровати.
//
// Точка назначения становится текущей кроватью для bio_scan.
// После первой успешной перевозки запускается монитор полки.
type MoveShelfExecutor struct{}

func (e *MoveShelfExecutor) Execute(ctx context.Context, rc *RunContext, step *domain.Step) (*domain.StepResult, error) {
	var p domain.ShelfParams
	if err := domain.DecodeParams(step.Params, &p); err != nil {
		return nil, err
	}

	rc.targetBed = p.LocationID

	res, err := rc.Call(ctx, step.Action, func(ctx context.Context) (device.CommandResult, error) {
		return rc.Robot.MoveShelf(ctx, p.ShelfID, p.LocationID)
	})
	if err != nil {
		return nil, err
	}
	if res.OK {
		rc.shelfPicked(ctx, p.ShelfID)
	}
	return commandResult(res, map[string]any{
		"shelf_id":    p.ShelfID,
		"location_id": p.LocationID,
	}), nil
}

// ReturnShelfExecutor возвращает полку на место.
//
// Монитор останавливается до команды: после возврата робот законно
// ничего не везёт. Без shelf_id возвращается текущая полка.
type ReturnShelfExecutor struct{}

func (e *ReturnShelfExecutor) Execute(ctx context.Context, rc *RunContext, step *domain.Step) (*domain.StepResult, error) {
	var p domain.ReturnShelfParams
	if err := domain.DecodeParams(step.Params, &p); err != nil {
		return nil, err
	}
	shelfID := p.ShelfID
	if shelfID == "" {
		shelfID = rc.currentShelf
	}

	rc.stopMonitor()

	res, err := rc.Call(ctx, step.Action, func(ctx context.Context) (device.CommandResult, error) {
		return rc.Robot.ReturnShelf(ctx, shelfID)
	})
	if err != nil {
		return nil, err
	}
	if res.OK {
		rc.currentShelf = ""
	}
	return commandResult(res, map[string]any{"shelf_id": shelfID}), nil
}
