package worker

import (
	"context"
	"fmt"
	"maps"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/shaiso/patrol/internal/device"
	"github.com/shaiso/patrol/internal/domain"
)

// Executor — интерфейс для выполнения шага конкретного действия.
//
// Логическая неудача (робот ответил кодом ошибки, нет данных измерения)
// возвращается как StepResult с Success=false. error означает, что шаг
// не удалось выполнить вообще: транспорт, отмена, битые параметры.
// Engine превращает такую ошибку в неудачный результат с кодом -1.
type Executor interface {
	Execute(ctx context.Context, rc *RunContext, step *domain.Step) (*domain.StepResult, error)
}

// ExecutorFunc адаптирует функцию к Executor.
type ExecutorFunc func(ctx context.Context, rc *RunContext, step *domain.Step) (*domain.StepResult, error)

func (f ExecutorFunc) Execute(ctx context.Context, rc *RunContext, step *domain.Step) (*domain.StepResult, error) {
	return f(ctx, rc, step)
}

// Registry — реестр executor'ов по действию.
type Registry struct {
	executors map[domain.Action]Executor
}

// NewRegistry создаёт реестр с executor'ами всех известных действий.
func NewRegistry() *Registry {
	r := &Registry{executors: make(map[domain.Action]Executor)}
	r.Register(domain.ActionSpeak, ExecutorFunc(executeSpeak))
	r.Register(domain.ActionMoveToPose, ExecutorFunc(executeMoveToPose))
	r.Register(domain.ActionMoveToLocation, ExecutorFunc(executeMoveToLocation))
	r.Register(domain.ActionDockShelf, ExecutorFunc(executeDockShelf))
	r.Register(domain.ActionUndockShelf, ExecutorFunc(executeUndockShelf))
	r.Register(domain.ActionMoveShelf, &MoveShelfExecutor{})
	r.Register(domain.ActionReturnShelf, &ReturnShelfExecutor{})
	r.Register(domain.ActionReturnHome, ExecutorFunc(executeReturnHome))
	r.Register(domain.ActionBioScan, &ScanExecutor{})
	r.Register(domain.ActionWait, &WaitExecutor{})
	return r
}

// Register добавляет или заменяет executor для действия.
func (r *Registry) Register(action domain.Action, executor Executor) {
	r.executors[action] = executor
}

// Get возвращает executor для действия.
func (r *Registry) Get(action domain.Action) (Executor, error) {
	executor, ok := r.executors[action]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
	return executor, nil
}

// commandResult переводит ответ робота в StepResult.
func commandResult(res device.CommandResult, data map[string]any) *domain.StepResult {
	if res.OK {
		return domain.NewStepResult(true, device.CodeSuccess, "", data)
	}
	msg := res.Error
	if msg == "" {
		msg = device.ErrorMessage(res.ErrorCode)
	}
	return domain.NewStepResult(false, res.ErrorCode, msg, data)
}

// errorResult переводит ошибку выполнения в неудачный StepResult с кодом -1.
func errorResult(step *domain.Step, err error) *domain.StepResult {
	data := map[string]any{
		"action": string(step.Action),
		"params": maps.Clone(step.Params),
	}
	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		data["grpc_code"] = st.Code().String()
	}
	return domain.NewStepResult(false, device.CodeInternal, "Unexpected error: "+err.Error(), data)
}
