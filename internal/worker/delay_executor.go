package worker

import (
	"context"
	"time"

	"github.com/shaiso/patrol/internal/device"
	"github.com/shaiso/patrol/internal/domain"
)

// defaultWaitSeconds — пауза шага wait без параметра seconds.
const defaultWaitSeconds = 1.0

// WaitExecutor — executor для шага "wait".
//
// Ожидает указанное количество секунд. Поддерживает отмену через context.
//
// Params:
//   - seconds (number): длительность паузы (default: 1)
type WaitExecutor struct{}

// Execute выполняет паузу.
func (e *WaitExecutor) Execute(ctx context.Context, rc *RunContext, step *domain.Step) (*domain.StepResult, error) {
	p := domain.WaitParams{Seconds: defaultWaitSeconds}
	if err := domain.DecodeParams(step.Params, &p); err != nil {
		return nil, err
	}
	if p.Seconds < 0 {
		p.Seconds = 0
	}

	timer := time.NewTimer(time.Duration(p.Seconds * float64(time.Second)))
	defer timer.Stop()

	select {
	case <-timer.C:
		return domain.NewStepResult(true, device.CodeSuccess, "", map[string]any{"waited_sec": p.Seconds}), nil
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}
}
