package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shaiso/patrol/internal/device"
	"github.com/shaiso/patrol/internal/domain"
	"github.com/shaiso/patrol/internal/engine"
	"github.com/shaiso/patrol/internal/retry"
	"github.com/shaiso/patrol/internal/sensor"
	"github.com/shaiso/patrol/internal/telemetry"
)

// skipReason — почему шаг будет пропущен: какой шаг упал и с какой ошибкой.
type skipReason struct {
	stepID  string
	code    int
	message string
	data    map[string]any
}

// originalError — описание исходной ошибки для результата пропущенного шага.
func (r skipReason) originalError() map[string]any {
	return map[string]any{
		"error_code":    r.code,
		"error_message": r.message,
		"data":          r.data,
	}
}

// RunContext — состояние одного прогона task.
//
// Живёт ровно один Engine.Run. Поля без блокировки читает и пишет только
// горутина Engine; монитор полки трогает лишь dropped и cancelStep.
type RunContext struct {
	TaskID  string
	RobotID string
	Robot   device.Robot
	Sensor  sensor.Client
	Logger  *slog.Logger

	eng   *Engine
	task  *domain.Task
	graph *engine.SkipGraph

	skipped       map[int]skipReason
	targetBed     string // location_id последнего move_shelf
	currentShelf  string // полка, которую робот сейчас везёт
	lastMoveShelf int    // индекс последнего успешного move_shelf или -1
	monitor       *shelfMonitor

	dropped atomic.Bool

	mu         sync.Mutex
	cancelStep context.CancelCauseFunc
}

func newRunContext(e *Engine, task *domain.Task, graph *engine.SkipGraph, logger *slog.Logger) *RunContext {
	return &RunContext{
		TaskID:        task.ID,
		RobotID:       e.robotID,
		Robot:         e.robot,
		Sensor:        e.sensor,
		Logger:        logger,
		eng:           e,
		task:          task,
		graph:         graph,
		skipped:       make(map[int]skipReason),
		lastMoveShelf: -1,
	}
}

// Call выполняет команду робота с retry, если действие это допускает.
// Команды перемещения получают урезанный лимит повторов.
func (rc *RunContext) Call(ctx context.Context, action domain.Action, fn func(ctx context.Context) (device.CommandResult, error)) (device.CommandResult, error) {
	if !action.Retryable() {
		return fn(ctx)
	}

	policy := rc.eng.retry
	if action.Movement() {
		policy = policy.WithMaxRetries(rc.eng.movementRetries)
	}
	policy.Logger = rc.Logger
	hook := policy.OnRetry
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		telemetry.DeviceRetries.WithLabelValues(string(action)).Inc()
		if hook != nil {
			hook(attempt, delay, err)
		}
	}

	return retry.Do(ctx, policy, fn)
}

// Dropped возвращает true, если монитор обнаружил падение полки.
func (rc *RunContext) Dropped() bool {
	return rc.dropped.Load()
}

// beginStep создаёт контекст шага, который монитор может прервать.
// Возвращённую функцию нужно вызвать по завершении шага.
func (rc *RunContext) beginStep(ctx context.Context) (context.Context, func()) {
	stepCtx, cancel := context.WithCancelCause(ctx)

	rc.mu.Lock()
	rc.cancelStep = cancel
	rc.mu.Unlock()

	if rc.dropped.Load() {
		cancel(ErrShelfDropped)
	}

	return stepCtx, func() {
		rc.mu.Lock()
		rc.cancelStep = nil
		rc.mu.Unlock()
		cancel(nil)
	}
}

// markDropped фиксирует падение полки и прерывает текущий шаг.
// Вызывается из горутины монитора.
func (rc *RunContext) markDropped() {
	rc.dropped.Store(true)

	rc.mu.Lock()
	cancel := rc.cancelStep
	rc.mu.Unlock()

	if cancel != nil {
		cancel(ErrShelfDropped)
	}
}

// shelfPicked запоминает перевозимую полку и запускает монитор,
// если он ещё не запущен.
func (rc *RunContext) shelfPicked(ctx context.Context, shelfID string) {
	if shelfID != "" {
		rc.currentShelf = shelfID
	}
	if rc.monitor != nil {
		return
	}
	rc.monitor = startShelfMonitor(context.WithoutCancel(ctx), monitorConfig{
		Robot:    rc.Robot,
		Interval: rc.eng.pollInterval,
		Logger:   rc.Logger,
		OnDrop: func() {
			rc.markDropped()
			rc.eng.bestEffort(ctx, rc.Logger, "cancel_command", rc.eng.sideEffectTimeout, func(ctx context.Context) error {
				_, err := rc.Robot.CancelCommand(ctx)
				return err
			})
		},
	})
}

// stopMonitor останавливает монитор и ждёт его горутину.
func (rc *RunContext) stopMonitor() {
	if rc.monitor == nil {
		return
	}
	rc.monitor.stop()
	rc.monitor = nil
}

// bedLocation возвращает точку кровати для bio_scan шага j:
// location_id move_shelf, который пропускает j, затем location_id
// самого шага, иначе "unknown".
func (rc *RunContext) bedLocation(j int) string {
	if i := rc.graph.SkippedBy(j); i >= 0 {
		if loc := rc.task.Steps[i].StringParam("location_id"); loc != "" && rc.task.Steps[i].Action == domain.ActionMoveShelf {
			return loc
		}
	}
	if loc := rc.task.Steps[j].StringParam("location_id"); loc != "" {
		return loc
	}
	return unknownLocation
}
