package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/patrol/internal/device"
	"github.com/shaiso/patrol/internal/domain"
	"github.com/shaiso/patrol/internal/engine"
	"github.com/shaiso/patrol/internal/notify"
	"github.com/shaiso/patrol/internal/retry"
	"github.com/shaiso/patrol/internal/sensor"
	"github.com/shaiso/patrol/internal/telemetry"
)

// Default configuration values.
const (
	defaultSideEffectTimeout = 30 * time.Second
	defaultCleanupTimeout    = 5 * time.Minute
)

// Store — хранилище, через которое Engine меняет task.
// Реализуется registry.Registry.
type Store interface {
	// Update выполняет fn под блокировкой на запись.
	Update(fn func())
	// View выполняет fn под блокировкой на чтение.
	View(fn func())
	MarkBusy(robotID, taskID string) error
	MarkFree(robotID, taskID string)
}

// EngineConfig — конфигурация Engine.
type EngineConfig struct {
	RobotID  string
	Robot    device.Robot
	Sensor   sensor.Client   // nil — bio_scan всегда неудачен
	Notifier notify.Notifier // nil — уведомления только в лог
	Store    Store

	// Registry (опционально; если nil — используется NewRegistry())
	Registry *Registry

	// Retry команд робота
	MaxRetries         int             // default: 3
	MovementMaxRetries int             // default: 2
	RetryBaseDelay     time.Duration   // default: 2s
	RetryMaxDelay      time.Duration   // default: 10s
	RetrySleep         retry.SleepFunc // подменяется в тестах

	ShelfPollInterval time.Duration // default: 3s
	SideEffectTimeout time.Duration // уведомления и запись измерений (default: 30s)
	CleanupTimeout    time.Duration // возврат полки и робота (default: 5m)

	Logger *slog.Logger
}

// Engine выполняет task одного робота шаг за шагом.
//
// Engine не потокобезопасен относительно самого себя: одновременно
// выполняется не больше одной task. Чтение task другими горутинами
// безопасно через Store.
type Engine struct {
	robotID  string
	robot    device.Robot
	sensor   sensor.Client
	notifier notify.Notifier
	store    Store
	registry *Registry

	retry           retry.Policy
	movementRetries int

	pollInterval      time.Duration
	sideEffectTimeout time.Duration
	cleanupTimeout    time.Duration

	names  *nameCache
	logger *slog.Logger
}

// NewEngine создаёт новый Engine.
func NewEngine(cfg EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = telemetry.WithRobotID(logger, cfg.RobotID)

	policy := retry.DefaultPolicy()
	if cfg.MaxRetries > 0 {
		policy.MaxRetries = cfg.MaxRetries
	}
	if cfg.RetryBaseDelay > 0 {
		policy.BaseDelay = cfg.RetryBaseDelay
	}
	if cfg.RetryMaxDelay > 0 {
		policy.MaxDelay = cfg.RetryMaxDelay
	}
	policy.Sleep = cfg.RetrySleep

	movementRetries := cfg.MovementMaxRetries
	if movementRetries <= 0 {
		movementRetries = retry.MovementMaxRetries
	}

	sideEffectTimeout := cfg.SideEffectTimeout
	if sideEffectTimeout <= 0 {
		sideEffectTimeout = defaultSideEffectTimeout
	}

	cleanupTimeout := cfg.CleanupTimeout
	if cleanupTimeout <= 0 {
		cleanupTimeout = defaultCleanupTimeout
	}

	pollInterval := cfg.ShelfPollInterval
	if pollInterval <= 0 {
		pollInterval = defaultShelfPollInterval
	}

	sensorClient := cfg.Sensor
	if sensorClient == nil {
		sensorClient = sensor.Combine(nil, nil)
	}

	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.Log{Logger: logger}
	}

	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry()
	}

	return &Engine{
		robotID:           cfg.RobotID,
		robot:             cfg.Robot,
		sensor:            sensorClient,
		notifier:          notifier,
		store:             cfg.Store,
		registry:          registry,
		retry:             policy,
		movementRetries:   movementRetries,
		pollInterval:      pollInterval,
		sideEffectTimeout: sideEffectTimeout,
		cleanupTimeout:    cleanupTimeout,
		names:             newNameCache(),
		logger:            logger,
	}
}

// Run выполняет task до конечного статуса и возвращает её.
//
// graph — граф пропусков, построенный при отправке; nil — строится здесь.
// Run не возвращает ошибок: любой сбой шага становится результатом шага,
// любой сбой цикла — статусом FAILED.
func (e *Engine) Run(ctx context.Context, task *domain.Task, graph *engine.SkipGraph) *domain.Task {
	logger := telemetry.WithTaskID(e.logger, task.ID)

	if graph == nil {
		g, err := engine.BuildSkipGraph(task)
		if err != nil {
			logger.Error("task rejected by engine", "error", err)
			e.abort(task, err)
			return task
		}
		graph = g
	}

	if err := e.store.MarkBusy(e.robotID, task.ID); err != nil {
		logger.Error("robot already has a current task", "error", err)
		e.abort(task, err)
		return task
	}
	telemetry.RobotBusy.WithLabelValues(e.robotID).Set(1)

	rc := newRunContext(e, task, graph, logger)
	defer e.finish(ctx, rc)

	e.store.Update(func() {
		if task.Status == domain.TaskStatusQueued {
			task.MarkInProgress()
		}
	})

	logger.Info("task started", "steps", len(task.Steps))
	refreshCtx, cancel := context.WithTimeout(ctx, e.sideEffectTimeout)
	e.names.refresh(refreshCtx, e.robot, logger)
	cancel()

	e.safeLoop(ctx, rc)
	e.complete(ctx, rc)
	return task
}

// abort завершает task, которую не удалось даже начать.
func (e *Engine) abort(task *domain.Task, err error) {
	e.store.Update(func() {
		task.SetMetadata("error", err.Error())
		task.Finish(domain.TaskStatusFailed)
	})
	telemetry.TasksFinished.WithLabelValues(string(domain.TaskStatusFailed)).Inc()
}

// safeLoop выполняет цикл шагов; паника цикла валит task.
func (e *Engine) safeLoop(ctx context.Context, rc *RunContext) {
	defer func() {
		if r := recover(); r != nil {
			rc.Logger.Error("step loop panic", "panic", r)
			e.store.Update(func() {
				rc.task.SetMetadata("error", fmt.Sprintf("engine exception: %v", r))
				if !rc.task.Status.IsTerminal() {
					rc.task.Status = domain.TaskStatusFailed
				}
			})
		}
	}()
	e.loop(ctx, rc)
}

func (e *Engine) loop(ctx context.Context, rc *RunContext) {
	task := rc.task

	for i, step := range task.Steps {
		if e.status(task) == domain.TaskStatusCancelled {
			rc.Logger.Info("task cancelled, stopping", "next_step_id", step.ID)
			return
		}
		if ctx.Err() != nil {
			e.interrupt(rc)
			return
		}
		if rc.Dropped() {
			e.handleShelfDrop(ctx, rc, i, nil)
			return
		}

		if reason, ok := rc.skipped[i]; ok {
			e.skipStep(ctx, rc, i, step, reason)
			continue
		}

		result, interrupted := e.runStep(ctx, rc, step)
		if interrupted {
			e.handleShelfDrop(ctx, rc, i, step)
			return
		}
		e.attach(rc, i, step, result)

		if rc.Dropped() {
			e.handleShelfDrop(ctx, rc, i, step)
			return
		}
		if ctx.Err() != nil {
			e.interrupt(rc)
			return
		}
		if result.Success {
			continue
		}
		if !e.applyFailure(rc, i, step, result) {
			return
		}
	}
}

// runStep выполняет шаг. interrupted == true, если шаг прервал монитор полки;
// результат такого шага не присваивается.
func (e *Engine) runStep(ctx context.Context, rc *RunContext, step *domain.Step) (*domain.StepResult, bool) {
	logger := telemetry.WithStep(rc.Logger, step.ID, string(step.Action))

	e.store.Update(func() {
		step.Status = domain.StepStatusExecuting
	})
	logger.Info("step started", "params", e.names.describe(step.Params))

	stepCtx, done := rc.beginStep(ctx)
	defer done()

	result := e.execute(stepCtx, rc, step, logger)
	// Успешный результат сохраняется, даже если полка упала во время шага.
	if !result.Success && rc.Dropped() && errors.Is(context.Cause(stepCtx), ErrShelfDropped) {
		logger.Warn("step interrupted by shelf drop")
		return nil, true
	}
	return result, false
}

// execute вызывает executor и переводит ошибки и панику в StepResult.
func (e *Engine) execute(ctx context.Context, rc *RunContext, step *domain.Step, logger *slog.Logger) (result *domain.StepResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("executor panic", "panic", r)
			result = domain.NewStepResult(false, device.CodeInternal,
				fmt.Sprintf("%v: %v", ErrExecutorPanic, r),
				map[string]any{"step_id": step.ID, "action": string(step.Action)},
			)
		}
	}()

	executor, err := e.registry.Get(step.Action)
	if err != nil {
		return errorResult(step, err)
	}

	res, err := executor.Execute(ctx, rc, step)
	if err != nil {
		logger.Warn("step execution error", "error", err)
		return errorResult(step, err)
	}
	if res == nil {
		return errorResult(step, ErrNoResult)
	}
	return res
}

// attach присваивает результат шагу.
func (e *Engine) attach(rc *RunContext, i int, step *domain.Step, result *domain.StepResult) {
	status := domain.StepStatusFail
	if result.Success {
		status = domain.StepStatusSuccess
	}

	e.store.Update(func() {
		step.Result = result
		step.Status = status
	})
	telemetry.StepsExecuted.WithLabelValues(string(step.Action), string(status)).Inc()

	logger := telemetry.WithStep(rc.Logger, step.ID, string(step.Action))
	if result.Success {
		if step.Action == domain.ActionMoveShelf {
			rc.lastMoveShelf = i
		}
		logger.Info("step succeeded")
		return
	}
	logger.Warn("step failed",
		"error_code", result.ErrorCode,
		"error", result.ErrorMessage,
	)
}

// applyFailure применяет политику неудачи. Возвращает false, если task
// нужно остановить.
func (e *Engine) applyFailure(rc *RunContext, i int, step *domain.Step, result *domain.StepResult) bool {
	if targets := rc.graph.Targets(i); len(targets) > 0 {
		reason := skipReason{
			stepID:  step.ID,
			code:    result.ErrorCode,
			message: result.ErrorMessage,
			data:    result.Data,
		}
		// Последняя упавшая причина перекрывает предыдущую.
		for _, j := range targets {
			rc.skipped[j] = reason
		}
		rc.Logger.Info("dependent steps will be skipped",
			"failed_step_id", step.ID,
			"skip_on_failure", step.SkipOnFailure,
		)
		return true
	}

	if step.Action.NonCritical() {
		rc.Logger.Warn("non-critical step failed, continuing", "step_id", step.ID)
		return true
	}

	e.store.Update(func() {
		rc.task.SetMetadata("failed_step_id", step.ID)
		if rc.task.Status == domain.TaskStatusInProgress {
			rc.task.Status = domain.TaskStatusFailed
		}
	})
	rc.Logger.Error("critical step failed, stopping task",
		"step_id", step.ID,
		"error_code", result.ErrorCode,
	)
	return false
}

// skipStep помечает шаг SKIPPED с причиной от упавшего шага.
// Пропущенный bio_scan записывается в журнал измерений как неудачный.
func (e *Engine) skipStep(ctx context.Context, rc *RunContext, i int, step *domain.Step, reason skipReason) {
	result := domain.NewStepResult(false, reason.code, reason.message, map[string]any{
		"reason":         "conditional_skip",
		"caused_by_step": reason.stepID,
		"original_error": reason.originalError(),
	})

	e.store.Update(func() {
		step.Status = domain.StepStatusSkipped
		step.Result = result
	})
	telemetry.StepsExecuted.WithLabelValues(string(step.Action), string(domain.StepStatusSkipped)).Inc()
	telemetry.WithStep(rc.Logger, step.ID, string(step.Action)).Info("step skipped", "caused_by_step", reason.stepID)

	if step.Action != domain.ActionBioScan {
		return
	}
	e.recordScan(ctx, rc, sensor.ScanRecord{
		TaskID:     rc.TaskID,
		LocationID: rc.bedLocation(i),
		BedName:    step.StringParam("bed_key"),
		Details:    fmt.Sprintf("robot could not reach bed: %s", reason.message),
		Extra: map[string]any{
			"error_source":           reason.stepID,
			"original_error_code":    reason.code,
			"original_error_message": reason.message,
		},
	})
}

// interrupt останавливает task при завершении процесса.
func (e *Engine) interrupt(rc *RunContext) {
	rc.Logger.Warn("worker shutting down, cancelling task")
	e.store.Update(func() {
		if !rc.task.Status.IsTerminal() {
			rc.task.Status = domain.TaskStatusCancelled
			rc.task.SetMetadata("cancel_reason", ErrShutdown.Error())
		}
	})
}

// complete выставляет итоговый статус и собирает метрики опроса робота.
func (e *Engine) complete(ctx context.Context, rc *RunContext) {
	var status domain.TaskStatus
	e.store.Update(func() {
		if rc.task.Status == domain.TaskStatusInProgress {
			rc.task.Status = domain.TaskStatusDone
		}
		rc.task.Finish(rc.task.Status)
		status = rc.task.Status
	})

	if status.IsFinished() {
		e.collectMetrics(ctx, rc)
	}
}

// finish — очистка после task: монитор, возврат полки при отмене,
// итоговое уведомление, освобождение робота.
func (e *Engine) finish(ctx context.Context, rc *RunContext) {
	rc.stopMonitor()

	status := e.status(rc.task)
	if status == domain.TaskStatusCancelled && rc.currentShelf != "" {
		e.returnShelfOnCancel(ctx, rc)
	}

	e.sendSummary(ctx, rc, status)

	e.store.MarkFree(e.robotID, rc.task.ID)
	telemetry.RobotBusy.WithLabelValues(e.robotID).Set(0)

	var duration time.Duration
	e.store.View(func() { duration = rc.task.Duration() })
	telemetry.TasksFinished.WithLabelValues(string(status)).Inc()
	telemetry.TaskDuration.WithLabelValues(string(status)).Observe(duration.Seconds())

	rc.Logger.Info("task finished", "status", status, "duration", duration)
}

// returnShelfOnCancel возвращает полку и робота после отмены.
func (e *Engine) returnShelfOnCancel(ctx context.Context, rc *RunContext) {
	shelfID := rc.currentShelf
	rc.Logger.Info("returning shelf after cancel", "shelf_id", shelfID, "shelf", e.names.shelfName(shelfID))

	e.bestEffort(ctx, rc.Logger, "cancel_cleanup", e.cleanupTimeout, func(ctx context.Context) error {
		res, err := e.robot.ReturnShelf(ctx, shelfID)
		if err != nil {
			return fmt.Errorf("return shelf: %w", err)
		}
		if !res.OK {
			rc.Logger.Warn("return shelf failed", "error_code", res.ErrorCode, "error", res.Error)
		} else {
			rc.currentShelf = ""
		}
		if _, err := e.robot.ReturnHome(ctx); err != nil {
			return fmt.Errorf("return home: %w", err)
		}
		return nil
	})
}

// status читает статус task под блокировкой.
func (e *Engine) status(task *domain.Task) domain.TaskStatus {
	var s domain.TaskStatus
	e.store.View(func() { s = task.Status })
	return s
}
