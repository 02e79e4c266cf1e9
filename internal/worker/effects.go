package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/patrol/internal/domain"
	"github.com/shaiso/patrol/internal/sensor"
	"github.com/shaiso/patrol/internal/telemetry"
)

// bestEffort выполняет побочное действие со своим таймаутом.
// Ошибка и паника только логируются: статус task от них не зависит.
func (e *Engine) bestEffort(ctx context.Context, logger *slog.Logger, name string, timeout time.Duration, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("side effect panic", "name", name, "panic", r)
			telemetry.SideEffectFailures.WithLabelValues(name).Inc()
		}
	}()

	if err := fn(ctx); err != nil {
		logger.Warn("side effect failed", "name", name, "error", err)
		telemetry.SideEffectFailures.WithLabelValues(name).Inc()
	}
}

// notify отправляет уведомление операторам.
func (e *Engine) notify(ctx context.Context, rc *RunContext, text string) {
	e.bestEffort(ctx, rc.Logger, "notify", e.sideEffectTimeout, func(ctx context.Context) error {
		return e.notifier.Send(ctx, text)
	})
}

// recordScan пишет неудачное измерение в журнал.
func (e *Engine) recordScan(ctx context.Context, rc *RunContext, rec sensor.ScanRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	e.bestEffort(ctx, rc.Logger, "record_scan", e.sideEffectTimeout, func(ctx context.Context) error {
		return e.sensor.SaveScanData(ctx, rec)
	})
}

// collectMetrics переносит статистику опроса робота в Metadata и сбрасывает её.
func (e *Engine) collectMetrics(ctx context.Context, rc *RunContext) {
	e.bestEffort(ctx, rc.Logger, "collect_metrics", e.sideEffectTimeout, func(ctx context.Context) error {
		m, err := e.robot.GetMetrics(ctx)
		if err != nil {
			return fmt.Errorf("get metrics: %w", err)
		}

		e.store.Update(func() {
			rc.task.SetMetadata("metrics", map[string]any{
				"poll_count":        m.PollCount,
				"avg_rtt_ms":        m.AvgRTTMillis(),
				"poll_success_rate": m.SuccessRate(),
			})
		})
		rc.Logger.Info("robot polling metrics",
			"poll_count", m.PollCount,
			"avg_rtt_ms", m.AvgRTTMillis(),
			"poll_success_rate", m.SuccessRate(),
		)

		if err := e.robot.ResetMetrics(ctx); err != nil {
			return fmt.Errorf("reset metrics: %w", err)
		}
		return nil
	})
}

// sendSummary отправляет итог обхода: сколько кроватей и сколько измерено.
func (e *Engine) sendSummary(ctx context.Context, rc *RunContext, status domain.TaskStatus) {
	var total, succeeded int
	e.store.View(func() { total, succeeded = rc.task.ScanSummary() })

	var text string
	if status == domain.TaskStatusCancelled {
		text = fmt.Sprintf("Patrol cancelled on %s: %d beds planned, %d measured", e.robotID, total, succeeded)
	} else {
		text = fmt.Sprintf("Patrol finished on %s (%s): %d beds planned, %d measured", e.robotID, status, total, succeeded)
	}
	e.notify(ctx, rc, text)
}
