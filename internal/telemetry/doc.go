// Package telemetry обеспечивает наблюдаемость системы.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики оркестратора
//
// Метрики регистрируются в глобальном реестре Prometheus
// и отдаются на /metrics бинарником patrol-engine.
package telemetry
