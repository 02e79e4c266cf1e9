package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "patrol"

var (
	// TasksFinished — завершённые task по конечному статусу.
	TasksFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_finished_total",
		Help:      "Tasks that reached a terminal status.",
	}, []string{"status"})

	// TasksSubmitted — принятые и отклонённые task.
	TasksSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_submitted_total",
		Help:      "Task submissions by outcome.",
	}, []string{"outcome"})

	// StepsExecuted — шаги по действию и статусу.
	StepsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "steps_total",
		Help:      "Steps by action and final step status.",
	}, []string{"action", "status"})

	// DeviceRetries — повторы команд робота после временных сбоев.
	DeviceRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "device_retries_total",
		Help:      "Device command retries after transient transport errors.",
	}, []string{"action"})

	// ShelfDrops — обнаруженные падения полки.
	ShelfDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "shelf_drops_total",
		Help:      "Shelf drops detected by the monitor.",
	}, []string{"robot_id"})

	// SideEffectFailures — неудачные best-effort действия (уведомления, запись, очистка).
	SideEffectFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "side_effect_failures_total",
		Help:      "Best-effort side effects that failed.",
	}, []string{"name"})

	// LaneDepth — длина очереди робота.
	LaneDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "lane_depth",
		Help:      "Tasks waiting in a robot lane.",
	}, []string{"robot_id"})

	// RobotBusy — 1, если у робота есть текущая task.
	RobotBusy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "robot_busy",
		Help:      "1 while a robot has a current task.",
	}, []string{"robot_id"})

	// TaskDuration — длительность выполнения task.
	TaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Wall time of a task run.",
		Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200, 1800, 3600},
	}, []string{"status"})
)
