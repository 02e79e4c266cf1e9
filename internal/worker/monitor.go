package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/shaiso/patrol/internal/device"
)

// defaultShelfPollInterval — период опроса get_moving_shelf.
const defaultShelfPollInterval = 3 * time.Second

type monitorConfig struct {
	Robot    device.Robot
	Interval time.Duration
	Logger   *slog.Logger

	// OnDrop вызывается один раз, когда робот перестал везти полку.
	OnDrop func()
}

// shelfMonitor опрашивает робота, пока тот везёт полку.
//
// Ошибка опроса не считается падением: опрос продолжается на следующем тике.
// После обнаружения падения монитор завершается сам.
type shelfMonitor struct {
	robot    device.Robot
	interval time.Duration
	logger   *slog.Logger
	onDrop   func()

	cancel context.CancelFunc
	done   chan struct{}
}

func startShelfMonitor(ctx context.Context, cfg monitorConfig) *shelfMonitor {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultShelfPollInterval
	}

	ctx, cancel := context.WithCancel(ctx)
	m := &shelfMonitor{
		robot:    cfg.Robot,
		interval: interval,
		logger:   cfg.Logger,
		onDrop:   cfg.OnDrop,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	m.logger.Debug("shelf monitor started", "interval", interval)
	go m.loop(ctx)
	return m
}

func (m *shelfMonitor) loop(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		shelfID, err := m.robot.GetMovingShelf(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Debug("shelf poll failed", "error", err)
			continue
		}

		if shelfID == "" {
			m.logger.Warn("robot is no longer carrying a shelf")
			if m.onDrop != nil {
				m.onDrop()
			}
			return
		}
	}
}

// stop останавливает опрос и ждёт завершения горутины.
func (m *shelfMonitor) stop() {
	m.cancel()
	<-m.done
	m.logger.Debug("shelf monitor stopped")
}
