// Patrol Engine — выполняет патрульные task на роботах.
//
// Engine:
//   - Держит по очереди и Worker на каждого робота из ROBOT_IDS
//   - Принимает task.submit / task.cancel из RabbitMQ
//   - Архивирует завершённые task и измерения в PostgreSQL
//   - Отдаёт /healthz и /metrics
//
// Роботы в этой сборке симулируются в памяти (SIM_LATENCY).
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/patrol/internal/config"
	"github.com/shaiso/patrol/internal/device"
	"github.com/shaiso/patrol/internal/mq"
	"github.com/shaiso/patrol/internal/notify"
	"github.com/shaiso/patrol/internal/orchestrator"
	"github.com/shaiso/patrol/internal/repo"
	"github.com/shaiso/patrol/internal/sensor"
	"github.com/shaiso/patrol/internal/telemetry"
	"github.com/shaiso/patrol/internal/worker"
)

// Карта стенда для симулятора.
var (
	demoShelves = []device.Shelf{
		{ID: "S1", Name: "Sensor cart", Pose: device.Pose{X: 0.5}},
	}
	demoLocations = []device.Location{
		{ID: "HOME", Name: "Charging dock", Pose: device.Pose{}},
		{ID: "L101", Name: "Room 101", Pose: device.Pose{X: 4.2, Y: 1.5}},
		{ID: "L102", Name: "Room 102", Pose: device.Pose{X: 8.4, Y: 1.5}},
		{ID: "L103", Name: "Room 103", Pose: device.Pose{X: 12.6, Y: 1.5}},
	}
)

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting patrol-engine")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// PostgreSQL: архив task и журнал измерений (опционально)
	var archive orchestrator.Archive
	var recorder sensor.Recorder
	if cfg.DatabaseURL != "" {
		pool, err := repo.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Warn("database not available, running without archive", "error", err)
		} else {
			defer pool.Close()
			if err := repo.Migrate(ctx, pool); err != nil {
				logger.Error("failed to migrate database", "error", err)
				os.Exit(1)
			}
			archive = repo.NewTaskRepo(pool)
			recorder = repo.NewScanRepo(pool)
			logger.Info("database connected")
		}
	}

	// RabbitMQ: команды, события, уведомления (опционально)
	var mqConn *mq.Connection
	var events orchestrator.EventPublisher
	var notifier notify.Notifier = notify.Log{Logger: logger}
	if cfg.RabbitMQURL != "" {
		mqConn, err = mq.NewConnection(mq.ConnectionConfig{
			URL:    cfg.RabbitMQURL,
			Name:   "patrol-engine",
			Logger: logger,
		})
		if err != nil {
			logger.Warn("RabbitMQ not available, accepting no remote commands", "error", err)
			mqConn = nil
		} else {
			defer mqConn.Close()
			if err := mq.SetupTopology(ctx, mqConn); err != nil {
				logger.Warn("failed to setup topology", "error", err)
			}
			publisher := mq.NewPublisher(mqConn, logger)
			events = publisher
			notifier = notify.NewBroker(publisher)
			logger.Info("RabbitMQ connected")
		}
	}

	orch := orchestrator.New(orchestrator.Config{
		Engine: worker.EngineConfig{
			Sensor:             sensor.Combine(&sensor.Simulated{Delay: 2 * cfg.SimLatency}, recorder),
			Notifier:           notifier,
			MaxRetries:         cfg.MaxRetries,
			MovementMaxRetries: cfg.MovementMaxRetries,
			RetryBaseDelay:     cfg.RetryBaseDelay,
			RetryMaxDelay:      cfg.RetryMaxDelay,
			ShelfPollInterval:  cfg.ShelfPollInterval,
			SideEffectTimeout:  cfg.SideEffectTimeout,
			Logger:             logger,
		},
		DefaultRobotID: cfg.DefaultRobotID,
		Archive:        archive,
		Publisher:      events,
		Conn:           mqConn,
		Logger:         logger,
	})

	for _, robotID := range cfg.RobotIDs {
		sim := device.NewSimulator(device.SimulatorConfig{
			Latency:   cfg.SimLatency,
			Shelves:   demoShelves,
			Locations: demoLocations,
			Logger:    telemetry.WithRobotID(logger, robotID),
		})
		if err := orch.RegisterRobot(robotID, sim); err != nil {
			logger.Error("failed to register robot", "robot_id", robotID, "error", err)
			os.Exit(1)
		}
	}

	if err := orch.Start(ctx); err != nil {
		logger.Error("failed to start orchestrator", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: cfg.Addr(), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения или падение Worker
	go func() {
		if err := orch.Wait(); err != nil {
			logger.Error("orchestrator failed", "error", err)
			cancel()
		}
	}()
	<-ctx.Done()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	srv.Shutdown(shutdownCtx)

	if err := orch.Stop(); err != nil {
		logger.Error("orchestrator stopped with error", "error", err)
	}
	logger.Info("patrol-engine stopped")
}
