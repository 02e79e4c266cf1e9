package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shaiso/patrol/internal/device"
	"github.com/shaiso/patrol/internal/domain"
	"github.com/shaiso/patrol/internal/mq"
	"github.com/shaiso/patrol/internal/registry"
	"github.com/shaiso/patrol/internal/repo"
	"github.com/shaiso/patrol/internal/worker"
)

// Default configuration values.
const (
	defaultArchiveTimeout = 10 * time.Second
	defaultPrefetch       = 10
)

// Archive — хранилище завершённых task. Реализуется repo.TaskRepo.
type Archive interface {
	Save(ctx context.Context, task *domain.Task) error
	GetByID(ctx context.Context, id string) (*domain.Task, error)
	List(ctx context.Context, filter repo.TaskFilter) ([]*domain.Task, error)
	Delete(ctx context.Context, id string) error
}

// EventPublisher публикует события о task. Реализуется mq.Publisher.
type EventPublisher interface {
	PublishTaskFinished(ctx context.Context, task *domain.Task) error
}

// Orchestrator принимает task и раздаёт их по очередям роботов.
//
// Все task живут в реестре в памяти. Archive и EventPublisher
// опциональны: без них завершённые task остаются только в реестре.
type Orchestrator struct {
	registry       *registry.Registry
	engineDefaults worker.EngineConfig
	defaultRobotID string

	archive   Archive
	publisher EventPublisher
	conn      *mq.Connection

	archiveTimeout time.Duration
	prefetch       int

	mu      sync.Mutex
	workers []*worker.Worker
	started bool
	cancel  context.CancelFunc
	group   *errgroup.Group

	logger *slog.Logger
}

// Config — конфигурация Orchestrator.
type Config struct {
	// Registry (опционально; если nil — создаётся пустой)
	Registry *registry.Registry

	// Engine — общие настройки Engine для всех роботов.
	// RobotID, Robot и Store заполняются при регистрации робота.
	Engine worker.EngineConfig

	// DefaultRobotID — робот для task без robot_id, если роботов несколько.
	DefaultRobotID string

	Archive   Archive        // опционально
	Publisher EventPublisher // опционально

	// Conn — подключение к RabbitMQ для приёма команд (опционально).
	Conn     *mq.Connection
	Prefetch int // default: 10

	ArchiveTimeout time.Duration // default: 10s

	Logger *slog.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	reg := cfg.Registry
	if reg == nil {
		reg = registry.New()
	}

	defaultRobotID := cfg.DefaultRobotID
	if defaultRobotID == "" {
		defaultRobotID = domain.DefaultRobotID
	}

	archiveTimeout := cfg.ArchiveTimeout
	if archiveTimeout <= 0 {
		archiveTimeout = defaultArchiveTimeout
	}

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = defaultPrefetch
	}

	engineDefaults := cfg.Engine
	if engineDefaults.Logger == nil {
		engineDefaults.Logger = logger
	}

	return &Orchestrator{
		registry:       reg,
		engineDefaults: engineDefaults,
		defaultRobotID: defaultRobotID,
		archive:        cfg.Archive,
		publisher:      cfg.Publisher,
		conn:           cfg.Conn,
		archiveTimeout: archiveTimeout,
		prefetch:       prefetch,
		logger:         logger,
	}
}

// Registry возвращает реестр task.
func (o *Orchestrator) Registry() *registry.Registry {
	return o.registry
}

// RegisterRobot создаёт очередь, Engine и Worker для робота.
// Вызывается до Start.
func (o *Orchestrator) RegisterRobot(robotID string, robot device.Robot) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.started {
		return fmt.Errorf("%w: register %s", ErrAlreadyStarted, robotID)
	}

	lane, err := o.registry.AddLane(robotID)
	if err != nil {
		return err
	}

	cfg := o.engineDefaults
	cfg.RobotID = robotID
	cfg.Robot = robot
	cfg.Store = o.registry

	w := worker.New(worker.Config{
		Lane:       lane,
		Engine:     worker.NewEngine(cfg),
		Store:      o.registry,
		OnFinished: o.taskFinished,
		Logger:     o.logger,
	})
	o.workers = append(o.workers, w)

	o.logger.Info("robot registered", "robot_id", robotID)
	return nil
}

// Start запускает Worker всех роботов и, если задано подключение
// к RabbitMQ, consumers команд. Не блокирует.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.started {
		return ErrAlreadyStarted
	}
	o.started = true

	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	g, gctx := errgroup.WithContext(ctx)
	o.group = g

	for _, w := range o.workers {
		w := w
		g.Go(func() error {
			return w.Run(gctx)
		})
	}

	if o.conn != nil {
		for _, c := range o.consumers() {
			c := c
			g.Go(func() error {
				err := c.Run(gctx)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		}
	}

	o.logger.Info("orchestrator started",
		"robots", o.registry.Robots(),
		"mq", o.conn != nil,
	)
	return nil
}

// Wait блокируется до остановки всех горутин и возвращает первую ошибку.
func (o *Orchestrator) Wait() error {
	o.mu.Lock()
	g := o.group
	o.mu.Unlock()

	if g == nil {
		return nil
	}
	return g.Wait()
}

// Stop останавливает Orchestrator и ждёт завершения Worker.
// Выполняемые task доводятся до статуса CANCELLED.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	cancel := o.cancel
	o.mu.Unlock()

	o.logger.Info("stopping orchestrator...")
	if cancel != nil {
		cancel()
	}
	err := o.Wait()
	o.logger.Info("orchestrator stopped")
	return err
}

// taskFinished архивирует завершённую task и публикует событие.
// Ошибки только логируются.
func (o *Orchestrator) taskFinished(ctx context.Context, task *domain.Task) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.archiveTimeout)
	defer cancel()

	o.archiveTask(ctx, task)
}

func (o *Orchestrator) archiveTask(ctx context.Context, task *domain.Task) {
	logger := o.logger.With("task_id", task.ID, "status", task.Status)

	if o.archive != nil {
		if err := o.archive.Save(ctx, task); err != nil {
			logger.Error("failed to archive task", "error", err)
		}
	}
	if o.publisher != nil {
		if err := o.publisher.PublishTaskFinished(ctx, task); err != nil {
			logger.Warn("failed to publish task.finished", "error", err)
		}
	}
}
