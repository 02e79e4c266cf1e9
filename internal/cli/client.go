package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/shaiso/patrol/internal/domain"
	"github.com/shaiso/patrol/internal/mq"
	"github.com/shaiso/patrol/internal/repo"
)

// Commands отправляет команды движку. Реализуется mq.Publisher.
type Commands interface {
	PublishTaskSubmit(ctx context.Context, payload mq.TaskSubmitPayload) error
	PublishTaskCancel(ctx context.Context, taskID string) error
}

// History читает архив task. Реализуется repo.TaskRepo.
type History interface {
	GetByID(ctx context.Context, id string) (*domain.Task, error)
	List(ctx context.Context, filter repo.TaskFilter) ([]*domain.Task, error)
}

// Client — доступ CLI к движку: команды через RabbitMQ,
// чтение через архив в PostgreSQL. Подключения открываются
// при первом обращении.
type Client struct {
	mqURL  string
	dbURL  string
	logger *slog.Logger

	commands Commands
	history  History
	closers  []func()
}

// NewClient создаёт Client.
func NewClient(mqURL, dbURL string) *Client {
	return &Client{
		mqURL:  mqURL,
		dbURL:  dbURL,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// NewClientWith создаёт Client поверх готовых зависимостей.
func NewClientWith(commands Commands, history History) *Client {
	return &Client{commands: commands, history: history}
}

// Commands возвращает отправитель команд, подключаясь к RabbitMQ.
func (c *Client) Commands(ctx context.Context) (Commands, error) {
	if c.commands != nil {
		return c.commands, nil
	}
	if c.mqURL == "" {
		return nil, errors.New("RabbitMQ URL is not set")
	}

	conn, err := mq.NewConnection(mq.ConnectionConfig{
		URL:    c.mqURL,
		Name:   "patrolctl",
		Logger: c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	c.closers = append(c.closers, func() { conn.Close() })

	if err := mq.SetupTopology(ctx, conn); err != nil {
		return nil, fmt.Errorf("setup topology: %w", err)
	}

	c.commands = mq.NewPublisher(conn, c.logger)
	return c.commands, nil
}

// History возвращает архив task, подключаясь к PostgreSQL.
func (c *Client) History(ctx context.Context) (History, error) {
	if c.history != nil {
		return c.history, nil
	}
	if c.dbURL == "" {
		return nil, errors.New("database URL is not set")
	}

	pool, err := repo.NewPool(ctx, c.dbURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	c.closers = append(c.closers, pool.Close)

	c.history = repo.NewTaskRepo(pool)
	return c.history, nil
}

// Close закрывает открытые подключения.
func (c *Client) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
