package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/patrol/internal/domain"
)

// defaultListLimit — лимит List без явного Limit.
const defaultListLimit = 100

// TaskRepo — архив task (таблица patrol_tasks).
//
// Источник истины для активных task — реестр в памяти; сюда task
// попадают при завершении и по ним строится история.
type TaskRepo struct {
	pool *pgxpool.Pool
}

// NewTaskRepo создаёт новый TaskRepo.
func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{pool: pool}
}

// TaskFilter — фильтр для List.
type TaskFilter struct {
	RobotID string
	Status  domain.TaskStatus
	Limit   int
}

// Save сохраняет task целиком, перезаписывая прошлую версию.
func (r *TaskRepo) Save(ctx context.Context, task *domain.Task) error {
	stepsJSON, metadataJSON, err := encodeTask(task)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO patrol_tasks (task_id, robot_id, status, steps, metadata,
		                          created_at, started_at, finished_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (task_id) DO UPDATE
		SET robot_id = EXCLUDED.robot_id, status = EXCLUDED.status,
		    steps = EXCLUDED.steps, metadata = EXCLUDED.metadata,
		    started_at = EXCLUDED.started_at, finished_at = EXCLUDED.finished_at,
		    updated_at = now()
	`
	_, err = r.pool.Exec(ctx, query,
		task.ID,
		task.RobotID,
		task.Status,
		stepsJSON,
		metadataJSON,
		task.CreatedAt,
		task.StartedAt,
		task.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert task: %w", err)
	}
	return nil
}

// GetByID возвращает task по ID.
func (r *TaskRepo) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	query := `
		SELECT task_id, robot_id, status, steps, metadata, created_at, started_at, finished_at
		FROM patrol_tasks
		WHERE task_id = $1
	`
	task, err := scanTask(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: task %s", ErrNotFound, id)
	}
	return task, err
}

// List возвращает task, новые первыми.
func (r *TaskRepo) List(ctx context.Context, filter TaskFilter) ([]*domain.Task, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `
		SELECT task_id, robot_id, status, steps, metadata, created_at, started_at, finished_at
		FROM patrol_tasks
		WHERE ($1::text IS NULL OR robot_id = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`
	rows, err := r.pool.Query(ctx, query,
		nullString(filter.RobotID),
		nullString(string(filter.Status)),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// Delete удаляет task из архива.
func (r *TaskRepo) Delete(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM patrol_tasks WHERE task_id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: task %s", ErrNotFound, id)
	}
	return nil
}

// --- Helpers ---

func encodeTask(task *domain.Task) (steps, metadata []byte, err error) {
	stepList := task.Steps
	if stepList == nil {
		stepList = []*domain.Step{}
	}
	steps, err = json.Marshal(stepList)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal steps: %w", err)
	}
	if task.Metadata != nil {
		metadata, err = json.Marshal(task.Metadata)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal metadata: %w", err)
		}
	}
	return steps, metadata, nil
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var task domain.Task
	var status string
	var stepsJSON, metadataJSON []byte
	var startedAt, finishedAt *time.Time

	err := row.Scan(
		&task.ID,
		&task.RobotID,
		&status,
		&stepsJSON,
		&metadataJSON,
		&task.CreatedAt,
		&startedAt,
		&finishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}

	task.Status = domain.TaskStatus(status)
	task.StartedAt = startedAt
	task.FinishedAt = finishedAt

	if err := decodeTask(&task, stepsJSON, metadataJSON); err != nil {
		return nil, err
	}
	return &task, nil
}

func decodeTask(task *domain.Task, stepsJSON, metadataJSON []byte) error {
	if stepsJSON != nil {
		if err := json.Unmarshal(stepsJSON, &task.Steps); err != nil {
			return fmt.Errorf("unmarshal steps: %w", err)
		}
	}
	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &task.Metadata); err != nil {
			return fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return nil
}
