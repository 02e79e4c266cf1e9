package registry

import (
	"context"
	"sync"

	"github.com/shaiso/patrol/internal/domain"
	"github.com/shaiso/patrol/internal/engine"
)

// Job — task в очереди вместе с графом пропусков, построенным при отправке.
type Job struct {
	Task  *domain.Task
	Graph *engine.SkipGraph
}

// Lane — FIFO очередь task одного робота. Без ограничения длины.
type Lane struct {
	robotID string

	mu     sync.Mutex
	items  []Job
	signal chan struct{}
}

// NewLane создаёт пустую очередь.
func NewLane(robotID string) *Lane {
	return &Lane{
		robotID: robotID,
		signal:  make(chan struct{}, 1),
	}
}

// RobotID возвращает робота очереди.
func (l *Lane) RobotID() string {
	return l.robotID
}

// Push добавляет job в конец очереди.
func (l *Lane) Push(job Job) {
	l.mu.Lock()
	l.items = append(l.items, job)
	l.mu.Unlock()

	select {
	case l.signal <- struct{}{}:
	default:
	}
}

// Pop забирает первый job, ожидая его появления или отмены ctx.
func (l *Lane) Pop(ctx context.Context) (Job, error) {
	for {
		l.mu.Lock()
		if len(l.items) > 0 {
			job := l.items[0]
			l.items[0] = Job{}
			l.items = l.items[1:]
			rest := len(l.items)
			l.mu.Unlock()

			// Будим следующего ожидающего, если что-то осталось.
			if rest > 0 {
				select {
				case l.signal <- struct{}{}:
				default:
				}
			}
			return job, nil
		}
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return Job{}, ctx.Err()
		case <-l.signal:
		}
	}
}

// Len возвращает длину очереди.
func (l *Lane) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}
