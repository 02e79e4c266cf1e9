package registry

import (
	"fmt"
	"slices"
	"sync"

	"github.com/shaiso/patrol/internal/domain"
)

// Registry — реестр task, очередей и текущих task роботов.
type Registry struct {
	mu      sync.RWMutex
	tasks   map[string]*domain.Task
	order   []string
	lanes   map[string]*Lane
	current map[string]string
}

// New создаёт пустой Registry.
func New() *Registry {
	return &Registry{
		tasks:   make(map[string]*domain.Task),
		lanes:   make(map[string]*Lane),
		current: make(map[string]string),
	}
}

// AddLane регистрирует очередь робота.
func (r *Registry) AddLane(robotID string) (*Lane, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.lanes[robotID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrLaneExists, robotID)
	}
	lane := NewLane(robotID)
	r.lanes[robotID] = lane
	return lane, nil
}

// Lane возвращает очередь робота.
func (r *Registry) Lane(robotID string) (*Lane, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lane, ok := r.lanes[robotID]
	return lane, ok
}

// Robots возвращает отсортированный список роботов с очередями.
func (r *Registry) Robots() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.lanes))
	for id := range r.lanes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Put сохраняет task. Реестр владеет указателем: дальнейшие изменения
// task должны идти через Update.
func (r *Registry) Put(task *domain.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[task.ID]; !ok {
		r.order = append(r.order, task.ID)
	}
	r.tasks[task.ID] = task
}

// Get возвращает копию task.
func (r *Registry) Get(id string) (*domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, ok := r.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return task.Clone(), nil
}

// List возвращает копии всех task в порядке добавления.
func (r *Registry) List() []*domain.Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Task, 0, len(r.order))
	for _, id := range r.order {
		if task, ok := r.tasks[id]; ok {
			out = append(out, task.Clone())
		}
	}
	return out
}

// Update выполняет fn под блокировкой на запись.
// fn не должна блокироваться на вводе-выводе.
func (r *Registry) Update(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn()
}

// View выполняет fn под блокировкой на чтение.
func (r *Registry) View(fn func()) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn()
}

// Modify находит task и выполняет fn под блокировкой на запись.
// Ошибка fn возвращается как есть.
func (r *Registry) Modify(id string, fn func(task *domain.Task, currentID string) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return fn(task, r.current[task.RobotID])
}

// Remove удаляет task, если check (под той же блокировкой) не вернул ошибку.
func (r *Registry) Remove(id string, check func(task *domain.Task, currentID string) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if check != nil {
		if err := check(task, r.current[task.RobotID]); err != nil {
			return err
		}
	}

	delete(r.tasks, id)
	r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == id })
	return nil
}

// MarkBusy занимает слот текущей task робота.
func (r *Registry) MarkBusy(robotID, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.current[robotID]; ok && cur != taskID {
		return fmt.Errorf("%w: robot %s runs %s", ErrRobotBusy, robotID, cur)
	}
	r.current[robotID] = taskID
	return nil
}

// MarkFree освобождает слот, если его занимает taskID.
func (r *Registry) MarkFree(robotID, taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current[robotID] == taskID {
		delete(r.current, robotID)
	}
}

// Current возвращает текущую task робота.
func (r *Registry) Current(robotID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.current[robotID]
	return id, ok
}
