package domain

import (
	"time"
)

// DefaultRobotID — робот по умолчанию, если в системе зарегистрирован только он.
const DefaultRobotID = "kachaka"

// Task — патрульная задача: упорядоченный набор шагов для одного робота.
//
// Task создаётся при отправке (Orchestrator.Submit), на время выполнения
// принадлежит Engine, а после завершения остаётся в реестре как запись
// только для чтения.
type Task struct {
	// ID — уникальный идентификатор task (UUID, назначается при отправке).
	ID string `json:"task_id"`

	// RobotID — робот, на котором выполняется task.
	// Если пусто — подставляется единственный зарегистрированный робот.
	RobotID string `json:"robot_id,omitempty"`

	// Steps — шаги в порядке выполнения.
	Steps []*Step `json:"steps"`

	// Status — текущий статус task.
	Status TaskStatus `json:"status"`

	// Metadata — произвольные данные.
	// Заполняется при падении полки (контекст восстановления)
	// и при завершении (метрики робота).
	Metadata map[string]any `json:"metadata,omitempty"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt — время начала выполнения.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Step — одно атомарное действие робота.
type Step struct {
	// ID — уникальный в пределах task идентификатор шага.
	ID string `json:"step_id"`

	// Action — действие (speak, move_shelf, bio_scan, ...).
	Action Action `json:"action"`

	// Params — параметры действия.
	Params map[string]any `json:"params,omitempty"`

	// Status — статус шага.
	Status StepStatus `json:"status"`

	// Result — результат выполнения (nil, пока шаг не завершён).
	Result *StepResult `json:"result,omitempty"`

	// SkipOnFailure — ID шагов, которые помечаются SKIPPED при неудаче этого шага.
	SkipOnFailure []string `json:"skip_on_failure,omitempty"`
}

// StepResult — результат выполнения шага. Не изменяется после присвоения.
type StepResult struct {
	Success      bool           `json:"success"`
	ErrorCode    int            `json:"error_code"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// NewStepResult создаёт результат с текущим временем.
func NewStepResult(success bool, code int, message string, data map[string]any) *StepResult {
	return &StepResult{
		Success:      success,
		ErrorCode:    code,
		ErrorMessage: message,
		Data:         data,
		Timestamp:    time.Now(),
	}
}

// Duration возвращает продолжительность выполнения.
func (t *Task) Duration() time.Duration {
	if t.StartedAt == nil || t.FinishedAt == nil {
		return 0
	}
	return t.FinishedAt.Sub(*t.StartedAt)
}

// MarkInProgress переводит task в статус IN_PROGRESS.
func (t *Task) MarkInProgress() {
	now := time.Now()
	t.Status = TaskStatusInProgress
	t.StartedAt = &now
}

// Finish переводит task в конечный статус и фиксирует время завершения.
func (t *Task) Finish(status TaskStatus) {
	now := time.Now()
	t.Status = status
	t.FinishedAt = &now
}

// SetMetadata записывает значение в Metadata, создавая map при необходимости.
func (t *Task) SetMetadata(key string, value any) {
	if t.Metadata == nil {
		t.Metadata = make(map[string]any)
	}
	t.Metadata[key] = value
}

// Clone возвращает глубокую копию task.
// Реестр отдаёт наружу только копии, чтобы читатели не гонялись с Engine.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.Metadata = cloneMap(t.Metadata)
	if t.StartedAt != nil {
		ts := *t.StartedAt
		c.StartedAt = &ts
	}
	if t.FinishedAt != nil {
		ts := *t.FinishedAt
		c.FinishedAt = &ts
	}
	c.Steps = make([]*Step, len(t.Steps))
	for i, s := range t.Steps {
		c.Steps[i] = s.Clone()
	}
	return &c
}

// Clone возвращает глубокую копию шага.
func (s *Step) Clone() *Step {
	if s == nil {
		return nil
	}
	c := *s
	c.Params = cloneMap(s.Params)
	if s.SkipOnFailure != nil {
		c.SkipOnFailure = append([]string(nil), s.SkipOnFailure...)
	}
	if s.Result != nil {
		r := *s.Result
		r.Data = cloneMap(s.Result.Data)
		c.Result = &r
	}
	return &c
}

// ScanSummary считает bio_scan шаги: сколько всего и сколько успешных.
func (t *Task) ScanSummary() (total, succeeded int) {
	for _, s := range t.Steps {
		if s.Action != ActionBioScan {
			continue
		}
		total++
		if s.Status == StepStatusSuccess {
			succeeded++
		}
	}
	return total, succeeded
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(val))
		for i, item := range val {
			out[i] = cloneMap(item)
		}
		return out
	default:
		return v
	}
}
