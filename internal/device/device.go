package device

import (
	"context"
	"time"
)

// Robot — команды и запросы к одному роботу.
//
// Все методы блокируются до ответа робота. CancelCommand прерывает
// текущую команду на стороне робота; робот может не успеть её отменить.
type Robot interface {
	Speak(ctx context.Context, text string) (CommandResult, error)
	MoveToPose(ctx context.Context, x, y, yaw float64) (CommandResult, error)
	MoveToLocation(ctx context.Context, locationID string) (CommandResult, error)
	DockShelf(ctx context.Context) (CommandResult, error)
	UndockShelf(ctx context.Context) (CommandResult, error)
	MoveShelf(ctx context.Context, shelfID, locationID string) (CommandResult, error)
	ReturnShelf(ctx context.Context, shelfID string) (CommandResult, error)
	ReturnHome(ctx context.Context) (CommandResult, error)
	CancelCommand(ctx context.Context) (CommandResult, error)

	// GetMovingShelf возвращает ID перевозимой полки или "" если полки нет.
	GetMovingShelf(ctx context.Context) (string, error)
	GetShelves(ctx context.Context) ([]Shelf, error)
	GetLocations(ctx context.Context) ([]Location, error)
	GetMetrics(ctx context.Context) (Metrics, error)
	ResetMetrics(ctx context.Context) error
}

// CommandResult — ответ робота на команду.
type CommandResult struct {
	OK        bool   `json:"ok"`
	ErrorCode int    `json:"error_code"`
	Error     string `json:"error,omitempty"`
}

// Success возвращает успешный результат.
func Success() CommandResult {
	return CommandResult{OK: true}
}

// Failure возвращает результат с кодом ошибки робота.
func Failure(code int) CommandResult {
	return CommandResult{OK: false, ErrorCode: code, Error: ErrorMessage(code)}
}

// Pose — положение на карте.
type Pose struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

// Shelf — полка на карте робота.
type Shelf struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Pose Pose   `json:"pose"`
}

// Location — именованная точка на карте.
type Location struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Pose Pose   `json:"pose"`
}

// Metrics — статистика опроса робота контроллером.
type Metrics struct {
	PollCount        int             `json:"poll_count"`
	PollSuccessCount int             `json:"poll_success_count"`
	PollFailureCount int             `json:"poll_failure_count"`
	PollRTT          []time.Duration `json:"poll_rtt"`
}

// AvgRTTMillis возвращает среднее время ответа в миллисекундах, округлённое до 0.1.
func (m Metrics) AvgRTTMillis() float64 {
	if len(m.PollRTT) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range m.PollRTT {
		total += d
	}
	avg := float64(total) / float64(len(m.PollRTT)) / float64(time.Millisecond)
	return roundTo(avg, 10)
}

// SuccessRate возвращает долю успешных опросов, округлённую до 0.001.
// Без опросов — 1.
func (m Metrics) SuccessRate() float64 {
	if m.PollCount == 0 {
		return 1.0
	}
	return roundTo(float64(m.PollSuccessCount)/float64(m.PollCount), 1000)
}

func roundTo(v float64, scale float64) float64 {
	if v < 0 {
		return -roundTo(-v, scale)
	}
	return float64(int64(v*scale+0.5)) / scale
}
