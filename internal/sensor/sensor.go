package sensor

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"
)

// Статусы записи измерения.
const (
	StatusValid   = 4
	DetailsNormal = "measurement ok"
	DetailsNoData = "no valid measurement"
)

// ScanRequest — запрос на измерение у кровати.
type ScanRequest struct {
	TaskID     string
	LocationID string // точка, куда привезена полка
	BedName    string // bed_key шага
}

// ScanResult — результат измерения. Data == nil означает отсутствие валидных данных.
type ScanResult struct {
	TaskID string         `json:"task_id"`
	Data   map[string]any `json:"data"`
}

// Valid возвращает true, если получены данные.
func (r ScanResult) Valid() bool {
	return r.Data != nil
}

// ScanRecord — строка журнала измерений (таблица sensor_scan_data).
type ScanRecord struct {
	TaskID     string         `json:"task_id"`
	LocationID string         `json:"location_id"`
	BedName    string         `json:"bed_name"`
	Timestamp  time.Time      `json:"timestamp"`
	RetryCount int            `json:"retry_count"`
	Status     *int           `json:"status"`
	BPM        *int           `json:"bpm"`
	RPM        *int           `json:"rpm"`
	IsValid    bool           `json:"is_valid"`
	Details    string         `json:"details"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// Acquirer получает измерение.
type Acquirer interface {
	GetValidScanData(ctx context.Context, req ScanRequest) (ScanResult, error)
}

// Recorder сохраняет попытку измерения.
type Recorder interface {
	SaveScanData(ctx context.Context, rec ScanRecord) error
}

// Client объединяет получение и запись измерений.
type Client interface {
	Acquirer
	Recorder
}

type combined struct {
	Acquirer
	Recorder
}

// Combine собирает Client из отдельных частей.
// nil-часть заменяется заглушкой: Acquirer отвечает ErrUnavailable,
// Recorder молча отбрасывает запись.
func Combine(a Acquirer, r Recorder) Client {
	if a == nil {
		a = Unavailable{}
	}
	if r == nil {
		r = Discard{}
	}
	return combined{Acquirer: a, Recorder: r}
}

// Unavailable — Acquirer, который всегда отвечает ErrUnavailable.
type Unavailable struct{}

func (Unavailable) GetValidScanData(ctx context.Context, req ScanRequest) (ScanResult, error) {
	return ScanResult{TaskID: req.TaskID}, ErrUnavailable
}

// Discard — Recorder, который ничего не сохраняет.
type Discard struct{}

func (Discard) SaveScanData(ctx context.Context, rec ScanRecord) error {
	return nil
}

// Simulated — Acquirer с генерацией правдоподобных показаний для стенда.
type Simulated struct {
	// Delay — время «измерения».
	Delay time.Duration

	// FailEvery — каждое N-е измерение без данных (0 — никогда).
	FailEvery int

	calls atomic.Int64
}

// GetValidScanData ждёт Delay и возвращает случайные bpm/rpm.
func (s *Simulated) GetValidScanData(ctx context.Context, req ScanRequest) (ScanResult, error) {
	t := time.NewTimer(s.Delay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
		return ScanResult{TaskID: req.TaskID}, ctx.Err()
	}

	n := s.calls.Add(1)
	if s.FailEvery > 0 && n%int64(s.FailEvery) == 0 {
		return ScanResult{TaskID: req.TaskID}, nil
	}

	return ScanResult{
		TaskID: req.TaskID,
		Data: map[string]any{
			"status":      StatusValid,
			"bpm":         55 + rand.Intn(40),
			"rpm":         12 + rand.Intn(8),
			"location_id": req.LocationID,
			"bed_name":    req.BedName,
			"details":     DetailsNormal,
		},
	}, nil
}
