package worker

import (
	"context"
	"errors"
	"time"

	"github.com/shaiso/patrol/internal/device"
	"github.com/shaiso/patrol/internal/domain"
	"github.com/shaiso/patrol/internal/sensor"
)

// ScanExecutor — executor для шага "bio_scan".
//
// Измерение идёт у кровати, к которой последней привезли полку;
// location_id шага используется, только если полку ещё не возили.
// Шаг успешен, только если сенсор вернул данные.
type ScanExecutor struct{}

func (e *ScanExecutor) Execute(ctx context.Context, rc *RunContext, step *domain.Step) (*domain.StepResult, error) {
	var p domain.ScanParams
	if err := domain.DecodeParams(step.Params, &p); err != nil {
		return nil, err
	}

	location := rc.targetBed
	if location == "" {
		location = p.LocationID
	}

	start := time.Now()
	res, err := rc.Sensor.GetValidScanData(ctx, sensor.ScanRequest{
		TaskID:     rc.TaskID,
		LocationID: location,
		BedName:    p.BedKey,
	})
	data := map[string]any{
		"task_id":     rc.TaskID,
		"bed_key":     p.BedKey,
		"location_id": location,
		"elapsed_ms":  time.Since(start).Milliseconds(),
	}

	switch {
	case errors.Is(err, sensor.ErrUnavailable):
		return domain.NewStepResult(false, device.CodeInternal, "Bio-sensor client is not available", data), nil
	case err != nil:
		return nil, err
	case !res.Valid():
		return domain.NewStepResult(false, device.CodeInternal, sensor.ErrNoValidData.Error(), data), nil
	}

	data["data"] = res.Data
	return domain.NewStepResult(true, device.CodeSuccess, "", data), nil
}
