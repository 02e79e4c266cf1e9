package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/patrol/internal/device"
	"github.com/shaiso/patrol/internal/domain"
	"github.com/shaiso/patrol/internal/sensor"
	"github.com/shaiso/patrol/internal/telemetry"
)

const (
	unknownLocation = "unknown"

	shelfDropDetails = "shelf dropped, patrol interrupted"
)

// remainingBed — кровать, которую обход уже не обслужит.
type remainingBed struct {
	index      int
	bedKey     string
	locationID string
}

// handleShelfDrop завершает task после падения полки.
//
// index — шаг, на котором обнаружено падение; current — этот шаг, если он
// выполнялся (nil, если падение замечено до его начала). Незавершённые
// измерения записываются как неудачные, task получает SHELF_DROPPED,
// робот отправляется домой.
func (e *Engine) handleShelfDrop(ctx context.Context, rc *RunContext, index int, current *domain.Step) {
	steps := rc.task.Steps

	// Контекст падения: текущий move_shelf или последний успешный.
	trigger := -1
	if current != nil && current.Action == domain.ActionMoveShelf {
		trigger = index
	} else if rc.lastMoveShelf >= 0 {
		trigger = rc.lastMoveShelf
	}

	shelfID, room := "", unknownLocation
	if trigger >= 0 {
		shelfID = steps[trigger].StringParam("shelf_id")
		if loc := steps[trigger].StringParam("location_id"); loc != "" {
			room = loc
		}
	}
	if shelfID == "" {
		shelfID = rc.currentShelf
	}

	beds := e.remainingBeds(rc, index, current, trigger, room)

	logger := rc.Logger.With("shelf_id", shelfID, "room", room)
	logger.Error("shelf dropped, stopping task", "remaining_beds", len(beds))
	telemetry.ShelfDrops.WithLabelValues(e.robotID).Inc()

	// Прерванный шаг, который не является измерением, считается неудачным.
	interrupted := current != nil && current.Status == domain.StepStatusExecuting
	if interrupted && current.Action != domain.ActionBioScan {
		e.attach(rc, index, current, domain.NewStepResult(false, device.CodeInternal,
			"interrupted by shelf drop", map[string]any{"reason": "shelf_drop"}))
	}

	for _, bed := range beds {
		step := steps[bed.index]
		result := domain.NewStepResult(false, device.CodeInternal, shelfDropDetails, map[string]any{
			"reason":   "shelf_drop",
			"shelf_id": shelfID,
		})
		e.store.Update(func() {
			step.Status = domain.StepStatusSkipped
			step.Result = result
		})
		telemetry.StepsExecuted.WithLabelValues(string(step.Action), string(domain.StepStatusSkipped)).Inc()

		e.recordScan(ctx, rc, sensor.ScanRecord{
			TaskID:     rc.TaskID,
			LocationID: bed.locationID,
			BedName:    bed.bedKey,
			Details:    shelfDropDetails,
			Extra: map[string]any{
				"error_source": "shelf_drop",
				"shelf_id":     shelfID,
			},
		})
	}

	remaining := make([]map[string]any, 0, len(beds))
	for _, bed := range beds {
		remaining = append(remaining, map[string]any{
			"bed_key":     bed.bedKey,
			"location_id": bed.locationID,
		})
	}
	pose := e.shelfPose(ctx, rc, shelfID)

	e.store.Update(func() {
		rc.task.SetMetadata("shelf_drop", true)
		rc.task.SetMetadata("shelf_id", shelfID)
		rc.task.SetMetadata("bed_key", room)
		rc.task.SetMetadata("room", room)
		rc.task.SetMetadata("dropped_at", time.Now().UTC().Format(time.RFC3339))
		rc.task.SetMetadata("remaining_beds", remaining)
		rc.task.SetMetadata("shelf_pose", pose)
		rc.task.Status = domain.TaskStatusShelfDropped
	})

	// Полки больше нет на роботе: возвращать нечего.
	rc.currentShelf = ""
	rc.stopMonitor()

	e.notify(ctx, rc, fmt.Sprintf(
		"Shelf dropped on %s: shelf %s near %s, %d beds not measured. Manual recovery required.",
		e.robotID, e.names.shelfName(shelfID), e.names.locationName(room), len(beds),
	))

	e.bestEffort(ctx, rc.Logger, "return_home", e.cleanupTimeout, func(ctx context.Context) error {
		res, err := e.robot.ReturnHome(ctx)
		if err != nil {
			return err
		}
		if !res.OK {
			return fmt.Errorf("return home: code %d: %s", res.ErrorCode, res.Error)
		}
		return nil
	})
}

// remainingBeds собирает bio_scan шаги, которые уже не будут выполнены:
// прерванное измерение, незавершённые цели skip_on_failure триггера и
// все последующие ожидающие измерения.
func (e *Engine) remainingBeds(rc *RunContext, index int, current *domain.Step, trigger int, room string) []remainingBed {
	steps := rc.task.Steps
	seen := make(map[int]bool)
	var beds []remainingBed

	add := func(j int, location string) {
		if seen[j] || steps[j].Action != domain.ActionBioScan {
			return
		}
		seen[j] = true
		beds = append(beds, remainingBed{
			index:      j,
			bedKey:     steps[j].StringParam("bed_key"),
			locationID: location,
		})
	}

	if current != nil && current.Status == domain.StepStatusExecuting && current.Action == domain.ActionBioScan {
		location := rc.targetBed
		if location == "" {
			location = rc.bedLocation(index)
		}
		add(index, location)
	}

	if trigger >= 0 {
		for _, j := range rc.graph.Targets(trigger) {
			if steps[j].Status == domain.StepStatusPending {
				add(j, room)
			}
		}
	}

	start := index
	if current != nil {
		start = index + 1
	}
	for j := start; j < len(steps); j++ {
		if steps[j].Status == domain.StepStatusPending {
			add(j, rc.bedLocation(j))
		}
	}
	return beds
}

// shelfPose возвращает последнее известное положение полки или nil.
func (e *Engine) shelfPose(ctx context.Context, rc *RunContext, shelfID string) map[string]any {
	var pose map[string]any
	e.bestEffort(ctx, rc.Logger, "shelf_pose", e.sideEffectTimeout, func(ctx context.Context) error {
		shelves, err := e.robot.GetShelves(ctx)
		if err != nil {
			return err
		}
		for _, s := range shelves {
			if s.ID == shelfID {
				pose = map[string]any{"x": s.Pose.X, "y": s.Pose.Y, "theta": s.Pose.Theta}
				return nil
			}
		}
		return nil
	})
	return pose
}
