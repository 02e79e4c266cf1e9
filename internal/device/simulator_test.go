package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func newTestSimulator() *Simulator {
	return NewSimulator(SimulatorConfig{
		Shelves: []Shelf{
			{ID: "S01", Name: "Shelf A"},
		},
		Locations: []Location{
			{ID: "L01", Name: "Bed 101", Pose: Pose{X: 1, Y: 2, Theta: 0.5}},
		},
	})
}

// --- Simulator Tests ---

func TestSimulator_MoveShelfAndReturn(t *testing.T) {
	sim := newTestSimulator()
	ctx := context.Background()

	res, err := sim.MoveShelf(ctx, "S01", "L01")
	if err != nil || !res.OK {
		t.Fatalf("move shelf failed: %+v %v", res, err)
	}

	shelf, err := sim.GetMovingShelf(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if shelf != "S01" {
		t.Errorf("expected S01, got %q", shelf)
	}

	shelves, _ := sim.GetShelves(ctx)
	if shelves[0].Pose.X != 1 || shelves[0].Pose.Y != 2 {
		t.Errorf("shelf should be at L01 pose, got %+v", shelves[0].Pose)
	}

	// С полкой домой нельзя.
	res, _ = sim.ReturnHome(ctx)
	if res.OK || res.ErrorCode != CodeShelfOnChargeDock {
		t.Errorf("expected %d, got %+v", CodeShelfOnChargeDock, res)
	}

	res, _ = sim.ReturnShelf(ctx, "S01")
	if !res.OK {
		t.Fatalf("return shelf failed: %+v", res)
	}
	if sim.Carrying() != "" {
		t.Error("should not carry a shelf after return")
	}

	res, _ = sim.ReturnHome(ctx)
	if !res.OK {
		t.Errorf("return home failed: %+v", res)
	}
}

func TestSimulator_UnknownShelf(t *testing.T) {
	sim := newTestSimulator()

	_, err := sim.MoveShelf(context.Background(), "ghost", "L01")
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("expected InvalidArgument, got %v", err)
	}
}

func TestSimulator_Script(t *testing.T) {
	sim := newTestSimulator()
	ctx := context.Background()
	transient := status.Error(codes.Unavailable, "link down")

	sim.Script(CmdMoveToLocation,
		Outcome{Err: transient},
		Outcome{Result: Failure(CodeRobotPaused)},
	)

	if _, err := sim.MoveToLocation(ctx, "L01"); !errors.Is(err, transient) {
		t.Errorf("expected scripted error, got %v", err)
	}

	res, err := sim.MoveToLocation(ctx, "L01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ErrorCode != CodeRobotPaused || res.Error != "Robot paused" {
		t.Errorf("unexpected result: %+v", res)
	}

	res, _ = sim.MoveToLocation(ctx, "L01")
	if !res.OK {
		t.Errorf("script exhausted, expected normal success, got %+v", res)
	}

	if n := sim.CallCount(CmdMoveToLocation); n != 3 {
		t.Errorf("expected 3 calls, got %d", n)
	}
}

func TestSimulator_CancelBlockedCommand(t *testing.T) {
	sim := newTestSimulator()
	sim.Script(CmdMoveShelf, Outcome{Block: true})

	done := make(chan CommandResult, 1)
	go func() {
		res, _ := sim.MoveShelf(context.Background(), "S01", "L01")
		done <- res
	}()

	// Ждём, пока команда начнётся.
	deadline := time.Now().Add(time.Second)
	for sim.CallCount(CmdMoveShelf) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	// inflight выставляется под тем же мьютексом, что и журнал,
	// поэтому после CallCount команда уже отменяема.
	sim.CancelCommand(context.Background())

	select {
	case res := <-done:
		if res.OK {
			t.Error("cancelled command should not succeed")
		}
	case <-time.After(time.Second):
		t.Fatal("blocked command was not cancelled")
	}
}

func TestSimulator_ContextCancel(t *testing.T) {
	sim := newTestSimulator()
	sim.Script(CmdSpeak, Outcome{Block: true})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sim.Speak(ctx, "hello")
	if status.Code(err) != codes.Canceled {
		t.Errorf("expected Canceled, got %v", err)
	}
}

func TestSimulator_Metrics(t *testing.T) {
	sim := newTestSimulator()
	ctx := context.Background()

	sim.Script(CmdGetMovingShelf, Outcome{Err: status.Error(codes.Unavailable, "")})
	sim.GetMovingShelf(ctx)
	sim.GetMovingShelf(ctx)
	sim.GetMovingShelf(ctx)

	m, _ := sim.GetMetrics(ctx)
	if m.PollCount != 3 || m.PollSuccessCount != 2 || m.PollFailureCount != 1 {
		t.Errorf("unexpected metrics: %+v", m)
	}
	if rate := m.SuccessRate(); rate != 0.667 {
		t.Errorf("expected 0.667, got %v", rate)
	}

	sim.ResetMetrics(ctx)
	m, _ = sim.GetMetrics(ctx)
	if m.PollCount != 0 {
		t.Errorf("expected reset metrics, got %+v", m)
	}
	if m.SuccessRate() != 1.0 {
		t.Errorf("empty metrics should report rate 1, got %v", m.SuccessRate())
	}
}

func TestMetrics_AvgRTTMillis(t *testing.T) {
	m := Metrics{PollRTT: []time.Duration{10 * time.Millisecond, 15 * time.Millisecond, 20 * time.Millisecond}}
	if got := m.AvgRTTMillis(); got != 15 {
		t.Errorf("expected 15, got %v", got)
	}
	if got := (Metrics{}).AvgRTTMillis(); got != 0 {
		t.Errorf("expected 0, got %v", got)
	}
}

func TestErrorMessage(t *testing.T) {
	if got := ErrorMessage(CodeNotDockedWithShelf); got != "Not docked with furniture" {
		t.Errorf("unexpected message: %s", got)
	}
	if got := ErrorMessage(12345); got != "Unknown error code: 12345" {
		t.Errorf("unexpected message: %s", got)
	}
}
