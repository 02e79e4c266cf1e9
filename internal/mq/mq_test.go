package mq

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/shaiso/patrol/internal/domain"
)

func testConsumer(h Handler) *Consumer {
	return NewConsumer(nil, slog.New(slog.NewTextHandler(io.Discard, nil)), ConsumerConfig{
		Queue:   QueueTaskSubmit,
		Handler: h,
	})
}

// --- Consumer Tests ---

func TestConsumer_HandleDecodesMessage(t *testing.T) {
	var got *Delivery
	c := testConsumer(func(ctx context.Context, d *Delivery) error {
		got = d
		return nil
	})

	body, _ := json.Marshal(NewMessage(MessageTypeTaskCancel, TaskCancelPayload{TaskID: "t1"}))
	if err := c.handle(context.Background(), body, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.Message.Type != MessageTypeTaskCancel || !got.Redelivered {
		t.Fatalf("unexpected delivery: %+v", got)
	}

	payload, err := ParsePayload[TaskCancelPayload](&got.Message)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload.TaskID != "t1" {
		t.Errorf("expected t1, got %s", payload.TaskID)
	}
}

func TestConsumer_BadBodyIsPermanent(t *testing.T) {
	called := false
	c := testConsumer(func(ctx context.Context, d *Delivery) error {
		called = true
		return nil
	})

	err := c.handle(context.Background(), []byte("{not json"), false)
	if !IsPermanent(err) {
		t.Errorf("expected permanent error, got %v", err)
	}
	if called {
		t.Error("handler must not be called for a broken message")
	}
}

func TestConsumer_HandlerErrorIsTransient(t *testing.T) {
	boom := errors.New("db down")
	c := testConsumer(func(ctx context.Context, d *Delivery) error {
		return boom
	})

	body, _ := json.Marshal(NewMessage(MessageTypeTaskSubmit, nil))
	err := c.handle(context.Background(), body, false)
	if !errors.Is(err, boom) {
		t.Errorf("expected handler error, got %v", err)
	}
	if IsPermanent(err) {
		t.Error("plain handler errors should be requeued")
	}
}

// --- Payload Tests ---

func TestParsePayload_TaskSubmit(t *testing.T) {
	raw := `{"id":"m1","type":"task.submit","payload":{"robot_id":"kachaka","steps":[{"step_id":"s1","action":"speak","params":{"speak_text":"hi"}}]}}`

	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payload, err := ParsePayload[TaskSubmitPayload](&msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	task := payload.Task()
	if task.Status != domain.TaskStatusQueued {
		t.Errorf("expected QUEUED, got %s", task.Status)
	}
	if len(task.Steps) != 1 || task.Steps[0].Action != domain.ActionSpeak {
		t.Errorf("unexpected steps: %+v", task.Steps)
	}
}

func TestParsePayload_WrongShapeIsPermanent(t *testing.T) {
	msg := &Message{Payload: map[string]any{"task_id": 42}}

	_, err := ParsePayload[TaskCancelPayload](msg)
	if !IsPermanent(err) {
		t.Errorf("expected permanent error, got %v", err)
	}
}

func TestPermanent_Nil(t *testing.T) {
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}

func TestNewTaskFinishedPayload(t *testing.T) {
	task := &domain.Task{
		ID:      "t1",
		RobotID: "kachaka",
		Status:  domain.TaskStatusDone,
		Steps: []*domain.Step{
			{ID: "a", Action: domain.ActionBioScan, Status: domain.StepStatusSuccess},
			{ID: "b", Action: domain.ActionBioScan, Status: domain.StepStatusSkipped},
		},
	}

	p := NewTaskFinishedPayload(task)
	if p.BedsTotal != 2 || p.BedsMeasured != 1 || p.Status != "DONE" {
		t.Errorf("unexpected payload: %+v", p)
	}
}
