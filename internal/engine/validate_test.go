package engine

import (
	"errors"
	"testing"

	"github.com/shaiso/patrol/internal/domain"
)

func step(id string, action domain.Action, skip ...string) *domain.Step {
	return &domain.Step{ID: id, Action: action, SkipOnFailure: skip}
}

func TestValidate_NilTask(t *testing.T) {
	errs := Validate(nil)
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d", len(errs))
	}
	if !errors.Is(errs[0], ErrNilTask) {
		t.Errorf("expected ErrNilTask, got %v", errs[0])
	}
}

func TestValidate_ValidTask(t *testing.T) {
	task := &domain.Task{
		Steps: []*domain.Step{
			step("move", domain.ActionMoveShelf, "scan"),
			step("scan", domain.ActionBioScan),
			step("return", domain.ActionReturnShelf),
		},
	}

	if errs := Validate(task); len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
	if err := ValidateTask(task); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestValidate_EmptyTaskIsValid(t *testing.T) {
	if errs := Validate(&domain.Task{}); len(errs) != 0 {
		t.Errorf("expected no errors for task without steps, got %v", errs)
	}
}

func TestValidate_SkipGraphViolations(t *testing.T) {
	tests := []struct {
		name    string
		steps   []*domain.Step
		wantErr error
		stepID  string
	}{
		{
			name: "missing target",
			steps: []*domain.Step{
				step("a", domain.ActionMoveShelf, "ghost"),
			},
			wantErr: ErrMissingSkipTarget,
			stepID:  "a",
		},
		{
			name: "self reference",
			steps: []*domain.Step{
				step("a", domain.ActionMoveShelf, "a"),
			},
			wantErr: ErrSelfSkip,
			stepID:  "a",
		},
		{
			name: "target in the past is still valid reference but missing one is not",
			steps: []*domain.Step{
				step("a", domain.ActionSpeak),
				step("b", domain.ActionMoveShelf, "a", "c"),
			},
			wantErr: ErrMissingSkipTarget,
			stepID:  "b",
		},
		{
			name: "duplicate id",
			steps: []*domain.Step{
				step("a", domain.ActionSpeak),
				step("a", domain.ActionWait),
			},
			wantErr: ErrDuplicateStepID,
			stepID:  "a",
		},
		{
			name: "unknown action",
			steps: []*domain.Step{
				step("a", domain.Action("fly")),
			},
			wantErr: ErrUnknownAction,
			stepID:  "a",
		},
		{
			name: "empty id",
			steps: []*domain.Step{
				step("", domain.ActionSpeak),
			},
			wantErr: ErrEmptyStepID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Validate(&domain.Task{Steps: tt.steps})
			if len(errs) == 0 {
				t.Fatal("expected validation errors, got none")
			}

			found := false
			for _, e := range errs {
				if errors.Is(e, tt.wantErr) && e.StepID == tt.stepID {
					found = true
				}
			}
			if !found {
				t.Errorf("expected %v on step %q, got %v", tt.wantErr, tt.stepID, errs)
			}

			err := ValidateTask(&domain.Task{Steps: tt.steps})
			if !errors.Is(err, ErrInvalidTask) {
				t.Errorf("expected ErrInvalidTask, got %v", err)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected wrapped %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	task := &domain.Task{
		Steps: []*domain.Step{
			step("a", domain.ActionMoveShelf, "a", "x"),
			step("b", domain.ActionMoveShelf, "y"),
		},
	}

	errs := Validate(task)
	if len(errs) != 3 {
		t.Fatalf("expected 3 errors, got %d: %v", len(errs), errs)
	}

	var vErr *ValidationError
	if !errors.As(ValidateTask(task), &vErr) {
		t.Fatal("expected ValidationError inside aggregated error")
	}
	if vErr.Field != "skip_on_failure" {
		t.Errorf("expected field skip_on_failure, got %s", vErr.Field)
	}
}

func TestParseTask(t *testing.T) {
	data := []byte(`{
		"robot_id": "kachaka",
		"steps": [
			{"step_id": "s1", "action": "move_shelf", "params": {"shelf_id": "S1", "location_id": "L1"}, "skip_on_failure": ["s2"]},
			{"step_id": "s2", "action": "bio_scan", "params": {"bed_key": "101-1"}}
		]
	}`)

	task, err := ParseTask(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(task.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(task.Steps))
	}
	if task.Steps[0].SkipOnFailure[0] != "s2" {
		t.Errorf("expected skip target s2, got %v", task.Steps[0].SkipOnFailure)
	}

	_, err = ParseTask([]byte(`{"steps": [{"step_id": "s1", "action": "speak", "skip_on_failure": ["s1"]}]}`))
	if !errors.Is(err, ErrSelfSkip) {
		t.Errorf("expected ErrSelfSkip, got %v", err)
	}

	_, err = ParseTask([]byte(`{not json`))
	if !errors.Is(err, ErrInvalidTask) {
		t.Errorf("expected ErrInvalidTask, got %v", err)
	}
}
