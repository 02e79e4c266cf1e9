package engine

import (
	"errors"
	"testing"

	"github.com/shaiso/patrol/internal/domain"
)

func TestBuildSkipGraph(t *testing.T) {
	task := &domain.Task{
		Steps: []*domain.Step{
			step("move1", domain.ActionMoveShelf, "scan1", "return1"),
			step("scan1", domain.ActionBioScan),
			step("return1", domain.ActionReturnShelf),
			step("home", domain.ActionReturnHome),
		},
	}

	g, err := BuildSkipGraph(task)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if g.Size() != 4 {
		t.Errorf("expected size 4, got %d", g.Size())
	}

	i, ok := g.Index("return1")
	if !ok || i != 2 {
		t.Errorf("expected return1 at 2, got %d (%v)", i, ok)
	}

	targets := g.Targets(0)
	if len(targets) != 2 || targets[0] != 1 || targets[1] != 2 {
		t.Errorf("unexpected targets for move1: %v", targets)
	}

	if !g.HasSkipList(0) {
		t.Error("move1 should have a skip list")
	}
	if g.HasSkipList(3) {
		t.Error("home should not have a skip list")
	}
	if g.Targets(10) != nil {
		t.Error("out of range index should return nil")
	}

	if by := g.SkippedBy(1); by != 0 {
		t.Errorf("expected scan1 skipped by 0, got %d", by)
	}
	if by := g.SkippedBy(3); by != -1 {
		t.Errorf("expected home not skipped by anyone, got %d", by)
	}
}

func TestBuildSkipGraph_Invalid(t *testing.T) {
	task := &domain.Task{
		Steps: []*domain.Step{
			step("a", domain.ActionMoveShelf, "missing"),
		},
	}

	_, err := BuildSkipGraph(task)
	if !errors.Is(err, ErrMissingSkipTarget) {
		t.Errorf("expected ErrMissingSkipTarget, got %v", err)
	}
}
