package engine

import (
	"fmt"

	"github.com/shaiso/patrol/internal/domain"
)

// SkipGraph — неизменяемый индекс шагов task и рёбер skip_on_failure.
//
// Строится после успешной валидации. Шаги адресуются по индексу
// в task.Steps, поэтому граф остаётся валидным, пока порядок шагов не меняется.
type SkipGraph struct {
	index   map[string]int
	targets [][]int
}

// BuildSkipGraph валидирует task и строит граф пропусков.
func BuildSkipGraph(task *domain.Task) (*SkipGraph, error) {
	if err := ValidateTask(task); err != nil {
		return nil, err
	}

	g := &SkipGraph{
		index:   make(map[string]int, len(task.Steps)),
		targets: make([][]int, len(task.Steps)),
	}
	for i, step := range task.Steps {
		g.index[step.ID] = i
	}
	for i, step := range task.Steps {
		for _, target := range step.SkipOnFailure {
			j, ok := g.index[target]
			if !ok {
				// Уже отсечено валидацией.
				return nil, fmt.Errorf("%w: %s", ErrMissingSkipTarget, target)
			}
			g.targets[i] = append(g.targets[i], j)
		}
	}

	return g, nil
}

// Index возвращает позицию шага по ID.
func (g *SkipGraph) Index(stepID string) (int, bool) {
	i, ok := g.index[stepID]
	return i, ok
}

// Targets возвращает индексы шагов, пропускаемых при неудаче шага i.
func (g *SkipGraph) Targets(i int) []int {
	if i < 0 || i >= len(g.targets) {
		return nil
	}
	return g.targets[i]
}

// HasSkipList возвращает true, если у шага i объявлен skip_on_failure.
func (g *SkipGraph) HasSkipList(i int) bool {
	return len(g.Targets(i)) > 0
}

// Size возвращает количество шагов.
func (g *SkipGraph) Size() int {
	return len(g.targets)
}

// SkippedBy возвращает индекс первого шага, который пропускает шаг j
// при своей неудаче, или -1.
func (g *SkipGraph) SkippedBy(j int) int {
	for i, targets := range g.targets {
		for _, t := range targets {
			if t == j {
				return i
			}
		}
	}
	return -1
}
