// Package checkset composes task definitions into a named verification
// target. Members execute independently over a worker pool; a failure in one
// never suppresses execution or reporting of the others.
package checkset

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kilnproject/kiln/internal/models"
)

// TaskExecutor executes a single task definition and returns its result.
type TaskExecutor interface {
	Execute(ctx context.Context, def models.TaskDefinition, snap *models.Snapshot, cache models.DepCache, tc models.Toolchain) (*models.TaskResult, error)
}

// Set is a named, orderless collection of task definitions.
type Set struct {
	Name    string
	Members []models.TaskDefinition
}

// New creates a check set. Membership is fixed at construction.
func New(name string, members []models.TaskDefinition) *Set {
	return &Set{Name: name, Members: members}
}

// Select returns a subset containing only the named members, preserving the
// full set when names is empty.
func (s *Set) Select(names []string) (*Set, error) {
	if len(names) == 0 {
		return s, nil
	}

	byName := make(map[string]models.TaskDefinition, len(s.Members))
	for _, m := range s.Members {
		byName[m.Name] = m
	}

	var members []models.TaskDefinition
	for _, n := range names {
		def, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("unknown check %q in set %s", n, s.Name)
		}
		members = append(members, def)
	}
	return &Set{Name: s.Name, Members: members}, nil
}

// Run executes every member over nWorkers workers, blocking until all have
// reported. Every member consumes the same snapshot, cache and toolchain by
// reference; members share no mutable state, so the fan-out needs no locks.
func (s *Set) Run(ctx context.Context, exec TaskExecutor, snap *models.Snapshot, cache models.DepCache, tc models.Toolchain, nWorkers int) *models.CheckSetResult {
	if nWorkers <= 0 {
		nWorkers = 1
	}
	if nWorkers > len(s.Members) {
		nWorkers = len(s.Members)
	}

	defChan := make(chan models.TaskDefinition)
	resultChan := make(chan *models.TaskResult, len(s.Members))

	var wg sync.WaitGroup
	for range nWorkers {
		wg.Go(func() {
			for def := range defChan {
				result, err := exec.Execute(ctx, def, snap, cache, tc)
				if err != nil {
					result = &models.TaskResult{
						Name:   def.Name,
						Kind:   def.Kind,
						Status: models.StatusFailure,
						Error: &models.TaskError{
							Type:    models.ErrInternalError,
							Message: err.Error(),
						},
					}
				}
				resultChan <- result
			}
		})
	}

	// Feeder: stops handing out members once the context is cancelled, but
	// never because a sibling failed.
	go func() {
		defer close(defChan)
		for _, def := range s.Members {
			select {
			case <-ctx.Done():
				return
			case defChan <- def:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	out := &models.CheckSetResult{
		Name:   s.Name,
		Passed: true,
		Checks: make(map[string]models.TaskResult, len(s.Members)),
	}

	for result := range resultChan {
		out.Checks[result.Name] = *result
		if result.Failed() {
			out.Passed = false
			out.Failures++
			slog.Warn("check failed", "set", s.Name, "check", result.Name, "error", result.Error.Message)
		} else {
			slog.Info("check passed", "set", s.Name, "check", result.Name)
		}
	}

	// Members the feeder never handed out still appear in the mapping.
	for _, def := range s.Members {
		if _, ok := out.Checks[def.Name]; ok {
			continue
		}
		out.Checks[def.Name] = models.TaskResult{
			Name:   def.Name,
			Kind:   def.Kind,
			Status: models.StatusSkipped,
		}
		out.Skipped++
		out.Passed = false
	}

	return out
}
