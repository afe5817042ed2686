package deploy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/acorn-pups/dbinfra"
	"github.com/acorn-pups/dbinfra/pkg/observability"
)

// Status is the outcome of one phase.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Phase is one named unit of work. DependsOn names phases that must succeed before it starts;
// they must appear earlier in the list passed to RunPhases.
type Phase struct {
	Name      string
	DependsOn []string
	Run       func(ctx context.Context) error
}

// PhaseResult records how a phase ended.
type PhaseResult struct {
	Name     string        `json:"name" yaml:"name"`
	Status   Status        `json:"status" yaml:"status"`
	Duration time.Duration `json:"duration" yaml:"duration"`
	Err      error         `json:"-" yaml:"-"`
}

// RunScope identifies the run in phase events.
type RunScope struct {
	RunID       string
	Environment string
	Hooks       observability.Hooks
	Now         func() time.Time
}

func (s RunScope) emit(ev observability.PhaseEvent) {
	if s.Hooks.Log == nil {
		return
	}
	ev.RunID = s.RunID
	ev.Environment = s.Environment
	s.Hooks.Log(ev)
}

// RunPhases runs phases in order. A phase whose dependency did not succeed is skipped with a
// dependency error and never started; independent phases still run. The returned error joins
// every failure in phase order.
func RunPhases(ctx context.Context, scope RunScope, phases []Phase) ([]PhaseResult, error) {
	if err := validateGraph(phases); err != nil {
		return nil, err
	}
	now := scope.Now
	if now == nil {
		now = time.Now
	}

	status := make(map[string]Status, len(phases))
	results := make([]PhaseResult, 0, len(phases))
	var errs []error

	for _, ph := range phases {
		if dep, ok := failedDependency(ph, status); ok {
			err := dbinfra.NewError(dbinfra.ErrorCodeDependencyFailed, ph.Name,
				fmt.Sprintf("not started, dependency %s did not succeed", dep))
			status[ph.Name] = StatusSkipped
			results = append(results, PhaseResult{Name: ph.Name, Status: StatusSkipped, Err: err})
			errs = append(errs, err)
			scope.emit(observability.PhaseEvent{
				Level:     "warn",
				Event:     "phase skipped",
				Phase:     ph.Name,
				ErrorCode: dbinfra.ErrorCodeDependencyFailed,
				Err:       err,
			})
			continue
		}

		scope.emit(observability.PhaseEvent{Level: "debug", Event: "phase started", Phase: ph.Name})
		start := now()
		err := ph.Run(ctx)
		elapsed := now().Sub(start)

		if err != nil {
			status[ph.Name] = StatusFailed
			results = append(results, PhaseResult{Name: ph.Name, Status: StatusFailed, Duration: elapsed, Err: err})
			errs = append(errs, err)
			scope.emit(observability.PhaseEvent{
				Level:     "error",
				Event:     "phase failed",
				Phase:     ph.Name,
				Duration:  elapsed,
				ErrorCode: dbinfra.CodeOf(err),
				Err:       err,
			})
			continue
		}

		status[ph.Name] = StatusSucceeded
		results = append(results, PhaseResult{Name: ph.Name, Status: StatusSucceeded, Duration: elapsed})
		scope.emit(observability.PhaseEvent{Level: "info", Event: "phase succeeded", Phase: ph.Name, Duration: elapsed})
	}

	return results, errors.Join(errs...)
}

func failedDependency(ph Phase, status map[string]Status) (string, bool) {
	for _, dep := range ph.DependsOn {
		if status[dep] != StatusSucceeded {
			return dep, true
		}
	}
	return "", false
}

func validateGraph(phases []Phase) error {
	seen := make(map[string]bool, len(phases))
	for _, ph := range phases {
		if ph.Name == "" || ph.Run == nil {
			return dbinfra.NewError(dbinfra.ErrorCodeInvalidConfig, ph.Name, "phase requires a name and a run function")
		}
		if seen[ph.Name] {
			return dbinfra.NewError(dbinfra.ErrorCodeInvalidConfig, ph.Name, "duplicate phase")
		}
		for _, dep := range ph.DependsOn {
			if !seen[dep] {
				return dbinfra.NewError(dbinfra.ErrorCodeInvalidConfig, ph.Name,
					fmt.Sprintf("dependency %s must be declared before the phase", dep))
			}
		}
		seen[ph.Name] = true
	}
	return nil
}
