package strategy

import (
	"context"
	"fmt"

	"github.com/guimove/hostbalance/internal/solution"
)

// Phase is the lifecycle position of a strategy instance.
type Phase string

const (
	PhaseCreated      Phase = "created"
	PhasePreExecuted  Phase = "pre_executed"
	PhaseExecuted     Phase = "executed"
	PhasePostExecuted Phase = "post_executed"
	PhaseFailed       Phase = "failed"
)

// Execute runs pre-execute, do-execute and post-execute in order and returns
// the sealed solution. A strategy instance runs at most once: a second call,
// even after a failure, returns ErrAlreadyExecuted.
func Execute(ctx context.Context, s Strategy) (*solution.Solution, error) {
	if s.Phase() != PhaseCreated {
		return nil, fmt.Errorf("%s: %w (phase %s)", s.Name(), ErrAlreadyExecuted, s.Phase())
	}

	steps := []struct {
		name string
		run  func(context.Context) error
		next Phase
	}{
		{"pre_execute", s.PreExecute, PhasePreExecuted},
		{"do_execute", s.DoExecute, PhaseExecuted},
		{"post_execute", s.PostExecute, PhasePostExecuted},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			s.setPhase(PhaseFailed)
			return nil, fmt.Errorf("%s %s: %w", s.Name(), step.name, err)
		}
		if err := step.run(ctx); err != nil {
			s.setPhase(PhaseFailed)
			return nil, fmt.Errorf("%s %s: %w", s.Name(), step.name, err)
		}
		s.setPhase(step.next)
	}

	sol := s.Solution()
	sol.Seal()
	return sol, nil
}
