package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/vsavkov/appcrew/internal/crew/agent"
	"github.com/vsavkov/appcrew/internal/crew/transcript"
)

type State string

const (
	StateRunning    State = "RUNNING"
	StateTerminated State = "TERMINATED"
	StateFailed     State = "FAILED"
	StateExhausted  State = "EXHAUSTED"
)

// ErrCanceled is wrapped, together with the context error, when a run stops
// because its context ended between turns.
var ErrCanceled = errors.New("run canceled")

// TurnError reports a participant that failed to produce its turn. Nothing
// was appended for the failed turn.
type TurnError struct {
	Speaker string
	Index   int
	Err     error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("turn %d (%s): %v", e.Index, e.Speaker, e.Err)
}

func (e *TurnError) Unwrap() error { return e.Err }

// Scheduler drives strict round-robin turn-taking over a fixed roster.
type Scheduler struct {
	roster []agent.Participant
	policy Policy

	// MaxTurns bounds the number of appended turns; 0 means unbounded.
	MaxTurns int

	// OnTurn, when set, observes each appended turn before the policy runs.
	OnTurn func(turn transcript.Turn)

	state  State
	cursor int
	turns  int
}

func NewScheduler(roster []agent.Participant, policy Policy) (*Scheduler, error) {
	if err := agent.ValidateRoster(roster); err != nil {
		return nil, err
	}
	if policy == nil {
		policy = ApprovalPolicy{}
	}
	return &Scheduler{
		roster: append([]agent.Participant(nil), roster...),
		policy: policy,
		state:  StateRunning,
	}, nil
}

func (s *Scheduler) State() State { return s.state }

// Turns is the number of turns this scheduler appended.
func (s *Scheduler) Turns() int { return s.turns }

// Next returns the participant whose turn it is.
func (s *Scheduler) Next() agent.Participant { return s.roster[s.cursor] }

// Step runs one turn against tr. It returns the resulting state and, only
// in the FAILED state, the error.
func (s *Scheduler) Step(ctx context.Context, tr *transcript.Transcript) (State, error) {
	if s.state != StateRunning {
		return s.state, nil
	}
	if s.MaxTurns > 0 && s.turns >= s.MaxTurns {
		s.state = StateExhausted
		return s.state, nil
	}
	if err := ctx.Err(); err != nil {
		s.state = StateFailed
		return s.state, fmt.Errorf("%w: %w", ErrCanceled, err)
	}

	p := s.roster[s.cursor]
	// The backend call is not interrupted by cancellation; the run stops at
	// the next turn boundary instead.
	content, err := p.ProduceTurn(context.WithoutCancel(ctx), tr.View())
	if err != nil {
		s.state = StateFailed
		return s.state, &TurnError{Speaker: p.Name(), Index: tr.Len(), Err: err}
	}
	turn := tr.Append(p.Name(), content)
	s.turns++
	s.cursor = (s.cursor + 1) % len(s.roster)
	if s.OnTurn != nil {
		s.OnTurn(turn)
	}

	if s.policy.ShouldTerminate(tr.View()) {
		s.state = StateTerminated
		return s.state, nil
	}
	if s.MaxTurns > 0 && s.turns >= s.MaxTurns {
		s.state = StateExhausted
	}
	return s.state, nil
}

// Run steps until the scheduler leaves RUNNING.
func (s *Scheduler) Run(ctx context.Context, tr *transcript.Transcript) (State, error) {
	for {
		st, err := s.Step(ctx, tr)
		if err != nil || st != StateRunning {
			return st, err
		}
	}
}
