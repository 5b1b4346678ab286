// Package agent defines the participants that take turns in a crew run.
package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/vsavkov/appcrew/internal/crew/transcript"
	"github.com/vsavkov/appcrew/internal/llm"
)

// Participant produces the next contribution given everything said so far.
// The returned content is recorded under Name(). Implementations must not
// retain the view beyond the call.
type Participant interface {
	Name() string
	ProduceTurn(ctx context.Context, view transcript.View) (string, error)
}

// Backend is the chat-completion collaborator. *llm.Client satisfies it.
type Backend interface {
	Complete(ctx context.Context, req llm.Request) (llm.Response, error)
}

// Spec is the static definition of one agent role.
type Spec struct {
	Name         string
	Instructions string
	Provider     string
	Model        string
	Temperature  *float64
	MaxTokens    *int
}

// LLMAgent speaks by sending its instructions plus the transcript to a Backend.
type LLMAgent struct {
	spec    Spec
	backend Backend
}

func NewLLMAgent(spec Spec, backend Backend) (*LLMAgent, error) {
	spec.Name = strings.TrimSpace(spec.Name)
	if spec.Name == "" {
		return nil, fmt.Errorf("agent name is required")
	}
	if spec.Name == transcript.User {
		return nil, fmt.Errorf("agent name %q is reserved for the user role", spec.Name)
	}
	if backend == nil {
		return nil, fmt.Errorf("agent %s: backend is nil", spec.Name)
	}
	if strings.TrimSpace(spec.Model) == "" {
		return nil, fmt.Errorf("agent %s: model is required", spec.Name)
	}
	return &LLMAgent{spec: spec, backend: backend}, nil
}

func (a *LLMAgent) Name() string { return a.spec.Name }

func (a *LLMAgent) Spec() Spec { return a.spec }

// ProduceTurn returns the backend's reply text. Backend errors are returned
// wrapped with the agent name; errors.As still reaches the llm error.
func (a *LLMAgent) ProduceTurn(ctx context.Context, view transcript.View) (string, error) {
	resp, err := a.backend.Complete(ctx, a.Request(view))
	if err != nil {
		return "", fmt.Errorf("agent %s: %w", a.spec.Name, err)
	}
	return resp.Text(), nil
}

// Request formats the transcript as a chat-completion request from this
// agent's point of view: its own turns are assistant messages and every
// other speaker's turn is a named user message.
func (a *LLMAgent) Request(view transcript.View) llm.Request {
	msgs := make([]llm.Message, 0, view.Len())
	for i := 0; i < view.Len(); i++ {
		t := view.At(i)
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		if t.Speaker == a.spec.Name {
			msgs = append(msgs, llm.Assistant(t.Content))
			continue
		}
		msgs = append(msgs, llm.Message{Role: llm.RoleUser, Name: t.Speaker, Content: t.Content})
	}
	return llm.Request{
		Provider:    a.spec.Provider,
		Model:       a.spec.Model,
		System:      a.spec.Instructions,
		Messages:    msgs,
		Temperature: a.spec.Temperature,
		MaxTokens:   a.spec.MaxTokens,
	}
}

// ValidateRoster checks the roster invariants: at least one participant,
// unique non-empty names.
func ValidateRoster(roster []Participant) error {
	if len(roster) == 0 {
		return fmt.Errorf("roster is empty")
	}
	seen := map[string]bool{}
	for i, p := range roster {
		if p == nil {
			return fmt.Errorf("roster[%d] is nil", i)
		}
		name := p.Name()
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("roster[%d] has no name", i)
		}
		if seen[name] {
			return fmt.Errorf("duplicate participant name %q", name)
		}
		seen[name] = true
	}
	return nil
}

type funcParticipant struct {
	name string
	fn   func(ctx context.Context, view transcript.View) (string, error)
}

func (p funcParticipant) Name() string { return p.name }
func (p funcParticipant) ProduceTurn(ctx context.Context, view transcript.View) (string, error) {
	return p.fn(ctx, view)
}

// Func adapts a function to a Participant named name.
func Func(name string, fn func(ctx context.Context, view transcript.View) (string, error)) Participant {
	return funcParticipant{name: name, fn: fn}
}
