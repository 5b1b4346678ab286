package engine

import (
	"fmt"
	"strings"

	"github.com/vsavkov/appcrew/internal/crew/agent"
	"github.com/vsavkov/appcrew/internal/crew/publish"
)

type RosterOptions struct {
	Backend agent.Backend

	// Interviewer answers for the human participant. When nil, auto_approve
	// mode builds one from the config; console mode requires it.
	Interviewer agent.Interviewer

	// DefaultModel resolves the model for agents that name none.
	DefaultModel func(provider string) string
}

// BuildRoster turns the config's agents, plus the human when enabled, into
// the ordered participant list. The human is inserted right after the agent
// named by human.after.
func BuildRoster(cfg *CrewConfig, opts RosterOptions) ([]agent.Participant, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	var human agent.Participant
	if cfg.Human.Enabled != nil && *cfg.Human.Enabled {
		iv := opts.Interviewer
		if iv == nil {
			switch cfg.Human.Mode {
			case HumanAutoApprove:
				iv = &agent.AutoApproveInterviewer{Token: cfg.Termination.Token, ReadyPhrase: cfg.Human.ReadyPhrase}
			default:
				return nil, fmt.Errorf("human mode %q needs an interviewer", cfg.Human.Mode)
			}
		}
		h := agent.NewHuman(iv)
		if cfg.Human.Prompt != "" {
			h.Prompt = cfg.Human.Prompt
		}
		human = h
	}

	roster := make([]agent.Participant, 0, len(cfg.Agents)+1)
	for _, ac := range cfg.Agents {
		model := ac.Model
		if model == "" && opts.DefaultModel != nil {
			model = strings.TrimSpace(opts.DefaultModel(ac.Provider))
		}
		a, err := agent.NewLLMAgent(agent.Spec{
			Name:         ac.Name,
			Instructions: ac.Instructions,
			Provider:     ac.Provider,
			Model:        model,
			Temperature:  ac.Temperature,
			MaxTokens:    ac.MaxTokens,
		}, opts.Backend)
		if err != nil {
			return nil, err
		}
		roster = append(roster, a)
		if human != nil && ac.Name == cfg.Human.After {
			roster = append(roster, human)
			human = nil
		}
	}
	if human != nil {
		return nil, fmt.Errorf("human.after: no agent named %q", cfg.Human.After)
	}
	if err := agent.ValidateRoster(roster); err != nil {
		return nil, err
	}
	return roster, nil
}

// NewPublisher builds the configured publisher, or publish.Discard when
// publishing is disabled.
func NewPublisher(cfg *CrewConfig) publish.Publisher {
	if cfg == nil || (cfg.Publish.Enabled != nil && !*cfg.Publish.Enabled) {
		return publish.Discard
	}
	w := &publish.Workspace{Dir: cfg.Publish.Dir, Script: cfg.Publish.Script}
	if g := cfg.Publish.Git; g != nil {
		w.Script = ""
		w.Git = &publish.Git{Remote: g.Remote, Branch: g.Branch, Add: g.Add, Message: g.Message}
	}
	return w
}

// NewOrchestrator applies the config's termination and artifact settings.
func NewOrchestrator(cfg *CrewConfig, roster []agent.Participant, pub publish.Publisher) *Orchestrator {
	o := &Orchestrator{
		Roster:    roster,
		Policy:    ApprovalPolicy{Token: cfg.Termination.Token},
		Tag:       cfg.Artifact.Tag,
		Filename:  cfg.Artifact.Filename,
		Publisher: pub,
	}
	if cfg.Termination.MaxTurns != nil {
		o.MaxTurns = *cfg.Termination.MaxTurns
	}
	return o
}
