package llm

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat-completion message. Name is optional and carries the
// participant that authored a user-role message in a multi-party chat.
type Message struct {
	Role    Role
	Name    string
	Content string
}

func System(text string) Message    { return Message{Role: RoleSystem, Content: text} }
func User(text string) Message      { return Message{Role: RoleUser, Content: text} }
func Assistant(text string) Message { return Message{Role: RoleAssistant, Content: text} }

// Text returns the message content.
func (m Message) Text() string { return m.Content }

type Request struct {
	Provider string
	Model    string

	// System is prepended as a system message by adapters when non-empty.
	System   string
	Messages []Message

	Temperature *float64
	MaxTokens   *int

	// ProviderOptions is merged into the provider request body under the
	// adapter's options key.
	ProviderOptions map[string]any
}

func (r Request) Validate() error {
	if strings.TrimSpace(r.Model) == "" {
		return &ConfigurationError{Message: "model is required"}
	}
	if len(r.Messages) == 0 && strings.TrimSpace(r.System) == "" {
		return &ConfigurationError{Message: "at least one message is required"}
	}
	for i, m := range r.Messages {
		switch m.Role {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			return &ConfigurationError{Message: fmt.Sprintf("messages[%d]: invalid role %q", i, m.Role)}
		}
	}
	if r.MaxTokens != nil && *r.MaxTokens <= 0 {
		return &ConfigurationError{Message: "max_tokens must be > 0"}
	}
	return nil
}

type FinishReason struct {
	Reason string
	Raw    string
}

type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

type Response struct {
	ID       string
	Model    string
	Provider string
	Message  Message
	Finish   FinishReason
	Usage    Usage
	Raw      map[string]any
}

func (r Response) Text() string { return r.Message.Content }
