package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/vsavkov/appcrew/internal/crew/transcript"
	"github.com/vsavkov/appcrew/internal/llm"
)

type recordingBackend struct {
	reqs []llm.Request
	text string
	err  error
}

func (b *recordingBackend) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	b.reqs = append(b.reqs, req)
	if b.err != nil {
		return llm.Response{}, b.err
	}
	return llm.Response{Message: llm.Assistant(b.text)}, nil
}

func TestLLMAgent_RequestMapsSpeakersToRoles(t *testing.T) {
	be := &recordingBackend{text: "reviewed"}
	a, err := NewLLMAgent(Spec{Name: "ProductOwner", Instructions: "Review the code.", Model: "gpt-4o"}, be)
	if err != nil {
		t.Fatalf("NewLLMAgent: %v", err)
	}
	tr := transcript.New()
	tr.Append(transcript.User, "Build a todo app")
	tr.Append("BusinessAnalyst", "plan")
	tr.Append("SoftwareEngineer", "")
	tr.Append("ProductOwner", "earlier feedback")

	got, err := a.ProduceTurn(context.Background(), tr.View())
	if err != nil {
		t.Fatalf("ProduceTurn: %v", err)
	}
	if got != "reviewed" {
		t.Fatalf("content: %q", got)
	}
	if len(be.reqs) != 1 {
		t.Fatalf("backend calls: %d", len(be.reqs))
	}
	req := be.reqs[0]
	if req.System != "Review the code." || req.Model != "gpt-4o" {
		t.Fatalf("system/model: %q %q", req.System, req.Model)
	}
	// The blank engineer turn is skipped.
	if len(req.Messages) != 3 {
		t.Fatalf("messages: got %d want 3 (%+v)", len(req.Messages), req.Messages)
	}
	if m := req.Messages[0]; m.Role != llm.RoleUser || m.Name != transcript.User {
		t.Fatalf("messages[0]: %+v", m)
	}
	if m := req.Messages[1]; m.Role != llm.RoleUser || m.Name != "BusinessAnalyst" {
		t.Fatalf("messages[1]: %+v", m)
	}
	if m := req.Messages[2]; m.Role != llm.RoleAssistant || m.Content != "earlier feedback" {
		t.Fatalf("messages[2]: %+v", m)
	}
}

func TestLLMAgent_PropagatesBackendError(t *testing.T) {
	cause := llm.ErrorFromHTTPStatus("azure_openai", 401, "bad key", nil, nil)
	a, err := NewLLMAgent(Spec{Name: "SoftwareEngineer", Model: "m"}, &recordingBackend{err: cause})
	if err != nil {
		t.Fatalf("NewLLMAgent: %v", err)
	}
	tr := transcript.New()
	tr.Append(transcript.User, "req")
	_, err = a.ProduceTurn(context.Background(), tr.View())
	if !errors.Is(err, cause) || !llm.IsAuthenticationError(err) {
		t.Fatalf("expected wrapped auth error, got %v", err)
	}
}

func TestNewLLMAgent_Validation(t *testing.T) {
	be := &recordingBackend{}
	if _, err := NewLLMAgent(Spec{Name: "", Model: "m"}, be); err == nil {
		t.Fatalf("expected error for empty name")
	}
	if _, err := NewLLMAgent(Spec{Name: transcript.User, Model: "m"}, be); err == nil {
		t.Fatalf("expected error for reserved name")
	}
	if _, err := NewLLMAgent(Spec{Name: "A"}, be); err == nil {
		t.Fatalf("expected error for missing model")
	}
	if _, err := NewLLMAgent(Spec{Name: "A", Model: "m"}, nil); err == nil {
		t.Fatalf("expected error for nil backend")
	}
}

func TestValidateRoster(t *testing.T) {
	noop := func(ctx context.Context, v transcript.View) (string, error) { return "", nil }
	if err := ValidateRoster(nil); err == nil {
		t.Fatalf("expected error for empty roster")
	}
	if err := ValidateRoster([]Participant{Func("A", noop), Func("A", noop)}); err == nil {
		t.Fatalf("expected error for duplicate names")
	}
	if err := ValidateRoster([]Participant{Func("A", noop), NewHuman(&AutoApproveInterviewer{})}); err != nil {
		t.Fatalf("valid roster: %v", err)
	}
}
