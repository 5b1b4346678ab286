package agent

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/vsavkov/appcrew/internal/crew/transcript"
)

func TestHuman_SpeaksAsUserAndSeesLatestTurn(t *testing.T) {
	iv := &ScriptedInterviewer{Answers: []string{"not yet, please fix the button"}}
	h := NewHuman(iv)
	if h.Name() != transcript.User {
		t.Fatalf("name: %q", h.Name())
	}
	tr := transcript.New()
	tr.Append(transcript.User, "Build a todo app")
	tr.Append("ProductOwner", "READY FOR USER APPROVAL")
	got, err := h.ProduceTurn(context.Background(), tr.View())
	if err != nil {
		t.Fatalf("ProduceTurn: %v", err)
	}
	if got != "not yet, please fix the button" {
		t.Fatalf("answer: %q", got)
	}
	asked := iv.Asked()
	if len(asked) != 1 || asked[0].Latest.Speaker != "ProductOwner" || asked[0].Turns != 2 {
		t.Fatalf("asked: %+v", asked)
	}
}

func TestScriptedInterviewer_Exhausted(t *testing.T) {
	h := NewHuman(&ScriptedInterviewer{})
	_, err := h.ProduceTurn(context.Background(), transcript.New().View())
	if !errors.Is(err, ErrNoMoreAnswers) {
		t.Fatalf("expected ErrNoMoreAnswers, got %v", err)
	}
}

func TestConsoleInterviewer_ReadsLines(t *testing.T) {
	var out bytes.Buffer
	c := &ConsoleInterviewer{In: strings.NewReader("looks wrong\r\nAPPROVED"), Out: &out}
	q := Question{Prompt: "> "}
	first, err := c.Ask(context.Background(), q)
	if err != nil || first != "looks wrong" {
		t.Fatalf("first: %q %v", first, err)
	}
	second, err := c.Ask(context.Background(), q)
	if err != nil || second != "APPROVED" {
		t.Fatalf("second: %q %v", second, err)
	}
	if _, err := c.Ask(context.Background(), q); err == nil {
		t.Fatalf("expected EOF once input is drained")
	}
	if out.String() != "> > > " {
		t.Fatalf("prompts: %q", out.String())
	}
}

func TestConsoleInterviewer_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := &ConsoleInterviewer{In: strings.NewReader("APPROVED\n")}
	if _, err := c.Ask(ctx, Question{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestAutoApproveInterviewer(t *testing.T) {
	always := &AutoApproveInterviewer{}
	if got, _ := always.Ask(context.Background(), Question{}); got != "APPROVED" {
		t.Fatalf("always: %q", got)
	}
	gated := &AutoApproveInterviewer{ReadyPhrase: "ready for user approval", Otherwise: "keep going"}
	if got, _ := gated.Ask(context.Background(), Question{Latest: transcript.Turn{Content: "needs work"}}); got != "keep going" {
		t.Fatalf("gated before ready: %q", got)
	}
	if got, _ := gated.Ask(context.Background(), Question{Latest: transcript.Turn{Content: "All good. READY FOR USER APPROVAL"}}); got != "APPROVED" {
		t.Fatalf("gated after ready: %q", got)
	}
}
