package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/vsavkov/appcrew/internal/crew/transcript"
)

// Question is what the human participant is shown before answering.
type Question struct {
	Prompt string
	Latest transcript.Turn
	Turns  int
}

// Interviewer supplies the human side of the conversation.
type Interviewer interface {
	Ask(ctx context.Context, q Question) (string, error)
}

// Human is the user-role participant. Its turns are recorded under
// transcript.User, which is what the approval policy looks for.
type Human struct {
	Prompt      string
	Interviewer Interviewer
}

const DefaultHumanPrompt = "Reply APPROVED to accept, or give feedback: "

func NewHuman(iv Interviewer) *Human {
	return &Human{Prompt: DefaultHumanPrompt, Interviewer: iv}
}

func (h *Human) Name() string { return transcript.User }

func (h *Human) ProduceTurn(ctx context.Context, view transcript.View) (string, error) {
	if h.Interviewer == nil {
		return "", fmt.Errorf("human participant has no interviewer")
	}
	q := Question{Prompt: h.Prompt, Turns: view.Len()}
	if last, ok := view.Last(); ok {
		q.Latest = last
	}
	ans, err := h.Interviewer.Ask(ctx, q)
	if err != nil {
		return "", fmt.Errorf("user input: %w", err)
	}
	return ans, nil
}

// ConsoleInterviewer prompts on Out and reads one line from In.
type ConsoleInterviewer struct {
	In  io.Reader
	Out io.Writer

	once sync.Once
	r    *bufio.Reader
}

func (c *ConsoleInterviewer) Ask(ctx context.Context, q Question) (string, error) {
	// The scheduler never cancels an in-flight turn; this only stops direct callers.
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.once.Do(func() { c.r = bufio.NewReader(c.In) })
	if c.Out != nil {
		fmt.Fprint(c.Out, q.Prompt)
	}
	line, err := c.r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// AutoApproveInterviewer answers without a human. With an empty ReadyPhrase
// it approves immediately; otherwise it approves only once the latest turn
// contains ReadyPhrase and replies Otherwise until then.
type AutoApproveInterviewer struct {
	Token       string
	ReadyPhrase string
	Otherwise   string
}

func (a *AutoApproveInterviewer) Ask(ctx context.Context, q Question) (string, error) {
	token := a.Token
	if token == "" {
		token = "APPROVED"
	}
	phrase := strings.TrimSpace(a.ReadyPhrase)
	if phrase == "" || strings.Contains(strings.ToUpper(q.Latest.Content), strings.ToUpper(phrase)) {
		return token, nil
	}
	if a.Otherwise != "" {
		return a.Otherwise, nil
	}
	return "Please continue.", nil
}

// ErrNoMoreAnswers is returned by ScriptedInterviewer once its answers run out.
var ErrNoMoreAnswers = errors.New("scripted interviewer: no more answers")

// ScriptedInterviewer replays fixed answers in order.
type ScriptedInterviewer struct {
	Answers []string

	mu    sync.Mutex
	next  int
	asked []Question
}

func (s *ScriptedInterviewer) Ask(ctx context.Context, q Question) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.asked = append(s.asked, q)
	if s.next >= len(s.Answers) {
		return "", ErrNoMoreAnswers
	}
	ans := s.Answers[s.next]
	s.next++
	return ans, nil
}

// Asked returns the questions seen so far.
func (s *ScriptedInterviewer) Asked() []Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Question(nil), s.asked...)
}
