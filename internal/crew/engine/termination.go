package engine

import (
	"strings"

	"github.com/vsavkov/appcrew/internal/crew/transcript"
)

// DefaultApprovalToken is the user reply that ends a run.
const DefaultApprovalToken = "APPROVED"

// Policy decides, after each appended turn, whether the run must stop.
type Policy interface {
	ShouldTerminate(view transcript.View) bool
}

type PolicyFunc func(view transcript.View) bool

func (f PolicyFunc) ShouldTerminate(view transcript.View) bool { return f(view) }

// ApprovalPolicy terminates once any user turn, trimmed and upper-cased,
// equals Token. Agent turns never count, even when they echo the token.
type ApprovalPolicy struct {
	Token string
}

func (p ApprovalPolicy) ShouldTerminate(view transcript.View) bool {
	token := strings.ToUpper(strings.TrimSpace(p.Token))
	if token == "" {
		token = DefaultApprovalToken
	}
	for i := view.Len() - 1; i >= 0; i-- {
		t := view.At(i)
		if t.IsUser() && strings.ToUpper(strings.TrimSpace(t.Content)) == token {
			return true
		}
	}
	return false
}
