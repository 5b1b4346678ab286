package engine

import (
	"testing"

	"github.com/vsavkov/appcrew/internal/crew/transcript"
)

func viewOf(pairs ...string) transcript.View {
	tr := transcript.New()
	for i := 0; i+1 < len(pairs); i += 2 {
		tr.Append(pairs[i], pairs[i+1])
	}
	return tr.View()
}

func TestApprovalPolicy(t *testing.T) {
	cases := []struct {
		name string
		view transcript.View
		want bool
	}{
		{"empty", viewOf(), false},
		{"user approved", viewOf(transcript.User, "build it", "ProductOwner", "ready", transcript.User, "APPROVED"), true},
		{"trimmed and case folded", viewOf(transcript.User, "  approved \n"), true},
		{"agent echo ignored", viewOf(transcript.User, "build it", "ProductOwner", "APPROVED"), false},
		{"not yet", viewOf(transcript.User, "not yet"), false},
		{"substring does not count", viewOf(transcript.User, "APPROVED, mostly"), false},
		{"earlier approval still counts", viewOf(transcript.User, "APPROVED", "SoftwareEngineer", "more"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := (ApprovalPolicy{}).ShouldTerminate(tc.view); got != tc.want {
				t.Fatalf("ShouldTerminate=%v want %v", got, tc.want)
			}
		})
	}
}

func TestApprovalPolicy_CustomToken(t *testing.T) {
	p := ApprovalPolicy{Token: "ship it"}
	if !p.ShouldTerminate(viewOf(transcript.User, "Ship It")) {
		t.Fatalf("custom token not honored")
	}
	if p.ShouldTerminate(viewOf(transcript.User, "APPROVED")) {
		t.Fatalf("default token should not apply when a custom one is set")
	}
}
