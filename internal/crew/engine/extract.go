package engine

import (
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/vsavkov/appcrew/internal/crew/transcript"
)

const fence = "```"

// Artifact is a fenced block pulled out of a turn.
type Artifact struct {
	Tag       string
	Content   string
	TurnIndex int
	Speaker   string
}

// Sum returns the hex BLAKE3-256 digest of the content.
func (a Artifact) Sum() string {
	sum := blake3.Sum256([]byte(a.Content))
	return hex.EncodeToString(sum[:])
}

// Extract returns the first fenced block tagged tag (case-insensitive),
// scanning turns in order. The earliest turn holding a complete block wins.
// ok is false when no turn has one.
func Extract(view transcript.View, tag string) (Artifact, bool) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return Artifact{}, false
	}
	re := fencePattern(tag)
	for i := 0; i < view.Len(); i++ {
		t := view.At(i)
		if body, ok := findFencedBlock(re, t.Content); ok {
			return Artifact{Tag: tag, Content: body, TurnIndex: t.Index, Speaker: t.Speaker}, true
		}
	}
	return Artifact{}, false
}

// fencePattern matches "```<tag>" up to the nearest following "```",
// across newlines, ignoring case.
func fencePattern(tag string) *regexp.Regexp {
	return regexp.MustCompile("(?is)" + regexp.QuoteMeta(fence+tag) + "(.*?)" + regexp.QuoteMeta(fence))
}

func findFencedBlock(re *regexp.Regexp, s string) (string, bool) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}
