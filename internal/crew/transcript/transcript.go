// Package transcript holds the append-only turn log shared by one run.
package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// User is the distinguished speaker for the human side of the conversation:
// the initiating request and the approval signal.
const User = "user"

// Turn is one contribution to the conversation. Turns are values; once
// appended they are never edited.
type Turn struct {
	Index   int       `json:"index"`
	Speaker string    `json:"speaker"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// IsUser reports whether the turn was spoken by the user role.
func (t Turn) IsUser() bool { return t.Speaker == User }

// Transcript is the ordered log for a single run. It is owned by one
// goroutine at a time; readers get Views.
type Transcript struct {
	turns []Turn
	now   func() time.Time
}

func New() *Transcript {
	return &Transcript{now: time.Now}
}

// Append records a new turn with the next sequence index and returns it.
func (t *Transcript) Append(speaker, content string) Turn {
	idx := 0
	if n := len(t.turns); n > 0 {
		idx = t.turns[n-1].Index + 1
	}
	now := time.Now
	if t.now != nil {
		now = t.now
	}
	turn := Turn{Index: idx, Speaker: speaker, Content: content, At: now().UTC()}
	t.turns = append(t.turns, turn)
	return turn
}

func (t *Transcript) Len() int { return len(t.turns) }

// View returns a snapshot of the turns appended so far. The snapshot is not
// affected by later appends.
func (t *Transcript) View() View {
	n := len(t.turns)
	return View{turns: t.turns[:n:n]}
}

// View is a read-only ordered snapshot of a transcript.
type View struct {
	turns []Turn
}

// NewView builds a view over a copy of turns, for callers that hold turns
// loaded from elsewhere.
func NewView(turns []Turn) View {
	cp := append([]Turn(nil), turns...)
	return View{turns: cp[:len(cp):len(cp)]}
}

func (v View) Len() int { return len(v.turns) }

func (v View) At(i int) Turn { return v.turns[i] }

// Last returns the most recent turn, or false for an empty view.
func (v View) Last() (Turn, bool) {
	if len(v.turns) == 0 {
		return Turn{}, false
	}
	return v.turns[len(v.turns)-1], true
}

// Turns returns a copy of the turns in append order.
func (v View) Turns() []Turn {
	return append([]Turn(nil), v.turns...)
}

// CountBy returns how many turns speaker contributed.
func (v View) CountBy(speaker string) int {
	n := 0
	for _, t := range v.turns {
		if t.Speaker == speaker {
			n++
		}
	}
	return n
}

func (v View) MarshalJSON() ([]byte, error) {
	turns := v.turns
	if turns == nil {
		turns = []Turn{}
	}
	return json.Marshal(struct {
		Turns []Turn `json:"turns"`
	}{Turns: turns})
}

// Save writes the view as transcript JSON to path.
func (v View) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// Load reads a transcript file written by Save.
func Load(path string) (View, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return View{}, err
	}
	var doc struct {
		Turns []Turn `json:"turns"`
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return View{}, fmt.Errorf("decode transcript %s: %w", path, err)
	}
	for i := 1; i < len(doc.Turns); i++ {
		if doc.Turns[i].Index <= doc.Turns[i-1].Index {
			return View{}, fmt.Errorf("transcript %s: turn indices not increasing at position %d", path, i)
		}
	}
	for i, t := range doc.Turns {
		if strings.TrimSpace(t.Speaker) == "" {
			return View{}, fmt.Errorf("transcript %s: turn %d has no speaker", path, i)
		}
	}
	return NewView(doc.Turns), nil
}
