package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/vsavkov/appcrew/internal/crew/transcript"
)

var speakerPalette = []color.Attribute{
	color.FgCyan,
	color.FgGreen,
	color.FgMagenta,
	color.FgBlue,
	color.FgRed,
}

// turnEcho prints each turn as "[Speaker] content", coloring the speaker
// label. Colors are assigned in order of first appearance.
type turnEcho struct {
	mu     sync.Mutex
	w      io.Writer
	colors map[string]*color.Color
}

func newTurnEcho(w io.Writer) *turnEcho {
	return &turnEcho{w: w, colors: map[string]*color.Color{}}
}

func (e *turnEcho) colorFor(speaker string) *color.Color {
	if c, ok := e.colors[speaker]; ok {
		return c
	}
	var c *color.Color
	if speaker == transcript.User {
		c = color.New(color.FgYellow, color.Bold)
	} else {
		c = color.New(speakerPalette[len(e.colors)%len(speakerPalette)], color.Bold)
	}
	e.colors[speaker] = c
	return c
}

func (e *turnEcho) Turn(t transcript.Turn) {
	e.mu.Lock()
	defer e.mu.Unlock()
	label := e.colorFor(t.Speaker).Sprintf("[%s]", t.Speaker)
	fmt.Fprintf(e.w, "%s %s\n", label, strings.TrimRight(t.Content, "\n"))
}
