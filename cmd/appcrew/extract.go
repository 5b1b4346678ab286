package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/vsavkov/appcrew/internal/crew/engine"
	"github.com/vsavkov/appcrew/internal/crew/publish"
	"github.com/vsavkov/appcrew/internal/crew/transcript"
)

// crewExtract re-runs artifact extraction over a saved transcript.json.
func crewExtract(args []string, sio stdio) int {
	var transcriptPath, output string
	tag := engine.DefaultTag
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--transcript", "--tag", "--output":
			v, err := flagValue(args, i)
			if err != nil {
				fmt.Fprintln(sio.err, err)
				return exitFailure
			}
			switch args[i] {
			case "--transcript":
				transcriptPath = v
			case "--tag":
				tag = v
			case "--output":
				output = v
			}
			i++
		default:
			fmt.Fprintf(sio.err, "unknown arg: %s\n", args[i])
			return exitFailure
		}
	}
	if transcriptPath == "" {
		usage(sio.err)
		return exitFailure
	}
	view, err := transcript.Load(transcriptPath)
	if err != nil {
		fmt.Fprintln(sio.err, err)
		return exitFailure
	}
	art, ok := engine.Extract(view, tag)
	if !ok {
		fmt.Fprintf(sio.err, "no ```%s block found in %s\n", tag, transcriptPath)
		return exitIncomplete
	}
	if output == "" {
		fmt.Fprintln(sio.out, art.Content)
		return exitOK
	}
	w := &publish.Workspace{Dir: filepath.Dir(output)}
	if err := w.Publish(context.Background(), art.Content, filepath.Base(output)); err != nil {
		fmt.Fprintln(sio.err, err)
		return exitFailure
	}
	fmt.Fprintf(sio.out, "turn=%d\nspeaker=%s\nsha=%s\noutput=%s\n", art.TurnIndex, art.Speaker, art.Sum(), output)
	return exitOK
}
