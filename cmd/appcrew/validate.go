package main

import (
	"fmt"
	"strings"

	"github.com/vsavkov/appcrew/internal/crew/engine"
	"github.com/vsavkov/appcrew/internal/crew/transcript"
)

func crewValidate(args []string, sio stdio) int {
	var configPath string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			v, err := flagValue(args, i)
			if err != nil {
				fmt.Fprintln(sio.err, err)
				return exitFailure
			}
			configPath = v
			i++
		default:
			fmt.Fprintf(sio.err, "unknown arg: %s\n", args[i])
			return exitFailure
		}
	}
	if configPath == "" {
		usage(sio.err)
		return exitFailure
	}
	cfg, err := engine.LoadCrewConfigFile(configPath)
	if err != nil {
		fmt.Fprintln(sio.err, err)
		return exitFailure
	}
	names := make([]string, 0, len(cfg.Agents)+1)
	for _, a := range cfg.Agents {
		names = append(names, a.Name)
		if *cfg.Human.Enabled && a.Name == cfg.Human.After {
			names = append(names, transcript.User)
		}
	}
	fmt.Fprintf(sio.out, "ok: roster=%s max_turns=%d tag=%s filename=%s\n",
		strings.Join(names, ","), *cfg.Termination.MaxTurns, cfg.Artifact.Tag, cfg.Artifact.Filename)
	return exitOK
}
