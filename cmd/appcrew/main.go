package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const (
	exitOK         = 0
	exitFailure    = 1
	exitIncomplete = 2
)

type stdio struct {
	in  io.Reader
	out io.Writer
	err io.Writer
}

func main() {
	os.Exit(runMain(os.Args[1:], stdio{in: os.Stdin, out: os.Stdout, err: os.Stderr}))
}

func runMain(args []string, sio stdio) int {
	if len(args) < 1 {
		usage(sio.err)
		return exitFailure
	}
	switch args[0] {
	case "run":
		return crewRun(args[1:], sio)
	case "ping":
		return crewPing(args[1:], sio)
	case "extract":
		return crewExtract(args[1:], sio)
	case "validate":
		return crewValidate(args[1:], sio)
	case "help", "-h", "--help":
		usage(sio.out)
		return exitOK
	default:
		usage(sio.err)
		return exitFailure
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage:")
	fmt.Fprintln(w, "  appcrew run [--config <crew.yaml>] [--requirements <text> | --requirements-file <file>] [--max-turns <n>] [--logs-root <dir>] [--run-id <id>] [--auto-approve] [--no-publish] [--no-color] [--env-file <file>]")
	fmt.Fprintln(w, "  appcrew ping [--env-file <file>] [--model <model>]")
	fmt.Fprintln(w, "  appcrew extract --transcript <transcript.json> [--tag <tag>] [--output <file>]")
	fmt.Fprintln(w, "  appcrew validate --config <crew.yaml>")
}

// loadEnv reads KEY=VALUE pairs into the process environment without
// overriding variables that are already set. The default .env may be absent;
// an explicitly named file must exist.
func loadEnv(path string) error {
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// flagValue returns args[i+1], or an error naming the flag when it is missing.
func flagValue(args []string, i int) (string, error) {
	if i+1 >= len(args) {
		return "", fmt.Errorf("%s requires a value", args[i])
	}
	return args[i+1], nil
}
