package procutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ExitError reports a script that ran but exited non-zero.
type ExitError struct {
	Script string
	Code   int
	Stdout string
	Stderr string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with status %d", e.Script, e.Code)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

type Output struct {
	Stdout string
	Stderr string
}

// RunScript executes script with bash in dir, capturing both streams.
// extraEnv entries (KEY=VALUE) are appended to the inherited environment.
func RunScript(ctx context.Context, dir, script string, extraEnv []string, args ...string) (Output, error) {
	script = strings.TrimSpace(script)
	if script == "" {
		return Output{}, fmt.Errorf("script is required")
	}
	cmd := exec.CommandContext(ctx, "bash", append([]string{script}, args...)...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), extraEnv...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return out, nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) && ee.ExitCode() >= 0 {
		return out, &ExitError{Script: script, Code: ee.ExitCode(), Stdout: out.Stdout, Stderr: out.Stderr}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return out, fmt.Errorf("%s: %w", script, ctxErr)
	}
	return out, fmt.Errorf("%s: %w", script, err)
}
