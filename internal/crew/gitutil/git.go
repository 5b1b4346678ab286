package gitutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrNothingToCommit is returned by Commit when the index matches HEAD.
var ErrNothingToCommit = errors.New("nothing to commit")

type CommandError struct {
	Args   []string
	Stdout string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("git %s: %v", strings.Join(e.Args, " "), e.Err)
	if e.Stderr != "" {
		msg += ": " + strings.TrimSpace(e.Stderr)
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

func runGit(ctx context.Context, dir string, args ...string) (string, string, error) {
	// Background auto-maintenance would outlive the publish step.
	base := []string{
		"-C", dir,
		"-c", "maintenance.auto=0",
		"-c", "gc.auto=0",
	}
	cmd := exec.CommandContext(ctx, "git", append(base, args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	outStr := stdout.String()
	errStr := stderr.String()
	if err != nil {
		return outStr, errStr, &CommandError{Args: args, Stdout: outStr, Stderr: errStr, Err: err}
	}
	return outStr, errStr, nil
}

func IsRepo(ctx context.Context, dir string) bool {
	out, _, err := runGit(ctx, dir, "rev-parse", "--is-inside-work-tree")
	if err != nil {
		return false
	}
	return strings.TrimSpace(out) == "true"
}

func HeadSHA(ctx context.Context, dir string) (string, error) {
	out, _, err := runGit(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func CurrentBranch(ctx context.Context, dir string) (string, error) {
	out, _, err := runGit(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	b := strings.TrimSpace(out)
	if b == "HEAD" {
		return "", fmt.Errorf("detached HEAD in %s", dir)
	}
	return b, nil
}

func StatusPorcelain(ctx context.Context, dir string) (string, error) {
	out, _, err := runGit(ctx, dir, "status", "--porcelain")
	if err != nil {
		return "", err
	}
	return out, nil
}

// AddPaths stages the given paths, relative to dir.
func AddPaths(ctx context.Context, dir string, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	_, _, err := runGit(ctx, dir, append([]string{"add", "--"}, paths...)...)
	return err
}

func hasStagedChanges(ctx context.Context, dir string) (bool, error) {
	_, _, err := runGit(ctx, dir, "diff", "--cached", "--quiet")
	if err == nil {
		return false, nil
	}
	var ce *CommandError
	var ee *exec.ExitError
	if errors.As(err, &ce) && errors.As(ce.Err, &ee) && ee.ExitCode() == 1 {
		return true, nil
	}
	return false, err
}

// Commit records the staged changes and returns the new HEAD.
func Commit(ctx context.Context, dir, message string) (string, error) {
	staged, err := hasStagedChanges(ctx, dir)
	if err != nil {
		return "", err
	}
	if !staged {
		return "", ErrNothingToCommit
	}
	_, _, err = runGit(ctx, dir, "commit", "-m", message)
	if err != nil {
		// Missing identity: retry once with a fallback committer, leaving repo
		// config untouched.
		if strings.Contains(err.Error(), "Author identity unknown") ||
			strings.Contains(err.Error(), "Please tell me who you are") ||
			strings.Contains(err.Error(), "unable to auto-detect email address") {
			_, _, err = runGit(
				ctx, dir,
				"-c", "user.name=appcrew",
				"-c", "user.email=appcrew@local",
				"commit", "-m", message,
			)
		}
		if err != nil {
			return "", err
		}
	}
	return HeadSHA(ctx, dir)
}

// PushBranch pushes a branch to the specified remote.
func PushBranch(ctx context.Context, dir, remote, branch string) error {
	_, _, err := runGit(ctx, dir, "push", remote, branch)
	return err
}
