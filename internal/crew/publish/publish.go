// Package publish hands an extracted artifact to its destination: a file in
// a workspace directory followed by a version-control push.
package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/vsavkov/appcrew/internal/crew/gitutil"
	"github.com/vsavkov/appcrew/internal/crew/procutil"
)

type Publisher interface {
	Publish(ctx context.Context, content, filename string) error
}

type PublisherFunc func(ctx context.Context, content, filename string) error

func (f PublisherFunc) Publish(ctx context.Context, content, filename string) error {
	return f(ctx, content, filename)
}

type discard struct{}

func (discard) Publish(context.Context, string, string) error { return nil }

// Discard accepts every artifact and does nothing with it.
var Discard Publisher = discard{}

// Git configures the built-in version-control step.
type Git struct {
	Remote  string
	Branch  string   // empty: the current branch
	Add     []string // doublestar globs relative to the workspace; empty: the artifact file
	Message string
}

// Workspace writes the artifact under Dir, then runs Script if set, else the
// Git step if set. With neither, the file write is the whole publish.
type Workspace struct {
	Dir    string
	Script string
	Git    *Git

	// ScriptOutput, when set, receives the script's captured output.
	ScriptOutput func(procutil.Output)
}

func (w *Workspace) Publish(ctx context.Context, content, filename string) error {
	dir := w.Dir
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}
	filename = filepath.Clean(strings.TrimSpace(filename))
	if filename == "." || !filepath.IsLocal(filename) {
		return fmt.Errorf("publish: filename %q must be a relative path inside the workspace", filename)
	}
	target := filepath.Join(dir, filename)
	if err := writeFileAtomic(target, []byte(content)); err != nil {
		return fmt.Errorf("publish: write %s: %w", target, err)
	}

	switch {
	case strings.TrimSpace(w.Script) != "":
		out, err := procutil.RunScript(ctx, dir, w.Script, []string{"APPCREW_ARTIFACT=" + filename})
		if w.ScriptOutput != nil {
			w.ScriptOutput(out)
		}
		if err != nil {
			return fmt.Errorf("publish: %w", err)
		}
	case w.Git != nil:
		if err := w.pushGit(ctx, dir, filename); err != nil {
			return fmt.Errorf("publish: %w", err)
		}
	}
	return nil
}

func (w *Workspace) pushGit(ctx context.Context, dir, filename string) error {
	if !gitutil.IsRepo(ctx, dir) {
		return fmt.Errorf("%s is not a git work tree", dir)
	}
	paths, err := MatchPaths(dir, w.Git.Add)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		paths = []string{filepath.ToSlash(filename)}
	}
	if err := gitutil.AddPaths(ctx, dir, paths...); err != nil {
		return err
	}
	msg := strings.TrimSpace(w.Git.Message)
	if msg == "" {
		msg = "Publish " + filepath.ToSlash(filename)
	}
	if _, err := gitutil.Commit(ctx, dir, msg); err != nil && !errors.Is(err, gitutil.ErrNothingToCommit) {
		return err
	}
	remote := strings.TrimSpace(w.Git.Remote)
	if remote == "" {
		remote = "origin"
	}
	branch := strings.TrimSpace(w.Git.Branch)
	if branch == "" {
		if branch, err = gitutil.CurrentBranch(ctx, dir); err != nil {
			return err
		}
	}
	return gitutil.PushBranch(ctx, dir, remote, branch)
}

// MatchPaths expands doublestar globs against dir and returns the sorted,
// de-duplicated slash-separated matches.
func MatchPaths(dir string, globs []string) ([]string, error) {
	fsys := os.DirFS(dir)
	seen := map[string]bool{}
	var out []string
	for _, g := range globs {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		if !doublestar.ValidatePattern(g) {
			return nil, fmt.Errorf("invalid glob %q", g)
		}
		matches, err := doublestar.Glob(fsys, g, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", g, err)
		}
		for _, m := range matches {
			if m == ".git" || strings.HasPrefix(m, ".git/") || seen[m] {
				continue
			}
			seen[m] = true
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out, nil
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
