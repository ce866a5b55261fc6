package git

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// Repo runs git commands against one local clone
type Repo struct {
	dir    string
	logger *slog.Logger
}

// Open returns a Repo for an existing working tree. It does not verify dir;
// use IsRepository for that.
func Open(dir string) *Repo {
	return &Repo{
		dir:    dir,
		logger: slog.Default().With("component", "git"),
	}
}

// Dir returns the working tree path
func (r *Repo) Dir() string {
	return r.dir
}

// gitEnv disables credential prompts and pins the output locale so parsing
// does not depend on the host.
func gitEnv() []string {
	return append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "LC_ALL=C")
}

// run executes git with args in the working tree and returns stdout. Paths
// are printed unquoted.
func (r *Repo) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-c", "core.quotepath=off"}, args...)...)
	cmd.Dir = r.dir
	cmd.Env = gitEnv()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("git %s failed: %w (stderr: %s)", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// IsRepository reports whether dir is the top of a git working tree
func IsRepository(ctx context.Context, dir string) bool {
	out, err := Open(dir).run(ctx, "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(string(out)) == "true"
}

// CommitExists reports whether sha names a commit in the clone
func (r *Repo) CommitExists(ctx context.Context, sha string) bool {
	if sha == "" {
		return false
	}
	_, err := r.run(ctx, "cat-file", "-e", sha+"^{commit}")
	return err == nil
}

// FirstParent returns the first parent of sha. ok is false for a root
// commit.
func (r *Repo) FirstParent(ctx context.Context, sha string) (parent string, ok bool, err error) {
	out, err := r.run(ctx, "rev-list", "--parents", "-n", "1", sha)
	if err != nil {
		return "", false, err
	}
	fields := strings.Fields(string(out))
	if len(fields) < 2 {
		return "", false, nil
	}
	return fields[1], true, nil
}

// Head returns the sha of HEAD
func (r *Repo) Head(ctx context.Context) (string, error) {
	out, err := r.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
