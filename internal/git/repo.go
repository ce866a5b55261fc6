package git

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	httpsURLPattern = regexp.MustCompile(`^https?://[^/]+/([^/]+)/([^/]+)/?$`)
	sshURLPattern   = regexp.MustCompile(`^git@[^:]+:([^/]+)/([^/]+)$`)
	gitURLPattern   = regexp.MustCompile(`^git://[^/]+/([^/]+)/([^/]+)$`)
	shorthandRegex  = regexp.MustCompile(`^([\w.-]+)/([\w.-]+)$`)
)

// ParseRepoURL extracts owner and repository name from a remote URL
// Supports multiple URL formats:
//   - HTTPS: https://github.com/owner/repo.git
//   - SSH: git@github.com:owner/repo.git
//   - Git protocol: git://github.com/owner/repo.git
//   - Shorthand: owner/repo
func ParseRepoURL(remoteURL string) (owner, repo string, err error) {
	u := strings.TrimSpace(remoteURL)
	u = strings.TrimSuffix(u, "/")
	u = strings.TrimSuffix(u, ".git")

	for _, re := range []*regexp.Regexp{httpsURLPattern, sshURLPattern, gitURLPattern, shorthandRegex} {
		if m := re.FindStringSubmatch(u); len(m) == 3 {
			return m[1], m[2], nil
		}
	}
	return "", "", fmt.Errorf("unrecognized git URL format: %s", remoteURL)
}

// RepoName returns the repository name of a remote URL, which names the
// data directory and the local clone.
func RepoName(remoteURL string) (string, error) {
	_, repo, err := ParseRepoURL(remoteURL)
	return repo, err
}

// WebURL returns the browser URL of a remote. Shorthand and SSH forms
// are taken to live on github.com.
func WebURL(remoteURL string) (string, error) {
	owner, repo, err := ParseRepoURL(remoteURL)
	if err != nil {
		return "", err
	}
	u := strings.TrimSuffix(strings.TrimSuffix(strings.TrimSpace(remoteURL), "/"), ".git")
	if m := httpsURLPattern.FindStringSubmatch(u); len(m) == 3 {
		return u, nil
	}
	return fmt.Sprintf("https://github.com/%s/%s", owner, repo), nil
}

// CloneURL returns a URL git can clone. Shorthand becomes an https URL on
// github.com; every other form is used as given.
func CloneURL(remoteURL string) (string, error) {
	u := strings.TrimSpace(remoteURL)
	if shorthandRegex.MatchString(strings.TrimSuffix(u, ".git")) {
		owner, repo, err := ParseRepoURL(u)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("https://github.com/%s/%s.git", owner, repo), nil
	}
	if _, _, err := ParseRepoURL(u); err != nil {
		return "", err
	}
	return u, nil
}

// EnsureClone makes dir a full clone of remoteURL. An existing clone is
// fetched and fast-forwarded; failures there are logged and the local
// history is used as is.
func EnsureClone(ctx context.Context, remoteURL, dir string) (*Repo, error) {
	r := Open(dir)

	if isValidGitRepo(dir) {
		if _, err := r.run(ctx, "fetch", "--all", "--tags", "--prune", "--quiet"); err != nil {
			r.logger.Warn("fetch failed, using local history", "dir", dir, "error", err)
			return r, nil
		}
		if _, err := r.run(ctx, "pull", "--ff-only", "--quiet"); err != nil {
			r.logger.Warn("fast-forward failed, using local history", "dir", dir, "error", err)
		}
		return r, nil
	}

	// A directory without .git is a leftover from an interrupted clone
	if _, err := os.Stat(dir); err == nil {
		if err := os.RemoveAll(dir); err != nil {
			return nil, fmt.Errorf("failed to remove incomplete clone %s: %w", dir, err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create repos directory: %w", err)
	}

	// Full history: blame and parent resolution need every commit
	cmd := exec.CommandContext(ctx, "git", "clone", "--quiet", remoteURL, dir)
	cmd.Env = gitEnv()
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("git clone failed: %w, output: %s", err, strings.TrimSpace(string(output)))
	}
	r.logger.Info("repository cloned", "url", remoteURL, "dir", dir)
	return r, nil
}

// isValidGitRepo checks if directory is a valid git repository
func isValidGitRepo(path string) bool {
	info, err := os.Stat(filepath.Join(path, ".git"))
	if err != nil {
		return false
	}
	return info.IsDir()
}
