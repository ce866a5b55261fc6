package git

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rohankatakam/repograph/internal/models"
)

// %H hash, %an author, %ae email, %cI committer date, %P parents, %B message
const logFormat = "%H%x1f%an%x1f%ae%x1f%cI%x1f%P%x1f%B%x1e"

var changeTypes = map[byte]string{
	'M': "modified",
	'A': "added",
	'D': "deleted",
	'R': "renamed",
	'C': "copied",
	'T': "type_changed",
	'U': "unmerged",
}

// CommitCollector reads commit records from a local clone
type CommitCollector struct {
	repo    *Repo
	workers int
}

// NewCommitCollector creates a collector that inspects up to workers
// commits concurrently.
func NewCommitCollector(repo *Repo, workers int) *CommitCollector {
	if workers <= 0 {
		workers = 4
	}
	return &CommitCollector{repo: repo, workers: workers}
}

// Commits returns every commit reachable from any ref, oldest first. A
// non-zero since limits the walk to commits committed at or after it.
func (c *CommitCollector) Commits(ctx context.Context, since time.Time) ([]models.Commit, error) {
	args := []string{"log", "--all", "--date-order", "--format=" + logFormat}
	if !since.IsZero() {
		args = append(args, "--since="+since.UTC().Format(time.RFC3339))
	}
	out, err := c.repo.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	commits := parseLog(string(out))

	branches, err := c.branchMembership(ctx, since)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i := range commits {
		commit := &commits[i]
		commit.Branches = branches[commit.Hash]
		if len(commit.Parents) > 1 {
			// merge commits carry no file changes of their own
			continue
		}
		g.Go(func() error {
			files, err := c.modifiedFiles(gctx, commit.Hash)
			if err != nil {
				return fmt.Errorf("failed to read changes of %s: %w", commit.Hash, err)
			}
			commit.ModifiedFiles = files
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// git log prints newest first
	for i, j := 0, len(commits)-1; i < j; i, j = i+1, j-1 {
		commits[i], commits[j] = commits[j], commits[i]
	}
	c.repo.logger.Info("commits collected", "count", len(commits), "since", since)
	return commits, nil
}

// Branches maps every commit reachable from a branch to the sorted names
// of the branches containing it.
func (c *CommitCollector) Branches(ctx context.Context) (map[string][]string, error) {
	return c.branchMembership(ctx, time.Time{})
}

func parseLog(out string) []models.Commit {
	var commits []models.Commit
	for _, rec := range strings.Split(out, "\x1e") {
		rec = strings.TrimLeft(rec, "\n")
		if rec == "" {
			continue
		}
		fields := strings.SplitN(rec, "\x1f", 6)
		if len(fields) < 6 {
			continue
		}
		commit := models.Commit{
			Hash:          fields[0],
			AuthorName:    fields[1],
			AuthorEmail:   fields[2],
			CommittedDate: fields[3],
			Message:       strings.TrimRight(fields[5], "\n"),
		}
		for _, p := range strings.Fields(fields[4]) {
			commit.Parents = append(commit.Parents, models.ParentRef{OID: p})
		}
		commits = append(commits, commit)
	}
	return commits
}

// branchMembership maps each commit to the sorted names of the branches
// that contain it. Remote-tracking branches count under their short name.
func (c *CommitCollector) branchMembership(ctx context.Context, since time.Time) (map[string][]string, error) {
	out, err := c.repo.run(ctx, "for-each-ref", "--format=%(refname)", "refs/heads", "refs/remotes")
	if err != nil {
		return nil, err
	}

	refs := make(map[string]string) // branch name -> ref
	var names []string
	for _, ref := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		name := branchName(ref)
		if name == "" || name == "HEAD" {
			continue
		}
		if _, ok := refs[name]; ok {
			continue
		}
		refs[name] = ref
		names = append(names, name)
	}
	sort.Strings(names)

	members := make(map[string][]string)
	for _, name := range names {
		args := []string{"rev-list", refs[name]}
		if !since.IsZero() {
			args = append(args, "--since="+since.UTC().Format(time.RFC3339))
		}
		out, err := c.repo.run(ctx, args...)
		if err != nil {
			return nil, err
		}
		for _, sha := range strings.Fields(string(out)) {
			members[sha] = append(members[sha], name)
		}
	}
	return members, nil
}

// branchName strips refs/heads/ or refs/remotes/<remote>/ from a ref
func branchName(ref string) string {
	if name, ok := strings.CutPrefix(ref, "refs/heads/"); ok {
		return name
	}
	if rest, ok := strings.CutPrefix(ref, "refs/remotes/"); ok {
		if _, name, ok := strings.Cut(rest, "/"); ok {
			return name
		}
	}
	return ""
}

type lineCounts struct {
	additions, deletions int
}

// modifiedFiles combines name-status, numstat and patch text of one commit
func (c *CommitCollector) modifiedFiles(ctx context.Context, sha string) ([]models.ModifiedFile, error) {
	nameStatus, err := c.repo.run(ctx, "show", "--format=", "--name-status", "-M", "-z", sha)
	if err != nil {
		return nil, err
	}
	numstat, err := c.repo.run(ctx, "show", "--format=", "--numstat", "-M", "-z", sha)
	if err != nil {
		return nil, err
	}
	patchOut, err := c.repo.run(ctx, "show", "--format=", "--no-color", "--no-ext-diff", "-M", sha)
	if err != nil {
		return nil, err
	}

	counts := parseNumstat(string(numstat))
	patches := make(map[string]string)
	for _, p := range ParsePatches(string(patchOut)) {
		patches[p.Path()] = p.Body
	}

	var files []models.ModifiedFile
	for _, e := range parseNameStatus(string(nameStatus)) {
		n := counts[e.path]
		files = append(files, models.ModifiedFile{
			Filename:   path.Base(e.path),
			Path:       e.path,
			ChangeType: e.changeType,
			Additions:  n.additions,
			Deletions:  n.deletions,
			Diff:       patches[e.path],
		})
	}
	return files, nil
}

type nameStatusEntry struct {
	changeType string
	path       string
}

// parseNameStatus reads "--name-status -z" output. Renames and copies carry
// the old and new path; the new one is kept.
func parseNameStatus(out string) []nameStatusEntry {
	tokens := strings.Split(strings.TrimLeft(out, "\n"), "\x00")
	var entries []nameStatusEntry
	for i := 0; i < len(tokens); {
		status := strings.TrimSpace(tokens[i])
		if status == "" {
			i++
			continue
		}
		ct, ok := changeTypes[status[0]]
		if !ok {
			ct = "unknown"
		}
		if (status[0] == 'R' || status[0] == 'C') && i+2 < len(tokens) {
			entries = append(entries, nameStatusEntry{changeType: ct, path: tokens[i+2]})
			i += 3
			continue
		}
		if i+1 < len(tokens) {
			entries = append(entries, nameStatusEntry{changeType: ct, path: tokens[i+1]})
		}
		i += 2
	}
	return entries
}

// parseNumstat reads "--numstat -z" output keyed by the new path. Binary
// files report "-" and count as zero.
func parseNumstat(out string) map[string]lineCounts {
	tokens := strings.Split(strings.TrimLeft(out, "\n"), "\x00")
	counts := make(map[string]lineCounts)
	for i := 0; i < len(tokens); {
		parts := strings.SplitN(strings.TrimLeft(tokens[i], "\n"), "\t", 3)
		if len(parts) < 3 {
			i++
			continue
		}
		added, _ := strconv.Atoi(parts[0])
		deleted, _ := strconv.Atoi(parts[1])
		p := parts[2]
		step := 1
		if p == "" && i+2 < len(tokens) {
			// rename: old and new path follow as separate fields
			p = tokens[i+2]
			step = 3
		}
		counts[p] = lineCounts{additions: added, deletions: deleted}
		i += step
	}
	return counts
}
