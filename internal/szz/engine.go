package szz

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rohankatakam/repograph/internal/errors"
	"github.com/rohankatakam/repograph/internal/git"
	"github.com/rohankatakam/repograph/internal/models"
)

// Skip kinds recorded for work the engine could not do
const (
	SkipMissingCommit = "missing_commit"
	SkipParent        = "parent_error"
	SkipDiff          = "diff_error"
	SkipBlame         = "blame_error"
)

// History is the version-control access the engine needs. *git.Repo
// implements it.
type History interface {
	CommitExists(ctx context.Context, sha string) bool
	FirstParent(ctx context.Context, sha string) (string, bool, error)
	ChangedFiles(ctx context.Context, parent, commit string) ([]git.FilePatch, error)
	Blame(ctx context.Context, rev, path string, ranges []git.LineRange, ignoreWhitespace bool) ([]git.BlameLine, error)
}

// Skip describes one fix commit or file the engine skipped
type Skip struct {
	Kind   string
	Commit string
	Path   string
	Reason string
}

// SkipRecorder receives skipped work, typically the run ledger
type SkipRecorder interface {
	RecordSkip(ctx context.Context, skip Skip) error
}

// Options configures an Engine
type Options struct {
	// Workers bounds concurrent blame invocations per fix commit
	Workers          int
	IgnoreWhitespace bool
	Cache            *BlameCache
	Skips            SkipRecorder
}

// Engine finds bug-inducing commits with the R-SZZ heuristic: blame the
// lines a fix removed and keep the most recent commit that touched them.
type Engine struct {
	history History
	finder  git.FixFinder
	opts    Options
	logger  *slog.Logger
}

// NewEngine creates an engine over one clone
func NewEngine(history History, finder git.FixFinder, opts Options) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Engine{
		history: history,
		finder:  finder,
		opts:    opts,
		logger:  slog.Default().With("component", "szz"),
	}
}

// Process links every issue, in order. It stops only on cancellation or
// when fix lookup itself fails.
func (e *Engine) Process(ctx context.Context, issues []models.Issue) ([]models.BugLink, error) {
	start := time.Now()
	links := make([]models.BugLink, 0, len(issues))
	inducing := 0
	for _, issue := range issues {
		link, err := e.ProcessIssue(ctx, issue)
		if err != nil {
			return links, err
		}
		inducing += len(link.InducingCommit)
		links = append(links, link)
	}
	e.logger.Info("szz completed",
		"issues", len(issues),
		"inducing_commits", inducing,
		"duration_seconds", time.Since(start).Seconds())
	return links, nil
}

// ProcessIssue finds the fixing commits of one issue and, for each, the
// commit that introduced the lines it changed.
func (e *Engine) ProcessIssue(ctx context.Context, issue models.Issue) (models.BugLink, error) {
	link := models.BugLink{
		URL:            issue.URL,
		Title:          issue.Title,
		Number:         strconv.Itoa(issue.Number),
		FixingCommit:   []string{},
		InducingCommit: []string{},
		ImpactedFiles:  []string{},
	}

	fixes, err := e.finder.FixingCommits(ctx, issue.Number)
	if err != nil {
		if ctx.Err() != nil {
			return link, ctx.Err()
		}
		return link, errors.AnalysisErrorf(err, "fix lookup failed for issue #%d", issue.Number)
	}

	for _, fix := range fixes {
		if err := ctx.Err(); err != nil {
			return link, err
		}
		if err := e.processFix(ctx, fix, &link); err != nil {
			return link, err
		}
	}

	e.logger.Debug("issue linked",
		"issue", issue.Number,
		"fixing", len(link.FixingCommit),
		"inducing", len(link.InducingCommit),
		"impacted_files", len(link.ImpactedFiles))
	return link, nil
}

// processFix adds one fixing commit and its inducing commit to link. Only
// cancellation is returned; every other failure is a recorded skip.
func (e *Engine) processFix(ctx context.Context, fix string, link *models.BugLink) error {
	if !e.history.CommitExists(ctx, fix) {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.logger.Warn("fixing commit not found in clone", "commit", fix, "issue", link.Number)
		e.skip(ctx, Skip{Kind: SkipMissingCommit, Commit: fix, Reason: "commit not found in clone"})
		return nil
	}
	link.FixingCommit = appendUnique(link.FixingCommit, fix)

	parent, ok, err := e.history.FirstParent(ctx, fix)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.logger.Warn("failed to resolve parent", "commit", fix, "error", err)
		e.skip(ctx, Skip{Kind: SkipParent, Commit: fix, Reason: err.Error()})
		return nil
	}
	if !ok {
		// a root commit has no earlier lines to blame
		e.logger.Debug("fixing commit is a root commit", "commit", fix)
		return nil
	}

	patches, err := e.history.ChangedFiles(ctx, parent, fix)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.logger.Warn("failed to diff fixing commit", "commit", fix, "error", err)
		e.skip(ctx, Skip{Kind: SkipDiff, Commit: fix, Reason: err.Error()})
		return nil
	}

	var impacted []git.FilePatch
	for _, p := range patches {
		if p.Added() {
			continue
		}
		impacted = append(impacted, p)
		link.ImpactedFiles = appendUnique(link.ImpactedFiles, p.OldPath)
	}

	candidates, err := e.blameCandidates(ctx, fix, parent, impacted)
	if err != nil {
		return err
	}
	if bic, ok := selectLatest(candidates); ok {
		link.InducingCommit = appendUnique(link.InducingCommit, bic)
	}
	return nil
}

type candidate struct {
	commit string
	time   time.Time
}

// blameCandidates blames the deleted ranges of every impacted file at the
// parent on a bounded pool and joins the results. A partial candidate set
// is never returned: cancellation fails the whole fix.
func (e *Engine) blameCandidates(ctx context.Context, fix, parent string, files []git.FilePatch) ([]candidate, error) {
	var (
		mu         sync.Mutex
		candidates = make(map[string]time.Time)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for _, f := range files {
		f := f
		ranges := f.DeletedRanges()
		if len(ranges) == 0 {
			continue
		}
		g.Go(func() error {
			lines, err := e.blame(gctx, parent, f.OldPath, ranges)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				e.logger.Warn("blame failed, skipping file", "commit", fix, "path", f.OldPath, "error", err)
				e.skip(gctx, Skip{Kind: SkipBlame, Commit: fix, Path: f.OldPath, Reason: err.Error()})
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			for _, l := range lines {
				if l.Commit == fix {
					continue
				}
				candidates[l.Commit] = l.CommitterTime
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]candidate, 0, len(candidates))
	for sha, t := range candidates {
		out = append(out, candidate{commit: sha, time: t})
	}
	return out, nil
}

func (e *Engine) blame(ctx context.Context, rev, path string, ranges []git.LineRange) ([]git.BlameLine, error) {
	key := cacheKey(rev, path, ranges, e.opts.IgnoreWhitespace)
	if lines, ok := e.opts.Cache.Get(key); ok {
		return lines, nil
	}
	lines, err := e.history.Blame(ctx, rev, path, ranges, e.opts.IgnoreWhitespace)
	if err != nil {
		return nil, err
	}
	if err := e.opts.Cache.Put(key, lines); err != nil {
		e.logger.Warn("failed to cache blame", "path", path, "error", err)
	}
	return lines, nil
}

// selectLatest picks the candidate with the greatest committer time; ties
// go to the smallest hash.
func selectLatest(candidates []candidate) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].time.Equal(candidates[j].time) {
			return candidates[i].time.After(candidates[j].time)
		}
		return candidates[i].commit < candidates[j].commit
	})
	return candidates[0].commit, true
}

func (e *Engine) skip(ctx context.Context, s Skip) {
	if e.opts.Skips == nil {
		return
	}
	if err := e.opts.Skips.RecordSkip(ctx, s); err != nil {
		e.logger.Warn("failed to record skipped work", "kind", s.Kind, "commit", s.Commit, "error", err)
	}
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
