package szz

import (
	"context"
	stderrors "errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/repograph/internal/git"
	"github.com/rohankatakam/repograph/internal/git/gittest"
	"github.com/rohankatakam/repograph/internal/models"
)

type fakeFinder map[int][]string

func (f fakeFinder) FixingCommits(ctx context.Context, number int) ([]string, error) {
	return f[number], nil
}

type recordedSkips struct {
	mu    sync.Mutex
	skips []Skip
}

func (r *recordedSkips) RecordSkip(ctx context.Context, s Skip) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skips = append(r.skips, s)
	return nil
}

func (r *recordedSkips) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, s := range r.skips {
		out = append(out, s.Kind)
	}
	return out
}

// fakeHistory serves a fixed history without a clone
type fakeHistory struct {
	commits map[string]bool
	parents map[string]string
	patches map[string][]git.FilePatch // keyed by fix commit
	blames  map[string][]git.BlameLine // keyed by path
	failing map[string]bool            // paths whose blame fails
	onBlame func()                     // runs before each blame

	mu         sync.Mutex
	blameCalls int
}

func (h *fakeHistory) CommitExists(ctx context.Context, sha string) bool {
	return h.commits[sha]
}

func (h *fakeHistory) FirstParent(ctx context.Context, sha string) (string, bool, error) {
	p, ok := h.parents[sha]
	return p, ok, nil
}

func (h *fakeHistory) ChangedFiles(ctx context.Context, parent, commit string) ([]git.FilePatch, error) {
	return h.patches[commit], nil
}

func (h *fakeHistory) Blame(ctx context.Context, rev, path string, ranges []git.LineRange, ignoreWhitespace bool) ([]git.BlameLine, error) {
	h.mu.Lock()
	h.blameCalls++
	h.mu.Unlock()
	if h.onBlame != nil {
		h.onBlame()
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	if h.failing[path] {
		return nil, stderrors.New("fatal: no such path")
	}
	return h.blames[path], nil
}

func modified(path string, oldStart, oldCount int) git.FilePatch {
	return git.FilePatch{
		OldPath: path,
		NewPath: path,
		Hunks:   []git.Hunk{{OldStart: oldStart, OldCount: oldCount, NewStart: oldStart, NewCount: 1}},
	}
}

func at(day int) time.Time {
	return time.Date(2024, time.January, day, 0, 0, 0, 0, time.UTC)
}

func TestSelectLatest(t *testing.T) {
	_, ok := selectLatest(nil)
	assert.False(t, ok)

	sha, ok := selectLatest([]candidate{{"c1", at(1)}, {"c2", at(2)}})
	require.True(t, ok)
	assert.Equal(t, "c2", sha, "newer committer time wins")

	sha, _ = selectLatest([]candidate{{"bbb", at(3)}, {"aaa", at(3)}, {"ccc", at(1)}})
	assert.Equal(t, "aaa", sha, "ties go to the smallest hash")
}

func TestEngine_LinksIssueToLatestBlamedCommit(t *testing.T) {
	h := &fakeHistory{
		commits: map[string]bool{"fix": true},
		parents: map[string]string{"fix": "p"},
		patches: map[string][]git.FilePatch{"fix": {
			modified("src/a.go", 3, 2),
			modified("src/b.go", 10, 1),
			{NewPath: "src/new.go", Hunks: []git.Hunk{{NewStart: 1, NewCount: 5}}},
		}},
		blames: map[string][]git.BlameLine{
			"src/a.go": {{Commit: "c1", Line: 3, CommitterTime: at(1)}, {Commit: "c2", Line: 4, CommitterTime: at(2)}},
			"src/b.go": {{Commit: "c1", Line: 10, CommitterTime: at(1)}},
		},
	}
	e := NewEngine(h, fakeFinder{42: {"fix"}}, Options{Workers: 2})

	link, err := e.ProcessIssue(context.Background(), models.Issue{Number: 42, URL: "https://x/issues/42", Title: "crash"})
	require.NoError(t, err)
	assert.Equal(t, "42", link.Number)
	assert.Equal(t, "crash", link.Title)
	assert.Equal(t, []string{"fix"}, link.FixingCommit)
	assert.Equal(t, []string{"c2"}, link.InducingCommit)
	assert.Equal(t, []string{"src/a.go", "src/b.go"}, link.ImpactedFiles, "added files are not impacted")
}

func TestEngine_NoFixesGivesEmptyLink(t *testing.T) {
	e := NewEngine(&fakeHistory{}, fakeFinder{}, Options{})
	link, err := e.ProcessIssue(context.Background(), models.Issue{Number: 7})
	require.NoError(t, err)
	assert.Equal(t, "7", link.Number)
	assert.Empty(t, link.FixingCommit)
	assert.NotNil(t, link.InducingCommit, "empty lists serialize as []")
	assert.Empty(t, link.InducingCommit)
}

func TestEngine_MissingCommitIsSkipped(t *testing.T) {
	skips := &recordedSkips{}
	e := NewEngine(&fakeHistory{}, fakeFinder{5: {"deadbeef"}}, Options{Skips: skips})

	link, err := e.ProcessIssue(context.Background(), models.Issue{Number: 5})
	require.NoError(t, err)
	assert.Empty(t, link.FixingCommit)
	assert.Equal(t, []string{SkipMissingCommit}, skips.kinds())
}

func TestEngine_RootFixHasNoInducingCommit(t *testing.T) {
	h := &fakeHistory{commits: map[string]bool{"root": true}}
	e := NewEngine(h, fakeFinder{1: {"root"}}, Options{})

	link, err := e.ProcessIssue(context.Background(), models.Issue{Number: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"root"}, link.FixingCommit)
	assert.Empty(t, link.InducingCommit)
}

func TestEngine_BlameErrorSkipsOnlyThatFile(t *testing.T) {
	h := &fakeHistory{
		commits: map[string]bool{"fix": true},
		parents: map[string]string{"fix": "p"},
		patches: map[string][]git.FilePatch{"fix": {modified("bad.go", 1, 1), modified("good.go", 1, 1)}},
		blames:  map[string][]git.BlameLine{"good.go": {{Commit: "c1", CommitterTime: at(1)}}},
		failing: map[string]bool{"bad.go": true},
	}
	skips := &recordedSkips{}
	e := NewEngine(h, fakeFinder{9: {"fix"}}, Options{Skips: skips})

	link, err := e.ProcessIssue(context.Background(), models.Issue{Number: 9})
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, link.InducingCommit)
	assert.Equal(t, []string{SkipBlame}, skips.kinds())
	assert.Equal(t, "bad.go", skips.skips[0].Path)
}

func TestEngine_FixCommitExcludedAndInsertionsIgnored(t *testing.T) {
	h := &fakeHistory{
		commits: map[string]bool{"fix": true},
		parents: map[string]string{"fix": "p"},
		patches: map[string][]git.FilePatch{"fix": {
			modified("a.go", 1, 1),
			{OldPath: "ins.go", NewPath: "ins.go", Hunks: []git.Hunk{{OldStart: 4, OldCount: 0, NewStart: 5, NewCount: 2}}},
		}},
		blames: map[string][]git.BlameLine{"a.go": {{Commit: "fix", CommitterTime: at(9)}}},
	}
	e := NewEngine(h, fakeFinder{3: {"fix"}}, Options{})

	link, err := e.ProcessIssue(context.Background(), models.Issue{Number: 3})
	require.NoError(t, err)
	assert.Empty(t, link.InducingCommit)
	assert.Equal(t, []string{"a.go", "ins.go"}, link.ImpactedFiles)
	assert.Equal(t, 1, h.blameCalls, "files with only insertions are not blamed")
}

func TestEngine_BlameCache(t *testing.T) {
	cache, err := OpenBlameCache(filepath.Join(t.TempDir(), "cache", "blame.db"))
	require.NoError(t, err)
	defer cache.Close()

	h := &fakeHistory{
		commits: map[string]bool{"fix": true},
		parents: map[string]string{"fix": "p"},
		patches: map[string][]git.FilePatch{"fix": {modified("a.go", 1, 1)}},
		blames:  map[string][]git.BlameLine{"a.go": {{Commit: "c1", Line: 1, CommitterTime: at(1)}}},
	}
	e := NewEngine(h, fakeFinder{3: {"fix"}}, Options{Cache: cache})

	first, err := e.ProcessIssue(context.Background(), models.Issue{Number: 3})
	require.NoError(t, err)
	second, err := e.ProcessIssue(context.Background(), models.Issue{Number: 3})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, h.blameCalls)
}

func TestEngine_Process(t *testing.T) {
	h := &fakeHistory{
		commits: map[string]bool{"fix": true},
		parents: map[string]string{"fix": "p"},
		patches: map[string][]git.FilePatch{"fix": {modified("a.go", 1, 1)}},
		blames:  map[string][]git.BlameLine{"a.go": {{Commit: "c1", CommitterTime: at(1)}}},
	}
	e := NewEngine(h, fakeFinder{1: {"fix"}}, Options{})

	links, err := e.Process(context.Background(), []models.Issue{{Number: 1}, {Number: 2}})
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, "1", links[0].Number)
	assert.Equal(t, []string{"c1"}, links[0].InducingCommit)
	assert.Empty(t, links[1].FixingCommit)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewEngine(h, fakeFinder{1: {"fix"}}, Options{}).Process(ctx, []models.Issue{{Number: 1}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngine_CancelledBlameFailsTheIssue(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := &fakeHistory{
		commits: map[string]bool{"fix": true},
		parents: map[string]string{"fix": "p"},
		patches: map[string][]git.FilePatch{"fix": {modified("a.go", 1, 1), modified("b.go", 4, 2)}},
		blames: map[string][]git.BlameLine{
			"a.go": {{Commit: "c1", CommitterTime: at(1)}},
			"b.go": {{Commit: "c2", CommitterTime: at(2)}},
		},
		onBlame: cancel,
	}
	skips := &recordedSkips{}
	e := NewEngine(h, fakeFinder{42: {"fix"}}, Options{Workers: 1, Skips: skips})

	links, err := e.Process(ctx, []models.Issue{{Number: 42}})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, links, "no partial link is reported")
	assert.Empty(t, skips.kinds(), "cancellation is not a skip")

	_, err = e.ProcessIssue(ctx, models.Issue{Number: 42})
	assert.ErrorIs(t, err, context.Canceled)
}

// Same scenario on a real clone: c2 last touched the line the fix removes.
func TestEngine_OnRepository(t *testing.T) {
	ctx := context.Background()
	r := gittest.New(t)
	r.Write("src/x.py", "a\nb\nc\nd\ne\n")
	r.Commit("alice", "alice@example.com", "initial", gittest.Day(1))
	r.Write("src/x.py", "a\nb\nC\nd\ne\n")
	c2 := r.Commit("bob", "bob@example.com", "change c", gittest.Day(2))
	r.Write("src/x.py", "a\nb\nfixed\nd\ne\n")
	r.Write("src/new.py", "print()\n")
	c3 := r.Commit("carol", "carol@example.com", "fix crash (#42)", gittest.Day(3))

	repo := git.Open(r.Dir)
	finder, err := git.NewFixFinder(repo, git.FixLookupIndex)
	require.NoError(t, err)
	e := NewEngine(repo, finder, Options{Workers: 2, IgnoreWhitespace: true})

	links, err := e.Process(ctx, []models.Issue{{Number: 42, Title: "crash"}, {Number: 43}})
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, []string{c3}, links[0].FixingCommit)
	assert.Equal(t, []string{c2}, links[0].InducingCommit)
	assert.Equal(t, []string{"src/x.py"}, links[0].ImpactedFiles)
	assert.Empty(t, links[1].FixingCommit)
}
