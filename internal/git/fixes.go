package git

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// Fix-lookup modes
const (
	FixLookupIndex = "index"
	FixLookupGrep  = "grep"
)

// issueReferencePattern matches "#N" or "issues/N" followed by a separator
// or the end of a line.
var issueReferencePattern = regexp.MustCompile(`(?m)#(\d+)(?:[ \n.,;)|\]]|$)|issues/(\d+)(?:[ \n.,;)|\]]|$)`)

// FixFinder returns the commits whose messages reference an issue number
type FixFinder interface {
	FixingCommits(ctx context.Context, number int) ([]string, error)
}

// NewFixFinder returns the finder for mode, "index" or "grep"
func NewFixFinder(repo *Repo, mode string) (FixFinder, error) {
	switch mode {
	case "", FixLookupIndex:
		return NewIndexFinder(repo), nil
	case FixLookupGrep:
		return &GrepFinder{repo: repo}, nil
	default:
		return nil, fmt.Errorf("unknown fix lookup mode: %s (expected %q or %q)", mode, FixLookupIndex, FixLookupGrep)
	}
}

// IndexFinder reads every commit message once and answers lookups from a
// number → commits index.
type IndexFinder struct {
	repo *Repo

	once  sync.Once
	index map[int][]string
	err   error
}

// NewIndexFinder creates a finder whose index is built on first use
func NewIndexFinder(repo *Repo) *IndexFinder {
	return &IndexFinder{repo: repo}
}

func (f *IndexFinder) FixingCommits(ctx context.Context, number int) ([]string, error) {
	f.once.Do(func() {
		f.index, f.err = f.build(ctx)
	})
	if f.err != nil {
		return nil, f.err
	}
	return append([]string(nil), f.index[number]...), nil
}

func (f *IndexFinder) build(ctx context.Context) (map[int][]string, error) {
	out, err := f.repo.run(ctx, "log", "--all", "--format=%H%x1f%B%x1e")
	if err != nil {
		return nil, err
	}
	index := make(map[int][]string)
	for _, rec := range strings.Split(string(out), "\x1e") {
		rec = strings.TrimLeft(rec, "\n")
		sha, msg, ok := strings.Cut(rec, "\x1f")
		if !ok || sha == "" {
			continue
		}
		for _, n := range ReferencedIssues(msg) {
			index[n] = appendUnique(index[n], sha)
		}
	}
	f.repo.logger.Debug("fix index built", "issues", len(index))
	return index, nil
}

// ReferencedIssues returns the distinct issue numbers a message references
func ReferencedIssues(message string) []int {
	var out []int
	seen := make(map[int]bool)
	for _, m := range issueReferencePattern.FindAllStringSubmatch(message, -1) {
		digits := m[1]
		if digits == "" {
			digits = m[2]
		}
		n, err := strconv.Atoi(digits)
		if err != nil || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// GrepFinder runs one git log --grep per lookup
type GrepFinder struct {
	repo *Repo
}

func (f *GrepFinder) FixingCommits(ctx context.Context, number int) ([]string, error) {
	n := strconv.Itoa(number)
	pattern := "#" + n + "([ .,;)|]|$)|issues/" + n + "([ .,;)|]|$)"
	out, err := f.repo.run(ctx, "log", "--all", "--extended-regexp", "--grep", pattern, "--format=%H")
	if err != nil {
		return nil, err
	}
	var shas []string
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			shas = appendUnique(shas, line)
		}
	}
	return shas, nil
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
