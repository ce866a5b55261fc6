package ingestion

import (
	"strconv"
	"time"

	"github.com/rohankatakam/repograph/internal/graph"
	"github.com/rohankatakam/repograph/internal/models"
)

// entity describes how records of one batch kind are keyed and stamped
type entity[T any] struct {
	kind models.EntityKind
	key  func(T) string
	// stamp is nil for entities that are recollected in full
	stamp func(T) string
}

var (
	repositoriesEntity = entity[models.Repository]{
		kind: models.EntityRepositories,
		key:  func(r models.Repository) string { return firstKey(r.ID, r.URL) },
	}
	collaboratorsEntity = entity[models.Collaborator]{
		kind: models.EntityCollaborators,
		key:  func(c models.Collaborator) string { return firstKey(c.ID, c.Login) },
	}
	releasesEntity = entity[models.Release]{
		kind:  models.EntityReleases,
		key:   func(r models.Release) string { return firstKey(r.ID, r.Name) },
		stamp: func(r models.Release) string { return r.CreatedAt },
	}
	languagesEntity = entity[models.Language]{
		kind: models.EntityLanguages,
		key:  func(l models.Language) string { return firstKey(l.ID, l.Name) },
	}
	projectsEntity = entity[models.Project]{
		kind:  models.EntityProjects,
		key:   func(p models.Project) string { return firstKey(p.ID, strconv.Itoa(p.Number)) },
		stamp: func(p models.Project) string { return p.CreatedAt },
	}
	forksEntity = entity[models.Fork]{
		kind: models.EntityForks,
		key:  func(f models.Fork) string { return firstKey(f.ID, f.URL) },
	}
	commitsEntity = entity[models.Commit]{
		kind:  models.EntityCommits,
		key:   func(c models.Commit) string { return c.Hash },
		stamp: func(c models.Commit) string { return c.CommittedDate },
	}
	issuesEntity = entity[models.Issue]{
		kind:  models.EntityIssues,
		key:   func(i models.Issue) string { return firstKey(i.ID, strconv.Itoa(i.Number)) },
		stamp: func(i models.Issue) string { return i.CreatedAt },
	}
	pullRequestsEntity = entity[models.PullRequest]{
		kind:  models.EntityPullRequests,
		key:   func(p models.PullRequest) string { return firstKey(p.ID, strconv.Itoa(p.Number)) },
		stamp: func(p models.PullRequest) string { return p.CreatedAt },
	}
	bugLinksEntity = entity[models.BugLink]{
		kind: models.EntityFixingBIC,
		key:  func(b models.BugLink) string { return b.Number },
	}
)

func firstKey(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (e entity[T]) load(l Layout, delta bool) ([]T, bool, error) {
	path := l.Baseline(e.kind)
	if delta {
		path = l.Delta(e.kind)
	}
	var records []T
	ok, err := readJSON(path, &records)
	return records, ok, err
}

func (e entity[T]) save(l Layout, delta bool, records []T) error {
	path := l.Baseline(e.kind)
	if delta {
		path = l.Delta(e.kind)
	}
	if records == nil {
		records = []T{}
	}
	return writeJSON(path, records)
}

// merge returns base with newer applied by key. Records keep base order and
// new keys are appended in newer's order; a newer record replaces the
// older one with the same key.
func (e entity[T]) merge(base, newer []T) []T {
	out := make([]T, 0, len(base)+len(newer))
	pos := make(map[string]int, len(base)+len(newer))
	add := func(r T) {
		k := e.key(r)
		if i, ok := pos[k]; ok && k != "" {
			out[i] = r
			return
		}
		pos[k] = len(out)
		out = append(out, r)
	}
	for _, r := range base {
		add(r)
	}
	for _, r := range newer {
		add(r)
	}
	return out
}

// unknown returns the records whose key is not in known
func (e entity[T]) unknown(records, known []T) []T {
	seen := make(map[string]bool, len(known))
	for _, r := range known {
		seen[e.key(r)] = true
	}
	var out []T
	for _, r := range records {
		if !seen[e.key(r)] {
			out = append(out, r)
		}
	}
	return out
}

// since returns the newest stamp across the record sets, or the zero time
func (e entity[T]) since(sets ...[]T) time.Time {
	var max time.Time
	if e.stamp == nil {
		return max
	}
	for _, set := range sets {
		for _, r := range set {
			if t, ok := models.ParseTimestamp(e.stamp(r)); ok && t.After(max) {
				max = t
			}
		}
	}
	return max
}

// fold merges the delta into the baseline. It reports whether a delta was
// present.
func (e entity[T]) fold(l Layout) (bool, error) {
	delta, ok, err := e.load(l, true)
	if err != nil || !ok {
		return false, err
	}
	base, _, err := e.load(l, false)
	if err != nil {
		return true, err
	}
	return true, e.save(l, false, e.merge(base, delta))
}

// loadBatches reads either the baselines or the deltas into builder input
func loadBatches(l Layout, delta bool) (graph.Batches, error) {
	var (
		b   graph.Batches
		err error
	)
	load := func(fn func() error) {
		if err == nil {
			err = fn()
		}
	}
	load(func() (e error) { b.Repositories, _, e = repositoriesEntity.load(l, delta); return })
	load(func() (e error) { b.Collaborators, _, e = collaboratorsEntity.load(l, delta); return })
	load(func() (e error) { b.Releases, _, e = releasesEntity.load(l, delta); return })
	load(func() (e error) { b.Languages, _, e = languagesEntity.load(l, delta); return })
	load(func() (e error) { b.Projects, _, e = projectsEntity.load(l, delta); return })
	load(func() (e error) { b.Forks, _, e = forksEntity.load(l, delta); return })
	load(func() (e error) { b.Issues, _, e = issuesEntity.load(l, delta); return })
	load(func() (e error) { b.PullRequests, _, e = pullRequestsEntity.load(l, delta); return })
	load(func() (e error) { b.Commits, _, e = commitsEntity.load(l, delta); return })
	return b, err
}

// foldAll folds every pending delta and deletes the delta files only after
// every fold succeeded.
func foldAll(l Layout) error {
	folds := []func(Layout) (bool, error){
		repositoriesEntity.fold,
		collaboratorsEntity.fold,
		releasesEntity.fold,
		languagesEntity.fold,
		projectsEntity.fold,
		forksEntity.fold,
		issuesEntity.fold,
		pullRequestsEntity.fold,
		commitsEntity.fold,
		bugLinksEntity.fold,
	}
	for _, fold := range folds {
		if _, err := fold(l); err != nil {
			return err
		}
	}
	for _, kind := range models.AllEntities {
		if err := removeFile(l.Delta(kind)); err != nil {
			return err
		}
	}
	return nil
}
