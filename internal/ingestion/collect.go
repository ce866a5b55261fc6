package ingestion

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/rohankatakam/repograph/internal/errors"
	"github.com/rohankatakam/repograph/internal/models"
)

// collection gathers every entity kind of one run into baseline or delta
// files.
type collection struct {
	c      *Coordinator
	layout Layout
	mode   Mode

	mu     sync.Mutex
	counts map[models.EntityKind]int
}

func newCollection(c *Coordinator, layout Layout, mode Mode) *collection {
	return &collection{c: c, layout: layout, mode: mode, counts: make(map[models.EntityKind]int)}
}

func (col *collection) count(kind models.EntityKind, n int) {
	col.mu.Lock()
	col.counts[kind] = n
	col.mu.Unlock()
}

// run collects every entity kind concurrently and waits for all of them
func (col *collection) run(ctx context.Context, src *Sources) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(col.c.opts.CollectWorkers)

	remote, history := src.Remote, src.History

	g.Go(func() error {
		return collectOnce(ctx, col, repositoriesEntity, func(ctx context.Context) ([]models.Repository, error) {
			r, err := remote.Repository(ctx)
			if err != nil {
				return nil, err
			}
			return []models.Repository{r}, nil
		})
	})
	g.Go(func() error { return collectOnce(ctx, col, collaboratorsEntity, remote.Collaborators) })
	g.Go(func() error { return collectSince(ctx, col, releasesEntity, remote.Releases) })
	g.Go(func() error { return collectAll(ctx, col, languagesEntity, remote.Languages) })
	g.Go(func() error { return collectSince(ctx, col, projectsEntity, remote.Projects) })
	g.Go(func() error { return collectAll(ctx, col, forksEntity, remote.Forks) })
	g.Go(func() error { return collectSince(ctx, col, issuesEntity, remote.Issues) })
	g.Go(func() error { return collectSince(ctx, col, pullRequestsEntity, remote.PullRequests) })
	g.Go(func() error { return collectSince(ctx, col, commitsEntity, history.Commits) })

	if err := g.Wait(); err != nil {
		return err
	}

	if bs, ok := history.(BranchSource); ok && col.mode == ModeIncremental {
		return refreshBranches(ctx, col, bs)
	}
	return nil
}

// refreshBranches rewrites the branch list of baseline commits whose
// membership changed since they were collected. The updated records go to
// the commits delta, where they replace the baseline ones on fold.
func refreshBranches(ctx context.Context, col *collection, bs BranchSource) error {
	members, err := fetchWithRetry(ctx, col.c, commitsEntity.kind, func() (map[string][]string, error) {
		return bs.Branches(ctx)
	})
	if err != nil {
		return err
	}

	base, _, err := commitsEntity.load(col.layout, false)
	if err != nil {
		return err
	}
	pending, _, err := commitsEntity.load(col.layout, true)
	if err != nil {
		return err
	}
	current := commitsEntity.merge(base, pending)

	var changed []models.Commit
	for _, c := range current {
		branches := members[c.Hash]
		if slices.Equal(c.Branches, branches) {
			continue
		}
		c.Branches = branches
		changed = append(changed, c)
	}
	if len(changed) == 0 {
		return nil
	}

	col.c.logger.WithField("commits", len(changed)).Debug("Branch membership changed")
	return commitsEntity.save(col.layout, true, commitsEntity.merge(pending, changed))
}

// collectOnce fetches entities that only need collecting when their
// baseline is missing.
func collectOnce[T any](ctx context.Context, col *collection, e entity[T], fetch func(context.Context) ([]T, error)) error {
	if col.mode == ModeIncremental && fileExists(col.layout.Baseline(e.kind)) {
		return nil
	}
	records, err := fetchWithRetry(ctx, col.c, e.kind, func() ([]T, error) { return fetch(ctx) })
	if err != nil {
		return err
	}
	col.count(e.kind, len(records))
	return e.save(col.layout, false, records)
}

// collectAll recollects an untimestamped entity and keeps the records
// missing from the baseline.
func collectAll[T any](ctx context.Context, col *collection, e entity[T], fetch func(context.Context) ([]T, error)) error {
	records, err := fetchWithRetry(ctx, col.c, e.kind, func() ([]T, error) { return fetch(ctx) })
	if err != nil {
		return err
	}
	return keep(col, e, records)
}

// collectSince fetches records newer than everything already on disk
func collectSince[T any](ctx context.Context, col *collection, e entity[T], fetch func(context.Context, time.Time) ([]T, error)) error {
	var since time.Time
	if col.mode == ModeIncremental {
		base, _, err := e.load(col.layout, false)
		if err != nil {
			return err
		}
		pending, _, err := e.load(col.layout, true)
		if err != nil {
			return err
		}
		since = e.since(base, pending)
	}
	records, err := fetchWithRetry(ctx, col.c, e.kind, func() ([]T, error) { return fetch(ctx, since) })
	if err != nil {
		return err
	}
	return keep(col, e, records)
}

// keep writes records: the baseline in a first run, otherwise the unknown
// ones merged into the delta.
func keep[T any](col *collection, e entity[T], records []T) error {
	if col.mode == ModeFirstRun {
		col.count(e.kind, len(records))
		return e.save(col.layout, false, records)
	}

	base, _, err := e.load(col.layout, false)
	if err != nil {
		return err
	}
	fresh := e.unknown(records, base)
	col.count(e.kind, len(fresh))
	if len(fresh) == 0 {
		return nil
	}
	pending, _, err := e.load(col.layout, true)
	if err != nil {
		return err
	}
	col.c.logger.WithFields(logrus.Fields{"entity": e.kind, "new": len(fresh)}).Debug("Collected new records")
	return e.save(col.layout, true, e.merge(pending, fresh))
}

// fetchWithRetry retries retryable collection errors, waiting for the
// error's retry-after or an exponential backoff.
func fetchWithRetry[R any](ctx context.Context, c *Coordinator, kind models.EntityKind, fetch func() (R, error)) (R, error) {
	var zero R
	for attempt := 0; ; attempt++ {
		records, err := fetch()
		if err == nil {
			return records, nil
		}
		if !errors.IsRetryable(err) || attempt >= c.opts.MaxRetries {
			return zero, err
		}

		wait := errors.RetryAfterOf(err)
		if wait <= 0 {
			wait = c.opts.BaseBackoff << attempt
		}
		c.logger.WithFields(logrus.Fields{
			"entity":  kind,
			"attempt": attempt + 1,
			"wait":    wait.String(),
		}).WithError(err).Warn("Collection failed, retrying")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
}
