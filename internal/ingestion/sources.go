package ingestion

import (
	"context"
	"path/filepath"

	"github.com/rohankatakam/repograph/internal/git"
	"github.com/rohankatakam/repograph/internal/github"
	"github.com/rohankatakam/repograph/internal/szz"
)

// SourceConfig configures the GitHub and local-clone sources
type SourceConfig struct {
	GitHub         github.Options
	ReposDir       string
	HistoryWorkers int
	FixLookup      string
	BlameCachePath string
	SZZWorkers     int
	IgnoreWS       bool
}

// GitHubSources collects platform entities through the GitHub API and
// history from a full clone under ReposDir, which also backs the SZZ
// engine.
func GitHubSources(cfg SourceConfig) SourceFactory {
	return func(ctx context.Context, repoURL string, skips szz.SkipRecorder) (*Sources, error) {
		collector, err := github.NewCollector(repoURL, cfg.GitHub)
		if err != nil {
			return nil, err
		}

		cloneURL, err := git.CloneURL(repoURL)
		if err != nil {
			return nil, err
		}
		name, err := git.RepoName(repoURL)
		if err != nil {
			return nil, err
		}
		repo, err := git.EnsureClone(ctx, cloneURL, filepath.Join(cfg.ReposDir, name))
		if err != nil {
			return nil, err
		}

		finder, err := git.NewFixFinder(repo, cfg.FixLookup)
		if err != nil {
			return nil, err
		}

		var cache *szz.BlameCache
		if cfg.BlameCachePath != "" {
			if cache, err = szz.OpenBlameCache(cfg.BlameCachePath); err != nil {
				return nil, err
			}
		}

		engine := szz.NewEngine(repo, finder, szz.Options{
			Workers:          cfg.SZZWorkers,
			IgnoreWhitespace: cfg.IgnoreWS,
			Cache:            cache,
			Skips:            skips,
		})

		return &Sources{
			Remote:  collector,
			History: git.NewCommitCollector(repo, cfg.HistoryWorkers),
			Linker:  engine,
			Close:   cache.Close,
		}, nil
	}
}
