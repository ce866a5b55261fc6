package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/repograph/internal/errors"
	"github.com/rohankatakam/repograph/internal/git"
	"github.com/rohankatakam/repograph/internal/graph"
	"github.com/rohankatakam/repograph/internal/identity"
	"github.com/rohankatakam/repograph/internal/models"
	"github.com/rohankatakam/repograph/internal/storage"
	"github.com/rohankatakam/repograph/internal/szz"
)

// Mode tells whether a run builds the graph from scratch or applies deltas
type Mode string

const (
	ModeFirstRun    Mode = "first_run"
	ModeIncremental Mode = "incremental"
)

// Run messages
const (
	MessageCreated   = "Graph created successfully"
	MessageUpdated   = "Graph updated successfully"
	MessageNoNewData = "No new data to update the graph."
)

// RemoteSource collects platform entities. Timestamped collections return
// records created at or after since; the zero time means everything.
type RemoteSource interface {
	Repository(ctx context.Context) (models.Repository, error)
	Collaborators(ctx context.Context) ([]models.Collaborator, error)
	Releases(ctx context.Context, since time.Time) ([]models.Release, error)
	Languages(ctx context.Context) ([]models.Language, error)
	Projects(ctx context.Context, since time.Time) ([]models.Project, error)
	Forks(ctx context.Context) ([]models.Fork, error)
	Issues(ctx context.Context, since time.Time) ([]models.Issue, error)
	PullRequests(ctx context.Context, since time.Time) ([]models.PullRequest, error)
}

// HistorySource collects commits from version control
type HistorySource interface {
	Commits(ctx context.Context, since time.Time) ([]models.Commit, error)
}

// BranchSource reports the branches containing every commit in history.
// Incremental runs use it to refresh baseline commits that a new branch
// has made reachable.
type BranchSource interface {
	Branches(ctx context.Context) (map[string][]string, error)
}

// BugLinker produces fix/induce/impacted triples for issues
type BugLinker interface {
	Process(ctx context.Context, issues []models.Issue) ([]models.BugLink, error)
}

// Sources bundles what one run collects from
type Sources struct {
	Remote  RemoteSource
	History HistorySource
	Linker  BugLinker
	// Close releases resources held by the sources; may be nil
	Close func() error
}

// SourceFactory opens the sources of one repository. skips is nil when no
// ledger is configured.
type SourceFactory func(ctx context.Context, repoURL string, skips szz.SkipRecorder) (*Sources, error)

// Options configures a Coordinator
type Options struct {
	DataDir           string
	CollectWorkers    int
	MaxRetries        int
	BaseBackoff       time.Duration
	Timeout           time.Duration
	RecheckOpenIssues bool
}

// Stats summarizes one run
type Stats struct {
	Collected    map[models.EntityKind]int `json:"collected"`
	Nodes        int                       `json:"nodes"`
	Edges        int                       `json:"edges"`
	Deleted      int                       `json:"deleted"`
	BugLinks     int                       `json:"bug_links"`
	DroppedEdges int                       `json:"dropped_edges"`
	StageErrors  []string                  `json:"stage_errors,omitempty"`
}

// Result reports the outcome of a run
type Result struct {
	RunID    string        `json:"run_id"`
	Mode     Mode          `json:"mode"`
	Message  string        `json:"message"`
	Stats    Stats         `json:"stats"`
	Duration time.Duration `json:"duration"`
}

// Coordinator runs ingestion: collect, build, link bugs, upsert, fold
type Coordinator struct {
	store   *graph.Store
	sources SourceFactory
	ledger  *storage.Ledger
	opts    Options
	logger  *logrus.Logger
}

// NewCoordinator creates a coordinator. ledger may be nil.
func NewCoordinator(store *graph.Store, sources SourceFactory, ledger *storage.Ledger, opts Options, logger *logrus.Logger) *Coordinator {
	if opts.CollectWorkers <= 0 {
		opts.CollectWorkers = 4
	}
	if opts.DataDir == "" {
		opts.DataDir = "data"
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Coordinator{
		store:   store,
		sources: sources,
		ledger:  ledger,
		opts:    opts,
		logger:  logger,
	}
}

// Run ingests one repository. On failure or timeout pending delta files
// stay in place so the next run can pick them up.
func (c *Coordinator) Run(ctx context.Context, repoURL string) (*Result, error) {
	start := time.Now()

	webURL, err := git.WebURL(repoURL)
	if err != nil {
		return nil, errors.ConfigErrorf("invalid repository url %q: %v", repoURL, err)
	}
	name, _ := git.RepoName(repoURL)

	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	runID := uuid.NewString()
	var skips szz.SkipRecorder
	if c.ledger != nil {
		id, err := c.ledger.StartRun(ctx, webURL)
		if err != nil {
			c.logger.WithError(err).Warn("Failed to record run start, continuing without ledger")
		} else {
			runID = id
			skips = c.ledger.SkipRecorder(id)
		}
	}

	log := c.logger.WithFields(logrus.Fields{"run_id": runID, "repo": webURL})
	log.Info("Starting ingestion run")

	result, err := c.run(ctx, log, runID, repoURL, webURL, NewLayout(c.opts.DataDir, name), skips)
	if result != nil {
		result.Duration = time.Since(start)
	}

	if c.ledger != nil && skips != nil {
		out := storage.Outcome{Err: err}
		if result != nil {
			out.Mode = string(result.Mode)
			out.Message = result.Message
			out.Nodes = result.Stats.Nodes
			out.Edges = result.Stats.Edges
			out.BugLinks = result.Stats.BugLinks
			if result.Message == MessageNoNewData {
				out.Status = storage.StatusNoop
			}
		}
		if ferr := c.ledger.FinishRun(context.WithoutCancel(ctx), runID, out); ferr != nil {
			log.WithError(ferr).Warn("Failed to record run outcome")
		}
	}

	if err != nil {
		log.WithError(err).Error("Ingestion run failed")
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"mode":     result.Mode,
		"nodes":    result.Stats.Nodes,
		"edges":    result.Stats.Edges,
		"duration": result.Duration.String(),
	}).Info(result.Message)
	return result, nil
}

func (c *Coordinator) run(ctx context.Context, log *logrus.Entry, runID, repoURL, webURL string, layout Layout, skips szz.SkipRecorder) (*Result, error) {
	if err := c.store.CheckBinding(ctx, webURL); err != nil {
		return nil, err
	}

	mode := c.mode(layout)
	result := &Result{RunID: runID, Mode: mode, Stats: Stats{Collected: make(map[models.EntityKind]int)}}
	log = log.WithField("mode", mode)

	if mode == ModeFirstRun {
		// Deltas left by an unfinished first run belong to no baseline
		for _, kind := range layout.PendingDeltas() {
			if err := removeFile(layout.Delta(kind)); err != nil {
				return nil, err
			}
		}
	}

	sources, err := c.sources(ctx, repoURL, skips)
	if err != nil {
		return nil, err
	}
	if sources.Close != nil {
		defer func() {
			if err := sources.Close(); err != nil {
				log.WithError(err).Warn("Failed to close sources")
			}
		}()
	}

	col := newCollection(c, layout, mode)
	if err := col.run(ctx, sources); err != nil {
		return nil, err
	}
	result.Stats.Collected = col.counts

	if mode == ModeIncremental && len(layout.PendingDeltas()) == 0 {
		result.Message = MessageNoNewData
		log.Info(MessageNoNewData)
		return result, nil
	}

	builder, base, delta, err := c.build(layout, mode, &result.Stats)
	if err != nil {
		return nil, err
	}

	if err := c.linkBugs(ctx, log, layout, mode, sources.Linker, base, delta, builder.Graph(), &result.Stats); err != nil {
		return nil, err
	}

	if err := collaboratorsEntity.save(layout, false, builder.Resolver().Collaborators()); err != nil {
		return nil, err
	}

	upserted, err := c.store.Upsert(ctx, builder.Graph())
	if err != nil {
		return nil, err
	}
	result.Stats.Nodes = upserted.Nodes
	result.Stats.Edges = upserted.Edges
	result.Stats.Deleted = upserted.Deleted

	if err := foldAll(layout); err != nil {
		return nil, err
	}
	if err := saveCheckpoint(layout, Checkpoint{
		RepoURL:     webURL,
		RunID:       runID,
		Mode:        mode,
		CompletedAt: time.Now().UTC(),
	}); err != nil {
		return nil, err
	}

	result.Message = MessageCreated
	if mode == ModeIncremental {
		result.Message = MessageUpdated
	}
	return result, nil
}

// mode is first_run until a run has completed against an existing baseline
func (c *Coordinator) mode(layout Layout) Mode {
	if !fileExists(layout.Baseline(models.EntityRepositories)) || !fileExists(layout.Checkpoint()) {
		return ModeFirstRun
	}
	return ModeIncremental
}

// build seeds the identity table and builds baselines, then deltas
func (c *Coordinator) build(layout Layout, mode Mode, stats *Stats) (*graph.Builder, graph.Batches, graph.Batches, error) {
	var delta graph.Batches

	base, err := loadBatches(layout, false)
	if err != nil {
		return nil, base, delta, err
	}

	resolver := identity.NewResolver()
	resolver.Seed(base.Collaborators)
	builder := graph.NewBuilder(graph.New(), resolver, c.logger)

	record := func(s *graph.BuildStats) {
		stats.DroppedEdges += s.DroppedEdges
		for _, se := range s.StageErrors {
			stats.StageErrors = append(stats.StageErrors, fmt.Sprintf("%s: %v", se.Entity, se.Err))
		}
	}

	s, err := builder.Build(base)
	if err != nil {
		return nil, base, delta, err
	}
	record(s)

	if mode == ModeIncremental {
		if delta, err = loadBatches(layout, true); err != nil {
			return nil, base, delta, err
		}
		s, err := builder.Build(delta)
		if err != nil {
			return nil, base, delta, err
		}
		record(s)
	}
	return builder, base, delta, nil
}

// linkBugs runs the linker over the run's issues, merges its triples into
// the fixing_bic delta and overlays baseline plus new triples on g.
func (c *Coordinator) linkBugs(ctx context.Context, log *logrus.Entry, layout Layout, mode Mode, linker BugLinker,
	base, delta graph.Batches, g *graph.Graph, stats *Stats) error {

	baseLinks, _, err := bugLinksEntity.load(layout, false)
	if err != nil {
		return err
	}
	pending, _, err := bugLinksEntity.load(layout, true)
	if err != nil {
		return err
	}

	if linker != nil {
		var issues []models.Issue
		if mode == ModeFirstRun {
			issues = base.Issues
		} else {
			issues = append(issues, delta.Issues...)
			if c.opts.RecheckOpenIssues {
				for _, is := range base.Issues {
					if is.IsOpen() {
						issues = append(issues, is)
					}
				}
			}
		}

		if len(issues) > 0 {
			log.WithField("issues", len(issues)).Info("Linking bug-introducing commits")
			links, err := linker.Process(ctx, issues)
			if err != nil {
				return err
			}
			pending = bugLinksEntity.merge(pending, links)
			if err := bugLinksEntity.save(layout, true, pending); err != nil {
				return err
			}
		}
	}

	stats.BugLinks = g.AddBugLinks(bugLinksEntity.merge(baseLinks, pending))
	return nil
}
