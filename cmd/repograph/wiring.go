package main

import (
	"context"
	"fmt"

	"github.com/rohankatakam/repograph/internal/config"
	"github.com/rohankatakam/repograph/internal/github"
	"github.com/rohankatakam/repograph/internal/graph"
	"github.com/rohankatakam/repograph/internal/ingestion"
	"github.com/rohankatakam/repograph/internal/storage"
)

// app holds the long-lived pieces a command wires together
type app struct {
	store       *graph.Store
	ledger      *storage.Ledger
	coordinator *ingestion.Coordinator
}

// newApp resolves credentials, connects the graph store and ledger and
// builds the coordinator. dryRun swaps Neo4j for the in-memory backend.
func newApp(ctx context.Context, dryRun bool) (*app, error) {
	validation := config.ValidationContextIngest
	if dryRun {
		validation = config.ValidationContextDryRun
	}

	creds := config.NewCredentialManager()
	if err := creds.Resolve(cfg, !dryRun); err != nil {
		return nil, err
	}
	if err := cfg.Require(validation); err != nil {
		return nil, err
	}

	var backend graph.Backend
	if dryRun {
		logger.Info("Dry run: graph is kept in memory")
		backend = graph.NewMemoryBackend()
	} else {
		neo, err := graph.NewNeo4jBackend(ctx, graph.Neo4jOptions{
			URI:         cfg.Neo4j.URI,
			User:        cfg.Neo4j.User,
			Password:    cfg.Neo4j.Password,
			Database:    cfg.Neo4j.Database,
			MaxPoolSize: cfg.Neo4j.MaxPoolSize,
		}, graph.BatchConfigFromSize(cfg.Neo4j.BatchSize))
		if err != nil {
			return nil, fmt.Errorf("neo4j connection failed: %w", err)
		}
		backend = neo
	}

	a := &app{store: graph.NewStore(backend)}

	ledger, err := storage.Open(ctx, cfg.Ledger.Driver, cfg.Ledger.DSN)
	if err != nil {
		// Runs still work without a ledger, they just are not recorded
		logger.WithError(err).Warn("Run ledger unavailable")
	} else {
		a.ledger = ledger
	}

	sources := ingestion.GitHubSources(ingestion.SourceConfig{
		GitHub: github.Options{
			Token:     cfg.GitHub.Token,
			RateLimit: cfg.GitHub.RateLimit,
			Logger:    logger,
		},
		ReposDir:       cfg.ReposDir,
		HistoryWorkers: cfg.GitHub.MaxWorkers,
		FixLookup:      cfg.SZZ.FixLookup,
		BlameCachePath: cfg.SZZ.CachePath,
		SZZWorkers:     cfg.SZZ.Workers,
		IgnoreWS:       cfg.SZZ.IgnoreWhitespace,
	})

	a.coordinator = ingestion.NewCoordinator(a.store, sources, a.ledger, ingestion.Options{
		DataDir:           cfg.DataDir,
		CollectWorkers:    cfg.Ingest.CollectWorkers,
		MaxRetries:        cfg.GitHub.MaxRetries,
		BaseBackoff:       cfg.GitHub.BaseBackoff,
		Timeout:           cfg.Ingest.Timeout,
		RecheckOpenIssues: cfg.SZZ.RecheckOpenIssues,
	}, logger)

	return a, nil
}

func (a *app) Close(ctx context.Context) {
	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close ledger")
		}
	}
	if err := a.store.Close(ctx); err != nil {
		logger.WithError(err).Warn("Failed to close graph store")
	}
}
