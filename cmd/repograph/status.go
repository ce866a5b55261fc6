package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/repograph/internal/config"
	"github.com/rohankatakam/repograph/internal/git"
	"github.com/rohankatakam/repograph/internal/graph"
	"github.com/rohankatakam/repograph/internal/ingestion"
)

var statusCmd = &cobra.Command{
	Use:   "status [repo-url]",
	Short: "Show configuration, graph store and ingestion state",
	Long: `Display the active configuration, whether the graph store is reachable
and what it holds, and, for a repository, its last completed run and any
delta files still waiting to be folded into the baselines.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	fmt.Printf("repograph status\n")
	fmt.Printf("%s\n", strings.Repeat("=", 50))

	fmt.Printf("\nConfiguration:\n")
	fmt.Printf("  Mode:      %s\n", config.DetectMode())
	fmt.Printf("  Data dir:  %s\n", cfg.DataDir)
	fmt.Printf("  Repos dir: %s\n", cfg.ReposDir)
	fmt.Printf("  Ledger:    %s\n", cfg.Ledger.Driver)

	creds := config.NewCredentialManager()
	token := cfg.GitHub.Token
	if token == "" {
		token, _ = creds.GetGitHubToken()
	}
	fmt.Printf("  GitHub:    %s\n", config.MaskSecret(token))

	fmt.Printf("\nGraph store:\n")
	fmt.Printf("  URI: %s\n", cfg.Neo4j.URI)
	if err := creds.Resolve(cfg, true); err != nil {
		fmt.Printf("  Status: unavailable (%v)\n", err)
	} else {
		printStore(ctx)
	}

	if len(args) == 0 {
		return nil
	}

	name, err := git.RepoName(args[0])
	if err != nil {
		return err
	}
	layout := ingestion.NewLayout(cfg.DataDir, name)

	fmt.Printf("\nRepository %s:\n", name)
	cp, ok, err := ingestion.LoadCheckpoint(layout)
	switch {
	case err != nil:
		fmt.Printf("  Checkpoint: unreadable (%v)\n", err)
	case !ok:
		fmt.Printf("  Checkpoint: none (next run is a first run)\n")
	default:
		fmt.Printf("  Last run:   %s (%s)\n", cp.RunID, cp.Mode)
		fmt.Printf("  Completed:  %s\n", cp.CompletedAt.Local().Format("2006-01-02 15:04:05"))
	}
	if pending := layout.PendingDeltas(); len(pending) > 0 {
		kinds := make([]string, len(pending))
		for i, k := range pending {
			kinds[i] = string(k)
		}
		fmt.Printf("  Pending deltas: %s\n", strings.Join(kinds, ", "))
	}
	return nil
}

func printStore(ctx context.Context) {
	backend, err := graph.NewNeo4jBackend(ctx, graph.Neo4jOptions{
		URI:         cfg.Neo4j.URI,
		User:        cfg.Neo4j.User,
		Password:    cfg.Neo4j.Password,
		Database:    cfg.Neo4j.Database,
		MaxPoolSize: cfg.Neo4j.MaxPoolSize,
	}, graph.DefaultBatchConfig())
	if err != nil {
		fmt.Printf("  Status: unreachable (%v)\n", err)
		return
	}
	defer backend.Close(ctx)

	if err := backend.HealthCheck(ctx); err != nil {
		fmt.Printf("  Status: unreachable (%v)\n", err)
		return
	}
	fmt.Printf("  Status: connected\n")

	bound, err := backend.BoundRepositoryURL(ctx)
	if err != nil {
		fmt.Printf("  Bound repository: unknown (%v)\n", err)
		return
	}
	if bound == "" {
		fmt.Printf("  Bound repository: none (empty store)\n")
		return
	}
	fmt.Printf("  Bound repository: %s\n", bound)

	counts, err := backend.CountNodes(ctx)
	if err != nil {
		fmt.Printf("  Node counts unavailable (%v)\n", err)
		return
	}
	for _, kind := range graph.AllKinds {
		if counts[kind] > 0 {
			fmt.Printf("  %-12s %d\n", kind, counts[kind])
		}
	}
}
