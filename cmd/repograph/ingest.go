package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/rohankatakam/repograph/internal/errors"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <repo-url>",
	Short: "Collect a repository and build or update its graph",
	Long: `Collect a repository from GitHub and its local clone, then build or update
the property graph in Neo4j.

The first run collects everything and writes baseline files under data_dir.
Later runs collect only what is newer than the baselines, apply it as a
delta and fold it into the baselines once the graph is updated.

Examples:
  repograph ingest https://github.com/acme/demo
  repograph ingest acme/demo --dry-run
  repograph ingest acme/demo --timeout 30m --open-browser`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().Bool("dry-run", false, "build the graph in memory instead of Neo4j")
	ingestCmd.Flags().Duration("timeout", 0, "abort the run after this long (overrides ingest.timeout)")
	ingestCmd.Flags().Bool("open-browser", false, "open the Neo4j browser when the run succeeds")
	ingestCmd.Flags().Bool("json", false, "print the result as JSON")
}

func runIngest(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	openBrowser, _ := cmd.Flags().GetBool("open-browser")
	asJSON, _ := cmd.Flags().GetBool("json")

	if timeout > 0 {
		cfg.Ingest.Timeout = timeout
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := newApp(ctx, dryRun)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	result, err := a.coordinator.Run(ctx, args[0])
	if err != nil {
		if errors.IsFatal(err) {
			return fmt.Errorf("ingestion aborted: %w", err)
		}
		return fmt.Errorf("ingestion failed: %w", err)
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Printf("%s\n", result.Message)
	fmt.Printf("  Run:      %s\n", result.RunID)
	fmt.Printf("  Mode:     %s\n", result.Mode)
	fmt.Printf("  Nodes:    %d\n", result.Stats.Nodes)
	fmt.Printf("  Edges:    %d\n", result.Stats.Edges)
	fmt.Printf("  BugLinks: %d\n", result.Stats.BugLinks)
	fmt.Printf("  Duration: %s\n", result.Duration.Round(time.Millisecond))
	for _, se := range result.Stats.StageErrors {
		fmt.Printf("  Skipped stage: %s\n", se)
	}

	if openBrowser && !dryRun && cfg.Neo4j.BrowserURL != "" {
		if err := browser.OpenURL(cfg.Neo4j.BrowserURL); err != nil {
			logger.WithError(err).Warn("Failed to open browser")
		}
	}
	return nil
}
