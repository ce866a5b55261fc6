package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/repograph/internal/storage"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent ingestion runs",
	RunE:  runRuns,
}

func init() {
	runsCmd.Flags().Int("limit", 20, "number of runs to show")
	runsCmd.Flags().String("skips", "", "show the items skipped by this run id")
}

func runRuns(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	limit, _ := cmd.Flags().GetInt("limit")
	skipsOf, _ := cmd.Flags().GetString("skips")

	ledger, err := storage.Open(ctx, cfg.Ledger.Driver, cfg.Ledger.DSN)
	if err != nil {
		return err
	}
	defer ledger.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	if skipsOf != "" {
		items, err := ledger.Skips(ctx, skipsOf)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "KIND\tCOMMIT\tPATH\tREASON")
		for _, it := range items {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", it.Kind, shortSHA(it.CommitSHA), it.Path, it.Reason)
		}
		return nil
	}

	runs, err := ledger.RecentRuns(ctx, limit)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "ID\tREPOSITORY\tMODE\tSTATUS\tNODES\tEDGES\tBUG LINKS\tSTARTED\tDURATION")
	for _, r := range runs {
		duration := "-"
		if r.FinishedAt != nil {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			r.ID, r.RepoURL, r.Mode, r.Status, r.Nodes, r.Edges, r.BugLinks,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"), duration)
	}
	return nil
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
