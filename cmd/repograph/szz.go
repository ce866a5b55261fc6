package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/repograph/internal/config"
	"github.com/rohankatakam/repograph/internal/git"
	"github.com/rohankatakam/repograph/internal/models"
	"github.com/rohankatakam/repograph/internal/szz"
)

var szzCmd = &cobra.Command{
	Use:   "szz <repo-dir> <issue-number>...",
	Short: "Find fixing and bug-introducing commits for issues in a local clone",
	Long: `Run the bug-introducing-commit engine against a local clone and print
one JSON triple per issue: the commits that fix it, the commits that
introduced the lines those fixes removed, and the files they touched.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runSZZ,
}

func init() {
	szzCmd.Flags().String("fix-lookup", "", "fix commit lookup: index or grep (overrides szz.fix_lookup)")
	szzCmd.Flags().Bool("no-cache", false, "do not use the blame cache")
}

func runSZZ(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	if err := cfg.Require(config.ValidationContextSZZ); err != nil {
		return err
	}

	dir := args[0]
	if !git.IsRepository(ctx, dir) {
		return fmt.Errorf("%s is not a git repository", dir)
	}

	var issues []models.Issue
	for _, arg := range args[1:] {
		n, err := strconv.Atoi(arg)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid issue number %q", arg)
		}
		issues = append(issues, models.Issue{Number: n})
	}

	lookup := cfg.SZZ.FixLookup
	if v, _ := cmd.Flags().GetString("fix-lookup"); v != "" {
		lookup = v
	}

	repo := git.Open(dir)
	finder, err := git.NewFixFinder(repo, lookup)
	if err != nil {
		return err
	}

	var cache *szz.BlameCache
	if noCache, _ := cmd.Flags().GetBool("no-cache"); !noCache && cfg.SZZ.CachePath != "" {
		if cache, err = szz.OpenBlameCache(cfg.SZZ.CachePath); err != nil {
			return err
		}
		defer cache.Close()
	}

	engine := szz.NewEngine(repo, finder, szz.Options{
		Workers:          cfg.SZZ.Workers,
		IgnoreWhitespace: cfg.SZZ.IgnoreWhitespace,
		Cache:            cache,
	})
	links, err := engine.Process(ctx, issues)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(links)
}
