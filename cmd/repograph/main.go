package main

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rohankatakam/repograph/internal/config"
	"github.com/rohankatakam/repograph/internal/errors"
	"github.com/rohankatakam/repograph/internal/logging"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	cfgFile string
	verbose bool
	logger  *logrus.Logger
	cfg     *config.Config
)

func main() {
	defer logging.Close()
	if err := rootCmd.Execute(); err != nil {
		var e *errors.Error
		if verbose && stderrors.As(err, &e) {
			fmt.Fprint(os.Stderr, e.DetailedString())
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		logging.Close()
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "repograph",
	Short: "repograph - repository activity graphs with bug-introducing commit links",
	Long: `repograph collects a repository's collaborators, issues, pull requests,
releases and commit history, resolves the people behind them to one identity
each, links bug fixes to the commits that introduced the bugs, and keeps a
Neo4j property graph of it all up to date incrementally.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to load config, using defaults: %v\n", err)
			cfg = config.Default()
		}

		level := logging.ParseLevel(cfg.Logging.Level)
		if verbose {
			level = logging.DEBUG
		}
		if err := logging.Initialize(logging.Config{
			Level:      level,
			OutputFile: cfg.Logging.File,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			JSONFormat: cfg.Logging.JSON,
			AddSource:  verbose,
		}); err != nil {
			return err
		}
		logger = logging.NewLogrus()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./repograph.yaml or ~/.config/repograph/repograph.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.SetVersionTemplate(`repograph {{.Version}}
Build time: ` + BuildTime + `
Git commit: ` + GitCommit + `
`)

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(szzCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("repograph %s (commit %s, built %s)\n", Version, GitCommit, BuildTime)
	},
}
