package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/repograph/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage repograph configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with the defaults",
	Long: `Write repograph.yaml with the default settings. Secrets are never
written; use 'repograph auth' for those.

Examples:
  repograph config init
  repograph config init --global
  repograph config init --force`,
	RunE: runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [ingest|dry-run|szz|serve]",
	Short: "Check the configuration for a command",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigValidate,
}

func init() {
	configInitCmd.Flags().Bool("global", false, "write to ~/.config/repograph instead of the current directory")
	configInitCmd.Flags().Bool("force", false, "overwrite an existing file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	global, _ := cmd.Flags().GetBool("global")
	force, _ := cmd.Flags().GetBool("force")

	path := "repograph.yaml"
	if global {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to locate home directory: %w", err)
		}
		path = filepath.Join(home, ".config", "repograph", "repograph.yaml")
	}

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	if err := config.Default().Save(path); err != nil {
		return err
	}
	fmt.Printf("Configuration written to %s\n", path)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	ctx := config.ValidationContextIngest
	if len(args) == 1 {
		ctx = config.ValidationContext(args[0])
	}

	if err := config.NewCredentialManager().Resolve(cfg, ctx != config.ValidationContextDryRun && ctx != config.ValidationContextSZZ); err != nil {
		logger.WithError(err).Warn("Credential lookup failed")
	}

	result := cfg.Validate(ctx)
	if result.HasErrors() {
		return fmt.Errorf("%s", result.Error())
	}
	for _, w := range result.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
	fmt.Printf("Configuration is valid for %s (%s mode)\n", ctx, config.DetectMode())
	return nil
}
