package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/repograph/internal/config"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored credentials",
	Long: `Store the GitHub token and Neo4j password in the OS keychain, or in
~/.config/repograph/credentials.yaml when no keychain is available.

Environment variables (GITHUB_TOKEN, NEO4J_PASSWORD) always take precedence.`,
}

var setGitHubTokenCmd = &cobra.Command{
	Use:   "set-github-token",
	Short: "Store a GitHub token",
	RunE: func(cmd *cobra.Command, args []string) error {
		cm := config.NewCredentialManager()
		token, err := cm.PromptSecret("GitHub token: ")
		if err != nil {
			return err
		}
		token = strings.TrimSpace(token)
		if token == "" {
			return fmt.Errorf("no token entered")
		}
		if err := cm.SaveCredentials(config.Credentials{GitHubToken: token}); err != nil {
			return err
		}
		fmt.Printf("GitHub token saved (%s)\n", config.MaskSecret(token))
		return nil
	},
}

var setNeo4jPasswordCmd = &cobra.Command{
	Use:   "set-neo4j-password",
	Short: "Store the Neo4j password",
	RunE: func(cmd *cobra.Command, args []string) error {
		cm := config.NewCredentialManager()
		password, err := cm.PromptSecret("Neo4j password: ")
		if err != nil {
			return err
		}
		if password == "" {
			return fmt.Errorf("no password entered")
		}
		if err := cm.SaveCredentials(config.Credentials{Neo4jPassword: password}); err != nil {
			return err
		}
		fmt.Println("Neo4j password saved")
		return nil
	},
}

var clearCredentialsCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.NewCredentialManager().ClearCredentials(); err != nil {
			return err
		}
		fmt.Println("Stored credentials removed")
		return nil
	},
}

func init() {
	authCmd.AddCommand(setGitHubTokenCmd)
	authCmd.AddCommand(setNeo4jPasswordCmd)
	authCmd.AddCommand(clearCredentialsCmd)
}
