package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/repograph/internal/config"
	"github.com/rohankatakam/repograph/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve ingestion over HTTP",
	Long: `Start an HTTP server exposing:

  POST /ingest   {"url": "<repo-url>"}  run an ingestion
  GET  /runs     recent runs from the ledger
  GET  /healthz  liveness

Runs are serialized: a second request waits for the first to finish.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	if err := config.NewCredentialManager().Resolve(cfg, true); err != nil {
		return err
	}
	if err := cfg.Require(config.ValidationContextServe); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	var runs server.RunLister
	if a.ledger != nil {
		runs = a.ledger
	}
	return server.New(cfg.Server.Addr, a.coordinator, runs, logger).ListenAndServe(ctx)
}
