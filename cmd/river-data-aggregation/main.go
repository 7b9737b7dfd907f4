package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "river-data-aggregation",
		Short:        "Download river discharge and stage series from public hydrology services",
		Version:      version,
		SilenceUsage: true,
	}

	root.PersistentFlags().Float64("rate-limit", 5, "Maximum upstream requests per second per source (0 = unlimited)")
	root.PersistentFlags().Int("retries", 5, "Attempts per upstream request")
	root.PersistentFlags().Float64("backoff", 0.5, "Base backoff in seconds, doubled after each failed attempt")
	root.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")
	root.PersistentFlags().String("log-format", "", "Log format: text or json")

	root.AddCommand(metadataCmd())
	root.AddCommand(dataCmd())
	root.AddCommand(parametersCmd())
	root.AddCommand(clearCacheCmd())
	root.AddCommand(serveCmd())
	return root
}
