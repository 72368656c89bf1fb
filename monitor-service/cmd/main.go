package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "monitor-service",
		Short:         "Construction project monitoring API",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd(), migrateCmd(), outboxCmd(), actorCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
