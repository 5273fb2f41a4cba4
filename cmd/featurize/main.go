// Command featurize is the offline command-line front end: it featurizes
// example files into JSON lines and hashes single strings.
//
// Usage:
//
//	featurize parse [flags] [file ...]
//	featurize hash [--seed N] <string>
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logLevel string
	root := &cobra.Command{
		Use:           "featurize",
		Short:         "Parse and hash text-format training examples",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			logger.SetupWriter(cmd.ErrOrStderr(), logLevel, "text")
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	root.AddCommand(newParseCmd(), newHashCmd())
	return root
}
