package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mlb/dezoomify-rs/internal/bulk"
	"github.com/mlb/dezoomify-rs/internal/config"
	"github.com/mlb/dezoomify-rs/internal/dezoomer/registry"
)

// runBulk drives internal/bulk.Run from the arguments the root command
// already parsed, mirroring the single-image path's flags and exit codes:
// the process exits non-zero if at least one listed image failed.
func runBulk(cmd *cobra.Command, a config.Arguments) error {
	pipeline, err := buildPipeline(a, os.Stdout)
	if err != nil {
		os.Exit(exitUsage)
		return nil
	}

	outfile := a.Outfile
	if outfile == "" {
		outfile = "output.png"
	}

	ctx := context.Background()
	outcomes, err := bulk.Run(ctx, pipeline, registry.All(true), a.Bulk, outfile, cmd.ErrOrStderr())
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		os.Exit(exitFailure)
		return nil
	}

	if bulk.AnyFailed(outcomes) {
		os.Exit(exitPartial)
		return nil
	}
	return nil
}
