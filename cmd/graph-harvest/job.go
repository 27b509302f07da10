package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/graph-harvester/pkg/config"
	"github.com/Sternrassler/graph-harvester/pkg/harvest"
	"github.com/Sternrassler/graph-harvester/pkg/logging"
	"github.com/Sternrassler/graph-harvester/pkg/output"
)

// newJobCmd builds the subcommand running one harvest job.
func newJobCmd(a *app, name, short string, job func(*config.Config) harvest.Job) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, job(a.cfg))
		},
	}
}

func (a *app) run(cmd *cobra.Command, job harvest.Job) error {
	defer a.close()
	start := time.Now()

	job.PageSize = a.cfg.Graph.PageSize

	items, err := a.harvester.Run(cmd.Context(), job)
	if err != nil {
		return err
	}

	path := a.cfg.Output.File
	if path == "" {
		path = job.Name + ".json"
	}
	if err := output.WriteFile(path, items); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	elapsed := time.Since(start).Round(time.Millisecond)
	logger := logging.NewLogger("cli")
	logger.Info().
		Str("job", job.Name).
		Str("file", path).
		Int("items", len(items)).
		Dur("duration", elapsed).
		Msg("Output written")

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d %s to %s in %s\n", len(items), job.Name, path, elapsed)
	return nil
}
