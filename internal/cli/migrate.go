package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/replaykit/replaykit/internal/artifact"
	"github.com/replaykit/replaykit/internal/migrate"
)

// MigrateOptions holds flags for the migrate command.
type MigrateOptions struct {
	*RootOptions
	Source string
	Out    string
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigrateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate a legacy artifact to the current schema",
		Long: `Migrate source (0.9 or any 1.y) to the current schema version
(§4.9), recomputing step hashes where the content changed and
preserving them where it didn't, then write the result to --out.

Example:
  replaykit migrate --source legacy.rpk --out migrated.rpk`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return reportOnError(opts.RootOptions, cmd, runMigrate(opts, cmd))
		},
	}

	cmd.Flags().StringVar(&opts.Source, "source", "", "source artifact path (required)")
	_ = cmd.MarkFlagRequired("source")
	cmd.Flags().StringVar(&opts.Out, "out", "", "output artifact path (required)")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

func runMigrate(opts *MigrateOptions, cmd *cobra.Command) error {
	f := formatterFor(opts.RootOptions, cmd)

	raw, err := os.ReadFile(opts.Source)
	if err != nil {
		return WrapExitError(ExitUsage, "failed to read source artifact", err)
	}

	run, summary, err := migrate.Migrate(raw, artifact.CanonOptions())
	if err != nil {
		return WrapExitError(ExitFailure, "migration failed", err)
	}

	env, err := artifact.Write(opts.Out, run, map[string]any{"migrated_from": summary.SourceVersion}, artifact.WriteOptions{}, artifact.CanonOptions())
	if err != nil {
		return WrapExitError(ExitFailure, "failed to write migrated artifact", err)
	}

	return f.Success(map[string]any{
		"run_id":                 run.ID,
		"status":                 summary.Status,
		"source_version":         summary.SourceVersion,
		"target_version":         summary.TargetVersion,
		"migration_status":       summary.MigrationStatus,
		"preserved_step_hashes":  summary.PreservedStepHashes,
		"recomputed_step_hashes": summary.RecomputedStepHashes,
		"path":                   opts.Out,
		"version":                env.Version,
	})
}
