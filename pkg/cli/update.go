package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/agpm-project/agpm/pkg/console"
	"github.com/agpm-project/agpm/pkg/pipeline"
)

// NewUpdateCommand builds `agpm update`.
func NewUpdateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update [alias...]",
		Short: "Re-resolve dependencies against their manifest constraints",
		Long: `update re-resolves every dependency fresh against its agpm.toml
constraint, so a version range picks up any newer matching tag; the versions
recorded in agpm.lock are not reused (install resolves the same way). Passing
one or more aliases narrows the re-resolution to just those dependencies; the
rest keep their existing agpm.lock entries.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			maxParallel, _ := cmd.Flags().GetInt("max-parallel")
			quiet, _ := cmd.Flags().GetBool("quiet")
			verbose, _ := cmd.Flags().GetBool("verbose")

			p, err := newPipeline()
			if err != nil {
				exitWithCode(err, exitCodeForError(err))
			}
			dir, err := projectDir()
			if err != nil {
				exitWithCode(err, exitCodeForError(err))
			}

			var sp *console.SpinnerWrapper
			if !quiet && !verbose {
				sp = console.NewSpinner("re-resolving dependencies...")
				sp.Start()
			}

			report, err := p.Update(context.Background(), pipeline.Options{
				ProjectDir:  dir,
				MaxParallel: maxParallel,
				Filter:      args,
			})

			if sp != nil {
				sp.Stop()
			}

			if err != nil {
				printReport(report, quiet, verbose)
				exitWithCode(err, exitCodeForError(err))
			}
			printReport(report, quiet, verbose)
			return nil
		},
	}

	cmd.Flags().Int("max-parallel", 0, "maximum concurrent install writes (default: number of CPUs)")
	cmd.Flags().Bool("quiet", false, "suppress non-error output")

	return cmd
}
