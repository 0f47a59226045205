package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/agpm-project/agpm/pkg/console"
	"github.com/agpm-project/agpm/pkg/pipeline"
)

// NewInstallCommand builds `agpm install`.
func NewInstallCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Resolve agpm.toml and materialize the project tree",
		Long: `install runs the full resolution pipeline: it loads agpm.toml, resolves
every dependency (and its transitive discoveries) to an exact Git commit,
renders and patches content, writes it into the project tree, removes
anything the previous lockfile installed that the new resolution no longer
claims, and writes agpm.lock.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			frozen, _ := cmd.Flags().GetBool("frozen")
			regenerate, _ := cmd.Flags().GetBool("regenerate")
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
				sp = console.NewSpinner("resolving dependencies...")
				sp.Start()
			}

			report, err := p.Install(context.Background(), pipeline.Options{
				ProjectDir:  dir,
				Frozen:      frozen,
				Regenerate:  regenerate,
				MaxParallel: maxParallel,
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

	cmd.Flags().Bool("frozen", false, "fail rather than re-resolve if agpm.lock disagrees with agpm.toml")
	cmd.Flags().Bool("regenerate", false, "skip the --frozen staleness check (versions are always re-resolved from agpm.toml)")
	cmd.Flags().Int("max-parallel", 0, "maximum concurrent install writes (default: number of CPUs)")
	cmd.Flags().Bool("quiet", false, "suppress non-error output")

	return cmd
}
