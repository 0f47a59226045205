package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agpm-project/agpm/pkg/console"
	"github.com/agpm-project/agpm/pkg/constants"
	"github.com/agpm-project/agpm/pkg/manifest"
)

// NewRemoveCommand builds `agpm remove`, with `source` and `dep`
// subcommands per spec.md §6.
func NewRemoveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a source or dependency from agpm.toml",
	}
	cmd.AddCommand(newRemoveSourceCommand(), newRemoveDepCommand())
	return cmd
}

func newRemoveSourceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "source <name>",
		Short: "Remove a declared source repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			force, _ := cmd.Flags().GetBool("force")

			dir, err := projectDir()
			if err != nil {
				exitWithCode(err, exitCodeForError(err))
			}
			manifestPath := filepath.Join(dir, manifest.FileName)
			m, err := manifest.Load(manifestPath)
			if err != nil {
				exitWithCode(err, exitCodeForError(err))
			}

			if users := m.SourceInUse(name); len(users) > 0 {
				if !force {
					exitWithCode(fmt.Errorf("source %q is still referenced by %s; pass --force to remove it anyway",
						name, strings.Join(users, ", ")), constants.ExitValidationFailure)
				}
				confirmed, err := console.ConfirmAction(
					fmt.Sprintf("source %q is still referenced by %s; those dependencies will fail to resolve until repointed. Remove it anyway?",
						name, strings.Join(users, ", ")),
					"Remove", "Cancel")
				if err != nil || !confirmed {
					exitWithCode(fmt.Errorf("removal of source %q cancelled", name), constants.ExitValidationFailure)
				}
			}

			m.RemoveSource(name)
			if err := manifest.Save(manifestPath, m); err != nil {
				exitWithCode(err, exitCodeForError(err))
			}
			fmt.Println(console.FormatSuccessMessage(fmt.Sprintf("removed source %q", name)))
			return nil
		},
	}
	cmd.Flags().Bool("force", false, "remove the source even if dependencies still reference it")
	return cmd
}

func newRemoveDepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dep <kind> <alias>",
		Short: "Remove a dependency declaration",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ok := parseKindArg(args[0])
			if !ok {
				exitWithCode(fmt.Errorf("unknown resource kind %q", args[0]), constants.ExitInvocationError)
			}
			alias := args[1]

			dir, err := projectDir()
			if err != nil {
				exitWithCode(err, exitCodeForError(err))
			}
			manifestPath := filepath.Join(dir, manifest.FileName)
			m, err := manifest.Load(manifestPath)
			if err != nil {
				exitWithCode(err, exitCodeForError(err))
			}

			if !m.RemoveDependency(kind, alias) {
				exitWithCode(fmt.Errorf("%s.%s is not declared in agpm.toml", kind, alias), constants.ExitValidationFailure)
			}
			if err := manifest.Save(manifestPath, m); err != nil {
				exitWithCode(err, exitCodeForError(err))
			}
			fmt.Println(console.FormatSuccessMessage(fmt.Sprintf("removed %s.%s", kind, alias)))
			fmt.Println(console.FormatInfoMessage("run `agpm install` to clean up its installed files"))
			return nil
		},
	}
}
