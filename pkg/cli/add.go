package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/agpm-project/agpm/pkg/console"
	"github.com/agpm-project/agpm/pkg/constants"
	"github.com/agpm-project/agpm/pkg/core"
	"github.com/agpm-project/agpm/pkg/manifest"
	"github.com/agpm-project/agpm/pkg/stringutil"
)

// NewAddCommand builds `agpm add`, with `source` and `dep` subcommands per
// spec.md §6 (`add {source <name> <url> | dep {agent|snippet|...} <spec>}`).
func NewAddCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Declare a new source or dependency in agpm.toml",
	}
	cmd.AddCommand(newAddSourceCommand(), newAddDepCommand())
	return cmd
}

func newAddSourceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "source <name> <url>",
		Short: "Declare a Git source repository",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, url := args[0], args[1]
			dir, err := projectDir()
			if err != nil {
				exitWithCode(err, exitCodeForError(err))
			}
			manifestPath := filepath.Join(dir, manifest.FileName)
			m, err := manifest.Load(manifestPath)
			if err != nil {
				exitWithCode(err, exitCodeForError(err))
			}
			m.AddSource(name, url)
			if err := manifest.Save(manifestPath, m); err != nil {
				exitWithCode(err, exitCodeForError(err))
			}
			fmt.Println(console.FormatSuccessMessage(fmt.Sprintf("added source %q -> %s", name, url)))
			return nil
		},
	}
}

func newAddDepCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dep <kind> <alias>",
		Short: "Declare a new dependency (agent|snippet|command|mcp-server|script|hook|skill)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ok := parseKindArg(args[0])
			if !ok {
				exitWithCode(fmt.Errorf("unknown resource kind %q", args[0]), constants.ExitInvocationError)
			}
			alias := stringutil.NormalizeResourceAlias(args[1])

			source, _ := cmd.Flags().GetString("source")
			path, _ := cmd.Flags().GetString("path")
			version, _ := cmd.Flags().GetString("version")
			branch, _ := cmd.Flags().GetString("branch")
			rev, _ := cmd.Flags().GetString("rev")
			tool, _ := cmd.Flags().GetString("tool")
			target, _ := cmd.Flags().GetString("target")
			flatten, _ := cmd.Flags().GetBool("flatten")
			noInstall, _ := cmd.Flags().GetBool("no-install")

			if path == "" {
				exitWithCode(fmt.Errorf("--path is required"), constants.ExitInvocationError)
			}
			selectors := 0
			for _, v := range []string{version, branch, rev} {
				if v != "" {
					selectors++
				}
			}
			if source != "" && selectors != 1 {
				exitWithCode(fmt.Errorf("exactly one of --version, --branch, --rev is required for a source-backed dependency"), constants.ExitInvocationError)
			}

			dir, err := projectDir()
			if err != nil {
				exitWithCode(err, exitCodeForError(err))
			}
			manifestPath := filepath.Join(dir, manifest.FileName)
			m, err := manifest.Load(manifestPath)
			if err != nil {
				exitWithCode(err, exitCodeForError(err))
			}

			spec := manifest.DependencySpec{
				Source: source, Path: path, Version: version, Branch: branch, Rev: rev,
				Tool: tool, Target: target, Flatten: flatten,
			}
			if noInstall {
				f := false
				spec.Install = &f
			}
			m.AddDependency(kind, alias, spec)
			if err := m.Validate(); err != nil {
				exitWithCode(err, exitCodeForError(err))
			}
			if err := manifest.Save(manifestPath, m); err != nil {
				exitWithCode(err, exitCodeForError(err))
			}
			fmt.Println(console.FormatSuccessMessage(fmt.Sprintf("added %s.%s", kind, alias)))
			fmt.Println(console.FormatInfoMessage("run `agpm install` to resolve and materialize it"))
			return nil
		},
	}

	cmd.Flags().String("source", "", "source name declared under [sources] (omit for a local file dependency)")
	cmd.Flags().String("path", "", "file or glob path within the source (required)")
	cmd.Flags().String("version", "", "version constraint, e.g. \"^1.0\" or an exact tag")
	cmd.Flags().String("branch", "", "track a branch instead of a version constraint")
	cmd.Flags().String("rev", "", "pin an exact commit SHA")
	cmd.Flags().String("tool", "", "install target tool (default: claude-code)")
	cmd.Flags().String("target", "", "override the default install directory for this dependency")
	cmd.Flags().Bool("flatten", false, "install without reproducing the source's directory structure")
	cmd.Flags().Bool("no-install", false, "resolve and lock this dependency but never write it to the project tree")

	return cmd
}

func parseKindArg(s string) (core.Kind, bool) {
	for _, k := range core.AllKinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}
