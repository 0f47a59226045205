// Package cli wires agpm's cobra command tree to pkg/pipeline: one command
// per spec.md §6 CLI surface verb, each a thin flag-parsing shell around
// the pipeline/manifest/lockfile packages doing the real work.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agpm-project/agpm/pkg/console"
	"github.com/agpm-project/agpm/pkg/constants"
)

// versionInfo is set by cmd/agpm/main.go via SetVersionInfo.
var versionInfo = "dev"

// SetVersionInfo records the build-time version string for the root
// command's --version output.
func SetVersionInfo(v string) {
	versionInfo = v
}

// NewRootCommand builds the full agpm command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:     constants.CLIName,
		Short:   "A Git-backed package manager for AI-assistant resources",
		Version: versionInfo,
		Long: `agpm installs agents, snippets, commands, scripts, hooks, MCP servers, and
skills from Git repositories into a project, pinning every dependency to an
exact commit in a lockfile that reproduces byte-identical installs.

Common tasks:
  agpm install                 # resolve agpm.toml and materialize the project tree
  agpm update                  # re-resolve every dependency against its constraint
  agpm add dep agent foo ...   # declare a new dependency
  agpm list                    # show installed resources
  agpm validate --render       # dry-run resolution and rendering

For detailed help on any command, use:
  agpm [command] --help`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddGroup(&cobra.Group{ID: "core", Title: "Core Commands:"})
	root.AddGroup(&cobra.Group{ID: "manifest", Title: "Manifest Commands:"})
	root.AddGroup(&cobra.Group{ID: "inspect", Title: "Inspection Commands:"})
	root.AddGroup(&cobra.Group{ID: "maintenance", Title: "Maintenance Commands:"})

	root.PersistentFlags().Bool("verbose", false, "enable verbose output")
	root.PersistentFlags().Bool("quiet", false, "suppress non-error output")
	root.SetOut(os.Stderr)

	root.SetVersionTemplate(fmt.Sprintf("%s\n",
		console.FormatInfoMessage(fmt.Sprintf("%s version {{.Version}}", constants.CLIName))))

	installCmd := NewInstallCommand()
	updateCmd := NewUpdateCommand()
	addCmd := NewAddCommand()
	removeCmd := NewRemoveCommand()
	listCmd := NewListCommand()
	treeCmd := NewTreeCommand()
	validateCmd := NewValidateCommand()
	cacheCmd := NewCacheCommand()
	configCmd := NewConfigCommand()

	installCmd.GroupID = "core"
	updateCmd.GroupID = "core"
	validateCmd.GroupID = "core"

	addCmd.GroupID = "manifest"
	removeCmd.GroupID = "manifest"
	configCmd.GroupID = "manifest"

	listCmd.GroupID = "inspect"
	treeCmd.GroupID = "inspect"

	cacheCmd.GroupID = "maintenance"

	root.AddCommand(installCmd, updateCmd, addCmd, removeCmd, listCmd, treeCmd, validateCmd, cacheCmd, configCmd)

	return root
}

// exitWithCode prints err (if non-nil) in agpm's error style and exits with
// code — the exit codes spec.md §6 defines (0/1/2/3).
func exitWithCode(err error, code int) {
	if err != nil {
		fmt.Fprintln(os.Stderr, console.FormatErrorMessage(err.Error()))
	}
	os.Exit(code)
}
