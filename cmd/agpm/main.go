// Command agpm is a Git-backed package manager for AI-assistant resources:
// it resolves agents, snippets, commands, scripts, hooks, MCP servers, and
// skills declared in agpm.toml to exact Git commits and materializes them
// into a project tree, tracked by a deterministic lockfile.
package main

import (
	"fmt"
	"os"

	"github.com/agpm-project/agpm/pkg/cli"
	"github.com/agpm-project/agpm/pkg/console"
	"github.com/agpm-project/agpm/pkg/constants"
)

// version is set by GoReleaser at build time.
var version = "dev"

func main() {
	cli.SetVersionInfo(version)

	root := cli.NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, console.FormatErrorMessage(err.Error()))
		os.Exit(constants.ExitInvocationError)
	}
}
