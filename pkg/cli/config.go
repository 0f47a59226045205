package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agpm-project/agpm/pkg/console"
	"github.com/agpm-project/agpm/pkg/constants"
)

// NewConfigCommand builds `agpm config`. Editing ~/.agpm/config.toml is out
// of scope; this stub exists so `agpm config` fails with a clear message
// instead of cobra's generic "unknown command".
func NewConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:    "config",
		Short:  "Manage user-level configuration (not yet implemented)",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(console.FormatInfoMessage(fmt.Sprintf(
				"%s config is not implemented; edit %s directly", constants.CLIName, constants.UserConfigFileName)))
			exitWithCode(nil, constants.ExitInvocationError)
			return nil
		},
	}
}
