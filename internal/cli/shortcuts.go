package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/camwatch/camwatch/internal/shell"
	"github.com/camwatch/camwatch/internal/shortcuts"
)

func newShortcutsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "shortcuts",
		Short: "List the Shortcuts available for the DND on/off settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			e := shortcuts.NewEnumerator(cfg.Tools.Shortcuts, shell.NewExecRunner())
			for _, name := range e.List(cmd.Context()) {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
