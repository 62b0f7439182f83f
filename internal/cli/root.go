// Package cli provides the camwatch cobra commands.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/camwatch/camwatch/internal/config"
	"github.com/camwatch/camwatch/internal/log"
)

// BuildInfo is stamped into the binary via ldflags.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

type globalOptions struct {
	configPath string
	logOutput  io.Writer
}

// NewRootCmd assembles the command tree.
func NewRootCmd(info BuildInfo) *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "camwatch",
		Short: "Toggle Do Not Disturb when Zoom uses the camera",
		Long: `camwatch watches a video-conferencing app by periodically sampling its
call stacks. When the camera turns on or off, screen sharing starts or ends,
or the app launches or quits, it toggles Do Not Disturb through a Shortcuts
shortcut and runs the matching script from the scripts directory.

Use 'camwatch run' to start watching, or 'camwatch check' for a one-off
reading.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultPath(), "path to the YAML config file")

	root.AddCommand(
		newRunCmd(opts),
		newCheckCmd(opts),
		newShortcutsCmd(opts),
		newScriptsCmd(opts),
		newVersionCmd(info),
	)
	return root
}

// Execute runs the root command and exits non-zero on error.
func Execute(info BuildInfo) {
	if err := NewRootCmd(info).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and configures logging from it.
func (o *globalOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log.Configure(log.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: o.logOutput,
	})
	return cfg, nil
}

func newVersionCmd(info BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "camwatch %s\n", info.Version)
			fmt.Fprintf(out, "commit: %s\n", info.Commit)
			fmt.Fprintf(out, "built: %s\n", info.Date)
		},
	}
}
