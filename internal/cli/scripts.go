package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/google/renameio/v2"
	"github.com/spf13/cobra"

	"github.com/camwatch/camwatch/internal/action"
)

const stubTemplate = `#!/bin/bash
# camwatch runs this script when the %s event fires.
`

func newScriptsCmd(opts *globalOptions) *cobra.Command {
	var initStubs bool

	cmd := &cobra.Command{
		Use:   "scripts",
		Short: "Show the script run for each event",
		Long: `List every event camwatch can react to, the script it runs and whether
that script exists. With --init, missing scripts are created as empty
executable stubs. Existing scripts are never touched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			dir := cfg.ScriptDir()
			if initStubs {
				if err := writeStubs(dir, cmd.OutOrStdout()); err != nil {
					return err
				}
			}
			return listScripts(dir, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&initStubs, "init", false, "create missing scripts as executable stubs")
	return cmd
}

func listScripts(dir string, out io.Writer) error {
	for _, ev := range action.Events {
		path := ev.ScriptPath(dir)
		fmt.Fprintf(out, "%-24s %s (%s)\n", ev, path, scriptState(path))
	}
	return nil
}

func scriptState(path string) string {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "missing"
	case err != nil:
		return "unreadable"
	case info.IsDir():
		return "not a file"
	default:
		return "present"
	}
}

func writeStubs(dir string, out io.Writer) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create script dir: %w", err)
	}
	for _, ev := range action.Events {
		path := ev.ScriptPath(dir)
		if _, err := os.Lstat(path); err == nil {
			continue
		}
		if err := writeStub(path, ev); err != nil {
			return err
		}
		fmt.Fprintf(out, "created %s\n", path)
	}
	return nil
}

func writeStub(path string, ev action.Event) error {
	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o755))
	if err != nil {
		return fmt.Errorf("create pending script %s: %w", path, err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := fmt.Fprintf(pending, stubTemplate, ev); err != nil {
		return fmt.Errorf("write script %s: %w", path, err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace script %s: %w", path, err)
	}
	return nil
}
