package cli

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/camwatch/camwatch/internal/reactor"
	"github.com/camwatch/camwatch/internal/shell"
)

func newCheckCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Probe the target once and print what camwatch sees",
		Long: `Run every probe once, concurrently, and print the camera and screen-sharing
status and the number of running instances. No actions are fired.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			comps := newComponents(cfg, shell.NewExecRunner())
			ctx, cancel := context.WithTimeout(cmd.Context(), sampleTimeout(cfg))
			defer cancel()
			return checkOnce(ctx, cfg.Target.Name, comps.probes, cmd.OutOrStdout())
		},
	}
}

// checkOnce runs the three probes in parallel and prints their results. It
// fails when ctx expired before the probes returned.
func checkOnce(ctx context.Context, name string, probes reactor.Probes, out io.Writer) error {
	var (
		camera      reactor.CameraState
		screenShare = reactor.ScreenShareUnknown
		count       int
	)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		camera = probes.Camera(ctx)
	}()
	go func() {
		defer wg.Done()
		if s, ok := probes.ScreenShare(ctx); ok {
			screenShare = s
		}
	}()
	go func() {
		defer wg.Done()
		count = probes.ProcessCount(ctx)
	}()
	wg.Wait()

	fmt.Fprintf(out, "Camera:        %s\n", reactor.CameraText(name, camera))
	fmt.Fprintf(out, "Screen share:  %s\n", reactor.ScreenShareText(screenShare))
	fmt.Fprintf(out, "Instances:     %d\n", count)
	if reactor.MultiplicityFromCount(count) == reactor.MultiplicityMultiple {
		fmt.Fprintf(out, "Warning:       Multiple instances of %s are running; only the first one is sampled\n", name)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("check did not finish: %w", err)
	}
	return nil
}
