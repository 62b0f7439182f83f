package cli

import (
	"github.com/camwatch/camwatch/internal/action"
	"github.com/camwatch/camwatch/internal/config"
	"github.com/camwatch/camwatch/internal/probe"
	"github.com/camwatch/camwatch/internal/reactor"
	"github.com/camwatch/camwatch/internal/sampler"
	"github.com/camwatch/camwatch/internal/shell"
	"github.com/camwatch/camwatch/internal/shortcuts"
)

// components are the leaf collaborators shared by run and check.
type components struct {
	runner    shell.Runner
	processes *probe.ProcessTable
	probes    *reactor.SystemProbes
	shortcuts *shortcuts.Enumerator
}

func newComponents(cfg *config.Config, runner shell.Runner) *components {
	processes := probe.NewProcessTable()
	tools := sampler.Tools{Sample: cfg.Tools.Sample, Grep: cfg.Tools.Grep}

	camera := sampler.New(samplerTarget("camera", cfg.Target.Camera), tools, processes, runner)
	screenShare := sampler.New(samplerTarget("screen_share", cfg.Target.ScreenShare), tools, processes, runner)

	return &components{
		runner:    runner,
		processes: processes,
		probes:    reactor.NewSystemProbes(camera, screenShare, processes, cfg.Target.Process),
		shortcuts: shortcuts.NewEnumerator(cfg.Tools.Shortcuts, runner),
	}
}

func samplerTarget(channel string, sc config.SamplerConfig) sampler.Target {
	return sampler.Target{
		Channel:     channel,
		Process:     sc.Process,
		Sentinel:    sc.Sentinel,
		ScratchFile: sc.ScratchFile,
		Duration:    sc.Duration,
	}
}

func newExecutor(cfg *config.Config, prefs action.Preferences, runner shell.Runner) *action.Executor {
	return action.NewExecutor(action.Options{
		ShortcutsTool: cfg.Tools.Shortcuts,
		Shell:         cfg.Tools.Shell,
		ScriptDir:     cfg.ScriptDir(),
	}, prefs, runner)
}
