// Package action performs the side effects the reactor fires on
// transitions: toggling Do Not Disturb and running user scripts.
package action

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/camwatch/camwatch/internal/config"
	"github.com/camwatch/camwatch/internal/log"
	"github.com/camwatch/camwatch/internal/metrics"
	"github.com/camwatch/camwatch/internal/shell"
)

const (
	dndTimeout    = 10 * time.Second
	scriptTimeout = 5 * time.Minute
)

// Preferences supplies the current user toggles. It is consulted on every
// call so that a config reload applies to the next action.
type Preferences interface {
	Preferences() config.PreferencesConfig
}

// StaticPreferences is a fixed Preferences value.
type StaticPreferences config.PreferencesConfig

func (p StaticPreferences) Preferences() config.PreferencesConfig {
	return config.PreferencesConfig(p)
}

type Options struct {
	ShortcutsTool string // runs "<tool> run <name>" for DND
	Shell         string // interpreter for user scripts
	ScriptDir     string
}

type Executor struct {
	opts   Options
	prefs  Preferences
	runner shell.Runner
	logger zerolog.Logger
	wg     sync.WaitGroup
}

func NewExecutor(opts Options, prefs Preferences, runner shell.Runner) *Executor {
	return &Executor{
		opts:   opts,
		prefs:  prefs,
		runner: runner,
		logger: log.WithComponent("action"),
	}
}

// EnableDND runs the user's "DND on" shortcut if DND automation is enabled.
// It waits for the shortcut to finish.
func (e *Executor) EnableDND() {
	p := e.prefs.Preferences()
	e.runDND("dnd_on", p.ToggleDND, p.DNDOnShortcut)
}

// DisableDND runs the user's "DND off" shortcut if DND automation is enabled.
func (e *Executor) DisableDND() {
	p := e.prefs.Preferences()
	e.runDND("dnd_off", p.ToggleDND, p.DNDOffShortcut)
}

func (e *Executor) runDND(name string, enabled bool, shortcut string) {
	if !enabled {
		metrics.RecordAction(name, "skipped")
		return
	}
	if shortcut == "" {
		e.logger.Warn().Str("action", name).Msg("no shortcut configured")
		metrics.RecordAction(name, "skipped")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), dndTimeout)
	defer cancel()

	res, err := e.runner.Run(ctx, e.opts.ShortcutsTool, "run", shortcut)
	ev := e.logger.Info()
	result := "ok"
	if err != nil || res.ExitCode != 0 {
		ev = e.logger.Warn().Err(err)
		result = "failed"
	}
	metrics.RecordAction(name, result)
	ev.Str("event", "action.dnd").
		Str("action", name).
		Str("shortcut", shortcut).
		Int("exit_code", res.ExitCode).
		Str("stderr", res.Stderr).
		Msg("ran DND shortcut")
}

// RunScript starts the script for ev on its own goroutine if custom scripts
// are enabled, and returns immediately. Concurrent runs, including two runs
// of the same script, are not serialized or queued; scripts that touch
// shared state must tolerate that.
func (e *Executor) RunScript(ev Event) {
	if !e.prefs.Preferences().RunCustomScripts {
		metrics.RecordAction(ev.String(), "skipped")
		return
	}

	path := ev.ScriptPath(e.opts.ScriptDir)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			e.logger.Debug().Str("script", path).Msg("no script for event")
		} else {
			e.logger.Warn().Err(err).Str("script", path).Msg("cannot stat script")
		}
		metrics.RecordAction(ev.String(), "skipped")
		return
	}

	runID := uuid.NewString()
	e.logger.Info().
		Str("event", "action.script_start").
		Str("run_id", runID).
		Str("script", path).
		Msg("running custom script")

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.execScript(ev, path, runID)
	}()
}

func (e *Executor) execScript(ev Event, path, runID string) {
	ctx, cancel := context.WithTimeout(context.Background(), scriptTimeout)
	defer cancel()

	start := time.Now()
	res, err := e.runner.Run(ctx, e.opts.Shell, path)
	elapsed := time.Since(start)
	metrics.ObserveScript(elapsed)

	logEv := e.logger.Info()
	result := "ok"
	if err != nil || res.ExitCode != 0 {
		logEv = e.logger.Warn().Err(err)
		result = "failed"
	}
	metrics.RecordAction(ev.String(), result)
	logEv.Str("event", "action.script_done").
		Str("run_id", runID).
		Str("script", path).
		Int("exit_code", res.ExitCode).
		Dur("duration", elapsed).
		Str("stdout", res.Stdout).
		Str("stderr", res.Stderr).
		Msg("custom script finished")
}

// Wait blocks until every script started so far has finished.
func (e *Executor) Wait() {
	e.wg.Wait()
}
