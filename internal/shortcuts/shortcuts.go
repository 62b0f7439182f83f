// Package shortcuts lists the user's macOS Shortcuts so the DND on/off
// shortcut names can be picked from a list.
package shortcuts

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/camwatch/camwatch/internal/log"
	"github.com/camwatch/camwatch/internal/shell"
)

// Placeholder is the single entry returned when the list cannot be read.
const Placeholder = "Could not retrieve list of shortcuts"

type Enumerator struct {
	tool   string
	runner shell.Runner
	logger zerolog.Logger
}

func NewEnumerator(tool string, runner shell.Runner) *Enumerator {
	return &Enumerator{
		tool:   tool,
		runner: runner,
		logger: log.WithComponent("shortcuts"),
	}
}

// List runs "<tool> list" and returns shortcut names in output order. On
// any failure it returns []string{Placeholder}; it never returns an error.
func (e *Enumerator) List(ctx context.Context) []string {
	res, err := e.runner.Run(ctx, e.tool, "list")
	if err != nil || res.ExitCode != 0 {
		e.logger.Warn().
			Err(err).
			Int("exit_code", res.ExitCode).
			Str("stderr", strings.TrimSpace(res.Stderr)).
			Msg("cannot list shortcuts")
		return []string{Placeholder}
	}
	names := parseList(res.Stdout)
	e.logger.Debug().Int("count", len(names)).Msg("listed shortcuts")
	return names
}

// ListAsync runs List on its own goroutine and delivers the result on the
// returned channel, which is closed afterwards.
func (e *Enumerator) ListAsync(ctx context.Context) <-chan []string {
	out := make(chan []string, 1)
	go func() {
		defer close(out)
		out <- e.List(ctx)
	}()
	return out
}

func parseList(out string) []string {
	lines := strings.Split(out, "\n")
	names := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		names = append(names, line)
	}
	return names
}
