// Package sampler infers what a process is doing by stack-sampling it with
// the macOS sample(1) tool and searching the report for a sentinel symbol.
package sampler

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/camwatch/camwatch/internal/log"
	"github.com/camwatch/camwatch/internal/probe"
	"github.com/camwatch/camwatch/internal/shell"
)

// Outcome is the closed set of results a single sample can produce.
type Outcome int

const (
	OutcomeTargetMissing Outcome = iota
	OutcomeMatch
	OutcomeNoMatch
	OutcomeError
)

var outcomeNames = map[Outcome]string{
	OutcomeTargetMissing: "target_missing",
	OutcomeMatch:         "match",
	OutcomeNoMatch:       "no_match",
	OutcomeError:         "error",
}

func (o Outcome) String() string {
	if s, ok := outcomeNames[o]; ok {
		return s
	}
	return "unknown"
}

// grep exit statuses
const (
	grepFound    = 0
	grepNotFound = 1
)

// errorLogInterval bounds how often a failing sampler logs.
const errorLogInterval = 10 * time.Second

// Target describes one sampling channel.
type Target struct {
	Channel     string // label for logs and metrics
	Process     string // identifier resolved through probe.Finder
	Sentinel    string // exact, case-sensitive substring
	ScratchFile string
	Duration    time.Duration
}

// Tools are the external binaries the sampler shells out to.
type Tools struct {
	Sample string
	Grep   string
}

type Sampler struct {
	target   Target
	tools    Tools
	finder   probe.Finder
	runner   shell.Runner
	logger   zerolog.Logger
	errorLog rate.Sometimes
}

func New(target Target, tools Tools, finder probe.Finder, runner shell.Runner) *Sampler {
	return &Sampler{
		target:   target,
		tools:    tools,
		finder:   finder,
		runner:   runner,
		logger:   log.WithComponent("sampler").With().Str("channel", target.Channel).Logger(),
		errorLog: rate.Sometimes{First: 1, Interval: errorLogInterval},
	}
}

// Target returns the sampler's configuration.
func (s *Sampler) Target() Target {
	return s.target
}

// Sample resolves the target, samples its first instance for the configured
// duration into the scratch file and classifies the report. It blocks for at
// least the sampling duration and never returns an error: failures are
// reported as OutcomeError.
//
// The scratch file is overwritten on every call. Two overlapping calls on the
// same Sampler race on it.
func (s *Sampler) Sample(ctx context.Context) Outcome {
	pids := s.finder.PIDs(ctx, s.target.Process)
	if len(pids) == 0 {
		return OutcomeTargetMissing
	}
	// Only the first instance is sampled.
	pid := pids[0]

	sampleArgs := []string{
		strconv.FormatInt(int64(pid), 10),
		formatSeconds(s.target.Duration),
		"-f", s.target.ScratchFile,
	}
	res, err := s.runner.Run(ctx, s.tools.Sample, sampleArgs...)
	if err != nil {
		s.logFailure(err, shell.Describe(s.tools.Sample, sampleArgs...), res)
		return OutcomeError
	}
	if res.ExitCode != 0 {
		// grep decides; a partial report may still contain the sentinel.
		s.logger.Debug().Int("exit_code", res.ExitCode).Int32("pid", pid).Msg("sample exited non-zero")
	}

	grepArgs := []string{"-F", "-q", "--", s.target.Sentinel, s.target.ScratchFile}
	res, err = s.runner.Run(ctx, s.tools.Grep, grepArgs...)
	if err != nil {
		s.logFailure(err, shell.Describe(s.tools.Grep, grepArgs...), res)
		return OutcomeError
	}

	switch res.ExitCode {
	case grepFound:
		return OutcomeMatch
	case grepNotFound:
		return OutcomeNoMatch
	default:
		s.logFailure(nil, shell.Describe(s.tools.Grep, grepArgs...), res)
		return OutcomeError
	}
}

func (s *Sampler) logFailure(err error, cmd string, res shell.Result) {
	s.errorLog.Do(func() {
		s.logger.Warn().
			Err(err).
			Str("cmd", cmd).
			Int("exit_code", res.ExitCode).
			Str("stderr", res.Stderr).
			Msg("sampling failed")
	})
}

// formatSeconds renders d the way sample(1) takes its duration argument.
func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
