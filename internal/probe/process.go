// Package probe answers "which processes match this application identifier"
// from the OS process table.
package probe

import (
	"context"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"

	cwlog "github.com/camwatch/camwatch/internal/log"
)

// ProcessInfo is the subset of a process table entry used for matching.
type ProcessInfo struct {
	PID  int32
	Name string
	Exe  string
}

// Finder lists pids matching an identifier.
type Finder interface {
	PIDs(ctx context.Context, identifier string) []int32
}

// lister enumerates the process table. Swapped out in tests.
type lister func(ctx context.Context) ([]ProcessInfo, error)

// ProcessTable matches identifiers against the live process table.
type ProcessTable struct {
	list   lister
	logger zerolog.Logger
}

func NewProcessTable() *ProcessTable {
	return &ProcessTable{
		list:   listProcesses,
		logger: cwlog.WithComponent("probe"),
	}
}

// PIDs returns matching pids in ascending order. It never fails: an
// enumeration error is logged and reported as no matches.
func (t *ProcessTable) PIDs(ctx context.Context, identifier string) []int32 {
	procs, err := t.list(ctx)
	if err != nil {
		t.logger.Warn().Err(err).Str("identifier", identifier).Msg("process enumeration failed")
		return nil
	}

	var pids []int32
	for _, p := range procs {
		if matchesIdentifier(p, identifier) {
			pids = append(pids, p.PID)
		}
	}
	slices.Sort(pids)
	return pids
}

// Count returns how many processes match identifier.
func (t *ProcessTable) Count(ctx context.Context, identifier string) int {
	return len(t.PIDs(ctx, identifier))
}

// matchesIdentifier reports whether p is an instance of identifier: the
// process name, the executable's base name, or an enclosing "<identifier>.app"
// bundle directory.
func matchesIdentifier(p ProcessInfo, identifier string) bool {
	if identifier == "" {
		return false
	}
	if p.Name == identifier {
		return true
	}
	if p.Exe == "" {
		return false
	}
	if filepath.Base(p.Exe) == identifier {
		return true
	}
	return strings.Contains(p.Exe, "/"+identifier+".app/")
}

func listProcesses(ctx context.Context) ([]ProcessInfo, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]ProcessInfo, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			// Processes exit between listing and inspection.
			continue
		}
		// Exe is best effort: it needs more privileges than Name on some systems.
		exe, _ := p.ExeWithContext(ctx)
		out = append(out, ProcessInfo{PID: p.Pid, Name: name, Exe: exe})
	}
	return out, nil
}
