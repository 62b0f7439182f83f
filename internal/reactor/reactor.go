// Package reactor drives the periodic probes, keeps the last classification
// of every channel and fires actions exactly when a channel changes.
package reactor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/camwatch/camwatch/internal/action"
	"github.com/camwatch/camwatch/internal/log"
	"github.com/camwatch/camwatch/internal/metrics"
)

const (
	defaultInterval      = time.Second
	defaultSampleTimeout = 15 * time.Second
	updateBuffer         = 32
)

// Actions are the side effects fired on transitions. EnableDND and
// DisableDND are called synchronously from the update goroutine; RunScript
// must return without waiting for the script.
type Actions interface {
	EnableDND()
	DisableDND()
	RunScript(ev action.Event)
}

// Publisher receives a snapshot after every update that changed state, and
// the multiple-instances warning once.
type Publisher interface {
	Publish(Snapshot)
	Warning(msg string)
}

type Options struct {
	Name          string        // display name of the target application
	Interval      time.Duration // time between ticks
	SampleTimeout time.Duration // upper bound on a single probe call
}

type channelKind int

const (
	kindCamera channelKind = iota
	kindScreenShare
	kindProcess
)

// update carries one probe result to the update goroutine.
type update struct {
	kind        channelKind
	camera      CameraState
	screenShare ScreenShareState
	count       int
}

// run is one Start..Stop lifetime of the schedule.
type run struct {
	ctx     context.Context
	cancel  context.CancelFunc
	updates chan update
	reset   chan struct{}
	wg      sync.WaitGroup
}

type Reactor struct {
	opts      Options
	probes    Probes
	actions   Actions
	publisher Publisher
	logger    zerolog.Logger

	// lifecycle serializes Start and Stop. Stop holds it until the old
	// run's goroutines have exited, so st has one writer at a time.
	lifecycle sync.Mutex

	mu       sync.Mutex // protects run and interval
	run      *run
	interval time.Duration

	st       state
	snap     atomic.Pointer[Snapshot]
	ticks    atomic.Uint64
	inflight sync.WaitGroup
}

// New builds a stopped reactor with every channel unknown. publisher may be
// nil.
func New(opts Options, probes Probes, actions Actions, publisher Publisher) *Reactor {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.SampleTimeout <= 0 {
		opts.SampleTimeout = defaultSampleTimeout
	}
	r := &Reactor{
		opts:      opts,
		probes:    probes,
		actions:   actions,
		publisher: publisher,
		logger:    log.WithComponent("reactor"),
		interval:  opts.Interval,
	}
	snap := r.buildSnapshot()
	r.snap.Store(&snap)
	return r
}

// Start begins ticking, with the first tick immediately. Calling Start on a
// running reactor does nothing.
func (r *Reactor) Start() {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.run != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	rn := &run{
		ctx:     ctx,
		cancel:  cancel,
		updates: make(chan update, updateBuffer),
		reset:   make(chan struct{}, 1),
	}
	r.run = rn

	rn.wg.Add(2)
	go r.schedule(rn, r.interval)
	go r.consume(rn)

	r.logger.Info().Str("event", "reactor.started").Dur("interval", r.interval).Msg("reactor started")
}

// Stop cancels future ticks and waits for the scheduler and update
// goroutines to exit. Probes already running are not interrupted; their
// results are discarded. Stop is safe to call repeatedly, and channel state
// survives a Stop/Start cycle.
func (r *Reactor) Stop() {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	r.mu.Lock()
	rn := r.run
	r.run = nil
	r.mu.Unlock()

	if rn == nil {
		return
	}
	rn.cancel()
	rn.wg.Wait()
	r.logger.Info().Str("event", "reactor.stopped").Msg("reactor stopped")
}

// Running reports whether the schedule is active.
func (r *Reactor) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.run != nil
}

// SetInterval changes the tick interval, taking effect on a running reactor
// without a restart.
func (r *Reactor) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if d == r.interval {
		return
	}
	r.interval = d
	if r.run != nil {
		select {
		case r.run.reset <- struct{}{}:
		default:
		}
	}
}

func (r *Reactor) currentInterval() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interval
}

// Drain waits for in-flight probes to return.
func (r *Reactor) Drain() {
	r.inflight.Wait()
}

// Snapshot returns the most recently published state.
func (r *Reactor) Snapshot() Snapshot {
	snap := *r.snap.Load()
	snap.Running = r.Running()
	return snap
}

func (r *Reactor) schedule(rn *run, interval time.Duration) {
	defer rn.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.tick(rn)
	for {
		select {
		case <-rn.ctx.Done():
			return
		case <-rn.reset:
			d := r.currentInterval()
			ticker.Reset(d)
			r.logger.Info().Str("event", "reactor.interval_changed").Dur("interval", d).Msg("tick interval changed")
		case <-ticker.C:
			r.tick(rn)
		}
	}
}

// tick launches every probe on its own goroutine and returns immediately.
func (r *Reactor) tick(rn *run) {
	r.ticks.Add(1)
	metrics.RecordTick()

	r.dispatch(rn, func(ctx context.Context) (update, bool) {
		return update{kind: kindCamera, camera: r.probes.Camera(ctx)}, true
	})
	r.dispatch(rn, func(ctx context.Context) (update, bool) {
		s, ok := r.probes.ScreenShare(ctx)
		return update{kind: kindScreenShare, screenShare: s}, ok
	})
	r.dispatch(rn, func(ctx context.Context) (update, bool) {
		return update{kind: kindProcess, count: r.probes.ProcessCount(ctx)}, true
	})
}

func (r *Reactor) dispatch(rn *run, probe func(context.Context) (update, bool)) {
	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()

		// Not derived from rn.ctx: Stop does not abort external tools.
		ctx, cancel := context.WithTimeout(context.Background(), r.opts.SampleTimeout)
		defer cancel()

		u, ok := probe(ctx)
		if !ok {
			return
		}
		select {
		case rn.updates <- u:
		case <-rn.ctx.Done():
		}
	}()
}

// consume is the only writer of r.st while the run is active.
func (r *Reactor) consume(rn *run) {
	defer rn.wg.Done()
	for {
		select {
		case <-rn.ctx.Done():
			return
		case u := <-rn.updates:
			if rn.ctx.Err() != nil {
				return
			}
			r.apply(u)
		}
	}
}

func (r *Reactor) apply(u update) {
	var changed bool
	switch u.kind {
	case kindCamera:
		changed = r.applyCamera(u.camera)
	case kindScreenShare:
		changed = r.applyScreenShare(u.screenShare)
	case kindProcess:
		p := r.applyPresence(PresenceFromCount(u.count))
		m := r.applyMultiplicity(MultiplicityFromCount(u.count))
		changed = p || m
	}

	snap := r.buildSnapshot()
	// apply only runs on an active run's update goroutine.
	snap.Running = true
	r.snap.Store(&snap)
	if changed && r.publisher != nil {
		r.publisher.Publish(snap)
	}
}

func (r *Reactor) applyCamera(next CameraState) bool {
	prev := r.st.camera
	changed, fire := observe(&r.st.camera, next, CameraUnknown)
	if !changed {
		return false
	}
	r.logTransition("camera", prev, next, fire)
	if !fire {
		return true
	}
	metrics.RecordTransition("camera", next.String())

	switch next {
	case CameraActive:
		r.actions.EnableDND()
		r.actions.RunScript(action.CameraEnabled)
	case CameraInactive:
		r.actions.DisableDND()
		r.actions.RunScript(action.CameraDisabled)
	case CameraTargetNotRunning:
		r.actions.DisableDND()
	}
	return true
}

func (r *Reactor) applyScreenShare(next ScreenShareState) bool {
	prev := r.st.screenShare
	changed, fire := observe(&r.st.screenShare, next, ScreenShareUnknown)
	if !changed {
		return false
	}
	r.logTransition("screen_share", prev, next, fire)
	if !fire {
		return true
	}
	metrics.RecordTransition("screen_share", next.String())

	switch next {
	case ScreenShareActive:
		r.actions.RunScript(action.ScreenSharingStarted)
	case ScreenShareInactive:
		r.actions.RunScript(action.ScreenSharingEnded)
	}
	return true
}

func (r *Reactor) applyPresence(next Presence) bool {
	prev := r.st.presence
	changed, fire := observe(&r.st.presence, next, PresenceUnknown)
	if !changed {
		return false
	}
	r.logTransition("process", prev, next, fire)
	if !fire {
		return true
	}
	metrics.RecordTransition("process", next.String())

	switch next {
	case PresenceRunning:
		r.actions.RunScript(action.AppStarted)
	case PresenceNotRunning:
		r.actions.RunScript(action.AppEnded)
	}
	return true
}

// applyMultiplicity warns the first time several instances are seen, even on
// the baseline observation, and never again for this reactor.
func (r *Reactor) applyMultiplicity(next Multiplicity) bool {
	changed, _ := observe(&r.st.multiplicity, next, MultiplicityUnknown)
	if next != MultiplicityMultiple || r.st.warned {
		return changed
	}
	r.st.warned = true

	msg := multipleInstancesText(r.opts.Name)
	r.logger.Warn().Str("event", "reactor.multiple_instances").Msg(msg)
	if r.publisher != nil {
		r.publisher.Warning(msg)
	}
	return true
}

func (r *Reactor) logTransition(channel string, prev, next interface{ String() string }, fire bool) {
	ev := r.logger.Info()
	if !fire {
		ev = r.logger.Debug()
	}
	ev.Str("event", "reactor.transition").
		Str("channel", channel).
		Str("from", prev.String()).
		Str("to", next.String()).
		Bool("baseline", !fire).
		Msg("channel changed")
}
