package reactor

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/camwatch/camwatch/internal/action"
)

type recordingActions struct {
	mu    sync.Mutex
	calls []string
}

func (a *recordingActions) record(s string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, s)
}

func (a *recordingActions) EnableDND()                { a.record("dnd_on") }
func (a *recordingActions) DisableDND()               { a.record("dnd_off") }
func (a *recordingActions) RunScript(ev action.Event) { a.record(ev.ScriptName()) }

func (a *recordingActions) Calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

type recordingPublisher struct {
	mu        sync.Mutex
	snapshots []Snapshot
	warnings  []string
}

func (p *recordingPublisher) Publish(s Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots = append(p.snapshots, s)
}

func (p *recordingPublisher) Warning(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.warnings = append(p.warnings, msg)
}

func (p *recordingPublisher) Counts() (snapshots, warnings int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.snapshots), len(p.warnings)
}

// settableProbes returns whatever the test last stored and counts calls.
type settableProbes struct {
	camera      atomic.Int32
	screenShare atomic.Int32
	count       atomic.Int32
	cameraCalls atomic.Int32
	gate        chan struct{} // when non-nil, Camera blocks until closed
	entered     chan struct{}
}

func (p *settableProbes) Camera(context.Context) CameraState {
	p.cameraCalls.Add(1)
	if p.gate != nil {
		select {
		case p.entered <- struct{}{}:
		default:
		}
		<-p.gate
	}
	return CameraState(p.camera.Load())
}

func (p *settableProbes) ScreenShare(context.Context) (ScreenShareState, bool) {
	s := ScreenShareState(p.screenShare.Load())
	return s, s != ScreenShareUnknown
}

func (p *settableProbes) ProcessCount(context.Context) int {
	return int(p.count.Load())
}

func newTestReactor(probes Probes) (*Reactor, *recordingActions, *recordingPublisher) {
	acts := &recordingActions{}
	pub := &recordingPublisher{}
	r := New(Options{Name: "Zoom", Interval: time.Hour}, probes, acts, pub)
	return r, acts, pub
}

func feedCamera(r *Reactor, states ...CameraState) {
	for _, s := range states {
		r.apply(update{kind: kindCamera, camera: s})
	}
}

func feedScreenShare(r *Reactor, states ...ScreenShareState) {
	for _, s := range states {
		r.apply(update{kind: kindScreenShare, screenShare: s})
	}
}

func feedCounts(r *Reactor, counts ...int) {
	for _, n := range counts {
		r.apply(update{kind: kindProcess, count: n})
	}
}

func TestCameraTransitions(t *testing.T) {
	tests := []struct {
		name   string
		states []CameraState
		want   []string
	}{
		{"baseline active fires nothing", []CameraState{CameraActive}, nil},
		{"baseline not running fires nothing", []CameraState{CameraTargetNotRunning}, nil},
		{"inactive to active", []CameraState{CameraInactive, CameraActive}, []string{"dnd_on", "camera_enabled.sh"}},
		{"repeated values fire once", []CameraState{CameraInactive, CameraActive, CameraActive, CameraActive}, []string{"dnd_on", "camera_enabled.sh"}},
		{"on then off", []CameraState{CameraInactive, CameraActive, CameraInactive},
			[]string{"dnd_on", "camera_enabled.sh", "dnd_off", "camera_disabled.sh"}},
		{"app quits mid call", []CameraState{CameraActive, CameraTargetNotRunning}, []string{"dnd_off"}},
		{"sampling error is silent", []CameraState{CameraInactive, CameraSamplingError}, nil},
		{"recovering from error fires", []CameraState{CameraInactive, CameraSamplingError, CameraInactive},
			[]string{"dnd_off", "camera_disabled.sh"}},
		{"app launches straight into call", []CameraState{CameraTargetNotRunning, CameraActive}, []string{"dnd_on", "camera_enabled.sh"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, acts, _ := newTestReactor(&settableProbes{})
			feedCamera(r, tt.states...)
			assert.Equal(t, tt.want, acts.Calls())
			assert.Equal(t, tt.states[len(tt.states)-1], r.Snapshot().Camera)
		})
	}
}

func TestScreenShareTransitions(t *testing.T) {
	tests := []struct {
		name   string
		states []ScreenShareState
		want   []string
	}{
		{"baseline", []ScreenShareState{ScreenShareActive}, nil},
		{"start and end", []ScreenShareState{ScreenShareInactive, ScreenShareActive, ScreenShareInactive},
			[]string{"screen_sharing_started.sh", "screen_sharing_ended.sh"}},
		{"no duplicates", []ScreenShareState{ScreenShareInactive, ScreenShareInactive, ScreenShareActive, ScreenShareActive},
			[]string{"screen_sharing_started.sh"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, acts, _ := newTestReactor(&settableProbes{})
			feedScreenShare(r, tt.states...)
			assert.Equal(t, tt.want, acts.Calls())
		})
	}
}

func TestProcessPresenceTransitions(t *testing.T) {
	tests := []struct {
		name   string
		counts []int
		want   []string
	}{
		{"already running at startup", []int{1}, nil},
		{"launch and quit", []int{0, 1, 0}, []string{"app_started.sh", "app_ended.sh"}},
		{"instance count change is not a presence change", []int{1, 2, 1}, nil},
		{"quit after running at startup", []int{1, 1, 0}, []string{"app_ended.sh"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, acts, _ := newTestReactor(&settableProbes{})
			feedCounts(r, tt.counts...)
			assert.Equal(t, tt.want, acts.Calls())
		})
	}
}

func TestMultipleInstancesWarnsOnce(t *testing.T) {
	r, acts, pub := newTestReactor(&settableProbes{})

	feedCounts(r, 1, 2, 1, 2, 3, 0, 2)

	_, warnings := pub.Counts()
	assert.Equal(t, 1, warnings)
	assert.Equal(t, MultiplicityMultiple, r.Snapshot().Multiplicity)
	assert.Contains(t, r.Snapshot().Warning, "Multiple instances of Zoom")
	// Only the presence channel fires scripts for count changes.
	assert.Equal(t, []string{"app_ended.sh", "app_started.sh"}, acts.Calls())
}

func TestMultipleInstancesAtStartupWarns(t *testing.T) {
	r, _, pub := newTestReactor(&settableProbes{})
	feedCounts(r, 2)
	_, warnings := pub.Counts()
	assert.Equal(t, 1, warnings)
}

// Random walks over each channel: the number of fired actions equals the
// number of changes after the first value.
func TestFiresIffChanged(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	cameraValues := []CameraState{CameraActive, CameraInactive, CameraTargetNotRunning, CameraSamplingError}

	for round := 0; round < 50; round++ {
		r, acts, _ := newTestReactor(&settableProbes{})
		seq := make([]CameraState, 1+rng.Intn(20))
		for i := range seq {
			seq[i] = cameraValues[rng.Intn(len(cameraValues))]
		}

		want := 0
		for i := 1; i < len(seq); i++ {
			if seq[i] == seq[i-1] {
				continue
			}
			switch seq[i] {
			case CameraActive, CameraInactive:
				want += 2
			case CameraTargetNotRunning:
				want++
			}
		}

		feedCamera(r, seq...)
		require.Len(t, acts.Calls(), want, "sequence %v", seq)
	}
}

func TestPublishOnlyOnChange(t *testing.T) {
	r, _, pub := newTestReactor(&settableProbes{})

	feedCamera(r, CameraInactive, CameraInactive, CameraInactive)
	snaps, _ := pub.Counts()
	assert.Equal(t, 1, snaps)

	feedCamera(r, CameraActive)
	snaps, _ = pub.Counts()
	assert.Equal(t, 2, snaps)
}

func TestScenarioTargetAbsent(t *testing.T) {
	for _, from := range []CameraState{CameraActive, CameraInactive, CameraSamplingError} {
		t.Run(from.String(), func(t *testing.T) {
			r, acts, _ := newTestReactor(&settableProbes{})
			feedCamera(r, from, CameraTargetNotRunning, CameraTargetNotRunning)

			assert.Equal(t, CameraTargetNotRunning, r.Snapshot().Camera)
			assert.Equal(t, []string{"dnd_off"}, acts.Calls())
			assert.Equal(t, "Zoom does not appear to be running", r.Snapshot().Status)
		})
	}
}

func TestScenarioSentinelMatchAfterInactive(t *testing.T) {
	r, acts, _ := newTestReactor(&settableProbes{})
	feedCamera(r, CameraInactive, CameraActive, CameraActive)

	assert.Equal(t, CameraActive, r.Snapshot().Camera)
	assert.Equal(t, []string{"dnd_on", "camera_enabled.sh"}, acts.Calls())
	assert.Equal(t, "Zoom is USING the camera", r.Snapshot().Status)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func TestStartIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	probes := &settableProbes{}
	probes.camera.Store(int32(CameraInactive))
	r, _, _ := newTestReactor(probes)

	r.Start()
	r.Start()
	assert.True(t, r.Running())

	waitFor(t, func() bool { return probes.cameraCalls.Load() >= 1 })
	time.Sleep(50 * time.Millisecond)
	// Two schedules would each have ticked immediately.
	assert.Equal(t, int32(1), probes.cameraCalls.Load())
	assert.Equal(t, uint64(1), r.ticks.Load())

	r.Stop()
	r.Stop()
	r.Drain()
	assert.False(t, r.Running())
}

func TestStopStartKeepsState(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	probes := &settableProbes{}
	probes.camera.Store(int32(CameraActive))
	probes.count.Store(1)
	r, acts, _ := newTestReactor(probes)

	r.Start()
	waitFor(t, func() bool {
		s := r.Snapshot()
		return s.Camera == CameraActive && s.Process == PresenceRunning
	})
	r.Stop()
	r.Drain()

	assert.Equal(t, CameraActive, r.Snapshot().Camera)

	// Second run sees the same values: nothing fires because the held state
	// is not reset to unknown.
	r.Start()
	waitFor(t, func() bool { return r.ticks.Load() == 2 })
	r.Stop()
	r.Drain()
	assert.Empty(t, acts.Calls())

	// A real change after restart fires normally.
	probes.camera.Store(int32(CameraInactive))
	r.Start()
	waitFor(t, func() bool { return len(acts.Calls()) == 2 })
	r.Stop()
	r.Drain()
	assert.Equal(t, []string{"dnd_off", "camera_disabled.sh"}, acts.Calls())
}

func TestResultsAfterStopAreDropped(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	probes := &settableProbes{
		gate:    make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	probes.camera.Store(int32(CameraActive))
	r, _, pub := newTestReactor(probes)

	r.Start()
	<-probes.entered
	r.Stop()

	close(probes.gate)
	r.Drain()

	assert.Equal(t, CameraUnknown, r.Snapshot().Camera)
	for _, s := range pub.snapshots {
		assert.NotEqual(t, CameraActive, s.Camera)
	}
}

func TestPublishedSnapshotsReportRunning(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	probes := &settableProbes{}
	probes.camera.Store(int32(CameraInactive))
	probes.count.Store(1)
	r, _, pub := newTestReactor(probes)

	r.Start()
	waitFor(t, func() bool {
		snaps, _ := pub.Counts()
		return snaps >= 2
	})
	r.Stop()
	r.Drain()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	for _, s := range pub.snapshots {
		assert.True(t, s.Running)
	}
	assert.False(t, r.Snapshot().Running)
}

// gatedActions blocks DisableDND until gate is closed.
type gatedActions struct {
	recordingActions
	gate    chan struct{}
	entered chan struct{}
}

func (a *gatedActions) DisableDND() {
	select {
	case a.entered <- struct{}{}:
	default:
	}
	<-a.gate
	a.record("dnd_off")
}

func TestStartWaitsForStoppingRun(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	probes := &settableProbes{}
	probes.camera.Store(int32(CameraActive))
	acts := &gatedActions{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	r := New(Options{Name: "Zoom", Interval: 10 * time.Millisecond}, probes, acts, nil)

	r.Start()
	waitFor(t, func() bool { return r.Snapshot().Camera == CameraActive })
	probes.camera.Store(int32(CameraTargetNotRunning))
	select {
	case <-acts.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("DisableDND was not called")
	}

	stopped := make(chan struct{})
	go func() {
		r.Stop()
		close(stopped)
	}()
	waitFor(t, func() bool { return !r.Running() })

	started := make(chan struct{})
	go func() {
		r.Start()
		close(started)
	}()

	select {
	case <-started:
		t.Fatal("Start returned while the previous run was still applying an update")
	case <-stopped:
		t.Fatal("Stop returned while an update was still being applied")
	case <-time.After(50 * time.Millisecond):
	}
	assert.False(t, r.Running())

	close(acts.gate)
	for _, ch := range []chan struct{}{stopped, started} {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatal("lifecycle call did not return after the gate opened")
		}
	}
	assert.True(t, r.Running())

	r.Stop()
	r.Drain()
	assert.Equal(t, []string{"dnd_off"}, acts.Calls())
}

func TestScreenShareInconclusiveLeavesState(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	probes := &settableProbes{}
	probes.camera.Store(int32(CameraInactive))
	// ScreenShareUnknown makes the probe report ok=false.
	r, _, _ := newTestReactor(probes)

	r.Start()
	waitFor(t, func() bool { return r.Snapshot().Camera == CameraInactive })
	r.Stop()
	r.Drain()

	assert.Equal(t, ScreenShareUnknown, r.Snapshot().ScreenShare)
	assert.Equal(t, "No result", r.Snapshot().ScreenSharingStatus)
}

func TestSetIntervalRetunesRunningTicker(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	probes := &settableProbes{}
	r, _, _ := newTestReactor(probes)

	r.Start()
	waitFor(t, func() bool { return r.ticks.Load() == 1 })

	r.SetInterval(20 * time.Millisecond)
	waitFor(t, func() bool { return r.ticks.Load() >= 4 })

	r.Stop()
	r.Drain()
}

func TestSnapshotBeforeStart(t *testing.T) {
	r, _, _ := newTestReactor(&settableProbes{})
	s := r.Snapshot()

	assert.False(t, s.Running)
	assert.Equal(t, CameraUnknown, s.Camera)
	assert.Equal(t, "No result", s.Status)
	assert.Empty(t, s.Warning)
}
