package reactor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camwatch/camwatch/internal/sampler"
	"github.com/camwatch/camwatch/internal/shell"
)

func TestCameraFromOutcome(t *testing.T) {
	tests := []struct {
		in   sampler.Outcome
		want CameraState
	}{
		{sampler.OutcomeMatch, CameraActive},
		{sampler.OutcomeNoMatch, CameraInactive},
		{sampler.OutcomeTargetMissing, CameraTargetNotRunning},
		{sampler.OutcomeError, CameraSamplingError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CameraFromOutcome(tt.in), tt.in.String())
	}
}

func TestScreenShareFromOutcome(t *testing.T) {
	tests := []struct {
		in     sampler.Outcome
		want   ScreenShareState
		wantOK bool
	}{
		{sampler.OutcomeMatch, ScreenShareActive, true},
		{sampler.OutcomeNoMatch, ScreenShareInactive, true},
		{sampler.OutcomeTargetMissing, ScreenShareInactive, true},
		{sampler.OutcomeError, ScreenShareUnknown, false},
	}
	for _, tt := range tests {
		got, ok := ScreenShareFromOutcome(tt.in)
		assert.Equal(t, tt.want, got, tt.in.String())
		assert.Equal(t, tt.wantOK, ok, tt.in.String())
	}
}

func TestCountDerivations(t *testing.T) {
	assert.Equal(t, PresenceNotRunning, PresenceFromCount(0))
	assert.Equal(t, PresenceRunning, PresenceFromCount(3))
	assert.Equal(t, MultiplicityNotRunning, MultiplicityFromCount(0))
	assert.Equal(t, MultiplicitySingle, MultiplicityFromCount(1))
	assert.Equal(t, MultiplicityMultiple, MultiplicityFromCount(2))
}

func TestStatusTexts(t *testing.T) {
	assert.Equal(t, "No result", CameraText("Zoom", CameraUnknown))
	assert.Equal(t, "Zoom is USING the camera", CameraText("Zoom", CameraActive))
	assert.Equal(t, "Zoom is NOT USING the camera", CameraText("Zoom", CameraInactive))
	assert.Equal(t, "Zoom does not appear to be running", CameraText("Zoom", CameraTargetNotRunning))
	assert.Equal(t, "Error sampling", CameraText("Zoom", CameraSamplingError))
	assert.Equal(t, "Screen sharing", ScreenShareText(ScreenShareActive))
	assert.Equal(t, "Not screen sharing", ScreenShareText(ScreenShareInactive))
}

func TestSnapshotJSON(t *testing.T) {
	data, err := json.Marshal(Snapshot{
		Camera:       CameraTargetNotRunning,
		ScreenShare:  ScreenShareInactive,
		Process:      PresenceNotRunning,
		Multiplicity: MultiplicityNotRunning,
	})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "target_not_running", got["camera"])
	assert.Equal(t, "inactive", got["screenShare"])
	assert.Equal(t, "not_running", got["process"])
	assert.NotContains(t, got, "warning")
}

type countOnly int

func (c countOnly) Count(context.Context, string) int { return int(c) }

type oneShotFinder struct{}

func (oneShotFinder) PIDs(_ context.Context, id string) []int32 {
	if id == "zoom.us" {
		return []int32{10}
	}
	return nil
}

type grepExit int

func (g grepExit) Run(_ context.Context, name string, _ ...string) (shell.Result, error) {
	if name == "grep" {
		return shell.Result{ExitCode: int(g)}, nil
	}
	return shell.Result{}, nil
}

func TestSystemProbes(t *testing.T) {
	tools := sampler.Tools{Sample: "sample", Grep: "grep"}
	cam := sampler.New(sampler.Target{Channel: "camera", Process: "zoom.us", Sentinel: "x", ScratchFile: "/tmp/a", Duration: time.Millisecond},
		tools, oneShotFinder{}, grepExit(0))
	share := sampler.New(sampler.Target{Channel: "screen_share", Process: "CptHost", Sentinel: "y", ScratchFile: "/tmp/b", Duration: time.Millisecond},
		tools, oneShotFinder{}, grepExit(0))
	p := NewSystemProbes(cam, share, countOnly(2), "zoom.us")

	ctx := context.Background()
	assert.Equal(t, CameraActive, p.Camera(ctx))
	s, ok := p.ScreenShare(ctx)
	assert.True(t, ok)
	assert.Equal(t, ScreenShareInactive, s, "helper process absent means not sharing")
	assert.Equal(t, 2, p.ProcessCount(ctx))
}

func TestInitialSnapshotMatchesNewReactor(t *testing.T) {
	r := New(Options{Name: "Zoom"}, &settableProbes{}, &recordingActions{}, nil)
	got := r.Snapshot()
	want := InitialSnapshot("Zoom")
	assert.Equal(t, want.Status, got.Status)
	assert.Equal(t, want.ScreenSharingStatus, got.ScreenSharingStatus)
	assert.Equal(t, "No result", want.Status)
}
