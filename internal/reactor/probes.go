package reactor

import (
	"context"

	"github.com/camwatch/camwatch/internal/metrics"
	"github.com/camwatch/camwatch/internal/probe"
	"github.com/camwatch/camwatch/internal/sampler"
)

// Probes produce one fresh classification per channel per call. Each method
// may block for the length of an external tool run.
type Probes interface {
	Camera(ctx context.Context) CameraState
	// ScreenShare returns ok=false when the sample was inconclusive; the
	// channel is then left unchanged for the tick.
	ScreenShare(ctx context.Context) (ScreenShareState, bool)
	ProcessCount(ctx context.Context) int
}

// ProcessCounter counts processes matching an identifier.
type ProcessCounter interface {
	Count(ctx context.Context, identifier string) int
}

// SystemProbes answers Probes from the process table and the two samplers.
type SystemProbes struct {
	camera      *sampler.Sampler
	screenShare *sampler.Sampler
	processes   ProcessCounter
	process     string
}

func NewSystemProbes(camera, screenShare *sampler.Sampler, processes ProcessCounter, process string) *SystemProbes {
	return &SystemProbes{
		camera:      camera,
		screenShare: screenShare,
		processes:   processes,
		process:     process,
	}
}

func (p *SystemProbes) Camera(ctx context.Context) CameraState {
	out := p.camera.Sample(ctx)
	metrics.RecordSample("camera", out.String())
	return CameraFromOutcome(out)
}

func (p *SystemProbes) ScreenShare(ctx context.Context) (ScreenShareState, bool) {
	out := p.screenShare.Sample(ctx)
	metrics.RecordSample("screen_share", out.String())
	return ScreenShareFromOutcome(out)
}

func (p *SystemProbes) ProcessCount(ctx context.Context) int {
	return p.processes.Count(ctx, p.process)
}

// CameraFromOutcome maps a sample to the camera channel.
func CameraFromOutcome(o sampler.Outcome) CameraState {
	switch o {
	case sampler.OutcomeMatch:
		return CameraActive
	case sampler.OutcomeNoMatch:
		return CameraInactive
	case sampler.OutcomeTargetMissing:
		return CameraTargetNotRunning
	default:
		return CameraSamplingError
	}
}

// ScreenShareFromOutcome maps a sample to the screen-share channel. The
// sharing helper only exists during a share, so a missing target means not
// sharing. Errors are inconclusive.
func ScreenShareFromOutcome(o sampler.Outcome) (ScreenShareState, bool) {
	switch o {
	case sampler.OutcomeMatch:
		return ScreenShareActive, true
	case sampler.OutcomeNoMatch, sampler.OutcomeTargetMissing:
		return ScreenShareInactive, true
	default:
		return ScreenShareUnknown, false
	}
}

var _ ProcessCounter = (*probe.ProcessTable)(nil)
