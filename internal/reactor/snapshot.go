package reactor

import (
	"fmt"
	"time"
)

// Snapshot is an immutable copy of the reactor's state plus the text the UI
// layer displays for it.
type Snapshot struct {
	Camera              CameraState      `json:"camera"`
	ScreenShare         ScreenShareState `json:"screenShare"`
	Process             Presence         `json:"process"`
	Multiplicity        Multiplicity     `json:"multiplicity"`
	Status              string           `json:"status"`
	ScreenSharingStatus string           `json:"screenSharingStatus"`
	Warning             string           `json:"warning,omitempty"`
	Running             bool             `json:"running"`
	Ticks               uint64           `json:"ticks"`
	UpdatedAt           time.Time        `json:"updatedAt"`
}

// buildSnapshot must run on the update goroutine, or before Start.
func (r *Reactor) buildSnapshot() Snapshot {
	s := Snapshot{
		Camera:              r.st.camera,
		ScreenShare:         r.st.screenShare,
		Process:             r.st.presence,
		Multiplicity:        r.st.multiplicity,
		Status:              CameraText(r.opts.Name, r.st.camera),
		ScreenSharingStatus: ScreenShareText(r.st.screenShare),
		Ticks:               r.ticks.Load(),
		UpdatedAt:           time.Now(),
	}
	if r.st.warned {
		s.Warning = multipleInstancesText(r.opts.Name)
	}
	return s
}

// InitialSnapshot is what a reactor for the named target reports before its
// first observation.
func InitialSnapshot(name string) Snapshot {
	return Snapshot{
		Status:              CameraText(name, CameraUnknown),
		ScreenSharingStatus: ScreenShareText(ScreenShareUnknown),
		UpdatedAt:           time.Now(),
	}
}

// CameraText is the human-readable camera status. It is never empty.
func CameraText(name string, s CameraState) string {
	switch s {
	case CameraActive:
		return fmt.Sprintf("%s is USING the camera", name)
	case CameraInactive:
		return fmt.Sprintf("%s is NOT USING the camera", name)
	case CameraTargetNotRunning:
		return fmt.Sprintf("%s does not appear to be running", name)
	case CameraSamplingError:
		return "Error sampling"
	default:
		return "No result"
	}
}

// ScreenShareText is the human-readable screen-sharing status.
func ScreenShareText(s ScreenShareState) string {
	switch s {
	case ScreenShareActive:
		return "Screen sharing"
	case ScreenShareInactive:
		return "Not screen sharing"
	default:
		return "No result"
	}
}

func multipleInstancesText(name string) string {
	return fmt.Sprintf("Multiple instances of %s are running; only the first one is sampled", name)
}
