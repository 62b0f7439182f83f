package reactor

import "encoding/json"

// CameraState is the camera channel's classification.
type CameraState int

const (
	CameraUnknown CameraState = iota
	CameraActive
	CameraInactive
	CameraTargetNotRunning
	CameraSamplingError
)

var cameraNames = map[CameraState]string{
	CameraUnknown:          "unknown",
	CameraActive:           "active",
	CameraInactive:         "inactive",
	CameraTargetNotRunning: "target_not_running",
	CameraSamplingError:    "sampling_error",
}

func (s CameraState) String() string {
	if n, ok := cameraNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s CameraState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// ScreenShareState is the screen-share channel's classification. There is
// no error state: an inconclusive sample leaves the channel untouched.
type ScreenShareState int

const (
	ScreenShareUnknown ScreenShareState = iota
	ScreenShareActive
	ScreenShareInactive
)

var screenShareNames = map[ScreenShareState]string{
	ScreenShareUnknown:  "unknown",
	ScreenShareActive:   "active",
	ScreenShareInactive: "inactive",
}

func (s ScreenShareState) String() string {
	if n, ok := screenShareNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s ScreenShareState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Presence is whether the target application has any running process.
type Presence int

const (
	PresenceUnknown Presence = iota
	PresenceRunning
	PresenceNotRunning
)

var presenceNames = map[Presence]string{
	PresenceUnknown:    "unknown",
	PresenceRunning:    "running",
	PresenceNotRunning: "not_running",
}

func (p Presence) String() string {
	if n, ok := presenceNames[p]; ok {
		return n
	}
	return "unknown"
}

func (p Presence) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// Multiplicity is how many instances of the target are running.
type Multiplicity int

const (
	MultiplicityUnknown Multiplicity = iota
	MultiplicityNotRunning
	MultiplicitySingle
	MultiplicityMultiple
)

var multiplicityNames = map[Multiplicity]string{
	MultiplicityUnknown:    "unknown",
	MultiplicityNotRunning: "not_running",
	MultiplicitySingle:     "single",
	MultiplicityMultiple:   "multiple",
}

func (m Multiplicity) String() string {
	if n, ok := multiplicityNames[m]; ok {
		return n
	}
	return "unknown"
}

func (m Multiplicity) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// PresenceFromCount derives the presence channel from a process count.
func PresenceFromCount(n int) Presence {
	if n > 0 {
		return PresenceRunning
	}
	return PresenceNotRunning
}

// MultiplicityFromCount derives the multiplicity channel from a process count.
func MultiplicityFromCount(n int) Multiplicity {
	switch {
	case n <= 0:
		return MultiplicityNotRunning
	case n == 1:
		return MultiplicitySingle
	default:
		return MultiplicityMultiple
	}
}

// state is everything the reactor remembers between ticks. Only the update
// goroutine reads or writes it.
type state struct {
	camera       CameraState
	screenShare  ScreenShareState
	presence     Presence
	multiplicity Multiplicity
	warned       bool
}

// observe stores next in *held and reports whether the change should fire
// actions. Leaving unknown only records a baseline; an unchanged value does
// nothing.
func observe[T comparable](held *T, next, unknown T) (changed, fire bool) {
	prev := *held
	if next == prev {
		return false, false
	}
	*held = next
	return true, prev != unknown
}
