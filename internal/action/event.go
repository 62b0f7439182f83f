package action

import "path/filepath"

// Event is a lifecycle moment a user script can hook.
type Event int

const (
	AppStarted Event = iota
	AppEnded
	CameraEnabled
	CameraDisabled
	ScreenSharingStarted
	ScreenSharingEnded
)

// Events lists every Event in declaration order.
var Events = []Event{
	AppStarted,
	AppEnded,
	CameraEnabled,
	CameraDisabled,
	ScreenSharingStarted,
	ScreenSharingEnded,
}

var eventNames = map[Event]string{
	AppStarted:           "app_started",
	AppEnded:             "app_ended",
	CameraEnabled:        "camera_enabled",
	CameraDisabled:       "camera_disabled",
	ScreenSharingStarted: "screen_sharing_started",
	ScreenSharingEnded:   "screen_sharing_ended",
}

func (e Event) String() string {
	if s, ok := eventNames[e]; ok {
		return s
	}
	return "unknown"
}

// ScriptName is the file name of the event's script.
func (e Event) ScriptName() string {
	return e.String() + ".sh"
}

// ScriptPath returns the event's script path inside dir.
func (e Event) ScriptPath(dir string) string {
	return filepath.Join(dir, e.ScriptName())
}
