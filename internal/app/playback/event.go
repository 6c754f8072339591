package playback

import "github.com/osa030/wavbox/internal/domain/track"

// EventType represents a playback event type.
type EventType int

const (
	EventTrackStarted      EventType = iota // A track was opened by a control operation
	EventTrackAdvanced                      // The previous track ran out and the next one started
	EventStateChanged                       // Lifecycle state changed
	EventPlaylistExhausted                  // Automatic advance found no next track
	EventHardwareFault                      // Transport or codec failure stopped the track
	EventLibraryChanged                     // Track files were added or removed
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackStarted:
		return "track_started"
	case EventTrackAdvanced:
		return "track_advanced"
	case EventStateChanged:
		return "state_changed"
	case EventPlaylistExhausted:
		return "playlist_exhausted"
	case EventHardwareFault:
		return "hardware_fault"
	case EventLibraryChanged:
		return "library_changed"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type   EventType
	Track  *track.Info // Current track (nil for some events)
	State  State       // Lifecycle state after the event
	Detail string      // Error text or changed file name
}
