package playback

// TrackEventType classifies how a streaming track came to an end.
type TrackEventType int

const (
	TrackEnded  TrackEventType = iota // Natural end of stream
	TrackFailed                       // Mid-stream transport or decode error
)

// String returns the string representation of the event type.
func (t TrackEventType) String() string {
	switch t {
	case TrackEnded:
		return "track_ended"
	case TrackFailed:
		return "track_failed"
	default:
		return "unknown"
	}
}

// TrackEvent is emitted by a voice connection when the current stream
// stops on its own. A commanded Stop never produces an event.
type TrackEvent struct {
	Type TrackEventType
	Err  error // Set for TrackFailed
}
