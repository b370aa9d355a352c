package session

// State represents the voice session state.
type State int

const (
	StateIdle          State = iota // Connected or not, nothing playing
	StateConnecting                 // Voice transport is being established
	StatePlaying                    // Track is streaming
	StatePaused                     // Track is paused mid-stream
	StateDisconnecting              // Transport is being released, session is going away
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}
