package engine

import "fmt"

// State is the connection state of the session core.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnectedPendingRetry
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnectedPendingRetry:
		return "disconnected_pending_retry"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}
