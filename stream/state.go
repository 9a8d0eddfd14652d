package stream

// State is the lifecycle state of a Loop.
type State int32

const (
	// StateIdle is the state of a loop that has not been started.
	StateIdle State = iota
	// StateRequestingFrame means the loop is waiting on its frame provider.
	StateRequestingFrame
	// StateProcessing means a frame is being detected and rendered.
	StateProcessing
	// StateWaitingForNextTick means the loop is sleeping until the next tick.
	StateWaitingForNextTick
	// StateStopped is terminal.
	StateStopped
)

var stateNames = [...]string{
	StateIdle:               "idle",
	StateRequestingFrame:    "requesting-frame",
	StateProcessing:         "processing",
	StateWaitingForNextTick: "waiting-for-next-tick",
	StateStopped:            "stopped",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
