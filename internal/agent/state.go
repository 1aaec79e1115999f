package agent

// State tracks where a session is in its turn cycle. It exists for
// observability; transitions are driven entirely by the run loop.
type State string

const (
	StateIdle           State = "idle"
	StateAwaitingModel  State = "awaiting_model"
	StateStreamingDelta State = "streaming_delta"
	StateDeciding       State = "deciding_next_step"
	StateExecutingTools State = "executing_tools"
	StateDone           State = "done"
	StateFailed         State = "failed"
)
