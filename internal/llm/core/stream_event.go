package core

import "context"

// SendEvent delivers one event to the stream, giving up when the
// caller's context ends first.
func SendEvent(ctx context.Context, events chan<- Event, event Event) error {
	select {
	case events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendTerminalEvent makes a best-effort delivery of a stream-ending
// event. It never blocks: when the consumer has stopped reading and
// the buffer is full, the event is dropped and false is returned.
// Producers size their channels with at least one slot so the normal
// path always lands.
func SendTerminalEvent(events chan<- Event, event Event) bool {
	select {
	case events <- event:
		return true
	default:
		return false
	}
}
