package registry

import "github.com/example/fleetrelay/internal/models"

// Broadcast is a fan-out to every connection currently in the user role.
type Broadcast struct {
	Event   string
	Payload any
}

// Unicast targets exactly one connection handle.
type Unicast struct {
	Handle  models.ConnHandle
	Event   string
	Payload any
}

// Close asks the transport to terminate a connection, optionally after
// a courtesy message has already been queued as a Unicast to the same
// handle (e.g. connectionReplaced before Preempt closes the link).
type Close struct {
	Handle models.ConnHandle
	Reason string
}

// Effects accumulates the side effects a registry mutation needs to
// have delivered outside the registry's lock (§5: "fan-out is released
// outside the critical section"). Callers drain it via a fanout.Sender.
type Effects struct {
	Broadcasts []Broadcast
	Unicasts   []Unicast
	Closes     []Close
}

func (e *Effects) broadcast(event string, payload any) {
	e.Broadcasts = append(e.Broadcasts, Broadcast{Event: event, Payload: payload})
}

func (e *Effects) unicast(handle models.ConnHandle, event string, payload any) {
	if handle == "" {
		return
	}
	e.Unicasts = append(e.Unicasts, Unicast{Handle: handle, Event: event, Payload: payload})
}

func (e *Effects) close(handle models.ConnHandle, reason string) {
	if handle == "" {
		return
	}
	e.Closes = append(e.Closes, Close{Handle: handle, Reason: reason})
}

func (e *Effects) merge(other Effects) {
	e.Broadcasts = append(e.Broadcasts, other.Broadcasts...)
	e.Unicasts = append(e.Unicasts, other.Unicasts...)
	e.Closes = append(e.Closes, other.Closes...)
}

// IsEmpty reports whether there is nothing to deliver.
func (e Effects) IsEmpty() bool {
	return len(e.Broadcasts) == 0 && len(e.Unicasts) == 0 && len(e.Closes) == 0
}
