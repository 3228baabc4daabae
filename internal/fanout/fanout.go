// Package fanout drains registry.Effects outside the registry's lock
// (§5), delivering broadcasts to the user audience and unicasts to a
// single connection through whatever transport implements Sender.
package fanout

import (
	"context"
	"log/slog"

	"github.com/example/fleetrelay/internal/audit"
	"github.com/example/fleetrelay/internal/models"
	"github.com/example/fleetrelay/internal/observability"
	"github.com/example/fleetrelay/internal/protocol"
	"github.com/example/fleetrelay/internal/registry"
)

// Sender is the narrow transport surface fanout needs. A send error is
// treated as a dead connection, never as a fatal error for the fan-out
// as a whole (§7 "Fan-out failure handling").
type Sender interface {
	Send(handle models.ConnHandle, message []byte) error
	Close(handle models.ConnHandle, reason string)
}

type Fanout struct {
	reg    *registry.Registry
	sender Sender
	logger *slog.Logger
	audit  audit.Sink
}

func New(reg *registry.Registry, sender Sender, logger *slog.Logger) *Fanout {
	return &Fanout{reg: reg, sender: sender, logger: logger, audit: audit.NoopSink{}}
}

// WithAuditSink attaches the optional durable lifecycle log.
func (f *Fanout) WithAuditSink(sink audit.Sink) *Fanout {
	f.audit = sink
	return f
}

// SetSender binds the transport that effects are actually delivered
// through. It exists because the transport manager and the fanout that
// drains its writes are constructed as a pair with a cyclic reference:
// the manager needs a Deliverer, the fanout needs a Sender.
func (f *Fanout) SetSender(sender Sender) {
	f.sender = sender
}

// Deliver publishes every broadcast, unicast, and close instruction in
// eff. A send failure against any single recipient triggers Unbind for
// that recipient and recurses on whatever effects that produces, but
// never interrupts delivery to the rest of the audience.
func (f *Fanout) Deliver(eff registry.Effects) {
	for _, b := range eff.Broadcasts {
		msg, err := protocol.Encode(b.Event, b.Payload)
		if err != nil {
			f.logger.Error("encode broadcast payload", "event", b.Event, "error", err)
			continue
		}
		observability.BroadcastsTotal.WithLabelValues(b.Event).Inc()
		if b.Event == protocol.EventDriverRemoved {
			f.recordDriverRemoved(b.Payload)
		}
		for _, handle := range f.reg.LiveUserHandles() {
			f.sendOrUnbind(handle, msg)
		}
	}

	for _, u := range eff.Unicasts {
		msg, err := protocol.Encode(u.Event, u.Payload)
		if err != nil {
			f.logger.Error("encode unicast payload", "event", u.Event, "error", err)
			continue
		}
		observability.UnicastsTotal.WithLabelValues(u.Event).Inc()
		f.sendOrUnbind(u.Handle, msg)
	}

	for _, c := range eff.Closes {
		f.sender.Close(c.Handle, c.Reason)
	}
}

func (f *Fanout) recordDriverRemoved(payload any) {
	p, ok := payload.(protocol.DriverRemovedPayload)
	if !ok {
		return
	}
	if err := f.audit.Record(context.Background(), audit.Event{
		Kind:      "driverRemoved",
		AccountID: p.AccountID,
		At:        p.Timestamp,
	}); err != nil {
		f.logger.Debug("audit record failed", "error", err)
	}
}

func (f *Fanout) sendOrUnbind(handle models.ConnHandle, msg []byte) {
	if err := f.sender.Send(handle, msg); err != nil {
		f.logger.Debug("dead subscriber, unbinding", "handle", handle, "error", err)
		f.Deliver(f.reg.Unbind(handle))
	}
}
