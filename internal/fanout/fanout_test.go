package fanout

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/example/fleetrelay/internal/audit"
	"github.com/example/fleetrelay/internal/clock"
	"github.com/example/fleetrelay/internal/models"
	"github.com/example/fleetrelay/internal/protocol"
	"github.com/example/fleetrelay/internal/registry"
)

type fakeSender struct {
	sent   map[models.ConnHandle][][]byte
	closed map[models.ConnHandle]string
	failOn models.ConnHandle
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: make(map[models.ConnHandle][][]byte), closed: make(map[models.ConnHandle]string)}
}

func (f *fakeSender) Send(handle models.ConnHandle, message []byte) error {
	if handle == f.failOn {
		return errors.New("dead connection")
	}
	f.sent[handle] = append(f.sent[handle], message)
	return nil
}

func (f *fakeSender) Close(handle models.ConnHandle, reason string) {
	f.closed[handle] = reason
}

func newTestFanout() (*Fanout, *registry.Registry, *fakeSender) {
	c := clock.NewFake(time.Now())
	reg := registry.New(c, false)
	sender := newFakeSender()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(reg, sender, logger), reg, sender
}

func TestDeliverUnicastSendsToOneHandle(t *testing.T) {
	fan, _, sender := newTestFanout()
	fan.Deliver(registry.Effects{Unicasts: []registry.Unicast{
		{Handle: "h1", Event: protocol.EventSessionAssigned, Payload: protocol.SessionAssignedPayload{SessionKey: "k1"}},
	}})
	if len(sender.sent["h1"]) != 1 {
		t.Fatalf("expected one message sent to h1, got %d", len(sender.sent["h1"]))
	}
}

func TestDeliverBroadcastReachesEveryLiveUser(t *testing.T) {
	fan, reg, sender := newTestFanout()
	reg.Register("u1", models.RoleUser, "acc1")
	reg.Register("u2", models.RoleUser, "acc2")

	fan.Deliver(registry.Effects{Broadcasts: []registry.Broadcast{
		{Event: protocol.EventDriverRemoved, Payload: protocol.DriverRemovedPayload{AccountID: "d1"}},
	}})

	if len(sender.sent["u1"]) != 1 || len(sender.sent["u2"]) != 1 {
		t.Fatalf("expected both users to receive the broadcast, got %+v", sender.sent)
	}
}

func TestDeliverUnbindsOnSendFailure(t *testing.T) {
	fan, reg, sender := newTestFanout()
	reg.Register("u1", models.RoleUser, "acc1")
	sender.failOn = "u1"

	fan.Deliver(registry.Effects{Broadcasts: []registry.Broadcast{
		{Event: protocol.EventDriverRemoved, Payload: protocol.DriverRemovedPayload{AccountID: "d1"}},
	}})

	if handles := reg.LiveUserHandles(); len(handles) != 0 {
		t.Fatalf("expected u1 to be unbound after a send failure, got %v", handles)
	}
}

func TestDeliverCloseInvokesSenderClose(t *testing.T) {
	fan, _, sender := newTestFanout()
	fan.Deliver(registry.Effects{Closes: []registry.Close{{Handle: "h1", Reason: "bye"}}})
	if reason, ok := sender.closed["h1"]; !ok || reason != "bye" {
		t.Fatalf("expected h1 closed with reason bye, got %v %v", reason, ok)
	}
}

type recordingSink struct {
	events []audit.Event
}

func (s *recordingSink) Record(ctx context.Context, ev audit.Event) error {
	s.events = append(s.events, ev)
	return nil
}

func TestDriverRemovedBroadcastIsAudited(t *testing.T) {
	fan, _, _ := newTestFanout()
	sink := &recordingSink{}
	fan.WithAuditSink(sink)

	fan.Deliver(registry.Effects{Broadcasts: []registry.Broadcast{
		{Event: protocol.EventDriverRemoved, Payload: protocol.DriverRemovedPayload{AccountID: "d1"}},
	}})

	if len(sink.events) != 1 || sink.events[0].AccountID != "d1" {
		t.Fatalf("expected one audit record for d1, got %+v", sink.events)
	}
}

func TestNonDriverRemovedBroadcastIsNotAudited(t *testing.T) {
	fan, _, _ := newTestFanout()
	sink := &recordingSink{}
	fan.WithAuditSink(sink)

	fan.Deliver(registry.Effects{Broadcasts: []registry.Broadcast{
		{Event: protocol.EventLocationUpdate, Payload: protocol.LocationUpdatePayload{AccountID: "d1"}},
	}})

	if len(sink.events) != 0 {
		t.Fatalf("expected no audit records for a locationUpdate broadcast, got %+v", sink.events)
	}
}
