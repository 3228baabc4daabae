package reaper

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/example/fleetrelay/internal/clock"
	"github.com/example/fleetrelay/internal/fanout"
	"github.com/example/fleetrelay/internal/models"
	"github.com/example/fleetrelay/internal/ratelimit"
	"github.com/example/fleetrelay/internal/registry"
)

type noopSender struct{}

func (noopSender) Send(models.ConnHandle, []byte) error { return nil }
func (noopSender) Close(models.ConnHandle, string)      {}

type fakeLiveness struct {
	live map[models.ConnHandle]bool
}

func (f fakeLiveness) IsLive(h models.ConnHandle) bool { return f.live[h] }

func newTestReaper(live map[models.ConnHandle]bool) (*Reaper, *registry.Registry, *clock.Fake) {
	c := clock.NewFake(time.Now())
	reg := registry.New(c, false)
	gate := ratelimit.New(60, time.Minute, c)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fan := fanout.New(reg, noopSender{}, logger)
	rp := New(reg, gate, fan, fakeLiveness{live: live}, c, logger, time.Second, 5*time.Minute, time.Minute)
	return rp, reg, c
}

func TestTickReconcilesDeadConnections(t *testing.T) {
	rp, reg, _ := newTestReaper(map[models.ConnHandle]bool{})
	reg.Register("h1", models.RoleDriver, "d1")

	rp.tick()

	if _, err := reg.BusInfo("d1"); err != nil {
		t.Fatal("expected driver record to survive reconcile, only its connection drops")
	}
	if n := reg.LiveDriverCount(); n != 0 {
		t.Fatalf("expected driver to be marked disconnected, got %d live", n)
	}
}

func TestTickSweepsStalePastGrace(t *testing.T) {
	rp, reg, c := newTestReaper(map[models.ConnHandle]bool{"h1": true})
	reg.Register("h1", models.RoleDriver, "d1")
	reg.ApplyLocationUpdate("h1", "d1", 1, 2, nil, nil, nil, nil, nil, nil, 0.0001, 30*time.Second)
	reg.Unbind("h1")

	c.Advance(10 * time.Minute)
	rp.tick()

	if _, err := reg.BusInfo("d1"); err == nil {
		t.Fatal("expected stale driver past grace to be purged")
	}
}

func TestTickSweepsExpiredRateBuckets(t *testing.T) {
	rp, _, c := newTestReaper(map[models.ConnHandle]bool{})
	rp.gate.Allow("h1")
	c.Advance(2 * time.Minute)
	rp.tick()
	if n := rp.gate.Len(); n != 0 {
		t.Fatalf("expected the expired bucket to be swept, got %d remaining", n)
	}
}
