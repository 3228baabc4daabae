package filter

import (
	"testing"
	"time"
)

func TestShouldBroadcastLocation_FirstUpdate(t *testing.T) {
	if !ShouldBroadcastLocation(LocationParams{Existed: false}) {
		t.Fatal("expected broadcast on first update")
	}
}

func TestShouldBroadcastLocation_HeartbeatWhileStationary(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := LocationParams{
		Existed:              true,
		HasBroadcastAnchor:   true,
		LastBroadcastLat:     14.5000,
		LastBroadcastLng:     121.0000,
		LastBroadcastAt:      base,
		NewLat:               14.5000,
		NewLng:               121.0000,
		Now:                  base.Add(5 * time.Second),
		MovementThresholdDeg: 0.0001,
		HeartbeatInterval:    16 * time.Second,
	}
	if ShouldBroadcastLocation(p) {
		t.Fatal("expected no broadcast at t=5s")
	}
	p.Now = base.Add(10 * time.Second)
	if ShouldBroadcastLocation(p) {
		t.Fatal("expected no broadcast at t=10s")
	}
	p.Now = base.Add(16 * time.Second)
	if !ShouldBroadcastLocation(p) {
		t.Fatal("expected forced heartbeat broadcast at t=16s")
	}
}

func TestShouldBroadcastLocation_MovementAboveThreshold(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := LocationParams{
		Existed:              true,
		HasBroadcastAnchor:   true,
		LastBroadcastLat:     14.5000,
		LastBroadcastLng:     121.0000,
		LastBroadcastAt:      base,
		NewLat:               14.5002,
		NewLng:               121.0000,
		Now:                  base.Add(3 * time.Second),
		MovementThresholdDeg: 0.0001,
		HeartbeatInterval:    30 * time.Second,
	}
	if !ShouldBroadcastLocation(p) {
		t.Fatal("expected broadcast for movement above threshold")
	}
}

func TestShouldBroadcastLocation_MovementBelowThresholdNoBroadcast(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := LocationParams{
		Existed:              true,
		HasBroadcastAnchor:   true,
		LastBroadcastLat:     14.5000,
		LastBroadcastLng:     121.0000,
		LastBroadcastAt:      base,
		NewLat:               14.50001,
		NewLng:               121.0000,
		Now:                  base.Add(1 * time.Second),
		MovementThresholdDeg: 0.0001,
		HeartbeatInterval:    30 * time.Second,
	}
	if ShouldBroadcastLocation(p) {
		t.Fatal("expected no broadcast for movement below threshold")
	}
}

func TestShouldBroadcastPassenger_UnchangedNoBroadcast(t *testing.T) {
	if ShouldBroadcastPassenger(true, 3, 20, 3, 20, true, true) {
		t.Fatal("expected no broadcast for identical passengerUpdate replay")
	}
}

func TestShouldBroadcastPassenger_ChangedBroadcasts(t *testing.T) {
	if !ShouldBroadcastPassenger(true, 3, 20, 4, 20, true, false) {
		t.Fatal("expected broadcast when passengerCount changes")
	}
}

func TestShouldBroadcastRoute_IdenticalGeometryNoBroadcast(t *testing.T) {
	if ShouldBroadcastRoute(true, true, `{"a":1}`, `{"a":1}`, false, 0, 0, false, 0, 0) {
		t.Fatal("expected no broadcast for identical geometry replay")
	}
}

func TestShouldBroadcastRoute_ChangedGeometryBroadcasts(t *testing.T) {
	if !ShouldBroadcastRoute(true, true, `{"a":1}`, `{"a":2}`, false, 0, 0, false, 0, 0) {
		t.Fatal("expected broadcast for changed geometry")
	}
}

func TestShouldBroadcastDestination_AlwaysTrue(t *testing.T) {
	if !ShouldBroadcastDestination() {
		t.Fatal("destinationUpdate must always broadcast")
	}
}
