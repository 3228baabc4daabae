// Package filter implements the update filter (§4.3): the decision of
// whether a driver's newly received update is worth fanning out, versus
// merely being absorbed into the stored record.
package filter

import (
	"time"

	"github.com/example/fleetrelay/internal/geo"
)

// LocationParams bundles the prior broadcast anchor and the tunables
// the location decision depends on.
type LocationParams struct {
	Existed             bool
	HasBroadcastAnchor  bool
	LastBroadcastLat    float64
	LastBroadcastLng    float64
	LastBroadcastAt     time.Time
	NewLat, NewLng      float64
	PayloadChanged      bool
	Now                 time.Time
	MovementThresholdDeg float64
	HeartbeatInterval   time.Duration
}

// ShouldBroadcastLocation implements §4.3 rules 1-4 for updateLocation:
// first update, movement past threshold, payload delta, or a forced
// heartbeat. Rules are evaluated in the order the spec lists them but
// the result is the same short-circuit OR regardless of order.
func ShouldBroadcastLocation(p LocationParams) bool {
	if !p.Existed {
		return true
	}
	if !p.HasBroadcastAnchor {
		return true
	}
	if geo.PlanarDistance(p.NewLat, p.NewLng, p.LastBroadcastLat, p.LastBroadcastLng) > p.MovementThresholdDeg {
		return true
	}
	if p.PayloadChanged {
		return true
	}
	if p.Now.Sub(p.LastBroadcastAt) >= p.HeartbeatInterval {
		return true
	}
	return false
}

// ShouldBroadcastRoute implements the routeUpdate rule: broadcast only
// on a change to the canonically-serialized geometry or destination.
func ShouldBroadcastRoute(existed, hadRoute bool, priorGeometry, newGeometry string, priorHasDestination bool, priorDestLat, priorDestLng float64, newHasDestination bool, newDestLat, newDestLng float64) bool {
	if !existed || !hadRoute {
		return true
	}
	if priorGeometry != newGeometry {
		return true
	}
	if priorHasDestination != newHasDestination {
		return true
	}
	if newHasDestination && (priorDestLat != newDestLat || priorDestLng != newDestLng) {
		return true
	}
	return false
}

// ShouldBroadcastPassenger implements the passengerUpdate rule:
// broadcast only if a supplied field differs from the prior record.
func ShouldBroadcastPassenger(existed bool, priorCount, priorMax int, newCount, newMax int, countSupplied, maxSupplied bool) bool {
	if !existed {
		return true
	}
	if countSupplied && newCount != priorCount {
		return true
	}
	if maxSupplied && newMax != priorMax {
		return true
	}
	return false
}

// ShouldBroadcastDestination implements the destinationUpdate rule:
// always broadcast (§4.3).
func ShouldBroadcastDestination() bool {
	return true
}
