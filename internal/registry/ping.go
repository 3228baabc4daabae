// Implements the ping subsystem (§4.7): unicast user->driver flagging.
package registry

import (
	"github.com/example/fleetrelay/internal/models"
	"github.com/example/fleetrelay/internal/observability"
	"github.com/example/fleetrelay/internal/protocol"
)

// PingDriver implements pingDriver: stores the user's location, records
// a waiting-passenger entry on the driver, and unicasts pingReceived to
// that one driver's connection — never broadcast (§8 invariant 6).
func (r *Registry) PingDriver(userAccountID models.AccountID, driverAccountID models.AccountID, lat, lng float64, passengerCount int) (Effects, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var eff Effects
	now := r.clock.Now()

	d, ok := r.drivers[driverAccountID]
	if !ok {
		return eff, errNotFound("driver %q not found", driverAccountID)
	}
	if !d.IsLive() {
		return eff, errUnavailable("driver %q is not currently connected", driverAccountID)
	}

	if u, ok := r.users[userAccountID]; ok {
		u.Lat, u.Lng = lat, lng
		u.HasLocation = true
	}

	d.WaitingPassengers[userAccountID] = models.WaitingPassenger{
		UserAccountID:  userAccountID,
		Lat:            lat,
		Lng:            lng,
		RequestedCount: passengerCount,
		PingedAt:       now,
	}

	eff.unicast(d.ConnectionHandle, protocol.EventPingReceived, protocol.PingReceivedPayload{
		UserAccountID:  string(userAccountID),
		Lat:            lat,
		Lng:            lng,
		PassengerCount: passengerCount,
		Timestamp:      now,
	})
	observability.PingsRoutedTotal.Inc()
	return eff, nil
}

// UnpingDriver implements unpingDriver: removes the waiting-passenger
// entry and unicasts pingRemoved to the driver.
func (r *Registry) UnpingDriver(userAccountID models.AccountID, driverAccountID models.AccountID) (Effects, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var eff Effects
	d, ok := r.drivers[driverAccountID]
	if !ok {
		return eff, errNotFound("driver %q not found", driverAccountID)
	}
	delete(d.WaitingPassengers, userAccountID)

	if d.IsLive() {
		eff.unicast(d.ConnectionHandle, protocol.EventPingRemoved, protocol.PingRemovedPayload{
			UserAccountID: string(userAccountID),
			Timestamp:     r.clock.Now(),
		})
	}
	return eff, nil
}

// pruneWaitingPassengerLocked removes userAccountID's waiting entry from
// every driver's table (called on user disconnect, §4.7) and unicasts
// pingRemoved with the given reason to each affected live driver. The
// caller must already hold r.mu.
func (r *Registry) pruneWaitingPassengerLocked(userAccountID models.AccountID, reason string) Effects {
	var eff Effects
	now := r.clock.Now()
	for _, d := range r.drivers {
		if _, ok := d.WaitingPassengers[userAccountID]; !ok {
			continue
		}
		delete(d.WaitingPassengers, userAccountID)
		if d.IsLive() {
			eff.unicast(d.ConnectionHandle, protocol.EventPingRemoved, protocol.PingRemovedPayload{
				UserAccountID: string(userAccountID),
				Timestamp:     now,
				Reason:        reason,
			})
		}
	}
	return eff
}
