// Implements the driver state machine (§4.4) merges and the update
// filter integration (§4.3) for each driver-originated event kind.
package registry

import (
	"encoding/json"
	"time"

	"github.com/example/fleetrelay/internal/filter"
	"github.com/example/fleetrelay/internal/models"
	"github.com/example/fleetrelay/internal/protocol"
)

// resolveDriverForUpdateLocked fetches or creates the driver record for
// accountID, binding it to handle. If handle was registered without an
// account id (§9 open question — driver identity arriving with the
// first update), the binding happens here, preempting any incumbent
// for that account first. Caller must hold r.mu.
func (r *Registry) resolveDriverForUpdateLocked(handle models.ConnHandle, accountID models.AccountID) (*models.Driver, bool, Effects, error) {
	var eff Effects
	if accountID == "" {
		return nil, false, eff, errValidation("accountId is required")
	}

	bound, hasBound := r.connAccount[handle]
	if hasBound && bound != accountID {
		return nil, false, eff, errValidation("accountId %q does not match the registered connection", accountID)
	}
	if !hasBound {
		if incumbent, ok := r.driverConn[accountID]; ok && incumbent != handle {
			eff.merge(r.preemptLocked(incumbent, "replaced by a new connection for this account"))
		}
		r.connAccount[handle] = accountID
		r.driverConn[accountID] = handle
		if key, ok := r.connSession[handle]; ok {
			if sess, ok := r.sessions[key]; ok {
				sess.AccountID = accountID
			}
		}
	}

	d, existed := r.drivers[accountID]
	if !existed {
		d = models.NewDriver(accountID)
		r.drivers[accountID] = d
	}

	wasGrace := d.Disconnected
	d.ConnectionHandle = handle
	if wasGrace {
		d.ReconnectAttempts++
		d.Disconnected = false
		d.DisconnectedAt = time.Time{}
		d.PendingStateRestore = true
	}

	return d, existed, eff, nil
}

// flushPendingStateRestore delivers driverStateRestored on the first
// authoritative update following a resumed session (§4.1 "State
// restoration gate"), using the record as it exists after the caller
// has already merged the triggering update.
func flushPendingStateRestore(d *models.Driver, now time.Time, eff *Effects) {
	if !d.PendingStateRestore {
		return
	}
	eff.unicast(d.ConnectionHandle, protocol.EventDriverStateRestored, protocol.DriverStateRestoredPayload{
		AccountID:      string(d.AccountID),
		PassengerCount: d.PassengerCount,
		MaxCapacity:    d.MaxCapacity,
		Lat:            d.Lat,
		Lng:            d.Lng,
	})
	d.PendingStateRestore = false
}

// ApplyLocationUpdate merges an updateLocation event and, per the
// update filter, decides whether to broadcast locationUpdate.
func (r *Registry) ApplyLocationUpdate(handle models.ConnHandle, accountID models.AccountID, lat, lng float64, destName *string, destLat, destLng *float64, org *string, passengerCount, maxCapacity *int, movementThresholdDeg float64, heartbeatInterval time.Duration) (Effects, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, existed, eff, err := r.resolveDriverForUpdateLocked(handle, accountID)
	if err != nil {
		return eff, err
	}
	now := r.clock.Now()

	payloadChanged := false
	if passengerCount != nil && (!existed || *passengerCount != d.PassengerCount) {
		payloadChanged = true
	}
	if maxCapacity != nil && (!existed || *maxCapacity != d.MaxCapacity) {
		payloadChanged = true
	}

	broadcast := filter.ShouldBroadcastLocation(filter.LocationParams{
		Existed:              existed,
		HasBroadcastAnchor:   d.HasBroadcastAnchor,
		LastBroadcastLat:     d.LastBroadcastLat,
		LastBroadcastLng:     d.LastBroadcastLng,
		LastBroadcastAt:      d.LastBroadcastAt,
		NewLat:               lat,
		NewLng:               lng,
		PayloadChanged:       payloadChanged,
		Now:                  now,
		MovementThresholdDeg: movementThresholdDeg,
		HeartbeatInterval:    heartbeatInterval,
	})

	d.Lat, d.Lng = lat, lng
	d.HasPosition = true
	d.LastUpdatedAt = now
	if destName != nil {
		d.Destination.Name = *destName
		d.HasDestination = true
	}
	if destLat != nil {
		d.Destination.Lat = *destLat
		d.HasDestination = true
	}
	if destLng != nil {
		d.Destination.Lng = *destLng
		d.HasDestination = true
	}
	if org != nil {
		d.OrganizationName = *org
	}
	if passengerCount != nil {
		d.PassengerCount = *passengerCount
	}
	if maxCapacity != nil {
		d.MaxCapacity = *maxCapacity
	}

	if broadcast {
		d.LastBroadcastLat, d.LastBroadcastLng = lat, lng
		d.LastBroadcastAt = now
		d.HasBroadcastAnchor = true
		eff.broadcast(protocol.EventLocationUpdate, protocol.LocationUpdatePayload{
			AccountID:      string(accountID),
			Lat:            lat,
			Lng:            lng,
			PassengerCount: d.PassengerCount,
			MaxCapacity:    d.MaxCapacity,
			From:           "driver",
			IsOnline:       d.IsLive(),
		})
	}

	flushPendingStateRestore(d, now, &eff)
	return eff, nil
}

// ApplyDestinationUpdate merges destinationUpdate and always broadcasts.
func (r *Registry) ApplyDestinationUpdate(handle models.ConnHandle, accountID models.AccountID, name *string, lat, lng *float64) (Effects, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, _, eff, err := r.resolveDriverForUpdateLocked(handle, accountID)
	if err != nil {
		return eff, err
	}

	if name != nil {
		d.Destination.Name = *name
		d.HasDestination = true
	}
	if lat != nil {
		d.Destination.Lat = *lat
		d.HasDestination = true
	}
	if lng != nil {
		d.Destination.Lng = *lng
		d.HasDestination = true
	}
	d.LastUpdatedAt = r.clock.Now()

	if filter.ShouldBroadcastDestination() {
		eff.broadcast(protocol.EventDestinationUpdate, protocol.DestinationUpdateOutPayload{
			AccountID:       string(accountID),
			DestinationName: d.Destination.Name,
			DestinationLat:  d.Destination.Lat,
			DestinationLng:  d.Destination.Lng,
			From:            "driver",
			IsOnline:        d.IsLive(),
		})
	}
	return eff, nil
}

// ApplyRouteUpdate merges routeUpdate and broadcasts only if the
// canonicalized geometry (or destination) actually changed.
func (r *Registry) ApplyRouteUpdate(handle models.ConnHandle, accountID models.AccountID, geometry json.RawMessage, destLat, destLng *float64) (Effects, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, existed, eff, err := r.resolveDriverForUpdateLocked(handle, accountID)
	if err != nil {
		return eff, err
	}

	canonical, err := protocol.CanonicalJSON(geometry)
	if err != nil {
		return eff, errValidation("invalid geometry: %v", err)
	}

	newHasDest := d.HasDestination
	newDestLat, newDestLng := d.Destination.Lat, d.Destination.Lng
	if destLat != nil {
		newDestLat = *destLat
		newHasDest = true
	}
	if destLng != nil {
		newDestLng = *destLng
		newHasDest = true
	}

	broadcast := filter.ShouldBroadcastRoute(existed, d.HasRoute, d.RouteGeometry, canonical, d.HasDestination, d.Destination.Lat, d.Destination.Lng, newHasDest, newDestLat, newDestLng)

	d.RouteGeometry = canonical
	d.HasRoute = true
	if destLat != nil {
		d.Destination.Lat = *destLat
		d.HasDestination = true
	}
	if destLng != nil {
		d.Destination.Lng = *destLng
		d.HasDestination = true
	}
	d.LastUpdatedAt = r.clock.Now()

	if broadcast {
		eff.broadcast(protocol.EventRouteUpdate, protocol.RouteUpdateOutPayload{
			AccountID:      string(accountID),
			Geometry:       geometry,
			DestinationLat: d.Destination.Lat,
			DestinationLng: d.Destination.Lng,
			From:           "driver",
			IsOnline:       d.IsLive(),
		})
	}
	return eff, nil
}

// ApplyPassengerUpdate merges passengerUpdate and broadcasts only on
// change to a supplied field.
func (r *Registry) ApplyPassengerUpdate(handle models.ConnHandle, accountID models.AccountID, passengerCount, maxCapacity *int) (Effects, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, existed, eff, err := r.resolveDriverForUpdateLocked(handle, accountID)
	if err != nil {
		return eff, err
	}
	now := r.clock.Now()

	newCount, newMax := d.PassengerCount, d.MaxCapacity
	if passengerCount != nil {
		newCount = *passengerCount
	}
	if maxCapacity != nil {
		newMax = *maxCapacity
	}

	broadcast := filter.ShouldBroadcastPassenger(existed, d.PassengerCount, d.MaxCapacity, newCount, newMax, passengerCount != nil, maxCapacity != nil)

	if passengerCount != nil {
		d.PassengerCount = *passengerCount
	}
	if maxCapacity != nil {
		d.MaxCapacity = *maxCapacity
	}
	d.LastUpdatedAt = now

	if broadcast {
		eff.broadcast(protocol.EventPassengerUpdate, protocol.PassengerUpdateOutPayload{
			AccountID:      string(accountID),
			PassengerCount: d.PassengerCount,
			MaxCapacity:    d.MaxCapacity,
			From:           "driver",
			IsOnline:       d.IsLive(),
		})
	}

	flushPendingStateRestore(d, now, &eff)
	return eff, nil
}

// EndSession implements the driver-initiated endSession event: an
// immediate, no-grace removal that always fans out driverRemoved (§9
// design note resolves the ambiguity between reap and endSession paths
// in favor of consistency).
func (r *Registry) EndSession(handle models.ConnHandle) Effects {
	r.mu.Lock()
	defer r.mu.Unlock()

	var eff Effects
	accountID, ok := r.connAccount[handle]
	if !ok {
		return eff
	}
	d, ok := r.drivers[accountID]
	if !ok {
		return eff
	}

	delete(r.drivers, accountID)
	if r.driverConn[accountID] == handle {
		delete(r.driverConn, accountID)
	}
	delete(r.connAccount, handle)

	eff.broadcast(protocol.EventDriverRemoved, protocol.DriverRemovedPayload{
		AccountID: string(accountID),
		Timestamp: r.clock.Now(),
	})
	_ = d
	return eff
}
