// Implements snapshot composition (§4.9): the point-in-time driver
// listing sent on registration, resumption, and on explicit request.
package registry

import (
	"sort"

	"github.com/example/fleetrelay/internal/models"
	"github.com/example/fleetrelay/internal/protocol"
)

func toSnapshotEntry(d *models.Driver) protocol.DriverSnapshotEntry {
	e := protocol.DriverSnapshotEntry{
		AccountID:        string(d.AccountID),
		OrganizationName: d.OrganizationName,
		PassengerCount:   d.PassengerCount,
		MaxCapacity:      d.MaxCapacity,
		IsOnline:         !d.Disconnected,
	}
	if d.HasPosition {
		e.Lat, e.Lng = d.Lat, d.Lng
		e.HasPosition = true
	}
	if d.HasDestination {
		e.DestinationName = d.Destination.Name
		e.DestinationLat = d.Destination.Lat
		e.DestinationLng = d.Destination.Lng
		e.HasDestination = true
	}
	if d.HasRoute {
		e.RouteGeometry = d.RouteGeometry
		e.HasRoute = true
	}
	return e
}

// Snapshot composes drivers that have either a position or route
// geometry, truncated to maxDrivers by most-recently-updated first when
// the total exceeds the cap (§4.9).
func (r *Registry) Snapshot(maxDrivers int) protocol.DriversSnapshotPayload {
	r.mu.Lock()
	defer r.mu.Unlock()

	type withTime struct {
		entry protocol.DriverSnapshotEntry
		at    int64
	}
	eligible := make([]withTime, 0, len(r.drivers))
	for _, d := range r.drivers {
		if !d.HasPosition && !d.HasRoute {
			continue
		}
		eligible = append(eligible, withTime{entry: toSnapshotEntry(d), at: d.LastUpdatedAt.UnixNano()})
	}

	total := len(eligible)
	limited := false
	if total > maxDrivers {
		sort.Slice(eligible, func(i, j int) bool { return eligible[i].at > eligible[j].at })
		eligible = eligible[:maxDrivers]
		limited = true
	}

	drivers := make([]protocol.DriverSnapshotEntry, len(eligible))
	for i, w := range eligible {
		drivers[i] = w.entry
	}

	return protocol.DriversSnapshotPayload{
		Drivers: drivers,
		Count:   len(drivers),
		Total:   total,
		Limited: limited,
	}
}

// DriversData composes the same eligible driver set for the legacy
// requestDriversData / driversData exchange, without truncation
// metadata.
func (r *Registry) DriversData() protocol.DriversDataPayload {
	r.mu.Lock()
	defer r.mu.Unlock()

	buses := make([]protocol.DriverSnapshotEntry, 0, len(r.drivers))
	for _, d := range r.drivers {
		if !d.HasPosition && !d.HasRoute {
			continue
		}
		buses = append(buses, toSnapshotEntry(d))
	}
	return protocol.DriversDataPayload{Buses: buses}
}

// BusInfo looks up a single driver's current state for getBusInfo.
func (r *Registry) BusInfo(accountID models.AccountID) (protocol.BusInfoPayload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.drivers[accountID]
	if !ok {
		return protocol.BusInfoPayload{}, errNotFound("driver %q not found", accountID)
	}
	return protocol.BusInfoPayload{
		AccountID:        string(d.AccountID),
		Lat:              d.Lat,
		Lng:              d.Lng,
		DestinationName:  d.Destination.Name,
		OrganizationName: d.OrganizationName,
		PassengerCount:   d.PassengerCount,
		MaxCapacity:      d.MaxCapacity,
		IsOnline:         !d.Disconnected,
	}, nil
}
