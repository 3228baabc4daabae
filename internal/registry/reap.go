// Implements the two registry-facing duties of the reaper (§4.8):
// reconciling connections whose transport has silently gone away, and
// purging records that have been stale past their grace window.
package registry

import (
	"time"

	"github.com/example/fleetrelay/internal/models"
	"github.com/example/fleetrelay/internal/protocol"
)

// LivenessChecker reports whether a connection handle still names a
// live transport link. The registry depends only on this narrow
// interface so it never needs to import the transport package.
type LivenessChecker interface {
	IsLive(handle models.ConnHandle) bool
}

// ReconcileConnections transitions any driver/user whose recorded
// connection handle is no longer live into disconnected-with-grace,
// exactly as if Unbind had been called for it.
func (r *Registry) ReconcileConnections(checker LivenessChecker) Effects {
	r.mu.Lock()
	defer r.mu.Unlock()

	var eff Effects
	var stale []models.ConnHandle
	for _, d := range r.drivers {
		if d.ConnectionHandle != "" && !checker.IsLive(d.ConnectionHandle) {
			stale = append(stale, d.ConnectionHandle)
		}
	}
	for _, u := range r.users {
		if u.ConnectionHandle != "" && !checker.IsLive(u.ConnectionHandle) {
			stale = append(stale, u.ConnectionHandle)
		}
	}
	for _, h := range stale {
		eff.merge(r.unbindLocked(h))
	}
	return eff
}

// SweepStale purges driver and user records that have exceeded
// staleTimeout and, if in grace, gracePeriod too. Drivers removed this
// way fan out driverRemoved, matching the endSession path (§9).
func (r *Registry) SweepStale(now time.Time, staleTimeout, gracePeriod time.Duration) Effects {
	r.mu.Lock()
	defer r.mu.Unlock()

	var eff Effects

	for accountID, d := range r.drivers {
		if now.Sub(d.LastUpdatedAt) <= staleTimeout {
			continue
		}
		if d.Disconnected && now.Sub(d.DisconnectedAt) <= gracePeriod {
			continue
		}
		delete(r.drivers, accountID)
		if r.driverConn[accountID] == d.ConnectionHandle {
			delete(r.driverConn, accountID)
		}
		if d.ConnectionHandle != "" {
			delete(r.connAccount, d.ConnectionHandle)
		}
		eff.broadcast(protocol.EventDriverRemoved, protocol.DriverRemovedPayload{
			AccountID: string(accountID),
			Timestamp: now,
		})
	}

	for accountID, u := range r.users {
		if now.Sub(u.LastActivityAt) <= staleTimeout {
			continue
		}
		if u.Disconnected && now.Sub(u.DisconnectedAt) <= gracePeriod {
			continue
		}
		delete(r.users, accountID)
		if r.userConn[accountID] == u.ConnectionHandle {
			delete(r.userConn, accountID)
		}
		if u.ConnectionHandle != "" {
			delete(r.connAccount, u.ConnectionHandle)
		}
	}

	return eff
}

// LiveDriverCount reports the number of currently connected drivers,
// for the HTTP status probe.
func (r *Registry) LiveDriverCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, d := range r.drivers {
		if d.IsLive() {
			n++
		}
	}
	return n
}

// LiveUserHandles returns the connection handles of every currently
// connected user, the audience for BroadcastToUsers (§4.6).
func (r *Registry) LiveUserHandles() []models.ConnHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	handles := make([]models.ConnHandle, 0, len(r.users))
	for _, u := range r.users {
		if !u.Disconnected && u.ConnectionHandle != "" {
			handles = append(handles, u.ConnectionHandle)
		}
	}
	return handles
}

// TouchUserActivity updates a user's lastActivityAt, called by the
// event router for every user-originated message (§4.5).
func (r *Registry) TouchUserActivity(accountID models.AccountID) {
	if accountID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[accountID]; ok {
		u.LastActivityAt = r.clock.Now()
	}
}

// Shutdown marks every live driver as disconnected (records
// disconnectedAt) without deleting records, per §5 graceful shutdown.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock.Now()
	for _, d := range r.drivers {
		if !d.Disconnected {
			d.Disconnected = true
			d.DisconnectedAt = now
			d.ConnectionHandle = ""
		}
	}
	for _, u := range r.users {
		if !u.Disconnected {
			u.Disconnected = true
			u.DisconnectedAt = now
			u.ConnectionHandle = ""
		}
	}
}
