// Package registry owns the connection/account/session indexes and the
// driver and user tables described in §3 and §4.1 of the connection
// engine. It is a single locked value, not an ambient singleton (§9).
package registry

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/example/fleetrelay/internal/clock"
	"github.com/example/fleetrelay/internal/models"
	"github.com/example/fleetrelay/internal/protocol"
)

// Registry is the coarse-locked owner of every mutable index the engine
// needs. A single mutex guards all maps; see §5 for why finer-grained
// locking is treated as an optimization, not a requirement.
type Registry struct {
	mu sync.Mutex

	clock clock.Clock

	drivers map[models.AccountID]*models.Driver
	users   map[models.AccountID]*models.User

	connAccount map[models.ConnHandle]models.AccountID
	connRole    map[models.ConnHandle]models.Role

	driverConn map[models.AccountID]models.ConnHandle
	userConn   map[models.AccountID]models.ConnHandle

	sessions    map[models.SessionKey]*models.Session
	sessionConn map[models.SessionKey]models.ConnHandle
	connSession map[models.ConnHandle]models.SessionKey

	requireDriverAccountAtRegistration bool
}

func New(c clock.Clock, requireDriverAccountAtRegistration bool) *Registry {
	return &Registry{
		clock:       c,
		drivers:     make(map[models.AccountID]*models.Driver),
		users:       make(map[models.AccountID]*models.User),
		connAccount: make(map[models.ConnHandle]models.AccountID),
		connRole:    make(map[models.ConnHandle]models.Role),
		driverConn:  make(map[models.AccountID]models.ConnHandle),
		userConn:    make(map[models.AccountID]models.ConnHandle),
		sessions:    make(map[models.SessionKey]*models.Session),
		sessionConn: make(map[models.SessionKey]models.ConnHandle),
		connSession: make(map[models.ConnHandle]models.SessionKey),

		requireDriverAccountAtRegistration: requireDriverAccountAtRegistration,
	}
}

func newSessionKey() models.SessionKey {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return models.SessionKey(hex.EncodeToString(b))
}

// RoleOf reports the role bound to handle, if any.
func (r *Registry) RoleOf(handle models.ConnHandle) (models.Role, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	role, ok := r.connRole[handle]
	return role, ok
}

// AccountOf reports the account id bound to handle, if any.
func (r *Registry) AccountOf(handle models.ConnHandle) (models.AccountID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.connAccount[handle]
	return acc, ok
}

// Register implements §4.1 Register: binds a new connection to a role
// and (for users, always; for drivers, when supplied) an account id,
// preempting any live incumbent connection for that account first.
func (r *Registry) Register(handle models.ConnHandle, role models.Role, accountID models.AccountID) (models.SessionKey, models.AccountID, Effects, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if role == models.RoleUser && accountID == "" {
		return "", "", Effects{}, errValidation("accountId is required to register as user")
	}
	if role == models.RoleDriver && accountID == "" && r.requireDriverAccountAtRegistration {
		return "", "", Effects{}, errValidation("accountId is required to register as driver")
	}

	now := r.clock.Now()
	var eff Effects

	sessionKey := newSessionKey()
	r.connRole[handle] = role

	if accountID == "" {
		// Driver identity will arrive with the first update (§9 open question).
		r.sessions[sessionKey] = &models.Session{Key: sessionKey, Role: role, CreatedAt: now, LastActivityAt: now}
		r.sessionConn[sessionKey] = handle
		r.connSession[handle] = sessionKey
		return sessionKey, "", eff, nil
	}

	r.connAccount[handle] = accountID

	if role == models.RoleDriver {
		if incumbent, ok := r.driverConn[accountID]; ok && incumbent != handle {
			eff.merge(r.preemptLocked(incumbent, "replaced by a new connection for this account"))
		}
		r.driverConn[accountID] = handle
		d := r.driverOrCreateLocked(accountID)
		if d.Disconnected {
			d.ReconnectAttempts++
			d.PendingStateRestore = true
		}
		d.Disconnected = false
		d.DisconnectedAt = time.Time{}
		d.ConnectionHandle = handle
	} else {
		if incumbent, ok := r.userConn[accountID]; ok && incumbent != handle {
			eff.merge(r.preemptLocked(incumbent, "replaced by a new connection for this account"))
		}
		r.userConn[accountID] = handle
		u, ok := r.users[accountID]
		if !ok {
			u = models.NewUser(accountID)
			r.users[accountID] = u
		}
		u.ConnectionHandle = handle
		u.Disconnected = false
		u.DisconnectedAt = time.Time{}
		u.LastActivityAt = now
	}

	r.sessions[sessionKey] = &models.Session{Key: sessionKey, AccountID: accountID, Role: role, CreatedAt: now, LastActivityAt: now}
	r.sessionConn[sessionKey] = handle
	r.connSession[handle] = sessionKey

	return sessionKey, accountID, eff, nil
}

func (r *Registry) driverOrCreateLocked(accountID models.AccountID) *models.Driver {
	d, ok := r.drivers[accountID]
	if !ok {
		d = models.NewDriver(accountID)
		r.drivers[accountID] = d
	}
	return d
}

// ResumeSession implements §4.1 ResumeSession.
func (r *Registry) ResumeSession(handle models.ConnHandle, key models.SessionKey) (models.Role, models.AccountID, Effects, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[key]
	if !ok {
		return "", "", Effects{}, errSession("unknown session key")
	}

	var eff Effects
	now := r.clock.Now()

	if incumbent, ok := r.sessionConn[key]; ok && incumbent != "" && incumbent != handle {
		eff.merge(r.preemptLocked(incumbent, "replaced by a resumed session"))
	}

	r.connRole[handle] = sess.Role
	r.sessionConn[key] = handle
	r.connSession[handle] = key
	sess.LastActivityAt = now

	if sess.AccountID != "" {
		r.connAccount[handle] = sess.AccountID
		if sess.Role == models.RoleDriver {
			r.driverConn[sess.AccountID] = handle
			if d, ok := r.drivers[sess.AccountID]; ok {
				if d.Disconnected {
					d.ReconnectAttempts++
				}
				d.PendingStateRestore = true
				d.Disconnected = false
				d.DisconnectedAt = time.Time{}
				d.ConnectionHandle = handle
			}
		} else {
			r.userConn[sess.AccountID] = handle
			if u, ok := r.users[sess.AccountID]; ok {
				u.ConnectionHandle = handle
				u.Disconnected = false
				u.DisconnectedAt = time.Time{}
				u.LastActivityAt = now
			}
		}
	}

	return sess.Role, sess.AccountID, eff, nil
}

// Unbind implements §4.1 Unbind: removes handle from every index and
// transitions its bound driver/user into the disconnected-with-grace
// substate.
func (r *Registry) Unbind(handle models.ConnHandle) Effects {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unbindLocked(handle)
}

func (r *Registry) unbindLocked(handle models.ConnHandle) Effects {
	var eff Effects
	now := r.clock.Now()

	role, hasRole := r.connRole[handle]
	accountID, hasAccount := r.connAccount[handle]

	delete(r.connRole, handle)
	delete(r.connAccount, handle)
	if key, ok := r.connSession[handle]; ok {
		delete(r.connSession, handle)
		if r.sessionConn[key] == handle {
			delete(r.sessionConn, key)
		}
	}

	if !hasAccount {
		return eff
	}

	switch role {
	case models.RoleDriver:
		if r.driverConn[accountID] == handle {
			delete(r.driverConn, accountID)
		}
		if d, ok := r.drivers[accountID]; ok && d.ConnectionHandle == handle {
			d.ConnectionHandle = ""
			d.Disconnected = true
			d.DisconnectedAt = now
		}
	case models.RoleUser:
		if r.userConn[accountID] == handle {
			delete(r.userConn, accountID)
		}
		if u, ok := r.users[accountID]; ok && u.ConnectionHandle == handle {
			u.ConnectionHandle = ""
			u.Disconnected = true
			u.DisconnectedAt = now
			eff.merge(r.pruneWaitingPassengerLocked(accountID, "user_disconnected"))
		}
	}
	_ = hasRole
	return eff
}

// Preempt implements §4.1 Preempt: notify then close the incumbent
// connection and drop its role, account, and session index entries. It
// is a no-op when there is no incumbent, matching the idempotence
// property in §8.
func (r *Registry) Preempt(handle models.ConnHandle, reason string) Effects {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.preemptLocked(handle, reason)
}

func (r *Registry) preemptLocked(handle models.ConnHandle, reason string) Effects {
	var eff Effects
	if handle == "" {
		return eff
	}
	eff.unicast(handle, protocol.EventConnectionReplaced, connectionReplacedPayload(reason, r.clock.Now()))
	eff.close(handle, reason)
	delete(r.connRole, handle)
	delete(r.connAccount, handle)
	if key, ok := r.connSession[handle]; ok {
		delete(r.connSession, handle)
		if r.sessionConn[key] == handle {
			delete(r.sessionConn, key)
		}
	}
	return eff
}
