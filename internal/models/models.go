// Package models holds the relay's data records: drivers, users,
// sessions, and the small value types they're built from.
package models

import "time"

// Role distinguishes the two connection cohorts the registry tracks.
type Role string

const (
	RoleDriver Role = "driver"
	RoleUser   Role = "user"
)

// ConnHandle is an opaque identity for a transport-level connection.
// It never survives the link it names.
type ConnHandle string

// AccountID is the application-level stable identity of a driver or user.
type AccountID string

// SessionKey is a server-minted token a client presents on reconnect to
// reclaim its prior logical session.
type SessionKey string

// Point is a planar (lat, lng) pair in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Destination is an optional named waypoint a driver is heading to.
type Destination struct {
	Name string  `json:"name,omitempty"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

// WaitingPassenger is one user's outstanding ping against a driver.
type WaitingPassenger struct {
	UserAccountID  AccountID `json:"userAccountId"`
	Lat            float64   `json:"lat"`
	Lng            float64   `json:"lng"`
	RequestedCount int       `json:"requestedCount"`
	PingedAt       time.Time `json:"pingedAt"`
}

// Driver is the per-account record the engine maintains for a driver
// endpoint. Field names follow §3 of the connection engine spec.
type Driver struct {
	AccountID AccountID

	Lat, Lng float64
	HasPosition bool

	LastBroadcastLat, LastBroadcastLng float64
	HasBroadcastAnchor                 bool
	LastBroadcastAt                    time.Time

	Destination    Destination
	HasDestination bool

	RouteGeometry string // opaque, compared by serialized equality
	HasRoute      bool

	OrganizationName string

	PassengerCount int
	MaxCapacity    int

	LastUpdatedAt time.Time

	ConnectionHandle ConnHandle // empty while in grace
	Disconnected     bool
	DisconnectedAt   time.Time
	ReconnectAttempts int

	WaitingPassengers map[AccountID]WaitingPassenger

	PendingStateRestore bool
}

// NewDriver constructs an empty driver record for accountID.
func NewDriver(accountID AccountID) *Driver {
	return &Driver{
		AccountID:         accountID,
		WaitingPassengers: make(map[AccountID]WaitingPassenger),
	}
}

// IsLive reports whether the driver currently owns a bound connection.
func (d *Driver) IsLive() bool {
	return !d.Disconnected && d.ConnectionHandle != ""
}

// User is the per-account record for a subscribing map client.
type User struct {
	AccountID        AccountID
	ConnectionHandle ConnHandle
	LastActivityAt   time.Time
	Disconnected     bool
	DisconnectedAt   time.Time

	Lat, Lng    float64
	HasLocation bool
}

func NewUser(accountID AccountID) *User {
	return &User{AccountID: accountID}
}

// Session binds a session key to an account and role across reconnects.
type Session struct {
	Key            SessionKey
	AccountID      AccountID
	Role           Role
	CreatedAt      time.Time
	LastActivityAt time.Time
}

// RateBucket is a fixed-window counter keyed by connection handle.
type RateBucket struct {
	Count   int
	ResetAt time.Time
}
