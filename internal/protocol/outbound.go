package protocol

import (
	"encoding/json"
	"time"
)

// Outbound payload shapes (§6 "Server -> Client events").

type SessionAssignedPayload struct {
	SessionKey string `json:"sessionKey"`
}

type DriverSnapshotEntry struct {
	AccountID        string  `json:"accountId"`
	Lat              float64 `json:"lat,omitempty"`
	Lng              float64 `json:"lng,omitempty"`
	HasPosition      bool    `json:"-"`
	DestinationName  string  `json:"destinationName,omitempty"`
	DestinationLat   float64 `json:"destinationLat,omitempty"`
	DestinationLng   float64 `json:"destinationLng,omitempty"`
	HasDestination   bool    `json:"-"`
	RouteGeometry    string  `json:"routeGeometry,omitempty"`
	HasRoute         bool    `json:"-"`
	OrganizationName string  `json:"organizationName,omitempty"`
	PassengerCount   int     `json:"passengerCount"`
	MaxCapacity      int     `json:"maxCapacity"`
	IsOnline         bool    `json:"isOnline"`
}

type DriversSnapshotPayload struct {
	Drivers []DriverSnapshotEntry `json:"drivers"`
	Count   int                   `json:"count"`
	Total   int                   `json:"total"`
	Limited bool                  `json:"limited"`
}

type CurrentDataPayload struct {
	Buses []DriverSnapshotEntry `json:"buses"`
}

type LocationUpdatePayload struct {
	AccountID      string  `json:"accountId"`
	Lat            float64 `json:"lat"`
	Lng            float64 `json:"lng"`
	PassengerCount int     `json:"passengerCount"`
	MaxCapacity    int     `json:"maxCapacity"`
	From           string  `json:"from"`
	IsOnline       bool    `json:"isOnline"`
}

type DestinationUpdateOutPayload struct {
	AccountID       string  `json:"accountId"`
	DestinationName string  `json:"destinationName,omitempty"`
	DestinationLat  float64 `json:"destinationLat,omitempty"`
	DestinationLng  float64 `json:"destinationLng,omitempty"`
	From            string  `json:"from"`
	IsOnline        bool    `json:"isOnline"`
}

type RouteUpdateOutPayload struct {
	AccountID      string          `json:"accountId"`
	Geometry       json.RawMessage `json:"geometry"`
	DestinationLat float64         `json:"destinationLat,omitempty"`
	DestinationLng float64         `json:"destinationLng,omitempty"`
	From           string          `json:"from"`
	IsOnline       bool            `json:"isOnline"`
}

type PassengerUpdateOutPayload struct {
	AccountID      string `json:"accountId"`
	PassengerCount int    `json:"passengerCount"`
	MaxCapacity    int    `json:"maxCapacity"`
	From           string `json:"from"`
	IsOnline       bool   `json:"isOnline"`
}

type BusInfoPayload struct {
	AccountID        string  `json:"accountId"`
	Lat              float64 `json:"lat,omitempty"`
	Lng              float64 `json:"lng,omitempty"`
	DestinationName  string  `json:"destinationName,omitempty"`
	OrganizationName string  `json:"organizationName,omitempty"`
	PassengerCount   int     `json:"passengerCount"`
	MaxCapacity      int     `json:"maxCapacity"`
	IsOnline         bool    `json:"isOnline"`
}

type BusInfoErrorPayload struct {
	AccountID string `json:"accountId"`
	Message   string `json:"message"`
}

type DriversDataPayload struct {
	Buses []DriverSnapshotEntry `json:"buses"`
}

type DriverRemovedPayload struct {
	AccountID string    `json:"accountId"`
	Timestamp time.Time `json:"timestamp"`
}

type DriverStateRestoredPayload struct {
	AccountID      string  `json:"accountId"`
	PassengerCount int     `json:"passengerCount"`
	MaxCapacity    int     `json:"maxCapacity"`
	Lat            float64 `json:"lat,omitempty"`
	Lng            float64 `json:"lng,omitempty"`
}

type PingReceivedPayload struct {
	UserAccountID  string    `json:"userAccountId"`
	Lat            float64   `json:"lat"`
	Lng            float64   `json:"lng"`
	PassengerCount int       `json:"passengerCount"`
	Timestamp      time.Time `json:"timestamp"`
}

type PingRemovedPayload struct {
	UserAccountID string    `json:"userAccountId"`
	Timestamp     time.Time `json:"timestamp"`
	Reason        string    `json:"reason,omitempty"`
}

type ConnectionReplacedPayload struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type ServerShutdownPayload struct {
	Timestamp time.Time `json:"timestamp"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
