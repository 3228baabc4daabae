package protocol

import (
	"encoding/json"
	"strings"

	"github.com/example/fleetrelay/internal/models"
)

// Client -> server event names (§6).
const (
	EventRegisterRole        = "registerRole"
	EventResumeSession       = "resumeSession"
	EventUpdateLocation      = "updateLocation"
	EventDestinationUpdate   = "destinationUpdate"
	EventRouteUpdate         = "routeUpdate"
	EventPassengerUpdate     = "passengerUpdate"
	EventEndSession          = "endSession"
	EventGetBusInfo          = "getBusInfo"
	EventRequestDriversData  = "requestDriversData"
	EventRequestCurrentData  = "requestCurrentData"
	EventPingDriver          = "pingDriver"
	EventUnpingDriver        = "unpingDriver"
)

// Server -> client event names (§6).
const (
	EventLocationUpdate      = "locationUpdate"
	EventSessionAssigned     = "sessionAssigned"
	EventDriversSnapshot     = "driversSnapshot"
	EventCurrentData         = "currentData"
	EventBusInfo             = "busInfo"
	EventBusInfoError        = "busInfoError"
	EventDriversData         = "driversData"
	EventDriverRemoved       = "driverRemoved"
	EventDriverStateRestored = "driverStateRestored"
	EventPingReceived        = "pingReceived"
	EventPingRemoved         = "pingRemoved"
	EventConnectionReplaced  = "connectionReplaced"
	EventServerShutdown      = "serverShutdown"
	EventError               = "error"
)

// RegisterRolePayload accepts both the bare-string and object forms the
// source protocol allows (§9 "Dynamic payload shapes").
type RegisterRolePayload struct {
	Role      models.Role
	AccountID string
}

func ParseRegisterRole(raw json.RawMessage) (RegisterRolePayload, error) {
	var bare string
	if err := json.Unmarshal(raw, &bare); err == nil {
		role, ok := normalizeRole(bare)
		if !ok {
			return RegisterRolePayload{}, NewValidationError("unknown role %q", bare)
		}
		return RegisterRolePayload{Role: role}, nil
	}

	var obj struct {
		Role      string `json:"role"`
		AccountID string `json:"accountId"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return RegisterRolePayload{}, NewValidationError("malformed registerRole payload: %v", err)
	}
	role, ok := normalizeRole(obj.Role)
	if !ok {
		return RegisterRolePayload{}, NewValidationError("unknown role %q", obj.Role)
	}
	return RegisterRolePayload{Role: role, AccountID: strings.TrimSpace(obj.AccountID)}, nil
}

func normalizeRole(s string) (models.Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "driver":
		return models.RoleDriver, true
	case "user":
		return models.RoleUser, true
	default:
		return "", false
	}
}

// ResumeSessionPayload is a bare session key, per §6.
type ResumeSessionPayload struct {
	SessionKey models.SessionKey
}

func ParseResumeSession(raw json.RawMessage) (ResumeSessionPayload, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var obj struct {
			SessionKey string `json:"sessionKey"`
		}
		if err2 := json.Unmarshal(raw, &obj); err2 != nil {
			return ResumeSessionPayload{}, NewValidationError("malformed resumeSession payload: %v", err)
		}
		s = obj.SessionKey
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return ResumeSessionPayload{}, NewValidationError("sessionKey must not be empty")
	}
	return ResumeSessionPayload{SessionKey: models.SessionKey(s)}, nil
}

// UpdateLocationPayload carries the fields of a driver's periodic
// position/occupancy update.
type UpdateLocationPayload struct {
	AccountID        string
	Lat, Lng         float64
	DestinationName  *string
	DestinationLat   *float64
	DestinationLng   *float64
	OrganizationName *string
	PassengerCount   *int
	MaxCapacity      *int
}

func ParseUpdateLocation(raw json.RawMessage) (UpdateLocationPayload, error) {
	var wire struct {
		AccountID        string     `json:"accountId"`
		Lat              FlexFloat  `json:"lat"`
		Lng              FlexFloat  `json:"lng"`
		DestinationName  *string    `json:"destinationName"`
		DestinationLat   *FlexFloat `json:"destinationLat"`
		DestinationLng   *FlexFloat `json:"destinationLng"`
		OrganizationName *string    `json:"organizationName"`
		PassengerCount   *int       `json:"passengerCount"`
		MaxCapacity      *int       `json:"maxCapacity"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return UpdateLocationPayload{}, NewValidationError("malformed updateLocation payload: %v", err)
	}
	p := UpdateLocationPayload{
		AccountID:        strings.TrimSpace(wire.AccountID),
		Lat:              wire.Lat.Float64(),
		Lng:              wire.Lng.Float64(),
		DestinationName:  wire.DestinationName,
		OrganizationName: wire.OrganizationName,
		PassengerCount:   wire.PassengerCount,
		MaxCapacity:      wire.MaxCapacity,
	}
	if wire.DestinationLat != nil {
		v := wire.DestinationLat.Float64()
		p.DestinationLat = &v
	}
	if wire.DestinationLng != nil {
		v := wire.DestinationLng.Float64()
		p.DestinationLng = &v
	}
	if err := validateLatLng(p.Lat, p.Lng); err != nil {
		return UpdateLocationPayload{}, err
	}
	if p.PassengerCount != nil && *p.PassengerCount < 0 {
		return UpdateLocationPayload{}, NewValidationError("passengerCount must be >= 0")
	}
	if p.MaxCapacity != nil && *p.MaxCapacity < 0 {
		return UpdateLocationPayload{}, NewValidationError("maxCapacity must be >= 0")
	}
	return p, nil
}

// DestinationUpdatePayload is a standalone destination change.
type DestinationUpdatePayload struct {
	AccountID       string
	DestinationName *string
	DestinationLat  *float64
	DestinationLng  *float64
}

func ParseDestinationUpdate(raw json.RawMessage) (DestinationUpdatePayload, error) {
	var wire struct {
		AccountID       string     `json:"accountId"`
		DestinationName *string    `json:"destinationName"`
		DestinationLat  *FlexFloat `json:"destinationLat"`
		DestinationLng  *FlexFloat `json:"destinationLng"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return DestinationUpdatePayload{}, NewValidationError("malformed destinationUpdate payload: %v", err)
	}
	p := DestinationUpdatePayload{
		AccountID:       strings.TrimSpace(wire.AccountID),
		DestinationName: wire.DestinationName,
	}
	if wire.DestinationLat != nil {
		v := wire.DestinationLat.Float64()
		p.DestinationLat = &v
	}
	if wire.DestinationLng != nil {
		v := wire.DestinationLng.Float64()
		p.DestinationLng = &v
	}
	return p, nil
}

// RouteUpdatePayload carries an opaque route geometry blob.
type RouteUpdatePayload struct {
	AccountID      string
	Geometry       json.RawMessage
	DestinationLat *float64
	DestinationLng *float64
}

func ParseRouteUpdate(raw json.RawMessage) (RouteUpdatePayload, error) {
	var wire struct {
		AccountID      string          `json:"accountId"`
		Geometry       json.RawMessage `json:"geometry"`
		DestinationLat *FlexFloat      `json:"destinationLat"`
		DestinationLng *FlexFloat      `json:"destinationLng"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return RouteUpdatePayload{}, NewValidationError("malformed routeUpdate payload: %v", err)
	}
	if len(wire.Geometry) == 0 {
		return RouteUpdatePayload{}, NewValidationError("geometry must not be empty")
	}
	p := RouteUpdatePayload{AccountID: strings.TrimSpace(wire.AccountID), Geometry: wire.Geometry}
	if wire.DestinationLat != nil {
		v := wire.DestinationLat.Float64()
		p.DestinationLat = &v
	}
	if wire.DestinationLng != nil {
		v := wire.DestinationLng.Float64()
		p.DestinationLng = &v
	}
	return p, nil
}

// PassengerUpdatePayload carries a standalone occupancy change.
type PassengerUpdatePayload struct {
	AccountID      string
	PassengerCount *int
	MaxCapacity    *int
}

func ParsePassengerUpdate(raw json.RawMessage) (PassengerUpdatePayload, error) {
	var wire struct {
		AccountID      string `json:"accountId"`
		PassengerCount *int   `json:"passengerCount"`
		MaxCapacity    *int   `json:"maxCapacity"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return PassengerUpdatePayload{}, NewValidationError("malformed passengerUpdate payload: %v", err)
	}
	if wire.PassengerCount == nil && wire.MaxCapacity == nil {
		return PassengerUpdatePayload{}, NewValidationError("passengerUpdate requires passengerCount or maxCapacity")
	}
	if wire.PassengerCount != nil && *wire.PassengerCount < 0 {
		return PassengerUpdatePayload{}, NewValidationError("passengerCount must be >= 0")
	}
	if wire.MaxCapacity != nil && *wire.MaxCapacity < 0 {
		return PassengerUpdatePayload{}, NewValidationError("maxCapacity must be >= 0")
	}
	return PassengerUpdatePayload{
		AccountID:      strings.TrimSpace(wire.AccountID),
		PassengerCount: wire.PassengerCount,
		MaxCapacity:    wire.MaxCapacity,
	}, nil
}

// GetBusInfoPayload requests a single driver's current state.
type GetBusInfoPayload struct {
	AccountID string
}

func ParseGetBusInfo(raw json.RawMessage) (GetBusInfoPayload, error) {
	var wire struct {
		AccountID string `json:"accountId"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return GetBusInfoPayload{}, NewValidationError("malformed getBusInfo payload: %v", err)
	}
	accountID := strings.TrimSpace(wire.AccountID)
	if accountID == "" {
		return GetBusInfoPayload{}, NewValidationError("accountId must not be empty")
	}
	return GetBusInfoPayload{AccountID: accountID}, nil
}

// PingDriverPayload is a user's request to flag a driver.
type PingDriverPayload struct {
	DriverAccountID string
	Lat, Lng        float64
	PassengerCount  int
	UserAccountID   *string
}

func ParsePingDriver(raw json.RawMessage) (PingDriverPayload, error) {
	var wire struct {
		DriverAccountID string    `json:"driverAccountId"`
		Lat             FlexFloat `json:"lat"`
		Lng             FlexFloat `json:"lng"`
		PassengerCount  *float64  `json:"passengerCount"`
		UserAccountID   *string   `json:"userAccountId"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return PingDriverPayload{}, NewValidationError("malformed pingDriver payload: %v", err)
	}
	driverID := strings.TrimSpace(wire.DriverAccountID)
	if driverID == "" {
		return PingDriverPayload{}, NewValidationError("driverAccountId must not be empty")
	}
	lat, lng := wire.Lat.Float64(), wire.Lng.Float64()
	if err := validateLatLng(lat, lng); err != nil {
		return PingDriverPayload{}, err
	}
	count := 1
	if wire.PassengerCount != nil {
		count = int(absFloor(*wire.PassengerCount))
		if count < 1 || count > 20 {
			return PingDriverPayload{}, NewValidationError("passengerCount must be between 1 and 20")
		}
	}
	return PingDriverPayload{
		DriverAccountID: driverID,
		Lat:             lat,
		Lng:             lng,
		PassengerCount:  count,
		UserAccountID:   wire.UserAccountID,
	}, nil
}

// UnpingDriverPayload cancels a prior ping.
type UnpingDriverPayload struct {
	DriverAccountID string
	UserAccountID   *string
}

func ParseUnpingDriver(raw json.RawMessage) (UnpingDriverPayload, error) {
	var wire struct {
		DriverAccountID string  `json:"driverAccountId"`
		UserAccountID   *string `json:"userAccountId"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return UnpingDriverPayload{}, NewValidationError("malformed unpingDriver payload: %v", err)
	}
	driverID := strings.TrimSpace(wire.DriverAccountID)
	if driverID == "" {
		return UnpingDriverPayload{}, NewValidationError("driverAccountId must not be empty")
	}
	return UnpingDriverPayload{DriverAccountID: driverID, UserAccountID: wire.UserAccountID}, nil
}

func validateLatLng(lat, lng float64) error {
	if lat < -90 || lat > 90 {
		return NewValidationError("lat %f out of range [-90,90]", lat)
	}
	if lng < -180 || lng > 180 {
		return NewValidationError("lng %f out of range [-180,180]", lng)
	}
	return nil
}

func absFloor(v float64) float64 {
	if v < 0 {
		v = -v
	}
	whole := float64(int64(v))
	return whole
}
