// Package router implements the event router (§4.5): it binds each
// inbound event kind to a handler, enforces role-based admission,
// touches user activity, and wraps every handler in a fault envelope
// so a single malformed message never brings down the connection.
package router

import (
	"log/slog"
	"time"

	"context"

	"github.com/example/fleetrelay/internal/ingest"
	"github.com/example/fleetrelay/internal/models"
	"github.com/example/fleetrelay/internal/observability"
	"github.com/example/fleetrelay/internal/protocol"
	"github.com/example/fleetrelay/internal/ratelimit"
	"github.com/example/fleetrelay/internal/registry"
	"github.com/example/fleetrelay/internal/snapshot"
)

// LocationPublisher is the optional analytics side-channel a location
// update is mirrored to after being accepted, independent of whether
// the update filter decided to broadcast it. Nil disables the feed.
type LocationPublisher interface {
	PublishLocation(accountID models.AccountID, ev ingest.LocationEvent) error
}

// DriverMirror is the optional Redis side-channel kept in sync with
// each driver's latest position and occupancy. Nil disables the feed.
type DriverMirror interface {
	Upsert(ctx context.Context, e snapshot.Entry) error
	Remove(ctx context.Context, accountID string) error
}

// Router dispatches decoded envelopes against a Registry.
type Router struct {
	reg    *registry.Registry
	gate   *ratelimit.Gate
	logger *slog.Logger

	movementThresholdDeg float64
	heartbeatInterval    time.Duration
	maxSnapshotDrivers   int

	publisher LocationPublisher
	mirror    DriverMirror
}

func New(reg *registry.Registry, gate *ratelimit.Gate, logger *slog.Logger, movementThresholdDeg float64, heartbeatInterval time.Duration, maxSnapshotDrivers int) *Router {
	return &Router{
		reg:                  reg,
		gate:                 gate,
		logger:               logger,
		movementThresholdDeg: movementThresholdDeg,
		heartbeatInterval:    heartbeatInterval,
		maxSnapshotDrivers:   maxSnapshotDrivers,
	}
}

// WithLocationPublisher attaches the optional Kafka analytics feed.
func (rt *Router) WithLocationPublisher(p LocationPublisher) *Router {
	rt.publisher = p
	return rt
}

// WithDriverMirror attaches the optional Redis position mirror.
func (rt *Router) WithDriverMirror(m DriverMirror) *Router {
	rt.mirror = m
	return rt
}

// requiredRole names the role an event's Role column pins in §6. Events
// absent from this map ("any") are admitted regardless of role.
var requiredRole = map[string]models.Role{
	protocol.EventUpdateLocation:     models.RoleDriver,
	protocol.EventDestinationUpdate:  models.RoleDriver,
	protocol.EventRouteUpdate:        models.RoleDriver,
	protocol.EventPassengerUpdate:    models.RoleDriver,
	protocol.EventEndSession:         models.RoleDriver,
	protocol.EventGetBusInfo:         models.RoleUser,
	protocol.EventRequestDriversData: models.RoleUser,
	protocol.EventRequestCurrentData: models.RoleUser,
	protocol.EventPingDriver:         models.RoleUser,
	protocol.EventUnpingDriver:       models.RoleUser,
}

// Dispatch routes one decoded envelope from handle. It never returns an
// error: failures are converted into a unicast error reply, matching
// the fault envelope in §4.5.
func (rt *Router) Dispatch(handle models.ConnHandle, env protocol.Envelope) registry.Effects {
	if role, ok := rt.reg.RoleOf(handle); ok && role == models.RoleUser {
		if accountID, ok := rt.reg.AccountOf(handle); ok {
			rt.reg.TouchUserActivity(accountID)
		}
	}

	eff, err := rt.route(handle, env)
	if err != nil {
		pe := protocol.AsProtocolError(err)
		rt.logger.Warn("event handler failed", "event", env.Event, "kind", pe.Kind, "error", pe.Message)
		return registry.Effects{Unicasts: []registry.Unicast{
			{Handle: handle, Event: protocol.EventError, Payload: protocol.ErrorPayload{Message: pe.Message}},
		}}
	}
	return eff
}

func (rt *Router) route(handle models.ConnHandle, env protocol.Envelope) (registry.Effects, error) {
	if want, pinned := requiredRole[env.Event]; pinned {
		got, ok := rt.reg.RoleOf(handle)
		if !ok || got != want {
			return registry.Effects{}, protocol.NewAuthorizationError("event %q requires role %q", env.Event, want)
		}
	}

	switch env.Event {
	case protocol.EventRegisterRole:
		return rt.handleRegisterRole(handle, env.Data)
	case protocol.EventResumeSession:
		return rt.handleResumeSession(handle, env.Data)
	case protocol.EventUpdateLocation:
		return rt.handleUpdateLocation(handle, env.Data)
	case protocol.EventDestinationUpdate:
		return rt.handleDestinationUpdate(handle, env.Data)
	case protocol.EventRouteUpdate:
		return rt.handleRouteUpdate(handle, env.Data)
	case protocol.EventPassengerUpdate:
		return rt.handlePassengerUpdate(handle, env.Data)
	case protocol.EventEndSession:
		return rt.handleEndSession(handle)
	case protocol.EventGetBusInfo:
		return rt.handleGetBusInfo(handle, env.Data)
	case protocol.EventRequestDriversData:
		return registry.Effects{Unicasts: []registry.Unicast{
			{Handle: handle, Event: protocol.EventDriversData, Payload: rt.reg.DriversData()},
		}}, nil
	case protocol.EventRequestCurrentData:
		return registry.Effects{Unicasts: []registry.Unicast{
			{Handle: handle, Event: protocol.EventDriversSnapshot, Payload: rt.reg.Snapshot(rt.maxSnapshotDrivers)},
		}}, nil
	case protocol.EventPingDriver:
		return rt.handlePingDriver(handle, env.Data)
	case protocol.EventUnpingDriver:
		return rt.handleUnpingDriver(handle, env.Data)
	default:
		return registry.Effects{}, protocol.NewValidationError("unknown event %q", env.Event)
	}
}

func (rt *Router) handleRegisterRole(handle models.ConnHandle, raw []byte) (registry.Effects, error) {
	p, err := protocol.ParseRegisterRole(raw)
	if err != nil {
		return registry.Effects{}, err
	}
	sessionKey, _, eff, err := rt.reg.Register(handle, p.Role, models.AccountID(p.AccountID))
	if err != nil {
		return eff, err
	}
	rt.gate.Reset(handle)
	eff.Unicasts = append(eff.Unicasts, registry.Unicast{
		Handle: handle, Event: protocol.EventSessionAssigned,
		Payload: protocol.SessionAssignedPayload{SessionKey: string(sessionKey)},
	})
	if p.Role == models.RoleUser {
		eff.Unicasts = append(eff.Unicasts, registry.Unicast{
			Handle: handle, Event: protocol.EventDriversSnapshot,
			Payload: rt.reg.Snapshot(rt.maxSnapshotDrivers),
		})
	}
	return eff, nil
}

func (rt *Router) handleResumeSession(handle models.ConnHandle, raw []byte) (registry.Effects, error) {
	p, err := protocol.ParseResumeSession(raw)
	if err != nil {
		return registry.Effects{}, err
	}
	role, _, eff, err := rt.reg.ResumeSession(handle, p.SessionKey)
	if err != nil {
		return eff, err
	}
	rt.gate.Reset(handle)
	if role == models.RoleUser {
		eff.Unicasts = append(eff.Unicasts, registry.Unicast{
			Handle: handle, Event: protocol.EventDriversSnapshot,
			Payload: rt.reg.Snapshot(rt.maxSnapshotDrivers),
		})
	}
	return eff, nil
}

// handleUpdateLocation is the only event gated by the rate limiter,
// matching the observed (and preserved) source behavior of gating on
// location updates alone (§9 open question).
func (rt *Router) handleUpdateLocation(handle models.ConnHandle, raw []byte) (registry.Effects, error) {
	if !rt.gate.Allow(handle) {
		observability.RateLimitRejectionsTotal.Inc()
		return registry.Effects{}, protocol.NewRateLimitError("update rate exceeded")
	}
	p, err := protocol.ParseUpdateLocation(raw)
	if err != nil {
		return registry.Effects{}, err
	}
	eff, err := rt.reg.ApplyLocationUpdate(handle, models.AccountID(p.AccountID), p.Lat, p.Lng,
		p.DestinationName, p.DestinationLat, p.DestinationLng, p.OrganizationName,
		p.PassengerCount, p.MaxCapacity, rt.movementThresholdDeg, rt.heartbeatInterval)
	if err == nil && (rt.publisher != nil || rt.mirror != nil) {
		accountID := models.AccountID(p.AccountID)
		if info, infoErr := rt.reg.BusInfo(accountID); infoErr == nil {
			if rt.publisher != nil {
				if pubErr := rt.publisher.PublishLocation(accountID, ingest.LocationEvent{
					AccountID:      info.AccountID,
					Lat:            info.Lat,
					Lng:            info.Lng,
					PassengerCount: info.PassengerCount,
					MaxCapacity:    info.MaxCapacity,
					ObservedAt:     time.Now(),
				}); pubErr != nil {
					rt.logger.Debug("location analytics publish failed", "error", pubErr)
				}
			}
			if rt.mirror != nil {
				if mirrErr := rt.mirror.Upsert(context.Background(), snapshot.Entry{
					AccountID:      info.AccountID,
					Lat:            info.Lat,
					Lng:            info.Lng,
					PassengerCount: info.PassengerCount,
					MaxCapacity:    info.MaxCapacity,
					IsOnline:       info.IsOnline,
				}); mirrErr != nil {
					rt.logger.Debug("driver mirror upsert failed", "error", mirrErr)
				}
			}
		}
	}
	return eff, err
}

func (rt *Router) handleEndSession(handle models.ConnHandle) (registry.Effects, error) {
	accountID, hadAccount := rt.reg.AccountOf(handle)
	eff := rt.reg.EndSession(handle)
	observability.DriversRemovedTotal.Add(float64(len(eff.Broadcasts)))
	if hadAccount && rt.mirror != nil {
		if mirrErr := rt.mirror.Remove(context.Background(), string(accountID)); mirrErr != nil {
			rt.logger.Debug("driver mirror remove failed", "error", mirrErr)
		}
	}
	return eff, nil
}

func (rt *Router) handleDestinationUpdate(handle models.ConnHandle, raw []byte) (registry.Effects, error) {
	p, err := protocol.ParseDestinationUpdate(raw)
	if err != nil {
		return registry.Effects{}, err
	}
	return rt.reg.ApplyDestinationUpdate(handle, models.AccountID(p.AccountID), p.DestinationName, p.DestinationLat, p.DestinationLng)
}

func (rt *Router) handleRouteUpdate(handle models.ConnHandle, raw []byte) (registry.Effects, error) {
	p, err := protocol.ParseRouteUpdate(raw)
	if err != nil {
		return registry.Effects{}, err
	}
	return rt.reg.ApplyRouteUpdate(handle, models.AccountID(p.AccountID), p.Geometry, p.DestinationLat, p.DestinationLng)
}

func (rt *Router) handlePassengerUpdate(handle models.ConnHandle, raw []byte) (registry.Effects, error) {
	p, err := protocol.ParsePassengerUpdate(raw)
	if err != nil {
		return registry.Effects{}, err
	}
	return rt.reg.ApplyPassengerUpdate(handle, models.AccountID(p.AccountID), p.PassengerCount, p.MaxCapacity)
}

func (rt *Router) handleGetBusInfo(handle models.ConnHandle, raw []byte) (registry.Effects, error) {
	p, err := protocol.ParseGetBusInfo(raw)
	if err != nil {
		return registry.Effects{}, err
	}
	info, err := rt.reg.BusInfo(models.AccountID(p.AccountID))
	if err != nil {
		pe := protocol.AsProtocolError(err)
		return registry.Effects{Unicasts: []registry.Unicast{
			{Handle: handle, Event: protocol.EventBusInfoError, Payload: protocol.BusInfoErrorPayload{
				AccountID: p.AccountID, Message: pe.Message,
			}},
		}}, nil
	}
	return registry.Effects{Unicasts: []registry.Unicast{
		{Handle: handle, Event: protocol.EventBusInfo, Payload: info},
	}}, nil
}

func (rt *Router) handlePingDriver(handle models.ConnHandle, raw []byte) (registry.Effects, error) {
	p, err := protocol.ParsePingDriver(raw)
	if err != nil {
		return registry.Effects{}, err
	}
	userAccountID := rt.resolveUserAccountID(handle, p.UserAccountID)
	if userAccountID == "" {
		return registry.Effects{}, protocol.NewValidationError("pingDriver requires a resolvable user account")
	}
	return rt.reg.PingDriver(userAccountID, models.AccountID(p.DriverAccountID), p.Lat, p.Lng, p.PassengerCount)
}

func (rt *Router) handleUnpingDriver(handle models.ConnHandle, raw []byte) (registry.Effects, error) {
	p, err := protocol.ParseUnpingDriver(raw)
	if err != nil {
		return registry.Effects{}, err
	}
	userAccountID := rt.resolveUserAccountID(handle, p.UserAccountID)
	if userAccountID == "" {
		return registry.Effects{}, protocol.NewValidationError("unpingDriver requires a resolvable user account")
	}
	return rt.reg.UnpingDriver(userAccountID, models.AccountID(p.DriverAccountID))
}

func (rt *Router) resolveUserAccountID(handle models.ConnHandle, override *string) models.AccountID {
	if override != nil && *override != "" {
		return models.AccountID(*override)
	}
	accountID, _ := rt.reg.AccountOf(handle)
	return accountID
}
