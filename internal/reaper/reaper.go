// Package reaper implements the periodic sweep of §4.8: reconciling
// registry entries against live transport state, purging accounts that
// have exceeded their stale timeout past grace, and expiring rate-gate
// buckets.
package reaper

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/fleetrelay/internal/clock"
	"github.com/example/fleetrelay/internal/fanout"
	"github.com/example/fleetrelay/internal/observability"
	"github.com/example/fleetrelay/internal/ratelimit"
	"github.com/example/fleetrelay/internal/registry"
)

type Reaper struct {
	reg      *registry.Registry
	gate     *ratelimit.Gate
	fan      *fanout.Fanout
	liveness registry.LivenessChecker
	clock    clock.Clock
	logger   *slog.Logger

	interval     time.Duration
	staleTimeout time.Duration
	gracePeriod  time.Duration
}

func New(reg *registry.Registry, gate *ratelimit.Gate, fan *fanout.Fanout, liveness registry.LivenessChecker, c clock.Clock, logger *slog.Logger, interval, staleTimeout, gracePeriod time.Duration) *Reaper {
	return &Reaper{
		reg:          reg,
		gate:         gate,
		fan:          fan,
		liveness:     liveness,
		clock:        c,
		logger:       logger,
		interval:     interval,
		staleTimeout: staleTimeout,
		gracePeriod:  gracePeriod,
	}
}

// Run ticks until ctx is cancelled, delivering any effects each sweep
// produces (mainly driverRemoved broadcasts and pruned ping unicasts).
func (rp *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(rp.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rp.tick()
		}
	}
}

func (rp *Reaper) tick() {
	observability.ReaperSweepsTotal.Inc()

	rp.fan.Deliver(rp.reg.ReconcileConnections(rp.liveness))

	stale := rp.reg.SweepStale(rp.clock.Now(), rp.staleTimeout, rp.gracePeriod)
	observability.DriversRemovedTotal.Add(float64(len(stale.Broadcasts)))
	rp.fan.Deliver(stale)

	if dropped := rp.gate.Sweep(); dropped > 0 {
		rp.logger.Debug("reaper swept rate-gate buckets", "dropped", dropped)
	}

	observability.DriversConnected.Set(float64(rp.reg.LiveDriverCount()))
	observability.UsersConnected.Set(float64(len(rp.reg.LiveUserHandles())))
}
