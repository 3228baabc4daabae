// Package snapshot mirrors driver state into Redis as an optional,
// best-effort side channel for external dashboards that want to query
// current positions without opening a websocket. It is never read from
// by the relay itself and never gates a broadcast decision. Writes are
// queued to a background worker so a slow Redis instance never delays
// the caller.
package snapshot

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Entry is the subset of driver state worth mirroring externally.
type Entry struct {
	AccountID      string
	Lat, Lng       float64
	PassengerCount int
	MaxCapacity    int
	IsOnline       bool
}

var errMirrorQueueFull = errors.New("snapshot: mirror queue full, dropping update")

const mirrorQueueSize = 256

type mirrorJob struct {
	remove    bool
	accountID string
	entry     Entry
}

type RedisMirror struct {
	client    *redis.Client
	keyPrefix string
	logger    *slog.Logger
	queue     chan mirrorJob
	stopCh    chan struct{}
	doneCh    chan struct{}
}

func NewRedisMirror(addr, password, keyPrefix string, logger *slog.Logger) *RedisMirror {
	m := &RedisMirror{
		client:    redis.NewClient(&redis.Options{Addr: addr, Password: password}),
		keyPrefix: keyPrefix,
		logger:    logger,
		queue:     make(chan mirrorJob, mirrorQueueSize),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	go m.run()
	return m
}

func (m *RedisMirror) geoKey() string { return m.keyPrefix + ":drivers:geo" }
func (m *RedisMirror) metaKey(accountID string) string {
	return m.keyPrefix + ":drivers:meta:" + accountID
}

// Upsert enqueues a driver's current position and occupancy for
// background mirroring and returns immediately. If the queue is
// saturated the update is dropped and errMirrorQueueFull is returned
// for the caller to log.
func (m *RedisMirror) Upsert(ctx context.Context, e Entry) error {
	select {
	case m.queue <- mirrorJob{entry: e}:
		return nil
	default:
		return errMirrorQueueFull
	}
}

// Remove enqueues the drop of a driver from the mirror. The router calls
// it on endSession only; drivers purged by the reaper are not removed
// from the mirror.
func (m *RedisMirror) Remove(ctx context.Context, accountID string) error {
	select {
	case m.queue <- mirrorJob{remove: true, accountID: accountID}:
		return nil
	default:
		return errMirrorQueueFull
	}
}

func (m *RedisMirror) run() {
	defer close(m.doneCh)
	for {
		select {
		case job := <-m.queue:
			m.apply(job)
		case <-m.stopCh:
			m.drain()
			return
		}
	}
}

func (m *RedisMirror) drain() {
	for {
		select {
		case job := <-m.queue:
			m.apply(job)
		default:
			return
		}
	}
}

func (m *RedisMirror) apply(job mirrorJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if job.remove {
		if err := m.client.ZRem(ctx, m.geoKey(), job.accountID).Err(); err != nil {
			m.logger.Debug("driver mirror remove failed", "error", err)
			return
		}
		if err := m.client.Del(ctx, m.metaKey(job.accountID)).Err(); err != nil {
			m.logger.Debug("driver mirror remove failed", "error", err)
		}
		return
	}
	e := job.entry
	if _, err := m.client.GeoAdd(ctx, m.geoKey(), &redis.GeoLocation{
		Name: e.AccountID, Longitude: e.Lng, Latitude: e.Lat,
	}).Result(); err != nil {
		m.logger.Debug("driver mirror upsert failed", "error", err)
		return
	}
	if err := m.client.HSet(ctx, m.metaKey(e.AccountID), map[string]any{
		"passengerCount": e.PassengerCount,
		"maxCapacity":    e.MaxCapacity,
		"isOnline":       e.IsOnline,
	}).Err(); err != nil {
		m.logger.Debug("driver mirror upsert failed", "error", err)
	}
}

// Close drains queued updates, stops the background worker, and closes
// the underlying client.
func (m *RedisMirror) Close() error {
	close(m.stopCh)
	<-m.doneCh
	return m.client.Close()
}
