// Package audit provides an optional, durable log of driver lifecycle
// events for after-the-fact analysis. The relay records only driver
// removals (explicit endSession and reaper purges alike, both as
// "driverRemoved"); preemptions are not recorded. It is write-only and never consulted by the relay's own
// logic — the in-memory registry remains the single source of truth
// for what is currently true (§9 Non-goals: no durable state). Writes
// are queued to a background worker so a slow database never delays
// the caller, which in practice means it never delays a broadcast.
package audit

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
)

// Event is one lifecycle transition worth recording durably.
type Event struct {
	Kind      string // the relay only writes "driverRemoved"
	AccountID string
	Reason    string
	At        time.Time
}

// Sink records lifecycle events. NoopSink is used when no PGDSN is
// configured; PostgresSink is used otherwise.
type Sink interface {
	Record(ctx context.Context, ev Event) error
}

type NoopSink struct{}

func (NoopSink) Record(context.Context, Event) error { return nil }

var errAuditQueueFull = errors.New("audit: record queue full, dropping event")

const auditQueueSize = 256

type PostgresSink struct {
	db     *sql.DB
	logger *slog.Logger
	queue  chan Event
	stopCh chan struct{}
	doneCh chan struct{}
}

func NewPostgresSink(dsn string, logger *slog.Logger) (*PostgresSink, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	p := &PostgresSink{
		db:     db,
		logger: logger,
		queue:  make(chan Event, auditQueueSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go p.run()
	return p, nil
}

// Record enqueues ev for background persistence and returns
// immediately; it never waits on the database. If the queue is
// saturated the event is dropped and errAuditQueueFull is returned for
// the caller to log.
func (p *PostgresSink) Record(ctx context.Context, ev Event) error {
	select {
	case p.queue <- ev:
		return nil
	default:
		return errAuditQueueFull
	}
}

func (p *PostgresSink) run() {
	defer close(p.doneCh)
	for {
		select {
		case ev := <-p.queue:
			p.write(ev)
		case <-p.stopCh:
			p.drain()
			return
		}
	}
}

func (p *PostgresSink) drain() {
	for {
		select {
		case ev := <-p.queue:
			p.write(ev)
		default:
			return
		}
	}
}

func (p *PostgresSink) write(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO driver_lifecycle_events(kind, account_id, reason, occurred_at) VALUES ($1, $2, $3, $4)`,
		ev.Kind, ev.AccountID, ev.Reason, ev.At,
	)
	if err != nil {
		p.logger.Debug("audit record failed", "error", err)
	}
}

// Close drains queued events, stops the background worker, and closes
// the underlying database handle.
func (p *PostgresSink) Close() error {
	close(p.stopCh)
	<-p.doneCh
	return p.db.Close()
}
