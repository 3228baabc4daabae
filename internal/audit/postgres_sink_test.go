package audit

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func newTestSink(queueSize int) *PostgresSink {
	return &PostgresSink{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		queue:  make(chan Event, queueSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

func TestRecordEnqueuesWithoutBlocking(t *testing.T) {
	p := newTestSink(1)
	ev := Event{Kind: "driverRemoved", AccountID: "d1", At: time.Now()}
	if err := p.Record(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	select {
	case got := <-p.queue:
		if got.AccountID != "d1" {
			t.Fatalf("expected AccountID d1, got %q", got.AccountID)
		}
	default:
		t.Fatal("expected a queued event")
	}
}

func TestRecordReturnsErrorWhenQueueFull(t *testing.T) {
	p := newTestSink(1)
	if err := p.Record(context.Background(), Event{}); err != nil {
		t.Fatalf("first record: %v", err)
	}
	if err := p.Record(context.Background(), Event{}); err != errAuditQueueFull {
		t.Fatalf("expected errAuditQueueFull, got %v", err)
	}
}

func TestNoopSinkNeverErrors(t *testing.T) {
	var s Sink = NoopSink{}
	if err := s.Record(context.Background(), Event{}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}
