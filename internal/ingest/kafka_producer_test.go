package ingest

import (
	"io"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"

	"github.com/example/fleetrelay/internal/models"
)

func newTestProducer(queueSize int) *KafkaProducer {
	return &KafkaProducer{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		queue:  make(chan publishJob, queueSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

func TestPublishLocationEnqueuesWithoutBlocking(t *testing.T) {
	k := newTestProducer(1)
	if err := k.PublishLocation(models.AccountID("d1"), LocationEvent{AccountID: "d1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	select {
	case job := <-k.queue:
		if job.accountID != "d1" {
			t.Fatalf("expected accountID d1, got %q", job.accountID)
		}
	default:
		t.Fatal("expected a queued job")
	}
}

func TestPublishLocationReturnsErrorWhenQueueFull(t *testing.T) {
	k := newTestProducer(1)
	if err := k.PublishLocation(models.AccountID("d1"), LocationEvent{}); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	if err := k.PublishLocation(models.AccountID("d2"), LocationEvent{}); err != errPublishQueueFull {
		t.Fatalf("expected errPublishQueueFull, got %v", err)
	}
}

func TestCloseStopsWorkerAndClosesWriter(t *testing.T) {
	k := newTestProducer(4)
	k.writer = &kafka.Writer{Addr: kafka.TCP("localhost:9092"), Topic: "t"}
	go k.run()

	if err := k.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	select {
	case <-k.doneCh:
	default:
		t.Fatal("expected worker goroutine to have exited")
	}
}

func TestCloseOnNilWriterIsNoop(t *testing.T) {
	k := newTestProducer(1)
	if err := k.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
