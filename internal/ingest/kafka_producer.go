// Package ingest publishes an optional, best-effort analytics feed of
// accepted driver location updates to Kafka. It never sits on the
// critical broadcast path: publish failures are logged and dropped, and
// the write itself happens on a background worker so a stalled broker
// never delays the caller.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/fleetrelay/internal/models"
)

// LocationEvent is the analytics record published for each accepted
// updateLocation event, independent of the update filter's broadcast
// decision — the audit feed sees every accepted update, not just the
// ones that were worth fanning out to users.
type LocationEvent struct {
	AccountID      string    `json:"accountId"`
	Lat            float64   `json:"lat"`
	Lng            float64   `json:"lng"`
	PassengerCount int       `json:"passengerCount"`
	MaxCapacity    int       `json:"maxCapacity"`
	ObservedAt     time.Time `json:"observedAt"`
}

var errPublishQueueFull = errors.New("ingest: publish queue full, dropping event")

const publishQueueSize = 256

type publishJob struct {
	accountID models.AccountID
	event     LocationEvent
}

type KafkaProducer struct {
	writer *kafka.Writer
	logger *slog.Logger
	queue  chan publishJob
	stopCh chan struct{}
	doneCh chan struct{}
}

func NewKafkaProducer(brokers []string, topic string, logger *slog.Logger) *KafkaProducer {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}
	k := &KafkaProducer{
		writer: w,
		logger: logger,
		queue:  make(chan publishJob, publishQueueSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go k.run()
	return k
}

// PublishLocation enqueues ev for background delivery and returns
// immediately; it never waits on the broker. If the queue is saturated
// the event is dropped and errPublishQueueFull is returned for the
// caller to log.
func (k *KafkaProducer) PublishLocation(accountID models.AccountID, ev LocationEvent) error {
	select {
	case k.queue <- publishJob{accountID: accountID, event: ev}:
		return nil
	default:
		return errPublishQueueFull
	}
}

func (k *KafkaProducer) run() {
	defer close(k.doneCh)
	for {
		select {
		case job := <-k.queue:
			k.write(job)
		case <-k.stopCh:
			k.drain()
			return
		}
	}
}

func (k *KafkaProducer) drain() {
	for {
		select {
		case job := <-k.queue:
			k.write(job)
		default:
			return
		}
	}
}

func (k *KafkaProducer) write(job publishJob) {
	b, err := json.Marshal(job.event)
	if err != nil {
		k.logger.Debug("location analytics marshal failed", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(job.accountID), Value: b}); err != nil {
		k.logger.Debug("location analytics publish failed", "error", err)
	}
}

// Close drains queued events, stops the background worker, and closes
// the underlying writer.
func (k *KafkaProducer) Close() error {
	if k.writer == nil {
		return nil
	}
	close(k.stopCh)
	<-k.doneCh
	return k.writer.Close()
}
