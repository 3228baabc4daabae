// Command auditconsumer reads the location analytics feed the relay
// publishes to Kafka and persists each accepted update into the
// durable location-history table, independent of the relay's own broadcast
// path. It exists so that analytics consumers can lag or restart
// without ever touching a live websocket connection.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	_ "github.com/lib/pq"
	"github.com/segmentio/kafka-go"

	"github.com/example/fleetrelay/internal/ingest"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auditconsumer_messages_consumed_total",
		Help: "Total location events consumed from the analytics feed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auditconsumer_messages_invalid_total",
		Help: "Total malformed location events received",
	})
	writesOK = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auditconsumer_writes_total",
		Help: "Total successful location writes",
	})
	writeErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auditconsumer_write_errors_total",
		Help: "Total location write failures",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, writesOK, writeErrors)
}

func main() {
	var metricsAddr string
	flag.StringVar(&metricsAddr, "metrics-addr", ":2113", "address to serve prometheus metrics on")
	flag.Parse()

	brokersEnv := os.Getenv("KAFKA_BROKERS")
	brokers := []string{"localhost:9092"}
	if brokersEnv != "" {
		brokers = nil
		for _, b := range strings.Split(brokersEnv, ",") {
			if s := strings.TrimSpace(b); s != "" {
				brokers = append(brokers, s)
			}
		}
	}

	topic := os.Getenv("KAFKA_TOPIC")
	if topic == "" {
		topic = "driver-locations"
	}
	group := os.Getenv("KAFKA_GROUP")
	if group == "" {
		group = "fleetrelay-audit-consumer"
	}

	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		log.Fatal("PG_DSN is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	store := &locationStore{db: db}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if err := db.PingContext(r.Context()); err != nil {
				http.Error(w, "postgres not ready", http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(200)
			w.Write([]byte("ready"))
		})
		log.Printf("metrics/health listening on %s", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: brokers, Topic: topic, GroupID: group, MinBytes: 10e3, MaxBytes: 10e6})
	defer func() {
		_ = r.Close()
		_ = db.Close()
	}()

	log.Printf("auditconsumer listening topic=%s brokers=%v group=%s", topic, brokers, group)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Println("shutting down auditconsumer")
				return
			}
			log.Printf("kafka read error: %v; backing off %s", err, backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second

		msgsConsumed.Inc()

		var ev ingest.LocationEvent
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			msgsInvalid.Inc()
			log.Printf("invalid location event: %v", err)
			continue
		}

		if err := writeWithRetry(ctx, store, ev, 3, 200*time.Millisecond); err != nil {
			writeErrors.Inc()
			log.Printf("write failed for account=%s: %v", ev.AccountID, err)
			continue
		}
		writesOK.Inc()
	}
}

// updater is the narrow persistence surface writeWithRetry needs,
// letting tests substitute a fake instead of a live database.
type updater interface {
	Write(ctx context.Context, ev ingest.LocationEvent) error
}

type locationStore struct {
	db *sql.DB
}

func (s *locationStore) Write(ctx context.Context, ev ingest.LocationEvent) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO driver_location_history(account_id, lat, lng, passenger_count, max_capacity, observed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.AccountID, ev.Lat, ev.Lng, ev.PassengerCount, ev.MaxCapacity, ev.ObservedAt,
	)
	return err
}

// writeWithRetry persists ev with a small backoff, matching the
// relay's own tolerance for a transient store outage.
func writeWithRetry(ctx context.Context, u updater, ev ingest.LocationEvent, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = u.Write(ctx, ev); err == nil {
			return nil
		}
		if i == attempts-1 {
			return err
		}
		time.Sleep(delay)
		delay *= 2
	}
	return err
}
