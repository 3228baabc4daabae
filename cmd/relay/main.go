// Command relay runs the fleet connection-and-broadcast engine: it
// accepts websocket connections from drivers and users, routes their
// messages through the registry, and fans out the resulting effects.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"syscall"
	"time"

	"os/signal"

	"github.com/example/fleetrelay/internal/audit"
	"github.com/example/fleetrelay/internal/clock"
	"github.com/example/fleetrelay/internal/config"
	"github.com/example/fleetrelay/internal/fanout"
	"github.com/example/fleetrelay/internal/httpapi"
	"github.com/example/fleetrelay/internal/ingest"
	"github.com/example/fleetrelay/internal/logging"
	"github.com/example/fleetrelay/internal/protocol"
	"github.com/example/fleetrelay/internal/ratelimit"
	"github.com/example/fleetrelay/internal/reaper"
	"github.com/example/fleetrelay/internal/registry"
	"github.com/example/fleetrelay/internal/router"
	"github.com/example/fleetrelay/internal/snapshot"
	"github.com/example/fleetrelay/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	rt := clock.Real{}
	reg := registry.New(rt, cfg.RequireDriverAccountAtRegistration)
	gate := ratelimit.New(cfg.MaxUpdatesPerMinute, time.Minute, rt)

	rtr := router.New(reg, gate, logger, cfg.MovementThresholdDeg, cfg.HeartbeatInterval, cfg.MaxSnapshotDrivers)

	if len(cfg.KafkaBrokers) > 0 {
		producer := ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		defer producer.Close()
		rtr.WithLocationPublisher(producer)
		logger.Info("location analytics feed enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}
	if cfg.RedisAddr != "" {
		mirror := snapshot.NewRedisMirror(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisKeyPrefix, logger)
		defer mirror.Close()
		rtr.WithDriverMirror(mirror)
		logger.Info("driver position mirror enabled", "addr", cfg.RedisAddr)
	}

	var auditSink audit.Sink = audit.NoopSink{}
	if cfg.PGDSN != "" {
		sink, err := audit.NewPostgresSink(cfg.PGDSN, logger)
		if err != nil {
			logger.Error("audit sink unavailable, continuing without it", "error", err)
		} else {
			defer sink.Close()
			auditSink = sink
			logger.Info("driver lifecycle audit sink enabled")
		}
	}

	fan := fanout.New(reg, nil, logger).WithAuditSink(auditSink)
	mgr := transport.New(rtr, fan, reg, logger, cfg.MaxMessageBytes, cfg.PingInterval, cfg.PongTimeout)
	fan.SetSender(mgr)

	rp := reaper.New(reg, gate, fan, mgr, rt, logger, cfg.CleanupInterval, cfg.StaleTimeout, cfg.GracePeriod)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go rp.Run(ctx)

	startedAt := time.Now()
	srv := httpapi.NewServer(reg, mgr, logger, startedAt)
	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Info("relay listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server stopped", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	fan.Deliver(registry.Effects{Broadcasts: []registry.Broadcast{
		{Event: protocol.EventServerShutdown, Payload: protocol.ServerShutdownPayload{Timestamp: time.Now()}},
	}})
	reg.Shutdown()
	time.Sleep(cfg.ShutdownSettle)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
}
