package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/example/collab-session/internal/broadcast"
	"github.com/example/collab-session/internal/config"
	"github.com/example/collab-session/internal/delivery"
	"github.com/example/collab-session/internal/room"
	"github.com/example/collab-session/internal/session"
	"github.com/example/collab-session/pkg/otelhelper"
)

func main() {
	ctx := context.Background()

	// Initialize OpenTelemetry
	otelShutdown, err := otelhelper.Init(ctx)
	if err != nil {
		slog.Error("Failed to initialize OpenTelemetry", "error", err)
		os.Exit(1)
	}
	defer otelShutdown(ctx)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting collab session server", "addr", cfg.Addr, "nats_url", cfg.NatsURL)

	reg := room.NewRegistry(cfg.HistoryLimit)
	dir := room.NewDirectory()
	resolver := broadcast.NewResolver(reg, dir)

	// One-shot backend selection: JetStream when the broker answers the
	// probe, local delivery for the rest of the process lifetime otherwise.
	backend, nc := delivery.Select(ctx, delivery.ProbeConfig{
		URL:      cfg.NatsURL,
		User:     cfg.NatsUser,
		Pass:     cfg.NatsPass,
		Attempts: cfg.ProbeAttempts,
		Timeout:  cfg.ProbeTimeout,
	}, resolver)
	slog.Info("Delivery backend selected", "backend", backend.Name())

	meter := otel.Meter("collabd")
	router := broadcast.NewRouter(backend, meter)
	handler := session.NewHandler(reg, dir, router, session.Config{
		SendBuffer: cfg.SendBuffer,
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		PongWait:   cfg.PongWait,
		WriteWait:  cfg.WriteWait,
	}, meter)

	// Gauges over the registry and directory
	roomsGauge, _ := meter.Int64ObservableGauge("collab_active_rooms",
		metric.WithDescription("Number of active rooms"))
	participantsGauge, _ := meter.Int64ObservableGauge("collab_participants",
		metric.WithDescription("Total room memberships"))
	connsGauge, _ := meter.Int64ObservableGauge("collab_connections",
		metric.WithDescription("Connected clients"))
	_, _ = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(roomsGauge, int64(reg.RoomCount()))
		o.ObserveInt64(participantsGauge, int64(reg.ParticipantCount()))
		o.ObserveInt64(connsGauge, int64(dir.ConnCount()))
		return nil
	}, roomsGauge, participantsGauge, connsGauge)

	mux := http.NewServeMux()
	mux.Handle("/ws", session.NewGateway(handler))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","backend":%q,"rooms":%d}`, backend.Name(), reg.RoomCount())
	})

	srv := &http.Server{Addr: cfg.Addr, Handler: mux}
	go func() {
		slog.Info("Listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	slog.Info("Shutting down collab session server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	backend.Close()
	if nc != nil {
		nc.Drain()
	}
}
