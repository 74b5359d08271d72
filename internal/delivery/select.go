package delivery

import (
	"context"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// ProbeConfig controls the one-shot broker probe at startup.
type ProbeConfig struct {
	URL      string
	User     string
	Pass     string
	Attempts int
	Timeout  time.Duration
}

// Select probes the broker once at startup and returns the backend for the
// rest of the process lifetime. If the probe or presence-stream
// provisioning fails, it falls back permanently to local delivery; the
// degradation is single-process fan-out, never a user-visible error.
// The returned *nats.Conn is nil in the local case; the caller owns
// draining it on shutdown.
func Select(ctx context.Context, cfg ProbeConfig, res RecipientResolver) (Backend, *nats.Conn) {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}

	var nc *nats.Conn
	var err error
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		nc, err = nats.Connect(cfg.URL,
			nats.UserInfo(cfg.User, cfg.Pass),
			nats.Name("collabd"),
			nats.Timeout(cfg.Timeout),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				slog.Warn("NATS disconnected", "error", err)
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				slog.Info("NATS reconnected", "url", nc.ConnectedUrl())
			}),
		)
		if err == nil {
			break
		}
		slog.Info("Waiting for NATS", "attempt", attempt, "error", err)
		if attempt < cfg.Attempts {
			time.Sleep(cfg.Timeout)
		}
	}
	if err != nil {
		slog.Warn("Broker unreachable, using local delivery for process lifetime", "url", cfg.URL, "error", err)
		return NewLocal(res), nil
	}

	broker, err := NewBroker(ctx, nc)
	if err != nil {
		slog.Warn("Broker provisioning failed, using local delivery for process lifetime", "error", err)
		nc.Close()
		return NewLocal(res), nil
	}
	slog.Info("Connected to NATS, using JetStream delivery", "url", nc.ConnectedUrl())
	return broker, nc
}
