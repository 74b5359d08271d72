package broadcast

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/example/collab-session/internal/delivery"
	"github.com/example/collab-session/internal/event"
	"github.com/example/collab-session/internal/room"
	"github.com/example/collab-session/pkg/otelhelper"
)

// Router fans room events out through the active delivery backend and
// manages per-participant channel subscriptions. With the local backend
// subscriptions are no-ops and delivery happens at publish time; either
// way a recipient observes the same notification sequence for a room.
type Router struct {
	backend delivery.Backend

	fanoutCounter  metric.Int64Counter
	fanoutDuration metric.Float64Histogram
}

func NewRouter(backend delivery.Backend, meter metric.Meter) *Router {
	fanoutCounter, _ := meter.Int64Counter("broadcast_events_total",
		metric.WithDescription("Total room events handed to the delivery backend"))
	fanoutDuration, _ := otelhelper.NewDurationHistogram(meter, "broadcast_publish_duration_seconds",
		"Time to hand one room event to the delivery backend")
	return &Router{
		backend:        backend,
		fanoutCounter:  fanoutCounter,
		fanoutDuration: fanoutDuration,
	}
}

// Broadcast publishes the envelope on its room channel. A failure is
// scoped to this event and caller; it never blocks other rooms.
func (r *Router) Broadcast(ctx context.Context, env *event.Envelope) error {
	start := time.Now()
	channel := event.ChannelFor(env.Kind)
	err := r.backend.Publish(ctx, env.RoomCode, channel, env)

	attrs := metric.WithAttributes(
		attribute.String("channel", channel),
		attribute.String("backend", r.backend.Name()),
	)
	r.fanoutCounter.Add(ctx, 1, attrs)
	r.fanoutDuration.Record(ctx, time.Since(start).Seconds(), attrs)

	if err != nil {
		return fmt.Errorf("broadcast %s to %s: %w", env.Kind, env.RoomCode, err)
	}
	return nil
}

// Attach subscribes a participant's connection to all three room channels.
// The exclusion rule is applied here at delivery time: an envelope naming
// the participant in Exclude is dropped before it reaches the connection.
func (r *Router) Attach(roomCode, userID string, c room.Conn) error {
	fn := func(env *event.Envelope) {
		if env.Exclude == userID {
			return
		}
		c.Push(env.Frame)
	}
	for _, channel := range []string{event.ChannelChat, event.ChannelDrawing, event.ChannelPresence} {
		if err := r.backend.Subscribe(roomCode, channel, userID, fn); err != nil {
			r.Detach(roomCode, userID)
			return err
		}
	}
	return nil
}

// Detach drops the participant's subscriptions for the room.
func (r *Router) Detach(roomCode, userID string) {
	for _, channel := range []string{event.ChannelChat, event.ChannelDrawing, event.ChannelPresence} {
		r.backend.Unsubscribe(roomCode, channel, userID)
	}
}

// BackendName reports the active backend for health reporting.
func (r *Router) BackendName() string { return r.backend.Name() }
