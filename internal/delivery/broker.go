package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/example/collab-session/internal/event"
	"github.com/example/collab-session/pkg/otelhelper"
)

const (
	presenceStream  = "COLLAB_PRESENCE"
	presenceSubject = "collab.presence"

	streamMaxMsgs = 10000
	streamMaxAge  = 24 * time.Hour
)

// subjectFor maps a room channel to its NATS subject. Presence is one
// shared subject; chat and drawing are partitioned per room.
func subjectFor(roomCode, channel string) string {
	switch channel {
	case event.ChannelChat:
		return "collab.chat." + roomCode
	case event.ChannelDrawing:
		return "collab.draw." + roomCode
	default:
		return presenceSubject
	}
}

// streamFor maps a room channel to its JetStream stream name.
func streamFor(roomCode, channel string) string {
	switch channel {
	case event.ChannelChat:
		return "COLLAB_CHAT_" + roomCode
	case event.ChannelDrawing:
		return "COLLAB_DRAW_" + roomCode
	default:
		return presenceStream
	}
}

type subKey struct {
	roomCode string
	channel  string
	userID   string
}

// Broker publishes every room event to a durable JetStream stream keyed by
// room and channel, and relays records back to subscribers over core NATS.
// Because the relay goes through the broker, a room can be served by more
// than one process at a time.
type Broker struct {
	nc *nats.Conn
	js jetstream.JetStream

	mu          sync.Mutex
	provisioned map[string]bool
	subs        map[subKey]*nats.Subscription
}

// NewBroker builds the JetStream backend and provisions the shared
// presence stream. A provisioning failure here is what flips startup
// selection to the local backend.
func NewBroker(ctx context.Context, nc *nats.Conn) (*Broker, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("%w: jetstream context: %w", ErrProvisioningFailed, err)
	}
	b := &Broker{
		nc:          nc,
		js:          js,
		provisioned: make(map[string]bool),
		subs:        make(map[subKey]*nats.Subscription),
	}
	if err := b.ensureStream(ctx, presenceStream, presenceSubject); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Broker) Name() string { return "jetstream" }

// ensureStream lazily provisions a durable stream. CreateOrUpdateStream is
// idempotent, so concurrent provisioning of the same room is harmless; the
// provisioned set only saves the round trip.
func (b *Broker) ensureStream(ctx context.Context, name, subject string) error {
	b.mu.Lock()
	done := b.provisioned[name]
	b.mu.Unlock()
	if done {
		return nil
	}

	_, err := b.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      name,
		Subjects:  []string{subject},
		Retention: jetstream.LimitsPolicy,
		MaxMsgs:   streamMaxMsgs,
		MaxAge:    streamMaxAge,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("%w: stream %s: %w", ErrProvisioningFailed, name, err)
	}

	b.mu.Lock()
	b.provisioned[name] = true
	b.mu.Unlock()
	slog.Debug("Provisioned stream", "stream", name, "subject", subject)
	return nil
}

func (b *Broker) Publish(ctx context.Context, roomCode, channel string, env *event.Envelope) error {
	if err := b.ensureStream(ctx, streamFor(roomCode, channel), subjectFor(roomCode, channel)); err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("%w: marshal envelope: %w", ErrDeliveryFailed, err)
	}

	subject := subjectFor(roomCode, channel)
	ctx, span := otelhelper.StartProducerSpan(ctx, subject, len(data))
	defer span.End()

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header:  otelhelper.InjectContext(ctx),
	}
	if _, err := b.js.PublishMsg(ctx, msg); err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: publish %s: %w", ErrDeliveryFailed, subject, err)
	}
	return nil
}

// Subscribe attaches a relay consumer for one participant. Presence is a
// shared subject, so records for other rooms are filtered out here. A
// re-subscribe for the same key replaces the old subscription.
func (b *Broker) Subscribe(roomCode, channel, userID string, fn Callback) error {
	sub, err := b.nc.Subscribe(subjectFor(roomCode, channel), func(msg *nats.Msg) {
		_, span := otelhelper.StartConsumerSpan(context.Background(), msg, "relay room event")
		defer span.End()

		var env event.Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			slog.Warn("Invalid relayed envelope", "subject", msg.Subject, "error", err)
			span.RecordError(err)
			return
		}
		if channel == event.ChannelPresence && env.RoomCode != roomCode {
			return
		}
		fn(&env)
	})
	if err != nil {
		return fmt.Errorf("%w: subscribe %s: %w", ErrDeliveryFailed, subjectFor(roomCode, channel), err)
	}

	key := subKey{roomCode, channel, userID}
	b.mu.Lock()
	if old, ok := b.subs[key]; ok {
		old.Unsubscribe()
	}
	b.subs[key] = sub
	b.mu.Unlock()
	return nil
}

func (b *Broker) Unsubscribe(roomCode, channel, userID string) {
	key := subKey{roomCode, channel, userID}
	b.mu.Lock()
	sub, ok := b.subs[key]
	delete(b.subs, key)
	b.mu.Unlock()
	if ok {
		sub.Unsubscribe()
	}
}

func (b *Broker) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[subKey]*nats.Subscription)
	b.mu.Unlock()
	for _, sub := range subs {
		sub.Unsubscribe()
	}
}
