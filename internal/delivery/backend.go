// Package delivery provides the pluggable fan-out mechanism for room
// events: a JetStream-backed backend that relays through NATS so any
// process can serve any room, and a local backend that writes straight to
// in-process connections. Both satisfy Backend; selection happens once at
// startup and never changes mid-flight.
package delivery

import (
	"context"
	"errors"

	"github.com/example/collab-session/internal/event"
	"github.com/example/collab-session/internal/room"
)

var (
	// ErrDeliveryFailed wraps a backend publish or subscribe error. It
	// affects only the originating caller; other rooms keep flowing.
	ErrDeliveryFailed = errors.New("delivery failed")

	// ErrProvisioningFailed wraps a channel/stream setup error. During
	// startup selection it triggers the permanent local fallback.
	ErrProvisioningFailed = errors.New("channel provisioning failed")
)

// Callback receives each relayed envelope for one subscription.
type Callback func(env *event.Envelope)

// Backend is the delivery contract shared by the broker-backed and local
// implementations.
type Backend interface {
	// Name identifies the active backend ("jetstream" or "local").
	Name() string

	// Publish fans the envelope out on the room's channel.
	Publish(ctx context.Context, roomCode, channel string, env *event.Envelope) error

	// Subscribe attaches fn to the room channel for one participant. The
	// local backend has no external channel and treats this as a no-op.
	Subscribe(roomCode, channel, userID string, fn Callback) error

	// Unsubscribe detaches the participant's subscription, if any.
	Unsubscribe(roomCode, channel, userID string)

	// Close releases backend resources.
	Close()
}

// RecipientResolver computes the live connections that should receive a
// room event, minus an optional excluded identity. The broadcast router's
// resolver satisfies this; the local backend uses it to deliver directly.
type RecipientResolver interface {
	Recipients(roomCode, exclude string) []room.Conn
}
