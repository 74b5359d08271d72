package delivery

import (
	"context"
	"testing"
	"time"

	"github.com/example/collab-session/internal/event"
	"github.com/example/collab-session/internal/room"
)

type stubResolver struct{}

func (stubResolver) Recipients(string, string) []room.Conn { return nil }

func TestSelect_FallsBackToLocalWhenBrokerUnreachable(t *testing.T) {
	// Nothing listens on port 1; the probe must fail fast and pin the
	// local backend for the process lifetime.
	backend, nc := Select(context.Background(), ProbeConfig{
		URL:      "nats://127.0.0.1:1",
		Attempts: 1,
		Timeout:  500 * time.Millisecond,
	}, stubResolver{})
	if nc != nil {
		t.Fatal("Expected nil NATS connection on fallback")
	}
	if backend.Name() != "local" {
		t.Errorf("Expected local backend, got %q", backend.Name())
	}

	// The fallback backend must still accept publishes without error.
	env := &event.Envelope{Kind: event.KindChat, RoomCode: "R", Frame: []byte(`{}`)}
	if err := backend.Publish(context.Background(), "R", event.ChannelChat, env); err != nil {
		t.Errorf("Local publish errored: %v", err)
	}
}

func TestSubjectPartitioning(t *testing.T) {
	if got := subjectFor("ABC123", event.ChannelChat); got != "collab.chat.ABC123" {
		t.Errorf("chat subject = %q", got)
	}
	if got := subjectFor("ABC123", event.ChannelDrawing); got != "collab.draw.ABC123" {
		t.Errorf("drawing subject = %q", got)
	}
	// Presence is shared across rooms; records carry the room code instead.
	if got := subjectFor("ABC123", event.ChannelPresence); got != presenceSubject {
		t.Errorf("presence subject = %q", got)
	}
	if got := streamFor("ABC123", event.ChannelChat); got != "COLLAB_CHAT_ABC123" {
		t.Errorf("chat stream = %q", got)
	}
	if got := streamFor("ABC123", event.ChannelPresence); got != presenceStream {
		t.Errorf("presence stream = %q", got)
	}
}
