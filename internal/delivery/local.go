package delivery

import (
	"context"
	"sync"

	"github.com/example/collab-session/internal/event"
)

// Local delivers by writing straight to the recipients' live connections
// in this process. It needs no external dependency and cannot fan out
// across processes; it is the permanent fallback when the broker probe
// fails at startup.
type Local struct {
	res RecipientResolver

	// mu serializes fan-outs so two events for the same room reach every
	// recipient in the same relative order.
	mu sync.Mutex
}

func NewLocal(res RecipientResolver) *Local {
	return &Local{res: res}
}

func (l *Local) Name() string { return "local" }

func (l *Local) Publish(_ context.Context, roomCode, _ string, env *event.Envelope) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.res.Recipients(roomCode, env.Exclude) {
		c.Push(env.Frame)
	}
	return nil
}

// Subscribe is a no-op: local delivery resolves recipients at publish time.
func (l *Local) Subscribe(_, _, _ string, _ Callback) error { return nil }

func (l *Local) Unsubscribe(_, _, _ string) {}

func (l *Local) Close() {}
