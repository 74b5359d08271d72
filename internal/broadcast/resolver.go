// Package broadcast computes who should receive a room event and hands the
// fan-out to the active delivery backend.
package broadcast

import (
	"github.com/example/collab-session/internal/room"
)

// Resolver turns a room code into the set of live connections that should
// receive an event: current participants minus an optional excluded
// identity. Participants without a live connection in this process are
// skipped; with the broker backend another process delivers to them.
type Resolver struct {
	reg *room.Registry
	dir *room.Directory
}

func NewResolver(reg *room.Registry, dir *room.Directory) *Resolver {
	return &Resolver{reg: reg, dir: dir}
}

func (r *Resolver) Recipients(roomCode, exclude string) []room.Conn {
	roster := r.reg.Roster(roomCode)
	if len(roster) == 0 {
		return nil
	}
	conns := make([]room.Conn, 0, len(roster))
	for _, p := range roster {
		if p.UserID == exclude {
			continue
		}
		if c, ok := r.dir.Conn(p.UserID); ok {
			conns = append(conns, c)
		}
	}
	return conns
}
