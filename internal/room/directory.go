package room

import "sync"

// Conn is the write side of one live client connection. Push must preserve
// the order of frames handed to it for a single recipient.
type Conn interface {
	Push(frame []byte)
}

// Directory maps a participant identity to the one connection currently
// eligible to receive pushes for it, and to the set of rooms it occupies.
// A new connection for the same identity supersedes the old one; the
// directory does not fan out to multiple connections per identity.
type Directory struct {
	mu    sync.RWMutex
	conns map[string]Conn
	rooms map[string]map[string]bool // userID -> set of room codes
}

func NewDirectory() *Directory {
	return &Directory{
		conns: make(map[string]Conn),
		rooms: make(map[string]map[string]bool),
	}
}

// Bind makes c the delivery connection for userID, superseding any
// previous connection bound to that identity.
func (d *Directory) Bind(userID string, c Conn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conns[userID] = c
}

// Detach removes the identity's connection binding, but only if it still
// points at c. The identity keeps its room memberships; this is the rebind
// path, where an old identity loses delivery without leaving its rooms.
func (d *Directory) Detach(userID string, c Conn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conns[userID] == c {
		delete(d.conns, userID)
	}
}

// Conn returns the live connection for an identity, if any.
func (d *Directory) Conn(userID string) (Conn, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.conns[userID]
	return c, ok
}

// AddRoom records that the identity occupies the room.
func (d *Directory) AddRoom(userID, code string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rooms[userID] == nil {
		d.rooms[userID] = make(map[string]bool)
	}
	d.rooms[userID][code] = true
}

// RemoveRoom clears one room from the identity's occupancy set.
func (d *Directory) RemoveRoom(userID, code string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if set, ok := d.rooms[userID]; ok {
		delete(set, code)
		if len(set) == 0 {
			delete(d.rooms, userID)
		}
	}
}

// DropEverywhere clears the identity's directory entry on connection loss
// and returns the rooms it occupied so the caller can run the leave flow
// for each. It is a no-op when the identity has been rebound to a newer
// connection than from.
func (d *Directory) DropEverywhere(userID string, from Conn) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conns[userID] != from {
		return nil
	}
	delete(d.conns, userID)
	set := d.rooms[userID]
	delete(d.rooms, userID)
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for code := range set {
		out = append(out, code)
	}
	return out
}

// ConnCount is exported for the connected-clients gauge.
func (d *Directory) ConnCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.conns)
}
