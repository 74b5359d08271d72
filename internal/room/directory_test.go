package room

import (
	"sort"
	"testing"
)

type fakeConn struct{ id string }

func (f *fakeConn) Push([]byte) {}

func TestDirectory_BindSupersedes(t *testing.T) {
	dir := NewDirectory()
	old := &fakeConn{id: "old"}
	fresh := &fakeConn{id: "new"}

	dir.Bind("u1", old)
	dir.Bind("u1", fresh)

	c, ok := dir.Conn("u1")
	if !ok || c != fresh {
		t.Error("New connection must supersede the old one")
	}
}

func TestDirectory_DetachOnlyCurrent(t *testing.T) {
	dir := NewDirectory()
	old := &fakeConn{id: "old"}
	fresh := &fakeConn{id: "new"}

	dir.Bind("u1", old)
	dir.Bind("u1", fresh)
	dir.Detach("u1", old) // stale detach must not clear the new binding

	if _, ok := dir.Conn("u1"); !ok {
		t.Error("Detach of a superseded connection cleared the current one")
	}

	dir.Detach("u1", fresh)
	if _, ok := dir.Conn("u1"); ok {
		t.Error("Detach of the current connection should clear the binding")
	}
}

func TestDirectory_RemoveRoom(t *testing.T) {
	dir := NewDirectory()
	c := &fakeConn{id: "c"}
	dir.Bind("u1", c)
	dir.AddRoom("u1", "R1")
	dir.AddRoom("u1", "R2")
	dir.RemoveRoom("u1", "R1")

	codes := dir.DropEverywhere("u1", c)
	if len(codes) != 1 || codes[0] != "R2" {
		t.Errorf("Occupancy after RemoveRoom = %v, want [R2]", codes)
	}
}

func TestDirectory_DropEverywhere(t *testing.T) {
	dir := NewDirectory()
	c := &fakeConn{id: "c"}
	dir.Bind("u1", c)
	dir.AddRoom("u1", "R1")
	dir.AddRoom("u1", "R2")

	codes := dir.DropEverywhere("u1", c)
	sort.Strings(codes)
	if len(codes) != 2 || codes[0] != "R1" || codes[1] != "R2" {
		t.Errorf("DropEverywhere = %v, want [R1 R2]", codes)
	}
	if _, ok := dir.Conn("u1"); ok {
		t.Error("Identity still bound after drop")
	}
	dir.Bind("u1", c)
	if again := dir.DropEverywhere("u1", c); again != nil {
		t.Errorf("Room set not cleared after drop: %v", again)
	}
}

func TestDirectory_DropEverywhereAfterRebind(t *testing.T) {
	// A connection superseded by a newer one must not drop the identity
	// when it closes.
	dir := NewDirectory()
	old := &fakeConn{id: "old"}
	fresh := &fakeConn{id: "new"}
	dir.Bind("u1", old)
	dir.AddRoom("u1", "R1")
	dir.Bind("u1", fresh)

	if codes := dir.DropEverywhere("u1", old); codes != nil {
		t.Errorf("Stale connection dropped rooms: %v", codes)
	}
	if _, ok := dir.Conn("u1"); !ok {
		t.Error("Current binding lost")
	}
	if codes := dir.DropEverywhere("u1", fresh); len(codes) != 1 || codes[0] != "R1" {
		t.Errorf("Room membership lost: %v", codes)
	}
}
