package room

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/example/collab-session/internal/event"
)

func TestRegistry_CreateGeneratesCode(t *testing.T) {
	reg := NewRegistry(0)

	code, ts, err := reg.Create("", "host-1", "Alice")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if len(code) != 6 {
		t.Errorf("Expected 6-char generated code, got %q", code)
	}
	if ts == 0 {
		t.Error("Expected a server-assigned timestamp")
	}
	if err := reg.Member(code, "host-1"); err != nil {
		t.Errorf("Creator should be a participant of the new room: %v", err)
	}
}

func TestRegistry_CreateCollision(t *testing.T) {
	reg := NewRegistry(0)

	if _, _, err := reg.Create("ABC123", "host-1", "Alice"); err != nil {
		t.Fatalf("First create failed: %v", err)
	}
	if _, _, err := reg.Create("ABC123", "host-2", "Mallory"); err != ErrRoomExists {
		t.Errorf("Expected ErrRoomExists, got %v", err)
	}
	// The original room must be untouched.
	if err := reg.Member("ABC123", "host-1"); err != nil {
		t.Errorf("Collision overwrote the existing room: %v", err)
	}
	if err := reg.Member("ABC123", "host-2"); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("Colliding creator must not be added, got %v", err)
	}
}

func TestRegistry_JoinUnknownRoom(t *testing.T) {
	reg := NewRegistry(0)

	if _, err := reg.Join("ZZZ", "u1", "Bob"); err != ErrRoomNotFound {
		t.Errorf("Expected ErrRoomNotFound, got %v", err)
	}
	// The failed join must not create the room as a side effect.
	if err := reg.Member("ZZZ", "u1"); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("Join of unknown room created it: %v", err)
	}
}

func TestRegistry_JoinIdempotent(t *testing.T) {
	reg := NewRegistry(0)
	reg.Create("ABC123", "host-1", "Alice")

	first, err := reg.Join("ABC123", "u2", "Bob")
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if first.Rejoin {
		t.Error("First join reported as rejoin")
	}

	again, err := reg.Join("ABC123", "u2", "Bobby")
	if err != nil {
		t.Fatalf("Rejoin failed: %v", err)
	}
	if !again.Rejoin {
		t.Error("Second join not reported as rejoin")
	}
	if len(again.Participants) != 2 {
		t.Errorf("Rejoin duplicated membership: %d participants", len(again.Participants))
	}
	if got := reg.ParticipantName("ABC123", "u2"); got != "Bobby" {
		t.Errorf("Rejoin should refresh displayName, got %q", got)
	}
}

func TestRegistry_NetMembership(t *testing.T) {
	// For any sequence of joins and leaves, the participant set equals the
	// identities that joined (net) more than they left, and the room is
	// gone iff that set is empty.
	reg := NewRegistry(0)
	reg.Create("R", "a", "A")

	reg.Join("R", "b", "B")
	reg.Join("R", "c", "C")
	reg.Leave("R", "b")
	reg.Join("R", "b", "B")
	reg.Leave("R", "c")

	roster := reg.Roster("R")
	want := map[string]bool{"a": true, "b": true}
	if len(roster) != len(want) {
		t.Fatalf("Expected %d participants, got %d", len(want), len(roster))
	}
	for _, p := range roster {
		if !want[p.UserID] {
			t.Errorf("Unexpected participant %q", p.UserID)
		}
	}

	reg.Leave("R", "a")
	reg.Leave("R", "b")
	if err := reg.Member("R", "a"); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("Emptied room must be deregistered, got %v", err)
	}
}

func TestRegistry_LeaveAbsentIsNoop(t *testing.T) {
	reg := NewRegistry(0)
	reg.Create("R", "a", "A")

	res, err := reg.Leave("R", "ghost")
	if err != nil {
		t.Fatalf("Leave of absent participant errored: %v", err)
	}
	if res.Left {
		t.Error("Leave of absent participant reported Left")
	}
	if err := reg.Member("R", "a"); err != nil {
		t.Errorf("No-op leave must not touch the room: %v", err)
	}
}

func TestRegistry_HostFailoverDeterministic(t *testing.T) {
	reg := NewRegistry(0)
	reg.Create("R", "m-host", "Host")
	reg.Join("R", "c-user", "C")
	reg.Join("R", "b-user", "B")

	res, err := reg.Leave("R", "m-host")
	if err != nil {
		t.Fatalf("Leave failed: %v", err)
	}
	if !res.WasHost {
		t.Error("Departing host not flagged as host")
	}
	if res.NewHostID != "b-user" {
		t.Errorf("Expected lowest-sorted id b-user as new host, got %q", res.NewHostID)
	}

	// The roster must reflect the new host immediately.
	for _, p := range reg.Roster("R") {
		if p.IsHost != (p.UserID == "b-user") {
			t.Errorf("Host flag wrong for %q", p.UserID)
		}
	}
}

func TestRegistry_HostRetainedWhenNonHostLeaves(t *testing.T) {
	reg := NewRegistry(0)
	reg.Create("R", "a", "A")
	reg.Join("R", "b", "B")

	res, err := reg.Leave("R", "b")
	if err != nil {
		t.Fatalf("Leave failed: %v", err)
	}
	if res.WasHost || res.NewHostID != "" {
		t.Errorf("Non-host departure must not reassign host: %+v", res)
	}
}

func TestRegistry_StampMonotonic(t *testing.T) {
	reg := NewRegistry(0)
	reg.Create("R", "a", "A")

	var last int64
	for i := 0; i < 1000; i++ {
		ts := reg.Stamp("R")
		if ts < last {
			t.Fatalf("Timestamp went backwards: %d after %d", ts, last)
		}
		last = ts
	}
}

func TestRegistry_HistoryBounded(t *testing.T) {
	reg := NewRegistry(5)
	reg.Create("R", "a", "A")

	for i := 0; i < 12; i++ {
		reg.AppendChat("R", event.ChatMessage{ID: fmt.Sprintf("m%d", i), Content: fmt.Sprintf("line %d", i)})
		reg.AppendDraw("R", json.RawMessage(fmt.Sprintf(`{"seq":%d}`, i)))
	}

	res, err := reg.Join("R", "b", "B")
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if len(res.RecentChat) != 5 {
		t.Fatalf("Expected 5 recent chat entries, got %d", len(res.RecentChat))
	}
	// Oldest first, keeping only the newest five.
	if res.RecentChat[0].ID != "m7" || res.RecentChat[4].ID != "m11" {
		t.Errorf("Recent chat window wrong: first=%s last=%s", res.RecentChat[0].ID, res.RecentChat[4].ID)
	}
	if len(res.RecentDraw) != 5 {
		t.Errorf("Expected 5 recent draw marks, got %d", len(res.RecentDraw))
	}
}

func TestRegistry_Counts(t *testing.T) {
	reg := NewRegistry(0)
	reg.Create("R1", "a", "A")
	reg.Create("R2", "b", "B")
	reg.Join("R1", "c", "C")

	if got := reg.RoomCount(); got != 2 {
		t.Errorf("RoomCount = %d, want 2", got)
	}
	if got := reg.ParticipantCount(); got != 3 {
		t.Errorf("ParticipantCount = %d, want 3", got)
	}
}

func TestRegistry_Member(t *testing.T) {
	reg := NewRegistry(0)
	reg.Create("ABC123", "host-1", "Alice")

	if err := reg.Member("ABC123", "host-1"); err != nil {
		t.Errorf("Expected member, got %v", err)
	}
	if err := reg.Member("ABC123", "stranger"); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("Expected ErrNotParticipant, got %v", err)
	}
	if err := reg.Member("ZZZ", "host-1"); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("Expected ErrRoomNotFound, got %v", err)
	}
}
