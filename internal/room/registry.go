// Package room holds the authoritative in-process session state: the room
// registry (membership, host, recent context) and the participant directory
// (identity → live connection, identity → occupied rooms).
package room

import (
	"encoding/json"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/example/collab-session/internal/event"
)

// DefaultHistoryLimit caps recentChat and recentDrawMarks per room.
const DefaultHistoryLimit = 100

// codeAlphabet excludes easily-confused characters; codes are shared by
// voice or handwriting between participants.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const codeLength = 6

// participant is the registry's record for one room member.
type participant struct {
	name     string
	joinedAt time.Time
}

// state is one registered room. hostID is always a key of participants.
type state struct {
	code         string
	hostID       string
	participants map[string]*participant
	createdAt    time.Time
	lastStamp    int64
	recentChat   *ring[event.ChatMessage]
	recentDraw   *ring[json.RawMessage]
}

// Registry is the process-wide room table. All mutation happens under one
// lock so every operation observes and leaves a consistent state.
type Registry struct {
	mu           sync.RWMutex
	rooms        map[string]*state
	historyLimit int
}

func NewRegistry(historyLimit int) *Registry {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Registry{
		rooms:        make(map[string]*state),
		historyLimit: historyLimit,
	}
}

// stamp returns a server-assigned timestamp for the room, clamped so the
// sequence observed per room never decreases.
func (s *state) stamp() int64 {
	now := time.Now().UnixMilli()
	if now < s.lastStamp {
		now = s.lastStamp
	}
	s.lastStamp = now
	return now
}

func generateCode() string {
	b := make([]byte, codeLength)
	for i := range b {
		b[i] = codeAlphabet[rand.IntN(len(codeAlphabet))]
	}
	return string(b)
}

// Create registers a room with the creator as host and sole participant.
// An empty code asks for a generated one; a caller-supplied code that
// collides with an active room fails with ErrRoomExists.
func (r *Registry) Create(code, hostID, hostName string) (string, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if code == "" {
		for {
			code = generateCode()
			if _, taken := r.rooms[code]; !taken {
				break
			}
		}
	} else if _, taken := r.rooms[code]; taken {
		return "", 0, ErrRoomExists
	}

	now := time.Now()
	s := &state{
		code:         code,
		hostID:       hostID,
		participants: map[string]*participant{hostID: {name: hostName, joinedAt: now}},
		createdAt:    now,
		recentChat:   newRing[event.ChatMessage](r.historyLimit),
		recentDraw:   newRing[json.RawMessage](r.historyLimit),
	}
	r.rooms[code] = s
	return code, s.stamp(), nil
}

// JoinResult reports the outcome of Join. Rejoin distinguishes a refresh of
// an existing membership from a first join; only a first join notifies the
// rest of the room.
type JoinResult struct {
	Rejoin       bool
	IsHost       bool
	HostID       string
	Participants []event.Participant
	RecentChat   []event.ChatMessage
	RecentDraw   []json.RawMessage
	Timestamp    int64
}

// Join adds the participant to the room, or refreshes their entry when
// already present. The snapshot handed back gives a new joiner everything
// needed to render the room.
func (r *Registry) Join(code, userID, name string) (JoinResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.rooms[code]
	if !ok {
		return JoinResult{}, ErrRoomNotFound
	}

	p, present := s.participants[userID]
	if present {
		if name != "" {
			p.name = name
		}
	} else {
		s.participants[userID] = &participant{name: name, joinedAt: time.Now()}
	}

	return JoinResult{
		Rejoin:       present,
		IsHost:       s.hostID == userID,
		HostID:       s.hostID,
		Participants: s.roster(),
		RecentChat:   s.recentChat.items(),
		RecentDraw:   s.recentDraw.items(),
		Timestamp:    s.stamp(),
	}, nil
}

// LeaveResult reports the outcome of Leave. Left is false when the
// participant was already absent (a no-op, not an error). NewHostID is set
// when host failover happened.
type LeaveResult struct {
	Left      bool
	WasHost   bool
	NewHostID string
	Empty     bool
	Remaining []event.Participant
	Timestamp int64
}

// Leave removes the participant. When the departing participant was host
// and others remain, the lowest-sorted remaining id becomes host before the
// room can process anything else; an emptied room is deregistered.
func (r *Registry) Leave(code, userID string) (LeaveResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.rooms[code]
	if !ok {
		return LeaveResult{}, ErrRoomNotFound
	}
	if _, present := s.participants[userID]; !present {
		return LeaveResult{Timestamp: s.stamp()}, nil
	}

	delete(s.participants, userID)
	res := LeaveResult{Left: true, WasHost: s.hostID == userID, Timestamp: s.stamp()}

	if len(s.participants) == 0 {
		delete(r.rooms, code)
		res.Empty = true
		return res, nil
	}

	if res.WasHost {
		ids := make([]string, 0, len(s.participants))
		for id := range s.participants {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		s.hostID = ids[0]
		res.NewHostID = s.hostID
	}
	res.Remaining = s.roster()
	return res, nil
}

// roster builds the wire roster for the room, host first then by id for a
// stable client rendering. Caller must hold the lock.
func (s *state) roster() []event.Participant {
	out := make([]event.Participant, 0, len(s.participants))
	for id, p := range s.participants {
		out = append(out, event.Participant{UserID: id, UserName: p.name, IsHost: id == s.hostID})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsHost != out[j].IsHost {
			return out[i].IsHost
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// Member validates that userID currently occupies the room, returning
// ErrRoomNotFound or ErrNotParticipant so the caller can tell the two
// failures apart.
func (r *Registry) Member(code, userID string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.rooms[code]
	if !ok {
		return ErrRoomNotFound
	}
	if _, present := s.participants[userID]; !present {
		return ErrNotParticipant
	}
	return nil
}

// ParticipantName returns the display name recorded for a room member.
func (r *Registry) ParticipantName(code, userID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.rooms[code]; ok {
		if p, present := s.participants[userID]; present {
			return p.name
		}
	}
	return ""
}

// Roster returns the current wire roster, or nil for an unknown room.
func (r *Registry) Roster(code string) []event.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.rooms[code]; ok {
		return s.roster()
	}
	return nil
}

// Stamp assigns the next server timestamp for the room. Unknown rooms get
// wall-clock time; the caller will fail validation anyway.
func (r *Registry) Stamp(code string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.rooms[code]; ok {
		return s.stamp()
	}
	return time.Now().UnixMilli()
}

// AppendChat records a chat line in the room's bounded recent context.
func (r *Registry) AppendChat(code string, msg event.ChatMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.rooms[code]; ok {
		s.recentChat.append(msg)
	}
}

// AppendDraw records a draw mark in the room's bounded recent context.
func (r *Registry) AppendDraw(code string, mark json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.rooms[code]; ok {
		s.recentDraw.append(mark)
	}
}

// RoomCount is exported for the active-rooms gauge.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// ParticipantCount totals memberships across rooms, for the gauge.
func (r *Registry) ParticipantCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, s := range r.rooms {
		total += len(s.participants)
	}
	return total
}
