package session

import (
	"encoding/json"

	"github.com/example/collab-session/internal/event"
)

// Outbound frame shapes. One JSON object per message; Type is always set.

type initAckFrame struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

type roomCreatedFrame struct {
	Type      string `json:"type"`
	RoomCode  string `json:"roomCode"`
	UserID    string `json:"userId,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type roomJoinedFrame struct {
	Type         string              `json:"type"`
	RoomCode     string              `json:"roomCode"`
	IsHost       bool                `json:"isHost"`
	Participants []event.Participant `json:"participants"`
	RecentChat   []event.ChatMessage `json:"recentChat"`
	RecentDraw   []json.RawMessage   `json:"recentDrawMarks"`
	Timestamp    int64               `json:"timestamp"`
}

type roomLeftFrame struct {
	Type      string `json:"type"`
	RoomCode  string `json:"roomCode"`
	Timestamp int64  `json:"timestamp"`
}

type chatFrame struct {
	Type     string            `json:"type"`
	RoomCode string            `json:"roomCode"`
	Message  event.ChatMessage `json:"message"`
}

type drawFrame struct {
	Type     string          `json:"type"`
	RoomCode string          `json:"roomCode"`
	UserID   string          `json:"userId"`
	Event    json.RawMessage `json:"event"`
}

type userJoinedFrame struct {
	Type      string `json:"type"`
	RoomCode  string `json:"roomCode"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	Timestamp int64  `json:"timestamp"`
}

type userLeftFrame struct {
	Type      string `json:"type"`
	RoomCode  string `json:"roomCode"`
	UserID    string `json:"userId"`
	NewHostID string `json:"newHostId,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type participantsUpdateFrame struct {
	Type         string              `json:"type"`
	RoomCode     string              `json:"roomCode"`
	Participants []event.Participant `json:"participants"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type pongFrame struct {
	Type string `json:"type"`
}

// marshalFrame encodes an outbound frame. The shapes above contain nothing
// that can fail to marshal.
func marshalFrame(v any) []byte {
	data, _ := json.Marshal(v)
	return data
}
