// Package event defines the wire model shared by the session gateway and
// the delivery backends: inbound client frames, outbound notification
// frames, and the envelope that carries a notification through a backend.
package event

import "encoding/json"

// Channel names within a room. Chat and drawing are provisioned per room;
// presence is a single shared channel filtered by room on the consumer side.
const (
	ChannelChat     = "chat"
	ChannelDrawing  = "drawing"
	ChannelPresence = "presence"
)

// Kind tags an envelope relayed through a delivery backend.
type Kind string

const (
	KindChat          Kind = "chat"
	KindDrawStart     Kind = "draw_start"
	KindDrawMove      Kind = "draw_move"
	KindDrawEnd       Kind = "draw_end"
	KindPresenceJoin  Kind = "presence_join"
	KindPresenceLeave Kind = "presence_leave"
	KindRoomCreated   Kind = "room_created"
)

// ChannelFor maps an envelope kind to its room channel.
func ChannelFor(kind Kind) string {
	switch kind {
	case KindChat:
		return ChannelChat
	case KindDrawStart, KindDrawMove, KindDrawEnd:
		return ChannelDrawing
	default:
		return ChannelPresence
	}
}

// Envelope is the record a delivery backend relays for one room
// notification. Frame holds the outbound client frame verbatim so the
// subscriber side can push it without re-marshaling; Exclude names a
// participant that must not receive the frame (a drawing author never sees
// its own relayed strokes).
type Envelope struct {
	Kind      Kind            `json:"kind"`
	RoomCode  string          `json:"roomCode"`
	UserID    string          `json:"userId"`
	Exclude   string          `json:"exclude,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Frame     json.RawMessage `json:"frame"`
}

// Inbound is the superset of all client → server frames. Type selects the
// event; unused fields stay zero.
type Inbound struct {
	Type      string          `json:"type"`
	UserID    string          `json:"userId,omitempty"`
	RoomCode  string          `json:"roomCode,omitempty"`
	UserName  string          `json:"userName,omitempty"`
	Content   string          `json:"content,omitempty"`
	DrawEvent json.RawMessage `json:"drawEvent,omitempty"`
}

// Inbound frame types accepted by the session handler.
const (
	TypeInit        = "init"
	TypeCreateRoom  = "create_room"
	TypeJoinRoom    = "join_room"
	TypeChatMessage = "chat_message"
	TypeDrawEvent   = "draw_event"
	TypeLeaveRoom   = "leave_room"
	TypePing        = "ping"
)

// Outbound frame types.
const (
	TypeInitAck            = "init_ack"
	TypeRoomCreated        = "room_created"
	TypeRoomJoined         = "room_joined"
	TypeRoomLeft           = "room_left"
	TypeUserJoined         = "user_joined"
	TypeUserLeft           = "user_left"
	TypeParticipantsUpdate = "participants_update"
	TypeError              = "error"
	TypePong               = "pong"
)

// ChatMessage is the payload broadcast for one chat line. The id and
// timestamp are assigned by the server when the message is accepted.
type ChatMessage struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// Participant is the roster entry sent in room_joined and
// participants_update frames.
type Participant struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	IsHost   bool   `json:"isHost"`
}

// DrawKind inspects a raw draw payload and classifies it. Clients tag
// strokes with {"type":"start"|"move"|"end"}; anything else is treated as a
// move so a lenient client still relays.
func DrawKind(raw json.RawMessage) Kind {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return KindDrawMove
	}
	switch probe.Type {
	case "start":
		return KindDrawStart
	case "end":
		return KindDrawEnd
	default:
		return KindDrawMove
	}
}
