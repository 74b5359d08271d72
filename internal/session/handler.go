// Package session implements the per-connection protocol: a state machine
// that accepts typed JSON events over WebSocket, validates them against the
// room registry and participant directory, and routes the resulting
// notifications through the broadcast router.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/example/collab-session/internal/broadcast"
	"github.com/example/collab-session/internal/event"
	"github.com/example/collab-session/internal/room"
)

// User-facing error messages, sent only to the offending connection.
const (
	msgNotInitialized  = "not initialized"
	msgInvalidMessage  = "invalid message"
	msgRoomNotFound    = "room not found"
	msgRoomExists      = "room already exists"
	msgNotParticipant  = "not a participant of this room"
	msgDeliveryFailure = "failed to send"
)

// Config holds the per-connection transport knobs.
type Config struct {
	SendBuffer int
	ReadLimit  int64
	PingPeriod time.Duration
	PongWait   time.Duration
	WriteWait  time.Duration
}

// Handler runs the session protocol for every accepted connection.
type Handler struct {
	reg    *room.Registry
	dir    *room.Directory
	router *broadcast.Router
	cfg    Config

	sessionCounter metric.Int64Counter
	chatCounter    metric.Int64Counter
	drawCounter    metric.Int64Counter
	errorCounter   metric.Int64Counter
}

func NewHandler(reg *room.Registry, dir *room.Directory, router *broadcast.Router, cfg Config, meter metric.Meter) *Handler {
	sessionCounter, _ := meter.Int64Counter("session_connections_total",
		metric.WithDescription("Total WebSocket sessions accepted"))
	chatCounter, _ := meter.Int64Counter("session_chat_messages_total",
		metric.WithDescription("Total chat messages accepted"))
	drawCounter, _ := meter.Int64Counter("session_draw_events_total",
		metric.WithDescription("Total draw events accepted"))
	errorCounter, _ := meter.Int64Counter("session_errors_total",
		metric.WithDescription("Total error frames sent to clients"))
	return &Handler{
		reg:            reg,
		dir:            dir,
		router:         router,
		cfg:            cfg,
		sessionCounter: sessionCounter,
		chatCounter:    chatCounter,
		drawCounter:    drawCounter,
		errorCounter:   errorCounter,
	}
}

// conn state machine. A session is Unbound until init assigns an identity,
// Bound until the transport closes, then Closed (cleanup has run).
type sessionState struct {
	conn   room.Conn
	bound  bool
	userID string
	rooms  map[string]bool
}

// Serve owns one connection for its whole life: it starts the writer,
// reads frames until the transport closes, then runs disconnect cleanup.
func (h *Handler) Serve(ws *websocket.Conn) {
	ctx := context.Background()
	h.sessionCounter.Add(ctx, 1)

	c := newWSConn(ws, h.cfg.SendBuffer, h.cfg.PingPeriod, h.cfg.WriteWait)
	go c.writePump()

	s := &sessionState{conn: c, rooms: make(map[string]bool)}

	ws.SetReadLimit(h.cfg.ReadLimit)
	ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			break
		}
		h.dispatch(ctx, s, raw)
	}

	h.closeSession(ctx, s)
	c.shutdown()
}

func (h *Handler) dispatch(ctx context.Context, s *sessionState, raw []byte) {
	var in event.Inbound
	if err := json.Unmarshal(raw, &in); err != nil || in.Type == "" {
		h.sendError(ctx, s, msgInvalidMessage)
		return
	}

	if !s.bound && in.Type != event.TypeInit {
		h.sendError(ctx, s, msgNotInitialized)
		return
	}

	switch in.Type {
	case event.TypeInit:
		h.handleInit(s, &in)
	case event.TypeCreateRoom:
		h.handleCreate(ctx, s, &in)
	case event.TypeJoinRoom:
		h.handleJoin(ctx, s, &in)
	case event.TypeChatMessage:
		h.handleChat(ctx, s, &in)
	case event.TypeDrawEvent:
		h.handleDraw(ctx, s, &in)
	case event.TypeLeaveRoom:
		h.handleLeave(ctx, s, &in)
	case event.TypePing:
		s.conn.Push(marshalFrame(pongFrame{Type: event.TypePong}))
	default:
		h.sendError(ctx, s, msgInvalidMessage)
	}
}

// handleInit binds (or rebinds) the connection to an identity. A missing
// userId gets a generated one. Re-init with a different id detaches the
// old identity from this connection without removing it from its rooms.
func (h *Handler) handleInit(s *sessionState, in *event.Inbound) {
	userID := in.UserID
	if userID == "" {
		userID = uuid.NewString()
	}

	if s.bound && userID != s.userID {
		// Drop the old identity's subscriptions only while this connection
		// is still its live one; after a supersession the (room, user)
		// keys belong to the newer connection.
		if c, ok := h.dir.Conn(s.userID); ok && c == s.conn {
			for code := range s.rooms {
				h.router.Detach(code, s.userID)
			}
			h.dir.Detach(s.userID, s.conn)
		}
		s.rooms = make(map[string]bool)
		slog.Info("Session rebound", "old", s.userID, "new", userID)
	}

	h.dir.Bind(userID, s.conn)
	s.userID = userID
	s.bound = true
	s.conn.Push(marshalFrame(initAckFrame{Type: event.TypeInitAck, UserID: userID}))
}

func (h *Handler) handleCreate(ctx context.Context, s *sessionState, in *event.Inbound) {
	code, ts, err := h.reg.Create(in.RoomCode, s.userID, in.UserName)
	if err != nil {
		h.sendError(ctx, s, msgRoomExists)
		return
	}

	h.dir.AddRoom(s.userID, code)
	s.rooms[code] = true
	if err := h.router.Attach(code, s.userID, s.conn); err != nil {
		slog.ErrorContext(ctx, "Failed to attach room channels", "room", code, "user", s.userID, "error", err)
		h.rollbackMembership(code, s)
		h.sendError(ctx, s, msgDeliveryFailure)
		return
	}

	s.conn.Push(marshalFrame(roomCreatedFrame{Type: event.TypeRoomCreated, RoomCode: code, Timestamp: ts}))
	slog.InfoContext(ctx, "Room created", "room", code, "host", s.userID)

	// Presence record so other processes observe the new room; the creator
	// already has the direct ack.
	h.publish(ctx, s, &event.Envelope{
		Kind:      event.KindRoomCreated,
		RoomCode:  code,
		UserID:    s.userID,
		Exclude:   s.userID,
		Timestamp: ts,
		Frame:     marshalFrame(roomCreatedFrame{Type: event.TypeRoomCreated, RoomCode: code, UserID: s.userID, Timestamp: ts}),
	})
}

func (h *Handler) handleJoin(ctx context.Context, s *sessionState, in *event.Inbound) {
	res, err := h.reg.Join(in.RoomCode, s.userID, in.UserName)
	if err != nil {
		h.sendError(ctx, s, msgRoomNotFound)
		return
	}

	code := in.RoomCode
	h.dir.AddRoom(s.userID, code)
	s.rooms[code] = true
	if err := h.router.Attach(code, s.userID, s.conn); err != nil {
		slog.ErrorContext(ctx, "Failed to attach room channels", "room", code, "user", s.userID, "error", err)
		// A participant who would silently miss every relayed event is
		// worse than a failed join; a rejoin keeps its prior membership.
		if !res.Rejoin {
			h.rollbackMembership(code, s)
		}
		h.sendError(ctx, s, msgDeliveryFailure)
		return
	}

	s.conn.Push(marshalFrame(roomJoinedFrame{
		Type:         event.TypeRoomJoined,
		RoomCode:     code,
		IsHost:       res.IsHost,
		Participants: res.Participants,
		RecentChat:   res.RecentChat,
		RecentDraw:   res.RecentDraw,
		Timestamp:    res.Timestamp,
	}))

	// A re-join refreshes the membership entry only: the rest of the room
	// gets a roster update but no user_joined notification.
	if !res.Rejoin {
		h.publish(ctx, s, &event.Envelope{
			Kind:      event.KindPresenceJoin,
			RoomCode:  code,
			UserID:    s.userID,
			Exclude:   s.userID,
			Timestamp: res.Timestamp,
			Frame: marshalFrame(userJoinedFrame{
				Type:      event.TypeUserJoined,
				RoomCode:  code,
				UserID:    s.userID,
				UserName:  in.UserName,
				Timestamp: res.Timestamp,
			}),
		})
		slog.InfoContext(ctx, "User joined room", "room", code, "user", s.userID)
	}
	h.publish(ctx, s, &event.Envelope{
		Kind:      event.KindPresenceJoin,
		RoomCode:  code,
		UserID:    s.userID,
		Exclude:   s.userID,
		Timestamp: res.Timestamp,
		Frame: marshalFrame(participantsUpdateFrame{
			Type:         event.TypeParticipantsUpdate,
			RoomCode:     code,
			Participants: res.Participants,
		}),
	})
}

func (h *Handler) handleChat(ctx context.Context, s *sessionState, in *event.Inbound) {
	if !h.validateMember(ctx, s, in.RoomCode) {
		return
	}

	msg := event.ChatMessage{
		ID:        uuid.NewString(),
		UserID:    s.userID,
		UserName:  h.reg.ParticipantName(in.RoomCode, s.userID),
		Content:   in.Content,
		Timestamp: h.reg.Stamp(in.RoomCode),
	}
	h.reg.AppendChat(in.RoomCode, msg)
	h.chatCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("room", in.RoomCode)))

	h.publish(ctx, s, &event.Envelope{
		Kind:      event.KindChat,
		RoomCode:  in.RoomCode,
		UserID:    s.userID,
		Timestamp: msg.Timestamp,
		Frame:     marshalFrame(chatFrame{Type: event.TypeChatMessage, RoomCode: in.RoomCode, Message: msg}),
	})
}

func (h *Handler) handleDraw(ctx context.Context, s *sessionState, in *event.Inbound) {
	if !h.validateMember(ctx, s, in.RoomCode) {
		return
	}
	if len(in.DrawEvent) == 0 {
		h.sendError(ctx, s, msgInvalidMessage)
		return
	}

	ts := h.reg.Stamp(in.RoomCode)
	h.reg.AppendDraw(in.RoomCode, in.DrawEvent)
	h.drawCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("room", in.RoomCode)))

	// The author never receives its own relayed strokes.
	h.publish(ctx, s, &event.Envelope{
		Kind:      event.DrawKind(in.DrawEvent),
		RoomCode:  in.RoomCode,
		UserID:    s.userID,
		Exclude:   s.userID,
		Timestamp: ts,
		Frame:     marshalFrame(drawFrame{Type: event.TypeDrawEvent, RoomCode: in.RoomCode, UserID: s.userID, Event: in.DrawEvent}),
	})
}

func (h *Handler) handleLeave(ctx context.Context, s *sessionState, in *event.Inbound) {
	if !h.validateMember(ctx, s, in.RoomCode) {
		return
	}

	res, err := h.reg.Leave(in.RoomCode, s.userID)
	if err != nil {
		h.sendError(ctx, s, msgRoomNotFound)
		return
	}

	h.dir.RemoveRoom(s.userID, in.RoomCode)
	delete(s.rooms, in.RoomCode)
	h.router.Detach(in.RoomCode, s.userID)

	s.conn.Push(marshalFrame(roomLeftFrame{Type: event.TypeRoomLeft, RoomCode: in.RoomCode, Timestamp: res.Timestamp}))
	h.notifyDeparture(ctx, s, in.RoomCode, res)
	slog.InfoContext(ctx, "User left room", "room", in.RoomCode, "user", s.userID, "newHost", res.NewHostID)
}

// closeSession runs when the transport closes: the identity is dropped
// from every room it occupied, with host failover and presence
// notifications per room. A connection superseded by a rebind drops
// nothing.
func (h *Handler) closeSession(ctx context.Context, s *sessionState) {
	if !s.bound {
		return
	}

	// Detach only via the codes DropEverywhere hands back: when this
	// connection was superseded by a rebind, the (room, user) subscription
	// keys now belong to the newer connection and must survive this close.
	codes := h.dir.DropEverywhere(s.userID, s.conn)
	for _, code := range codes {
		h.router.Detach(code, s.userID)
		res, err := h.reg.Leave(code, s.userID)
		if err != nil {
			continue
		}
		h.notifyDeparture(ctx, s, code, res)
	}
	if len(codes) > 0 {
		slog.InfoContext(ctx, "Session disconnected", "user", s.userID, "rooms", len(codes))
	}
}

// rollbackMembership undoes a create or first join whose channel
// subscriptions could not be attached. A create rolls back to no room at
// all, since the creator was its only participant.
func (h *Handler) rollbackMembership(code string, s *sessionState) {
	h.reg.Leave(code, s.userID)
	h.dir.RemoveRoom(s.userID, code)
	delete(s.rooms, code)
}

// notifyDeparture tells the remaining participants that someone left and
// hands them the fresh roster. Nothing is sent for an emptied room.
func (h *Handler) notifyDeparture(ctx context.Context, s *sessionState, code string, res room.LeaveResult) {
	if !res.Left || res.Empty {
		return
	}
	h.publish(ctx, s, &event.Envelope{
		Kind:      event.KindPresenceLeave,
		RoomCode:  code,
		UserID:    s.userID,
		Exclude:   s.userID,
		Timestamp: res.Timestamp,
		Frame: marshalFrame(userLeftFrame{
			Type:      event.TypeUserLeft,
			RoomCode:  code,
			UserID:    s.userID,
			NewHostID: res.NewHostID,
			Timestamp: res.Timestamp,
		}),
	})
	h.publish(ctx, s, &event.Envelope{
		Kind:      event.KindPresenceLeave,
		RoomCode:  code,
		UserID:    s.userID,
		Exclude:   s.userID,
		Timestamp: res.Timestamp,
		Frame: marshalFrame(participantsUpdateFrame{
			Type:         event.TypeParticipantsUpdate,
			RoomCode:     code,
			Participants: res.Remaining,
		}),
	})
}

// validateMember checks room existence then membership, in that order, so
// the client can tell the two failures apart.
func (h *Handler) validateMember(ctx context.Context, s *sessionState, code string) bool {
	switch err := h.reg.Member(code, s.userID); {
	case err == nil:
		return true
	case errors.Is(err, room.ErrRoomNotFound):
		h.sendError(ctx, s, msgRoomNotFound)
	default:
		h.sendError(ctx, s, msgNotParticipant)
	}
	return false
}

// publish fans one envelope out. A backend failure is scoped to this
// connection: log, count, and tell the sender it failed.
func (h *Handler) publish(ctx context.Context, s *sessionState, env *event.Envelope) {
	if err := h.router.Broadcast(ctx, env); err != nil {
		slog.ErrorContext(ctx, "Broadcast failed", "room", env.RoomCode, "kind", env.Kind, "error", err)
		h.sendError(ctx, s, msgDeliveryFailure)
	}
}

func (h *Handler) sendError(ctx context.Context, s *sessionState, msg string) {
	h.errorCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("message", msg)))
	s.conn.Push(marshalFrame(errorFrame{Type: event.TypeError, Message: msg}))
}
