package session

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// Gateway upgrades HTTP requests to WebSocket sessions and hands each
// connection to the protocol handler.
type Gateway struct {
	handler  *Handler
	upgrader websocket.Upgrader
}

func NewGateway(h *Handler) *Gateway {
	return &Gateway{
		handler: h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin policy is enforced by the fronting proxy.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	g.handler.Serve(ws)
}
