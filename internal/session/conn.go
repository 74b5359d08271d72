package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn wraps one WebSocket with an ordered, buffered send queue. A
// single writer goroutine drains the queue, so frames pushed for this
// recipient go out in push order.
type wsConn struct {
	ws   *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}

	pingPeriod time.Duration
	writeWait  time.Duration
}

func newWSConn(ws *websocket.Conn, sendBuffer int, pingPeriod, writeWait time.Duration) *wsConn {
	return &wsConn{
		ws:         ws,
		send:       make(chan []byte, sendBuffer),
		done:       make(chan struct{}),
		pingPeriod: pingPeriod,
		writeWait:  writeWait,
	}
}

// Push queues a frame for delivery. A consumer that cannot keep up with
// its queue is shut down rather than allowed to stall every room it
// occupies; the close flows through the normal disconnect cleanup.
func (c *wsConn) Push(frame []byte) {
	select {
	case <-c.done:
	case c.send <- frame:
	default:
		slog.Warn("Closing slow consumer", "remote", c.ws.RemoteAddr())
		c.shutdown()
	}
}

// shutdown stops the writer and closes the socket, unblocking the read
// loop. Idempotent.
func (c *wsConn) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

// writePump drains the send queue and keeps the connection alive with
// transport pings. Exactly one writePump runs per connection.
func (c *wsConn) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.shutdown()
	}()

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
