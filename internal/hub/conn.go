package hub

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dyluth/vigil/pkg/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	// ErrSendBufferFull is returned when a connection's outbound queue is full.
	ErrSendBufferFull = errors.New("send buffer full")

	// ErrConnClosed is returned when sending on a closed connection.
	ErrConnClosed = errors.New("connection closed")
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Conn is one validator websocket. Outbound frames go through a bounded queue
// drained by a single writer goroutine, so Send never blocks the caller.
type Conn struct {
	id          string
	ws          *websocket.Conn
	remoteIP    string
	connectedAt time.Time
	send        chan []byte
	done        chan struct{}
	closeOnce   sync.Once
	logger      *zap.Logger
}

func newConn(ws *websocket.Conn, remoteIP string, buffer int, logger *zap.Logger) *Conn {
	id := uuid.New().String()
	return &Conn{
		id:          id,
		ws:          ws,
		remoteIP:    remoteIP,
		connectedAt: time.Now(),
		send:        make(chan []byte, buffer),
		done:        make(chan struct{}),
		logger:      logger.With(zap.String("conn_id", id), zap.String("remote_ip", remoteIP)),
	}
}

// ID returns the connection's unique handle.
func (c *Conn) ID() string {
	return c.id
}

// RemoteIP returns the peer address as seen by the hub.
func (c *Conn) RemoteIP() string {
	return c.remoteIP
}

// Send encodes msg and queues it for the writer.
func (c *Conn) Send(msg protocol.HubMessage) error {
	frame, err := protocol.EncodeHubMessage(msg)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		return fmt.Errorf("%w (%d queued)", ErrSendBufferFull, cap(c.send))
	}
}

// Close stops the writer, which sends a close frame and closes the socket.
// Safe to call multiple times.
func (c *Conn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// writePump drains the send queue and keeps the peer alive with pings.
// It owns the socket: when it returns the socket is closed, which also ends readLoop.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
		c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case frame := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("write failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("ping failed", zap.Error(err))
				return
			}
		}
	}
}

// readLoop delivers inbound frames to handle until the socket fails or closes.
func (c *Conn) readLoop(handle func(frame []byte)) {
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, frame, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("connection closed unexpectedly", zap.Error(err))
			}
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		// any inbound traffic proves the peer is alive
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		handle(frame)
	}
}
