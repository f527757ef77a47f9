// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ipc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/relabs-tech/trip_capture/internal/monitoring"
)

// ErrClosed is returned when sending on a closed connection.
var ErrClosed = errors.New("ipc: connection closed")

const (
	// MaxMessageBytes bounds a single message on the wire. Data batches are
	// chunked by the worker to stay well below it.
	MaxMessageBytes = 4 << 20
	writeTimeout    = 5 * time.Second
)

// Conn is one end of a bound channel. Sends are safe for concurrent use;
// received messages are handed to the handler one at a time in arrival
// order on a single goroutine.
type Conn struct {
	id string
	ws *websocket.Conn

	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
}

func newConn(ws *websocket.Conn) *Conn {
	ws.SetReadLimit(MaxMessageBytes)
	return &Conn{
		id:   uuid.NewString(),
		ws:   ws,
		done: make(chan struct{}),
	}
}

// ID identifies the connection in the client registry.
func (c *Conn) ID() string { return c.id }

// Send writes msg to the peer.
func (c *Conn) Send(msg Message) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.ws.WriteJSON(msg); err != nil {
		return fmt.Errorf("ipc: send %s: %w", msg.What, err)
	}
	return nil
}

// Close closes the connection. The read loop ends shortly after.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

// Done is closed once the read loop has ended.
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) readLoop(handle func(Message)) {
	defer close(c.done)
	defer c.ws.Close()
	for {
		var msg Message
		if err := c.ws.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				!errors.Is(err, websocket.ErrCloseSent) {
				monitoring.Logf("ipc: connection %s read error: %v", c.id, err)
			}
			return
		}
		handle(msg)
	}
}

// Dial connects to a worker at url. handle receives every inbound message
// on one goroutine, in the order the worker sent them.
func Dial(ctx context.Context, url string, handle func(Message)) (*Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ipc: dial %s: %w", url, err)
	}
	c := newConn(ws)
	go c.readLoop(handle)
	return c, nil
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // loopback only
	},
}

// Server accepts bound channels from controllers.
type Server struct {
	handle func(*Conn, Message)
	closed func(*Conn)

	mu    sync.Mutex
	conns map[*Conn]struct{}
}

// NewServer returns a server that passes each inbound message, with the
// connection it arrived on, to handle. onClosed, if set, runs after a
// connection's read loop ended.
func NewServer(handle func(*Conn, Message), onClosed func(*Conn)) *Server {
	return &Server{
		handle: handle,
		closed: onClosed,
		conns:  make(map[*Conn]struct{}),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("ipc: websocket upgrade error: %v", err)
		return
	}
	c := newConn(ws)

	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
	monitoring.Logf("ipc: client %s connected from %s", c.id, r.RemoteAddr)

	c.readLoop(func(msg Message) { s.handle(c, msg) })

	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	if s.closed != nil {
		s.closed(c)
	}
	monitoring.Logf("ipc: client %s disconnected", c.id)
}

// Close closes every open connection.
func (s *Server) Close() {
	s.mu.Lock()
	conns := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}

// Connections reports how many connections are open.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}
