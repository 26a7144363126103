package server

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512

	// Outbound buffer per client; a client that falls this far behind is dropped
	sendBufferSize = 64
)

// ClientState tracks the connection lifecycle
type ClientState int32

const (
	StateConnecting ClientState = iota
	StateActive
	StateDisconnected
)

func (s ClientState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Client is one websocket connection. The hub owns membership and the
// per-channel dedup hashes (guarded by the hub mutex); the client owns its
// two pump goroutines and the buffered send channel between them.
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	send      chan []byte
	closeOnce sync.Once

	state       atomic.Int32
	connectedAt time.Time
	remoteAddr  string

	lastHash map[string]uint64 // guarded by hub.mu
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	c := &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, sendBufferSize),
		connectedAt: time.Now(),
		remoteAddr:  conn.RemoteAddr().String(),
		lastHash:    make(map[string]uint64),
	}
	c.state.Store(int32(StateConnecting))
	return c
}

func (c *Client) State() ClientState {
	return ClientState(c.state.Load())
}

// setState advances the lifecycle. Disconnected is terminal: a new physical
// connection is a new Client, never a resurrected one.
func (c *Client) setState(s ClientState) {
	for {
		cur := c.state.Load()
		if ClientState(cur) == StateDisconnected {
			return
		}
		if c.state.CompareAndSwap(cur, int32(s)) {
			return
		}
	}
}

// trySend queues a message without blocking. False means the buffer is full
// or the client is already gone, and the hub should drop the connection.
func (c *Client) trySend(msg []byte) bool {
	if c.State() == StateDisconnected {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// close marks the client Disconnected and wakes the write pump
func (c *Client) close() {
	c.setState(StateDisconnected)
	c.closeOnce.Do(func() { close(c.send) })
}

// readPump drains inbound frames so close and pong control messages are
// processed. The protocol is push-only: client payloads are ignored.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump moves messages from the send channel onto the wire and keeps the
// connection alive with periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
