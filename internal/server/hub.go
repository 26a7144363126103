package server

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sezginpak/gold-price-analyzer-sub002/internal/infra"
)

// Channel names pushed over the websocket
const (
	ChannelPrice   = "price"
	ChannelPerf    = "perf"
	ChannelSignals = "signals"
)

// PushMessage is the wire envelope for every websocket push
type PushMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// PayloadFunc builds the current payload for one channel. Returning a nil
// payload skips the push (nothing to say yet).
type PayloadFunc func() (any, error)

// PayloadSources supplies the builders for the three paced channels
type PayloadSources struct {
	Price   PayloadFunc
	Perf    PayloadFunc
	Signals PayloadFunc
}

// channelCache holds the last built wire message for one channel. Rebuilt
// only when older than the channel TTL, so a burst of new connections reuses
// one build instead of hitting the stores per client.
type channelCache struct {
	build PayloadFunc
	ttl   time.Duration

	mu      sync.Mutex
	msg     []byte
	hash    uint64
	builtAt time.Time
}

// message returns the cached wire bytes, rebuilding when stale. A nil message
// with nil error means the channel currently has nothing to push.
func (ch *channelCache) message(name string, now time.Time) ([]byte, uint64, error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.msg != nil && now.Sub(ch.builtAt) < ch.ttl {
		return ch.msg, ch.hash, nil
	}

	payload, err := ch.build()
	if err != nil {
		return nil, 0, err
	}
	if payload == nil {
		return nil, 0, nil
	}

	raw, err := json.Marshal(PushMessage{Type: name, Data: payload})
	if err != nil {
		return nil, 0, err
	}

	ch.msg = raw
	ch.hash = structuralHash(raw)
	ch.builtAt = now
	return raw, ch.hash, nil
}

// structuralHash fingerprints a marshaled message with FNV-1a. encoding/json
// emits map keys sorted and struct fields in declaration order, so equal
// payloads always hash equal regardless of construction order. Collisions
// are accepted; the worst case is one skipped UI update.
func structuralHash(b []byte) uint64 {
	h := fnv.New64a()
	h.Write(b)
	return h.Sum64()
}

// Hub owns the websocket connection set and the three paced push channels.
// Each channel transmits to a connection only when the payload hash differs
// from what that connection last saw, except for the forced full send on
// connect.
type Hub struct {
	log     *slog.Logger
	metrics *infra.Metrics

	mu      sync.RWMutex
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client

	channels map[string]*channelCache
	order    []string

	batchSize  int
	batchPause time.Duration
	maxClients int

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	now     func() time.Time
}

// NewHub creates the hub with its channels wired to the payload sources
func NewHub(cfg *infra.Config, sources PayloadSources, log *slog.Logger, metrics *infra.Metrics) *Hub {
	ttls := cfg.ChannelTTLs()
	h := &Hub{
		log:        log,
		metrics:    metrics,
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client, 16),
		channels:   make(map[string]*channelCache),
		order:      []string{ChannelPrice, ChannelPerf, ChannelSignals},
		batchSize:  cfg.Broadcast.BatchSize,
		batchPause: cfg.BatchPause(),
		maxClients: cfg.Broadcast.MaxClients,
		now:        time.Now,
	}
	h.channels[ChannelPrice] = &channelCache{build: sources.Price, ttl: ttls[ChannelPrice]}
	h.channels[ChannelPerf] = &channelCache{build: sources.Perf, ttl: ttls[ChannelPerf]}
	h.channels[ChannelSignals] = &channelCache{build: sources.Signals, ttl: ttls[ChannelSignals]}
	return h
}

// Run starts the membership loop and one updater goroutine per channel, then
// blocks the membership loop in a goroutine until the context is cancelled.
// Calling Run twice is a no-op.
func (h *Hub) Run(ctx context.Context) {
	if !h.running.CompareAndSwap(false, true) {
		return
	}

	ctx, h.cancel = context.WithCancel(ctx)

	for _, name := range h.order {
		h.wg.Add(1)
		go h.channelLoop(ctx, name, h.channels[name])
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for {
			select {
			case <-ctx.Done():
				h.closeAll()
				return
			case c := <-h.register:
				h.admit(c)
			case c := <-h.unregister:
				h.removeClients([]*Client{c}, "connection closed")
			}
		}
	}()

	h.log.Info("Broadcast hub started",
		slog.Int("channels", len(h.order)),
		slog.Int("max_clients", h.maxClients))
}

// Stop cancels the loops and closes every remaining connection
func (h *Hub) Stop() {
	if !h.running.CompareAndSwap(true, false) {
		return
	}
	if h.cancel != nil {
		h.cancel()
	}
	h.wg.Wait()
}

// Register hands a new connection to the membership loop
func (h *Hub) Register(c *Client) {
	h.register <- c
}

// Unregister removes a connection; safe to call more than once
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	default:
		// Membership loop is gone or backed up; remove directly
		h.removeClients([]*Client{c}, "connection closed")
	}
}

// admit adds the connection and immediately force-sends the current payload
// of every channel, so a new subscriber is never stale.
func (h *Hub) admit(c *Client) {
	h.mu.Lock()
	if len(h.clients) >= h.maxClients {
		h.mu.Unlock()
		h.log.Warn("Connection rejected, hub at capacity",
			slog.String("remote", c.remoteAddr),
			slog.Int("max", h.maxClients))
		c.close()
		return
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	c.setState(StateActive)
	h.metrics.IncrementConnections()
	h.log.Info("Client connected",
		slog.String("remote", c.remoteAddr),
		slog.Int("clients", count))

	h.sendInitialState(c)
}

// sendInitialState pushes every channel to one client regardless of dedup
// state. Failure here drops the client like any other send failure.
func (h *Hub) sendInitialState(c *Client) {
	now := h.now()
	for _, name := range h.order {
		msg, hash, err := h.channels[name].message(name, now)
		if err != nil {
			h.log.Warn("Channel payload build failed",
				slog.String("channel", name),
				slog.Any("error", err))
			continue
		}
		if msg == nil {
			continue
		}

		h.mu.Lock()
		_, member := h.clients[c]
		sent := member && c.trySend(msg)
		if sent {
			c.lastHash[name] = hash
		}
		h.mu.Unlock()

		if member && !sent {
			h.metrics.RecordSendFailure()
			h.removeClients([]*Client{c}, "send buffer full on connect")
			return
		}
		if sent {
			h.metrics.RecordMessageSent()
		}
	}
}

func (h *Hub) channelLoop(ctx context.Context, name string, ch *channelCache) {
	defer h.wg.Done()

	ticker := time.NewTicker(ch.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.pushChannel(name, ch)
		}
	}
}

// pushChannel refreshes one channel and delivers it to every client that has
// not already seen this exact payload.
func (h *Hub) pushChannel(name string, ch *channelCache) {
	msg, hash, err := ch.message(name, h.now())
	if err != nil {
		h.log.Warn("Channel payload build failed",
			slog.String("channel", name),
			slog.Any("error", err))
		return
	}
	if msg == nil {
		return
	}

	var dead []*Client
	h.mu.Lock()
	for c := range h.clients {
		if prev, ok := c.lastHash[name]; ok && prev == hash {
			continue
		}
		if c.trySend(msg) {
			c.lastHash[name] = hash
			h.metrics.RecordMessageSent()
		} else {
			h.metrics.RecordSendFailure()
			dead = append(dead, c)
		}
	}
	h.mu.Unlock()

	h.removeClients(dead, "send buffer full")
}

// Broadcast sends one message to every connected client unconditionally, in
// bounded batches with a pause in between so a large connection set cannot
// monopolize the lock. No dedup applies here.
func (h *Hub) Broadcast(msgType string, data any) {
	raw, err := json.Marshal(PushMessage{Type: msgType, Data: data})
	if err != nil {
		h.log.Error("Broadcast marshal failed",
			slog.String("type", msgType),
			slog.Any("error", err))
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	var dead []*Client
	for start := 0; start < len(targets); start += h.batchSize {
		end := start + h.batchSize
		if end > len(targets) {
			end = len(targets)
		}

		// Sends happen only under h.mu and only to current members.
		// removeClients deletes under the write lock before it closes, so a
		// client still in the set cannot have a closed send channel.
		h.mu.RLock()
		for _, c := range targets[start:end] {
			if _, member := h.clients[c]; !member {
				continue
			}
			if c.trySend(raw) {
				h.metrics.RecordMessageSent()
			} else {
				h.metrics.RecordSendFailure()
				dead = append(dead, c)
			}
		}
		h.mu.RUnlock()

		if end < len(targets) {
			time.Sleep(h.batchPause)
		}
	}

	h.removeClients(dead, "send buffer full")
}

// removeClients drops exactly the given clients, never others. Idempotent:
// a client that is already gone is skipped. The delete under the write lock
// always precedes the close; every send path holds h.mu and targets only
// current members.
func (h *Hub) removeClients(clients []*Client, reason string) {
	if len(clients) == 0 {
		return
	}

	removed := make([]*Client, 0, len(clients))
	h.mu.Lock()
	for _, c := range clients {
		if _, ok := h.clients[c]; !ok {
			continue
		}
		delete(h.clients, c)
		removed = append(removed, c)
	}
	h.mu.Unlock()

	for _, c := range removed {
		c.close()
		h.metrics.DecrementConnections()
		h.log.Info("Client removed",
			slog.String("remote", c.remoteAddr),
			slog.String("reason", reason))
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*Client]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
		h.metrics.DecrementConnections()
	}
	if len(clients) > 0 {
		h.log.Info("All clients disconnected", slog.Int("count", len(clients)))
	}
}

// ConnectionCount returns the number of connected clients
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ConnectionInfo describes one connection for the stats endpoint
type ConnectionInfo struct {
	RemoteAddr  string    `json:"remote_addr"`
	State       string    `json:"state"`
	ConnectedAt time.Time `json:"connected_at"`
}

// ConnectionStats lists the current connections
func (h *Hub) ConnectionStats() []ConnectionInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]ConnectionInfo, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, ConnectionInfo{
			RemoteAddr:  c.remoteAddr,
			State:       c.State().String(),
			ConnectedAt: c.connectedAt,
		})
	}
	return out
}
