package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/camwatch/camwatch/internal/log"
	"github.com/camwatch/camwatch/internal/metrics"
	"github.com/camwatch/camwatch/internal/reactor"
)

const (
	sendBuffer = 64
	writeWait  = 10 * time.Second
)

// ErrTooManyConnections is returned by AddClient when the connection limit is
// reached.
var ErrTooManyConnections = errors.New("too many websocket connections")

// ErrStopped is returned by AddClient once Stop has been called.
var ErrStopped = errors.New("broadcaster stopped")

type client struct {
	conn *websocket.Conn
	b    *Broadcaster
	send chan []byte
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.b.RemoveClient(c)
			return
		}
	}
}

// Broadcaster fans reactor output out to websocket clients. It implements
// reactor.Publisher.
type Broadcaster struct {
	throttle time.Duration
	maxConns int
	logger   zerolog.Logger

	mu      sync.RWMutex
	clients map[*client]bool

	stateMu   sync.RWMutex
	latest    reactor.Snapshot
	warning   string
	shortcuts []string

	flushMu    sync.Mutex
	pending    *reactor.Snapshot
	flushTimer *time.Timer

	snapshotTicker *time.Ticker
	done           chan struct{}
	stopOnce       sync.Once
}

// NewBroadcaster starts the periodic snapshot loop, seeded with initial.
// maxConns <= 0 means no limit. Call Stop to release it.
func NewBroadcaster(initial reactor.Snapshot, throttle, snapshotInterval time.Duration, maxConns int) *Broadcaster {
	b := &Broadcaster{
		latest:         initial,
		throttle:       throttle,
		maxConns:       maxConns,
		logger:         log.WithComponent("ws"),
		clients:        make(map[*client]bool),
		snapshotTicker: time.NewTicker(snapshotInterval),
		done:           make(chan struct{}),
	}
	go b.snapshotLoop()
	return b
}

// AddClient registers conn and queues the initial snapshot, the warning if
// one was raised, and starts the client's write pump. Clients are refused
// after Stop.
func (b *Broadcaster) AddClient(conn *websocket.Conn) (*client, error) {
	c := &client{
		conn: conn,
		b:    b,
		send: make(chan []byte, sendBuffer),
	}

	// Queued before registration so nothing broadcast can overtake it.
	for _, msg := range b.greeting() {
		data, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		c.send <- data
	}

	b.mu.Lock()
	select {
	case <-b.done:
		b.mu.Unlock()
		return nil, ErrStopped
	default:
	}
	if b.maxConns > 0 && len(b.clients) >= b.maxConns {
		b.mu.Unlock()
		return nil, ErrTooManyConnections
	}
	b.clients[c] = true
	n := len(b.clients)
	b.mu.Unlock()
	metrics.SetWSClients(n)

	go c.writePump()
	return c, nil
}

func (b *Broadcaster) greeting() []WSMessage {
	msgs := []WSMessage{b.snapshotMessage()}
	if w := b.CurrentWarning(); w != "" {
		msgs = append(msgs, WSMessage{Type: MsgWarning, Payload: WarningPayload{Message: w}})
	}
	return msgs
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
	n := len(b.clients)
	b.mu.Unlock()
	metrics.SetWSClients(n)
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Publish records snap as the latest state and queues a status message.
// Snapshots arriving within the throttle window collapse into the latest one.
func (b *Broadcaster) Publish(snap reactor.Snapshot) {
	b.stateMu.Lock()
	b.latest = snap
	b.stateMu.Unlock()

	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.pending = &snap
	if b.flushTimer == nil {
		b.flushTimer = time.AfterFunc(b.throttle, b.flush)
	}
}

// Warning records msg and sends it to every client immediately.
func (b *Broadcaster) Warning(msg string) {
	b.stateMu.Lock()
	b.warning = msg
	b.stateMu.Unlock()

	b.broadcast(WSMessage{Type: MsgWarning, Payload: WarningPayload{Message: msg}})
}

// CurrentWarning returns the last warning, or "" if none was raised.
func (b *Broadcaster) CurrentWarning() string {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.warning
}

// SetShortcuts records the enumerated shortcut names and sends them to every
// client.
func (b *Broadcaster) SetShortcuts(names []string) {
	b.stateMu.Lock()
	b.shortcuts = append([]string(nil), names...)
	b.stateMu.Unlock()

	b.broadcast(WSMessage{Type: MsgShortcuts, Payload: ShortcutsPayload{Shortcuts: names}})
}

// Shortcuts returns the enumerated shortcut names, or nil before enumeration
// has completed.
func (b *Broadcaster) Shortcuts() []string {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return append([]string(nil), b.shortcuts...)
}

// Latest returns the most recently published snapshot.
func (b *Broadcaster) Latest() reactor.Snapshot {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.latest
}

func (b *Broadcaster) snapshotMessage() WSMessage {
	return WSMessage{
		Type: MsgSnapshot,
		Payload: SnapshotPayload{
			Status:    b.Latest(),
			Shortcuts: b.Shortcuts(),
		},
	}
}

func (b *Broadcaster) flush() {
	b.flushMu.Lock()
	snap := b.pending
	b.pending = nil
	b.flushTimer = nil
	b.flushMu.Unlock()

	if snap == nil {
		return
	}
	b.broadcast(WSMessage{Type: MsgStatus, Payload: *snap})
}

func (b *Broadcaster) snapshotLoop() {
	for {
		select {
		case <-b.done:
			return
		case <-b.snapshotTicker.C:
			b.broadcast(b.snapshotMessage())
		}
	}
}

func (b *Broadcaster) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error().Err(err).Str("type", string(msg.Type)).Msg("broadcast marshal failed")
		return
	}

	b.mu.RLock()
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		if !b.trySend(c, data) {
			b.logger.Warn().Str("event", "ws.slow_client").Msg("client too slow, disconnecting")
			b.RemoveClient(c)
		}
	}
}

// trySend reports false when the client's buffer is full. Sends to a client
// that is no longer registered are dropped.
func (b *Broadcaster) trySend(c *client, data []byte) (ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.clients[c] {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Stop ends the snapshot loop, drops any pending status and disconnects every
// client.
func (b *Broadcaster) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		b.snapshotTicker.Stop()

		b.flushMu.Lock()
		if b.flushTimer != nil {
			b.flushTimer.Stop()
			b.flushTimer = nil
		}
		b.pending = nil
		b.flushMu.Unlock()

		b.mu.Lock()
		for c := range b.clients {
			delete(b.clients, c)
			close(c.send)
		}
		b.mu.Unlock()
		metrics.SetWSClients(0)
	})
}

var _ reactor.Publisher = (*Broadcaster)(nil)
