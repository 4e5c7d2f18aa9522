package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oriva/eventsync/pkg/event"
	"github.com/oriva/eventsync/pkg/logger"
)

const (
	// DefaultConnectionLimit caps live connections per user.
	DefaultConnectionLimit = 10

	// DefaultBufferSize is each handle's event buffer. A consumer that lets
	// it fill up is disconnected.
	DefaultBufferSize = 16

	// DefaultHeartbeatInterval is the ping cadence.
	DefaultHeartbeatInterval = 30 * time.Second

	// MissedHeartbeatLimit is how many intervals a connection may stay
	// silent before it is reaped.
	MissedHeartbeatLimit = 2
)

// Handle is one live client connection. Events arrive on Events; the
// transport must call Pong whenever the client proves liveness, and Close
// when the underlying connection goes away.
type Handle struct {
	hub      *Hub
	userID   string
	patterns []string

	ch chan event.Event

	mu       sync.Mutex
	closed   bool
	lastPong time.Time
}

// Events is the stream of matched events for this connection.
func (h *Handle) Events() <-chan event.Event {
	return h.ch
}

// Pong records client liveness for the heartbeat reaper.
func (h *Handle) Pong() {
	h.mu.Lock()
	h.lastPong = time.Now()
	h.mu.Unlock()
}

// Close unregisters the handle and closes its event channel. Safe to call
// more than once.
func (h *Handle) Close() {
	h.hub.Unregister(h)
}

// wants reports whether the handle's patterns match the event key. A client
// that subscribed without patterns receives everything.
func (h *Handle) wants(key string) bool {
	if len(h.patterns) == 0 {
		return true
	}
	return event.MatchAny(h.patterns, key)
}

func (h *Handle) silentSince(now time.Time, window time.Duration) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return now.Sub(h.lastPong) > window
}

// Hub routes events to live connections. It satisfies event.Broadcaster.
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]map[*Handle]struct{}
	closed bool

	connLimit  int
	bufferSize int
	heartbeat  time.Duration
	log        *slog.Logger
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithConnectionLimit overrides the per-user connection cap.
func WithConnectionLimit(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.connLimit = n
		}
	}
}

// WithBufferSize sets each handle's event buffer.
func WithBufferSize(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.bufferSize = n
		}
	}
}

// WithHeartbeatInterval sets the liveness check cadence.
func WithHeartbeatInterval(d time.Duration) HubOption {
	return func(h *Hub) {
		if d > 0 {
			h.heartbeat = d
		}
	}
}

// WithHubLogger sets the structured logger.
func WithHubLogger(l *slog.Logger) HubOption {
	return func(h *Hub) { h.log = l }
}

// NewHub creates an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		conns:      make(map[string]map[*Handle]struct{}),
		connLimit:  DefaultConnectionLimit,
		bufferSize: DefaultBufferSize,
		heartbeat:  DefaultHeartbeatInterval,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register adds a connection for the user, filtered to the given patterns.
// An empty pattern list subscribes to all of the user's events. The
// registration past the per-user cap is rejected.
func (h *Hub) Register(userID string, patterns []string) (*Handle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}
	if len(h.conns[userID]) >= h.connLimit {
		return nil, ErrConnectionLimit
	}

	handle := &Handle{
		hub:      h,
		userID:   userID,
		patterns: append([]string(nil), patterns...),
		ch:       make(chan event.Event, h.bufferSize),
		lastPong: time.Now(),
	}
	if h.conns[userID] == nil {
		h.conns[userID] = make(map[*Handle]struct{})
	}
	h.conns[userID][handle] = struct{}{}
	return handle, nil
}

// Unregister removes a connection and closes its channel.
func (h *Hub) Unregister(handle *Handle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.drop(handle)
}

// drop removes the handle. Callers must hold h.mu.
func (h *Hub) drop(handle *Handle) {
	handle.mu.Lock()
	alreadyClosed := handle.closed
	handle.closed = true
	handle.mu.Unlock()
	if alreadyClosed {
		return
	}

	if set, ok := h.conns[handle.userID]; ok {
		delete(set, handle)
		if len(set) == 0 {
			delete(h.conns, handle.userID)
		}
	}
	close(handle.ch)
}

// Fanout pushes the event to every matching connection of the event's user,
// or to all connections when the event is platform-wide (empty user id).
// A handle whose buffer is full is disconnected rather than waited on.
func (h *Hub) Fanout(ctx context.Context, e event.Event) error {
	key := e.Key()

	h.mu.Lock()
	defer h.mu.Unlock()

	var dropped []*Handle
	deliver := func(handle *Handle) {
		if !handle.wants(key) {
			return
		}
		select {
		case handle.ch <- e:
		default:
			dropped = append(dropped, handle)
		}
	}

	if e.UserID == "" {
		for _, set := range h.conns {
			for handle := range set {
				deliver(handle)
			}
		}
	} else {
		for handle := range h.conns[e.UserID] {
			deliver(handle)
		}
	}

	for _, handle := range dropped {
		h.log.LogAttrs(ctx, slog.LevelWarn, "disconnecting slow live consumer",
			logger.UserID(handle.userID), logger.EventType(key))
		h.drop(handle)
	}
	return nil
}

// ConnectionCount returns how many live connections the user holds.
func (h *Hub) ConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}

// RunHeartbeat blocks, reaping connections that stayed silent for more than
// MissedHeartbeatLimit intervals, until the context is cancelled.
func (h *Hub) RunHeartbeat(ctx context.Context) error {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			h.reapSilent(ctx, now)
		}
	}
}

func (h *Hub) reapSilent(ctx context.Context, now time.Time) {
	window := time.Duration(MissedHeartbeatLimit) * h.heartbeat

	h.mu.Lock()
	defer h.mu.Unlock()

	var stale []*Handle
	for _, set := range h.conns {
		for handle := range set {
			if handle.silentSince(now, window) {
				stale = append(stale, handle)
			}
		}
	}
	for _, handle := range stale {
		h.log.LogAttrs(ctx, slog.LevelInfo, "closing silent live connection",
			logger.UserID(handle.userID))
		h.drop(handle)
	}
}

// Close shuts the hub down, disconnecting every handle. Later Register
// calls fail with ErrHubClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for _, set := range h.conns {
		for handle := range set {
			h.drop(handle)
		}
	}
}

// HeartbeatInterval exposes the configured ping cadence for transports.
func (h *Hub) HeartbeatInterval() time.Duration {
	return h.heartbeat
}
