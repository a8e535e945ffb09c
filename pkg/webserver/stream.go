package webserver

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/voxaura/voxaura/pkg/events"
)

// ConnectionPool is the set of live websocket connections for one session. It
// only broadcasts and tracks membership; lifecycle policy (when to tear a
// session's forwarder down) belongs to the hub.
type ConnectionPool struct {
	sessionID string

	mu         sync.Mutex
	conns      map[*websocket.Conn]struct{}
	emptySince time.Time
}

func NewConnectionPool(sessionID string) *ConnectionPool {
	return &ConnectionPool{
		sessionID:  sessionID,
		conns:      map[*websocket.Conn]struct{}{},
		emptySince: time.Now(),
	}
}

func (cp *ConnectionPool) Add(conn *websocket.Conn) {
	if cp == nil || conn == nil {
		return
	}
	cp.mu.Lock()
	cp.conns[conn] = struct{}{}
	cp.emptySince = time.Time{}
	cp.mu.Unlock()
}

func (cp *ConnectionPool) Remove(conn *websocket.Conn) {
	if cp == nil || conn == nil {
		_ = closeConn(conn)
		return
	}
	cp.mu.Lock()
	delete(cp.conns, conn)
	cp.markEmptyLocked()
	cp.mu.Unlock()
	_ = closeConn(conn)
}

func (cp *ConnectionPool) Broadcast(data []byte) {
	if cp == nil || len(data) == 0 {
		return
	}
	cp.mu.Lock()
	for conn := range cp.conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Warn().Err(err).Str("session_id", cp.sessionID).Msg("ws broadcast failed, dropping connection")
			delete(cp.conns, conn)
			_ = closeConn(conn)
		}
	}
	cp.markEmptyLocked()
	cp.mu.Unlock()
}

func (cp *ConnectionPool) Count() int {
	if cp == nil {
		return 0
	}
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return len(cp.conns)
}

// IdleSince reports when the pool last became empty; ok is false while clients
// are attached.
func (cp *ConnectionPool) IdleSince() (since time.Time, ok bool) {
	if cp == nil {
		return time.Time{}, false
	}
	cp.mu.Lock()
	defer cp.mu.Unlock()
	if len(cp.conns) != 0 || cp.emptySince.IsZero() {
		return time.Time{}, false
	}
	return cp.emptySince, true
}

func (cp *ConnectionPool) CloseAll() {
	if cp == nil {
		return
	}
	cp.mu.Lock()
	for conn := range cp.conns {
		_ = closeConn(conn)
		delete(cp.conns, conn)
	}
	cp.markEmptyLocked()
	cp.mu.Unlock()
}

func (cp *ConnectionPool) markEmptyLocked() {
	if len(cp.conns) == 0 && cp.emptySince.IsZero() {
		cp.emptySince = time.Now()
	}
}

func closeConn(conn *websocket.Conn) error {
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// DefaultStreamIdleTimeout is how long a session's forwarder outlives its last
// websocket client.
const DefaultStreamIdleTimeout = 2 * time.Minute

// StreamHub owns one forwarder per session: a subscription on the session's
// event topic whose messages are broadcast to that session's websocket pool.
// Forwarders start with the first client; a reaper goroutine stops any whose
// pool has been empty past the idle timeout.
type StreamHub struct {
	bus         *events.Bus
	idleTimeout time.Duration

	mu      sync.Mutex
	baseCtx context.Context
	streams map[string]*sessionStream
}

type sessionStream struct {
	pool   *ConnectionPool
	cancel context.CancelFunc
}

func NewStreamHub(ctx context.Context, bus *events.Bus, idleTimeout time.Duration) *StreamHub {
	if idleTimeout <= 0 {
		idleTimeout = DefaultStreamIdleTimeout
	}
	h := &StreamHub{
		bus:         bus,
		idleTimeout: idleTimeout,
		baseCtx:     ctx,
		streams:     map[string]*sessionStream{},
	}
	go h.reapLoop(ctx)
	return h
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// demo app, served same-origin or via dev proxy
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWS upgrades the request and attaches the connection to the session's
// pool. The read loop exists only to notice the peer going away.
func (h *StreamHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id query parameter is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}

	pool, err := h.attach(sessionID)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("stream subscribe failed")
		_ = conn.Close()
		return
	}
	pool.Add(conn)
	log.Debug().Str("session_id", sessionID).Int("clients", pool.Count()).Msg("ws client attached")

	go func() {
		defer pool.Remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *StreamHub) attach(sessionID string) (*ConnectionPool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s, ok := h.streams[sessionID]; ok {
		return s.pool, nil
	}

	topic := events.TopicForSession(sessionID)
	ctx, cancel := context.WithCancel(h.baseCtx)
	// on Redis the consumer group must exist at the tail before the first
	// subscribe, or the new client replays the session's full history
	if err := h.bus.PrepareTopic(ctx, topic); err != nil {
		cancel()
		return nil, err
	}
	ch, err := h.bus.Subscriber.Subscribe(ctx, topic)
	if err != nil {
		cancel()
		return nil, err
	}

	pool := NewConnectionPool(sessionID)
	h.streams[sessionID] = &sessionStream{pool: pool, cancel: cancel}
	go forward(ch, pool)
	return pool, nil
}

// ActiveStreams reports how many session forwarders are running.
func (h *StreamHub) ActiveStreams() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.streams)
}

func (h *StreamHub) reapLoop(ctx context.Context) {
	interval := h.idleTimeout / 4
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.reap()
		}
	}
}

func (h *StreamHub) reap() {
	var expired []*sessionStream
	h.mu.Lock()
	for id, s := range h.streams {
		if since, idle := s.pool.IdleSince(); idle && time.Since(since) >= h.idleTimeout {
			delete(h.streams, id)
			expired = append(expired, s)
			log.Debug().Str("session_id", id).Msg("stream forwarder stopped after idle timeout")
		}
	}
	h.mu.Unlock()
	for _, s := range expired {
		s.cancel()
		s.pool.CloseAll()
	}
}

// Close tears down every forwarder and connection.
func (h *StreamHub) Close() {
	h.mu.Lock()
	streams := h.streams
	h.streams = map[string]*sessionStream{}
	h.mu.Unlock()
	for _, s := range streams {
		s.cancel()
		s.pool.CloseAll()
	}
}

func forward(ch <-chan *message.Message, pool *ConnectionPool) {
	for msg := range ch {
		pool.Broadcast(msg.Payload)
		msg.Ack()
	}
}
