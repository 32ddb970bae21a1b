// Package ws is the session multiplexer: a process-global registry of
// open duplex sessions keyed by client id, with group addressing,
// best-effort broadcast, and an idle-session janitor.
//
// Delivery guarantee: within one session, messages are written in the
// order they were enqueued. Across sessions nothing is ordered.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jmolinaso/voxbridge/internal/fault"
)

const (
	// defaultIdleTimeout is how long a session may go without inbound
	// activity before the janitor disconnects it.
	defaultIdleTimeout = 300 * time.Second

	// defaultSweepInterval is how often the janitor runs.
	defaultSweepInterval = 60 * time.Second

	// connTTL is the lifetime of the per-client metadata hash in the
	// shared KV.
	connTTL = time.Hour

	// outboundBuffer bounds each session's send queue.
	outboundBuffer = 32
)

// Transport is one client's duplex connection. The websocket
// implementation lives in transport.go; tests use in-memory fakes.
type Transport interface {
	Send(ctx context.Context, data []byte) error
	Ping(ctx context.Context) error
	Close(reason string) error
}

// Message is one typed event. Send paths stamp it with the server
// timestamp before marshaling.
type Message map[string]any

// session is one registered client connection. The writer goroutine is
// the only caller of transport.Send, which preserves enqueue order.
type session struct {
	clientID  string
	transport Transport
	outbound  chan []byte
	done      chan struct{}

	mu           sync.Mutex
	connectedAt  time.Time
	lastActivity time.Time
}

func (s *session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
}

func (s *session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Multiplexer tracks open sessions and their group memberships.
type Multiplexer struct {
	rdb           redis.Cmdable
	logger        *slog.Logger
	now           func() time.Time
	idleTimeout   time.Duration
	sweepInterval time.Duration

	mu       sync.RWMutex
	sessions map[string]*session
	groups   map[string]map[string]bool
	closed   bool
}

// Options configures the multiplexer.
type Options struct {
	// Redis mirrors per-client connection metadata when non-nil.
	Redis  redis.Cmdable
	Logger *slog.Logger

	// IdleTimeout is how long a silent session survives. Defaults to 300s.
	IdleTimeout time.Duration

	// SweepInterval is how often idle sessions are swept. Defaults to 60s.
	SweepInterval time.Duration
}

// New builds an empty multiplexer.
func New(opts Options) *Multiplexer {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultIdleTimeout
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaultSweepInterval
	}
	return &Multiplexer{
		rdb:           opts.Redis,
		idleTimeout:   opts.IdleTimeout,
		sweepInterval: opts.SweepInterval,
		logger:        opts.Logger,
		now:           time.Now,
		sessions:      make(map[string]*session),
		groups:        make(map[string]map[string]bool),
	}
}

// Connect registers a client and starts its writer. A second connect
// with the same client id replaces the first. The welcome event is the
// first message the client receives.
func (m *Multiplexer) Connect(ctx context.Context, clientID string, transport Transport) error {
	if clientID == "" {
		return fault.New(fault.KindInvalidInput, "ws", "client id is required")
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fault.New(fault.KindSessionLost, "ws", "multiplexer is shut down")
	}
	if old, ok := m.sessions[clientID]; ok {
		m.detachLocked(clientID, old)
	}
	now := m.now().UTC()
	s := &session{
		clientID:     clientID,
		transport:    transport,
		outbound:     make(chan []byte, outboundBuffer),
		done:         make(chan struct{}),
		connectedAt:  now,
		lastActivity: now,
	}
	m.sessions[clientID] = s
	m.mu.Unlock()

	go m.writer(s)

	m.storeConnection(ctx, clientID, now)

	welcome := Message{
		"type":      "connection_established",
		"client_id": clientID,
		"message":   "Connected to Voxbridge",
	}
	if err := m.SendPersonal(ctx, clientID, welcome); err != nil {
		return fmt.Errorf("ws: send welcome: %w", err)
	}

	m.logger.Info("client connected", "client_id", clientID)
	return nil
}

// Disconnect closes the client's transport and removes it from the
// registry and every group.
func (m *Multiplexer) Disconnect(clientID string) {
	m.mu.Lock()
	s, ok := m.sessions[clientID]
	if ok {
		m.detachLocked(clientID, s)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	if m.rdb != nil {
		if err := m.rdb.Del(context.Background(), connKey(clientID)).Err(); err != nil {
			m.logger.Debug("connection metadata delete failed", "client_id", clientID, "error", err)
		}
	}
	m.logger.Info("client disconnected", "client_id", clientID)
}

// detachLocked unregisters a session and stops its writer. Caller holds
// m.mu.
func (m *Multiplexer) detachLocked(clientID string, s *session) {
	delete(m.sessions, clientID)
	for group, members := range m.groups {
		delete(members, clientID)
		if len(members) == 0 {
			delete(m.groups, group)
		}
	}
	close(s.done)
}

// writer drains one session's outbound queue. It is the sole sender on
// the transport.
func (m *Multiplexer) writer(s *session) {
	defer func() {
		_ = s.transport.Close("session closed")
	}()
	for {
		select {
		case data := <-s.outbound:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := s.transport.Send(ctx, data)
			cancel()
			if err != nil {
				m.logger.Warn("send failed, dropping session", "client_id", s.clientID, "error", err)
				m.Disconnect(s.clientID)
				return
			}
		case <-s.done:
			return
		}
	}
}

// SendPersonal enqueues a message for one client. A full queue or an
// unknown client fails session_lost; callers on the broadcast path
// ignore it.
func (m *Multiplexer) SendPersonal(_ context.Context, clientID string, msg Message) error {
	m.mu.RLock()
	s, ok := m.sessions[clientID]
	m.mu.RUnlock()
	if !ok {
		return fault.Newf(fault.KindSessionLost, "ws", "client %s is not connected", clientID)
	}

	data, err := json.Marshal(m.stamp(msg))
	if err != nil {
		return fmt.Errorf("ws: marshal message: %w", err)
	}

	select {
	case s.outbound <- data:
		return nil
	case <-s.done:
		return fault.Newf(fault.KindSessionLost, "ws", "client %s disconnected", clientID)
	default:
		return fault.Newf(fault.KindSessionLost, "ws", "send queue full for client %s", clientID)
	}
}

// Broadcast sends a message to every connected client, best effort.
// Clients named in except are skipped.
func (m *Multiplexer) Broadcast(ctx context.Context, msg Message, except ...string) {
	skip := make(map[string]bool, len(except))
	for _, id := range except {
		skip[id] = true
	}

	for _, clientID := range m.clientIDs() {
		if skip[clientID] {
			continue
		}
		if err := m.SendPersonal(ctx, clientID, msg); err != nil {
			m.logger.Debug("broadcast delivery failed", "client_id", clientID, "error", err)
		}
	}
}

// SendGroup sends a message to every member of a group, best effort.
func (m *Multiplexer) SendGroup(ctx context.Context, group string, msg Message) {
	m.mu.RLock()
	members := make([]string, 0, len(m.groups[group]))
	for clientID := range m.groups[group] {
		members = append(members, clientID)
	}
	m.mu.RUnlock()

	for _, clientID := range members {
		if err := m.SendPersonal(ctx, clientID, msg); err != nil {
			m.logger.Debug("group delivery failed", "group", group, "client_id", clientID, "error", err)
		}
	}
}

// AddToGroup adds a connected client to a group.
func (m *Multiplexer) AddToGroup(group, clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[clientID]; !ok {
		return fault.Newf(fault.KindNotFound, "ws", "client %s is not connected", clientID)
	}
	if m.groups[group] == nil {
		m.groups[group] = make(map[string]bool)
	}
	m.groups[group][clientID] = true
	return nil
}

// RemoveFromGroup removes a client from a group. Removing a client that
// is not a member is a no-op.
func (m *Multiplexer) RemoveFromGroup(group, clientID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	members := m.groups[group]
	delete(members, clientID)
	if len(members) == 0 {
		delete(m.groups, group)
	}
}

// Groups lists the groups a client belongs to.
func (m *Multiplexer) Groups(clientID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for group, members := range m.groups {
		if members[clientID] {
			out = append(out, group)
		}
	}
	return out
}

// PingAll pings every transport and reports reachability per client.
func (m *Multiplexer) PingAll(ctx context.Context) map[string]bool {
	m.mu.RLock()
	snapshot := make(map[string]*session, len(m.sessions))
	for clientID, s := range m.sessions {
		snapshot[clientID] = s
	}
	m.mu.RUnlock()

	out := make(map[string]bool, len(snapshot))
	for clientID, s := range snapshot {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		out[clientID] = s.transport.Ping(pingCtx) == nil
		cancel()
	}
	return out
}

// Touch records inbound activity for a client, deferring the janitor.
func (m *Multiplexer) Touch(clientID string) {
	m.mu.RLock()
	s, ok := m.sessions[clientID]
	m.mu.RUnlock()
	if ok {
		s.touch(m.now().UTC())
	}
}

// Count returns the number of open sessions.
func (m *Multiplexer) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// StartJanitor sweeps idle sessions on the configured interval until ctx
// is canceled.
func (m *Multiplexer) StartJanitor(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.sweepIdle()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// sweepIdle disconnects every session idle longer than the idle timeout.
func (m *Multiplexer) sweepIdle() {
	cutoff := m.now().UTC().Add(-m.idleTimeout)
	for _, clientID := range m.clientIDs() {
		m.mu.RLock()
		s, ok := m.sessions[clientID]
		m.mu.RUnlock()
		if ok && s.idleSince().Before(cutoff) {
			m.logger.Info("disconnecting idle session", "client_id", clientID)
			m.Disconnect(clientID)
		}
	}
}

// Shutdown broadcasts a shutdown notice, then disconnects everyone and
// refuses further connects.
func (m *Multiplexer) Shutdown(ctx context.Context) {
	m.Broadcast(ctx, Message{
		"type":    "server_shutdown",
		"message": "Server is shutting down",
	})

	// Give writers a moment to flush the notice.
	time.Sleep(100 * time.Millisecond)

	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	for _, clientID := range m.clientIDs() {
		m.Disconnect(clientID)
	}
}

func (m *Multiplexer) clientIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.sessions))
	for clientID := range m.sessions {
		out = append(out, clientID)
	}
	return out
}

func (m *Multiplexer) stamp(msg Message) Message {
	stamped := make(Message, len(msg)+1)
	for k, v := range msg {
		stamped[k] = v
	}
	stamped["timestamp"] = m.now().UTC().Format(time.RFC3339)
	return stamped
}

func (m *Multiplexer) storeConnection(ctx context.Context, clientID string, connectedAt time.Time) {
	if m.rdb == nil {
		return
	}
	key := connKey(clientID)
	err := m.rdb.HSet(ctx, key,
		"client_id", clientID,
		"connected_at", connectedAt.Format(time.RFC3339),
	).Err()
	if err == nil {
		err = m.rdb.Expire(ctx, key, connTTL).Err()
	}
	if err != nil {
		m.logger.Debug("connection metadata write failed", "client_id", clientID, "error", err)
	}
}

func connKey(clientID string) string {
	return "ws_connections:" + clientID
}
