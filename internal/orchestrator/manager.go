// Package orchestrator owns one runtime session per bot: it multiplexes
// action requests into a single coherent control state per bot, reconnects
// after unexpected disconnects, and republishes lifecycle and telemetry as a
// normalized event stream.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"botswarm.ai/internal/botclient"
	"botswarm.ai/internal/events"
	"botswarm.ai/internal/persistence/botstore"
	"botswarm.ai/internal/protocol"
)

// reasonSocketClosed is the only disconnect reason the registry retries.
// Other unexpected reasons stay down until a manual start; see DESIGN.md.
const reasonSocketClosed = "socket closed"

type Config struct {
	Endpoint botclient.Endpoint
	Dial     botclient.Dialer
	Store    botstore.Store
	Hub      *events.Hub
	Logger   *log.Logger

	// ReconnectDelays is the back-to-back retry budget after an unexpected
	// disconnect; once exhausted the bot stays down.
	ReconnectDelays []time.Duration

	UptimeInterval    time.Duration
	InventoryInterval time.Duration
}

// Manager is the process-wide session registry: at most one live Session per
// bot identifier, with per-identifier start/stop sequencing.
type Manager struct {
	cfg Config

	mu       sync.Mutex
	sessions map[string]*Session
	locks    map[string]*sync.Mutex
	closed   bool

	stopCh chan struct{}
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.Dial == nil {
		return nil, fmt.Errorf("nil dialer")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("nil store")
	}
	if cfg.Hub == nil {
		return nil, fmt.Errorf("nil hub")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stdout, "[orchestrator] ", log.LstdFlags|log.Lmicroseconds)
	}
	if len(cfg.ReconnectDelays) == 0 {
		cfg.ReconnectDelays = []time.Duration{5 * time.Second, 10 * time.Second}
	}
	if cfg.UptimeInterval <= 0 {
		cfg.UptimeInterval = 30 * time.Second
	}
	if cfg.InventoryInterval <= 0 {
		cfg.InventoryInterval = 5 * time.Second
	}
	return &Manager{
		cfg:      cfg,
		sessions: map[string]*Session{},
		locks:    map[string]*sync.Mutex{},
		stopCh:   make(chan struct{}),
	}, nil
}

// Close tears down every live session. The registry refuses new starts
// afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.stopCh)
	all := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		all = append(all, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, s := range all {
		s.markStopRequested()
		s.shutdown()
	}
}

// Start opens a session for the bot. An existing session for the same id is
// fully torn down first, so two live connections can never coexist.
func (m *Manager) Start(ctx context.Context, botID string) error {
	lk := m.lockFor(botID)
	lk.Lock()
	defer lk.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("orchestrator closed")
	}
	old := m.sessions[botID]
	delete(m.sessions, botID)
	m.mu.Unlock()
	if old != nil {
		old.markStopRequested()
		old.shutdown()
	}

	rec, ok := m.cfg.Store.Get(botID)
	if !ok {
		return fmt.Errorf("unknown bot %q", botID)
	}

	m.setStatus(botID, protocol.StatusConnecting)

	client, err := m.cfg.Dial(ctx, botclient.Identity{BotID: rec.ID, Name: rec.Name}, m.cfg.Endpoint)
	if err != nil {
		m.setStatus(botID, protocol.StatusError)
		m.cfg.Hub.Publish(protocol.Event{Type: protocol.EventError, BotID: botID, Code: protocol.ErrConnectionFailed, Message: fmt.Sprintf("connect: %v", err)})
		return protocol.NewError(protocol.ErrConnectionFailed, botID, err.Error())
	}

	s := newSession(sessionParams{
		BotID:           botID,
		Client:          client,
		Store:           m.cfg.Store,
		Hub:             m.cfg.Hub,
		Logger:          m.cfg.Logger,
		UptimeEvery:     m.cfg.UptimeInterval,
		InventoryEvery:  m.cfg.InventoryInterval,
		OnDisconnect:    m.onSessionDisconnect,
		OnUnrecoverable: m.onSessionUnrecoverable,
	})

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = client.Close()
		return fmt.Errorf("orchestrator closed")
	}
	m.sessions[botID] = s
	m.mu.Unlock()

	s.start()
	m.cfg.Logger.Printf("bot %s connecting to %s:%d", botID, m.cfg.Endpoint.Host, m.cfg.Endpoint.Port)
	return nil
}

// Stop tears down the bot's session. Stopping an already-stopped bot is a
// no-op, not an error.
func (m *Manager) Stop(ctx context.Context, botID string) error {
	lk := m.lockFor(botID)
	lk.Lock()
	defer lk.Unlock()

	m.mu.Lock()
	s := m.sessions[botID]
	delete(m.sessions, botID)
	m.mu.Unlock()
	if s == nil {
		return nil
	}

	s.markStopRequested()
	s.shutdown()
	m.setStatus(botID, protocol.StatusOffline)
	m.cfg.Logger.Printf("bot %s stopped", botID)
	_ = ctx
	return nil
}

// ExecuteAction dispatches an action to the bot's live session.
func (m *Manager) ExecuteAction(ctx context.Context, botID string, a protocol.Action) error {
	m.mu.Lock()
	s := m.sessions[botID]
	m.mu.Unlock()
	if s == nil {
		return protocol.NewError(protocol.ErrNotRunning, botID, "no live session")
	}
	return s.execute(ctx, a)
}

// Running reports whether the bot has a live session.
func (m *Manager) Running(botID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[botID] != nil
}

// SessionCount is the number of live sessions.
func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) lockFor(botID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lk := m.locks[botID]
	if lk == nil {
		lk = &sync.Mutex{}
		m.locks[botID] = lk
	}
	return lk
}

func (m *Manager) setStatus(botID string, st protocol.BotStatus) {
	m.cfg.Store.Update(botID, botstore.Patch{Status: &st})
	m.cfg.Hub.Publish(protocol.Event{Type: protocol.EventStatus, BotID: botID, Status: st})
}

// onSessionDisconnect runs on the session's event loop after it has torn
// itself down; the registry only drops the map entry and decides on a retry.
func (m *Manager) onSessionDisconnect(botID, reason string) {
	m.dropSession(botID)
	if reason != reasonSocketClosed {
		m.cfg.Logger.Printf("bot %s disconnected (%s), not retrying", botID, reason)
		return
	}
	m.cfg.Logger.Printf("bot %s disconnected (%s), scheduling reconnect", botID, reason)
	go m.reconnect(botID)
}

func (m *Manager) onSessionUnrecoverable(botID string) {
	s := m.dropSession(botID)
	m.cfg.Logger.Printf("bot %s hit an unrecoverable protocol error, giving up", botID)
	if s != nil {
		// The session reported this from its own loop; tear it down from
		// outside so its goroutine can exit. Status error is already
		// persisted, so the close must not look like a fresh disconnect.
		s.markStopRequested()
		go s.shutdown()
	}
}

func (m *Manager) dropSession(botID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessions[botID]
	delete(m.sessions, botID)
	return s
}

// reconnect retries the configured delay schedule once each, then gives up.
// A bot manually stopped in the meantime (persisted status offline) or
// deleted is left alone.
func (m *Manager) reconnect(botID string) {
	for i, delay := range m.cfg.ReconnectDelays {
		select {
		case <-m.stopCh:
			return
		case <-time.After(delay):
		}
		rec, ok := m.cfg.Store.Get(botID)
		if !ok || rec.Status == protocol.StatusOffline {
			return
		}
		if err := m.Start(context.Background(), botID); err != nil {
			m.cfg.Logger.Printf("bot %s reconnect attempt %d: %v", botID, i+1, err)
			continue
		}
		return
	}
}
