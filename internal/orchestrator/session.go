package orchestrator

import (
	"log"
	"strings"
	"sync"
	"time"

	"botswarm.ai/internal/botclient"
	"botswarm.ai/internal/events"
	"botswarm.ai/internal/persistence/botstore"
	"botswarm.ai/internal/protocol"
)

// Scheduler keys reserved for the telemetry loops; action kinds use their
// wire names.
const (
	jobUptime    = "uptime"
	jobInventory = "inventory"
	jobMove      = "move"
)

const (
	movePollInterval  = 50 * time.Millisecond
	continuousCadence = 50 * time.Millisecond
	controlPulse      = 100 * time.Millisecond
	interactReach     = 4.0
)

// Session is one bot's live runtime: the protocol client, its scheduled jobs,
// and the goroutine consuming the client's lifecycle stream. All session
// state changes happen on that goroutine or under jobs' own synchronization;
// the registry guarantees at most one Session per bot id.
type Session struct {
	botID  string
	client botclient.Client
	store  botstore.Store
	hub    *events.Hub
	log    *log.Logger

	jobs      *scheduler
	startedAt time.Time

	uptimeEvery    time.Duration
	inventoryEvery time.Duration

	onDisconnect    func(botID, reason string)
	onUnrecoverable func(botID string)

	mu            sync.Mutex
	stopRequested bool

	startOnce sync.Once
	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}
}

type sessionParams struct {
	BotID  string
	Client botclient.Client
	Store  botstore.Store
	Hub    *events.Hub
	Logger *log.Logger

	UptimeEvery    time.Duration
	InventoryEvery time.Duration

	OnDisconnect    func(botID, reason string)
	OnUnrecoverable func(botID string)
}

func newSession(p sessionParams) *Session {
	return &Session{
		botID:           p.BotID,
		client:          p.Client,
		store:           p.Store,
		hub:             p.Hub,
		log:             p.Logger,
		jobs:            newScheduler(),
		startedAt:       time.Now(),
		uptimeEvery:     p.UptimeEvery,
		inventoryEvery:  p.InventoryEvery,
		onDisconnect:    p.OnDisconnect,
		onUnrecoverable: p.OnUnrecoverable,
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
	}
}

func (s *Session) start() {
	s.startOnce.Do(func() { go s.run() })
}

// shutdown tears the session down on behalf of the registry: jobs are
// cancelled before the client closes so no timer can fire into a dead
// connection, then the event loop is awaited.
func (s *Session) shutdown() {
	s.closeOnce.Do(func() {
		close(s.stop)
		s.jobs.cancelAll()
		_ = s.client.Close()
		<-s.done
	})
}

func (s *Session) markStopRequested() {
	s.mu.Lock()
	s.stopRequested = true
	s.mu.Unlock()
}

func (s *Session) isStopRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopRequested
}

func (s *Session) run() {
	defer close(s.done)

	for {
		select {
		case <-s.stop:
			return
		case ev, ok := <-s.client.Events():
			if !ok {
				s.handleDisconnect("connection lost")
				return
			}
			switch ev.Kind {
			case botclient.EventSpawned:
				s.handleSpawned()
			case botclient.EventDisconnected:
				s.handleDisconnect(ev.Reason)
				return
			case botclient.EventErrored:
				s.handleErrored(ev.Message)
			case botclient.EventHealthChanged:
				s.handleHealth(ev.Health, ev.Food)
			case botclient.EventPositionChanged:
				s.handlePosition(ev.Pos)
			}
		}
	}
}

func (s *Session) handleSpawned() {
	now := time.Now().UTC()
	st := protocol.StatusOnline
	s.store.Update(s.botID, botstore.Patch{Status: &st, LastConnectedAt: &now})
	s.hub.Publish(protocol.Event{Type: protocol.EventStatus, BotID: s.botID, Status: st})
	s.startTelemetry()
}

func (s *Session) handleDisconnect(reason string) {
	s.jobs.cancelAll()
	_ = s.client.Close()
	if s.isStopRequested() {
		// Caller-initiated; Stop owns the status transition.
		return
	}
	st := protocol.StatusError
	s.store.Update(s.botID, botstore.Patch{Status: &st})
	s.hub.Publish(protocol.Event{Type: protocol.EventError, BotID: s.botID, Message: "disconnected: " + reason})
	s.hub.Publish(protocol.Event{Type: protocol.EventStatus, BotID: s.botID, Status: st})
	if s.onDisconnect != nil {
		s.onDisconnect(s.botID, reason)
	}
}

func (s *Session) handleErrored(msg string) {
	s.log.Printf("bot %s protocol error: %s", s.botID, msg)
	fatal := isUnrecoverable(msg)
	ev := protocol.Event{Type: protocol.EventError, BotID: s.botID, Message: msg}
	if fatal {
		ev.Code = protocol.ErrUnrecoverable
	}
	s.hub.Publish(ev)
	if fatal {
		st := protocol.StatusError
		s.store.Update(s.botID, botstore.Patch{Status: &st})
		if s.onUnrecoverable != nil {
			s.onUnrecoverable(s.botID)
		}
	}
}

func (s *Session) handleHealth(health, food float64) {
	s.store.Update(s.botID, botstore.Patch{Health: &health, Food: &food})
	s.hub.Publish(protocol.Event{Type: protocol.EventStatus, BotID: s.botID, Health: &health, Food: &food})
}

func (s *Session) handlePosition(pos protocol.Vec3) {
	s.store.Update(s.botID, botstore.Patch{Position: &pos})
	s.hub.Publish(protocol.Event{Type: protocol.EventStatus, BotID: s.botID, Position: &pos})
}

func (s *Session) startTelemetry() {
	s.jobs.set(jobUptime, s.uptimeEvery, false, func() bool {
		secs := int64(time.Since(s.startedAt).Seconds())
		s.store.Update(s.botID, botstore.Patch{UptimeSeconds: &secs})
		return false
	})
	s.jobs.set(jobInventory, s.inventoryEvery, true, func() bool {
		s.snapshotInventory()
		return false
	})
}

func (s *Session) snapshotInventory() {
	held := s.client.HeldSlots()
	slots := make([]protocol.Slot, 0, len(held))
	for i := 0; i <= protocol.OffhandSlot; i++ {
		if sl, ok := held[i]; ok {
			sl.Slot = i
			slots = append(slots, sl)
		}
	}
	s.store.Update(s.botID, botstore.Patch{Inventory: &slots})
	s.hub.Publish(protocol.Event{Type: protocol.EventInventory, BotID: s.botID, Inventory: slots})
}

// Errors in this class leave the server-side session in a state no reconnect
// can fix, so the registry gives up instead of retrying.
var unrecoverableFragments = []string{
	"chat format",
	"chat message type",
}

func isUnrecoverable(msg string) bool {
	lower := strings.ToLower(msg)
	for _, frag := range unrecoverableFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}
