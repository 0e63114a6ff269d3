// Package wsproto is the websocket implementation of botclient.Client. It
// speaks the game server's JSON frame protocol: a hello/welcome handshake,
// fire-and-forget control frames, and seq-numbered command frames that the
// server acknowledges individually. The adapter never reconnects on its own;
// when the socket dies it reports a disconnect and closes its event stream.
package wsproto

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"botswarm.ai/internal/botclient"
	"botswarm.ai/internal/protocol"
)

const (
	handshakeTimeout = 5 * time.Second
	writeTimeout     = 5 * time.Second
	readTimeout      = 60 * time.Second
)

// reasonSocketClosed is reported when the socket dies without the server
// sending a disconnect frame first.
const reasonSocketClosed = "socket closed"

type frame struct {
	Type string `json:"type"`

	// hello
	BotID string `json:"bot_id,omitempty"`
	Name  string `json:"name,omitempty"`

	// control
	Control string `json:"control,omitempty"`
	Held    *bool  `json:"held,omitempty"`

	// look / look_at
	Yaw    *float64       `json:"yaw,omitempty"`
	Pitch  *float64       `json:"pitch,omitempty"`
	Target *protocol.Vec3 `json:"target,omitempty"`

	// command / ack
	Seq      uint64         `json:"seq,omitempty"`
	Command  string         `json:"command,omitempty"`
	BlockPos *protocol.Vec3 `json:"block_pos,omitempty"`
	EntityID int            `json:"entity_id,omitempty"`
	Slot     *int           `json:"slot,omitempty"`
	OK       *bool          `json:"ok,omitempty"`

	// state pushed by the server
	Pos      *protocol.Vec3  `json:"pos,omitempty"`
	Health   *float64        `json:"health,omitempty"`
	Food     *float64        `json:"food,omitempty"`
	Slots    []protocol.Slot `json:"slots,omitempty"`
	Blocks   []blockWire     `json:"blocks,omitempty"`
	Entities []entityWire    `json:"entities,omitempty"`
	Reason   string          `json:"reason,omitempty"`
	Message  string          `json:"message,omitempty"`
}

type blockWire struct {
	Pos  protocol.Vec3 `json:"pos"`
	Name string        `json:"name"`
}

type entityWire struct {
	ID      int           `json:"id"`
	Name    string        `json:"name"`
	Pos     protocol.Vec3 `json:"pos"`
	Hostile bool          `json:"hostile"`
}

// Client is a live connection to the game server for one bot.
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu      sync.RWMutex
	pos     protocol.Vec3
	hasPos  bool
	yaw     float64
	pitch   float64
	hasPose bool
	slots   map[int]protocol.Slot
	blocks  []blockWire
	ents    []entityWire

	seq     uint64
	pending map[uint64]chan frame

	closeOnce sync.Once
	closedCh  chan struct{}

	eventsMu     sync.Mutex
	events       chan botclient.LifecycleEvent
	eventsClosed bool
}

var _ botclient.Client = (*Client)(nil)

// Dial satisfies botclient.Dialer.
func Dial(ctx context.Context, id botclient.Identity, ep botclient.Endpoint) (botclient.Client, error) {
	url := fmt.Sprintf("ws://%s:%d/bots", ep.Host, ep.Port)
	d := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, resp, err := d.DialContext(ctx, url, http.Header{})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	c := &Client{
		conn:     conn,
		slots:    map[int]protocol.Slot{},
		pending:  map[uint64]chan frame{},
		closedCh: make(chan struct{}),
		events:   make(chan botclient.LifecycleEvent, 256),
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(frame{Type: "hello", BotID: id.BotID, Name: id.Name}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send hello: %w", err)
	}

	go c.readLoop()
	return c, nil
}

func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.closedCh)
		_ = c.conn.Close()
	})
	return nil
}

func (c *Client) closed() bool {
	select {
	case <-c.closedCh:
		return true
	default:
		return false
	}
}

// readLoop owns the inbound side of the socket. It mirrors server state into
// the client and translates server frames into lifecycle events; when it
// exits, every waiter is released and the event stream closes.
func (c *Client) readLoop() {
	reason := reasonSocketClosed
	for {
		_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		var f frame
		if err := json.Unmarshal(msg, &f); err != nil {
			continue
		}
		switch f.Type {
		case "welcome":
			// Nothing to do until the server places us in the world.

		case "spawn":
			c.mu.Lock()
			if f.Pos != nil {
				c.pos, c.hasPos = *f.Pos, true
			}
			if f.Yaw != nil {
				c.yaw = *f.Yaw
			}
			if f.Pitch != nil {
				c.pitch = *f.Pitch
			}
			c.hasPose = true
			c.mu.Unlock()
			c.emit(botclient.LifecycleEvent{Kind: botclient.EventSpawned})

		case "position":
			if f.Pos == nil {
				continue
			}
			c.mu.Lock()
			c.pos, c.hasPos = *f.Pos, true
			if f.Yaw != nil {
				c.yaw = *f.Yaw
			}
			if f.Pitch != nil {
				c.pitch = *f.Pitch
			}
			c.mu.Unlock()
			c.emit(botclient.LifecycleEvent{Kind: botclient.EventPositionChanged, Pos: *f.Pos})

		case "health":
			if f.Health == nil || f.Food == nil {
				continue
			}
			c.emit(botclient.LifecycleEvent{Kind: botclient.EventHealthChanged, Health: *f.Health, Food: *f.Food})

		case "inventory":
			c.mu.Lock()
			c.slots = make(map[int]protocol.Slot, len(f.Slots))
			for _, s := range f.Slots {
				c.slots[s.Slot] = s
			}
			c.mu.Unlock()

		case "world":
			c.mu.Lock()
			c.blocks = f.Blocks
			c.ents = f.Entities
			c.mu.Unlock()

		case "ack":
			c.mu.Lock()
			ch := c.pending[f.Seq]
			delete(c.pending, f.Seq)
			c.mu.Unlock()
			if ch != nil {
				ch <- f
			}

		case "error":
			c.emit(botclient.LifecycleEvent{Kind: botclient.EventErrored, Message: f.Message})

		case "disconnect":
			reason = f.Reason
		}
	}

	_ = c.conn.Close()
	c.releaseWaiters()
	if !c.closed() {
		c.emit(botclient.LifecycleEvent{Kind: botclient.EventDisconnected, Reason: reason})
	}
	c.closeEvents()
}

func (c *Client) releaseWaiters() {
	c.mu.Lock()
	for seq, ch := range c.pending {
		delete(c.pending, seq)
		close(ch)
	}
	c.mu.Unlock()
}

func (c *Client) emit(ev botclient.LifecycleEvent) {
	c.eventsMu.Lock()
	defer c.eventsMu.Unlock()
	if c.eventsClosed {
		return
	}
	select {
	case c.events <- ev:
	default:
		// Consumer stalled; state frames are periodic, dropping one is fine.
	}
}

func (c *Client) closeEvents() {
	c.eventsMu.Lock()
	defer c.eventsMu.Unlock()
	if !c.eventsClosed {
		c.eventsClosed = true
		close(c.events)
	}
}

func (c *Client) Events() <-chan botclient.LifecycleEvent { return c.events }

func (c *Client) writeFrame(f frame) error {
	if c.closed() {
		return fmt.Errorf("connection closed")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(f)
}

// command sends a seq-numbered frame and waits for the matching ack.
func (c *Client) command(ctx context.Context, f frame) error {
	ch := make(chan frame, 1)
	c.mu.Lock()
	c.seq++
	f.Seq = c.seq
	c.pending[f.Seq] = ch
	c.mu.Unlock()

	if err := c.writeFrame(f); err != nil {
		c.mu.Lock()
		delete(c.pending, f.Seq)
		c.mu.Unlock()
		return err
	}

	select {
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, f.Seq)
		c.mu.Unlock()
		return ctx.Err()
	case ack, ok := <-ch:
		if !ok {
			return fmt.Errorf("connection closed")
		}
		if ack.OK != nil && !*ack.OK {
			return fmt.Errorf("%s rejected: %s", f.Command, ack.Message)
		}
		return nil
	}
}

func (c *Client) SetControl(ctl botclient.Control, held bool) {
	h := held
	_ = c.writeFrame(frame{Type: "control", Control: string(ctl), Held: &h})
}

func (c *Client) SetOrientation(yaw, pitch float64) error {
	c.mu.Lock()
	c.yaw, c.pitch = yaw, pitch
	c.mu.Unlock()
	return c.writeFrame(frame{Type: "look", Yaw: &yaw, Pitch: &pitch})
}

func (c *Client) LookAt(target protocol.Vec3) error {
	return c.writeFrame(frame{Type: "look_at", Target: &target})
}

func (c *Client) Position() (protocol.Vec3, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pos, c.hasPos
}

func (c *Client) Orientation() (float64, float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.yaw, c.pitch, c.hasPose
}

func (c *Client) NearestBlock(reach float64) (botclient.Block, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.hasPos {
		return botclient.Block{}, false
	}
	best := botclient.Block{}
	bestDist := math.Inf(1)
	for _, b := range c.blocks {
		if d := b.Pos.DistanceTo(c.pos); d <= reach && d < bestDist {
			best = botclient.Block{Pos: b.Pos, Name: b.Name}
			bestDist = d
		}
	}
	return best, !math.IsInf(bestDist, 1)
}

func (c *Client) NearestEntity(reach float64) (botclient.Entity, bool) {
	return c.nearestEntity(reach, false)
}

func (c *Client) NearestHostile(reach float64) (botclient.Entity, bool) {
	return c.nearestEntity(reach, true)
}

func (c *Client) nearestEntity(reach float64, hostileOnly bool) (botclient.Entity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.hasPos {
		return botclient.Entity{}, false
	}
	best := botclient.Entity{}
	bestDist := math.Inf(1)
	for _, e := range c.ents {
		if hostileOnly && !e.Hostile {
			continue
		}
		if d := e.Pos.DistanceTo(c.pos); d <= reach && d < bestDist {
			best = botclient.Entity{ID: e.ID, Name: e.Name, Pos: e.Pos, Hostile: e.Hostile}
			bestDist = d
		}
	}
	return best, !math.IsInf(bestDist, 1)
}

func (c *Client) Dig(ctx context.Context, b botclient.Block) error {
	return c.command(ctx, frame{Type: "command", Command: "dig", BlockPos: &b.Pos})
}

func (c *Client) Attack(ctx context.Context, e botclient.Entity) error {
	return c.command(ctx, frame{Type: "command", Command: "attack", EntityID: e.ID})
}

func (c *Client) ActivateBlock(ctx context.Context, b botclient.Block) error {
	return c.command(ctx, frame{Type: "command", Command: "activate_block", BlockPos: &b.Pos})
}

func (c *Client) PlaceHeldItem(ctx context.Context, b botclient.Block) error {
	return c.command(ctx, frame{Type: "command", Command: "place", BlockPos: &b.Pos})
}

func (c *Client) ActivateEntity(ctx context.Context, e botclient.Entity) error {
	return c.command(ctx, frame{Type: "command", Command: "activate_entity", EntityID: e.ID})
}

func (c *Client) UseHeldItem(ctx context.Context) error {
	return c.command(ctx, frame{Type: "command", Command: "use_item"})
}

func (c *Client) TossHeldOne(ctx context.Context) error {
	return c.command(ctx, frame{Type: "command", Command: "toss_one"})
}

func (c *Client) TossHeldStack(ctx context.Context) error {
	return c.command(ctx, frame{Type: "command", Command: "toss_stack"})
}

func (c *Client) HeldSlots() map[int]protocol.Slot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[int]protocol.Slot, len(c.slots))
	for k, v := range c.slots {
		out[k] = v
	}
	return out
}

func (c *Client) SelectHotbar(slot int) error {
	if slot < 0 || slot > 8 {
		return fmt.Errorf("hotbar slot %d out of range", slot)
	}
	return c.writeFrame(frame{Type: "command", Command: "select_slot", Slot: &slot})
}

func (c *Client) SwapOffhand(slot int) error {
	if slot < 0 || slot > 8 {
		return fmt.Errorf("hotbar slot %d out of range", slot)
	}
	return c.writeFrame(frame{Type: "command", Command: "swap_offhand", Slot: &slot})
}
