// Package botclienttest provides a scripted in-memory Client for engine tests.
package botclienttest

import (
	"context"
	"fmt"
	"sync"

	"botswarm.ai/internal/botclient"
	"botswarm.ai/internal/protocol"
)

// Fake implements botclient.Client with scripted world state and counters for
// every interaction command.
type Fake struct {
	mu sync.Mutex

	controls map[botclient.Control]bool
	yaw      float64
	pitch    float64
	hasPose  bool

	pos    protocol.Vec3
	hasPos bool

	block      botclient.Block
	hasBlock   bool
	entity     botclient.Entity
	hasEntity  bool
	hostile    botclient.Entity
	hasHostile bool

	slots  map[int]protocol.Slot
	hotbar int

	digErr      error
	activateErr error
	placeErr    error

	Digs       int
	Attacks    int
	Activates  int
	Places     int
	EntityUses int
	ItemUses   int
	TossOnes   int
	TossStacks int

	events chan botclient.LifecycleEvent
	closed bool
}

func New() *Fake {
	return &Fake{
		controls: map[botclient.Control]bool{},
		slots:    map[int]protocol.Slot{},
		events:   make(chan botclient.LifecycleEvent, 64),
	}
}

// --- scripting helpers ---

func (f *Fake) Spawn() {
	f.mu.Lock()
	f.hasPose = true
	f.mu.Unlock()
	f.emit(botclient.LifecycleEvent{Kind: botclient.EventSpawned})
}

func (f *Fake) MoveTo(p protocol.Vec3) {
	f.mu.Lock()
	f.pos = p
	f.hasPos = true
	f.mu.Unlock()
	f.emit(botclient.LifecycleEvent{Kind: botclient.EventPositionChanged, Pos: p})
}

func (f *Fake) SetHealth(health, food float64) {
	f.emit(botclient.LifecycleEvent{Kind: botclient.EventHealthChanged, Health: health, Food: food})
}

func (f *Fake) FailWith(msg string) {
	f.emit(botclient.LifecycleEvent{Kind: botclient.EventErrored, Message: msg})
}

// DropConnection simulates an unexpected server-side disconnect.
func (f *Fake) DropConnection(reason string) {
	f.emit(botclient.LifecycleEvent{Kind: botclient.EventDisconnected, Reason: reason})
	f.mu.Lock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
	f.mu.Unlock()
}

func (f *Fake) PlaceBlock(b botclient.Block) {
	f.mu.Lock()
	f.block, f.hasBlock = b, true
	f.mu.Unlock()
}
func (f *Fake) PlaceEntity(e botclient.Entity) {
	f.mu.Lock()
	f.entity, f.hasEntity = e, true
	f.mu.Unlock()
}
func (f *Fake) PlaceHostile(e botclient.Entity) {
	f.mu.Lock()
	f.hostile, f.hasHostile = e, true
	f.mu.Unlock()
}
func (f *Fake) FailDigs(err error)     { f.mu.Lock(); f.digErr = err; f.mu.Unlock() }
func (f *Fake) FailActivate(err error) { f.mu.Lock(); f.activateErr = err; f.mu.Unlock() }
func (f *Fake) FailPlace(err error)    { f.mu.Lock(); f.placeErr = err; f.mu.Unlock() }

func (f *Fake) SetSlot(s protocol.Slot) {
	f.mu.Lock()
	f.slots[s.Slot] = s
	f.mu.Unlock()
}

func (f *Fake) Control(c botclient.Control) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.controls[c]
}

func (f *Fake) Hotbar() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hotbar
}

func (f *Fake) DigCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Digs
}

func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *Fake) emit(ev botclient.LifecycleEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.events <- ev
}

// --- botclient.Client ---

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
	return nil
}

func (f *Fake) SetControl(c botclient.Control, held bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.controls[c] = held
}

func (f *Fake) SetOrientation(yaw, pitch float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.yaw, f.pitch = yaw, pitch
	return nil
}

func (f *Fake) LookAt(protocol.Vec3) error { return nil }

func (f *Fake) Position() (protocol.Vec3, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos, f.hasPos
}

func (f *Fake) Orientation() (float64, float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.yaw, f.pitch, f.hasPose
}

func (f *Fake) NearestBlock(float64) (botclient.Block, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.block, f.hasBlock
}

func (f *Fake) NearestEntity(float64) (botclient.Entity, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entity, f.hasEntity
}

func (f *Fake) NearestHostile(float64) (botclient.Entity, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hostile, f.hasHostile
}

func (f *Fake) Dig(context.Context, botclient.Block) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.digErr != nil {
		return f.digErr
	}
	f.Digs++
	return nil
}

func (f *Fake) Attack(context.Context, botclient.Entity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Attacks++
	return nil
}

func (f *Fake) ActivateBlock(context.Context, botclient.Block) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.activateErr != nil {
		return f.activateErr
	}
	f.Activates++
	return nil
}

func (f *Fake) PlaceHeldItem(context.Context, botclient.Block) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.placeErr != nil {
		return f.placeErr
	}
	f.Places++
	return nil
}

func (f *Fake) ActivateEntity(context.Context, botclient.Entity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.EntityUses++
	return nil
}

func (f *Fake) UseHeldItem(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ItemUses++
	return nil
}

func (f *Fake) TossHeldOne(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.TossOnes++
	return nil
}

func (f *Fake) TossHeldStack(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.TossStacks++
	return nil
}

func (f *Fake) HeldSlots() map[int]protocol.Slot {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[int]protocol.Slot, len(f.slots))
	for k, v := range f.slots {
		out[k] = v
	}
	return out
}

func (f *Fake) SelectHotbar(slot int) error {
	if slot < 0 || slot > 8 {
		return fmt.Errorf("bad hotbar slot %d", slot)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hotbar = slot
	return nil
}

func (f *Fake) SwapOffhand(slot int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.slots[slot]
	if !ok {
		return nil
	}
	old, hadOff := f.slots[protocol.OffhandSlot]
	s.Slot = protocol.OffhandSlot
	f.slots[protocol.OffhandSlot] = s
	if hadOff {
		old.Slot = slot
		f.slots[slot] = old
	} else {
		delete(f.slots, slot)
	}
	return nil
}

func (f *Fake) Events() <-chan botclient.LifecycleEvent { return f.events }
