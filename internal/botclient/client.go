// Package botclient defines the capability surface the orchestration engine
// requires from a game-protocol client: movement and look control, block and
// entity interaction, inventory access, and a lifecycle event stream. The
// engine never talks to a concrete protocol implementation directly.
package botclient

import (
	"context"

	"botswarm.ai/internal/protocol"
)

// Control flags the engine can hold or release on the remote avatar.
type Control string

const (
	ControlForward Control = "forward"
	ControlBack    Control = "back"
	ControlLeft    Control = "left"
	ControlRight   Control = "right"
	ControlJump    Control = "jump"
	ControlSneak   Control = "sneak"
	ControlSprint  Control = "sprint"
)

// MoveControls are the four mutually exclusive directional flags.
var MoveControls = []Control{ControlForward, ControlBack, ControlLeft, ControlRight}

// Identity names the avatar a connection is opened for.
type Identity struct {
	BotID string
	Name  string
}

// Endpoint is the remote game server address.
type Endpoint struct {
	Host string
	Port int
}

// Block is an interactable block within reach.
type Block struct {
	Pos  protocol.Vec3
	Name string
}

// Entity is a nearby entity; Hostile entities are valid attack targets.
type Entity struct {
	ID      int
	Name    string
	Pos     protocol.Vec3
	Hostile bool
}

// Lifecycle event kinds emitted on Events().
const (
	EventSpawned         = "spawned"
	EventDisconnected    = "disconnected"
	EventErrored         = "errored"
	EventHealthChanged   = "healthChanged"
	EventPositionChanged = "positionChanged"
)

// LifecycleEvent is one entry of the client's event stream. Reason is set for
// disconnects, Message for errors, Health/Food and Pos for the change events.
type LifecycleEvent struct {
	Kind    string
	Reason  string
	Message string
	Health  float64
	Food    float64
	Pos     protocol.Vec3
}

// Client is one live connection to the game server. All methods must be safe
// to call after Close (they become no-ops or return errors); the Events
// channel is closed once the connection is gone and no more events follow.
type Client interface {
	// Close requests a graceful, caller-initiated disconnect.
	Close() error

	// Control state. Setters are fire-and-forget.
	SetControl(c Control, held bool)
	SetOrientation(yaw, pitch float64) error
	LookAt(target protocol.Vec3) error

	// Observed state. The bool is false before spawn state is known.
	Position() (protocol.Vec3, bool)
	Orientation() (yaw, pitch float64, ok bool)

	// World queries within reach. NearestEntity returns any interactable
	// entity; NearestHostile only valid attack targets.
	NearestBlock(reach float64) (Block, bool)
	NearestEntity(reach float64) (Entity, bool)
	NearestHostile(reach float64) (Entity, bool)

	// Interaction commands; each awaits server confirmation.
	Dig(ctx context.Context, b Block) error
	Attack(ctx context.Context, e Entity) error
	ActivateBlock(ctx context.Context, b Block) error
	PlaceHeldItem(ctx context.Context, b Block) error
	ActivateEntity(ctx context.Context, e Entity) error
	UseHeldItem(ctx context.Context) error

	// Inventory. TossHeldOne/TossHeldStack are no-ops when nothing is held.
	TossHeldOne(ctx context.Context) error
	TossHeldStack(ctx context.Context) error
	HeldSlots() map[int]protocol.Slot
	SelectHotbar(slot int) error
	SwapOffhand(slot int) error

	// Lifecycle stream consumed by the owning session.
	Events() <-chan LifecycleEvent
}

// Dialer opens a connection for one bot. The engine owns reconnection;
// implementations must not reconnect on their own.
type Dialer func(ctx context.Context, id Identity, ep Endpoint) (Client, error)
