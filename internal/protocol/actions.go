package protocol

import (
	"fmt"
	"math"
	"time"
)

// Action kinds accepted on the wire.
const (
	KindMove        = "move"
	KindLook        = "look"
	KindLookAt      = "lookAt"
	KindJump        = "jump"
	KindSneak       = "sneak"
	KindSprint      = "sprint"
	KindMine        = "mine"
	KindAttack      = "attack"
	KindRightClick  = "rightClick"
	KindDropItem    = "dropItem"
	KindDropStack   = "dropStack"
	KindSelectSlot  = "selectSlot"
	KindSwapOffhand = "swapOffhand"
)

// Schedule modes for recurring kinds.
const (
	ModeOnce       = "once"
	ModeInterval   = "interval"
	ModeContinuous = "continuous"
	ModeStop       = "stop"
)

// Movement and look directions.
const (
	DirForward = "forward"
	DirBack    = "back"
	DirLeft    = "left"
	DirRight   = "right"
	DirUp      = "up"
	DirDown    = "down"
)

// TicksPerSecond is the remote world's fixed tick rate.
const TicksPerSecond = 20

// TickDuration converts a game-tick count into wall time (20 ticks = 1s).
func TickDuration(ticks int) time.Duration {
	return time.Duration(ticks) * time.Second / TicksPerSecond
}

// Action is the closed set of commands a session can execute. Adding a kind
// means adding a variant here and a case to the session dispatch.
type Action interface{ isAction() }

// Move sets a directional control flag. Continuous moves hold the flag until
// replaced; finite moves release it once the travelled distance is reached.
type Move struct {
	Direction  string
	Distance   float64
	Continuous bool
}

// Look rotates yaw (left/right) or pitch (up/down) by Degrees from the
// current orientation.
type Look struct {
	Direction string
	Degrees   float64
}

// LookAt faces the bot toward a world coordinate.
type LookAt struct {
	Target Vec3
}

// Jump is a one-shot pulse of the jump control.
type Jump struct{}

// Sneak sets the sneak control state directly.
type Sneak struct {
	Toggle bool
}

// SelectSlot sets the active hotbar slot (0-8).
type SelectSlot struct {
	Slot int
}

// SwapOffhand moves the item from a hotbar slot into the off-hand slot.
type SwapOffhand struct {
	Slot int
}

// Recurring is a schedulable behavior: mine, attack, rightClick, dropItem,
// dropStack, or one of the held-control kinds (sprint, sneak, jump).
type Recurring struct {
	Kind  string
	Mode  string
	Ticks int
}

func (Move) isAction()        {}
func (Look) isAction()        {}
func (LookAt) isAction()      {}
func (Jump) isAction()        {}
func (Sneak) isAction()       {}
func (SelectSlot) isAction()  {}
func (SwapOffhand) isAction() {}
func (Recurring) isAction()   {}

// ActionRequest is the wire form of an action command. Which fields are
// required depends on Kind; Action() performs the validation.
type ActionRequest struct {
	Kind          string   `json:"kind"`
	Mode          string   `json:"mode,omitempty"`
	IntervalTicks int      `json:"interval_ticks,omitempty"`
	Direction     string   `json:"direction,omitempty"`
	Distance      *float64 `json:"distance,omitempty"`
	Degrees       float64  `json:"degrees,omitempty"`
	Target        *Vec3    `json:"target,omitempty"`
	Slot          *int     `json:"slot,omitempty"`
	Toggle        *bool    `json:"toggle,omitempty"`
}

// Action converts the wire form into its tagged variant.
func (r ActionRequest) Action() (Action, error) {
	switch r.Kind {
	case KindMove:
		switch r.Direction {
		case DirForward, DirBack, DirLeft, DirRight:
		default:
			return nil, fmt.Errorf("move: bad direction %q", r.Direction)
		}
		if r.Distance == nil {
			return Move{Direction: r.Direction, Continuous: true}, nil
		}
		if *r.Distance < 0 || math.IsNaN(*r.Distance) || math.IsInf(*r.Distance, 0) {
			return nil, fmt.Errorf("move: bad distance")
		}
		return Move{Direction: r.Direction, Distance: *r.Distance}, nil

	case KindLook:
		switch r.Direction {
		case DirUp, DirDown, DirLeft, DirRight:
		default:
			return nil, fmt.Errorf("look: bad direction %q", r.Direction)
		}
		return Look{Direction: r.Direction, Degrees: r.Degrees}, nil

	case KindLookAt:
		if r.Target == nil {
			return nil, fmt.Errorf("lookAt: missing target")
		}
		return LookAt{Target: *r.Target}, nil

	case KindJump:
		if r.Mode != "" {
			return recurring(r)
		}
		return Jump{}, nil

	case KindSneak:
		if r.Mode != "" {
			return recurring(r)
		}
		if r.Toggle == nil {
			return nil, fmt.Errorf("sneak: missing toggle")
		}
		return Sneak{Toggle: *r.Toggle}, nil

	case KindSprint, KindMine, KindAttack, KindRightClick, KindDropItem, KindDropStack:
		return recurring(r)

	case KindSelectSlot:
		if r.Slot == nil || *r.Slot < 0 || *r.Slot > 8 {
			return nil, fmt.Errorf("selectSlot: slot must be 0-8")
		}
		return SelectSlot{Slot: *r.Slot}, nil

	case KindSwapOffhand:
		if r.Slot == nil || *r.Slot < 0 || *r.Slot > 8 {
			return nil, fmt.Errorf("swapOffhand: slot must be 0-8")
		}
		return SwapOffhand{Slot: *r.Slot}, nil

	default:
		return nil, fmt.Errorf("unknown action kind %q", r.Kind)
	}
}

func recurring(r ActionRequest) (Action, error) {
	switch r.Mode {
	case ModeOnce, ModeContinuous, ModeStop:
	case ModeInterval:
		if r.IntervalTicks <= 0 {
			return nil, fmt.Errorf("%s: interval mode needs interval_ticks > 0", r.Kind)
		}
	default:
		return nil, fmt.Errorf("%s: bad mode %q", r.Kind, r.Mode)
	}
	return Recurring{Kind: r.Kind, Mode: r.Mode, Ticks: r.IntervalTicks}, nil
}
