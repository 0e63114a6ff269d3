package orchestrator

import (
	"context"
	"fmt"
	"math"
	"time"

	"botswarm.ai/internal/botclient"
	"botswarm.ai/internal/protocol"
)

// behaviorTimeout bounds one fire of a scheduled behavior so a hung protocol
// round-trip cannot wedge the job.
const behaviorTimeout = 10 * time.Second

func (s *Session) execute(ctx context.Context, a protocol.Action) error {
	switch act := a.(type) {
	case protocol.Move:
		return s.doMove(act)
	case protocol.Look:
		return s.doLook(act)
	case protocol.LookAt:
		return s.doLookAt(act)
	case protocol.Jump:
		s.pulse(botclient.ControlJump)
		return nil
	case protocol.Sneak:
		s.client.SetControl(botclient.ControlSneak, act.Toggle)
		return nil
	case protocol.SelectSlot:
		return s.client.SelectHotbar(act.Slot)
	case protocol.SwapOffhand:
		return s.client.SwapOffhand(act.Slot)
	case protocol.Recurring:
		return s.executeRecurring(ctx, act)
	default:
		return fmt.Errorf("unhandled action %T", a)
	}
}

func controlForDirection(dir string) botclient.Control {
	switch dir {
	case protocol.DirBack:
		return botclient.ControlBack
	case protocol.DirLeft:
		return botclient.ControlLeft
	case protocol.DirRight:
		return botclient.ControlRight
	default:
		return botclient.ControlForward
	}
}

// doMove holds exactly one directional flag. Finite moves poll displacement
// from the starting position and release the flag at the requested distance;
// without a valid position there is nothing to measure, so the flag is
// released immediately rather than held forever.
func (s *Session) doMove(act protocol.Move) error {
	s.jobs.cancel(jobMove)
	for _, c := range botclient.MoveControls {
		s.client.SetControl(c, false)
	}
	ctl := controlForDirection(act.Direction)
	s.client.SetControl(ctl, true)

	if act.Continuous {
		return nil
	}

	origin, ok := s.client.Position()
	if !ok || act.Distance <= 0 {
		s.client.SetControl(ctl, false)
		return nil
	}

	s.jobs.set(jobMove, movePollInterval, true, func() bool {
		pos, ok := s.client.Position()
		if !ok || pos.DistanceTo(origin) >= act.Distance {
			s.client.SetControl(ctl, false)
			return true
		}
		return false
	})
	return nil
}

func (s *Session) doLook(act protocol.Look) error {
	yaw, pitch, ok := s.client.Orientation()
	if !ok {
		return protocol.NewError(protocol.ErrEntityUnavailable, s.botID, "entity state not yet known")
	}
	rad := act.Degrees * math.Pi / 180
	switch act.Direction {
	case protocol.DirLeft:
		yaw += rad
	case protocol.DirRight:
		yaw -= rad
	case protocol.DirUp:
		pitch += rad
	case protocol.DirDown:
		pitch -= rad
	}
	return s.client.SetOrientation(yaw, pitch)
}

func (s *Session) doLookAt(act protocol.LookAt) error {
	for _, v := range [3]float64{act.Target.X, act.Target.Y, act.Target.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return protocol.NewError(protocol.ErrInvalidCoordinates, s.botID, "target coordinates must be finite")
		}
	}
	return s.client.LookAt(act.Target)
}

// pulse taps a control flag: held briefly, then released. A one-shot on a
// held-flag kind must not leave the flag latched on.
func (s *Session) pulse(ctl botclient.Control) {
	s.client.SetControl(ctl, true)
	time.AfterFunc(controlPulse, func() {
		s.client.SetControl(ctl, false)
	})
}

// heldControl maps the kinds whose continuous mode is a held control flag
// rather than a timer.
func heldControl(kind string) (botclient.Control, bool) {
	switch kind {
	case protocol.KindSprint:
		return botclient.ControlSprint, true
	case protocol.KindSneak:
		return botclient.ControlSneak, true
	case protocol.KindJump:
		return botclient.ControlJump, true
	}
	return "", false
}

func (s *Session) executeRecurring(ctx context.Context, act protocol.Recurring) error {
	if ctl, ok := heldControl(act.Kind); ok {
		switch act.Mode {
		case protocol.ModeContinuous:
			s.jobs.cancel(act.Kind)
			s.client.SetControl(ctl, true)
		case protocol.ModeStop:
			s.jobs.cancel(act.Kind)
			s.client.SetControl(ctl, false)
		case protocol.ModeOnce:
			s.pulse(ctl)
		case protocol.ModeInterval:
			s.jobs.set(act.Kind, protocol.TickDuration(act.Ticks), false, func() bool {
				s.pulse(ctl)
				return false
			})
		}
		return nil
	}

	behavior, err := s.behaviorFor(act.Kind)
	if err != nil {
		return err
	}
	switch act.Mode {
	case protocol.ModeOnce:
		if err := behavior(ctx); err != nil {
			s.log.Printf("bot %s %s: %v", s.botID, act.Kind, err)
		}
	case protocol.ModeInterval:
		s.jobs.set(act.Kind, protocol.TickDuration(act.Ticks), false, s.fire(act.Kind, behavior))
	case protocol.ModeContinuous:
		s.jobs.set(act.Kind, continuousCadence, true, s.fire(act.Kind, behavior))
	case protocol.ModeStop:
		s.jobs.cancel(act.Kind)
	}
	return nil
}

// fire wraps a behavior for the scheduler: failures are logged and swallowed,
// the schedule keeps running.
func (s *Session) fire(kind string, behavior func(context.Context) error) func() bool {
	return func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), behaviorTimeout)
		defer cancel()
		if err := behavior(ctx); err != nil {
			s.log.Printf("bot %s %s: %v", s.botID, kind, err)
		}
		return false
	}
}

func (s *Session) behaviorFor(kind string) (func(context.Context) error, error) {
	switch kind {
	case protocol.KindMine:
		return s.doMine, nil
	case protocol.KindAttack:
		return s.doAttack, nil
	case protocol.KindRightClick:
		return s.doRightClick, nil
	case protocol.KindDropItem:
		return s.client.TossHeldOne, nil
	case protocol.KindDropStack:
		return s.client.TossHeldStack, nil
	}
	return nil, fmt.Errorf("kind %s is not schedulable", kind)
}

func (s *Session) doMine(ctx context.Context) error {
	b, ok := s.client.NearestBlock(interactReach)
	if !ok {
		return nil
	}
	if err := s.client.Dig(ctx, b); err != nil {
		return fmt.Errorf("dig %s: %w", b.Name, err)
	}
	return nil
}

func (s *Session) doAttack(ctx context.Context) error {
	e, ok := s.client.NearestHostile(interactReach)
	if !ok {
		return nil
	}
	return s.client.Attack(ctx, e)
}

// doRightClick tries block activation, then placement against the block, then
// entity activation, then a generic item use. Each step's failure falls
// through to the next; none are fatal.
func (s *Session) doRightClick(ctx context.Context) error {
	if b, ok := s.client.NearestBlock(interactReach); ok {
		if err := s.client.ActivateBlock(ctx, b); err == nil {
			return nil
		}
		if err := s.client.PlaceHeldItem(ctx, b); err == nil {
			return nil
		}
	}
	if e, ok := s.client.NearestEntity(interactReach); ok {
		if err := s.client.ActivateEntity(ctx, e); err == nil {
			return nil
		}
	}
	return s.client.UseHeldItem(ctx)
}
