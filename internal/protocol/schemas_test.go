package protocol_test

import (
	"encoding/json"
	"testing"

	"botswarm.ai/internal/protocol"
)

func validate(t *testing.T, s interface{ Validate(any) error }, raw string) {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if err := s.Validate(v); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestSchemas_ValidateSamples(t *testing.T) {
	validate(t, protocol.ActionSchema, `{
	  "kind":"mine",
	  "mode":"interval",
	  "interval_ticks":20
	}`)
	validate(t, protocol.ActionSchema, `{
	  "kind":"move",
	  "direction":"forward",
	  "distance":10
	}`)
	validate(t, protocol.ActionSchema, `{
	  "kind":"lookAt",
	  "target":{"x":10.5,"y":64,"z":-3}
	}`)

	validate(t, protocol.EventSchema, `{
	  "type":"status",
	  "bot_id":"bot_1",
	  "status":"online",
	  "position":{"x":1,"y":64,"z":2},
	  "health":20,
	  "food":18
	}`)
	validate(t, protocol.EventSchema, `{
	  "type":"inventory",
	  "bot_id":"bot_1",
	  "inventory":[{"slot":0,"name":"stone_pickaxe","count":1},{"slot":9,"name":"shield","count":1}]
	}`)
}

func TestSchemas_RejectBadAction(t *testing.T) {
	var v any
	_ = json.Unmarshal([]byte(`{"kind":"teleport"}`), &v)
	if err := protocol.ActionSchema.Validate(v); err == nil {
		t.Fatalf("unknown kind must be rejected")
	}
	_ = json.Unmarshal([]byte(`{"kind":"selectSlot","slot":12}`), &v)
	if err := protocol.ActionSchema.Validate(v); err == nil {
		t.Fatalf("out-of-range slot must be rejected")
	}
}

func TestEventRoundTrip(t *testing.T) {
	h := 16.0
	ev := protocol.Event{Type: protocol.EventStatus, BotID: "bot_1", Status: protocol.StatusOnline, Health: &h}
	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	base, err := protocol.DecodeBase(b)
	if err != nil || base.Type != protocol.EventStatus {
		t.Fatalf("DecodeBase = %+v, %v", base, err)
	}
	var v any
	_ = json.Unmarshal(b, &v)
	if err := protocol.EventSchema.Validate(v); err != nil {
		t.Fatalf("emitted event does not match schema: %v", err)
	}
}
