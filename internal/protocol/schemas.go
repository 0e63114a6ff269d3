package protocol

import (
	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/action.schema.json
var actionSchemaSrc string

//go:embed schemas/event.schema.json
var eventSchemaSrc string

// ActionSchema validates raw action request bodies before decoding.
var ActionSchema = jsonschema.MustCompileString("action.schema.json", actionSchemaSrc)

// EventSchema is shipped for subscribers; validated against samples in tests.
var EventSchema = jsonschema.MustCompileString("event.schema.json", eventSchemaSrc)
