package protocol

import (
	"encoding/json"
	"math"
)

// Event types fanned out to subscribers.
const (
	EventStatus    = "status"
	EventInventory = "inventory"
	EventCreated   = "created"
	EventDeleted   = "deleted"
	EventError     = "error"
)

type BotStatus string

const (
	StatusOffline    BotStatus = "offline"
	StatusConnecting BotStatus = "connecting"
	StatusOnline     BotStatus = "online"
	StatusError      BotStatus = "error"
)

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vec3) DistanceTo(o Vec3) float64 {
	dx := v.X - o.X
	dy := v.Y - o.Y
	dz := v.Z - o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Slot is one inventory slot in the numbered layout exposed to subscribers:
// hotbar slots 0-8, off-hand slot 9.
type Slot struct {
	Slot  int    `json:"slot"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

const OffhandSlot = 9

// Event is the tagged value broadcast to subscribers. Which optional fields
// are set depends on Type; subscribers joining mid-stream get no replay.
type Event struct {
	Type  string `json:"type"`
	BotID string `json:"bot_id,omitempty"`

	// status
	Status        BotStatus `json:"status,omitempty"`
	Position      *Vec3     `json:"position,omitempty"`
	Health        *float64  `json:"health,omitempty"`
	Food          *float64  `json:"food,omitempty"`
	UptimeSeconds *int64    `json:"uptime_seconds,omitempty"`

	// inventory
	Inventory []Slot `json:"inventory,omitempty"`

	// created
	Name string `json:"name,omitempty"`

	// error
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

// BaseMessage lets consumers route a raw event or request by type.
type BaseMessage struct {
	Type string `json:"type"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
